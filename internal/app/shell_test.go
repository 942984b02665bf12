package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/luckylubricants/rewards/internal/backend"
	"github.com/luckylubricants/rewards/internal/model"
	"github.com/luckylubricants/rewards/internal/session"
	"github.com/luckylubricants/rewards/internal/storage"
)

type fakeBackend struct {
	mu         sync.Mutex
	calls      []string
	points     int
	profileErr error
	redeemErr  error
	scanErr    error
	loginErr   error
	onBalance  func()
}

func (f *fakeBackend) record(name string) {
	f.mu.Lock()
	f.calls = append(f.calls, name)
	f.mu.Unlock()
}

func (f *fakeBackend) called(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == name {
			n++
		}
	}
	return n
}

func (f *fakeBackend) Login(ctx context.Context, identifier, password string) (model.LoginResult, error) {
	f.record("login:" + identifier)
	if f.loginErr != nil {
		return model.LoginResult{}, f.loginErr
	}
	return model.LoginResult{AccessToken: "token-1", UserID: 1}, nil
}

func (f *fakeBackend) Profile(ctx context.Context) (model.Profile, error) {
	f.record("profile")
	if f.profileErr != nil {
		return model.Profile{}, f.profileErr
	}
	return model.Profile{ID: 1, Name: "Ravi Kumar", Phone: "9876543210"}, nil
}

func (f *fakeBackend) Balance(ctx context.Context) (model.Balance, error) {
	f.record("balance")
	if f.onBalance != nil {
		f.onBalance()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return model.Balance{Points: f.points}, nil
}

func (f *fakeBackend) Notifications(ctx context.Context) ([]model.Notification, error) {
	f.record("notifications")
	return []model.Notification{{ID: "1", Title: "Welcome"}}, nil
}

func (f *fakeBackend) Transactions(ctx context.Context) ([]model.Transaction, error) {
	return []model.Transaction{}, nil
}

func (f *fakeBackend) Rewards(ctx context.Context) ([]model.Reward, error) {
	return []model.Reward{}, nil
}

func (f *fakeBackend) Products(ctx context.Context) ([]model.Product, error) {
	return []model.Product{}, nil
}

func (f *fakeBackend) RedemptionHistory(ctx context.Context) ([]model.Redemption, error) {
	return []model.Redemption{}, nil
}

func (f *fakeBackend) Register(ctx context.Context, reg model.Registration) error {
	f.record("register")
	return nil
}

func (f *fakeBackend) ScanVoucher(ctx context.Context, code string) (model.ScanResult, error) {
	f.record("scan")
	if f.scanErr != nil {
		return model.ScanResult{}, f.scanErr
	}
	f.mu.Lock()
	f.points += 50
	f.mu.Unlock()
	return model.ScanResult{PointsEarned: 50}, nil
}

func (f *fakeBackend) Redeem(ctx context.Context, rewardID string) (model.RedeemResult, error) {
	f.record("redeem:" + rewardID)
	if f.redeemErr != nil {
		return model.RedeemResult{}, f.redeemErr
	}
	f.mu.Lock()
	f.points -= 500
	f.mu.Unlock()
	return model.RedeemResult{Message: "Jacket redeemed"}, nil
}

func (f *fakeBackend) UploadProfileImage(ctx context.Context, filename string, r io.Reader) (string, error) {
	f.record("upload")
	return "https://cdn/avatar.png", nil
}

func (f *fakeBackend) ContactSupport(ctx context.Context, subject, message string) (model.Ticket, error) {
	f.record("support")
	return model.Ticket{ID: "t-1"}, nil
}

func (f *fakeBackend) Banners(ctx context.Context) ([]model.Banner, error) {
	return []model.Banner{}, nil
}

func (f *fakeBackend) AddToCart(ctx context.Context, productID string) error {
	f.record("cart:" + productID)
	return nil
}

func (f *fakeBackend) PlaceOrder(ctx context.Context) (model.Order, error) {
	f.record("order")
	return model.Order{ID: "1"}, nil
}

var now = time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)

type linkRecorder struct {
	links []string
}

func (l *linkRecorder) Open(link string) error {
	l.links = append(l.links, link)
	return nil
}

func setupShell(t *testing.T, fb *fakeBackend) (*Shell, *storage.Store, *clockwork.FakeClock, *linkRecorder) {
	t.Helper()
	st := storage.Memory()
	clock := clockwork.NewFakeClockAt(now)
	links := &linkRecorder{}
	sh := NewShell(Deps{
		Backend:       fb,
		Session:       session.NewManager(st, fb, clock, nil),
		Storage:       st,
		Links:         links,
		Clock:         clock,
		SupportNumber: "+919876543210",
	})
	return sh, st, clock, links
}

func loggedIn(t *testing.T, sh *Shell) {
	t.Helper()
	if err := sh.Login(context.Background(), "9876543210", "secret1"); err != nil {
		t.Fatalf("Login: %v", err)
	}
}

func TestLoginShowsFetchedUser(t *testing.T) {
	fb := &fakeBackend{points: 450}
	sh, st, _, _ := setupShell(t, fb)

	before := sh.State()
	if before.User.Name != model.GuestName || before.User.Points != 0 || before.LoggedIn {
		t.Fatalf("initial state = %+v", before)
	}

	loggedIn(t, sh)
	got := sh.State()
	if !got.LoggedIn || got.ShowSplash || got.ActiveTab != TabHome {
		t.Errorf("state = %+v", got)
	}
	if got.User.Name != "Ravi Kumar" || got.User.Points != 450 {
		t.Errorf("user = %+v, want Ravi Kumar with 450 points", got.User)
	}
	if got.Loading {
		t.Error("loading flag left set")
	}
	if st.Token() != "token-1" {
		t.Errorf("token = %q", st.Token())
	}
}

func TestLoginSyncFailureStillLogsIn(t *testing.T) {
	fb := &fakeBackend{profileErr: errors.New("Server Error: 500")}
	sh, _, _, _ := setupShell(t, fb)
	loggedIn(t, sh)
	got := sh.State()
	if !got.LoggedIn {
		t.Error("login should complete even if the first sync fails")
	}
	if got.User.Name != model.GuestName {
		t.Errorf("user = %+v, want guest placeholder", got.User)
	}
}

func TestLoginValidationMakesNoCall(t *testing.T) {
	fb := &fakeBackend{}
	sh, _, _, _ := setupShell(t, fb)
	err := sh.Login(context.Background(), "  ", "secret")
	var verr *ValidationError
	if !errors.As(err, &verr) || verr.Message != "Please enter your credentials." {
		t.Fatalf("err = %v", err)
	}
	if len(fb.calls) != 0 {
		t.Errorf("calls = %v, want none", fb.calls)
	}
}

func TestLoginFailurePersistsNothing(t *testing.T) {
	fb := &fakeBackend{loginErr: &backend.APIError{Status: 401, Message: "Invalid credentials"}}
	sh, st, _, _ := setupShell(t, fb)
	err := sh.Login(context.Background(), "9876543210", "wrong")
	if err == nil || err.Error() != "Invalid credentials" {
		t.Fatalf("err = %v", err)
	}
	if st.Len() != 0 || sh.State().LoggedIn {
		t.Error("failed login changed state")
	}
}

func TestLoginTransportFailureUsesFallback(t *testing.T) {
	dial := fmt.Errorf("POST /api/auth/login: %w", errors.New("dial tcp 127.0.0.1:5000: connection refused"))
	fb := &fakeBackend{loginErr: dial}
	sh, st, _, _ := setupShell(t, fb)
	err := sh.Login(context.Background(), "9876543210", "secret1")
	if err == nil || err.Error() != MsgLoginFailed {
		t.Fatalf("err = %v, want %q", err, MsgLoginFailed)
	}
	if st.Len() != 0 || sh.State().LoggedIn {
		t.Error("failed login changed state")
	}
}

func TestRewardGateBlocksWithoutCall(t *testing.T) {
	fb := &fakeBackend{points: 400}
	sh, _, _, _ := setupShell(t, fb)
	loggedIn(t, sh)
	sh.SelectReward(model.Reward{ID: "7", Name: "Jacket", PointsRequired: 500})

	if err := sh.ModalAction(context.Background()); !errors.Is(err, ErrInsufficientPoints) {
		t.Fatalf("err = %v, want ErrInsufficientPoints", err)
	}
	if fb.called("redeem:7") != 0 {
		t.Error("redeem called despite insufficient points")
	}
	if sh.State().Selected == nil {
		t.Error("modal closed on a blocked claim")
	}
}

func TestRedeemResyncsBeforeClosing(t *testing.T) {
	fb := &fakeBackend{points: 600}
	sh, _, _, _ := setupShell(t, fb)
	loggedIn(t, sh)
	sh.SelectReward(model.Reward{ID: "7", Name: "Jacket", PointsRequired: 500})

	var openDuringSync []bool
	fb.onBalance = func() { openDuringSync = append(openDuringSync, sh.State().Selected != nil) }

	if err := sh.ModalAction(context.Background()); err != nil {
		t.Fatalf("ModalAction: %v", err)
	}
	if fb.called("redeem:7") != 1 {
		t.Errorf("redeem calls = %d, want 1", fb.called("redeem:7"))
	}
	if len(openDuringSync) != 1 || !openDuringSync[0] {
		t.Errorf("modal open during re-sync = %v, want [true]", openDuringSync)
	}
	got := sh.State()
	if got.Selected != nil {
		t.Error("modal still open after redemption")
	}
	if got.User.Points != 100 {
		t.Errorf("points = %d, want 100 from the re-sync", got.User.Points)
	}
	if got.Toast == nil || got.Toast.Message != "Jacket redeemed" || got.Toast.Kind != ToastReward {
		t.Errorf("toast = %+v", got.Toast)
	}
	if got.Loading {
		t.Error("loading flag left set")
	}
}

func TestRedeemFailureKeepsModalOpen(t *testing.T) {
	fb := &fakeBackend{points: 600, redeemErr: &backend.APIError{Status: 422, Message: "Insufficient points"}}
	sh, _, _, _ := setupShell(t, fb)
	loggedIn(t, sh)
	sh.SelectReward(model.Reward{ID: "7", Name: "Jacket", PointsRequired: 500})

	if err := sh.ModalAction(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	got := sh.State()
	if got.Selected == nil {
		t.Error("modal closed after a failed redemption")
	}
	if got.Toast == nil || got.Toast.Message != "Insufficient points" || got.Toast.Kind != ToastError {
		t.Errorf("toast = %+v", got.Toast)
	}
	if got.Loading {
		t.Error("loading flag left set")
	}
}

func TestRedeemTransportFailureUsesFallback(t *testing.T) {
	fb := &fakeBackend{points: 600, redeemErr: errors.New("dial tcp: connection refused")}
	sh, _, _, _ := setupShell(t, fb)
	loggedIn(t, sh)
	sh.SelectReward(model.Reward{ID: "7", PointsRequired: 500})
	sh.ModalAction(context.Background())
	if got := sh.State().Toast; got == nil || got.Message != MsgRedeemFailed {
		t.Errorf("toast = %+v", got)
	}
}

func TestProductActionOpensWhatsApp(t *testing.T) {
	fb := &fakeBackend{}
	sh, _, _, links := setupShell(t, fb)
	sh.SelectProduct(model.Product{ID: "p1", Name: "Lucky Gold 20W-40"})
	fb.calls = nil

	if err := sh.ModalAction(context.Background()); err != nil {
		t.Fatal(err)
	}
	want := "https://wa.me/919876543210?text=Bhai%2C%20I%20want%20to%20order%20this%20product%3A%20Lucky%20Gold%2020W-40"
	if len(links.links) != 1 || links.links[0] != want {
		t.Errorf("links = %v, want %s", links.links, want)
	}
	if len(fb.calls) != 0 {
		t.Errorf("backend calls = %v, want none", fb.calls)
	}
	got := sh.State()
	if got.Selected != nil {
		t.Error("modal still open")
	}
	if got.Toast == nil || got.Toast.Message != "Redirecting to WhatsApp for Lucky Gold 20W-40..." || got.Toast.Kind != ToastCart {
		t.Errorf("toast = %+v", got.Toast)
	}
}

func TestScanVoucherToastsAndResyncs(t *testing.T) {
	fb := &fakeBackend{points: 100}
	sh, _, _, _ := setupShell(t, fb)
	loggedIn(t, sh)
	sh.OpenScanner()

	if _, err := sh.ScanVoucher(context.Background(), "abc"); err != nil {
		t.Fatal(err)
	}
	got := sh.State()
	if got.User.Points != 150 {
		t.Errorf("points = %d, want 150", got.User.Points)
	}
	if got.Toast == nil || got.Toast.Message != "Success! 50 points added." {
		t.Errorf("toast = %+v", got.Toast)
	}
	if got.ScannerOpen {
		t.Error("scanner overlay still open")
	}
}

func TestScanVoucherFailure(t *testing.T) {
	fb := &fakeBackend{scanErr: errors.New("timeout")}
	sh, _, _, _ := setupShell(t, fb)
	loggedIn(t, sh)
	if _, err := sh.ScanVoucher(context.Background(), "abc"); err == nil {
		t.Fatal("expected error")
	}
	if got := sh.State().Toast; got == nil || got.Message != MsgScanFailed {
		t.Errorf("toast = %+v", got)
	}
}

func TestSyncFailureKeepsViewModel(t *testing.T) {
	fb := &fakeBackend{points: 450}
	sh, _, _, _ := setupShell(t, fb)
	loggedIn(t, sh)
	before := sh.State().User

	fb.profileErr = errors.New("Server Error: 500")
	fb.points = 9999
	if err := sh.Sync(context.Background()); err == nil {
		t.Fatal("expected sync error")
	}
	after := sh.State().User
	if after.Points != before.Points || after.Name != before.Name {
		t.Errorf("user changed on failed sync: %+v -> %+v", before, after)
	}
}

func TestLogoutClearsEverything(t *testing.T) {
	fb := &fakeBackend{points: 450}
	sh, st, _, _ := setupShell(t, fb)
	st.Set(storage.KeyInstalled, "true")
	loggedIn(t, sh)

	if err := sh.Logout(); err != nil {
		t.Fatal(err)
	}
	if st.Len() != 0 {
		t.Errorf("store has %d keys after logout", st.Len())
	}
	got := sh.State()
	if got.LoggedIn || got.User.Name != model.GuestName || got.User.Points != 0 {
		t.Errorf("state after logout = %+v", got)
	}
}

func TestBootFreshSession(t *testing.T) {
	fb := &fakeBackend{points: 450, profileErr: errors.New("offline")}
	sh, st, _, _ := setupShell(t, fb)
	st.SetMany(map[string]string{
		storage.KeyToken:        "tok",
		storage.KeySessionStart: strconv.FormatInt(now.Add(-time.Hour).UnixMilli(), 10),
		storage.KeyUserID:       "1",
	})

	if err := sh.Boot(context.Background()); err != nil {
		t.Fatal(err)
	}
	got := sh.State()
	if !got.LoggedIn || got.ShowSplash {
		t.Errorf("state = %+v, want logged in without splash", got)
	}
	if st.Token() != "tok" {
		t.Error("a failed background sync must not log out")
	}
}

func TestBootExpiredSession(t *testing.T) {
	fb := &fakeBackend{}
	sh, st, _, _ := setupShell(t, fb)
	st.SetMany(map[string]string{
		storage.KeyToken:        "tok",
		storage.KeySessionStart: strconv.FormatInt(now.Add(-25*time.Hour).UnixMilli(), 10),
	})

	sh.Boot(context.Background())
	got := sh.State()
	if got.LoggedIn || !got.ShowSplash {
		t.Errorf("state = %+v, want logged out with splash", got)
	}
	if st.Len() != 0 {
		t.Error("expired session not cleared")
	}
	if len(fb.calls) != 0 {
		t.Errorf("calls = %v, want none", fb.calls)
	}
}

func TestBootInstalledSkipsSplash(t *testing.T) {
	sh, st, _, _ := setupShell(t, &fakeBackend{})
	st.Set(storage.KeyInstalled, "true")
	sh.Boot(context.Background())
	if sh.State().ShowSplash {
		t.Error("splash shown for an installed client")
	}
}

func TestBootInstalledExpiredSessionSkipsSplash(t *testing.T) {
	sh, st, _, _ := setupShell(t, &fakeBackend{})
	st.SetMany(map[string]string{
		storage.KeyInstalled:    "true",
		storage.KeyToken:        "tok",
		storage.KeySessionStart: strconv.FormatInt(now.Add(-25*time.Hour).UnixMilli(), 10),
	})

	sh.Boot(context.Background())
	got := sh.State()
	if got.LoggedIn || got.ShowSplash {
		t.Errorf("state = %+v, want logged out without splash", got)
	}
}

func TestToastAutoDismiss(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	sh, _, clock, _ := setupShell(t, &fakeBackend{})

	sh.Toast("hello", ToastSuccess)
	if err := clock.BlockUntilContext(ctx, 1); err != nil {
		t.Fatal(err)
	}
	clock.Advance(4 * time.Second)
	if sh.State().Toast == nil {
		t.Fatal("toast dismissed early")
	}
	clock.Advance(time.Second)
	deadline := time.Now().Add(2 * time.Second)
	for sh.State().Toast != nil {
		if time.Now().After(deadline) {
			t.Fatal("toast not dismissed after 5s")
		}
		time.Sleep(5 * time.Millisecond)
	}

	sh.OfferInstall()
	clock.Advance(time.Minute)
	time.Sleep(20 * time.Millisecond)
	if got := sh.State().Toast; got == nil || got.Kind != ToastInstall {
		t.Errorf("install toast = %+v, want it to stay", got)
	}
}

func TestRegisterValidationAndAutoLogin(t *testing.T) {
	valid := RegistrationForm{
		Name: "Ravi Kumar", Phone: "9876543210", City: "Pune", State: "MH",
		Password: "secret1", ConfirmPassword: "secret1",
	}
	tests := []struct {
		name   string
		mutate func(*RegistrationForm)
		want   string
	}{
		{"missing name", func(f *RegistrationForm) { f.Name = " " }, "Full Name and Phone Number are required."},
		{"short phone", func(f *RegistrationForm) { f.Phone = "98765" }, "Please enter a valid mobile number."},
		{"missing city", func(f *RegistrationForm) { f.City = "" }, "All fields in step 2 are required."},
		{"short password", func(f *RegistrationForm) { f.Password, f.ConfirmPassword = "abc", "abc" }, "Password must be at least 6 characters."},
		{"mismatch", func(f *RegistrationForm) { f.ConfirmPassword = "secret2" }, "Passwords do not match."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fb := &fakeBackend{}
			sh, _, _, _ := setupShell(t, fb)
			f := valid
			tt.mutate(&f)
			err := sh.Register(context.Background(), f)
			if err == nil || err.Error() != tt.want {
				t.Errorf("err = %v, want %q", err, tt.want)
			}
			if len(fb.calls) != 0 {
				t.Errorf("calls = %v, want none", fb.calls)
			}
		})
	}

	fb := &fakeBackend{points: 0}
	sh, _, _, _ := setupShell(t, fb)
	if err := sh.Register(context.Background(), valid); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if fb.called("register") != 1 || fb.called("login:9876543210") != 1 {
		t.Errorf("calls = %v, want register then login with phone", fb.calls)
	}
	if !sh.State().LoggedIn {
		t.Error("not logged in after registration")
	}
}

func TestSecondMutationIsRefused(t *testing.T) {
	fb := &fakeBackend{}
	sh, _, _, _ := setupShell(t, fb)
	end, ok := sh.Store().BeginLoading()
	if !ok {
		t.Fatal("BeginLoading refused on an idle store")
	}
	if err := sh.Login(context.Background(), "a", "b"); !errors.Is(err, ErrBusy) {
		t.Errorf("err = %v, want ErrBusy", err)
	}
	end()
	end()
	if sh.State().Loading {
		t.Error("loading still set")
	}
}

func TestOrderFlow(t *testing.T) {
	fb := &fakeBackend{}
	sh, _, _, _ := setupShell(t, fb)
	loggedIn(t, sh)
	if _, err := sh.Order(context.Background(), "p1"); err != nil {
		t.Fatal(err)
	}
	if fb.called("cart:p1") != 1 || fb.called("order") != 1 {
		t.Errorf("calls = %v", fb.calls)
	}
}

func TestNotificationActionsAreUnwired(t *testing.T) {
	fb := &fakeBackend{}
	sh, _, _, _ := setupShell(t, fb)
	loggedIn(t, sh)
	before := sh.State().User.Notifications

	if err := sh.MarkNotificationRead(context.Background(), "1"); err != nil {
		t.Fatal(err)
	}
	if err := sh.ClearNotifications(context.Background()); err != nil {
		t.Fatal(err)
	}
	after := sh.State().User.Notifications
	if len(after) != len(before) || after[0].Read {
		t.Errorf("notifications changed: %+v", after)
	}
}
