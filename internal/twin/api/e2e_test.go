package api_test

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/jonboulle/clockwork"

	"github.com/luckylubricants/rewards/internal/app"
	"github.com/luckylubricants/rewards/internal/backend"
	"github.com/luckylubricants/rewards/internal/model"
	"github.com/luckylubricants/rewards/internal/session"
	"github.com/luckylubricants/rewards/internal/storage"
	"github.com/luckylubricants/rewards/internal/twin/store"
)

// These tests run the real REST client and app shell against the twin.

type links struct{ opened []string }

func (l *links) Open(u string) error {
	l.opened = append(l.opened, u)
	return nil
}

func setupClient(t *testing.T, lt *luckyTwin) (*app.Shell, *backend.Client, *storage.Store, *links) {
	t.Helper()
	st := storage.Memory()
	client := backend.New(lt.srv.URL+"/api", st, backend.WithHTTPClient(lt.srv.Client()))
	clock := clockwork.NewFakeClockAt(epoch)
	l := &links{}
	sh := app.NewShell(app.Deps{
		Backend:       client,
		Session:       session.NewManager(st, client, clock, nil),
		Storage:       st,
		Links:         l,
		Clock:         clock,
		SupportNumber: "+91 98765 43210",
	})
	return sh, client, st, l
}

func TestEndToEndLoginShowsFetchedUser(t *testing.T) {
	lt := setupLucky(t)
	sh, _, st, _ := setupClient(t, lt)
	ctx := context.Background()

	if u := sh.State().User; u.Name != model.GuestName || u.Points != 0 {
		t.Fatalf("initial user = %+v", u)
	}
	if err := sh.Login(ctx, store.DemoPhone, store.DemoPassword); err != nil {
		t.Fatalf("Login: %v", err)
	}

	s := sh.State()
	if !s.LoggedIn || s.User.Name != "Ravi Kumar" || s.User.Points != 600 {
		t.Errorf("state = %+v", s)
	}
	if len(s.User.Notifications) != 2 || s.User.UnreadCount() != 2 {
		t.Errorf("notifications = %+v", s.User.Notifications)
	}
	if id, ok := st.UserID(); !ok || id != 1 {
		t.Errorf("stored user id = %d, %v", id, ok)
	}
}

func TestEndToEndRedeemAndScan(t *testing.T) {
	lt := setupLucky(t)
	sh, _, _, _ := setupClient(t, lt)
	ctx := context.Background()
	if err := sh.Login(ctx, store.DemoEmail, store.DemoPassword); err != nil {
		t.Fatal(err)
	}

	home, err := sh.Home(ctx)
	if err != nil {
		t.Fatal(err)
	}
	var luckyCap model.Reward
	for _, r := range home.Rewards {
		if r.Name == "Lucky Cap" {
			luckyCap = r
		}
	}
	if luckyCap.PointsRequired != 500 {
		t.Fatalf("rewards = %+v", home.Rewards)
	}

	sh.SelectReward(luckyCap)
	if err := sh.ModalAction(ctx); err != nil {
		t.Fatalf("ModalAction: %v", err)
	}
	s := sh.State()
	if s.User.Points != 100 || s.Selected != nil || s.Toast == nil || s.Toast.Kind != app.ToastReward {
		t.Errorf("after redeem: %+v", s)
	}

	if _, err := sh.ScanVoucher(ctx, store.SeedVoucher(1)); err != nil {
		t.Fatalf("ScanVoucher: %v", err)
	}
	if s := sh.State(); s.User.Points != 200 || s.Toast.Message != "Success! 100 points added." {
		t.Errorf("after scan: points %d toast %+v", s.User.Points, s.Toast)
	}

	_, err = sh.ScanVoucher(ctx, store.SeedVoucher(1))
	var apiErr *backend.APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusConflict {
		t.Fatalf("rescan err = %v", err)
	}
	if msg := sh.State().Toast.Message; msg != "Voucher already redeemed." {
		t.Errorf("rescan toast = %q", msg)
	}

	hist, err := sh.History(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(hist.Redemptions) != 1 || hist.Redemptions[0].RewardName != "Lucky Cap" || hist.Redemptions[0].PointsSpent != 500 {
		t.Errorf("redemptions = %+v", hist.Redemptions)
	}
	if len(hist.Transactions) != 3 || hist.Transactions[1].Type != model.Debit {
		t.Errorf("transactions = %+v", hist.Transactions)
	}
}

func TestEndToEndErrorMessages(t *testing.T) {
	lt := setupLucky(t)
	_, client, st, _ := setupClient(t, lt)
	ctx := context.Background()

	tests := []struct {
		name   string
		call   func() error
		status int
		msg    string
	}{
		{
			name: "message field",
			call: func() error {
				_, err := client.Login(ctx, store.DemoPhone, "wrong")
				return err
			},
			status: http.StatusUnauthorized,
			msg:    "Invalid credentials",
		},
		{
			name: "nested error object",
			call: func() error {
				_, err := client.ScanVoucher(ctx, "not-a-voucher")
				return err
			},
			status: http.StatusNotFound,
			msg:    "Invalid voucher code.",
		},
		{
			name: "plain error string",
			call: func() error {
				_, err := client.Redeem(ctx, "4")
				return err
			},
			status: http.StatusUnprocessableEntity,
			msg:    "Insufficient points",
		},
	}

	res, err := client.Login(ctx, store.ShortPhone, store.DemoPassword)
	if err != nil {
		t.Fatal(err)
	}
	st.SetMany(map[string]string{storage.KeyToken: res.AccessToken, storage.KeyUserID: "2"})

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var apiErr *backend.APIError
			if err := tt.call(); !errors.As(err, &apiErr) || apiErr.Status != tt.status || apiErr.Message != tt.msg {
				t.Errorf("err = %#v", err)
			}
		})
	}
}

func TestEndToEndOrderAndSupport(t *testing.T) {
	lt := setupLucky(t)
	sh, client, _, l := setupClient(t, lt)
	ctx := context.Background()
	if err := sh.Login(ctx, store.DemoPhone, store.DemoPassword); err != nil {
		t.Fatal(err)
	}

	o, err := sh.Order(ctx, "1")
	if err != nil || o.ID == "" {
		t.Fatalf("Order = %+v, %v", o, err)
	}
	if lt.store.Orders.Count() != 1 {
		t.Error("order not recorded by the twin")
	}

	ticket, err := sh.ContactSupport(ctx, "Missing points", "Scanned a pack but got nothing")
	if err != nil || len(ticket.ID) != 27 {
		t.Fatalf("ticket = %+v, %v", ticket, err)
	}

	products, err := client.Products(ctx)
	if err != nil || len(products) != 3 {
		t.Fatalf("products = %+v, %v", products, err)
	}
	sh.SelectProduct(products[0])
	if err := sh.ModalAction(ctx); err != nil {
		t.Fatal(err)
	}
	if len(l.opened) != 1 {
		t.Errorf("links = %v", l.opened)
	}
}

func TestEndToEndEmptyInbox(t *testing.T) {
	lt := setupLucky(t)
	sh, client, _, _ := setupClient(t, lt)
	ctx := context.Background()
	if err := sh.Login(ctx, store.DemoPhone, store.DemoPassword); err != nil {
		t.Fatal(err)
	}
	lt.ac.LoadState(map[string]any{"notifications": map[string]any{}})

	notes, err := client.Notifications(ctx)
	if err != nil || notes == nil || len(notes) != 0 {
		t.Errorf("Notifications = %#v, %v", notes, err)
	}
}

func TestEndToEndExpiredTokenKeepsViewModel(t *testing.T) {
	lt := setupLucky(t)
	sh, _, _, _ := setupClient(t, lt)
	ctx := context.Background()
	if err := sh.Login(ctx, store.DemoPhone, store.DemoPassword); err != nil {
		t.Fatal(err)
	}
	lt.ac.AdvanceTime("25h")

	if err := sh.Sync(ctx); err == nil {
		t.Fatal("expected sync to fail with an expired token")
	}
	if u := sh.State().User; u.Name != "Ravi Kumar" || u.Points != 600 {
		t.Errorf("view-model changed after failed sync: %+v", u)
	}
}
