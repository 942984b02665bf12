package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/luckylubricants/rewards/internal/backend"
	"github.com/luckylubricants/rewards/internal/datasync"
	"github.com/luckylubricants/rewards/internal/model"
	"github.com/luckylubricants/rewards/internal/session"
	"github.com/luckylubricants/rewards/internal/storage"
)

var (
	// ErrBusy is returned when a mutating action is already in flight.
	ErrBusy = errors.New("another action is in progress")
	// ErrInsufficientPoints is returned when a reward costs more than the balance.
	ErrInsufficientPoints = errors.New("not enough points for this reward")
	// ErrNothingSelected is returned by ModalAction with no open item.
	ErrNothingSelected = errors.New("no item selected")
)

// Fallback toast messages when the backend gives none.
const (
	MsgScanFailed       = "Scan failed. Code may be invalid."
	MsgRedeemed         = "Redemption Successful!"
	MsgRedeemFailed     = "Redemption failed. Check points."
	MsgLoginFailed      = "Login failed. Please try again."
	MsgRegisterFailed   = "Registration failed. Please try again."
	MsgInstall          = "Install Lucky Lubricants on your home screen for faster access to rewards."
	DefaultToastTimeout = 5 * time.Second
)

// Backend is everything the shell asks of the REST client.
type Backend interface {
	datasync.Source
	Register(ctx context.Context, reg model.Registration) error
	ScanVoucher(ctx context.Context, code string) (model.ScanResult, error)
	Redeem(ctx context.Context, rewardID string) (model.RedeemResult, error)
	UploadProfileImage(ctx context.Context, filename string, r io.Reader) (string, error)
	ContactSupport(ctx context.Context, subject, message string) (model.Ticket, error)
	Banners(ctx context.Context) ([]model.Banner, error)
	AddToCart(ctx context.Context, productID string) error
	PlaceOrder(ctx context.Context) (model.Order, error)
}

// Deps wires a Shell.
type Deps struct {
	Backend       Backend
	Session       *session.Manager
	Storage       *storage.Store
	Links         LinkOpener
	Notifications NotificationActions
	Clock         clockwork.Clock
	Logger        *zap.Logger
	SupportNumber string
	ToastDuration time.Duration
}

// Shell runs the user-facing flows against the store.
type Shell struct {
	store   *Store
	syncer  *datasync.Syncer
	d       Deps
	toastID atomic.Int64
}

// NewShell creates a shell with a fresh store.
func NewShell(d Deps) *Shell {
	if d.Clock == nil {
		d.Clock = clockwork.NewRealClock()
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Notifications == nil {
		d.Notifications = UnwiredNotifications{Logger: d.Logger}
	}
	if d.Links == nil {
		d.Links = LinkOpenerFunc(func(string) error { return errors.New("no link opener configured") })
	}
	if d.ToastDuration <= 0 {
		d.ToastDuration = DefaultToastTimeout
	}
	return &Shell{
		store:  NewStore(Initial()),
		syncer: datasync.New(d.Backend, d.Logger),
		d:      d,
	}
}

// Store exposes the state store for rendering and subscriptions.
func (sh *Shell) Store() *Store { return sh.store }

// State is shorthand for Store().State().
func (sh *Shell) State() State { return sh.store.State() }

// Boot runs the startup session check. A fresh session is shown as logged in
// straight away; the sync that follows only logs on failure.
func (sh *Shell) Boot(ctx context.Context) error {
	// Restore wipes storage on expiry, install flag included.
	installed := sh.d.Storage.Installed()
	status, err := sh.d.Session.Restore()
	if err != nil {
		sh.d.Logger.Error("restoring session", zap.Error(err))
	}
	fresh := status == session.Fresh
	sh.store.Dispatch(Booted{
		LoggedIn:   fresh,
		ShowSplash: !fresh && !installed,
	})
	sh.d.Logger.Info("boot", zap.Stringer("session", status))
	if fresh {
		if err := sh.Sync(ctx); err != nil {
			sh.d.Logger.Warn("background session sync failed, keeping local session", zap.Error(err))
		}
	}
	return err
}

// Sync rebuilds the user view-model. On failure the current one is kept.
func (sh *Shell) Sync(ctx context.Context) error {
	u, err := sh.syncer.Sync(ctx)
	if err != nil {
		return err
	}
	sh.store.Dispatch(UserSynced{User: u})
	return nil
}

// Login validates, authenticates, syncs and shows the home tab.
func (sh *Shell) Login(ctx context.Context, identifier, password string) error {
	identifier = strings.TrimSpace(identifier)
	if err := validateLogin(identifier, password); err != nil {
		return err
	}
	end, ok := sh.store.BeginLoading()
	if !ok {
		return ErrBusy
	}
	defer end()
	return sh.login(ctx, identifier, password)
}

func (sh *Shell) login(ctx context.Context, identifier, password string) error {
	if _, err := sh.d.Session.Login(ctx, identifier, password); err != nil {
		sh.d.Logger.Info("login failed", zap.Error(err))
		return userError(err, MsgLoginFailed)
	}
	if err := sh.Sync(ctx); err != nil {
		sh.d.Logger.Warn("sync after login failed", zap.Error(err))
	}
	sh.store.Dispatch(LoggedIn{})
	return nil
}

// Register validates the form, creates the account and signs in with the
// new phone number and password.
func (sh *Shell) Register(ctx context.Context, f RegistrationForm) error {
	if err := f.Validate(); err != nil {
		return err
	}
	end, ok := sh.store.BeginLoading()
	if !ok {
		return ErrBusy
	}
	defer end()

	reg := model.Registration{
		Name:     strings.TrimSpace(f.Name),
		Phone:    strings.TrimSpace(f.Phone),
		Email:    strings.TrimSpace(f.Email),
		City:     strings.TrimSpace(f.City),
		State:    strings.TrimSpace(f.State),
		Password: f.Password,
	}
	if err := sh.d.Backend.Register(ctx, reg); err != nil {
		sh.d.Logger.Info("registration failed", zap.Error(err))
		return userError(err, MsgRegisterFailed)
	}
	sh.d.Logger.Info("registered", zap.String("city", reg.City))
	return sh.login(ctx, reg.Phone, reg.Password)
}

// Logout clears persisted credentials and resets the view state.
func (sh *Shell) Logout() error {
	err := sh.d.Session.Logout()
	if err != nil {
		sh.d.Logger.Error("logout", zap.Error(err))
	}
	sh.store.Dispatch(LoggedOut{})
	return err
}

// OpenScanner and CloseScanner toggle the scan overlay.
func (sh *Shell) OpenScanner()  { sh.store.Dispatch(ScannerToggled{Open: true}) }
func (sh *Shell) CloseScanner() { sh.store.Dispatch(ScannerToggled{Open: false}) }

// ScanVoucher submits a captured code, toasts the outcome and re-syncs.
func (sh *Shell) ScanVoucher(ctx context.Context, code string) (model.ScanResult, error) {
	end, ok := sh.store.BeginLoading()
	if !ok {
		return model.ScanResult{}, ErrBusy
	}
	defer end()
	defer sh.CloseScanner()

	res, err := sh.d.Backend.ScanVoucher(ctx, code)
	if err != nil {
		sh.Toast(messageOf(err, MsgScanFailed), ToastError)
		return res, err
	}
	sh.Toast(fmt.Sprintf("Success! %d points added.", res.PointsEarned), ToastSuccess)
	if err := sh.Sync(ctx); err != nil {
		sh.d.Logger.Warn("sync after scan failed", zap.Error(err))
	}
	return res, nil
}

// SelectReward opens a reward in the detail modal.
func (sh *Shell) SelectReward(r model.Reward) {
	sh.store.Dispatch(ItemSelected{Item: Item{Kind: ItemReward, Reward: r}})
}

// SelectProduct opens a product in the detail modal.
func (sh *Shell) SelectProduct(p model.Product) {
	sh.store.Dispatch(ItemSelected{Item: Item{Kind: ItemProduct, Product: p}})
}

// CloseItem closes the detail modal.
func (sh *Shell) CloseItem() { sh.store.Dispatch(ItemClosed{}) }

// CanClaim reports whether a balance covers a reward.
func CanClaim(points, cost int) bool {
	return points >= cost
}

// ModalAction runs the main button of the detail modal. For a reward it
// redeems and re-syncs before closing; for a product it opens a WhatsApp
// order chat and closes.
func (sh *Shell) ModalAction(ctx context.Context) error {
	st := sh.store.State()
	if st.Selected == nil {
		return ErrNothingSelected
	}
	item := *st.Selected

	if item.Kind == ItemProduct {
		link := WhatsAppLink(sh.d.SupportNumber, OrderMessage(item.Product.Name))
		if err := sh.d.Links.Open(link); err != nil {
			sh.d.Logger.Warn("opening order link", zap.Error(err), zap.String("link", link))
		}
		sh.Toast(fmt.Sprintf("Redirecting to WhatsApp for %s...", item.Product.Name), ToastCart)
		sh.CloseItem()
		return nil
	}

	if !CanClaim(st.User.Points, item.Reward.PointsRequired) {
		return ErrInsufficientPoints
	}
	end, ok := sh.store.BeginLoading()
	if !ok {
		return ErrBusy
	}
	defer end()

	res, err := sh.d.Backend.Redeem(ctx, item.Reward.ID)
	if err != nil {
		sh.Toast(messageOf(err, MsgRedeemFailed), ToastError)
		return err
	}
	msg := res.Message
	if msg == "" {
		msg = MsgRedeemed
	}
	sh.Toast(msg, ToastReward)
	if err := sh.Sync(ctx); err != nil {
		sh.d.Logger.Warn("sync after redemption failed", zap.Error(err))
	}
	sh.CloseItem()
	return nil
}

// Toast shows a message. Every kind except install hides itself after the
// configured duration.
func (sh *Shell) Toast(msg string, kind ToastKind) {
	id := sh.toastID.Add(1)
	sh.store.Dispatch(ToastShown{Toast: Toast{ID: id, Message: msg, Kind: kind}})
	if kind == ToastInstall {
		return
	}
	sh.d.Clock.AfterFunc(sh.d.ToastDuration, func() {
		sh.store.Dispatch(ToastDismissed{ID: id})
	})
}

// DismissToast hides the current toast.
func (sh *Shell) DismissToast() {
	if t := sh.store.State().Toast; t != nil {
		sh.store.Dispatch(ToastDismissed{ID: t.ID})
	}
}

// SelectTab switches the active tab.
func (sh *Shell) SelectTab(t Tab) error {
	if _, ok := ParseTab(string(t)); !ok {
		return fmt.Errorf("unknown tab %q", t)
	}
	sh.store.Dispatch(TabSelected{Tab: t})
	return nil
}

// OpenNotifications and CloseNotifications toggle the inbox panel.
func (sh *Shell) OpenNotifications()  { sh.store.Dispatch(NotificationsToggled{Open: true}) }
func (sh *Shell) CloseNotifications() { sh.store.Dispatch(NotificationsToggled{Open: false}) }

// MarkNotificationRead forwards to the configured NotificationActions.
func (sh *Shell) MarkNotificationRead(ctx context.Context, id string) error {
	return sh.d.Notifications.MarkRead(ctx, id)
}

// ClearNotifications forwards to the configured NotificationActions.
func (sh *Shell) ClearNotifications(ctx context.Context) error {
	return sh.d.Notifications.ClearAll(ctx)
}

// PreviewImage opens the full-screen image viewer.
func (sh *Shell) PreviewImage(url string) { sh.store.Dispatch(PreviewOpened{URL: url}) }

// ClosePreview closes the image viewer.
func (sh *Shell) ClosePreview() { sh.store.Dispatch(PreviewClosed{}) }

// DismissSplash continues past the splash screen.
func (sh *Shell) DismissSplash() { sh.store.Dispatch(SplashDismissed{}) }

// OfferInstall records that installation is possible and shows a sticky toast.
func (sh *Shell) OfferInstall() {
	sh.store.Dispatch(InstallOffered{Available: true})
	sh.Toast(MsgInstall, ToastInstall)
}

// MarkInstalled persists the standalone flag so the splash is skipped next time.
func (sh *Shell) MarkInstalled() error {
	if err := sh.d.Storage.Set(storage.KeyInstalled, "true"); err != nil {
		return err
	}
	sh.store.Dispatch(InstallOffered{Available: false})
	sh.store.Dispatch(SplashDismissed{})
	sh.DismissToast()
	return nil
}

// Home loads the lists for the home tab.
func (sh *Shell) Home(ctx context.Context) (datasync.Home, error) {
	return sh.syncer.Home(ctx)
}

// History loads the profile tab's activity.
func (sh *Shell) History(ctx context.Context) (datasync.History, error) {
	return sh.syncer.History(ctx)
}

// Banners loads the home screen banners.
func (sh *Shell) Banners(ctx context.Context) ([]model.Banner, error) {
	return sh.d.Backend.Banners(ctx)
}

// UploadAvatar replaces the profile image and re-syncs.
func (sh *Shell) UploadAvatar(ctx context.Context, filename string, r io.Reader) (string, error) {
	end, ok := sh.store.BeginLoading()
	if !ok {
		return "", ErrBusy
	}
	defer end()
	url, err := sh.d.Backend.UploadProfileImage(ctx, filename, r)
	if err != nil {
		sh.Toast(messageOf(err, "Image upload failed."), ToastError)
		return "", err
	}
	sh.Toast("Profile photo updated.", ToastSuccess)
	if err := sh.Sync(ctx); err != nil {
		sh.d.Logger.Warn("sync after upload failed", zap.Error(err))
	}
	return url, nil
}

// ContactSupport sends a support request.
func (sh *Shell) ContactSupport(ctx context.Context, subject, message string) (model.Ticket, error) {
	subject, message = strings.TrimSpace(subject), strings.TrimSpace(message)
	if subject == "" || message == "" {
		return model.Ticket{}, invalid("Subject and message are required.")
	}
	end, ok := sh.store.BeginLoading()
	if !ok {
		return model.Ticket{}, ErrBusy
	}
	defer end()
	t, err := sh.d.Backend.ContactSupport(ctx, subject, message)
	if err != nil {
		sh.Toast(messageOf(err, "Could not send your message."), ToastError)
		return t, err
	}
	msg := t.Message
	if msg == "" {
		msg = "Message sent. We will get back to you soon."
	}
	sh.Toast(msg, ToastSuccess)
	return t, nil
}

// Order adds a product to the cart and places the order.
func (sh *Shell) Order(ctx context.Context, productID string) (model.Order, error) {
	end, ok := sh.store.BeginLoading()
	if !ok {
		return model.Order{}, ErrBusy
	}
	defer end()
	if err := sh.d.Backend.AddToCart(ctx, productID); err != nil {
		sh.Toast(messageOf(err, "Could not add to cart."), ToastError)
		return model.Order{}, err
	}
	o, err := sh.d.Backend.PlaceOrder(ctx)
	if err != nil {
		sh.Toast(messageOf(err, "Order failed."), ToastError)
		return o, err
	}
	msg := o.Message
	if msg == "" {
		msg = "Order placed."
	}
	sh.Toast(msg, ToastCart)
	return o, nil
}

// messageOf picks a user-facing message for err: the server's text for API
// errors, the error itself for session problems, else fallback.
func messageOf(err error, fallback string) string {
	var apiErr *backend.APIError
	switch {
	case errors.As(err, &apiErr) && apiErr.Message != "":
		return apiErr.Message
	case errors.Is(err, backend.ErrNoSession):
		return err.Error()
	default:
		return fallback
	}
}

// userError keeps errors that already carry a user-facing message and
// replaces anything else, such as a transport failure, with fallback.
func userError(err error, fallback string) error {
	var verr *ValidationError
	if errors.As(err, &verr) || messageOf(err, "") != "" {
		return err
	}
	return errors.New(fallback)
}
