package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/peterh/liner"
	"go.uber.org/zap"

	"github.com/luckylubricants/rewards/internal/app"
	"github.com/luckylubricants/rewards/internal/client"
	"github.com/luckylubricants/rewards/internal/model"
	"github.com/luckylubricants/rewards/internal/procmgr"
	"github.com/luckylubricants/rewards/internal/scan"
)

// ---------------------------------------------------------------------------
// Account
// ---------------------------------------------------------------------------

func (e *env) cmdLogin(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return usageError("usage: lucky login <phone|email> [password]")
	}
	password := ""
	if len(args) > 1 {
		password = args[1]
	} else {
		p, err := e.readPassword("Password: ")
		if err != nil {
			return err
		}
		password = p
	}

	if err := e.sh.Login(ctx, args[0], password); err != nil {
		return err
	}
	u := e.sh.State().User
	fmt.Fprintf(e.out, "Welcome, %s. You have %d points.\n", u.Name, u.Points)
	if n := u.UnreadCount(); n > 0 {
		fmt.Fprintf(e.out, "You have %d unread notification(s).\n", n)
	}
	return nil
}

func (e *env) cmdRegister(ctx context.Context, args []string) error {
	var f app.RegistrationForm
	fs := flag.NewFlagSet("register", flag.ContinueOnError)
	fs.SetOutput(e.out)
	fs.StringVar(&f.Name, "name", "", "Full name")
	fs.StringVar(&f.Phone, "phone", "", "Mobile number")
	fs.StringVar(&f.Email, "email", "", "Email address (optional)")
	fs.StringVar(&f.City, "city", "", "City")
	fs.StringVar(&f.State, "state", "", "State")
	fs.StringVar(&f.Password, "password", "", "Password (prompted if omitted)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if err := f.ValidateStep1(); err != nil {
		return err
	}
	if f.Password == "" {
		p, err := e.readPassword("Password: ")
		if err != nil {
			return err
		}
		c, err := e.readPassword("Confirm password: ")
		if err != nil {
			return err
		}
		f.Password, f.ConfirmPassword = p, c
	} else {
		f.ConfirmPassword = f.Password
	}

	if err := e.sh.Register(ctx, f); err != nil {
		return err
	}
	fmt.Fprintf(e.out, "Account created. Welcome, %s.\n", e.sh.State().User.Name)
	return nil
}

func (e *env) cmdLogout() error {
	if err := e.sh.Logout(); err != nil {
		return err
	}
	fmt.Fprintln(e.out, "Logged out.")
	return nil
}

func (e *env) cmdStatus(ctx context.Context) error {
	fmt.Fprintf(e.out, "API:      %s\n", e.cfg.APIBaseURL)
	fmt.Fprintf(e.out, "Session:  %s\n", e.sess.Check())
	s := e.sh.State()
	if !s.LoggedIn {
		return nil
	}
	fmt.Fprintf(e.out, "Expires:  in %s\n", e.sess.Remaining().Round(time.Minute))
	fmt.Fprintf(e.out, "Member:   %s (%s)\n", s.User.Name, s.User.Phone)
	fmt.Fprintf(e.out, "Points:   %d\n", s.User.Points)
	fmt.Fprintf(e.out, "Unread:   %d\n", s.User.UnreadCount())
	return nil
}

// readPassword prompts without echo, reusing the shell's line editor when
// one is active.
func (e *env) readPassword(prompt string) (string, error) {
	line := e.line
	if line == nil {
		line = liner.NewLiner()
		defer line.Close()
		line.SetCtrlCAborts(true)
	}
	p, err := line.PasswordPrompt(prompt)
	if errors.Is(err, liner.ErrPromptAborted) {
		return "", errors.New("aborted")
	}
	return p, err
}

// ---------------------------------------------------------------------------
// Wallet
// ---------------------------------------------------------------------------

func (e *env) cmdScan(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("scan", flag.ContinueOnError)
	fs.SetOutput(e.out)
	frames := fs.String("frames", "", "Directory of camera frames to replay")
	imagePath := fs.String("image", "", "Decode a saved photo of the voucher")
	manual := fs.Bool("manual", false, "Enter the voucher manually")
	timeout := fs.Duration("timeout", 30*time.Second, "Give up after this long without a code")
	if err := fs.Parse(args); err != nil {
		return err
	}

	opts := scan.Options{
		Haptics:         scan.Bell{W: os.Stderr},
		Logger:          e.log.Named("scan"),
		FrameRate:       e.cfg.Scanner.FrameRate,
		ConfirmDelay:    e.cfg.Scanner.ConfirmDelay,
		ErrorClearDelay: e.cfg.Scanner.ErrorClearDelay,
	}
	if *frames != "" {
		opts.Camera = scan.DirCamera{Dir: *frames}
	}
	sc := scan.New(opts)
	defer sc.Close()
	e.sh.OpenScanner()

	if *manual {
		if err := sc.Manual(); err != nil {
			return err
		}
	} else {
		if err := sc.Start(ctx); err != nil {
			return err
		}
		if sc.State() == scan.Fallback && *imagePath == "" {
			e.sh.CloseScanner()
			return errors.New("no camera frames available; pass -image or -manual")
		}
		if *imagePath != "" {
			f, err := os.Open(*imagePath)
			if err != nil {
				return err
			}
			err = sc.DecodeImage(f)
			f.Close()
			if err != nil {
				e.sh.CloseScanner()
				return errors.New(scan.NoCodeMessage)
			}
		} else {
			fmt.Fprintln(e.out, "Scanning...")
		}
	}

	var code string
	select {
	case code = <-sc.Result():
	case <-time.After(*timeout):
		e.sh.CloseScanner()
		return fmt.Errorf("no QR code found after %s (%d frames)", *timeout, sc.Attempts())
	case <-ctx.Done():
		e.sh.CloseScanner()
		return ctx.Err()
	}

	e.log.Info("voucher captured", zap.Bool("manual", code == scan.ManualCode))
	_, err := e.sh.ScanVoucher(ctx, code)
	if err != nil {
		return errShown
	}
	fmt.Fprintf(e.out, "Balance: %d points\n", e.sh.State().User.Points)
	return nil
}

// errShown reports a failure whose message was already shown as a toast.
var errShown = errors.New("request failed")

func (e *env) cmdHistory(ctx context.Context, args []string) error {
	h, err := e.sh.History(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintln(e.out, "Transactions:")
	if len(h.Transactions) == 0 {
		fmt.Fprintln(e.out, "  (none)")
	}
	for _, t := range h.Transactions {
		sign := "+"
		if t.Type == model.Debit {
			sign = "-"
		}
		fmt.Fprintf(e.out, "  %-22s %s%-6d %s\n", t.Date, sign, t.Amount, t.Description)
	}

	fmt.Fprintln(e.out, "\nRedemptions:")
	if len(h.Redemptions) == 0 {
		fmt.Fprintln(e.out, "  (none)")
	}
	for _, r := range h.Redemptions {
		fmt.Fprintf(e.out, "  %-22s %-20s %6d pts  %s\n", r.Date, r.RewardName, r.PointsSpent, r.Status)
	}
	return nil
}

func (e *env) cmdRewards(ctx context.Context, args []string) error {
	home, err := e.sh.Home(ctx)
	if err != nil {
		return err
	}
	points := e.sh.State().User.Points
	fmt.Fprintf(e.out, "You have %d points.\n\n", points)
	for _, r := range home.Rewards {
		mark := " "
		if app.CanClaim(points, r.PointsRequired) {
			mark = "*"
		}
		fmt.Fprintf(e.out, "%s %-4s %-24s %6d pts\n", mark, r.ID, r.Name, r.PointsRequired)
	}
	fmt.Fprintln(e.out, "\n* claimable now")
	return nil
}

func (e *env) cmdRedeem(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return usageError("usage: lucky redeem <reward-id>")
	}
	rewards, err := e.api.Rewards(ctx)
	if err != nil {
		return err
	}
	var reward *model.Reward
	for i := range rewards {
		if rewards[i].ID == args[0] {
			reward = &rewards[i]
		}
	}
	if reward == nil {
		return fmt.Errorf("no reward with id %q", args[0])
	}

	e.sh.SelectReward(*reward)
	defer e.sh.CloseItem()
	err = e.sh.ModalAction(ctx)
	switch {
	case errors.Is(err, app.ErrInsufficientPoints):
		short := reward.PointsRequired - e.sh.State().User.Points
		return fmt.Errorf("%s needs %d more points", reward.Name, short)
	case err != nil:
		return errShown
	}
	fmt.Fprintf(e.out, "Balance: %d points\n", e.sh.State().User.Points)
	return nil
}

// ---------------------------------------------------------------------------
// Shop
// ---------------------------------------------------------------------------

func (e *env) cmdProducts(ctx context.Context, args []string) error {
	products, err := e.api.Products(ctx)
	if err != nil {
		return err
	}
	for _, p := range products {
		fmt.Fprintf(e.out, "%-4s %-24s %s\n", p.ID, p.Name, p.Price)
		if p.Description != "" {
			fmt.Fprintf(e.out, "     %s\n", p.Description)
		}
		for _, s := range p.Specs {
			fmt.Fprintf(e.out, "     - %s\n", s)
		}
	}
	return nil
}

func (e *env) cmdOrder(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return usageError("usage: lucky order <product-id>")
	}
	o, err := e.sh.Order(ctx, args[0])
	if err != nil {
		return errShown
	}
	fmt.Fprintf(e.out, "Order id: %s\n", o.ID)
	return nil
}

func (e *env) cmdEnquire(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return usageError("usage: lucky enquire <product-id>")
	}
	products, err := e.api.Products(ctx)
	if err != nil {
		return err
	}
	for _, p := range products {
		if p.ID == args[0] {
			e.sh.SelectProduct(p)
			return e.sh.ModalAction(ctx)
		}
	}
	return fmt.Errorf("no product with id %q", args[0])
}

// ---------------------------------------------------------------------------
// Other
// ---------------------------------------------------------------------------

func (e *env) cmdNotifications(ctx context.Context, args []string) error {
	switch {
	case len(args) == 2 && args[0] == "read":
		return e.sh.MarkNotificationRead(ctx, args[1])
	case len(args) == 1 && args[0] == "clear":
		return e.sh.ClearNotifications(ctx)
	case len(args) != 0:
		return usageError("usage: lucky notifications [read <id>|clear]")
	}

	e.sh.OpenNotifications()
	defer e.sh.CloseNotifications()
	notes := e.sh.State().User.Notifications
	if len(notes) == 0 {
		fmt.Fprintln(e.out, "No notifications.")
		return nil
	}
	for _, n := range notes {
		mark := " "
		if !n.Read {
			mark = "•"
		}
		fmt.Fprintf(e.out, "%s [%s] %s  %s\n    %s\n", mark, n.ID, n.Title, n.Time, n.Message)
	}
	return nil
}

func (e *env) cmdBanners(ctx context.Context, args []string) error {
	banners, err := e.sh.Banners(ctx)
	if err != nil {
		return err
	}
	for _, b := range banners {
		fmt.Fprintf(e.out, "%s\n  %s\n", b.Title, b.Image)
		if b.Link != "" {
			fmt.Fprintf(e.out, "  -> %s\n", b.Link)
		}
	}
	return nil
}

func (e *env) cmdSupport(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return usageError("usage: lucky support <subject> <message...>")
	}
	t, err := e.sh.ContactSupport(ctx, args[0], strings.Join(args[1:], " "))
	var verr *app.ValidationError
	switch {
	case errors.As(err, &verr):
		return err
	case err != nil:
		return errShown
	}
	fmt.Fprintf(e.out, "Ticket: %s\n", t.ID)
	return nil
}

func (e *env) cmdAvatar(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return usageError("usage: lucky avatar <image>")
	}
	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()
	url, err := e.sh.UploadAvatar(ctx, filepath.Base(args[0]), f)
	if err != nil {
		return errShown
	}
	fmt.Fprintf(e.out, "Avatar: %s\n", url)
	return nil
}

// ---------------------------------------------------------------------------
// Twin control
// ---------------------------------------------------------------------------

func (e *env) cmdTwin(args []string) error {
	if len(args) == 0 {
		return usageError("usage: lucky twin <up|down|status|reset|requests|seed|advance|voucher>")
	}
	c := client.New(e.twinURL())

	switch args[0] {
	case "up":
		return e.twinUp(args[1:])
	case "down":
		stopped, err := procmgr.New(e.cfg.StateDir).Stop()
		if err != nil {
			return err
		}
		if stopped {
			fmt.Fprintln(e.out, "twin stopped")
		} else {
			fmt.Fprintln(e.out, "no twin running")
		}
	case "status":
		ok, msg := c.Health()
		if !ok {
			return fmt.Errorf("twin at %s is not healthy: %s", e.twinURL(), msg)
		}
		fmt.Fprintf(e.out, "twin at %s: %s\n", e.twinURL(), msg)
	case "reset":
		if _, err := c.Reset(); err != nil {
			return err
		}
		fmt.Fprintln(e.out, "twin reset to demo data")
	case "requests":
		body, err := c.Requests()
		if err != nil {
			return err
		}
		fmt.Fprintln(e.out, body)
	case "seed":
		if len(args) != 2 {
			return usageError("usage: lucky twin seed <file>")
		}
		if _, err := c.Seed(args[1]); err != nil {
			return err
		}
		fmt.Fprintf(e.out, "seeded twin from %s\n", args[1])
	case "advance":
		if len(args) != 2 {
			return usageError("usage: lucky twin advance <duration>")
		}
		d, err := time.ParseDuration(args[1])
		if err != nil {
			return err
		}
		if _, err := c.AdvanceTime(d); err != nil {
			return err
		}
		fmt.Fprintf(e.out, "twin clock advanced by %s\n", d)
	case "voucher":
		if len(args) != 2 {
			return usageError("usage: lucky twin voucher <points>")
		}
		points, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("points must be a number: %w", err)
		}
		v, err := c.MintVoucher(points)
		if err != nil {
			return err
		}
		fmt.Fprintf(e.out, "%s (%d points)\n", v.Code, v.Points)
	default:
		return usageError(fmt.Sprintf("unknown twin command %q", args[0]))
	}
	return nil
}

func (e *env) twinUp(args []string) error {
	var opts procmgr.Options
	fs := flag.NewFlagSet("twin up", flag.ContinueOnError)
	fs.SetOutput(e.out)
	fs.StringVar(&opts.Binary, "binary", "twin-lucky", "Path to the twin-lucky binary")
	fs.IntVar(&opts.Port, "port", 8080, "Port to listen on")
	fs.StringVar(&opts.SeedFile, "seed", "", "JSON fixture to load at startup")
	fs.BoolVar(&opts.Verbose, "verbose", false, "Log requests and responses")
	if err := fs.Parse(args); err != nil {
		return err
	}
	opts.LogDir = e.cfg.LogPath()

	entry, err := procmgr.New(e.cfg.StateDir).Start(opts)
	if errors.Is(err, procmgr.ErrAlreadyRunning) {
		fmt.Fprintf(e.out, "twin already running (pid %d, port %d)\n", entry.PID, entry.Port)
		return nil
	}
	if err != nil {
		return err
	}
	e.log.Info("twin started", zap.Int("pid", entry.PID), zap.Int("port", entry.Port))
	fmt.Fprintf(e.out, "twin-lucky started (pid %d) on http://localhost:%d/api\n", entry.PID, entry.Port)
	fmt.Fprintf(e.out, "logs: %s\n", entry.Log)
	fmt.Fprintf(e.out, "set %s=http://localhost:%d/api to use it\n", "LUCKY_API_URL", entry.Port)
	return nil
}
