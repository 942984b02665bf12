// lucky is the Lucky Lubricants rewards client for the terminal.
//
// Usage:
//
//	lucky login <phone|email> [password]   Sign in (prompts for the password if omitted)
//	lucky register [flags]                 Create an account and sign in
//	lucky logout                           Forget the stored session
//	lucky status                           Show session and wallet status
//	lucky scan [-frames dir] [-image file] [-manual]
//	                                       Scan a voucher QR code and credit the points
//	lucky rewards                          List rewards and what you can claim
//	lucky redeem <reward-id>               Claim a reward
//	lucky products                         List the product catalog
//	lucky order <product-id>               Add a product to the cart and place the order
//	lucky enquire <product-id>             Open a WhatsApp order chat for a product
//	lucky history                          Show wallet transactions and redemptions
//	lucky notifications [read <id>|clear]  Show the inbox
//	lucky banners                          Show the home screen banners
//	lucky support <subject> <message...>   Contact support
//	lucky avatar <image>                   Upload a profile photo
//	lucky shell                            Interactive session
//	lucky twin up [-binary path] [-port n]
//	                                       Start a local twin-lucky backend
//	lucky twin down                        Stop it
//	lucky twin status|reset|requests       Inspect or reset the twin
//	lucky twin seed <file>                 Load a fixture into the twin
//	lucky twin advance <duration>          Move the twin's clock forward
//	lucky twin voucher <points>            Mint a voucher code on the twin
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"

	"github.com/peterh/liner"
	"go.uber.org/zap"

	"github.com/luckylubricants/rewards/internal/app"
	"github.com/luckylubricants/rewards/internal/backend"
	"github.com/luckylubricants/rewards/internal/config"
	"github.com/luckylubricants/rewards/internal/logging"
	"github.com/luckylubricants/rewards/internal/session"
	"github.com/luckylubricants/rewards/internal/storage"
)

// version is set at build time via -ldflags "-X main.version=..."
var version = "dev"

// EnvTwinURL overrides where the twin admin endpoints are reached.
const EnvTwinURL = "LUCKY_TWIN_URL"

func main() {
	if len(os.Args) < 2 || isHelp(os.Args[1]) {
		printUsage()
		if len(os.Args) < 2 {
			os.Exit(1)
		}
		return
	}
	cmd, args := os.Args[1], os.Args[2:]
	if cmd == "version" || cmd == "--version" || cmd == "-v" {
		fmt.Printf("lucky version %s\n", version)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	e, err := newEnv(os.Stdout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "lucky: %v\n", err)
		os.Exit(1)
	}

	if cmd == "shell" {
		err = e.cmdShell(ctx)
	} else {
		err = e.run(ctx, cmd, args)
	}
	e.close()

	var usage usageError
	switch {
	case errors.As(err, &usage):
		fmt.Fprintf(os.Stderr, "lucky: %v\n\n", err)
		printUsage()
		os.Exit(2)
	case err != nil:
		fmt.Fprintf(os.Stderr, "lucky: %v\n", err)
		os.Exit(1)
	}
}

func isHelp(s string) bool {
	return s == "help" || s == "--help" || s == "-h"
}

// usageError marks an unknown command or malformed arguments.
type usageError string

func (u usageError) Error() string { return string(u) }

// env is everything a command needs: config, logger, persisted state, the
// REST client and the app shell on top of it.
type env struct {
	cfg    *config.Config
	log    *zap.Logger
	st     *storage.Store
	api    *backend.Client
	sess   *session.Manager
	sh     *app.Shell
	out    io.Writer
	line   *liner.State
	booted bool
}

func newEnv(out io.Writer) (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(logging.Options{Level: cfg.LogLevel, Dir: cfg.LogPath()})
	if err != nil {
		return nil, fmt.Errorf("setting up logging: %w", err)
	}
	st, err := storage.OpenDir(cfg.StateDir)
	if err != nil {
		return nil, err
	}

	client := backend.New(cfg.APIBaseURL, st, backend.WithTimeout(cfg.RequestTimeout))
	sess := session.NewManager(st, client, nil, logger.Named("session"))
	e := &env{cfg: cfg, log: logger, st: st, api: client, sess: sess, out: out}
	e.sh = app.NewShell(app.Deps{
		Backend: client,
		Session: sess,
		Storage: st,
		Links: app.LinkOpenerFunc(func(link string) error {
			fmt.Fprintf(out, "Open this link to continue: %s\n", link)
			return nil
		}),
		Logger:        logger.Named("app"),
		SupportNumber: cfg.SupportNumber,
		ToastDuration: cfg.ToastDuration,
	})

	var lastToast atomic.Int64
	e.sh.Store().Subscribe(func(s app.State) {
		if s.Toast == nil || lastToast.Swap(s.Toast.ID) == s.Toast.ID {
			return
		}
		fmt.Fprintf(out, "%s %s\n", toastIcon(s.Toast.Kind), s.Toast.Message)
	})

	logger.Debug("client ready", zap.String("api", cfg.APIBaseURL), zap.String("state", st.Path()))
	return e, nil
}

func (e *env) close() {
	_ = e.log.Sync()
}

func toastIcon(k app.ToastKind) string {
	switch k {
	case app.ToastError:
		return "[!]"
	case app.ToastReward:
		return "[*]"
	case app.ToastCart:
		return "[>]"
	default:
		return "[+]"
	}
}

// boot runs the startup session check once per process.
func (e *env) boot(ctx context.Context) {
	if e.booted {
		return
	}
	e.booted = true
	if err := e.sh.Boot(ctx); err != nil {
		fmt.Fprintf(e.out, "warning: %v\n", err)
	}
}

func (e *env) requireLogin() error {
	if !e.sh.State().LoggedIn {
		return errors.New("not logged in; run `lucky login <phone>` first")
	}
	return nil
}

// run dispatches one command. The shell calls it for every line.
func (e *env) run(ctx context.Context, cmd string, args []string) error {
	if cmd != "twin" {
		e.boot(ctx)
	}

	switch cmd {
	case "login":
		return e.cmdLogin(ctx, args)
	case "register":
		return e.cmdRegister(ctx, args)
	case "logout":
		return e.cmdLogout()
	case "status":
		return e.cmdStatus(ctx)
	case "twin":
		return e.cmdTwin(args)
	}

	if err := e.requireLogin(); err != nil {
		if _, known := commands[cmd]; known {
			return err
		}
		return usageError(fmt.Sprintf("unknown command %q", cmd))
	}
	fn, ok := commands[cmd]
	if !ok {
		return usageError(fmt.Sprintf("unknown command %q", cmd))
	}
	return fn(e, ctx, args)
}

// commands are the subcommands that need a session.
var commands = map[string]func(*env, context.Context, []string) error{
	"scan":          (*env).cmdScan,
	"rewards":       (*env).cmdRewards,
	"redeem":        (*env).cmdRedeem,
	"products":      (*env).cmdProducts,
	"order":         (*env).cmdOrder,
	"enquire":       (*env).cmdEnquire,
	"history":       (*env).cmdHistory,
	"notifications": (*env).cmdNotifications,
	"banners":       (*env).cmdBanners,
	"support":       (*env).cmdSupport,
	"avatar":        (*env).cmdAvatar,
}

// twinURL is the twin's root: $LUCKY_TWIN_URL, else the API URL without /api.
func (e *env) twinURL() string {
	if v := os.Getenv(EnvTwinURL); v != "" {
		return v
	}
	return strings.TrimSuffix(e.cfg.APIBaseURL, "/api")
}

func printUsage() {
	fmt.Fprint(os.Stderr, `Usage: lucky <command> [args]

Account:
  login <phone|email> [password]   Sign in (prompts for the password if omitted)
  register [flags]                 Create an account and sign in
  logout                           Forget the stored session
  status                           Show session and wallet status

Wallet:
  scan [-frames dir] [-image file] [-manual]
                                   Scan a voucher QR code and credit the points
  history                          Wallet transactions and redemptions
  rewards                          List rewards and what you can claim
  redeem <reward-id>               Claim a reward

Shop:
  products                         List the product catalog
  order <product-id>               Add to cart and place the order
  enquire <product-id>             Open a WhatsApp order chat

Other:
  notifications [read <id>|clear]  Show the inbox
  banners                          Home screen banners
  support <subject> <message...>   Contact support
  avatar <image>                   Upload a profile photo
  shell                            Interactive session
  twin <up|down|status|reset|requests|seed|advance|voucher>
                                   Control a local twin-lucky backend
  version                          Print the version

Configuration is read from ~/.lucky/config.yaml, then .env, then LUCKY_* variables.
`)
}
