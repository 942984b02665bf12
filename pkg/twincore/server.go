// Package twincore provides the base HTTP server, flags, middleware chain and
// response helpers for the backend twin.
package twincore

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

// Config holds the twin configuration, parsed from flags.
type Config struct {
	Port      int
	Latency   time.Duration
	FailRate  float64
	SeedFile  string
	Verbose   bool
	JWTSecret string
	// Origins allowed by CORS. Empty allows any origin.
	Origins []string
	Name    string // twin name for logging
}

// ParseFlags parses the twin flags from args (usually os.Args[1:]).
func ParseFlags(twinName string, args []string) (*Config, error) {
	cfg := &Config{Name: twinName}
	fs := flag.NewFlagSet(twinName, flag.ContinueOnError)
	fs.IntVar(&cfg.Port, "port", 0, "HTTP listen port (default: $PORT or 8080)")
	fs.DurationVar(&cfg.Latency, "latency", 0, "Base simulated latency")
	fs.Float64Var(&cfg.FailRate, "fail-rate", 0.0, "Random failure rate 0.0-1.0")
	fs.StringVar(&cfg.SeedFile, "seed-file", "", "Path to JSON fixture for initial state")
	fs.BoolVar(&cfg.Verbose, "verbose", false, "Enable request/response logging")
	fs.StringVar(&cfg.JWTSecret, "jwt-secret", "", "HMAC key for access tokens (default: $LUCKY_TWIN_SECRET or a dev key)")
	origins := fs.String("origins", "", "Comma-separated CORS origins (default: any)")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if cfg.Port == 0 {
		if p := os.Getenv("PORT"); p != "" {
			fmt.Sscanf(p, "%d", &cfg.Port)
		}
	}
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.JWTSecret == "" {
		cfg.JWTSecret = os.Getenv("LUCKY_TWIN_SECRET")
	}
	if cfg.JWTSecret == "" {
		cfg.JWTSecret = "lucky-twin-dev-secret"
	}
	if *origins != "" {
		for _, o := range strings.Split(*origins, ",") {
			if o = strings.TrimSpace(o); o != "" {
				cfg.Origins = append(cfg.Origins, o)
			}
		}
	}
	if cfg.FailRate < 0 || cfg.FailRate > 1 {
		return nil, fmt.Errorf("fail-rate must be between 0.0 and 1.0")
	}
	return cfg, nil
}

// Twin wraps a chi router with the common middleware and lifecycle handling.
type Twin struct {
	Config *Config
	Router *chi.Mux
	Logger *slog.Logger
	mw     *Middleware
	mu     sync.RWMutex // protects Config fields during runtime updates
}

// New creates a Twin logging JSON to stdout.
func New(cfg *Config) *Twin {
	level := slog.LevelInfo
	if cfg.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	return NewWithLogger(cfg, logger)
}

// NewWithLogger creates a Twin with the given logger.
func NewWithLogger(cfg *Config, logger *slog.Logger) *Twin {
	r := chi.NewRouter()
	t := &Twin{Config: cfg, Router: r, Logger: logger}
	t.mw = NewMiddleware(t, logger)

	// Latency and failure middleware are always mounted; both check the live
	// config so runtime updates apply immediately.
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(t.mw.CORS)
	r.Use(t.mw.RequestLog)
	r.Use(t.mw.LatencyInjection)
	r.Use(t.mw.RandomFailure)
	return t
}

// Middleware returns the middleware instance (request log, faults).
func (t *Twin) Middleware() *Middleware {
	return t.mw
}

func (t *Twin) latency() time.Duration {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.Config.Latency
}

func (t *Twin) failRate() float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.Config.FailRate
}

func (t *Twin) verbose() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.Config.Verbose
}

// GetConfig returns the runtime configuration as a map.
// This implements the admin.ConfigProvider interface.
func (t *Twin) GetConfig() map[string]any {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return map[string]any{
		"name":      t.Config.Name,
		"port":      t.Config.Port,
		"latency":   t.Config.Latency.String(),
		"fail_rate": t.Config.FailRate,
		"verbose":   t.Config.Verbose,
		"origins":   t.Config.Origins,
	}
}

// UpdateConfig changes latency, fail_rate or verbose at runtime. Every update
// is validated before any is applied.
// This implements the admin.ConfigProvider interface.
func (t *Twin) UpdateConfig(updates map[string]any) error {
	var (
		latency  *time.Duration
		failRate *float64
		verbose  *bool
	)
	for k, v := range updates {
		switch k {
		case "latency":
			s, ok := v.(string)
			if !ok {
				return fmt.Errorf("latency must be a duration string")
			}
			d, err := time.ParseDuration(s)
			if err != nil {
				return fmt.Errorf("invalid latency duration: %w", err)
			}
			if d < 0 {
				return fmt.Errorf("latency must not be negative")
			}
			latency = &d
		case "fail_rate":
			f, ok := v.(float64)
			if !ok {
				return fmt.Errorf("fail_rate must be a number")
			}
			if f < 0 || f > 1 {
				return fmt.Errorf("fail_rate must be between 0.0 and 1.0")
			}
			failRate = &f
		case "verbose":
			b, ok := v.(bool)
			if !ok {
				return fmt.Errorf("verbose must be a boolean")
			}
			verbose = &b
		case "name", "port", "origins":
			return fmt.Errorf("%s cannot be changed at runtime", k)
		default:
			return fmt.Errorf("unknown config key: %s", k)
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if latency != nil {
		t.Config.Latency = *latency
	}
	if failRate != nil {
		t.Config.FailRate = *failRate
	}
	if verbose != nil {
		t.Config.Verbose = *verbose
	}
	return nil
}

// Serve listens until ctx is cancelled or an interrupt arrives, then shuts
// down gracefully.
func (t *Twin) Serve(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	addr := fmt.Sprintf(":%d", t.Config.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      t.Router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		t.Logger.Info("starting twin", "name", t.Config.Name, "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("serving %s: %w", addr, err)
		}
		return nil
	case <-ctx.Done():
	}
	t.Logger.Info("shutting down twin", "name", t.Config.Name)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// ServeHTTP implements http.Handler so a Twin can be used directly in tests.
func (t *Twin) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	t.Router.ServeHTTP(w, r)
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		json.NewEncoder(w).Encode(v)
	}
}

// Message writes {"message": ...}, the shape the Lucky API uses for most errors.
func Message(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]any{"message": message})
}

// Error writes a structured error object under "error".
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]any{
		"error": map[string]any{
			"message": message,
			"type":    http.StatusText(status),
			"code":    status,
		},
	})
}

// PlainError writes {"error": "..."} with a bare string.
func PlainError(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]any{"error": message})
}
