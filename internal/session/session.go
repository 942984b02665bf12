// Package session decides whether stored credentials are still usable and
// persists them on login. A session is valid for 24 hours from issue; there is
// no refresh.
package session

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/luckylubricants/rewards/internal/model"
	"github.com/luckylubricants/rewards/internal/storage"
)

// Window is how long a session stays valid after login.
const Window = 24 * time.Hour

// Valid reports whether a session started at start is still usable at now.
// The boundary is exclusive: at exactly Window the session is expired.
func Valid(start, now time.Time) bool {
	return now.Sub(start) < Window
}

// Status is the outcome of the startup credential check.
type Status int

const (
	// Missing means no token or no start timestamp is stored.
	Missing Status = iota
	// Fresh means a token exists and its session is inside the window.
	Fresh
	// Expired means a token exists but its session is past the window.
	Expired
)

func (s Status) String() string {
	switch s {
	case Fresh:
		return "fresh"
	case Expired:
		return "expired"
	default:
		return "missing"
	}
}

// Authenticator exchanges credentials for a token. backend.Client satisfies it.
type Authenticator interface {
	Login(ctx context.Context, identifier, password string) (model.LoginResult, error)
}

// Manager owns the persisted credential keys.
type Manager struct {
	store  *storage.Store
	auth   Authenticator
	clock  clockwork.Clock
	logger *zap.Logger
}

// NewManager creates a Manager. A nil clock means the real clock.
func NewManager(store *storage.Store, auth Authenticator, clock clockwork.Clock, logger *zap.Logger) *Manager {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{store: store, auth: auth, clock: clock, logger: logger}
}

// Check reads storage and classifies the stored session. It changes nothing.
func (m *Manager) Check() Status {
	if m.store.Token() == "" {
		return Missing
	}
	start, ok := m.store.SessionStart()
	if !ok {
		return Missing
	}
	if !Valid(start, m.clock.Now()) {
		return Expired
	}
	return Fresh
}

// Restore applies Check's decision. Partial credentials are discarded without
// touching the install flag; an expired session is a full logout.
func (m *Manager) Restore() (Status, error) {
	st := m.Check()
	switch st {
	case Expired:
		m.logger.Info("session expired, logging out")
		if err := m.Logout(); err != nil {
			return st, err
		}
	case Missing:
		if m.store.Token() != "" || hasKey(m.store, storage.KeySessionStart) || hasKey(m.store, storage.KeyUserID) {
			m.logger.Debug("discarding partial credentials")
			if err := m.store.Delete(storage.KeyToken, storage.KeySessionStart, storage.KeyUserID); err != nil {
				return st, err
			}
		}
	}
	return st, nil
}

// Login authenticates and persists token, start time and user id in one write.
// Nothing is stored when the exchange fails.
func (m *Manager) Login(ctx context.Context, identifier, password string) (model.LoginResult, error) {
	res, err := m.auth.Login(ctx, identifier, password)
	if err != nil {
		return res, err
	}
	kv := map[string]string{
		storage.KeyToken:        res.AccessToken,
		storage.KeySessionStart: strconv.FormatInt(m.clock.Now().UnixMilli(), 10),
	}
	if res.UserID != 0 {
		kv[storage.KeyUserID] = strconv.FormatInt(res.UserID, 10)
	}
	if err := m.store.SetMany(kv); err != nil {
		return res, fmt.Errorf("persisting session: %w", err)
	}
	m.logger.Info("logged in", zap.Int64("user_id", res.UserID))
	return res, nil
}

// Logout removes every persisted key.
func (m *Manager) Logout() error {
	if err := m.store.Clear(); err != nil {
		return fmt.Errorf("clearing session: %w", err)
	}
	return nil
}

// Remaining returns how long the stored session has left, or 0.
func (m *Manager) Remaining() time.Duration {
	start, ok := m.store.SessionStart()
	if !ok || m.store.Token() == "" {
		return 0
	}
	left := Window - m.clock.Now().Sub(start)
	if left < 0 {
		return 0
	}
	return left
}

func hasKey(s *storage.Store, key string) bool {
	_, ok := s.Get(key)
	return ok
}
