// Package datasync rebuilds the user view-model from the backend. Each sync is
// all-or-nothing: the result is produced only after every request succeeded.
package datasync

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/luckylubricants/rewards/internal/model"
)

// Source is the subset of the backend client the syncer reads from.
type Source interface {
	Profile(ctx context.Context) (model.Profile, error)
	Balance(ctx context.Context) (model.Balance, error)
	Notifications(ctx context.Context) ([]model.Notification, error)
	Transactions(ctx context.Context) ([]model.Transaction, error)
	Rewards(ctx context.Context) ([]model.Reward, error)
	Products(ctx context.Context) ([]model.Product, error)
	RedemptionHistory(ctx context.Context) ([]model.Redemption, error)
}

// Syncer fans requests out concurrently and merges their results.
type Syncer struct {
	src    Source
	logger *zap.Logger
}

// New creates a Syncer.
func New(src Source, logger *zap.Logger) *Syncer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Syncer{src: src, logger: logger}
}

// Sync fetches profile, balance and notifications concurrently and merges them
// into a fresh User. The first failure cancels the rest and no User is returned.
func (s *Syncer) Sync(ctx context.Context) (model.User, error) {
	var (
		profile model.Profile
		balance model.Balance
		notes   []model.Notification
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		p, err := s.src.Profile(gctx)
		if err != nil {
			return fmt.Errorf("profile: %w", err)
		}
		profile = p
		return nil
	})
	g.Go(func() error {
		b, err := s.src.Balance(gctx)
		if err != nil {
			return fmt.Errorf("balance: %w", err)
		}
		balance = b
		return nil
	})
	g.Go(func() error {
		n, err := s.src.Notifications(gctx)
		if err != nil {
			return fmt.Errorf("notifications: %w", err)
		}
		notes = n
		return nil
	})
	if err := g.Wait(); err != nil {
		s.logger.Warn("sync failed", zap.Error(err))
		return model.User{}, err
	}

	if notes == nil {
		notes = []model.Notification{}
	}
	points := balance.Points
	if points < 0 {
		points = 0
	}
	u := model.User{Profile: profile, Points: points, Notifications: notes}
	s.logger.Debug("synced", zap.Int("points", u.Points), zap.Int("unread", u.UnreadCount()))
	return u, nil
}

// Home holds the lists shown on the home and catalog tabs.
type Home struct {
	Transactions []model.Transaction
	Rewards      []model.Reward
	Products     []model.Product
}

// Home fetches transactions, rewards and products concurrently.
func (s *Syncer) Home(ctx context.Context) (Home, error) {
	var h Home
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		h.Transactions, err = s.src.Transactions(gctx)
		return wrap("transactions", err)
	})
	g.Go(func() (err error) {
		h.Rewards, err = s.src.Rewards(gctx)
		return wrap("rewards", err)
	})
	g.Go(func() (err error) {
		h.Products, err = s.src.Products(gctx)
		return wrap("products", err)
	})
	if err := g.Wait(); err != nil {
		return Home{}, err
	}
	return h, nil
}

// History holds the profile tab's activity lists.
type History struct {
	Transactions []model.Transaction
	Redemptions  []model.Redemption
}

// History fetches the ledger and the redemption history concurrently.
func (s *Syncer) History(ctx context.Context) (History, error) {
	var h History
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		h.Transactions, err = s.src.Transactions(gctx)
		return wrap("transactions", err)
	})
	g.Go(func() (err error) {
		h.Redemptions, err = s.src.RedemptionHistory(gctx)
		return wrap("redemption history", err)
	})
	if err := g.Wait(); err != nil {
		return History{}, err
	}
	return h, nil
}

func wrap(what string, err error) error {
	if err != nil {
		return fmt.Errorf("%s: %w", what, err)
	}
	return nil
}
