package app

import (
	"context"

	"go.uber.org/zap"
)

// NotificationActions changes the read state of the inbox.
type NotificationActions interface {
	MarkRead(ctx context.Context, id string) error
	ClearAll(ctx context.Context) error
}

// UnwiredNotifications is the shipped NotificationActions. The backend has no
// endpoint for read state, so both actions only log and change nothing.
type UnwiredNotifications struct {
	Logger *zap.Logger
}

func (u UnwiredNotifications) MarkRead(ctx context.Context, id string) error {
	u.log().Info("mark read is not wired to the backend", zap.String("notification_id", id))
	return nil
}

func (u UnwiredNotifications) ClearAll(ctx context.Context) error {
	u.log().Info("clear all is not wired to the backend")
	return nil
}

func (u UnwiredNotifications) log() *zap.Logger {
	if u.Logger == nil {
		return zap.NewNop()
	}
	return u.Logger
}
