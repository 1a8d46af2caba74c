package storage

import (
	"context"
	"errors"
	"time"

	trigger "nudge/internal/trigger"
)

var (
	ErrDisabled = errors.New("storage disabled")
	ErrNotFound = errors.New("not found")
)

// Config configures storage.
//
// Driver values:
//   - "sqlite": SQLite database file
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // 0 means default
}

// Store is the persistence API consumed by the sweep and the engine.
//
// It doubles as the engine's profile/completion backend: every Store
// satisfies trigger.TimezoneLookup and trigger.CompletionLookup.
type Store interface {
	// ListActive returns all enabled triggers, normalized.
	ListActive(ctx context.Context) ([]*trigger.Trigger, error)

	Get(ctx context.Context, id int64) (*trigger.Trigger, error)
	Put(ctx context.Context, t *trigger.Trigger) error
	Delete(ctx context.Context, id int64) error

	// SetTimezone upserts a user's profile timezone.
	SetTimezone(ctx context.Context, userID int64, zone string) error
	TimezoneFor(ctx context.Context, userID int64) (string, error)

	// SetCompleted records (or clears) a user's terminal state on an action.
	SetCompleted(ctx context.Context, userID, actionID int64, done bool) error
	HasCompletedAction(ctx context.Context, userID, actionID int64) (bool, error)

	Close() error
}
