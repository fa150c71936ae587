package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"inkpost/pkg/store"
)

const defaultOperationTimeout = 5 * time.Second

// Config holds runtime configuration for the core application.
type Config struct {
	Store    store.Store
	Sessions store.SessionStore
	// TrustSuppliedAuthor lets an unauthenticated caller act as the authorId
	// they send, and lets them skip ownership checks by omitting it.
	TrustSuppliedAuthor bool
	// OperationTimeout bounds every persistence round trip. Zero means 5s.
	OperationTimeout time.Duration
	Now              func() time.Time
}

// App implements the post, user and session operations of the blog.
type App struct {
	store               store.Store
	sessions            store.SessionStore
	trustSuppliedAuthor bool
	timeout             time.Duration
	now                 func() time.Time
}

// New constructs the application from injected store and session handles.
func New(cfg Config) (*App, error) {
	if cfg.Store == nil {
		return nil, errors.New("store required")
	}
	if cfg.Sessions == nil {
		return nil, errors.New("session store required")
	}
	if cfg.OperationTimeout <= 0 {
		cfg.OperationTimeout = defaultOperationTimeout
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &App{
		store:               cfg.Store,
		sessions:            cfg.Sessions,
		trustSuppliedAuthor: cfg.TrustSuppliedAuthor,
		timeout:             cfg.OperationTimeout,
		now:                 cfg.Now,
	}, nil
}

// SessionRequired reports whether mutations need a verified session.
func (a *App) SessionRequired() bool {
	return !a.trustSuppliedAuthor
}

func (a *App) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, a.timeout)
}

func (a *App) timestamp() time.Time {
	return a.now().UTC()
}

func storeErr(op string, err error) error {
	return fmt.Errorf("%s: %w", op, err)
}
