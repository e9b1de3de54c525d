package service

import (
	"context"

	"github.com/atinyakov/GalleryKeeper/internal/models"
	"github.com/atinyakov/GalleryKeeper/internal/worker"
)

// AsyncSession runs SessionClient calls on a worker.Dispatcher. Callbacks
// are delivered on the dispatcher's callback goroutine; the returned
// CancelFunc aborts the call at its next network boundary.
type AsyncSession struct {
	client *SessionClient
	d      *worker.Dispatcher
}

// NewAsyncSession binds client to dispatcher d.
func NewAsyncSession(client *SessionClient, d *worker.Dispatcher) *AsyncSession {
	return &AsyncSession{client: client, d: d}
}

func (a *AsyncSession) LoginAsync(ctx context.Context, siteURL, username, password string,
	cb func(*models.LoginResult, error)) worker.CancelFunc {
	return worker.Submit(a.d, ctx, func(ctx context.Context) (*models.LoginResult, error) {
		return a.client.Login(ctx, siteURL, username, password)
	}, cb)
}

func (a *AsyncSession) LoginAccountAsync(ctx context.Context, key string,
	cb func(*models.LoginResult, error)) worker.CancelFunc {
	return worker.Submit(a.d, ctx, func(ctx context.Context) (*models.LoginResult, error) {
		return a.client.LoginAccount(ctx, key)
	}, cb)
}

func (a *AsyncSession) StatusAsync(ctx context.Context, siteURL string,
	cb func(*models.StatusResult, error)) worker.CancelFunc {
	return worker.Submit(a.d, ctx, func(ctx context.Context) (*models.StatusResult, error) {
		return a.client.Status(ctx, siteURL)
	}, cb)
}

func (a *AsyncSession) StatusAccountAsync(ctx context.Context, key string,
	cb func(*models.StatusResult, error)) worker.CancelFunc {
	return worker.Submit(a.d, ctx, func(ctx context.Context) (*models.StatusResult, error) {
		return a.client.StatusAccount(ctx, key)
	}, cb)
}

func (a *AsyncSession) LogoutAsync(ctx context.Context, key string,
	cb func(*models.LogoutResult, error)) worker.CancelFunc {
	return worker.Submit(a.d, ctx, func(ctx context.Context) (*models.LogoutResult, error) {
		return a.client.Logout(ctx, key)
	}, cb)
}
