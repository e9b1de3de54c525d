package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/atinyakov/GalleryKeeper/internal/accountkey"
	"github.com/atinyakov/GalleryKeeper/internal/client/gallery"
	"github.com/atinyakov/GalleryKeeper/internal/models"
	"go.uber.org/zap"
)

const (
	detailLoginResponse  = "empty or malformed login response"
	detailMissingCookie  = "login succeeded without session cookie"
	detailStatusResponse = "empty or malformed status response"
)

// Transport issues the three gallery session calls against a base URL.
// *gallery.Client implements it.
type Transport interface {
	Authenticate(ctx context.Context, baseURL, username, password string) (*gallery.LoginResponse, error)
	GetStatus(ctx context.Context, baseURL, cookie string) (*models.Status, error)
	Logout(ctx context.Context, baseURL, cookie string) (bool, error)
}

// AccountResolver resolves the stored fields an account-based call needs.
// *AccountStore implements it.
type AccountResolver interface {
	SiteURL(ctx context.Context, key string) (string, error)
	Username(ctx context.Context, key string) (string, error)
	Password(ctx context.Context, key string) (string, error)
	Cookie(ctx context.Context, key string) (string, error)
}

// SessionClient performs login, status and logout exchanges. It never
// writes to the account store; see ApplyLogin.
type SessionClient struct {
	transport Transport
	accounts  AccountResolver
	log       *zap.Logger
}

// NewSessionClient creates a SessionClient. accounts may be nil when only
// URL-based calls are used.
func NewSessionClient(transport Transport, accounts AccountResolver, log *zap.Logger) *SessionClient {
	if log == nil {
		log = zap.NewNop()
	}
	return &SessionClient{transport: transport, accounts: accounts, log: log}
}

// Login authenticates against siteURL and fetches the status of the new
// session.
func (c *SessionClient) Login(ctx context.Context, siteURL, username, password string) (*models.LoginResult, error) {
	base, err := accountkey.BaseURL(siteURL)
	if err != nil {
		return nil, err
	}
	log := c.log.With(zap.String("site", base), zap.String("user", username))

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	log.Debug("login", zap.String("stage", "authenticating"))
	resp, err := c.transport.Authenticate(ctx, base, username, password)
	if err != nil {
		log.Debug("login", zap.String("stage", "failed"), zap.Error(err))
		return nil, &models.ProtocolError{Detail: detailLoginResponse, Err: err}
	}
	if resp == nil || resp.Body == nil {
		log.Debug("login", zap.String("stage", "failed"), zap.String("reason", "no body"))
		return nil, &models.ProtocolError{Detail: detailLoginResponse}
	}
	if !resp.Body.Result {
		log.Debug("login", zap.String("stage", "failed"), zap.Int("code", resp.Body.Err))
		return nil, &models.AuthenticationError{Code: resp.Body.Err, Message: resp.Body.Message}
	}

	cookie := gallery.ExtractCookie(gallery.SessionCookieName, resp.Header)
	if cookie == "" {
		log.Debug("login", zap.String("stage", "failed"), zap.String("reason", "no cookie"))
		return nil, &models.ProtocolError{Detail: detailMissingCookie}
	}
	log.Debug("login", zap.String("stage", "authenticated"))

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	log.Debug("login", zap.String("stage", "fetching status"))
	status, err := c.transport.GetStatus(ctx, base, cookie)
	if err != nil {
		log.Debug("login", zap.String("stage", "failed"), zap.Error(err))
		return nil, &models.ProtocolError{Detail: detailStatusResponse, Err: err}
	}
	log.Debug("login", zap.String("stage", "completed"))

	return &models.LoginResult{
		URL:      siteURL,
		Username: username,
		Password: password,
		Cookie:   cookie,
		Status:   status,
	}, nil
}

// LoginAccount logs in again with the stored credentials of an account.
func (c *SessionClient) LoginAccount(ctx context.Context, key string) (*models.LoginResult, error) {
	if c.accounts == nil {
		return nil, fmt.Errorf("%w: %s", models.ErrUnknownAccount, key)
	}
	site, err := c.accounts.SiteURL(ctx, key)
	if err != nil {
		return nil, err
	}
	username, err := c.accounts.Username(ctx, key)
	if err != nil {
		return nil, err
	}
	password, err := c.accounts.Password(ctx, key)
	if err != nil {
		return nil, err
	}
	return c.Login(ctx, site, username, password)
}

// Status fetches the anonymous status of a gallery.
func (c *SessionClient) Status(ctx context.Context, siteURL string) (*models.StatusResult, error) {
	base, err := accountkey.BaseURL(siteURL)
	if err != nil {
		return nil, err
	}
	return c.status(ctx, base, "")
}

// StatusAccount fetches the status within the stored session of an account.
func (c *SessionClient) StatusAccount(ctx context.Context, key string) (*models.StatusResult, error) {
	site, cookie, err := c.session(ctx, key)
	if err != nil {
		return nil, err
	}
	return c.status(ctx, site, cookie)
}

func (c *SessionClient) status(ctx context.Context, base, cookie string) (*models.StatusResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.log.Debug("status", zap.String("site", base), zap.Bool("session", cookie != ""))
	status, err := c.transport.GetStatus(ctx, base, cookie)
	if err != nil {
		return nil, &models.ProtocolError{Detail: detailStatusResponse, Err: err}
	}
	return &models.StatusResult{URL: base, Status: status}, nil
}

// Logout ends the stored session of an account on the server. Once the
// server answered the result reports LoggedOut, and ServerAcknowledged
// tells whether the server itself reported success. The stored session is
// left untouched; callers clear it with AccountStore.ClearSession.
func (c *SessionClient) Logout(ctx context.Context, key string) (*models.LogoutResult, error) {
	site, cookie, err := c.session(ctx, key)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.log.Debug("logout", zap.String("site", site), zap.String("account", key))
	ok, err := c.transport.Logout(ctx, site, cookie)
	if err != nil {
		return nil, fmt.Errorf("logout %s: %w", key, err)
	}
	if !ok {
		c.log.Warn("server did not acknowledge logout", zap.String("account", key))
	}
	return &models.LogoutResult{LoggedOut: true, ServerAcknowledged: ok}, nil
}

func (c *SessionClient) session(ctx context.Context, key string) (site, cookie string, err error) {
	if c.accounts == nil {
		return "", "", fmt.Errorf("%w: %s", models.ErrUnknownAccount, key)
	}
	site, err = c.accounts.SiteURL(ctx, key)
	if err != nil {
		return "", "", err
	}
	cookie, err = c.accounts.Cookie(ctx, key)
	if err != nil {
		return "", "", err
	}
	site, err = accountkey.BaseURL(site)
	if err != nil {
		return "", "", err
	}
	return site, cookie, nil
}

// ApplyLogin records a completed login in the store: the account is created
// when missing, otherwise its password and session are replaced. The
// account becomes active.
func ApplyLogin(ctx context.Context, store *AccountStore, res *models.LoginResult) (*models.Account, error) {
	if res == nil {
		return nil, errors.New("nil login result")
	}
	key, err := accountkey.Derive(res.URL, res.Username)
	if err != nil {
		return nil, err
	}

	_, err = store.CreateAccount(ctx, res.URL, res.Username, res.Password, res.Cookie, res.Token())
	if errors.Is(err, models.ErrDuplicateAccount) {
		err = nil
		if res.Password != "" {
			err = store.UpdateCredentials(ctx, key, res.Password)
		}
		if err == nil {
			err = store.UpdateSession(ctx, key, res.Cookie, res.Token())
		}
	}
	if err != nil {
		return nil, err
	}

	store.SetActiveAccount(ctx, key)
	return store.Account(ctx, key)
}
