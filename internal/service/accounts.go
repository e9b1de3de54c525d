// Package service holds the account store and the gallery session client.
// Persistence is delegated to an AccountRepository, network calls to a
// Transport.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/atinyakov/GalleryKeeper/internal/accountkey"
	"github.com/atinyakov/GalleryKeeper/internal/models"
	"github.com/atinyakov/GalleryKeeper/internal/notifier"
	"go.uber.org/zap"
)

// ActiveAccountPreference is the preference name the last active account key
// is persisted under.
const ActiveAccountPreference = "active_account"

// AccountRepository defines the persistence operations required by the
// account store.
type AccountRepository interface {
	// List returns every account in creation order.
	List(ctx context.Context) ([]models.Account, error)
	// Get returns the account stored under key or models.ErrUnknownAccount.
	Get(ctx context.Context, key string) (*models.Account, error)
	// Insert adds acc or fails with models.ErrDuplicateAccount.
	Insert(ctx context.Context, acc models.Account) error
	// UpdateSession replaces cookie and token of one account in one write.
	UpdateSession(ctx context.Context, key, cookie, token string) error
	// UpdateSecret replaces the sealed password of one account.
	UpdateSecret(ctx context.Context, key string, secret []byte) error
	Delete(ctx context.Context, key string) error
	// GetPreference returns "" for an unset preference.
	GetPreference(ctx context.Context, name string) (string, error)
	SetPreference(ctx context.Context, name, value string) error
}

// SecretSealer encrypts account passwords at rest.
type SecretSealer interface {
	Seal(plain []byte) ([]byte, error)
	Open(sealed []byte) ([]byte, error)
}

// AccountStore owns the set of known accounts and the active account.
type AccountStore struct {
	repo   AccountRepository
	sealer SecretSealer
	active *notifier.Notifier[*models.Account]
	log    *zap.Logger

	// activeMu orders SetActiveAccount calls with their publications.
	activeMu sync.Mutex
	locks    sync.Map // account key -> *sync.Mutex
}

// NewAccountStore creates a store and selects the active account from the
// persisted preference. A nil notifier or logger is replaced by a default.
func NewAccountStore(ctx context.Context, repo AccountRepository, sealer SecretSealer,
	active *notifier.Notifier[*models.Account], log *zap.Logger) (*AccountStore, error) {
	if repo == nil {
		return nil, errors.New("account repository is required")
	}
	if sealer == nil {
		return nil, errors.New("secret sealer is required")
	}
	if active == nil {
		active = notifier.New[*models.Account](nil)
	}
	if log == nil {
		log = zap.NewNop()
	}

	s := &AccountStore{repo: repo, sealer: sealer, active: active, log: log}

	last, err := repo.GetPreference(ctx, ActiveAccountPreference)
	if err != nil {
		log.Warn("read last active account", zap.Error(err))
	}
	s.SetActiveAccount(ctx, last)
	return s, nil
}

func (s *AccountStore) lock(key string) func() {
	m, _ := s.locks.LoadOrStore(key, &sync.Mutex{})
	mu := m.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// Exists reports whether an account for siteURL and username is known.
func (s *AccountStore) Exists(ctx context.Context, siteURL, username string) (bool, error) {
	key, err := accountkey.Derive(siteURL, username)
	if err != nil {
		return false, err
	}
	_, err = s.repo.Get(ctx, key)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, models.ErrUnknownAccount):
		return false, nil
	default:
		return false, err
	}
}

// CreateAccount adds an account. With neither username nor password a guest
// account is created and cookie and token are ignored. A password without a
// username is rejected with models.ErrMissingUsername.
func (s *AccountStore) CreateAccount(ctx context.Context, siteURL, username, password, cookie, token string) (*models.Account, error) {
	if username == "" && password != "" {
		return nil, models.ErrMissingUsername
	}
	key, err := accountkey.Derive(siteURL, username)
	if err != nil {
		return nil, err
	}

	acc := models.Account{Key: key, SiteURL: siteURL, Username: username}
	if username == "" && password == "" {
		acc.IsGuest = true
		acc.Username = accountkey.GuestName
	} else {
		acc.SessionCookie = cookie
		acc.AuthToken = token
		if password != "" {
			acc.Secret, err = s.sealer.Seal([]byte(password))
			if err != nil {
				return nil, fmt.Errorf("seal password for %s: %w", key, err)
			}
		}
	}

	defer s.lock(key)()
	if err := s.repo.Insert(ctx, acc); err != nil {
		return nil, err
	}
	s.log.Info("account created", zap.String("account", key), zap.Bool("guest", acc.IsGuest))
	return public(acc), nil
}

// ListAccounts returns the known accounts in creation order.
func (s *AccountStore) ListAccounts(ctx context.Context) ([]models.Account, error) {
	accs, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	for i := range accs {
		accs[i].Secret = nil
	}
	return accs, nil
}

// Account returns the account stored under key.
func (s *AccountStore) Account(ctx context.Context, key string) (*models.Account, error) {
	acc, err := s.repo.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	return public(*acc), nil
}

// SiteURL returns the site URL of an account.
func (s *AccountStore) SiteURL(ctx context.Context, key string) (string, error) {
	acc, err := s.repo.Get(ctx, key)
	if err != nil {
		return "", err
	}
	return acc.SiteURL, nil
}

// Username returns the username of an account.
func (s *AccountStore) Username(ctx context.Context, key string) (string, error) {
	acc, err := s.repo.Get(ctx, key)
	if err != nil {
		return "", err
	}
	return acc.Username, nil
}

// Cookie returns the session cookie of an account.
func (s *AccountStore) Cookie(ctx context.Context, key string) (string, error) {
	cookie, _, err := s.Session(ctx, key)
	return cookie, err
}

// Token returns the auth token of an account.
func (s *AccountStore) Token(ctx context.Context, key string) (string, error) {
	_, token, err := s.Session(ctx, key)
	return token, err
}

// Session returns cookie and token of an account as one consistent pair.
func (s *AccountStore) Session(ctx context.Context, key string) (cookie, token string, err error) {
	defer s.lock(key)()
	acc, err := s.repo.Get(ctx, key)
	if err != nil {
		return "", "", err
	}
	return acc.SessionCookie, acc.AuthToken, nil
}

// Password returns the decrypted password of an account. Guest accounts
// have none.
func (s *AccountStore) Password(ctx context.Context, key string) (string, error) {
	acc, err := s.repo.Get(ctx, key)
	if err != nil {
		return "", err
	}
	if len(acc.Secret) == 0 {
		return "", nil
	}
	plain, err := s.sealer.Open(acc.Secret)
	if err != nil {
		return "", fmt.Errorf("open password for %s: %w", key, err)
	}
	return string(plain), nil
}

// UpdateSession stores cookie and token of an account as a pair.
func (s *AccountStore) UpdateSession(ctx context.Context, key, cookie, token string) error {
	unlock := s.lock(key)
	err := s.repo.UpdateSession(ctx, key, cookie, token)
	unlock()
	if err != nil {
		return err
	}
	s.refreshActive(ctx, key)
	return nil
}

// UpdateCredentials replaces the stored password of an account.
func (s *AccountStore) UpdateCredentials(ctx context.Context, key, password string) error {
	secret, err := s.sealer.Seal([]byte(password))
	if err != nil {
		return fmt.Errorf("seal password for %s: %w", key, err)
	}
	defer s.lock(key)()
	if err := s.repo.UpdateSecret(ctx, key, secret); err != nil {
		return err
	}
	s.log.Info("account credentials updated", zap.String("account", key))
	return nil
}

// ClearSession forgets the session of an account. The account is kept.
func (s *AccountStore) ClearSession(ctx context.Context, key string) error {
	return s.UpdateSession(ctx, key, "", "")
}

// RemoveAccount deletes an account. If it was active another one is selected.
func (s *AccountStore) RemoveAccount(ctx context.Context, key string) error {
	unlock := s.lock(key)
	err := s.repo.Delete(ctx, key)
	if err == nil || errors.Is(err, models.ErrUnknownAccount) {
		s.locks.Delete(key)
	}
	unlock()
	if err != nil {
		return err
	}
	s.log.Info("account removed", zap.String("account", key))

	if cur := s.active.Value(); cur != nil && cur.Key == key {
		last, err := s.repo.GetPreference(ctx, ActiveAccountPreference)
		if err != nil || last == key {
			last = ""
		}
		s.SetActiveAccount(ctx, last)
	}
	return nil
}

// IsLoggedIn reports whether at least one account is known.
func (s *AccountStore) IsLoggedIn(ctx context.Context) (bool, error) {
	accs, err := s.repo.List(ctx)
	if err != nil {
		return false, err
	}
	return len(accs) > 0, nil
}

// SetActiveAccount makes the account with the given key active and persists
// the choice. Without an exact match the first known account becomes active
// without being persisted, or none when the store is empty. It never fails.
func (s *AccountStore) SetActiveAccount(ctx context.Context, nameOrKey string) {
	s.activeMu.Lock()
	defer s.activeMu.Unlock()

	accs, err := s.repo.List(ctx)
	if err != nil {
		s.log.Warn("list accounts for active selection", zap.Error(err))
		s.active.Publish(nil)
		return
	}

	if nameOrKey != "" {
		for _, acc := range accs {
			if acc.Key != nameOrKey {
				continue
			}
			if err := s.repo.SetPreference(ctx, ActiveAccountPreference, acc.Key); err != nil {
				s.log.Warn("persist active account", zap.String("account", acc.Key), zap.Error(err))
			}
			s.log.Debug("active account set", zap.String("account", acc.Key))
			s.active.Publish(public(acc))
			return
		}
	}

	if len(accs) == 0 {
		s.active.Publish(nil)
		return
	}
	s.log.Debug("active account defaulted", zap.String("account", accs[0].Key))
	s.active.Publish(public(accs[0]))
}

// ActiveAccount returns the observable active account. Subscribers receive
// the current value on subscription and every later change in order.
func (s *AccountStore) ActiveAccount() *notifier.Notifier[*models.Account] {
	return s.active
}

// Current returns the active account or nil.
func (s *AccountStore) Current() *models.Account {
	return s.active.Value()
}

// refreshActive republishes the active account after its session changed.
func (s *AccountStore) refreshActive(ctx context.Context, key string) {
	s.activeMu.Lock()
	defer s.activeMu.Unlock()

	cur := s.active.Value()
	if cur == nil || cur.Key != key {
		return
	}
	acc, err := s.repo.Get(ctx, key)
	if err != nil {
		s.log.Warn("refresh active account", zap.String("account", key), zap.Error(err))
		return
	}
	s.active.Publish(public(*acc))
}

func public(acc models.Account) *models.Account {
	acc.Secret = nil
	return &acc
}
