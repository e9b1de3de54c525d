package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/atinyakov/GalleryKeeper/internal/models"
)

// FileAccountRepository keeps accounts in a JSON file. Every mutation is
// written to a temporary file and renamed over the previous one.
type FileAccountRepository struct {
	path  string
	mu    sync.Mutex
	state fileState
}

type fileState struct {
	Accounts    []fileAccount     `json:"accounts"`
	Preferences map[string]string `json:"preferences"`
}

type fileAccount struct {
	Key           string `json:"key"`
	SiteURL       string `json:"site_url"`
	Username      string `json:"username"`
	IsGuest       bool   `json:"is_guest"`
	SessionCookie string `json:"session_cookie,omitempty"`
	AuthToken     string `json:"auth_token,omitempty"`
	Secret        []byte `json:"secret,omitempty"`
}

// NewFileAccountRepository loads path, starting empty when it does not exist.
func NewFileAccountRepository(path string) (*FileAccountRepository, error) {
	r := &FileAccountRepository{path: path}
	if err := r.load(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *FileAccountRepository) load() error {
	f, err := os.Open(r.path)
	if err != nil {
		if os.IsNotExist(err) {
			r.state = fileState{Preferences: map[string]string{}}
			return nil
		}
		return fmt.Errorf("open account file: %w", err)
	}
	defer f.Close()

	var st fileState
	if err := json.NewDecoder(f).Decode(&st); err != nil {
		return fmt.Errorf("decode account file: %w", err)
	}
	if st.Preferences == nil {
		st.Preferences = map[string]string{}
	}
	r.state = st
	return nil
}

func (r *FileAccountRepository) save(st fileState) error {
	if err := os.MkdirAll(filepath.Dir(r.path), 0o700); err != nil {
		return fmt.Errorf("create account dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(r.path), ".accounts-*.json")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	enc := json.NewEncoder(tmp)
	enc.SetIndent("", "  ")
	if err := enc.Encode(st); err != nil {
		tmp.Close()
		return fmt.Errorf("encode account file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), r.path); err != nil {
		return fmt.Errorf("replace account file: %w", err)
	}
	return nil
}

// commit persists st and makes it current only when the write succeeded.
func (r *FileAccountRepository) commit(st fileState) error {
	if err := r.save(st); err != nil {
		return err
	}
	r.state = st
	return nil
}

func (r *FileAccountRepository) clone() fileState {
	st := fileState{
		Accounts:    make([]fileAccount, len(r.state.Accounts)),
		Preferences: make(map[string]string, len(r.state.Preferences)),
	}
	copy(st.Accounts, r.state.Accounts)
	for k, v := range r.state.Preferences {
		st.Preferences[k] = v
	}
	return st
}

func (r *FileAccountRepository) indexOf(key string) int {
	for i, a := range r.state.Accounts {
		if a.Key == key {
			return i
		}
	}
	return -1
}

// List returns all accounts in insertion order.
func (r *FileAccountRepository) List(ctx context.Context) ([]models.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	accounts := make([]models.Account, 0, len(r.state.Accounts))
	for _, a := range r.state.Accounts {
		accounts = append(accounts, a.model())
	}
	return accounts, nil
}

// Get returns the account stored under key or models.ErrUnknownAccount.
func (r *FileAccountRepository) Get(ctx context.Context, key string) (*models.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.indexOf(key)
	if i < 0 {
		return nil, fmt.Errorf("%w: %s", models.ErrUnknownAccount, key)
	}
	acc := r.state.Accounts[i].model()
	return &acc, nil
}

// Insert appends acc or returns models.ErrDuplicateAccount.
func (r *FileAccountRepository) Insert(ctx context.Context, acc models.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.indexOf(acc.Key) >= 0 {
		return fmt.Errorf("%w: %s", models.ErrDuplicateAccount, acc.Key)
	}
	st := r.clone()
	st.Accounts = append(st.Accounts, fromModel(acc))
	return r.commit(st)
}

// UpdateSession replaces the cookie and token of an account.
func (r *FileAccountRepository) UpdateSession(ctx context.Context, key, cookie, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.indexOf(key)
	if i < 0 {
		return fmt.Errorf("%w: %s", models.ErrUnknownAccount, key)
	}
	st := r.clone()
	st.Accounts[i].SessionCookie = cookie
	st.Accounts[i].AuthToken = token
	return r.commit(st)
}

// UpdateSecret replaces the sealed password of an account.
func (r *FileAccountRepository) UpdateSecret(ctx context.Context, key string, secret []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.indexOf(key)
	if i < 0 {
		return fmt.Errorf("%w: %s", models.ErrUnknownAccount, key)
	}
	st := r.clone()
	st.Accounts[i].Secret = secret
	return r.commit(st)
}

// Delete removes an account.
func (r *FileAccountRepository) Delete(ctx context.Context, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.indexOf(key)
	if i < 0 {
		return fmt.Errorf("%w: %s", models.ErrUnknownAccount, key)
	}
	st := r.clone()
	st.Accounts = append(st.Accounts[:i], st.Accounts[i+1:]...)
	return r.commit(st)
}

// GetPreference returns the stored value or "" when unset.
func (r *FileAccountRepository) GetPreference(ctx context.Context, name string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.Preferences[name], nil
}

// SetPreference stores a preference.
func (r *FileAccountRepository) SetPreference(ctx context.Context, name, value string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	st := r.clone()
	st.Preferences[name] = value
	return r.commit(st)
}

func (a fileAccount) model() models.Account {
	return models.Account{
		Key:           a.Key,
		SiteURL:       a.SiteURL,
		Username:      a.Username,
		IsGuest:       a.IsGuest,
		SessionCookie: a.SessionCookie,
		AuthToken:     a.AuthToken,
		Secret:        a.Secret,
	}
}

func fromModel(acc models.Account) fileAccount {
	return fileAccount{
		Key:           acc.Key,
		SiteURL:       acc.SiteURL,
		Username:      acc.Username,
		IsGuest:       acc.IsGuest,
		SessionCookie: acc.SessionCookie,
		AuthToken:     acc.AuthToken,
		Secret:        acc.Secret,
	}
}
