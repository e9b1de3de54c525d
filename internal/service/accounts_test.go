package service

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"testing"

	"github.com/atinyakov/GalleryKeeper/internal/models"
	"github.com/atinyakov/GalleryKeeper/internal/secrets"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memRepo is an in-memory AccountRepository. UpdateSession writes cookie
// and token in two steps so that only the store's locking keeps them paired.
type memRepo struct {
	mu      sync.Mutex
	accs    []models.Account
	prefs   map[string]string
	listErr error
	setPref int
}

func newMemRepo() *memRepo {
	return &memRepo{prefs: map[string]string{}}
}

func (m *memRepo) List(ctx context.Context) ([]models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	out := make([]models.Account, len(m.accs))
	copy(out, m.accs)
	return out, nil
}

func (m *memRepo) index(key string) int {
	for i := range m.accs {
		if m.accs[i].Key == key {
			return i
		}
	}
	return -1
}

func (m *memRepo) Get(ctx context.Context, key string) (*models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := m.index(key)
	if i < 0 {
		return nil, models.ErrUnknownAccount
	}
	acc := m.accs[i]
	return &acc, nil
}

func (m *memRepo) Insert(ctx context.Context, acc models.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.index(acc.Key) >= 0 {
		return models.ErrDuplicateAccount
	}
	m.accs = append(m.accs, acc)
	return nil
}

func (m *memRepo) UpdateSession(ctx context.Context, key, cookie, token string) error {
	m.mu.Lock()
	i := m.index(key)
	if i < 0 {
		m.mu.Unlock()
		return models.ErrUnknownAccount
	}
	m.accs[i].SessionCookie = cookie
	m.mu.Unlock()

	runtime.Gosched()

	m.mu.Lock()
	defer m.mu.Unlock()
	if i = m.index(key); i >= 0 {
		m.accs[i].AuthToken = token
	}
	return nil
}

func (m *memRepo) UpdateSecret(ctx context.Context, key string, secret []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := m.index(key)
	if i < 0 {
		return models.ErrUnknownAccount
	}
	m.accs[i].Secret = secret
	return nil
}

func (m *memRepo) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := m.index(key)
	if i < 0 {
		return models.ErrUnknownAccount
	}
	m.accs = append(m.accs[:i], m.accs[i+1:]...)
	return nil
}

func (m *memRepo) GetPreference(ctx context.Context, name string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.prefs[name], nil
}

func (m *memRepo) SetPreference(ctx context.Context, name, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setPref++
	m.prefs[name] = value
	return nil
}

func newTestStore(t *testing.T, repo AccountRepository) *AccountStore {
	t.Helper()
	sealer, err := secrets.NewSealer(make([]byte, secrets.KeySize))
	require.NoError(t, err)
	store, err := NewAccountStore(context.Background(), repo, sealer, nil, nil)
	require.NoError(t, err)
	return store
}

func TestCreateAccount_Guest(t *testing.T) {
	store := newTestStore(t, newMemRepo())

	acc, err := store.CreateAccount(context.Background(), "https://photos.example.com/", "", "", "ignored", "ignored")
	require.NoError(t, err)
	assert.True(t, acc.IsGuest)
	assert.Equal(t, "guest", acc.Username)
	assert.Equal(t, "guest@photos.example.com", acc.Key)
	assert.Empty(t, acc.SessionCookie)
	assert.Empty(t, acc.AuthToken)

	pw, err := store.Password(context.Background(), acc.Key)
	require.NoError(t, err)
	assert.Empty(t, pw)
}

func TestCreateAccount_PasswordWithoutUsername(t *testing.T) {
	repo := newMemRepo()
	store := newTestStore(t, repo)
	ctx := context.Background()

	_, err := store.CreateAccount(ctx, "https://photos.example.com/", "", "pw", "c", "t")
	assert.ErrorIs(t, err, models.ErrMissingUsername)

	accs, err := store.ListAccounts(ctx)
	require.NoError(t, err)
	assert.Empty(t, accs)

	_, err = store.CreateAccount(ctx, "https://photos.example.com/", "", "", "", "")
	require.NoError(t, err, "guest slot stays free")
}

func TestUpdateCredentials(t *testing.T) {
	repo := newMemRepo()
	store := newTestStore(t, repo)
	ctx := context.Background()

	acc, err := store.CreateAccount(ctx, "https://x.com", "bob", "old", "c1", "t1")
	require.NoError(t, err)

	require.NoError(t, store.UpdateCredentials(ctx, acc.Key, "new"))
	pw, err := store.Password(ctx, acc.Key)
	require.NoError(t, err)
	assert.Equal(t, "new", pw)

	cookie, token, err := store.Session(ctx, acc.Key)
	require.NoError(t, err)
	assert.Equal(t, "c1", cookie)
	assert.Equal(t, "t1", token)

	assert.ErrorIs(t, store.UpdateCredentials(ctx, "nobody@x.com", "pw"), models.ErrUnknownAccount)
}

func TestCreateAccount_SealsPassword(t *testing.T) {
	repo := newMemRepo()
	store := newTestStore(t, repo)
	ctx := context.Background()

	acc, err := store.CreateAccount(ctx, "https://Photos.example.com/gallery", "Bob", "s3cret", "c1", "t1")
	require.NoError(t, err)
	assert.False(t, acc.IsGuest)
	assert.Nil(t, acc.Secret)

	stored, err := repo.Get(ctx, acc.Key)
	require.NoError(t, err)
	assert.NotEmpty(t, stored.Secret)
	assert.NotContains(t, string(stored.Secret), "s3cret")

	pw, err := store.Password(ctx, acc.Key)
	require.NoError(t, err)
	assert.Equal(t, "s3cret", pw)

	accs, err := store.ListAccounts(ctx)
	require.NoError(t, err)
	require.Len(t, accs, 1)
	assert.Nil(t, accs[0].Secret)
}

func TestCreateAccount_Duplicate(t *testing.T) {
	store := newTestStore(t, newMemRepo())
	ctx := context.Background()

	_, err := store.CreateAccount(ctx, "https://x.com/a", "bob", "pw", "", "")
	require.NoError(t, err)
	_, err = store.CreateAccount(ctx, "HTTPS://X.COM/a/", "bob", "other", "", "")
	assert.ErrorIs(t, err, models.ErrDuplicateAccount)

	accs, err := store.ListAccounts(ctx)
	require.NoError(t, err)
	assert.Len(t, accs, 1)
}

func TestCreateAccount_InvalidURL(t *testing.T) {
	store := newTestStore(t, newMemRepo())
	_, err := store.CreateAccount(context.Background(), "not a url", "bob", "pw", "", "")
	assert.ErrorIs(t, err, models.ErrInvalidURL)
}

func TestExists(t *testing.T) {
	store := newTestStore(t, newMemRepo())
	ctx := context.Background()

	ok, err := store.Exists(ctx, "https://x.com", "bob")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = store.CreateAccount(ctx, "https://x.com", "bob", "pw", "", "")
	require.NoError(t, err)

	ok, err = store.Exists(ctx, "https://X.com/", "bob")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.Exists(ctx, "https://x.com", "Bob")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestProjections(t *testing.T) {
	store := newTestStore(t, newMemRepo())
	ctx := context.Background()

	acc, err := store.CreateAccount(ctx, "https://x.com/g", "bob", "pw", "cookie", "token")
	require.NoError(t, err)

	site, err := store.SiteURL(ctx, acc.Key)
	require.NoError(t, err)
	assert.Equal(t, "https://x.com/g", site)

	user, err := store.Username(ctx, acc.Key)
	require.NoError(t, err)
	assert.Equal(t, "bob", user)

	cookie, err := store.Cookie(ctx, acc.Key)
	require.NoError(t, err)
	assert.Equal(t, "cookie", cookie)

	token, err := store.Token(ctx, acc.Key)
	require.NoError(t, err)
	assert.Equal(t, "token", token)

	for name, fn := range map[string]func(context.Context, string) (string, error){
		"site":     store.SiteURL,
		"username": store.Username,
		"cookie":   store.Cookie,
		"token":    store.Token,
		"password": store.Password,
	} {
		_, err := fn(ctx, "nobody@nowhere")
		assert.ErrorIs(t, err, models.ErrUnknownAccount, name)
	}
}

func TestSetActiveAccount_DefaultsToFirstWithoutPersisting(t *testing.T) {
	repo := newMemRepo()
	store := newTestStore(t, repo)
	ctx := context.Background()

	a, err := store.CreateAccount(ctx, "https://a.com", "alice", "pw", "", "")
	require.NoError(t, err)
	_, err = store.CreateAccount(ctx, "https://b.com", "bob", "pw", "", "")
	require.NoError(t, err)

	store.SetActiveAccount(ctx, "")
	require.NotNil(t, store.Current())
	assert.Equal(t, a.Key, store.Current().Key)

	_, err = store.CreateAccount(ctx, "https://c.com", "carol", "pw", "", "")
	require.NoError(t, err)
	store.SetActiveAccount(ctx, "")
	assert.Equal(t, a.Key, store.Current().Key)

	store.SetActiveAccount(ctx, "no-such-account")
	assert.Equal(t, a.Key, store.Current().Key)

	assert.Zero(t, repo.setPref)
	assert.Empty(t, repo.prefs[ActiveAccountPreference])
}

func TestSetActiveAccount_ExactMatchPersistsAndReplays(t *testing.T) {
	repo := newMemRepo()
	store := newTestStore(t, repo)
	ctx := context.Background()

	_, err := store.CreateAccount(ctx, "https://a.com", "alice", "pw", "", "")
	require.NoError(t, err)
	b, err := store.CreateAccount(ctx, "https://b.com", "bob", "pw", "", "")
	require.NoError(t, err)

	store.SetActiveAccount(ctx, b.Key)
	assert.Equal(t, b.Key, repo.prefs[ActiveAccountPreference])

	var got []*models.Account
	sub := store.ActiveAccount().Subscribe(func(acc *models.Account) {
		got = append(got, acc)
	})
	defer sub.Unsubscribe()

	require.Len(t, got, 1)
	assert.Equal(t, b.Key, got[0].Key)
}

func TestSetActiveAccount_EmptyStore(t *testing.T) {
	store := newTestStore(t, newMemRepo())
	store.SetActiveAccount(context.Background(), "anything")
	assert.Nil(t, store.Current())
}

func TestSetActiveAccount_ListErrorDegradesToNone(t *testing.T) {
	repo := newMemRepo()
	store := newTestStore(t, repo)
	ctx := context.Background()

	acc, err := store.CreateAccount(ctx, "https://a.com", "alice", "pw", "", "")
	require.NoError(t, err)
	store.SetActiveAccount(ctx, acc.Key)
	require.NotNil(t, store.Current())

	repo.listErr = errors.New("disk gone")
	store.SetActiveAccount(ctx, acc.Key)
	assert.Nil(t, store.Current())
}

func TestSetActiveAccount_ObserversSeeCallOrder(t *testing.T) {
	store := newTestStore(t, newMemRepo())
	ctx := context.Background()

	var keys []string
	for _, u := range []string{"a", "b", "c"} {
		acc, err := store.CreateAccount(ctx, "https://x.com", u, "pw", "", "")
		require.NoError(t, err)
		keys = append(keys, acc.Key)
	}

	var seen []string
	sub := store.ActiveAccount().Subscribe(func(acc *models.Account) {
		if acc != nil {
			seen = append(seen, acc.Key)
		}
	})
	defer sub.Unsubscribe()

	store.SetActiveAccount(ctx, keys[2])
	store.SetActiveAccount(ctx, keys[1])
	store.SetActiveAccount(ctx, keys[0])

	assert.Equal(t, []string{keys[2], keys[1], keys[0]}, seen)
}

func TestNewAccountStore_RestoresLastActive(t *testing.T) {
	repo := newMemRepo()
	repo.accs = []models.Account{
		{Key: "alice@a.com", SiteURL: "https://a.com", Username: "alice"},
		{Key: "bob@b.com", SiteURL: "https://b.com", Username: "bob"},
	}
	repo.prefs[ActiveAccountPreference] = "bob@b.com"

	store := newTestStore(t, repo)
	require.NotNil(t, store.Current())
	assert.Equal(t, "bob@b.com", store.Current().Key)
}

func TestNewAccountStore_RequiresCollaborators(t *testing.T) {
	_, err := NewAccountStore(context.Background(), nil, nil, nil, nil)
	assert.Error(t, err)
}

func TestUpdateSession_RefreshesActive(t *testing.T) {
	store := newTestStore(t, newMemRepo())
	ctx := context.Background()

	acc, err := store.CreateAccount(ctx, "https://a.com", "alice", "pw", "", "")
	require.NoError(t, err)
	store.SetActiveAccount(ctx, acc.Key)

	require.NoError(t, store.UpdateSession(ctx, acc.Key, "c", "t"))
	assert.Equal(t, "c", store.Current().SessionCookie)
	assert.Equal(t, "t", store.Current().AuthToken)

	require.NoError(t, store.ClearSession(ctx, acc.Key))
	assert.Empty(t, store.Current().SessionCookie)

	exists, err := store.Exists(ctx, "https://a.com", "alice")
	require.NoError(t, err)
	assert.True(t, exists)

	assert.ErrorIs(t, store.UpdateSession(ctx, "ghost@x", "c", "t"), models.ErrUnknownAccount)
}

func TestUpdateSession_ConcurrentLoginLogoutKeepsPair(t *testing.T) {
	store := newTestStore(t, newMemRepo())
	ctx := context.Background()

	acc, err := store.CreateAccount(ctx, "https://a.com", "alice", "pw", "", "")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(3)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, store.UpdateSession(ctx, acc.Key, fmt.Sprintf("cookie-%d", i), fmt.Sprintf("token-%d", i)))
		}(i)
		go func() {
			defer wg.Done()
			assert.NoError(t, store.ClearSession(ctx, acc.Key))
		}()
		go func() {
			defer wg.Done()
			cookie, token, err := store.Session(ctx, acc.Key)
			assert.NoError(t, err)
			assert.Equal(t, strings.TrimPrefix(cookie, "cookie-"), strings.TrimPrefix(token, "token-"))
		}()
	}
	wg.Wait()

	cookie, token, err := store.Session(ctx, acc.Key)
	require.NoError(t, err)
	assert.Equal(t, strings.TrimPrefix(cookie, "cookie-"), strings.TrimPrefix(token, "token-"))
}

func TestRemoveAccount_ReselectsActive(t *testing.T) {
	repo := newMemRepo()
	store := newTestStore(t, repo)
	ctx := context.Background()

	a, err := store.CreateAccount(ctx, "https://a.com", "alice", "pw", "", "")
	require.NoError(t, err)
	b, err := store.CreateAccount(ctx, "https://b.com", "bob", "pw", "", "")
	require.NoError(t, err)

	store.SetActiveAccount(ctx, b.Key)
	require.NoError(t, store.RemoveAccount(ctx, b.Key))
	require.NotNil(t, store.Current())
	assert.Equal(t, a.Key, store.Current().Key)

	require.NoError(t, store.RemoveAccount(ctx, a.Key))
	assert.Nil(t, store.Current())

	ok, err := store.IsLoggedIn(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	assert.ErrorIs(t, store.RemoveAccount(ctx, a.Key), models.ErrUnknownAccount)

	for _, key := range []string{a.Key, b.Key} {
		_, held := store.locks.Load(key)
		assert.False(t, held, "lock of removed account %s is kept", key)
	}
}
