package http

import (
	"crypto/subtle"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Users maps user names to passwords for the development gallery.
type Users map[string]string

// ParseUsers reads a "name:password,name:password" list.
func ParseUsers(list string) (Users, error) {
	users := Users{}
	for _, pair := range strings.Split(list, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		name, pass, ok := strings.Cut(pair, ":")
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid user entry %q", pair)
		}
		users[name] = pass
	}
	return users, nil
}

// Verify reports whether password matches the stored one.
func (u Users) Verify(name, password string) bool {
	want, ok := u[name]
	if !ok {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(want), []byte(password)) == 1
}

type session struct {
	user  string
	token string
}

// MemorySessions is an in-memory session table keyed by pwg_id.
// All methods are safe for concurrent use.
type MemorySessions struct {
	mu       sync.RWMutex
	sessions map[string]session
}

// NewMemorySessions creates an empty session table.
func NewMemorySessions() *MemorySessions {
	return &MemorySessions{sessions: make(map[string]session)}
}

// Create opens a session for user and returns its id.
func (s *MemorySessions) Create(user string) string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	token := strings.ReplaceAll(uuid.NewString(), "-", "")

	s.mu.Lock()
	s.sessions[id] = session{user: user, token: token}
	s.mu.Unlock()
	return id
}

// Lookup returns the user owning the session.
func (s *MemorySessions) Lookup(id string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	return sess.user, ok
}

// Token returns the pwg_token of the session.
func (s *MemorySessions) Token(id string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessions[id].token
}

// Delete closes the session. Unknown ids are ignored.
func (s *MemorySessions) Delete(id string) {
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
}

// Len returns the number of open sessions.
func (s *MemorySessions) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
