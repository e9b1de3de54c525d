// Package middleware provides HTTP middlewares for session resolution and logging.
package middleware

import (
	"context"
	"net/http"
)

type ctxKey string

const (
	userKey    ctxKey = "user"
	sessionKey ctxKey = "session"
)

// SessionCookieName is the cookie the gallery keeps its session id in.
const SessionCookieName = "pwg_id"

// SessionLookup resolves a session id to the user it belongs to.
type SessionLookup interface {
	Lookup(id string) (user string, ok bool)
}

// SessionAuth resolves the pwg_id cookie of the incoming request.
//
// Requests without a cookie, or with an unknown one, are passed through
// unchanged and are treated as guest requests downstream. For a known
// session the user and the session id are stored in the request context.
func SessionAuth(sessions SessionLookup) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			c, err := r.Cookie(SessionCookieName)
			if err != nil || c.Value == "" {
				next.ServeHTTP(w, r)
				return
			}
			user, ok := sessions.Lookup(c.Value)
			if !ok {
				next.ServeHTTP(w, r)
				return
			}
			ctx := context.WithValue(r.Context(), userKey, user)
			ctx = context.WithValue(ctx, sessionKey, c.Value)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetUserFromContext returns the authenticated user, or "" for guests.
func GetUserFromContext(ctx context.Context) string {
	if s, ok := ctx.Value(userKey).(string); ok {
		return s
	}
	return ""
}

// GetSessionIDFromContext returns the resolved session id, or "".
func GetSessionIDFromContext(ctx context.Context) string {
	if s, ok := ctx.Value(sessionKey).(string); ok {
		return s
	}
	return ""
}
