package http_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	handler "github.com/atinyakov/GalleryKeeper/internal/server/handler/http"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type wsResponse struct {
	Stat    string          `json:"stat"`
	Result  json.RawMessage `json:"result"`
	Err     int             `json:"err"`
	Message string          `json:"message"`
}

func newTestRouter(t *testing.T, prefix string) (http.Handler, *handler.MemorySessions) {
	t.Helper()
	sessions := handler.NewMemorySessions()
	ws := &handler.WSHandler{
		Users:    handler.Users{"alice": "secret"},
		Sessions: sessions,
		Version:  "14.5.0",
		Now:      func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) },
	}
	return handler.NewRouter(ws, prefix, zap.NewNop()), sessions
}

func call(t *testing.T, h http.Handler, method, target string, form url.Values, cookie *http.Cookie) (*http.Response, wsResponse) {
	t.Helper()
	var req *http.Request
	if form != nil {
		req = httptest.NewRequest(method, target, strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	res := rec.Result()

	var body wsResponse
	require.NoError(t, json.NewDecoder(res.Body).Decode(&body))
	return res, body
}

func sessionCookie(res *http.Response) *http.Cookie {
	for _, c := range res.Cookies() {
		if c.Name == "pwg_id" {
			return c
		}
	}
	return nil
}

func TestWS_LoginStatusLogout(t *testing.T) {
	h, sessions := newTestRouter(t, "/")

	res, body := call(t, h, http.MethodPost, "/ws.php?format=json&method=pwg.session.login",
		url.Values{"username": {"alice"}, "password": {"secret"}}, nil)
	require.Equal(t, "ok", body.Stat)
	assert.JSONEq(t, "true", string(body.Result))
	cookie := sessionCookie(res)
	require.NotNil(t, cookie)
	assert.Equal(t, 1, sessions.Len())

	_, body = call(t, h, http.MethodGet, "/ws.php?format=json&method=pwg.session.getStatus", nil, cookie)
	require.Equal(t, "ok", body.Stat)
	var status map[string]any
	require.NoError(t, json.Unmarshal(body.Result, &status))
	assert.Equal(t, "alice", status["username"])
	assert.Equal(t, "normal", status["status"])
	assert.Equal(t, sessions.Token(cookie.Value), status["pwg_token"])
	assert.Equal(t, "2026-01-02 03:04:05", status["current_datetime"])

	_, body = call(t, h, http.MethodGet, "/ws.php?format=json&method=pwg.session.logout", nil, cookie)
	assert.Equal(t, "ok", body.Stat)
	assert.Equal(t, 0, sessions.Len())

	_, body = call(t, h, http.MethodGet, "/ws.php?format=json&method=pwg.session.getStatus", nil, cookie)
	require.NoError(t, json.Unmarshal(body.Result, &status))
	assert.Equal(t, "guest", status["username"])
}

func TestWS_LoginRejected(t *testing.T) {
	h, sessions := newTestRouter(t, "/")

	res, body := call(t, h, http.MethodPost, "/ws.php?format=json&method=pwg.session.login",
		url.Values{"username": {"alice"}, "password": {"wrong"}}, nil)
	assert.Equal(t, "fail", body.Stat)
	assert.Equal(t, handler.CodeInvalidCredentials, body.Err)
	assert.Equal(t, "Invalid username/password", body.Message)
	assert.Nil(t, sessionCookie(res))
	assert.Equal(t, 0, sessions.Len())
}

func TestWS_LoginRequiresPost(t *testing.T) {
	h, _ := newTestRouter(t, "/")
	_, body := call(t, h, http.MethodGet, "/ws.php?format=json&method=pwg.session.login&username=alice&password=secret", nil, nil)
	assert.Equal(t, "fail", body.Stat)
	assert.Equal(t, handler.CodeMethodNotAllowed, body.Err)
}

func TestWS_GuestStatus(t *testing.T) {
	h, _ := newTestRouter(t, "/")
	_, body := call(t, h, http.MethodGet, "/ws.php?format=json&method=pwg.session.getStatus", nil,
		&http.Cookie{Name: "pwg_id", Value: "stale"})
	require.Equal(t, "ok", body.Stat)
	var status map[string]any
	require.NoError(t, json.Unmarshal(body.Result, &status))
	assert.Equal(t, "guest", status["status"])
	assert.Equal(t, "", status["pwg_token"])
	assert.Equal(t, "14.5.0", status["version"])
}

func TestWS_UnknownMethod(t *testing.T) {
	h, _ := newTestRouter(t, "/")
	_, body := call(t, h, http.MethodGet, "/ws.php?format=json&method=pwg.images.add", nil, nil)
	assert.Equal(t, "fail", body.Stat)
	assert.Equal(t, handler.CodeInvalidMethod, body.Err)
}

func TestRouter_Prefix(t *testing.T) {
	h, _ := newTestRouter(t, "piwigo")

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ws.php?method=pwg.session.getStatus", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	_, body := call(t, h, http.MethodGet, "/piwigo/ws.php?format=json&method=pwg.session.getStatus", nil, nil)
	assert.Equal(t, "ok", body.Stat)
}

func TestParseUsers(t *testing.T) {
	users, err := handler.ParseUsers("alice:secret, bob:p:w ,")
	require.NoError(t, err)
	assert.True(t, users.Verify("alice", "secret"))
	assert.True(t, users.Verify("bob", "p:w"))
	assert.False(t, users.Verify("alice", "nope"))
	assert.False(t, users.Verify("carol", ""))

	_, err = handler.ParseUsers("justname")
	assert.Error(t, err)
}
