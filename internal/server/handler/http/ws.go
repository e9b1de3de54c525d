// Package http provides a development implementation of the gallery web
// service (ws.php) covering the session methods: login, getStatus, logout.
package http

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/atinyakov/GalleryKeeper/internal/middleware"
)

// Error codes used by the gallery web service.
const (
	CodeInvalidCredentials = 999
	CodeInvalidMethod      = 501
	CodeMethodNotAllowed   = 405
)

// SessionStore is the session table used by WSHandler.
type SessionStore interface {
	middleware.SessionLookup
	Create(user string) string
	Token(id string) string
	Delete(id string)
}

// WSHandler serves ws.php.
type WSHandler struct {
	// Users holds the accepted credentials.
	Users Users
	// Sessions tracks open sessions.
	Sessions SessionStore
	// Version is reported by getStatus.
	Version string
	// Now is used for current_datetime; time.Now when nil.
	Now func() time.Time
}

type envelope struct {
	Stat    string `json:"stat"`
	Result  any    `json:"result,omitempty"`
	Err     int    `json:"err,omitempty"`
	Message string `json:"message,omitempty"`
}

type statusPayload struct {
	Username            string   `json:"username"`
	Status              string   `json:"status"`
	Theme               string   `json:"theme"`
	Language            string   `json:"language"`
	PwgToken            string   `json:"pwg_token"`
	Charset             string   `json:"charset"`
	CurrentDatetime     string   `json:"current_datetime"`
	Version             string   `json:"version"`
	AvailableSizes      []string `json:"available_sizes"`
	UploadFileTypes     string   `json:"upload_file_types"`
	UploadFormChunkSize int      `json:"upload_form_chunk_size"`
}

// Serve dispatches on the "method" parameter.
func (h *WSHandler) Serve(w http.ResponseWriter, r *http.Request) {
	switch r.FormValue("method") {
	case "pwg.session.login":
		h.login(w, r)
	case "pwg.session.getStatus":
		h.status(w, r)
	case "pwg.session.logout":
		h.logout(w, r)
	default:
		writeJSON(w, envelope{Stat: "fail", Err: CodeInvalidMethod, Message: "Method name is not valid"})
	}
}

func (h *WSHandler) login(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, envelope{Stat: "fail", Err: CodeMethodNotAllowed, Message: "This method requires HTTP POST"})
		return
	}

	username := r.PostFormValue("username")
	if !h.Users.Verify(username, r.PostFormValue("password")) {
		writeJSON(w, envelope{Stat: "fail", Err: CodeInvalidCredentials, Message: "Invalid username/password"})
		return
	}

	id := h.Sessions.Create(username)
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
	})
	writeJSON(w, envelope{Stat: "ok", Result: true})
}

func (h *WSHandler) status(w http.ResponseWriter, r *http.Request) {
	now := time.Now
	if h.Now != nil {
		now = h.Now
	}

	p := statusPayload{
		Username:            "guest",
		Status:              "guest",
		Theme:               "modus",
		Language:            "en_GB",
		Charset:             "utf-8",
		CurrentDatetime:     now().UTC().Format(time.DateTime),
		Version:             h.Version,
		AvailableSizes:      []string{"square", "thumb", "2small", "xsmall", "small", "medium", "large"},
		UploadFileTypes:     "jpg,jpeg,png,gif",
		UploadFormChunkSize: 500,
	}
	if user := middleware.GetUserFromContext(r.Context()); user != "" {
		p.Username = user
		p.Status = "normal"
		p.PwgToken = h.Sessions.Token(middleware.GetSessionIDFromContext(r.Context()))
	}
	writeJSON(w, envelope{Stat: "ok", Result: p})
}

func (h *WSHandler) logout(w http.ResponseWriter, r *http.Request) {
	if id := middleware.GetSessionIDFromContext(r.Context()); id != "" {
		h.Sessions.Delete(id)
	}
	http.SetCookie(w, &http.Cookie{Name: middleware.SessionCookieName, Value: "", Path: "/", MaxAge: -1})
	writeJSON(w, envelope{Stat: "ok", Result: true})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
