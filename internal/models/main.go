// Package models defines the core data structures for gallery accounts,
// their sessions and the results of session protocol calls.
package models

// Account is a persisted identity bound to one gallery site and one username
// (or the guest identity).
type Account struct {
	// Key is the canonical account name, see accountkey.Derive.
	Key string `json:"key"`
	// SiteURL is the gallery base URL as originally supplied.
	SiteURL string `json:"site_url"`
	// Username is the login name, or the guest identifier for guest accounts.
	Username string `json:"username"`
	// IsGuest is true when the account was created without credentials.
	IsGuest bool `json:"is_guest"`
	// SessionCookie is the pwg_id value obtained from the last successful login.
	SessionCookie string `json:"session_cookie,omitempty"`
	// AuthToken is the pwg_token some API methods require.
	AuthToken string `json:"auth_token,omitempty"`
	// Secret holds the sealed password. It never leaves the store boundary.
	Secret []byte `json:"-"`
}

// Status is the payload of pwg.session.getStatus.
type Status struct {
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

// LoginResult is returned by a completed login exchange.
type LoginResult struct {
	URL      string
	Username string
	Password string
	Cookie   string
	Status   *Status
}

// Token returns the secondary auth token reported by the status call.
func (r *LoginResult) Token() string {
	if r == nil || r.Status == nil {
		return ""
	}
	return r.Status.PwgToken
}

// StatusResult wraps a status payload with the effective base URL.
type StatusResult struct {
	URL    string
	Status *Status
}

// LogoutResult is the uniform acknowledgement of a logout call.
type LogoutResult struct {
	// LoggedOut is always true once the server answered.
	LoggedOut bool
	// ServerAcknowledged reports whether the server itself reported success.
	ServerAcknowledged bool
}
