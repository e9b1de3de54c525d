package gallery

import "net/http"

// SessionCookieName is the cookie carrying the gallery session id.
const SessionCookieName = "pwg_id"

// ExtractCookie returns the value of the named cookie set by a response,
// or "" when the headers do not set it. When the cookie is set more than
// once the last value wins, as a browser would keep it.
func ExtractCookie(name string, header http.Header) string {
	resp := http.Response{Header: header}
	value := ""
	for _, c := range resp.Cookies() {
		if c.Name == name {
			value = c.Value
		}
	}
	return value
}

// SessionHeader formats the Cookie request header for a session id.
func SessionHeader(cookie string) string {
	return (&http.Cookie{Name: SessionCookieName, Value: cookie}).String()
}
