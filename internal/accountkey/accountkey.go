// Package accountkey derives the canonical account name used to identify a
// gallery account across restarts.
package accountkey

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/atinyakov/GalleryKeeper/internal/models"
)

const (
	// GuestName is the username stored for accounts created without credentials.
	GuestName = "guest"
	// Template combines the username and the normalized host+path.
	// Changing it invalidates every stored account.
	Template = "%s@%s"
)

// Derive returns the account key for the given site URL and username.
//
// Host and path are lower-cased and a single trailing slash is dropped; the
// username keeps its case. An empty username is replaced by GuestName.
// '@' inside the path is escaped so the last '@' of a key always separates
// the username from the site.
func Derive(siteURL, username string) (string, error) {
	u, err := parse(siteURL)
	if err != nil {
		return "", err
	}

	site := u.Host + strings.ReplaceAll(u.Path, "@", "%40")
	site = strings.TrimSuffix(site, "/")

	if username == "" {
		username = GuestName
	}
	return fmt.Sprintf(Template, username, strings.ToLower(site)), nil
}

// BaseURL validates siteURL and returns it with a trailing slash so relative
// API paths resolve below it. The original casing is kept.
func BaseURL(siteURL string) (string, error) {
	if _, err := parse(siteURL); err != nil {
		return "", err
	}
	if !strings.HasSuffix(siteURL, "/") {
		siteURL += "/"
	}
	return siteURL, nil
}

func parse(siteURL string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(siteURL))
	if err != nil {
		return nil, fmt.Errorf("%w %q: %v", models.ErrInvalidURL, siteURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w %q: unsupported scheme %q", models.ErrInvalidURL, siteURL, u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("%w %q: empty host", models.ErrInvalidURL, siteURL)
	}
	return u, nil
}
