// Package gallery implements the HTTP transport for the Piwigo web service
// API (ws.php) used by the session client: login, status and logout.
package gallery

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/atinyakov/GalleryKeeper/internal/models"
	"go.uber.org/zap"
)

// API method names.
const (
	MethodLogin     = "pwg.session.login"
	MethodGetStatus = "pwg.session.getStatus"
	MethodLogout    = "pwg.session.logout"
)

const (
	endpoint     = "ws.php"
	maxBodyBytes = 1 << 20
	statOK       = "ok"
)

// ErrMalformedResponse is returned when a response body is empty or is not
// a ws.php JSON envelope.
var ErrMalformedResponse = errors.New("empty or malformed response")

// APIError is a ws.php failure envelope ({"stat":"fail","err":...}).
type APIError struct {
	Code    int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("gallery api error %d: %s", e.Code, e.Message)
}

// LoginBody is the decoded body of a pwg.session.login response.
type LoginBody struct {
	Stat    string `json:"stat"`
	Result  bool   `json:"result"`
	Err     int    `json:"err"`
	Message string `json:"message"`
}

// LoginResponse carries the login body together with the transport headers
// the session cookie is extracted from. Body is nil when the server sent no
// body or one that could not be decoded.
type LoginResponse struct {
	StatusCode int
	Header     http.Header
	Body       *LoginBody
}

// loginEnvelope tells an absent result apart from result=false.
type loginEnvelope struct {
	Stat    string `json:"stat"`
	Result  *bool  `json:"result"`
	Err     int    `json:"err"`
	Message string `json:"message"`
}

type statusEnvelope struct {
	Stat    string         `json:"stat"`
	Result  *models.Status `json:"result"`
	Err     int            `json:"err"`
	Message string         `json:"message"`
}

type ackEnvelope struct {
	Stat string `json:"stat"`
}

// Client talks to ws.php below a per-call base URL.
type Client struct {
	HTTP *http.Client
	log  *zap.Logger
}

// NewClient creates a Client. A nil logger disables logging.
func NewClient(httpClient *http.Client, log *zap.Logger) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{HTTP: httpClient, log: log}
}

// Authenticate posts the credentials to pwg.session.login. An error is
// returned only when no HTTP response was received.
func (c *Client) Authenticate(ctx context.Context, baseURL, username, password string) (*LoginResponse, error) {
	form := url.Values{}
	form.Set("username", username)
	form.Set("password", password)

	resp, body, err := c.do(ctx, baseURL, MethodLogin, "", form)
	if err != nil {
		return nil, err
	}

	out := &LoginResponse{StatusCode: resp.StatusCode, Header: resp.Header}
	var env loginEnvelope
	if len(bytes.TrimSpace(body)) > 0 && json.Unmarshal(body, &env) == nil && env.Result != nil {
		out.Body = &LoginBody{Stat: env.Stat, Result: *env.Result, Err: env.Err, Message: env.Message}
	}
	return out, nil
}

// GetStatus calls pwg.session.getStatus, within the given session when
// cookie is not empty.
func (c *Client) GetStatus(ctx context.Context, baseURL, cookie string) (*models.Status, error) {
	_, body, err := c.do(ctx, baseURL, MethodGetStatus, cookie, nil)
	if err != nil {
		return nil, err
	}

	var env statusEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if env.Stat != statOK {
		if env.Err != 0 || env.Message != "" {
			return nil, &APIError{Code: env.Err, Message: env.Message}
		}
		return nil, ErrMalformedResponse
	}
	if env.Result == nil {
		return nil, ErrMalformedResponse
	}
	return env.Result, nil
}

// Logout calls pwg.session.logout within the given session and reports
// whether the server answered with stat "ok".
func (c *Client) Logout(ctx context.Context, baseURL, cookie string) (bool, error) {
	_, body, err := c.do(ctx, baseURL, MethodLogout, cookie, nil)
	if err != nil {
		return false, err
	}
	var env ackEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return false, nil
	}
	return env.Stat == statOK, nil
}

// do issues one ws.php call. form == nil means GET.
func (c *Client) do(ctx context.Context, baseURL, method, cookie string, form url.Values) (*http.Response, []byte, error) {
	target, err := endpointURL(baseURL, method)
	if err != nil {
		return nil, nil, err
	}

	var req *http.Request
	if form != nil {
		req, err = http.NewRequestWithContext(ctx, http.MethodPost, target, strings.NewReader(form.Encode()))
		if err == nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
	} else {
		req, err = http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("build %s request: %w", method, err)
	}
	req.Header.Set("Accept", "application/json")
	if cookie != "" {
		req.Header.Set("Cookie", SessionHeader(cookie))
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("%s failed: %w", method, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, nil, fmt.Errorf("read %s response: %w", method, err)
	}

	c.log.Debug("gallery api call",
		zap.String("method", method),
		zap.String("url", target),
		zap.Int("status", resp.StatusCode),
		zap.Int("bytes", len(body)),
	)
	return resp, body, nil
}

func endpointURL(baseURL, method string) (string, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("%w %q: %v", models.ErrInvalidURL, baseURL, err)
	}
	q := url.Values{}
	q.Set("format", "json")
	q.Set("method", method)
	return base.ResolveReference(&url.URL{Path: endpoint, RawQuery: q.Encode()}).String(), nil
}
