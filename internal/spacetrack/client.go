// Package spacetrack maintains an authenticated session with the
// space-track.org API.
//
// The session cookie lives in the http.Client's jar. When the remote side
// rejects a request as unauthorized, the client performs exactly one
// renewal handshake and retries the request exactly once; a second
// rejection surfaces as an AuthError. There is no retry loop beyond that.
package spacetrack

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/TilBlechschmidt/gpcache/internal/metrics"
)

const (
	defaultBaseURL = "https://www.space-track.org"
	loginPath      = "ajaxauth/login"

	// Responses larger than this are treated as errors instead of being
	// buffered into memory.
	defaultMaxResponseBytes = 50 << 20

	// A handshake completed this recently satisfies a renewal request
	// without another round-trip, so concurrent callers that all observe
	// a 401 converge on one fresh session.
	defaultRenewGrace = 5 * time.Second
)

// Config holds the credentials and endpoint for a Space-Track session.
type Config struct {
	Identity string
	Password string
	BaseURL  string // defaults to the public Space-Track API
}

// Client is an authenticated Space-Track session. Safe for concurrent use.
// No internal lock is held across a network call.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *slog.Logger

	maxResponseBytes int64
	renewGrace       time.Duration

	mu       sync.Mutex
	lastAuth time.Time
}

// New creates a Client and performs the initial login handshake.
// Construction fails if the handshake fails.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("creating cookie jar: %w", err)
	}

	c := &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Jar:     jar,
			Timeout: 30 * time.Second,
		},
		logger:           logger,
		maxResponseBytes: defaultMaxResponseBytes,
		renewGrace:       defaultRenewGrace,
	}

	if err := c.login(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// LastAuthenticated returns the completion time of the most recent
// successful handshake.
func (c *Client) LastAuthenticated() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastAuth
}

// Query issues a GET for the given path, relative to the base URL, over
// the authenticated session and returns the response body.
func (c *Client) Query(ctx context.Context, path string) ([]byte, error) {
	body, unauthorized, err := c.send(ctx, path)
	if err != nil || !unauthorized {
		return body, err
	}

	c.logger.Info("session rejected by upstream, renewing", "path", path)
	if err := c.renew(ctx); err != nil {
		return nil, &AuthError{Err: fmt.Errorf("renewing session: %w", err)}
	}

	body, unauthorized, err = c.send(ctx, path)
	if err != nil {
		return nil, err
	}
	if unauthorized {
		return nil, &AuthError{Err: errors.New("request unauthorized after session renewal")}
	}
	return body, nil
}

// login posts the credentials to the login endpoint. The session cookie is
// captured by the client's jar.
func (c *Client) login(ctx context.Context) error {
	form := url.Values{
		"identity": {c.cfg.Identity},
		"password": {c.cfg.Password},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/"+loginPath, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("creating login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("posting login: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, c.maxResponseBytes))

	if resp.StatusCode != http.StatusOK {
		return &AuthError{Err: fmt.Errorf("login rejected with status %d", resp.StatusCode)}
	}

	c.mu.Lock()
	c.lastAuth = time.Now()
	c.mu.Unlock()

	c.logger.Info("authenticated with upstream", "identity", c.cfg.Identity)
	return nil
}

// renew refreshes the session after an observed 401. A handshake completed
// by another caller within the grace window is reused as-is.
func (c *Client) renew(ctx context.Context) error {
	c.mu.Lock()
	recent := time.Since(c.lastAuth) < c.renewGrace
	c.mu.Unlock()
	if recent {
		return nil
	}

	if err := c.login(ctx); err != nil {
		return err
	}
	metrics.IncSessionRenewals()
	return nil
}

// send performs a single GET. The bool result reports whether the remote
// side rejected the session as unauthorized.
func (c *Client) send(ctx context.Context, path string) ([]byte, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/"+path, nil)
	if err != nil {
		return nil, false, fmt.Errorf("creating request for %s: %w", path, err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, false, fmt.Errorf("querying %s: %w", path, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized:
		io.Copy(io.Discard, io.LimitReader(resp.Body, c.maxResponseBytes))
		return nil, true, nil
	default:
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, false, &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxResponseBytes+1))
	if err != nil {
		return nil, false, fmt.Errorf("reading response from %s: %w", path, err)
	}
	if int64(len(body)) > c.maxResponseBytes {
		return nil, false, fmt.Errorf("response from %s exceeds %d byte limit", path, c.maxResponseBytes)
	}
	return body, false, nil
}
