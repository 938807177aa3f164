package session

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/mapwatch/mapwatch/internal/config"
)

const (
	// loginPath serves the product's login form; the form field names below
	// are fixed by the product.
	loginPath     = "/public/login.htm"
	fieldUsername = "loginusername"
	fieldPassword = "loginpassword"

	// mapOnlyPath renders a single map without the surrounding frameset —
	// the fragment the classifier consumes.
	mapOnlyPath = "/controls/maponly.htm"

	// mapShowPath is the human-facing map page linked from notifications.
	mapShowPath = "/mapshow.htm"

	requestTimeout = 30 * time.Second

	// maxFragmentSize caps how much of a map page is read into memory.
	maxFragmentSize = 4 << 20
)

// ErrAuth marks authentication failures: bad credentials or a login endpoint
// that cannot be reached. Callers treat it as fatal — nothing can be
// monitored without a session.
var ErrAuth = errors.New("session: authentication failed")

// Gateway is the authenticated dashboard session. It must be logged in once
// via Login before any fetch. The zero value is not usable; use New.
//
// A Gateway represents one stateful server-side session, so concurrent
// fetches through the same Gateway are serialized internally.
type Gateway struct {
	baseURL  string
	username string
	password string
	client   *http.Client

	mu       sync.Mutex
	loggedIn bool
}

// New builds a Gateway for the given dashboard. The session cookie jar and
// TLS settings are prepared here; no network traffic happens until Login.
func New(cfg config.DashboardConfig) (*Gateway, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("session: cookie jar: %w", err)
	}

	transport := &http.Transport{
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: cfg.TLS.InsecureSkipVerify, //nolint:gosec // user-configured
		},
	}

	return &Gateway{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		username: cfg.Username,
		password: cfg.Password(),
		client: &http.Client{
			Jar:       jar,
			Transport: transport,
			Timeout:   requestTimeout,
		},
	}, nil
}

// Login submits the dashboard login form and verifies the session was
// established. It reports ErrAuth (wrapped) on bad credentials or an
// unreachable login endpoint.
func (g *Gateway) Login(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	form := url.Values{
		fieldUsername: {g.username},
		fieldPassword: {g.password},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		g.baseURL+loginPath, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("%w: build request: %v", ErrAuth, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrAuth, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxFragmentSize))

	if resp.StatusCode >= 400 {
		return fmt.Errorf("%w: login returned HTTP %d", ErrAuth, resp.StatusCode)
	}

	// The product redirects away from the login page on success and renders
	// the form again on bad credentials.
	finalURL := resp.Request.URL.String()
	if strings.Contains(strings.ToLower(finalURL), "login") {
		return fmt.Errorf("%w: still on login page, check credentials", ErrAuth)
	}

	g.loggedIn = true
	return nil
}

// FetchFragment retrieves the markup fragment for one map page. The returned
// bytes are consumed once by the classifier and not retained.
func (g *Gateway) FetchFragment(ctx context.Context, mapID int) ([]byte, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.loggedIn {
		return nil, fmt.Errorf("session: fetch before login")
	}

	u := fmt.Sprintf("%s%s?id=%d", g.baseURL, mapOnlyPath, mapID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("session: build request: %w", err)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("session: fetch map %d: %w", mapID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("session: fetch map %d: unexpected status %d", mapID, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFragmentSize))
	if err != nil {
		return nil, fmt.Errorf("session: read map %d: %w", mapID, err)
	}
	return body, nil
}

// MapURL returns the human-facing page for a map, suitable for notifications.
func (g *Gateway) MapURL(mapID int) string {
	return fmt.Sprintf("%s%s?id=%d", g.baseURL, mapShowPath, mapID)
}

// Close releases the session's network resources. The server-side session is
// left to expire on its own, matching how the dashboard treats abandoned
// browser sessions.
func (g *Gateway) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.loggedIn = false
	g.client.CloseIdleConnections()
}
