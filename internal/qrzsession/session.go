// Package qrzsession holds and periodically refreshes an auth token for
// the external QRZ.com callsign lookup service, and performs the
// per-callsign locator lookup once a token is held. Retry/backoff
// mechanics mirror the original collector's QrzSessionManager: 5
// attempts, 5 seconds apart, keep-previous-token on exhaustion.
package qrzsession

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"holycluster/internal/spotmodel"
)

const (
	baseURL        = "https://xmldata.qrz.com/xml/current/"
	acquireRetries = 5
	retrySpacing   = 5 * time.Second
	httpTimeout    = 30 * time.Second
)

// Session guards a QrzToken behind a mutex held only during refresh;
// readers never block on a refresh in progress.
type Session struct {
	username, password, apiKey string
	refreshInterval            time.Duration

	baseURL      string
	retries      int
	retrySpacing time.Duration

	httpClient *http.Client
	log        *zap.SugaredLogger

	mu    sync.RWMutex
	token spotmodel.QrzToken

	onRefreshFailure func()
}

// SetOnRefreshFailure installs a callback invoked whenever Start or
// RefreshLoop exhausts its retries without acquiring a token. Intended
// for metrics; fn may be nil to disable.
func (s *Session) SetOnRefreshFailure(fn func()) {
	s.onRefreshFailure = fn
}

// New constructs a Session. Call Start once to acquire the initial
// token before launching RefreshLoop.
func New(username, password, apiKey string, refreshInterval time.Duration, log *zap.SugaredLogger) *Session {
	return &Session{
		username:        username,
		password:        password,
		apiKey:          apiKey,
		refreshInterval: refreshInterval,
		baseURL:         baseURL,
		retries:         acquireRetries,
		retrySpacing:    retrySpacing,
		httpClient:      &http.Client{Timeout: httpTimeout},
		log:             log,
	}
}

// Start performs the initial token acquisition, retrying per the
// configured schedule. It does not fail the caller if acquisition is
// ultimately exhausted — the resolver falls back to the prefix table for
// every callsign until a token becomes available.
func (s *Session) Start(ctx context.Context) {
	key, err := s.acquireWithRetry(ctx)
	if err != nil {
		s.log.Warnw("initial qrz session acquisition exhausted retries", "error", err)
		if s.onRefreshFailure != nil {
			s.onRefreshFailure()
		}
		return
	}
	s.setToken(key)
}

// RefreshLoop re-acquires a token every refreshInterval until ctx is
// cancelled. On failure the previous token is kept.
func (s *Session) RefreshLoop(ctx context.Context) {
	ticker := time.NewTicker(s.refreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			key, err := s.acquireWithRetry(ctx)
			if err != nil {
				s.log.Warnw("qrz session refresh failed, keeping previous token", "error", err)
				if s.onRefreshFailure != nil {
					s.onRefreshFailure()
				}
				continue
			}
			s.setToken(key)
		}
	}
}

// GetKey returns the current session key, or "" if none has ever been
// acquired. Never blocks on an in-progress refresh.
func (s *Session) GetKey() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token.SessionKey
}

func (s *Session) setToken(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = spotmodel.QrzToken{SessionKey: key, RefreshedAt: time.Now().Unix()}
}

func (s *Session) acquireWithRetry(ctx context.Context) (string, error) {
	if s.username == "" || s.password == "" {
		return "", fmt.Errorf("qrzsession: username and password are required")
	}
	var lastErr error
	for attempt := 0; attempt < s.retries; attempt++ {
		if attempt > 0 {
			timer := time.NewTimer(s.retrySpacing)
			select {
			case <-ctx.Done():
				timer.Stop()
				return "", ctx.Err()
			case <-timer.C:
			}
		}
		key, err := s.acquireOnce(ctx)
		if err == nil {
			return key, nil
		}
		lastErr = err
	}
	return "", fmt.Errorf("qrzsession: exhausted %d attempts: %w", s.retries, lastErr)
}

type qrzKeyResponse struct {
	XMLName xml.Name `xml:"QRZDatabase"`
	Session struct {
		Key   string `xml:"Key"`
		Error string `xml:"Error"`
	} `xml:"Session"`
}

func (s *Session) acquireOnce(ctx context.Context) (string, error) {
	values := url.Values{}
	values.Set("username", s.username)
	values.Set("password", s.password)
	values.Set("agent", "go:"+s.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"?"+values.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("%w: build request: %v", spotmodel.ErrTransient, err)
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: qrz session request: %v", spotmodel.ErrTransient, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: qrz session status %s", spotmodel.ErrTransient, resp.Status)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: read qrz response: %v", spotmodel.ErrTransient, err)
	}

	var parsed qrzKeyResponse
	if err := xml.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("qrzsession: parse xml: %w", err)
	}
	if parsed.Session.Error != "" {
		return "", fmt.Errorf("qrzsession: %s", parsed.Session.Error)
	}
	if parsed.Session.Key == "" {
		return "", fmt.Errorf("qrzsession: no session key in response")
	}
	return parsed.Session.Key, nil
}

type qrzLookupResponse struct {
	XMLName xml.Name `xml:"QRZDatabase"`
	Callsign struct {
		Grid    string `xml:"grid"`
		Geoloc  string `xml:"geoloc"`
	} `xml:"Callsign"`
	Session struct {
		Error string `xml:"Error"`
	} `xml:"Session"`
}

// LookupLocator implements geo.QrzClient: given a session key and a
// callsign, return the QRZ grid locator. ok is false for every "locator
// unknown" case: non-200, <Error> present, or geoloc not in {user, grid}.
func (s *Session) LookupLocator(ctx context.Context, sessionKey, callsign string) (string, bool, error) {
	values := url.Values{}
	values.Set("s", sessionKey)
	values.Set("callsign", callsign)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"?"+values.Encode(), nil)
	if err != nil {
		return "", false, fmt.Errorf("%w: build request: %v", spotmodel.ErrTransient, err)
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", false, fmt.Errorf("%w: qrz lookup request: %v", spotmodel.ErrTransient, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", false, nil
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", false, fmt.Errorf("%w: read qrz lookup response: %v", spotmodel.ErrTransient, err)
	}

	var parsed qrzLookupResponse
	if err := xml.Unmarshal(body, &parsed); err != nil {
		return "", false, fmt.Errorf("qrzsession: parse lookup xml: %w", err)
	}
	if parsed.Session.Error != "" {
		return "", false, nil
	}
	geoloc := strings.ToLower(strings.TrimSpace(parsed.Callsign.Geoloc))
	if geoloc != "user" && geoloc != "grid" {
		return "", false, nil
	}
	if parsed.Callsign.Grid == "" {
		return "", false, nil
	}
	return parsed.Callsign.Grid, true, nil
}
