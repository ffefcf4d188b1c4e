// Package netx models connectivity as an injected capability instead of
// ambient global state, so the fetch and sync layers can be tested against
// simulated connectivity transitions.
package netx

import (
	"context"
	"net/http"
	"sync"
	"time"
)

// Provider answers "is the device online right now".
type Provider interface {
	Online(ctx context.Context) bool
}

// Static always answers the same; for tests and forced-offline mode.
type Static bool

func (s Static) Online(ctx context.Context) bool { return bool(s) }

// HTTPProbe checks reachability of the API health endpoint, caching the
// answer for a probe interval so callers can ask cheaply and often.
type HTTPProbe struct {
	url      string
	client   *http.Client
	interval time.Duration

	mu      sync.Mutex
	last    time.Time
	online  bool
	checked bool
}

// NewHTTPProbe probes url (typically the API /health endpoint) at most once
// per interval.
func NewHTTPProbe(url string, interval time.Duration) *HTTPProbe {
	return &HTTPProbe{
		url:      url,
		client:   &http.Client{Timeout: 3 * time.Second},
		interval: interval,
	}
}

func (p *HTTPProbe) Online(ctx context.Context) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.checked && time.Since(p.last) < p.interval {
		return p.online
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return false
	}
	resp, err := p.client.Do(req)
	p.last = time.Now()
	p.checked = true
	if err != nil {
		p.online = false
		return false
	}
	defer resp.Body.Close()
	p.online = resp.StatusCode < http.StatusInternalServerError
	return p.online
}
