// Package proxy manages a pool of outbound HTTP proxies with health
// tracking. Requests rotate round-robin over healthy proxies; a proxy that
// fails several times in a row is benched until a background probe succeeds.
package proxy

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/jonesrussell/prospector/internal/logger"
)

const (
	// maxConsecutiveFailures is the failure streak that benches a proxy.
	maxConsecutiveFailures = 3

	defaultProbeInterval = 5 * time.Minute
	probeTimeout         = 10 * time.Second
	probeURL             = "https://www.google.com/generate_204"
)

// ErrNoHealthyProxies is returned by Next when every proxy is benched.
// Callers fall back to direct connections when the pool is empty or down.
var ErrNoHealthyProxies = errors.New("proxy: no healthy proxies")

type proxyState struct {
	url                 string
	consecutiveFailures int
	healthy             bool
	lastChecked         time.Time
}

// Stats summarizes pool health for status reporting.
type Stats struct {
	Total     int
	Healthy   int
	Unhealthy []string
}

// Manager rotates requests over a fixed set of proxy URLs and tracks
// per-proxy health from request outcomes.
type Manager struct {
	mu      sync.Mutex
	proxies []*proxyState
	next    int

	probeInterval time.Duration
	probeFn       func(ctx context.Context, proxyURL string) bool
	log           logger.Interface
}

// NewManager validates the given proxy URLs and returns a Manager with all
// proxies initially healthy. Invalid URLs are skipped with a warning.
func NewManager(proxyURLs []string, log logger.Interface) *Manager {
	m := &Manager{
		probeInterval: defaultProbeInterval,
		log:           log,
	}
	m.probeFn = m.probe
	for _, raw := range proxyURLs {
		if _, err := url.Parse(raw); err != nil {
			log.Warn("skipping invalid proxy url", "proxy", raw, "error", err)
			continue
		}
		m.proxies = append(m.proxies, &proxyState{url: raw, healthy: true})
	}
	return m
}

// Enabled reports whether the pool has any proxies configured at all.
func (m *Manager) Enabled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.proxies) > 0
}

// Next returns the next healthy proxy URL in round-robin order.
func (m *Manager) Next() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.proxies) == 0 {
		return "", ErrNoHealthyProxies
	}
	for range m.proxies {
		p := m.proxies[m.next]
		m.next = (m.next + 1) % len(m.proxies)
		if p.healthy {
			return p.url, nil
		}
	}
	return "", ErrNoHealthyProxies
}

// MarkSuccess resets the failure streak for a proxy and restores it to the
// rotation if it was benched.
func (m *Manager) MarkSuccess(proxyURL string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.find(proxyURL)
	if p == nil {
		return
	}
	p.consecutiveFailures = 0
	if !p.healthy {
		p.healthy = true
		m.log.Info("proxy recovered", "proxy", proxyURL)
	}
}

// MarkFailure records a failed request through a proxy. After
// maxConsecutiveFailures in a row the proxy is removed from rotation.
func (m *Manager) MarkFailure(proxyURL string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.find(proxyURL)
	if p == nil {
		return
	}
	p.consecutiveFailures++
	if p.healthy && p.consecutiveFailures >= maxConsecutiveFailures {
		p.healthy = false
		m.log.Warn("proxy benched",
			"proxy", proxyURL,
			"consecutive_failures", p.consecutiveFailures)
	}
}

// Stats returns a snapshot of pool health.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := Stats{Total: len(m.proxies)}
	for _, p := range m.proxies {
		if p.healthy {
			s.Healthy++
		} else {
			s.Unhealthy = append(s.Unhealthy, p.url)
		}
	}
	return s
}

// RunProber periodically probes every proxy and feeds the outcomes through
// the same success and failure accounting as request traffic, so a proxy
// that goes dead between requests still benches at three failed probes and
// a benched proxy that answers again is restored. Runs until ctx is
// cancelled.
func (m *Manager) RunProber(ctx context.Context) {
	ticker := time.NewTicker(m.probeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.probeAll(ctx)
		}
	}
}

func (m *Manager) probeAll(ctx context.Context) {
	m.mu.Lock()
	urls := make([]string, 0, len(m.proxies))
	for _, p := range m.proxies {
		urls = append(urls, p.url)
	}
	m.mu.Unlock()

	for _, proxyURL := range urls {
		if ctx.Err() != nil {
			return
		}
		ok := m.probeFn(ctx, proxyURL)
		m.touch(proxyURL)
		if ok {
			m.MarkSuccess(proxyURL)
		} else {
			m.MarkFailure(proxyURL)
		}
	}
}

func (m *Manager) probe(ctx context.Context, proxyURL string) bool {
	parsed, err := url.Parse(proxyURL)
	if err != nil {
		return false
	}
	client := &http.Client{
		Timeout:   probeTimeout,
		Transport: &http.Transport{Proxy: http.ProxyURL(parsed)},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, probeURL, nil)
	if err != nil {
		return false
	}
	resp, err := client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode < 500
}

func (m *Manager) touch(proxyURL string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p := m.find(proxyURL); p != nil {
		p.lastChecked = time.Now()
	}
}

// find assumes m.mu is held.
func (m *Manager) find(proxyURL string) *proxyState {
	for _, p := range m.proxies {
		if p.url == proxyURL {
			return p
		}
	}
	return nil
}
