// Package connectivity implements the Connectivity Monitor: it observes an
// online/offline signal and exposes only edge transitions. The
// offline→online edge fires the registered callbacks exactly once per
// transition (typically one queue-drain attempt); online→offline merely
// flips the status flag. No heartbeat smoothing or flap debouncing is
// layered on top — the probe's verdict is trusted as-is.
package connectivity

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Probe answers whether the backend is reachable right now. Implementations
// must be safe for concurrent use and honor the context deadline.
type Probe interface {
	Online(ctx context.Context) bool
}

// HTTPProbe checks reachability with a HEAD request against a cheap
// endpoint (the backend health route). Any transport error means offline;
// any HTTP response at all, including 5xx, means the network path is up.
type HTTPProbe struct {
	// URL is the probe target.
	URL string
	// Client performs the request; its Timeout bounds the probe.
	Client *http.Client
}

// NewHTTPProbe constructs an HTTPProbe with the given per-probe timeout.
func NewHTTPProbe(url string, timeout time.Duration) *HTTPProbe {
	return &HTTPProbe{
		URL:    url,
		Client: &http.Client{Timeout: timeout},
	}
}

// Online reports whether the probe target answered at all.
func (p *HTTPProbe) Online(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.URL, nil)
	if err != nil {
		return false
	}
	resp, err := p.Client.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return true
}

// Monitor polls a Probe and converts its level signal into edges.
// The zero value is not usable; construct with NewMonitor.
type Monitor struct {
	probe    Probe
	interval time.Duration
	log      zerolog.Logger

	mu        sync.Mutex
	online    bool
	started   bool
	callbacks []func(ctx context.Context)
	stop      chan struct{}
	done      chan struct{}
}

// NewMonitor constructs a Monitor polling probe every interval.
// The monitor starts in the offline state, so the very first successful
// probe fires the offline→online callbacks — which is exactly what a
// freshly booted device wants (drain whatever queued while it was off).
func NewMonitor(probe Probe, interval time.Duration, log zerolog.Logger) *Monitor {
	return &Monitor{
		probe:    probe,
		interval: interval,
		log:      log.With().Str("component", "connectivity").Logger(),
	}
}

// OnOnline registers a callback fired on each offline→online edge.
// Callbacks run synchronously, in registration order, on the monitor
// goroutine (or on the caller's goroutine for SetOnline).
func (m *Monitor) OnOnline(fn func(ctx context.Context)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callbacks = append(m.callbacks, fn)
}

// Online reports the last observed connectivity state.
func (m *Monitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// SetOnline force-feeds a connectivity state, applying the same
// edge-detection as the poll loop. Used by tests and by the manual
// drain path.
func (m *Monitor) SetOnline(ctx context.Context, online bool) {
	m.transition(ctx, online)
}

// Start launches the poll loop. It returns immediately; Stop halts it.
// Starting twice is a no-op.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return
	}
	m.started = true
	m.stop = make(chan struct{})
	m.done = make(chan struct{})
	m.mu.Unlock()

	go m.loop(ctx)
}

// Stop halts the poll loop and waits for it to exit.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.started {
		m.mu.Unlock()
		return
	}
	m.started = false
	close(m.stop)
	done := m.done
	m.mu.Unlock()
	<-done
}

func (m *Monitor) loop(ctx context.Context) {
	defer close(m.done)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	// Probe immediately on start rather than waiting a full interval.
	m.transition(ctx, m.probe.Online(ctx))

	for {
		select {
		case <-m.stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.transition(ctx, m.probe.Online(ctx))
		}
	}
}

// transition records the new state and fires callbacks only on the
// offline→online edge.
func (m *Monitor) transition(ctx context.Context, online bool) {
	m.mu.Lock()
	was := m.online
	m.online = online
	var fire []func(ctx context.Context)
	if online && !was {
		fire = append(fire, m.callbacks...)
	}
	m.mu.Unlock()

	switch {
	case online && !was:
		m.log.Info().Msg("connectivity restored")
	case !online && was:
		m.log.Warn().Msg("connectivity lost")
	}

	for _, fn := range fire {
		fn(ctx)
	}
}
