// Package connectivity watches reachability of the remote progress API.
//
// The monitor cares about one edge only: offline to online. Crossing it
// fires the registered callbacks so the coordinator can drain the queue
// immediately instead of waiting for the next tick. Going offline is not
// an event; writes never depended on being online in the first place.
package connectivity

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/sadmanHT/PoraKhela-sub000/internal/domain/shared"
)

// Prober answers whether the remote is reachable right now.
type Prober interface {
	Healthy(ctx context.Context) bool
}

// Config holds monitor tuning parameters.
type Config struct {
	// ProbeInterval is how often reachability is checked while offline.
	ProbeInterval time.Duration

	// OnlineProbeInterval is how often it is re-checked while online.
	// Longer, since the drain path discovers outages on its own.
	OnlineProbeInterval time.Duration

	// ProbeTimeout bounds a single probe.
	ProbeTimeout time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		ProbeInterval:       10 * time.Second,
		OnlineProbeInterval: 60 * time.Second,
		ProbeTimeout:        5 * time.Second,
	}
}

// Monitor tracks remote reachability and fires callbacks on the
// offline-to-online transition.
type Monitor struct {
	prober    Prober
	publisher shared.EventPublisher
	logger    *slog.Logger
	config    Config

	mu          sync.Mutex
	online      bool
	wentOffline time.Time
	callbacks   []func()
}

// NewMonitor creates a new Monitor. The monitor starts in the offline
// state; the first successful probe counts as a restoration.
func NewMonitor(prober Prober, publisher shared.EventPublisher, logger *slog.Logger, config Config) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	if publisher == nil {
		publisher = shared.NopPublisher{}
	}
	if config.ProbeInterval <= 0 {
		config = DefaultConfig()
	}

	return &Monitor{
		prober:      prober,
		publisher:   publisher,
		logger:      logger,
		config:      config,
		wentOffline: time.Now(),
	}
}

// OnOnline registers a callback for the offline-to-online edge.
// Callbacks run on the monitor goroutine and must not block.
func (m *Monitor) OnOnline(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callbacks = append(m.callbacks, fn)
}

// IsOnline reports the last observed state.
func (m *Monitor) IsOnline() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// Start probes until ctx is cancelled.
func (m *Monitor) Start(ctx context.Context) {
	m.logger.Info("connectivity monitor started",
		slog.Duration("probe_interval", m.config.ProbeInterval),
	)

	for {
		m.probe(ctx)

		interval := m.config.ProbeInterval
		if m.IsOnline() {
			interval = m.config.OnlineProbeInterval
		}

		select {
		case <-ctx.Done():
			m.logger.Info("connectivity monitor stopped")
			return
		case <-time.After(interval):
		}
	}
}

func (m *Monitor) probe(ctx context.Context) {
	probeCtx, cancel := context.WithTimeout(ctx, m.config.ProbeTimeout)
	healthy := m.prober.Healthy(probeCtx)
	cancel()

	m.mu.Lock()
	wasOnline := m.online
	m.online = healthy

	var offlineFor time.Duration
	var callbacks []func()

	switch {
	case healthy && !wasOnline:
		offlineFor = time.Since(m.wentOffline)
		callbacks = append(callbacks, m.callbacks...)
	case !healthy && wasOnline:
		m.wentOffline = time.Now()
	}
	m.mu.Unlock()

	if healthy && !wasOnline {
		m.logger.Info("connectivity restored",
			slog.Duration("offline_for", offlineFor),
		)
		_ = m.publisher.Publish(shared.NewOnlineRestoredEvent(offlineFor))
		for _, fn := range callbacks {
			fn()
		}
	}
}
