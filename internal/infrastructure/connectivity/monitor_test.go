package connectivity

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sadmanHT/PoraKhela-sub000/internal/domain/shared"
)

// fakeProber flips reachability under a mutex so tests can script
// outages while the monitor goroutine is probing.
type fakeProber struct {
	mu      sync.Mutex
	healthy bool
	probes  int
}

func (p *fakeProber) Healthy(context.Context) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.probes++
	return p.healthy
}

func (p *fakeProber) set(healthy bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.healthy = healthy
}

type capturingPublisher struct {
	mu     sync.Mutex
	events []shared.Event
}

func (c *capturingPublisher) Publish(e shared.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
	return nil
}

func (c *capturingPublisher) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}

func testMonitorConfig() Config {
	return Config{
		ProbeInterval:       5 * time.Millisecond,
		OnlineProbeInterval: 5 * time.Millisecond,
		ProbeTimeout:        50 * time.Millisecond,
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestMonitor_StartsOffline(t *testing.T) {
	m := NewMonitor(&fakeProber{}, nil, discardLogger(), testMonitorConfig())

	assert.False(t, m.IsOnline())
}

func TestMonitor_FirstSuccessfulProbeCountsAsRestoration(t *testing.T) {
	prober := &fakeProber{healthy: true}
	publisher := &capturingPublisher{}

	var mu sync.Mutex
	fired := 0
	m := NewMonitor(prober, publisher, discardLogger(), testMonitorConfig())
	m.OnOnline(func() {
		mu.Lock()
		fired++
		mu.Unlock()
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Start(ctx)

	require.Eventually(t, m.IsOnline, time.Second, time.Millisecond)
	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return fired == 1
	}, time.Second, time.Millisecond)

	require.Eventually(t, func() bool { return publisher.len() >= 1 }, time.Second, time.Millisecond)
	publisher.mu.Lock()
	event := publisher.events[0]
	publisher.mu.Unlock()
	assert.Equal(t, shared.EventOnlineRestored, event.EventType())
}

func TestMonitor_CallbackFiresOncePerEdge(t *testing.T) {
	prober := &fakeProber{}
	m := NewMonitor(prober, nil, discardLogger(), testMonitorConfig())

	var mu sync.Mutex
	fired := 0
	m.OnOnline(func() {
		mu.Lock()
		fired++
		mu.Unlock()
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Start(ctx)

	// Let a few offline probes pass, then restore.
	time.Sleep(25 * time.Millisecond)
	prober.set(true)
	require.Eventually(t, m.IsOnline, time.Second, time.Millisecond)

	// Remaining online for a while must not re-fire the callback.
	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, fired)
}

func TestMonitor_SecondOutageRearmsTheEdge(t *testing.T) {
	prober := &fakeProber{healthy: true}
	m := NewMonitor(prober, nil, discardLogger(), testMonitorConfig())

	var mu sync.Mutex
	fired := 0
	m.OnOnline(func() {
		mu.Lock()
		fired++
		mu.Unlock()
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Start(ctx)

	require.Eventually(t, m.IsOnline, time.Second, time.Millisecond)

	prober.set(false)
	require.Eventually(t, func() bool { return !m.IsOnline() }, time.Second, time.Millisecond)

	prober.set(true)
	require.Eventually(t, m.IsOnline, time.Second, time.Millisecond)

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return fired == 2
	}, time.Second, time.Millisecond)
}

func TestMonitor_GoingOfflineIsSilent(t *testing.T) {
	prober := &fakeProber{healthy: true}
	publisher := &capturingPublisher{}
	m := NewMonitor(prober, publisher, discardLogger(), testMonitorConfig())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Start(ctx)

	require.Eventually(t, m.IsOnline, time.Second, time.Millisecond)
	prober.set(false)
	require.Eventually(t, func() bool { return !m.IsOnline() }, time.Second, time.Millisecond)
	time.Sleep(25 * time.Millisecond)

	// Only the restoration published anything.
	assert.Equal(t, 1, publisher.len())
}

func TestMonitor_StopsOnContextCancel(t *testing.T) {
	prober := &fakeProber{}
	m := NewMonitor(prober, nil, discardLogger(), testMonitorConfig())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Start(ctx)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("monitor did not stop after cancel")
	}
}

func TestMonitor_ZeroConfigFallsBackToDefaults(t *testing.T) {
	m := NewMonitor(&fakeProber{}, nil, discardLogger(), Config{})

	assert.Equal(t, DefaultConfig().ProbeInterval, m.config.ProbeInterval)
}
