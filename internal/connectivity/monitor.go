package connectivity

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Evanl01/emscribe-mobile/internal/ports"
)

// Prober answers whether the backend host is currently reachable.
type Prober interface {
	Reachable(ctx context.Context) bool
}

// Monitor keeps an advisory online/offline flag refreshed on a fixed interval.
// The flag gates whether the generate action may be invoked at all; the
// network call itself remains the ground truth for reachability.
type Monitor struct {
	prober   Prober
	events   ports.EventSink
	interval time.Duration
	log      zerolog.Logger

	mu     sync.Mutex
	online bool
	quit   chan struct{}
}

func NewMonitor(prober Prober, events ports.EventSink, interval time.Duration, log zerolog.Logger) *Monitor {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Monitor{
		prober:   prober,
		events:   events,
		interval: interval,
		log:      log.With().Str("component", "connectivity").Logger(),
		online:   true,
	}
}

// Start launches the periodic probe. It is a no-op when already running.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	if m.quit != nil {
		m.mu.Unlock()
		return
	}
	m.quit = make(chan struct{})
	quit := m.quit
	m.mu.Unlock()

	go func() {
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()
		for {
			select {
			case <-quit:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.Check(ctx)
			}
		}
	}()
}

// Stop halts the periodic probe.
func (m *Monitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.quit != nil {
		close(m.quit)
		m.quit = nil
	}
}

// Check probes once and updates the flag, emitting an event on change.
func (m *Monitor) Check(ctx context.Context) bool {
	online := m.prober.Reachable(ctx)

	m.mu.Lock()
	changed := online != m.online
	m.online = online
	m.mu.Unlock()

	if changed {
		m.log.Info().Bool("online", online).Msg("connectivity changed")
		m.events.ConnectivityChanged(online)
	}
	return online
}

// Online returns the last observed flag.
func (m *Monitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}
