package backend

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"
)

type prober interface {
	Health(ctx context.Context) bool
}

type MonitorConfig struct {
	Interval time.Duration
}

func (c MonitorConfig) withDefaults() MonitorConfig {
	if c.Interval <= 0 {
		c.Interval = 5 * time.Second
	}
	return c
}

// Monitor probes backend health on a ticker. Probes may overlap when the
// backend stalls; results apply last-writer-wins through a version counter
// so a slow old probe can never overwrite a newer verdict.
type Monitor struct {
	prober   prober
	cfg      MonitorConfig
	logger   *log.Logger
	onChange func(healthy bool)

	next uint64

	mu          sync.Mutex
	lastApplied uint64
	probed      bool
	healthy     bool

	wg sync.WaitGroup
}

// NewMonitor wires a poller over any health prober. onChange fires on
// transitions only and runs on a monitor goroutine; hand off to the UI
// loop inside it.
func NewMonitor(p prober, cfg MonitorConfig, logger *log.Logger, onChange func(bool)) *Monitor {
	if logger == nil {
		logger = log.Default()
	}
	return &Monitor{
		prober:   p,
		cfg:      cfg.withDefaults(),
		logger:   logger,
		onChange: onChange,
	}
}

func (m *Monitor) Start(ctx context.Context) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(m.cfg.Interval)
		defer ticker.Stop()

		m.probe(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.probe(ctx)
			}
		}
	}()
}

func (m *Monitor) Wait() {
	m.wg.Wait()
}

func (m *Monitor) Healthy() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.healthy
}

func (m *Monitor) probe(ctx context.Context) {
	v := atomic.AddUint64(&m.next, 1)
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.apply(v, m.prober.Health(ctx))
	}()
}

func (m *Monitor) apply(version uint64, healthy bool) {
	m.mu.Lock()
	if version <= m.lastApplied {
		m.mu.Unlock()
		return
	}
	m.lastApplied = version
	changed := !m.probed || m.healthy != healthy
	m.probed = true
	m.healthy = healthy
	m.mu.Unlock()

	if !changed {
		return
	}
	m.logger.Printf("backend health changed healthy=%t", healthy)
	if m.onChange != nil {
		m.onChange(healthy)
	}
}
