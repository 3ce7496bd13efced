package health

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"sync"
	"time"
)

// ErrClosed rejects operations after the monitor is torn down.
var ErrClosed = errors.New("monitor closed")

// Prober is an optional collaborator that reports real data-source status.
// When present, RefreshAll delegates to it instead of the simulated settle.
type Prober interface {
	Probe(ctx context.Context) ([]Record, error)
}

// Config tunes a Monitor. Zero values fall back to defaults.
type Config struct {
	// Seed is the initial record set. Nil means DefaultRecords(now).
	Seed []Record
	// Prober, when non-nil, backs RefreshAll with real status data.
	Prober Prober
	// PromoteChance is the per-tick probability that a connecting source
	// comes online (default 0.3).
	PromoteChance float64
	// Jitter is the bounded symmetric response-time perturbation applied to
	// online sources each tick (default 0.15 for ±15%).
	Jitter float64
	// RefreshLatency is the simulated settle time of RefreshAll when no
	// prober is configured (default 1.5s; zero in tests via -1).
	RefreshLatency time.Duration
	// Rand drives promotion and jitter. Nil means a time-seeded source.
	Rand *rand.Rand
	// Now is the clock. Nil means time.Now.
	Now func() time.Time
}

// Monitor owns the data-source record set. Records are mutated in place by
// periodic ticks and by RefreshAll; they are never added or removed at
// runtime. Safe for concurrent use.
type Monitor struct {
	mu             sync.Mutex
	records        []Record
	prober         Prober
	promoteChance  float64
	jitter         float64
	refreshLatency time.Duration
	rand           *rand.Rand
	now            func() time.Time
	logger         *slog.Logger
	closed         bool
}

// NewMonitor creates a monitor from the given config.
func NewMonitor(cfg Config, logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	seed := cfg.Seed
	if seed == nil {
		seed = DefaultRecords(now())
	}
	promote := cfg.PromoteChance
	if promote == 0 {
		promote = 0.3
	}
	jitter := cfg.Jitter
	if jitter == 0 {
		jitter = 0.15
	}
	latency := cfg.RefreshLatency
	switch {
	case latency == 0:
		latency = 1500 * time.Millisecond
	case latency < 0:
		latency = 0
	}
	rnd := cfg.Rand
	if rnd == nil {
		rnd = rand.New(rand.NewSource(now().UnixNano()))
	}
	return &Monitor{
		records:        cloneRecords(seed),
		prober:         cfg.Prober,
		promoteChance:  promote,
		jitter:         jitter,
		refreshLatency: latency,
		rand:           rnd,
		now:            now,
		logger:         logger,
	}
}

// Tick applies one periodic health pass: connecting sources may come online,
// online sources get their response time perturbed within the jitter bound.
// Offline and errored sources are untouched.
func (m *Monitor) Tick() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return
	}
	for i := range m.records {
		r := &m.records[i]
		switch r.Status {
		case StatusConnecting:
			if m.rand.Float64() < m.promoteChance {
				r.Status = StatusOnline
				r.ResponseTimeMs = 40 + m.rand.Intn(400)
				r.LastSync = m.now()
				m.logger.Info("data source online", "source", r.ID)
			}
		case StatusOnline:
			f := 1 + (m.rand.Float64()*2-1)*m.jitter
			rt := int(float64(r.ResponseTimeMs) * f)
			if rt < 1 {
				rt = 1
			}
			r.ResponseTimeMs = rt
		}
	}
}

// RefreshAll re-syncs every record. With a prober it applies the probed
// status; otherwise it simulates a fixed settle latency and brings every
// reachable source online, forcing the designated unreachable source
// offline. Each record settles atomically and the whole batch is dropped if
// the context is cancelled or the monitor is torn down mid-flight.
func (m *Monitor) RefreshAll(ctx context.Context) error {
	if m.prober != nil {
		probed, err := m.prober.Probe(ctx)
		if err != nil {
			return err
		}
		return m.apply(probed)
	}

	if m.refreshLatency > 0 {
		t := time.NewTimer(m.refreshLatency)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	now := m.now()
	for i := range m.records {
		r := &m.records[i]
		if r.Unreachable {
			r.Status = StatusOffline
			continue
		}
		r.Status = StatusOnline
		r.LastSync = now
		if r.ResponseTimeMs == 0 {
			r.ResponseTimeMs = 40 + m.rand.Intn(400)
		}
	}
	m.logger.Info("data sources refreshed", "online", m.onlineLocked(), "total", len(m.records))
	return nil
}

// apply merges probed records into the owned set by ID. Unknown probed
// records are ignored; the set never grows at runtime.
func (m *Monitor) apply(probed []Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	byID := make(map[string]Record, len(probed))
	for _, p := range probed {
		byID[p.ID] = p
	}
	for i := range m.records {
		p, ok := byID[m.records[i].ID]
		if !ok {
			continue
		}
		unreachable := m.records[i].Unreachable
		caps := m.records[i].Capabilities
		m.records[i] = p
		m.records[i].Unreachable = unreachable
		if len(p.Capabilities) == 0 {
			m.records[i].Capabilities = caps
		}
	}
	return nil
}

// Records returns a copy of the current record set.
func (m *Monitor) Records() []Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	return cloneRecords(m.records)
}

// HealthFraction derives the share of online sources in [0,1]. Pure
// function of current state.
func (m *Monitor) HealthFraction() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.records) == 0 {
		return 0
	}
	return float64(m.onlineLocked()) / float64(len(m.records))
}

// Close tears the monitor down. In-flight refreshes are dropped instead of
// being applied.
func (m *Monitor) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
}

func (m *Monitor) onlineLocked() int {
	n := 0
	for i := range m.records {
		if m.records[i].Status == StatusOnline {
			n++
		}
	}
	return n
}
