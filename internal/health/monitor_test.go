package health

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testMonitor(t *testing.T, cfg Config) *Monitor {
	t.Helper()
	if cfg.Rand == nil {
		cfg.Rand = rand.New(rand.NewSource(1))
	}
	if cfg.RefreshLatency == 0 {
		cfg.RefreshLatency = -1 // no settle delay in tests
	}
	return NewMonitor(cfg, slog.Default())
}

func TestRefreshAllSettlesSeedSet(t *testing.T) {
	m := testMonitor(t, Config{})
	require.NoError(t, m.RefreshAll(context.Background()))

	online, offline := 0, 0
	for _, r := range m.Records() {
		switch r.Status {
		case StatusOnline:
			online++
		case StatusOffline:
			offline++
			assert.True(t, r.Unreachable, "only the designated source stays offline")
		}
	}
	assert.Equal(t, 3, online)
	assert.Equal(t, 1, offline)
	assert.InDelta(t, 0.75, m.HealthFraction(), 1e-9)
}

func TestTickPromotesConnecting(t *testing.T) {
	m := testMonitor(t, Config{PromoteChance: 1.0})

	m.Tick()

	for _, r := range m.Records() {
		if r.ID == "pytrends" {
			assert.Equal(t, StatusOnline, r.Status)
			assert.Greater(t, r.ResponseTimeMs, 0)
			assert.False(t, r.LastSync.IsZero())
		}
	}
}

func TestTickNeverPromotesWithZeroChance(t *testing.T) {
	// Smallest positive chance stands in for zero, which means "default".
	m := testMonitor(t, Config{PromoteChance: 1e-12})

	for i := 0; i < 20; i++ {
		m.Tick()
	}
	for _, r := range m.Records() {
		if r.ID == "pytrends" {
			assert.Equal(t, StatusConnecting, r.Status)
		}
	}
}

func TestTickLeavesOfflineUntouched(t *testing.T) {
	m := testMonitor(t, Config{PromoteChance: 1.0})

	var before Record
	for _, r := range m.Records() {
		if r.Unreachable {
			before = r
		}
	}

	for i := 0; i < 10; i++ {
		m.Tick()
	}
	for _, r := range m.Records() {
		if r.Unreachable {
			assert.Equal(t, before.Status, r.Status)
			assert.Equal(t, before.ResponseTimeMs, r.ResponseTimeMs)
		}
	}
}

func TestTickJitterBounded(t *testing.T) {
	seed := []Record{{
		ID: "db", Name: "DB", Kind: KindDatabase,
		Status: StatusOnline, ResponseTimeMs: 1000,
	}}
	m := testMonitor(t, Config{Seed: seed, Jitter: 0.15})

	prev := 1000
	for i := 0; i < 50; i++ {
		m.Tick()
		rt := m.Records()[0].ResponseTimeMs
		assert.GreaterOrEqual(t, rt, int(float64(prev)*0.84))
		assert.LessOrEqual(t, rt, int(float64(prev)*1.16))
		prev = rt
	}
}

func TestRefreshAllCancelled(t *testing.T) {
	m := testMonitor(t, Config{RefreshLatency: 5 * time.Second})
	before := m.Records()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.RefreshAll(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	require.ErrorIs(t, <-done, context.Canceled)
	assert.Equal(t, before, m.Records(), "cancelled refresh leaves no partial state")
}

func TestCloseDropsRefresh(t *testing.T) {
	m := testMonitor(t, Config{})
	m.Close()
	assert.ErrorIs(t, m.RefreshAll(context.Background()), ErrClosed)
}

type stubProber struct {
	records []Record
	err     error
}

func (s stubProber) Probe(ctx context.Context) ([]Record, error) {
	return s.records, s.err
}

func TestRefreshAllWithProber(t *testing.T) {
	probed := []Record{
		{ID: "mindsdb", Name: "MindsDB", Kind: KindDatabase, Status: StatusError, ResponseTimeMs: 9000},
		{ID: "unknown", Name: "Nope", Status: StatusOnline},
	}
	m := testMonitor(t, Config{Prober: stubProber{records: probed}})

	require.NoError(t, m.RefreshAll(context.Background()))

	records := m.Records()
	assert.Len(t, records, 4, "record set never grows at runtime")
	for _, r := range records {
		if r.ID == "mindsdb" {
			assert.Equal(t, StatusError, r.Status)
			assert.Equal(t, 9000, r.ResponseTimeMs)
			assert.NotEmpty(t, r.Capabilities, "seed capabilities kept when probe omits them")
		}
	}
}

func TestRefreshAllProberError(t *testing.T) {
	wantErr := errors.New("probe down")
	m := testMonitor(t, Config{Prober: stubProber{err: wantErr}})
	before := m.Records()

	assert.ErrorIs(t, m.RefreshAll(context.Background()), wantErr)
	assert.Equal(t, before, m.Records())
}

func TestHealthFractionBounds(t *testing.T) {
	m := testMonitor(t, Config{PromoteChance: 0.5})
	for i := 0; i < 50; i++ {
		m.Tick()
		f := m.HealthFraction()
		assert.GreaterOrEqual(t, f, 0.0)
		assert.LessOrEqual(t, f, 1.0)
	}
}

func TestLastSyncLabel(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		sync time.Time
		want string
	}{
		{"zero time", time.Time{}, "never"},
		{"seconds ago", now.Add(-20 * time.Second), "just now"},
		{"minutes ago", now.Add(-2 * time.Minute), "2m ago"},
		{"hours ago", now.Add(-3 * time.Hour), "3h ago"},
		{"days ago", now.Add(-49 * time.Hour), "2d ago"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := Record{LastSync: tt.sync}
			assert.Equal(t, tt.want, r.LastSyncLabel(now))
		})
	}
}
