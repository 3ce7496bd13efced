package sim

import (
	"context"
	"math/rand"
	"time"

	"github.com/prodscope/prodscope/internal/health"
)

// Probe is a simulated data-source probe: every reachable source reports
// online with a plausible latency, the unreachable one stays offline.
type Probe struct {
	seed  []health.Record
	delay time.Duration
	rand  *rand.Rand
	now   func() time.Time
}

// NewProbe creates a probe over the given seed records. Nil seed means the
// default record set; nil rand means a time-seeded source.
func NewProbe(seed []health.Record, delay time.Duration, rnd *rand.Rand) *Probe {
	now := time.Now
	if seed == nil {
		seed = health.DefaultRecords(now())
	}
	if rnd == nil {
		rnd = rand.New(rand.NewSource(now().UnixNano()))
	}
	return &Probe{seed: seed, delay: delay, rand: rnd, now: now}
}

// Probe implements health.Prober.
func (p *Probe) Probe(ctx context.Context) ([]health.Record, error) {
	if p.delay > 0 {
		t := time.NewTimer(p.delay)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-t.C:
		}
	}

	now := p.now()
	out := make([]health.Record, len(p.seed))
	for i, r := range p.seed {
		if r.Unreachable {
			r.Status = health.StatusOffline
		} else {
			r.Status = health.StatusOnline
			r.LastSync = now
			if r.ResponseTimeMs == 0 {
				r.ResponseTimeMs = 40 + p.rand.Intn(400)
			}
		}
		out[i] = r
	}
	return out, nil
}
