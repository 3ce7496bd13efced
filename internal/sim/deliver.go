// Package sim provides the simulated collaborators: a canned-answer chat
// deliverer and a probabilistic data-source probe. They implement the same
// interfaces as the real backend client, so the core cannot tell them apart.
package sim

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/prodscope/prodscope/internal/conversation"
)

// providers is the rotation used for simulated replies, mirroring the
// backend's provider registry.
var providers = []string{"Gemini 1.5 Flash", "Claude 3 Haiku", "Grok 2"}

// Deliverer is a simulated chat backend. Replies are keyed off the message
// text, providers rotate round-robin, and data-source attribution follows
// the backend's keyword rules.
type Deliverer struct {
	mu    sync.Mutex
	next  int
	delay time.Duration
	rand  *rand.Rand
}

// NewDeliverer creates a simulated deliverer with the given reply latency.
// A nil rand means a time-seeded source.
func NewDeliverer(delay time.Duration, rnd *rand.Rand) *Deliverer {
	if rnd == nil {
		rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Deliverer{delay: delay, rand: rnd}
}

// Deliver implements conversation.Deliverer.
func (d *Deliverer) Deliver(ctx context.Context, message string) (*conversation.Result, error) {
	if d.delay > 0 {
		t := time.NewTimer(d.delay)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-t.C:
		}
	}

	d.mu.Lock()
	provider := providers[d.next%len(providers)]
	d.next++
	processing := 0.8 + d.rand.Float64()*1.6
	d.mu.Unlock()

	return &conversation.Result{
		Response:        respond(message),
		Provider:        provider,
		ProcessingTime:  processing,
		DataSourcesUsed: attributeSources(message),
	}, nil
}

// attributeSources picks data sources the way the backend does: MindsDB is
// always involved, search-flavored questions add Vertex AI, trend-flavored
// questions add PyTrends.
func attributeSources(message string) []string {
	lower := strings.ToLower(message)
	sources := []string{"MindsDB"}
	if strings.Contains(lower, "search") || strings.Contains(lower, "review") ||
		strings.Contains(lower, "competitor") {
		sources = append(sources, "Vertex AI")
	}
	if strings.Contains(lower, "trend") || strings.Contains(lower, "season") {
		sources = append(sources, "PyTrends")
	}
	return sources
}

func respond(message string) string {
	lower := strings.ToLower(message)
	switch {
	case strings.Contains(lower, "trend"):
		return "Search interest in this category is up 23% quarter over quarter, " +
			"with the strongest growth in eco-friendly and travel-sized variants. " +
			"Visual preference data points toward muted earth tones."
	case strings.Contains(lower, "weakness") || strings.Contains(lower, "review"):
		return "Negative reviews cluster around durability (31%) and misleading " +
			"sizing (18%). The durability complaints concentrate on a single " +
			"supplier's batch dates, which suggests a supply-chain fix rather " +
			"than a redesign."
	case strings.Contains(lower, "price") || strings.Contains(lower, "pricing") ||
		strings.Contains(lower, "season"):
		return "Historic sales show a 40% demand lift in the six weeks before Q4. " +
			"A staged price increase of 8-12% starting late September captures " +
			"most of that lift without hurting conversion."
	case strings.Contains(lower, "demand") || strings.Contains(lower, "opportunity"):
		return "Gap analysis flags a recurring ask for a mid-tier bundle that no " +
			"current listing covers. Related-query volume suggests roughly 4k " +
			"monthly searches going unserved."
	default:
		return fmt.Sprintf("Based on the latest product data, here is what stands "+
			"out for %q: demand is stable, review sentiment is mildly positive, "+
			"and the nearest competitor repriced twice this month. Ask about "+
			"trends, weaknesses, demand or pricing for a deeper cut.", message)
	}
}
