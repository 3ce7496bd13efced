package conversation

import (
	"sync"
	"time"
)

const (
	welcomeText = "Welcome to ProdScope. I analyze product data across MindsDB, " +
		"Vertex AI and PyTrends to surface market trends, product weaknesses " +
		"and pricing opportunities."
	capabilityText = "Ask me anything about your product category, or start a " +
		"six-layer insight run to get a full market, supply-chain, demand, " +
		"pricing, feature and competitive analysis."
)

// Ledger is the append-only, chronologically ordered message sequence for
// one chat session. Insertion order is display order. It is never truncated;
// the only permitted in-place edit is the delivery-state transition of the
// most recent message.
type Ledger struct {
	mu     sync.Mutex
	msgs   []Message
	nextID int64
	now    func() time.Time
}

// NewLedger creates a ledger seeded with the fixed welcome and capability
// messages. A nil clock means time.Now.
func NewLedger(now func() time.Time) *Ledger {
	if now == nil {
		now = time.Now
	}
	l := &Ledger{
		nextID: now().UnixMilli(),
		now:    now,
	}
	l.Append(RoleSystem, welcomeText, DeliverySent, nil)
	l.Append(RoleAssistant, capabilityText, DeliverySent, nil)
	return l
}

// Append adds a message and returns it with its assigned ID and timestamp.
func (l *Ledger) Append(role Role, content string, state DeliveryState, meta *Metadata) Message {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.nextID++
	m := Message{
		ID:        l.nextID,
		Role:      role,
		Content:   content,
		Timestamp: l.now(),
		Delivery:  state,
		Meta:      meta,
	}
	l.msgs = append(l.msgs, m)
	return m
}

// ResolveLast transitions the most recent message out of the sending state.
// No-op if the last message is not sending.
func (l *Ledger) ResolveLast(state DeliveryState) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.msgs) == 0 {
		return
	}
	last := &l.msgs[len(l.msgs)-1]
	if last.Delivery == DeliverySending {
		last.Delivery = state
	}
}

// Messages returns a copy of the ledger in insertion order. Metadata is
// deep-copied so readers cannot alias owned state.
func (l *Ledger) Messages() []Message {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]Message, len(l.msgs))
	copy(out, l.msgs)
	for i := range out {
		if m := l.msgs[i].Meta; m != nil {
			mc := *m
			mc.DataSourcesUsed = append([]string(nil), m.DataSourcesUsed...)
			out[i].Meta = &mc
		}
	}
	return out
}

// Len returns the number of messages.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.msgs)
}

// Exchanges counts completed user turns, seed messages excluded.
func (l *Ledger) Exchanges() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	n := 0
	for i := range l.msgs {
		if l.msgs[i].Role == RoleUser {
			n++
		}
	}
	return n
}
