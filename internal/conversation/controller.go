package conversation

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
)

// ApologyText is the fixed user-facing message substituted into the ledger
// when a delivery fails. The underlying error is only logged.
const ApologyText = "Sorry, I ran into a problem answering that. " +
	"Please try sending your message again."

var (
	// ErrEmptyMessage rejects sends whose trimmed text is empty.
	ErrEmptyMessage = errors.New("empty message")
	// ErrSendInFlight rejects a send while another is awaiting its response.
	ErrSendInFlight = errors.New("send already in flight")
	// ErrClosed rejects operations after the controller is torn down.
	ErrClosed = errors.New("controller closed")
)

// Result is what the delivery collaborator resolves with.
type Result struct {
	Response        string
	Provider        string
	ProcessingTime  float64 // seconds
	DataSourcesUsed []string
}

// Deliverer is the injected asynchronous chat collaborator. The HTTP client
// and the simulator both implement it.
type Deliverer interface {
	Deliver(ctx context.Context, message string) (*Result, error)
}

// DeliverFunc adapts a function to the Deliverer interface.
type DeliverFunc func(ctx context.Context, message string) (*Result, error)

func (f DeliverFunc) Deliver(ctx context.Context, message string) (*Result, error) {
	return f(ctx, message)
}

// defaultPrompts are the suggested example queries offered while the session
// is still mostly seed messages.
var defaultPrompts = []string{
	"What are the top market trends for yoga mats this quarter?",
	"Which product weaknesses show up most in negative reviews?",
	"Where is unmet demand strongest in the home-fitness category?",
	"How should seasonal pricing change before Q4?",
}

// Controller orchestrates chat round-trips: it validates input, appends the
// user message, invokes the deliverer, and folds the response or a fixed
// apology back into the ledger. At most one delivery is outstanding at a
// time.
type Controller struct {
	mu        sync.Mutex
	ledger    *Ledger
	deliverer Deliverer
	logger    *slog.Logger
	compose   string
	awaiting  bool
	closed    bool
}

// NewController wires a controller to its ledger and delivery collaborator.
func NewController(ledger *Ledger, d Deliverer, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		ledger:    ledger,
		deliverer: d,
		logger:    logger,
	}
}

// Ledger returns the conversation ledger for presentation.
func (c *Controller) Ledger() *Ledger { return c.ledger }

// Awaiting reports whether a delivery is outstanding.
func (c *Controller) Awaiting() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.awaiting
}

// Send runs one full round-trip: append the user message, deliver, append
// the reply. It blocks until the deliverer resolves, so callers run it from
// their own goroutine or command. Validation failures reject locally before
// any ledger mutation. The awaiting flag is always cleared, even when the
// deliverer fails or panics partway.
func (c *Controller) Send(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyMessage
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.awaiting {
		c.mu.Unlock()
		return ErrSendInFlight
	}
	c.awaiting = true
	c.compose = ""
	c.ledger.Append(RoleUser, text, DeliverySending, nil)
	c.mu.Unlock()

	// The awaiting flag must come back down no matter how delivery ends.
	defer func() {
		c.mu.Lock()
		c.awaiting = false
		c.mu.Unlock()
	}()

	res, err := c.deliverer.Deliver(ctx, text)

	c.mu.Lock()
	defer c.mu.Unlock()

	// Results arriving after teardown are dropped, not applied.
	if c.closed {
		return ErrClosed
	}

	if err != nil {
		c.logger.Error("delivery failed", "error", err)
		c.ledger.ResolveLast(DeliveryError)
		c.ledger.Append(RoleAssistant, ApologyText, DeliveryError, nil)
		return nil
	}

	c.ledger.ResolveLast(DeliverySent)
	meta := &Metadata{
		Provider:         res.Provider,
		ProcessingTimeMs: int64(res.ProcessingTime * 1000),
		DataSourcesUsed:  res.DataSourcesUsed,
	}
	c.ledger.Append(RoleAssistant, res.Response, DeliverySent, meta)
	return nil
}

// Compose returns the not-yet-sent input buffer.
func (c *Controller) Compose() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.compose
}

// SetCompose replaces the input buffer without sending.
func (c *Controller) SetCompose(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.compose = text
}

// ClearCompose empties the input buffer. The ledger is untouched.
func (c *Controller) ClearCompose() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.compose = ""
}

// SuggestedPrompts returns example queries while the session has at most one
// exchange and no send is pending; nil otherwise. Selecting one populates
// the compose buffer via SetCompose, it never sends.
func (c *Controller) SuggestedPrompts() []string {
	c.mu.Lock()
	awaiting := c.awaiting
	c.mu.Unlock()

	if awaiting || c.ledger.Exchanges() > 1 {
		return nil
	}
	return append([]string(nil), defaultPrompts...)
}

// Close tears the controller down. In-flight delivery results are discarded
// instead of being applied to the ledger.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}
