package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// StageEvent is one update from the backend's analysis stream.
type StageEvent struct {
	StageID  int    `json:"stage_id"`
	Status   Status `json:"status"`
	Progress int    `json:"progress"`
	Step     string `json:"step,omitempty"`
}

// Feed subscribes to the backend's per-analysis stage stream over a
// websocket and folds each event into a Ledger. It is the live counterpart
// to the simulated ticker: the ledger cannot tell them apart.
type Feed struct {
	endpoint string
	ledger   *Ledger
	logger   *slog.Logger
}

// NewFeed creates a feed for one analysis run. The endpoint is the HTTP base
// URL of the backend; the websocket scheme is derived from it.
func NewFeed(baseURL, analysisID string, ledger *Ledger, logger *slog.Logger) *Feed {
	if logger == nil {
		logger = slog.Default()
	}
	return &Feed{
		endpoint: strings.TrimRight(baseURL, "/") + "/api/analysis/" + analysisID + "/stream",
		ledger:   ledger,
		logger:   logger,
	}
}

// Run connects and pumps events into the ledger until the stream ends or
// the context is cancelled. Cancellation closes the connection so no event
// is applied after teardown.
func (f *Feed) Run(ctx context.Context) error {
	wsEndpoint := f.endpoint
	wsEndpoint = strings.Replace(wsEndpoint, "http://", "ws://", 1)
	wsEndpoint = strings.Replace(wsEndpoint, "https://", "wss://", 1)

	u, err := url.Parse(wsEndpoint)
	if err != nil {
		return fmt.Errorf("parse endpoint: %w", err)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("websocket connect: %w", err)
	}

	var mu sync.Mutex
	closed := false
	closeConn := func() {
		mu.Lock()
		defer mu.Unlock()
		if !closed {
			closed = true
			conn.Close()
		}
	}
	defer closeConn()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			closeConn()
		case <-done:
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("read stage event: %w", err)
		}

		var ev StageEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			f.logger.Warn("malformed stage event", "error", err)
			continue
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		f.logger.Debug("stage event", "stage", ev.StageID, "status", ev.Status, "progress", ev.Progress)
		f.ledger.Apply(ev)
	}
}

// IsTeardown reports whether a feed error is just the context being
// cancelled during shutdown.
func IsTeardown(err error) bool {
	return errors.Is(err, context.Canceled)
}
