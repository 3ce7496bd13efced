package workflow

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stageStream serves a fixed event sequence over a websocket, then closes
// normally.
func stageStream(t *testing.T, events []StageEvent) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()

		for _, ev := range events {
			require.NoError(t, conn.WriteJSON(ev))
		}
		deadline := time.Now().Add(time.Second)
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = conn.WriteControl(websocket.CloseMessage, msg, deadline)
	}))
}

func TestFeedAppliesEvents(t *testing.T) {
	events := []StageEvent{
		{StageID: 1, Status: StatusInProgress, Progress: 40},
		{StageID: 1, Status: StatusCompleted},
		{StageID: 2, Status: StatusInProgress, Progress: 10},
	}
	srv := stageStream(t, events)
	defer srv.Close()

	ledger := testLedger(t, Config{})
	feed := NewFeed(srv.URL, "analysis_1", ledger, slog.Default())
	assert.True(t, strings.HasSuffix(feed.endpoint, "/api/analysis/analysis_1/stream"))

	// The httptest server ignores the path, so the endpoint shape is checked
	// above and the stream consumed here.
	feed.endpoint = srv.URL

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, feed.Run(ctx))

	stages := ledger.Stages()
	assert.Equal(t, StatusCompleted, stages[0].Status)
	assert.Equal(t, 100, stages[0].Progress)
	assert.Equal(t, StatusInProgress, stages[1].Status)
	assert.Equal(t, 10, stages[1].Progress)
}

func TestFeedCancelledDuringStream(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		// Hold the stream open until the client goes away.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	ledger := testLedger(t, Config{})
	feed := NewFeed(srv.URL, "analysis_1", ledger, slog.Default())
	feed.endpoint = srv.URL

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- feed.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.True(t, IsTeardown(err), "got %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("feed did not shut down after cancellation")
	}
}

func TestFeedConnectError(t *testing.T) {
	ledger := testLedger(t, Config{})
	feed := NewFeed("http://127.0.0.1:1", "x", ledger, slog.Default())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.Error(t, feed.Run(ctx))
}
