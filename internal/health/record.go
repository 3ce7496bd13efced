// Package health tracks the external data sources feeding the insight
// pipeline and keeps their status records fresh.
package health

import (
	"fmt"
	"time"
)

// Kind classifies a data source.
type Kind string

const (
	KindDatabase Kind = "database"
	KindAPI      Kind = "api"
	KindSearch   Kind = "search"
	KindTrends   Kind = "trends"
)

// Status is the connectivity state of a data source.
type Status string

const (
	StatusOnline     Status = "online"
	StatusConnecting Status = "connecting"
	StatusOffline    Status = "offline"
	StatusError      Status = "error"
)

// Record describes one external data source. LastSync is a structured
// timestamp; the display label is derived from it, never stored.
// ResponseTimeMs zero means unknown.
type Record struct {
	ID             string
	Name           string
	Kind           Kind
	Status         Status
	LastSync       time.Time
	ResponseTimeMs int
	RecordCount    int
	Capabilities   []string

	// Unreachable marks the designated always-offline source: a full
	// refresh forces it offline instead of online.
	Unreachable bool
}

// LastSyncLabel renders the sync timestamp as a relative display string.
func (r Record) LastSyncLabel(now time.Time) string {
	if r.LastSync.IsZero() {
		return "never"
	}
	d := now.Sub(r.LastSync)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}

// DefaultRecords returns the seed data-source set. The Amazon Product API
// entry is the designated unreachable source.
func DefaultRecords(now time.Time) []Record {
	return []Record{
		{
			ID:             "mindsdb",
			Name:           "MindsDB",
			Kind:           KindDatabase,
			Status:         StatusOnline,
			LastSync:       now.Add(-2 * time.Minute),
			ResponseTimeMs: 45,
			RecordCount:    37891,
			Capabilities:   []string{"SQL queries", "realtime aggregation", "sentiment analysis"},
		},
		{
			ID:             "vertex-ai",
			Name:           "Vertex AI",
			Kind:           KindSearch,
			Status:         StatusOnline,
			LastSync:       now.Add(-30 * time.Second),
			ResponseTimeMs: 320,
			Capabilities:   []string{"web search", "citation grounding", "multilingual"},
		},
		{
			ID:             "pytrends",
			Name:           "PyTrends",
			Kind:           KindTrends,
			Status:         StatusConnecting,
			LastSync:       now.Add(-time.Minute),
			ResponseTimeMs: 2100,
			Capabilities:   []string{"trend analysis", "regional data", "related queries"},
		},
		{
			ID:           "amazon-api",
			Name:         "Amazon Product API",
			Kind:         KindAPI,
			Status:       StatusOffline,
			Capabilities: []string{"listing details", "price history"},
			Unreachable:  true,
		},
	}
}

func cloneRecords(records []Record) []Record {
	out := make([]Record, len(records))
	copy(out, records)
	for i := range out {
		out[i].Capabilities = append([]string(nil), records[i].Capabilities...)
	}
	return out
}
