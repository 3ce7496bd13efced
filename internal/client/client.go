// Package client provides an HTTP client for the ProdScope backend API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prodscope/prodscope/internal/conversation"
	"github.com/prodscope/prodscope/internal/health"
)

// Client talks to the ProdScope backend. It implements the conversation
// Deliverer and the health Prober, so the core state model can be pointed
// at a real backend without rearchitecture.
type Client struct {
	baseURL    string
	httpClient *http.Client
	userID     string
	sessionID  string
}

// New creates a client for the given base URL.
// If baseURL is empty, uses PRODSCOPE_API_URL or defaults to localhost:8000.
// Timeout can be configured via PRODSCOPE_CLIENT_TIMEOUT (default 60s).
func New(baseURL, userID string) *Client {
	if baseURL == "" {
		baseURL = os.Getenv("PRODSCOPE_API_URL")
	}
	if baseURL == "" {
		baseURL = "http://localhost:8000"
	}
	if userID == "" {
		userID = "default"
	}

	timeout := 60 * time.Second
	if t := os.Getenv("PRODSCOPE_CLIENT_TIMEOUT"); t != "" {
		if d, err := time.ParseDuration(t); err == nil {
			timeout = d
		}
	}

	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		userID:    userID,
		sessionID: uuid.New().String(),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// BaseURL returns the configured backend base URL.
func (c *Client) BaseURL() string { return c.baseURL }

// SessionID returns the chat session identifier for this client.
func (c *Client) SessionID() string { return c.sessionID }

// chatRequest is the payload for the chat endpoint.
type chatRequest struct {
	Message   string `json:"message"`
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id"`
}

// ChatResponse is the backend's reply to a chat message.
type ChatResponse struct {
	Response        string    `json:"response"`
	Timestamp       time.Time `json:"timestamp"`
	ProcessingTime  float64   `json:"processing_time"`
	LLMProvider     string    `json:"llm_provider"`
	DataSourcesUsed []string  `json:"data_sources_used"`
	AnalysisID      *string   `json:"analysis_id,omitempty"`
}

// SendMessage posts one chat message and returns the assistant reply.
func (c *Client) SendMessage(ctx context.Context, message string) (*ChatResponse, error) {
	req := chatRequest{
		Message:   message,
		UserID:    c.userID,
		SessionID: c.sessionID,
	}
	var resp ChatResponse
	if err := c.postJSON(ctx, "/api/chat/message", req, &resp); err != nil {
		return nil, fmt.Errorf("send message: %w", err)
	}
	return &resp, nil
}

// Deliver implements conversation.Deliverer.
func (c *Client) Deliver(ctx context.Context, message string) (*conversation.Result, error) {
	resp, err := c.SendMessage(ctx, message)
	if err != nil {
		return nil, err
	}
	return &conversation.Result{
		Response:        resp.Response,
		Provider:        resp.LLMProvider,
		ProcessingTime:  resp.ProcessingTime,
		DataSourcesUsed: resp.DataSourcesUsed,
	}, nil
}

// analysisRequest starts a six-layer insight run.
type analysisRequest struct {
	Query        string `json:"query"`
	AnalysisType string `json:"analysis_type"`
	UserID       string `json:"user_id"`
}

type analysisStarted struct {
	AnalysisID string `json:"analysis_id"`
	Status     string `json:"status"`
	Message    string `json:"message"`
}

// StartAnalysis launches a six-layer insight analysis and returns its ID.
func (c *Client) StartAnalysis(ctx context.Context, query string) (string, error) {
	req := analysisRequest{
		Query:        query,
		AnalysisType: "six_layer_insight",
		UserID:       c.userID,
	}
	var resp analysisStarted
	if err := c.postJSON(ctx, "/api/analysis/start", req, &resp); err != nil {
		return "", fmt.Errorf("start analysis: %w", err)
	}
	return resp.AnalysisID, nil
}

// AnalysisStatus is a progress snapshot of a running analysis.
type AnalysisStatus struct {
	AnalysisID             string `json:"analysis_id"`
	Status                 string `json:"status"`
	Progress               int    `json:"progress"`
	CurrentStep            string `json:"current_step"`
	EstimatedTimeRemaining *int   `json:"estimated_time_remaining,omitempty"`
}

// GetAnalysisStatus fetches progress for a running analysis.
func (c *Client) GetAnalysisStatus(ctx context.Context, analysisID string) (*AnalysisStatus, error) {
	var resp AnalysisStatus
	if err := c.getJSON(ctx, "/api/analysis/"+analysisID+"/status", &resp); err != nil {
		return nil, fmt.Errorf("analysis status: %w", err)
	}
	return &resp, nil
}

// Insight is one completed layer of an analysis run.
type Insight struct {
	InsightID       int      `json:"insight_id"`
	Title           string   `json:"title"`
	Content         string   `json:"content"`
	Confidence      float64  `json:"confidence"`
	DataSources     []string `json:"data_sources"`
	Recommendations []string `json:"recommendations"`
}

type analysisResults struct {
	AnalysisID string    `json:"analysis_id"`
	Query      string    `json:"query"`
	Insights   []Insight `json:"insights"`
}

// GetAnalysisResults fetches the insights of a completed analysis.
func (c *Client) GetAnalysisResults(ctx context.Context, analysisID string) ([]Insight, error) {
	var resp analysisResults
	if err := c.getJSON(ctx, "/api/analysis/"+analysisID+"/results", &resp); err != nil {
		return nil, fmt.Errorf("analysis results: %w", err)
	}
	return resp.Insights, nil
}

// sourceStatus mirrors the wire shape of one data-source record.
type sourceStatus struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Type         string   `json:"type"`
	Status       string   `json:"status"`
	RecordCount  int      `json:"record_count,omitempty"`
	ResponseTime int      `json:"response_time,omitempty"`
	Capabilities []string `json:"capabilities,omitempty"`
}

type sourcesResponse struct {
	LastUpdated time.Time      `json:"last_updated"`
	Sources     []sourceStatus `json:"sources"`
}

// DataSourceStatus fetches the backend's view of every data source.
func (c *Client) DataSourceStatus(ctx context.Context) ([]health.Record, error) {
	var resp sourcesResponse
	if err := c.getJSON(ctx, "/api/data-sources/status", &resp); err != nil {
		return nil, fmt.Errorf("data source status: %w", err)
	}

	records := make([]health.Record, len(resp.Sources))
	for i, s := range resp.Sources {
		records[i] = health.Record{
			ID:             s.ID,
			Name:           s.Name,
			Kind:           health.Kind(s.Type),
			Status:         health.Status(s.Status),
			LastSync:       resp.LastUpdated,
			ResponseTimeMs: s.ResponseTime,
			RecordCount:    s.RecordCount,
			Capabilities:   s.Capabilities,
		}
	}
	return records, nil
}

// Probe implements health.Prober.
func (c *Client) Probe(ctx context.Context) ([]health.Record, error) {
	return c.DataSourceStatus(ctx)
}

// Health checks the backend's health endpoint.
func (c *Client) Health(ctx context.Context) error {
	var resp struct {
		Status string `json:"status"`
	}
	if err := c.getJSON(ctx, "/api/health", &resp); err != nil {
		return fmt.Errorf("health check: %w", err)
	}
	if resp.Status != "healthy" {
		return fmt.Errorf("backend unhealthy: %s", resp.Status)
	}
	return nil
}

func (c *Client) postJSON(ctx context.Context, path string, payload, result any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(req, result)
}

func (c *Client) getJSON(ctx context.Context, path string, result any) error {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	return c.do(req, result)
}

func (c *Client) do(req *http.Request, result any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server error: %s - %s", resp.Status, string(body))
	}

	if result != nil && len(body) > 0 {
		if err := json.Unmarshal(body, result); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}
	return nil
}
