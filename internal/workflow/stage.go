// Package workflow tracks the six-layer insight pipeline: an ordered set of
// analysis stages, each assigned to an LLM provider and a set of data
// sources, advanced one stage at a time.
package workflow

// Status is the lifecycle state of a single stage.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusError      Status = "error"
)

// Stage is one unit of the insight pipeline. ID is the stable ordinal
// position and defines pipeline order.
type Stage struct {
	ID                int
	Title             string
	Description       string
	Status            Status
	Progress          int // 0-100, meaningful only while in progress
	EstimatedDuration string
	AssignedProvider  string
	DataSources       []string
}

// DefaultStages returns the seed pipeline: the six insight layers with their
// provider assignments and data-source bindings.
func DefaultStages() []Stage {
	return []Stage{
		{
			ID:                1,
			Title:             "Market Trends & Visual Preferences",
			Description:       "Macro market trends and visual preference analysis",
			Status:            StatusPending,
			EstimatedDuration: "~30s",
			AssignedProvider:  "Gemini 1.5 Flash",
			DataSources:       []string{"MindsDB", "Vertex AI", "PyTrends"},
		},
		{
			ID:                2,
			Title:             "Product Weaknesses & Supply Chain",
			Description:       "Product weakness and supply-chain pain point analysis",
			Status:            StatusPending,
			EstimatedDuration: "~30s",
			AssignedProvider:  "Claude 3 Haiku",
			DataSources:       []string{"MindsDB"},
		},
		{
			ID:                3,
			Title:             "Latent Demand & Innovation",
			Description:       "Unmet market demand and product innovation opportunities",
			Status:            StatusPending,
			EstimatedDuration: "~30s",
			AssignedProvider:  "Gemini 1.5 Flash",
			DataSources:       []string{"MindsDB", "Vertex AI"},
		},
		{
			ID:                4,
			Title:             "Seasonal Sales & Pricing",
			Description:       "Seasonality and pricing strategy analysis",
			Status:            StatusPending,
			EstimatedDuration: "~30s",
			AssignedProvider:  "Grok 2",
			DataSources:       []string{"MindsDB", "PyTrends"},
		},
		{
			ID:                5,
			Title:             "Features & User Pain Points",
			Description:       "Correlation between product features and user pain points",
			Status:            StatusPending,
			EstimatedDuration: "~30s",
			AssignedProvider:  "Claude 3 Haiku",
			DataSources:       []string{"MindsDB"},
		},
		{
			ID:                6,
			Title:             "Brand & Competitive Analysis",
			Description:       "Brand performance and competitive landscape",
			Status:            StatusPending,
			EstimatedDuration: "~30s",
			AssignedProvider:  "Grok 2",
			DataSources:       []string{"MindsDB", "Vertex AI", "PyTrends"},
		},
	}
}

func cloneStages(stages []Stage) []Stage {
	out := make([]Stage, len(stages))
	copy(out, stages)
	for i := range out {
		out[i].DataSources = append([]string(nil), stages[i].DataSources...)
	}
	return out
}
