// Package status implements the pluggable status-model abstraction of
// spec.md §4.7: a deterministic mock suitable for tests and an
// OpenAI-compatible LLM adapter, selected by configuration.
package status

import (
	"context"

	"github.com/ghillie/ghillie/evidence"
)

// RepoContext carries the repository identity a draft report is written
// about, used for prompt construction and mock summaries alike.
type RepoContext struct {
	Owner         string
	Name          string
	DefaultBranch string
}

func (r RepoContext) Slug() string { return r.Owner + "/" + r.Name }

// InvocationMetrics captures the latency and token usage of a single
// status-model call, so the reporting service can record them onto the
// persisted Report.
type InvocationMetrics struct {
	LatencyMS        float64
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Draft is the status model's raw output, validated and persisted by the
// reporting service.
type Draft struct {
	Summary    string
	Status     evidence.ReportStatus
	Highlights []string
	RiskFlags  []string
	NextSteps  []string
	Metadata   map[string]any
	Metrics    InvocationMetrics
}

// Model is the pluggable status-model abstraction. Implementations must be
// safe to reuse across repositories and windows.
type Model interface {
	GenerateReport(ctx context.Context, repo RepoContext, bundle *evidence.Bundle) (*Draft, error)
}
