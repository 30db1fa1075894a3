// Package reporting composes the evidence bundler and status model into
// Gold-layer reports (spec.md §4.9), tracking report coverage so future
// windows never re-surface already-reported facts.
package reporting

import (
	"time"

	"github.com/ghillie/ghillie/evidence"
)

// Scope distinguishes a repository-level report from a project-level
// rollup (spec.md §3); exactly one of RepoExternalID/ProjectID is set to
// match.
type Scope string

const (
	ScopeRepository Scope = "REPOSITORY"
	ScopeProject    Scope = "PROJECT"
)

// Report is a persisted Gold-layer report.
type Report struct {
	ID               string
	Scope            Scope
	RepoExternalID   string
	ProjectID        string
	WindowStart      time.Time
	WindowEnd        time.Time
	Status           evidence.ReportStatus
	Summary          string
	Highlights       []string
	RiskFlags        []string
	NextSteps        []string
	TotalEventCount  int
	Model            string
	Backend          string
	PromptTokens     *int
	CompletionTokens *int
	TotalTokens      *int
	LatencyMS        *float64
	CreatedAt        time.Time
}
