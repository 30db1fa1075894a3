package reporting

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/ghillie/ghillie/clock"
	"github.com/ghillie/ghillie/evidence"
	"github.com/ghillie/ghillie/ghillieerr"
	"github.com/ghillie/ghillie/githubsource"
	"github.com/ghillie/ghillie/observability"
	"github.com/ghillie/ghillie/status"
)

// Service runs the full evidence -> status-model -> validate -> persist
// pipeline for one repository at a time.
type Service struct {
	pool       *pgxpool.Pool
	bundler    *evidence.Bundler
	model      status.Model
	clock      clock.Clock
	windowDays int
	sinkPath   string
	log        zerolog.Logger
	metrics    *observability.Metrics
}

// NewService constructs a reporting service. sinkPath may be empty to
// disable the optional Markdown sink.
func NewService(pool *pgxpool.Pool, bundler *evidence.Bundler, model status.Model, c clock.Clock, windowDays int, sinkPath string, log zerolog.Logger) *Service {
	return &Service{pool: pool, bundler: bundler, model: model, clock: c, windowDays: windowDays, sinkPath: sinkPath, log: log.With().Str("component", "reporting").Logger()}
}

// WithMetrics attaches a metrics registry, returning the same service for
// chaining at construction time.
func (s *Service) WithMetrics(m *observability.Metrics) *Service {
	s.metrics = m
	return s
}

// ComputeNextWindow returns the half-open window to report next: starting
// at the last report's end, through windowDays later or now, whichever is
// earlier. A repository with no prior report starts windowDays back from
// now.
func (s *Service) ComputeNextWindow(ctx context.Context, repoExternalID string) (evidence.Window, error) {
	var lastEnd *time.Time
	row := s.pool.QueryRow(ctx, `SELECT window_end FROM reports WHERE repo_external_id = $1 ORDER BY window_end DESC LIMIT 1`, repoExternalID)
	var end time.Time
	err := row.Scan(&end)
	switch {
	case err == nil:
		lastEnd = &end
	case errors.Is(err, pgx.ErrNoRows):
		// no prior report
	default:
		return evidence.Window{}, &ghillieerr.DatabaseError{Cause: err}
	}

	now := s.clock.Now()
	windowDuration := time.Duration(s.windowDays) * 24 * time.Hour
	if lastEnd == nil {
		return evidence.Window{Start: now.Add(-windowDuration), End: now}, nil
	}
	if lastEnd.After(now) {
		return evidence.Window{}, fmt.Errorf("reporting: last report window_end %s is in the future", lastEnd)
	}
	windowEnd := lastEnd.Add(windowDuration)
	if windowEnd.After(now) {
		windowEnd = now
	}
	return evidence.Window{Start: *lastEnd, End: windowEnd}, nil
}

// GenerateReport runs the pipeline for one repository: it computes the
// next window, bundles uncovered evidence, asks the status model for a
// draft, validates it, and persists a Report plus its coverage rows. A
// window with no evidence produces no report (nil, nil).
func (s *Service) GenerateReport(ctx context.Context, repo githubsource.RepositoryInfo) (*Report, error) {
	window, err := s.ComputeNextWindow(ctx, repo.Slug())
	if err != nil {
		return nil, err
	}
	if !window.End.After(window.Start) {
		return nil, nil
	}

	bundle, err := s.bundler.Build(ctx, repo.Slug(), window)
	if err != nil {
		return nil, err
	}
	if bundle.IsEmpty() {
		s.log.Info().Str("repo", repo.Slug()).Msg("no uncovered evidence for window, skipping report")
		return nil, nil
	}

	draft, err := s.model.GenerateReport(ctx, status.RepoContext{Owner: repo.Owner, Name: repo.Name, DefaultBranch: repo.DefaultBranch}, bundle)
	if err != nil {
		return nil, fmt.Errorf("reporting: status model failed: %w", err)
	}
	if err := status.Validate(draft, bundle); err != nil {
		return nil, err
	}

	report := &Report{
		ID:              uuid.New().String(),
		Scope:           ScopeRepository,
		RepoExternalID:  repo.Slug(),
		WindowStart:     window.Start,
		WindowEnd:       window.End,
		Status:          draft.Status,
		Summary:         draft.Summary,
		Highlights:      draft.Highlights,
		RiskFlags:       draft.RiskFlags,
		NextSteps:       draft.NextSteps,
		TotalEventCount: bundle.TotalEventCount,
		Model:           modelFromMetadata(draft.Metadata),
		Backend:         backendFromMetadata(draft.Metadata),
		CreatedAt:       s.clock.Now(),
	}
	if draft.Metrics != (status.InvocationMetrics{}) {
		promptTokens, completionTokens, totalTokens := draft.Metrics.PromptTokens, draft.Metrics.CompletionTokens, draft.Metrics.TotalTokens
		latency := draft.Metrics.LatencyMS
		report.PromptTokens = &promptTokens
		report.CompletionTokens = &completionTokens
		report.TotalTokens = &totalTokens
		report.LatencyMS = &latency
	}

	if err := s.persist(ctx, report); err != nil {
		return nil, err
	}
	if err := s.bundler.MarkCovered(ctx, report.ID, bundle); err != nil {
		return nil, err
	}
	if s.sinkPath != "" {
		if err := s.writeMarkdownSink(report); err != nil {
			s.log.Warn().Err(err).Str("repo", repo.Slug()).Msg("failed to write markdown report sink")
		}
	}
	if s.metrics != nil {
		s.metrics.TrackReportGenerated(report.RepoExternalID, report.Backend)
	}

	return report, nil
}

func backendFromMetadata(metadata map[string]any) string {
	if backend, ok := metadata["backend"].(string); ok {
		return backend
	}
	return "unknown"
}

func modelFromMetadata(metadata map[string]any) string {
	if model, ok := metadata["model"].(string); ok && model != "" {
		return model
	}
	return "unknown"
}

func (s *Service) persist(ctx context.Context, r *Report) error {
	highlights, err := json.Marshal(r.Highlights)
	if err != nil {
		return fmt.Errorf("reporting: marshal highlights: %w", err)
	}
	riskFlags, err := json.Marshal(r.RiskFlags)
	if err != nil {
		return fmt.Errorf("reporting: marshal risk flags: %w", err)
	}
	nextSteps, err := json.Marshal(r.NextSteps)
	if err != nil {
		return fmt.Errorf("reporting: marshal next steps: %w", err)
	}

	var repoExternalID, projectID *string
	if r.RepoExternalID != "" {
		repoExternalID = &r.RepoExternalID
	}
	if r.ProjectID != "" {
		projectID = &r.ProjectID
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO reports (
			id, scope, repo_external_id, project_id, window_start, window_end, status,
			summary, highlights, risk_flags, next_steps, total_event_count, model, backend,
			prompt_tokens, completion_tokens, total_tokens, latency_ms, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
	`,
		r.ID, string(r.Scope), repoExternalID, projectID, r.WindowStart, r.WindowEnd, string(r.Status),
		r.Summary, highlights, riskFlags, nextSteps, r.TotalEventCount, r.Model, r.Backend,
		r.PromptTokens, r.CompletionTokens, r.TotalTokens, r.LatencyMS, r.CreatedAt,
	)
	if err != nil {
		return &ghillieerr.DatabaseError{Cause: err}
	}
	return nil
}

func (s *Service) writeMarkdownSink(r *Report) error {
	if err := os.MkdirAll(s.sinkPath, 0o755); err != nil {
		return err
	}
	safeName := strings.ReplaceAll(r.RepoExternalID, "/", "__")
	filename := fmt.Sprintf("%s_%s.md", safeName, r.WindowEnd.Format("20060102"))
	path := filepath.Join(s.sinkPath, filename)

	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", r.RepoExternalID)
	fmt.Fprintf(&b, "Window: %s to %s\n\n", r.WindowStart.Format(time.RFC3339), r.WindowEnd.Format(time.RFC3339))
	fmt.Fprintf(&b, "%s\n\n", r.Summary)
	if len(r.Highlights) > 0 {
		b.WriteString("## Highlights\n\n")
		for _, h := range r.Highlights {
			fmt.Fprintf(&b, "- %s\n", h)
		}
		b.WriteString("\n")
	}
	if len(r.RiskFlags) > 0 {
		b.WriteString("## Risk flags\n\n")
		for _, rf := range r.RiskFlags {
			fmt.Fprintf(&b, "- %s\n", rf)
		}
	}

	return os.WriteFile(path, []byte(b.String()), 0o644)
}
