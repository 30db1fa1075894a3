package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ghillie/ghillie/githubsource"
	"github.com/ghillie/ghillie/ingestion"
	"github.com/ghillie/ghillie/observability"
	"github.com/ghillie/ghillie/registry"
	"github.com/ghillie/ghillie/reporting"
)

// catalogLookup is the subset of *registry.Store GenerateReport depends on,
// narrowed to an interface so the handler can be tested with a fake.
type catalogLookup interface {
	Lookup(ctx context.Context, owner, name string) (*registry.Entry, error)
}

// reportGenerator is the subset of *reporting.Service GenerateReport
// depends on.
type reportGenerator interface {
	GenerateReport(ctx context.Context, repo githubsource.RepositoryInfo) (*reporting.Report, error)
}

// healthChecker is the subset of *ingestion.HealthService Ready depends on.
type healthChecker interface {
	Check(ctx context.Context) ([]ingestion.RepositoryHealth, error)
}

// Handlers binds the HTTP surface to the services it fronts.
type Handlers struct {
	Catalog   catalogLookup
	Health    healthChecker
	Reporting reportGenerator
	Metrics   *observability.Metrics
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// Health reports process liveness.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Ready reports ingestion health across every tracked repository,
// returning 503 if any repository has gone stalled.
func (h *Handlers) Ready(w http.ResponseWriter, r *http.Request) {
	if h.Health == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
		return
	}

	statuses, err := h.Health.Check(r.Context())
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "error", "message": err.Error()})
		return
	}

	stalled := make([]string, 0)
	for _, s := range statuses {
		if s.Stalled {
			stalled = append(stalled, s.RepoExternalID)
		}
	}
	if h.Metrics != nil {
		h.Metrics.TrackStalledRepository(len(stalled))
	}
	if len(stalled) > 0 {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "stalled", "repositories": stalled})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready", "repositories_tracked": len(statuses)})
}

// GenerateReport runs the reporting pipeline for one catalogued
// repository on demand.
func (h *Handlers) GenerateReport(w http.ResponseWriter, r *http.Request) {
	owner := chi.URLParam(r, "owner")
	name := chi.URLParam(r, "name")
	if owner == "" || name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "owner and name are required"})
		return
	}

	entry, err := h.Catalog.Lookup(r.Context(), owner, name)
	var notFound *registry.NotFoundError
	if errors.As(err, &notFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	report, err := h.Reporting.GenerateReport(r.Context(), *entry)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if report == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"report_id":    report.ID,
		"repository":   report.RepoExternalID,
		"window_start": report.WindowStart.Format(time.RFC3339),
		"window_end":   report.WindowEnd.Format(time.RFC3339),
		"generated_at": report.CreatedAt.Format(time.RFC3339),
		"status":       report.Status,
		"model":        report.Model,
	})
}
