package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ghillie/ghillie/evidence"
	"github.com/ghillie/ghillie/githubsource"
	"github.com/ghillie/ghillie/ingestion"
	"github.com/ghillie/ghillie/registry"
	"github.com/ghillie/ghillie/reporting"
)

type fakeCatalog struct {
	entry *registry.Entry
	err   error
}

func (f *fakeCatalog) Lookup(ctx context.Context, owner, name string) (*registry.Entry, error) {
	return f.entry, f.err
}

type fakeReporting struct {
	report *reporting.Report
	err    error
}

func (f *fakeReporting) GenerateReport(ctx context.Context, repo githubsource.RepositoryInfo) (*reporting.Report, error) {
	return f.report, f.err
}

type fakeHealth struct {
	statuses []ingestion.RepositoryHealth
	err      error
}

func (f *fakeHealth) Check(ctx context.Context) ([]ingestion.RepositoryHealth, error) {
	return f.statuses, f.err
}

func TestHealthReturnsOK(t *testing.T) {
	h := &Handlers{}
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	h.Health(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
}

func TestReadyWithNilHealthIsReady(t *testing.T) {
	h := &Handlers{}
	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	w := httptest.NewRecorder()
	h.Ready(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
}

func TestReadyWithStalledRepositoryReturnsUnavailable(t *testing.T) {
	h := &Handlers{Health: &fakeHealth{statuses: []ingestion.RepositoryHealth{
		{RepoExternalID: "acme/widgets", Stalled: true},
	}}}
	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	w := httptest.NewRecorder()
	h.Ready(w, req)
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", w.Code)
	}
}

func TestReadyWithHealthyRepositoriesReturnsOK(t *testing.T) {
	h := &Handlers{Health: &fakeHealth{statuses: []ingestion.RepositoryHealth{
		{RepoExternalID: "acme/widgets", Stalled: false},
	}}}
	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	w := httptest.NewRecorder()
	h.Ready(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
}

func TestReadyWithCheckErrorReturnsUnavailable(t *testing.T) {
	h := &Handlers{Health: &fakeHealth{err: context.DeadlineExceeded}}
	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	w := httptest.NewRecorder()
	h.Ready(w, req)
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", w.Code)
	}
}

func generateReportRequest(owner, name string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/repos/"+owner+"/"+name+"/reports", nil)
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("owner", owner)
	rctx.URLParams.Add("name", name)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func TestGenerateReportRejectsMissingParams(t *testing.T) {
	h := &Handlers{}
	req := generateReportRequest("", "")
	w := httptest.NewRecorder()
	h.GenerateReport(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestGenerateReportReturnsNotFoundForUnknownRepository(t *testing.T) {
	h := &Handlers{Catalog: &fakeCatalog{err: &registry.NotFoundError{Owner: "acme", Name: "widgets"}}}
	req := generateReportRequest("acme", "widgets")
	w := httptest.NewRecorder()
	h.GenerateReport(w, req)
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}

func TestGenerateReportReturnsServerErrorOnLookupFailure(t *testing.T) {
	h := &Handlers{Catalog: &fakeCatalog{err: context.DeadlineExceeded}}
	req := generateReportRequest("acme", "widgets")
	w := httptest.NewRecorder()
	h.GenerateReport(w, req)
	if w.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", w.Code)
	}
}

func TestGenerateReportReturnsServerErrorOnGenerationFailure(t *testing.T) {
	h := &Handlers{
		Catalog:   &fakeCatalog{entry: &registry.Entry{Owner: "acme", Name: "widgets"}},
		Reporting: &fakeReporting{err: context.DeadlineExceeded},
	}
	req := generateReportRequest("acme", "widgets")
	w := httptest.NewRecorder()
	h.GenerateReport(w, req)
	if w.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", w.Code)
	}
}

func TestGenerateReportReturnsNoContentWhenNothingToReport(t *testing.T) {
	h := &Handlers{
		Catalog:   &fakeCatalog{entry: &registry.Entry{Owner: "acme", Name: "widgets"}},
		Reporting: &fakeReporting{report: nil},
	}
	req := generateReportRequest("acme", "widgets")
	w := httptest.NewRecorder()
	h.GenerateReport(w, req)
	if w.Code != http.StatusNoContent {
		t.Errorf("expected 204, got %d", w.Code)
	}
}

func TestGenerateReportReturnsOKWithSpecFields(t *testing.T) {
	report := &reporting.Report{
		ID:             "r1",
		RepoExternalID: "acme/widgets",
		WindowStart:    time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		WindowEnd:      time.Date(2026, 1, 8, 0, 0, 0, 0, time.UTC),
		CreatedAt:      time.Date(2026, 1, 8, 1, 0, 0, 0, time.UTC),
		Status:         evidence.ReportStatusOnTrack,
		Model:          "mock",
	}
	h := &Handlers{
		Catalog:   &fakeCatalog{entry: &registry.Entry{Owner: "acme", Name: "widgets"}},
		Reporting: &fakeReporting{report: report},
	}
	req := generateReportRequest("acme", "widgets")
	w := httptest.NewRecorder()
	h.GenerateReport(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	for _, field := range []string{"report_id", "repository", "window_start", "window_end", "generated_at", "status", "model"} {
		if _, ok := body[field]; !ok {
			t.Errorf("expected response to contain field %q, got %v", field, body)
		}
	}
	if body["report_id"] != "r1" {
		t.Errorf("expected report_id r1, got %v", body["report_id"])
	}
	if body["model"] != "mock" {
		t.Errorf("expected model mock, got %v", body["model"])
	}
}
