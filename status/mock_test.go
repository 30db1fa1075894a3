package status

import (
	"context"
	"testing"
	"time"

	"github.com/ghillie/ghillie/evidence"
)

func sampleBundle() *evidence.Bundle {
	return &evidence.Bundle{
		RepoExternalID: "acme/widgets",
		Window: evidence.Window{
			Start: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
			End:   time.Date(2024, 1, 8, 0, 0, 0, 0, time.UTC),
		},
		Commits: []evidence.CommitEvidence{
			{SHA: "a1", Message: "fix: null pointer", Category: evidence.CategoryBug},
		},
		PullRequests: []evidence.PullRequestEvidence{
			{Number: 12, Title: "Add export button", State: "open", Category: evidence.CategoryFeature},
		},
		WorkTypeGroupings: []evidence.WorkTypeGrouping{
			{Category: evidence.CategoryBug, CommitCount: 1, SampleTitles: []string{"fix: null pointer"}},
			{Category: evidence.CategoryFeature, PRCount: 1, SampleTitles: []string{"Add export button"}},
		},
		TotalEventCount: 2,
	}
}

func TestMockModelDeterministic(t *testing.T) {
	repo := RepoContext{Owner: "acme", Name: "widgets"}
	bundle := sampleBundle()

	m := NewMockModel()
	d1, err := m.GenerateReport(context.Background(), repo, bundle)
	if err != nil {
		t.Fatalf("GenerateReport: %v", err)
	}
	d2, err := m.GenerateReport(context.Background(), repo, bundle)
	if err != nil {
		t.Fatalf("GenerateReport: %v", err)
	}
	if d1.Summary != d2.Summary {
		t.Errorf("expected deterministic summary, got %q vs %q", d1.Summary, d2.Summary)
	}
	if len(d1.Highlights) == 0 {
		t.Error("expected at least one highlight for a bundle with feature activity")
	}
}

func TestMockModelEmptyBundleIsUnknown(t *testing.T) {
	m := NewMockModel()
	bundle := &evidence.Bundle{
		RepoExternalID: "acme/widgets",
		Window: evidence.Window{
			Start: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
			End:   time.Date(2024, 1, 8, 0, 0, 0, 0, time.UTC),
		},
	}
	d, err := m.GenerateReport(context.Background(), RepoContext{Owner: "acme", Name: "widgets"}, bundle)
	if err != nil {
		t.Fatalf("GenerateReport: %v", err)
	}
	if d.Summary == "" {
		t.Error("expected non-empty summary even for an empty bundle")
	}
	if d.Status != evidence.ReportStatusUnknown {
		t.Errorf("expected UNKNOWN status for an empty bundle, got %s", d.Status)
	}
	if len(d.Highlights) != 0 {
		t.Errorf("expected no highlights for an empty bundle, got %v", d.Highlights)
	}
}

func TestMockModelBugsOutweighingFeaturesIsAtRisk(t *testing.T) {
	bundle := &evidence.Bundle{
		TotalEventCount: 3,
		WorkTypeGroupings: []evidence.WorkTypeGrouping{
			{Category: evidence.CategoryBug, CommitCount: 2, IssueCount: 1},
			{Category: evidence.CategoryFeature, PRCount: 1},
		},
	}
	if got := determineStatus(bundle); got != evidence.ReportStatusAtRisk {
		t.Errorf("expected AT_RISK when bugs outweigh features, got %s", got)
	}
}

func TestMockModelCarriesForwardPreviousRisk(t *testing.T) {
	bundle := &evidence.Bundle{
		TotalEventCount: 1,
		PreviousReports: []evidence.PreviousReportSummary{
			{Status: evidence.ReportStatusAtRisk, Risks: []string{"flaky deploy"}},
		},
	}
	if got := determineStatus(bundle); got != evidence.ReportStatusAtRisk {
		t.Errorf("expected AT_RISK carried over from previous report, got %s", got)
	}
}

func TestMockModelNoSignalIsOnTrack(t *testing.T) {
	bundle := &evidence.Bundle{
		TotalEventCount: 1,
		WorkTypeGroupings: []evidence.WorkTypeGrouping{
			{Category: evidence.CategoryChore, CommitCount: 1},
		},
	}
	if got := determineStatus(bundle); got != evidence.ReportStatusOnTrack {
		t.Errorf("expected ON_TRACK with no risk signal, got %s", got)
	}
}
