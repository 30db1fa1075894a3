package status

import (
	"strings"
	"testing"

	"github.com/ghillie/ghillie/evidence"
)

func TestParseDraftPopulatesAllFields(t *testing.T) {
	content := `{
		"summary": "Shipped two features and fixed a bug.",
		"status": "at_risk",
		"highlights": ["Delivered export button"],
		"risks": ["Flaky CI"],
		"next_steps": ["Review open PRs"]
	}`
	draft, err := parseDraft(content)
	if err != nil {
		t.Fatalf("parseDraft: %v", err)
	}
	if draft.Status != evidence.ReportStatusAtRisk {
		t.Errorf("expected status at_risk, got %s", draft.Status)
	}
	if len(draft.Highlights) != 1 || len(draft.RiskFlags) != 1 || len(draft.NextSteps) != 1 {
		t.Errorf("expected one entry per list field, got %+v", draft)
	}
	if draft.Metadata["backend"] != "openai" {
		t.Errorf("expected backend metadata tag, got %v", draft.Metadata["backend"])
	}
}

func TestParseDraftRejectsInvalidJSON(t *testing.T) {
	if _, err := parseDraft("not json"); err == nil {
		t.Fatal("expected an error for malformed JSON content")
	}
}

func TestParseReportStatusMapsUnknownStringsToUnknown(t *testing.T) {
	cases := map[string]evidence.ReportStatus{
		"on_track": evidence.ReportStatusOnTrack,
		"AT_RISK":  evidence.ReportStatusAtRisk,
		"blocked":  evidence.ReportStatusBlocked,
		"":         evidence.ReportStatusUnknown,
		"done":     evidence.ReportStatusUnknown,
	}
	for in, want := range cases {
		if got := parseReportStatus(in); got != want {
			t.Errorf("parseReportStatus(%q) = %s, want %s", in, got, want)
		}
	}
}

func TestBuildPromptIncludesRepoAndGroupings(t *testing.T) {
	bundle := &evidence.Bundle{
		Window: evidence.Window{},
		WorkTypeGroupings: []evidence.WorkTypeGrouping{
			{Category: evidence.CategoryBug, CommitCount: 1, SampleTitles: []string{"fix: crash on load"}},
		},
	}
	prompt := buildPrompt(RepoContext{Owner: "acme", Name: "widgets"}, bundle)
	for _, want := range []string{"acme/widgets", "bug", "fix: crash on load"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("expected prompt to contain %q, got %q", want, prompt)
		}
	}
}
