package status

import (
	"testing"

	"github.com/ghillie/ghillie/evidence"
)

func TestValidateRejectsEmptySummary(t *testing.T) {
	err := Validate(&Draft{Summary: "  "}, &evidence.Bundle{})
	if err == nil {
		t.Fatal("expected validation error for empty summary")
	}
}

func TestValidateRejectsTruncatedSummary(t *testing.T) {
	err := Validate(&Draft{Summary: "Shipped three fixes and..."}, &evidence.Bundle{})
	if err == nil {
		t.Fatal("expected validation error for truncated summary")
	}
}

func TestValidateRejectsImplausibleHighlights(t *testing.T) {
	draft := &Draft{
		Summary:    "Quiet week.",
		Highlights: []string{"a", "b", "c", "d", "e", "f"},
	}
	bundle := &evidence.Bundle{TotalEventCount: 1}
	err := Validate(draft, bundle)
	if err == nil {
		t.Fatal("expected validation error for implausible highlight count")
	}
}

func TestValidateAcceptsWellFormedDraft(t *testing.T) {
	draft := &Draft{Summary: "ok", Highlights: []string{"did a thing"}}
	bundle := &evidence.Bundle{TotalEventCount: 1}
	if err := Validate(draft, bundle); err != nil {
		t.Fatalf("expected no validation error, got %v", err)
	}
}
