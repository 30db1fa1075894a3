package evidence

import (
	"testing"
	"time"

	"github.com/ghillie/ghillie/silver"
)

func TestWindowContainsHalfOpen(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 1, 8, 0, 0, 0, 0, time.UTC)
	w := Window{Start: start, End: end}

	if !w.Contains(start) {
		t.Error("expected window to contain its own start")
	}
	if w.Contains(end) {
		t.Error("expected window to exclude its own end (half-open)")
	}
	if !w.Contains(start.Add(time.Hour)) {
		t.Error("expected window to contain a time strictly inside it")
	}
	if w.Contains(start.Add(-time.Second)) {
		t.Error("expected window to exclude a time before start")
	}
}

func TestBundleByWorkTypeGroupsAndPreservesOrder(t *testing.T) {
	b := Bundle{
		RepoExternalID: "acme/widgets",
		Items: []Item{
			{Fact: silver.EventFact{WorkType: silver.WorkCommit, SourceEventID: "c1"}},
			{Fact: silver.EventFact{WorkType: silver.WorkIssue, SourceEventID: "i1"}},
			{Fact: silver.EventFact{WorkType: silver.WorkCommit, SourceEventID: "c2"}},
		},
	}

	grouped := b.ByWorkType()
	commits := grouped[silver.WorkCommit]
	if len(commits) != 2 {
		t.Fatalf("expected 2 commits, got %d", len(commits))
	}
	if commits[0].Fact.SourceEventID != "c1" || commits[1].Fact.SourceEventID != "c2" {
		t.Error("expected commit order preserved within group")
	}
	if len(grouped[silver.WorkIssue]) != 1 {
		t.Errorf("expected 1 issue, got %d", len(grouped[silver.WorkIssue]))
	}
}

func TestBundleIsEmpty(t *testing.T) {
	if !(Bundle{}).IsEmpty() {
		t.Error("expected zero-value bundle to be empty")
	}
	b := Bundle{
		Items:           []Item{{Fact: silver.EventFact{WorkType: silver.WorkCommit}}},
		TotalEventCount: 1,
	}
	if b.IsEmpty() {
		t.Error("expected non-empty bundle with items to report non-empty")
	}
}

func TestBundleGroupingReturnsZeroValueWhenAbsent(t *testing.T) {
	b := Bundle{
		WorkTypeGroupings: []WorkTypeGrouping{
			{Category: CategoryBug, CommitCount: 2},
		},
	}
	if got := b.Grouping(CategoryBug).CommitCount; got != 2 {
		t.Errorf("expected bug grouping commit count 2, got %d", got)
	}
	if got := b.Grouping(CategoryFeature).Total(); got != 0 {
		t.Errorf("expected zero-value grouping for an absent category, got %d", got)
	}
}

func TestBundleEventFactIDsCollectsFromItems(t *testing.T) {
	b := Bundle{
		Items: []Item{
			{Fact: silver.EventFact{ID: 1}},
			{Fact: silver.EventFact{ID: 2}},
		},
	}
	ids := b.EventFactIDs()
	if len(ids) != 2 || ids[0] != 1 || ids[1] != 2 {
		t.Errorf("expected [1 2], got %v", ids)
	}
}
