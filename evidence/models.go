// Package evidence assembles per-repository evidence bundles over a
// half-open time window [Start, End), excluding facts already covered by a
// prior report (spec.md §4.6). Each surviving event-fact is additionally
// classified into a work category (bug, feature, documentation, refactor,
// chore, unknown) derived from its labels and title/message, an axis
// distinct from silver.WorkType's commit/pull_request/issue/doc_change
// entity kind.
package evidence

import (
	"time"

	"github.com/ghillie/ghillie/silver"
)

// Window is a half-open evidence window; a fact at exactly End is excluded.
type Window struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t falls within the half-open window.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// Category classifies a commit, pull request, or issue by the kind of work
// it represents, grounded on the original evidence model's WorkType enum.
// It is derived from labels first, then from a title or message prefix.
type Category string

const (
	CategoryBug           Category = "bug"
	CategoryFeature       Category = "feature"
	CategoryDocumentation Category = "documentation"
	CategoryRefactor      Category = "refactor"
	CategoryChore         Category = "chore"
	CategoryUnknown       Category = "unknown"
)

// ReportStatus is the high-level status a status model assigns to a
// report, also carried on PreviousReportSummary so a later window can
// factor a prior report's status into its own.
type ReportStatus string

const (
	ReportStatusOnTrack ReportStatus = "on_track"
	ReportStatusAtRisk  ReportStatus = "at_risk"
	ReportStatusBlocked ReportStatus = "blocked"
	ReportStatusUnknown ReportStatus = "unknown"
)

// Item is one event-fact surfaced to the status model, annotated with the
// project slugs it has been attributed to.
type Item struct {
	Fact     silver.EventFact
	Projects []string
}

// CommitEvidence is a single commit surfaced in a bundle.
type CommitEvidence struct {
	FactID        int64
	SHA           string
	Message       string
	AuthorName    string
	AuthorEmail   string
	CommittedAt   time.Time
	Category      Category
	IsMergeCommit bool
}

// PullRequestEvidence is a single pull request surfaced in a bundle.
type PullRequestEvidence struct {
	FactID      int64
	Number      int
	Title       string
	AuthorLogin string
	State       string
	Labels      []string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	Category    Category
}

// IssueEvidence is a single issue surfaced in a bundle.
type IssueEvidence struct {
	FactID      int64
	Number      int
	Title       string
	AuthorLogin string
	State       string
	Labels      []string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	Category    Category
}

// DocumentationEvidence is a single documentation change surfaced in a
// bundle.
type DocumentationEvidence struct {
	FactID      int64
	Path        string
	CommitSHA   string
	AuthorName  string
	CommittedAt time.Time
	IsRoadmap   bool
	IsADR       bool
}

// WorkTypeGrouping totals commit/PR/issue counts per category, excluding
// merge commits, plus a handful of representative titles the status model
// can quote directly.
type WorkTypeGrouping struct {
	Category     Category
	CommitCount  int
	PRCount      int
	IssueCount   int
	SampleTitles []string
}

// Total sums the grouping's commit, PR, and issue counts.
func (g WorkTypeGrouping) Total() int { return g.CommitCount + g.PRCount + g.IssueCount }

// PreviousReportSummary is a condensed view of an already-generated report
// on the same repository, used to carry status and risk context forward
// into the next window.
type PreviousReportSummary struct {
	ReportID    string
	WindowStart time.Time
	WindowEnd   time.Time
	Status      ReportStatus
	Highlights  []string
	Risks       []string
	TotalEvents int
}

// Bundle is everything the status model needs to produce one report for
// one repository over one window.
type Bundle struct {
	RepoExternalID string
	Window         Window

	// Items is every surviving event-fact in occurred_at order, the source
	// of truth for coverage marking.
	Items []Item

	PreviousReports      []PreviousReportSummary
	Commits              []CommitEvidence
	PullRequests         []PullRequestEvidence
	Issues               []IssueEvidence
	DocumentationChanges []DocumentationEvidence
	WorkTypeGroupings    []WorkTypeGrouping

	TotalEventCount    int
	HasPreviousContext bool
	GeneratedAt        time.Time
}

// ByWorkType groups the bundle's items by entity kind, preserving
// occurred-at order within each group. Used for LLM prompt construction,
// where facts are presented one entity-kind section at a time.
func (b Bundle) ByWorkType() map[silver.WorkType][]Item {
	grouped := make(map[silver.WorkType][]Item)
	for _, item := range b.Items {
		grouped[item.Fact.WorkType] = append(grouped[item.Fact.WorkType], item)
	}
	return grouped
}

// IsEmpty reports whether the bundle carries no evidence at all, the
// signal the reporting service uses to skip report generation for a
// window with no activity.
func (b Bundle) IsEmpty() bool { return b.TotalEventCount == 0 }

// EventFactIDs returns the ids of every event-fact in the bundle, the set
// that MarkCovered folds into report_coverage.
func (b Bundle) EventFactIDs() []int64 {
	ids := make([]int64, 0, len(b.Items))
	for _, item := range b.Items {
		ids = append(ids, item.Fact.ID)
	}
	return ids
}

// Grouping returns the grouping for category, or the zero value if no
// commit, PR, or issue classified into it.
func (b Bundle) Grouping(category Category) WorkTypeGrouping {
	for _, g := range b.WorkTypeGroupings {
		if g.Category == category {
			return g
		}
	}
	return WorkTypeGrouping{Category: category}
}
