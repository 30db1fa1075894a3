package status

import (
	"context"
	"fmt"

	"github.com/ghillie/ghillie/evidence"
)

// MockModel is a deterministic status model: same bundle in, same draft
// out, with no network calls. Grounded on the original mock status model
// (status/mock.py), used for tests and for deployments without an LLM
// credential configured.
type MockModel struct{}

// NewMockModel returns a mock model.
func NewMockModel() *MockModel { return &MockModel{} }

func (m *MockModel) GenerateReport(ctx context.Context, repo RepoContext, bundle *evidence.Bundle) (*Draft, error) {
	status := determineStatus(bundle)
	return &Draft{
		Summary:    generateSummary(repo, bundle, status),
		Status:     status,
		Highlights: extractHighlights(bundle),
		RiskFlags:  extractRisks(bundle),
		NextSteps:  suggestNextSteps(bundle, status),
		Metadata:   map[string]any{"backend": "mock", "model": "mock"},
	}, nil
}

// determineStatus follows the mock's documented priority order: no
// activity is UNKNOWN, a carried-forward previous risk is AT_RISK, bug
// activity outweighing feature activity is AT_RISK, otherwise ON_TRACK.
func determineStatus(bundle *evidence.Bundle) evidence.ReportStatus {
	if bundle.TotalEventCount == 0 {
		return evidence.ReportStatusUnknown
	}
	if hasPreviousRisks(bundle) {
		return evidence.ReportStatusAtRisk
	}
	bugCount := bundle.Grouping(evidence.CategoryBug).Total()
	featureCount := bundle.Grouping(evidence.CategoryFeature).Total()
	if bugCount > 0 && bugCount > featureCount {
		return evidence.ReportStatusAtRisk
	}
	return evidence.ReportStatusOnTrack
}

// hasPreviousRisks reports whether the most recent previous report (by
// construction, previous_reports[0]) carried risks while already at
// AT_RISK or BLOCKED.
func hasPreviousRisks(bundle *evidence.Bundle) bool {
	if len(bundle.PreviousReports) == 0 {
		return false
	}
	latest := bundle.PreviousReports[0]
	if len(latest.Risks) == 0 {
		return false
	}
	return latest.Status == evidence.ReportStatusAtRisk || latest.Status == evidence.ReportStatusBlocked
}

var statusText = map[evidence.ReportStatus]string{
	evidence.ReportStatusOnTrack: "is on track",
	evidence.ReportStatusAtRisk:  "is at risk",
	evidence.ReportStatusBlocked: "is blocked",
	evidence.ReportStatusUnknown: "has unknown status",
}

func generateSummary(repo RepoContext, bundle *evidence.Bundle, status evidence.ReportStatus) string {
	if bundle.TotalEventCount == 0 {
		return fmt.Sprintf("%s had no recorded activity during this period.", repo.Slug())
	}

	commitCount := len(bundle.Commits)
	prCount := len(bundle.PullRequests)
	issueCount := len(bundle.Issues)

	return fmt.Sprintf(
		"%s %s with %d events including %d %s, %d %s, and %d %s.",
		repo.Slug(), statusText[status], bundle.TotalEventCount,
		commitCount, pluralize(commitCount, "commit", "commits"),
		prCount, pluralize(prCount, "pull request", "pull requests"),
		issueCount, pluralize(issueCount, "issue", "issues"),
	)
}

func pluralize(n int, singular, plural string) string {
	if n == 1 {
		return singular
	}
	return plural
}

// extractHighlights surfaces delivered feature PR counts and sample
// titles, plus a documentation note, up to 5 entries.
func extractHighlights(bundle *evidence.Bundle) []string {
	var highlights []string
	for _, g := range bundle.WorkTypeGroupings {
		switch g.Category {
		case evidence.CategoryFeature:
			if g.PRCount > 0 {
				highlights = append(highlights, fmt.Sprintf("Delivered %d feature %s", g.PRCount, pluralize(g.PRCount, "PR", "PRs")))
			}
			highlights = append(highlights, firstN(g.SampleTitles, 2)...)
		case evidence.CategoryDocumentation:
			if g.CommitCount+g.PRCount > 0 {
				highlights = append(highlights, "Updated documentation")
			}
		}
	}
	return firstN(highlights, 5)
}

// extractRisks carries the previous report's top two risks forward,
// tagged (Ongoing), then appends one risk per bug grouping with open
// issues, up to 5 entries.
func extractRisks(bundle *evidence.Bundle) []string {
	var risks []string
	if len(bundle.PreviousReports) > 0 {
		for _, r := range firstN(bundle.PreviousReports[0].Risks, 2) {
			risks = append(risks, "(Ongoing) "+r)
		}
	}
	for _, g := range bundle.WorkTypeGroupings {
		if g.Category == evidence.CategoryBug && g.IssueCount > 0 {
			risks = append(risks, fmt.Sprintf("%d bug %s require attention", g.IssueCount, pluralize(g.IssueCount, "issue", "issues")))
		}
	}
	return firstN(risks, 5)
}

// suggestNextSteps adds a mitigation step on AT_RISK, an investigation
// step on UNKNOWN, and a review/triage step per open PR/issue count, up to
// 5 entries.
func suggestNextSteps(bundle *evidence.Bundle, status evidence.ReportStatus) []string {
	var steps []string
	if status == evidence.ReportStatusAtRisk {
		steps = append(steps, "Review and address identified risks")
	}
	if status == evidence.ReportStatusUnknown {
		steps = append(steps, "Investigate lack of activity")
	}

	openPRs := 0
	for _, pr := range bundle.PullRequests {
		if pr.State == "open" {
			openPRs++
		}
	}
	if openPRs > 0 {
		steps = append(steps, fmt.Sprintf("Review %d open %s", openPRs, pluralize(openPRs, "PR", "PRs")))
	}

	openIssues := 0
	for _, is := range bundle.Issues {
		if is.State == "open" {
			openIssues++
		}
	}
	if openIssues > 0 {
		steps = append(steps, fmt.Sprintf("Triage %d open %s", openIssues, pluralize(openIssues, "issue", "issues")))
	}

	return firstN(steps, 5)
}

func firstN(items []string, n int) []string {
	if len(items) <= n {
		return items
	}
	return items[:n]
}
