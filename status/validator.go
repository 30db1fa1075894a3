package status

import (
	"fmt"
	"strings"

	"github.com/ghillie/ghillie/evidence"
)

// ValidationError aggregates every rule a draft report fails, matching the
// all-errors-at-once reporting of the original validator (reporting
// /validation.py) rather than failing fast on the first violation.
type ValidationError struct {
	Violations []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("status: report failed validation: %s", strings.Join(e.Violations, "; "))
}

// highlightEventRatio bounds how many highlights a draft may claim
// relative to the evidence bundle's event count before it is considered
// implausible.
const highlightEventRatio = 5

// Validate checks a draft report against spec.md §4.8's three report
// validator rules: an empty or whitespace-only summary, a summary that
// reads as truncated (trailing ellipsis), and a highlight count
// implausibly high relative to the bundle's event count.
func Validate(draft *Draft, bundle *evidence.Bundle) error {
	var violations []string

	if issue := checkEmptySummary(draft); issue != "" {
		violations = append(violations, issue)
	}
	if issue := checkTruncatedSummary(draft); issue != "" {
		violations = append(violations, issue)
	}
	if issue := checkImplausibleHighlights(bundle, draft); issue != "" {
		violations = append(violations, issue)
	}

	if len(violations) > 0 {
		return &ValidationError{Violations: violations}
	}
	return nil
}

func checkEmptySummary(draft *Draft) string {
	if strings.TrimSpace(draft.Summary) == "" {
		return "empty_summary: summary is empty or contains only whitespace"
	}
	return ""
}

func checkTruncatedSummary(draft *Draft) string {
	summary := strings.TrimRight(draft.Summary, " \t\n\r")
	if strings.HasSuffix(summary, "...") || strings.HasSuffix(summary, "…") {
		return "truncated_summary: summary appears truncated (trailing ellipsis)"
	}
	return ""
}

func checkImplausibleHighlights(bundle *evidence.Bundle, draft *Draft) string {
	eventCount := bundle.TotalEventCount
	if eventCount < 1 {
		eventCount = 1
	}
	highlightCount := len(draft.Highlights)
	if highlightCount > eventCount*highlightEventRatio {
		return fmt.Sprintf(
			"implausible_highlights: highlight count (%d) is implausibly high relative to event count (%d)",
			highlightCount, bundle.TotalEventCount,
		)
	}
	return ""
}
