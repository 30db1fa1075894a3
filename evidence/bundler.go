package evidence

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ghillie/ghillie/clock"
	"github.com/ghillie/ghillie/ghillieerr"
	"github.com/ghillie/ghillie/silver"
)

// RepositoryNotFoundError reports that a bundle was requested for a
// repository the catalogue does not track, spec.md §4.6 step 1's
// fail-fast resolution.
type RepositoryNotFoundError struct {
	RepoExternalID string
}

func (e *RepositoryNotFoundError) Error() string {
	return fmt.Sprintf("evidence: no tracked repository %q", e.RepoExternalID)
}

// ProjectRepositoryLookup resolves the project slugs a repository belongs
// to, per spec.md §9's Open Question on PROJECT-scope exclusion. A no-op
// implementation is used when no catalogue schema backs it.
type ProjectRepositoryLookup interface {
	ProjectSlugsFor(ctx context.Context, repoSlug string) ([]string, error)
}

// NoProjectLookup always returns no project slugs, used when the catalogue
// has no project/repository mapping configured.
type NoProjectLookup struct{}

func (NoProjectLookup) ProjectSlugsFor(ctx context.Context, repoSlug string) ([]string, error) {
	return nil, nil
}

// Bundler assembles evidence bundles from Silver event-facts and typed
// entities.
type Bundler struct {
	pool     *pgxpool.Pool
	projects ProjectRepositoryLookup
	clock    clock.Clock
}

// NewBundler binds a bundler to a connection pool and a project lookup.
// Pass NoProjectLookup{} when no catalogue is configured.
func NewBundler(pool *pgxpool.Pool, projects ProjectRepositoryLookup, c clock.Clock) *Bundler {
	if projects == nil {
		projects = NoProjectLookup{}
	}
	return &Bundler{pool: pool, projects: projects, clock: c}
}

// mergeCommitPattern matches GitHub's default merge-commit message for a
// pull request merge, e.g. "Merge pull request #42 from acme/feature-x".
var mergeCommitPattern = regexp.MustCompile(`(?i)^merge pull request #\d+`)

func isMergeCommit(message string) bool {
	return mergeCommitPattern.MatchString(strings.TrimSpace(message))
}

var titlePrefixCategories = []struct {
	prefix   string
	category Category
}{
	{"fix:", CategoryBug},
	{"feat:", CategoryFeature},
	{"docs:", CategoryDocumentation},
	{"refactor:", CategoryRefactor},
	{"chore:", CategoryChore},
}

// classify derives a work category from labels first, falling back to a
// conventional-commit-style title or message prefix, per spec.md §4.6
// step 4.
func classify(labels []string, text string) Category {
	for _, label := range labels {
		switch strings.ToLower(strings.TrimSpace(label)) {
		case "bug":
			return CategoryBug
		case "feature", "enhancement":
			return CategoryFeature
		case "documentation":
			return CategoryDocumentation
		case "refactor":
			return CategoryRefactor
		case "chore":
			return CategoryChore
		}
	}
	lower := strings.ToLower(strings.TrimSpace(text))
	for _, p := range titlePrefixCategories {
		if strings.HasPrefix(lower, p.prefix) {
			return p.category
		}
	}
	return CategoryUnknown
}

// Build selects every event-fact for repoExternalID within window that is
// not already covered by a prior report, derives typed evidence and work
// categories for each, and attaches prior-report context, per spec.md
// §4.6.
func (b *Bundler) Build(ctx context.Context, repoExternalID string, window Window) (*Bundle, error) {
	if err := b.resolveRepository(ctx, repoExternalID); err != nil {
		return nil, err
	}

	items, err := b.queryUncoveredFacts(ctx, repoExternalID, window)
	if err != nil {
		return nil, err
	}

	commits, pullRequests, issues, docs, err := b.deriveTypedEvidence(ctx, repoExternalID, items)
	if err != nil {
		return nil, err
	}

	previous, err := b.previousReports(ctx, repoExternalID)
	if err != nil {
		return nil, err
	}

	bundle := &Bundle{
		RepoExternalID:       repoExternalID,
		Window:               window,
		Items:                items,
		PreviousReports:      previous,
		Commits:              commits,
		PullRequests:         pullRequests,
		Issues:               issues,
		DocumentationChanges: docs,
		WorkTypeGroupings:    groupByCategory(commits, pullRequests, issues),
		GeneratedAt:          b.clock.Now().UTC(),
	}
	bundle.TotalEventCount = len(commits) + len(pullRequests) + len(issues) + len(docs)
	bundle.HasPreviousContext = len(previous) > 0

	return bundle, nil
}

func (b *Bundler) resolveRepository(ctx context.Context, repoExternalID string) error {
	owner, name, ok := strings.Cut(repoExternalID, "/")
	if !ok {
		return &RepositoryNotFoundError{RepoExternalID: repoExternalID}
	}
	var exists bool
	err := b.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM tracked_repositories WHERE owner = $1 AND name = $2)`,
		owner, name,
	).Scan(&exists)
	if err != nil {
		return &ghillieerr.DatabaseError{Cause: err}
	}
	if !exists {
		return &RepositoryNotFoundError{RepoExternalID: repoExternalID}
	}
	return nil
}

func (b *Bundler) queryUncoveredFacts(ctx context.Context, repoExternalID string, window Window) ([]Item, error) {
	rows, err := b.pool.Query(ctx, `
		SELECT f.id, f.raw_event_id, f.repo_external_id, f.work_type, f.source_event_id,
		       f.occurred_at, f.actor, f.summary, f.labels, f.created_at
		FROM event_facts f
		WHERE f.repo_external_id = $1
		  AND f.occurred_at >= $2
		  AND f.occurred_at < $3
		  AND NOT EXISTS (
		      SELECT 1 FROM report_coverage rc
		      WHERE rc.event_fact_id = f.id
		  )
		ORDER BY f.occurred_at ASC
	`, repoExternalID, window.Start, window.End)
	if err != nil {
		return nil, &ghillieerr.DatabaseError{Cause: err}
	}
	defer rows.Close()

	projects, err := b.projects.ProjectSlugsFor(ctx, repoExternalID)
	if err != nil {
		projects = nil
	}

	var items []Item
	for rows.Next() {
		var f silver.EventFact
		if err := rows.Scan(&f.ID, &f.RawEventID, &f.RepoExternalID, &f.WorkType, &f.SourceEventID,
			&f.OccurredAt, &f.Actor, &f.Summary, &f.Labels, &f.CreatedAt); err != nil {
			return nil, &ghillieerr.DatabaseError{Cause: err}
		}
		items = append(items, Item{Fact: f, Projects: projects})
	}
	if rows.Err() != nil {
		return nil, &ghillieerr.DatabaseError{Cause: rows.Err()}
	}
	return items, nil
}

// deriveTypedEvidence resolves each event-fact against its typed Silver
// entity, classifying commits, pull requests, and issues into a work
// category and flagging merge commits along the way.
func (b *Bundler) deriveTypedEvidence(ctx context.Context, repoExternalID string, items []Item) ([]CommitEvidence, []PullRequestEvidence, []IssueEvidence, []DocumentationEvidence, error) {
	var commitSHAs []string
	var prNumbers, issueNumbers []int
	var docKeys []string
	for _, item := range items {
		switch item.Fact.WorkType {
		case silver.WorkCommit:
			commitSHAs = append(commitSHAs, item.Fact.SourceEventID)
		case silver.WorkDocChange:
			docKeys = append(docKeys, item.Fact.SourceEventID)
		case silver.WorkPullRequest:
			if n, err := strconv.Atoi(strings.TrimSpace(item.Fact.SourceEventID)); err == nil {
				prNumbers = append(prNumbers, n)
			}
		case silver.WorkIssue:
			if n, err := strconv.Atoi(strings.TrimSpace(item.Fact.SourceEventID)); err == nil {
				issueNumbers = append(issueNumbers, n)
			}
		}
	}

	commitRows, err := b.fetchCommits(ctx, repoExternalID, commitSHAs)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	prRows, err := b.fetchPullRequests(ctx, repoExternalID, prNumbers)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	issueRows, err := b.fetchIssues(ctx, repoExternalID, issueNumbers)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	docRows, err := b.fetchDocChanges(ctx, repoExternalID, docKeys)
	if err != nil {
		return nil, nil, nil, nil, err
	}

	var commits []CommitEvidence
	var pullRequests []PullRequestEvidence
	var issues []IssueEvidence
	var docs []DocumentationEvidence

	for _, item := range items {
		switch item.Fact.WorkType {
		case silver.WorkCommit:
			row, ok := commitRows[item.Fact.SourceEventID]
			if !ok {
				continue
			}
			commits = append(commits, CommitEvidence{
				FactID:        item.Fact.ID,
				SHA:           row.SHA,
				Message:       row.Message,
				AuthorName:    row.AuthorName,
				AuthorEmail:   row.AuthorEmail,
				CommittedAt:   row.CommittedAt,
				Category:      classify(nil, row.Message),
				IsMergeCommit: isMergeCommit(row.Message),
			})
		case silver.WorkPullRequest:
			number, err := strconv.Atoi(strings.TrimSpace(item.Fact.SourceEventID))
			if err != nil {
				continue
			}
			row, ok := prRows[number]
			if !ok {
				continue
			}
			author := ""
			if row.AuthorLogin != nil {
				author = *row.AuthorLogin
			}
			pullRequests = append(pullRequests, PullRequestEvidence{
				FactID:      item.Fact.ID,
				Number:      row.Number,
				Title:       row.Title,
				AuthorLogin: author,
				State:       row.State,
				Labels:      row.Labels,
				CreatedAt:   row.CreatedAt,
				UpdatedAt:   row.UpdatedAt,
				Category:    classify(row.Labels, row.Title),
			})
		case silver.WorkIssue:
			number, err := strconv.Atoi(strings.TrimSpace(item.Fact.SourceEventID))
			if err != nil {
				continue
			}
			row, ok := issueRows[number]
			if !ok {
				continue
			}
			author := ""
			if row.AuthorLogin != nil {
				author = *row.AuthorLogin
			}
			issues = append(issues, IssueEvidence{
				FactID:      item.Fact.ID,
				Number:      row.Number,
				Title:       row.Title,
				AuthorLogin: author,
				State:       row.State,
				Labels:      row.Labels,
				CreatedAt:   row.CreatedAt,
				UpdatedAt:   row.UpdatedAt,
				Category:    classify(row.Labels, row.Title),
			})
		case silver.WorkDocChange:
			row, ok := docRows[item.Fact.SourceEventID+"|"+item.Fact.Summary]
			if !ok {
				continue
			}
			docs = append(docs, DocumentationEvidence{
				FactID:      item.Fact.ID,
				Path:        row.Path,
				CommitSHA:   row.SHA,
				AuthorName:  row.AuthorName,
				CommittedAt: row.CommittedAt,
				IsRoadmap:   row.IsRoadmap,
				IsADR:       row.IsADR,
			})
		}
	}

	return commits, pullRequests, issues, docs, nil
}

func (b *Bundler) fetchCommits(ctx context.Context, repoExternalID string, shas []string) (map[string]silver.Commit, error) {
	out := make(map[string]silver.Commit)
	if len(shas) == 0 {
		return out, nil
	}
	rows, err := b.pool.Query(ctx, `
		SELECT sha, message, author_name, author_email, authored_at, committed_at
		FROM commits WHERE repo_external_id = $1 AND sha = ANY($2)
	`, repoExternalID, shas)
	if err != nil {
		return nil, &ghillieerr.DatabaseError{Cause: err}
	}
	defer rows.Close()
	for rows.Next() {
		var c silver.Commit
		if err := rows.Scan(&c.SHA, &c.Message, &c.AuthorName, &c.AuthorEmail, &c.AuthoredAt, &c.CommittedAt); err != nil {
			return nil, &ghillieerr.DatabaseError{Cause: err}
		}
		c.RepoExternalID = repoExternalID
		out[c.SHA] = c
	}
	return out, rows.Err()
}

func (b *Bundler) fetchPullRequests(ctx context.Context, repoExternalID string, numbers []int) (map[int]silver.PullRequest, error) {
	out := make(map[int]silver.PullRequest)
	if len(numbers) == 0 {
		return out, nil
	}
	rows, err := b.pool.Query(ctx, `
		SELECT number, title, state, is_draft, author_login, base_ref_name, head_ref_name, labels, created_at, updated_at
		FROM pull_requests WHERE repo_external_id = $1 AND number = ANY($2)
	`, repoExternalID, numbers)
	if err != nil {
		return nil, &ghillieerr.DatabaseError{Cause: err}
	}
	defer rows.Close()
	for rows.Next() {
		var pr silver.PullRequest
		if err := rows.Scan(&pr.Number, &pr.Title, &pr.State, &pr.IsDraft, &pr.AuthorLogin, &pr.BaseRefName, &pr.HeadRefName, &pr.Labels, &pr.CreatedAt, &pr.UpdatedAt); err != nil {
			return nil, &ghillieerr.DatabaseError{Cause: err}
		}
		pr.RepoExternalID = repoExternalID
		out[pr.Number] = pr
	}
	return out, rows.Err()
}

func (b *Bundler) fetchIssues(ctx context.Context, repoExternalID string, numbers []int) (map[int]silver.Issue, error) {
	out := make(map[int]silver.Issue)
	if len(numbers) == 0 {
		return out, nil
	}
	rows, err := b.pool.Query(ctx, `
		SELECT number, title, state, author_login, labels, created_at, updated_at
		FROM issues WHERE repo_external_id = $1 AND number = ANY($2)
	`, repoExternalID, numbers)
	if err != nil {
		return nil, &ghillieerr.DatabaseError{Cause: err}
	}
	defer rows.Close()
	for rows.Next() {
		var is silver.Issue
		if err := rows.Scan(&is.Number, &is.Title, &is.State, &is.AuthorLogin, &is.Labels, &is.CreatedAt, &is.UpdatedAt); err != nil {
			return nil, &ghillieerr.DatabaseError{Cause: err}
		}
		is.RepoExternalID = repoExternalID
		out[is.Number] = is
	}
	return out, rows.Err()
}

// fetchDocChanges keys results by "sha|path" since a single commit can
// touch more than one tracked documentation path.
func (b *Bundler) fetchDocChanges(ctx context.Context, repoExternalID string, keys []string) (map[string]silver.DocumentationChange, error) {
	out := make(map[string]silver.DocumentationChange)
	if len(keys) == 0 {
		return out, nil
	}
	rows, err := b.pool.Query(ctx, `
		SELECT sha, path, is_roadmap, is_adr, author_name, committed_at
		FROM documentation_changes WHERE repo_external_id = $1 AND sha = ANY($2)
	`, repoExternalID, keys)
	if err != nil {
		return nil, &ghillieerr.DatabaseError{Cause: err}
	}
	defer rows.Close()
	for rows.Next() {
		var d silver.DocumentationChange
		if err := rows.Scan(&d.SHA, &d.Path, &d.IsRoadmap, &d.IsADR, &d.AuthorName, &d.CommittedAt); err != nil {
			return nil, &ghillieerr.DatabaseError{Cause: err}
		}
		d.RepoExternalID = repoExternalID
		out[d.SHA+"|"+d.Path] = d
	}
	return out, rows.Err()
}

// previousReports returns up to the two most recently generated reports
// on repoExternalID, most recent first, per spec.md §4.6 step 6. Only
// REPOSITORY-scoped reports are considered, consistent with the
// PROJECT-scope exclusion recorded in DESIGN.md.
func (b *Bundler) previousReports(ctx context.Context, repoExternalID string) ([]PreviousReportSummary, error) {
	rows, err := b.pool.Query(ctx, `
		SELECT id, window_start, window_end, status, highlights, risk_flags, total_event_count
		FROM reports
		WHERE repo_external_id = $1
		ORDER BY window_end DESC, created_at DESC
		LIMIT 2
	`, repoExternalID)
	if err != nil {
		return nil, &ghillieerr.DatabaseError{Cause: err}
	}
	defer rows.Close()

	var out []PreviousReportSummary
	for rows.Next() {
		var s PreviousReportSummary
		var status string
		var highlights, risks []byte
		if err := rows.Scan(&s.ReportID, &s.WindowStart, &s.WindowEnd, &status, &highlights, &risks, &s.TotalEvents); err != nil {
			return nil, &ghillieerr.DatabaseError{Cause: err}
		}
		s.Status = ReportStatus(status)
		_ = json.Unmarshal(highlights, &s.Highlights)
		_ = json.Unmarshal(risks, &s.Risks)
		out = append(out, s)
	}
	return out, rows.Err()
}

// groupByCategory totals commit/PR/issue activity per work category,
// excluding merge commits from the counts (they remain in bundle.Commits),
// per spec.md §4.6 step 5.
func groupByCategory(commits []CommitEvidence, pullRequests []PullRequestEvidence, issues []IssueEvidence) []WorkTypeGrouping {
	order := []Category{CategoryBug, CategoryFeature, CategoryDocumentation, CategoryRefactor, CategoryChore, CategoryUnknown}
	type agg struct {
		commitCount, prCount, issueCount int
		titles                           []string
	}
	byCategory := make(map[Category]*agg)
	get := func(c Category) *agg {
		a, ok := byCategory[c]
		if !ok {
			a = &agg{}
			byCategory[c] = a
		}
		return a
	}

	for _, c := range commits {
		if c.IsMergeCommit {
			continue
		}
		get(c.Category).commitCount++
	}
	for _, pr := range pullRequests {
		a := get(pr.Category)
		a.prCount++
		if len(a.titles) < 5 {
			a.titles = append(a.titles, pr.Title)
		}
	}
	for _, is := range issues {
		a := get(is.Category)
		a.issueCount++
		if len(a.titles) < 5 {
			a.titles = append(a.titles, is.Title)
		}
	}

	var groupings []WorkTypeGrouping
	for _, c := range order {
		a, ok := byCategory[c]
		if !ok {
			continue
		}
		groupings = append(groupings, WorkTypeGrouping{
			Category:     c,
			CommitCount:  a.commitCount,
			PRCount:      a.prCount,
			IssueCount:   a.issueCount,
			SampleTitles: a.titles,
		})
	}
	return groupings
}

// MarkCovered records that every fact in the bundle has now been folded
// into reportID, so future bundling excludes them (coverage monotonicity).
func (b *Bundler) MarkCovered(ctx context.Context, reportID string, bundle *Bundle) error {
	if len(bundle.Items) == 0 {
		return nil
	}
	batch := make([][]any, 0, len(bundle.Items))
	for _, item := range bundle.Items {
		batch = append(batch, []any{reportID, item.Fact.ID})
	}
	_, err := b.pool.CopyFrom(ctx,
		pgx.Identifier{"report_coverage"},
		[]string{"report_id", "event_fact_id"},
		pgx.CopyFromRows(batch),
	)
	if err != nil {
		return &ghillieerr.DatabaseError{Cause: err}
	}
	return nil
}
