// Package silver promotes Bronze raw events into typed entities and
// event-facts (spec.md §4.5), idempotently and with payload-drift
// detection treated as a hard failure.
package silver

import "time"

// WorkType classifies an event-fact for evidence bundling and status-model
// prompting.
type WorkType string

const (
	WorkCommit       WorkType = "commit"
	WorkPullRequest  WorkType = "pull_request"
	WorkIssue        WorkType = "issue"
	WorkDocChange    WorkType = "doc_change"
)

// EventFact is the Silver-layer normalized representation of one raw
// event, described in spec.md §3.
type EventFact struct {
	ID             int64
	RawEventID     int64
	RepoExternalID string
	WorkType       WorkType
	SourceEventID  string
	OccurredAt     time.Time
	Actor          *string
	Summary        string
	Labels         []string
	CreatedAt      time.Time
}

// Repository is the typed Silver entity mirroring a tracked repository.
type Repository struct {
	ExternalID    string
	Owner         string
	Name          string
	DefaultBranch string
	UpdatedAt     time.Time
}

// Commit is the typed Silver entity for a single commit.
type Commit struct {
	RepoExternalID string
	SHA            string
	Message        string
	AuthorName     string
	AuthorEmail    string
	AuthoredAt     time.Time
	CommittedAt    time.Time
}

// PullRequest is the typed Silver entity for a pull request, keyed by
// repository and number; rows are upserted in place as state changes.
type PullRequest struct {
	RepoExternalID string
	Number         int
	Title          string
	State          string
	IsDraft        bool
	AuthorLogin    *string
	BaseRefName    string
	HeadRefName    string
	Labels         []string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Issue is the typed Silver entity for an issue.
type Issue struct {
	RepoExternalID string
	Number         int
	Title          string
	State          string
	AuthorLogin    *string
	Labels         []string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// DocumentationChange is the typed Silver entity for a commit touching a
// tracked documentation path.
type DocumentationChange struct {
	RepoExternalID string
	SHA            string
	Path           string
	IsRoadmap      bool
	IsADR          bool
	AuthorName     string
	CommittedAt    time.Time
}
