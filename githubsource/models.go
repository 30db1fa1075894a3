// Package githubsource implements the source-client interface of
// spec.md §4.2 against GitHub's GraphQL API, plus the noise-filter
// compiler of spec.md §4.4.
package githubsource

import (
	"time"

	"github.com/ghillie/ghillie/bronze"
)

// RepositoryInfo is the catalogue-supplied description of a tracked
// repository, grounded on RepositoryInfo in the original implementation.
type RepositoryInfo struct {
	ID                 string
	Owner              string
	Name               string
	DefaultBranch      string
	IngestionEnabled   bool
	DocumentationPaths []string
	EstateID           *string
}

// Slug returns the canonical "owner/name" identifier used as
// RepoExternalID throughout Bronze/Silver.
func (r RepositoryInfo) Slug() string { return r.Owner + "/" + r.Name }

// IngestedEvent is a single event yielded by a source-client stream,
// carrying an opaque resume cursor meaningful only to the emitting
// client instance.
type IngestedEvent struct {
	EventType     string
	SourceEventID string
	OccurredAt    time.Time
	Payload       bronze.Payload
	Cursor        string
}

// CandidateAuthors returns the author-like fields the noise compiler
// matches ignore_authors against.
func (e IngestedEvent) CandidateAuthors() []string {
	var out []string
	for _, key := range []string{"author_login", "author_name"} {
		if v, ok := e.Payload[key].(string); ok && v != "" {
			out = append(out, v)
		}
	}
	return out
}

// Labels returns the event's label list, if any.
func (e IngestedEvent) Labels() []string {
	raw, ok := e.Payload["labels"].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, l := range raw {
		if s, ok := l.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// TitleOrMessage returns the event's title/commit-message field used for
// prefix matching (noise filters and work-type classification).
func (e IngestedEvent) TitleOrMessage() string {
	for _, key := range []string{"title", "message"} {
		if v, ok := e.Payload[key].(string); ok {
			return v
		}
	}
	return ""
}

// Path returns the event's path field, if any (doc-change events).
func (e IngestedEvent) Path() string {
	v, _ := e.Payload["path"].(string)
	return v
}
