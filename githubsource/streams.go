package githubsource

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/ghillie/ghillie/bronze"
)

func commitEventFromNode(repo RepositoryInfo, node map[string]any, since time.Time) (*IngestedEvent, error) {
	oid, _ := node["oid"].(string)
	authoredAtRaw, _ := node["authoredDate"].(string)
	committedAtRaw, _ := node["committedDate"].(string)
	authoredAt, err := parseGitHubDatetime(authoredAtRaw)
	if err != nil {
		return nil, NewMissingFieldError("history.edges.node.authoredDate")
	}
	committedAt, err := parseGitHubDatetime(committedAtRaw)
	if err != nil {
		return nil, NewMissingFieldError("history.edges.node.committedDate")
	}
	if !committedAt.After(since) {
		return nil, nil
	}

	author, _ := node["author"].(map[string]any)
	authorName, _ := author["name"].(string)
	authorEmail, _ := author["email"].(string)

	payload := bronze.Payload{
		"sha":             oid,
		"message":         node["message"],
		"author_name":     authorName,
		"author_email":    authorEmail,
		"authored_at":     authoredAt,
		"committed_at":    committedAt,
		"repo_owner":      repo.Owner,
		"repo_name":       repo.Name,
		"default_branch":  repo.DefaultBranch,
	}
	return &IngestedEvent{
		EventType:     "github.commit",
		SourceEventID: oid,
		OccurredAt:    committedAt,
		Payload:       payload,
	}, nil
}

func docChangeEventFromNode(repo RepositoryInfo, node map[string]any, path string, since time.Time) (*IngestedEvent, error) {
	oid, _ := node["oid"].(string)
	committedAtRaw, _ := node["committedDate"].(string)
	committedAt, err := parseGitHubDatetime(committedAtRaw)
	if err != nil {
		return nil, NewMissingFieldError("history.edges.node.committedDate")
	}
	if !committedAt.After(since) {
		return nil, nil
	}
	isRoadmap, isADR := classifyDocumentationPath(path)
	author, _ := node["author"].(map[string]any)
	authorName, _ := author["name"].(string)

	payload := bronze.Payload{
		"sha":          oid,
		"path":         path,
		"message":      node["message"],
		"author_name":  authorName,
		"committed_at": committedAt,
		"repo_owner":   repo.Owner,
		"repo_name":    repo.Name,
		"is_roadmap":   isRoadmap,
		"is_adr":       isADR,
	}
	return &IngestedEvent{
		EventType:     "github.doc_change",
		SourceEventID: oid + ":" + path,
		OccurredAt:    committedAt,
		Payload:       payload,
	}, nil
}

// pullRequestEventFromNode returns the event (nil if before since) and
// whether the caller should stop paginating, mirroring
// _pull_request_event_from_node: pages are ordered UPDATED_AT DESC so the
// first node at or before since ends the stream.
func pullRequestEventFromNode(repo RepositoryInfo, node map[string]any, since time.Time) (*IngestedEvent, bool, error) {
	updatedAtRaw, _ := node["updatedAt"].(string)
	updatedAt, err := parseGitHubDatetime(updatedAtRaw)
	if err != nil {
		return nil, true, NewMissingFieldError("pullRequests.nodes.updatedAt")
	}
	if !updatedAt.After(since) {
		return nil, true, nil
	}

	createdAtRaw, _ := node["createdAt"].(string)
	createdAt, _ := parseGitHubDatetime(createdAtRaw)
	number, _ := node["number"].(float64)
	title, _ := node["title"].(string)
	state, _ := node["state"].(string)
	isDraft, _ := node["isDraft"].(bool)
	baseRef, _ := node["baseRefName"].(string)
	headRef, _ := node["headRefName"].(string)

	payload := bronze.Payload{
		"number":        number,
		"title":         title,
		"state":         coercePRState(state, node["mergedAt"]),
		"is_draft":      isDraft,
		"created_at":    createdAt,
		"updated_at":    updatedAt,
		"base_ref_name": baseRef,
		"head_ref_name": headRef,
		"author_login":  maybeLoginValue(maybeLogin(node["author"])),
		"labels":        labelNames(node["labels"]),
		"repo_owner":    repo.Owner,
		"repo_name":     repo.Name,
	}
	sourceEventID := fmt.Sprintf("%s/%s#%d", repo.Owner, repo.Name, int(number))
	return &IngestedEvent{
		EventType:     "github.pull_request",
		SourceEventID: sourceEventID,
		OccurredAt:    updatedAt,
		Payload:       payload,
	}, false, nil
}

func issueEventFromNode(repo RepositoryInfo, node map[string]any, since time.Time) (*IngestedEvent, bool, error) {
	updatedAtRaw, _ := node["updatedAt"].(string)
	updatedAt, err := parseGitHubDatetime(updatedAtRaw)
	if err != nil {
		return nil, true, NewMissingFieldError("issues.nodes.updatedAt")
	}
	if !updatedAt.After(since) {
		return nil, true, nil
	}

	createdAtRaw, _ := node["createdAt"].(string)
	createdAt, _ := parseGitHubDatetime(createdAtRaw)
	number, _ := node["number"].(float64)
	title, _ := node["title"].(string)
	state, _ := node["state"].(string)

	payload := bronze.Payload{
		"number":       number,
		"title":        title,
		"state":        strings.ToLower(state),
		"created_at":   createdAt,
		"updated_at":   updatedAt,
		"author_login": maybeLoginValue(maybeLogin(node["author"])),
		"labels":       labelNames(node["labels"]),
		"repo_owner":   repo.Owner,
		"repo_name":    repo.Name,
	}
	sourceEventID := fmt.Sprintf("%s/%s#%d", repo.Owner, repo.Name, int(number))
	return &IngestedEvent{
		EventType:     "github.issue",
		SourceEventID: sourceEventID,
		OccurredAt:    updatedAt,
		Payload:       payload,
	}, false, nil
}

func maybeLoginValue(login *string) any {
	if login == nil {
		return nil
	}
	return *login
}

// pageStream is the shared pull-based iterator shape: it buffers one page
// of already-converted events at a time and re-queries on exhaustion until
// the server reports no further page or the conversion function signals
// stop.
type pageStream struct {
	fetch   func(ctx context.Context, after *string) ([]*IngestedEvent, *string, bool, error)
	buf     []*IngestedEvent
	cursor  *string
	done    bool
}

func (s *pageStream) Next(ctx context.Context) (*IngestedEvent, error) {
	for len(s.buf) == 0 {
		if s.done {
			return nil, io.EOF
		}
		page, next, stop, err := s.fetch(ctx, s.cursor)
		if err != nil {
			return nil, err
		}
		s.buf = page
		s.cursor = next
		if next == nil || stop {
			s.done = true
		}
	}
	ev := s.buf[0]
	s.buf = s.buf[1:]
	return ev, nil
}

func (s *pageStream) Close() error { return nil }

// IterCommits streams commit events on the repository's default branch,
// most-recent-first within each page but overall bounded only by since.
func (c *GraphQLClient) IterCommits(ctx context.Context, repo RepositoryInfo, since time.Time, after *string) (Stream, error) {
	return &pageStream{
		cursor: after,
		fetch: func(ctx context.Context, cursor *string) ([]*IngestedEvent, *string, bool, error) {
			data, err := c.graphql(ctx, commitsQuery, map[string]any{
				"owner":         repo.Owner,
				"name":          repo.Name,
				"qualifiedName": "refs/heads/" + repo.DefaultBranch,
				"since":         since.UTC().Format(time.RFC3339),
				"after":         cursor,
				"path":          nil,
			})
			if err != nil {
				return nil, nil, false, err
			}
			history, err := extractCommitHistory(data)
			if err != nil {
				return nil, nil, false, err
			}
			edges, err := connectionEdges(history, "history")
			if err != nil {
				return nil, nil, false, err
			}
			var out []*IngestedEvent
			for _, edge := range edges {
				node, _ := edge["node"].(map[string]any)
				ev, err := commitEventFromNode(repo, node, since)
				if err != nil {
					return nil, nil, false, err
				}
				if ev != nil {
					ev.Cursor, _ = edge["cursor"].(string)
					out = append(out, ev)
				}
			}
			return out, pageInfoNext(history), false, nil
		},
	}, nil
}

// IterDocChanges streams commit events scoped to each documentation path in
// turn, flattening the per-path sub-streams into one sequence.
func (c *GraphQLClient) IterDocChanges(ctx context.Context, repo RepositoryInfo, since time.Time, documentationPaths []string, after *string) (Stream, error) {
	paths := append([]string(nil), documentationPaths...)
	pathIndex := 0
	var pathCursor *string = after

	return &pageStream{
		fetch: func(ctx context.Context, _ *string) ([]*IngestedEvent, *string, bool, error) {
			for pathIndex < len(paths) {
				path := paths[pathIndex]
				data, err := c.graphql(ctx, commitsQuery, map[string]any{
					"owner":         repo.Owner,
					"name":          repo.Name,
					"qualifiedName": "refs/heads/" + repo.DefaultBranch,
					"since":         since.UTC().Format(time.RFC3339),
					"after":         pathCursor,
					"path":          path,
				})
				if err != nil {
					return nil, nil, false, err
				}
				history, err := extractCommitHistory(data)
				if err != nil {
					return nil, nil, false, err
				}
				edges, err := connectionEdges(history, "history")
				if err != nil {
					return nil, nil, false, err
				}
				var out []*IngestedEvent
				for _, edge := range edges {
					node, _ := edge["node"].(map[string]any)
					ev, err := docChangeEventFromNode(repo, node, path, since)
					if err != nil {
						return nil, nil, false, err
					}
					if ev != nil {
						out = append(out, ev)
					}
				}
				next := pageInfoNext(history)
				pathCursor = next
				if next == nil {
					pathIndex++
					pathCursor = nil
				}
				if len(out) > 0 {
					stop := pathIndex >= len(paths) && next == nil
					more := next
					if more == nil && !stop {
						// Later paths remain: a non-nil cursor keeps pageStream
						// fetching; this closure tracks its own path cursor.
						placeholder := ""
						more = &placeholder
					}
					return out, more, stop, nil
				}
			}
			return nil, nil, true, nil
		},
	}, nil
}

// IterPullRequests streams pull requests ordered UPDATED_AT DESC, stopping
// at the first page entry at or before since.
func (c *GraphQLClient) IterPullRequests(ctx context.Context, repo RepositoryInfo, since time.Time, after *string) (Stream, error) {
	return &pageStream{
		cursor: after,
		fetch: func(ctx context.Context, cursor *string) ([]*IngestedEvent, *string, bool, error) {
			data, err := c.graphql(ctx, pullRequestsQuery, map[string]any{
				"owner": repo.Owner,
				"name":  repo.Name,
				"after": cursor,
			})
			if err != nil {
				return nil, nil, false, err
			}
			connection, err := extractMap(data, "repository", "pullRequests")
			if err != nil {
				return nil, nil, false, err
			}
			nodes, err := connectionNodes(connection, "pullRequests")
			if err != nil {
				return nil, nil, false, err
			}
			var out []*IngestedEvent
			stop := false
			for _, node := range nodes {
				ev, shouldStop, err := pullRequestEventFromNode(repo, node, since)
				if err != nil {
					return nil, nil, false, err
				}
				if shouldStop {
					stop = true
					break
				}
				out = append(out, ev)
			}
			return out, pageInfoNext(connection), stop, nil
		},
	}, nil
}

// IterIssues mirrors IterPullRequests for the issues connection.
func (c *GraphQLClient) IterIssues(ctx context.Context, repo RepositoryInfo, since time.Time, after *string) (Stream, error) {
	return &pageStream{
		cursor: after,
		fetch: func(ctx context.Context, cursor *string) ([]*IngestedEvent, *string, bool, error) {
			data, err := c.graphql(ctx, issuesQuery, map[string]any{
				"owner": repo.Owner,
				"name":  repo.Name,
				"after": cursor,
			})
			if err != nil {
				return nil, nil, false, err
			}
			connection, err := extractMap(data, "repository", "issues")
			if err != nil {
				return nil, nil, false, err
			}
			nodes, err := connectionNodes(connection, "issues")
			if err != nil {
				return nil, nil, false, err
			}
			var out []*IngestedEvent
			stop := false
			for _, node := range nodes {
				ev, shouldStop, err := issueEventFromNode(repo, node, since)
				if err != nil {
					return nil, nil, false, err
				}
				if shouldStop {
					stop = true
					break
				}
				out = append(out, ev)
			}
			return out, pageInfoNext(connection), stop, nil
		},
	}, nil
}
