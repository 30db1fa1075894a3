package githubsource

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// defaultRequestsPerSecond keeps well under GitHub's GraphQL secondary rate
// limits even when several repositories are being ingested concurrently.
const defaultRequestsPerSecond = 5

// ActivityClient is the source-client interface consumed by the ingestion
// worker (spec.md §4.2). Each method yields a lazy, cursor-tagged,
// most-recent-first stream bounded by since and optionally resumed from
// after.
type ActivityClient interface {
	IterCommits(ctx context.Context, repo RepositoryInfo, since time.Time, after *string) (Stream, error)
	IterPullRequests(ctx context.Context, repo RepositoryInfo, since time.Time, after *string) (Stream, error)
	IterIssues(ctx context.Context, repo RepositoryInfo, since time.Time, after *string) (Stream, error)
	IterDocChanges(ctx context.Context, repo RepositoryInfo, since time.Time, documentationPaths []string, after *string) (Stream, error)
}

// Stream is a pull-based, finite sequence of events. Next returns io.EOF
// once exhausted.
type Stream interface {
	Next(ctx context.Context) (*IngestedEvent, error)
	Close() error
}

// GraphQLConfig configures the GitHub GraphQL client.
type GraphQLConfig struct {
	Token     string
	Endpoint  string
	Timeout   time.Duration
	UserAgent string
}

// GraphQLConfigFromToken builds a config, validating the token is present,
// matching GitHubGraphQLConfig.from_env in the original implementation.
func GraphQLConfigFromToken(token string) (GraphQLConfig, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return GraphQLConfig{}, NewConfigError("GHILLIE_GITHUB_TOKEN", "missing token")
	}
	return GraphQLConfig{
		Token:     token,
		Endpoint:  "https://api.github.com/graphql",
		Timeout:   20 * time.Second,
		UserAgent: "ghillie/0.1",
	}, nil
}

// GraphQLClient is the GitHub GraphQL implementation of ActivityClient.
type GraphQLClient struct {
	config  GraphQLConfig
	http    *http.Client
	limiter *rate.Limiter
}

// NewGraphQLClient constructs a client. httpClient may be nil to use a
// default client with the configured timeout. Every outgoing request is
// throttled to defaultRequestsPerSecond, shared across every stream this
// client opens, to stay under GitHub's GraphQL rate limits regardless of
// how many repositories are being ingested concurrently.
func NewGraphQLClient(cfg GraphQLConfig, httpClient *http.Client) (*GraphQLClient, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, NewConfigError("token", "empty token")
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	limiter := rate.NewLimiter(rate.Limit(defaultRequestsPerSecond), defaultRequestsPerSecond)
	return &GraphQLClient{config: cfg, http: httpClient, limiter: limiter}, nil
}

const commitsQuery = `
query($owner: String!, $name: String!, $qualifiedName: String!, $since: GitTimestamp!, $after: String, $path: String) {
  repository(owner: $owner, name: $name) {
    ref(qualifiedName: $qualifiedName) {
      target {
        ... on Commit {
          history(first: 100, since: $since, after: $after, path: $path) {
            pageInfo { hasNextPage endCursor }
            edges { cursor node { oid message authoredDate committedDate author { name email } } }
          }
        }
      }
    }
  }
}`

const pullRequestsQuery = `
query($owner: String!, $name: String!, $after: String) {
  repository(owner: $owner, name: $name) {
    pullRequests(first: 100, after: $after, orderBy: {field: UPDATED_AT, direction: DESC}) {
      pageInfo { hasNextPage endCursor }
      nodes { databaseId number title state isDraft createdAt updatedAt mergedAt closedAt baseRefName headRefName author { login } labels(first: 50) { nodes { name } } }
    }
  }
}`

const issuesQuery = `
query($owner: String!, $name: String!, $after: String) {
  repository(owner: $owner, name: $name) {
    issues(first: 100, after: $after, orderBy: {field: UPDATED_AT, direction: DESC}) {
      pageInfo { hasNextPage endCursor }
      nodes { databaseId number title state createdAt updatedAt closedAt author { login } labels(first: 50) { nodes { name } } }
    }
  }
}`

const httpErrorStatusThreshold = 400

func (c *GraphQLClient) graphql(ctx context.Context, query string, variables map[string]any) (map[string]any, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("github graphql rate limit wait: %w", err)
	}

	body, err := json.Marshal(map[string]any{"query": query, "variables": variables})
	if err != nil {
		return nil, fmt.Errorf("marshal graphql request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build graphql request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.config.Token)
	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("github graphql request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= httpErrorStatusThreshold {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, NewHTTPError(resp.StatusCode, string(respBody))
	}

	var payload struct {
		Data   map[string]any `json:"data"`
		Errors []struct {
			Message string `json:"message"`
		} `json:"errors"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode graphql response: %w", err)
	}
	if len(payload.Errors) > 0 {
		msgs := make([]string, len(payload.Errors))
		for i, e := range payload.Errors {
			msgs[i] = e.Message
		}
		return nil, NewGraphQLError(msgs)
	}
	if payload.Data == nil {
		return nil, NewMissingFieldError("data")
	}
	return payload.Data, nil
}

func parseGitHubDatetime(value string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("github datetime missing timezone or malformed: %s", value)
	}
	return t.UTC(), nil
}

func classifyDocumentationPath(path string) (isRoadmap, isADR bool) {
	lowered := strings.ToLower(strings.ReplaceAll(path, "\\", "/"))
	isRoadmap = strings.Contains(lowered, "roadmap")
	isADR = strings.Contains(lowered, "/adr") || strings.HasSuffix(lowered, "adr") || strings.Contains(lowered, "architecture-decision")
	return isRoadmap, isADR
}

func labelNames(raw any) []string {
	m, ok := raw.(map[string]any)
	if !ok {
		return nil
	}
	nodes, ok := m["nodes"].([]any)
	if !ok {
		return nil
	}
	var out []string
	for _, n := range nodes {
		if node, ok := n.(map[string]any); ok {
			if name, ok := node["name"].(string); ok {
				out = append(out, name)
			}
		}
	}
	return out
}

func maybeLogin(raw any) *string {
	m, ok := raw.(map[string]any)
	if !ok {
		return nil
	}
	login, ok := m["login"].(string)
	if !ok {
		return nil
	}
	return &login
}

func coercePRState(state string, mergedAt any) string {
	lowered := strings.ToLower(state)
	if lowered == "closed" {
		if s, ok := mergedAt.(string); ok && s != "" {
			return "merged"
		}
	}
	return lowered
}

func extractMap(data map[string]any, path ...string) (map[string]any, error) {
	node := any(data)
	for _, key := range path {
		m, ok := node.(map[string]any)
		if !ok {
			return nil, NewMissingFieldError(strings.Join(path, "."))
		}
		node = m[key]
	}
	m, ok := node.(map[string]any)
	if !ok {
		return nil, NewMissingFieldError(strings.Join(path, "."))
	}
	return m, nil
}

func extractCommitHistory(data map[string]any) (map[string]any, error) {
	return extractMap(data, "repository", "ref", "target", "history")
}

func connectionEdges(connection map[string]any, field string) ([]map[string]any, error) {
	raw, ok := connection["edges"].([]any)
	if !ok {
		return nil, NewMissingFieldError(field + ".edges")
	}
	out := make([]map[string]any, 0, len(raw))
	for _, e := range raw {
		if m, ok := e.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out, nil
}

func connectionNodes(connection map[string]any, field string) ([]map[string]any, error) {
	raw, ok := connection["nodes"].([]any)
	if !ok {
		return nil, NewMissingFieldError(field + ".nodes")
	}
	out := make([]map[string]any, 0, len(raw))
	for _, n := range raw {
		if m, ok := n.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out, nil
}

func pageInfoNext(connection map[string]any) *string {
	pageInfo, ok := connection["pageInfo"].(map[string]any)
	if !ok {
		return nil
	}
	hasNext, _ := pageInfo["hasNextPage"].(bool)
	if !hasNext {
		return nil
	}
	cursor, ok := pageInfo["endCursor"].(string)
	if !ok {
		return nil
	}
	return &cursor
}
