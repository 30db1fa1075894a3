package silver

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/ghillie/ghillie/bronze"
	"github.com/ghillie/ghillie/ghillieerr"
)

// upsertTypedEntity writes the typed Silver row a raw event implies. This
// has no equivalent in the original Silver service, which only produces
// event-facts; SPEC_FULL.md's typed-entity tables are a deliberate
// extension, so each branch is written directly from the payload shapes
// the source client emits rather than ported from an existing routine.
func upsertTypedEntity(ctx context.Context, tx pgx.Tx, repoExternalID, eventType string, payload bronze.Payload) error {
	switch eventType {
	case "github.commit":
		return upsertCommit(ctx, tx, repoExternalID, payload)
	case "github.pull_request":
		return upsertPullRequest(ctx, tx, repoExternalID, payload)
	case "github.issue":
		return upsertIssue(ctx, tx, repoExternalID, payload)
	case "github.doc_change":
		return upsertDocChange(ctx, tx, repoExternalID, payload)
	default:
		return fmt.Errorf("silver: unsupported event type %q", eventType)
	}
}

func upsertCommit(ctx context.Context, tx pgx.Tx, repoExternalID string, payload bronze.Payload) error {
	sha, _ := payload["sha"].(string)
	message, _ := payload["message"].(string)
	authorName, _ := payload["author_name"].(string)
	authorEmail, _ := payload["author_email"].(string)
	authoredAt := payload["authored_at"]
	committedAt := payload["committed_at"]

	_, err := tx.Exec(ctx, `
		INSERT INTO commits (repo_external_id, sha, message, author_name, author_email, authored_at, committed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (repo_external_id, sha) DO UPDATE SET
			message = EXCLUDED.message,
			author_name = EXCLUDED.author_name,
			author_email = EXCLUDED.author_email
	`, repoExternalID, sha, message, authorName, authorEmail, authoredAt, committedAt)
	if err != nil {
		return &ghillieerr.DatabaseError{Cause: err}
	}
	return nil
}

func upsertPullRequest(ctx context.Context, tx pgx.Tx, repoExternalID string, payload bronze.Payload) error {
	number := int(payload["number"].(float64))
	title, _ := payload["title"].(string)
	state, _ := payload["state"].(string)
	isDraft, _ := payload["is_draft"].(bool)
	author := payloadStringPtr(payload, "author_login")
	baseRef, _ := payload["base_ref_name"].(string)
	headRef, _ := payload["head_ref_name"].(string)
	labels := payloadStrings(payload, "labels")
	createdAt := payload["created_at"]
	updatedAt := payload["updated_at"]

	_, err := tx.Exec(ctx, `
		INSERT INTO pull_requests (repo_external_id, number, title, state, is_draft, author_login, base_ref_name, head_ref_name, labels, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (repo_external_id, number) DO UPDATE SET
			title = EXCLUDED.title,
			state = EXCLUDED.state,
			is_draft = EXCLUDED.is_draft,
			author_login = EXCLUDED.author_login,
			labels = EXCLUDED.labels,
			updated_at = EXCLUDED.updated_at
	`, repoExternalID, number, title, state, isDraft, author, baseRef, headRef, labels, createdAt, updatedAt)
	if err != nil {
		return &ghillieerr.DatabaseError{Cause: err}
	}
	return nil
}

func upsertIssue(ctx context.Context, tx pgx.Tx, repoExternalID string, payload bronze.Payload) error {
	number := int(payload["number"].(float64))
	title, _ := payload["title"].(string)
	state, _ := payload["state"].(string)
	author := payloadStringPtr(payload, "author_login")
	labels := payloadStrings(payload, "labels")
	createdAt := payload["created_at"]
	updatedAt := payload["updated_at"]

	_, err := tx.Exec(ctx, `
		INSERT INTO issues (repo_external_id, number, title, state, author_login, labels, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (repo_external_id, number) DO UPDATE SET
			title = EXCLUDED.title,
			state = EXCLUDED.state,
			author_login = EXCLUDED.author_login,
			labels = EXCLUDED.labels,
			updated_at = EXCLUDED.updated_at
	`, repoExternalID, number, title, state, author, labels, createdAt, updatedAt)
	if err != nil {
		return &ghillieerr.DatabaseError{Cause: err}
	}
	return nil
}

func upsertDocChange(ctx context.Context, tx pgx.Tx, repoExternalID string, payload bronze.Payload) error {
	sha, _ := payload["sha"].(string)
	path, _ := payload["path"].(string)
	isRoadmap, _ := payload["is_roadmap"].(bool)
	isADR, _ := payload["is_adr"].(bool)
	authorName, _ := payload["author_name"].(string)
	committedAt := payload["committed_at"]

	_, err := tx.Exec(ctx, `
		INSERT INTO documentation_changes (repo_external_id, sha, path, is_roadmap, is_adr, author_name, committed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (repo_external_id, sha, path) DO NOTHING
	`, repoExternalID, sha, path, isRoadmap, isADR, authorName, committedAt)
	if err != nil {
		return &ghillieerr.DatabaseError{Cause: err}
	}
	return nil
}
