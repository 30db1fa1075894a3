package bronze

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ghillie/ghillie/ghillieerr"
)

// OffsetStore loads and persists per-repository IngestionOffset rows.
type OffsetStore struct {
	pool *pgxpool.Pool
}

// NewOffsetStore returns a store bound to a connection pool.
func NewOffsetStore(pool *pgxpool.Pool) *OffsetStore { return &OffsetStore{pool: pool} }

const offsetColumns = `repo_external_id,
	last_commit_ingested_at, last_commit_seen_at, last_commit_cursor,
	last_pr_ingested_at, last_pr_seen_at, last_pr_cursor,
	last_issue_ingested_at, last_issue_seen_at, last_issue_cursor,
	last_doc_ingested_at, last_doc_seen_at, last_doc_cursor,
	updated_at`

func scanOffset(row pgx.Row) (*IngestionOffset, error) {
	var o IngestionOffset
	err := row.Scan(
		&o.RepoExternalID,
		&o.LastCommitIngestedAt, &o.LastCommitSeenAt, &o.LastCommitCursor,
		&o.LastPRIngestedAt, &o.LastPRSeenAt, &o.LastPRCursor,
		&o.LastIssueIngestedAt, &o.LastIssueSeenAt, &o.LastIssueCursor,
		&o.LastDocIngestedAt, &o.LastDocSeenAt, &o.LastDocCursor,
		&o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

// LoadOrCreate returns the existing offsets row for repoSlug, creating a
// fresh zero-valued row on first sight. Mirrors
// GitHubIngestionWorker._load_or_create_offsets, tolerating a concurrent
// insert race via unique-violation read-back.
func (s *OffsetStore) LoadOrCreate(ctx context.Context, repoSlug string) (*IngestionOffset, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+offsetColumns+` FROM github_ingestion_offsets WHERE repo_external_id = $1`, repoSlug)
	offset, err := scanOffset(row)
	if err == nil {
		return offset, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, &ghillieerr.DatabaseError{Cause: err}
	}

	insertRow := s.pool.QueryRow(ctx, `
		INSERT INTO github_ingestion_offsets (repo_external_id, updated_at)
		VALUES ($1, now())
		ON CONFLICT (repo_external_id) DO NOTHING
		RETURNING `+offsetColumns, repoSlug)
	offset, err = scanOffset(insertRow)
	if err == nil {
		return offset, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
			// fall through to re-read below
		} else {
			return nil, &ghillieerr.DatabaseError{Cause: err}
		}
	}

	row = s.pool.QueryRow(ctx, `SELECT `+offsetColumns+` FROM github_ingestion_offsets WHERE repo_external_id = $1`, repoSlug)
	offset, err = scanOffset(row)
	if err != nil {
		return nil, &ghillieerr.DatabaseError{Cause: err}
	}
	return offset, nil
}

// Persist writes the offsets row at end-of-run inside a single statement,
// matching the "merge once at end-of-run" rule of spec.md §5 (last-writer-
// wins under concurrent same-repo runs is tolerated per spec.md §5).
func (s *OffsetStore) Persist(ctx context.Context, o *IngestionOffset) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO github_ingestion_offsets (`+offsetColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, now())
		ON CONFLICT (repo_external_id) DO UPDATE SET
			last_commit_ingested_at = EXCLUDED.last_commit_ingested_at,
			last_commit_seen_at = EXCLUDED.last_commit_seen_at,
			last_commit_cursor = EXCLUDED.last_commit_cursor,
			last_pr_ingested_at = EXCLUDED.last_pr_ingested_at,
			last_pr_seen_at = EXCLUDED.last_pr_seen_at,
			last_pr_cursor = EXCLUDED.last_pr_cursor,
			last_issue_ingested_at = EXCLUDED.last_issue_ingested_at,
			last_issue_seen_at = EXCLUDED.last_issue_seen_at,
			last_issue_cursor = EXCLUDED.last_issue_cursor,
			last_doc_ingested_at = EXCLUDED.last_doc_ingested_at,
			last_doc_seen_at = EXCLUDED.last_doc_seen_at,
			last_doc_cursor = EXCLUDED.last_doc_cursor,
			updated_at = now()
	`,
		o.RepoExternalID,
		o.LastCommitIngestedAt, o.LastCommitSeenAt, o.LastCommitCursor,
		o.LastPRIngestedAt, o.LastPRSeenAt, o.LastPRCursor,
		o.LastIssueIngestedAt, o.LastIssueSeenAt, o.LastIssueCursor,
		o.LastDocIngestedAt, o.LastDocSeenAt, o.LastDocCursor,
	)
	if err != nil {
		return &ghillieerr.DatabaseError{Cause: err}
	}
	return nil
}

// AllTracked returns every repository with an offsets row, used by the
// health service.
func (s *OffsetStore) AllTracked(ctx context.Context) ([]*IngestionOffset, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+offsetColumns+` FROM github_ingestion_offsets ORDER BY repo_external_id`)
	if err != nil {
		return nil, &ghillieerr.DatabaseError{Cause: err}
	}
	defer rows.Close()

	var out []*IngestionOffset
	for rows.Next() {
		o, err := scanOffset(rows)
		if err != nil {
			return nil, &ghillieerr.DatabaseError{Cause: err}
		}
		out = append(out, o)
	}
	if rows.Err() != nil {
		return nil, &ghillieerr.DatabaseError{Cause: rows.Err()}
	}
	return out, nil
}
