package registry

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ghillie/ghillie/ghillieerr"
)

// NotFoundError reports that no catalogue entry matches the requested
// repository.
type NotFoundError struct {
	Owner, Name string
}

func (e *NotFoundError) Error() string {
	return "registry: no tracked repository " + e.Owner + "/" + e.Name
}

// Store persists the tracked-repository catalogue.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore binds a store to a connection pool.
func NewStore(pool *pgxpool.Pool) *Store { return &Store{pool: pool} }

func scanEntry(row pgx.Row) (*Entry, error) {
	var e Entry
	if err := row.Scan(&e.ID, &e.Owner, &e.Name, &e.DefaultBranch, &e.IngestionEnabled, &e.DocumentationPaths, &e.EstateID); err != nil {
		return nil, err
	}
	return &e, nil
}

// Lookup returns the catalogue entry for owner/name.
func (s *Store) Lookup(ctx context.Context, owner, name string) (*Entry, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, owner, name, default_branch, ingestion_enabled, documentation_paths, estate_id
		FROM tracked_repositories WHERE owner = $1 AND name = $2
	`, owner, name)
	entry, err := scanEntry(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &NotFoundError{Owner: owner, Name: name}
	}
	if err != nil {
		return nil, &ghillieerr.DatabaseError{Cause: err}
	}
	return entry, nil
}

// ListEnabled returns every repository with ingestion enabled, the
// scheduler's fan-out source.
func (s *Store) ListEnabled(ctx context.Context) ([]*Entry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, owner, name, default_branch, ingestion_enabled, documentation_paths, estate_id
		FROM tracked_repositories WHERE ingestion_enabled = true ORDER BY owner, name
	`)
	if err != nil {
		return nil, &ghillieerr.DatabaseError{Cause: err}
	}
	defer rows.Close()

	var out []*Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, &ghillieerr.DatabaseError{Cause: err}
		}
		out = append(out, e)
	}
	if rows.Err() != nil {
		return nil, &ghillieerr.DatabaseError{Cause: rows.Err()}
	}
	return out, nil
}

// Upsert inserts or updates a catalogue entry, keyed by owner/name.
func (s *Store) Upsert(ctx context.Context, e *Entry) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO tracked_repositories (id, owner, name, default_branch, ingestion_enabled, documentation_paths, estate_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (owner, name) DO UPDATE SET
			default_branch = EXCLUDED.default_branch,
			ingestion_enabled = EXCLUDED.ingestion_enabled,
			documentation_paths = EXCLUDED.documentation_paths,
			estate_id = EXCLUDED.estate_id
	`, e.ID, e.Owner, e.Name, e.DefaultBranch, e.IngestionEnabled, e.DocumentationPaths, e.EstateID)
	if err != nil {
		return &ghillieerr.DatabaseError{Cause: err}
	}
	return nil
}
