package bronze

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ghillie/ghillie/clock"
	"github.com/ghillie/ghillie/ghillieerr"
)

const uniqueViolationCode = "23505"

// RawEventWriter is the append-only writer that records Bronze events,
// enforcing the dedupe contract of spec.md §4.1.
type RawEventWriter struct {
	pool  *pgxpool.Pool
	clock clock.Clock
}

// NewRawEventWriter returns a writer bound to a connection pool.
func NewRawEventWriter(pool *pgxpool.Pool, c clock.Clock) *RawEventWriter {
	if c == nil {
		c = clock.RealClock{}
	}
	return &RawEventWriter{pool: pool, clock: c}
}

// Ingest persists a raw event if not already present. Idempotency is
// enforced via the hashed dedupe key so retries or overlapping pollers
// cannot create duplicate Bronze rows.
func (w *RawEventWriter) Ingest(ctx context.Context, envelope RawEventEnvelope) (*RawEvent, error) {
	if envelope.OccurredAt.IsZero() {
		return nil, errTimezoneOccurrence()
	}

	normalizedPayload, err := normalizePayload(envelope.Payload)
	if err != nil {
		return nil, err
	}
	normalizedMap, ok := normalizedPayload.(map[string]any)
	if !ok {
		normalizedMap = Payload{}
	}
	envelopeCopy := envelope
	envelopeCopy.Payload = normalizedMap

	dedupeKey, err := MakeDedupeKey(envelopeCopy, true)
	if err != nil {
		return nil, err
	}

	payloadJSON, err := json.Marshal(normalizedMap)
	if err != nil {
		return nil, fmt.Errorf("marshal normalized payload: %w", err)
	}

	tx, err := w.pool.Begin(ctx)
	if err != nil {
		return nil, &ghillieerr.ConnectivityError{Cause: err}
	}
	defer func() { _ = tx.Rollback(ctx) }()

	ingestedAt := w.clock.Now()
	row := tx.QueryRow(ctx, `
		INSERT INTO raw_events
			(source_system, source_event_id, event_type, repo_external_id,
			 occurred_at, ingested_at, dedupe_key, payload, transform_state)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, ingested_at
	`,
		envelopeCopy.SourceSystem,
		envelopeCopy.SourceEventID,
		envelopeCopy.EventType,
		envelopeCopy.RepoExternalID,
		envelopeCopy.OccurredAt.UTC(),
		ingestedAt,
		dedupeKey,
		payloadJSON,
		TransformPending,
	)

	var id int64
	var persistedIngestedAt = ingestedAt
	scanErr := row.Scan(&id, &persistedIngestedAt)
	if scanErr != nil {
		var pgErr *pgconn.PgError
		if errors.As(scanErr, &pgErr) && pgErr.Code == uniqueViolationCode {
			_ = tx.Rollback(ctx)
			existing, lookupErr := w.loadExisting(ctx, envelopeCopy.SourceSystem, dedupeKey)
			if lookupErr != nil {
				return nil, lookupErr
			}
			if existing == nil {
				return nil, &PersistError{Cause: scanErr}
			}
			return existing, nil
		}
		return nil, &ghillieerr.DatabaseError{Cause: scanErr}
	}

	if err := tx.Commit(ctx); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
			existing, lookupErr := w.loadExisting(ctx, envelopeCopy.SourceSystem, dedupeKey)
			if lookupErr != nil {
				return nil, lookupErr
			}
			if existing == nil {
				return nil, &PersistError{Cause: err}
			}
			return existing, nil
		}
		return nil, &ghillieerr.DatabaseError{Cause: err}
	}

	return &RawEvent{
		ID:             id,
		SourceSystem:   envelopeCopy.SourceSystem,
		SourceEventID:  envelopeCopy.SourceEventID,
		EventType:      envelopeCopy.EventType,
		RepoExternalID: envelopeCopy.RepoExternalID,
		OccurredAt:     envelopeCopy.OccurredAt.UTC(),
		IngestedAt:     persistedIngestedAt,
		DedupeKey:      dedupeKey,
		Payload:        normalizedMap,
		TransformState: TransformPending,
	}, nil
}

func (w *RawEventWriter) loadExisting(ctx context.Context, sourceSystem, dedupeKey string) (*RawEvent, error) {
	row := w.pool.QueryRow(ctx, `
		SELECT id, source_system, source_event_id, event_type, repo_external_id,
		       occurred_at, ingested_at, dedupe_key, payload, transform_state, transform_error
		FROM raw_events
		WHERE source_system = $1 AND dedupe_key = $2
	`, sourceSystem, dedupeKey)

	var e RawEvent
	var payloadJSON []byte
	err := row.Scan(&e.ID, &e.SourceSystem, &e.SourceEventID, &e.EventType, &e.RepoExternalID,
		&e.OccurredAt, &e.IngestedAt, &e.DedupeKey, &payloadJSON, &e.TransformState, &e.TransformError)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, &ghillieerr.DatabaseError{Cause: err}
	}
	if err := json.Unmarshal(payloadJSON, &e.Payload); err != nil {
		return nil, fmt.Errorf("unmarshal existing raw_event payload: %w", err)
	}
	return &e, nil
}
