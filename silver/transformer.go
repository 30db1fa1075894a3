package silver

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ghillie/ghillie/bronze"
	"github.com/ghillie/ghillie/ghillieerr"
)

// PayloadDriftError reports that a raw event already promoted to Silver
// now hashes differently than it did the first time, which should be
// impossible against an append-only Bronze store and is therefore treated
// as a hard integrity failure rather than silently re-applied.
type PayloadDriftError struct {
	RawEventID int64
}

func (e *PayloadDriftError) Error() string {
	return fmt.Sprintf("silver: payload drift detected for raw_event_id=%d", e.RawEventID)
}

// Transformer promotes PENDING raw_events rows into event_facts and typed
// entities, one row per transaction, matching the per-row isolation of the
// original Silver service.
type Transformer struct {
	pool *pgxpool.Pool
}

// NewTransformer binds a transformer to a connection pool.
func NewTransformer(pool *pgxpool.Pool) *Transformer { return &Transformer{pool: pool} }

// TransformPending promotes up to limit PENDING raw events, returning the
// count successfully processed. A single row's failure does not abort the
// batch: it is marked FAILED with the error recorded and the batch
// continues.
func (t *Transformer) TransformPending(ctx context.Context, limit int) (int, error) {
	rows, err := t.pool.Query(ctx, `
		SELECT id, source_system, source_event_id, event_type, repo_external_id, occurred_at, payload
		FROM raw_events
		WHERE transform_state = 'PENDING'
		ORDER BY id
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`, limit)
	if err != nil {
		return 0, &ghillieerr.DatabaseError{Cause: err}
	}

	type pending struct {
		id             int64
		eventType      string
		repoExternalID *string
		occurredAt     time.Time
		payload        bronze.Payload
	}
	var batch []pending
	for rows.Next() {
		var p pending
		var rawPayload []byte
		var sourceSystem string
		var sourceEventID *string
		if err := rows.Scan(&p.id, &sourceSystem, &sourceEventID, &p.eventType, &p.repoExternalID, &p.occurredAt, &rawPayload); err != nil {
			rows.Close()
			return 0, &ghillieerr.DatabaseError{Cause: err}
		}
		if err := json.Unmarshal(rawPayload, &p.payload); err != nil {
			rows.Close()
			return 0, &ghillieerr.DatabaseError{Cause: err}
		}
		batch = append(batch, p)
	}
	rows.Close()
	if rows.Err() != nil {
		return 0, &ghillieerr.DatabaseError{Cause: rows.Err()}
	}

	processed := 0
	for _, p := range batch {
		if err := t.transformOne(ctx, p.id, p.eventType, p.repoExternalID, p.occurredAt, p.payload); err != nil {
			t.markFailed(ctx, p.id, err)
			continue
		}
		processed++
	}
	return processed, nil
}

func payloadHash(payload bronze.Payload) (string, error) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(encoded)
	return hex.EncodeToString(sum[:]), nil
}

func (t *Transformer) transformOne(ctx context.Context, rawEventID int64, eventType string, repoExternalID *string, occurredAt time.Time, payload bronze.Payload) error {
	if repoExternalID == nil {
		return fmt.Errorf("silver: raw_event_id=%d missing repo_external_id", rawEventID)
	}

	hash, err := payloadHash(payload)
	if err != nil {
		return fmt.Errorf("silver: hash payload: %w", err)
	}

	tx, err := t.pool.Begin(ctx)
	if err != nil {
		return &ghillieerr.DatabaseError{Cause: err}
	}
	defer tx.Rollback(ctx)

	var existingHash *string
	err = tx.QueryRow(ctx, `SELECT payload_hash FROM event_facts WHERE raw_event_id = $1`, rawEventID).Scan(&existingHash)
	switch {
	case err == nil:
		if existingHash == nil || *existingHash != hash {
			return &PayloadDriftError{RawEventID: rawEventID}
		}
		return t.markProcessed(ctx, tx, rawEventID)
	case errors.Is(err, pgx.ErrNoRows):
		// first time through, fall through to insert
	default:
		return &ghillieerr.DatabaseError{Cause: err}
	}

	workType, summary, actor, labels, err := classify(eventType, payload)
	if err != nil {
		return err
	}

	sourceEventID, _ := payload["sha"].(string)
	if sourceEventID == "" {
		if n, ok := payload["number"].(float64); ok {
			sourceEventID = fmt.Sprintf("%.0f", n)
		}
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO event_facts (raw_event_id, repo_external_id, work_type, source_event_id, occurred_at, actor, summary, labels, payload_hash, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now())
	`, rawEventID, *repoExternalID, string(workType), sourceEventID, occurredAt, actor, summary, labels, hash)
	if err != nil {
		return &ghillieerr.DatabaseError{Cause: err}
	}

	if err := upsertTypedEntity(ctx, tx, *repoExternalID, eventType, payload); err != nil {
		return err
	}

	return t.markProcessed(ctx, tx, rawEventID)
}

func (t *Transformer) markProcessed(ctx context.Context, tx pgx.Tx, rawEventID int64) error {
	_, err := tx.Exec(ctx, `UPDATE raw_events SET transform_state = 'PROCESSED', transform_error = NULL WHERE id = $1`, rawEventID)
	if err != nil {
		return &ghillieerr.DatabaseError{Cause: err}
	}
	return tx.Commit(ctx)
}

func (t *Transformer) markFailed(ctx context.Context, rawEventID int64, cause error) {
	message := cause.Error()
	_, _ = t.pool.Exec(ctx, `UPDATE raw_events SET transform_state = 'FAILED', transform_error = $2 WHERE id = $1`, rawEventID, message)
}

// classify derives the event-fact's work type, summary, actor, and labels
// from the raw payload, mirroring the field mapping of the original Silver
// transformer.
func classify(eventType string, payload bronze.Payload) (WorkType, string, *string, []string, error) {
	switch eventType {
	case "github.commit":
		summary, _ := payload["message"].(string)
		author, _ := payload["author_name"].(string)
		return WorkCommit, summary, strOrNil(author), nil, nil
	case "github.pull_request":
		summary, _ := payload["title"].(string)
		author := payloadStringPtr(payload, "author_login")
		return WorkPullRequest, summary, author, payloadStrings(payload, "labels"), nil
	case "github.issue":
		summary, _ := payload["title"].(string)
		author := payloadStringPtr(payload, "author_login")
		return WorkIssue, summary, author, payloadStrings(payload, "labels"), nil
	case "github.doc_change":
		summary, _ := payload["path"].(string)
		author, _ := payload["author_name"].(string)
		return WorkDocChange, summary, strOrNil(author), nil, nil
	default:
		return "", "", nil, nil, fmt.Errorf("silver: unsupported event type %q", eventType)
	}
}

func strOrNil(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func payloadStringPtr(payload bronze.Payload, key string) *string {
	v, ok := payload[key].(string)
	if !ok || v == "" {
		return nil
	}
	return &v
}

func payloadStrings(payload bronze.Payload, key string) []string {
	raw, ok := payload[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
