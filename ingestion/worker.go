// Package ingestion implements the ingestion worker of spec.md §4.3: it
// drives a source-client's per-kind event streams into the Bronze writer,
// advancing per-repository offsets under an overlap window, freezing a
// kind's watermark while a resume cursor is outstanding.
package ingestion

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/ghillie/ghillie/bronze"
	"github.com/ghillie/ghillie/clock"
	"github.com/ghillie/ghillie/githubsource"
)

// Config tunes lookback, overlap, and per-kind batch size.
type Config struct {
	InitialLookback  time.Duration
	Overlap          time.Duration
	MaxEventsPerKind int
}

// KindResult reports how many events a single kind produced, and whether
// its cursor is still outstanding (backlog not yet drained).
type KindResult struct {
	Kind       bronze.Kind
	Ingested   int
	HasBacklog bool
}

// Result is the outcome of ingesting one repository.
type Result struct {
	RepoExternalID string
	Skipped        bool
	Kinds          []KindResult
	Err            error
}

// TotalIngested sums events across all kinds.
func (r Result) TotalIngested() int {
	total := 0
	for _, k := range r.Kinds {
		total += k.Ingested
	}
	return total
}

// eventWriter is the subset of *bronze.RawEventWriter the worker depends
// on, narrowed to an interface so drain's backlog/truncation state machine
// can be exercised with a fake in tests.
type eventWriter interface {
	Ingest(ctx context.Context, envelope bronze.RawEventEnvelope) (*bronze.RawEvent, error)
}

// Worker drives ingestion for a single repository at a time; callers are
// responsible for fan-out and for serializing concurrent runs against the
// same repository (spec.md §5, enforced in this module via a distributed
// lock at the scheduler layer).
type Worker struct {
	client  githubsource.ActivityClient
	writer  eventWriter
	offsets *bronze.OffsetStore
	clock   clock.Clock
	config  Config
	events  *EventLogger
}

// NewWorker constructs a worker. It takes no noise filter; callers pass a
// per-repository compiled filter (or nil) to IngestRepository instead,
// since the filter set can vary by catalogue entry.
func NewWorker(client githubsource.ActivityClient, writer *bronze.RawEventWriter, offsets *bronze.OffsetStore, c clock.Clock, cfg Config, events *EventLogger) *Worker {
	return &Worker{client: client, writer: writer, offsets: offsets, clock: c, config: cfg, events: events}
}

var trackedKinds = []bronze.Kind{bronze.KindCommit, bronze.KindPullRequest, bronze.KindIssue}

// IngestRepository ingests every tracked kind for repo, then doc changes if
// any documentation paths are configured, persisting offsets once at the
// end of the run regardless of per-kind partial failure.
func (w *Worker) IngestRepository(ctx context.Context, repo githubsource.RepositoryInfo, noise *githubsource.NoiseFilter) (Result, error) {
	if !repo.IngestionEnabled {
		return Result{RepoExternalID: repo.Slug(), Skipped: true}, nil
	}
	if noise == nil {
		noise = githubsource.EmptyNoiseFilter()
	}

	started := w.clock.Now()
	if w.events != nil {
		w.events.RunStarted(repo.Slug(), repo.EstateID)
	}

	offset, err := w.offsets.LoadOrCreate(ctx, repo.Slug())
	if err != nil {
		if w.events != nil {
			w.events.RunFailed(repo.Slug(), repo.EstateID, w.clock.Now().Sub(started), err)
		}
		return Result{RepoExternalID: repo.Slug(), Err: err}, err
	}

	result := Result{RepoExternalID: repo.Slug()}
	var firstErr error

	for _, kind := range trackedKinds {
		kr, err := w.ingestKind(ctx, repo, offset, kind, noise)
		result.Kinds = append(result.Kinds, kr)
		if err != nil && firstErr == nil {
			firstErr = err
		}
		if w.events != nil {
			if kr.HasBacklog {
				w.events.StreamTruncated(repo.Slug(), kind, kr.Ingested, w.config.MaxEventsPerKind)
			} else {
				w.events.StreamCompleted(repo.Slug(), kind, kr.Ingested, w.config.MaxEventsPerKind)
			}
		}
	}

	if len(repo.DocumentationPaths) > 0 {
		kr, err := w.ingestDocChanges(ctx, repo, offset, noise)
		result.Kinds = append(result.Kinds, kr)
		if err != nil && firstErr == nil {
			firstErr = err
		}
		if w.events != nil {
			if kr.HasBacklog {
				w.events.StreamTruncated(repo.Slug(), bronze.KindDocChange, kr.Ingested, w.config.MaxEventsPerKind)
			} else {
				w.events.StreamCompleted(repo.Slug(), bronze.KindDocChange, kr.Ingested, w.config.MaxEventsPerKind)
			}
		}
	}

	if persistErr := w.offsets.Persist(ctx, offset); persistErr != nil {
		if firstErr == nil {
			firstErr = persistErr
		}
	}

	result.Err = firstErr
	duration := w.clock.Now().Sub(started)
	if w.events != nil {
		if firstErr != nil {
			w.events.RunFailed(repo.Slug(), repo.EstateID, duration, firstErr)
		} else {
			w.events.RunCompleted(repo.Slug(), repo.EstateID, result.Kinds, result.TotalIngested(), duration)
		}
	}
	return result, firstErr
}

// sinceFor computes the lower bound for a kind's stream: an overlap window
// behind the last confirmed watermark, or an initial lookback window
// behind now when the repository has never been ingested.
func (w *Worker) sinceFor(offset *bronze.IngestionOffset, kind bronze.Kind) time.Time {
	if watermark := offset.Watermark(kind); watermark != nil {
		return watermark.Add(-w.config.Overlap)
	}
	return w.clock.Now().Add(-w.config.InitialLookback)
}

func (w *Worker) streamFor(ctx context.Context, repo githubsource.RepositoryInfo, kind bronze.Kind, since time.Time, after *string) (githubsource.Stream, error) {
	switch kind {
	case bronze.KindCommit:
		return w.client.IterCommits(ctx, repo, since, after)
	case bronze.KindPullRequest:
		return w.client.IterPullRequests(ctx, repo, since, after)
	case bronze.KindIssue:
		return w.client.IterIssues(ctx, repo, since, after)
	default:
		return nil, errors.New("ingestion: unsupported kind for streamFor")
	}
}

func (w *Worker) ingestKind(ctx context.Context, repo githubsource.RepositoryInfo, offset *bronze.IngestionOffset, kind bronze.Kind, noise *githubsource.NoiseFilter) (KindResult, error) {
	since := w.sinceFor(offset, kind)
	stream, err := w.streamFor(ctx, repo, kind, since, offset.Cursor(kind))
	if err != nil {
		return KindResult{Kind: kind}, err
	}
	defer stream.Close()

	return w.drain(ctx, repo, offset, kind, stream, noise)
}

func (w *Worker) ingestDocChanges(ctx context.Context, repo githubsource.RepositoryInfo, offset *bronze.IngestionOffset, noise *githubsource.NoiseFilter) (KindResult, error) {
	since := w.sinceFor(offset, bronze.KindDocChange)
	stream, err := w.client.IterDocChanges(ctx, repo, since, repo.DocumentationPaths, offset.Cursor(bronze.KindDocChange))
	if err != nil {
		return KindResult{Kind: bronze.KindDocChange}, err
	}
	defer stream.Close()

	return w.drain(ctx, repo, offset, bronze.KindDocChange, stream, noise)
}

// drain pulls events off stream into Bronze, updating offset's watermark,
// seen high-water mark, and cursor for kind. The cursor is only cleared
// (unfreezing the watermark) once the stream reports natural exhaustion
// within the per-kind event budget; hitting the budget instead freezes the
// cursor so the next run resumes the same backlog.
func (w *Worker) drain(ctx context.Context, repo githubsource.RepositoryInfo, offset *bronze.IngestionOffset, kind bronze.Kind, stream githubsource.Stream, noise *githubsource.NoiseFilter) (KindResult, error) {
	count := 0
	seen := offset.Seen(kind)
	var lastCursor *string
	exhausted := false

	for {
		if w.config.MaxEventsPerKind > 0 && count >= w.config.MaxEventsPerKind {
			break
		}
		event, err := stream.Next(ctx)
		if errors.Is(err, io.EOF) {
			exhausted = true
			break
		}
		if err != nil {
			offset.SetCursor(kind, lastCursor)
			offset.SetSeen(kind, seen)
			return KindResult{Kind: kind, Ingested: count, HasBacklog: true}, err
		}

		seen = bronze.MaxTime(seen, &event.OccurredAt)
		if event.Cursor != "" {
			cursor := event.Cursor
			lastCursor = &cursor
		}

		if noise.ShouldIgnore(*event) {
			continue
		}

		envelope := bronze.RawEventEnvelope{
			SourceSystem:   "github",
			EventType:      event.EventType,
			OccurredAt:     event.OccurredAt,
			Payload:        event.Payload,
			SourceEventID:  &event.SourceEventID,
			RepoExternalID: strPtr(repo.Slug()),
		}
		if _, err := w.writer.Ingest(ctx, envelope); err != nil {
			offset.SetCursor(kind, lastCursor)
			offset.SetSeen(kind, seen)
			return KindResult{Kind: kind, Ingested: count, HasBacklog: true}, err
		}
		count++
	}

	offset.SetSeen(kind, seen)
	if exhausted {
		offset.SetCursor(kind, nil)
		offset.SetWatermark(kind, seen)
		return KindResult{Kind: kind, Ingested: count, HasBacklog: false}, nil
	}

	offset.SetCursor(kind, lastCursor)
	return KindResult{Kind: kind, Ingested: count, HasBacklog: true}, nil
}

func strPtr(s string) *string { return &s }
