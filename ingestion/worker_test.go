package ingestion

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/ghillie/ghillie/bronze"
	"github.com/ghillie/ghillie/githubsource"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

type fakeWriter struct {
	ingested int
	failAt   int
}

func (w *fakeWriter) Ingest(ctx context.Context, envelope bronze.RawEventEnvelope) (*bronze.RawEvent, error) {
	w.ingested++
	if w.failAt > 0 && w.ingested == w.failAt {
		return nil, errors.New("write failed")
	}
	return &bronze.RawEvent{ID: int64(w.ingested)}, nil
}

type fakeStream struct {
	events []githubsource.IngestedEvent
	pos    int
	closed bool
}

func (s *fakeStream) Next(ctx context.Context) (*githubsource.IngestedEvent, error) {
	if s.pos >= len(s.events) {
		return nil, io.EOF
	}
	e := s.events[s.pos]
	s.pos++
	return &e, nil
}

func (s *fakeStream) Close() error {
	s.closed = true
	return nil
}

func makeEvents(n int) []githubsource.IngestedEvent {
	var events []githubsource.IngestedEvent
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		events = append(events, githubsource.IngestedEvent{
			EventType:     "github.commit",
			SourceEventID: "sha" + string(rune('a'+i)),
			OccurredAt:    base.Add(time.Duration(i) * time.Hour),
			Cursor:        "cursor" + string(rune('a'+i)),
		})
	}
	return events
}

func newTestWorker(writer eventWriter, cfg Config) *Worker {
	return &Worker{
		writer: writer,
		clock:  fixedClock{now: time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)},
		config: cfg,
	}
}

// TestDrainNaturalExhaustionHasNoBacklog covers the clean-EOF path of
// Testable Property #6: a stream that exhausts within the per-kind budget
// clears the cursor and reports no backlog.
func TestDrainNaturalExhaustionHasNoBacklog(t *testing.T) {
	w := newTestWorker(&fakeWriter{}, Config{MaxEventsPerKind: 10})
	offset := &bronze.IngestionOffset{RepoExternalID: "acme/widgets"}
	stream := &fakeStream{events: makeEvents(3)}

	kr, err := w.drain(context.Background(), githubsource.RepositoryInfo{Owner: "acme", Name: "widgets"}, offset, bronze.KindCommit, stream, githubsource.EmptyNoiseFilter())
	if err != nil {
		t.Fatalf("drain: %v", err)
	}
	if kr.HasBacklog {
		t.Error("expected no backlog after natural exhaustion")
	}
	if kr.Ingested != 3 {
		t.Errorf("expected 3 events ingested, got %d", kr.Ingested)
	}
	if offset.Cursor(bronze.KindCommit) != nil {
		t.Error("expected cursor cleared after exhaustion")
	}
	if offset.Watermark(bronze.KindCommit) == nil {
		t.Error("expected watermark advanced after exhaustion")
	}
}

// TestDrainHittingCapHasBacklogWithNilError is the regression test for the
// bug the cap-hit path used to hide: drain must report HasBacklog=true
// (and freeze the cursor) even though it returns a nil error, since hitting
// MaxEventsPerKind is not itself a failure.
func TestDrainHittingCapHasBacklogWithNilError(t *testing.T) {
	w := newTestWorker(&fakeWriter{}, Config{MaxEventsPerKind: 2})
	offset := &bronze.IngestionOffset{RepoExternalID: "acme/widgets"}
	stream := &fakeStream{events: makeEvents(5)}

	kr, err := w.drain(context.Background(), githubsource.RepositoryInfo{Owner: "acme", Name: "widgets"}, offset, bronze.KindCommit, stream, githubsource.EmptyNoiseFilter())
	if err != nil {
		t.Fatalf("expected nil error when the per-kind cap is hit, got %v", err)
	}
	if !kr.HasBacklog {
		t.Error("expected HasBacklog=true when the per-kind cap is hit")
	}
	if kr.Ingested != 2 {
		t.Errorf("expected 2 events ingested before hitting the cap, got %d", kr.Ingested)
	}
	if offset.Cursor(bronze.KindCommit) == nil {
		t.Error("expected cursor frozen so the next run resumes the backlog")
	}
}

// TestDrainWriterFailureHasBacklogWithError covers the genuine-error path:
// a write failure mid-stream also reports a backlog, this time alongside a
// non-nil error.
func TestDrainWriterFailureHasBacklogWithError(t *testing.T) {
	w := newTestWorker(&fakeWriter{failAt: 2}, Config{MaxEventsPerKind: 10})
	offset := &bronze.IngestionOffset{RepoExternalID: "acme/widgets"}
	stream := &fakeStream{events: makeEvents(5)}

	kr, err := w.drain(context.Background(), githubsource.RepositoryInfo{Owner: "acme", Name: "widgets"}, offset, bronze.KindCommit, stream, githubsource.EmptyNoiseFilter())
	if err == nil {
		t.Fatal("expected an error from the failed write")
	}
	if !kr.HasBacklog {
		t.Error("expected HasBacklog=true on a write failure")
	}
}
