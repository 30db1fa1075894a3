package ingestion

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/ghillie/ghillie/bronze"
	"github.com/ghillie/ghillie/ghillieerr"
	"github.com/ghillie/ghillie/observability"
)

// EventLogger emits the structured ingestion events of spec.md §6:
// ingestion.run.started/completed/failed and
// ingestion.stream.completed/truncated, each carrying the field names the
// spec's log-event table names (repo, estate_id, duration, kind,
// events_ingested, max_events, has_resume_cursor, error_type,
// error_message). When metrics is non-nil, each event also updates the
// corresponding Prometheus counters and histograms.
type EventLogger struct {
	log     zerolog.Logger
	metrics *observability.Metrics
}

// NewEventLogger binds an EventLogger to a base logger. Call
// WithMetrics to additionally emit Prometheus metrics.
func NewEventLogger(log zerolog.Logger) *EventLogger {
	return &EventLogger{log: log.With().Str("component", "ingestion").Logger()}
}

// WithMetrics attaches a metrics registry, returning the same logger for
// chaining at construction time.
func (e *EventLogger) WithMetrics(m *observability.Metrics) *EventLogger {
	e.metrics = m
	return e
}

func withEstate(ev *zerolog.Event, estateID *string) *zerolog.Event {
	if estateID != nil {
		return ev.Str("estate_id", *estateID)
	}
	return ev
}

func (e *EventLogger) RunStarted(repoSlug string, estateID *string) {
	withEstate(e.log.Info(), estateID).
		Str("event", "ingestion.run.started").
		Str("repo", repoSlug).
		Msg("ingestion run started")
}

func (e *EventLogger) RunCompleted(repoSlug string, estateID *string, kinds []KindResult, totalEvents int, duration time.Duration) {
	ev := withEstate(e.log.Info(), estateID).
		Str("event", "ingestion.run.completed").
		Str("repo", repoSlug).
		Int("events_ingested", totalEvents).
		Dur("duration", duration)
	for _, kr := range kinds {
		ev = ev.Int(string(kr.Kind)+"_events", kr.Ingested)
	}
	ev.Msg("ingestion run completed")
	if e.metrics != nil {
		e.metrics.TrackIngestionRun(repoSlug, totalEvents, float64(duration.Milliseconds()), false)
	}
}

func (e *EventLogger) RunFailed(repoSlug string, estateID *string, duration time.Duration, err error) {
	withEstate(e.log.Error(), estateID).
		Str("event", "ingestion.run.failed").
		Str("repo", repoSlug).
		Dur("duration", duration).
		Str("error_category", string(ghillieerr.Categorize(err))).
		Str("error_type", fmt.Sprintf("%T", err)).
		Str("error_message", err.Error()).
		Err(err).
		Msg("ingestion run failed")
	if e.metrics != nil {
		e.metrics.TrackIngestionRun(repoSlug, 0, float64(duration.Milliseconds()), true)
	}
}

func (e *EventLogger) StreamCompleted(repoSlug string, kind bronze.Kind, processed, maxEvents int) {
	e.log.Info().
		Str("event", "ingestion.stream.completed").
		Str("repo", repoSlug).
		Str("kind", string(kind)).
		Int("events_ingested", processed).
		Int("max_events", maxEvents).
		Bool("has_resume_cursor", false).
		Msg("ingestion stream completed")
}

func (e *EventLogger) StreamTruncated(repoSlug string, kind bronze.Kind, processed, maxEvents int) {
	e.log.Warn().
		Str("event", "ingestion.stream.truncated").
		Str("repo", repoSlug).
		Str("kind", string(kind)).
		Int("events_ingested", processed).
		Int("max_events", maxEvents).
		Bool("has_resume_cursor", true).
		Msg("ingestion stream truncated")
}
