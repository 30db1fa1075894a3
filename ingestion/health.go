package ingestion

import (
	"context"
	"time"

	"github.com/ghillie/ghillie/bronze"
	"github.com/ghillie/ghillie/clock"
)

// RepositoryHealth summarizes one tracked repository's ingestion lag,
// grounded on the lag computation in the original implementation.
type RepositoryHealth struct {
	RepoExternalID      string
	TimeSinceLastRun    *time.Duration
	OldestWatermarkAge  *time.Duration
	HasPendingCursors   bool
	Stalled             bool
}

// HealthService answers spec.md §4.10 health queries over the offsets
// table.
type HealthService struct {
	offsets          *bronze.OffsetStore
	clock            clock.Clock
	stalledThreshold time.Duration
}

// NewHealthService binds a health service to an offset store and a
// stalled-ingestion threshold.
func NewHealthService(offsets *bronze.OffsetStore, c clock.Clock, stalledThreshold time.Duration) *HealthService {
	return &HealthService{offsets: offsets, clock: c, stalledThreshold: stalledThreshold}
}

var allKinds = []bronze.Kind{bronze.KindCommit, bronze.KindPullRequest, bronze.KindIssue, bronze.KindDocChange}

// Check returns the health of every tracked repository.
func (h *HealthService) Check(ctx context.Context) ([]RepositoryHealth, error) {
	offsets, err := h.offsets.AllTracked(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]RepositoryHealth, 0, len(offsets))
	for _, o := range offsets {
		out = append(out, h.evaluate(o))
	}
	return out, nil
}

func (h *HealthService) evaluate(o *bronze.IngestionOffset) RepositoryHealth {
	now := h.clock.Now()

	var newestWatermark, oldestWatermark *time.Time
	pending := false
	for _, kind := range allKinds {
		if o.Cursor(kind) != nil {
			pending = true
		}
		wm := o.Watermark(kind)
		if wm == nil {
			continue
		}
		if oldestWatermark == nil || wm.Before(*oldestWatermark) {
			oldestWatermark = wm
		}
		if newestWatermark == nil || wm.After(*newestWatermark) {
			newestWatermark = wm
		}
	}

	var sinceLastRun *time.Duration
	if newestWatermark != nil {
		d := now.Sub(*newestWatermark)
		sinceLastRun = &d
	}

	var oldestWatermarkAge *time.Duration
	if oldestWatermark != nil {
		d := now.Sub(*oldestWatermark)
		oldestWatermarkAge = &d
	}

	stalled := isStalled(sinceLastRun, h.stalledThreshold)

	return RepositoryHealth{
		RepoExternalID:     o.RepoExternalID,
		TimeSinceLastRun:   sinceLastRun,
		OldestWatermarkAge: oldestWatermarkAge,
		HasPendingCursors:  pending,
		Stalled:            stalled,
	}
}

// isStalled reports whether a repository has gone longer than threshold
// since its most advanced watermark, matching _compute_lag_metrics in the
// original implementation. A repository with no watermark at all — never
// ingested, or ingesting without ever advancing — is considered stalled.
func isStalled(sinceLastRun *time.Duration, threshold time.Duration) bool {
	if sinceLastRun == nil {
		return true
	}
	return *sinceLastRun > threshold
}
