package ingestion

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ghillie/ghillie/githubsource"
	"github.com/ghillie/ghillie/redisclient"
	"github.com/ghillie/ghillie/registry"
)

// RepositoryLister supplies the set of repositories to ingest each pass.
type RepositoryLister interface {
	ListEnabled(ctx context.Context) ([]*registry.Entry, error)
}

// Scheduler fans a worker out across every catalogued repository, holding
// a distributed lock per repository slug so concurrent scheduler
// instances never race on the same repository's offsets (spec.md §5).
type Scheduler struct {
	worker   *Worker
	catalog  RepositoryLister
	lock     *redisclient.RepositoryLock
	holderID string
	log      zerolog.Logger
}

// NewScheduler constructs a scheduler. lock may be nil, in which case
// locking is skipped entirely (single-process deployments).
func NewScheduler(worker *Worker, catalog RepositoryLister, lock *redisclient.RepositoryLock, log zerolog.Logger) *Scheduler {
	return &Scheduler{worker: worker, catalog: catalog, lock: lock, holderID: uuid.New().String(), log: log.With().Str("component", "ingestion-scheduler").Logger()}
}

// RunOnce ingests every enabled repository once, skipping any repository
// currently locked by another scheduler instance.
func (s *Scheduler) RunOnce(ctx context.Context) []Result {
	repos, err := s.catalog.ListEnabled(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to list tracked repositories")
		return nil
	}

	var results []Result
	for _, repo := range repos {
		result := s.runRepository(ctx, *repo)
		results = append(results, result)
	}
	return results
}

func (s *Scheduler) runRepository(ctx context.Context, repo githubsource.RepositoryInfo) Result {
	if s.lock != nil {
		acquired, err := s.lock.TryAcquire(ctx, repo.Slug(), s.holderID)
		if err != nil {
			s.log.Warn().Err(err).Str("repo", repo.Slug()).Msg("lock acquisition failed, skipping this pass")
			return Result{RepoExternalID: repo.Slug(), Skipped: true}
		}
		if !acquired {
			s.log.Debug().Str("repo", repo.Slug()).Msg("repository locked by another scheduler, skipping")
			return Result{RepoExternalID: repo.Slug(), Skipped: true}
		}
		defer func() {
			if err := s.lock.Release(ctx, repo.Slug()); err != nil {
				s.log.Warn().Err(err).Str("repo", repo.Slug()).Msg("failed to release ingestion lock")
			}
		}()
	}

	result, err := s.worker.IngestRepository(ctx, repo, nil)
	if err != nil {
		s.log.Error().Err(err).Str("repo", repo.Slug()).Msg("ingestion run failed")
	}
	return result
}
