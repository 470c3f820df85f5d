package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"hls-assembler/internal/hls"
	"hls-assembler/internal/platform/logger"
	"hls-assembler/internal/platform/metrics"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
)

// DefaultMaxConcurrentJobs is the default number of playlists processed at once.
const DefaultMaxConcurrentJobs = 2

var (
	// ErrShuttingDown is returned by Submit once Shutdown has been called.
	ErrShuttingDown = errors.New("service is shutting down")

	// ErrDuplicateJob is returned when an unfinished job already writes the
	// artifact of the submitted logical name.
	ErrDuplicateJob = errors.New("a job for this logical name is already running")
)

// Runner processes one unit. *hls.Engine implements it.
type Runner interface {
	Run(ctx context.Context, key string, unit hls.Unit, observe func(hls.Stage)) (hls.Artifact, error)
}

// Service accepts units of work and runs each as an independent job. A
// failing job never affects its siblings.
type Service struct {
	repo    Repository
	runner  Runner
	sem     *semaphore.Weighted
	log     *slog.Logger
	metrics *metrics.Metrics

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewService returns a Service that stores jobs in repo and runs at most
// maxConcurrent of them at a time. If maxConcurrent <= 0,
// DefaultMaxConcurrentJobs is used. log and m may be nil.
func NewService(repo Repository, runner Runner, maxConcurrent int, log *slog.Logger, m *metrics.Metrics) *Service {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrentJobs
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		repo:    repo,
		runner:  runner,
		sem:     semaphore.NewWeighted(int64(maxConcurrent)),
		log:     logger.OrDiscard(log),
		metrics: m,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Submit validates unit, records a pending job and starts it in the background.
// A unit whose logical name belongs to an unfinished job is rejected with
// ErrDuplicateJob.
func (s *Service) Submit(unit hls.Unit) (Job, error) {
	jobs, err := s.SubmitBatch([]hls.Unit{unit})
	if err != nil {
		return Job{}, err
	}
	return jobs[0], nil
}

// SubmitBatch submits several units, typically the episodes of one page.
// All units are validated first; if any is invalid, or two units share a
// logical name, nothing is submitted.
func (s *Service) SubmitBatch(units []hls.Unit) ([]Job, error) {
	names := make(map[string]int, len(units))
	for i, u := range units {
		if err := u.Validate(); err != nil {
			return nil, fmt.Errorf("unit %d: %w", i, err)
		}
		if j, dup := names[u.LogicalName]; dup {
			return nil, fmt.Errorf("unit %d: %w: same logical name as unit %d", i, ErrDuplicateJob, j)
		}
		names[u.LogicalName] = i
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, fmt.Errorf("submit: %w", ErrShuttingDown)
	}
	for _, j := range s.repo.List() {
		if i, dup := names[j.LogicalName]; dup && !j.Done {
			return nil, fmt.Errorf("unit %d: %w: job %s", i, ErrDuplicateJob, j.ID)
		}
	}

	jobs := make([]Job, 0, len(units))
	for _, u := range units {
		j, err := s.startLocked(u)
		if err != nil {
			return jobs, fmt.Errorf("submit: %w", err)
		}
		jobs = append(jobs, j)
	}
	return jobs, nil
}

// startLocked records and launches one job. Caller must hold s.mu.
func (s *Service) startLocked(unit hls.Unit) (Job, error) {
	job := Job{
		ID:              JobID(uuid.NewString()),
		LogicalName:     unit.LogicalName,
		PlaylistAddress: unit.PlaylistAddress,
		Stage:           StagePending,
	}
	if err := s.repo.Create(job); err != nil {
		return Job{}, err
	}
	job, _ = s.repo.Get(job.ID)

	s.metrics.IncJobsSubmitted()
	s.log.Info("job submitted",
		slog.String("job_id", string(job.ID)),
		slog.String("logical_name", job.LogicalName))

	s.wg.Add(1)
	go s.run(job)
	return job, nil
}

func (s *Service) run(job Job) {
	defer s.wg.Done()
	log := s.log.With(slog.String("job_id", string(job.ID)), slog.String("logical_name", job.LogicalName))

	if err := s.sem.Acquire(s.ctx, 1); err != nil {
		s.finish(log, job.ID, hls.Artifact{}, err)
		return
	}
	defer s.sem.Release(1)

	art, err := s.runner.Run(s.ctx, string(job.ID), job.Unit(), func(stage hls.Stage) {
		if err := s.repo.UpdateStage(job.ID, stage); err != nil {
			log.Warn("stage update rejected", slog.String("stage", string(stage)), slog.String("error", err.Error()))
		}
	})
	s.finish(log, job.ID, art, err)
}

func (s *Service) finish(log *slog.Logger, id JobID, art hls.Artifact, runErr error) {
	if runErr != nil {
		if err := s.repo.Fail(id, runErr); err != nil {
			log.Error("record job failure", slog.String("error", err.Error()))
		}
		s.metrics.IncJobsFailed()
		log.Error("job failed",
			slog.String("kind", hls.Kind(runErr)),
			slog.String("error", runErr.Error()))
		return
	}

	if err := s.repo.Complete(id, art); err != nil {
		log.Error("record job completion", slog.String("error", err.Error()))
	}
	s.metrics.IncJobsSucceeded()
	log.Info("job succeeded", slog.String("artifact", art.Path), slog.Int64("size", art.Size))
}

// Get returns the job with the given ID.
func (s *Service) Get(id JobID) (Job, bool) {
	return s.repo.Get(id)
}

// List returns all jobs ordered by creation time.
func (s *Service) List() []Job {
	return s.repo.List()
}

// ActiveJobCount returns the number of unfinished jobs.
func (s *Service) ActiveJobCount() int {
	return s.repo.ActiveJobCount()
}

// Wait blocks until every submitted job has finished.
func (s *Service) Wait() {
	s.wg.Wait()
}

// Shutdown stops accepting jobs, cancels running ones and waits for them to
// record their outcome, or for ctx to expire.
func (s *Service) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
