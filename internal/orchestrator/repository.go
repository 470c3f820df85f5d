package orchestrator

import (
	"errors"
	"sort"
	"sync"
	"time"

	"hls-assembler/internal/hls"
)

// Repository defines the concurrency-safe contract for accessing and mutating
// job state. All getters return copies.
type Repository interface {
	// Create records a new job. It fails with ErrJobExists if the ID is taken.
	Create(j Job) error

	// Get returns the job with the given ID.
	Get(id JobID) (Job, bool)

	// List returns all jobs ordered by creation time.
	List() []Job

	// UpdateStage moves a running job to stage.
	UpdateStage(id JobID, stage hls.Stage) error

	// Complete records the artifact of a successful run and finishes the job.
	Complete(id JobID, art hls.Artifact) error

	// Fail records the error of a failed run and finishes the job.
	Fail(id JobID, err error) error

	// ActiveJobCount returns the number of jobs that are not finished.
	// Used for metrics.
	ActiveJobCount() int
}

var (
	// ErrJobNotFound is returned for unknown job IDs.
	ErrJobNotFound = errors.New("job not found")

	// ErrJobExists is returned when creating a job whose ID is already used.
	ErrJobExists = errors.New("job already exists")

	// ErrJobFinished is returned when updating a job that already finished.
	ErrJobFinished = errors.New("job has finished")
)

// InMemoryRepository is a concurrency-safe in-memory implementation of Repository.
// It uses a Store for persistence; by default that is an InMemoryStore.
type InMemoryRepository struct {
	mu    sync.RWMutex
	store Store
	now   func() time.Time
}

// NewInMemoryRepository constructs a new repository with a default in-memory store.
func NewInMemoryRepository() *InMemoryRepository {
	return NewInMemoryRepositoryWithStore(NewInMemoryStore())
}

// NewInMemoryRepositoryWithStore constructs a repository that uses the given Store.
// Useful for testing or for plugging in a different persistence backend.
func NewInMemoryRepositoryWithStore(store Store) *InMemoryRepository {
	return &InMemoryRepository{store: store, now: func() time.Time { return time.Now().UTC() }}
}

// Create implements Repository.Create.
func (r *InMemoryRepository) Create(j Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.store.GetJob(j.ID); exists {
		return ErrJobExists
	}
	now := r.now()
	if j.CreatedAt.IsZero() {
		j.CreatedAt = now
	}
	j.UpdatedAt = now
	if j.Stage == "" {
		j.Stage = StagePending
	}
	r.store.SetJob(&j)
	return nil
}

// Get implements Repository.Get.
func (r *InMemoryRepository) Get(id JobID) (Job, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	j, ok := r.store.GetJob(id)
	if !ok {
		return Job{}, false
	}
	return *j, true
}

// List implements Repository.List.
func (r *InMemoryRepository) List() []Job {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := r.store.ListJobIDs()
	jobs := make([]Job, 0, len(ids))
	for _, id := range ids {
		if j, ok := r.store.GetJob(id); ok {
			jobs = append(jobs, *j)
		}
	}
	sort.Slice(jobs, func(a, b int) bool {
		if jobs[a].CreatedAt.Equal(jobs[b].CreatedAt) {
			return jobs[a].ID < jobs[b].ID
		}
		return jobs[a].CreatedAt.Before(jobs[b].CreatedAt)
	})
	return jobs
}

// UpdateStage implements Repository.UpdateStage.
func (r *InMemoryRepository) UpdateStage(id JobID, stage hls.Stage) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	j, err := r.getRunningLocked(id)
	if err != nil {
		return err
	}
	j.Stage = stage
	j.UpdatedAt = r.now()
	return nil
}

// Complete implements Repository.Complete. A job whose scratch cleanup
// failed stays in the assembled stage with CleanupError set.
func (r *InMemoryRepository) Complete(id JobID, art hls.Artifact) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	j, err := r.getRunningLocked(id)
	if err != nil {
		return err
	}
	j.Artifact = &art
	if art.CleanupErr != nil {
		j.Stage = hls.StageAssembled
		j.CleanupError = art.CleanupErr.Error()
	} else {
		j.Stage = hls.StageCleanedUp
	}
	j.Done = true
	j.UpdatedAt = r.now()
	return nil
}

// Fail implements Repository.Fail.
func (r *InMemoryRepository) Fail(id JobID, runErr error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	j, err := r.getRunningLocked(id)
	if err != nil {
		return err
	}
	j.FailedStage = hls.FailedStage(runErr)
	if j.FailedStage == "" {
		j.FailedStage = j.Stage
	}
	j.Stage = StageFailed
	j.ErrorKind = hls.Kind(runErr)
	if runErr != nil {
		j.Error = runErr.Error()
	}
	j.Done = true
	j.UpdatedAt = r.now()
	return nil
}

// ActiveJobCount implements Repository.ActiveJobCount.
func (r *InMemoryRepository) ActiveJobCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, id := range r.store.ListJobIDs() {
		if j, ok := r.store.GetJob(id); ok && !j.Done {
			n++
		}
	}
	return n
}

// getRunningLocked returns the stored job if it exists and is not finished.
// Caller must hold r.mu in write mode.
func (r *InMemoryRepository) getRunningLocked(id JobID) (*Job, error) {
	j, ok := r.store.GetJob(id)
	if !ok {
		return nil, ErrJobNotFound
	}
	if j.Done {
		return nil, ErrJobFinished
	}
	return j, nil
}
