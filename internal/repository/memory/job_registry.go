package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"presentation-service/internal/entity"
	"presentation-service/internal/repository"
)

type record struct {
	mu  sync.Mutex
	job *entity.Job
}

// JobRegistry keeps jobs in process memory. The map lock only guards
// membership; each record has its own lock so updates to different jobs
// never contend.
type JobRegistry struct {
	mu   sync.RWMutex
	jobs map[uuid.UUID]*record
	now  func() time.Time
}

func NewJobRegistry() *JobRegistry {
	return &JobRegistry{
		jobs: map[uuid.UUID]*record{},
		now:  time.Now,
	}
}

func (r *JobRegistry) Create(ctx context.Context, job *entity.Job) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.jobs[job.ID]; ok {
		return repository.ErrAlreadyExists
	}
	r.jobs[job.ID] = &record{job: job.Clone()}
	return nil
}

func (r *JobRegistry) Get(ctx context.Context, id uuid.UUID) (*entity.Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rec := r.lookup(id)
	if rec == nil {
		return nil, repository.ErrNotFound
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.job.Clone(), nil
}

func (r *JobRegistry) Update(ctx context.Context, id uuid.UUID, fn func(*entity.Job)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	rec := r.lookup(id)
	if rec == nil {
		return repository.ErrNotFound
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()

	next, err := entity.ApplyMutation(rec.job, fn, r.now())
	if err != nil {
		return err
	}
	rec.job = next
	return nil
}

// Sweep drops terminal jobs last updated before cutoff.
func (r *JobRegistry) Sweep(ctx context.Context, cutoff time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for id, rec := range r.jobs {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		rec.mu.Lock()
		stale := rec.job.Status.IsTerminal() && rec.job.UpdatedAt.Before(cutoff)
		rec.mu.Unlock()
		if stale {
			delete(r.jobs, id)
			removed++
		}
	}
	return removed, nil
}

// Len reports how many jobs are held, terminal ones included.
func (r *JobRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.jobs)
}

func (r *JobRegistry) lookup(id uuid.UUID) *record {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.jobs[id]
}
