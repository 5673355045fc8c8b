package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"presentation-service/internal/entity"
	"presentation-service/internal/metrics"
)

// JobRegistry port (implementations: memory.JobRegistry, redis.JobRegistry,
// postgresql.JobRepository).
type JobRegistry interface {
	Create(ctx context.Context, job *entity.Job) error
	Get(ctx context.Context, id uuid.UUID) (*entity.Job, error)
	Update(ctx context.Context, id uuid.UUID, fn func(*entity.Job)) error
}

// Sweeper is implemented by registries that need explicit eviction.
// Registries that expire records on their own (redis TTL) leave it out.
type Sweeper interface {
	Sweep(ctx context.Context, cutoff time.Time) (int, error)
}

// Runner schedules a registered job for background execution.
type Runner interface {
	Enqueue(jobID uuid.UUID, req entity.GenerationRequest) error
}

// ErrBusy is returned when the runner cannot accept another job.
var ErrBusy = errors.New("server is busy, try again later")

type JobService struct {
	registry JobRegistry
	runner   Runner
	log      zerolog.Logger
	now      func() time.Time
}

func NewJobService(registry JobRegistry, runner Runner, log zerolog.Logger) *JobService {
	return &JobService{
		registry: registry,
		runner:   runner,
		log:      log.With().Str("component", "jobs").Logger(),
		now:      time.Now,
	}
}

// CreateJob registers a processing job and hands it to the runner. A job the
// runner rejects is marked failed before ErrBusy is returned, so it never
// lingers in processing.
func (s *JobService) CreateJob(ctx context.Context, req entity.GenerationRequest) (*entity.Job, error) {
	job := entity.NewJob(uuid.New(), req, s.now())
	if err := s.registry.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("register job: %w", err)
	}
	metrics.IncJob("created")

	if err := s.runner.Enqueue(job.ID, req); err != nil {
		metrics.IncJob("rejected")
		s.log.Warn().Err(err).Str("job_id", job.ID.String()).Msg("job rejected by runner")
		if uerr := s.registry.Update(ctx, job.ID, func(j *entity.Job) { j.Fail(ErrBusy.Error()) }); uerr != nil {
			s.log.Error().Err(uerr).Str("job_id", job.ID.String()).Msg("mark rejected job failed")
		}
		return nil, fmt.Errorf("%w: %v", ErrBusy, err)
	}

	s.log.Info().Str("job_id", job.ID.String()).Str("export_as", string(req.ExportAs)).Msg("job created")
	return job, nil
}

func (s *JobService) GetJob(ctx context.Context, id uuid.UUID) (*entity.Job, error) {
	return s.registry.Get(ctx, id)
}
