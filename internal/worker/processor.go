package worker

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"presentation-service/internal/entity"
	"presentation-service/internal/metrics"
)

type JobRepo interface {
	Update(ctx context.Context, id uuid.UUID, fn func(*entity.Job)) error
}

type Generator interface {
	Generate(ctx context.Context, req entity.GenerationRequest, onProgress func(int)) entity.GenerationResult
}

// Processor runs one job end to end and reconciles the registry with the
// outcome.
type Processor struct {
	repo JobRepo
	gen  Generator
	log  zerolog.Logger
}

func NewProcessor(repo JobRepo, gen Generator, log zerolog.Logger) *Processor {
	return &Processor{
		repo: repo,
		gen:  gen,
		log:  log.With().Str("component", "processor").Logger(),
	}
}

// Process always leaves the job in a terminal state unless the registry
// itself is unreachable; a panic in the generation path becomes a failed job.
func (p *Processor) Process(ctx context.Context, id uuid.UUID, req entity.GenerationRequest) (err error) {
	start := time.Now()
	log := p.log.With().Str("job_id", id.String()).Logger()
	// registry writes must land even when shutdown cancels the generation
	rctx := context.WithoutCancel(ctx)

	metrics.AddJobsInFlight(1)
	defer metrics.AddJobsInFlight(-1)

	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Bytes("stack", debug.Stack()).Msg("job panicked")
			err = p.fail(rctx, id, fmt.Sprintf("internal error: %v", r))
		}
	}()

	if err := p.repo.Update(rctx, id, func(j *entity.Job) { j.Progress = entity.ProgressStarted }); err != nil {
		log.Error().Err(err).Msg("mark job started")
		return err
	}
	log.Info().Str("status", string(entity.StatusProcessing)).Msg("job started")

	res := p.gen.Generate(ctx, req, func(progress int) {
		if uerr := p.repo.Update(rctx, id, func(j *entity.Job) {
			if progress > j.Progress {
				j.Progress = progress
			}
		}); uerr != nil {
			log.Warn().Err(uerr).Msg("progress update")
		}
	})

	if a, ok := res.Artifact(); ok {
		err = p.repo.Update(rctx, id, func(j *entity.Job) {
			j.Status = entity.StatusCompleted
			j.Progress = 100
			j.GenerationID = a.GenerationID
			j.FileName = a.FileName
			j.DownloadURL = entity.DownloadURL(a.FileName)
			j.ProviderURL = a.ProviderURL
		})
		if err != nil {
			log.Error().Err(err).Msg("mark job completed")
			return err
		}
		metrics.IncJob("completed")
		log.Info().Str("status", string(entity.StatusCompleted)).Str("file_name", a.FileName).
			Int64("duration_ms", time.Since(start).Milliseconds()).Msg("job done")
		return nil
	}

	f, _ := res.Failure()
	log.Warn().Str("status", string(entity.StatusFailed)).Str("reason", string(f.Reason)).Str("error", f.Message).
		Int64("duration_ms", time.Since(start).Milliseconds()).Msg("job failed")
	return p.fail(rctx, id, f.Message)
}

func (p *Processor) fail(ctx context.Context, id uuid.UUID, msg string) error {
	if err := p.repo.Update(ctx, id, func(j *entity.Job) { j.Fail(msg) }); err != nil {
		p.log.Error().Err(err).Str("job_id", id.String()).Msg("mark job failed")
		return err
	}
	metrics.IncJob("failed")
	return nil
}
