package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"presentation-service/internal/metrics"
)

// ArtifactSweeper removes stored artifacts older than a cutoff
// (implementation: storage.FileStore).
type ArtifactSweeper interface {
	RemoveOlderThan(ctx context.Context, cutoff time.Time) (int, error)
}

// Janitor evicts terminal jobs and their artifacts once they are older than
// the retention period. jobs may be nil when the registry expires records
// itself.
type Janitor struct {
	jobs      Sweeper
	artifacts ArtifactSweeper
	retention time.Duration
	interval  time.Duration
	log       zerolog.Logger
	now       func() time.Time
}

func NewJanitor(jobs Sweeper, artifacts ArtifactSweeper, retention, interval time.Duration, log zerolog.Logger) *Janitor {
	return &Janitor{
		jobs:      jobs,
		artifacts: artifacts,
		retention: retention,
		interval:  interval,
		log:       log.With().Str("component", "janitor").Logger(),
		now:       time.Now,
	}
}

// Run sweeps every interval until ctx is done. With retention disabled it
// returns immediately.
func (j *Janitor) Run(ctx context.Context) error {
	if j.retention <= 0 || j.interval <= 0 {
		j.log.Debug().Msg("retention disabled, janitor not started")
		return nil
	}
	j.log.Info().Dur("retention", j.retention).Dur("interval", j.interval).Msg("janitor started")

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			j.log.Info().Msg("janitor stopped")
			return nil
		case <-ticker.C:
			j.SweepOnce(ctx)
		}
	}
}

// SweepOnce runs a single eviction pass and returns how many jobs and files
// were removed.
func (j *Janitor) SweepOnce(ctx context.Context) (jobs, files int) {
	cutoff := j.now().Add(-j.retention)

	if j.jobs != nil {
		n, err := j.jobs.Sweep(ctx, cutoff)
		if err != nil {
			j.log.Error().Err(err).Msg("sweep jobs")
		}
		jobs = n
		metrics.AddJobs("evicted", n)
	}
	if j.artifacts != nil {
		n, err := j.artifacts.RemoveOlderThan(ctx, cutoff)
		if err != nil {
			j.log.Error().Err(err).Msg("sweep artifacts")
		}
		files = n
	}

	if jobs > 0 || files > 0 {
		j.log.Info().Int("jobs", jobs).Int("files", files).Msg("evicted expired entries")
	}
	return jobs, files
}
