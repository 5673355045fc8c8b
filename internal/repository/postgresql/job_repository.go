package postgresql

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"presentation-service/internal/entity"
	"presentation-service/internal/repository"
)

//go:embed migrations/001_presentation_jobs.sql
var schemaSQL string

const uniqueViolation = "23505"

// JobRepository is the durable job registry. Updates lock the row for the
// duration of the mutation, so writers to one job are serialized while other
// jobs proceed independently.
type JobRepository struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

func NewJobRepository(pool *pgxpool.Pool) *JobRepository {
	return &JobRepository{pool: pool, now: time.Now}
}

func NewPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	cfg.MaxConns = 10
	cfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

// EnsureSchema creates the jobs table when it does not exist yet.
func (r *JobRepository) EnsureSchema(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, schemaSQL)
	return err
}

func (r *JobRepository) Create(ctx context.Context, job *entity.Job) error {
	const q = `
INSERT INTO presentation_jobs
    (id, status, progress, export_as, num_cards, generation_id, file_name, download_url, provider_url, error, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12);
`
	_, err := r.pool.Exec(ctx, q,
		job.ID, string(job.Status), job.Progress, string(job.ExportAs), job.NumCards,
		job.GenerationID, job.FileName, job.DownloadURL, job.ProviderURL, job.Error,
		job.CreatedAt, job.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return repository.ErrAlreadyExists
		}
		return err
	}
	return nil
}

const selectJob = `
SELECT id, status, progress, export_as, num_cards, generation_id, file_name, download_url, provider_url, error, created_at, updated_at
FROM presentation_jobs
WHERE id = $1`

func (r *JobRepository) Get(ctx context.Context, id uuid.UUID) (*entity.Job, error) {
	return scanJob(r.pool.QueryRow(ctx, selectJob+";", id))
}

func (r *JobRepository) Update(ctx context.Context, id uuid.UUID, fn func(*entity.Job)) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		cur, err := scanJob(tx.QueryRow(ctx, selectJob+" FOR UPDATE;", id))
		if err != nil {
			return err
		}
		next, err := entity.ApplyMutation(cur, fn, r.now())
		if err != nil {
			return err
		}

		const q = `
UPDATE presentation_jobs
SET status=$2, progress=$3, generation_id=$4, file_name=$5, download_url=$6, provider_url=$7, error=$8, updated_at=$9
WHERE id=$1;
`
		_, err = tx.Exec(ctx, q,
			id, string(next.Status), next.Progress, next.GenerationID, next.FileName,
			next.DownloadURL, next.ProviderURL, next.Error, next.UpdatedAt,
		)
		return err
	})
}

// Sweep deletes terminal jobs last updated before cutoff.
func (r *JobRepository) Sweep(ctx context.Context, cutoff time.Time) (int, error) {
	const q = `DELETE FROM presentation_jobs WHERE status <> 'processing' AND updated_at < $1;`
	tag, err := r.pool.Exec(ctx, q, cutoff)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func scanJob(row pgx.Row) (*entity.Job, error) {
	var (
		job        entity.Job
		statusText string
		exportAs   string
		errText    *string
		createdAt  time.Time
		updatedAt  time.Time
	)
	if err := row.Scan(
		&job.ID,
		&statusText,
		&job.Progress,
		&exportAs,
		&job.NumCards,
		&job.GenerationID,
		&job.FileName,
		&job.DownloadURL,
		&job.ProviderURL,
		&errText, // NULL => nil
		&createdAt,
		&updatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}

	job.Status = entity.JobStatus(statusText)
	job.ExportAs = entity.ExportFormat(exportAs)
	job.Error = errText
	job.CreatedAt = createdAt.UTC()
	job.UpdatedAt = updatedAt.UTC()
	return &job, nil
}
