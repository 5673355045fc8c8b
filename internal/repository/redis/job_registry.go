package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"presentation-service/internal/entity"
	"presentation-service/internal/repository"
)

const maxUpdateRetries = 10

// JobRegistry stores each job as a JSON value under prefix+id. Updates use
// WATCH/MULTI so concurrent writers to one job retry instead of overwriting
// each other. With a non-zero retention, terminal jobs get a TTL and Redis
// evicts them on its own.
type JobRegistry struct {
	rdb       *redis.Client
	prefix    string
	retention time.Duration
	now       func() time.Time
}

func NewClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, err
	}
	return rdb, nil
}

func NewJobRegistry(rdb *redis.Client, prefix string, retention time.Duration) *JobRegistry {
	return &JobRegistry{
		rdb:       rdb,
		prefix:    prefix,
		retention: retention,
		now:       time.Now,
	}
}

func (r *JobRegistry) key(id uuid.UUID) string {
	return r.prefix + id.String()
}

func (r *JobRegistry) Create(ctx context.Context, job *entity.Job) error {
	b, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode job: %w", err)
	}
	ok, err := r.rdb.SetNX(ctx, r.key(job.ID), b, 0).Result()
	if err != nil {
		return err
	}
	if !ok {
		return repository.ErrAlreadyExists
	}
	return nil
}

func (r *JobRegistry) Get(ctx context.Context, id uuid.UUID) (*entity.Job, error) {
	b, err := r.rdb.Get(ctx, r.key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return decode(b)
}

func (r *JobRegistry) Update(ctx context.Context, id uuid.UUID, fn func(*entity.Job)) error {
	key := r.key(id)

	txf := func(tx *redis.Tx) error {
		b, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return repository.ErrNotFound
			}
			return err
		}
		cur, err := decode(b)
		if err != nil {
			return err
		}
		next, err := entity.ApplyMutation(cur, fn, r.now())
		if err != nil {
			return err
		}
		nb, err := json.Marshal(next)
		if err != nil {
			return fmt.Errorf("encode job: %w", err)
		}

		ttl := time.Duration(redis.KeepTTL)
		if next.Status.IsTerminal() && r.retention > 0 {
			ttl = r.retention
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, nb, ttl)
			return nil
		})
		return err
	}

	for i := 0; i < maxUpdateRetries; i++ {
		err := r.rdb.Watch(ctx, txf, key)
		if err == nil {
			return nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			// another writer touched the key between WATCH and EXEC
			continue
		}
		return err
	}
	return fmt.Errorf("update job %s: too many concurrent writers", id)
}

func decode(b []byte) (*entity.Job, error) {
	var job entity.Job
	if err := json.Unmarshal(b, &job); err != nil {
		return nil, fmt.Errorf("decode job: %w", err)
	}
	return &job, nil
}
