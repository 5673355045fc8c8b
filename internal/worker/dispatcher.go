package worker

import (
	"context"

	"github.com/google/uuid"

	"presentation-service/internal/entity"
)

// Dispatcher hands registered jobs to the pool.
type Dispatcher struct {
	pool      *Pool
	processor *Processor
}

func NewDispatcher(pool *Pool, processor *Processor) *Dispatcher {
	return &Dispatcher{pool: pool, processor: processor}
}

func (d *Dispatcher) Enqueue(jobID uuid.UUID, req entity.GenerationRequest) error {
	return d.pool.Submit(func(ctx context.Context) error {
		return d.processor.Process(ctx, jobID, req)
	})
}
