package worker_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"presentation-service/internal/entity"
	"presentation-service/internal/repository/memory"
	"presentation-service/internal/worker"
)

type genFunc func(ctx context.Context, req entity.GenerationRequest, onProgress func(int)) entity.GenerationResult

func (f genFunc) Generate(ctx context.Context, req entity.GenerationRequest, onProgress func(int)) entity.GenerationResult {
	return f(ctx, req, onProgress)
}

func register(t *testing.T, reg *memory.JobRegistry) (*entity.Job, entity.GenerationRequest) {
	t.Helper()
	req := entity.GenerationRequest{InputText: "Top 5 Pizza Places in NYC", ExportAs: entity.FormatPDF, NumCards: 5}
	job := entity.NewJob(uuid.New(), req, time.Now())
	if err := reg.Create(context.Background(), job); err != nil {
		t.Fatalf("create: %v", err)
	}
	return job, req
}

func TestProcessor_Completed(t *testing.T) {
	ctx := context.Background()
	reg := memory.NewJobRegistry()
	job, req := register(t, reg)

	var sawStarted bool
	gen := genFunc(func(ctx context.Context, _ entity.GenerationRequest, onProgress func(int)) entity.GenerationResult {
		cur, _ := reg.Get(ctx, job.ID)
		sawStarted = cur.Progress == entity.ProgressStarted && cur.Status == entity.StatusProcessing
		onProgress(50)
		return entity.Succeeded(entity.Artifact{FileName: "abc123.pdf", GenerationID: "abc123", ProviderURL: "https://gamma.app/docs/abc123"})
	})

	p := worker.NewProcessor(reg, gen, zerolog.Nop())
	if err := p.Process(ctx, job.ID, req); err != nil {
		t.Fatalf("process: %v", err)
	}
	if !sawStarted {
		t.Fatalf("expected progress=%d before generation", entity.ProgressStarted)
	}

	got, _ := reg.Get(ctx, job.ID)
	if got.Status != entity.StatusCompleted || got.Progress != 100 {
		t.Fatalf("expected completed/100, got %s/%d", got.Status, got.Progress)
	}
	if got.DownloadURL != "/api/downloads/abc123.pdf" || got.FileName != "abc123.pdf" || got.ProviderURL != "https://gamma.app/docs/abc123" {
		t.Fatalf("unexpected locators %+v", got)
	}
	if got.Error != nil {
		t.Fatalf("completed job must not carry an error")
	}
}

func TestProcessor_Failed(t *testing.T) {
	ctx := context.Background()
	reg := memory.NewJobRegistry()
	job, req := register(t, reg)

	gen := genFunc(func(context.Context, entity.GenerationRequest, func(int)) entity.GenerationResult {
		return entity.Failed(entity.ReasonTimeout, "generation timed out")
	})

	if err := worker.NewProcessor(reg, gen, zerolog.Nop()).Process(ctx, job.ID, req); err != nil {
		t.Fatalf("process: %v", err)
	}

	got, _ := reg.Get(ctx, job.ID)
	if got.Status != entity.StatusFailed || got.Error == nil || *got.Error != "generation timed out" {
		t.Fatalf("expected failed with message, got %+v", got)
	}
	if got.DownloadURL != "" {
		t.Fatalf("failed job must not carry a download url")
	}
}

func TestProcessor_PanicBecomesFailedJob(t *testing.T) {
	ctx := context.Background()
	reg := memory.NewJobRegistry()
	job, req := register(t, reg)

	gen := genFunc(func(context.Context, entity.GenerationRequest, func(int)) entity.GenerationResult {
		panic("nil map write")
	})

	if err := worker.NewProcessor(reg, gen, zerolog.Nop()).Process(ctx, job.ID, req); err != nil {
		t.Fatalf("panic must be absorbed, got %v", err)
	}

	got, _ := reg.Get(ctx, job.ID)
	if got.Status != entity.StatusFailed || got.Error == nil {
		t.Fatalf("expected failed job, got %+v", got)
	}
}

func TestProcessor_RecordsOutcomeAfterCancel(t *testing.T) {
	reg := memory.NewJobRegistry()
	job, req := register(t, reg)

	ctx, cancel := context.WithCancel(context.Background())
	gen := genFunc(func(ctx context.Context, _ entity.GenerationRequest, _ func(int)) entity.GenerationResult {
		cancel()
		<-ctx.Done()
		return entity.Failed(entity.ReasonInternal, "generation aborted: "+ctx.Err().Error())
	})

	if err := worker.NewProcessor(reg, gen, zerolog.Nop()).Process(ctx, job.ID, req); err != nil {
		t.Fatalf("process: %v", err)
	}
	got, _ := reg.Get(context.Background(), job.ID)
	if got.Status != entity.StatusFailed {
		t.Fatalf("expected failed after shutdown, got %s", got.Status)
	}
}

func TestPool_RunsTasks(t *testing.T) {
	pool := worker.NewPool(3, 10, zerolog.Nop())
	pool.Start(context.Background())

	var mu sync.Mutex
	ran := 0
	for i := 0; i < 10; i++ {
		err := pool.Submit(func(context.Context) error {
			mu.Lock()
			ran++
			mu.Unlock()
			return nil
		})
		if err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
	}
	pool.Stop()

	if ran != 10 {
		t.Fatalf("expected 10 tasks run before Stop returns, got %d", ran)
	}
	if err := pool.Submit(func(context.Context) error { return nil }); !errors.Is(err, worker.ErrStopped) {
		t.Fatalf("expected ErrStopped after Stop, got %v", err)
	}
}

func TestPool_SubmitFailsFastWhenFull(t *testing.T) {
	pool := worker.NewPool(1, 1, zerolog.Nop())
	pool.Start(context.Background())

	release := make(chan struct{})
	started := make(chan struct{})
	_ = pool.Submit(func(context.Context) error {
		close(started)
		<-release
		return nil
	})
	<-started
	if err := pool.Submit(func(context.Context) error { return nil }); err != nil {
		t.Fatalf("backlog slot should accept one task, got %v", err)
	}

	if err := pool.Submit(func(context.Context) error { return nil }); !errors.Is(err, worker.ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}

	close(release)
	pool.Stop()
}

func TestDispatcher_Enqueue(t *testing.T) {
	reg := memory.NewJobRegistry()
	job, req := register(t, reg)

	gen := genFunc(func(context.Context, entity.GenerationRequest, func(int)) entity.GenerationResult {
		return entity.Succeeded(entity.Artifact{FileName: "x.pptx", GenerationID: "x"})
	})
	pool := worker.NewPool(1, 1, zerolog.Nop())
	pool.Start(context.Background())
	d := worker.NewDispatcher(pool, worker.NewProcessor(reg, gen, zerolog.Nop()))

	if err := d.Enqueue(job.ID, req); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	pool.Stop()

	got, _ := reg.Get(context.Background(), job.ID)
	if got.Status != entity.StatusCompleted {
		t.Fatalf("expected completed, got %s", got.Status)
	}
}
