package service

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"presentation-service/internal/entity"
	"presentation-service/internal/metrics"
)

// Provider is the generation API port (implementation: gamma.Client).
type Provider interface {
	SubmitGeneration(ctx context.Context, req entity.GenerationRequest) (string, error)
	PollStatus(ctx context.Context, generationID string) (entity.ProviderStatus, error)
	FetchArtifact(ctx context.Context, exportURL string) ([]byte, error)
}

// ArtifactStore persists downloaded artifacts (implementation: storage.FileStore).
type ArtifactStore interface {
	Save(ctx context.Context, name string, data []byte) error
}

type GeneratorConfig struct {
	PollAttempts int
	PollInterval time.Duration
}

// Generator drives one generation from submit to a stored artifact.
type Generator struct {
	provider Provider
	store    ArtifactStore
	attempts int
	interval time.Duration
	log      zerolog.Logger
	sleep    func(ctx context.Context, d time.Duration) error
}

func NewGenerator(provider Provider, store ArtifactStore, cfg GeneratorConfig, log zerolog.Logger) *Generator {
	if cfg.PollAttempts <= 0 {
		cfg.PollAttempts = 15
	}
	if cfg.PollInterval < 0 {
		cfg.PollInterval = 0
	}
	return &Generator{
		provider: provider,
		store:    store,
		attempts: cfg.PollAttempts,
		interval: cfg.PollInterval,
		log:      log.With().Str("component", "generator").Logger(),
		sleep:    sleepCtx,
	}
}

// Generate never returns an error: every outcome, including a panic further
// down, is folded into the returned GenerationResult. onProgress may be nil.
func (g *Generator) Generate(ctx context.Context, req entity.GenerationRequest, onProgress func(int)) (res entity.GenerationResult) {
	start := time.Now()
	polls := 0

	defer func() {
		if r := recover(); r != nil {
			g.log.Error().Interface("panic", r).Bytes("stack", debug.Stack()).Msg("generation panicked")
			res = entity.Failed(entity.ReasonInternal, fmt.Sprintf("internal error: %v", r))
		}
		outcome := entity.ProviderStatusCompleted
		if f, failed := res.Failure(); failed {
			outcome = string(f.Reason)
		}
		metrics.ObserveGeneration(outcome, start, polls)
	}()

	report := func(p int) {
		if onProgress != nil {
			onProgress(p)
		}
	}

	generationID, err := g.provider.SubmitGeneration(ctx, req)
	if err != nil {
		g.log.Warn().Err(err).Msg("submit generation failed")
		return entity.Failed(entity.ReasonProvider, "failed to start generation: "+err.Error())
	}
	log := g.log.With().Str("generation_id", generationID).Logger()
	log.Info().Str("export_as", string(req.ExportAs)).Int("num_cards", req.NumCards).Msg("generation submitted")

	for attempt := 1; attempt <= g.attempts; attempt++ {
		if err := g.sleep(ctx, g.interval); err != nil {
			return entity.Failed(entity.ReasonInternal, "generation aborted: "+err.Error())
		}
		polls = attempt

		st, err := g.provider.PollStatus(ctx, generationID)
		if err != nil {
			var temp interface{ Temporary() bool }
			if errors.As(err, &temp) && temp.Temporary() {
				log.Warn().Err(err).Int("attempt", attempt).Msg("status check rejected, retrying")
				continue
			}
			log.Error().Err(err).Int("attempt", attempt).Msg("status check failed")
			return entity.Failed(entity.ReasonProvider, "status check failed: "+err.Error())
		}

		log.Debug().Int("attempt", attempt).Str("status", st.Status).Msg("polled")
		report(entity.ProgressStarted + 80*attempt/g.attempts)

		switch strings.ToLower(st.Status) {
		case entity.ProviderStatusCompleted:
			return g.finish(ctx, log, generationID, req.ExportAs, st)
		case entity.ProviderStatusFailed:
			log.Warn().Msg("provider reported failure")
			return entity.Failed(entity.ReasonGenerationFailed, "generation failed")
		}
	}

	log.Warn().Int("attempts", g.attempts).Msg("generation timed out")
	return entity.Failed(entity.ReasonTimeout, "generation timed out")
}

func (g *Generator) finish(ctx context.Context, log zerolog.Logger, generationID string, format entity.ExportFormat, st entity.ProviderStatus) entity.GenerationResult {
	if st.ExportURL == "" {
		return entity.Failed(entity.ReasonProvider, "generation completed without an export url")
	}
	data, err := g.provider.FetchArtifact(ctx, st.ExportURL)
	if err != nil {
		log.Error().Err(err).Msg("artifact download failed")
		return entity.Failed(entity.ReasonProvider, "failed to download artifact: "+err.Error())
	}

	name := entity.ArtifactFileName(generationID, format)
	if err := g.store.Save(ctx, name, data); err != nil {
		log.Error().Err(err).Str("file_name", name).Msg("artifact save failed")
		return entity.Failed(entity.ReasonInternal, "failed to save artifact: "+err.Error())
	}

	log.Info().Str("file_name", name).Int("bytes", len(data)).Msg("generation completed")
	return entity.Succeeded(entity.Artifact{
		FileName:     name,
		GenerationID: generationID,
		ProviderURL:  st.ProviderURL,
	})
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
