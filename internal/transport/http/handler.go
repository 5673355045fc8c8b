package httptransport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"presentation-service/internal/entity"
	"presentation-service/internal/provider/gamma"
	"presentation-service/internal/repository"
	"presentation-service/internal/service"
	"presentation-service/internal/storage"
)

// Generator runs one generation inline (implementation: service.Generator).
type Generator interface {
	Generate(ctx context.Context, req entity.GenerationRequest, onProgress func(int)) entity.GenerationResult
}

// Jobs is the async job API (implementation: service.JobService).
type Jobs interface {
	CreateJob(ctx context.Context, req entity.GenerationRequest) (*entity.Job, error)
	GetJob(ctx context.Context, id uuid.UUID) (*entity.Job, error)
}

// Files serves stored artifacts (implementation: storage.FileStore).
type Files interface {
	Open(name string) (*os.File, os.FileInfo, error)
}

// Presentations is the legacy content API (implementation: gamma.Client).
type Presentations interface {
	Submit(ctx context.Context, title, content string) (map[string]any, error)
	GetPresentation(ctx context.Context, id string) (map[string]any, error)
}

type Handler struct {
	gen           Generator
	jobs          Jobs
	files         Files
	presentations Presentations
	log           zerolog.Logger
	now           func() time.Time
}

func NewHandler(gen Generator, jobs Jobs, files Files, presentations Presentations, log zerolog.Logger) *Handler {
	return &Handler{
		gen:           gen,
		jobs:          jobs,
		files:         files,
		presentations: presentations,
		log:           log.With().Str("component", "http").Logger(),
		now:           time.Now,
	}
}

// maxBodyBytes caps JSON request bodies well above the largest valid input.
const maxBodyBytes = 64 << 10

// decodeJSON reads at most maxBodyBytes into v and writes the error response
// itself when decoding fails.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v)
	if err == nil {
		return true
	}
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeErr(w, http.StatusRequestEntityTooLarge, "request body too large")
		return false
	}
	writeErr(w, http.StatusBadRequest, "invalid json")
	return false
}

func (h *Handler) decodeRequest(w http.ResponseWriter, r *http.Request) (entity.GenerationRequest, bool) {
	var dto generateDTO
	if !decodeJSON(w, r, &dto) {
		return entity.GenerationRequest{}, false
	}
	req, err := entity.NewGenerationRequest(dto.InputText, dto.ExportAs, dto.NumCards)
	if err != nil {
		writeErr(w, http.StatusUnprocessableEntity, err.Error())
		return entity.GenerationRequest{}, false
	}
	return req, true
}

// GeneratePresentation godoc
// @Summary Generate a presentation synchronously
// @Description Blocks until the provider finishes (up to poll_attempts x poll_interval) and returns the download locator.
// @Tags presentations
// @Accept json
// @Produce json
// @Param request body generateDTO true "generation request"
// @Success 200 {object} generateResp
// @Failure 400 {object} apiError
// @Failure 413 {object} apiError
// @Failure 422 {object} apiError
// @Failure 500 {object} apiError
// @Router /api/generate-presentation [post]
func (h *Handler) GeneratePresentation(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeRequest(w, r)
	if !ok {
		return
	}

	// a dropped client connection does not abort a started generation
	res := h.gen.Generate(context.WithoutCancel(r.Context()), req, nil)

	if a, ok := res.Artifact(); ok {
		writeJSON(w, http.StatusOK, generateResp{
			Success: true,
			Data: &presentationData{
				GenerationID: a.GenerationID,
				FileName:     a.FileName,
				DownloadURL:  entity.DownloadURL(a.FileName),
				GammaURL:     a.ProviderURL,
				Status:       string(entity.StatusCompleted),
				CreatedAt:    h.now().UTC().Format(time.RFC3339),
			},
		})
		return
	}

	f, _ := res.Failure()
	if f.Reason == entity.ReasonInternal {
		h.log.Error().Str("reason", string(f.Reason)).Str("detail", f.Message).Msg("sync generation")
		writeErr(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, generateResp{Success: false, Error: f.Message})
}

// GeneratePresentationAsync godoc
// @Summary Start an asynchronous generation
// @Description Registers a job in processing state and returns immediately. Poll status_url for progress.
// @Tags presentations
// @Accept json
// @Produce json
// @Param request body generateDTO true "generation request"
// @Success 200 {object} asyncJobResp
// @Failure 400 {object} apiError
// @Failure 413 {object} apiError
// @Failure 422 {object} apiError
// @Failure 503 {object} apiError
// @Failure 500 {object} apiError
// @Router /api/generate-presentation-async [post]
func (h *Handler) GeneratePresentationAsync(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeRequest(w, r)
	if !ok {
		return
	}

	job, err := h.jobs.CreateJob(r.Context(), req)
	if err != nil {
		if errors.Is(err, service.ErrBusy) {
			writeErr(w, http.StatusServiceUnavailable, service.ErrBusy.Error())
			return
		}
		h.log.Error().Err(err).Msg("create job")
		writeErr(w, http.StatusInternalServerError, "failed to start generation: "+err.Error())
		return
	}

	id := job.ID.String()
	writeJSON(w, http.StatusOK, asyncJobResp{
		Success:   true,
		JobID:     id,
		Status:    string(job.Status),
		StatusURL: "/api/presentation-status/" + id,
	})
}

// PresentationStatus godoc
// @Summary Get async job status
// @Tags presentations
// @Produce json
// @Param job_id path string true "job id (uuid)"
// @Success 200 {object} jobStatusResp
// @Failure 404 {object} apiError
// @Failure 500 {object} apiError
// @Router /api/presentation-status/{job_id} [get]
func (h *Handler) PresentationStatus(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "job_id"))
	if err != nil {
		// ids are only ever minted here, so a malformed one is simply unknown
		writeErr(w, http.StatusNotFound, "job not found")
		return
	}

	job, err := h.jobs.GetJob(r.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeErr(w, http.StatusNotFound, "job not found")
			return
		}
		h.log.Error().Err(err).Str("job_id", id.String()).Msg("get job")
		writeErr(w, http.StatusInternalServerError, "failed to load job")
		return
	}

	writeJSON(w, http.StatusOK, newJobStatusResp(job))
}

// Download godoc
// @Summary Download a generated artifact
// @Tags presentations
// @Produce application/pdf
// @Produce application/vnd.openxmlformats-officedocument.presentationml.presentation
// @Param file_name path string true "artifact file name, e.g. abc123.pdf"
// @Success 200 {file} file
// @Failure 400 {object} apiError
// @Failure 404 {object} apiError
// @Router /api/downloads/{file_name} [get]
func (h *Handler) Download(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "file_name")
	if !storage.ValidFileName(name) {
		writeErr(w, http.StatusBadRequest, "invalid file name format")
		return
	}

	f, info, err := h.files.Open(name)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeErr(w, http.StatusNotFound, "file not found")
			return
		}
		h.log.Error().Err(err).Str("file_name", name).Msg("open artifact")
		writeErr(w, http.StatusInternalServerError, "error downloading file")
		return
	}
	defer f.Close()

	format := entity.ExportFormat(strings.TrimPrefix(path.Ext(name), "."))
	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", "attachment; filename="+name)
	http.ServeContent(w, r, name, info.ModTime(), f)
}

// Health godoc
// @Summary Health check
// @Tags system
// @Produce json
// @Success 200 {object} healthResp
// @Router /api/health [get]
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResp{
		Status:    "healthy",
		Message:   "Presentation API is running",
		Timestamp: h.now().UTC().Format(time.RFC3339),
	})
}

// Root godoc
// @Summary API information
// @Tags system
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router / [get]
func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    "Presentation Generation API",
		"version": "1.0.0",
		"status":  "running",
		"endpoints": map[string]string{
			"generate_sync":  "/api/generate-presentation",
			"generate_async": "/api/generate-presentation-async",
			"check_status":   "/api/presentation-status/{job_id}",
			"download":       "/api/downloads/{file_name}",
			"health":         "/api/health",
			"docs":           "/swagger/index.html",
			"metrics":        "/metrics",
			"app":            "/app",
			"preview":        "/preview",
		},
	})
}

// CreatePresentation godoc
// @Summary Create a presentation through the content API
// @Description Tries each configured candidate path in order; 502 carries the last error and a hint when all fail.
// @Tags content
// @Accept json
// @Produce json
// @Param request body submitDTO true "title and content"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} apiError
// @Failure 502 {object} fallbackErrorResp
// @Router /api/presentations [post]
func (h *Handler) CreatePresentation(w http.ResponseWriter, r *http.Request) {
	var dto submitDTO
	if !decodeJSON(w, r, &dto) {
		return
	}
	if strings.TrimSpace(dto.Title) == "" || strings.TrimSpace(dto.Content) == "" {
		writeErr(w, http.StatusBadRequest, "title and content are required")
		return
	}

	out, err := h.presentations.Submit(r.Context(), dto.Title, dto.Content)
	if err != nil {
		var fb *gamma.FallbackError
		if errors.As(err, &fb) {
			writeJSON(w, http.StatusBadGateway, fallbackErrorResp{
				Error:       "All endpoints failed",
				LastAttempt: fb.LastAttempt,
				Hint:        fb.Hint,
			})
			return
		}
		writeErr(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// GetPresentation godoc
// @Summary Get presentation details from the content API
// @Tags content
// @Produce json
// @Param id path string true "provider presentation id"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} apiError
// @Failure 502 {object} apiError
// @Router /api/presentations/{id} [get]
func (h *Handler) GetPresentation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	out, err := h.presentations.GetPresentation(r.Context(), id)
	if err != nil {
		var se *gamma.StatusError
		if errors.As(err, &se) && se.StatusCode == http.StatusNotFound {
			writeErr(w, http.StatusNotFound, "presentation not found")
			return
		}
		writeErr(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, out)
}
