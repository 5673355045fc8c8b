package httptransport

import (
	"encoding/json"
	"net/http"
	"time"

	"presentation-service/internal/entity"
)

type apiError struct {
	Message string `json:"message"`
}

type generateDTO struct {
	InputText string  `json:"input_text" example:"Top 5 Pizza Places in NYC with ratings and specialties"`
	ExportAs  *string `json:"export_as,omitempty" example:"pdf" enums:"pdf,pptx"`
	NumCards  *int    `json:"num_cards,omitempty" example:"5" minimum:"1" maximum:"10"`
}

type presentationData struct {
	GenerationID string `json:"generation_id"`
	FileName     string `json:"file_name"`
	DownloadURL  string `json:"download_url"`
	GammaURL     string `json:"gamma_url,omitempty"`
	Status       string `json:"status"`
	CreatedAt    string `json:"created_at"`
}

// generateResp carries either data or error, never both.
type generateResp struct {
	Success bool              `json:"success"`
	Data    *presentationData `json:"data,omitempty"`
	Error   string            `json:"error,omitempty"`
}

type asyncJobResp struct {
	Success   bool   `json:"success"`
	JobID     string `json:"job_id"`
	Status    string `json:"status"`
	StatusURL string `json:"status_url"`
}

type jobStatusResp struct {
	JobID       string  `json:"job_id"`
	Status      string  `json:"status"`
	Progress    int     `json:"progress"`
	DownloadURL *string `json:"download_url"`
	Error       *string `json:"error"`
	CreatedAt   string  `json:"created_at"`
	UpdatedAt   string  `json:"updated_at"`
}

type healthResp struct {
	Status    string `json:"status"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

type submitDTO struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

type fallbackErrorResp struct {
	Error       string `json:"error"`
	LastAttempt string `json:"last_attempt"`
	Hint        string `json:"hint"`
}

func newJobStatusResp(j *entity.Job) jobStatusResp {
	resp := jobStatusResp{
		JobID:     j.ID.String(),
		Status:    string(j.Status),
		Progress:  j.Progress,
		CreatedAt: j.CreatedAt.Format(time.RFC3339),
		UpdatedAt: j.UpdatedAt.Format(time.RFC3339),
	}
	switch j.Status {
	case entity.StatusCompleted:
		if j.DownloadURL != "" {
			u := j.DownloadURL
			resp.DownloadURL = &u
		}
	case entity.StatusFailed:
		resp.Error = j.Error
	}
	return resp
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, apiError{Message: msg})
}
