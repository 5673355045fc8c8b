package entity

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

type JobStatus string

const (
	StatusProcessing JobStatus = "processing"
	StatusCompleted  JobStatus = "completed"
	StatusFailed     JobStatus = "failed"
)

// ErrTerminalState is returned when a mutation targets a completed or failed
// job.
var ErrTerminalState = errors.New("job is in a terminal state")

func (s JobStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

func (s JobStatus) Valid() bool {
	switch s {
	case StatusProcessing, StatusCompleted, StatusFailed:
		return true
	default:
		return false
	}
}

// ProgressStarted is reported as soon as a worker picks the job up.
const ProgressStarted = 10

type Job struct {
	ID           uuid.UUID    `json:"id"`
	Status       JobStatus    `json:"status"`
	Progress     int          `json:"progress"`
	ExportAs     ExportFormat `json:"export_as"`
	NumCards     int          `json:"num_cards"`
	GenerationID string       `json:"generation_id,omitempty"`
	FileName     string       `json:"file_name,omitempty"`
	DownloadURL  string       `json:"download_url,omitempty"`
	ProviderURL  string       `json:"provider_url,omitempty"`
	Error        *string      `json:"error,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

// NewJob returns a freshly registered job: processing, progress 0.
func NewJob(id uuid.UUID, req GenerationRequest, now time.Time) *Job {
	now = now.UTC()
	return &Job{
		ID:        id,
		Status:    StatusProcessing,
		Progress:  0,
		ExportAs:  req.ExportAs,
		NumCards:  req.NumCards,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// ApplyMutation runs fn against a copy of cur and returns the mutated copy.
// The identifier and creation time are kept and UpdatedAt is refreshed.
// Terminal jobs are frozen: any mutation of one fails with ErrTerminalState.
func ApplyMutation(cur *Job, fn func(*Job), now time.Time) (*Job, error) {
	if cur.Status.IsTerminal() {
		return nil, ErrTerminalState
	}
	next := cur.Clone()
	fn(next)

	if !next.Status.Valid() {
		return nil, errors.New("invalid job status: " + string(next.Status))
	}
	next.Progress = clampProgress(next.Progress)
	next.ID = cur.ID
	next.CreatedAt = cur.CreatedAt
	next.UpdatedAt = now.UTC()
	return next, nil
}

// Clone returns a deep copy of j.
func (j *Job) Clone() *Job {
	c := *j
	if j.Error != nil {
		e := *j.Error
		c.Error = &e
	}
	return &c
}

// Fail marks the job failed with msg.
func (j *Job) Fail(msg string) {
	j.Status = StatusFailed
	j.Error = &msg
}

func clampProgress(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
