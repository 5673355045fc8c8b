package entity

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

type ExportFormat string

const (
	FormatPDF  ExportFormat = "pdf"
	FormatPPTX ExportFormat = "pptx"
)

func (f ExportFormat) Valid() bool {
	return f == FormatPDF || f == FormatPPTX
}

// ContentType returns the MIME type served for artifacts of this format.
func (f ExportFormat) ContentType() string {
	if f == FormatPPTX {
		return "application/vnd.openxmlformats-officedocument.presentationml.presentation"
	}
	return "application/pdf"
}

const (
	MinInputLength  = 10
	MaxInputLength  = 5000
	MinCards        = 1
	MaxCards        = 10
	DefaultNumCards = 5
)

// ErrInvalidRequest wraps every validation failure of a GenerationRequest.
var ErrInvalidRequest = errors.New("invalid generation request")

// GenerationRequest is validated once at the API boundary and passed by value
// afterwards.
type GenerationRequest struct {
	InputText string
	ExportAs  ExportFormat
	NumCards  int
}

// NewGenerationRequest applies defaults (pdf, 5 cards) for absent fields and
// validates the bounds. An explicit empty export_as is rejected.
func NewGenerationRequest(inputText string, exportAs *string, numCards *int) (GenerationRequest, error) {
	req := GenerationRequest{
		InputText: inputText,
		ExportAs:  FormatPDF,
		NumCards:  DefaultNumCards,
	}
	if exportAs != nil {
		req.ExportAs = ExportFormat(*exportAs)
	}
	if numCards != nil {
		req.NumCards = *numCards
	}

	n := utf8.RuneCountInString(req.InputText)
	switch {
	case strings.TrimSpace(req.InputText) == "":
		return GenerationRequest{}, fmt.Errorf("%w: input_text is required", ErrInvalidRequest)
	case n < MinInputLength || n > MaxInputLength:
		return GenerationRequest{}, fmt.Errorf("%w: input_text must be %d-%d characters", ErrInvalidRequest, MinInputLength, MaxInputLength)
	case !req.ExportAs.Valid():
		return GenerationRequest{}, fmt.Errorf("%w: export_as must be pdf or pptx", ErrInvalidRequest)
	case req.NumCards < MinCards || req.NumCards > MaxCards:
		return GenerationRequest{}, fmt.Errorf("%w: num_cards must be between %d and %d", ErrInvalidRequest, MinCards, MaxCards)
	}
	return req, nil
}

// ArtifactFileName is the deterministic local name of a generation's output.
func ArtifactFileName(generationID string, format ExportFormat) string {
	return generationID + "." + string(format)
}

// DownloadURL is the public locator of a stored artifact.
func DownloadURL(fileName string) string {
	return "/api/downloads/" + fileName
}

// ProviderStatus is one poll snapshot reported by the generation provider.
type ProviderStatus struct {
	Status      string
	ExportURL   string
	ProviderURL string
}

const (
	ProviderStatusCompleted = "completed"
	ProviderStatusFailed    = "failed"
)

type Artifact struct {
	FileName     string
	GenerationID string
	ProviderURL  string
}

type FailureReason string

const (
	ReasonProvider         FailureReason = "provider"
	ReasonGenerationFailed FailureReason = "generation_failed"
	ReasonTimeout          FailureReason = "timeout"
	ReasonInternal         FailureReason = "internal"
)

type Failure struct {
	Reason  FailureReason
	Message string
}

func (f Failure) Error() string { return f.Message }

// GenerationResult holds exactly one of an Artifact or a Failure. Build it
// with Succeeded or Failed.
type GenerationResult struct {
	artifact *Artifact
	failure  *Failure
}

func Succeeded(a Artifact) GenerationResult {
	return GenerationResult{artifact: &a}
}

func Failed(reason FailureReason, msg string) GenerationResult {
	if msg == "" {
		msg = string(reason)
	}
	return GenerationResult{failure: &Failure{Reason: reason, Message: msg}}
}

func (r GenerationResult) OK() bool { return r.artifact != nil }

// Artifact returns the success payload; ok is false for failures.
func (r GenerationResult) Artifact() (Artifact, bool) {
	if r.artifact == nil {
		return Artifact{}, false
	}
	return *r.artifact, true
}

// Failure returns the failure payload; ok is false for successes. The zero
// GenerationResult reports an internal failure.
func (r GenerationResult) Failure() (Failure, bool) {
	if r.artifact != nil {
		return Failure{}, false
	}
	if r.failure == nil {
		return Failure{Reason: ReasonInternal, Message: "empty generation result"}, true
	}
	return *r.failure, true
}
