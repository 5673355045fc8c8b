// Package gamma talks to the Gamma presentation API. It maps requests and
// responses only; polling and persistence live in the service layer.
package gamma

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"presentation-service/internal/entity"
	"presentation-service/internal/metrics"
)

// ErrMissingAPIKey indicates that the client was configured without credentials.
var ErrMissingAPIKey = errors.New("gamma: api key is required")

// ErrMissingGenerationID is returned when the provider accepted a generation
// but did not hand back an identifier.
var ErrMissingGenerationID = errors.New("missing generationId in response")

const defaultHint = "Try verifying which endpoint your Gamma key supports. " +
	"Most users should use POST https://gamma.app/api/content."

// maxErrorBody bounds how much of a failed response is kept in error text.
const maxErrorBody = 2048

// Options configures the Gamma client.
type Options struct {
	APIKey         string
	BaseURL        string   // generations API, e.g. https://public-api.gamma.app/v0.2
	LegacyBaseURL  string   // content API used by Submit / GetPresentation
	CandidatePaths []string // tried in order by Submit
	HTTPClient     *http.Client
	Timeout        time.Duration
	Logger         *zerolog.Logger
}

type Client struct {
	apiKey     string
	baseURL    string
	legacyURL  string
	candidates []string
	httpClient *http.Client
	log        zerolog.Logger
}

// StatusError is a non-2xx answer from the provider.
type StatusError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%d - %s", e.StatusCode, e.Body)
}

// Temporary reports that the provider answered, so a later poll may succeed.
func (e *StatusError) Temporary() bool { return true }

// FallbackError is returned by Submit when every candidate path failed.
type FallbackError struct {
	LastAttempt string
	Hint        string
}

func (e *FallbackError) Error() string {
	return "All endpoints failed: " + e.LastAttempt
}

func NewClient(opts Options) (*Client, error) {
	apiKey := strings.TrimSpace(opts.APIKey)
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 60 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://public-api.gamma.app/v0.2"
	}
	legacyURL := strings.TrimRight(opts.LegacyBaseURL, "/")
	if legacyURL == "" {
		legacyURL = "https://gamma.app/api"
	}
	candidates := opts.CandidatePaths
	if len(candidates) == 0 {
		candidates = []string{"/content", "/documents", "/create"}
	}
	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	return &Client{
		apiKey:     apiKey,
		baseURL:    baseURL,
		legacyURL:  legacyURL,
		candidates: append([]string(nil), candidates...),
		httpClient: httpClient,
		log:        logger.With().Str("component", "gamma").Logger(),
	}, nil
}

// Submit creates a presentation through the content API. The accepted path
// has moved between provider releases, so each configured candidate is
// tried in order and the first non-error response wins.
func (c *Client) Submit(ctx context.Context, title, content string) (map[string]any, error) {
	payload, err := json.Marshal(map[string]string{"title": title, "content": content})
	if err != nil {
		return nil, fmt.Errorf("gamma: encode request: %w", err)
	}

	var lastErr string
	for _, path := range c.candidates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		endpoint := c.legacyURL + path
		raw, status, err := c.do(ctx, "submit", http.MethodPost, endpoint, payload, c.bearer)
		if err != nil {
			lastErr = err.Error()
			c.log.Debug().Str("candidate", path).Err(err).Msg("submit candidate failed")
			continue
		}
		if status >= 400 {
			lastErr = fmt.Sprintf("%d - %s", status, truncate(raw))
			c.log.Debug().Str("candidate", path).Int("status", status).Msg("submit candidate rejected")
			continue
		}

		out := map[string]any{}
		if len(bytes.TrimSpace(raw)) > 0 {
			if err := json.Unmarshal(raw, &out); err != nil {
				return nil, fmt.Errorf("gamma: decode response: %w", err)
			}
		}
		c.log.Info().Str("candidate", path).Int("status", status).Msg("submit candidate accepted")
		return out, nil
	}

	return nil, &FallbackError{LastAttempt: lastErr, Hint: defaultHint}
}

// GetPresentation fetches a presentation's details from the content API.
func (c *Client) GetPresentation(ctx context.Context, id string) (map[string]any, error) {
	endpoint := c.legacyURL + "/documents/" + url.PathEscape(id)
	raw, status, err := c.do(ctx, "get_presentation", http.MethodGet, endpoint, nil, c.bearer)
	if err != nil {
		return nil, err
	}
	if status >= 400 {
		return nil, &StatusError{Op: "get_presentation", StatusCode: status, Body: truncate(raw)}
	}
	out := map[string]any{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("gamma: decode response: %w", err)
	}
	return out, nil
}

type generationRequest struct {
	InputText string `json:"inputText"`
	TextMode  string `json:"textMode"`
	Format    string `json:"format"`
	ExportAs  string `json:"exportAs"`
	NumCards  int    `json:"numCards"`
}

type generationResponse struct {
	GenerationID string `json:"generationId"`
}

type statusResponse struct {
	Status    string `json:"status"`
	ExportURL string `json:"exportUrl"`
	GammaURL  string `json:"gammaUrl"`
}

// SubmitGeneration starts a generation and returns the provider's id.
func (c *Client) SubmitGeneration(ctx context.Context, req entity.GenerationRequest) (string, error) {
	payload, err := json.Marshal(generationRequest{
		InputText: req.InputText,
		TextMode:  "generate",
		Format:    "presentation",
		ExportAs:  string(req.ExportAs),
		NumCards:  req.NumCards,
	})
	if err != nil {
		return "", fmt.Errorf("gamma: encode request: %w", err)
	}

	raw, status, err := c.do(ctx, "submit_generation", http.MethodPost, c.baseURL+"/generations", payload, c.apiKeyHeader)
	if err != nil {
		return "", err
	}
	if status >= 400 {
		return "", &StatusError{Op: "submit_generation", StatusCode: status, Body: truncate(raw)}
	}

	var decoded generationResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return "", fmt.Errorf("gamma: decode response: %w", err)
	}
	if strings.TrimSpace(decoded.GenerationID) == "" {
		return "", ErrMissingGenerationID
	}
	return decoded.GenerationID, nil
}

// PollStatus fetches a single status snapshot of a generation.
func (c *Client) PollStatus(ctx context.Context, generationID string) (entity.ProviderStatus, error) {
	endpoint := c.baseURL + "/generations/" + url.PathEscape(generationID)
	raw, status, err := c.do(ctx, "poll_status", http.MethodGet, endpoint, nil, c.apiKeyHeader)
	if err != nil {
		return entity.ProviderStatus{}, err
	}
	if status >= 400 {
		return entity.ProviderStatus{}, &StatusError{Op: "poll_status", StatusCode: status, Body: truncate(raw)}
	}

	var decoded statusResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return entity.ProviderStatus{}, fmt.Errorf("gamma: decode status: %w", err)
	}
	providerURL := decoded.GammaURL
	if providerURL == "" {
		providerURL = decoded.ExportURL
	}
	return entity.ProviderStatus{
		Status:      decoded.Status,
		ExportURL:   decoded.ExportURL,
		ProviderURL: providerURL,
	}, nil
}

// FetchArtifact downloads an export. Export URLs are pre-signed, so no
// credentials are attached.
func (c *Client) FetchArtifact(ctx context.Context, exportURL string) ([]byte, error) {
	if strings.TrimSpace(exportURL) == "" {
		return nil, errors.New("gamma: empty export url")
	}
	raw, status, err := c.do(ctx, "fetch_artifact", http.MethodGet, exportURL, nil, nil)
	if err != nil {
		return nil, err
	}
	if status >= 400 {
		return nil, &StatusError{Op: "fetch_artifact", StatusCode: status, Body: truncate(raw)}
	}
	return raw, nil
}

func (c *Client) apiKeyHeader(h http.Header) {
	h.Set("X-API-KEY", c.apiKey)
}

func (c *Client) bearer(h http.Header) {
	h.Set("Authorization", "Bearer "+c.apiKey)
	h.Set("Accept", "application/json")
}

func (c *Client) do(ctx context.Context, op, method, endpoint string, body []byte, auth func(http.Header)) (_ []byte, status int, err error) {
	start := time.Now()
	defer func() {
		outcome := "ok"
		switch {
		case err != nil:
			outcome = "error"
		case status >= 400:
			outcome = "http_" + strconv.Itoa(status)
		}
		metrics.ObserveProviderCall(op, outcome, start)
	}()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, 0, fmt.Errorf("gamma: build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if auth != nil {
		auth(req.Header)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("gamma: %s request: %w", op, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("gamma: read response: %w", err)
	}
	c.log.Trace().Str("op", op).Int("status", resp.StatusCode).Dur("duration", time.Since(start)).Msg("provider call")
	return raw, resp.StatusCode, nil
}

func truncate(raw []byte) string {
	s := strings.TrimSpace(string(raw))
	if len(s) > maxErrorBody {
		return s[:maxErrorBody] + "..."
	}
	return s
}
