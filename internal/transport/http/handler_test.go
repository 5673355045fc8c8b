package httptransport_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"presentation-service/internal/entity"
	"presentation-service/internal/provider/gamma"
	"presentation-service/internal/repository/memory"
	"presentation-service/internal/service"
	"presentation-service/internal/storage"
	httptransport "presentation-service/internal/transport/http"
	"presentation-service/internal/worker"
)

// ---- fakes ----

// fakeGamma serves the generations API under /v0.2, the content API under
// /legacy and export downloads under /export.
type fakeGamma struct {
	mu sync.Mutex

	submitStatus    int
	pollsBeforeDone int
	polls           int
	gate            chan struct{}

	srv *httptest.Server
}

func newFakeGamma(t *testing.T) *fakeGamma {
	t.Helper()
	f := &fakeGamma{submitStatus: http.StatusOK, pollsBeforeDone: 2}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v0.2/generations", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		status := f.submitStatus
		f.mu.Unlock()
		if status >= 400 {
			http.Error(w, `{"message":"internal error"}`, status)
			return
		}
		_, _ = w.Write([]byte(`{"generationId":"abc123"}`))
	})
	mux.HandleFunc("GET /v0.2/generations/{id}", func(w http.ResponseWriter, r *http.Request) {
		if f.gate != nil {
			<-f.gate
		}
		f.mu.Lock()
		f.polls++
		done := f.polls >= f.pollsBeforeDone
		f.mu.Unlock()
		if !done {
			_, _ = w.Write([]byte(`{"status":"pending"}`))
			return
		}
		id := r.PathValue("id")
		_ = json.NewEncoder(w).Encode(map[string]string{
			"status":    "completed",
			"exportUrl": f.srv.URL + "/export/" + id + ".pdf",
			"gammaUrl":  "https://gamma.app/docs/" + id,
		})
	})
	mux.HandleFunc("GET /export/{name}", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("%PDF-1.4 " + r.PathValue("name")))
	})
	mux.HandleFunc("POST /legacy/content", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	})
	mux.HandleFunc("POST /legacy/documents", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":"doc-1","title":"Pizza"}`))
	})
	mux.HandleFunc("GET /legacy/documents/{id}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") != "doc-1" {
			http.Error(w, "missing", http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(`{"id":"doc-1","title":"Pizza"}`))
	})

	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

type testAPI struct {
	router http.Handler
	store  *storage.FileStore
	reg    *memory.JobRegistry
}

func newTestAPI(t *testing.T, f *fakeGamma) *testAPI {
	t.Helper()
	nop := zerolog.Nop()

	client, err := gamma.NewClient(gamma.Options{
		APIKey:         "test-key",
		BaseURL:        f.srv.URL + "/v0.2",
		LegacyBaseURL:  f.srv.URL + "/legacy",
		CandidatePaths: []string{"/content", "/documents"},
	})
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	store, err := storage.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("store: %v", err)
	}

	gen := service.NewGenerator(client, store, service.GeneratorConfig{PollAttempts: 15}, nop)
	reg := memory.NewJobRegistry()

	pool := worker.NewPool(2, 4, nop)
	pool.Start(context.Background())
	t.Cleanup(pool.Stop)

	jobs := service.NewJobService(reg, worker.NewDispatcher(pool, worker.NewProcessor(reg, gen, nop)), nop)
	h := httptransport.NewHandler(gen, jobs, store, client, nop)

	return &testAPI{
		router: httptransport.Routes(h, httptransport.RouteOptions{CORSOrigins: []string{"*"}, Logger: nop}),
		store:  store,
		reg:    reg,
	}
}

func (a *testAPI) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	a.router.ServeHTTP(rr, req)
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rr.Body.Bytes(), v); err != nil {
		t.Fatalf("invalid json: %v, body=%s", err, rr.Body.String())
	}
}

const pizzaBody = `{"input_text":"Top 5 Pizza Places in NYC","export_as":"pdf","num_cards":5}`

type statusBody struct {
	JobID       string  `json:"job_id"`
	Status      string  `json:"status"`
	Progress    int     `json:"progress"`
	DownloadURL *string `json:"download_url"`
	Error       *string `json:"error"`
	CreatedAt   string  `json:"created_at"`
	UpdatedAt   string  `json:"updated_at"`
}

// ---- tests ----

func TestHTTP_GenerateSync_Completed(t *testing.T) {
	api := newTestAPI(t, newFakeGamma(t))

	rr := api.do(t, http.MethodPost, "/api/generate-presentation", pizzaBody)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d, body=%s", rr.Code, rr.Body.String())
	}

	var resp struct {
		Success bool `json:"success"`
		Data    struct {
			GenerationID string `json:"generation_id"`
			FileName     string `json:"file_name"`
			DownloadURL  string `json:"download_url"`
			GammaURL     string `json:"gamma_url"`
			Status       string `json:"status"`
			CreatedAt    string `json:"created_at"`
		} `json:"data"`
		Error string `json:"error"`
	}
	decode(t, rr, &resp)

	if !resp.Success || resp.Error != "" {
		t.Fatalf("expected success, got %+v", resp)
	}
	if resp.Data.FileName != "abc123.pdf" || resp.Data.DownloadURL != "/api/downloads/abc123.pdf" {
		t.Fatalf("unexpected locators %+v", resp.Data)
	}
	if resp.Data.GenerationID != "abc123" || resp.Data.Status != "completed" || resp.Data.GammaURL != "https://gamma.app/docs/abc123" {
		t.Fatalf("unexpected data %+v", resp.Data)
	}
	if _, err := time.Parse(time.RFC3339, resp.Data.CreatedAt); err != nil {
		t.Fatalf("created_at not RFC3339: %q", resp.Data.CreatedAt)
	}

	// the artifact is now downloadable
	dl := api.do(t, http.MethodGet, resp.Data.DownloadURL, "")
	if dl.Code != http.StatusOK {
		t.Fatalf("expected 200 on download, got %d", dl.Code)
	}
	if ct := dl.Header().Get("Content-Type"); ct != "application/pdf" {
		t.Fatalf("expected application/pdf, got %q", ct)
	}
	if cd := dl.Header().Get("Content-Disposition"); cd != "attachment; filename=abc123.pdf" {
		t.Fatalf("unexpected Content-Disposition %q", cd)
	}
	if !strings.HasPrefix(dl.Body.String(), "%PDF-1.4") {
		t.Fatalf("unexpected body %q", dl.Body.String())
	}
}

func TestHTTP_GenerateSync_ProviderError(t *testing.T) {
	f := newFakeGamma(t)
	f.submitStatus = http.StatusInternalServerError
	api := newTestAPI(t, f)

	rr := api.do(t, http.MethodPost, "/api/generate-presentation", pizzaBody)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 with success=false, got %d, body=%s", rr.Code, rr.Body.String())
	}

	var resp struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
		Error   string          `json:"error"`
	}
	decode(t, rr, &resp)
	if resp.Success || resp.Error == "" || resp.Data != nil {
		t.Fatalf("expected failure with error only, got %s", rr.Body.String())
	}

	entries, err := os.ReadDir(api.store.BasePath())
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("no file may be written on failure, found %d", len(entries))
	}
	f.mu.Lock()
	polls := f.polls
	f.mu.Unlock()
	if polls != 0 {
		t.Fatalf("status must not be polled after submit failure, got %d", polls)
	}
}

type stubGenerator struct {
	res entity.GenerationResult
}

func (s stubGenerator) Generate(context.Context, entity.GenerationRequest, func(int)) entity.GenerationResult {
	return s.res
}

func TestHTTP_GenerateSync_InternalFailureIsGeneric(t *testing.T) {
	nop := zerolog.Nop()
	gen := stubGenerator{res: entity.Failed(entity.ReasonInternal, "failed to save artifact: storage: write /var/data/abc123.pdf: no space left on device")}
	h := httptransport.NewHandler(gen, nil, nil, nil, nop)
	router := httptransport.Routes(h, httptransport.RouteOptions{Logger: nop})

	req := httptest.NewRequest(http.MethodPost, "/api/generate-presentation", bytes.NewBufferString(pizzaBody))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rr.Code)
	}
	var e struct {
		Message string `json:"message"`
	}
	decode(t, rr, &e)
	if e.Message != "internal server error" {
		t.Fatalf("expected generic message, got %q", e.Message)
	}
}

func TestHTTP_GenerateAsync_Lifecycle(t *testing.T) {
	f := newFakeGamma(t)
	f.gate = make(chan struct{})
	api := newTestAPI(t, f)
	released := false
	defer func() {
		if !released {
			close(f.gate)
		}
	}()

	rr := api.do(t, http.MethodPost, "/api/generate-presentation-async", pizzaBody)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d, body=%s", rr.Code, rr.Body.String())
	}
	var started struct {
		Success   bool   `json:"success"`
		JobID     string `json:"job_id"`
		Status    string `json:"status"`
		StatusURL string `json:"status_url"`
	}
	decode(t, rr, &started)
	if !started.Success || started.Status != "processing" {
		t.Fatalf("unexpected start response %+v", started)
	}
	if started.StatusURL != "/api/presentation-status/"+started.JobID {
		t.Fatalf("unexpected status_url %q", started.StatusURL)
	}

	var st statusBody
	decode(t, api.do(t, http.MethodGet, started.StatusURL, ""), &st)
	if st.Status != "processing" || (st.Progress != 0 && st.Progress != 10) {
		t.Fatalf("expected processing with progress 0 or 10, got %s/%d", st.Status, st.Progress)
	}
	if st.DownloadURL != nil || st.Error != nil {
		t.Fatalf("processing job must not carry locators or errors: %+v", st)
	}

	close(f.gate)
	released = true

	deadline := time.Now().Add(5 * time.Second)
	for st.Status == "processing" {
		if time.Now().After(deadline) {
			t.Fatalf("job did not finish in time, last=%+v", st)
		}
		time.Sleep(10 * time.Millisecond)
		decode(t, api.do(t, http.MethodGet, started.StatusURL, ""), &st)
	}

	if st.Status != "completed" || st.Progress != 100 {
		t.Fatalf("expected completed/100, got %s/%d", st.Status, st.Progress)
	}
	if st.DownloadURL == nil || *st.DownloadURL != "/api/downloads/abc123.pdf" {
		t.Fatalf("expected download url, got %v", st.DownloadURL)
	}

	// terminal status is stable across repeated checks
	for i := 0; i < 3; i++ {
		var again statusBody
		decode(t, api.do(t, http.MethodGet, started.StatusURL, ""), &again)
		if again.Status != st.Status || again.Progress != st.Progress || *again.DownloadURL != *st.DownloadURL {
			t.Fatalf("terminal status changed: %+v vs %+v", again, st)
		}
	}
}

func TestHTTP_GenerateAsync_Busy(t *testing.T) {
	f := newFakeGamma(t)
	nop := zerolog.Nop()

	client, _ := gamma.NewClient(gamma.Options{APIKey: "k", BaseURL: f.srv.URL + "/v0.2"})
	store, _ := storage.NewFileStore(t.TempDir())
	gen := service.NewGenerator(client, store, service.GeneratorConfig{PollAttempts: 1}, nop)
	reg := memory.NewJobRegistry()

	// never started and unbuffered: every submit is rejected
	pool := worker.NewPool(1, 0, nop)
	jobs := service.NewJobService(reg, worker.NewDispatcher(pool, worker.NewProcessor(reg, gen, nop)), nop)
	router := httptransport.Routes(httptransport.NewHandler(gen, jobs, store, client, nop), httptransport.RouteOptions{Logger: nop})

	req := httptest.NewRequest(http.MethodPost, "/api/generate-presentation-async", bytes.NewBufferString(pizzaBody))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d, body=%s", rr.Code, rr.Body.String())
	}
	if reg.Len() != 1 {
		t.Fatalf("expected the rejected job to be recorded, got %d", reg.Len())
	}
}

func TestHTTP_Status_NotFound(t *testing.T) {
	api := newTestAPI(t, newFakeGamma(t))

	for _, id := range []string{uuid.NewString(), "not-a-uuid"} {
		rr := api.do(t, http.MethodGet, "/api/presentation-status/"+id, "")
		if rr.Code != http.StatusNotFound {
			t.Fatalf("expected 404 for %q, got %d, body=%s", id, rr.Code, rr.Body.String())
		}
		var e struct {
			Message string `json:"message"`
		}
		decode(t, rr, &e)
		if e.Message != "job not found" {
			t.Fatalf("expected 'job not found', got %q", e.Message)
		}
	}
}

func TestHTTP_Validation(t *testing.T) {
	api := newTestAPI(t, newFakeGamma(t))

	tests := []struct {
		name string
		body string
		code int
	}{
		{"malformed json", `{"input_text":`, http.StatusBadRequest},
		{"short input", `{"input_text":"too short"}`, http.StatusUnprocessableEntity},
		{"bad format", `{"input_text":"Top 5 Pizza Places in NYC","export_as":"docx"}`, http.StatusUnprocessableEntity},
		{"empty format", `{"input_text":"Top 5 Pizza Places in NYC","export_as":""}`, http.StatusUnprocessableEntity},
		{"oversized body", `{"input_text":"` + strings.Repeat("a", 1<<20) + `"}`, http.StatusRequestEntityTooLarge},
		{"zero cards", `{"input_text":"Top 5 Pizza Places in NYC","num_cards":0}`, http.StatusUnprocessableEntity},
		{"too many cards", `{"input_text":"Top 5 Pizza Places in NYC","num_cards":11}`, http.StatusUnprocessableEntity},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			for _, path := range []string{"/api/generate-presentation", "/api/generate-presentation-async"} {
				rr := api.do(t, http.MethodPost, path, tc.body)
				if rr.Code != tc.code {
					t.Fatalf("%s: expected %d, got %d, body=%s", path, tc.code, rr.Code, rr.Body.String())
				}
			}
		})
	}
	if api.reg.Len() != 0 {
		t.Fatalf("invalid requests must not register jobs, got %d", api.reg.Len())
	}
}

type countingFiles struct {
	inner *storage.FileStore
	opens int
}

func (c *countingFiles) Open(name string) (*os.File, os.FileInfo, error) {
	c.opens++
	return c.inner.Open(name)
}

func TestHTTP_Download_ValidatesBeforeStorage(t *testing.T) {
	dir := t.TempDir()
	store, _ := storage.NewFileStore(dir)
	if err := os.WriteFile(filepath.Join(dir, "deck_1.pptx"), []byte("PK"), 0o644); err != nil {
		t.Fatalf("seed: %v", err)
	}
	files := &countingFiles{inner: store}
	nop := zerolog.Nop()
	router := httptransport.Routes(httptransport.NewHandler(nil, nil, files, nil, nop), httptransport.RouteOptions{Logger: nop})

	get := func(path string) *httptest.ResponseRecorder {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
		return rr
	}

	for _, path := range []string{
		"/api/downloads/report.docx",
		"/api/downloads/report",
		"/api/downloads/..%2F..%2Fetc%2Fpasswd.pdf",
		"/api/downloads/.pdf",
	} {
		if rr := get(path); rr.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", path, rr.Code)
		}
	}
	if files.opens != 0 {
		t.Fatalf("storage touched %d times for invalid names", files.opens)
	}

	if rr := get("/api/downloads/report.pdf"); rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for missing file, got %d", rr.Code)
	}

	rr := get("/api/downloads/deck_1.pptx")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/vnd.openxmlformats-officedocument.presentationml.presentation" {
		t.Fatalf("unexpected content type %q", ct)
	}
	if rr.Body.String() != "PK" {
		t.Fatalf("unexpected body %q", rr.Body.String())
	}
}

func TestHTTP_HealthAndRoot(t *testing.T) {
	api := newTestAPI(t, newFakeGamma(t))

	rr := api.do(t, http.MethodGet, "/api/health", "")
	var h struct {
		Status    string `json:"status"`
		Message   string `json:"message"`
		Timestamp string `json:"timestamp"`
	}
	decode(t, rr, &h)
	if rr.Code != http.StatusOK || h.Status != "healthy" || h.Message != "Presentation API is running" || h.Timestamp == "" {
		t.Fatalf("unexpected health response %d %+v", rr.Code, h)
	}

	rr = api.do(t, http.MethodGet, "/", "")
	var root struct {
		Name      string            `json:"name"`
		Endpoints map[string]string `json:"endpoints"`
	}
	decode(t, rr, &root)
	if root.Endpoints["check_status"] != "/api/presentation-status/{job_id}" {
		t.Fatalf("unexpected root response %s", rr.Body.String())
	}
}

func TestHTTP_Presentations(t *testing.T) {
	api := newTestAPI(t, newFakeGamma(t))

	rr := api.do(t, http.MethodPost, "/api/presentations", `{"title":"Pizza","content":"Top 5 Pizza Places"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 via fallback candidate, got %d, body=%s", rr.Code, rr.Body.String())
	}
	var doc map[string]any
	decode(t, rr, &doc)
	if doc["id"] != "doc-1" {
		t.Fatalf("unexpected submit response %v", doc)
	}

	if rr := api.do(t, http.MethodPost, "/api/presentations", `{"title":""}`); rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty title, got %d", rr.Code)
	}

	if rr := api.do(t, http.MethodGet, "/api/presentations/doc-1", ""); rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if rr := api.do(t, http.MethodGet, "/api/presentations/nope", ""); rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

func TestHTTP_PagesAndCORS(t *testing.T) {
	api := newTestAPI(t, newFakeGamma(t))

	rr := api.do(t, http.MethodGet, "/app", "")
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "/api/generate-presentation-async") {
		t.Fatalf("unexpected app page %d", rr.Code)
	}

	rr = api.do(t, http.MethodGet, "/preview?links=https://gamma.app/docs/ai-trends-2025%0Ajavascript:alert(1)", "")
	body := rr.Body.String()
	if rr.Code != http.StatusOK || !strings.Contains(body, `src="https://gamma.app/docs/ai-trends-2025"`) {
		t.Fatalf("expected iframe for the gamma link, got %d %s", rr.Code, body)
	}
	if strings.Contains(body, "javascript:alert") && !strings.Contains(body, "Ignored 1 link") {
		t.Fatalf("unsafe link must be rejected")
	}

	req := httptest.NewRequest(http.MethodOptions, "/api/generate-presentation", nil)
	req.Header.Set("Origin", "https://example.com")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rr = httptest.NewRecorder()
	api.router.ServeHTTP(rr, req)
	if rr.Code != http.StatusNoContent || rr.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatalf("unexpected preflight response %d %v", rr.Code, rr.Header())
	}
}
