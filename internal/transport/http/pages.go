package httptransport

import (
	"bytes"
	"embed"
	"html/template"
	"net/http"
	"net/url"
	"strings"
	"time"

	"presentation-service/internal/entity"
)

//go:embed web/*.html
var webFS embed.FS

var pages = template.Must(template.New("").Funcs(template.FuncMap{
	"inc": func(i int) int { return i + 1 },
}).ParseFS(webFS, "web/*.html"))

// statusPollInterval is how often the generation form re-checks job status.
const statusPollInterval = 3 * time.Second

type appPage struct {
	Title        string
	MinInput     int
	MaxInput     int
	MinCards     int
	MaxCards     int
	DefaultCards int
	PollMillis   int64
}

type previewPage struct {
	Title     string
	Raw       string
	Links     []string
	Rejected  int
	Submitted bool
}

// App serves the generation form that drives the async API.
func (h *Handler) App(w http.ResponseWriter, r *http.Request) {
	h.render(w, "app.html", appPage{
		Title:        "Presentation Generator",
		MinInput:     entity.MinInputLength,
		MaxInput:     entity.MaxInputLength,
		MinCards:     entity.MinCards,
		MaxCards:     entity.MaxCards,
		DefaultCards: entity.DefaultNumCards,
		PollMillis:   statusPollInterval.Milliseconds(),
	})
}

// Preview embeds each link given in ?links= (newline or comma separated,
// repeatable) in an iframe.
func (h *Handler) Preview(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query()["links"]
	links, rejected := parseLinks(raw)
	h.render(w, "preview.html", previewPage{
		Title:     "Gamma Presentation Viewer",
		Raw:       strings.Join(raw, "\n"),
		Links:     links,
		Rejected:  rejected,
		Submitted: len(raw) > 0,
	})
}

func (h *Handler) render(w http.ResponseWriter, name string, data any) {
	var buf bytes.Buffer
	if err := pages.ExecuteTemplate(&buf, name, data); err != nil {
		h.log.Error().Err(err).Str("template", name).Msg("render page")
		writeErr(w, http.StatusInternalServerError, "failed to render page")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = buf.WriteTo(w)
}

func parseLinks(values []string) (links []string, rejected int) {
	for _, v := range values {
		fields := strings.FieldsFunc(v, func(r rune) bool { return r == '\n' || r == '\r' || r == ',' })
		for _, f := range fields {
			f = strings.TrimSpace(f)
			if f == "" {
				continue
			}
			u, err := url.Parse(f)
			if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
				rejected++
				continue
			}
			links = append(links, u.String())
		}
	}
	return links, rejected
}
