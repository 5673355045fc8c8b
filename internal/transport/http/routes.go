package httptransport

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	httpSwagger "github.com/swaggo/http-swagger"
)

type RouteOptions struct {
	CORSOrigins []string
	Logger      zerolog.Logger
}

func Routes(h *Handler, opts RouteOptions) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(RequestLogger(opts.Logger))
	r.Use(CORS(opts.CORSOrigins))

	r.Get("/", h.Root)
	r.Get("/app", h.App)
	r.Get("/preview", h.Preview)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.Health)
		r.Post("/generate-presentation", h.GeneratePresentation)
		r.Post("/generate-presentation-async", h.GeneratePresentationAsync)
		r.Get("/presentation-status/{job_id}", h.PresentationStatus)
		r.Get("/downloads/{file_name}", h.Download)

		r.Post("/presentations", h.CreatePresentation)
		r.Get("/presentations/{id}", h.GetPresentation)
	})

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))

	return r
}
