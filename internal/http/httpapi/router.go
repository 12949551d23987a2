package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"adgenerator/internal/http/handlers"
	"adgenerator/internal/middleware"
)

type Options struct {
	CORSOrigins []string
	StaticDir   string
	Logger      zerolog.Logger
}

func NewRouter(app *handlers.App, opts Options) http.Handler {
	r := chi.NewRouter()

	r.Use(
		chimw.RealIP,
		chimw.Recoverer,
		middleware.RequestID,
		middleware.Logger(opts.Logger),
		middleware.CORS(opts.CORSOrigins),
	)

	r.Get("/health", app.Health)

	r.Route("/api", func(r chi.Router) {
		r.Post("/process", app.Process)
		r.Post("/export-zip", app.ExportZip)
		r.Get("/progress/{taskId}", app.ProgressStream)
		r.Get("/progress/{taskId}/status", app.ProgressStatus)
		r.Get("/history", app.History)
	})

	if opts.StaticDir != "" {
		r.Handle("/*", handlers.Static(opts.StaticDir))
	}
	return r
}
