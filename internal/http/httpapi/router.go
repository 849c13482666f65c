package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"server/internal/http/handlers"
	"server/internal/middleware"
)

type Options struct {
	RateLimitPerMin int
	AllowedOrigins  []string
}

func NewRouter(app *handlers.App, opts Options) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		middleware.Logger(app.Logger),
		middleware.CORS(opts.AllowedOrigins),
	)
	if opts.RateLimitPerMin > 0 {
		r.Use(middleware.RateLimit(opts.RateLimitPerMin, time.Minute))
	}

	r.Get("/v1/healthz", app.Health)

	r.Route("/v1", func(r chi.Router) {
		r.Post("/users", app.CreateUser)
		r.Get("/me", app.GetMe)

		r.Get("/catalog/templates", app.ListTemplates)
		r.Get("/catalog/styles", app.ListStyles)

		r.Post("/uploads", app.UploadProductImage)

		r.Route("/jobs", func(r chi.Router) {
			r.Post("/", app.CreateJob)
			r.Get("/{jobID}", app.GetJob)
			r.Post("/{jobID}/cancel", app.CancelJob)
			r.Get("/{jobID}/events", app.JobEvents)
		})

		r.Get("/tasks/{taskID}/image", app.GetTaskImage)

		r.Get("/credits", app.GetBalance)
		r.Get("/credits/history", app.GetCreditHistory)

		r.Route("/admin", func(r chi.Router) {
			r.Get("/providers", app.ListProviders)
			r.Post("/providers/{provider}/key", app.RotateProviderKey)
			r.Post("/providers/{provider}/invalidate", app.InvalidateProvider)
		})
	})

	return r
}
