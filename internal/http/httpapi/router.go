package httpapi

import (
	stdhttp "net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"tourcast/internal/http/handlers"
	"tourcast/internal/infra"
	"tourcast/internal/middleware"
)

// Options tunes the router's middleware stack.
type Options struct {
	Logger          infra.Logger
	JWTSecret       string
	RateLimitPerMin int
	DefaultLocale   string
	CountryLookup   middleware.CountryLookup
	AllowedOrigins  []string
}

func NewRouter(app *handlers.App, opts Options) stdhttp.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, chimw.RealIP, chimw.Recoverer)
	r.Use(middleware.Logger(opts.Logger))
	if len(opts.AllowedOrigins) > 0 {
		r.Use(middleware.CORS(opts.AllowedOrigins))
	}
	r.Use(middleware.I18N(opts.DefaultLocale, opts.CountryLookup))
	if opts.RateLimitPerMin > 0 {
		r.Use(middleware.RateLimit(opts.RateLimitPerMin, time.Minute))
	}

	r.Get("/v1/healthz", app.Health)

	r.Route("/v1/tours", func(r chi.Router) {
		if opts.JWTSecret != "" {
			r.Use(middleware.AuthJWT(opts.JWTSecret))
		}
		r.Post("/", app.SubmitTour)
		r.Get("/{id}", app.TourStatus)
		r.Get("/{id}/artifact", app.TourArtifact)
		r.Get("/{id}/audio", app.TourAudio)
		r.Post("/{id}/cancel", app.CancelTour)
	})

	r.Route("/v1/usage", func(r chi.Router) {
		if opts.JWTSecret != "" {
			r.Use(middleware.AuthJWT(opts.JWTSecret))
		}
		r.Get("/summary", app.UsageSummary)
	})

	return r
}
