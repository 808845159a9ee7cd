package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/tendant/chi-demo/middleware"

	"github.com/tendant/simple-intake/pkg/intake"
)

// RouterConfig wires the HTTP surface
type RouterConfig struct {
	Pipeline *intake.Pipeline
	Forms    intake.Forms
	// Store enables the records API when set
	Store intake.Store
	// Admin enables the admin panel when set
	Admin *AdminHandler
	Pages *Pages
	// APIKeySHA256 protects the records API; empty leaves it disabled
	APIKeySHA256 string
	// UploadDir is served under /uploads/ when set
	UploadDir      string
	MaxUploadBytes int64
	// RateLimit is the number of form posts per minute per client; zero disables it
	RateLimit   int
	Development bool
	// Ready reports whether dependencies are reachable for /healthz/ready
	Ready  func(ctx context.Context) error
	Logger *slog.Logger
}

// NewRouter builds the application router
func NewRouter(config RouterConfig) (http.Handler, error) {
	if config.Pipeline == nil {
		return nil, errors.New("router requires a pipeline")
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.Forms == nil {
		config.Forms = intake.DefaultForms()
	}
	pages := config.Pages
	if pages == nil {
		var err error
		if pages, err = NewPages(config.Forms, config.Logger); err != nil {
			return nil, err
		}
	}

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(LoggingMiddleware(config.Logger))
	r.Use(chimiddleware.Recoverer)
	if config.Development {
		r.Use(CORSMiddleware(nil, nil, nil))
	}

	RoutesHealthz(r)
	RoutesHealthzReady(r, config.Ready)

	r.Get("/", pages.Index)
	r.Get(ThankYouPath, pages.ThankYou)

	forms := NewFormsHandler(config.Pipeline, config.Forms, pages, config.Logger)
	r.Group(func(r chi.Router) {
		if config.MaxUploadBytes > 0 {
			r.Use(RequestSizeLimitMiddleware(config.MaxUploadBytes))
		}
		if config.RateLimit > 0 {
			limiter := NewRateLimiter(config.RateLimit)
			// Only posts are limited; rendering a form is free
			r.Use(func(next http.Handler) http.Handler {
				limited := limiter.Middleware(next)
				return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					if r.Method == http.MethodPost {
						limited.ServeHTTP(w, r)
						return
					}
					next.ServeHTTP(w, r)
				})
			})
		}
		forms.RegisterRoutes(r)
	})

	if config.Admin != nil {
		config.Admin.RegisterRoutes(r)
	}

	if config.UploadDir != "" {
		fileServer := http.StripPrefix("/uploads/", http.FileServer(http.Dir(config.UploadDir)))
		r.Get("/uploads/*", fileServer.ServeHTTP)
	}

	if config.Store != nil && config.APIKeySHA256 != "" {
		apiKeyMiddleware, err := middleware.ApiKeyMiddleware(middleware.ApiKeyConfig{
			APIKeys: map[string]string{
				"key1": config.APIKeySHA256,
			},
		})
		if err != nil {
			return nil, err
		}
		records := NewRecordsHandler(config.Store, config.Forms, config.Logger)
		r.Route("/api/v1", func(r chi.Router) {
			r.Use(apiKeyMiddleware)
			r.Mount("/", records.Routes())
		})
	}

	r.NotFound(pages.NotFound)

	return r, nil
}

// RoutesHealthz registers the liveness probe
func RoutesHealthz(r chi.Router) {
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		render.PlainText(w, r, http.StatusText(http.StatusOK))
	})
}

// RoutesHealthzReady registers the readiness probe. A nil check always reports ready.
func RoutesHealthzReady(r chi.Router, check func(ctx context.Context) error) {
	r.Get("/healthz/ready", func(w http.ResponseWriter, r *http.Request) {
		if check != nil {
			if err := check(r.Context()); err != nil {
				render.Status(r, http.StatusServiceUnavailable)
				render.PlainText(w, r, http.StatusText(http.StatusServiceUnavailable))
				return
			}
		}
		render.PlainText(w, r, http.StatusText(http.StatusOK))
	})
}
