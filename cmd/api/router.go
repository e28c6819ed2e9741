package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	httpSwagger "github.com/swaggo/http-swagger/v2"
	"go.uber.org/zap"

	"github.com/elimage/service/internal/account"
	"github.com/elimage/service/internal/canonical"
	"github.com/elimage/service/internal/delivery"
	"github.com/elimage/service/internal/metrics"
	appMiddleware "github.com/elimage/service/internal/middleware"
	"github.com/elimage/service/internal/upload"
)

// routes holds the handlers served by the public router.
type routes struct {
	basePath    string
	adminSecret string

	uploads   *upload.Handler
	objects   *delivery.Server
	redirects *canonical.Handler

	// accounts is nil when accounting is disabled.
	accounts *account.Handler
}

func newRouter(rt routes, log *zap.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(appMiddleware.Logger(log))
	r.Use(chiMiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "HEAD", "POST", "PUT", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "Range", "X-Request-ID"},
		ExposedHeaders: []string{"Content-Length", "Content-Range"},
		MaxAge:         300,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Handle("/metrics", metrics.Handler())

	// Swagger UI at /swagger/
	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))

	public := func(r chi.Router) {
		r.Get("/", rt.uploads.Index)
		r.Post("/", rt.uploads.Upload)
		r.Get(upload.ToolPath, rt.uploads.Tool)

		if rt.accounts != nil {
			r.Route("/admin", func(r chi.Router) {
				r.Use(appMiddleware.RequireAdmin(rt.adminSecret))
				r.Get("/callers", rt.accounts.Lookup)
				r.Get("/callers/{id}", rt.accounts.Get)
				r.Post("/callers/{id}/block", rt.accounts.Block)
				r.Post("/callers/{id}/unblock", rt.accounts.Unblock)
				r.Get("/callers/{id}/images", rt.accounts.Images)
			})
		}

		rt.objects.Mount(r)

		// PUT /* claims every path; GET and HEAD need their own catch-all
		// or chi answers 405 instead of reaching the resolver.
		r.Put("/*", rt.uploads.Put)
		r.Get("/*", rt.redirects.ServeHTTP)
		r.Head("/*", rt.redirects.ServeHTTP)
		r.NotFound(rt.redirects.ServeHTTP)
	}
	if rt.basePath != "" {
		r.Route(rt.basePath, public)
	} else {
		public(r)
	}
	return r
}
