package app

import (
	"io/fs"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/autovisiontech/dealership/internal/auth"
	"github.com/autovisiontech/dealership/internal/cars"
	"github.com/autovisiontech/dealership/internal/comments"
	"github.com/autovisiontech/dealership/internal/observability"
	"github.com/autovisiontech/dealership/internal/rbac"
	"github.com/autovisiontech/dealership/internal/reservations"
	"github.com/autovisiontech/dealership/internal/users"
	"github.com/autovisiontech/dealership/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger  *slog.Logger
	Config  *Config
	Metrics *observability.Metrics

	// RBACMiddleware guards the operational endpoints mounted here.
	RBACMiddleware rbac.Middleware

	AuthHandler         *auth.Handler
	CarsHandler         *cars.Handler
	UsersHandler        *users.Handler
	ReservationsHandler *reservations.Handler
	CommentsHandler     *comments.Handler
	PermissionsHandler  *rbac.PermissionsHandler
	JobHandler          *jobs.Handler
}

// NewRouter constructs the chi.Router with the dealership defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	if !InTestMode() {
		r.Use(chimw.Logger)
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	if params.AuthHandler != nil {
		r.Route("/auth", params.AuthHandler.MountRoutes)
	}
	if params.CarsHandler != nil {
		r.Route("/cars", params.CarsHandler.MountRoutes)
	}
	if params.UsersHandler != nil {
		r.Route("/users", params.UsersHandler.MountRoutes)
	}
	if params.ReservationsHandler != nil {
		r.Route("/reservations", params.ReservationsHandler.MountRoutes)
	}
	if params.CommentsHandler != nil {
		r.Route("/comments", params.CommentsHandler.MountRoutes)
	}
	if params.PermissionsHandler != nil {
		r.Route("/permissions", params.PermissionsHandler.MountRoutes)
	}
	if params.JobHandler != nil {
		r.With(params.RBACMiddleware.Require(rbac.ManageUsers)).Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.Metrics != nil {
		// Scraped by Prometheus without a session; keep it off public ingress.
		r.With(params.RBACMiddleware.Public()).Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	if params.Config != nil && params.Config.UploadDir != "" {
		fileServer := http.StripPrefix("/uploads/", http.FileServer(uploadDir(params.Config.UploadDir)))
		r.Handle("/uploads/*", staticCacheHandler(fileServer))
	}

	return r
}

// uploadDir serves stored media without directory listings.
type uploadDir string

func (d uploadDir) Open(name string) (http.File, error) {
	f, err := http.Dir(d).Open(name)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	if info.IsDir() {
		_ = f.Close()
		return nil, fs.ErrNotExist
	}
	return f, nil
}

// staticCacheHandler wraps a file server with Cache-Control headers.
// Uploaded file names are unique per upload, so they are cached for a day.
func staticCacheHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "public, max-age=86400")
		next.ServeHTTP(w, r)
	})
}
