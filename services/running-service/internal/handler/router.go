package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/vasapolrittideah/running-tracker-api/shared/middleware"
)

// NewRouter builds the HTTP router of the running service. authMiddleware
// guards every route under /api/running.
func NewRouter(
	runningHandler *runningHTTPHandler,
	authMiddleware func(http.Handler) http.Handler,
	logger *zerolog.Logger,
) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.NewRequestLogger(logger))
	r.Use(chimiddleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "UP"})
	})

	r.Route("/api/running", func(r chi.Router) {
		r.Use(authMiddleware)
		runningHandler.RegisterRoutes(r)
	})

	return r
}
