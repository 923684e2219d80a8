// Package server is the fake campus backend: the user, student and
// attendance routes the CLI talks to, served from memory.
package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/alexjbarnes/campusctl/internal/auth"
	"github.com/alexjbarnes/campusctl/internal/models"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// MuxConfig holds dependencies for building the router.
type MuxConfig struct {
	Store     *auth.Store
	Issuer    *auth.Issuer
	Directory *Directory
	Logger    *slog.Logger
	Login     auth.LoginOptions
}

// NewMux builds the backend router. Everything except login and
// refresh-token sits behind the bearer middleware.
func NewMux(cfg MuxConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	requireAuth := auth.Middleware(cfg.Issuer, logger)

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(logger))

	r.Route("/api/user", func(r chi.Router) {
		r.Post("/login", auth.HandleLogin(cfg.Store, cfg.Issuer, cfg.Login, logger))
		r.Post("/refresh-token", auth.HandleRefresh(cfg.Store, cfg.Issuer, logger))

		r.Group(func(r chi.Router) {
			r.Use(requireAuth)
			r.Get("/user-details", auth.HandleUserDetails(cfg.Store))
			r.Get("/logout", auth.HandleLogout(cfg.Store, logger))

			r.Post("/students", handleAddStudent(cfg.Directory, logger))
			r.Get("/students", handleListStudents(cfg.Directory))
			r.Get("/students/{id}", handleGetStudent(cfg.Directory))
			r.Put("/students/{id}", handleUpdateStudent(cfg.Directory))
			r.Delete("/students/{id}", handleDeleteStudent(cfg.Directory, logger))
		})
	})

	r.Route("/api/attendance", func(r chi.Router) {
		r.Use(requireAuth)
		r.Post("/mark", handleMark(cfg.Directory, logger))
		r.Post("/scan", handleMark(cfg.Directory, logger))
		r.Post("/get-by-student", handleStudentAttendance(cfg.Directory))
		r.Get("/list", handleListAttendance(cfg.Directory))
		r.Get("/today-summary", handleTodaySummary(cfg.Directory))
		r.Get("/by-month/{id}", handleMonth(cfg.Directory))
		r.Get("/day/{id}", handleDay(cfg.Directory))
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeFailure(w, http.StatusNotFound, "Route not found")
	})

	return r
}

// requestLogger logs each request with the client-supplied request ID.
func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			logger.Debug("request",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", ww.Status()),
				slog.String("request_id", r.Header.Get("X-Request-ID")),
				slog.Duration("duration", time.Since(start)),
			)
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, env models.Envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(env)
}

func writeData(w http.ResponseWriter, message string, data any) {
	writeJSON(w, http.StatusOK, models.Envelope{Success: true, Message: message, Data: data})
}

func writeFailure(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, models.Envelope{Error: true, Message: message})
}
