package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"tourcast/internal/domain"
	"tourcast/internal/infra"
	"tourcast/internal/middleware"
	"tourcast/internal/orchestrator"
	"tourcast/internal/usage"
)

// App carries the handler dependencies.
type App struct {
	Orchestrator *orchestrator.Orchestrator
	Meter        *usage.Meter
	Logger       infra.Logger
}

func NewApp(o *orchestrator.Orchestrator, m *usage.Meter, logger infra.Logger) *App {
	return &App{Orchestrator: o, Meter: m, Logger: logger}
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, code int, message string) {
	a.json(w, code, map[string]string{"error": message})
}

// fail maps domain errors onto HTTP status codes.
func (a *App) fail(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		a.error(w, http.StatusNotFound, "not found")
	case errors.Is(err, domain.ErrUnauthorized):
		a.error(w, http.StatusForbidden, "forbidden")
	case errors.Is(err, domain.ErrBudgetExceeded):
		a.error(w, http.StatusTooManyRequests, "monthly generation budget exhausted")
	default:
		a.error(w, http.StatusInternalServerError, "internal error")
	}
}

// callerID identifies the submitter: the authenticated subject when present,
// otherwise the client IP.
func callerID(r *http.Request) string {
	if id := middleware.UserIDFromContext(r.Context()); id != "" {
		return id
	}
	return middleware.ClientIP(r)
}
