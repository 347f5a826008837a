package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"tourcast/internal/domain"
	"tourcast/internal/middleware"
)

type submitTourRequest struct {
	Location struct {
		Name      string   `json:"name"`
		City      string   `json:"city"`
		Country   string   `json:"country"`
		Latitude  *float64 `json:"latitude"`
		Longitude *float64 `json:"longitude"`
	} `json:"location"`
	Preferences struct {
		Interests       []string `json:"interests"`
		DurationMinutes int      `json:"duration_minutes"`
		Language        string   `json:"language"`
		Provider        string   `json:"provider"`
		Voice           string   `json:"voice"`
	} `json:"preferences"`
}

type submitTourResponse struct {
	JobID           string          `json:"job_id"`
	State           domain.JobState `json:"state"`
	ProgressPercent int             `json:"progress_percent"`
	StatusURL       string          `json:"status_url"`
	Deduplicated    bool            `json:"deduplicated,omitempty"`
}

// SubmitTour accepts a generation request. A cached result completes
// immediately; a duplicate of an in-flight request attaches to the existing
// job; anything else is queued and answered with 202.
func (a *App) SubmitTour(w http.ResponseWriter, r *http.Request) {
	var body submitTourRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		a.error(w, http.StatusBadRequest, "malformed request body")
		return
	}

	req := domain.GenerationRequest{
		Subject: domain.Subject{
			Name:      body.Location.Name,
			City:      body.Location.City,
			Country:   body.Location.Country,
			Latitude:  body.Location.Latitude,
			Longitude: body.Location.Longitude,
		},
		Interests:       body.Preferences.Interests,
		DurationMinutes: body.Preferences.DurationMinutes,
		Language:        body.Preferences.Language,
		Provider:        body.Preferences.Provider,
		Voice:           body.Preferences.Voice,
	}
	if req.Language == "" {
		req.Language = middleware.LocaleFromContext(r.Context())
	}
	if req.Subject.Country == "" {
		req.Subject.Country = middleware.CountryFromContext(r.Context())
	}

	job, existing, err := a.Orchestrator.Submit(r.Context(), callerID(r), req)
	if err != nil {
		var verr *domain.ValidationError
		switch {
		case errors.As(err, &verr):
			a.error(w, http.StatusBadRequest, verr.Error())
		case errors.Is(err, domain.ErrBudgetExceeded):
			a.fail(w, err)
		case strings.Contains(err.Error(), "queue is full"):
			a.error(w, http.StatusServiceUnavailable, "generation queue is full")
		default:
			a.Logger.Error().Err(err).Msg("submit failed")
			a.fail(w, err)
		}
		return
	}

	resp := submitTourResponse{
		JobID:           job.ID,
		State:           job.State,
		ProgressPercent: job.State.Progress(),
		StatusURL:       "/v1/tours/" + job.ID,
		Deduplicated:    existing,
	}
	code := http.StatusAccepted
	if job.State.Terminal() {
		code = http.StatusOK
	}
	a.json(w, code, resp)
}

// TourStatus is the polling endpoint.
func (a *App) TourStatus(w http.ResponseWriter, r *http.Request) {
	view, err := a.Orchestrator.Status(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.fail(w, err)
		return
	}
	a.json(w, http.StatusOK, view)
}

// TourArtifact returns the finished artifact, or 409 while the job is still
// in flight or ended without one.
func (a *App) TourArtifact(w http.ResponseWriter, r *http.Request) {
	job, err := a.Orchestrator.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.fail(w, err)
		return
	}
	switch job.State {
	case domain.JobStateReady, domain.JobStateReadyNoAudio:
		a.json(w, http.StatusOK, job.Artifact)
	case domain.JobStateFailed:
		a.json(w, http.StatusConflict, map[string]string{"error": "generation failed", "detail": job.Error})
	case domain.JobStateCancelled:
		a.error(w, http.StatusConflict, "job was cancelled")
	default:
		a.error(w, http.StatusConflict, "artifact not ready")
	}
}

// TourAudio streams the stored audio blob.
func (a *App) TourAudio(w http.ResponseWriter, r *http.Request) {
	job, err := a.Orchestrator.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.fail(w, err)
		return
	}
	data, err := a.Orchestrator.ReadAudio(r.Context(), job)
	if err != nil {
		a.fail(w, domain.ErrNotFound)
		return
	}
	contentType := job.Artifact.AudioFormat
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// CancelTour requests cooperative cancellation. Only the submitting caller
// may cancel a job.
func (a *App) CancelTour(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	job, err := a.Orchestrator.Get(r.Context(), id)
	if err != nil {
		a.fail(w, err)
		return
	}
	if job.CallerID != "" && job.CallerID != callerID(r) {
		a.fail(w, domain.ErrUnauthorized)
		return
	}
	if err := a.Orchestrator.Cancel(r.Context(), id); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.fail(w, err)
			return
		}
		a.error(w, http.StatusConflict, err.Error())
		return
	}
	a.json(w, http.StatusOK, map[string]string{"job_id": id, "state": "cancelled"})
}
