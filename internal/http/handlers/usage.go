package handlers

import (
	"net/http"
)

// UsageSummary reports the day and month metering windows.
func (a *App) UsageSummary(w http.ResponseWriter, r *http.Request) {
	if a.Meter == nil {
		a.error(w, http.StatusNotFound, "usage metering is not configured")
		return
	}
	a.json(w, http.StatusOK, a.Meter.Summarize())
}
