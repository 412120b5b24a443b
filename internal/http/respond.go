package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"carga/internal/calendar"
	"carga/internal/core"
	applog "carga/internal/log"
)

type errorResponse struct {
	Message string `json:"message"`
}

type conflictWeek struct {
	WeekMonday string  `json:"week_monday"`
	Label      string  `json:"label"`
	Current    float64 `json:"current"`
	New        float64 `json:"new"`
}

type conflictResponse struct {
	Message string         `json:"message"`
	Weeks   []conflictWeek `json:"weeks"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if body == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("Failed to encode response body", "error", err)
	}
}

// writeError maps domain errors onto the API's status codes. Capacity
// conflicts carry the full offending week list so the client can show every
// overbooked week at once.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var capErr *core.CapacityError
	switch {
	case errors.As(err, &capErr):
		resp := conflictResponse{
			Message: capErr.Error(),
			Weeks:   make([]conflictWeek, 0, len(capErr.Weeks)),
		}
		for _, week := range capErr.Weeks {
			resp.Weeks = append(resp.Weeks, conflictWeek{
				WeekMonday: week.WeekMonday.Format(calendar.DateLayout),
				Label:      week.Label,
				Current:    week.Current,
				New:        week.Attempted,
			})
		}
		writeJSON(w, http.StatusConflict, resp)
	case errors.Is(err, core.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Message: err.Error()})
	case errors.Is(err, core.ErrInvalidRange), errors.Is(err, core.ErrInvalidInput):
		writeJSON(w, http.StatusBadRequest, errorResponse{Message: err.Error()})
	default:
		applog.FromContext(r.Context()).ErrorContext(r.Context(), "Request failed",
			applog.FieldMethod, r.Method, applog.FieldPath, r.URL.Path, applog.FieldError, err.Error())
		writeJSON(w, http.StatusInternalServerError, errorResponse{Message: "internal error"})
	}
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	return nil
}
