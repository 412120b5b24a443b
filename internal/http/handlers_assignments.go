package http

import (
	"fmt"
	"net/http"

	"carga/internal/calendar"
	"carga/internal/core"
	"carga/internal/services"
)

type assignmentJSON struct {
	ID             int64   `json:"id"`
	ProjectID      int64   `json:"project_id"`
	ResourceID     int64   `json:"resource_id"`
	StartWeek      string  `json:"start_week"`
	EndWeek        string  `json:"end_week"`
	Subprocess     string  `json:"subprocess"`
	Ordinal        int     `json:"ordinal"`
	Classification string  `json:"classification"`
	Complexity     string  `json:"complexity"`
}

type weekEntryJSON struct {
	ID           int64   `json:"id"`
	AssignmentID int64   `json:"assignment_id"`
	WeekMonday   string  `json:"week_monday"`
	WeekFriday   string  `json:"week_friday"`
	MonthLabel   string  `json:"month_label"`
	WeekLabel    string  `json:"week_label"`
	Percentage   float64 `json:"percentage"`
	Subprocess   string  `json:"subprocess"`
	Ordinal      int     `json:"ordinal"`
	ProjectID    int64   `json:"project_id"`
	ResourceID   int64   `json:"resource_id"`
}

func toAssignmentJSON(a *core.Assignment) assignmentJSON {
	return assignmentJSON{
		ID:             a.ID,
		ProjectID:      a.ProjectID,
		ResourceID:     a.ResourceID,
		StartWeek:      a.StartWeekMonday.Format(calendar.DateLayout),
		EndWeek:        a.EndWeekMonday.Format(calendar.DateLayout),
		Subprocess:     a.Subprocess,
		Ordinal:        a.Ordinal,
		Classification: string(a.Classification),
		Complexity:     string(a.Complexity),
	}
}

func toWeekEntryJSON(w core.WeekEntry) weekEntryJSON {
	return weekEntryJSON{
		ID:           w.ID,
		AssignmentID: w.AssignmentID,
		WeekMonday:   w.WeekMonday.Format(calendar.DateLayout),
		WeekFriday:   w.WeekFriday.Format(calendar.DateLayout),
		MonthLabel:   w.MonthLabel,
		WeekLabel:    w.WeekLabel,
		Percentage:   w.Percentage,
		Subprocess:   w.Subprocess,
		Ordinal:      w.Ordinal,
		ProjectID:    w.ProjectID,
		ResourceID:   w.ResourceID,
	}
}

func (s *Server) handleCreateAssignment(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ProjectID  int64    `json:"project_id"`
		ResourceID int64    `json:"resource_id"`
		StartWeek  string   `json:"start_week"`
		EndWeek    string   `json:"end_week"`
		Percentage *float64 `json:"percentage"`
		Subprocess string   `json:"subprocess"`
		Ordinal    int      `json:"ordinal"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, fmt.Errorf("decode body: %w", core.ErrInvalidInput))
		return
	}

	a, err := s.ledger.CreateAssignment(r.Context(), services.CreateAssignmentRequest{
		ProjectID:  req.ProjectID,
		ResourceID: req.ResourceID,
		StartWeek:  req.StartWeek,
		EndWeek:    req.EndWeek,
		Percentage: req.Percentage,
		Subprocess: req.Subprocess,
		Ordinal:    req.Ordinal,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	weekCount := len(calendar.DaterangeMondays(a.StartWeekMonday, a.EndWeekMonday))
	s.structured.LogAssignmentCreated(r.Context(), a.ID, a.ProjectID, a.ResourceID, weekCount)
	s.invalidateReports()
	writeJSON(w, http.StatusCreated, toAssignmentJSON(a))
}

func (s *Server) handleCreateBulkAssignments(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ProjectID    int64     `json:"project_id"`
		ResourceID   int64     `json:"resource_id"`
		StartWeek    string    `json:"start_week"`
		Percentages  []float64 `json:"percentages"`
		Subprocesses []string  `json:"subprocesses"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, fmt.Errorf("decode body: %w", core.ErrInvalidInput))
		return
	}

	created, err := s.ledger.CreateBulkAssignments(r.Context(), services.CreateBulkRequest{
		ProjectID:    req.ProjectID,
		ResourceID:   req.ResourceID,
		StartWeek:    req.StartWeek,
		Percentages:  req.Percentages,
		Subprocesses: req.Subprocesses,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.invalidateReports()
	writeJSON(w, http.StatusCreated, map[string]any{
		"count":   len(created),
		"created": created,
	})
}

func (s *Server) handleDeleteAssignment(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.ledger.DeleteAssignment(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	s.invalidateReports()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAssignmentWeeks(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	weeks, err := s.ledger.AssignmentWeeks(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]weekEntryJSON, 0, len(weeks))
	for _, week := range weeks {
		out = append(out, toWeekEntryJSON(week))
	}
	writeJSON(w, http.StatusOK, out)
}
