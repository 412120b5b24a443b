package http

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"carga/internal/calendar"
	"carga/internal/core"
)

type resourceJSON struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Unit      string    `json:"unit,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type projectJSON struct {
	ID             int64     `json:"id"`
	Name           string    `json:"name"`
	Classification string    `json:"classification"`
	Phase          string    `json:"phase,omitempty"`
	Complexity     string    `json:"complexity"`
	HasResource    bool      `json:"has_resource"`
	CreatedAt      time.Time `json:"created_at"`
}

func toResourceJSON(r core.Resource) resourceJSON {
	return resourceJSON{ID: r.ID, Name: r.Name, Unit: r.Unit, CreatedAt: r.CreatedAt}
}

func toProjectJSON(p core.Project) projectJSON {
	return projectJSON{
		ID:             p.ID,
		Name:           p.Name,
		Classification: string(p.Classification),
		Phase:          p.Phase,
		Complexity:     string(p.Complexity),
		HasResource:    p.HasResource,
		CreatedAt:      p.CreatedAt,
	}
}

func pathID(r *http.Request) (int64, error) {
	raw := r.PathValue("id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q: %w", raw, core.ErrInvalidInput)
	}
	return id, nil
}

// parseWindowParams reads start/weeks query parameters. Unparseable weeks
// degrade to zero, which yields an empty report downstream.
func parseWindowParams(r *http.Request) (start string, weeks int) {
	q := r.URL.Query()
	start = q.Get("start")
	weeks = 12
	if raw := q.Get("weeks"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			return start, 0
		}
		weeks = parsed
	}
	if start == "" {
		start = calendar.MondayOf(time.Now().UTC()).Format(calendar.DateLayout)
	}
	return start, weeks
}

func (s *Server) handleListResources(w http.ResponseWriter, r *http.Request) {
	resources, err := s.ledger.ListResources(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]resourceJSON, 0, len(resources))
	for _, res := range resources {
		out = append(out, toResourceJSON(res))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateResource(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
		Unit string `json:"unit"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, fmt.Errorf("decode body: %w", core.ErrInvalidInput))
		return
	}

	res := &core.Resource{Name: req.Name, Unit: req.Unit}
	if err := s.ledger.CreateResource(r.Context(), res); err != nil {
		writeError(w, r, err)
		return
	}
	s.invalidateReports()
	writeJSON(w, http.StatusCreated, toResourceJSON(*res))
}

func (s *Server) handleDeleteResource(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.ledger.DeleteResource(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	s.invalidateReports()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := s.ledger.ListProjects(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]projectJSON, 0, len(projects))
	for _, p := range projects {
		out = append(out, toProjectJSON(p))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name           string `json:"name"`
		Classification string `json:"classification"`
		Phase          string `json:"phase"`
		Complexity     string `json:"complexity"`
		HasResource    bool   `json:"has_resource"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, fmt.Errorf("decode body: %w", core.ErrInvalidInput))
		return
	}

	p := &core.Project{
		Name:           req.Name,
		Classification: core.Classification(req.Classification),
		Phase:          req.Phase,
		Complexity:     core.Complexity(req.Complexity),
		HasResource:    req.HasResource,
	}
	if err := s.ledger.CreateProject(r.Context(), p); err != nil {
		writeError(w, r, err)
		return
	}
	s.invalidateReports()
	writeJSON(w, http.StatusCreated, toProjectJSON(*p))
}

func (s *Server) handleDeleteProject(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.ledger.DeleteProject(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	s.invalidateReports()
	w.WriteHeader(http.StatusNoContent)
}
