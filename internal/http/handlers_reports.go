package http

import (
	"log/slog"
	"net/http"
)

// cachedReport serves a report through the LRU cache, building it on a miss.
func (s *Server) cachedReport(w http.ResponseWriter, r *http.Request, key string, build func() (any, error)) {
	if data, found := s.reportCache.Get(key); found {
		slog.DebugContext(r.Context(), "Report cache hit", "key", key)
		writeJSON(w, http.StatusOK, data)
		return
	}

	data, err := build()
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.reportCache.Set(key, data)
	writeJSON(w, http.StatusOK, data)
}

func (s *Server) handleWeekWindow(w http.ResponseWriter, r *http.Request) {
	start, weeks := parseWindowParams(r)
	writeJSON(w, http.StatusOK, s.reports.ComputeWindow(start, weeks))
}

func (s *Server) handleCapacityGrid(w http.ResponseWriter, r *http.Request) {
	start, weeks := parseWindowParams(r)
	s.cachedReport(w, r, s.reportKey("capacity", start, weeks, ""), func() (any, error) {
		return s.reports.CapacityGrid(r.Context(), start, weeks)
	})
}

func (s *Server) handleResourceVsProjectType(w http.ResponseWriter, r *http.Request) {
	start, weeks := parseWindowParams(r)
	filter := r.URL.Query().Get("resource")
	s.cachedReport(w, r, s.reportKey("resources-vs", start, weeks, filter), func() (any, error) {
		return s.reports.ResourceVsProjectType(r.Context(), start, weeks, filter)
	})
}

func (s *Server) handleProjectWeeklyAverage(w http.ResponseWriter, r *http.Request) {
	start, weeks := parseWindowParams(r)
	s.cachedReport(w, r, s.reportKey("weekly-avg", start, weeks, ""), func() (any, error) {
		return s.reports.ProjectWeeklyAverage(r.Context(), start, weeks)
	})
}

func (s *Server) handleProjectsSummary(w http.ResponseWriter, r *http.Request) {
	out, err := s.reports.ProjectsSummary(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleProjectsWithAssignments(w http.ResponseWriter, r *http.Request) {
	out, err := s.reports.ProjectsWithAssignments(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleResourcesSummary(w http.ResponseWriter, r *http.Request) {
	out, err := s.reports.ResourcesSummary(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleProjectSubprocesses(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	resourceName := r.URL.Query().Get("resource_name")
	out, err := s.reports.ProjectSubprocessesCurrentMonth(r.Context(), id, resourceName)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}
