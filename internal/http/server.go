package http

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	applog "carga/internal/log"
	"carga/internal/services"
)

type Server struct {
	http.Server
	ledger         *services.LedgerService
	reports        *services.ReportService
	allowedOrigins []string
	rateLimiter    *rateLimiter
	structured     *applog.StructuredLogger

	// reportCache fronts the windowed report endpoints. cacheVersion is part
	// of every key and is bumped on each ledger write, so entries written
	// before a mutation can never be served after it.
	reportCache  *lruCache[any]
	cacheVersion atomic.Int64

	stopCacheCleanup chan struct{}
	shutdownOnce     sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(addr string, ledger *services.LedgerService, reports *services.ReportService, allowedOrigins []string) *Server {
	mux := http.NewServeMux()

	s := &Server{
		ledger:           ledger,
		reports:          reports,
		allowedOrigins:   allowedOrigins,
		rateLimiter:      newRateLimiter(60),
		structured:       applog.NewStructuredLogger(applog.New(applog.ComponentHTTP)),
		reportCache:      newLRUCache[any](200, 5*time.Minute),
		stopCacheCleanup: make(chan struct{}),
	}
	s.Server = http.Server{
		Addr:    addr,
		Handler: s.withAPI(mux),
	}

	go s.startCacheCleanup()

	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", handleReady)

	mux.HandleFunc("GET /api/resources", s.handleListResources)
	mux.HandleFunc("POST /api/resources", s.handleCreateResource)
	mux.HandleFunc("DELETE /api/resources/{id}", s.handleDeleteResource)
	mux.HandleFunc("GET /api/resources/summary", s.handleResourcesSummary)

	mux.HandleFunc("GET /api/projects", s.handleListProjects)
	mux.HandleFunc("POST /api/projects", s.handleCreateProject)
	mux.HandleFunc("DELETE /api/projects/{id}", s.handleDeleteProject)
	mux.HandleFunc("GET /api/projects/summary", s.handleProjectsSummary)
	mux.HandleFunc("GET /api/projects/with-assignments", s.handleProjectsWithAssignments)
	mux.HandleFunc("GET /api/projects/weekly-avg", s.handleProjectWeeklyAverage)
	mux.HandleFunc("GET /api/projects/{id}/subprocesses/current-month", s.handleProjectSubprocesses)

	mux.HandleFunc("POST /api/assignments", s.handleCreateAssignment)
	mux.HandleFunc("POST /api/assignments/bulk", s.handleCreateBulkAssignments)
	mux.HandleFunc("DELETE /api/assignments/{id}", s.handleDeleteAssignment)
	mux.HandleFunc("GET /api/assignments/{id}/weeks", s.handleAssignmentWeeks)

	mux.HandleFunc("GET /api/weeks/window", s.handleWeekWindow)
	mux.HandleFunc("GET /api/grid/capacity", s.handleCapacityGrid)
	mux.HandleFunc("GET /api/grid/resources-vs", s.handleResourceVsProjectType)

	return s
}

// withAPI adds request IDs, CORS, rate limiting on mutating methods and
// request logging around the whole mux.
func (s *Server) withAPI(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		clientIP := extractClientIP(r)

		requestID := generateRequestID()
		ctx := context.WithValue(r.Context(), requestIDKey, requestID)
		reqLogger := applog.FromContext(ctx).With(applog.FieldRequestID, requestID)
		ctx = context.WithValue(ctx, applog.LoggerContextKey, reqLogger)
		r = r.WithContext(ctx)

		s.applyCORS(w, r)
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		s.structured.LogHTTPStart(ctx, r, clientIP)

		if isMutating(r.Method) && !s.rateLimiter.allow(clientIP) {
			reqLogger.WarnContext(ctx, "Rate limit exceeded",
				applog.FieldClientIP, clientIP, applog.FieldMethod, r.Method, applog.FieldPath, r.URL.Path)
			w.Header().Set("Retry-After", "60")
			writeJSON(w, http.StatusTooManyRequests, errorResponse{Message: "rate limit exceeded"})
			return
		}

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)

		s.structured.LogHTTPEnd(ctx, r, rw.statusCode, time.Since(start).Milliseconds(), clientIP)
	})
}

func (s *Server) applyCORS(w http.ResponseWriter, r *http.Request) {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return
	}
	allowed := ""
	for _, candidate := range s.allowedOrigins {
		if candidate == "*" {
			allowed = "*"
			break
		}
		if strings.EqualFold(candidate, origin) {
			allowed = origin
			break
		}
	}
	if allowed == "" {
		return
	}
	w.Header().Set("Access-Control-Allow-Origin", allowed)
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
	w.Header().Set("Vary", "Origin")
}

func isMutating(method string) bool {
	return method == http.MethodPost || method == http.MethodPut ||
		method == http.MethodPatch || method == http.MethodDelete
}

type contextKey string

const requestIDKey contextKey = "request_id"

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// generateRequestID creates a unique request ID for tracing.
func generateRequestID() string {
	bytes := make([]byte, 8)
	if _, err := rand.Read(bytes); err != nil {
		return fmt.Sprintf("req_%d", time.Now().UnixNano())
	}
	return "req_" + hex.EncodeToString(bytes)
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func handleReady(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

// invalidateReports makes every cached report entry unreachable.
func (s *Server) invalidateReports() {
	s.cacheVersion.Add(1)
}

func (s *Server) reportKey(report, start string, weeks int, filter string) string {
	return strconv.FormatInt(s.cacheVersion.Load(), 10) + "|" + report + "|" + start + "|" +
		strconv.Itoa(weeks) + "|" + filter
}

func (s *Server) startCacheCleanup() {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if cleaned := s.reportCache.CleanExpired(); cleaned > 0 {
				slog.Debug("Cache cleanup completed", "entries_removed", cleaned)
			}
		case <-s.stopCacheCleanup:
			return
		}
	}
}

// Shutdown gracefully shuts down the server and cleanup routines.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		if s.stopCacheCleanup != nil {
			close(s.stopCacheCleanup)
		}
		if s.rateLimiter != nil {
			s.rateLimiter.stop()
		}
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}
