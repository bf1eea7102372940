// Package httpapi serves health checks, metrics and read-only listings.
package httpapi

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"casebook/internal/lifecycle"
	"casebook/internal/search"
	"casebook/internal/store"
)

// Pinger is a dependency checked by /api/ready.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Options struct {
	CORSOrigin string
	// Checks are named dependencies reported by /api/ready.
	Checks   map[string]Pinger
	Gatherer prometheus.Gatherer
	Logger   logrus.FieldLogger
}

type Server struct {
	engine     *lifecycle.Engine
	search     *search.Service
	checks     map[string]Pinger
	gatherer   prometheus.Gatherer
	corsOrigin string
	log        logrus.FieldLogger
}

func NewServer(engine *lifecycle.Engine, searchSvc *search.Service, opts Options) *Server {
	s := &Server{
		engine:     engine,
		search:     searchSvc,
		checks:     opts.Checks,
		gatherer:   opts.Gatherer,
		corsOrigin: opts.CORSOrigin,
		log:        opts.Logger,
	}
	if s.corsOrigin == "" {
		s.corsOrigin = "*"
	}
	if s.gatherer == nil {
		s.gatherer = prometheus.DefaultGatherer
	}
	if s.log == nil {
		s.log = logrus.StandardLogger()
	}
	return s
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/ready", s.handleReady)
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("GET /api/case-studies", s.handleListCaseStudies)
	mux.HandleFunc("GET /api/case-studies/{ref}", s.handleGetCaseStudy)
	mux.HandleFunc("GET /api/case-studies/{ref}/comments", s.handleCaseStudyComments)
	mux.HandleFunc("GET /api/drafts", s.handleListDrafts)
	mux.HandleFunc("GET /api/drafts/{id}", s.handleGetDraft)
	mux.HandleFunc("GET /api/drafts/{id}/comments", s.handleDraftComments)
	mux.HandleFunc("GET /api/orphans", s.handleOrphans)
	mux.HandleFunc("GET /api/search", s.handleSearch)
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	})
	return s.withMiddleware(mux)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	statusCode := http.StatusOK
	checks := make(map[string]any, len(s.checks))
	for name, pinger := range s.checks {
		if err := pinger.Ping(ctx); err != nil {
			status = "not_ready"
			statusCode = http.StatusServiceUnavailable
			checks[name] = map[string]any{"status": "error", "error": err.Error()}
			continue
		}
		checks[name] = map[string]any{"status": "ok"}
	}
	if s.search != nil {
		checks["search"] = map[string]any{"status": "ok", "meilisearch": s.search.Healthy()}
	}

	writeJSON(w, statusCode, map[string]any{
		"ok":     status == "ready",
		"status": status,
		"checks": checks,
	})
}

func (s *Server) handleListCaseStudies(w http.ResponseWriter, r *http.Request) {
	items, err := s.engine.ListCaseStudies(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if status := store.Status(r.URL.Query().Get("status")); status != "" {
		filtered := make([]store.Summary, 0, len(items))
		for _, item := range items {
			if item.Status == status {
				filtered = append(filtered, item)
			}
		}
		items = filtered
	}
	writeJSON(w, http.StatusOK, map[string]any{"caseStudies": items, "total": len(items)})
}

func (s *Server) handleGetCaseStudy(w http.ResponseWriter, r *http.Request) {
	item, err := s.engine.GetCaseStudy(r.Context(), r.PathValue("ref"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (s *Server) handleCaseStudyComments(w http.ResponseWriter, r *http.Request) {
	thread, err := s.engine.CaseStudyComments(r.Context(), r.PathValue("ref"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"comments": thread})
}

func (s *Server) handleListDrafts(w http.ResponseWriter, r *http.Request) {
	drafts, err := s.engine.ListDrafts(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if drafts == nil {
		drafts = []store.Draft{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"drafts": drafts, "total": len(drafts)})
}

func (s *Server) handleGetDraft(w http.ResponseWriter, r *http.Request) {
	draft, err := s.engine.GetDraft(r.Context(), r.PathValue("id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, draft)
}

func (s *Server) handleDraftComments(w http.ResponseWriter, r *http.Request) {
	thread, err := s.engine.DraftComments(r.Context(), r.PathValue("id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"comments": thread})
}

func (s *Server) handleOrphans(w http.ResponseWriter, r *http.Request) {
	orphans, err := s.engine.Orphans(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if orphans == nil {
		orphans = []store.Draft{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"drafts": orphans, "total": len(orphans)})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if s.search == nil {
		writeError(w, http.StatusServiceUnavailable, "SEARCH_UNAVAILABLE", "Search is not configured", nil)
		return
	}
	params := r.URL.Query()
	q := search.Query{
		Text:   params.Get("q"),
		Status: store.Status(params.Get("status")),
		Label:  params.Get("label"),
	}
	var err error
	if q.Limit, err = intParam(params.Get("limit"), 20, 100); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "limit must be a non-negative integer", nil)
		return
	}
	if q.Offset, err = intParam(params.Get("offset"), 0, -1); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "offset must be a non-negative integer", nil)
		return
	}
	writeJSON(w, http.StatusOK, s.search.Search(r.Context(), q))
}

// intParam parses a non-negative integer, clamping to limit when limit >= 0.
func intParam(raw string, fallback, limit int) (int, error) {
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, errors.New("invalid integer")
	}
	if limit >= 0 && n > limit {
		n = limit
	}
	return n, nil
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code, message, details := mapError(err)
	if status >= http.StatusInternalServerError {
		s.log.WithError(err).WithField("path", r.URL.Path).Error("request failed")
	}
	writeError(w, status, code, message, details)
}

func (s *Server) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		if r.Method == http.MethodOptions {
			writer.WriteHeader(http.StatusNoContent)
		} else {
			next.ServeHTTP(writer, r)
		}

		s.log.WithFields(logrus.Fields{
			"request_id":  requestID,
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      writer.status,
			"duration_ms": time.Since(started).Milliseconds(),
		}).Info("request")
	})
}

type requestIDKey struct{}

// RequestID returns the id assigned to the request carrying ctx.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func randomRequestID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,OPTIONS")
	header.Set("Cache-Control", "no-store")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}
