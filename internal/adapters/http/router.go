// Package httpadapter exposes the search and answer services over HTTP.
package httpadapter

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/okutan/corpusqa/internal/core/domain"
	"github.com/okutan/corpusqa/internal/core/ports"
	"github.com/okutan/corpusqa/internal/observability/metrics"
)

type Router struct {
	search  ports.SearchService
	answer  ports.AnswerService
	metrics *metrics.ServiceMetrics
	service string

	rateLimitRPS   float64
	rateLimitBurst int
	maxInFlight    int
}

type RouterOptions struct {
	ServiceName    string
	Metrics        *metrics.ServiceMetrics
	RateLimitRPS   float64
	RateLimitBurst int
	MaxInFlight    int
}

func NewRouter(search ports.SearchService, answer ports.AnswerService, opts RouterOptions) *Router {
	service := opts.ServiceName
	if service == "" {
		service = "corpusqa"
	}
	return &Router{
		search:         search,
		answer:         answer,
		metrics:        opts.Metrics,
		service:        service,
		rateLimitRPS:   opts.RateLimitRPS,
		rateLimitBurst: opts.RateLimitBurst,
		maxInFlight:    opts.MaxInFlight,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	mux.HandleFunc("/v1/search", rt.handleSearch)
	mux.HandleFunc("/v1/answer", rt.handleAnswer)
	if rt.metrics != nil {
		mux.Handle("/metrics", rt.metrics.Handler())
	}

	var handler http.Handler = mux
	if rt.maxInFlight > 0 {
		handler = backpressureMiddleware(handler, rt.maxInFlight, 50*time.Millisecond)
	}
	if rt.rateLimitRPS > 0 {
		handler = rateLimitMiddleware(handler, rt.rateLimitRPS, rt.rateLimitBurst)
	}
	handler = accessLogMiddleware(handler)
	handler = requestIDMiddleware(handler)
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(rt.service, handler)
	}
	return handler
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type searchRequest struct {
	Query  string `json:"query"`
	UserID string `json:"user_id"`
}

func (rt *Router) handleSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	start := time.Now()
	result, err := rt.search.Search(r.Context(), req.Query, domain.UserScope{UserID: strings.TrimSpace(req.UserID)})
	if err != nil {
		rt.writeMappedError(w, r, err)
		return
	}
	if rt.metrics != nil {
		rt.metrics.RecordSearch(rt.service, result, time.Since(start))
	}
	writeJSON(w, http.StatusOK, result)
}

type answerRequest struct {
	Question string `json:"question"`
	UserID   string `json:"user_id"`
}

func (rt *Router) handleAnswer(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req answerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	start := time.Now()
	result, err := rt.answer.Answer(r.Context(), req.Question, domain.UserScope{UserID: strings.TrimSpace(req.UserID)})
	if err != nil {
		rt.writeMappedError(w, r, err)
		return
	}
	if rt.metrics != nil {
		rt.metrics.RecordAnswer(rt.service, result, time.Since(start))
	}
	writeJSON(w, http.StatusOK, result)
}

func (rt *Router) writeMappedError(w http.ResponseWriter, r *http.Request, err error) {
	status := mapErrorToHTTPStatus(err)
	if status >= 500 {
		slog.Error("request_failed",
			"request_id", requestIDFromContext(r.Context()),
			"path", r.URL.Path,
			"error", err,
		)
	}
	writeJSON(w, status, errorBody(err, status))
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
