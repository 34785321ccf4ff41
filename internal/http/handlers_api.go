package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"bilancio/internal/core"
	applog "bilancio/internal/log"
)

type transactionList struct {
	Version      uint64             `json:"version"`
	Total        int                `json:"total"`
	Transactions []core.Transaction `json:"transactions"`
}

func (s *Server) handleAPIListTransactions(w http.ResponseWriter, r *http.Request) {
	view := s.svc.Dashboard(r.Context(), ParseCriteria(r.URL.Query()))
	NewResponse().JSON(transactionList{
		Version:      view.Version,
		Total:        view.Total,
		Transactions: view.Transactions,
	}).Write(w)
}

func (s *Server) handleAPIGetTransaction(w http.ResponseWriter, r *http.Request) {
	t, err := s.svc.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeAPIError(w, r, err)
		return
	}
	NewResponse().JSON(t).Write(w)
}

func (s *Server) handleAPICreateTransaction(w http.ResponseWriter, r *http.Request) {
	draft, err := DecodeDraftJSON(w, r)
	if err != nil {
		writeDecodeError(w, err)
		return
	}

	t, err := s.svc.Create(r.Context(), draft)
	if err != nil {
		s.logMutationError(r, applog.OpCreate, err)
		s.writeAPIError(w, r, err)
		return
	}

	NewResponse().
		Status(http.StatusCreated).
		Header("Location", "/api/transactions/"+t.ID).
		JSON(t).
		Write(w)
}

func (s *Server) handleAPIUpdateTransaction(w http.ResponseWriter, r *http.Request) {
	draft, err := DecodeDraftJSON(w, r)
	if err != nil {
		writeDecodeError(w, err)
		return
	}

	t, err := s.svc.Update(r.Context(), r.PathValue("id"), draft)
	if err != nil {
		s.logMutationError(r, applog.OpUpdate, err)
		s.writeAPIError(w, r, err)
		return
	}
	NewResponse().JSON(t).Write(w)
}

func (s *Server) handleAPIDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Delete(r.Context(), r.PathValue("id")); err != nil {
		s.logMutationError(r, applog.OpDelete, err)
		s.writeAPIError(w, r, err)
		return
	}
	NewResponse().Status(http.StatusNoContent).Write(w)
}

func (s *Server) handleAPICategories(w http.ResponseWriter, r *http.Request) {
	view := s.svc.Dashboard(r.Context(), core.Criteria{})
	NewResponse().JSON(map[string]any{"categories": view.Categories}).Write(w)
}

func (s *Server) handleAPISummary(w http.ResponseWriter, r *http.Request) {
	view := s.svc.Dashboard(r.Context(), core.Criteria{})
	NewResponse().JSON(view.Summary).Write(w)
}

func (s *Server) handleAPIStats(w http.ResponseWriter, r *http.Request) {
	NewResponse().JSON(s.svc.Stats(r.Context())).Write(w)
}

// writeAPIError maps a service error onto a status code.
func (s *Server) writeAPIError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		applog.FromContext(r.Context()).ErrorContext(r.Context(), "API request failed", applog.FieldError, err)
		msg = "internal error"
	}
	JSONError(status, msg).Write(w)
}

// writeDecodeError answers a request body that could not be turned into a
// draft. Only a bad amount is a validation failure; everything else is a
// malformed request.
func writeDecodeError(w http.ResponseWriter, err error) {
	status := http.StatusBadRequest
	var maxBytes *http.MaxBytesError
	switch {
	case core.IsValidation(err):
		status = http.StatusUnprocessableEntity
	case errors.As(err, &maxBytes):
		status = http.StatusRequestEntityTooLarge
	}
	JSONError(status, err.Error()).Write(w)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	NewResponse().JSON(map[string]any{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
		"uptime":    time.Since(s.started).String(),
	}).Write(w)
}

// handleReady performs readiness check with dependency verification
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := "ready"
	httpStatus := http.StatusOK
	checks := make(map[string]any)

	if s.templates == nil {
		checks["templates"] = "failed: templates not loaded"
		status = "not_ready"
		httpStatus = http.StatusServiceUnavailable
	} else {
		checks["templates"] = "ok"
	}

	if s.svc == nil {
		checks["ledger"] = "not_configured"
		status = "not_ready"
		httpStatus = http.StatusServiceUnavailable
	} else {
		view := s.svc.Dashboard(ctx, core.Criteria{})
		checks["ledger"] = map[string]any{
			"status":       "ok",
			"transactions": view.Total,
			"version":      view.Version,
		}
	}

	checks["rate_limiter"] = map[string]any{
		"active_clients": s.rateLimiter.ActiveClients(),
		"status":         "ok",
	}

	NewResponse().Status(httpStatus).JSON(map[string]any{
		"status":    status,
		"timestamp": time.Now().Format(time.RFC3339),
		"checks":    checks,
	}).Write(w)
}

// handleMetrics provides application and security metrics in plain text format
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

	traceMetrics := s.tracer.GetMetrics()
	securityMetrics := s.detector.GetMetrics()
	rateLimitMetrics := s.rateLimiter.GetMetrics()

	w.WriteHeader(http.StatusOK)

	fmt.Fprintf(w, "# HELP http_requests_total Total number of HTTP requests\n")
	fmt.Fprintf(w, "# TYPE http_requests_total counter\n")
	fmt.Fprintf(w, "http_requests_total %d\n\n", traceMetrics.TotalRequests)

	fmt.Fprintf(w, "# HELP http_server_errors_total Total number of 5xx responses\n")
	fmt.Fprintf(w, "# TYPE http_server_errors_total counter\n")
	fmt.Fprintf(w, "http_server_errors_total %d\n\n", traceMetrics.ServerErrors)

	fmt.Fprintf(w, "# HELP view_cache_hits_total View cache hits\n")
	fmt.Fprintf(w, "# TYPE view_cache_hits_total counter\n")
	stats := s.svc.CacheStats()
	for _, name := range []string{"dashboard", "stats"} {
		fmt.Fprintf(w, "view_cache_hits_total{view=%q} %d\n", name, stats[name].Hits)
	}
	fmt.Fprintf(w, "\n# HELP view_cache_misses_total View cache misses\n")
	fmt.Fprintf(w, "# TYPE view_cache_misses_total counter\n")
	for _, name := range []string{"dashboard", "stats"} {
		fmt.Fprintf(w, "view_cache_misses_total{view=%q} %d\n", name, stats[name].Misses)
	}
	fmt.Fprintf(w, "\n# HELP view_cache_entries Current view cache entries\n")
	fmt.Fprintf(w, "# TYPE view_cache_entries gauge\n")
	for _, name := range []string{"dashboard", "stats"} {
		fmt.Fprintf(w, "view_cache_entries{view=%q} %d\n", name, stats[name].Size)
	}

	fmt.Fprintf(w, "\n# HELP rate_limit_hits_total Total rate limit hits\n")
	fmt.Fprintf(w, "# TYPE rate_limit_hits_total counter\n")
	fmt.Fprintf(w, "rate_limit_hits_total %d\n\n", rateLimitMetrics.TotalHits)

	fmt.Fprintf(w, "# HELP active_rate_limit_clients Currently tracked rate limit clients\n")
	fmt.Fprintf(w, "# TYPE active_rate_limit_clients gauge\n")
	fmt.Fprintf(w, "active_rate_limit_clients %d\n\n", rateLimitMetrics.ClientCount)

	fmt.Fprintf(w, "# HELP suspicious_requests_total Total suspicious requests detected\n")
	fmt.Fprintf(w, "# TYPE suspicious_requests_total counter\n")
	fmt.Fprintf(w, "suspicious_requests_total %d\n\n", securityMetrics.SuspiciousRequests)

	fmt.Fprintf(w, "# HELP uptime_seconds Application uptime in seconds\n")
	fmt.Fprintf(w, "# TYPE uptime_seconds gauge\n")
	fmt.Fprintf(w, "uptime_seconds %.0f\n", time.Since(s.started).Seconds())
}
