package httpadapter

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/kirillkom/docflow/internal/config"
	"github.com/kirillkom/docflow/internal/core/domain"
	"github.com/kirillkom/docflow/internal/core/ports"
	"github.com/kirillkom/docflow/internal/observability/metrics"
)

const metricsService = "api"

type Router struct {
	cfg       config.Config
	ingest    ports.DocumentIngestor
	processor ports.DocumentProcessor
	docs      ports.DocumentReader
	manager   ports.DocumentManager
	metrics   *metrics.HTTPServerMetrics
}

func NewRouter(
	cfg config.Config,
	ingest ports.DocumentIngestor,
	processor ports.DocumentProcessor,
	docs ports.DocumentReader,
	manager ports.DocumentManager,
) *Router {
	return &Router{
		cfg:       cfg,
		ingest:    ingest,
		processor: processor,
		docs:      docs,
		manager:   manager,
	}
}

// WithMetrics enables request instrumentation and the /metrics endpoint.
func (rt *Router) WithMetrics(m *metrics.HTTPServerMetrics) *Router {
	rt.metrics = m
	return rt
}

func (rt *Router) Handler() http.Handler {
	api := http.NewServeMux()
	api.HandleFunc("POST /api/upload", rt.uploadDocument)
	api.HandleFunc("POST /api/process/{id}", rt.reprocessDocument)
	api.HandleFunc("GET /api/documents", rt.listDocuments)
	api.HandleFunc("GET /api/stats", rt.documentStats)
	api.HandleFunc("DELETE /api/documents", rt.deleteDocuments)
	api.HandleFunc("GET /api/document/{id}", rt.getDocumentByID)
	api.HandleFunc("DELETE /api/document/{id}", rt.deleteDocument)
	api.HandleFunc("GET /api/download/{id}", rt.downloadDocument)

	var apiHandler http.Handler = api
	apiHandler = backpressureMiddleware(apiHandler, rt.cfg.APIBackpressureMaxInFlight, time.Duration(rt.cfg.APIBackpressureWaitMS)*time.Millisecond)
	apiHandler = rateLimitMiddleware(apiHandler, rt.cfg.APIRateLimitRPS, rt.cfg.APIRateLimitBurst)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", rt.healthz)
	mux.Handle("/api/", apiHandler)
	if rt.metrics != nil {
		mux.Handle("GET /metrics", rt.metrics.Handler())
	}

	var handler http.Handler = mux
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(metricsService, handler)
	}
	handler = accessLogMiddleware(handler)
	handler = requestIDMiddleware(handler)
	return handler
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) recordProcessed(doc *domain.Document, started time.Time) {
	if rt.metrics == nil || doc == nil {
		return
	}
	rt.metrics.RecordProcessed(metricsService, string(doc.Status), string(doc.ClassificationMethod), time.Since(started))
}

func (rt *Router) recordRejected(reason string) {
	if rt.metrics == nil {
		return
	}
	rt.metrics.RecordRejected(metricsService, reason)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"success": false, "error": message})
}

func writeDomainError(w http.ResponseWriter, err error) {
	status := mapErrorToHTTPStatus(err)
	if status >= http.StatusInternalServerError {
		slog.Error("request_failed", "kind", domain.KindName(err), "status", status, "error", err)
	}
	writeError(w, status, err.Error())
}
