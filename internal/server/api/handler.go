package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/perfsonar/elmond/internal/esmond"
	"github.com/perfsonar/elmond/internal/model"
	"github.com/perfsonar/elmond/internal/server/metrics"
)

// MetadataService looks up test metadata records.
type MetadataService interface {
	Search(ctx context.Context, params model.Params, requestURL *url.URL, paginate bool) ([]model.Record, error)
	Get(ctx context.Context, key string, params model.Params, requestURL *url.URL) (model.Record, error)
}

// DataService fetches the time series of an event type.
type DataService interface {
	Fetch(ctx context.Context, key, eventType, summaryType, window string, params model.Params) ([]model.DataPoint, error)
}

// Handler serves the esmond archive REST API.
type Handler struct {
	baseURI  string
	metadata MetadataService
	data     DataService
	logger   *zap.Logger

	router *mux.Router
}

// NewHandler creates a new API handler with all routes registered below
// baseURI.
func NewHandler(baseURI string, metadata MetadataService, data DataService, logger *zap.Logger) *Handler {
	if baseURI == "" {
		baseURI = esmond.DefaultBaseURI
	}
	h := &Handler{
		baseURI:  baseURI,
		metadata: metadata,
		data:     data,
		logger:   logger.Named("api"),
	}

	h.router = mux.NewRouter()
	h.registerRoutes()

	return h
}

// Router returns the configured HTTP router.
func (h *Handler) Router() http.Handler {
	c := cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{"X-Request-Id"},
		MaxAge:         86400,
	})
	return c(h.router)
}

// -----------------------------------------------------------------------
// Route registration
// -----------------------------------------------------------------------

func (h *Handler) registerRoutes() {
	h.router.Use(h.instrument)

	h.handle("", h.handleListMetadata)
	h.handle("/{key}", h.handleGetMetadata)
	h.handle("/{key}/{eventType}", h.handleGetEventType)
	h.handle("/{key}/{eventType}/{summaryType}", h.handleGetSummaries)
	h.handle("/{key}/{eventType}/{summaryType}/{window}", h.handleGetData)

	h.router.HandleFunc("/healthz", h.handleHealth).Methods("GET")
	h.router.Handle("/metrics", metrics.Handler()).Methods("GET")
}

// handle registers fn for path below the base URI, with and without a
// trailing slash, the way esmond clients address resources.
func (h *Handler) handle(path string, fn http.HandlerFunc) {
	full := strings.TrimSuffix(h.baseURI, "/") + path
	h.router.HandleFunc(full, fn).Methods("GET")
	h.router.HandleFunc(full+"/", fn).Methods("GET")
}

// -----------------------------------------------------------------------
// Health endpoint
// -----------------------------------------------------------------------

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// -----------------------------------------------------------------------
// Metadata endpoints
// -----------------------------------------------------------------------

func (h *Handler) handleListMetadata(w http.ResponseWriter, r *http.Request) {
	records, err := h.metadata.Search(r.Context(), params(r), requestURL(r), true)
	if err != nil {
		h.writeAPIError(w, r, "failed to search metadata", err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func (h *Handler) handleGetMetadata(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]
	rec, err := h.metadata.Get(r.Context(), key, params(r), requestURL(r))
	if err != nil {
		h.writeAPIError(w, r, "failed to get metadata", err)
		return
	}
	writeJSON(w, http.StatusOK, []model.Record{rec})
}

func (h *Handler) handleGetEventType(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	entry, err := h.eventType(r, vars["key"], vars["eventType"])
	if err != nil {
		h.writeAPIError(w, r, "failed to get event type", err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (h *Handler) handleGetSummaries(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	summaryType, ok := esmond.SummaryTypeFromURL(vars["summaryType"])
	if !ok {
		writeError(w, http.StatusBadRequest, "unrecognized summary type "+vars["summaryType"])
		return
	}
	if summaryType == "base" {
		h.serveData(w, r, vars["key"], vars["eventType"], summaryType, "0")
		return
	}

	entry, err := h.eventType(r, vars["key"], vars["eventType"])
	if err != nil {
		h.writeAPIError(w, r, "failed to get summaries", err)
		return
	}
	out := make([]model.SummaryEntry, 0, len(entry.Summaries))
	for _, s := range entry.Summaries {
		if s.SummaryType == summaryType {
			out = append(out, s)
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) handleGetData(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	summaryType, ok := esmond.SummaryTypeFromURL(vars["summaryType"])
	if !ok {
		writeError(w, http.StatusBadRequest, "unrecognized summary type "+vars["summaryType"])
		return
	}
	h.serveData(w, r, vars["key"], vars["eventType"], summaryType, vars["window"])
}

func (h *Handler) serveData(w http.ResponseWriter, r *http.Request, key, eventType, summaryType, window string) {
	points, err := h.data.Fetch(r.Context(), key, eventType, summaryType, window, params(r))
	if err != nil {
		h.writeAPIError(w, r, "failed to fetch data", err)
		return
	}
	writeJSON(w, http.StatusOK, points)
}

// eventType finds the event type entry of the record identified by key.
func (h *Handler) eventType(r *http.Request, key, eventType string) (*model.EventTypeEntry, error) {
	rec, err := h.metadata.Get(r.Context(), key, model.Params{}, nil)
	if err != nil {
		return nil, err
	}
	entries, _ := rec["event-types"].([]model.EventTypeEntry)
	for i := range entries {
		if entries[i].EventType == eventType {
			return &entries[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %s has no event type %s", model.ErrNotFound, key, eventType)
}

// -----------------------------------------------------------------------
// Request helpers
// -----------------------------------------------------------------------

func params(r *http.Request) model.Params {
	return model.ParamsFromValues(r.URL.Query())
}

// requestURL rebuilds the absolute URL the client requested.
func requestURL(r *http.Request) *url.URL {
	u := *r.URL
	if u.Host == "" {
		u.Host = r.Host
	}
	if u.Scheme == "" {
		u.Scheme = "http"
		if r.TLS != nil {
			u.Scheme = "https"
		}
	}
	return &u
}

// -----------------------------------------------------------------------
// Middleware
// -----------------------------------------------------------------------

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// instrument tags every request with an id, logs it and records its
// metrics under the matched route template.
func (h *Handler) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-Id")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", id)

		route := "unknown"
		if cur := mux.CurrentRoute(r); cur != nil {
			if tpl, err := cur.GetPathTemplate(); err == nil {
				route = tpl
			}
		}

		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		elapsed := time.Since(start)

		metrics.APIRequests.WithLabelValues(route, strconv.Itoa(rec.status)).Inc()
		metrics.APIRequestDuration.WithLabelValues(route).Observe(elapsed.Seconds())
		h.logger.Info("request",
			zap.String("requestId", id),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("route", route),
			zap.Int("status", rec.status),
			zap.Duration("duration", elapsed),
		)
	})
}

// -----------------------------------------------------------------------
// JSON response helpers
// -----------------------------------------------------------------------

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		// Best-effort; headers are already sent.
		_ = err
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// writeAPIError maps the error classes to HTTP statuses. Client errors are
// returned verbatim; anything else is logged and hidden behind msg.
func (h *Handler) writeAPIError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	switch {
	case errors.Is(err, model.ErrInvalidRequest):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, model.ErrNotImplemented):
		writeError(w, http.StatusNotImplemented, err.Error())
	case errors.Is(err, model.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		h.logger.Error(msg,
			zap.String("requestId", w.Header().Get("X-Request-Id")),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, msg)
	}
}
