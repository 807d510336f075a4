package server

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"sort"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/nicktill/techboard/pkg/config"
	"github.com/nicktill/techboard/pkg/filter"
	"github.com/nicktill/techboard/pkg/httpx"
	"github.com/nicktill/techboard/pkg/live"
	"github.com/nicktill/techboard/pkg/metrics"
	"github.com/nicktill/techboard/pkg/report"
	"github.com/nicktill/techboard/pkg/server/monitor"
	"github.com/nicktill/techboard/pkg/storage"
)

// Version is reported by the health endpoint.
const Version = "1.0.0"

var startTime = time.Now()

// Handlers serves the HTTP API.
type Handlers struct {
	Engine        *report.Engine
	Store         storage.Storage
	StoreKind     string
	Hub           *live.Hub
	Metrics       *metrics.Prometheus
	Disk          *monitor.DiskMonitor
	Tasks         map[string]*monitor.TaskMonitor
	ReportTimeout time.Duration
	Logger        *zap.Logger
}

// StoreStatus is the store section of the health response.
type StoreStatus struct {
	Kind      string `json:"kind"`
	Reachable bool   `json:"reachable"`
	Error     string `json:"error,omitempty"`
}

// DiskUsage represents current disk usage of an embedded store.
type DiskUsage struct {
	UsedBytes int64 `json:"used_bytes"`
	MaxBytes  int64 `json:"max_bytes"`
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status  string               `json:"status"`
	Version string               `json:"version"`
	Uptime  string               `json:"uptime"`
	Store   StoreStatus          `json:"store"`
	Tasks   []monitor.TaskStatus `json:"tasks"`
	Clients int                  `json:"live_clients"`
}

// handleHealth pings the store with a head count and reports background task
// health. An unreachable store or a failing task degrades the service.
func (h *Handlers) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), config.StorePingTimeout)
	defer cancel()

	response := HealthResponse{
		Status:  "healthy",
		Version: Version,
		Uptime:  time.Since(startTime).Round(time.Second).String(),
		Store:   StoreStatus{Kind: h.StoreKind, Reachable: true},
		Tasks:   []monitor.TaskStatus{},
	}
	if h.Hub != nil {
		response.Clients = h.Hub.Clients()
	}
	statusCode := http.StatusOK

	if _, err := h.Store.Count(ctx, filter.Spec{}); err != nil {
		response.Store.Reachable = false
		response.Store.Error = err.Error()
		response.Status = "degraded"
		statusCode = http.StatusServiceUnavailable
	}

	names := make([]string, 0, len(h.Tasks))
	for name := range h.Tasks {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		status := h.Tasks[name].Status()
		if !status.Healthy {
			response.Status = "degraded"
			statusCode = http.StatusServiceUnavailable
		}
		response.Tasks = append(response.Tasks, status)
	}

	httpx.RespondJSON(w, statusCode, response)
}

// handleStorageUsage returns disk usage of the embedded store.
func (h *Handlers) handleStorageUsage(w http.ResponseWriter, r *http.Request) {
	if h.Disk == nil {
		httpx.RespondErrorString(w, http.StatusNotFound, "store "+h.StoreKind+" has no local data directory")
		return
	}
	used, err := h.Disk.Usage()
	if err != nil {
		h.Logger.Error("failed to calculate storage usage", zap.Error(err))
		httpx.RespondError(w, http.StatusInternalServerError, err)
		return
	}
	httpx.RespondJSON(w, http.StatusOK, DiskUsage{UsedBytes: used, MaxBytes: h.Disk.Limit()})
}

// CatalogEntry describes a report in the catalog response.
type CatalogEntry struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Debug       bool   `json:"debug"`
	Path        string `json:"path"`
}

// CatalogResponse lists the available reports and the filters they accept.
type CatalogResponse struct {
	Reports []CatalogEntry `json:"reports"`
	Filters []string       `json:"filters"`
}

func (h *Handlers) handleCatalog(w http.ResponseWriter, r *http.Request) {
	defs := h.Engine.Definitions()
	resp := CatalogResponse{
		Reports: make([]CatalogEntry, len(defs)),
		Filters: report.TechnicianFilters.Names(),
	}
	for i, d := range defs {
		resp.Reports[i] = CatalogEntry{
			Name:        d.Name,
			Description: d.Description,
			Debug:       d.Debug,
			Path:        "/v1/reports/" + d.Name,
		}
	}
	httpx.RespondJSON(w, http.StatusOK, resp)
}

// handleReport runs one report. Filters come from the query string; debug=1
// embeds diagnostics and cursor=<column> switches to keyset paging.
func (h *Handlers) handleReport(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	query := r.URL.Query()

	opts := report.RunOptions{
		Debug:      query.Get("debug") == "1",
		RequestID:  httpx.RequestID(r.Context()),
		Cursor:     query.Get("cursor"),
		BestEffort: query.Get("best_effort") == "1",
	}
	ctx := r.Context()
	if h.ReportTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.ReportTimeout)
		defer cancel()
	}

	payload, err := h.Engine.Run(ctx, name, query, opts)
	switch {
	case errors.Is(err, report.ErrUnknownReport):
		httpx.RespondError(w, http.StatusNotFound, err)
		return
	case errors.Is(err, report.ErrInvalidCursor):
		httpx.RespondError(w, http.StatusBadRequest, err)
		return
	case errors.Is(err, context.DeadlineExceeded):
		h.Logger.Error("report timed out", zap.String("report", name), zap.String("request_id", opts.RequestID), zap.Error(err))
		httpx.RespondJSON(w, http.StatusGatewayTimeout, httpx.ErrorResponse{
			Error:     http.StatusText(http.StatusGatewayTimeout),
			Message:   err.Error(),
			Retryable: true,
		})
		return
	case err != nil:
		h.Logger.Error("report failed", zap.String("report", name), zap.String("request_id", opts.RequestID), zap.Error(err))
		httpx.RespondUpstreamError(w, err)
		return
	}

	httpx.RespondTagged(w, r, payload, payload.Stable())
}

// handleTechnicians serves one page of the non-aggregated listing.
func (h *Handlers) handleTechnicians(w http.ResponseWriter, r *http.Request) {
	req, err := report.ParseList(r.URL.Query())
	if err != nil {
		httpx.RespondError(w, http.StatusBadRequest, err)
		return
	}
	res, err := h.Engine.List(r.Context(), req)
	if err != nil {
		h.Logger.Error("listing failed", zap.String("request_id", httpx.RequestID(r.Context())), zap.Error(err))
		httpx.RespondUpstreamError(w, err)
		return
	}
	httpx.RespondJSON(w, http.StatusOK, res)
}

// SetupRoutes configures all HTTP routes for the server.
func SetupRoutes(router *mux.Router, h *Handlers, port string) {
	router.Use(httpx.Logging(h.Logger))
	router.Use(corsMiddleware(port))

	api := router.PathPrefix("/v1").Subrouter()

	api.HandleFunc("/reports", h.handleCatalog).Methods("GET")
	api.HandleFunc("/reports/{name}", h.handleReport).Methods("GET")
	api.HandleFunc("/technicians", h.handleTechnicians).Methods("GET")

	api.HandleFunc("/health", h.handleHealth).Methods("GET")
	api.HandleFunc("/storage", h.handleStorageUsage).Methods("GET")

	if h.Hub != nil {
		api.HandleFunc("/ws", h.Hub.HandleWebSocket).Methods("GET")
	}
	if h.Metrics != nil {
		router.Handle("/metrics", h.Metrics.Handler()).Methods("GET")
	}
}

// corsMiddleware restricts cross-origin access to localhost dashboards.
func corsMiddleware(port string) func(http.Handler) http.Handler {
	allowedOrigins := []string{
		"http://localhost:" + port,
		"http://127.0.0.1:" + port,
		"http://localhost:3000",
		"http://127.0.0.1:3000",
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if slices.Contains(allowedOrigins, origin) {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, If-None-Match, X-Request-ID")
				w.Header().Set("Access-Control-Expose-Headers", "ETag, X-Request-ID")
				w.Header().Set("Access-Control-Allow-Credentials", "true")
			}

			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
