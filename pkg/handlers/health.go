package handlers

import (
	"context"
	"net/http"
	"os"
	"runtime"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-gateway/pkg/config"
	"github.com/ekaya-inc/ekaya-gateway/pkg/logging"
)

const healthPingTimeout = 2 * time.Second

// CatalogStatus reports catalog freshness. *catalog.Refresher implements it.
type CatalogStatus interface {
	Status() (time.Time, error)
}

// Pinger checks database reachability. *pgxpool.Pool implements it.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingResponse contains service status and version information.
type PingResponse struct {
	Status      string `json:"status"`
	Version     string `json:"version"`
	Service     string `json:"service"`
	GoVersion   string `json:"go_version"`
	Hostname    string `json:"hostname"`
	Environment string `json:"environment"`
}

// HealthResponse is the readiness report.
type HealthResponse struct {
	Status   string          `json:"status"`
	Catalog  CatalogHealth   `json:"catalog"`
	Database *DatabaseHealth `json:"database,omitempty"`
}

type CatalogHealth struct {
	Loaded    bool       `json:"loaded"`
	LoadedAt  *time.Time `json:"loaded_at,omitempty"`
	LastError string     `json:"last_error,omitempty"`
}

type DatabaseHealth struct {
	Reachable bool   `json:"reachable"`
	Error     string `json:"error,omitempty"`
}

// HealthHandler handles health check and ping endpoints.
type HealthHandler struct {
	cfg     *config.Config
	catalog CatalogStatus
	db      Pinger
	logger  *zap.Logger
}

// NewHealthHandler creates a HealthHandler. catalog and db may be nil.
func NewHealthHandler(cfg *config.Config, catalog CatalogStatus, db Pinger, logger *zap.Logger) *HealthHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HealthHandler{cfg: cfg, catalog: catalog, db: db, logger: logger}
}

// RegisterRoutes registers the health handler's routes on the given mux.
func (h *HealthHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("GET /ping", h.Ping)
}

// Health handles GET /health. It returns 503 until a catalog has been
// loaded or while the database is unreachable; a failed refresh with an
// older catalog still in place is reported but stays healthy.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	response := HealthResponse{Status: "ok"}
	status := http.StatusOK

	if h.catalog != nil {
		loadedAt, lastErr := h.catalog.Status()
		if !loadedAt.IsZero() {
			response.Catalog.Loaded = true
			response.Catalog.LoadedAt = &loadedAt
		}
		if lastErr != nil {
			response.Catalog.LastError = logging.SanitizeError(lastErr)
		}
		if !response.Catalog.Loaded {
			response.Status = "unavailable"
			status = http.StatusServiceUnavailable
		}
	}

	if h.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), healthPingTimeout)
		defer cancel()

		response.Database = &DatabaseHealth{Reachable: true}
		if err := h.db.Ping(ctx); err != nil {
			response.Database = &DatabaseHealth{Error: logging.SanitizeError(err)}
			response.Status = "unavailable"
			status = http.StatusServiceUnavailable
		}
	}

	if err := WriteJSON(w, status, response); err != nil {
		h.logger.Error("Failed to encode health response", zap.Error(err))
	}
}

// Ping handles GET /ping. It always answers while the process is up.
func (h *HealthHandler) Ping(w http.ResponseWriter, r *http.Request) {
	hostname, err := os.Hostname()
	if err != nil {
		http.Error(w, "failed to get hostname", http.StatusInternalServerError)
		return
	}

	response := PingResponse{
		Status:      "ok",
		Version:     h.cfg.Version,
		Service:     "ekaya-gateway",
		GoVersion:   runtime.Version(),
		Hostname:    hostname,
		Environment: h.cfg.Env,
	}

	if err := WriteJSON(w, http.StatusOK, response); err != nil {
		h.logger.Error("Failed to encode ping response", zap.Error(err))
	}
}
