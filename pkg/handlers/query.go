package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-gateway/pkg/gateway"
	"github.com/ekaya-inc/ekaya-gateway/pkg/logging"
)

// maxQueryBodyBytes bounds a request body. Candidates are single
// statements; anything larger is not a plausible generated query.
const maxQueryBodyBytes = 256 << 10

// CatalogRefresher triggers a catalog reload. *catalog.Refresher and
// *catalog.RedisBroadcaster implement it.
type CatalogRefresher interface {
	RequestRefresh(ctx context.Context) error
}

// QueryRequest is the body of POST /api/query and /api/query/prepare.
type QueryRequest struct {
	SQL string `json:"sql"`
}

// SchemaResponse carries the generator-facing schema description.
type SchemaResponse struct {
	Schema string `json:"schema"`
}

// QueryHandler exposes the gateway over HTTP.
type QueryHandler struct {
	gateway   gateway.Service
	refresher CatalogRefresher
	logger    *zap.Logger
}

// NewQueryHandler creates a query handler. refresher may be nil, in which
// case the refresh route is not registered.
func NewQueryHandler(svc gateway.Service, refresher CatalogRefresher, logger *zap.Logger) *QueryHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QueryHandler{
		gateway:   svc,
		refresher: refresher,
		logger:    logger,
	}
}

// RegisterRoutes registers the query handler's routes on the given mux.
func (h *QueryHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/query", h.Query)
	mux.HandleFunc("POST /api/query/prepare", h.Prepare)
	mux.HandleFunc("GET /api/schema", h.Schema)
	if h.refresher != nil {
		mux.HandleFunc("POST /api/catalog/refresh", h.RefreshCatalog)
	}
}

// Query handles POST /api/query.
func (h *QueryHandler) Query(w http.ResponseWriter, r *http.Request) {
	candidate, ok := h.decodeCandidate(w, r)
	if !ok {
		return
	}

	res, err := h.gateway.Run(r.Context(), candidate)
	if err != nil {
		writeGatewayError(w, err, h.logger)
		return
	}

	if err := WriteJSON(w, http.StatusOK, res); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Prepare handles POST /api/query/prepare.
func (h *QueryHandler) Prepare(w http.ResponseWriter, r *http.Request) {
	candidate, ok := h.decodeCandidate(w, r)
	if !ok {
		return
	}

	prepared, err := h.gateway.Prepare(r.Context(), candidate)
	if err != nil {
		writeGatewayError(w, err, h.logger)
		return
	}

	if err := WriteJSON(w, http.StatusOK, prepared); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Schema handles GET /api/schema?max_tables=N.
func (h *QueryHandler) Schema(w http.ResponseWriter, r *http.Request) {
	maxTables := 0
	if raw := r.URL.Query().Get("max_tables"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			if err := ErrorResponse(w, http.StatusBadRequest, "invalid_max_tables", "max_tables must be a non-negative integer"); err != nil {
				h.logger.Error("Failed to write error response", zap.Error(err))
			}
			return
		}
		maxTables = n
	}

	text, err := h.gateway.DescribeSchema(r.Context(), maxTables)
	if err != nil {
		writeGatewayError(w, err, h.logger)
		return
	}

	if err := WriteJSON(w, http.StatusOK, SchemaResponse{Schema: text}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// RefreshCatalog handles POST /api/catalog/refresh.
func (h *QueryHandler) RefreshCatalog(w http.ResponseWriter, r *http.Request) {
	if err := h.refresher.RequestRefresh(r.Context()); err != nil {
		h.logger.Error("Catalog refresh request failed", zap.String("error", logging.SanitizeError(err)))
		if err := ErrorResponse(w, http.StatusInternalServerError, "refresh_failed", "Catalog refresh failed; the previous catalog remains in use"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	if err := WriteJSON(w, http.StatusAccepted, map[string]string{"status": "refresh requested"}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// decodeCandidate reads the SQL from the request body. It writes the error
// response itself and reports whether the caller should continue.
func (h *QueryHandler) decodeCandidate(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req QueryRequest
	body := http.MaxBytesReader(w, r.Body, maxQueryBodyBytes)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		status, code, msg := http.StatusBadRequest, "invalid_request", "Invalid request body"
		if errors.As(err, &tooLarge) {
			status, code, msg = http.StatusRequestEntityTooLarge, "request_too_large", "Request body is too large"
		}
		if err := ErrorResponse(w, status, code, msg); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return "", false
	}

	if strings.TrimSpace(req.SQL) == "" {
		if err := ErrorResponse(w, http.StatusBadRequest, "missing_sql", "SQL query is required"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return "", false
	}
	return req.SQL, true
}
