package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-gateway/pkg/config"
)

type stubCatalogStatus struct {
	loadedAt time.Time
	err      error
}

func (s stubCatalogStatus) Status() (time.Time, error) {
	return s.loadedAt, s.err
}

type stubPinger struct {
	err error
}

func (s stubPinger) Ping(ctx context.Context) error {
	return s.err
}

func TestHealthHandler_Health(t *testing.T) {
	loaded := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		catalog    CatalogStatus
		db         Pinger
		wantStatus int
		check      func(t *testing.T, resp HealthResponse)
	}{
		{
			name:       "no dependencies",
			wantStatus: http.StatusOK,
			check: func(t *testing.T, resp HealthResponse) {
				assert.Equal(t, "ok", resp.Status)
				assert.Nil(t, resp.Database)
			},
		},
		{
			name:       "healthy",
			catalog:    stubCatalogStatus{loadedAt: loaded},
			db:         stubPinger{},
			wantStatus: http.StatusOK,
			check: func(t *testing.T, resp HealthResponse) {
				assert.True(t, resp.Catalog.Loaded)
				require.NotNil(t, resp.Catalog.LoadedAt)
				assert.True(t, loaded.Equal(*resp.Catalog.LoadedAt))
				assert.True(t, resp.Database.Reachable)
			},
		},
		{
			name:       "catalog never loaded",
			catalog:    stubCatalogStatus{err: errors.New("relation does not exist")},
			wantStatus: http.StatusServiceUnavailable,
			check: func(t *testing.T, resp HealthResponse) {
				assert.Equal(t, "unavailable", resp.Status)
				assert.False(t, resp.Catalog.Loaded)
				assert.Equal(t, "relation does not exist", resp.Catalog.LastError)
			},
		},
		{
			name:       "stale catalog stays healthy",
			catalog:    stubCatalogStatus{loadedAt: loaded, err: errors.New("refresh failed")},
			wantStatus: http.StatusOK,
			check: func(t *testing.T, resp HealthResponse) {
				assert.True(t, resp.Catalog.Loaded)
				assert.Equal(t, "refresh failed", resp.Catalog.LastError)
			},
		},
		{
			name:       "database down",
			catalog:    stubCatalogStatus{loadedAt: loaded},
			db:         stubPinger{err: errors.New("dial postgres://reader:hunter2@db:5432/shop: refused")},
			wantStatus: http.StatusServiceUnavailable,
			check: func(t *testing.T, resp HealthResponse) {
				assert.False(t, resp.Database.Reachable)
				assert.NotContains(t, resp.Database.Error, "hunter2")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewHealthHandler(&config.Config{Version: "test"}, tt.catalog, tt.db, zap.NewNop())

			rec := httptest.NewRecorder()
			handler.Health(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

			assert.Equal(t, tt.wantStatus, rec.Code)
			var resp HealthResponse
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
			tt.check(t, resp)
		})
	}
}

func TestHealthHandler_Ping(t *testing.T) {
	cfg := &config.Config{Version: "1.2.3", Env: "test"}
	handler := NewHealthHandler(cfg, nil, nil, nil)

	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp PingResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "1.2.3", resp.Version)
	assert.Equal(t, "ekaya-gateway", resp.Service)
	assert.Equal(t, "test", resp.Environment)
}
