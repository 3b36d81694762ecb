// internal/api/handler_test.go
package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/reqtune/reqtune/internal/analysis"
	"github.com/reqtune/reqtune/internal/engine"
	"github.com/reqtune/reqtune/internal/metrics"
	"github.com/reqtune/reqtune/internal/strategy"
)

func newTestRouter(t *testing.T) (*chi.Mux, *engine.Engine) {
	t.Helper()

	logger := zap.NewNop()
	store := metrics.NewStore(100, 0.3, logger)
	table := analysis.NewTable(100, store, logger)

	caching := strategy.NewCaching(0.3, 10, logger)
	batching := strategy.NewBatching(2, 100, 50*time.Millisecond, logger)
	learning := strategy.NewLearning(2, 100, logger)

	registry := strategy.NewRegistry()
	registry.Register(strategy.OpCaching, caching)
	registry.Register(strategy.OpBatching, batching)

	eng, err := engine.New(engine.DefaultOptions(), engine.Deps{
		Table:    table,
		Store:    store,
		Caching:  caching,
		Batching: batching,
		Learning: learning,
		Registry: registry,
		Logger:   logger,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = eng.Close() })

	r := chi.NewRouter()
	NewHandler(eng, logger).RegisterRoutes(r)
	return r, eng
}

func TestGetHealth(t *testing.T) {
	r, _ := newTestRouter(t)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Healthy bool    `json:"healthy"`
		Score   float64 `json:"score"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.Healthy)
	assert.Greater(t, body.Score, 0.0)
}

func TestGetInsights(t *testing.T) {
	r, eng := newTestRouter(t)

	_, err := eng.AnalyzeRequest(httptest.NewRequest(http.MethodGet, "/", nil).Context(),
		"orders", &analysis.ExecutionMetrics{
			AverageLatency:       100 * time.Millisecond,
			TotalExecutions:      50,
			SuccessfulExecutions: 50,
			ConcurrentExecutions: 4,
		})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/insights?window=30m", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Window          time.Duration `json:"window"`
		TopRequestTypes []struct {
			RequestType string `json:"request_type"`
		} `json:"top_request_types"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 30*time.Minute, body.Window)
	require.Len(t, body.TopRequestTypes, 1)
	assert.Equal(t, "orders", body.TopRequestTypes[0].RequestType)
}

func TestGetInsightsRejectsBadWindow(t *testing.T) {
	r, _ := newTestRouter(t)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/insights?window=banana", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/insights?window=-5m", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetModelStats(t *testing.T) {
	r, _ := newTestRouter(t)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/model/stats", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		ModelVersion int `json:"model_version"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 0, body.ModelVersion)
}

func TestEndpointsAfterEngineClose(t *testing.T) {
	r, eng := newTestRouter(t)
	require.NoError(t, eng.Close())

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/model/stats", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
