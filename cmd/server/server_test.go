package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartwater-ai/smartwater-backend/internal/artifacts"
	"github.com/smartwater-ai/smartwater-backend/internal/auth"
	"github.com/smartwater-ai/smartwater-backend/internal/cache"
	"github.com/smartwater-ai/smartwater-backend/internal/config"
	"github.com/smartwater-ai/smartwater-backend/internal/dashboard"
	"github.com/smartwater-ai/smartwater-backend/internal/database"
	"github.com/smartwater-ai/smartwater-backend/internal/distribution"
	"github.com/smartwater-ai/smartwater-backend/internal/monitoring"
	"github.com/smartwater-ai/smartwater-backend/internal/quality"
	"github.com/smartwater-ai/smartwater-backend/internal/ratelimit"
	"github.com/smartwater-ai/smartwater-backend/internal/retrain"
)

// newTestApp wires a full application against a temporary database and an
// in-memory artifact snapshot whose models return fixed predictions.
func newTestApp(t *testing.T) (*application, *database.Repository) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := config.Config{
		Port:            "0",
		JWTSecret:       "test-secret",
		FrontendURL:     "http://localhost:3000",
		CacheCapacity:   16,
		CacheTTLMinutes: 1,
		Scoring:         config.DefaultScoring(),
	}

	db, err := database.NewDB(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	repo := database.NewRepository(db)

	leaf := func(name string, n int, value float64) *artifacts.Ensemble {
		return &artifacts.Ensemble{
			Name:        name,
			NumFeatures: n,
			Trees: []artifacts.Tree{
				{Nodes: []artifacts.Node{{Feature: -1, Value: value}}},
			},
		}
	}
	scaler := &artifacts.Scaler{
		Means:  make([]float64, 7),
		Scales: []float64{1, 1, 1, 1, 1, 1, 1},
	}
	store := artifacts.NewStore(t.TempDir())
	store.Swap(&artifacts.Snapshot{
		WQIRegressor:          leaf("wqi_regressor", 7, 80),
		WQIScaler:             scaler,
		EfficiencyRegressor:   leaf("efficiency_regressor", 5, 90),
		CriticalityClassifier: leaf("criticality_classifier", 5, 0),
		LoadedAt:              time.Now(),
	})

	metrics := monitoring.NewMetrics()
	appCache := cache.New(cfg.CacheCapacity, time.Minute)
	redisClient, err := ratelimit.NewRedisClient("", "", 0)
	require.NoError(t, err)

	authService := auth.NewService(repo, cfg.JWTSecret)
	worker := retrain.NewWorker(repo, store, metrics, 8)
	qualityScorer := quality.NewScorer(repo, store, appCache, worker, cfg.Scoring)
	distScorer := distribution.NewScorer(repo, store, appCache, cfg.Scoring)

	app := &application{
		cfg:            cfg,
		db:             db,
		repo:           repo,
		artifacts:      store,
		cache:          appCache,
		metrics:        metrics,
		logger:         monitoring.NewLogger(),
		limiter:        ratelimit.NewRateLimiter(redisClient, ratelimit.DefaultConfig(), metrics),
		auth:           authService,
		qualityScorer:  qualityScorer,
		qualityService: quality.NewService(repo, appCache, cfg.Scoring),
		distScorer:     distScorer,
		distService:    distribution.NewService(repo, appCache, distScorer, cfg.Scoring),
		dashboard:      dashboard.NewService(repo, appCache),
		retrain:        worker,
	}
	return app, repo
}

func seedAccount(t *testing.T, repo *database.Repository) {
	t.Helper()
	require.NoError(t, repo.UpsertMunicipal(&database.Municipal{
		MCCode:           "MC001",
		MCName:           "Pune Municipal Corporation",
		Population:       500000,
		TotalDemandMLD:   100,
		CurrentSupplyMLD: 80,
	}))
	require.NoError(t, repo.CreateUser(
		database.NewUser("operator", auth.HashPassword("secret123"), "MC001")))
	require.NoError(t, repo.AddHub("MC001", database.Hub{HubID: "HUB-01", HubName: "Aundh"}))
}

func doJSON(r http.Handler, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func login(t *testing.T, r http.Handler) string {
	t.Helper()
	w := doJSON(r, http.MethodPost, "/api/login", "", map[string]string{
		"username": "operator",
		"password": "secret123",
		"mc_code":  "MC001",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Token)
	return resp.Token
}

func TestHealthEndpoint(t *testing.T) {
	app, _ := newTestApp(t)
	r := app.buildRouter()

	w := doJSON(r, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp["status"])
	assert.Contains(t, resp, "artifacts")
	assert.Contains(t, resp, "metrics")
}

func TestLoginFlow(t *testing.T) {
	app, repo := newTestApp(t)
	seedAccount(t, repo)
	r := app.buildRouter()

	token := login(t, r)
	assert.NotEmpty(t, token)

	// Wrong password is rejected without detail.
	w := doJSON(r, http.MethodPost, "/api/login", "", map[string]string{
		"username": "operator",
		"password": "wrong",
		"mc_code":  "MC001",
	})
	assert.Equal(t, http.StatusForbidden, w.Code)

	// Missing fields fail validation.
	w = doJSON(r, http.MethodPost, "/api/login", "", map[string]string{
		"username": "operator",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	app, repo := newTestApp(t)
	seedAccount(t, repo)
	r := app.buildRouter()

	w := doJSON(r, http.MethodGet, "/api/dashboard/MC001", "", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	token := login(t, r)
	w = doJSON(r, http.MethodGet, "/api/dashboard/MC001", token, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	// A valid token for another MC's dashboard is rejected.
	w = doJSON(r, http.MethodGet, "/api/dashboard/MC002", token, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestPredictQualityEndToEnd(t *testing.T) {
	app, repo := newTestApp(t)
	seedAccount(t, repo)
	r := app.buildRouter()
	token := login(t, r)

	w := doJSON(r, http.MethodPost, "/api/predict-quality", token, map[string]interface{}{
		"mc_code": "MC001", "hub_id": "HUB-01",
		"temperature_min": 25.0, "temperature_max": 25.0,
		"ph_min": 7.0, "ph_max": 7.0,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		FinalWQI float64 `json:"final_wqi"`
		Category string  `json:"category"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	// 0.7 * 80 (model) + 0.3 * 100 (rule) = 86.
	assert.Equal(t, 86.0, resp.FinalWQI)
	assert.Equal(t, "Excellent", resp.Category)

	// The record is visible through the read API.
	w = doJSON(r, http.MethodGet, "/api/mc/MC001/quality-records", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		TotalRecords int `json:"total_records"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Equal(t, 1, list.TotalRecords)
}

func TestPredictDistributionEndToEnd(t *testing.T) {
	app, repo := newTestApp(t)
	seedAccount(t, repo)
	r := app.buildRouter()
	token := login(t, r)

	w := doJSON(r, http.MethodPost, "/api/predict-distribution", token, map[string]interface{}{
		"mc_code": "MC001", "hub_id": "HUB-01",
		"total_demand_mld": 100.0, "current_supply_mld": 80.0,
		"population": 500000,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		FinalEfficiency float64 `json:"final_efficiency"`
		Grade           string  `json:"performance_grade"`
		DeficitMLD      float64 `json:"deficit_mld"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 90.0, resp.FinalEfficiency)
	assert.Equal(t, "A (Excellent)", resp.Grade)
	assert.Equal(t, 20.0, resp.DeficitMLD)

	w = doJSON(r, http.MethodGet, "/api/mc/MC001/distribution-summary", token, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w = doJSON(r, http.MethodGet, "/api/mc/MC001/distribution-latest", token, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestMCScopedRoutesRejectForeignToken(t *testing.T) {
	app, repo := newTestApp(t)
	seedAccount(t, repo)
	r := app.buildRouter()
	token := login(t, r)

	for _, path := range []string{
		"/api/mc/MC002/hubs",
		"/api/mc/MC002/quality-records",
		"/api/mc/MC002/anomalies",
		"/api/mc/MC002/distribution-summary",
	} {
		w := doJSON(r, http.MethodGet, path, token, nil)
		assert.Equal(t, http.StatusForbidden, w.Code, path)
	}
}

func TestScoringRejectsForeignMCInBody(t *testing.T) {
	app, repo := newTestApp(t)
	seedAccount(t, repo)
	r := app.buildRouter()
	token := login(t, r)

	w := doJSON(r, http.MethodPost, "/api/predict-quality", token, map[string]interface{}{
		"mc_code": "MC002", "hub_id": "HUB-01",
	})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestPublicEndpoints(t *testing.T) {
	app, repo := newTestApp(t)
	seedAccount(t, repo)
	r := app.buildRouter()

	w := doJSON(r, http.MethodGet, "/api/municipal-list", "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var list struct {
		TotalMunicipals int `json:"total_municipals"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Equal(t, 1, list.TotalMunicipals)

	w = doJSON(r, http.MethodGet, "/api/public-overall-stats", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	app, _ := newTestApp(t)
	r := app.buildRouter()

	doJSON(r, http.MethodGet, "/health", "", nil)
	w := doJSON(r, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var stats map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.Contains(t, stats, "total_requests")
	assert.Contains(t, stats, "cache")
	assert.Contains(t, stats, "rate_limit")
}

func TestYearlyTrendEndpoints(t *testing.T) {
	app, repo := newTestApp(t)
	seedAccount(t, repo)
	r := app.buildRouter()
	token := login(t, r)

	// Empty data is a success with an empty trend map.
	w := doJSON(r, http.MethodGet, "/api/mc/MC001/yearly-trend", token, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Trend   map[string]interface{} `json:"yearly_trend"`
		Message string                 `json:"message"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Empty(t, resp.Trend)

	w = doJSON(r, http.MethodGet, "/api/mc/MC001/yearly-distribution-trend", token, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}
