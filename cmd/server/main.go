// Command server runs the SmartWater reporting backend: hybrid ML+rule
// scoring for water quality and distribution efficiency, per-MC dashboards
// and yearly trend analytics for Maharashtra municipal corporations.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/smartwater-ai/smartwater-backend/internal/artifacts"
	"github.com/smartwater-ai/smartwater-backend/internal/auth"
	"github.com/smartwater-ai/smartwater-backend/internal/cache"
	"github.com/smartwater-ai/smartwater-backend/internal/config"
	"github.com/smartwater-ai/smartwater-backend/internal/dashboard"
	"github.com/smartwater-ai/smartwater-backend/internal/database"
	"github.com/smartwater-ai/smartwater-backend/internal/distribution"
	"github.com/smartwater-ai/smartwater-backend/internal/errors"
	"github.com/smartwater-ai/smartwater-backend/internal/middleware"
	"github.com/smartwater-ai/smartwater-backend/internal/monitoring"
	"github.com/smartwater-ai/smartwater-backend/internal/quality"
	"github.com/smartwater-ai/smartwater-backend/internal/ratelimit"
	"github.com/smartwater-ai/smartwater-backend/internal/retrain"
	"github.com/smartwater-ai/smartwater-backend/internal/security"
	"github.com/smartwater-ai/smartwater-backend/internal/types"
)

// application bundles every service the router needs. Tests build one
// against a temporary database and an in-memory artifact snapshot.
type application struct {
	cfg       config.Config
	db        *database.DB
	repo      *database.Repository
	artifacts *artifacts.Store
	cache     *cache.Cache
	metrics   *monitoring.Metrics
	logger    *monitoring.Logger
	limiter   *ratelimit.RateLimiter
	auth      *auth.Service

	qualityScorer  *quality.Scorer
	qualityService *quality.Service
	distScorer     *distribution.Scorer
	distService    *distribution.Service
	dashboard      *dashboard.Service
	retrain        *retrain.Worker
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	appLogger := monitoring.NewLogger()
	slog.SetDefault(appLogger.Logger)

	db, err := database.NewDB(cfg.DataDir)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	repo := database.NewRepository(db)
	appMetrics := monitoring.NewMetrics()

	artifactStore := artifacts.NewStore(cfg.ArtifactsDir)
	if _, err := artifactStore.Load(); err != nil {
		// Scoring endpoints report artifact errors per request; the rest of
		// the API works without models.
		slog.Warn("Scoring artifacts unavailable at startup", "dir", cfg.ArtifactsDir, "error", err)
	}

	appCache := cache.New(cfg.CacheCapacity, time.Duration(cfg.CacheTTLMinutes)*time.Minute)

	redisClient, err := ratelimit.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		slog.Warn("Redis unavailable, rate limiting falls back to in-memory", "error", err)
	}
	limiter := ratelimit.NewRateLimiter(redisClient, ratelimit.DefaultConfig(), appMetrics)

	worker := retrain.NewWorker(repo, artifactStore, appMetrics, 64)
	workerCtx, stopWorker := context.WithCancel(context.Background())
	worker.Start(workerCtx)

	authService := auth.NewService(repo, cfg.JWTSecret)
	qualityScorer := quality.NewScorer(repo, artifactStore, appCache, worker, cfg.Scoring)
	qualityService := quality.NewService(repo, appCache, cfg.Scoring)
	distScorer := distribution.NewScorer(repo, artifactStore, appCache, cfg.Scoring)
	distService := distribution.NewService(repo, appCache, distScorer, cfg.Scoring)
	dashboardService := dashboard.NewService(repo, appCache)

	app := &application{
		cfg:            cfg,
		db:             db,
		repo:           repo,
		artifacts:      artifactStore,
		cache:          appCache,
		metrics:        appMetrics,
		logger:         appLogger,
		limiter:        limiter,
		auth:           authService,
		qualityScorer:  qualityScorer,
		qualityService: qualityService,
		distScorer:     distScorer,
		distService:    distService,
		dashboard:      dashboardService,
		retrain:        worker,
	}

	r := app.buildRouter()

	srv := &http.Server{
		Addr:    cfg.ListenAddr(),
		Handler: r,
	}

	go func() {
		slog.Info("Starting server", "addr", cfg.ListenAddr())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	stopWorker()
	worker.Wait()

	if err := redisClient.Close(); err != nil {
		slog.Warn("Failed to close Redis connection", "error", err)
	}

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Server exited")
}

// buildRouter assembles the middleware chain and every route.
func (app *application) buildRouter() *gin.Engine {
	r := gin.New()

	r.Use(middleware.Gzip(middleware.DefaultCompressionConfig()))

	// Monitoring first so every request is captured.
	r.Use(monitoring.MonitoringMiddleware(app.metrics, app.logger))

	r.Use(errors.ErrorHandler())
	r.Use(errors.RecoveryHandler())

	r.Use(security.SecurityHeadersMiddleware())

	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{app.cfg.FrontendURL},
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"X-RateLimit-Limit", "X-RateLimit-Remaining"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	r.Use(app.limiter.IPRateLimitMiddleware())

	r.GET("/health", app.handleHealth)
	r.GET("/metrics", app.handleMetrics)
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	api := r.Group("/api")

	// Public surface: no token required.
	api.POST("/login", app.handleLogin)
	api.GET("/municipal-list", app.handleMunicipalList)
	api.GET("/public-overall-stats", app.handleOverallStats)

	// Authenticated statewide surface.
	authed := api.Group("", auth.RequireAuth(app.auth))
	authed.GET("/db-test", app.handleDBTest)
	authed.GET("/overall-stats", app.handleOverallStats)
	authed.GET("/state-trends", app.handleStateTrends)
	authed.GET("/dashboard/:mc_code", app.handleDashboard)

	// Scoring: tighter per-IP budget on top of the general limit.
	scoring := authed.Group("", app.limiter.ScoringRateLimitMiddleware())
	scoring.POST("/predict-quality", app.handlePredictQuality)
	scoring.POST("/predict-distribution", app.handlePredictDistribution)

	// Per-MC surface: token MC must match the path MC.
	mc := authed.Group("/mc/:mc_code")
	mc.GET("/hubs", app.handleHubs)
	mc.GET("/quality-records", app.handleQualityRecords)
	mc.GET("/anomalies", app.handleAnomalies)
	mc.GET("/trend", app.handleQualityTrend)
	mc.GET("/yearly-trend", app.handleYearlyQualityTrend)
	mc.GET("/distribution-summary", app.handleDistributionSummary)
	mc.GET("/distribution-trend", app.handleDistributionTrend)
	mc.GET("/critical-summary", app.handleCriticalSummary)
	mc.GET("/distribution-latest", app.handleDistributionLatest)
	mc.GET("/yearly-distribution-trend", app.handleYearlyDistributionTrend)

	return r
}

func (app *application) handleHealth(c *gin.Context) {
	health := gin.H{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
		"version":   "1.0.0",
		"db_pool":   app.db.GetPoolStats(),
		"metrics":   app.metrics.GetStats(),
	}

	if snap := app.artifacts.Snapshot(); snap != nil {
		health["artifacts"] = gin.H{
			"quality_ready":      snap.QualityReady(),
			"distribution_ready": snap.DistributionReady(),
			"loaded_at":          snap.LoadedAt.Format(time.RFC3339),
		}
	} else {
		health["artifacts"] = gin.H{
			"quality_ready":      false,
			"distribution_ready": false,
		}
	}

	if err := app.repo.Ping(); err != nil {
		health["status"] = "degraded"
		c.JSON(http.StatusServiceUnavailable, health)
		return
	}

	c.JSON(http.StatusOK, health)
}

func (app *application) handleMetrics(c *gin.Context) {
	stats := app.metrics.GetStats()
	stats["cache"] = app.cache.Stats()
	stats["rate_limit"] = app.limiter.GetStats()
	c.JSON(http.StatusOK, stats)
}

func (app *application) handleLogin(c *gin.Context) {
	var req types.LoginRequest
	if err := c.ShouldBind(&req); err != nil {
		errors.Abort(c, errors.NewValidationError("Username, password and mc_code are required", err.Error()))
		return
	}

	result, err := app.auth.Login(req.Username, req.Password, req.MCCode)
	if err != nil {
		errors.Abort(c, err)
		return
	}

	c.JSON(http.StatusOK, types.LoginResponse{
		Status:      "success",
		Token:       result.Token,
		MCCode:      result.MCCode,
		MCName:      result.MCName,
		RedirectURL: "/dashboard/" + result.MCCode,
		Message:     "Login successful",
	})
}

func (app *application) handleMunicipalList(c *gin.Context) {
	list, err := app.dashboard.ListMunicipals()
	if err != nil {
		errors.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (app *application) handleDBTest(c *gin.Context) {
	if err := app.dashboard.CheckStore(); err != nil {
		errors.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":  "success",
		"message": "Database connection healthy",
	})
}

func (app *application) handleOverallStats(c *gin.Context) {
	stats, err := app.dashboard.GetOverallStats()
	if err != nil {
		errors.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (app *application) handleStateTrends(c *gin.Context) {
	trends, err := app.dashboard.GetStateTrends()
	if err != nil {
		errors.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, trends)
}

func (app *application) handleDashboard(c *gin.Context) {
	if _, ok := auth.RequireMC(c, c.Param("mc_code")); !ok {
		return
	}

	data, err := app.dashboard.GetMCDashboard(c.Param("mc_code"))
	if err != nil {
		errors.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, data)
}

func (app *application) handlePredictQuality(c *gin.Context) {
	identity, ok := auth.IdentityFrom(c)
	if !ok {
		errors.Abort(c, errors.NewAuthorizationError("Authentication required"))
		return
	}

	var input types.QualityInput
	if err := c.ShouldBindJSON(&input); err != nil {
		errors.Abort(c, errors.NewValidationError("Invalid quality prediction request", err.Error()))
		return
	}

	start := time.Now()
	result, err := app.qualityScorer.Score(identity.MCCode, input)
	if err != nil {
		errors.Abort(c, err)
		return
	}

	flagged := result.AnomalyStatus == quality.AnomalyDetected
	app.metrics.IncrementQualityScore(flagged)
	app.logger.ScoringLogger("quality", identity.MCCode, input.HubID, result.FinalWQI, flagged, time.Since(start))

	c.JSON(http.StatusOK, result)
}

func (app *application) handlePredictDistribution(c *gin.Context) {
	identity, ok := auth.IdentityFrom(c)
	if !ok {
		errors.Abort(c, errors.NewAuthorizationError("Authentication required"))
		return
	}

	var input types.DistributionInput
	if err := c.ShouldBindJSON(&input); err != nil {
		errors.Abort(c, errors.NewValidationError("Invalid distribution assessment request", err.Error()))
		return
	}

	start := time.Now()
	result, err := app.distScorer.Score(identity.MCCode, input)
	if err != nil {
		errors.Abort(c, err)
		return
	}

	app.metrics.IncrementDistributionScore(result.CriticalRisk)
	app.logger.ScoringLogger("distribution", identity.MCCode, input.HubID, result.FinalEfficiency, result.CriticalRisk, time.Since(start))

	c.JSON(http.StatusOK, result)
}

func (app *application) handleHubs(c *gin.Context) {
	mcCode := c.Param("mc_code")
	if _, ok := auth.RequireMC(c, mcCode); !ok {
		return
	}

	hubs, err := app.qualityService.GetHubs(mcCode)
	if err != nil {
		errors.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, hubs)
}

func (app *application) handleQualityRecords(c *gin.Context) {
	mcCode := c.Param("mc_code")
	if _, ok := auth.RequireMC(c, mcCode); !ok {
		return
	}

	records, err := app.qualityService.GetRecords(mcCode, c.Query("hub_id"))
	if err != nil {
		errors.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, records)
}

func (app *application) handleAnomalies(c *gin.Context) {
	mcCode := c.Param("mc_code")
	if _, ok := auth.RequireMC(c, mcCode); !ok {
		return
	}

	anomalies, err := app.qualityService.GetAnomalies(mcCode, c.Query("hub_id"))
	if err != nil {
		errors.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, anomalies)
}

func (app *application) handleQualityTrend(c *gin.Context) {
	mcCode := c.Param("mc_code")
	if _, ok := auth.RequireMC(c, mcCode); !ok {
		return
	}

	trend, err := app.qualityService.GetTrend(mcCode, c.Query("hub_id"))
	if err != nil {
		errors.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, trend)
}

func (app *application) handleYearlyQualityTrend(c *gin.Context) {
	mcCode := c.Param("mc_code")
	if _, ok := auth.RequireMC(c, mcCode); !ok {
		return
	}

	trend, err := app.qualityService.GetYearlyTrend(mcCode, c.Query("hub_id"))
	if err != nil {
		errors.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, trend)
}

func (app *application) handleDistributionSummary(c *gin.Context) {
	mcCode := c.Param("mc_code")
	if _, ok := auth.RequireMC(c, mcCode); !ok {
		return
	}

	summary, err := app.distService.GetSummary(mcCode)
	if err != nil {
		errors.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (app *application) handleDistributionTrend(c *gin.Context) {
	mcCode := c.Param("mc_code")
	if _, ok := auth.RequireMC(c, mcCode); !ok {
		return
	}

	trend, err := app.distService.GetTrend(mcCode, c.Query("hub_id"))
	if err != nil {
		errors.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, trend)
}

func (app *application) handleCriticalSummary(c *gin.Context) {
	mcCode := c.Param("mc_code")
	if _, ok := auth.RequireMC(c, mcCode); !ok {
		return
	}

	summary, err := app.distService.GetCriticalSummary(mcCode)
	if err != nil {
		errors.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (app *application) handleDistributionLatest(c *gin.Context) {
	mcCode := c.Param("mc_code")
	if _, ok := auth.RequireMC(c, mcCode); !ok {
		return
	}

	latest, err := app.distService.GetLatest(mcCode)
	if err != nil {
		errors.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, latest)
}

func (app *application) handleYearlyDistributionTrend(c *gin.Context) {
	mcCode := c.Param("mc_code")
	if _, ok := auth.RequireMC(c, mcCode); !ok {
		return
	}

	trend, err := app.distService.GetYearlyTrend(mcCode, c.Query("hub_id"))
	if err != nil {
		errors.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, trend)
}
