package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds environment-driven settings for the backend.
type Config struct {
	Port          string
	DataDir       string
	ArtifactsDir  string
	JWTSecret     string
	FrontendURL   string
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	CacheCapacity   int
	CacheTTLMinutes int

	Scoring ScoringConfig
}

// ScoringConfig collects the tunable constants of the scoring and trend
// pipelines. The blend ratio and every category threshold were hand-tuned
// against historical Maharashtra data; they are kept configurable rather
// than hard-coded because their derivation is not reproducible from code.
type ScoringConfig struct {
	// Hybrid WQI blend: final = ModelWeight*model + RuleWeight*rule.
	ModelWeight float64
	RuleWeight  float64

	// Quality category ladder, highest first: Excellent/Good/Moderate/Poor.
	QualityThresholds [4]float64

	// Severe-contamination override limits.
	OverrideMaxPH             float64
	OverrideMinBOD            float64
	OverrideMinFaecalColiform float64
	OverrideWQICap            float64

	// Distribution grade ladder, highest first: A/B/C/D.
	EfficiencyThresholds [4]float64

	// Trend engine.
	TrendEpochYear     int
	TrendDeltaBand     float64
	TrendLongTermBand  float64
	TrendRollingWindow int
}

// DefaultScoring returns the scoring constants used in production.
func DefaultScoring() ScoringConfig {
	return ScoringConfig{
		ModelWeight:               0.7,
		RuleWeight:                0.3,
		QualityThresholds:         [4]float64{80, 65, 50, 30},
		OverrideMaxPH:             5.5,
		OverrideMinBOD:            20,
		OverrideMinFaecalColiform: 5000,
		OverrideWQICap:            35,
		EfficiencyThresholds:      [4]float64{85, 70, 55, 40},
		TrendEpochYear:            2018,
		TrendDeltaBand:            1.0,
		TrendLongTermBand:         2.0,
		TrendRollingWindow:        3,
	}
}

// Load reads configuration from environment variables (optionally .env).
func Load() (Config, error) {
	_ = godotenv.Load() // ignore missing file

	cfg := Config{
		Port:            getEnvOrDefault("PORT", "8080"),
		DataDir:         getEnvOrDefault("DATA_DIR", "./data"),
		ArtifactsDir:    getEnvOrDefault("ARTIFACTS_DIR", "./artifacts"),
		JWTSecret:       getEnvOrDefault("JWT_SECRET", "change-me-in-production"),
		FrontendURL:     getEnvOrDefault("FRONTEND_URL", "http://localhost:3000"),
		RedisAddr:       os.Getenv("REDIS_ADDR"),
		RedisPassword:   os.Getenv("REDIS_PASSWORD"),
		CacheCapacity:   128,
		CacheTTLMinutes: 15,
		Scoring:         DefaultScoring(),
	}

	if dbStr := os.Getenv("REDIS_DB"); dbStr != "" {
		db, err := strconv.Atoi(dbStr)
		if err != nil {
			return cfg, fmt.Errorf("invalid REDIS_DB: %s", dbStr)
		}
		cfg.RedisDB = db
	}

	if capStr := os.Getenv("CACHE_CAPACITY"); capStr != "" {
		capacity, err := strconv.Atoi(capStr)
		if err != nil || capacity <= 0 {
			return cfg, fmt.Errorf("invalid CACHE_CAPACITY: %s", capStr)
		}
		cfg.CacheCapacity = capacity
	}

	if ttlStr := os.Getenv("CACHE_TTL_MINUTES"); ttlStr != "" {
		ttl, err := strconv.Atoi(ttlStr)
		if err != nil || ttl <= 0 {
			return cfg, fmt.Errorf("invalid CACHE_TTL_MINUTES: %s", ttlStr)
		}
		cfg.CacheTTLMinutes = ttl
	}

	return cfg, nil
}

// ListenAddr returns the host:port string for the HTTP server.
func (c Config) ListenAddr() string {
	return ":" + c.Port
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
