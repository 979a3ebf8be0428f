// Package dashboard serves the statewide and per-MC dashboard endpoints
// plus the public aggregate surface.
package dashboard

import (
	"database/sql"
	"errors"
	"log/slog"

	"github.com/smartwater-ai/smartwater-backend/internal/cache"
	"github.com/smartwater-ai/smartwater-backend/internal/database"
	apperrors "github.com/smartwater-ai/smartwater-backend/internal/errors"
	"github.com/smartwater-ai/smartwater-backend/internal/trend"
)

// Service aggregates across municipals and both record tables.
type Service struct {
	repo  *database.Repository
	cache *cache.Cache
}

// NewService creates the dashboard service.
func NewService(repo *database.Repository, c *cache.Cache) *Service {
	return &Service{repo: repo, cache: c}
}

// MunicipalList is the public MC directory.
type MunicipalList struct {
	TotalMunicipals int                  `json:"total_municipals"`
	Municipals      []database.Municipal `json:"municipals"`
}

// ListMunicipals returns all MCs ordered by name.
func (s *Service) ListMunicipals() (*MunicipalList, error) {
	municipals, err := s.repo.ListMunicipals()
	if err != nil {
		return nil, apperrors.NewStoreError("Failed to list municipal corporations", err)
	}
	if len(municipals) == 0 {
		return nil, apperrors.NewNotFoundError("No municipal data found")
	}
	return &MunicipalList{TotalMunicipals: len(municipals), Municipals: municipals}, nil
}

// MCDashboard is the per-MC dashboard payload.
type MCDashboard struct {
	MunicipalInfo *database.Municipal `json:"municipal_info"`
	ConnectedHubs []database.Hub      `json:"connected_hubs"`
	Message       string              `json:"message"`
}

// GetMCDashboard returns municipal info and connected hubs for one MC.
func (s *Service) GetMCDashboard(mcCode string) (*MCDashboard, error) {
	municipal, err := s.repo.GetMunicipal(mcCode)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewNotFoundError("Municipal Corporation not found")
	}
	if err != nil {
		return nil, apperrors.NewStoreError("Failed to fetch municipal info", err)
	}

	hubs, err := s.repo.GetHubsForMC(mcCode)
	if err != nil {
		slog.Error("Hub listing failed for dashboard", "mc_code", mcCode, "error", err)
		hubs = nil
	}
	if hubs == nil {
		hubs = []database.Hub{}
	}

	return &MCDashboard{
		MunicipalInfo: municipal,
		ConnectedHubs: hubs,
		Message:       "Dashboard data for " + municipal.MCName,
	}, nil
}

// OverallStats is the statewide aggregate with JSON-safe averages.
type OverallStats struct {
	TotalMunicipals   int          `json:"total_municipal_corporations"`
	TotalPopulation   int64        `json:"total_population"`
	AverageWQI        *trend.Float `json:"average_wqi"`
	AverageEfficiency *trend.Float `json:"average_distribution_efficiency"`
	TotalAnomalies    int          `json:"total_anomalies"`
	TotalCriticalHubs int          `json:"total_critical_hubs"`
	LastUpdated       string       `json:"last_updated,omitempty"`
	Message           string       `json:"message"`
}

// GetOverallStats aggregates statewide figures, cached globally.
func (s *Service) GetOverallStats() (*OverallStats, error) {
	key := cache.Key{Operation: "overall-stats"}
	if cached, ok := s.cache.Get(key); ok {
		return cached.(*OverallStats), nil
	}

	raw, err := s.repo.GetOverallStats()
	if err != nil {
		return nil, apperrors.NewStoreError("Failed to compute overall statistics", err)
	}

	stats := &OverallStats{
		TotalMunicipals:   raw.TotalMunicipals,
		TotalPopulation:   raw.TotalPopulation,
		TotalAnomalies:    raw.TotalAnomalies,
		TotalCriticalHubs: raw.TotalCriticalHubs,
		Message:           "Overall water statistics fetched successfully",
	}
	if raw.AverageWQI != nil {
		stats.AverageWQI = trend.Float(trend.Round2(*raw.AverageWQI)).Ptr()
	}
	if raw.AverageEfficiency != nil {
		stats.AverageEfficiency = trend.Float(trend.Round2(*raw.AverageEfficiency)).Ptr()
	}
	if raw.LastUpdated != nil {
		stats.LastUpdated = raw.LastUpdated.Format("2006-01-02 15:04:05")
	}

	s.cache.Set(key, stats)
	return stats, nil
}

// StateTrends is the year-wise statewide trend across both record tables.
type StateTrends struct {
	TrendData []database.StateTrendRow `json:"trend_data"`
	Message   string                   `json:"message"`
}

// GetStateTrends aggregates WQI and efficiency by year, cached globally.
func (s *Service) GetStateTrends() (*StateTrends, error) {
	key := cache.Key{Operation: "state-trends"}
	if cached, ok := s.cache.Get(key); ok {
		return cached.(*StateTrends), nil
	}

	rows, err := s.repo.GetStateTrends()
	if err != nil {
		return nil, apperrors.NewStoreError("Failed to compute state trends", err)
	}
	if len(rows) == 0 {
		return nil, apperrors.NewNotFoundError("No trend data found")
	}

	trends := &StateTrends{
		TrendData: rows,
		Message:   "State-level yearly trend data generated successfully",
	}
	s.cache.Set(key, trends)
	return trends, nil
}

// CheckStore verifies database connectivity for the db-test endpoint.
func (s *Service) CheckStore() error {
	if err := s.repo.Ping(); err != nil {
		return apperrors.NewStoreError("Database connection failed", err)
	}
	return nil
}
