package distribution

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/smartwater-ai/smartwater-backend/internal/cache"
	"github.com/smartwater-ai/smartwater-backend/internal/config"
	"github.com/smartwater-ai/smartwater-backend/internal/database"
	apperrors "github.com/smartwater-ai/smartwater-backend/internal/errors"
	"github.com/smartwater-ai/smartwater-backend/internal/trend"
)

// Service serves the read-side distribution endpoints: summaries, trends,
// critical events and the latest snapshot. Aggregate reads fail open with
// empty results when the store errors; the failure is logged.
type Service struct {
	repo   *database.Repository
	cache  *cache.Cache
	scorer *Scorer
	cfg    config.ScoringConfig
}

// NewService creates the distribution read service.
func NewService(repo *database.Repository, c *cache.Cache, scorer *Scorer, cfg config.ScoringConfig) *Service {
	return &Service{repo: repo, cache: c, scorer: scorer, cfg: cfg}
}

// Summary is the per-MC distribution aggregate.
type Summary struct {
	MCCode            string      `json:"mc_code"`
	AverageEfficiency trend.Float `json:"average_supply_efficiency"`
	TotalCriticalHubs int         `json:"total_critical_hubs"`
	TotalRecords      int         `json:"total_records"`
	TotalDeficitMLD   trend.Float `json:"total_deficit_mld"`
	Message           string      `json:"message"`
}

// GetSummary aggregates the MC's distribution records, cached per MC.
func (s *Service) GetSummary(mcCode string) (*Summary, error) {
	key := cache.Key{Operation: "distribution-summary", MCCode: mcCode}
	if cached, ok := s.cache.Get(key); ok {
		return cached.(*Summary), nil
	}

	records, err := s.repo.GetDistributionRecords(mcCode, "")
	if err != nil {
		slog.Error("Distribution summary query failed", "mc_code", mcCode, "error", err)
		records = nil
	}
	if len(records) == 0 {
		return nil, apperrors.NewNotFoundError("No summary data available")
	}

	var effSum, deficitSum float64
	criticalHubs := make(map[string]struct{})
	for _, rec := range records {
		effSum += rec.PredictedEfficiency
		deficitSum += rec.DeficitMLD
		if rec.CriticalRisk {
			criticalHubs[rec.HubID] = struct{}{}
		}
	}

	summary := &Summary{
		MCCode:            mcCode,
		AverageEfficiency: trend.Float(trend.Round2(effSum / float64(len(records)))),
		TotalCriticalHubs: len(criticalHubs),
		TotalRecords:      len(records),
		TotalDeficitMLD:   trend.Float(trend.Round2(deficitSum)),
		Message:           "Distribution summary calculated successfully",
	}
	s.cache.Set(key, summary)
	return summary, nil
}

// TrendSummary is the flat per-hub trend response.
type TrendSummary struct {
	MCCode       string                           `json:"mc_code"`
	HubFilter    string                           `json:"hub_filter"`
	TrendSummary map[string]HubTrend              `json:"trend_summary"`
	Message      string                           `json:"message"`
}

// HubTrend is the flat aggregate plus raw records for one hub.
type HubTrend struct {
	TotalRecords      int                           `json:"total_records"`
	AverageEfficiency trend.Float                   `json:"average_efficiency"`
	CriticalCount     int                           `json:"critical_count"`
	Records           []database.DistributionRecord `json:"records"`
}

// GetTrend groups the MC's records per hub with averages and critical counts.
func (s *Service) GetTrend(mcCode, hubID string) (*TrendSummary, error) {
	records, err := s.repo.GetDistributionRecords(mcCode, hubID)
	if err != nil {
		slog.Error("Distribution trend query failed", "mc_code", mcCode, "error", err)
		records = nil
	}
	if len(records) == 0 {
		return nil, apperrors.NewNotFoundError("No distribution records found for trend analysis")
	}

	byHub := make(map[string][]database.DistributionRecord)
	for _, rec := range records {
		byHub[rec.HubID] = append(byHub[rec.HubID], rec)
	}

	summary := make(map[string]HubTrend, len(byHub))
	for hub, hubRecords := range byHub {
		var effSum float64
		critical := 0
		for _, rec := range hubRecords {
			effSum += rec.PredictedEfficiency
			if rec.CriticalRisk {
				critical++
			}
		}
		summary[hub] = HubTrend{
			TotalRecords:      len(hubRecords),
			AverageEfficiency: trend.Float(trend.Round2(effSum / float64(len(hubRecords)))),
			CriticalCount:     critical,
			Records:           hubRecords,
		}
	}

	return &TrendSummary{
		MCCode:       mcCode,
		HubFilter:    hubFilter(hubID),
		TrendSummary: summary,
		Message:      "Distribution trend summary generated",
	}, nil
}

// CriticalSummary lists the MC's critical-risk events.
type CriticalSummary struct {
	MCCode         string                        `json:"mc_code"`
	TotalCritical  int                           `json:"total_critical_instances"`
	Records        []database.DistributionRecord `json:"records"`
	Message        string                        `json:"message"`
}

// GetCriticalSummary returns critical-risk records newest first, cached per MC.
func (s *Service) GetCriticalSummary(mcCode string) (*CriticalSummary, error) {
	key := cache.Key{Operation: "critical-summary", MCCode: mcCode}
	if cached, ok := s.cache.Get(key); ok {
		return cached.(*CriticalSummary), nil
	}

	records, err := s.repo.GetDistributionRecords(mcCode, "")
	if err != nil {
		slog.Error("Critical summary query failed", "mc_code", mcCode, "error", err)
		records = nil
	}

	var critical []database.DistributionRecord
	for _, rec := range records {
		if rec.CriticalRisk {
			critical = append(critical, rec)
		}
	}

	message := "No critical risk hubs detected"
	if len(critical) > 0 {
		message = fmt.Sprintf("%d critical risk events recorded", len(critical))
	}

	summary := &CriticalSummary{
		MCCode:        mcCode,
		TotalCritical: len(critical),
		Records:       critical,
		Message:       message,
	}
	s.cache.Set(key, summary)
	return summary, nil
}

// LatestSnapshot is the newest distribution state per MC.
type LatestSnapshot struct {
	MCCode  string                        `json:"mc_code"`
	Records []database.DistributionRecord `json:"latest_records"`
	Message string                        `json:"message"`
}

// GetLatest returns the records from the MC's most recent scoring batch.
func (s *Service) GetLatest(mcCode string) (*LatestSnapshot, error) {
	records, err := s.repo.GetLatestDistributionRecords(mcCode)
	if err != nil {
		slog.Error("Latest distribution query failed", "mc_code", mcCode, "error", err)
		records = nil
	}
	if len(records) == 0 {
		return nil, apperrors.NewNotFoundError("No recent distribution records found for this MC")
	}

	return &LatestSnapshot{
		MCCode:  mcCode,
		Records: records,
		Message: "Latest distribution data fetched successfully",
	}, nil
}

// YearlyTrend is the yearly distribution trend response.
type YearlyTrend struct {
	MCCode    string                      `json:"mc_code"`
	HubFilter string                      `json:"hub_filter"`
	Trend     map[string]trend.HubSummary `json:"yearly_distribution_trend"`
	Message   string                      `json:"message"`
}

// GetYearlyTrend runs the yearly trend engine over the MC's records, with
// per-year performance grades. Absent data yields an empty map, not an error.
func (s *Service) GetYearlyTrend(mcCode, hubID string) (*YearlyTrend, error) {
	key := cache.Key{Operation: "yearly-distribution-trend", MCCode: mcCode, HubID: hubID}
	if cached, ok := s.cache.Get(key); ok {
		return cached.(*YearlyTrend), nil
	}

	records, err := s.repo.GetDistributionRecords(mcCode, hubID)
	if err != nil {
		slog.Error("Yearly distribution trend query failed", "mc_code", mcCode, "error", err)
		records = nil
	}

	result := &YearlyTrend{
		MCCode:    mcCode,
		HubFilter: hubFilter(hubID),
		Trend:     map[string]trend.HubSummary{},
		Message:   "No records found for yearly trend",
	}
	if len(records) == 0 {
		return result, nil
	}

	points := make([]trend.Point, len(records))
	for i, rec := range records {
		points[i] = trend.Point{
			Hub:       rec.HubID,
			Value:     rec.PredictedEfficiency,
			Flagged:   rec.CriticalRisk,
			CreatedAt: rec.CreatedAt,
		}
	}

	result.Trend = trend.Compute(points, trend.Options{
		EpochYear:    s.cfg.TrendEpochYear,
		CurrentYear:  time.Now().Year(),
		DeltaBand:    s.cfg.TrendDeltaBand,
		LongTermBand: s.cfg.TrendLongTermBand,
		Window:       s.cfg.TrendRollingWindow,
		GradeFn:      s.scorer.GradeFor,
	})
	result.Message = "Yearly distribution trend generated successfully"

	s.cache.Set(key, result)
	return result, nil
}

func hubFilter(hubID string) string {
	if hubID == "" {
		return "All Hubs"
	}
	return hubID
}
