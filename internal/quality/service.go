package quality

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

// Service serves the read-side quality endpoints: hub listings, stored
// records, anomaly summaries and trends. Aggregate reads fail open with
// empty results when the store errors.
type Service struct {
	repo  *database.Repository
	cache *cache.Cache
	cfg   config.ScoringConfig
}

// NewService creates the quality read service.
func NewService(repo *database.Repository, c *cache.Cache, cfg config.ScoringConfig) *Service {
	return &Service{repo: repo, cache: c, cfg: cfg}
}

// HubList is the hubs-per-MC response.
type HubList struct {
	MCCode    string         `json:"mc_code"`
	TotalHubs int            `json:"total_hubs"`
	Hubs      []database.Hub `json:"hubs"`
	Message   string         `json:"message"`
}

// GetHubs lists the hubs mapped to an MC.
func (s *Service) GetHubs(mcCode string) (*HubList, error) {
	hubs, err := s.repo.GetHubsForMC(mcCode)
	if err != nil {
		return nil, apperrors.NewStoreError("Failed to fetch hubs", err)
	}
	if len(hubs) == 0 {
		return nil, apperrors.NewNotFoundError("No hubs found for this MC")
	}

	return &HubList{
		MCCode:    mcCode,
		TotalHubs: len(hubs),
		Hubs:      hubs,
		Message:   "Hubs fetched successfully",
	}, nil
}

// RecordList is the stored-records response.
type RecordList struct {
	MCCode       string                   `json:"mc_code"`
	HubFilter    string                   `json:"hub_filter"`
	TotalRecords int                      `json:"total_records"`
	Records      []database.QualityRecord `json:"records"`
	Message      string                   `json:"message"`
}

// GetRecords lists an MC's quality records, optionally filtered by hub.
func (s *Service) GetRecords(mcCode, hubID string) (*RecordList, error) {
	records, err := s.repo.GetQualityRecords(mcCode, hubID)
	if err != nil {
		slog.Error("Quality records query failed", "mc_code", mcCode, "error", err)
		records = nil
	}
	if len(records) == 0 {
		return nil, apperrors.NewNotFoundError("No quality records found for this MC")
	}

	return &RecordList{
		MCCode:       mcCode,
		HubFilter:    hubFilter(hubID),
		TotalRecords: len(records),
		Records:      records,
		Message:      "Quality records fetched successfully",
	}, nil
}

// AnomalySummary lists detected anomalies for an MC or hub.
type AnomalySummary struct {
	MCCode         string                   `json:"mc_code"`
	HubFilter      string                   `json:"hub_filter"`
	TotalAnomalies int                      `json:"total_anomalies"`
	Records        []database.QualityRecord `json:"records"`
	Message        string                   `json:"message"`
}

// GetAnomalies returns the records flagged by the anomaly detector, newest
// first. An empty result is a success, not an error.
func (s *Service) GetAnomalies(mcCode, hubID string) (*AnomalySummary, error) {
	records, err := s.repo.GetQualityRecords(mcCode, hubID)
	if err != nil {
		slog.Error("Anomaly summary query failed", "mc_code", mcCode, "error", err)
		records = nil
	}

	var anomalies []database.QualityRecord
	for _, rec := range records {
		if rec.AnomalyStatus == AnomalyDetected {
			anomalies = append(anomalies, rec)
		}
	}

	message := "No anomalies detected"
	if len(anomalies) > 0 {
		message = fmt.Sprintf("%d anomalies detected", len(anomalies))
	}

	return &AnomalySummary{
		MCCode:         mcCode,
		HubFilter:      hubFilter(hubID),
		TotalAnomalies: len(anomalies),
		Records:        anomalies,
		Message:        message,
	}, nil
}

// TrendSummary is the flat per-hub WQI trend response.
type TrendSummary struct {
	MCCode       string              `json:"mc_code"`
	HubFilter    string              `json:"hub_filter"`
	TrendSummary map[string]HubTrend `json:"trend_summary"`
	Message      string              `json:"message"`
}

// HubTrend is the flat aggregate plus raw records for one hub.
type HubTrend struct {
	TotalRecords int                      `json:"total_records"`
	AverageWQI   trend.Float              `json:"average_wqi"`
	AnomalyCount int                      `json:"anomaly_count"`
	Records      []database.QualityRecord `json:"records"`
}

// GetTrend groups the MC's records per hub with WQI averages and anomaly
// counts, cached per (MC, hub).
func (s *Service) GetTrend(mcCode, hubID string) (*TrendSummary, error) {
	key := cache.Key{Operation: "quality-trend", MCCode: mcCode, HubID: hubID}
	if cached, ok := s.cache.Get(key); ok {
		return cached.(*TrendSummary), nil
	}

	records, err := s.repo.GetQualityRecords(mcCode, hubID)
	if err != nil {
		slog.Error("Quality trend query failed", "mc_code", mcCode, "error", err)
		records = nil
	}
	if len(records) == 0 {
		return nil, apperrors.NewNotFoundError("No records found for trend analysis")
	}

	byHub := make(map[string][]database.QualityRecord)
	for _, rec := range records {
		byHub[rec.HubID] = append(byHub[rec.HubID], rec)
	}

	summary := make(map[string]HubTrend, len(byHub))
	for hub, hubRecords := range byHub {
		var wqiSum float64
		anomalies := 0
		for _, rec := range hubRecords {
			wqiSum += rec.WQI
			if rec.AnomalyStatus == AnomalyDetected {
				anomalies++
			}
		}
		summary[hub] = HubTrend{
			TotalRecords: len(hubRecords),
			AverageWQI:   trend.Float(trend.Round2(wqiSum / float64(len(hubRecords)))),
			AnomalyCount: anomalies,
			Records:      hubRecords,
		}
	}

	result := &TrendSummary{
		MCCode:       mcCode,
		HubFilter:    hubFilter(hubID),
		TrendSummary: summary,
		Message:      "Trend summary generated successfully",
	}
	s.cache.Set(key, result)
	return result, nil
}

// YearlyTrend is the yearly WQI trend response.
type YearlyTrend struct {
	MCCode    string                      `json:"mc_code"`
	HubFilter string                      `json:"hub_filter"`
	Trend     map[string]trend.HubSummary `json:"yearly_trend"`
	Message   string                      `json:"message"`
}

// GetYearlyTrend runs the yearly trend engine over the MC's WQI records.
// Absent data yields an empty map, not an error.
func (s *Service) GetYearlyTrend(mcCode, hubID string) (*YearlyTrend, error) {
	key := cache.Key{Operation: "yearly-quality-trend", MCCode: mcCode, HubID: hubID}
	if cached, ok := s.cache.Get(key); ok {
		return cached.(*YearlyTrend), nil
	}

	records, err := s.repo.GetQualityRecords(mcCode, hubID)
	if err != nil {
		slog.Error("Yearly quality trend query failed", "mc_code", mcCode, "error", err)
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
			Value:     rec.WQI,
			Flagged:   rec.AnomalyStatus == AnomalyDetected,
			CreatedAt: rec.CreatedAt,
		}
	}

	result.Trend = trend.Compute(points, trend.Options{
		EpochYear:    s.cfg.TrendEpochYear,
		CurrentYear:  time.Now().Year(),
		DeltaBand:    s.cfg.TrendDeltaBand,
		LongTermBand: s.cfg.TrendLongTermBand,
		Window:       s.cfg.TrendRollingWindow,
	})
	result.Message = "Yearly trend generated successfully"

	s.cache.Set(key, result)
	return result, nil
}

func hubFilter(hubID string) string {
	if hubID == "" {
		return "All Hubs"
	}
	return hubID
}
