package quality

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/smartwater-ai/smartwater-backend/internal/artifacts"
	"github.com/smartwater-ai/smartwater-backend/internal/cache"
	"github.com/smartwater-ai/smartwater-backend/internal/config"
	"github.com/smartwater-ai/smartwater-backend/internal/database"
	apperrors "github.com/smartwater-ai/smartwater-backend/internal/errors"
	"github.com/smartwater-ai/smartwater-backend/internal/types"
)

// Category labels, best to worst.
const (
	CategoryExcellent = "Excellent"
	CategoryGood      = "Good"
	CategoryModerate  = "Moderate"
	CategoryPoor      = "Poor"
	CategoryVeryPoor  = "Very Poor"

	AnomalyDetected = "Anomaly Detected"
	AnomalyNormal   = "Normal"
)

// RetrainEnqueuer accepts best-effort retrain requests after each persisted
// record. Enqueue must never block the request path.
type RetrainEnqueuer interface {
	Enqueue(reason string)
}

// Scorer runs the hybrid quality pipeline: rule WQI, model WQI, blend,
// categorization, severe-contamination override, anomaly detection, persist.
type Scorer struct {
	repo      *database.Repository
	artifacts *artifacts.Store
	cache     *cache.Cache
	retrain   RetrainEnqueuer
	cfg       config.ScoringConfig
}

// NewScorer creates the quality scorer.
func NewScorer(repo *database.Repository, store *artifacts.Store, c *cache.Cache, retrain RetrainEnqueuer, cfg config.ScoringConfig) *Scorer {
	return &Scorer{repo: repo, artifacts: store, cache: c, retrain: retrain, cfg: cfg}
}

// Score runs the full pipeline for one authenticated request. callerMC is
// the MC code carried by the caller's token.
func (s *Scorer) Score(callerMC string, input types.QualityInput) (*types.QualityResult, error) {
	if input.MCCode != callerMC {
		return nil, apperrors.NewAuthorizationError("Access denied: not authorized for this municipal corporation")
	}
	if err := validateInput(input); err != nil {
		return nil, err
	}

	features := midpoints(input)

	snap := s.artifacts.Snapshot()
	if !snap.QualityReady() {
		return nil, apperrors.NewArtifactError("Water quality model artifacts are not loaded", nil)
	}

	scaled, err := snap.WQIScaler.Transform(features.Vector())
	if err != nil {
		return nil, apperrors.NewArtifactError("Failed to scale quality features", err)
	}
	modelWQI, err := snap.WQIRegressor.Predict(scaled)
	if err != nil {
		return nil, apperrors.NewArtifactError("Failed to predict water quality index", err)
	}

	ruleWQI := ComputeRuleWQI(features)
	finalWQI := round2(modelWQI*s.cfg.ModelWeight + ruleWQI*s.cfg.RuleWeight)

	category, interpretation, action := s.categorize(finalWQI)

	// Severe contamination overrides whatever the blend produced. Checked
	// against the raw midpoints, not the capped values.
	if features.PH < s.cfg.OverrideMaxPH ||
		features.BOD > s.cfg.OverrideMinBOD ||
		features.FaecalColiform > s.cfg.OverrideMinFaecalColiform {
		category = CategoryVeryPoor
		finalWQI = math.Min(finalWQI, s.cfg.OverrideWQICap)
		interpretation = "Severe contamination detected. Unsafe water."
		action = "Immediate isolation and thorough water treatment recommended."
	}

	anomalyStatus := AnomalyNormal
	if snap.AnomalyDetector != nil {
		outlier, err := snap.AnomalyDetector.IsOutlier(scaled)
		if err != nil {
			return nil, apperrors.NewArtifactError("Failed to run anomaly detection", err)
		}
		if outlier {
			anomalyStatus = AnomalyDetected
			action += " Possible sensor or data anomaly. Recheck readings."
		}
	}

	record := database.NewQualityRecord(input.MCCode, input.HubID)
	record.Temperature = features.Temperature
	record.PH = features.PH
	record.BOD = features.BOD
	record.FaecalColiform = features.FaecalColiform
	record.TotalColiform = features.TotalColiform
	record.Nitrate = features.Nitrate
	record.Conductivity = features.Conductivity
	record.WQI = finalWQI
	record.Category = category
	record.AnomalyStatus = anomalyStatus

	// The response promises a saved record, so a write failure fails the
	// whole request.
	if err := s.repo.InsertQualityRecord(record); err != nil {
		return nil, apperrors.NewStoreError("Failed to save water quality record", err)
	}

	s.cache.InvalidateMC(input.MCCode)
	if s.retrain != nil {
		s.retrain.Enqueue("quality record " + record.ID)
	}

	slog.Info("Water quality scored",
		"mc_code", input.MCCode,
		"hub_id", input.HubID,
		"wqi", finalWQI,
		"category", category,
		"anomaly", anomalyStatus)

	return &types.QualityResult{
		HubID:          input.HubID,
		FinalWQI:       finalWQI,
		Category:       category,
		AnomalyStatus:  anomalyStatus,
		Interpretation: interpretation,
		Action:         action,
		Details: types.QualityDetails{
			ModelWQI:      round2(modelWQI),
			RuleWQI:       ruleWQI,
			HybridModel:   fmt.Sprintf("%.0f%% model + %.0f%% rule-based", s.cfg.ModelWeight*100, s.cfg.RuleWeight*100),
			InputFeatures: features.Map(),
		},
		Summary: fmt.Sprintf("Predicted WQI of %.2f (%s). %s Recommended action: %s",
			finalWQI, category, interpretation, action),
		Message: fmt.Sprintf("Record saved successfully for hub %s.", input.HubID),
	}, nil
}

func (s *Scorer) categorize(wqi float64) (category, interpretation, action string) {
	t := s.cfg.QualityThresholds
	switch {
	case wqi >= t[0]:
		return CategoryExcellent,
			"Water quality is excellent. Clean, safe, and fit for all domestic and industrial uses.",
			"Continue regular monitoring. Maintain current supply and sanitation standards."
	case wqi >= t[1]:
		return CategoryGood,
			"Water quality is good. Generally safe for domestic use; occasional treatment may be required.",
			"Recommend monthly bacterial checks and quarterly chemical sampling."
	case wqi >= t[2]:
		return CategoryModerate,
			"Water quality is moderate. Safe for limited domestic use but not advisable for direct consumption.",
			"Increase monitoring frequency. Consider mild chlorination or filtration improvement."
	case wqi >= t[3]:
		return CategoryPoor,
			"Water quality is poor. Indicates contamination risk, unsafe for direct use.",
			"Immediate water treatment required. Investigate contamination sources."
	default:
		return CategoryVeryPoor,
			"Water is severely polluted. Unsafe for any use without purification.",
			"Urgent intervention: conduct microbial testing and suspend direct water supply."
	}
}

func midpoints(in types.QualityInput) Features {
	mid := func(lo, hi float64) float64 { return (lo + hi) / 2 }
	return Features{
		Temperature:    mid(in.TemperatureMin, in.TemperatureMax),
		PH:             mid(in.PHMin, in.PHMax),
		BOD:            mid(in.BODMin, in.BODMax),
		FaecalColiform: mid(in.FaecalColiformMin, in.FaecalColiformMax),
		TotalColiform:  mid(in.TotalColiformMin, in.TotalColiformMax),
		Nitrate:        mid(in.NitrateMin, in.NitrateMax),
		Conductivity:   mid(in.ConductivityMin, in.ConductivityMax),
	}
}

func validateInput(in types.QualityInput) error {
	ranges := []struct {
		name   string
		lo, hi float64
	}{
		{"temperature", in.TemperatureMin, in.TemperatureMax},
		{"ph", in.PHMin, in.PHMax},
		{"conductivity", in.ConductivityMin, in.ConductivityMax},
		{"bod", in.BODMin, in.BODMax},
		{"faecal_coliform", in.FaecalColiformMin, in.FaecalColiformMax},
		{"total_coliform", in.TotalColiformMin, in.TotalColiformMax},
		{"nitrate", in.NitrateMin, in.NitrateMax},
	}
	for _, r := range ranges {
		if math.IsNaN(r.lo) || math.IsNaN(r.hi) || math.IsInf(r.lo, 0) || math.IsInf(r.hi, 0) {
			return apperrors.NewValidationError(fmt.Sprintf("Parameter %s must be a finite number", r.name))
		}
		if r.lo > r.hi {
			return apperrors.NewValidationError(fmt.Sprintf("Parameter %s has min greater than max", r.name))
		}
	}
	return nil
}
