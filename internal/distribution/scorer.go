// Package distribution scores water distribution figures: predicted supply
// efficiency, binary criticality risk, and derived figures (deficit, per
// capita supply).
package distribution

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

const (
	StatusCritical = "Critical"
	StatusStable   = "Stable"
)

// Scorer runs the distribution assessment pipeline.
type Scorer struct {
	repo      *database.Repository
	artifacts *artifacts.Store
	cache     *cache.Cache
	cfg       config.ScoringConfig
}

// NewScorer creates the distribution scorer.
func NewScorer(repo *database.Repository, store *artifacts.Store, c *cache.Cache, cfg config.ScoringConfig) *Scorer {
	return &Scorer{repo: repo, artifacts: store, cache: c, cfg: cfg}
}

// Score validates the figures, derives deficit and per-capita supply, runs
// the efficiency and risk models, grades the result and persists a record.
func (s *Scorer) Score(callerMC string, input types.DistributionInput) (*types.DistributionResult, error) {
	if input.MCCode != callerMC {
		return nil, apperrors.NewAuthorizationError("Access denied: not authorized for this municipal corporation")
	}
	if input.TotalDemandMLD <= 0 {
		return nil, apperrors.NewValidationError("Total demand must be greater than zero")
	}
	if input.Population <= 0 {
		return nil, apperrors.NewValidationError("Population must be greater than zero")
	}
	if input.CurrentSupplyMLD < 0 {
		return nil, apperrors.NewValidationError("Current supply cannot be negative")
	}

	snap := s.artifacts.Snapshot()
	if !snap.DistributionReady() {
		return nil, apperrors.NewArtifactError("Distribution model artifacts are not loaded", nil)
	}

	demand := input.TotalDemandMLD
	supply := input.CurrentSupplyMLD
	population := float64(input.Population)

	deficit := round2(demand - supply)
	perCapita := round2(supply * 1e6 / (population * 1000))

	features := []float64{population, demand, supply, deficit, perCapita}

	effPred, err := snap.EfficiencyRegressor.Predict(features)
	if err != nil {
		return nil, apperrors.NewArtifactError("Failed to predict supply efficiency", err)
	}
	efficiency := round2(effPred)

	riskClass, err := snap.CriticalityClassifier.PredictClass(features)
	if err != nil {
		return nil, apperrors.NewArtifactError("Failed to classify distribution risk", err)
	}
	critical := riskClass == 1

	grade, performance, interpretation, advice := s.grade(efficiency, deficit, perCapita)

	status := StatusStable
	if critical {
		status = StatusCritical
		advice += " Critical distribution risk indicated. Immediate field inspection advised."
	} else {
		advice += " Maintain current flow and monitoring routines."
	}

	record := database.NewDistributionRecord(input.MCCode, input.HubID)
	record.TotalDemandMLD = demand
	record.CurrentSupplyMLD = supply
	record.Population = input.Population
	record.DeficitMLD = deficit
	record.PerCapitaLPCD = perCapita
	record.PredictedEfficiency = efficiency
	record.CriticalRisk = critical
	record.RecommendedAction = advice

	if err := s.repo.InsertDistributionRecord(record); err != nil {
		return nil, apperrors.NewStoreError("Failed to save water distribution record", err)
	}

	s.cache.InvalidateMC(input.MCCode)

	slog.Info("Water distribution scored",
		"mc_code", input.MCCode,
		"hub_id", input.HubID,
		"efficiency", efficiency,
		"grade", grade,
		"critical", critical)

	commentary := fmt.Sprintf("Hub %s operates at %.2f%% efficiency (%s). %s Recommended next action: %s",
		input.HubID, efficiency, grade, interpretation, advice)

	return &types.DistributionResult{
		MCCode:           input.MCCode,
		HubID:            input.HubID,
		FinalEfficiency:  efficiency,
		PerformanceGrade: grade,
		Status:           status,
		CriticalRisk:     critical,
		DeficitMLD:       deficit,
		PerCapitaLPCD:    perCapita,
		Interpretation:   interpretation,
		Advice:           advice,
		Commentary:       commentary,
		Message:          fmt.Sprintf("Distribution record saved for hub %s. Performance: %s.", input.HubID, performance),
	}, nil
}

func (s *Scorer) grade(efficiency, deficit, perCapita float64) (grade, performance, interpretation, advice string) {
	t := s.cfg.EfficiencyThresholds
	switch {
	case efficiency >= t[0]:
		return "A (Excellent)", "Excellent",
			fmt.Sprintf("Supply system is performing excellently with %.2f%% efficiency. Water distribution is balanced and sustainable at current levels.", efficiency),
			"Continue current operation. Perform preventive maintenance bi-monthly."
	case efficiency >= t[1]:
		return "B (Good)", "Good",
			fmt.Sprintf("Efficiency is healthy at %.2f%%. System is reliable but can be optimized further.", efficiency),
			"Monitor consumption growth. Conduct a quarterly leakage audit."
	case efficiency >= t[2]:
		return "C (Moderate)", "Moderate",
			fmt.Sprintf("Efficiency at %.2f%% suggests strain on supply or losses due to leakage. Deficit of %.2f MLD may lead to periodic shortages.", efficiency, deficit),
			"Optimize pumping schedules, fix leaks, and assess non-revenue water zones."
	case efficiency >= t[3]:
		return "D (Poor)", "Poor",
			fmt.Sprintf("Low efficiency (%.2f%%) indicates critical imbalance between demand and supply. Shortfall of %.2f MLD affecting per capita supply (%.2f LPCD).", efficiency, deficit, perCapita),
			"Prioritize network repair and pressure zoning. Consider tanker support or staggered supply."
	default:
		return "E (Critical)", "Critical",
			fmt.Sprintf("Severe inefficiency detected (%.2f%%). Water crisis likely. Supply deficit of %.2f MLD has created emergency conditions.", efficiency, deficit),
			"Activate emergency protocols. Reduce non-revenue water, initiate alternate supply routes, and coordinate with municipal crisis teams immediately."
	}
}

// GradeFor maps an efficiency value onto the letter grade ladder. Used by
// the yearly trend to grade per-year averages.
func (s *Scorer) GradeFor(efficiency float64) string {
	grade, _, _, _ := s.grade(efficiency, 0, 0)
	return grade
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
