package distribution

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartwater-ai/smartwater-backend/internal/artifacts"
	"github.com/smartwater-ai/smartwater-backend/internal/cache"
	"github.com/smartwater-ai/smartwater-backend/internal/config"
	"github.com/smartwater-ai/smartwater-backend/internal/database"
	apperrors "github.com/smartwater-ai/smartwater-backend/internal/errors"
	"github.com/smartwater-ai/smartwater-backend/internal/types"
)

func leaf(name string, numFeatures int, value float64) *artifacts.Ensemble {
	return &artifacts.Ensemble{
		Name:        name,
		NumFeatures: numFeatures,
		Trees: []artifacts.Tree{
			{Nodes: []artifacts.Node{{Feature: -1, Value: value}}},
		},
	}
}

// newTestScorer wires a scorer whose models always predict the given
// efficiency and risk class.
func newTestScorer(t *testing.T, efficiency, riskScore float64) (*Scorer, *database.Repository) {
	t.Helper()

	db, err := database.NewDB(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store := artifacts.NewStore(t.TempDir())
	store.Swap(&artifacts.Snapshot{
		EfficiencyRegressor:   leaf("efficiency_regressor", 5, efficiency),
		CriticalityClassifier: leaf("criticality_classifier", 5, riskScore),
		LoadedAt:              time.Now(),
	})

	repo := database.NewRepository(db)
	scorer := NewScorer(repo, store, cache.New(8, time.Minute), config.DefaultScoring())
	return scorer, repo
}

func testInput() types.DistributionInput {
	return types.DistributionInput{
		MCCode:           "MC001",
		HubID:            "HUB-01",
		TotalDemandMLD:   100,
		CurrentSupplyMLD: 80,
		Population:       500000,
	}
}

func TestScoreDerivedFigures(t *testing.T) {
	scorer, repo := newTestScorer(t, 90, 0)

	result, err := scorer.Score("MC001", testInput())
	require.NoError(t, err)

	assert.Equal(t, 20.0, result.DeficitMLD)
	// 80 MLD * 1e6 / (500000 * 1000) litres per capita per day = 160.
	assert.Equal(t, 160.0, result.PerCapitaLPCD)
	assert.Equal(t, 90.0, result.FinalEfficiency)
	assert.Equal(t, "A (Excellent)", result.PerformanceGrade)
	assert.Equal(t, StatusStable, result.Status)
	assert.False(t, result.CriticalRisk)
	assert.Contains(t, result.Advice, "Maintain current flow")

	records, err := repo.GetDistributionRecords("MC001", "HUB-01")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, 90.0, records[0].PredictedEfficiency)
	assert.Equal(t, 20.0, records[0].DeficitMLD)
}

func TestScoreCriticalRisk(t *testing.T) {
	scorer, _ := newTestScorer(t, 45, 1)

	result, err := scorer.Score("MC001", testInput())
	require.NoError(t, err)

	assert.True(t, result.CriticalRisk)
	assert.Equal(t, StatusCritical, result.Status)
	assert.Equal(t, "D (Poor)", result.PerformanceGrade)
	assert.Contains(t, result.Advice, "Critical distribution risk indicated")
}

func TestScoreValidation(t *testing.T) {
	scorer, _ := newTestScorer(t, 90, 0)

	tests := []struct {
		name   string
		mutate func(*types.DistributionInput)
	}{
		{"zero demand", func(in *types.DistributionInput) { in.TotalDemandMLD = 0 }},
		{"negative demand", func(in *types.DistributionInput) { in.TotalDemandMLD = -5 }},
		{"zero population", func(in *types.DistributionInput) { in.Population = 0 }},
		{"negative supply", func(in *types.DistributionInput) { in.CurrentSupplyMLD = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input := testInput()
			tt.mutate(&input)

			_, err := scorer.Score("MC001", input)
			require.Error(t, err)

			var appErr *apperrors.AppError
			require.ErrorAs(t, err, &appErr)
			assert.Equal(t, http.StatusBadRequest, appErr.HTTPStatus)
		})
	}
}

func TestScoreRejectsForeignMC(t *testing.T) {
	scorer, _ := newTestScorer(t, 90, 0)

	_, err := scorer.Score("MC002", testInput())
	require.Error(t, err)

	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, http.StatusForbidden, appErr.HTTPStatus)
}

func TestScoreWithoutArtifacts(t *testing.T) {
	db, err := database.NewDB(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store := artifacts.NewStore(t.TempDir())
	scorer := NewScorer(database.NewRepository(db), store, cache.New(8, time.Minute), config.DefaultScoring())

	_, err = scorer.Score("MC001", testInput())
	require.Error(t, err)

	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperrors.CategoryArtifact, appErr.Category)
}

func TestGradeFor(t *testing.T) {
	scorer, _ := newTestScorer(t, 0, 0)

	tests := []struct {
		efficiency float64
		grade      string
	}{
		{95, "A (Excellent)"},
		{85, "A (Excellent)"},
		{84.99, "B (Good)"},
		{70, "B (Good)"},
		{60, "C (Moderate)"},
		{45, "D (Poor)"},
		{20, "E (Critical)"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.grade, scorer.GradeFor(tt.efficiency), "efficiency %v", tt.efficiency)
	}
}
