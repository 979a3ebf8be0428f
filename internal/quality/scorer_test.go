package quality

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

type fakeEnqueuer struct {
	reasons []string
}

func (f *fakeEnqueuer) Enqueue(reason string) {
	f.reasons = append(f.reasons, reason)
}

// leaf builds a single-leaf ensemble that always predicts value.
func leaf(name string, numFeatures int, value float64) *artifacts.Ensemble {
	return &artifacts.Ensemble{
		Name:        name,
		NumFeatures: numFeatures,
		Trees: []artifacts.Tree{
			{Nodes: []artifacts.Node{{Feature: -1, Value: value}}},
		},
	}
}

func identityScaler(n int) *artifacts.Scaler {
	means := make([]float64, n)
	scales := make([]float64, n)
	for i := range scales {
		scales[i] = 1
	}
	return &artifacts.Scaler{Means: means, Scales: scales}
}

// newTestScorer wires a scorer against a temporary database and a snapshot
// whose regressor always returns modelWQI.
func newTestScorer(t *testing.T, modelWQI float64, anomaly *artifacts.Ensemble) (*Scorer, *fakeEnqueuer, *database.Repository) {
	t.Helper()

	db, err := database.NewDB(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store := artifacts.NewStore(t.TempDir())
	store.Swap(&artifacts.Snapshot{
		WQIRegressor:    leaf("wqi_regressor", 7, modelWQI),
		WQIScaler:       identityScaler(7),
		AnomalyDetector: anomaly,
		LoadedAt:        time.Now(),
	})

	repo := database.NewRepository(db)
	enqueuer := &fakeEnqueuer{}
	scorer := NewScorer(repo, store, cache.New(8, time.Minute), enqueuer, config.DefaultScoring())
	return scorer, enqueuer, repo
}

// idealInput builds a request whose midpoints are the ideal readings.
func idealInput() types.QualityInput {
	return types.QualityInput{
		MCCode: "MC001", HubID: "HUB-01",
		TemperatureMin: 25, TemperatureMax: 25,
		PHMin: 7, PHMax: 7,
	}
}

func TestScoreBlendsModelAndRule(t *testing.T) {
	scorer, enqueuer, repo := newTestScorer(t, 80, nil)

	result, err := scorer.Score("MC001", idealInput())
	require.NoError(t, err)

	// 0.7*80 + 0.3*100 = 86.
	assert.Equal(t, 86.0, result.FinalWQI)
	assert.Equal(t, CategoryExcellent, result.Category)
	assert.Equal(t, AnomalyNormal, result.AnomalyStatus)
	assert.Equal(t, 80.0, result.Details.ModelWQI)
	assert.Equal(t, 100.0, result.Details.RuleWQI)
	assert.Equal(t, "70% model + 30% rule-based", result.Details.HybridModel)

	// The record was persisted and a retrain job enqueued.
	records, err := repo.GetQualityRecords("MC001", "HUB-01")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, 86.0, records[0].WQI)
	assert.Len(t, enqueuer.reasons, 1)
}

func TestScoreCategoryLadder(t *testing.T) {
	tests := []struct {
		modelWQI float64
		category string
	}{
		{100, CategoryExcellent}, // 0.7*100+30 = 100
		{60, CategoryGood},       // 0.7*60+30 = 72
		{40, CategoryModerate},   // 0.7*40+30 = 58
		{10, CategoryPoor},       // 0.7*10+30 = 37
		{-20, CategoryVeryPoor},  // 0.7*-20+30 = 16
	}
	for _, tt := range tests {
		scorer, _, _ := newTestScorer(t, tt.modelWQI, nil)
		result, err := scorer.Score("MC001", idealInput())
		require.NoError(t, err)
		assert.Equal(t, tt.category, result.Category, "model WQI %v", tt.modelWQI)
	}
}

func TestScoreSevereContaminationOverride(t *testing.T) {
	scorer, _, _ := newTestScorer(t, 90, nil)

	input := idealInput()
	input.PHMin, input.PHMax = 4, 4 // below the 5.5 override limit

	result, err := scorer.Score("MC001", input)
	require.NoError(t, err)

	assert.Equal(t, CategoryVeryPoor, result.Category)
	assert.LessOrEqual(t, result.FinalWQI, 35.0)
	assert.Contains(t, result.Interpretation, "Severe contamination")
}

func TestScoreOverrideOnBODAndColiform(t *testing.T) {
	for name, mutate := range map[string]func(*types.QualityInput){
		"high BOD":              func(in *types.QualityInput) { in.BODMin, in.BODMax = 25, 25 },
		"high faecal coliform":  func(in *types.QualityInput) { in.FaecalColiformMin, in.FaecalColiformMax = 6000, 6000 },
	} {
		t.Run(name, func(t *testing.T) {
			scorer, _, _ := newTestScorer(t, 90, nil)
			input := idealInput()
			mutate(&input)

			result, err := scorer.Score("MC001", input)
			require.NoError(t, err)
			assert.Equal(t, CategoryVeryPoor, result.Category)
			assert.LessOrEqual(t, result.FinalWQI, 35.0)
		})
	}
}

func TestScoreAnomalyAppendsWarning(t *testing.T) {
	// Detector predicts 0 with threshold 0.5, so every reading is flagged.
	detector := leaf("anomaly_detector", 7, 0)
	detector.DecisionThreshold = 0.5

	scorer, _, _ := newTestScorer(t, 80, detector)

	result, err := scorer.Score("MC001", idealInput())
	require.NoError(t, err)

	assert.Equal(t, AnomalyDetected, result.AnomalyStatus)
	assert.Contains(t, result.Action, "Possible sensor or data anomaly. Recheck readings.")
	// The anomaly flag never changes the category.
	assert.Equal(t, CategoryExcellent, result.Category)
}

func TestScoreRejectsForeignMC(t *testing.T) {
	scorer, _, _ := newTestScorer(t, 80, nil)

	_, err := scorer.Score("MC002", idealInput())
	require.Error(t, err)

	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, http.StatusForbidden, appErr.HTTPStatus)
}

func TestScoreValidatesRanges(t *testing.T) {
	scorer, _, _ := newTestScorer(t, 80, nil)

	input := idealInput()
	input.PHMin, input.PHMax = 9, 7 // min above max

	_, err := scorer.Score("MC001", input)
	require.Error(t, err)

	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, http.StatusBadRequest, appErr.HTTPStatus)
}

func TestScoreWithoutArtifacts(t *testing.T) {
	db, err := database.NewDB(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store := artifacts.NewStore(t.TempDir())
	scorer := NewScorer(database.NewRepository(db), store, cache.New(8, time.Minute), nil, config.DefaultScoring())

	_, err = scorer.Score("MC001", idealInput())
	require.Error(t, err)

	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperrors.CategoryArtifact, appErr.Category)
}

func TestMidpoints(t *testing.T) {
	input := types.QualityInput{
		TemperatureMin: 20, TemperatureMax: 30,
		PHMin: 6, PHMax: 8,
		BODMin: 1, BODMax: 3,
	}
	f := midpoints(input)
	assert.Equal(t, 25.0, f.Temperature)
	assert.Equal(t, 7.0, f.PH)
	assert.Equal(t, 2.0, f.BOD)
	assert.Equal(t, 0.0, f.Nitrate)
}
