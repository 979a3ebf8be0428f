package artifacts

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeArtifact writes v as JSON into dir/name.
func writeArtifact(t *testing.T, dir, name string, v interface{}) {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), data, 0o644))
}

// stumpEnsemble splits on feature 0 at the threshold and returns low/high.
func stumpEnsemble(name string, numFeatures int, threshold, low, high float64) *Ensemble {
	return &Ensemble{
		Name:        name,
		NumFeatures: numFeatures,
		Trees: []Tree{{
			Nodes: []Node{
				{Feature: 0, Threshold: threshold, Left: 1, Right: 2},
				{Feature: -1, Value: low},
				{Feature: -1, Value: high},
			},
		}},
	}
}

func TestEnsemblePredict(t *testing.T) {
	e := stumpEnsemble("test", 2, 5.0, 10, 20)

	low, err := e.Predict([]float64{3, 0})
	require.NoError(t, err)
	assert.Equal(t, 10.0, low)

	// Boundary goes left.
	edge, err := e.Predict([]float64{5, 0})
	require.NoError(t, err)
	assert.Equal(t, 10.0, edge)

	high, err := e.Predict([]float64{7, 0})
	require.NoError(t, err)
	assert.Equal(t, 20.0, high)
}

func TestEnsemblePredictAveragesTrees(t *testing.T) {
	e := &Ensemble{
		Name:        "avg",
		NumFeatures: 1,
		Trees: []Tree{
			{Nodes: []Node{{Feature: -1, Value: 10}}},
			{Nodes: []Node{{Feature: -1, Value: 30}}},
		},
	}
	v, err := e.Predict([]float64{0})
	require.NoError(t, err)
	assert.Equal(t, 20.0, v)
}

func TestEnsemblePredictValidatesInput(t *testing.T) {
	e := stumpEnsemble("test", 2, 5.0, 10, 20)

	_, err := e.Predict([]float64{1})
	assert.Error(t, err, "wrong feature count")

	empty := &Ensemble{Name: "empty", NumFeatures: 1}
	_, err = empty.Predict([]float64{1})
	assert.Error(t, err, "no trees")
}

func TestEnsembleRejectsMalformedTree(t *testing.T) {
	// Node 0 points back at itself; the bounded walk must fail, not hang.
	e := &Ensemble{
		Name:        "cycle",
		NumFeatures: 1,
		Trees: []Tree{{
			Nodes: []Node{{Feature: 0, Threshold: 100, Left: 0, Right: 0}},
		}},
	}
	_, err := e.Predict([]float64{1})
	assert.Error(t, err)
}

func TestPredictClass(t *testing.T) {
	e := stumpEnsemble("classifier", 1, 0.0, 0, 1)

	c, err := e.PredictClass([]float64{-1})
	require.NoError(t, err)
	assert.Equal(t, 0, c)

	c, err = e.PredictClass([]float64{1})
	require.NoError(t, err)
	assert.Equal(t, 1, c)
}

func TestIsOutlier(t *testing.T) {
	e := stumpEnsemble("detector", 1, 0.0, -0.3, 0.4)
	e.DecisionThreshold = 0.0

	outlier, err := e.IsOutlier([]float64{-1})
	require.NoError(t, err)
	assert.True(t, outlier)

	outlier, err = e.IsOutlier([]float64{1})
	require.NoError(t, err)
	assert.False(t, outlier)
}

func TestScalerTransform(t *testing.T) {
	s := &Scaler{Means: []float64{10, 0}, Scales: []float64{2, 0}}

	out, err := s.Transform([]float64{14, 3})
	require.NoError(t, err)
	assert.Equal(t, 2.0, out[0])
	// Zero scale falls back to 1 so constant features pass through.
	assert.Equal(t, 3.0, out[1])

	_, err = s.Transform([]float64{1})
	assert.Error(t, err)
}

func TestStoreLoad(t *testing.T) {
	dir := t.TempDir()
	writeArtifact(t, dir, FileWQIRegressor, stumpEnsemble("wqi", 7, 0, 50, 80))
	writeArtifact(t, dir, FileWQIScaler, &Scaler{
		Means:  make([]float64, 7),
		Scales: []float64{1, 1, 1, 1, 1, 1, 1},
	})

	store := NewStore(dir)
	assert.Nil(t, store.Snapshot())

	snap, err := store.Load()
	require.NoError(t, err)
	assert.True(t, snap.QualityReady())
	// Distribution models were not written.
	assert.False(t, snap.DistributionReady())
	assert.Same(t, snap, store.Snapshot())
}

func TestStoreLoadEmptyDirectory(t *testing.T) {
	store := NewStore(t.TempDir())

	snap, err := store.Load()
	require.NoError(t, err)
	assert.False(t, snap.QualityReady())
	assert.False(t, snap.DistributionReady())
}

func TestStoreLoadRejectsCorruptArtifact(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileWQIRegressor), []byte("not json"), 0o644))

	_, err := NewStore(dir).Load()
	assert.Error(t, err)
}

func TestReloadIfChanged(t *testing.T) {
	dir := t.TempDir()
	writeArtifact(t, dir, FileWQIRegressor, stumpEnsemble("wqi", 7, 0, 50, 80))
	writeArtifact(t, dir, FileWQIScaler, &Scaler{
		Means:  make([]float64, 7),
		Scales: []float64{1, 1, 1, 1, 1, 1, 1},
	})

	store := NewStore(dir)
	_, err := store.Load()
	require.NoError(t, err)

	swapped, err := store.ReloadIfChanged()
	require.NoError(t, err)
	assert.False(t, swapped, "unchanged files should not trigger a reload")

	// Bump the regressor mtime past the loaded generation.
	future := time.Now().Add(2 * time.Second)
	require.NoError(t, os.Chtimes(filepath.Join(dir, FileWQIRegressor), future, future))

	swapped, err = store.ReloadIfChanged()
	require.NoError(t, err)
	assert.True(t, swapped)
}

func TestSnapshotReadiness(t *testing.T) {
	var nilSnap *Snapshot
	assert.False(t, nilSnap.QualityReady())
	assert.False(t, nilSnap.DistributionReady())

	snap := &Snapshot{
		EfficiencyRegressor:   stumpEnsemble("eff", 5, 0, 40, 90),
		CriticalityClassifier: stumpEnsemble("crit", 5, 0, 0, 1),
	}
	assert.False(t, snap.QualityReady())
	assert.True(t, snap.DistributionReady())
}
