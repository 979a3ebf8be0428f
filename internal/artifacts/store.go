package artifacts

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"
)

// Artifact file names, as written by the offline training pipeline.
const (
	FileWQIRegressor          = "wqi_regressor.json"
	FileWQIScaler             = "wqi_scaler.json"
	FileAnomalyDetector       = "anomaly_detector.json"
	FileEfficiencyRegressor   = "efficiency_regressor.json"
	FileCriticalityClassifier = "criticality_classifier.json"
)

// Snapshot is one immutable, internally consistent set of scoring models.
// Requests capture a snapshot once and use it for their whole lifetime; a
// concurrent swap never mixes model generations within a request.
type Snapshot struct {
	WQIRegressor          *Ensemble
	WQIScaler             *Scaler
	AnomalyDetector       *Ensemble
	EfficiencyRegressor   *Ensemble
	CriticalityClassifier *Ensemble
	LoadedAt              time.Time
}

// QualityReady reports whether the quality pipeline models are present.
func (s *Snapshot) QualityReady() bool {
	return s != nil && s.WQIRegressor != nil && s.WQIScaler != nil
}

// DistributionReady reports whether the distribution pipeline models are present.
func (s *Snapshot) DistributionReady() bool {
	return s != nil && s.EfficiencyRegressor != nil && s.CriticalityClassifier != nil
}

// Store serves the current snapshot to readers and accepts whole-snapshot
// swaps from the retrain worker.
type Store struct {
	dir      string
	current  atomic.Pointer[Snapshot]
	lastSeen atomic.Int64 // unix nano of the newest artifact mtime loaded
}

// NewStore creates a store over the artifacts directory. Loading is a
// separate step so the server can boot and report artifact problems through
// scoring errors rather than refusing to start.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// Snapshot returns the current model set, or nil when nothing has been
// loaded yet.
func (s *Store) Snapshot() *Snapshot {
	return s.current.Load()
}

// Load reads every artifact file from the directory and swaps the result in
// as the current snapshot. Individual missing models leave their slot nil;
// the scorers turn nil slots into artifact errors per request.
func (s *Store) Load() (*Snapshot, error) {
	snap := &Snapshot{LoadedAt: time.Now()}
	var newest time.Time

	// present reports whether the artifact file exists, tracking the newest
	// mtime seen across the set. Absent files leave their snapshot slot nil.
	present := func(name string) (bool, error) {
		info, err := os.Stat(filepath.Join(s.dir, name))
		if os.IsNotExist(err) {
			slog.Warn("scoring artifact missing", "artifact", name, "dir", s.dir)
			return false, nil
		}
		if err != nil {
			return false, fmt.Errorf("failed to stat artifact %s: %w", name, err)
		}
		if info.ModTime().After(newest) {
			newest = info.ModTime()
		}
		return true, nil
	}

	ensembles := []struct {
		name string
		dst  **Ensemble
	}{
		{FileWQIRegressor, &snap.WQIRegressor},
		{FileAnomalyDetector, &snap.AnomalyDetector},
		{FileEfficiencyRegressor, &snap.EfficiencyRegressor},
		{FileCriticalityClassifier, &snap.CriticalityClassifier},
	}
	for _, a := range ensembles {
		ok, err := present(a.name)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		e, err := loadEnsemble(filepath.Join(s.dir, a.name))
		if err != nil {
			return nil, err
		}
		*a.dst = e
	}

	ok, err := present(FileWQIScaler)
	if err != nil {
		return nil, err
	}
	if ok {
		sc, err := loadScaler(filepath.Join(s.dir, FileWQIScaler))
		if err != nil {
			return nil, err
		}
		snap.WQIScaler = sc
	}

	s.current.Store(snap)
	if newest.IsZero() {
		s.lastSeen.Store(0)
	} else {
		s.lastSeen.Store(newest.UnixNano())
	}
	slog.Info("scoring artifacts loaded",
		"dir", s.dir,
		"quality_ready", snap.QualityReady(),
		"distribution_ready", snap.DistributionReady(),
	)
	return snap, nil
}

// ReloadIfChanged re-reads the artifact directory when any artifact file has
// a newer mtime than the current snapshot. Returns true when a new snapshot
// was swapped in.
func (s *Store) ReloadIfChanged() (bool, error) {
	newest := int64(0)
	for _, name := range []string{
		FileWQIRegressor, FileWQIScaler, FileAnomalyDetector,
		FileEfficiencyRegressor, FileCriticalityClassifier,
	} {
		info, err := os.Stat(filepath.Join(s.dir, name))
		if err != nil {
			continue
		}
		if ns := info.ModTime().UnixNano(); ns > newest {
			newest = ns
		}
	}

	if newest <= s.lastSeen.Load() {
		return false, nil
	}
	if _, err := s.Load(); err != nil {
		return false, err
	}
	return true, nil
}

// Swap installs a snapshot directly. Used by tests and by any future
// in-process training path.
func (s *Store) Swap(snap *Snapshot) {
	s.current.Store(snap)
}
