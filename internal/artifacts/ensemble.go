// Package artifacts loads and serves the pre-trained scoring models. Each
// model is exported offline as a JSON tree ensemble and consumed here as an
// opaque pure function over a feature vector. A whole set of models plus the
// feature scaler forms an immutable Snapshot that the request path reads and
// the retrain worker swaps atomically.
package artifacts

import (
	"encoding/json"
	"fmt"
	"os"
)

// Node is one flattened decision-tree node. Leaves have Feature == -1 and
// carry the prediction in Value.
type Node struct {
	Feature   int     `json:"feature"`
	Threshold float64 `json:"threshold"`
	Left      int     `json:"left"`
	Right     int     `json:"right"`
	Value     float64 `json:"value"`
}

// Tree is a single decision tree as an array of nodes rooted at index 0.
type Tree struct {
	Nodes []Node `json:"nodes"`
}

// Ensemble is an averaged forest of decision trees with an optional decision
// offset. Regressors use the mean leaf value directly; classifiers threshold
// it at 0.5; the anomaly detector compares it against DecisionThreshold.
type Ensemble struct {
	Name              string  `json:"name"`
	NumFeatures       int     `json:"num_features"`
	Trees             []Tree  `json:"trees"`
	DecisionThreshold float64 `json:"decision_threshold"`
}

// Predict evaluates the ensemble over the feature vector and returns the
// mean leaf value across all trees.
func (e *Ensemble) Predict(features []float64) (float64, error) {
	if len(features) != e.NumFeatures {
		return 0, fmt.Errorf("ensemble %q expects %d features, got %d", e.Name, e.NumFeatures, len(features))
	}
	if len(e.Trees) == 0 {
		return 0, fmt.Errorf("ensemble %q has no trees", e.Name)
	}

	sum := 0.0
	for ti := range e.Trees {
		v, err := e.Trees[ti].evaluate(features)
		if err != nil {
			return 0, fmt.Errorf("ensemble %q tree %d: %w", e.Name, ti, err)
		}
		sum += v
	}
	return sum / float64(len(e.Trees)), nil
}

// PredictClass applies the 0.5 cutoff used by binary classifier exports.
func (e *Ensemble) PredictClass(features []float64) (int, error) {
	score, err := e.Predict(features)
	if err != nil {
		return 0, err
	}
	if score >= 0.5 {
		return 1, nil
	}
	return 0, nil
}

// IsOutlier reports whether the decision score falls below the exported
// anomaly threshold.
func (e *Ensemble) IsOutlier(features []float64) (bool, error) {
	score, err := e.Predict(features)
	if err != nil {
		return false, err
	}
	return score < e.DecisionThreshold, nil
}

func (t *Tree) evaluate(features []float64) (float64, error) {
	idx := 0
	// Each hop moves strictly down the flattened tree, so node count bounds
	// the walk and a malformed cycle cannot hang a request.
	for steps := 0; steps <= len(t.Nodes); steps++ {
		if idx < 0 || idx >= len(t.Nodes) {
			return 0, fmt.Errorf("node index %d out of range", idx)
		}
		node := t.Nodes[idx]
		if node.Feature < 0 {
			return node.Value, nil
		}
		if node.Feature >= len(features) {
			return 0, fmt.Errorf("node %d references feature %d", idx, node.Feature)
		}
		if features[node.Feature] <= node.Threshold {
			idx = node.Left
		} else {
			idx = node.Right
		}
	}
	return 0, fmt.Errorf("tree walk exceeded %d nodes", len(t.Nodes))
}

// Scaler is a standard scaler export: z = (x - mean) / scale per feature.
type Scaler struct {
	Means  []float64 `json:"means"`
	Scales []float64 `json:"scales"`
}

// Transform scales the feature vector into model space.
func (s *Scaler) Transform(features []float64) ([]float64, error) {
	if len(features) != len(s.Means) || len(s.Means) != len(s.Scales) {
		return nil, fmt.Errorf("scaler expects %d features, got %d", len(s.Means), len(features))
	}
	out := make([]float64, len(features))
	for i, v := range features {
		scale := s.Scales[i]
		if scale == 0 {
			scale = 1
		}
		out[i] = (v - s.Means[i]) / scale
	}
	return out, nil
}

func loadEnsemble(path string) (*Ensemble, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open model artifact: %w", err)
	}
	defer file.Close()

	var e Ensemble
	if err := json.NewDecoder(file).Decode(&e); err != nil {
		return nil, fmt.Errorf("failed to decode model artifact %s: %w", path, err)
	}
	if len(e.Trees) == 0 {
		return nil, fmt.Errorf("model artifact %s contains no trees", path)
	}
	return &e, nil
}

func loadScaler(path string) (*Scaler, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open scaler artifact: %w", err)
	}
	defer file.Close()

	var s Scaler
	if err := json.NewDecoder(file).Decode(&s); err != nil {
		return nil, fmt.Errorf("failed to decode scaler artifact %s: %w", path, err)
	}
	if len(s.Means) == 0 || len(s.Means) != len(s.Scales) {
		return nil, fmt.Errorf("scaler artifact %s has mismatched means/scales", path)
	}
	return &s, nil
}
