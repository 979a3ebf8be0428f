// Package quality scores water-quality readings with a hybrid of a
// pre-trained regression model and a rule-based Water Quality Index.
package quality

import (
	"math"
)

// Features is one midpoint-collapsed set of the seven quality parameters.
type Features struct {
	Temperature    float64
	PH             float64
	BOD            float64
	FaecalColiform float64
	TotalColiform  float64
	Nitrate        float64
	Conductivity   float64
}

// Parameter weights of the rule-based index. They sum to 1 so the index
// stays in [0, 100].
var weights = struct {
	Temperature    float64
	PH             float64
	Conductivity   float64
	BOD            float64
	FaecalColiform float64
	TotalColiform  float64
	Nitrate        float64
}{
	Temperature:    0.1,
	PH:             0.2,
	Conductivity:   0.1,
	BOD:            0.2,
	FaecalColiform: 0.2,
	TotalColiform:  0.1,
	Nitrate:        0.1,
}

// Upper caps applied before scoring; keeps extreme sensor readings from
// blowing up the penalty terms.
var caps = Features{
	Temperature:    50,
	PH:             14,
	BOD:            50,
	FaecalColiform: 2000,
	TotalColiform:  2000,
	Nitrate:        50,
	Conductivity:   100000,
}

const (
	standardTemperature = 25
	standardPH          = 7
)

// Capped returns a copy with every parameter clamped to its cap.
func (f Features) Capped() Features {
	return Features{
		Temperature:    math.Min(f.Temperature, caps.Temperature),
		PH:             math.Min(f.PH, caps.PH),
		BOD:            math.Min(f.BOD, caps.BOD),
		FaecalColiform: math.Min(f.FaecalColiform, caps.FaecalColiform),
		TotalColiform:  math.Min(f.TotalColiform, caps.TotalColiform),
		Nitrate:        math.Min(f.Nitrate, caps.Nitrate),
		Conductivity:   math.Min(f.Conductivity, caps.Conductivity),
	}
}

// Vector returns the features in model input order.
func (f Features) Vector() []float64 {
	return []float64{
		f.Temperature, f.PH, f.BOD, f.FaecalColiform,
		f.TotalColiform, f.Nitrate, f.Conductivity,
	}
}

// Map returns the features keyed by parameter name for API responses.
func (f Features) Map() map[string]float64 {
	return map[string]float64{
		"temperature":     f.Temperature,
		"ph":              f.PH,
		"bod":             f.BOD,
		"faecal_coliform": f.FaecalColiform,
		"total_coliform":  f.TotalColiform,
		"nitrate":         f.Nitrate,
		"conductivity":    f.Conductivity,
	}
}

// ComputeRuleWQI calculates the rule-based Water Quality Index. Each
// parameter contributes a linear penalty sub-score floored at zero; the
// weighted sum is rounded to two decimals.
func ComputeRuleWQI(f Features) float64 {
	f = f.Capped()

	tempScore := math.Max(0, 100-math.Abs(f.Temperature-standardTemperature)*4)
	phScore := math.Max(0, 100-math.Abs(f.PH-standardPH)*10)
	condScore := math.Max(0, 100-f.Conductivity/100)
	bodScore := math.Max(0, 100-f.BOD*10)
	fcScore := math.Max(0, 100-f.FaecalColiform/10)
	tcScore := math.Max(0, 100-f.TotalColiform/10)
	nitrateScore := math.Max(0, 100-f.Nitrate*5)

	wqi := tempScore*weights.Temperature +
		phScore*weights.PH +
		condScore*weights.Conductivity +
		bodScore*weights.BOD +
		fcScore*weights.FaecalColiform +
		tcScore*weights.TotalColiform +
		nitrateScore*weights.Nitrate

	return round2(wqi)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
