package trend

import (
	"encoding/json"
	"math"
)

// Float is a float64 that serializes NaN and Infinity as JSON null instead
// of producing invalid JSON or a misleading numeric literal.
type Float float64

// MarshalJSON implements json.Marshaler
func (f Float) MarshalJSON() ([]byte, error) {
	v := float64(f)
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return []byte("null"), nil
	}
	return json.Marshal(v)
}

// Ptr returns a pointer to f, for optional fields.
func (f Float) Ptr() *Float {
	return &f
}

// Round2 rounds to 2 decimal places.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
