// Package trend derives yearly trend analytics from scored records. The
// same engine serves both the water-quality and distribution variants: the
// caller maps its records onto Points and optionally supplies a grading
// function for the per-year performance grade.
package trend

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
)

// Point is one scored record projected into the trend engine.
type Point struct {
	Hub       string
	Value     float64
	Flagged   bool // anomaly (quality) or critical risk (distribution)
	CreatedAt time.Time
}

// YearBucket holds the aggregates of a single calendar year for one hub.
// Years without data report zero counts and a trend of "N/A" so that
// front-ends can render a continuous timeline without gaps.
type YearBucket struct {
	Year       int     `json:"year"`
	Count      int     `json:"total_records"`
	Average    Float   `json:"average"`
	Max        Float   `json:"max"`
	Min        Float   `json:"min"`
	FlagCount  int     `json:"flag_count"`
	Delta      *Float  `json:"yearly_delta"`
	Trend      string  `json:"trend"`
	Rolling3   *Float  `json:"rolling_3yr_avg"`
	Volatility *Float  `json:"volatility_index"`
	Grade      string  `json:"performance_grade,omitempty"`
}

// HubSummary is the per-hub output of the engine.
type HubSummary struct {
	Years         []YearBucket `json:"records_per_year"`
	LongTermTrend string       `json:"long_term_trend"`
	Commentary    string       `json:"commentary"`
}

// Options controls bucketing and classification thresholds.
type Options struct {
	EpochYear    int
	CurrentYear  int
	DeltaBand    float64
	LongTermBand float64
	Window       int
	// GradeFn maps a yearly average onto a performance grade. Nil means
	// no grade column (quality variant).
	GradeFn func(avg float64) string
}

const (
	TrendImproving    = "Improving"
	TrendDegrading    = "Degrading"
	TrendStable       = "Stable"
	TrendNA           = "N/A"
	TrendInsufficient = "Insufficient Data"
)

// Compute buckets the points per hub and calendar year and derives deltas,
// rolling averages, volatility and a long-term verdict. The engine owns no
// state: it is a pure projection over whatever records the caller fetched.
func Compute(points []Point, opts Options) map[string]HubSummary {
	if opts.Window <= 0 {
		opts.Window = 3
	}
	if opts.CurrentYear == 0 {
		opts.CurrentYear = time.Now().Year()
	}

	byHub := make(map[string][]Point)
	for _, p := range points {
		byHub[p.Hub] = append(byHub[p.Hub], p)
	}

	out := make(map[string]HubSummary, len(byHub))
	for hub, hubPoints := range byHub {
		out[hub] = computeHub(hubPoints, opts)
	}
	return out
}

type yearAgg struct {
	count int
	sum   float64
	max   float64
	min   float64
	flags int
}

func computeHub(points []Point, opts Options) HubSummary {
	years := make(map[int]*yearAgg)
	for _, p := range points {
		y := p.CreatedAt.Year()
		agg, ok := years[y]
		if !ok {
			agg = &yearAgg{max: math.Inf(-1), min: math.Inf(1)}
			years[y] = agg
		}
		agg.count++
		agg.sum += p.Value
		agg.max = math.Max(agg.max, p.Value)
		agg.min = math.Min(agg.min, p.Value)
		if p.Flagged {
			agg.flags++
		}
	}

	// Ordered sequence of populated years; rolling statistics and deltas
	// run over this sequence so synthetic empty years do not distort them.
	populated := make([]int, 0, len(years))
	for y := range years {
		if y >= opts.EpochYear && y <= opts.CurrentYear {
			populated = append(populated, y)
		}
	}
	sort.Ints(populated)

	series := make([]float64, len(populated))
	for i, y := range populated {
		series[i] = years[y].sum / float64(years[y].count)
	}

	rolling := rollingMean(series, opts.Window)
	volatility := rollingStd(series, opts.Window)

	index := make(map[int]int, len(populated)) // year -> position in series
	for i, y := range populated {
		index[y] = i
	}

	buckets := make([]YearBucket, 0, opts.CurrentYear-opts.EpochYear+1)
	for y := opts.EpochYear; y <= opts.CurrentYear; y++ {
		bucket := YearBucket{Year: y, Trend: TrendNA}
		if i, ok := index[y]; ok {
			agg := years[y]
			avg := series[i]
			bucket.Count = agg.count
			bucket.Average = Float(Round2(avg))
			bucket.Max = Float(Round2(agg.max))
			bucket.Min = Float(Round2(agg.min))
			bucket.FlagCount = agg.flags
			bucket.Rolling3 = Float(Round2(rolling[i])).Ptr()
			bucket.Volatility = Float(Round2(volatility[i])).Ptr()
			if i > 0 {
				delta := Round2(avg - series[i-1])
				bucket.Delta = Float(delta).Ptr()
				bucket.Trend = classifyDelta(delta, opts.DeltaBand)
			}
			if opts.GradeFn != nil {
				bucket.Grade = opts.GradeFn(avg)
			}
		}
		buckets = append(buckets, bucket)
	}

	verdict := longTermVerdict(rolling, opts.Window, opts.LongTermBand)
	return HubSummary{
		Years:         buckets,
		LongTermTrend: verdict,
		Commentary:    commentary(points, series, volatility, verdict),
	}
}

func classifyDelta(delta, band float64) string {
	switch {
	case delta > band:
		return TrendImproving
	case delta < -band:
		return TrendDegrading
	default:
		return TrendStable
	}
}

// rollingMean computes a trailing-window mean with min_periods=1.
func rollingMean(series []float64, window int) []float64 {
	out := make([]float64, len(series))
	for i := range series {
		start := i - window + 1
		if start < 0 {
			start = 0
		}
		sum := 0.0
		for _, v := range series[start : i+1] {
			sum += v
		}
		out[i] = sum / float64(i+1-start)
	}
	return out
}

// rollingStd computes a trailing-window sample standard deviation with
// min_periods=2; positions with fewer samples report zero.
func rollingStd(series []float64, window int) []float64 {
	out := make([]float64, len(series))
	for i := range series {
		start := i - window + 1
		if start < 0 {
			start = 0
		}
		win := series[start : i+1]
		if len(win) < 2 {
			out[i] = 0
			continue
		}
		mean := 0.0
		for _, v := range win {
			mean += v
		}
		mean /= float64(len(win))
		ss := 0.0
		for _, v := range win {
			ss += (v - mean) * (v - mean)
		}
		out[i] = math.Sqrt(ss / float64(len(win)-1))
	}
	return out
}

// longTermVerdict compares the mean of the first window rolling-average
// samples against the mean of the last window samples.
func longTermVerdict(rolling []float64, window int, band float64) string {
	if len(rolling) < window {
		return TrendInsufficient
	}
	early := mean(rolling[:window])
	late := mean(rolling[len(rolling)-window:])
	diff := late - early
	switch {
	case diff > band:
		return TrendImproving
	case diff < -band:
		return TrendDegrading
	default:
		return TrendStable
	}
}

func mean(vals []float64) float64 {
	sum := 0.0
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}

func commentary(points []Point, series, volatility []float64, verdict string) string {
	hub := ""
	if len(points) > 0 {
		hub = points[0].Hub
	}
	if len(series) == 0 {
		return fmt.Sprintf("Hub %s has no scored records yet.", hub)
	}
	latest := Round2(series[len(series)-1])
	vol := Round2(volatility[len(volatility)-1])
	return fmt.Sprintf("Hub %s shows a %s trend overall. Latest yearly average is %.2f. Volatility index: %.2f.",
		hub, strings.ToLower(verdict), latest, vol)
}
