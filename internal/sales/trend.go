package sales

import "math"

// Direction summarizes the slope of a series.
type Direction string

const (
	DirectionUp           Direction = "upward"
	DirectionDown         Direction = "downward"
	DirectionStable       Direction = "stable"
	DirectionInsufficient Direction = "insufficient_data"
)

const (
	minTrendPoints = 3
	trendThreshold = 0.1
	shortWindow    = 7
	longWindow     = 30
)

// Trend is a least squares line fitted to a series with its forecast.
type Trend struct {
	Direction       Direction
	Slope           float64
	Intercept       float64
	Forecast        []float64
	MovingAverage7  []float64
	MovingAverage30 []float64
	// Volatility is the population standard deviation of the series.
	Volatility float64
	RSquared   float64
}

// AnalyzeTrend fits a line through series indexed 0..n-1 and projects it
// periods steps ahead. Fewer than three points yield DirectionInsufficient.
func AnalyzeTrend(series []float64, periods int) Trend {
	if len(series) < minTrendPoints {
		return Trend{Direction: DirectionInsufficient}
	}

	slope, intercept := fitLine(series)
	trend := Trend{
		Direction:       DirectionStable,
		Slope:           slope,
		Intercept:       intercept,
		MovingAverage7:  movingAverage(series, shortWindow),
		MovingAverage30: movingAverage(series, longWindow),
		Volatility:      stddev(series),
		RSquared:        rSquared(series, slope, intercept),
	}
	switch {
	case slope > trendThreshold:
		trend.Direction = DirectionUp
	case slope < -trendThreshold:
		trend.Direction = DirectionDown
	}

	n := len(series)
	for i := 0; i < periods; i++ {
		trend.Forecast = append(trend.Forecast, slope*float64(n+i)+intercept)
	}
	return trend
}

func fitLine(series []float64) (slope, intercept float64) {
	n := float64(len(series))
	meanX := (n - 1) / 2
	meanY := mean(series)

	var sxy, sxx float64
	for i, y := range series {
		dx := float64(i) - meanX
		sxy += dx * (y - meanY)
		sxx += dx * dx
	}
	slope = sxy / sxx
	return slope, meanY - slope*meanX
}

func rSquared(series []float64, slope, intercept float64) float64 {
	meanY := mean(series)
	var ssTot, ssRes float64
	for i, y := range series {
		predicted := slope*float64(i) + intercept
		ssTot += (y - meanY) * (y - meanY)
		ssRes += (y - predicted) * (y - predicted)
	}
	if ssTot == 0 {
		return 0
	}
	return 1 - ssRes/ssTot
}

// movingAverage averages each point with up to window-1 predecessors. A
// series shorter than window is returned unchanged.
func movingAverage(series []float64, window int) []float64 {
	out := make([]float64, len(series))
	if len(series) < window {
		copy(out, series)
		return out
	}
	var sum float64
	for i, y := range series {
		sum += y
		if i >= window {
			sum -= series[i-window]
		}
		out[i] = sum / float64(min(i+1, window))
	}
	return out
}

func mean(series []float64) float64 {
	var sum float64
	for _, y := range series {
		sum += y
	}
	return sum / float64(len(series))
}

func stddev(series []float64) float64 {
	m := mean(series)
	var sq float64
	for _, y := range series {
		sq += (y - m) * (y - m)
	}
	return math.Sqrt(sq / float64(len(series)))
}
