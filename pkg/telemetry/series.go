package telemetry

// Series evaluates a sampled channel at arbitrary positions with
// linear interpolation, clamped at the ends. Used by the analysis
// services to align laps on a common distance grid.
type Series struct {
	ip *interpolator
}

// NewSeries builds a series from parallel position/value slices.
// Positions must be sorted ascending.
func NewSeries(xs, ys []float64) *Series {
	return &Series{ip: newInterpolator(xs, ys)}
}

func (s *Series) At(x float64) float64 {
	return s.ip.linear(x)
}

// Sample evaluates the series at every given position.
func (s *Series) Sample(xs []float64) []float64 {
	ret := make([]float64, len(xs))
	for i, x := range xs {
		ret[i] = s.ip.linear(x)
	}
	return ret
}

// Linspace returns num evenly spaced values from start to stop inclusive.
func Linspace(start, stop float64, num int) []float64 {
	return linspace(start, stop, num)
}

// Column extracts one column of a lap matrix as float64.
func Column(data [][]float32, col int) []float64 {
	ret := make([]float64, len(data))
	for i, row := range data {
		ret[i] = float64(row[col])
	}
	return ret
}
