package telemetry

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// FrameColumns is the fixed column order of a resampled lap matrix.
// Changing it breaks every stored lap file, so don't.
var FrameColumns = []string{
	"lap_distance",
	"time",
	"pos_x",
	"pos_z",
	"speed",
	"rpm",
	"throttle",
	"brake",
	"steering",
	"yaw",
	"fuel_capacity",
	"fuel_level_percentage",
	"fuel_liters",
	"gear",
}

const (
	ColLapDistance = iota
	ColTime
	ColPosX
	ColPosZ
	ColSpeed
	ColRPM
	ColThrottle
	ColBrake
	ColSteering
	ColYaw
	ColFuelCapacity
	ColFuelLevelPercentage
	ColFuelLiters
	ColGear
	NumColumns
)

var ErrNoLaps = errors.New("capture contains no laps")

// InvalidLapError marks a lap with too little data to resample.
// The whole race processing fails on it.
type InvalidLapError struct {
	LapNumber int
	Reason    string
}

func (e *InvalidLapError) Error() string {
	return fmt.Sprintf("invalid lap %d: %s", e.LapNumber, e.Reason)
}

// ResampledLap is one lap reduced to a fixed number of frames over a
// common distance axis.
type ResampledLap struct {
	LapNumber     int
	LapTime       float64
	Frames        int
	PhysicsPoints int
	TimingPoints  int
	// row-major, Frames x NumColumns
	Data [][]float32
}

// Resample reduces all laps of a capture to a common frame count:
// the average sample count per lap, halved.
func Resample(laps []*LapData) ([]*ResampledLap, error) {
	if len(laps) == 0 {
		return nil, ErrNoLaps
	}
	total := 0
	for _, lap := range laps {
		total += len(lap.Physics) + len(lap.Timings)
	}
	targetFrames := total / len(laps) / 2
	if targetFrames < 2 {
		targetFrames = 2
	}

	ret := make([]*ResampledLap, 0, len(laps))
	for _, lap := range laps {
		resampled, err := resampleLap(lap, targetFrames)
		if err != nil {
			return nil, err
		}
		ret = append(ret, resampled)
	}
	return ret, nil
}

//nolint:funlen // one pass over all channels
func resampleLap(lap *LapData, targetFrames int) (*ResampledLap, error) {
	if len(lap.Physics) < 2 {
		return nil, &InvalidLapError{lap.LapNumber, "less than 2 physics samples"}
	}
	if len(lap.Timings) < 2 {
		return nil, &InvalidLapError{lap.LapNumber, "less than 2 timing samples"}
	}

	assignDistances(lap)

	lapTime := 0.0
	maxDistance := 0.0
	for _, t := range lap.Timings {
		lapTime = math.Max(lapTime, t.CurrentTime)
		maxDistance = math.Max(maxDistance, t.LapDistance)
	}
	for _, p := range lap.Physics {
		maxDistance = math.Max(maxDistance, p.LapDistance)
	}

	physics := make([]*PhysicsSample, len(lap.Physics))
	copy(physics, lap.Physics)
	sort.SliceStable(physics, func(i, j int) bool {
		return physics[i].LapDistance < physics[j].LapDistance
	})
	timings := make([]*TimingSample, len(lap.Timings))
	copy(timings, lap.Timings)
	sort.SliceStable(timings, func(i, j int) bool {
		return timings[i].LapDistance < timings[j].LapDistance
	})

	physDist := make([]float64, len(physics))
	for i, p := range physics {
		physDist[i] = p.LapDistance
	}
	timingDist := make([]float64, len(timings))
	times := make([]float64, len(timings))
	for i, t := range timings {
		timingDist[i] = t.LapDistance
		times[i] = t.CurrentTime
	}

	getters := map[int]func(*PhysicsSample) float64{
		ColPosX:     func(p *PhysicsSample) float64 { return p.PosX },
		ColPosZ:     func(p *PhysicsSample) float64 { return p.PosZ },
		ColSpeed:    func(p *PhysicsSample) float64 { return p.Speed },
		ColRPM:      func(p *PhysicsSample) float64 { return p.RPM },
		ColThrottle: func(p *PhysicsSample) float64 { return p.Throttle },
		ColBrake:    func(p *PhysicsSample) float64 { return p.Brake },
		ColSteering: func(p *PhysicsSample) float64 { return p.Steering },
		ColYaw:      func(p *PhysicsSample) float64 { return p.Yaw },
		ColFuelCapacity: func(p *PhysicsSample) float64 {
			return p.FuelCapacity
		},
		ColFuelLevelPercentage: func(p *PhysicsSample) float64 {
			return p.FuelLevelPercentage
		},
		ColFuelLiters: func(p *PhysicsSample) float64 { return p.FuelLiters },
	}
	channels := make(map[int]*interpolator, len(getters))
	for col, get := range getters {
		channels[col] = newInterpolator(physDist, channel(physics, get))
	}
	gears := channel(physics, func(p *PhysicsSample) float64 { return float64(p.Gear) })
	gearInterp := newInterpolator(physDist, gears)
	timeInterp := newInterpolator(timingDist, sanitize(times))

	data := make([][]float32, targetFrames)
	for i, dist := range linspace(0, maxDistance, targetFrames) {
		row := make([]float32, NumColumns)
		row[ColLapDistance] = float32(dist)
		row[ColTime] = float32(timeInterp.linear(dist))
		for col, ip := range channels {
			row[col] = float32(finiteOrZero(ip.linear(dist)))
		}
		row[ColGear] = float32(gearInterp.nearest(dist))
		data[i] = row
	}

	return &ResampledLap{
		LapNumber:     lap.LapNumber,
		LapTime:       lapTime,
		Frames:        targetFrames,
		PhysicsPoints: len(physics),
		TimingPoints:  len(timings),
		Data:          data,
	}, nil
}

// assignDistances derives a lap distance for every physics sample by
// interpolating between the bracketing timing samples in stream order.
// The physics packets carry no lap distance of their own.
func assignDistances(lap *LapData) {
	timings := lap.Timings
	ti := 0
	for _, p := range lap.Physics {
		for ti+1 < len(timings) && timings[ti+1].Seq < p.Seq {
			ti++
		}
		switch {
		case p.Seq <= timings[0].Seq:
			p.LapDistance = timings[0].LapDistance
		case ti+1 >= len(timings):
			p.LapDistance = timings[len(timings)-1].LapDistance
		default:
			t0, t1 := timings[ti], timings[ti+1]
			span := float64(t1.Seq - t0.Seq)
			frac := float64(p.Seq-t0.Seq) / span
			p.LapDistance = t0.LapDistance + frac*(t1.LapDistance-t0.LapDistance)
		}
	}
}

func channel(samples []*PhysicsSample, get func(*PhysicsSample) float64) []float64 {
	ret := make([]float64, len(samples))
	for i, s := range samples {
		ret[i] = get(s)
	}
	return sanitize(ret)
}

// sanitize replaces NaN and infinities so every channel stays
// interpolable.
func sanitize(values []float64) []float64 {
	for i, v := range values {
		if !isFinite(v) {
			values[i] = 0
		}
	}
	return values
}

func finiteOrZero(v float64) float64 {
	if !isFinite(v) {
		return 0
	}
	return v
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func linspace(start, stop float64, num int) []float64 {
	ret := make([]float64, num)
	step := (stop - start) / float64(num-1)
	for i := range ret {
		ret[i] = start + float64(i)*step
	}
	return ret
}

// interpolator evaluates a sampled signal at arbitrary positions,
// clamping outside the sampled range. Positions must be sorted.
type interpolator struct {
	xs []float64
	ys []float64
}

func newInterpolator(xs, ys []float64) *interpolator {
	return &interpolator{xs: xs, ys: ys}
}

func (ip *interpolator) linear(x float64) float64 {
	i := ip.bracket(x)
	if i < 0 {
		return ip.ys[0]
	}
	if i+1 >= len(ip.xs) {
		return ip.ys[len(ip.ys)-1]
	}
	x0, x1 := ip.xs[i], ip.xs[i+1]
	if x1 == x0 {
		return ip.ys[i]
	}
	frac := (x - x0) / (x1 - x0)
	return ip.ys[i] + frac*(ip.ys[i+1]-ip.ys[i])
}

func (ip *interpolator) nearest(x float64) float64 {
	i := ip.bracket(x)
	if i < 0 {
		return ip.ys[0]
	}
	if i+1 >= len(ip.xs) {
		return ip.ys[len(ip.ys)-1]
	}
	if x-ip.xs[i] <= ip.xs[i+1]-x {
		return ip.ys[i]
	}
	return ip.ys[i+1]
}

// bracket returns the index i with xs[i] <= x < xs[i+1],
// -1 below the range, len-1 above.
func (ip *interpolator) bracket(x float64) int {
	if x < ip.xs[0] {
		return -1
	}
	lo, hi := 0, len(ip.xs)-1
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if ip.xs[mid] <= x {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return lo
}
