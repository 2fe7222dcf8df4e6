package service

import (
	"context"
	"math"
	"sort"

	"github.com/gofrs/uuid/v5"

	"github.com/mpapenbr/ams2-telemetry-go/pkg/repository"
	"github.com/mpapenbr/ams2-telemetry-go/pkg/storage"
	"github.com/mpapenbr/ams2-telemetry-go/pkg/telemetry"
)

// common distance grid and segment analysis tuning
const (
	compareGridSize    = 1000
	segmentWindowSize  = 50
	segmentTopN        = 5
	trackMapSegmentLen = 20
	mpsToKmh           = 3.6
)

type LapCompareService struct {
	races repository.RaceRepository
	laps  repository.LapRepository
	store storage.ObjectStorage
}

//nolint:whitespace // can't make the linters happy
func NewLapCompareService(
	races repository.RaceRepository,
	laps repository.LapRepository,
	store storage.ObjectStorage,
) *LapCompareService {
	return &LapCompareService{races: races, laps: laps, store: store}
}

type CompareSummary struct {
	Lap1Time         float64 `json:"lap_1_time"`
	Lap2Time         float64 `json:"lap_2_time"`
	DeltaFinal       float64 `json:"delta_final"`
	DeltaMin         float64 `json:"delta_min"`
	DeltaMax         float64 `json:"delta_max"`
	DeltaMinPosition float64 `json:"delta_min_position"`
	DeltaMaxPosition float64 `json:"delta_max_position"`
	MaxSpeedLap1     float64 `json:"max_speed_lap_1"`
	MaxSpeedLap2     float64 `json:"max_speed_lap_2"`
}

type ChannelSeries struct {
	Distance []float64 `json:"distance"`
	Lap1     []float64 `json:"lap_1"`
	Lap2     []float64 `json:"lap_2"`
}

type DeltaSeries struct {
	Distance []float64 `json:"distance"`
	Delta    []float64 `json:"delta"`
}

type Segment struct {
	StartDistance float64 `json:"start_distance"`
	EndDistance   float64 `json:"end_distance"`
	TimeDelta     float64 `json:"time_delta"`
}

type SegmentAnalysis struct {
	TimeLossSegments []Segment `json:"time_loss_segments"`
	TimeGainSegments []Segment `json:"time_gain_segments"`
}

type TrackMap struct {
	PosX       []float64 `json:"pos_x"`
	PosZ       []float64 `json:"pos_z"`
	ColorValue []float64 `json:"color_value"`
}

type LapComparison struct {
	Summary         CompareSummary  `json:"summary"`
	DeltaTime       DeltaSeries     `json:"delta_time"`
	Speed           ChannelSeries   `json:"speed"`
	Throttle        ChannelSeries   `json:"throttle"`
	Brake           ChannelSeries   `json:"brake"`
	Steering        ChannelSeries   `json:"steering"`
	SegmentAnalysis SegmentAnalysis `json:"segment_analysis"`
	DeltaTrackMap   TrackMap        `json:"delta_track_map"`
}

// Compare aligns two laps of a race on a common distance grid and
// reports where time is gained and lost. Positive delta means lap 2
// is slower at that point.
//
//nolint:funlen // assembles the full response in one pass
func (s *LapCompareService) Compare(
	ctx context.Context, raceID uuid.UUID, lap1, lap2 int,
) (*LapComparison, error) {
	if err := requireReady(ctx, s.races, raceID); err != nil {
		return nil, err
	}
	frames1, err := loadLapFrames(ctx, s.laps, s.store, raceID, lap1)
	if err != nil {
		return nil, err
	}
	frames2, err := loadLapFrames(ctx, s.laps, s.store, raceID, lap2)
	if err != nil {
		return nil, err
	}

	maxDistance := math.Min(frames1.maxDist(), frames2.maxDist())
	grid := telemetry.Linspace(0, maxDistance, compareGridSize)

	time1 := frames1.series(telemetry.ColTime).Sample(grid)
	time2 := frames2.series(telemetry.ColTime).Sample(grid)
	delta := make([]float64, len(grid))
	for i := range grid {
		delta[i] = time2[i] - time1[i]
	}

	channel := func(col int, scale float64) ChannelSeries {
		v1 := frames1.series(col).Sample(grid)
		v2 := frames2.series(col).Sample(grid)
		for i := range grid {
			v1[i] *= scale
			v2[i] *= scale
		}
		return ChannelSeries{Distance: grid, Lap1: v1, Lap2: v2}
	}

	loss, gain := findTopSegments(grid, delta)

	return &LapComparison{
		Summary:         buildSummary(frames1, frames2, grid, delta),
		DeltaTime:       DeltaSeries{Distance: grid, Delta: delta},
		Speed:           channel(telemetry.ColSpeed, mpsToKmh),
		Throttle:        channel(telemetry.ColThrottle, 1),
		Brake:           channel(telemetry.ColBrake, 1),
		Steering:        channel(telemetry.ColSteering, 1),
		SegmentAnalysis: SegmentAnalysis{TimeLossSegments: loss, TimeGainSegments: gain},
		DeltaTrackMap:   buildTrackMap(frames1, loss, gain),
	}, nil
}

//nolint:whitespace // can't make the linters happy
func buildSummary(
	frames1, frames2 *lapFrames,
	grid, delta []float64,
) CompareSummary {
	minIdx, maxIdx := 0, 0
	for i, d := range delta {
		if d < delta[minIdx] {
			minIdx = i
		}
		if d > delta[maxIdx] {
			maxIdx = i
		}
	}
	return CompareSummary{
		Lap1Time:         frames1.lapTime(),
		Lap2Time:         frames2.lapTime(),
		DeltaFinal:       delta[len(delta)-1],
		DeltaMin:         delta[minIdx],
		DeltaMax:         delta[maxIdx],
		DeltaMinPosition: grid[minIdx],
		DeltaMaxPosition: grid[maxIdx],
		MaxSpeedLap1:     maxOf(frames1.col(telemetry.ColSpeed)) * mpsToKmh,
		MaxSpeedLap2:     maxOf(frames2.col(telemetry.ColSpeed)) * mpsToKmh,
	}
}

// findTopSegments slides a window over the delta series and greedily
// picks the top non-overlapping windows with the largest time change
// in each direction.
func findTopSegments(grid, delta []float64) (loss, gain []Segment) {
	if len(delta) < segmentWindowSize {
		return []Segment{}, []Segment{}
	}
	numWindows := len(delta) - segmentWindowSize + 1
	change := make([]float64, numWindows)
	for i := range change {
		change[i] = delta[i+segmentWindowSize-1] - delta[i]
	}

	pick := func(ascending bool) []Segment {
		order := make([]int, numWindows)
		for i := range order {
			order[i] = i
		}
		sort.Slice(order, func(a, b int) bool {
			if ascending {
				return change[order[a]] < change[order[b]]
			}
			return change[order[a]] > change[order[b]]
		})

		selected := []Segment{}
		used := make([]bool, numWindows)
		for _, idx := range order {
			if used[idx] {
				continue
			}
			selected = append(selected, Segment{
				StartDistance: grid[idx],
				EndDistance:   grid[idx+segmentWindowSize-1],
				TimeDelta:     change[idx],
			})
			for i := max(0, idx-segmentWindowSize+1); i < min(numWindows, idx+segmentWindowSize); i++ {
				used[i] = true
			}
			if len(selected) >= segmentTopN {
				break
			}
		}
		return selected
	}

	return pick(false), pick(true)
}

// buildTrackMap downsamples the reference lap's position trace and
// colors each point by the segment verdict: 1 losing, -1 gaining,
// 0 neutral.
func buildTrackMap(frames *lapFrames, loss, gain []Segment) TrackMap {
	posX := frames.col(telemetry.ColPosX)
	posZ := frames.col(telemetry.ColPosZ)
	dist := frames.dist()

	numSegments := len(posX) / trackMapSegmentLen
	midIdx := trackMapSegmentLen / 2

	ret := TrackMap{
		PosX:       make([]float64, numSegments),
		PosZ:       make([]float64, numSegments),
		ColorValue: make([]float64, numSegments),
	}
	for i := 0; i < numSegments; i++ {
		mid := i*trackMapSegmentLen + midIdx
		ret.PosX[i] = posX[mid]
		ret.PosZ[i] = posZ[mid]
		for _, seg := range loss {
			if dist[mid] >= seg.StartDistance && dist[mid] <= seg.EndDistance {
				ret.ColorValue[i] = 1
			}
		}
		for _, seg := range gain {
			if dist[mid] >= seg.StartDistance && dist[mid] <= seg.EndDistance {
				ret.ColorValue[i] = -1
			}
		}
	}
	return ret
}

func maxOf(values []float64) float64 {
	ret := math.Inf(-1)
	for _, v := range values {
		ret = math.Max(ret, v)
	}
	return ret
}
