package service

import (
	"context"

	"github.com/gofrs/uuid/v5"
	"github.com/shopspring/decimal"

	"github.com/mpapenbr/ams2-telemetry-go/pkg/repository"
	"github.com/mpapenbr/ams2-telemetry-go/pkg/storage"
	"github.com/mpapenbr/ams2-telemetry-go/pkg/telemetry"
)

const (
	fuelCurveGridSize = 500
	fuelDeltaGridSize = 1000
	fuelPrecision     = 3
)

type FuelAnalysisService struct {
	races repository.RaceRepository
	laps  repository.LapRepository
	store storage.ObjectStorage
}

//nolint:whitespace // can't make the linters happy
func NewFuelAnalysisService(
	races repository.RaceRepository,
	laps repository.LapRepository,
	store storage.ObjectStorage,
) *FuelAnalysisService {
	return &FuelAnalysisService{races: races, laps: laps, store: store}
}

type FuelSummary struct {
	LapNumber              int     `json:"lap_number"`
	LapTime                float64 `json:"lap_time"`
	FuelCapacity           float64 `json:"fuel_capacity"`
	FuelStart              float64 `json:"fuel_start"`
	FuelEnd                float64 `json:"fuel_end"`
	FuelUsed               float64 `json:"fuel_used"`
	ConsumptionRatePerKm   float64 `json:"consumption_rate_per_km"`
	LapDistanceKm          float64 `json:"lap_distance_km"`
	EstimatedLapsRemaining float64 `json:"estimated_laps_remaining"`
}

type FuelCurve struct {
	Distance       []float64 `json:"distance"`
	FuelLiters     []float64 `json:"fuel_liters"`
	FuelPercentage []float64 `json:"fuel_percentage"`
}

type LapFuelAnalysis struct {
	Summary   FuelSummary `json:"summary"`
	FuelCurve FuelCurve   `json:"fuel_curve"`
}

// AnalyzeLap reports the fuel consumption of a single stored lap.
func (s *FuelAnalysisService) AnalyzeLap(
	ctx context.Context, raceID uuid.UUID, lapNumber int,
) (*LapFuelAnalysis, error) {
	if err := requireReady(ctx, s.races, raceID); err != nil {
		return nil, err
	}
	frames, err := loadLapFrames(ctx, s.laps, s.store, raceID, lapNumber)
	if err != nil {
		return nil, err
	}

	grid := telemetry.Linspace(0, frames.maxDist(), fuelCurveGridSize)
	return &LapFuelAnalysis{
		Summary: buildFuelSummary(frames),
		FuelCurve: FuelCurve{
			Distance:       grid,
			FuelLiters:     frames.series(telemetry.ColFuelLiters).Sample(grid),
			FuelPercentage: frames.series(telemetry.ColFuelLevelPercentage).Sample(grid),
		},
	}, nil
}

func buildFuelSummary(frames *lapFrames) FuelSummary {
	liters := frames.col(telemetry.ColFuelLiters)
	fuelStart := liters[0]
	fuelEnd := liters[len(liters)-1]
	fuelUsed := fuelStart - fuelEnd
	distanceKm := frames.maxDist() / 1000.0

	ratePerKm := 0.0
	if distanceKm > 0 {
		ratePerKm = fuelUsed / distanceKm
	}
	lapsRemaining := 0.0
	if fuelUsed > 0 {
		lapsRemaining = fuelEnd / fuelUsed
	}

	return FuelSummary{
		LapNumber:              frames.Number,
		LapTime:                frames.lapTime(),
		FuelCapacity:           frames.col(telemetry.ColFuelCapacity)[0],
		FuelStart:              roundFuel(fuelStart),
		FuelEnd:                roundFuel(fuelEnd),
		FuelUsed:               roundFuel(fuelUsed),
		ConsumptionRatePerKm:   roundFuel(ratePerKm),
		LapDistanceKm:          roundFuel(distanceKm),
		EstimatedLapsRemaining: roundFuel(lapsRemaining),
	}
}

type FuelComparisonSummary struct {
	Lap1Number           int     `json:"lap_1_number"`
	Lap2Number           int     `json:"lap_2_number"`
	Lap1Time             float64 `json:"lap_1_time"`
	Lap2Time             float64 `json:"lap_2_time"`
	Lap1FuelUsed         float64 `json:"lap_1_fuel_used"`
	Lap2FuelUsed         float64 `json:"lap_2_fuel_used"`
	FuelDelta            float64 `json:"fuel_delta"`
	Lap1ConsumptionRate  float64 `json:"lap_1_consumption_rate"`
	Lap2ConsumptionRate  float64 `json:"lap_2_consumption_rate"`
	ConsumptionRateDelta float64 `json:"consumption_rate_delta"`
	MoreEfficientLap     int     `json:"more_efficient_lap"`
}

type FuelComparisonCurves struct {
	Distance []float64 `json:"distance"`
	Lap1Fuel []float64 `json:"lap_1_fuel"`
	Lap2Fuel []float64 `json:"lap_2_fuel"`
}

type FuelComparison struct {
	Summary    FuelComparisonSummary `json:"summary"`
	FuelDelta  DeltaSeries           `json:"fuel_delta"`
	FuelCurves FuelComparisonCurves  `json:"fuel_curves"`
}

// CompareFuel aligns the fuel consumption of two laps on a common
// distance grid. Positive delta means lap 2 consumed more up to that
// point.
func (s *FuelAnalysisService) CompareFuel(
	ctx context.Context, raceID uuid.UUID, lap1, lap2 int,
) (*FuelComparison, error) {
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

	maxDistance := frames1.maxDist()
	if frames2.maxDist() < maxDistance {
		maxDistance = frames2.maxDist()
	}
	grid := telemetry.Linspace(0, maxDistance, fuelDeltaGridSize)

	fuel1 := frames1.series(telemetry.ColFuelLiters).Sample(grid)
	fuel2 := frames2.series(telemetry.ColFuelLiters).Sample(grid)

	liters1 := frames1.col(telemetry.ColFuelLiters)
	liters2 := frames2.col(telemetry.ColFuelLiters)
	start1, start2 := liters1[0], liters2[0]

	delta := make([]float64, len(grid))
	for i := range grid {
		consumed1 := start1 - fuel1[i]
		consumed2 := start2 - fuel2[i]
		delta[i] = consumed2 - consumed1
	}

	return &FuelComparison{
		Summary:    buildFuelComparisonSummary(frames1, frames2),
		FuelDelta:  DeltaSeries{Distance: grid, Delta: delta},
		FuelCurves: FuelComparisonCurves{Distance: grid, Lap1Fuel: fuel1, Lap2Fuel: fuel2},
	}, nil
}

func buildFuelComparisonSummary(frames1, frames2 *lapFrames) FuelComparisonSummary {
	sum1 := buildFuelSummary(frames1)
	sum2 := buildFuelSummary(frames2)

	moreEfficient := sum1.LapNumber
	if sum2.FuelUsed < sum1.FuelUsed {
		moreEfficient = sum2.LapNumber
	}
	return FuelComparisonSummary{
		Lap1Number:           sum1.LapNumber,
		Lap2Number:           sum2.LapNumber,
		Lap1Time:             sum1.LapTime,
		Lap2Time:             sum2.LapTime,
		Lap1FuelUsed:         sum1.FuelUsed,
		Lap2FuelUsed:         sum2.FuelUsed,
		FuelDelta:            roundFuel(sum2.FuelUsed - sum1.FuelUsed),
		Lap1ConsumptionRate:  sum1.ConsumptionRatePerKm,
		Lap2ConsumptionRate:  sum2.ConsumptionRatePerKm,
		ConsumptionRateDelta: roundFuel(sum2.ConsumptionRatePerKm - sum1.ConsumptionRatePerKm),
		MoreEfficientLap:     moreEfficient,
	}
}

func roundFuel(v float64) float64 {
	return decimal.NewFromFloat(v).Round(fuelPrecision).InexactFloat64()
}
