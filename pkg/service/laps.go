package service

import (
	"context"
	"errors"
	"io"

	"github.com/gofrs/uuid/v5"

	"github.com/mpapenbr/ams2-telemetry-go/pkg/model"
	"github.com/mpapenbr/ams2-telemetry-go/pkg/repository"
	"github.com/mpapenbr/ams2-telemetry-go/pkg/storage"
	"github.com/mpapenbr/ams2-telemetry-go/pkg/telemetry"
)

// lapFrames is one stored lap matrix plus accessors used by the
// analysis services.
type lapFrames struct {
	Number int
	Data   [][]float32
}

func (f *lapFrames) col(c int) []float64 {
	return telemetry.Column(f.Data, c)
}

func (f *lapFrames) dist() []float64 {
	return f.col(telemetry.ColLapDistance)
}

func (f *lapFrames) maxDist() float64 {
	d := f.dist()
	return d[len(d)-1]
}

// lapTime recovers the lap time from the interpolated time channel:
// the last frame sits at the full lap distance.
func (f *lapFrames) lapTime() float64 {
	t := f.col(telemetry.ColTime)
	return t[len(t)-1]
}

func (f *lapFrames) series(c int) *telemetry.Series {
	return telemetry.NewSeries(f.dist(), f.col(c))
}

//nolint:whitespace // can't make the linters happy
func loadLapFrames(
	ctx context.Context,
	laps repository.LapRepository,
	store storage.ObjectStorage,
	raceID uuid.UUID,
	lapNumber int,
) (*lapFrames, error) {
	lap, err := laps.LoadByNumber(ctx, raceID, lapNumber)
	if err != nil {
		if errors.Is(err, repository.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	reader, err := store.Download(ctx, lap.ProcessedDataPath)
	if err != nil {
		return nil, &StorageError{Op: "download lap", Err: err}
	}
	defer reader.Close()
	raw, err := io.ReadAll(reader)
	if err != nil {
		return nil, &StorageError{Op: "download lap", Err: err}
	}
	data, err := telemetry.DecodeNpy(raw)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, errors.New("empty lap data")
	}
	return &lapFrames{Number: lap.LapNumber, Data: data}, nil
}

//nolint:whitespace // can't make the linters happy
func requireReady(
	ctx context.Context,
	races repository.RaceRepository,
	raceID uuid.UUID,
) error {
	race, err := races.LoadByID(ctx, raceID)
	if err != nil {
		if errors.Is(err, repository.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}
	if race.Status != model.StatusReady {
		return ErrRaceNotReady
	}
	return nil
}
