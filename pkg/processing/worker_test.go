package processing

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/gofrs/uuid/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mpapenbr/ams2-telemetry-go/pkg/model"
	"github.com/mpapenbr/ams2-telemetry-go/pkg/queue"
	"github.com/mpapenbr/ams2-telemetry-go/pkg/storage"
	"github.com/mpapenbr/ams2-telemetry-go/pkg/storage/local"
	"github.com/mpapenbr/ams2-telemetry-go/pkg/telemetry"
	"github.com/mpapenbr/ams2-telemetry-go/testsupport/memstore"
	"github.com/mpapenbr/ams2-telemetry-go/testsupport/telemetrydata"
)

type fixture struct {
	races *memstore.RaceStore
	laps  *memstore.LapStore
	store *local.Storage
	proc  *RaceProcessor
}

func setup(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		races: memstore.NewRaceStore(),
		laps:  memstore.NewLapStore(),
		store: local.New(),
	}
	f.proc = NewRaceProcessor(f.races, f.laps, f.store, WithMaxRetries(0))
	return f
}

// creates a Processing race with its raw blob already uploaded
func (f *fixture) createRace(t *testing.T, capture []byte) *model.Race {
	t.Helper()
	ctx := context.Background()
	race := &model.Race{
		ID:     uuid.Must(uuid.NewV4()),
		Status: model.StatusProcessing,
	}
	race.RawDataPath = storage.RawDataPath(race.ID)
	compressed := telemetrydata.Compress(capture)
	require.NoError(t, f.store.Upload(ctx, race.RawDataPath,
		bytes.NewReader(compressed), int64(len(compressed))))
	require.NoError(t, f.races.Create(ctx, race))
	return race
}

func (f *fixture) job(race *model.Race) *queue.Job {
	return &queue.Job{
		ID:          "job-1",
		RaceID:      race.ID,
		RawDataPath: race.RawDataPath,
	}
}

func TestProcessJob_Success(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	race := f.createRace(t, telemetrydata.SampleCapture(3, 40))

	err := f.proc.ProcessJob(ctx, f.job(race))
	assert.NoError(t, err)

	loaded, err := f.races.LoadByID(ctx, race.ID)
	assert.NoError(t, err)
	assert.Equal(t, model.StatusReady, loaded.Status)

	laps, err := f.laps.LoadByRace(ctx, race.ID)
	assert.NoError(t, err)
	assert.Len(t, laps, 3)
	for i, lap := range laps {
		assert.Equal(t, i+1, lap.LapNumber)
		assert.Equal(t,
			storage.LapDataPath(race.ID, lap.LapUUID), lap.ProcessedDataPath)

		// the record must point at a decodable blob
		raw, ok := f.store.Object(lap.ProcessedDataPath)
		assert.True(t, ok)
		decoded, err := telemetry.DecodeNpy(raw)
		assert.NoError(t, err)
		assert.Len(t, decoded[0], telemetry.NumColumns)
	}
}

func TestProcessJob_UnknownRaceIsRetryable(t *testing.T) {
	f := setup(t)

	err := f.proc.ProcessJob(context.Background(), &queue.Job{
		ID:     "job-1",
		RaceID: uuid.Must(uuid.NewV4()),
	})
	assert.Error(t, err)
}

func TestProcessJob_TerminalRaceIsDiscarded(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	race := f.createRace(t, telemetrydata.SampleCapture(2, 40))

	require.NoError(t, f.proc.ProcessJob(ctx, f.job(race)))
	laps, _ := f.laps.LoadByRace(ctx, race.ID)
	before := len(laps)

	// redelivery of the same job must not add anything
	assert.NoError(t, f.proc.ProcessJob(ctx, f.job(race)))
	laps, _ = f.laps.LoadByRace(ctx, race.ID)
	assert.Len(t, laps, before)
}

func TestProcessJob_CorruptDataFails(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	race := &model.Race{
		ID:     uuid.Must(uuid.NewV4()),
		Status: model.StatusProcessing,
	}
	race.RawDataPath = storage.RawDataPath(race.ID)
	garbage := []byte("definitely not a deflate stream")
	require.NoError(t, f.store.Upload(ctx, race.RawDataPath,
		bytes.NewReader(garbage), int64(len(garbage))))
	require.NoError(t, f.races.Create(ctx, race))

	// data errors are terminal, not retryable
	assert.NoError(t, f.proc.ProcessJob(ctx, f.job(race)))

	loaded, _ := f.races.LoadByID(ctx, race.ID)
	assert.Equal(t, model.StatusFailed, loaded.Status)
}

func TestProcessJob_InvalidLapFails(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	// one timing only, no physics: lap exists but can't be resampled
	race := f.createRace(t, telemetrydata.Stream(
		telemetrydata.TimingsPacket(1, 0, 0),
	))

	assert.NoError(t, f.proc.ProcessJob(ctx, f.job(race)))
	loaded, _ := f.races.LoadByID(ctx, race.ID)
	assert.Equal(t, model.StatusFailed, loaded.Status)
}

func TestProcessJob_DownloadFailureFails(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	race := f.createRace(t, telemetrydata.SampleCapture(1, 40))
	f.store.DownloadErr = errors.New("connection refused")

	assert.NoError(t, f.proc.ProcessJob(ctx, f.job(race)))
	loaded, _ := f.races.LoadByID(ctx, race.ID)
	assert.Equal(t, model.StatusFailed, loaded.Status)
}

func TestProcessJob_LapRecordFailureFails(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	race := f.createRace(t, telemetrydata.SampleCapture(2, 40))
	f.laps.CreateErr = errors.New("db down")

	assert.NoError(t, f.proc.ProcessJob(ctx, f.job(race)))
	loaded, _ := f.races.LoadByID(ctx, race.ID)
	assert.Equal(t, model.StatusFailed, loaded.Status)
}

func TestProcessJob_UploadFailureFails(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	race := f.createRace(t, telemetrydata.SampleCapture(1, 40))
	f.store.UploadErr = errors.New("bucket gone")

	assert.NoError(t, f.proc.ProcessJob(ctx, f.job(race)))
	loaded, _ := f.races.LoadByID(ctx, race.ID)
	assert.Equal(t, model.StatusFailed, loaded.Status)

	// no lap record may exist without its blob
	laps, _ := f.laps.LoadByRace(ctx, race.ID)
	assert.Empty(t, laps)
}
