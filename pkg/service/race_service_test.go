package service

import (
	"context"
	"errors"
	"testing"

	"github.com/gofrs/uuid/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mpapenbr/ams2-telemetry-go/pkg/model"
	"github.com/mpapenbr/ams2-telemetry-go/pkg/processing"
	"github.com/mpapenbr/ams2-telemetry-go/pkg/queue"
	localqueue "github.com/mpapenbr/ams2-telemetry-go/pkg/queue/local"
	"github.com/mpapenbr/ams2-telemetry-go/pkg/storage"
	localstore "github.com/mpapenbr/ams2-telemetry-go/pkg/storage/local"
	"github.com/mpapenbr/ams2-telemetry-go/testsupport/memstore"
	"github.com/mpapenbr/ams2-telemetry-go/testsupport/telemetrydata"
)

type fixture struct {
	races *memstore.RaceStore
	laps  *memstore.LapStore
	store *localstore.Storage
	jobs  *localqueue.Queue
	svc   *RaceService
}

func setup(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		races: memstore.NewRaceStore(),
		laps:  memstore.NewLapStore(),
		store: localstore.New(),
		jobs:  localqueue.New(),
	}
	f.svc = NewRaceService(f.races, f.laps, f.store, f.jobs)
	return f
}

// runs the worker over every pending job
func (f *fixture) drainJobs(t *testing.T) {
	t.Helper()
	proc := processing.NewRaceProcessor(f.races, f.laps, f.store,
		processing.WithMaxRetries(0))
	f.jobs.ConsumeAll(context.Background(),
		func(ctx context.Context, job *queue.Job) error {
			return proc.ProcessJob(ctx, job)
		})
}

func TestRaceService_Upload(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	payload := telemetrydata.Compress(telemetrydata.SampleCapture(2, 40))

	got, err := f.svc.Upload(ctx, payload)
	assert.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, got.RaceID)
	assert.Equal(t, model.StatusProcessing, got.Status)
	assert.NotEmpty(t, got.JobID)
	assert.NotEmpty(t, got.Message)

	// blob, record and job must all exist
	exists, _ := f.store.Exists(ctx, storage.RawDataPath(got.RaceID))
	assert.True(t, exists)
	race, err := f.races.LoadByID(ctx, got.RaceID)
	assert.NoError(t, err)
	assert.Equal(t, model.StatusProcessing, race.Status)
	assert.Equal(t, 1, f.jobs.Pending())
}

func TestRaceService_UploadEmptyPayload(t *testing.T) {
	f := setup(t)

	_, err := f.svc.Upload(context.Background(), []byte{})
	var intake *IntakeError
	assert.ErrorAs(t, err, &intake)

	// nothing may have been created
	ids, _ := f.races.ListIDs(context.Background())
	assert.Empty(t, ids)
	assert.Empty(t, f.store.Keys())
}

func TestRaceService_UploadBlobFailure(t *testing.T) {
	f := setup(t)
	f.store.UploadErr = errors.New("bucket gone")

	_, err := f.svc.Upload(context.Background(), []byte("payload"))
	var stErr *StorageError
	assert.ErrorAs(t, err, &stErr)

	// blob-before-record: no record without its blob
	ids, _ := f.races.ListIDs(context.Background())
	assert.Empty(t, ids)
}

func TestRaceService_UploadEnqueueFailure(t *testing.T) {
	f := setup(t)
	f.jobs.EnqueueErr = errors.New("stream gone")

	_, err := f.svc.Upload(context.Background(), []byte("payload"))
	assert.Error(t, err)

	// the record stays in Processing for the sweep to pick up
	infos, _ := f.races.LoadAll(context.Background())
	assert.Len(t, infos, 1)
	assert.Equal(t, model.StatusProcessing, infos[0].Status)
}

func TestRaceService_Status(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	payload := telemetrydata.Compress(telemetrydata.SampleCapture(3, 40))
	uploaded, err := f.svc.Upload(ctx, payload)
	require.NoError(t, err)

	info, err := f.svc.Status(ctx, uploaded.RaceID)
	assert.NoError(t, err)
	assert.Equal(t, model.StatusProcessing, info.Status)
	assert.Equal(t, 0, info.LapsCount)

	f.drainJobs(t)

	info, err = f.svc.Status(ctx, uploaded.RaceID)
	assert.NoError(t, err)
	assert.Equal(t, model.StatusReady, info.Status)
	assert.Equal(t, 3, info.LapsCount)

	_, err = f.svc.Status(ctx, uuid.Must(uuid.NewV4()))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRaceService_Download(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	payload := telemetrydata.Compress(telemetrydata.SampleCapture(1, 40))
	uploaded, err := f.svc.Upload(ctx, payload)
	require.NoError(t, err)

	got, err := f.svc.Download(ctx, uploaded.RaceID)
	assert.NoError(t, err)
	assert.Equal(t, payload, got)

	_, err = f.svc.Download(ctx, uuid.Must(uuid.NewV4()))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRaceService_Delete(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	payload := telemetrydata.Compress(telemetrydata.SampleCapture(2, 40))
	uploaded, err := f.svc.Upload(ctx, payload)
	require.NoError(t, err)
	f.drainJobs(t)

	// raw blob + 2 lap blobs
	assert.Len(t, f.store.Keys(), 3)

	assert.NoError(t, f.svc.Delete(ctx, uploaded.RaceID))
	assert.Empty(t, f.store.Keys())
	_, err = f.svc.Status(ctx, uploaded.RaceID)
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, f.svc.Delete(ctx, uploaded.RaceID), ErrNotFound)
}
