// Package service implements the operations behind the REST endpoints:
// intake, status queries, downloads and the lap analysis supplements.
package service

import (
	"bytes"
	"context"
	"errors"
	"io"

	"github.com/gofrs/uuid/v5"

	"github.com/mpapenbr/ams2-telemetry-go/log"
	"github.com/mpapenbr/ams2-telemetry-go/pkg/model"
	"github.com/mpapenbr/ams2-telemetry-go/pkg/queue"
	"github.com/mpapenbr/ams2-telemetry-go/pkg/repository"
	"github.com/mpapenbr/ams2-telemetry-go/pkg/storage"
)

type RaceService struct {
	races repository.RaceRepository
	laps  repository.LapRepository
	store storage.ObjectStorage
	jobs  queue.Queue
	l     *log.Logger
}

type RaceServiceOption func(s *RaceService)

func WithLogger(l *log.Logger) RaceServiceOption {
	return func(s *RaceService) {
		s.l = l
	}
}

//nolint:whitespace // can't make the linters happy
func NewRaceService(
	races repository.RaceRepository,
	laps repository.LapRepository,
	store storage.ObjectStorage,
	jobs queue.Queue,
	opts ...RaceServiceOption,
) *RaceService {
	ret := &RaceService{
		races: races,
		laps:  laps,
		store: store,
		jobs:  jobs,
		l:     log.Default().Named("service"),
	}
	for _, opt := range opts {
		opt(ret)
	}
	return ret
}

// UploadResult is returned synchronously; processing continues in the
// background.
type UploadResult struct {
	RaceID  uuid.UUID        `json:"race_id"`
	Status  model.RaceStatus `json:"status"`
	JobID   string           `json:"job_id"`
	Message string           `json:"message"`
}

// Upload accepts a compressed capture, stores it and schedules
// processing. The blob is written before the race record so no record
// ever points at missing data.
func (s *RaceService) Upload(ctx context.Context, raw []byte) (*UploadResult, error) {
	if len(raw) == 0 {
		return nil, &IntakeError{Reason: "empty payload"}
	}

	raceID := uuid.Must(uuid.NewV4())
	rawPath := storage.RawDataPath(raceID)

	if err := s.store.Upload(ctx, rawPath,
		bytes.NewReader(raw), int64(len(raw))); err != nil {
		return nil, &StorageError{Op: "upload", Err: err}
	}

	race := &model.Race{
		ID:          raceID,
		Status:      model.StatusProcessing,
		RawDataPath: rawPath,
	}
	if err := s.races.Create(ctx, race); err != nil {
		return nil, &StorageError{Op: "create race", Err: err}
	}

	jobID, err := s.jobs.Enqueue(ctx, &queue.Job{
		RaceID:      raceID,
		RawDataPath: rawPath,
	})
	if err != nil {
		// the record stays Processing; the sweep command picks it up
		s.l.Error("enqueue failed, race left in processing",
			log.String("raceId", raceID.String()),
			log.ErrorField(err))
		return nil, &StorageError{Op: "enqueue", Err: err}
	}

	s.l.Info("race upload accepted",
		log.String("raceId", raceID.String()),
		log.String("jobId", jobID),
		log.Int("size", len(raw)))

	return &UploadResult{
		RaceID:  raceID,
		Status:  race.Status,
		JobID:   jobID,
		Message: "Race data uploaded, processing started",
	}, nil
}

// Status returns the race record with its current lap count.
func (s *RaceService) Status(ctx context.Context, id uuid.UUID) (
	*model.RaceInfo, error,
) {
	race, err := s.races.LoadByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	count, err := s.laps.CountByRace(ctx, id)
	if err != nil {
		return nil, err
	}
	return &model.RaceInfo{Race: *race, LapsCount: count}, nil
}

func (s *RaceService) ListIDs(ctx context.Context) ([]uuid.UUID, error) {
	return s.races.ListIDs(ctx)
}

func (s *RaceService) List(ctx context.Context) ([]*model.RaceInfo, error) {
	return s.races.LoadAll(ctx)
}

// Download returns the stored raw capture (still compressed).
func (s *RaceService) Download(ctx context.Context, id uuid.UUID) ([]byte, error) {
	race, err := s.races.LoadByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	reader, err := s.store.Download(ctx, race.RawDataPath)
	if err != nil {
		return nil, &StorageError{Op: "download", Err: err}
	}
	defer reader.Close()
	return io.ReadAll(reader)
}

// Delete removes the blobs first, then the race row. Lap rows go with
// the race (cascade).
func (s *RaceService) Delete(ctx context.Context, id uuid.UUID) error {
	if _, err := s.races.LoadByID(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}
	if err := s.store.DeletePrefix(ctx, storage.RacePrefix(id)); err != nil {
		return &StorageError{Op: "delete blobs", Err: err}
	}
	if _, err := s.races.DeleteByID(ctx, id); err != nil {
		return err
	}
	s.l.Info("race deleted", log.String("raceId", id.String()))
	return nil
}
