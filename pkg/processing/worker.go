// Package processing turns queued raw captures into stored per-lap
// telemetry and drives the race status to its terminal state.
package processing

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gofrs/uuid/v5"

	"github.com/mpapenbr/ams2-telemetry-go/log"
	"github.com/mpapenbr/ams2-telemetry-go/pkg/model"
	"github.com/mpapenbr/ams2-telemetry-go/pkg/queue"
	"github.com/mpapenbr/ams2-telemetry-go/pkg/repository"
	"github.com/mpapenbr/ams2-telemetry-go/pkg/storage"
	"github.com/mpapenbr/ams2-telemetry-go/pkg/telemetry"
)

type RaceProcessor struct {
	races      repository.RaceRepository
	laps       repository.LapRepository
	store      storage.ObjectStorage
	l          *log.Logger
	maxRetries uint64
}

type RaceProcessorOption func(rp *RaceProcessor)

func WithLogger(l *log.Logger) RaceProcessorOption {
	return func(rp *RaceProcessor) {
		rp.l = l
	}
}

// WithMaxRetries bounds the retry attempts per storage operation.
func WithMaxRetries(num uint64) RaceProcessorOption {
	return func(rp *RaceProcessor) {
		rp.maxRetries = num
	}
}

//nolint:whitespace // can't make the linters happy
func NewRaceProcessor(
	races repository.RaceRepository,
	laps repository.LapRepository,
	store storage.ObjectStorage,
	opts ...RaceProcessorOption,
) *RaceProcessor {
	ret := &RaceProcessor{
		races:      races,
		laps:       laps,
		store:      store,
		l:          log.Default().Named("worker"),
		maxRetries: 3,
	}
	for _, opt := range opts {
		opt(ret)
	}
	return ret
}

// ProcessJob handles one delivery. A nil return acknowledges the job:
// either the race reached a terminal status or the delivery is moot.
// Errors are only returned for conditions a redelivery can heal.
func (p *RaceProcessor) ProcessJob(ctx context.Context, job *queue.Job) error {
	l := p.l
	l.Info("processing race",
		log.String("jobId", job.ID),
		log.String("raceId", job.RaceID.String()))

	race, err := p.races.LoadByID(ctx, job.RaceID)
	if err != nil {
		// the race record may not be visible yet, let the queue retry
		return fmt.Errorf("race %s not loadable: %w", job.RaceID, err)
	}
	// idempotency gate: redeliveries of finished races are dropped here
	if race.Status != model.StatusProcessing {
		l.Info("race already in terminal status, discarding delivery",
			log.String("raceId", race.ID.String()),
			log.String("status", string(race.Status)))
		return nil
	}

	raw, err := p.downloadRaw(ctx, race)
	if err != nil {
		p.markFailed(ctx, race.ID, fmt.Errorf("raw data not retrievable: %w", err))
		return nil
	}

	resampled, err := p.transform(raw)
	if err != nil {
		p.markFailed(ctx, race.ID, err)
		return nil
	}

	for _, lap := range resampled {
		if err := p.storeLap(ctx, race.ID, lap); err != nil {
			p.markFailed(ctx, race.ID,
				fmt.Errorf("lap %d not storable: %w", lap.LapNumber, err))
			return nil
		}
	}

	p.transition(ctx, race.ID, model.StatusReady)
	l.Info("race ready",
		log.String("raceId", race.ID.String()),
		log.Int("laps", len(resampled)))
	return nil
}

func (p *RaceProcessor) downloadRaw(ctx context.Context, race *model.Race) (
	[]byte, error,
) {
	var raw []byte
	err := p.withRetries(ctx, func() error {
		reader, err := p.store.Download(ctx, race.RawDataPath)
		if err != nil {
			return err
		}
		defer reader.Close()
		raw, err = io.ReadAll(reader)
		return err
	})
	return raw, err
}

// transform runs the data pipeline. Every error here is a data error,
// retrying won't help.
func (p *RaceProcessor) transform(raw []byte) ([]*telemetry.ResampledLap, error) {
	decompressed, err := telemetry.Decompress(raw)
	if err != nil {
		return nil, err
	}
	return telemetry.Resample(telemetry.Parse(decompressed))
}

//nolint:whitespace // can't make the linters happy
func (p *RaceProcessor) storeLap(
	ctx context.Context,
	raceID uuid.UUID,
	lap *telemetry.ResampledLap,
) error {
	encoded, err := telemetry.EncodeNpy(lap.Data)
	if err != nil {
		return err
	}
	lapUUID := uuid.Must(uuid.NewV4())
	key := storage.LapDataPath(raceID, lapUUID)

	// the blob goes first, the record is only written once the data
	// it points at exists
	if err := p.withRetries(ctx, func() error {
		return p.store.Upload(ctx, key, bytes.NewReader(encoded),
			int64(len(encoded)))
	}); err != nil {
		return err
	}

	return p.laps.Create(ctx, &model.Lap{
		LapUUID:           lapUUID,
		RaceID:            raceID,
		LapNumber:         lap.LapNumber,
		ProcessedDataPath: key,
	})
}

func (p *RaceProcessor) markFailed(ctx context.Context, id uuid.UUID, cause error) {
	p.l.Error("race processing failed",
		log.String("raceId", id.String()),
		log.ErrorField(cause))
	p.transition(ctx, id, model.StatusFailed)
}

//nolint:whitespace // can't make the linters happy
func (p *RaceProcessor) transition(
	ctx context.Context,
	id uuid.UUID,
	next model.RaceStatus,
) {
	ok, err := p.races.UpdateStatus(ctx, id, model.StatusProcessing, next)
	if err != nil {
		p.l.Error("status update error",
			log.String("raceId", id.String()),
			log.ErrorField(err))
		return
	}
	if !ok {
		// a concurrent delivery finished first, its result stands
		p.l.Warn("status already changed, keeping existing state",
			log.String("raceId", id.String()),
			log.String("attempted", string(next)))
	}
}

func (p *RaceProcessor) withRetries(ctx context.Context, op func() error) error {
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), p.maxRetries),
		ctx)
	return backoff.RetryNotify(op, policy,
		func(err error, wait time.Duration) {
			p.l.Warn("storage operation failed, retrying",
				log.ErrorField(err),
				log.Duration("wait", wait))
		})
}
