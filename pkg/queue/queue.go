package queue

import (
	"context"
	"time"

	"github.com/gofrs/uuid/v5"
)

// Job describes one processing request travelling from the intake
// endpoint to a worker. The raw payload never enters the queue, only
// the object key pointing at it.
type Job struct {
	ID          string    `json:"id"`
	RaceID      uuid.UUID `json:"raceId"`
	RawDataPath string    `json:"rawDataPath"`
	EnqueuedAt  time.Time `json:"enqueuedAt"`
}

// Handler processes a delivered job. Returning nil acknowledges the
// message; any error requests redelivery.
type Handler func(ctx context.Context, job *Job) error

type Queue interface {
	// Enqueue submits a job and returns its assigned id.
	Enqueue(ctx context.Context, job *Job) (string, error)
	// Consume delivers jobs to the handler until ctx is done.
	Consume(ctx context.Context, handler Handler) error
	Close()
}
