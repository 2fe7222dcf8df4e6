// Package local provides a channel-backed job queue used by tests.
package local

import (
	"context"
	"sync"

	guuid "github.com/google/uuid"

	"github.com/mpapenbr/ams2-telemetry-go/pkg/queue"
)

type Queue struct {
	mu         sync.Mutex
	jobs       chan *queue.Job
	deliveries map[string]int
	maxDeliver int
	// when set, Enqueue fails with this error
	EnqueueErr error
}

var _ queue.Queue = (*Queue)(nil)

func New() *Queue {
	return &Queue{
		jobs:       make(chan *queue.Job, 100),
		deliveries: map[string]int{},
		maxDeliver: 5,
	}
}

func (q *Queue) Enqueue(_ context.Context, job *queue.Job) (string, error) {
	if q.EnqueueErr != nil {
		return "", q.EnqueueErr
	}
	if job.ID == "" {
		job.ID = guuid.NewString()
	}
	q.jobs <- job
	return job.ID, nil
}

func (q *Queue) Consume(ctx context.Context, handler queue.Handler) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case job := <-q.jobs:
			q.mu.Lock()
			q.deliveries[job.ID]++
			attempts := q.deliveries[job.ID]
			q.mu.Unlock()
			if err := handler(ctx, job); err != nil && attempts < q.maxDeliver {
				// immediate redelivery, good enough for tests
				q.jobs <- job
			}
		}
	}
}

func (q *Queue) Close() {}

// ConsumeAll synchronously processes jobs until the queue is empty,
// honoring redelivery. Test helper.
func (q *Queue) ConsumeAll(ctx context.Context, handler queue.Handler) {
	for {
		select {
		case job := <-q.jobs:
			q.mu.Lock()
			q.deliveries[job.ID]++
			attempts := q.deliveries[job.ID]
			q.mu.Unlock()
			if err := handler(ctx, job); err != nil && attempts < q.maxDeliver {
				q.jobs <- job
			}
		default:
			return
		}
	}
}

// Deliveries reports how often the given job was handed to a handler.
func (q *Queue) Deliveries(jobID string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.deliveries[jobID]
}

// Pending reports the number of queued jobs not yet delivered.
func (q *Queue) Pending() int {
	return len(q.jobs)
}
