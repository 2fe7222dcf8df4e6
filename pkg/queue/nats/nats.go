package nats

import (
	"context"
	"encoding/json"
	"time"

	guuid "github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/mpapenbr/ams2-telemetry-go/log"
	"github.com/mpapenbr/ams2-telemetry-go/pkg/queue"
)

const (
	streamName  = "A2T_JOBS"
	subject     = "a2t.jobs.process"
	consumerDur = "a2t-worker"
)

type (
	natsQueue struct {
		conn        *nats.Conn
		js          jetstream.JetStream
		stream      jetstream.Stream
		l           *log.Logger
		ackWait     time.Duration
		maxDeliver  int
		concurrency int
	}
	Option func(*natsQueue)
)

func WithLogger(l *log.Logger) Option {
	return func(q *natsQueue) {
		q.l = l
	}
}

func WithAckWait(d time.Duration) Option {
	return func(q *natsQueue) {
		q.ackWait = d
	}
}

func WithMaxDeliver(num int) Option {
	return func(q *natsQueue) {
		q.maxDeliver = num
	}
}

func WithConcurrency(num int) Option {
	return func(q *natsQueue) {
		q.concurrency = num
	}
}

// NewJobQueue sets up the work-queue stream on the given connection.
// The stream keeps each job until a worker acknowledged it.
func NewJobQueue(conn *nats.Conn, opts ...Option) (queue.Queue, error) {
	ret := &natsQueue{
		conn:        conn,
		l:           log.Default().Named("queue"),
		ackWait:     5 * time.Minute,
		maxDeliver:  5,
		concurrency: 1,
	}
	for _, opt := range opts {
		opt(ret)
	}

	js, err := jetstream.New(conn)
	if err != nil {
		return nil, err
	}
	ret.js = js

	ret.stream, err = js.CreateOrUpdateStream(context.Background(),
		jetstream.StreamConfig{
			Name:      streamName,
			Subjects:  []string{subject},
			Retention: jetstream.WorkQueuePolicy,
			Storage:   jetstream.FileStorage,
		})
	if err != nil {
		return nil, err
	}
	return ret, nil
}

func (q *natsQueue) Enqueue(ctx context.Context, job *queue.Job) (string, error) {
	if job.ID == "" {
		job.ID = guuid.NewString()
	}
	job.EnqueuedAt = time.Now().UTC()
	data, err := json.Marshal(job)
	if err != nil {
		return "", err
	}
	// the job id doubles as dedup key within the stream window
	if _, err := q.js.Publish(ctx, subject, data,
		jetstream.WithMsgID(job.ID)); err != nil {
		return "", err
	}
	q.l.Debug("job enqueued",
		log.String("jobId", job.ID),
		log.String("raceId", job.RaceID.String()))
	return job.ID, nil
}

//nolint:funlen // setup in one place
func (q *natsQueue) Consume(ctx context.Context, handler queue.Handler) error {
	cons, err := q.stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Durable:    consumerDur,
		AckPolicy:  jetstream.AckExplicitPolicy,
		AckWait:    q.ackWait,
		MaxDeliver: q.maxDeliver,
	})
	if err != nil {
		return err
	}

	sem := make(chan struct{}, q.concurrency)
	cc, err := cons.Consume(func(msg jetstream.Msg) {
		sem <- struct{}{}
		go func() {
			defer func() { <-sem }()
			q.dispatch(ctx, msg, handler)
		}()
	})
	if err != nil {
		return err
	}
	defer cc.Stop()

	<-ctx.Done()
	// wait for in-flight handlers
	for i := 0; i < cap(sem); i++ {
		sem <- struct{}{}
	}
	return nil
}

//nolint:errcheck // ack errors only mean redelivery
func (q *natsQueue) dispatch(
	ctx context.Context, msg jetstream.Msg, handler queue.Handler,
) {
	var job queue.Job
	if err := json.Unmarshal(msg.Data(), &job); err != nil {
		q.l.Error("discarding malformed job", log.ErrorField(err))
		msg.Term()
		return
	}
	if err := handler(ctx, &job); err != nil {
		q.l.Warn("job failed, requesting redelivery",
			log.String("jobId", job.ID),
			log.ErrorField(err))
		msg.Nak()
		return
	}
	msg.Ack()
}

func (q *natsQueue) Close() {
	q.conn.Close()
}
