// Package sweep requeues races stuck in Processing. An upload whose
// job got lost (enqueue failure, expired redeliveries) stays in
// Processing forever without this reconciliation.
package sweep

import (
	"context"
	"os"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"

	"github.com/mpapenbr/ams2-telemetry-go/log"
	"github.com/mpapenbr/ams2-telemetry-go/pkg/config"
	"github.com/mpapenbr/ams2-telemetry-go/pkg/db/postgres"
	"github.com/mpapenbr/ams2-telemetry-go/pkg/queue"
	natsqueue "github.com/mpapenbr/ams2-telemetry-go/pkg/queue/nats"
	raceRepo "github.com/mpapenbr/ams2-telemetry-go/pkg/repository/race"
)

func NewSweepCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "requeues races stuck in processing",
		RunE: func(cmd *cobra.Command, args []string) error {
			return startSweep()
		},
	}
	cmd.Flags().StringVar(&config.SweepOlderThan,
		"older-than",
		"10m",
		"races stuck in Processing longer than this get requeued")
	cmd.Flags().IntVar(&config.SweepLimit,
		"limit",
		50,
		"max number of races requeued per run")
	cmd.Flags().StringVar(&config.LogLevel,
		"log-level",
		"info",
		"controls the log level (debug, info, warn, error, fatal)")
	cmd.Flags().StringVar(&config.LogFormat,
		"log-format",
		"json",
		"controls the log output format")
	return cmd
}

func startSweep() error {
	level, err := log.ParseLevel(config.LogLevel)
	if err != nil {
		level = log.InfoLevel
	}
	var logger *log.Logger
	if config.LogFormat == "json" {
		logger = log.New(os.Stderr, level)
	} else {
		logger = log.DevLogger(os.Stderr, level)
	}
	log.ResetDefault(logger)

	olderThan, err := time.ParseDuration(config.SweepOlderThan)
	if err != nil {
		log.Warn("Invalid duration value. Setting default 10m", log.ErrorField(err))
		olderThan = 10 * time.Minute
	}

	pool := postgres.InitWithURL(config.DB)
	defer pool.Close()

	nc, err := nats.Connect(config.NatsURL)
	if err != nil {
		log.Error("could not connect to nats", log.ErrorField(err))
		return err
	}
	jobs, err := natsqueue.NewJobQueue(nc)
	if err != nil {
		log.Error("could not setup job queue", log.ErrorField(err))
		return err
	}
	defer jobs.Close()

	ctx := context.Background()
	races := raceRepo.NewRaceRepository(pool)
	stuck, err := races.LoadStuck(ctx, time.Now().Add(-olderThan), config.SweepLimit)
	if err != nil {
		log.Error("could not load stuck races", log.ErrorField(err))
		return err
	}
	if len(stuck) == 0 {
		log.Info("No stuck races found")
		return nil
	}

	// a fresh job id per requeue, otherwise stream dedup would drop it.
	// requeuing an already progressing race is harmless, the worker
	// skips races that left Processing.
	requeued := 0
	for _, race := range stuck {
		jobID, err := jobs.Enqueue(ctx, &queue.Job{
			RaceID:      race.ID,
			RawDataPath: race.RawDataPath,
		})
		if err != nil {
			log.Error("requeue failed",
				log.String("raceId", race.ID.String()),
				log.ErrorField(err))
			continue
		}
		log.Info("race requeued",
			log.String("raceId", race.ID.String()),
			log.String("jobId", jobID),
			log.Time("lastUpdate", race.UpdatedAt))
		requeued++
	}
	log.Info("Sweep done",
		log.Int("stuck", len(stuck)),
		log.Int("requeued", requeued))
	return nil
}
