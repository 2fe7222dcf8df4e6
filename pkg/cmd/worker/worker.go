package worker

import (
	"context"
	"fmt"
	"net/http"
	_ "net/http/pprof" //nolint:gosec // by design
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"

	"github.com/mpapenbr/ams2-telemetry-go/log"
	"github.com/mpapenbr/ams2-telemetry-go/pkg/config"
	"github.com/mpapenbr/ams2-telemetry-go/pkg/db/postgres"
	"github.com/mpapenbr/ams2-telemetry-go/pkg/processing"
	"github.com/mpapenbr/ams2-telemetry-go/pkg/queue"
	natsqueue "github.com/mpapenbr/ams2-telemetry-go/pkg/queue/nats"
	lapRepo "github.com/mpapenbr/ams2-telemetry-go/pkg/repository/lap"
	raceRepo "github.com/mpapenbr/ams2-telemetry-go/pkg/repository/race"
	"github.com/mpapenbr/ams2-telemetry-go/pkg/storage/s3"
	"github.com/mpapenbr/ams2-telemetry-go/pkg/utils"
)

func NewWorkerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "starts the race processing worker",
		RunE: func(cmd *cobra.Command, args []string) error {
			return startWorker()
		},
	}
	cmd.Flags().IntVar(&config.WorkerConcurrency,
		"worker-concurrency",
		1,
		"number of jobs processed concurrently")
	cmd.Flags().IntVar(&config.StorageMaxRetries,
		"storage-max-retries",
		3,
		"bounded retries for object store operations")
	cmd.Flags().StringVar(&config.LogLevel,
		"log-level",
		"info",
		"controls the log level (debug, info, warn, error, fatal)")
	cmd.Flags().StringVar(&config.SQLLogLevel,
		"sql-log-level",
		"debug",
		"controls the log level for sql methods")
	cmd.Flags().StringVar(&config.LogFormat,
		"log-format",
		"json",
		"controls the log output format")
	cmd.Flags().StringVar(&config.LogConfig,
		"log-config",
		"",
		"log config file with per-logger filter rules")
	cmd.Flags().BoolVar(&config.EnableTelemetry,
		"enable-telemetry",
		false,
		"enables telemetry")
	cmd.Flags().StringVar(&config.TelemetryEndpoint,
		"telemetry-endpoint",
		"localhost:4317",
		"Endpoint that receives open telemetry data")
	cmd.Flags().IntVar(&config.ProfilingPort,
		"profiling-port",
		0,
		"port to use for providing profiling data")
	return cmd
}

func parseLogLevel(l string, defaultVal log.Level) log.Level {
	level, err := log.ParseLevel(l)
	if err != nil {
		return defaultVal
	}
	return level
}

//nolint:funlen,cyclop // by design
func startWorker() error {
	var logger *log.Logger
	var sqlLogger *log.Logger
	var telemetry *config.Telemetry
	switch config.LogFormat {
	case "json":
		logger = log.New(
			os.Stderr,
			parseLogLevel(config.LogLevel, log.InfoLevel),
			log.WithCaller(true),
			log.AddCallerSkip(1))
		sqlLogger = log.New(
			os.Stderr,
			parseLogLevel(config.SQLLogLevel, log.InfoLevel),
			log.WithCaller(true),
			log.AddCallerSkip(1))

	default:
		logger = log.DevLogger(
			os.Stderr,
			parseLogLevel(config.LogLevel, log.DebugLevel),
			log.WithCaller(true),
			log.AddCallerSkip(1))

		sqlLogger = log.DevLogger(
			os.Stderr,
			parseLogLevel(config.SQLLogLevel, log.InfoLevel),
			log.WithCaller(true),
			log.AddCallerSkip(1))
	}

	if config.LogConfig != "" {
		cfg, cfgErr := log.LoadConfig(config.LogConfig)
		if cfgErr != nil {
			return cfgErr
		}
		logger, cfgErr = log.NewWithConfig(os.Stderr, cfg,
			log.WithCaller(true),
			log.AddCallerSkip(1))
		if cfgErr != nil {
			return cfgErr
		}
	}

	log.ResetDefault(logger)

	if config.ProfilingPort > 0 {
		log.Info("Starting profiling server on port", log.Int("port", config.ProfilingPort))
		go func() {
			//nolint:gosec // by design
			err := http.ListenAndServe(
				fmt.Sprintf("localhost:%d", config.ProfilingPort),
				nil)
			if err != nil {
				log.Error("Profiling server stopped", log.ErrorField(err))
			}
		}()
	}

	waitForRequiredServices()

	pgTraceOption := postgres.WithTracer(sqlLogger, log.DebugLevel)
	if config.EnableTelemetry {
		log.Info("Enabling telemetry")
		var err error
		if telemetry, err = config.SetupTelemetry(context.Background()); err == nil {
			pgTraceOption = postgres.WithOtlpTracer()
		} else {
			log.Warn("Could not setup telemetry", log.ErrorField(err))
		}
	}

	log.Info("Starting worker")
	pool := postgres.InitWithURL(
		config.DB,
		pgTraceOption,
	)
	defer pool.Close()

	store, err := s3.New(&s3.Config{
		Endpoint:  config.S3Endpoint,
		AccessKey: config.S3AccessKey,
		SecretKey: config.S3SecretKey,
		UseSSL:    config.S3UseSSL,
		Bucket:    config.S3Bucket,
		Region:    config.S3Region,
	})
	if err != nil {
		log.Error("could not setup object store", log.ErrorField(err))
		return err
	}

	nc, err := nats.Connect(config.NatsURL)
	if err != nil {
		log.Error("could not connect to nats", log.ErrorField(err))
		return err
	}
	jobs, err := natsqueue.NewJobQueue(nc,
		natsqueue.WithConcurrency(config.WorkerConcurrency))
	if err != nil {
		log.Error("could not setup job queue", log.ErrorField(err))
		return err
	}
	defer jobs.Close()

	races := raceRepo.NewRaceRepository(pool)
	laps := lapRepo.NewLapRepository(pool)
	//nolint:gosec // flag value is small and positive
	proc := processing.NewRaceProcessor(races, laps, store,
		processing.WithMaxRetries(uint64(config.StorageMaxRetries)))

	ctx, stop := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("Worker started",
		log.Int("concurrency", config.WorkerConcurrency))
	err = jobs.Consume(ctx, func(ctx context.Context, job *queue.Job) error {
		return proc.ProcessJob(ctx, job)
	})
	if err != nil {
		log.Error("consumer stopped", log.ErrorField(err))
		return err
	}
	if telemetry != nil {
		telemetry.Shutdown()
	}

	log.Info("Worker terminated")
	return nil
}

func waitForRequiredServices() {
	timeout, err := time.ParseDuration(config.WaitForServices)
	if err != nil {
		log.Warn("Invalid duration value. Setting default 60s", log.ErrorField(err))
		timeout = 60 * time.Second
	}

	wg := sync.WaitGroup{}
	checkTCP := func(addr string) {
		if err = utils.WaitForTCP(addr, timeout); err != nil {
			log.Fatal("required services not ready", log.ErrorField(err))
		}
		wg.Done()
	}

	if postgresAddr := utils.ExtractFromDBURL(config.DB); postgresAddr != "" {
		wg.Add(1)
		go checkTCP(postgresAddr)
	}
	if natsAddr := utils.ExtractFromNatsURL(config.NatsURL); natsAddr != "" {
		wg.Add(1)
		go checkTCP(natsAddr)
	}
	log.Debug("Waiting for connection checks to return")
	wg.Wait()
	log.Debug("Required services are available")
}
