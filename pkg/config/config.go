package config

// this holds the resolved configuration values from CLI
//
//nolint:lll // readablity
var (
	DB                 string // connection string for the database
	NatsURL            string // URL of the NATS server (job queue)
	S3Endpoint         string // endpoint of the S3 compatible object store
	S3Bucket           string // bucket holding raw and processed race data
	S3AccessKey        string // access key for the object store
	S3SecretKey        string // secret key for the object store
	S3Region           string // region for the object store
	S3UseSSL           bool   // if true, https is used for the object store
	WaitForServices    string // duration to wait for other services to be ready
	LogLevel           string // sets the log level (zap log level values)
	SQLLogLevel        string // sets the log level for sql subsystem
	LogFormat          string // text vs json
	LogConfig          string // path to log config file
	MigrationSourceURL string // location of migration files
	EnableTelemetry    bool   // enable telemetry
	TelemetryEndpoint  string // endpoint for telemetry
	ProfilingPort      int    // port for profiling
	HTTPServerAddr     string // listen addr for the REST server
	WorkerConcurrency  int    // number of concurrent job consumers
	StorageMaxRetries  int    // bounded retries for object store operations
	SweepOlderThan     string // races stuck in Processing longer than this get requeued
	SweepLimit         int    // max number of races requeued per sweep run
)
