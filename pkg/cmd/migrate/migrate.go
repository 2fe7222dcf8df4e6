package migrate

import (
	"errors"
	"strings"
	"time"

	gomigrate "github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/spf13/cobra"

	"github.com/mpapenbr/ams2-telemetry-go/log"
	"github.com/mpapenbr/ams2-telemetry-go/pkg/config"
	"github.com/mpapenbr/ams2-telemetry-go/pkg/db/migrate"
	"github.com/mpapenbr/ams2-telemetry-go/pkg/utils"
)

func NewMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "performs database migration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return startMigration()
		},
	}

	cmd.Flags().StringVarP(&config.MigrationSourceURL,
		"migrationSourceUrl",
		"m",
		"",
		"url to migration files (default: bundled migrations)")

	return cmd
}

func startMigration() error {
	// wait for database
	timeout, err := time.ParseDuration(config.WaitForServices)
	if err != nil {
		log.Warn("Invalid duration value. Setting default 60s", log.ErrorField(err))
		timeout = 60 * time.Second
	}
	postgresAddr := utils.ExtractFromDBURL(config.DB)
	if err = utils.WaitForTCP(postgresAddr, timeout); err != nil {
		log.Fatal("database not ready", log.ErrorField(err))
	}

	if config.MigrationSourceURL == "" {
		log.Info("Using bundled migrations")
		if err := migrate.MigrateDb(config.DB); err != nil {
			log.Error("Migration failed", log.ErrorField(err))
			return err
		}
		log.Info("Migration done")
		return nil
	}

	log.Info("Using migrations files at",
		log.String("source", config.MigrationSourceURL))
	dbURL := strings.Replace(config.DB, "postgresql://", "pgx5://", 1)

	m, err := gomigrate.New(config.MigrationSourceURL, dbURL)
	if err != nil {
		log.Fatal("Could not create migration", log.ErrorField(err))
	}
	err = m.Up()
	if errors.Is(err, gomigrate.ErrNoChange) {
		log.Info("No Migration required")
		return nil
	}
	return err
}
