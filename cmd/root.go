/*
Copyright 2023 Markus Papenbrock
*/

package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	migrateCmd "github.com/mpapenbr/ams2-telemetry-go/pkg/cmd/migrate"
	serverCmd "github.com/mpapenbr/ams2-telemetry-go/pkg/cmd/server"
	sweepCmd "github.com/mpapenbr/ams2-telemetry-go/pkg/cmd/sweep"
	workerCmd "github.com/mpapenbr/ams2-telemetry-go/pkg/cmd/worker"
	"github.com/mpapenbr/ams2-telemetry-go/pkg/config"
	"github.com/mpapenbr/ams2-telemetry-go/version"
)

const envPrefix = "A2T"

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:     "a2t",
	Short:   "Ingestion backend for AMS2 race telemetry",
	Long:    ``,
	Version: version.FullVersion,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default is $HOME/.a2t.yml)")

	rootCmd.PersistentFlags().StringVar(&config.DB, "db",
		"postgresql://DB_USERNAME:DB_USER_PASSWORD@DB_HOST:5432/ams2_telemetry",
		"Connection string for the database")
	rootCmd.PersistentFlags().StringVar(&config.NatsURL, "nats-url",
		"nats://localhost:4222",
		"URL of the NATS server used as job queue")
	rootCmd.PersistentFlags().StringVar(&config.S3Endpoint, "s3-endpoint",
		"localhost:9000",
		"Endpoint of the S3 compatible object store")
	rootCmd.PersistentFlags().StringVar(&config.S3Bucket, "s3-bucket",
		"ams2-telemetry",
		"Bucket holding raw and processed race data")
	rootCmd.PersistentFlags().StringVar(&config.S3AccessKey, "s3-access-key",
		"",
		"Access key for the object store")
	rootCmd.PersistentFlags().StringVar(&config.S3SecretKey, "s3-secret-key",
		"",
		"Secret key for the object store")
	rootCmd.PersistentFlags().StringVar(&config.S3Region, "s3-region",
		"us-east-1",
		"Region of the object store")
	rootCmd.PersistentFlags().BoolVar(&config.S3UseSSL, "s3-use-ssl",
		false,
		"Use https when talking to the object store")
	rootCmd.PersistentFlags().StringVar(&config.WaitForServices,
		"wait-for-services",
		"15s",
		"Duration to wait for other services to be ready")

	// add commands here
	rootCmd.AddCommand(migrateCmd.NewMigrateCmd())
	rootCmd.AddCommand(serverCmd.NewServerCmd())
	rootCmd.AddCommand(workerCmd.NewWorkerCmd())
	rootCmd.AddCommand(sweepCmd.NewSweepCmd())
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
	} else {
		// Find home directory.
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		// Search config in home directory with name ".a2t" (without extension).
		viper.AddConfigPath(home)
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".a2t")
	}

	viper.SetEnvPrefix(envPrefix)
	viper.AutomaticEnv() // read in environment variables that match

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
		viper.OnConfigChange(func(e fsnotify.Event) {
			fmt.Fprintln(os.Stderr, "Config file changed:", e.Name)
		})
		viper.WatchConfig()
	}

	bindFlags(rootCmd, viper.GetViper())
	for _, cmd := range rootCmd.Commands() {
		bindFlags(cmd, viper.GetViper())
	}
}

// Bind each cobra flag to its associated viper configuration
// (config file and environment variable)
func bindFlags(cmd *cobra.Command, v *viper.Viper) {
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		// Environment variables can't have dashes in them, so bind them to their
		// equivalent keys with underscores, e.g. --favorite-color to A2T_FAVORITE_COLOR
		if strings.Contains(f.Name, "-") {
			envVarSuffix := strings.ToUpper(strings.ReplaceAll(f.Name, "-", "_"))
			if err := v.BindEnv(f.Name,
				fmt.Sprintf("%s_%s", envPrefix, envVarSuffix)); err != nil {
				fmt.Fprintf(os.Stderr, "Could not bind env var %s: %v", f.Name, err)
			}
		}
		// Apply the viper config value to the flag when the flag is not set and viper
		// has a value
		if !f.Changed && v.IsSet(f.Name) {
			val := v.Get(f.Name)
			if err := cmd.Flags().Set(f.Name, fmt.Sprintf("%v", val)); err != nil {
				fmt.Fprintf(os.Stderr, "Could set flag value for %s: %v", f.Name, err)
			}
		}
	})
}
