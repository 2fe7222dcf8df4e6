/*
Copyright 2023 Markus Papenbrock
*/

package log

import (
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
	"moul.io/zapfilter"
)

// Config describes the optional log config file.
// Filters use the zapfilter rule syntax, for example "debug:sql* info:*".
type Config struct {
	DefaultLevel string `yaml:"defaultLevel"`
	Filters      string `yaml:"filters"`
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not read log config: %w", err)
	}
	ret := &Config{DefaultLevel: "info"}
	if err := yaml.Unmarshal(data, ret); err != nil {
		return nil, fmt.Errorf("could not parse log config: %w", err)
	}
	return ret, nil
}

// NewWithConfig creates a json logger whose output is restricted by the
// filter rules of the config file.
func NewWithConfig(w io.Writer, cfg *Config, opts ...Option) (*Logger, error) {
	level, err := ParseLevel(cfg.DefaultLevel)
	if err != nil {
		level = InfoLevel
	}
	if w == nil {
		w = os.Stderr
	}
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encCfg),
		zapcore.AddSync(w),
		zapcore.Level(level),
	)
	if cfg.Filters != "" {
		rules, rErr := zapfilter.ParseRules(cfg.Filters)
		if rErr != nil {
			return nil, fmt.Errorf("invalid log filter rules: %w", rErr)
		}
		core = zapfilter.NewFilteringCore(core, rules)
	}
	return &Logger{l: zap.New(core, opts...), level: level}, nil
}
