// Package config defines the data structures related to configuration and
// includes functions for loading and validating the config.
package config

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/iwvelando/mortgage-calculator/internal/snapshot"
	"github.com/iwvelando/mortgage-calculator/pkg/constants"
	"github.com/iwvelando/mortgage-calculator/pkg/format"
	"github.com/iwvelando/mortgage-calculator/pkg/validation"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Configuration holds all configuration for mortgage-calculator.
type Configuration struct {
	Currency    string            `yaml:"currency,omitempty"`
	Logging     LoggingConfig     `yaml:"logging,omitempty"`
	Output      OutputConfig      `yaml:"output,omitempty"`
	Persistence PersistenceConfig `yaml:"persistence,omitempty"`
}

// LoggingConfig holds logging configuration options
type LoggingConfig struct {
	Level      string `yaml:"level,omitempty"`      // debug, info, warn, error
	Format     string `yaml:"format,omitempty"`     // json, console
	OutputFile string `yaml:"outputFile,omitempty"` // optional file output
}

// OutputConfig holds output format configuration options
type OutputConfig struct {
	Format string `yaml:"format,omitempty"` // pretty, csv, json
}

// PersistenceConfig controls the stored input snapshot.
type PersistenceConfig struct {
	Enabled bool   `yaml:"enabled"`
	Backend string `yaml:"backend,omitempty"` // file, redis
	Path    string `yaml:"path,omitempty"`    // file backend only
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(constants.EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("currency", constants.DefaultCurrency)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.outputFile", "")
	v.SetDefault("output.format", constants.OutputFormatPretty)
	v.SetDefault("persistence.enabled", true)
	v.SetDefault("persistence.backend", constants.PersistenceBackendFile)
	v.SetDefault("persistence.path", constants.DefaultSnapshotFile)
	return v
}

// Default returns the configuration used when no config file is given,
// with MORTGAGE_* environment overrides applied.
func Default() (*Configuration, error) {
	return decode(newViper())
}

// LoadConfiguration takes a file path as input and loads the YAML-formatted
// configuration there.
func LoadConfiguration(configPath string) (*Configuration, error) {
	v := newViper()
	v.SetConfigFile(configPath)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file, %s", err)
	}

	return decode(v)
}

// LoadConfigurationFromReader loads YAML configuration from r.
func LoadConfigurationFromReader(r io.Reader) (*Configuration, error) {
	v := newViper()
	if err := v.ReadConfig(r); err != nil {
		return nil, fmt.Errorf("error reading config, %s", err)
	}

	return decode(v)
}

func decode(v *viper.Viper) (*Configuration, error) {
	var configuration Configuration
	if err := v.Unmarshal(&configuration); err != nil {
		return nil, fmt.Errorf("unable to decode into struct, %s", err)
	}

	configuration.Currency = strings.ToUpper(strings.TrimSpace(configuration.Currency))
	configuration.Output.Format = strings.ToLower(strings.TrimSpace(configuration.Output.Format))
	configuration.Persistence.Backend = strings.ToLower(strings.TrimSpace(configuration.Persistence.Backend))

	if err := configuration.Validate(); err != nil {
		return nil, err
	}
	return &configuration, nil
}

// Validate checks every enumerated setting.
func (c *Configuration) Validate() error {
	if _, err := format.NewMoney(c.Currency); err != nil {
		return fmt.Errorf("invalid currency: %w", err)
	}
	if err := validation.ValidateOutputFormat(c.Output.Format); err != nil {
		return err
	}
	if _, err := ParseLogLevel(c.Logging.Level); err != nil {
		return err
	}
	switch c.Logging.Format {
	case "", "json", "console":
	default:
		return fmt.Errorf("invalid logging format %q", c.Logging.Format)
	}
	switch c.Persistence.Backend {
	case constants.PersistenceBackendFile, constants.PersistenceBackendRedis:
	default:
		return fmt.Errorf("invalid persistence backend %q: must be %s or %s",
			c.Persistence.Backend, constants.PersistenceBackendFile, constants.PersistenceBackendRedis)
	}
	return nil
}

// ParseLogLevel maps a logging level name to its zap level. An empty name
// means info.
func ParseLogLevel(level string) (zapcore.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zapcore.DebugLevel, nil
	case "", "info":
		return zapcore.InfoLevel, nil
	case "warn", "warning":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	}
	return zapcore.InfoLevel, fmt.Errorf("invalid logging level %q", level)
}

// Money returns the formatter for the configured currency.
func (c *Configuration) Money() *format.Money {
	money, err := format.NewMoney(c.Currency)
	if err != nil {
		money, _ = format.NewMoney(constants.DefaultCurrency)
	}
	return money
}

// NewStore opens the snapshot store selected by the persistence settings.
// Redis connection settings come from MORTGAGE_REDIS_* variables.
func (c *Configuration) NewStore(ctx context.Context, logger *zap.Logger) (snapshot.Store, error) {
	switch c.Persistence.Backend {
	case constants.PersistenceBackendRedis:
		redisConfig, err := snapshot.LoadRedisConfig()
		if err != nil {
			return nil, err
		}
		return snapshot.NewRedisStore(ctx, logger, redisConfig)
	case constants.PersistenceBackendFile, "":
		return snapshot.NewFileStore(c.Persistence.Path), nil
	default:
		return nil, fmt.Errorf("unknown persistence backend %q", c.Persistence.Backend)
	}
}
