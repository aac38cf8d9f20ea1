package server

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/iwvelando/mortgage-calculator/internal/config"
	"github.com/iwvelando/mortgage-calculator/pkg/constants"
	"github.com/iwvelando/mortgage-calculator/pkg/format"
	"gopkg.in/yaml.v3"
)

// Timeouts bounds request handling and graceful shutdown.
type Timeouts struct {
	Read     time.Duration `yaml:"read"`
	Write    time.Duration `yaml:"write"`
	Idle     time.Duration `yaml:"idle"`
	Shutdown time.Duration `yaml:"shutdown"`
}

// Config is the server-config.yaml document. Logging, when set, replaces the
// logger built from the main configuration.
type Config struct {
	Address       string               `yaml:"address"`
	MaxUploadSize string               `yaml:"maxUploadSize"`
	Currency      string               `yaml:"currency"`
	Timeouts      Timeouts             `yaml:"timeouts"`
	Logging       config.LoggingConfig `yaml:"logging"`

	uploadLimit int64
	money       *format.Money
}

func defaultConfig() *Config {
	return &Config{
		Address:  constants.DefaultServerAddress,
		Currency: constants.DefaultCurrency,
		Timeouts: Timeouts{
			Read:     constants.DefaultServerReadTimeout,
			Write:    constants.DefaultServerWriteTimeout,
			Idle:     constants.DefaultServerIdleTimeout,
			Shutdown: constants.DefaultServerShutdownTimeout,
		},
	}
}

// LoadConfig reads the server configuration. An empty path or a missing file
// yields the defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("failed to read server config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse server config %s: %w", path, err)
			}
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// UploadSizeBytes returns the bulk upload limit in bytes.
func (c *Config) UploadSizeBytes() int64 {
	return c.uploadLimit
}

// SetUploadSizeBytes overrides the upload limit; non-positive sizes are ignored.
func (c *Config) SetUploadSizeBytes(size int64) {
	if size <= 0 {
		return
	}
	c.uploadLimit = size
	c.MaxUploadSize = strconv.FormatInt(size, 10)
}

// Money returns the formatter for the configured currency.
func (c *Config) Money() *format.Money {
	return c.money
}

func (c *Config) normalize() error {
	c.Address = strings.TrimSpace(c.Address)
	if c.Address == "" {
		c.Address = constants.DefaultServerAddress
	}

	c.Currency = strings.ToUpper(strings.TrimSpace(c.Currency))
	if c.Currency == "" {
		c.Currency = constants.DefaultCurrency
	}
	money, err := format.NewMoney(c.Currency)
	if err != nil {
		return fmt.Errorf("invalid server currency: %w", err)
	}
	c.money = money

	limit, err := ParseSize(c.MaxUploadSize)
	if err != nil {
		return err
	}
	if limit <= 0 {
		limit = constants.DefaultMaxUploadSizeBytes
	}
	c.SetUploadSizeBytes(limit)

	defaults := defaultConfig().Timeouts
	c.Timeouts.Read = positiveOr(c.Timeouts.Read, defaults.Read)
	c.Timeouts.Write = positiveOr(c.Timeouts.Write, defaults.Write)
	c.Timeouts.Idle = positiveOr(c.Timeouts.Idle, defaults.Idle)
	c.Timeouts.Shutdown = positiveOr(c.Timeouts.Shutdown, defaults.Shutdown)
	return nil
}

func positiveOr(d, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return d
}

var sizeUnits = map[string]int64{
	"":   1,
	"B":  1,
	"K":  1 << 10,
	"KB": 1 << 10,
	"M":  1 << 20,
	"MB": 1 << 20,
	"G":  1 << 30,
	"GB": 1 << 30,
}

// ParseSize converts a byte count with an optional K, M or G suffix
// (e.g., "256K", "10MB") into bytes. An empty value means the default limit.
func ParseSize(value string) (int64, error) {
	trimmed := strings.ToUpper(strings.TrimSpace(value))
	if trimmed == "" {
		return constants.DefaultMaxUploadSizeBytes, nil
	}

	digits := strings.TrimRightFunc(trimmed, func(r rune) bool { return !unicode.IsDigit(r) })
	unit := strings.TrimSpace(trimmed[len(digits):])
	if digits == "" {
		return 0, fmt.Errorf("invalid size: %s", value)
	}

	multiplier, ok := sizeUnits[unit]
	if !ok {
		return 0, fmt.Errorf("unsupported size unit %q", unit)
	}

	n, err := strconv.ParseInt(strings.TrimSpace(digits), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size value %q: %w", value, err)
	}
	if n > 0 && n > (1<<62)/multiplier {
		return 0, fmt.Errorf("size overflow for value %s", value)
	}
	return n * multiplier, nil
}
