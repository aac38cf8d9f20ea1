// Package constants provides shared constants for the mortgage-calculator application.
package constants

import "time"

// Financial constants
const (
	// MonthsPerYear is the number of months in a year
	MonthsPerYear = 12

	// DecimalPlaces is the number of decimal places kept for currency amounts
	DecimalPlaces = 2

	// DecimalPrecision is the precision for currency rounding (2 decimal places)
	DecimalPrecision = 100

	// FirstYearMonths is the horizon of the first-year breakdown
	FirstYearMonths = 12

	// PercentageMultiplier is used for percentage conversions
	PercentageMultiplier = 100.0
)

// Input bounds enforced before any calculation.
const (
	// MinRatePercent is the lowest accepted annual rate
	MinRatePercent = 0.0

	// MaxRatePercent is the highest accepted annual rate
	MaxRatePercent = 100.0

	// MaxTermYears is the longest accepted term
	MaxTermYears = 60
)

// Repayment type wire values.
const (
	// TypeRepayment amortizes principal and interest
	TypeRepayment = "repayment"

	// TypeInterestOnly pays interest only
	TypeInterestOnly = "interest-only"
)

// Output format constants
const (
	// OutputFormatPretty is the human-readable output format
	OutputFormatPretty = "pretty"

	// OutputFormatCSV is the CSV output format
	OutputFormatCSV = "csv"

	// OutputFormatJSON is the JSON output format
	OutputFormatJSON = "json"
)

// Configuration file constants
const (
	// DefaultConfigFile is the default configuration file name
	DefaultConfigFile = "config.yaml"

	// DefaultServerConfigFile is the default server configuration file name
	DefaultServerConfigFile = "server-config.yaml"

	// EnvPrefix prefixes environment overrides of config keys
	EnvPrefix = "MORTGAGE"

	// DefaultCurrency is the ISO 4217 code used for display
	DefaultCurrency = "GBP"
)

// Snapshot persistence constants
const (
	// SnapshotKey is the single key the input snapshot is stored under
	SnapshotKey = "mortgageInputs"

	// DefaultSnapshotFile is the default path of the file-backed snapshot
	DefaultSnapshotFile = "mortgage-inputs.json"

	// PersistenceBackendFile stores the snapshot in a JSON file
	PersistenceBackendFile = "file"

	// PersistenceBackendRedis stores the snapshot in Redis
	PersistenceBackendRedis = "redis"
)

// Server configuration defaults
const (
	// DefaultServerAddress is the default HTTP listen address for the web UI
	DefaultServerAddress = ":8080"

	// DefaultMaxUploadSizeBytes is the default maximum upload size for bulk workbooks (2 MB)
	DefaultMaxUploadSizeBytes int64 = 2 * 1024 * 1024

	// DefaultServerReadTimeout bounds reading a request, including uploads
	DefaultServerReadTimeout = 15 * time.Second

	// DefaultServerWriteTimeout bounds writing a response
	DefaultServerWriteTimeout = 15 * time.Second

	// DefaultServerIdleTimeout bounds idle keep-alive connections
	DefaultServerIdleTimeout = 60 * time.Second

	// DefaultServerShutdownTimeout bounds graceful shutdown
	DefaultServerShutdownTimeout = 10 * time.Second
)

// Bulk processing constants
const (
	// BulkErrorMarker replaces the payment of a record that could not be computed
	BulkErrorMarker = "Error"

	// BulkMissingMarker replaces an input value that could not be parsed
	BulkMissingMarker = "—"

	// BulkResultsSheet is the sheet name of an exported results workbook
	BulkResultsSheet = "Results"
)

// Validation constants
const (
	// ToleranceForComparison is the tolerance for financial comparisons
	ToleranceForComparison = 1.0

	// CurrencyTolerance is the tolerance for currency comparisons (1 cent)
	CurrencyTolerance = 0.01
)
