package staquery

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hugr-lab/staquery/geom"
	"github.com/hugr-lab/staquery/schema"
)

// DefaultMaxPageSize is the page size used when Config.MaxPageSize is 0.
const DefaultMaxPageSize = 100

// Config contains configuration for a Builder.
type Config struct {
	// Schema describes the filterable entity types.
	// OPTIONAL: Uses schema.Default() (SensorThings) if nil.
	Schema *schema.Schema

	// Logger for internal logging.
	// OPTIONAL: Uses slog.Default() if nil.
	// Note: If LogLevel is specified, a new logger will be created with that level.
	Logger *slog.Logger

	// LogLevel sets the logging level.
	// OPTIONAL: If nil, uses Info level.
	// If Logger is also provided, LogLevel is ignored (use pre-configured logger).
	LogLevel *slog.Level

	// Registerer receives the builder metrics.
	// OPTIONAL: If nil, metrics are collected but not registered.
	Registerer prometheus.Registerer

	// MaxPageSize caps $top and is the page size when $top is absent.
	// OPTIONAL: If 0, uses DefaultMaxPageSize. MUST NOT be negative.
	MaxPageSize int

	// SRID is the spatial reference system geometry literals must use.
	// OPTIONAL: If 0, uses 4326 (WGS 84). MUST NOT be negative.
	SRID int
}

// validateConfig checks that Config fields are in range.
func validateConfig(config Config) error {
	if config.MaxPageSize < 0 {
		return fmt.Errorf("max page size must not be negative, got %d", config.MaxPageSize)
	}
	if config.SRID < 0 {
		return fmt.Errorf("srid must not be negative, got %d", config.SRID)
	}
	return nil
}

// withDefaults fills the optional fields of a validated config.
func withDefaults(config Config) Config {
	if config.Schema == nil {
		config.Schema = schema.Default()
	}
	if config.Logger == nil {
		if config.LogLevel != nil {
			config.Logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
				Level: *config.LogLevel,
			}))
		} else {
			config.Logger = slog.Default()
		}
	}
	if config.MaxPageSize == 0 {
		config.MaxPageSize = DefaultMaxPageSize
	}
	if config.SRID == 0 {
		config.SRID = geom.DefaultSRID
	}
	return config
}
