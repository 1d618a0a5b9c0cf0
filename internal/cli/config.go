package cli

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/hugr-lab/staquery"
)

// FileConfig is the content of a stafilter config file.
//
//	srid: 4326
//	max_page_size: 500
//	log_level: debug
type FileConfig struct {
	SRID        int    `yaml:"srid"`
	MaxPageSize int    `yaml:"max_page_size"`
	LogLevel    string `yaml:"log_level"`
}

// LoadConfig reads a config file. Unknown keys are rejected.
func LoadConfig(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var fc FileConfig
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&fc); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return &fc, nil
}

// builderConfig merges the config file with the flag overrides.
func (o *RootOptions) builderConfig(logOut io.Writer) (staquery.Config, error) {
	fc := &FileConfig{}
	if o.ConfigFile != "" {
		var err error
		if fc, err = LoadConfig(o.ConfigFile); err != nil {
			return staquery.Config{}, err
		}
	}
	if o.SRID != 0 {
		fc.SRID = o.SRID
	}
	if o.MaxPageSize != 0 {
		fc.MaxPageSize = o.MaxPageSize
	}
	if o.LogLevel != "" {
		fc.LogLevel = o.LogLevel
	}

	config := staquery.Config{
		SRID:        fc.SRID,
		MaxPageSize: fc.MaxPageSize,
		// Quiet unless a level is configured.
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	if fc.LogLevel != "" {
		var level slog.Level
		if err := level.UnmarshalText([]byte(fc.LogLevel)); err != nil {
			return staquery.Config{}, fmt.Errorf("invalid log level %q: %w", fc.LogLevel, err)
		}
		config.Logger = slog.New(slog.NewTextHandler(logOut, &slog.HandlerOptions{Level: level}))
	}
	return config, nil
}
