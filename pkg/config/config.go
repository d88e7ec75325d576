// Package config loads flowprep settings from a YAML file, a .env file and
// FLOWPREP_* environment variables, in increasing order of precedence.
package config

import (
	"bytes"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/hed1ad/flowprep/pkg/logging"
	"github.com/hed1ad/flowprep/pkg/preprocess"
)

// Environment variables read by LoadFromEnv.
const (
	EnvConfig      = "FLOWPREP_CONFIG"
	EnvLogLevel    = "FLOWPREP_LOG_LEVEL"
	EnvLogFormat   = "FLOWPREP_LOG_FORMAT"
	EnvMetricsFile = "FLOWPREP_METRICS_FILE"
	EnvStore       = "FLOWPREP_STORE"
	EnvIdleTimeout = "FLOWPREP_IDLE_TIMEOUT"
	EnvBatchSize   = "FLOWPREP_BATCH_SIZE"
)

// Config is the complete flowprep configuration.
type Config struct {
	Log logging.Config `yaml:"log"`

	// MetricsFile receives stage metrics in the Prometheus text format after
	// each command. Empty disables the export.
	MetricsFile string `yaml:"metrics_file"`
	// Store is the path of the model registry database.
	Store string `yaml:"store"`

	CSV      CSVConfig           `yaml:"csv"`
	Capture  CaptureConfig       `yaml:"capture"`
	Pipeline preprocess.Settings `yaml:"pipeline"`
}

// CSVConfig controls CSV parsing.
type CSVConfig struct {
	Delimiter   string   `yaml:"delimiter"`
	TextColumns []string `yaml:"text_columns"`
	// NaNValues replaces the reader's missing-value tokens when set.
	NaNValues   []string `yaml:"nan_values,omitempty"`
}

// CaptureConfig controls packet to flow aggregation.
type CaptureConfig struct {
	IdleTimeout time.Duration `yaml:"idle_timeout"`
	BatchSize   int           `yaml:"batch_size"`
	Snaplen     int32         `yaml:"snaplen"`
	Promisc     bool          `yaml:"promisc"`
	Filter      string        `yaml:"filter"`
	Label       string        `yaml:"label"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Log: logging.DefaultConfig(),
		CSV: CSVConfig{
			Delimiter:   ",",
			TextColumns: []string{preprocess.LabelColumn},
		},
		Capture: CaptureConfig{
			IdleTimeout: 120 * time.Second,
			BatchSize:   100,
			Snaplen:     65535,
			Promisc:     true,
			Label:       "BENIGN",
		},
		Pipeline: preprocess.DefaultSettings(),
	}
}

// LoadDotEnv loads variables from the given .env files into the process
// environment. Missing files are skipped and existing variables win.
func LoadDotEnv(files ...string) error {
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !os.IsNotExist(errors.Cause(err)) {
			return errors.Wrapf(err, "load %s", f)
		}
	}
	return nil
}

// Path returns flag if set, otherwise the FLOWPREP_CONFIG variable.
func Path(flag string) string {
	if flag != "" {
		return flag
	}
	return os.Getenv(EnvConfig)
}

// Load reads the YAML file at path over the defaults, applies environment
// overrides and validates the result. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrap(err, "read config")
		}
		if err := cfg.decode(data); err != nil {
			return nil, errors.Wrapf(err, "parse %s", path)
		}
	}

	if err := cfg.LoadFromEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}

	return cfg, nil
}

// decode merges YAML into cfg. A labels mapping in the file replaces the
// default vocabulary instead of extending it.
func (c *Config) decode(data []byte) error {
	labels := c.Pipeline.Labels
	c.Pipeline.Labels = nil

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && err != io.EOF {
		return err
	}

	if c.Pipeline.Labels == nil {
		c.Pipeline.Labels = labels
	}
	return nil
}

// LoadFromEnv applies FLOWPREP_* variables.
func (c *Config) LoadFromEnv() error {
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv(EnvLogFormat); v != "" {
		c.Log.Format = v
	}
	if v := os.Getenv(EnvMetricsFile); v != "" {
		c.MetricsFile = v
	}
	if v := os.Getenv(EnvStore); v != "" {
		c.Store = v
	}
	if v := os.Getenv(EnvIdleTimeout); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return errors.Wrapf(err, "%s", EnvIdleTimeout)
		}
		c.Capture.IdleTimeout = d
	}
	if v := os.Getenv(EnvBatchSize); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return errors.Wrapf(err, "%s", EnvBatchSize)
		}
		c.Capture.BatchSize = n
	}
	return nil
}

// Validate checks every section.
func (c *Config) Validate() error {
	if err := c.Log.Validate(); err != nil {
		return err
	}
	if len([]rune(c.CSV.Delimiter)) != 1 {
		return errors.Errorf("csv delimiter must be one character, got %q", c.CSV.Delimiter)
	}
	if c.Capture.IdleTimeout < 0 {
		return errors.New("capture idle_timeout must not be negative")
	}
	if c.Capture.BatchSize <= 0 {
		return errors.New("capture batch_size must be positive")
	}
	if c.Capture.Snaplen <= 0 {
		return errors.New("capture snaplen must be positive")
	}
	return errors.Wrap(c.Pipeline.Validate(), "pipeline")
}

// Delimiter returns the CSV delimiter as a rune.
func (c *Config) Delimiter() rune {
	return []rune(c.CSV.Delimiter)[0]
}
