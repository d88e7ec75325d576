package main

import (
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/hed1ad/flowprep/pkg/config"
	flowio "github.com/hed1ad/flowprep/pkg/io"
	"github.com/hed1ad/flowprep/pkg/io/csv"
	"github.com/hed1ad/flowprep/pkg/io/pcap"
	"github.com/hed1ad/flowprep/pkg/io/sql"
	"github.com/hed1ad/flowprep/pkg/logging"
	"github.com/hed1ad/flowprep/pkg/metrics"
	"github.com/hed1ad/flowprep/pkg/preprocess"
	"github.com/hed1ad/flowprep/pkg/store"
	"github.com/hed1ad/flowprep/pkg/table"
)

var (
	_ flowio.Reader       = (*csv.Reader)(nil)
	_ flowio.Reader       = (*sql.Reader)(nil)
	_ flowio.StreamReader = (*pcap.Reader)(nil)
	_ flowio.Writer       = (*csv.Writer)(nil)
)

// app holds what every command needs once flags and configuration are resolved.
type app struct {
	stderr io.Writer

	// Global flags.
	configPath  string
	logLevel    string
	logFormat   string
	metricsFile string
	storePath   string

	// Input flags shared by the table commands.
	query     string
	driver    string
	queryArgs []string

	cfg     *config.Config
	logger  zerolog.Logger
	metrics *metrics.Metrics
}

func newApp(stderr io.Writer) *app {
	logger, _ := logging.New(logging.Config{Output: stderr})
	return &app{
		stderr:  stderr,
		driver:  "postgres",
		cfg:     config.Default(),
		logger:  logger,
		metrics: metrics.New(),
	}
}

// setup loads .env and the configuration file, then applies flag overrides.
func (a *app) setup() error {
	if err := config.LoadDotEnv(".env"); err != nil {
		return err
	}

	cfg, err := config.Load(config.Path(a.configPath))
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	if a.logFormat != "" {
		cfg.Log.Format = a.logFormat
	}
	if a.metricsFile != "" {
		cfg.MetricsFile = a.metricsFile
	}
	if a.storePath != "" {
		cfg.Store = a.storePath
	}
	if err := cfg.Validate(); err != nil {
		return errors.Wrap(err, "invalid flags")
	}

	logCfg := cfg.Log
	logCfg.Output = a.stderr
	logger, err := logging.New(logCfg)
	if err != nil {
		return err
	}

	a.cfg = cfg
	a.logger = logger
	return nil
}

// finish exports metrics if a metrics file is configured.
func (a *app) finish() error {
	if a.cfg.MetricsFile == "" {
		return nil
	}
	if err := a.metrics.WriteTextfile(a.cfg.MetricsFile); err != nil {
		return err
	}
	a.logger.Debug().Str("path", a.cfg.MetricsFile).Msg("metrics written")
	return nil
}

func (a *app) options(opts ...preprocess.Option) []preprocess.Option {
	return append([]preprocess.Option{
		preprocess.WithLogger(a.logger),
		preprocess.WithObserver(a.metrics),
	}, opts...)
}

// preprocessor builds a Preprocessor from the configured pipeline settings.
func (a *app) preprocessor() *preprocess.Preprocessor {
	return preprocess.New(a.options(preprocess.WithSettings(a.cfg.Pipeline))...)
}

// openInput picks a reader for path. With a query, path is a database DSN.
func (a *app) openInput(path string) (flowio.Reader, string, error) {
	if a.query != "" {
		args := make([]interface{}, len(a.queryArgs))
		for i, v := range a.queryArgs {
			args[i] = v
		}
		r, err := sql.Open(a.driver, path, a.query, sql.WithArgs(args...))
		return r, "sql", err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".pcap", ".pcapng", ".cap":
		r, err := pcap.NewFileReader(path,
			pcap.WithLabel(a.cfg.Capture.Label),
			pcap.WithIdleTimeout(a.cfg.Capture.IdleTimeout),
		)
		return r, "pcap", err
	default:
		opts := []csv.Option{
			csv.WithDelimiter(a.cfg.Delimiter()),
			csv.WithTextColumns(a.cfg.CSV.TextColumns...),
		}
		if len(a.cfg.CSV.NaNValues) > 0 {
			opts = append(opts, csv.WithNaNValues(a.cfg.CSV.NaNValues...))
		}
		r, err := csv.NewReader(path, opts...)
		return r, "csv", err
	}
}

func (a *app) readTable(path string) (*table.Table, error) {
	start := time.Now()

	r, source, err := a.openInput(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	t, err := r.Read()
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", path)
	}

	a.metrics.ObserveRead(source, t.Len())
	a.logger.Info().
		Str("input", path).
		Str("source", source).
		Int("rows", t.Len()).
		Int("columns", t.Width()).
		Dur("took", time.Since(start)).
		Msg("input read")
	return t, nil
}

func (a *app) writeTable(path string, t *table.Table) error {
	w, err := csv.NewWriter(path)
	if err != nil {
		return err
	}
	if err := w.Write(t); err != nil {
		w.Close()
		return errors.Wrapf(err, "write %s", path)
	}
	if err := w.Close(); err != nil {
		return errors.Wrapf(err, "close %s", path)
	}

	a.metrics.ObserveWrite(t.Len())
	a.logger.Info().
		Str("output", path).
		Int("rows", t.Len()).
		Int("columns", t.Width()).
		Msg("output written")
	return nil
}

func (a *app) openStore() (*store.Store, error) {
	if a.cfg.Store == "" {
		return nil, errors.Errorf("no model store configured, set --store or %s", config.EnvStore)
	}
	return store.Open(a.cfg.Store)
}
