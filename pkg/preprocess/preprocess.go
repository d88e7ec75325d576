// Package preprocess turns raw network-flow records into a numeric,
// model-ready table.
//
// The transform runs its stages in order: header-row filtering, protocol
// one-hot expansion, column pruning, infinity and missing-value repair,
// deduplication, numeric coercion, label encoding, a second deduplication
// over the encoded rows, label repositioning and feature standardization.
//
// Statistics (medians, scaler parameters, protocol vocabulary) are either
// refit on every batch with Process, or fit once with Fit and reused by
// Transform.
package preprocess

import (
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/hed1ad/flowprep/pkg/table"
)

// Observer receives per-stage measurements.
type Observer interface {
	ObserveStage(stage string, rowsIn, rowsOut int, took time.Duration)
	ObserveUnknownLabels(n int)
}

type nopObserver struct{}

func (nopObserver) ObserveStage(string, int, int, time.Duration) {}
func (nopObserver) ObserveUnknownLabels(int)                     {}

// Preprocessor transforms flow tables.
type Preprocessor struct {
	mu sync.RWMutex

	settings Settings
	logger   zerolog.Logger
	observer Observer

	// Fitted statistics, nil until Fit or Load.
	model *Model
}

// New creates a Preprocessor with default settings modified by opts.
func New(opts ...Option) *Preprocessor {
	p := &Preprocessor{
		settings: DefaultSettings(),
		logger:   zerolog.Nop(),
		observer: nopObserver{},
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// Settings returns a copy of the settings.
func (p *Preprocessor) Settings() Settings {
	return p.settings.clone()
}

// Process transforms t, fitting all statistics on t itself. The receiver's
// fitted model is neither used nor changed.
func (p *Preprocessor) Process(t *table.Table) (*table.Table, error) {
	out, _, err := p.execute(t, nil)
	return out, err
}

// FitTransform fits the model on t, keeps it, and returns the transformed table.
func (p *Preprocessor) FitTransform(t *table.Table) (*table.Table, error) {
	out, m, err := p.execute(t, nil)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.model = m
	p.mu.Unlock()

	return out, nil
}

// Fit computes the model from a reference batch.
func (p *Preprocessor) Fit(t *table.Table) error {
	_, err := p.FitTransform(t)
	return err
}

// Transform applies the fitted model to t. The output columns follow the
// fitted column order.
func (p *Preprocessor) Transform(t *table.Table) (*table.Table, error) {
	p.mu.RLock()
	m := p.model
	p.mu.RUnlock()

	if m == nil {
		return nil, ErrNotFitted
	}

	out, _, err := p.execute(t, m)
	if err != nil {
		return nil, err
	}

	extra := make([]string, 0)
	present := make(map[string]bool, len(m.Columns))
	for _, name := range m.Columns {
		present[name] = true
	}
	for _, name := range out.Names() {
		if !present[name] {
			extra = append(extra, name)
		}
	}
	if len(extra) > 0 {
		p.logger.Debug().Strs("columns", extra).Msg("dropping columns unknown to the model")
	}

	aligned, err := out.Select(m.Columns...)
	if err != nil {
		return nil, errors.Wrap(ErrSchema, err.Error())
	}
	return aligned, nil
}

// Fitted reports whether a model is available for Transform.
func (p *Preprocessor) Fitted() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.model != nil
}

// Model returns a copy of the fitted model, or nil.
func (p *Preprocessor) Model() *Model {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.model.clone()
}

// Save serializes the fitted model.
func (p *Preprocessor) Save() ([]byte, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.model == nil {
		return nil, ErrNotFitted
	}
	return p.model.encode()
}

// Load deserializes a model produced by Save.
func (p *Preprocessor) Load(data []byte) error {
	m, err := decodeModel(data)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.model = m
	return nil
}

// execute runs every stage over a copy of t. A nil model means fit from t.
func (p *Preprocessor) execute(t *table.Table, model *Model) (*table.Table, *Model, error) {
	if t == nil {
		return nil, nil, errors.New("nil table")
	}
	if err := p.settings.Validate(); err != nil {
		return nil, nil, errors.Wrap(err, "invalid settings")
	}
	if err := requireColumns(t); err != nil {
		return nil, nil, err
	}
	if p.settings.Schema != nil {
		if err := p.settings.Schema.Validate(t); err != nil {
			return nil, nil, err
		}
	}

	r := &run{
		t:        t.Clone(),
		settings: &p.settings,
		model:    model,
		fitting:  model == nil,
	}
	if r.fitting {
		r.model = newModel()
	}

	for _, s := range stages {
		rowsIn := r.t.Len()
		start := time.Now()

		if err := s.apply(r); err != nil {
			return nil, nil, errors.Wrapf(err, "stage %s", s.name)
		}

		took := time.Since(start)
		p.observer.ObserveStage(s.name, rowsIn, r.t.Len(), took)
		p.logger.Debug().
			Str("stage", s.name).
			Int("rows_in", rowsIn).
			Int("rows_out", r.t.Len()).
			Int("columns", r.t.Width()).
			Dur("took", took).
			Msg("stage complete")
	}

	if r.outOfVocab > 0 {
		p.logger.Debug().Int("rows", r.outOfVocab).Msg("protocol values outside the vocabulary")
	}
	if r.unknownLabels > 0 {
		p.observer.ObserveUnknownLabels(r.unknownLabels)
		p.logger.Warn().
			Int("rows", r.unknownLabels).
			Strs("sample", r.unknownSample).
			Str("policy", string(p.settings.UnknownLabels)).
			Msg("labels outside the vocabulary")
	}

	if r.fitting {
		r.model.Columns = r.t.Names()
		r.model.Rows = r.t.Len()
	}
	return r.t, r.model, nil
}
