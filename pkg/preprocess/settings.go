package preprocess

import (
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// Column names the transform depends on.
const (
	LabelColumn    = "Label"
	ProtocolColumn = "Protocol"
	ProtocolPrefix = "Protocol_"
)

// DefaultDropColumns lists identifier and flag columns removed before modeling.
func DefaultDropColumns() []string {
	return []string{
		"Flow ID",
		"Timestamp",
		"Source IP",
		"Destination IP",
		"Dst Port",
		"Fwd PSH Flags",
		"Bwd PSH Flags",
		"Fwd URG Flags",
		"Bwd URG Flags",
	}
}

// Settings is the serializable configuration of a Preprocessor.
type Settings struct {
	// DropColumns are removed if present.
	DropColumns []string `yaml:"drop_columns"`
	// Labels maps label names to class codes.
	Labels map[string]int `yaml:"labels"`
	// UnknownLabels selects the handling of labels outside Labels.
	UnknownLabels UnknownLabelPolicy `yaml:"unknown_labels"`
	// Protocols fixes the indicator columns. Empty means derive them from the data.
	Protocols []string `yaml:"protocols,omitempty"`
	// ScaleLabel standardizes the encoded label along with the features.
	ScaleLabel bool `yaml:"scale_label"`
	// Schema is checked before the first stage when set.
	Schema *Schema `yaml:"schema,omitempty"`
}

// DefaultSettings returns the settings of the reference CICIDS pipeline.
func DefaultSettings() Settings {
	return Settings{
		DropColumns:   DefaultDropColumns(),
		Labels:        DefaultLabels(),
		UnknownLabels: UnknownMissing,
		ScaleLabel:    true,
	}
}

// Validate checks the settings for consistency.
func (s Settings) Validate() error {
	if err := validateLabels(s.Labels); err != nil {
		return err
	}
	if !s.UnknownLabels.Valid() {
		return errors.Errorf("unknown label policy %q", s.UnknownLabels)
	}
	for _, c := range s.DropColumns {
		if c == LabelColumn {
			return errors.Errorf("column %q cannot be dropped", LabelColumn)
		}
	}
	seen := make(map[string]bool, len(s.Protocols))
	for _, p := range s.Protocols {
		if seen[p] {
			return errors.Errorf("protocol %q listed twice", p)
		}
		seen[p] = true
	}
	if s.Schema != nil {
		if err := s.Schema.validateSpec(); err != nil {
			return err
		}
	}
	return nil
}

func (s Settings) clone() Settings {
	out := s
	out.DropColumns = append([]string(nil), s.DropColumns...)
	out.Protocols = append([]string(nil), s.Protocols...)
	out.Labels = make(map[string]int, len(s.Labels))
	for k, v := range s.Labels {
		out.Labels[k] = v
	}
	if s.Schema != nil {
		sc := Schema{Columns: append([]ColumnSpec(nil), s.Schema.Columns...)}
		out.Schema = &sc
	}
	return out
}

// Option configures a Preprocessor.
type Option func(*Preprocessor)

// WithSettings replaces all settings.
func WithSettings(s Settings) Option {
	return func(p *Preprocessor) {
		p.settings = s.clone()
	}
}

// WithLogger sets the logger used for stage diagnostics.
func WithLogger(l zerolog.Logger) Option {
	return func(p *Preprocessor) {
		p.logger = l
	}
}

// WithObserver sets the stage observer.
func WithObserver(o Observer) Option {
	return func(p *Preprocessor) {
		if o != nil {
			p.observer = o
		}
	}
}

// WithUnknownLabels sets the unknown label policy.
func WithUnknownLabels(policy UnknownLabelPolicy) Option {
	return func(p *Preprocessor) {
		p.settings.UnknownLabels = policy
	}
}

// WithProtocols fixes the protocol vocabulary.
func WithProtocols(protocols ...string) Option {
	return func(p *Preprocessor) {
		p.settings.Protocols = append([]string(nil), protocols...)
	}
}

// WithScaleLabel controls whether the encoded label is standardized.
func WithScaleLabel(scale bool) Option {
	return func(p *Preprocessor) {
		p.settings.ScaleLabel = scale
	}
}

// WithDropColumns replaces the list of pruned columns.
func WithDropColumns(columns ...string) Option {
	return func(p *Preprocessor) {
		p.settings.DropColumns = append([]string(nil), columns...)
	}
}

// WithSchema declares the expected input columns.
func WithSchema(s Schema) Option {
	return func(p *Preprocessor) {
		sc := Schema{Columns: append([]ColumnSpec(nil), s.Columns...)}
		p.settings.Schema = &sc
	}
}
