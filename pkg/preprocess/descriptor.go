package preprocess

import (
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const (
	// DescriptorFormat identifies pipeline descriptors.
	DescriptorFormat = "flowprep/pipeline"
	// DescriptorVersion is the newest descriptor version this package reads.
	DescriptorVersion = 1
)

// Descriptor is the exported, versioned form of a Preprocessor.
type Descriptor struct {
	Format    string    `yaml:"format"`
	Version   int       `yaml:"version"`
	ID        string    `yaml:"id"`
	CreatedAt time.Time `yaml:"created_at"`
	Stages    []string  `yaml:"stages"`
	Settings  Settings  `yaml:"settings"`
	Model     *Model    `yaml:"model,omitempty"`
}

// Descriptor exports the settings and, when fitted, the model.
func (p *Preprocessor) Descriptor() Descriptor {
	return Descriptor{
		Format:    DescriptorFormat,
		Version:   DescriptorVersion,
		ID:        uuid.New().String(),
		CreatedAt: time.Now().UTC(),
		Stages:    StageNames(),
		Settings:  p.Settings(),
		Model:     p.Model(),
	}
}

// Validate checks format, version and settings.
func (d Descriptor) Validate() error {
	if d.Format != DescriptorFormat {
		return errors.Wrapf(ErrDescriptor, "format %q", d.Format)
	}
	if d.Version < 1 || d.Version > DescriptorVersion {
		return errors.Wrapf(ErrDescriptor, "unsupported version %d", d.Version)
	}
	if err := d.Settings.Validate(); err != nil {
		return errors.Wrap(ErrDescriptor, err.Error())
	}
	return nil
}

// WriteDescriptor encodes d as YAML.
func WriteDescriptor(w io.Writer, d Descriptor) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(d); err != nil {
		return errors.Wrap(err, "encode descriptor")
	}
	return enc.Close()
}

// ReadDescriptor decodes and validates a YAML descriptor.
func ReadDescriptor(r io.Reader) (Descriptor, error) {
	var d Descriptor
	if err := yaml.NewDecoder(r).Decode(&d); err != nil {
		return Descriptor{}, errors.Wrap(err, "decode descriptor")
	}
	if err := d.Validate(); err != nil {
		return Descriptor{}, err
	}
	return d, nil
}

// FromDescriptor builds a Preprocessor from d. Options are applied after the
// descriptor settings.
func FromDescriptor(d Descriptor, opts ...Option) (*Preprocessor, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}

	all := append([]Option{WithSettings(d.Settings)}, opts...)
	p := New(all...)
	if d.Model != nil {
		p.model = d.Model.clone()
	}
	return p, nil
}
