package preprocess

import (
	"bytes"
	"encoding/gob"

	"github.com/pkg/errors"
)

// Model holds the statistics fitted on a reference batch.
type Model struct {
	// Protocols is the indicator vocabulary in column order.
	Protocols []string `yaml:"protocols"`
	// Medians are the imputation values of numeric columns.
	Medians map[string]float64 `yaml:"medians"`
	// Scalers are the standardization parameters of scaled columns.
	Scalers map[string]Scaler `yaml:"scalers"`
	// Columns is the output column order.
	Columns []string `yaml:"columns"`
	// Rows is the size of the reference batch after filtering and deduplication.
	Rows int `yaml:"rows"`
}

func newModel() *Model {
	return &Model{
		Medians: make(map[string]float64),
		Scalers: make(map[string]Scaler),
	}
}

func (m *Model) clone() *Model {
	if m == nil {
		return nil
	}
	out := &Model{
		Protocols: append([]string(nil), m.Protocols...),
		Medians:   make(map[string]float64, len(m.Medians)),
		Scalers:   make(map[string]Scaler, len(m.Scalers)),
		Columns:   append([]string(nil), m.Columns...),
		Rows:      m.Rows,
	}
	for k, v := range m.Medians {
		out.Medians[k] = v
	}
	for k, v := range m.Scalers {
		out.Scalers[k] = v
	}
	return out
}

func (m *Model) encode() ([]byte, error) {
	var buf bytes.Buffer
	enc := gob.NewEncoder(&buf)

	if err := enc.Encode(m.Protocols); err != nil {
		return nil, errors.Wrap(err, "encode protocols")
	}
	if err := enc.Encode(m.Medians); err != nil {
		return nil, errors.Wrap(err, "encode medians")
	}
	if err := enc.Encode(m.Scalers); err != nil {
		return nil, errors.Wrap(err, "encode scalers")
	}
	if err := enc.Encode(m.Columns); err != nil {
		return nil, errors.Wrap(err, "encode columns")
	}
	if err := enc.Encode(m.Rows); err != nil {
		return nil, errors.Wrap(err, "encode rows")
	}

	return buf.Bytes(), nil
}

func decodeModel(data []byte) (*Model, error) {
	dec := gob.NewDecoder(bytes.NewBuffer(data))
	m := newModel()

	if err := dec.Decode(&m.Protocols); err != nil {
		return nil, errors.Wrap(err, "decode protocols")
	}
	if err := dec.Decode(&m.Medians); err != nil {
		return nil, errors.Wrap(err, "decode medians")
	}
	if err := dec.Decode(&m.Scalers); err != nil {
		return nil, errors.Wrap(err, "decode scalers")
	}
	if err := dec.Decode(&m.Columns); err != nil {
		return nil, errors.Wrap(err, "decode columns")
	}
	if err := dec.Decode(&m.Rows); err != nil {
		return nil, errors.Wrap(err, "decode rows")
	}

	return m, nil
}
