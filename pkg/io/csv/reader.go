// Package csv provides CSV reading and writing of flow tables.
package csv

import (
	"encoding/csv"
	"io"
	"os"
	"strings"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"github.com/pkg/errors"

	"github.com/hed1ad/flowprep/pkg/table"
)

// DefaultNaNValues are the cells read as missing.
var DefaultNaNValues = []string{"", "NA", "NaN", "nan", "<nil>"}

// Reader reads flow tables from CSV files.
type Reader struct {
	file        io.ReadCloser
	delimiter   rune
	trimHeaders bool
	textColumns []string
	nanValues   []string
}

// Option configures a CSV reader.
type Option func(*Reader)

// WithDelimiter sets the field delimiter.
func WithDelimiter(d rune) Option {
	return func(r *Reader) {
		r.delimiter = d
	}
}

// WithTrimHeaders strips surrounding space from column names.
// CICIDS-2017 exports prefix most names with a space.
func WithTrimHeaders(trim bool) Option {
	return func(r *Reader) {
		r.trimHeaders = trim
	}
}

// WithTextColumns keeps the named columns as text regardless of content.
func WithTextColumns(names ...string) Option {
	return func(r *Reader) {
		r.textColumns = append(r.textColumns, names...)
	}
}

// WithNaNValues replaces the cells read as missing.
func WithNaNValues(values ...string) Option {
	return func(r *Reader) {
		r.nanValues = values
	}
}

// NewReader opens a CSV file. The first row must be the header.
func NewReader(filename string, opts ...Option) (*Reader, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, errors.Wrap(err, "open csv")
	}
	return NewStreamReader(file, opts...), nil
}

// NewStreamReader reads CSV from rc, which is closed by Close.
func NewStreamReader(rc io.ReadCloser, opts ...Option) *Reader {
	r := &Reader{
		file:        rc,
		delimiter:   ',',
		trimHeaders: true,
		textColumns: []string{"Label"},
		nanValues:   DefaultNaNValues,
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Read parses the whole file. Column types are detected per column: columns
// whose every present cell parses as a number become numeric, others text.
func (r *Reader) Read() (*table.Table, error) {
	cr := csv.NewReader(r.file)
	cr.Comma = r.delimiter
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	records, err := cr.ReadAll()
	if err != nil {
		return nil, errors.Wrap(err, "read csv")
	}
	if len(records) == 0 {
		return nil, errors.New("csv has no header")
	}

	width := len(records[0])
	if r.trimHeaders {
		for i, h := range records[0] {
			records[0][i] = strings.TrimSpace(h)
		}
	}
	for i, rec := range records[1:] {
		if len(rec) != width {
			return nil, errors.Errorf("csv line %d has %d fields, header has %d", i+2, len(rec), width)
		}
	}

	if len(records) == 1 {
		t := table.New(0)
		for _, name := range records[0] {
			if err := t.AddText(name, []string{}); err != nil {
				return nil, err
			}
		}
		return t, nil
	}

	types := make(map[string]series.Type, len(r.textColumns))
	for _, name := range r.textColumns {
		types[name] = series.String
	}

	df := dataframe.LoadRecords(records,
		dataframe.HasHeader(true),
		dataframe.DetectTypes(true),
		dataframe.DefaultType(series.String),
		dataframe.NaNValues(r.nanValues),
		dataframe.WithTypes(types),
	)
	if df.Err != nil {
		return nil, errors.Wrap(df.Err, "parse csv")
	}

	return FromDataFrame(df)
}

// Close releases resources.
func (r *Reader) Close() error {
	if r.file != nil {
		return r.file.Close()
	}
	return nil
}

// FromDataFrame converts a gota DataFrame into a table. String series become
// text columns, every other series type becomes numeric.
func FromDataFrame(df dataframe.DataFrame) (*table.Table, error) {
	t := table.New(df.Nrow())

	for _, name := range df.Names() {
		s := df.Col(name)
		if s.Type() != series.String {
			if err := t.AddNumeric(name, s.Float()); err != nil {
				return nil, err
			}
			continue
		}

		values := make([]string, s.Len())
		for i := range values {
			e := s.Elem(i)
			if e.IsNA() {
				continue
			}
			values[i] = e.String()
		}
		if err := t.AddText(name, values); err != nil {
			return nil, err
		}
	}

	return t, nil
}
