package csv

import (
	"io"
	"os"
	"strings"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"github.com/pkg/errors"

	"github.com/hed1ad/flowprep/pkg/table"
)

// Writer writes flow tables as CSV with a header row. Successive writes
// append rows under the header of the first one.
type Writer struct {
	file   io.WriteCloser
	header []string
}

// NewWriter creates or truncates filename.
func NewWriter(filename string) (*Writer, error) {
	file, err := os.Create(filename)
	if err != nil {
		return nil, errors.Wrap(err, "create csv")
	}
	return &Writer{file: file}, nil
}

// NewStreamWriter writes CSV to wc, which is closed by Close.
func NewStreamWriter(wc io.WriteCloser) *Writer {
	return &Writer{file: wc}
}

// Write outputs t. Numbers are written in their shortest exact form.
func (w *Writer) Write(t *table.Table) error {
	if t.Width() == 0 {
		return errors.New("table has no columns")
	}

	first := w.header == nil
	if !first && strings.Join(t.Names(), "\x00") != strings.Join(w.header, "\x00") {
		return errors.Errorf("columns %v do not match header %v", t.Names(), w.header)
	}

	df := ToDataFrame(t)
	if df.Err != nil {
		return errors.Wrap(df.Err, "build dataframe")
	}
	if err := df.WriteCSV(w.file, dataframe.WriteHeader(first)); err != nil {
		return errors.Wrap(err, "write csv")
	}
	if first {
		w.header = t.Names()
	}
	return nil
}

// Close releases resources.
func (w *Writer) Close() error {
	if w.file != nil {
		return w.file.Close()
	}
	return nil
}

// ToDataFrame converts a table into a gota DataFrame of string series holding
// the cells as they are written to CSV.
func ToDataFrame(t *table.Table) dataframe.DataFrame {
	cols := make([]series.Series, 0, t.Width())
	for _, c := range t.Columns() {
		cells := make([]string, c.Len())
		for i := range cells {
			cells[i] = c.Cell(i)
		}
		cols = append(cols, series.New(cells, series.String, c.Name))
	}
	return dataframe.New(cols...)
}
