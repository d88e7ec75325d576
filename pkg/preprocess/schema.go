package preprocess

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"github.com/hed1ad/flowprep/pkg/table"
)

// Declared column kinds.
const (
	KindNumeric = "numeric"
	KindText    = "text"
)

// ColumnSpec declares one expected input column.
type ColumnSpec struct {
	Name string `yaml:"name"`
	Kind string `yaml:"kind"`
}

// Schema declares the expected input columns.
type Schema struct {
	Columns []ColumnSpec `yaml:"columns"`
}

func (s Schema) validateSpec() error {
	seen := make(map[string]bool, len(s.Columns))
	for _, c := range s.Columns {
		if c.Name == "" {
			return errors.New("schema column without a name")
		}
		if seen[c.Name] {
			return errors.Errorf("schema declares column %q twice", c.Name)
		}
		seen[c.Name] = true
		if c.Kind != KindNumeric && c.Kind != KindText {
			return errors.Errorf("schema column %q has unknown kind %q", c.Name, c.Kind)
		}
	}
	return nil
}

// Validate reports every declared column that is absent and every numeric
// column holding a cell that does not parse. Rows carrying a repeated header
// in Label are not checked.
func (s Schema) Validate(t *table.Table) error {
	var problems []string

	var header func(int) bool
	if lc, err := t.Column(LabelColumn); err == nil && lc.Kind == table.Text {
		header = func(i int) bool { return lc.Str[i] == LabelColumn }
	} else {
		header = func(int) bool { return false }
	}

	for _, spec := range s.Columns {
		c, err := t.Column(spec.Name)
		if err != nil {
			problems = append(problems, fmt.Sprintf("column %q is missing", spec.Name))
			continue
		}
		if spec.Kind != KindNumeric || c.Kind != table.Text {
			continue
		}
		for i, v := range c.Str {
			if v == "" || header(i) {
				continue
			}
			if _, ok := table.ParseFloat(v); !ok {
				problems = append(problems, fmt.Sprintf("column %q row %d: %q is not numeric", spec.Name, i, v))
				break
			}
		}
	}

	if len(problems) > 0 {
		return errors.Wrap(ErrSchema, strings.Join(problems, "; "))
	}
	return nil
}

// requireColumns checks the columns every transform needs.
func requireColumns(t *table.Table) error {
	var missing []string
	for _, name := range []string{LabelColumn, ProtocolColumn} {
		if !t.Has(name) {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return errors.Wrapf(ErrMissingColumn, "%s", strings.Join(missing, ", "))
	}
	return nil
}
