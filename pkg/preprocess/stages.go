package preprocess

import (
	"math"
	"sort"

	"github.com/pkg/errors"

	"github.com/hed1ad/flowprep/pkg/table"
)

// run carries the state of one pass through the stages.
type run struct {
	t        *table.Table
	settings *Settings
	model    *Model
	// fitting is true when statistics are computed from t rather than read from model.
	fitting bool

	unknownLabels int
	unknownSample []string
	outOfVocab    int
}

// stage is one step of the transform.
type stage struct {
	name  string
	apply func(r *run) error
}

// stages lists the transform steps in execution order.
var stages = []stage{
	{name: "filter_header_rows", apply: filterHeaderRows},
	{name: "expand_protocol", apply: expandProtocol},
	{name: "prune_columns", apply: pruneColumns},
	{name: "repair_missing", apply: repairMissing},
	{name: "drop_duplicates", apply: dropDuplicates},
	{name: "coerce_numeric", apply: coerceNumeric},
	{name: "encode_labels", apply: encodeLabels},
	{name: "drop_encoded_duplicates", apply: dropDuplicates},
	{name: "move_label", apply: moveLabel},
	{name: "scale_features", apply: scaleFeatures},
}

// StageNames returns the names of the transform steps in order.
func StageNames() []string {
	names := make([]string, len(stages))
	for i, s := range stages {
		names[i] = s.name
	}
	return names
}

// filterHeaderRows drops rows whose label repeats the header, left over from
// concatenated CSV files.
func filterHeaderRows(r *run) error {
	c, err := r.t.Column(LabelColumn)
	if err != nil {
		return errors.Wrap(ErrMissingColumn, LabelColumn)
	}
	if c.Kind != table.Text {
		return nil
	}
	r.t = r.t.Filter(func(i int) bool {
		return c.Str[i] != LabelColumn
	})
	return nil
}

// protocolText formats a protocol cell as the category value.
func protocolText(c *table.Column, i int) string {
	if c.Kind == table.Text {
		return c.Str[i]
	}
	v := c.Num[i]
	if math.IsNaN(v) {
		return "nan"
	}
	return table.FormatFloat(v)
}

// expandProtocol replaces Protocol with one indicator column per category.
func expandProtocol(r *run) error {
	c, err := r.t.Column(ProtocolColumn)
	if err != nil {
		return errors.Wrap(ErrMissingColumn, ProtocolColumn)
	}

	n := r.t.Len()
	values := make([]string, n)
	for i := 0; i < n; i++ {
		values[i] = protocolText(c, i)
	}

	var vocab []string
	switch {
	case !r.fitting:
		vocab = r.model.Protocols
	case len(r.settings.Protocols) > 0:
		vocab = append([]string(nil), r.settings.Protocols...)
	default:
		seen := make(map[string]bool)
		for _, v := range values {
			if !seen[v] {
				seen[v] = true
				vocab = append(vocab, v)
			}
		}
		sort.Strings(vocab)
	}
	if r.fitting {
		r.model.Protocols = vocab
	}

	position := make(map[string]int, len(vocab))
	indicators := make([][]float64, len(vocab))
	for j, v := range vocab {
		position[v] = j
		indicators[j] = make([]float64, n)
	}
	for i, v := range values {
		j, ok := position[v]
		if !ok {
			r.outOfVocab++
			continue
		}
		indicators[j][i] = 1
	}

	for j, v := range vocab {
		if err := r.t.AddIndicator(ProtocolPrefix+v, indicators[j]); err != nil {
			return errors.Wrap(ErrSchema, err.Error())
		}
	}
	r.t.Drop(ProtocolColumn)
	return nil
}

// pruneColumns removes identifier and flag columns that are present.
func pruneColumns(r *run) error {
	r.t.Drop(r.settings.DropColumns...)
	return nil
}

// repairMissing turns infinities into missing values and fills missing values
// of numeric columns with the column median.
func repairMissing(r *run) error {
	for _, c := range r.t.Columns() {
		if c.Kind != table.Numeric {
			continue
		}
		for i, v := range c.Num {
			if math.IsInf(v, 0) {
				c.Num[i] = math.NaN()
			}
		}

		var med float64
		if r.fitting {
			med = median(c.Num)
			r.model.Medians[c.Name] = med
		} else {
			m, ok := r.model.Medians[c.Name]
			if !ok {
				continue
			}
			med = m
		}

		for i, v := range c.Num {
			if math.IsNaN(v) {
				c.Num[i] = med
			}
		}
	}
	return nil
}

// dropDuplicates keeps the first occurrence of every distinct row. It runs
// again after label encoding, since coercion and encoding can make distinct
// rows equal. Scaling is affine per column and cannot.
func dropDuplicates(r *run) error {
	seen := make(map[string]struct{}, r.t.Len())
	t := r.t
	r.t = t.Filter(func(i int) bool {
		key := t.RowKey(i)
		if _, dup := seen[key]; dup {
			return false
		}
		seen[key] = struct{}{}
		return true
	})
	return nil
}

// coerceNumeric parses text columns as numbers and zero-fills what remains
// missing. Label is left for encodeLabels.
func coerceNumeric(r *run) error {
	for _, c := range r.t.Columns() {
		if c.Name == LabelColumn || c.Kind != table.Text {
			continue
		}
		num := make([]float64, len(c.Str))
		for i, s := range c.Str {
			v, _ := table.ParseFloat(s)
			num[i] = v
		}
		if err := r.t.Replace(c.Name, &table.Column{Name: c.Name, Kind: table.Numeric, Num: num}); err != nil {
			return err
		}
	}

	for _, c := range r.t.Columns() {
		if c.Name == LabelColumn || c.Kind == table.Text {
			continue
		}
		for i, v := range c.Num {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				c.Num[i] = 0
			}
		}
	}
	return nil
}

// maxUnknownSample bounds the unknown label values kept for diagnostics.
const maxUnknownSample = 5

// encodeLabels maps label names to class codes.
func encodeLabels(r *run) error {
	c, err := r.t.Column(LabelColumn)
	if err != nil {
		return errors.Wrap(ErrMissingColumn, LabelColumn)
	}

	labels := r.settings.Labels
	bucket := float64(bucketCode(labels))
	codes := make([]float64, c.Len())

	for i := range codes {
		name := c.Cell(i)
		if code, ok := labels[name]; ok {
			codes[i] = float64(code)
			continue
		}

		r.unknownLabels++
		if len(r.unknownSample) < maxUnknownSample {
			r.unknownSample = append(r.unknownSample, name)
		}
		switch r.settings.UnknownLabels {
		case UnknownReject:
			return errors.Wrapf(ErrUnknownLabel, "row %d: %q", i, name)
		case UnknownBucket:
			codes[i] = bucket
		default:
			codes[i] = math.NaN()
		}
	}

	return r.t.Replace(LabelColumn, &table.Column{Name: LabelColumn, Kind: table.Numeric, Num: codes})
}

// moveLabel makes Label the last column.
func moveLabel(r *run) error {
	return r.t.MoveToEnd(LabelColumn)
}

// scaleFeatures standardizes numeric columns. Indicator columns keep their
// 0/1 values.
func scaleFeatures(r *run) error {
	for _, c := range r.t.Columns() {
		if c.Kind != table.Numeric {
			continue
		}
		if c.Name == LabelColumn && !r.settings.ScaleLabel {
			continue
		}

		var s Scaler
		if r.fitting {
			s = fitScaler(c.Num)
			r.model.Scalers[c.Name] = s
		} else {
			fitted, ok := r.model.Scalers[c.Name]
			if !ok {
				continue
			}
			s = fitted
		}
		s.Apply(c.Num)
	}
	return nil
}
