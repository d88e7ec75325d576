package preprocess

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// median returns the median of the non-NaN values, averaging the two middle
// values for an even count. It returns NaN when no value is present.
func median(values []float64) float64 {
	present := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) {
			present = append(present, v)
		}
	}
	n := len(present)
	if n == 0 {
		return math.NaN()
	}
	sort.Float64s(present)
	if n%2 == 1 {
		return present[n/2]
	}
	return (present[n/2-1] + present[n/2]) / 2
}

// Scaler holds the standardization parameters of one column.
type Scaler struct {
	Mean  float64 `yaml:"mean"`
	Scale float64 `yaml:"scale"`
}

// fitScaler computes population mean and standard deviation over the non-NaN
// values. Constant or empty columns get a scale of 1.
func fitScaler(values []float64) Scaler {
	present := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) {
			present = append(present, v)
		}
	}
	if len(present) == 0 {
		return Scaler{Mean: 0, Scale: 1}
	}
	mean, std := stat.PopMeanStdDev(present, nil)
	if std == 0 || math.IsNaN(std) {
		std = 1
	}
	return Scaler{Mean: mean, Scale: std}
}

// Apply standardizes values in place. NaN stays NaN.
func (s Scaler) Apply(values []float64) {
	for i, v := range values {
		values[i] = (v - s.Mean) / s.Scale
	}
}
