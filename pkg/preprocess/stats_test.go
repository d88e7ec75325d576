package preprocess

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMedian(t *testing.T) {
	nan := math.NaN()

	tests := []struct {
		name   string
		values []float64
		want   float64
	}{
		{name: "odd count", values: []float64{5, 1, 3}, want: 3},
		{name: "even count", values: []float64{4, 1, 3, 2}, want: 2.5},
		{name: "ignores missing", values: []float64{nan, 10, nan, 30}, want: 20},
		{name: "single value", values: []float64{7}, want: 7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, median(tt.values))
		})
	}

	t.Run("all missing", func(t *testing.T) {
		assert.True(t, math.IsNaN(median([]float64{nan, nan})))
		assert.True(t, math.IsNaN(median(nil)))
	})
}

func TestFitScaler(t *testing.T) {
	tests := []struct {
		name   string
		values []float64
		want   Scaler
	}{
		{name: "spread", values: []float64{10, 20}, want: Scaler{Mean: 15, Scale: 5}},
		{name: "constant", values: []float64{3, 3, 3}, want: Scaler{Mean: 3, Scale: 1}},
		{name: "empty", values: nil, want: Scaler{Mean: 0, Scale: 1}},
		{name: "ignores missing", values: []float64{math.NaN(), 10, 20}, want: Scaler{Mean: 15, Scale: 5}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := fitScaler(tt.values)
			assert.InDelta(t, tt.want.Mean, got.Mean, 1e-12)
			assert.InDelta(t, tt.want.Scale, got.Scale, 1e-12)
		})
	}
}

func TestScalerApply(t *testing.T) {
	values := []float64{10, math.NaN(), 20}
	Scaler{Mean: 15, Scale: 5}.Apply(values)

	assert.Equal(t, -1.0, values[0])
	assert.True(t, math.IsNaN(values[1]))
	assert.Equal(t, 1.0, values[2])
}

func TestLabels(t *testing.T) {
	labels := DefaultLabels()
	assert.Len(t, labels, 19)
	assert.Equal(t, 0, labels["BENIGN"])
	assert.Equal(t, 15, labels["DDoS"])
	assert.Equal(t, 19, bucketCode(labels))

	names := LabelNames(labels)
	assert.Equal(t, "BENIGN", names[0])
	assert.Equal(t, "SQL Injection", names[18])

	assert.Error(t, validateLabels(map[string]int{"a": 1, "b": 1}))
	assert.Error(t, validateLabels(map[string]int{"a": -1}))
	assert.NoError(t, validateLabels(labels))
}
