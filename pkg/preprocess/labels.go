package preprocess

import (
	"sort"

	"github.com/pkg/errors"
)

// UnknownLabelPolicy decides what happens to labels outside the vocabulary.
type UnknownLabelPolicy string

const (
	// UnknownMissing encodes unknown labels as NaN.
	UnknownMissing UnknownLabelPolicy = "missing"
	// UnknownReject fails the transform on the first unknown label.
	UnknownReject UnknownLabelPolicy = "reject"
	// UnknownBucket encodes unknown labels with one extra code past the vocabulary.
	UnknownBucket UnknownLabelPolicy = "bucket"
)

// Valid reports whether p is a known policy.
func (p UnknownLabelPolicy) Valid() bool {
	switch p {
	case UnknownMissing, UnknownReject, UnknownBucket:
		return true
	}
	return false
}

// DefaultLabels returns the CICIDS attack vocabulary.
func DefaultLabels() map[string]int {
	return map[string]int{
		"BENIGN":           0,
		"DoS":              1,
		"Bot":              2,
		"BruteForce":       3,
		"Web Attack":       4,
		"FTP-Patator":      5,
		"SSH-Patator":      6,
		"Infiltration":     7,
		"Heartbleed":       8,
		"DoS GoldenEye":    9,
		"DoS Hulk":         10,
		"DoS slowloris":    11,
		"DoS Slowhttptest": 12,
		"Botnet":           13,
		"PortScan":         14,
		"DDoS":             15,
		"Brute Force XSS":  16,
		"Brute Force Web":  17,
		"SQL Injection":    18,
	}
}

// bucketCode returns the code used for unknown labels under UnknownBucket.
func bucketCode(labels map[string]int) int {
	next := 0
	for _, code := range labels {
		if code >= next {
			next = code + 1
		}
	}
	return next
}

// LabelNames returns the vocabulary ordered by code.
func LabelNames(labels map[string]int) []string {
	names := make([]string, 0, len(labels))
	for name := range labels {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		return labels[names[i]] < labels[names[j]]
	})
	return names
}

func validateLabels(labels map[string]int) error {
	if len(labels) == 0 {
		return errors.New("label vocabulary is empty")
	}
	seen := make(map[int]string, len(labels))
	for name, code := range labels {
		if code < 0 {
			return errors.Errorf("label %q has negative code %d", name, code)
		}
		if other, dup := seen[code]; dup {
			return errors.Errorf("labels %q and %q share code %d", other, name, code)
		}
		seen[code] = name
	}
	return nil
}
