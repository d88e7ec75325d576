// Package io provides input/output utilities for flow tables.
package io

import (
	"context"

	"github.com/hed1ad/flowprep/pkg/table"
)

// Reader is the interface for reading flow tables from various sources.
type Reader interface {
	// Read returns the complete dataset.
	Read() (*table.Table, error)

	// Close releases resources.
	Close() error
}

// StreamReader delivers flow records as they complete.
type StreamReader interface {
	Reader

	// Stream returns a channel of batches for real-time processing.
	// The channel is closed when the source is exhausted or ctx is done.
	Stream(ctx context.Context) (<-chan *table.Table, error)

	// Err returns the error that ended the stream early, once the channel
	// is closed.
	Err() error
}

// Writer is the interface for writing processed tables.
type Writer interface {
	// Write outputs a table.
	Write(t *table.Table) error

	// Close releases resources.
	Close() error
}
