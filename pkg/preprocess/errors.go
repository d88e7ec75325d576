package preprocess

import "github.com/pkg/errors"

var (
	// ErrMissingColumn is returned when Label or Protocol is absent.
	ErrMissingColumn = errors.New("missing required column")
	// ErrSchema is returned when the input does not match the declared schema
	// or the fitted model.
	ErrSchema = errors.New("schema violation")
	// ErrUnknownLabel is returned under UnknownReject.
	ErrUnknownLabel = errors.New("unknown label")
	// ErrNotFitted is returned by Transform and Save before Fit or Load.
	ErrNotFitted = errors.New("preprocessor not fitted")
	// ErrDescriptor is returned for descriptors of an unknown format or version.
	ErrDescriptor = errors.New("invalid descriptor")
)
