package dvid

import (
	"errors"
	"fmt"
)

var (
	// ErrOutOfBoundsRoi is returned when a region of interest does not fit within the
	// shape of the array it indexes.  It is a programming or configuration error and is
	// never retried.
	ErrOutOfBoundsRoi = errors.New("roi out of bounds")

	// ErrConfiguration is returned for incompatible reconfiguration, mismatched metadata,
	// cyclic wiring, or unsupported parameters.
	ErrConfiguration = errors.New("configuration error")
)

// OutOfBoundsf returns an error wrapping ErrOutOfBoundsRoi.
func OutOfBoundsf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrOutOfBoundsRoi, fmt.Sprintf(format, args...))
}

// ConfigErrorf returns an error wrapping ErrConfiguration.
func ConfigErrorf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrConfiguration, fmt.Sprintf(format, args...))
}

// ComputeFailure reports that computing a block failed upstream.  Every requester that
// joined the failed computation receives the same ComputeFailure.
type ComputeFailure struct {
	Block string
	Err   error
}

func (e *ComputeFailure) Error() string {
	return fmt.Sprintf("compute of block %s failed: %v", e.Block, e.Err)
}

func (e *ComputeFailure) Unwrap() error {
	return e.Err
}

// ExportFailure reports that one named output could not be exported.
type ExportFailure struct {
	Name string
	Err  error
}

func (e *ExportFailure) Error() string {
	return fmt.Sprintf("export of %q failed: %v", e.Name, e.Err)
}

func (e *ExportFailure) Unwrap() error {
	return e.Err
}
