package recorder

import (
	"errors"
	"fmt"
)

var (
	ErrUnsupportedFormat = errors.New("recorder: unsupported format")
	ErrUnsupportedTrack  = errors.New("recorder: track cannot be recorded")
	ErrInvalidState      = errors.New("recorder: invalid state")
)

// EncoderFault reports that recording failed after it started. The recorder
// stops itself; chunks emitted before the fault remain valid.
type EncoderFault struct {
	Err error
}

func (e *EncoderFault) Error() string {
	return fmt.Sprintf("encoder fault: %v", e.Err)
}

func (e *EncoderFault) Unwrap() error { return e.Err }
