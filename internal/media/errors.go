package media

import (
	"errors"
	"fmt"
)

var (
	ErrPermissionDenied      = errors.New("media: permission denied")
	ErrNoDevice              = errors.New("media: no compatible device")
	ErrNoVideoTrack          = errors.New("media: stream has no video track")
	ErrMicrophoneUnavailable = errors.New("media: microphone unavailable")
)

// DeviceAccessError reports that the primary capture for a mode could not
// be acquired. It is the only acquisition failure surfaced to callers.
type DeviceAccessError struct {
	Mode Mode
	Err  error
}

func (e *DeviceAccessError) Error() string {
	return fmt.Sprintf("%s capture unavailable: %v", e.Mode, e.Err)
}

func (e *DeviceAccessError) Unwrap() error { return e.Err }

// IsPermissionDenied reports whether err stems from a user or OS denial.
func IsPermissionDenied(err error) bool {
	return errors.Is(err, ErrPermissionDenied)
}
