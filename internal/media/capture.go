package media

import (
	"fmt"
	"strings"
)

// Mode selects the primary capture device.
type Mode int

const (
	ModeScreen Mode = iota
	ModeCamera
)

func (m Mode) String() string {
	switch m {
	case ModeScreen:
		return "screen"
	case ModeCamera:
		return "camera"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// ParseMode accepts "screen" or "camera", case-insensitively.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "screen", "display":
		return ModeScreen, nil
	case "camera", "webcam":
		return ModeCamera, nil
	}
	return 0, fmt.Errorf("unknown capture mode %q", s)
}

// Constraints are ideal hints passed to the device layer. The platform may
// substitute the closest configuration it supports.
type Constraints struct {
	Video     bool
	Audio     bool
	Width     int
	Height    int
	FrameRate float64
}

// DisplayConstraints requests a display capture with whatever size the
// platform offers.
func DisplayConstraints() Constraints {
	return Constraints{Video: true}
}

// CameraConstraints requests a camera at 1920x1080@30 with its audio.
func CameraConstraints() Constraints {
	return Constraints{Video: true, Audio: true, Width: 1920, Height: 1080, FrameRate: 30}
}

// MicrophoneConstraints requests a microphone only.
func MicrophoneConstraints() Constraints {
	return Constraints{Audio: true}
}

// CaptureSource is the primary stream acquired for a mode, along with the
// constraints it was requested with.
type CaptureSource struct {
	Mode        Mode
	Stream      *Stream
	Constraints Constraints
}

// HasNativeAudio reports whether the primary stream brought its own audio.
func (c CaptureSource) HasNativeAudio() bool {
	return c.Stream.HasAudio()
}
