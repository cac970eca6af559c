// Package acquire requests the capture devices a recording needs.
package acquire

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Kaplaugher/vizume/internal/logging"
	"github.com/Kaplaugher/vizume/internal/media"
)

// Devices is the platform device layer. Both calls block until the user or
// OS grants or denies access.
type Devices interface {
	UserMedia(ctx context.Context, c media.Constraints) (*media.Stream, error)
	DisplayMedia(ctx context.Context, c media.Constraints) (*media.Stream, error)
}

// Result is the outcome of a successful acquisition.
type Result struct {
	Source media.CaptureSource
	// Microphone is nil when not requested, not needed or unavailable.
	Microphone *media.Stream
}

// HasNativeAudio reports whether the primary stream carries its own audio.
func (r *Result) HasNativeAudio() bool {
	return r.Source.HasNativeAudio()
}

// Streams returns every raw stream acquired, primary first.
func (r *Result) Streams() []*media.Stream {
	out := []*media.Stream{r.Source.Stream}
	if r.Microphone != nil {
		out = append(out, r.Microphone)
	}
	return out
}

// Acquirer runs the acquisition step for one mode at a time.
type Acquirer struct {
	devices Devices
	camera  media.Constraints
	display media.Constraints
	log     *slog.Logger
}

// Option customizes an Acquirer.
type Option func(*Acquirer)

// WithCameraConstraints overrides the ideal camera constraints.
func WithCameraConstraints(c media.Constraints) Option {
	return func(a *Acquirer) {
		c.Video, c.Audio = true, true
		a.camera = c
	}
}

// WithLogger sets the logger used for non-fatal acquisition problems.
func WithLogger(l *slog.Logger) Option {
	return func(a *Acquirer) { a.log = l }
}

func New(devices Devices, opts ...Option) *Acquirer {
	a := &Acquirer{
		devices: devices,
		camera:  media.CameraConstraints(),
		display: media.DisplayConstraints(),
		log:     logging.L("acquire"),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Acquire requests the primary device for mode and, when withMicrophone is
// set, a microphone. Only a failed primary acquisition is an error, returned
// as *media.DeviceAccessError. A missing microphone is logged and ignored.
//
// In camera mode the microphone is only requested when the camera has no
// audio of its own. In screen mode display audio is system audio, so a
// requested microphone is always added alongside it.
func (a *Acquirer) Acquire(ctx context.Context, mode media.Mode, withMicrophone bool) (*Result, error) {
	primary, constraints, err := a.primary(ctx, mode)
	if err != nil {
		return nil, &media.DeviceAccessError{Mode: mode, Err: err}
	}
	if len(primary.VideoTracks()) == 0 {
		stopAll(primary, a.log)
		return nil, &media.DeviceAccessError{Mode: mode, Err: media.ErrNoVideoTrack}
	}

	res := &Result{Source: media.CaptureSource{Mode: mode, Stream: primary, Constraints: constraints}}
	a.log.Info("primary capture acquired",
		logging.KeyMode, mode.String(),
		"videoTracks", len(primary.VideoTracks()),
		"hasNativeAudio", res.HasNativeAudio())

	// A reset may have superseded us while the user was answering the prompt.
	if err := ctx.Err(); err != nil {
		stopAll(primary, a.log)
		return nil, err
	}

	if !withMicrophone || (mode == media.ModeCamera && res.HasNativeAudio()) {
		return res, nil
	}

	mic, err := a.microphone(ctx)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			stopAll(primary, a.log)
			return nil, ctxErr
		}
		a.log.Warn("continuing without microphone", logging.KeyError, err.Error())
		return res, nil
	}
	if err := ctx.Err(); err != nil {
		stopAll(mic, a.log)
		stopAll(primary, a.log)
		return nil, err
	}

	res.Microphone = mic
	return res, nil
}

func (a *Acquirer) primary(ctx context.Context, mode media.Mode) (*media.Stream, media.Constraints, error) {
	switch mode {
	case media.ModeScreen:
		s, err := a.devices.DisplayMedia(ctx, a.display)
		return s, a.display, nilStream(s, err)
	case media.ModeCamera:
		s, err := a.devices.UserMedia(ctx, a.camera)
		return s, a.camera, nilStream(s, err)
	default:
		return nil, media.Constraints{}, fmt.Errorf("unsupported mode %v", mode)
	}
}

func (a *Acquirer) microphone(ctx context.Context) (*media.Stream, error) {
	mic, err := a.devices.UserMedia(ctx, media.MicrophoneConstraints())
	if err = nilStream(mic, err); err != nil {
		return nil, fmt.Errorf("%w: %w", media.ErrMicrophoneUnavailable, err)
	}
	if !mic.HasAudio() {
		stopAll(mic, a.log)
		return nil, fmt.Errorf("%w: stream has no audio track", media.ErrMicrophoneUnavailable)
	}
	return mic, nil
}

func nilStream(s *media.Stream, err error) error {
	if err == nil && s == nil {
		return errors.New("device layer returned no stream")
	}
	return err
}

// stopAll releases a stream that will not be handed to a session.
func stopAll(s *media.Stream, log *slog.Logger) {
	if s == nil {
		return
	}
	for _, t := range s.Tracks() {
		if err := t.Stop(); err != nil {
			log.Warn("failed to stop track", logging.KeyTrackID, t.ID(), logging.KeyError, err.Error())
		}
	}
}
