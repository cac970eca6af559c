// Package mediadev exposes capture devices from pion/mediadevices as
// media streams. Drivers (camera, microphone, screen) register themselves
// through blank imports in the binary.
package mediadev

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/pion/mediadevices"
	"github.com/pion/mediadevices/pkg/prop"

	"github.com/Kaplaugher/vizume/internal/logging"
	"github.com/Kaplaugher/vizume/internal/media"
)

// Devices implements acquire.Devices on top of pion/mediadevices.
type Devices struct {
	selector   *mediadevices.CodecSelector
	videoCodec string
	log        *slog.Logger

	// slot is held for the whole device negotiation, including one the
	// caller abandoned, so requests never overlap.
	slot chan struct{}
}

// New returns a device layer that encodes video with the encoders in
// selector. videoCodec is the mime type requested from it (video/VP9...).
func New(selector *mediadevices.CodecSelector, videoCodec string) *Devices {
	return &Devices{
		selector:   selector,
		videoCodec: videoCodec,
		log:        logging.L("mediadev"),
		slot:       make(chan struct{}, 1),
	}
}

// UserMedia opens a camera and/or microphone.
func (d *Devices) UserMedia(ctx context.Context, c media.Constraints) (*media.Stream, error) {
	return d.open(ctx, "user", c, mediadevices.GetUserMedia)
}

// DisplayMedia opens a display capture.
func (d *Devices) DisplayMedia(ctx context.Context, c media.Constraints) (*media.Stream, error) {
	return d.open(ctx, "display", c, mediadevices.GetDisplayMedia)
}

type getFunc func(mediadevices.MediaStreamConstraints) (mediadevices.MediaStream, error)

type opened struct {
	stream mediadevices.MediaStream
	err    error
}

// open runs get off the caller's goroutine so ctx can abandon it. A stream
// that arrives after ctx is done is closed. The next open waits until an
// abandoned get has returned.
func (d *Devices) open(ctx context.Context, what string, c media.Constraints, get getFunc) (*media.Stream, error) {
	select {
	case d.slot <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	mc := d.constraints(c)
	ch := make(chan opened, 1)
	go func() {
		defer func() { <-d.slot }()
		s, err := get(mc)
		ch <- opened{stream: s, err: err}
	}()

	select {
	case r := <-ch:
		if r.err != nil {
			return nil, classify(r.err)
		}
		return d.wrap(r.stream, c)
	case <-ctx.Done():
		go func() {
			if r := <-ch; r.stream != nil {
				closeAll(r.stream)
				d.log.Info("closed late device stream", "request", what)
			}
		}()
		return nil, ctx.Err()
	}
}

func (d *Devices) constraints(c media.Constraints) mediadevices.MediaStreamConstraints {
	mc := mediadevices.MediaStreamConstraints{Codec: d.selector}
	if c.Video {
		mc.Video = func(t *mediadevices.MediaTrackConstraints) {
			if c.Width > 0 {
				t.Width = prop.Int(c.Width)
			}
			if c.Height > 0 {
				t.Height = prop.Int(c.Height)
			}
			if c.FrameRate > 0 {
				t.FrameRate = prop.Float(c.FrameRate)
			}
		}
	}
	if c.Audio {
		mc.Audio = func(*mediadevices.MediaTrackConstraints) {}
	}
	return mc
}

func (d *Devices) wrap(s mediadevices.MediaStream, c media.Constraints) (*media.Stream, error) {
	out := media.NewStream()
	for _, t := range s.GetVideoTracks() {
		vt, err := newVideoTrack(t, d.videoCodec, c)
		if err != nil {
			closeAll(s)
			return nil, fmt.Errorf("%w: %v", media.ErrNoDevice, err)
		}
		out.AddTrack(vt)
	}
	for _, t := range s.GetAudioTracks() {
		at, ok := t.(*mediadevices.AudioTrack)
		if !ok {
			_ = t.Close()
			continue
		}
		out.AddTrack(newAudioTrack(at))
	}
	d.log.Debug("device stream opened",
		"videoTracks", len(out.VideoTracks()),
		"audioTracks", len(out.AudioTracks()))
	return out, nil
}

// classify maps device layer failures onto the media error taxonomy.
func classify(err error) error {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "permission"), strings.Contains(msg, "denied"), strings.Contains(msg, "not permitted"):
		return fmt.Errorf("%w: %v", media.ErrPermissionDenied, err)
	default:
		return fmt.Errorf("%w: %v", media.ErrNoDevice, err)
	}
}

func closeAll(s mediadevices.MediaStream) {
	for _, t := range s.GetTracks() {
		_ = t.Close()
	}
}

// Device is one capture device known to the driver manager.
type Device struct {
	ID    string
	Kind  string
	Label string
}

// Enumerate lists the capture devices the registered drivers expose.
func Enumerate() []Device {
	infos := mediadevices.EnumerateDevices()
	out := make([]Device, 0, len(infos))
	for _, info := range infos {
		out = append(out, Device{
			ID:    info.DeviceID,
			Kind:  kindName(info.Kind),
			Label: info.Label,
		})
	}
	return out
}

func kindName(k mediadevices.MediaDeviceType) string {
	switch k {
	case mediadevices.VideoInput:
		return "video-input"
	case mediadevices.AudioInput:
		return "audio-input"
	case mediadevices.AudioOutput:
		return "audio-output"
	default:
		return "unknown"
	}
}
