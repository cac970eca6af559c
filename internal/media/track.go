// Package media defines the track and stream model shared by acquisition,
// mixing and recording.
package media

import (
	"context"
	"time"

	pmedia "github.com/pion/webrtc/v4/pkg/media"
)

// Kind is the media type carried by a track.
type Kind string

const (
	KindVideo Kind = "video"
	KindAudio Kind = "audio"
)

// Sample is one encoded frame read from a track.
type Sample = pmedia.Sample

// Settings describes the configuration a track actually runs with, which
// may differ from the ideal constraints it was requested with. Zero fields
// are unknown.
type Settings struct {
	Width      int
	Height     int
	FrameRate  float64
	SampleRate int
	Channels   int
}

// Track is a single live media feed. Stop must be idempotent.
type Track interface {
	ID() string
	Kind() Kind
	Label() string
	Settings() Settings
	Stop() error
	Live() bool
}

// SampleSource is a track that yields encoded samples. Codec returns the
// codec mime type (video/VP9, audio/opus...). ReadSample returns io.EOF once
// the track has ended.
type SampleSource interface {
	Track
	Codec() string
	ReadSample(ctx context.Context) (Sample, error)
}

// PCMSource is an audio track that yields raw interleaved samples.
// ReadPCM returns io.EOF once the track has ended.
type PCMSource interface {
	Track
	ReadPCM(ctx context.Context) (PCMFrame, error)
}

// PCMFrame is a block of interleaved signed 16-bit samples.
type PCMFrame struct {
	Data       []int16
	SampleRate int
	Channels   int
}

// Frames returns the number of samples per channel.
func (f PCMFrame) Frames() int {
	if f.Channels <= 0 {
		return 0
	}
	return len(f.Data) / f.Channels
}

// Duration returns the playback length of the frame.
func (f PCMFrame) Duration() time.Duration {
	if f.SampleRate <= 0 {
		return 0
	}
	return time.Duration(f.Frames()) * time.Second / time.Duration(f.SampleRate)
}
