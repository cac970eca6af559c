// Package mediatest provides in-memory tracks for tests that exercise the
// capture pipeline without real devices.
package mediatest

import (
	"context"
	"io"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/Kaplaugher/vizume/internal/media"
)

// Track is a fake device track. Stop is idempotent and counts calls.
type Track struct {
	id       string
	kind     media.Kind
	label    string
	settings media.Settings

	// StopErr is returned by every Stop call when set.
	StopErr error

	stops    atomic.Int32
	stopOnce sync.Once
	done     chan struct{}
}

func newTrack(kind media.Kind, label string, settings media.Settings) *Track {
	return &Track{
		id:       uuid.NewString(),
		kind:     kind,
		label:    label,
		settings: settings,
		done:     make(chan struct{}),
	}
}

// NewVideo returns a bare video track.
func NewVideo(label string) *Track {
	return newTrack(media.KindVideo, label, media.Settings{Width: 1280, Height: 720, FrameRate: 30})
}

// NewAudio returns a bare audio track.
func NewAudio(label string) *Track {
	return newTrack(media.KindAudio, label, media.Settings{SampleRate: 48000, Channels: 2})
}

func (t *Track) ID() string               { return t.id }
func (t *Track) Kind() media.Kind         { return t.kind }
func (t *Track) Label() string            { return t.label }
func (t *Track) Settings() media.Settings { return t.settings }

func (t *Track) Stop() error {
	t.stops.Add(1)
	t.stopOnce.Do(func() { close(t.done) })
	return t.StopErr
}

func (t *Track) Live() bool {
	select {
	case <-t.done:
		return false
	default:
		return true
	}
}

// StopCount returns how many times Stop was called.
func (t *Track) StopCount() int { return int(t.stops.Load()) }

// Done is closed on the first Stop.
func (t *Track) Done() <-chan struct{} { return t.done }

type sampleItem struct {
	sample media.Sample
	err    error
}

// SampleTrack is a fake encoded track fed by Push.
type SampleTrack struct {
	*Track
	codec   string
	items   chan sampleItem
	endOnce sync.Once
}

// NewSampleTrack returns an encoded track of the given kind and codec.
func NewSampleTrack(kind media.Kind, codec string) *SampleTrack {
	settings := media.Settings{Width: 1280, Height: 720, FrameRate: 30}
	if kind == media.KindAudio {
		settings = media.Settings{SampleRate: 48000, Channels: 2}
	}
	return &SampleTrack{
		Track: newTrack(kind, codec, settings),
		codec: codec,
		items: make(chan sampleItem, 256),
	}
}

func (t *SampleTrack) Codec() string { return t.codec }

// Push queues a sample for the next ReadSample.
func (t *SampleTrack) Push(s media.Sample) { t.items <- sampleItem{sample: s} }

// Fail makes the next ReadSample return err.
func (t *SampleTrack) Fail(err error) { t.items <- sampleItem{err: err} }

// End makes ReadSample return io.EOF once queued samples are consumed.
func (t *SampleTrack) End() { t.endOnce.Do(func() { close(t.items) }) }

func (t *SampleTrack) ReadSample(ctx context.Context) (media.Sample, error) {
	select {
	case it, ok := <-t.items:
		if !ok {
			return media.Sample{}, io.EOF
		}
		return it.sample, it.err
	case <-t.done:
		return media.Sample{}, io.EOF
	case <-ctx.Done():
		return media.Sample{}, ctx.Err()
	}
}

type pcmItem struct {
	frame media.PCMFrame
	err   error
}

// PCMTrack is a fake raw audio track fed by Push.
type PCMTrack struct {
	*Track
	items   chan pcmItem
	endOnce sync.Once
}

// NewPCMTrack returns a raw audio track reporting the given format.
func NewPCMTrack(sampleRate, channels int) *PCMTrack {
	return &PCMTrack{
		Track: newTrack(media.KindAudio, "pcm", media.Settings{SampleRate: sampleRate, Channels: channels}),
		items: make(chan pcmItem, 256),
	}
}

// Push queues a frame for the next ReadPCM.
func (t *PCMTrack) Push(f media.PCMFrame) { t.items <- pcmItem{frame: f} }

// Fail makes the next ReadPCM return err.
func (t *PCMTrack) Fail(err error) { t.items <- pcmItem{err: err} }

// End makes ReadPCM return io.EOF once queued frames are consumed.
func (t *PCMTrack) End() { t.endOnce.Do(func() { close(t.items) }) }

func (t *PCMTrack) ReadPCM(ctx context.Context) (media.PCMFrame, error) {
	select {
	case it, ok := <-t.items:
		if !ok {
			return media.PCMFrame{}, io.EOF
		}
		return it.frame, it.err
	case <-t.done:
		return media.PCMFrame{}, io.EOF
	case <-ctx.Done():
		return media.PCMFrame{}, ctx.Err()
	}
}

// Constant returns a frame of n samples per channel all set to v.
func Constant(v int16, n, sampleRate, channels int) media.PCMFrame {
	data := make([]int16, n*channels)
	for i := range data {
		data[i] = v
	}
	return media.PCMFrame{Data: data, SampleRate: sampleRate, Channels: channels}
}
