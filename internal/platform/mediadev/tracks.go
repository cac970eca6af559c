package mediadev

import (
	"context"
	"fmt"
	"io"
	"math"
	"sync"
	"time"

	"github.com/pion/mediadevices"
	"github.com/pion/mediadevices/pkg/io/audio"
	"github.com/pion/mediadevices/pkg/wave"

	"github.com/Kaplaugher/vizume/internal/media"
)

// videoClockRate is the RTP clock the encoders report sample counts in.
const videoClockRate = 90000

// deviceTrack holds the state shared by video and audio wrappers.
type deviceTrack struct {
	track    mediadevices.Track
	kind     media.Kind
	settings media.Settings

	closeOnce sync.Once
	closeErr  error
	endOnce   sync.Once
	done      chan struct{}
}

func newDeviceTrack(t mediadevices.Track, kind media.Kind, settings media.Settings) *deviceTrack {
	d := &deviceTrack{track: t, kind: kind, settings: settings, done: make(chan struct{})}
	t.OnEnded(func(error) { d.end() })
	return d
}

func (d *deviceTrack) ID() string               { return d.track.ID() }
func (d *deviceTrack) Kind() media.Kind         { return d.kind }
func (d *deviceTrack) Label() string            { return d.track.ID() }
func (d *deviceTrack) Settings() media.Settings { return d.settings }

func (d *deviceTrack) Stop() error {
	d.closeOnce.Do(func() {
		d.closeErr = d.track.Close()
		d.end()
	})
	return d.closeErr
}

func (d *deviceTrack) Live() bool {
	select {
	case <-d.done:
		return false
	default:
		return true
	}
}

func (d *deviceTrack) end() {
	d.endOnce.Do(func() { close(d.done) })
}

// videoTrack yields encoded frames from the track's codec selector.
type videoTrack struct {
	*deviceTrack
	codec  string
	reader mediadevices.EncodedReadCloser
}

func newVideoTrack(t mediadevices.Track, codec string, c media.Constraints) (*videoTrack, error) {
	r, err := t.NewEncodedReader(codec)
	if err != nil {
		return nil, fmt.Errorf("encoded reader %s: %w", codec, err)
	}
	settings := media.Settings{Width: c.Width, Height: c.Height, FrameRate: c.FrameRate}
	return &videoTrack{
		deviceTrack: newDeviceTrack(t, media.KindVideo, settings),
		codec:       codec,
		reader:      r,
	}, nil
}

func (v *videoTrack) Codec() string { return v.codec }

func (v *videoTrack) Stop() error {
	err := v.deviceTrack.Stop()
	_ = v.reader.Close()
	return err
}

func (v *videoTrack) ReadSample(ctx context.Context) (media.Sample, error) {
	if err := ctx.Err(); err != nil {
		return media.Sample{}, err
	}
	if !v.Live() {
		return media.Sample{}, io.EOF
	}
	buf, release, err := v.reader.Read()
	if err != nil {
		if !v.Live() {
			return media.Sample{}, io.EOF
		}
		return media.Sample{}, err
	}
	defer release()

	data := make([]byte, len(buf.Data))
	copy(data, buf.Data)
	return media.Sample{
		Data:     data,
		Duration: time.Duration(buf.Samples) * time.Second / videoClockRate,
	}, nil
}

// audioTrack yields raw PCM converted to interleaved int16.
type audioTrack struct {
	*deviceTrack
	reader audio.Reader
}

func newAudioTrack(t *mediadevices.AudioTrack) *audioTrack {
	return &audioTrack{
		deviceTrack: newDeviceTrack(t, media.KindAudio, media.Settings{}),
		reader:      t.NewReader(false),
	}
}

func (a *audioTrack) ReadPCM(ctx context.Context) (media.PCMFrame, error) {
	if err := ctx.Err(); err != nil {
		return media.PCMFrame{}, err
	}
	if !a.Live() {
		return media.PCMFrame{}, io.EOF
	}
	chunk, release, err := a.reader.Read()
	if err != nil {
		if !a.Live() {
			return media.PCMFrame{}, io.EOF
		}
		return media.PCMFrame{}, err
	}
	defer release()
	return toPCM(chunk)
}

func toPCM(chunk wave.Audio) (media.PCMFrame, error) {
	info := chunk.ChunkInfo()
	f := media.PCMFrame{SampleRate: info.SamplingRate, Channels: info.Channels}
	switch c := chunk.(type) {
	case *wave.Int16Interleaved:
		f.Data = append([]int16(nil), c.Data...)
	case *wave.Float32Interleaved:
		f.Data = make([]int16, len(c.Data))
		for i, v := range c.Data {
			f.Data[i] = floatToInt16(v)
		}
	default:
		return media.PCMFrame{}, fmt.Errorf("mediadev: unsupported sample format %T", chunk)
	}
	return f, nil
}

func floatToInt16(v float32) int16 {
	s := math.Round(float64(v) * math.MaxInt16)
	switch {
	case s > math.MaxInt16:
		return math.MaxInt16
	case s < math.MinInt16:
		return math.MinInt16
	}
	return int16(s)
}
