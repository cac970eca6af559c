// Package opusenc encodes PCM frames with libopus.
package opusenc

import (
	"fmt"

	"gopkg.in/hraban/opus.v2"

	"github.com/Kaplaugher/vizume/internal/media"
	"github.com/Kaplaugher/vizume/internal/recorder"
)

// maxPacketSize is the largest packet libopus produces for one frame.
const maxPacketSize = 4000

// Encoder wraps a libopus encoder configured for general audio.
type Encoder struct {
	enc      *opus.Encoder
	channels int
	buf      []byte
}

// New returns an encoder for interleaved int16 frames at sampleRate with
// the given channel count and target bitrate.
func New(sampleRate, channels, bitsPerSecond int) (*Encoder, error) {
	enc, err := opus.NewEncoder(sampleRate, channels, opus.AppAudio)
	if err != nil {
		return nil, fmt.Errorf("opus encoder %d Hz x%d: %w", sampleRate, channels, err)
	}
	if bitsPerSecond > 0 {
		if err := enc.SetBitrate(bitsPerSecond); err != nil {
			return nil, fmt.Errorf("opus bitrate %d: %w", bitsPerSecond, err)
		}
	}
	return &Encoder{enc: enc, channels: channels, buf: make([]byte, maxPacketSize)}, nil
}

// Factory adapts New to the recorder's audio encoder hook.
func Factory(sampleRate, channels, bitsPerSecond int) (recorder.AudioEncoder, error) {
	enc, err := New(sampleRate, channels, bitsPerSecond)
	if err != nil {
		return nil, err
	}
	return enc, nil
}

func (e *Encoder) Encode(f media.PCMFrame) ([]byte, error) {
	if f.Channels != e.channels {
		return nil, fmt.Errorf("opus: frame has %d channels, encoder %d", f.Channels, e.channels)
	}
	n, err := e.enc.Encode(f.Data, e.buf)
	if err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, e.buf[:n])
	return out, nil
}

func (e *Encoder) Close() error { return nil }
