// Package pcm converts and re-frames raw interleaved 16-bit audio.
package pcm

import (
	"math"

	"github.com/Kaplaugher/vizume/internal/media"
)

// Convert maps f to the given channel count and sample rate. Channels are
// duplicated or averaged; rates are converted by linear interpolation.
func Convert(f media.PCMFrame, rate, channels int) []int16 {
	if f.Channels <= 0 || len(f.Data) == 0 {
		return nil
	}
	data := Remix(f.Data, f.Channels, channels)
	if f.SampleRate <= 0 || f.SampleRate == rate {
		return data
	}
	return Resample(data, channels, f.SampleRate, rate)
}

// Remix converts interleaved samples between channel layouts. Going to mono
// averages every channel, otherwise missing channels repeat the last one.
func Remix(in []int16, from, to int) []int16 {
	if from == to {
		out := make([]int16, len(in))
		copy(out, in)
		return out
	}
	frames := len(in) / from
	out := make([]int16, frames*to)
	for i := 0; i < frames; i++ {
		src := in[i*from : i*from+from]
		if to == 1 {
			var sum int32
			for _, s := range src {
				sum += int32(s)
			}
			out[i] = int16(sum / int32(from))
			continue
		}
		for c := 0; c < to; c++ {
			out[i*to+c] = src[min(c, from-1)]
		}
	}
	return out
}

// Resample converts interleaved samples between rates by linear
// interpolation. Each call is independent; no state carries across frames.
func Resample(in []int16, channels, from, to int) []int16 {
	frames := len(in) / channels
	if frames == 0 {
		return nil
	}
	outFrames := int(int64(frames) * int64(to) / int64(from))
	out := make([]int16, outFrames*channels)
	step := float64(from) / float64(to)
	for i := 0; i < outFrames; i++ {
		pos := float64(i) * step
		j := int(pos)
		frac := pos - float64(j)
		next := min(j+1, frames-1)
		for c := 0; c < channels; c++ {
			a := float64(in[j*channels+c])
			b := float64(in[next*channels+c])
			out[i*channels+c] = int16(math.Round(a + (b-a)*frac))
		}
	}
	return out
}

// Saturate clamps a widened sample back into int16 range.
func Saturate(v int32) int16 {
	if v > math.MaxInt16 {
		return math.MaxInt16
	}
	if v < math.MinInt16 {
		return math.MinInt16
	}
	return int16(v)
}

// Framer converts incoming frames to a fixed format and cuts them into
// frames of a fixed sample count, as frame-based codecs require.
type Framer struct {
	rate     int
	channels int
	size     int // samples per channel per frame
	pending  []int16
}

func NewFramer(rate, channels, samplesPerFrame int) *Framer {
	return &Framer{rate: rate, channels: channels, size: samplesPerFrame}
}

// Write converts f and appends it to the pending buffer.
func (fr *Framer) Write(f media.PCMFrame) {
	fr.pending = append(fr.pending, Convert(f, fr.rate, fr.channels)...)
}

// Next returns the next complete frame, if one is buffered.
func (fr *Framer) Next() (media.PCMFrame, bool) {
	n := fr.size * fr.channels
	if len(fr.pending) < n {
		return media.PCMFrame{}, false
	}
	data := make([]int16, n)
	copy(data, fr.pending[:n])
	fr.pending = fr.pending[n:]
	return media.PCMFrame{Data: data, SampleRate: fr.rate, Channels: fr.channels}, true
}

// Buffered returns the number of samples waiting for a complete frame.
func (fr *Framer) Buffered() int { return len(fr.pending) }
