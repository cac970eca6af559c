package mixer

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/google/uuid"

	"github.com/Kaplaugher/vizume/internal/logging"
	"github.com/Kaplaugher/vizume/internal/media"
	"github.com/Kaplaugher/vizume/internal/media/pcm"
)

// mixedTrack is the output of a DestinationNode. Each ReadPCM pulls one
// frame worth of samples from every live input and sums them at unity gain.
type mixedTrack struct {
	id   string
	dest *DestinationNode

	readMu  sync.Mutex
	endOnce sync.Once
	done    chan struct{}
}

func newMixedTrack(d *DestinationNode) *mixedTrack {
	return &mixedTrack{id: uuid.NewString(), dest: d, done: make(chan struct{})}
}

func (t *mixedTrack) ID() string       { return t.id }
func (t *mixedTrack) Kind() media.Kind { return media.KindAudio }
func (t *mixedTrack) Label() string    { return "mixed" }

func (t *mixedTrack) Settings() media.Settings {
	cfg := t.dest.ctx.cfg
	return media.Settings{SampleRate: cfg.SampleRate, Channels: cfg.Channels}
}

func (t *mixedTrack) Stop() error {
	t.end()
	return nil
}

func (t *mixedTrack) Live() bool {
	select {
	case <-t.done:
		return false
	default:
		return true
	}
}

func (t *mixedTrack) end() {
	t.endOnce.Do(func() { close(t.done) })
}

func (t *mixedTrack) ReadPCM(ctx context.Context) (media.PCMFrame, error) {
	t.readMu.Lock()
	defer t.readMu.Unlock()

	if !t.Live() {
		return media.PCMFrame{}, io.EOF
	}

	cfg := t.dest.ctx.cfg
	want := cfg.FrameSamples() * cfg.Channels
	acc := make([]int32, want)

	t.dest.mu.Lock()
	inputs := make([]*SourceNode, len(t.dest.inputs))
	copy(inputs, t.dest.inputs)
	t.dest.mu.Unlock()

	contributed := 0
	for _, in := range inputs {
		if err := in.fill(ctx, want, cfg); err != nil {
			return media.PCMFrame{}, err
		}
		n := min(want, len(in.pending))
		if n == 0 {
			continue
		}
		for i := 0; i < n; i++ {
			acc[i] += int32(in.pending[i])
		}
		in.pending = in.pending[n:]
		contributed++
	}

	// The graph may have been closed while we were blocked on an input.
	if !t.Live() || contributed == 0 {
		t.end()
		return media.PCMFrame{}, io.EOF
	}

	out := make([]int16, want)
	for i, v := range acc {
		out[i] = pcm.Saturate(v)
	}
	return media.PCMFrame{Data: out, SampleRate: cfg.SampleRate, Channels: cfg.Channels}, nil
}

// fill reads from the input until want samples are pending or it ends.
// An input failing with anything other than cancellation is dropped from
// the mix, the remaining inputs keep playing.
func (n *SourceNode) fill(ctx context.Context, want int, cfg Config) error {
	for !n.ended && len(n.pending) < want {
		frame, err := n.track.ReadPCM(ctx)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			if !errors.Is(err, io.EOF) {
				n.ctx.log.Warn("dropping failed audio input", logging.KeyTrackID, n.track.ID(), logging.KeyError, err.Error())
			}
			n.ended = true
			return nil
		}
		n.pending = append(n.pending, pcm.Convert(frame, cfg.SampleRate, cfg.Channels)...)
	}
	return nil
}
