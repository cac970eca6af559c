// Package mixer merges several audio tracks into one through a small
// processing graph: source nodes feeding a single destination node.
package mixer

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/Kaplaugher/vizume/internal/logging"
	"github.com/Kaplaugher/vizume/internal/media"
)

var (
	ErrClosed       = errors.New("mixer: context closed")
	ErrNoAudio      = errors.New("mixer: stream has no audio track")
	ErrNotPCM       = errors.New("mixer: audio track does not expose raw samples")
	ErrWrongContext = errors.New("mixer: nodes belong to different contexts")
)

// Config is the output format of the graph.
type Config struct {
	SampleRate    int
	Channels      int
	FrameDuration time.Duration

	// Logger defaults to the "mixer" component logger.
	Logger *slog.Logger
}

func DefaultConfig() Config {
	return Config{SampleRate: 48000, Channels: 2, FrameDuration: 20 * time.Millisecond}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.SampleRate <= 0 {
		c.SampleRate = def.SampleRate
	}
	if c.Channels <= 0 {
		c.Channels = def.Channels
	}
	if c.FrameDuration <= 0 {
		c.FrameDuration = def.FrameDuration
	}
	if c.Logger == nil {
		c.Logger = logging.L("mixer")
	}
	return c
}

// FrameSamples is the number of samples per channel in one output frame.
func (c Config) FrameSamples() int {
	return int(int64(c.SampleRate) * int64(c.FrameDuration) / int64(time.Second))
}

// State of a Context.
type State int

const (
	StateRunning State = iota
	StateClosed
)

func (s State) String() string {
	if s == StateClosed {
		return "closed"
	}
	return "running"
}

// Context owns every node of one mixing graph.
type Context struct {
	cfg Config
	log *slog.Logger

	mu      sync.Mutex
	closed  bool
	sources []*SourceNode
	dests   []*DestinationNode
}

func NewContext(cfg Config) *Context {
	cfg = cfg.withDefaults()
	return &Context{cfg: cfg, log: cfg.Logger}
}

func (c *Context) Config() Config { return c.cfg }

func (c *Context) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return StateClosed
	}
	return StateRunning
}

// SourceCount returns how many source nodes were created.
func (c *Context) SourceCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sources)
}

// DestinationCount returns how many destination nodes were created.
func (c *Context) DestinationCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.dests)
}

// CreateMediaStreamSource wraps the first audio track of s in a source node.
func (c *Context) CreateMediaStreamSource(s *media.Stream) (*SourceNode, error) {
	audio := s.AudioTracks()
	if len(audio) == 0 {
		return nil, ErrNoAudio
	}
	pcm, ok := audio[0].(media.PCMSource)
	if !ok {
		return nil, ErrNotPCM
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}
	n := &SourceNode{ctx: c, stream: s, track: pcm}
	c.sources = append(c.sources, n)
	return n, nil
}

// CreateMediaStreamDestination returns a node whose track carries the sum
// of every source connected to it.
func (c *Context) CreateMediaStreamDestination() (*DestinationNode, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}
	d := &DestinationNode{ctx: c}
	d.track = newMixedTrack(d)
	d.stream = media.NewStream(d.track)
	c.dests = append(c.dests, d)
	return d, nil
}

// Close releases the graph and ends every destination track. Closing an
// already closed context is a no-op.
func (c *Context) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	dests := c.dests
	sources := len(c.sources)
	c.mu.Unlock()

	for _, d := range dests {
		d.track.end()
	}
	c.log.Debug("audio graph closed", "sources", sources, "destinations", len(dests))
	return nil
}

func (c *Context) isClosed() bool {
	return c.State() == StateClosed
}

// SourceNode reads one input track.
type SourceNode struct {
	ctx    *Context
	stream *media.Stream
	track  media.PCMSource

	// pending and ended are only touched by the owning destination's reader.
	pending []int16
	ended   bool
}

// Stream returns the input stream the node reads from.
func (n *SourceNode) Stream() *media.Stream { return n.stream }

// Connect routes the node into d.
func (n *SourceNode) Connect(d *DestinationNode) error {
	if n.ctx != d.ctx {
		return ErrWrongContext
	}
	if n.ctx.isClosed() {
		return ErrClosed
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, in := range d.inputs {
		if in == n {
			return nil
		}
	}
	d.inputs = append(d.inputs, n)
	return nil
}

// DestinationNode produces the mixed output track.
type DestinationNode struct {
	ctx    *Context
	track  *mixedTrack
	stream *media.Stream

	mu     sync.Mutex
	inputs []*SourceNode
}

// Track returns the mixed output track.
func (d *DestinationNode) Track() media.PCMSource { return d.track }

// Stream returns a stream holding only the mixed track.
func (d *DestinationNode) Stream() *media.Stream { return d.stream }

// Inputs returns the number of connected source nodes.
func (d *DestinationNode) Inputs() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.inputs)
}

// Mix returns the audio track to record from the primary stream (counted
// only when hasNativeAudio is set) and any extra streams. With fewer than two
// audio sources no graph is built and the lone track, or nil, is returned.
// Otherwise the returned context owns the graph and must be closed by the
// caller.
//
// A camera without native audio never reaches the graph: its microphone is
// the only audio source and is recorded directly. Only screen capture with
// system audio plus a microphone builds one.
func Mix(cfg Config, primary *media.Stream, hasNativeAudio bool, others ...*media.Stream) (*Context, media.Track, error) {
	var inputs []*media.Stream
	if hasNativeAudio && primary.HasAudio() {
		inputs = append(inputs, primary)
	}
	for _, s := range others {
		if s.HasAudio() {
			inputs = append(inputs, s)
		}
	}

	switch len(inputs) {
	case 0:
		return nil, nil, nil
	case 1:
		return nil, inputs[0].AudioTracks()[0], nil
	}

	ctx := NewContext(cfg)
	dest, err := ctx.CreateMediaStreamDestination()
	if err != nil {
		return nil, nil, err
	}
	for _, s := range inputs {
		src, err := ctx.CreateMediaStreamSource(s)
		if err == nil {
			err = src.Connect(dest)
		}
		if err != nil {
			_ = ctx.Close()
			return nil, nil, err
		}
	}

	ctx.log.Info("audio graph built", "sources", len(inputs), "sampleRate", ctx.cfg.SampleRate, "channels", ctx.cfg.Channels)
	return ctx, dest.Track(), nil
}
