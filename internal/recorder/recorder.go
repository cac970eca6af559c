// Package recorder encodes a combined stream into a WebM byte stream and
// hands it out in chunks at a fixed interval.
package recorder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Kaplaugher/vizume/internal/logging"
	"github.com/Kaplaugher/vizume/internal/loop"
	"github.com/Kaplaugher/vizume/internal/media"
	"github.com/Kaplaugher/vizume/internal/media/pcm"
)

// State of a Recorder. A recorder is single use: Inactive → Recording → Stopped.
type State int32

const (
	StateInactive State = iota
	StateRecording
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateInactive:
		return "inactive"
	case StateRecording:
		return "recording"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// AudioEncoder compresses fixed-size PCM frames into codec packets.
type AudioEncoder interface {
	Encode(f media.PCMFrame) ([]byte, error)
	Close() error
}

// AudioEncoderFactory builds an AudioEncoder for raw audio tracks.
type AudioEncoderFactory func(sampleRate, channels, bitsPerSecond int) (AudioEncoder, error)

// Options configures a Recorder.
type Options struct {
	Format             Format
	VideoBitsPerSecond int
	AudioBitsPerSecond int

	// Raw audio tracks are converted to this format and cut into frames of
	// AudioFrameDuration before encoding.
	AudioSampleRate    int
	AudioChannels      int
	AudioFrameDuration time.Duration
	NewAudioEncoder    AudioEncoderFactory

	// FinalizeTimeout bounds the wait for the container writer to flush.
	FinalizeTimeout time.Duration

	Clock  func() time.Time
	Logger *slog.Logger
}

func DefaultOptions() Options {
	return Options{
		Format:             DefaultFormat,
		VideoBitsPerSecond: 2_500_000,
		AudioBitsPerSecond: 128_000,
		AudioSampleRate:    48000,
		AudioChannels:      2,
		AudioFrameDuration: 20 * time.Millisecond,
		FinalizeTimeout:    5 * time.Second,
		Clock:              time.Now,
	}
}

func applyDefaults(o Options) Options {
	def := DefaultOptions()
	if o.Format.MimeType == "" {
		o.Format = def.Format
	}
	if o.VideoBitsPerSecond <= 0 {
		o.VideoBitsPerSecond = def.VideoBitsPerSecond
	}
	if o.AudioBitsPerSecond <= 0 {
		o.AudioBitsPerSecond = def.AudioBitsPerSecond
	}
	if o.AudioSampleRate <= 0 {
		o.AudioSampleRate = def.AudioSampleRate
	}
	if o.AudioChannels <= 0 {
		o.AudioChannels = def.AudioChannels
	}
	if o.AudioFrameDuration <= 0 {
		o.AudioFrameDuration = def.AudioFrameDuration
	}
	if o.FinalizeTimeout <= 0 {
		o.FinalizeTimeout = def.FinalizeTimeout
	}
	if o.Clock == nil {
		o.Clock = def.Clock
	}
	if o.Logger == nil {
		o.Logger = logging.L("recorder")
	}
	return o
}

// Recorder reads one video track and at most one audio track, muxes them
// into WebM and emits the container bytes every timeslice. Callbacks run
// one at a time on the recorder's event loop, in emission order. Register
// them before Start and never call Stop from inside one.
type Recorder struct {
	opts     Options
	log      *slog.Logger
	video    media.SampleSource
	audio    media.Track
	rawAudio bool
	events   *loop.Loop
	metrics  *Metrics

	onData func([]byte)
	onStop func(error)

	mu       sync.Mutex // guards state, mux, started
	state    State
	sink     *chunkSink
	mux      *webmMuxer
	started  time.Time
	audioEnc AudioEncoder

	cancel   context.CancelFunc
	pumps    sync.WaitGroup
	live     atomic.Int32
	tickQuit chan struct{}
	tickDone chan struct{}
	stopOnce sync.Once
	stopped  chan struct{}
}

// New validates that stream can be recorded with opts.Format.
func New(stream *media.Stream, opts Options) (*Recorder, error) {
	opts = applyDefaults(opts)

	vt := stream.VideoTracks()
	if len(vt) == 0 {
		return nil, fmt.Errorf("%w: no video track", ErrUnsupportedTrack)
	}
	video, ok := vt[0].(media.SampleSource)
	if !ok {
		return nil, fmt.Errorf("%w: video track %s yields no encoded samples", ErrUnsupportedTrack, vt[0].ID())
	}
	if !strings.EqualFold(video.Codec(), opts.Format.VideoCodec) {
		return nil, fmt.Errorf("%w: video codec %q does not match %q", ErrUnsupportedTrack, video.Codec(), opts.Format.MimeType)
	}

	r := &Recorder{
		opts:     opts,
		log:      opts.Logger,
		video:    video,
		metrics:  newMetrics(),
		tickQuit: make(chan struct{}),
		tickDone: make(chan struct{}),
		stopped:  make(chan struct{}),
	}

	if at := stream.AudioTracks(); len(at) > 0 {
		a := at[0]
		if ss, ok := a.(media.SampleSource); ok && ss.Codec() != "" {
			if !strings.EqualFold(ss.Codec(), opts.Format.AudioCodec) {
				return nil, fmt.Errorf("%w: audio codec %q does not match %q", ErrUnsupportedTrack, ss.Codec(), opts.Format.MimeType)
			}
		} else if _, ok := a.(media.PCMSource); ok {
			if opts.NewAudioEncoder == nil {
				return nil, fmt.Errorf("%w: raw audio track needs an audio encoder", ErrUnsupportedTrack)
			}
			r.rawAudio = true
		} else {
			return nil, fmt.Errorf("%w: audio track %s yields no samples", ErrUnsupportedTrack, a.ID())
		}
		r.audio = a
	}
	if len(vt) > 1 {
		r.log.Warn("recording only the first video track", "videoTracks", len(vt))
	}

	r.events = loop.New("recorder", 64)
	return r, nil
}

// OnDataAvailable registers the chunk callback. Chunks may be empty.
func (r *Recorder) OnDataAvailable(fn func([]byte)) { r.onData = fn }

// OnStop registers the callback run once when the recorder stops, after
// the final chunk. err is nil for a normal stop and *EncoderFault otherwise.
func (r *Recorder) OnStop(fn func(error)) { r.onStop = fn }

// MimeType returns the media type of the emitted bytes.
func (r *Recorder) MimeType() string { return r.opts.Format.MimeType }

func (r *Recorder) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Active reports whether the recorder is recording.
func (r *Recorder) Active() bool { return r.State() == StateRecording }

// Metrics returns the recorder's counters.
func (r *Recorder) Metrics() *Metrics { return r.metrics }

// Start begins recording and emits a chunk every timeslice.
func (r *Recorder) Start(timeslice time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != StateInactive {
		return fmt.Errorf("%w: start while %s", ErrInvalidState, r.state)
	}
	if timeslice <= 0 {
		timeslice = time.Second
	}

	if r.rawAudio {
		enc, err := r.opts.NewAudioEncoder(r.opts.AudioSampleRate, r.opts.AudioChannels, r.opts.AudioBitsPerSecond)
		if err != nil {
			return &EncoderFault{Err: fmt.Errorf("audio encoder: %w", err)}
		}
		r.audioEnc = enc
	}

	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.sink = newChunkSink()
	r.started = r.opts.Clock()
	r.state = StateRecording

	n := 1
	if r.audio != nil {
		n++
	}
	r.live.Store(int32(n))
	r.pumps.Add(n)
	go r.pumpVideo(ctx)
	if r.audio != nil {
		if r.rawAudio {
			go r.pumpRawAudio(ctx)
		} else {
			go r.pumpEncodedAudio(ctx)
		}
	}
	go r.tick(timeslice)

	r.log.Info("recorder started",
		"mimeType", r.opts.Format.MimeType,
		"timesliceMs", timeslice.Milliseconds(),
		"videoBitsPerSecond", r.opts.VideoBitsPerSecond,
		"audio", r.audio != nil)
	return nil
}

// Stop finalizes the container, emits the last chunk and runs the stop
// callback. It returns once the callback has run. Stopping an inactive or
// stopped recorder is a no-op.
func (r *Recorder) Stop(ctx context.Context) error {
	r.shutdown(nil)
	select {
	case <-r.stopped:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Recorder) shutdown(cause error) {
	r.stopOnce.Do(func() {
		r.mu.Lock()
		if r.state != StateRecording {
			r.state = StateStopped
			r.mu.Unlock()
			close(r.stopped)
			go r.events.Drain(context.Background())
			return
		}
		r.mu.Unlock()

		r.cancel()
		r.pumps.Wait()
		close(r.tickQuit)
		<-r.tickDone

		r.mu.Lock()
		r.state = StateStopped
		mux := r.mux
		r.mux = nil
		r.mu.Unlock()

		if mux != nil {
			if err := mux.close(); err != nil && cause == nil {
				cause = &EncoderFault{Err: fmt.Errorf("finalize container: %w", err)}
			}
			select {
			case <-r.sink.done:
			case <-time.After(r.opts.FinalizeTimeout):
				r.log.Warn("container writer did not finish in time")
			}
		}
		_ = r.sink.Close()

		if r.audioEnc != nil {
			if err := r.audioEnc.Close(); err != nil {
				r.log.Warn("failed to close audio encoder", logging.KeyError, err.Error())
			}
		}

		r.emit(r.sink.take())

		err := r.events.Post(context.Background(), func() {
			defer close(r.stopped)
			if r.onStop != nil {
				r.onStop(cause)
			}
		})
		if err != nil {
			close(r.stopped)
		}
		go r.events.Drain(context.Background())

		snap := r.metrics.Snapshot()
		attrs := []any{
			"samplesWritten", snap.SamplesWritten,
			"samplesDropped", snap.SamplesDropped,
			"chunks", snap.ChunksEmitted,
			logging.KeyBytes, snap.BytesEmitted,
			"bitrateKbps", fmt.Sprintf("%.1f", snap.BitrateKbps),
		}
		if cause != nil {
			r.log.Error("recorder stopped on fault", append(attrs, logging.KeyError, cause.Error())...)
		} else {
			r.log.Info("recorder stopped", attrs...)
		}
	})
}

// fail stops the recorder because of err. Safe to call from a pump.
func (r *Recorder) fail(err error) {
	r.cancel()
	go r.shutdown(&EncoderFault{Err: err})
}

// pumpExited stops the recorder once every track has ended on its own.
func (r *Recorder) pumpExited(ctx context.Context) {
	remaining := r.live.Add(-1)
	r.pumps.Done()
	if remaining == 0 && ctx.Err() == nil {
		r.log.Info("all recorded tracks ended")
		go r.shutdown(nil)
	}
}

// readFailed handles the error that ends a pump: cancellation and end of
// track are expected, anything else is a fault.
func (r *Recorder) readFailed(ctx context.Context, what string, err error) {
	switch {
	case ctx.Err() != nil:
	case errors.Is(err, io.EOF):
		r.log.Info("track ended", "track", what)
	default:
		r.fail(fmt.Errorf("read %s: %w", what, err))
	}
}

func (r *Recorder) pumpVideo(ctx context.Context) {
	defer r.pumpExited(ctx)
	for {
		s, err := r.video.ReadSample(ctx)
		if err != nil {
			r.readFailed(ctx, "video", err)
			return
		}
		r.metrics.RecordRead()
		if err := r.writeVideo(s.Data); err != nil {
			r.fail(err)
			return
		}
	}
}

func (r *Recorder) pumpEncodedAudio(ctx context.Context) {
	defer r.pumpExited(ctx)
	src := r.audio.(media.SampleSource)
	for {
		s, err := src.ReadSample(ctx)
		if err != nil {
			r.readFailed(ctx, "audio", err)
			return
		}
		r.metrics.RecordRead()
		if err := r.writeAudio(s.Data); err != nil {
			r.fail(err)
			return
		}
	}
}

func (r *Recorder) pumpRawAudio(ctx context.Context) {
	defer r.pumpExited(ctx)
	src := r.audio.(media.PCMSource)
	perFrame := int(int64(r.opts.AudioSampleRate) * int64(r.opts.AudioFrameDuration) / int64(time.Second))
	framer := pcm.NewFramer(r.opts.AudioSampleRate, r.opts.AudioChannels, perFrame)
	for {
		f, err := src.ReadPCM(ctx)
		if err != nil {
			r.readFailed(ctx, "audio", err)
			return
		}
		r.metrics.RecordRead()
		framer.Write(f)
		for {
			frame, ok := framer.Next()
			if !ok {
				break
			}
			packet, err := r.audioEnc.Encode(frame)
			if err != nil {
				r.fail(fmt.Errorf("encode audio: %w", err))
				return
			}
			if err := r.writeAudio(packet); err != nil {
				r.fail(err)
				return
			}
		}
	}
}

func (r *Recorder) writeVideo(data []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != StateRecording {
		return nil
	}
	key := isKeyframe(r.video.Codec(), data)
	if r.mux == nil {
		// Nothing decodes before the first key frame.
		if !key {
			r.metrics.RecordDrop()
			return nil
		}
		mux, err := r.openMuxer(data)
		if err != nil {
			return fmt.Errorf("open container: %w", err)
		}
		r.mux = mux
	}

	if err := r.mux.writeVideo(key, r.elapsed(), data); err != nil {
		return fmt.Errorf("write video: %w", err)
	}
	r.metrics.RecordWrite(len(data))
	return nil
}

func (r *Recorder) writeAudio(data []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != StateRecording || r.mux == nil || len(data) == 0 {
		r.metrics.RecordDrop()
		return nil
	}
	if err := r.mux.writeAudio(r.elapsed(), data); err != nil {
		return fmt.Errorf("write audio: %w", err)
	}
	r.metrics.RecordWrite(len(data))
	return nil
}

func (r *Recorder) elapsed() time.Duration {
	d := r.opts.Clock().Sub(r.started)
	if d < 0 {
		return 0
	}
	return d
}

func (r *Recorder) openMuxer(keyframe []byte) (*webmMuxer, error) {
	vs := r.video.Settings()
	width, height := videoLayout(r.video.Codec(), vs, keyframe)
	l := trackLayout{
		videoCodec: r.video.Codec(),
		width:      width,
		height:     height,
		frameRate:  vs.FrameRate,
	}
	if r.audio != nil {
		l.audioCodec = r.opts.Format.AudioCodec
		l.audioFrameDur = r.opts.AudioFrameDuration
		if r.rawAudio {
			l.sampleRate, l.channels = r.opts.AudioSampleRate, r.opts.AudioChannels
		} else {
			as := r.audio.Settings()
			l.sampleRate, l.channels = as.SampleRate, as.Channels
			if l.sampleRate <= 0 {
				l.sampleRate = 48000
			}
			if l.channels <= 0 {
				l.channels = 2
			}
		}
	}
	return newWebMMuxer(r.sink, l)
}

func (r *Recorder) tick(timeslice time.Duration) {
	defer close(r.tickDone)
	t := time.NewTicker(timeslice)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			r.emit(r.sink.take())
		case <-r.tickQuit:
			return
		}
	}
}

// emit queues a data event. Events are delivered in the order emitted.
func (r *Recorder) emit(chunk []byte) {
	r.metrics.RecordChunk(len(chunk))
	err := r.events.Post(context.Background(), func() {
		if r.onData != nil {
			r.onData(chunk)
		}
	})
	if err != nil {
		r.log.Warn("dropping chunk after shutdown", logging.KeyBytes, len(chunk))
	}
}
