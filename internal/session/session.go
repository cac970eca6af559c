// Package session drives one recording at a time: it acquires devices,
// builds the combined stream, runs the encoder and assembles the artifact.
//
// All state lives behind Session.mu. Device negotiation, encoder finalize
// and teardown run without it, so encoder callbacks can always take the
// lock. Every Start and Reset bumps a generation counter; results and
// callbacks that carry an older generation are discarded. A Start waits
// until every earlier acquisition has resolved and every teardown has run.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Kaplaugher/vizume/internal/acquire"
	"github.com/Kaplaugher/vizume/internal/blob"
	"github.com/Kaplaugher/vizume/internal/lifecycle"
	"github.com/Kaplaugher/vizume/internal/logging"
	"github.com/Kaplaugher/vizume/internal/media"
	"github.com/Kaplaugher/vizume/internal/mixer"
	"github.com/Kaplaugher/vizume/internal/recorder"
)

var (
	// ErrEmptyRecording is returned by Stop when the encoder produced no
	// data. The session returns to Idle without an artifact.
	ErrEmptyRecording = errors.New("session: recording produced no data")
	// ErrSuperseded is returned by a Start that was cancelled by a Reset
	// (or a newer Start) before it could begin recording.
	ErrSuperseded = errors.New("session: start superseded")
	ErrClosed     = errors.New("session: closed")
)

// State of a Session.
type State int

const (
	StateIdle State = iota
	StateAcquiring
	StateRecording
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAcquiring:
		return "acquiring"
	case StateRecording:
		return "recording"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Acquirer opens the devices for a capture mode.
type Acquirer interface {
	Acquire(ctx context.Context, mode media.Mode, withMicrophone bool) (*acquire.Result, error)
}

// Encoder records a combined stream and reports chunks through callbacks.
// *recorder.Recorder implements it.
type Encoder interface {
	OnDataAvailable(fn func([]byte))
	OnStop(fn func(error))
	Start(timeslice time.Duration) error
	Stop(ctx context.Context) error
	Active() bool
	MimeType() string
}

// EncoderFactory attaches a new encoder to stream.
type EncoderFactory func(stream *media.Stream) (Encoder, error)

// RecorderFactory returns an EncoderFactory that builds recorders with opts.
func RecorderFactory(opts recorder.Options) EncoderFactory {
	return func(stream *media.Stream) (Encoder, error) {
		rec, err := recorder.New(stream, opts)
		if err != nil {
			return nil, err
		}
		return rec, nil
	}
}

// Config selects the capture variant and recording parameters.
type Config struct {
	Mode           media.Mode
	WithMicrophone bool
	Timeslice      time.Duration
	// MaxBufferBytes caps the buffered chunks. Reaching it stops the
	// recording as if the encoder had failed. Zero means no cap.
	MaxBufferBytes int64
	Mixer          mixer.Config
}

// Option configures a Session.
type Option func(*Session)

// WithRegistry sets the registry playback references are created in.
func WithRegistry(r *blob.Registry) Option {
	return func(s *Session) { s.registry = r }
}

// WithClock overrides the clock used for durations.
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Session) { s.baseLog = l }
}

// held is what a session owns between acquisition and teardown.
type held struct {
	result   *acquire.Result
	graph    *mixer.Context
	combined *media.Stream
	encoder  Encoder
}

func (h *held) resources() lifecycle.Resources {
	if h == nil {
		return lifecycle.Resources{}
	}
	res := lifecycle.Resources{Combined: h.combined}
	if h.encoder != nil {
		res.Encoder = h.encoder
	}
	if h.result != nil {
		res.Sources = h.result.Streams()
	}
	if h.graph != nil {
		res.Graph = h.graph
	}
	return res
}

// Session is a recording session. It is safe for concurrent use.
type Session struct {
	cfg        Config
	acquirer   Acquirer
	newEncoder EncoderFactory
	registry   *blob.Registry
	now        func() time.Time
	baseLog    *slog.Logger

	mu            sync.Mutex
	state         State
	gen           uint64
	id            string
	log           *slog.Logger
	cancelAcquire context.CancelFunc
	cur           *held
	chunks        [][]byte
	buffered      int64
	capped        bool
	startedAt     time.Time
	artifact      *Artifact
	stopErr       error
	closed        bool

	// pending counts acquisitions and teardowns running outside mu;
	// drained is closed when the count drops to zero.
	pending int
	drained chan struct{}
}

// New returns an idle session.
func New(cfg Config, acq Acquirer, newEncoder EncoderFactory, opts ...Option) *Session {
	if cfg.Timeslice <= 0 {
		cfg.Timeslice = time.Second
	}
	s := &Session{
		cfg:        cfg,
		acquirer:   acq,
		newEncoder: newEncoder,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.registry == nil {
		s.registry = blob.NewRegistry()
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.baseLog == nil {
		s.baseLog = logging.L("session")
	}
	s.log = s.baseLog.With(logging.KeyMode, cfg.Mode.String())
	return s
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// IsRecording reports whether the session is in the Recording state.
func (s *Session) IsRecording() bool { return s.State() == StateRecording }

// ID returns the id of the current (or last) recording attempt.
func (s *Session) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

// CurrentStream returns the combined stream being recorded, for preview.
func (s *Session) CurrentStream() *media.Stream {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cur == nil {
		return nil
	}
	return s.cur.combined
}

// Chunks returns the number of buffered chunks.
func (s *Session) Chunks() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.chunks)
}

// Artifact returns the finished recording, if the session is Stopped.
func (s *Session) Artifact() (*Artifact, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.artifact, s.artifact != nil
}

// Duration returns the artifact's duration, or zero without one.
func (s *Session) Duration() time.Duration {
	if a, ok := s.Artifact(); ok {
		return a.Duration
	}
	return 0
}

// Registry returns the registry playback references live in.
func (s *Session) Registry() *blob.Registry { return s.registry }

// Start acquires devices and begins recording. A session that is not Idle
// is reset first, and Start waits for earlier acquisitions and teardowns
// before touching devices. Failures leave the session Idle and return
// *media.DeviceAccessError or *recorder.EncoderFault.
func (s *Session) Start(ctx context.Context) error {
	gen, acqCtx, log, err := s.beginAcquiring(ctx)
	if err != nil {
		return err
	}
	// Held until the acquisition is applied or released, so a later Start
	// never negotiates devices while this one is still outstanding.
	defer s.endPending()

	result, err := s.acquirer.Acquire(acqCtx, s.cfg.Mode, s.cfg.WithMicrophone)
	if err != nil {
		if !s.abortAcquiring(gen) {
			return ErrSuperseded
		}
		log.Warn("device acquisition failed", logging.KeyError, err.Error())
		return err
	}

	h := &held{result: result}
	if err := s.attach(h, log); err != nil {
		s.discard(ctx, h, "attach failed")
		if !s.abortAcquiring(gen) {
			return ErrSuperseded
		}
		log.Error("failed to attach encoder", logging.KeyError, err.Error())
		return err
	}

	h.encoder.OnDataAvailable(func(chunk []byte) { s.onData(gen, chunk) })
	h.encoder.OnStop(func(cause error) { s.onStop(gen, cause) })

	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		log.Info("discarding superseded acquisition")
		s.discard(ctx, h, "superseded")
		return ErrSuperseded
	}
	if err := h.encoder.Start(s.cfg.Timeslice); err != nil {
		s.state = StateIdle
		s.releaseAcquireCtx()
		s.mu.Unlock()
		s.discard(ctx, h, "encoder start failed")
		var fault *recorder.EncoderFault
		if !errors.As(err, &fault) {
			err = &recorder.EncoderFault{Err: err}
		}
		log.Error("failed to start encoder", logging.KeyError, err.Error())
		return err
	}
	s.cur = h
	s.state = StateRecording
	s.startedAt = s.now()
	s.releaseAcquireCtx()
	s.mu.Unlock()

	log.Info("recording started",
		"nativeAudio", result.HasNativeAudio(),
		"microphone", result.Microphone != nil,
		"mixed", h.graph != nil,
		"mimeType", h.encoder.MimeType())
	return nil
}

// beginAcquiring resets the session if needed, waits for pending
// acquisitions and teardowns, and moves to Acquiring under a new
// generation. The caller must call endPending when done.
func (s *Session) beginAcquiring(ctx context.Context) (uint64, context.Context, *slog.Logger, error) {
	for {
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return 0, nil, nil, ErrClosed
		}
		if s.state != StateIdle {
			s.mu.Unlock()
			s.Reset(ctx)
			continue
		}
		if s.drained != nil {
			wait := s.drained
			s.mu.Unlock()
			select {
			case <-wait:
			case <-ctx.Done():
				return 0, nil, nil, ctx.Err()
			}
			continue
		}

		s.gen++
		gen := s.gen
		acqCtx, cancel := context.WithCancel(ctx)
		s.cancelAcquire = cancel
		s.state = StateAcquiring
		s.id = uuid.NewString()
		s.log = logging.WithSession(s.baseLog, s.id, s.cfg.Mode.String())
		s.clearRecording()
		s.beginPending()
		log := s.log
		s.mu.Unlock()

		log.Info("acquiring devices", "microphone", s.cfg.WithMicrophone)
		return gen, acqCtx, log, nil
	}
}

// abortAcquiring returns the session to Idle after a failed acquisition.
// It reports false when gen was already superseded.
func (s *Session) abortAcquiring(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen {
		return false
	}
	s.releaseAcquireCtx()
	s.state = StateIdle
	return true
}

// releaseAcquireCtx cancels the acquisition context. Callers hold mu.
func (s *Session) releaseAcquireCtx() {
	if s.cancelAcquire != nil {
		s.cancelAcquire()
		s.cancelAcquire = nil
	}
}

// attach mixes audio, combines the streams and creates the encoder.
func (s *Session) attach(h *held, log *slog.Logger) error {
	var others []*media.Stream
	if h.result.Microphone != nil {
		others = append(others, h.result.Microphone)
	}
	primary := h.result.Source.Stream

	mixCfg := s.cfg.Mixer
	if mixCfg.Logger == nil {
		mixCfg.Logger = log
	}
	graph, audio, err := mixer.Mix(mixCfg, primary, h.result.HasNativeAudio(), others...)
	if err != nil {
		return &recorder.EncoderFault{Err: fmt.Errorf("build audio graph: %w", err)}
	}
	h.graph = graph

	combined, err := media.Combine(primary, audio, h.result.Streams())
	if err != nil {
		return &media.DeviceAccessError{Mode: s.cfg.Mode, Err: err}
	}
	h.combined = combined

	enc, err := s.newEncoder(combined)
	if err != nil {
		return &recorder.EncoderFault{Err: err}
	}
	h.encoder = enc
	return nil
}

// Stop finalizes the recording and assembles the artifact. Outside
// Recording it is a no-op, except during Acquiring where it cancels like
// Reset. ErrEmptyRecording means the session went back to Idle because
// there was nothing to keep.
func (s *Session) Stop(ctx context.Context) error {
	s.mu.Lock()
	switch s.state {
	case StateAcquiring:
		s.mu.Unlock()
		s.Reset(ctx)
		return nil
	case StateRecording:
	default:
		s.mu.Unlock()
		return nil
	}
	gen := s.gen
	enc := s.cur.encoder
	s.mu.Unlock()

	// The stop callback finalizes the session before Stop returns.
	if err := enc.Stop(ctx); err != nil {
		return fmt.Errorf("session: stop encoder: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen {
		return nil
	}
	return s.stopErr
}

// Reset discards the session's recording and releases everything it holds.
// From Acquiring it cancels the acquisition; from Recording it stops without
// keeping an artifact. Reset from Idle is a no-op.
func (s *Session) Reset(ctx context.Context) {
	s.mu.Lock()
	if s.state == StateIdle {
		s.mu.Unlock()
		return
	}
	from := s.state
	s.gen++
	s.releaseAcquireCtx()
	res := s.cur.resources()
	s.cur = nil
	if s.artifact != nil {
		res.Revoke = append(res.Revoke, s.artifact.Ref)
		s.artifact = nil
	}
	res.Revoker = s.registry
	s.clearRecording()
	s.state = StateIdle
	log := s.log
	s.beginPending()
	s.mu.Unlock()

	defer s.endPending()
	lifecycle.Log(log, "reset", lifecycle.Teardown(ctx, res))
	log.Info("session reset", "from", from.String())
}

// RecordAgain discards the current recording and starts a new one.
func (s *Session) RecordAgain(ctx context.Context) error {
	s.Reset(ctx)
	return s.Start(ctx)
}

// Close releases everything and refuses further Starts. It waits for
// pending acquisitions and teardowns.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	s.Reset(ctx)

	s.mu.Lock()
	wait := s.drained
	s.mu.Unlock()
	if wait == nil {
		return nil
	}
	select {
	case <-wait:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// onData appends a chunk from the encoder of generation gen.
func (s *Session) onData(gen uint64, chunk []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen || s.state != StateRecording || s.capped || len(chunk) == 0 {
		return
	}
	if limit := s.cfg.MaxBufferBytes; limit > 0 && s.buffered+int64(len(chunk)) > limit {
		s.capped = true
		s.log.Error("buffer limit reached, stopping recording",
			logging.KeyBytes, s.buffered,
			"maxBufferBytes", limit)
		enc := s.cur.encoder
		// Stop waits for this callback to return.
		go func() { _ = enc.Stop(context.Background()) }()
		return
	}
	s.chunks = append(s.chunks, chunk)
	s.buffered += int64(len(chunk))
}

// onStop finalizes the session when the encoder of generation gen stops,
// whether through Stop, a fault or its tracks ending.
func (s *Session) onStop(gen uint64, cause error) {
	s.mu.Lock()
	if s.gen != gen || s.state != StateRecording {
		s.mu.Unlock()
		return
	}
	if cause == nil && s.capped {
		cause = &recorder.EncoderFault{Err: errors.New("buffer limit reached")}
	}

	enc := s.cur.encoder
	res := s.cur.resources()
	res.Revoker = s.registry
	s.cur = nil
	duration := s.now().Sub(s.startedAt)
	if duration < 0 {
		duration = 0
	}
	log := s.log

	if len(s.chunks) == 0 {
		s.clearRecording()
		s.state = StateIdle
		s.stopErr = ErrEmptyRecording
		if cause != nil {
			log.Error("recording failed before producing data", logging.KeyError, cause.Error())
		} else {
			log.Warn("recording stopped without data")
		}
	} else {
		if s.artifact != nil {
			res.Revoke = append(res.Revoke, s.artifact.Ref)
		}
		a := newArtifact(s.chunks, enc.MimeType(), duration, s.now())
		a.Ref = s.registry.CreateURL(a.Blob)
		s.artifact = a
		s.state = StateStopped
		s.stopErr = nil
		attrs := []any{
			"chunks", a.Chunks,
			logging.KeyBytes, a.Size,
			logging.KeyDurationMs, a.Duration.Milliseconds(),
		}
		if cause != nil {
			log.Warn("recording stopped on fault, keeping partial artifact",
				append(attrs, logging.KeyError, cause.Error())...)
		} else {
			log.Info("recording stopped", attrs...)
		}
	}
	s.beginPending()
	s.mu.Unlock()

	defer s.endPending()
	lifecycle.Log(log, "stop", lifecycle.Teardown(context.Background(), res))
}

// discard tears down resources that never became part of the session.
func (s *Session) discard(ctx context.Context, h *held, reason string) {
	if h.encoder != nil && !h.encoder.Active() {
		// Releases the event loop of an encoder that never started.
		_ = h.encoder.Stop(ctx)
	}
	res := h.resources()
	s.mu.Lock()
	log := s.log
	s.beginPending()
	s.mu.Unlock()

	defer s.endPending()
	lifecycle.Log(log, reason, lifecycle.Teardown(ctx, res))
}

// clearRecording drops chunks and timestamps. Callers hold mu.
func (s *Session) clearRecording() {
	s.chunks = nil
	s.buffered = 0
	s.capped = false
	s.startedAt = time.Time{}
	s.stopErr = nil
}

// beginPending registers work about to run outside mu. Callers hold mu.
func (s *Session) beginPending() {
	if s.pending == 0 {
		s.drained = make(chan struct{})
	}
	s.pending++
}

func (s *Session) endPending() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending--
	if s.pending == 0 {
		close(s.drained)
		s.drained = nil
	}
}
