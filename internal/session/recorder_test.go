package session

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Kaplaugher/vizume/internal/acquire"
	"github.com/Kaplaugher/vizume/internal/blob"
	"github.com/Kaplaugher/vizume/internal/handoff"
	"github.com/Kaplaugher/vizume/internal/logging"
	"github.com/Kaplaugher/vizume/internal/media"
	"github.com/Kaplaugher/vizume/internal/media/mediatest"
	"github.com/Kaplaugher/vizume/internal/mixer"
	"github.com/Kaplaugher/vizume/internal/recorder"
)

var ebmlMagic = []byte{0x1A, 0x45, 0xDF, 0xA3}

// 640x480 VP8 key frame header followed by a few payload bytes.
var vp8Key = []byte{0x10, 0x02, 0x00, 0x9d, 0x01, 0x2a, 0x80, 0x02, 0xe0, 0x01, 0x00, 0x00, 0x00}
var vp8Inter = []byte{0x11, 0x00, 0x00, 0x00}

// encodedDevices hands out a VP8 display track with raw system audio and a
// raw microphone, like the platform adapter does.
type encodedDevices struct {
	video  *mediatest.SampleTrack
	system *mediatest.PCMTrack
	mic    *mediatest.PCMTrack
}

func newEncodedDevices() *encodedDevices {
	return &encodedDevices{
		video:  mediatest.NewSampleTrack(media.KindVideo, webrtc.MimeTypeVP8),
		system: mediatest.NewPCMTrack(48000, 2),
		mic:    mediatest.NewPCMTrack(44100, 1),
	}
}

func (d *encodedDevices) DisplayMedia(context.Context, media.Constraints) (*media.Stream, error) {
	return media.NewStream(d.video, d.system), nil
}

func (d *encodedDevices) UserMedia(context.Context, media.Constraints) (*media.Stream, error) {
	return media.NewStream(d.mic), nil
}

type countingAudioEncoder struct {
	frames atomic.Int32
	closed atomic.Bool
}

func (e *countingAudioEncoder) Encode(media.PCMFrame) ([]byte, error) {
	e.frames.Add(1)
	return []byte{0xfc, 0xff, 0xfe}, nil
}

func (e *countingAudioEncoder) Close() error {
	e.closed.Store(true)
	return nil
}

func TestRecorderFactoryRecordsMixedWebM(t *testing.T) {
	d := newEncodedDevices()
	format, err := recorder.ParseFormat("video/webm;codecs=vp8,opus")
	require.NoError(t, err)
	audioEnc := &countingAudioEncoder{}

	factory := RecorderFactory(recorder.Options{
		Format: format,
		Logger: logging.Discard(),
		NewAudioEncoder: func(int, int, int) (recorder.AudioEncoder, error) {
			return audioEnc, nil
		},
	})
	s := New(Config{
		Mode:           media.ModeScreen,
		WithMicrophone: true,
		Timeslice:      20 * time.Millisecond,
		Mixer:          mixer.DefaultConfig(),
	}, acquire.New(d, acquire.WithLogger(logging.Discard())), factory, WithLogger(logging.Discard()))
	ctx := context.Background()

	require.NoError(t, s.Start(ctx))
	s.mu.Lock()
	rec, ok := s.cur.encoder.(*recorder.Recorder)
	g := s.cur.graph
	s.mu.Unlock()
	require.True(t, ok)
	require.NotNil(t, g)
	assert.Equal(t, 2, g.SourceCount())

	d.video.Push(media.Sample{Data: vp8Key, Duration: 33 * time.Millisecond})
	for i := 0; i < 3; i++ {
		d.video.Push(media.Sample{Data: vp8Inter, Duration: 33 * time.Millisecond})
	}
	require.Eventually(t, func() bool {
		return rec.Metrics().Snapshot().SamplesWritten >= 4
	}, 2*time.Second, 5*time.Millisecond)

	for i := 0; i < 5; i++ {
		d.system.Push(mediatest.Constant(100, 960, 48000, 2))
		d.mic.Push(mediatest.Constant(50, 882, 44100, 1))
	}
	require.Eventually(t, func() bool { return audioEnc.frames.Load() >= 2 }, 2*time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)

	require.NoError(t, s.Stop(ctx))
	assert.Equal(t, StateStopped, s.State())

	a, ok := s.Artifact()
	require.True(t, ok)
	assert.True(t, bytes.HasPrefix(a.Blob.Bytes(), ebmlMagic), "artifact should start with an EBML header")
	assert.Equal(t, "video/webm;codecs=vp8,opus", a.MediaType)
	assert.Equal(t, int64(rec.Metrics().Snapshot().BytesEmitted), a.Size)

	assert.True(t, audioEnc.closed.Load())
	assert.Equal(t, mixer.StateClosed, g.State())
	for _, tr := range []media.Track{d.video, d.system, d.mic} {
		assert.False(t, tr.Live(), "track %s still live", tr.ID())
	}
}

func recordOnce(t *testing.T, r *rig, s *Session, payload string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, s.Start(ctx))
	r.encoder().Emit([]byte(payload))
	r.clock.Advance(1500 * time.Millisecond)
	require.NoError(t, s.Stop(ctx))
}

func TestHandoffRevokesDisplacedBlobRef(t *testing.T) {
	r := newRig(t, cameraConfig(false), &devices{})
	other := newTestSession(cameraConfig(false), acquire.New(r.devices, acquire.WithLogger(logging.Discard())), r)
	store := handoff.NewMemory()

	recordOnce(t, r, r.session, "first")
	first, err := r.session.Handoff(store, nil)
	require.NoError(t, err)
	assert.True(t, blob.IsRef(first.URL))
	assert.Equal(t, handoff.DefaultName, first.Name)
	assert.Equal(t, webmType, first.Type)
	assert.Equal(t, int64(len("first")), first.Size)
	assert.InDelta(t, 1.5, first.Duration, 1e-9)

	recordOnce(t, r, other, "second")
	second, err := other.Handoff(store, nil)
	require.NoError(t, err)

	_, ok := r.registry.Resolve(first.URL)
	assert.False(t, ok, "displaced reference revoked")
	b, ok := r.registry.Resolve(second.URL)
	require.True(t, ok)
	assert.Equal(t, []byte("second"), b.Bytes())

	got, err := store.Take()
	require.NoError(t, err)
	assert.Equal(t, second, got)
	_, err = store.Take()
	assert.ErrorIs(t, err, handoff.ErrEmpty)
}

func TestHandoffReleasesDisplacedSpoolFile(t *testing.T) {
	r := newRig(t, cameraConfig(false), &devices{})
	dir := t.TempDir()
	store := handoff.NewFile(dir + "/handoff.yaml")
	spool := func(a *Artifact) (string, error) {
		return handoff.Spool(dir, handoff.DefaultName, a.Blob.Reader())
	}

	recordOnce(t, r, r.session, "first")
	first, err := r.session.Handoff(store, spool)
	require.NoError(t, err)
	firstPath, err := handoff.SpoolPath(first.URL)
	require.NoError(t, err)
	data, err := os.ReadFile(firstPath)
	require.NoError(t, err)
	assert.Equal(t, []byte("first"), data)

	recordOnce(t, r, r.session, "second")
	second, err := r.session.Handoff(store, spool)
	require.NoError(t, err)

	_, err = os.Stat(firstPath)
	assert.ErrorIs(t, err, os.ErrNotExist, "displaced spool file removed")
	peek, err := store.Peek()
	require.NoError(t, err)
	assert.Equal(t, second.URL, peek.URL)
}

func TestHandoffWithoutArtifactFails(t *testing.T) {
	r := newRig(t, cameraConfig(false), &devices{})
	_, err := r.session.Handoff(handoff.NewMemory(), nil)
	assert.Error(t, err)
}

func TestMixerLogsWithSessionLogger(t *testing.T) {
	var buf syncBuffer
	d := &devices{displayAudio: true}
	r := &rig{t: t, devices: d, clock: newClock(), registry: blob.NewRegistry()}
	s := New(screenConfig(), acquire.New(d, acquire.WithLogger(logging.Discard())), r.newEncoder,
		WithRegistry(r.registry),
		WithLogger(slog.New(slog.NewTextHandler(&buf, nil))))

	require.NoError(t, s.Start(context.Background()))
	out := buf.String()
	assert.Contains(t, out, "audio graph built")
	assert.Contains(t, out, logging.KeySessionID+"="+s.ID())
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
