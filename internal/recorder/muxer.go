package recorder

import (
	"bytes"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/at-wat/ebml-go/webm"

	"github.com/Kaplaugher/vizume/internal/media"
)

// chunkSink collects container bytes between timeslice flushes. The block
// writer may write from its own goroutine; done is closed once it has
// closed the sink after the last block.
type chunkSink struct {
	mu     sync.Mutex
	buf    bytes.Buffer
	closed bool
	done   chan struct{}
}

func newChunkSink() *chunkSink {
	return &chunkSink{done: make(chan struct{})}
}

func (s *chunkSink) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, io.ErrClosedPipe
	}
	return s.buf.Write(p)
}

// Close marks the end of the container. Bytes written so far remain
// available to take.
func (s *chunkSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.done)
	}
	return nil
}

// take returns and clears the buffered bytes.
func (s *chunkSink) take() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]byte, s.buf.Len())
	copy(out, s.buf.Bytes())
	s.buf.Reset()
	return out
}

// webmMuxer writes SimpleBlocks for one video and an optional audio track.
type webmMuxer struct {
	video webm.BlockWriteCloser
	audio webm.BlockWriteCloser
	all   []webm.BlockWriteCloser
}

type trackLayout struct {
	videoCodec string
	width      int
	height     int
	frameRate  float64

	audioCodec    string // empty when the recording has no audio
	sampleRate    int
	channels      int
	audioFrameDur time.Duration
}

func newWebMMuxer(w io.WriteCloser, l trackLayout) (*webmMuxer, error) {
	videoID, err := matroskaCodecID(l.videoCodec)
	if err != nil {
		return nil, err
	}

	var frameDur time.Duration
	if l.frameRate > 0 {
		frameDur = time.Duration(float64(time.Second) / l.frameRate)
	}

	tracks := []webm.TrackEntry{{
		Name:            "Video",
		TrackNumber:     1,
		TrackUID:        1,
		CodecID:         videoID,
		TrackType:       1,
		DefaultDuration: uint64(frameDur),
		Video: &webm.Video{
			PixelWidth:  uint64(l.width),
			PixelHeight: uint64(l.height),
		},
	}}

	if l.audioCodec != "" {
		audioID, err := matroskaCodecID(l.audioCodec)
		if err != nil {
			return nil, err
		}
		tracks = append(tracks, webm.TrackEntry{
			Name:            "Audio",
			TrackNumber:     2,
			TrackUID:        2,
			CodecID:         audioID,
			TrackType:       2,
			DefaultDuration: uint64(l.audioFrameDur),
			Audio: &webm.Audio{
				SamplingFrequency: float64(l.sampleRate),
				Channels:          uint64(l.channels),
			},
		})
	}

	ws, err := webm.NewSimpleBlockWriter(w, tracks)
	if err != nil {
		return nil, err
	}

	m := &webmMuxer{video: ws[0], all: ws}
	if len(ws) > 1 {
		m.audio = ws[1]
	}
	return m, nil
}

func (m *webmMuxer) writeVideo(keyframe bool, ts time.Duration, data []byte) error {
	_, err := m.video.Write(keyframe, ts.Milliseconds(), data)
	return err
}

func (m *webmMuxer) writeAudio(ts time.Duration, data []byte) error {
	if m.audio == nil {
		return nil
	}
	_, err := m.audio.Write(true, ts.Milliseconds(), data)
	return err
}

func (m *webmMuxer) close() error {
	var errs []error
	for _, w := range m.all {
		if err := w.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// videoLayout picks the frame size for the container header: the track's
// reported settings, or the key frame itself for VP8.
func videoLayout(codec string, s media.Settings, keyframe []byte) (width, height int) {
	width, height = s.Width, s.Height
	if width > 0 && height > 0 {
		return width, height
	}
	if w, h, ok := vp8Dimensions(keyframe); ok && codecName(codec) == "vp8" {
		return w, h
	}
	return width, height
}
