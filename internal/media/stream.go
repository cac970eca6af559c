package media

import (
	"sync"

	"github.com/google/uuid"
)

// Stream groups tracks captured or assembled together. A stream never owns
// the lifetime of its tracks; stopping them is the lifecycle manager's job.
type Stream struct {
	id string

	mu      sync.RWMutex
	tracks  []Track
	sources []*Stream
}

// NewStream returns a stream holding the given tracks.
func NewStream(tracks ...Track) *Stream {
	s := &Stream{id: uuid.NewString()}
	for _, t := range tracks {
		if t != nil {
			s.tracks = append(s.tracks, t)
		}
	}
	return s
}

func (s *Stream) ID() string { return s.id }

// Tracks returns a snapshot of every track in insertion order.
func (s *Stream) Tracks() []Track {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Track, len(s.tracks))
	copy(out, s.tracks)
	return out
}

func (s *Stream) VideoTracks() []Track { return s.byKind(KindVideo) }
func (s *Stream) AudioTracks() []Track { return s.byKind(KindAudio) }

func (s *Stream) byKind(k Kind) []Track {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Track
	for _, t := range s.tracks {
		if t.Kind() == k {
			out = append(out, t)
		}
	}
	return out
}

// HasAudio reports whether the stream carries at least one audio track.
func (s *Stream) HasAudio() bool {
	return s != nil && len(s.AudioTracks()) > 0
}

// AddTrack appends t unless it is already present.
func (s *Stream) AddTrack(t Track) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.tracks {
		if existing == t {
			return
		}
	}
	s.tracks = append(s.tracks, t)
}

// Sources returns the original streams this stream was assembled from.
// The returned streams are not owned by s.
func (s *Stream) Sources() []*Stream {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Stream, len(s.sources))
	copy(out, s.sources)
	return out
}

// Active reports whether any track is still live.
func (s *Stream) Active() bool {
	for _, t := range s.Tracks() {
		if t.Live() {
			return true
		}
	}
	return false
}
