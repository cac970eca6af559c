package session

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/Kaplaugher/vizume/internal/blob"
	"github.com/Kaplaugher/vizume/internal/handoff"
	"github.com/Kaplaugher/vizume/internal/logging"
)

// Artifact is a finished recording. It is never modified; a new recording
// produces a new Artifact.
type Artifact struct {
	Blob      *blob.Blob
	Ref       string // playback reference in the session's registry
	MediaType string
	Size      int64
	Duration  time.Duration
	Chunks    int
	CreatedAt time.Time
}

func newArtifact(chunks [][]byte, mediaType string, d time.Duration, now time.Time) *Artifact {
	b := blob.New(chunks, mediaType)
	return &Artifact{
		Blob:      b,
		MediaType: mediaType,
		Size:      b.Size(),
		Duration:  d,
		Chunks:    len(chunks),
		CreatedAt: now,
	}
}

// Publisher turns an artifact into a reference the upload side can resolve.
type Publisher func(a *Artifact) (string, error)

// Handoff writes the current artifact into store. publish may be nil, in
// which case the in-process playback reference is handed off. A displaced
// entry has its reference released.
func (s *Session) Handoff(store handoff.Store, publish Publisher) (handoff.Entry, error) {
	s.mu.Lock()
	a, log := s.artifact, s.log
	s.mu.Unlock()
	if a == nil {
		return handoff.Entry{}, fmt.Errorf("session: no artifact to hand off (state %s)", s.State())
	}

	ref := a.Ref
	if publish != nil {
		var err error
		if ref, err = publish(a); err != nil {
			return handoff.Entry{}, fmt.Errorf("session: publish artifact: %w", err)
		}
	}

	e := handoff.Entry{
		URL:      ref,
		Name:     handoff.DefaultName,
		Type:     a.MediaType,
		Size:     a.Size,
		Duration: a.Duration.Seconds(),
	}
	prev, err := store.Put(e)
	if err != nil {
		return handoff.Entry{}, err
	}
	if prev != nil && prev.URL != ref {
		s.releaseRef(log, prev.URL)
	}

	log.Info("recording handed off",
		"url", e.URL,
		logging.KeyBytes, e.Size,
		logging.KeyDurationMs, a.Duration.Milliseconds())
	return e, nil
}

func (s *Session) releaseRef(log *slog.Logger, ref string) {
	switch {
	case blob.IsRef(ref):
		s.registry.Revoke(ref)
	default:
		if err := handoff.Release(ref); err != nil {
			log.Warn("failed to release displaced handoff entry", "url", ref, logging.KeyError, err.Error())
		}
	}
}
