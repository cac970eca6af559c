// Package lifecycle releases everything a recording session holds: the
// encoder, device tracks, the mixing graph and stale playback references.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/Kaplaugher/vizume/internal/logging"
	"github.com/Kaplaugher/vizume/internal/media"
)

// Step names a teardown stage.
type Step string

const (
	StepEncoder Step = "stop-encoder"
	StepTracks  Step = "stop-tracks"
	StepGraph   Step = "close-graph"
	StepRevoke  Step = "revoke-reference"
)

// TeardownError records one failed cleanup action. Teardown keeps going
// after a failure, so several of these may be joined together.
type TeardownError struct {
	Step   Step
	Target string
	Err    error
}

func (e *TeardownError) Error() string {
	if e.Target == "" {
		return fmt.Sprintf("teardown %s: %v", e.Step, e.Err)
	}
	return fmt.Sprintf("teardown %s %s: %v", e.Step, e.Target, e.Err)
}

func (e *TeardownError) Unwrap() error { return e.Err }

// Encoder is the part of a recorder teardown needs.
type Encoder interface {
	Active() bool
	Stop(ctx context.Context) error
}

// Revoker invalidates playback references.
type Revoker interface {
	Revoke(ref string) bool
}

// Resources is what a session owns at the moment it is torn down. Any field
// may be zero.
type Resources struct {
	Encoder  Encoder
	Combined *media.Stream
	Sources  []*media.Stream
	Graph    io.Closer
	Revoker  Revoker
	Revoke   []string
}

// Teardown runs every step regardless of earlier failures and returns the
// failures joined. Callers log the result; it is never fatal. Every track
// is stopped once even when it appears in several streams.
func Teardown(ctx context.Context, res Resources) error {
	var errs []error

	if res.Encoder != nil && res.Encoder.Active() {
		if err := res.Encoder.Stop(ctx); err != nil {
			errs = append(errs, &TeardownError{Step: StepEncoder, Err: err})
		}
	}

	seen := make(map[string]bool)
	stop := func(s *media.Stream) {
		if s == nil {
			return
		}
		for _, t := range s.Tracks() {
			if seen[t.ID()] {
				continue
			}
			seen[t.ID()] = true
			if err := t.Stop(); err != nil {
				errs = append(errs, &TeardownError{Step: StepTracks, Target: t.ID(), Err: err})
			}
		}
	}
	for _, s := range res.Sources {
		stop(s)
	}
	// Tracks synthesized for the combined stream, e.g. the mixer output.
	stop(res.Combined)

	if res.Graph != nil {
		if err := res.Graph.Close(); err != nil {
			errs = append(errs, &TeardownError{Step: StepGraph, Err: err})
		}
	}

	if res.Revoker != nil {
		for _, ref := range res.Revoke {
			if ref == "" {
				continue
			}
			res.Revoker.Revoke(ref)
		}
	}

	return errors.Join(errs...)
}

// Log reports a teardown result. A nil err logs nothing.
func Log(log *slog.Logger, reason string, err error) {
	if err == nil {
		return
	}
	var te *TeardownError
	steps := 0
	for _, e := range flatten(err) {
		if errors.As(e, &te) {
			steps++
		}
	}
	log.Warn("teardown incomplete",
		"reason", reason,
		"failedSteps", steps,
		logging.KeyError, err.Error())
}

func flatten(err error) []error {
	if j, ok := err.(interface{ Unwrap() []error }); ok {
		return j.Unwrap()
	}
	return []error{err}
}
