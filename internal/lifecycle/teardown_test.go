package lifecycle

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Kaplaugher/vizume/internal/blob"
	"github.com/Kaplaugher/vizume/internal/media"
	"github.com/Kaplaugher/vizume/internal/media/mediatest"
	"github.com/Kaplaugher/vizume/internal/mixer"
)

type fakeEncoder struct {
	active bool
	stops  int
	err    error
}

func (e *fakeEncoder) Active() bool { return e.active }

func (e *fakeEncoder) Stop(context.Context) error {
	e.stops++
	e.active = false
	return e.err
}

type failingCloser struct{ calls int }

func (c *failingCloser) Close() error {
	c.calls++
	return errors.New("graph busy")
}

func TestTeardownReleasesEverything(t *testing.T) {
	cam := mediatest.NewVideo("camera")
	camAudio := mediatest.NewAudio("camera-mic")
	mic := mediatest.NewAudio("mic")
	source := media.NewStream(cam, camAudio)
	micStream := media.NewStream(mic)

	graph := mixer.NewContext(mixer.DefaultConfig())
	mixed := mediatest.NewAudio("mixed")
	combined, err := media.Combine(source, mixed, []*media.Stream{source, micStream})
	require.NoError(t, err)

	reg := blob.NewRegistry()
	old := reg.CreateURL(blob.New([][]byte{[]byte("x")}, "video/webm"))
	enc := &fakeEncoder{active: true}

	err = Teardown(context.Background(), Resources{
		Encoder:  enc,
		Combined: combined,
		Sources:  []*media.Stream{source, micStream},
		Graph:    graph,
		Revoker:  reg,
		Revoke:   []string{old},
	})
	require.NoError(t, err)

	assert.Equal(t, 1, enc.stops)
	for _, tr := range []*mediatest.Track{cam, camAudio, mic, mixed} {
		assert.False(t, tr.Live(), tr.Label())
		assert.Equal(t, 1, tr.StopCount(), "%s stopped once", tr.Label())
	}
	assert.Equal(t, mixer.StateClosed, graph.State())
	assert.Equal(t, 0, reg.Len())
}

func TestTeardownSkipsInactiveEncoder(t *testing.T) {
	enc := &fakeEncoder{}
	require.NoError(t, Teardown(context.Background(), Resources{Encoder: enc}))
	assert.Equal(t, 0, enc.stops)
}

func TestTeardownIsRepeatable(t *testing.T) {
	v := mediatest.NewVideo("screen")
	s := media.NewStream(v)
	graph := mixer.NewContext(mixer.DefaultConfig())
	res := Resources{Sources: []*media.Stream{s}, Graph: graph}

	require.NoError(t, Teardown(context.Background(), res))
	require.NoError(t, Teardown(context.Background(), res))
	assert.False(t, v.Live())
	assert.Equal(t, mixer.StateClosed, graph.State())
}

func TestTeardownContinuesPastFailures(t *testing.T) {
	bad := mediatest.NewVideo("bad")
	bad.StopErr = errors.New("device gone")
	good := mediatest.NewAudio("good")
	graph := &failingCloser{}
	enc := &fakeEncoder{active: true, err: errors.New("flush failed")}

	err := Teardown(context.Background(), Resources{
		Encoder: enc,
		Sources: []*media.Stream{media.NewStream(bad, good)},
		Graph:   graph,
	})
	require.Error(t, err)

	assert.False(t, good.Live())
	assert.Equal(t, 1, graph.calls)

	var steps []Step
	for _, e := range flatten(err) {
		var te *TeardownError
		require.True(t, errors.As(e, &te))
		steps = append(steps, te.Step)
	}
	assert.Equal(t, []Step{StepEncoder, StepTracks, StepGraph}, steps)
	assert.Contains(t, err.Error(), bad.ID())
}

func TestTeardownZeroResources(t *testing.T) {
	assert.NoError(t, Teardown(context.Background(), Resources{}))
}
