package media_test

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Kaplaugher/vizume/internal/media"
	"github.com/Kaplaugher/vizume/internal/media/mediatest"
)

func TestCombineUsesLoneNativeAudio(t *testing.T) {
	video := mediatest.NewVideo("cam")
	audio := mediatest.NewAudio("cam-mic")
	camera := media.NewStream(video, audio)

	out, err := media.Combine(camera, audio, []*media.Stream{camera})
	require.NoError(t, err)

	assert.Equal(t, []media.Track{video}, out.VideoTracks())
	assert.Equal(t, []media.Track{audio}, out.AudioTracks())
	assert.Equal(t, []*media.Stream{camera}, out.Sources())
	assert.NotEqual(t, camera.ID(), out.ID())
}

func TestCombineWithoutAudio(t *testing.T) {
	screen := media.NewStream(mediatest.NewVideo("display"))

	out, err := media.Combine(screen, nil, []*media.Stream{screen, nil})
	require.NoError(t, err)

	assert.Empty(t, out.AudioTracks())
	assert.Len(t, out.Sources(), 1)
}

func TestCombineDropsSourceAudioNotChosen(t *testing.T) {
	cam := media.NewStream(mediatest.NewVideo("cam"), mediatest.NewAudio("cam-audio"))
	mixed := mediatest.NewAudio("mixed")

	out, err := media.Combine(cam, mixed, []*media.Stream{cam})
	require.NoError(t, err)
	assert.Equal(t, []media.Track{mixed}, out.AudioTracks())
}

func TestCombineNeverStopsTracks(t *testing.T) {
	video := mediatest.NewVideo("cam")
	cam := media.NewStream(video)

	_, err := media.Combine(cam, nil, []*media.Stream{cam})
	require.NoError(t, err)
	assert.True(t, video.Live())
	assert.Zero(t, video.StopCount())
}

func TestCombineRequiresVideo(t *testing.T) {
	_, err := media.Combine(media.NewStream(mediatest.NewAudio("mic")), nil, nil)
	assert.ErrorIs(t, err, media.ErrNoVideoTrack)

	_, err = media.Combine(nil, nil, nil)
	assert.ErrorIs(t, err, media.ErrNoVideoTrack)
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		in      string
		want    media.Mode
		wantErr bool
	}{
		{"screen", media.ModeScreen, false},
		{"Camera", media.ModeCamera, false},
		{" webcam ", media.ModeCamera, false},
		{"window", 0, true},
	}
	for _, tt := range tests {
		got, err := media.ParseMode(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
		assert.Equal(t, got, mustParse(t, got.String()))
	}
}

func mustParse(t *testing.T, s string) media.Mode {
	t.Helper()
	m, err := media.ParseMode(s)
	require.NoError(t, err)
	return m
}

func TestDeviceAccessErrorUnwraps(t *testing.T) {
	err := fmt.Errorf("start: %w", &media.DeviceAccessError{Mode: media.ModeCamera, Err: media.ErrPermissionDenied})

	var dae *media.DeviceAccessError
	require.True(t, errors.As(err, &dae))
	assert.Equal(t, media.ModeCamera, dae.Mode)
	assert.True(t, media.IsPermissionDenied(err))
	assert.Contains(t, err.Error(), "camera capture unavailable")
}

func TestCaptureSourceNativeAudio(t *testing.T) {
	assert.False(t, media.CaptureSource{}.HasNativeAudio())
	assert.False(t, media.CaptureSource{Stream: media.NewStream(mediatest.NewVideo("v"))}.HasNativeAudio())
	assert.True(t, media.CaptureSource{Stream: media.NewStream(mediatest.NewVideo("v"), mediatest.NewAudio("a"))}.HasNativeAudio())
}

func TestPCMFrameDuration(t *testing.T) {
	f := mediatest.Constant(1, 960, 48000, 2)
	assert.Equal(t, 960, f.Frames())
	assert.Equal(t, 20*time.Millisecond, f.Duration())
	assert.Zero(t, media.PCMFrame{}.Duration())
}

func TestStreamActive(t *testing.T) {
	v := mediatest.NewVideo("v")
	s := media.NewStream(v)
	assert.True(t, s.Active())
	require.NoError(t, v.Stop())
	require.NoError(t, v.Stop())
	assert.False(t, s.Active())
	assert.Equal(t, 2, v.StopCount())
}
