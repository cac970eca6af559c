package acquire

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Kaplaugher/vizume/internal/logging"
	"github.com/Kaplaugher/vizume/internal/media"
	"github.com/Kaplaugher/vizume/internal/media/mediatest"
)

type fakeDevices struct {
	camera     *media.Stream
	cameraErr  error
	display    *media.Stream
	displayErr error
	mic        *media.Stream
	micErr     error

	userCalls    []media.Constraints
	displayCalls int
	onUserMedia  func()
}

func (f *fakeDevices) UserMedia(_ context.Context, c media.Constraints) (*media.Stream, error) {
	f.userCalls = append(f.userCalls, c)
	if f.onUserMedia != nil {
		f.onUserMedia()
	}
	if c.Video {
		return f.camera, f.cameraErr
	}
	return f.mic, f.micErr
}

func (f *fakeDevices) DisplayMedia(_ context.Context, _ media.Constraints) (*media.Stream, error) {
	f.displayCalls++
	return f.display, f.displayErr
}

func newAcquirer(d Devices) *Acquirer {
	return New(d, WithLogger(logging.Discard()))
}

func TestCameraWithNativeAudioSkipsMicrophone(t *testing.T) {
	cam := media.NewStream(mediatest.NewVideo("cam"), mediatest.NewAudio("cam-audio"))
	d := &fakeDevices{camera: cam}

	res, err := newAcquirer(d).Acquire(context.Background(), media.ModeCamera, true)
	require.NoError(t, err)

	assert.True(t, res.HasNativeAudio())
	assert.Nil(t, res.Microphone)
	require.Len(t, d.userCalls, 1)
	assert.Equal(t, media.CameraConstraints(), d.userCalls[0])
	assert.Equal(t, []*media.Stream{cam}, res.Streams())
}

func TestCameraWithoutNativeAudioAddsMicrophone(t *testing.T) {
	cam := media.NewStream(mediatest.NewVideo("cam"))
	mic := media.NewStream(mediatest.NewAudio("mic"))
	d := &fakeDevices{camera: cam, mic: mic}

	res, err := newAcquirer(d).Acquire(context.Background(), media.ModeCamera, true)
	require.NoError(t, err)

	assert.False(t, res.HasNativeAudio())
	assert.Same(t, mic, res.Microphone)
	require.Len(t, d.userCalls, 2)
	assert.Equal(t, media.MicrophoneConstraints(), d.userCalls[1])
	assert.Equal(t, []*media.Stream{cam, mic}, res.Streams())
}

func TestMicrophoneNotRequested(t *testing.T) {
	d := &fakeDevices{camera: media.NewStream(mediatest.NewVideo("cam"))}

	res, err := newAcquirer(d).Acquire(context.Background(), media.ModeCamera, false)
	require.NoError(t, err)
	assert.Nil(t, res.Microphone)
	assert.Len(t, d.userCalls, 1)
}

func TestMicrophoneDeniedIsNotFatal(t *testing.T) {
	cam := media.NewStream(mediatest.NewVideo("cam"))
	d := &fakeDevices{camera: cam, micErr: media.ErrPermissionDenied}

	res, err := newAcquirer(d).Acquire(context.Background(), media.ModeCamera, true)
	require.NoError(t, err)
	assert.Nil(t, res.Microphone)
	assert.Same(t, cam, res.Source.Stream)
}

func TestMicrophoneWithoutAudioTrackIsReleased(t *testing.T) {
	stray := mediatest.NewVideo("not-a-mic")
	d := &fakeDevices{
		camera: media.NewStream(mediatest.NewVideo("cam")),
		mic:    media.NewStream(stray),
	}

	res, err := newAcquirer(d).Acquire(context.Background(), media.ModeCamera, true)
	require.NoError(t, err)
	assert.Nil(t, res.Microphone)
	assert.False(t, stray.Live())
}

func TestScreenAddsMicrophoneEvenWithSystemAudio(t *testing.T) {
	display := media.NewStream(mediatest.NewVideo("display"), mediatest.NewAudio("system"))
	mic := media.NewStream(mediatest.NewAudio("mic"))
	d := &fakeDevices{display: display, mic: mic}

	res, err := newAcquirer(d).Acquire(context.Background(), media.ModeScreen, true)
	require.NoError(t, err)
	assert.Equal(t, 1, d.displayCalls)
	assert.True(t, res.HasNativeAudio())
	assert.Same(t, mic, res.Microphone)
}

func TestPrimaryFailureIsDeviceAccessError(t *testing.T) {
	tests := []struct {
		name string
		mode media.Mode
		d    *fakeDevices
		want error
	}{
		{"camera denied", media.ModeCamera, &fakeDevices{cameraErr: media.ErrPermissionDenied}, media.ErrPermissionDenied},
		{"display denied", media.ModeScreen, &fakeDevices{displayErr: media.ErrPermissionDenied}, media.ErrPermissionDenied},
		{"no camera", media.ModeCamera, &fakeDevices{cameraErr: media.ErrNoDevice}, media.ErrNoDevice},
		{"camera without video", media.ModeCamera, &fakeDevices{camera: media.NewStream(mediatest.NewAudio("a"))}, media.ErrNoVideoTrack},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := newAcquirer(tt.d).Acquire(context.Background(), tt.mode, true)
			assert.Nil(t, res)

			var dae *media.DeviceAccessError
			require.True(t, errors.As(err, &dae), "got %v", err)
			assert.Equal(t, tt.mode, dae.Mode)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestPrimaryWithoutVideoIsReleased(t *testing.T) {
	a := mediatest.NewAudio("a")
	d := &fakeDevices{camera: media.NewStream(a)}

	_, err := newAcquirer(d).Acquire(context.Background(), media.ModeCamera, false)
	require.Error(t, err)
	assert.False(t, a.Live())
}

func TestCancelledDuringMicrophoneReleasesEverything(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	video := mediatest.NewVideo("cam")
	micTrack := mediatest.NewAudio("mic")
	d := &fakeDevices{
		camera: media.NewStream(video),
		mic:    media.NewStream(micTrack),
	}
	d.onUserMedia = func() {
		if len(d.userCalls) == 2 {
			cancel()
		}
	}

	res, err := newAcquirer(d).Acquire(ctx, media.ModeCamera, true)
	assert.Nil(t, res)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, video.Live())
	assert.False(t, micTrack.Live())
}

func TestCameraConstraintsOverride(t *testing.T) {
	d := &fakeDevices{camera: media.NewStream(mediatest.NewVideo("cam"))}
	a := New(d, WithLogger(logging.Discard()), WithCameraConstraints(media.Constraints{Width: 1280, Height: 720, FrameRate: 24}))

	res, err := a.Acquire(context.Background(), media.ModeCamera, false)
	require.NoError(t, err)
	want := media.Constraints{Video: true, Audio: true, Width: 1280, Height: 720, FrameRate: 24}
	assert.Equal(t, want, d.userCalls[0])
	assert.Equal(t, want, res.Source.Constraints)
}
