package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/spf13/cobra"

	"github.com/Kaplaugher/vizume/internal/acquire"
	"github.com/Kaplaugher/vizume/internal/config"
	"github.com/Kaplaugher/vizume/internal/handoff"
	"github.com/Kaplaugher/vizume/internal/logging"
	"github.com/Kaplaugher/vizume/internal/media"
	"github.com/Kaplaugher/vizume/internal/mixer"
	"github.com/Kaplaugher/vizume/internal/platform/mediadev"
	"github.com/Kaplaugher/vizume/internal/platform/opusenc"
	"github.com/Kaplaugher/vizume/internal/preflight"
	"github.com/Kaplaugher/vizume/internal/recorder"
	"github.com/Kaplaugher/vizume/internal/session"
)

const stopTimeout = 15 * time.Second

var (
	recordMode     string
	recordMic      bool
	recordDuration time.Duration
)

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Record the screen or a camera and hand the result off for upload",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		if cmd.Flags().Changed("mode") {
			cfg.Mode = recordMode
		}
		if cmd.Flags().Changed("mic") {
			cfg.Microphone = recordMic
		}
		return runRecord(cmd, cfg)
	},
}

func init() {
	recordCmd.Flags().StringVar(&recordMode, "mode", "screen", "capture mode: screen or camera")
	recordCmd.Flags().BoolVar(&recordMic, "mic", false, "mix in the microphone")
	recordCmd.Flags().DurationVar(&recordDuration, "duration", 0, "stop after this long (default: until interrupted)")
}

func runRecord(cmd *cobra.Command, cfg *config.Config) error {
	log := logging.L("record")
	out := cmd.OutOrStdout()

	mode, err := media.ParseMode(cfg.Mode)
	if err != nil {
		return err
	}
	format, err := recorder.ParseFormat(cfg.MimeType)
	if err != nil {
		return err
	}
	selector, err := codecSelector(format, cfg.VideoBitsPerSecond)
	if err != nil {
		return err
	}

	camera := media.CameraConstraints()
	camera.Width, camera.Height, camera.FrameRate = cfg.IdealWidth, cfg.IdealHeight, cfg.IdealFrameRate
	acq := acquire.New(mediadev.New(selector, format.VideoCodec), acquire.WithCameraConstraints(camera))

	mixCfg := mixer.Config{
		SampleRate:    cfg.MixSampleRate,
		Channels:      cfg.MixChannels,
		FrameDuration: time.Duration(cfg.MixFrameMs) * time.Millisecond,
	}
	recOpts := recorder.Options{
		Format:             format,
		VideoBitsPerSecond: cfg.VideoBitsPerSecond,
		AudioBitsPerSecond: cfg.AudioBitsPerSecond,
		AudioSampleRate:    mixCfg.SampleRate,
		AudioChannels:      mixCfg.Channels,
		AudioFrameDuration: mixCfg.FrameDuration,
		NewAudioEncoder:    opusenc.Factory,
	}

	s := session.New(session.Config{
		Mode:           mode,
		WithMicrophone: cfg.Microphone,
		Timeslice:      time.Duration(cfg.TimesliceMs) * time.Millisecond,
		MaxBufferBytes: bufferLimit(cfg.MaxBufferBytes),
		Mixer:          mixCfg,
	}, acq, session.RecorderFactory(recOpts))
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
		defer cancel()
		if err := s.Close(ctx); err != nil {
			log.Warn("session close timed out", logging.KeyError, err.Error())
		}
	}()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := s.Start(ctx); err != nil {
		var dae *media.DeviceAccessError
		if errors.As(err, &dae) && media.IsPermissionDenied(err) {
			return fmt.Errorf("%s capture was denied; grant access and try again: %w", mode, err)
		}
		return err
	}

	if recordDuration > 0 {
		fmt.Fprintf(out, "Recording %s for %s (Ctrl+C stops early)\n", mode, recordDuration)
	} else {
		fmt.Fprintf(out, "Recording %s, press Ctrl+C to stop\n", mode)
	}
	waitForEnd(ctx, s, recordDuration)

	stopCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()
	if err := s.Stop(stopCtx); err != nil {
		if errors.Is(err, session.ErrEmptyRecording) {
			fmt.Fprintln(out, "Nothing was recorded.")
			return nil
		}
		return err
	}

	a, ok := s.Artifact()
	if !ok {
		fmt.Fprintln(out, "Recording ended without a usable artifact.")
		return nil
	}

	store := handoff.NewFile(cfg.HandoffPath)
	entry, err := s.Handoff(store, func(a *session.Artifact) (string, error) {
		return handoff.Spool(cfg.SpoolDir, handoff.DefaultName, a.Blob.Reader())
	})
	if err != nil {
		return fmt.Errorf("hand off recording: %w", err)
	}

	fmt.Fprintf(out, "Recorded %s of %s (%s)\n",
		a.Duration.Round(100*time.Millisecond), format.Container(), humanize.Bytes(uint64(a.Size)))
	fmt.Fprintf(out, "Ready for upload: %s\n", entry.URL)
	return nil
}

// waitForEnd blocks until ctx is done, d elapses (when positive) or the
// session stops on its own because its tracks ended or it faulted.
func waitForEnd(ctx context.Context, s *session.Session, d time.Duration) {
	var deadline <-chan time.Time
	if d > 0 {
		t := time.NewTimer(d)
		defer t.Stop()
		deadline = t.C
	}
	poll := time.NewTicker(250 * time.Millisecond)
	defer poll.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-deadline:
			return
		case <-poll.C:
			if !s.IsRecording() {
				return
			}
		}
	}
}

// bufferLimit returns the configured cap, or one derived from available
// memory when unset.
func bufferLimit(configured int64) int64 {
	if configured > 0 {
		return configured
	}
	vm, err := mem.VirtualMemory()
	if err != nil {
		logging.L("record").Warn("cannot read memory stats, buffer is unbounded", logging.KeyError, err.Error())
		return 0
	}
	return preflight.RecommendedBufferLimit(vm.Available)
}
