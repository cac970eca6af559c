package main

import (
	"fmt"
	"strings"

	"github.com/pion/mediadevices"
	"github.com/pion/mediadevices/pkg/codec/vpx"
	"github.com/pion/webrtc/v4"

	// Capture drivers register themselves with the driver manager.
	_ "github.com/pion/mediadevices/pkg/driver/camera"
	_ "github.com/pion/mediadevices/pkg/driver/microphone"
	_ "github.com/pion/mediadevices/pkg/driver/screen"

	"github.com/Kaplaugher/vizume/internal/recorder"
)

// codecSelector returns the video encoder set for format at bitsPerSecond.
func codecSelector(format recorder.Format, bitsPerSecond int) (*mediadevices.CodecSelector, error) {
	switch {
	case strings.EqualFold(format.VideoCodec, webrtc.MimeTypeVP8):
		params, err := vpx.NewVP8Params()
		if err != nil {
			return nil, fmt.Errorf("vp8 params: %w", err)
		}
		params.BitRate = bitsPerSecond
		return mediadevices.NewCodecSelector(mediadevices.WithVideoEncoders(&params)), nil
	case strings.EqualFold(format.VideoCodec, webrtc.MimeTypeVP9):
		params, err := vpx.NewVP9Params()
		if err != nil {
			return nil, fmt.Errorf("vp9 params: %w", err)
		}
		params.BitRate = bitsPerSecond
		return mediadevices.NewCodecSelector(mediadevices.WithVideoEncoders(&params)), nil
	default:
		return nil, fmt.Errorf("no encoder for %s", format.VideoCodec)
	}
}
