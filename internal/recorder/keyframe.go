package recorder

import (
	"strings"

	"github.com/pion/webrtc/v4"
)

// isKeyframe inspects the first bytes of a VP8 or VP9 frame.
func isKeyframe(codec string, data []byte) bool {
	if len(data) == 0 {
		return false
	}
	switch {
	case strings.EqualFold(codec, webrtc.MimeTypeVP8):
		// Frame tag bit 0 is the inverse key frame flag.
		return data[0]&0x01 == 0
	case strings.EqualFold(codec, webrtc.MimeTypeVP9):
		b := data[0]
		if b>>6 != 0x2 {
			return false
		}
		profile := (b>>5)&1 | ((b>>4)&1)<<1
		bit := uint(3)
		if profile == 3 {
			bit-- // reserved zero bit
		}
		if (b>>bit)&1 == 1 {
			return false // show_existing_frame
		}
		return (b>>(bit-1))&1 == 0
	}
	return false
}

// vp8Dimensions reads the frame size from a VP8 key frame header.
func vp8Dimensions(data []byte) (width, height int, ok bool) {
	if len(data) < 10 || data[3] != 0x9d || data[4] != 0x01 || data[5] != 0x2a {
		return 0, 0, false
	}
	raw := uint(data[6]) | uint(data[7])<<8 | uint(data[8])<<16 | uint(data[9])<<24
	return int(raw & 0x3FFF), int((raw >> 16) & 0x3FFF), true
}
