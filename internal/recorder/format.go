package recorder

import (
	"fmt"
	"strings"

	"github.com/pion/webrtc/v4"
)

// Format is the container and codec pairing a recorder writes. The media
// type of the finished artifact is always MimeType.
type Format struct {
	MimeType   string
	VideoCodec string
	AudioCodec string
}

// DefaultFormat is VP9 video and Opus audio in WebM.
var DefaultFormat = Format{
	MimeType:   "video/webm;codecs=vp9,opus",
	VideoCodec: webrtc.MimeTypeVP9,
	AudioCodec: webrtc.MimeTypeOpus,
}

// ParseFormat accepts a WebM media type with optional codecs parameter.
// A bare "video/webm" means VP9 and Opus.
func ParseFormat(mimeType string) (Format, error) {
	norm := strings.ToLower(strings.ReplaceAll(mimeType, " ", ""))
	base, params, _ := strings.Cut(norm, ";")
	if base != "video/webm" {
		return Format{}, fmt.Errorf("%w: container %q", ErrUnsupportedFormat, base)
	}
	if params == "" {
		return DefaultFormat, nil
	}

	codecs, ok := strings.CutPrefix(params, "codecs=")
	if !ok {
		return Format{}, fmt.Errorf("%w: parameters %q", ErrUnsupportedFormat, params)
	}
	codecs = strings.Trim(codecs, `"`)

	f := Format{}
	for _, c := range strings.Split(codecs, ",") {
		switch c {
		case "vp9", "vp09":
			f.VideoCodec = webrtc.MimeTypeVP9
		case "vp8":
			f.VideoCodec = webrtc.MimeTypeVP8
		case "opus":
			f.AudioCodec = webrtc.MimeTypeOpus
		default:
			return Format{}, fmt.Errorf("%w: codec %q", ErrUnsupportedFormat, c)
		}
	}
	if f.VideoCodec == "" {
		return Format{}, fmt.Errorf("%w: no video codec in %q", ErrUnsupportedFormat, mimeType)
	}
	if f.AudioCodec == "" {
		f.AudioCodec = webrtc.MimeTypeOpus
	}
	f.MimeType = "video/webm;codecs=" + codecName(f.VideoCodec) + ",opus"
	return f, nil
}

// Container returns the media type without codec parameters.
func (f Format) Container() string {
	base, _, _ := strings.Cut(f.MimeType, ";")
	return base
}

func codecName(mime string) string {
	_, name, _ := strings.Cut(strings.ToLower(mime), "/")
	return name
}

// matroskaCodecID maps a codec mime type to its Matroska CodecID.
func matroskaCodecID(mime string) (string, error) {
	switch {
	case strings.EqualFold(mime, webrtc.MimeTypeVP9):
		return "V_VP9", nil
	case strings.EqualFold(mime, webrtc.MimeTypeVP8):
		return "V_VP8", nil
	case strings.EqualFold(mime, webrtc.MimeTypeOpus):
		return "A_OPUS", nil
	}
	return "", fmt.Errorf("%w: codec %q", ErrUnsupportedFormat, mime)
}
