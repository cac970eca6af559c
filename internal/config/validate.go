package config

import (
	"fmt"
	"strings"
)

var supportedMimeTypes = map[string]bool{
	"video/webm;codecs=vp9,opus": true,
	"video/webm;codecs=vp8,opus": true,
	"video/webm":                 true,
}

var validLogLevels = map[string]bool{
	"debug":   true,
	"info":    true,
	"warn":    true,
	"warning": true,
	"error":   true,
}

// Opus only accepts these rates and frame sizes.
var (
	validMixRates   = map[int]bool{8000: true, 12000: true, 16000: true, 24000: true, 48000: true}
	validMixFrameMs = map[int]bool{10: true, 20: true, 40: true, 60: true}
)

// Validate checks the config for invalid values and returns all errors found.
// Out-of-range values are clamped or reset to their defaults so the returned
// errors are warnings for the caller to log: the config is always usable
// afterwards.
func (c *Config) Validate() []error {
	var errs []error
	def := Default()

	switch strings.ToLower(strings.TrimSpace(c.Mode)) {
	case "screen", "camera":
		c.Mode = strings.ToLower(strings.TrimSpace(c.Mode))
	default:
		errs = append(errs, fmt.Errorf("mode %q is not one of screen, camera; using %q", c.Mode, def.Mode))
		c.Mode = def.Mode
	}

	if !supportedMimeTypes[strings.ReplaceAll(strings.ToLower(c.MimeType), " ", "")] {
		errs = append(errs, fmt.Errorf("mime_type %q is not supported; using %q", c.MimeType, def.MimeType))
		c.MimeType = def.MimeType
	}

	c.VideoBitsPerSecond = clampInt(&errs, "video_bits_per_second", c.VideoBitsPerSecond, 100_000, 20_000_000)
	c.AudioBitsPerSecond = clampInt(&errs, "audio_bits_per_second", c.AudioBitsPerSecond, 6_000, 510_000)
	c.TimesliceMs = clampInt(&errs, "timeslice_ms", c.TimesliceMs, 100, 10_000)
	c.IdealWidth = clampInt(&errs, "ideal_width", c.IdealWidth, 160, 7680)
	c.IdealHeight = clampInt(&errs, "ideal_height", c.IdealHeight, 120, 4320)

	if c.IdealFrameRate < 1 {
		errs = append(errs, fmt.Errorf("ideal_frame_rate %.2f is below minimum 1, clamped", c.IdealFrameRate))
		c.IdealFrameRate = 1
	} else if c.IdealFrameRate > 120 {
		errs = append(errs, fmt.Errorf("ideal_frame_rate %.2f exceeds maximum 120, clamped", c.IdealFrameRate))
		c.IdealFrameRate = 120
	}

	if !validMixRates[c.MixSampleRate] {
		errs = append(errs, fmt.Errorf("mix_sample_rate %d is not an opus rate; using %d", c.MixSampleRate, def.MixSampleRate))
		c.MixSampleRate = def.MixSampleRate
	}
	if c.MixChannels != 1 && c.MixChannels != 2 {
		errs = append(errs, fmt.Errorf("mix_channels %d must be 1 or 2; using %d", c.MixChannels, def.MixChannels))
		c.MixChannels = def.MixChannels
	}
	if !validMixFrameMs[c.MixFrameMs] {
		errs = append(errs, fmt.Errorf("mix_frame_ms %d is not an opus frame size; using %d", c.MixFrameMs, def.MixFrameMs))
		c.MixFrameMs = def.MixFrameMs
	}

	if c.MaxBufferBytes < 0 {
		errs = append(errs, fmt.Errorf("max_buffer_bytes %d is negative, treating as unset", c.MaxBufferBytes))
		c.MaxBufferBytes = 0
	}

	if strings.TrimSpace(c.HandoffPath) == "" {
		errs = append(errs, fmt.Errorf("handoff_path is empty; using %q", def.HandoffPath))
		c.HandoffPath = def.HandoffPath
	}
	if strings.TrimSpace(c.SpoolDir) == "" {
		errs = append(errs, fmt.Errorf("spool_dir is empty; using %q", def.SpoolDir))
		c.SpoolDir = def.SpoolDir
	}

	if c.LogLevel != "" && !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Errorf("log_level %q is not valid (debug, info, warn, error)", c.LogLevel))
		c.LogLevel = def.LogLevel
	}
	if c.LogFormat != "" && c.LogFormat != "text" && c.LogFormat != "json" {
		errs = append(errs, fmt.Errorf("log_format %q is not valid (text, json)", c.LogFormat))
		c.LogFormat = def.LogFormat
	}

	return errs
}

func clampInt(errs *[]error, name string, v, lo, hi int) int {
	if v < lo {
		*errs = append(*errs, fmt.Errorf("%s %d is below minimum %d, clamped", name, v, lo))
		return lo
	}
	if v > hi {
		*errs = append(*errs, fmt.Errorf("%s %d exceeds maximum %d, clamped", name, v, hi))
		return hi
	}
	return v
}
