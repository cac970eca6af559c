package config

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds the recorder settings. Zero values are replaced by Default()
// before a file or the environment is applied.
type Config struct {
	Mode       string `mapstructure:"mode" yaml:"mode"`
	Microphone bool   `mapstructure:"microphone" yaml:"microphone"`

	MimeType           string `mapstructure:"mime_type" yaml:"mime_type"`
	VideoBitsPerSecond int    `mapstructure:"video_bits_per_second" yaml:"video_bits_per_second"`
	AudioBitsPerSecond int    `mapstructure:"audio_bits_per_second" yaml:"audio_bits_per_second"`
	TimesliceMs        int    `mapstructure:"timeslice_ms" yaml:"timeslice_ms"`

	IdealWidth     int     `mapstructure:"ideal_width" yaml:"ideal_width"`
	IdealHeight    int     `mapstructure:"ideal_height" yaml:"ideal_height"`
	IdealFrameRate float64 `mapstructure:"ideal_frame_rate" yaml:"ideal_frame_rate"`

	MixSampleRate int `mapstructure:"mix_sample_rate" yaml:"mix_sample_rate"`
	MixChannels   int `mapstructure:"mix_channels" yaml:"mix_channels"`
	MixFrameMs    int `mapstructure:"mix_frame_ms" yaml:"mix_frame_ms"`

	// MaxBufferBytes caps the in-memory chunk buffer. 0 derives a cap from
	// available host memory at startup.
	MaxBufferBytes int64 `mapstructure:"max_buffer_bytes" yaml:"max_buffer_bytes"`

	HandoffPath string `mapstructure:"handoff_path" yaml:"handoff_path"`
	SpoolDir    string `mapstructure:"spool_dir" yaml:"spool_dir"`

	LogLevel  string `mapstructure:"log_level" yaml:"log_level"`
	LogFormat string `mapstructure:"log_format" yaml:"log_format"`
}

const (
	DefaultMimeType           = "video/webm;codecs=vp9,opus"
	DefaultVideoBitsPerSecond = 2_500_000
	DefaultAudioBitsPerSecond = 128_000
)

func Default() *Config {
	dir := dataDir()
	return &Config{
		Mode:               "screen",
		MimeType:           DefaultMimeType,
		VideoBitsPerSecond: DefaultVideoBitsPerSecond,
		AudioBitsPerSecond: DefaultAudioBitsPerSecond,
		TimesliceMs:        1000,
		IdealWidth:         1920,
		IdealHeight:        1080,
		IdealFrameRate:     30,
		MixSampleRate:      48000,
		MixChannels:        2,
		MixFrameMs:         20,
		HandoffPath:        filepath.Join(dir, "handoff.yaml"),
		SpoolDir:           filepath.Join(dir, "spool"),
		LogLevel:           "info",
		LogFormat:          "text",
	}
}

// Load reads cfgFile (or recorder.yaml from the default search path), then
// applies a .env file in the working directory and VIZUME_* environment
// variables on top.
func Load(cfgFile string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	v := viper.New()
	cfg := Default()
	setDefaults(v, cfg)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("recorder")
		v.SetConfigType("yaml")
		v.AddConfigPath(configDir())
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("VIZUME")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// DefaultPath is where Load looks for recorder.yaml first.
func DefaultPath() string {
	return filepath.Join(configDir(), "recorder.yaml")
}

// SaveTo writes cfg as YAML to cfgFile (DefaultPath when empty), creating
// the parent directory.
func SaveTo(cfg *Config, cfgFile string) error {
	if cfgFile == "" {
		cfgFile = DefaultPath()
	}
	if dir := filepath.Dir(cfgFile); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return err
		}
	}

	v := viper.New()
	setDefaults(v, cfg)
	return v.WriteConfigAs(cfgFile)
}

func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("mode", cfg.Mode)
	v.SetDefault("microphone", cfg.Microphone)
	v.SetDefault("mime_type", cfg.MimeType)
	v.SetDefault("video_bits_per_second", cfg.VideoBitsPerSecond)
	v.SetDefault("audio_bits_per_second", cfg.AudioBitsPerSecond)
	v.SetDefault("timeslice_ms", cfg.TimesliceMs)
	v.SetDefault("ideal_width", cfg.IdealWidth)
	v.SetDefault("ideal_height", cfg.IdealHeight)
	v.SetDefault("ideal_frame_rate", cfg.IdealFrameRate)
	v.SetDefault("mix_sample_rate", cfg.MixSampleRate)
	v.SetDefault("mix_channels", cfg.MixChannels)
	v.SetDefault("mix_frame_ms", cfg.MixFrameMs)
	v.SetDefault("max_buffer_bytes", cfg.MaxBufferBytes)
	v.SetDefault("handoff_path", cfg.HandoffPath)
	v.SetDefault("spool_dir", cfg.SpoolDir)
	v.SetDefault("log_level", cfg.LogLevel)
	v.SetDefault("log_format", cfg.LogFormat)
}

func configDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "vizume")
	}
	return "."
}

func dataDir() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "vizume")
	}
	return filepath.Join(os.TempDir(), "vizume")
}
