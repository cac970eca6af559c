package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "recorder.yaml")
	body := "mode: camera\nmicrophone: true\ntimeslice_ms: 500\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Mode != "camera" || !cfg.Microphone || cfg.TimesliceMs != 500 {
		t.Fatalf("file values not applied: %+v", cfg)
	}
	if cfg.MimeType != DefaultMimeType {
		t.Fatalf("MimeType = %q, want default", cfg.MimeType)
	}
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "recorder.yaml")
	if err := os.WriteFile(path, []byte("mode: camera\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("VIZUME_MODE", "screen")
	t.Setenv("VIZUME_VIDEO_BITS_PER_SECOND", "1000000")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Mode != "screen" {
		t.Fatalf("Mode = %q, want env override", cfg.Mode)
	}
	if cfg.VideoBitsPerSecond != 1_000_000 {
		t.Fatalf("VideoBitsPerSecond = %d, want 1000000", cfg.VideoBitsPerSecond)
	}
}

func TestLoadMissingExplicitFileFails(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing explicit config file")
	}
}

func TestSaveToRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "recorder.yaml")
	cfg := Default()
	cfg.Mode = "camera"
	cfg.MixChannels = 1

	if err := SaveTo(cfg, path); err != nil {
		t.Fatalf("SaveTo: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Mode != "camera" || loaded.MixChannels != 1 {
		t.Fatalf("round trip lost values: %+v", loaded)
	}
}
