package config

import (
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	if cfg.ServerPort != "8080" {
		t.Errorf("ServerPort = %q, want 8080", cfg.ServerPort)
	}
	if cfg.SampleRate != 44100 {
		t.Errorf("SampleRate = %d, want 44100", cfg.SampleRate)
	}
	if cfg.MixRenderer != "graph" {
		t.Errorf("MixRenderer = %q, want graph", cfg.MixRenderer)
	}
	if cfg.DefaultLoopCount != 1 {
		t.Errorf("DefaultLoopCount = %d, want 1", cfg.DefaultLoopCount)
	}
	if !cfg.LoopModeEnabled {
		t.Error("LoopModeEnabled should default to true")
	}
	if cfg.ArtifactSink != "minio" {
		t.Errorf("ArtifactSink = %q, want minio", cfg.ArtifactSink)
	}
	if cfg.ImportDir != "" {
		t.Errorf("ImportDir = %q, want empty (watcher disabled)", cfg.ImportDir)
	}
	if cfg.AudioUploadDir != "uploads/audio" {
		t.Errorf("AudioUploadDir = %q, want uploads/audio", cfg.AudioUploadDir)
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("MIX_RENDERER", "pipeline")
	t.Setenv("SAMPLE_RATE", "48000")
	t.Setenv("DEFAULT_LOOP_COUNT", "4")
	t.Setenv("DEFAULT_FADEOUT_MS", "2000")
	t.Setenv("LOOP_MODE_ENABLED", "false")
	t.Setenv("IMPORT_USER_ID", "42")
	t.Setenv("MINIO_USE_SSL", "true")

	cfg := Load()

	if cfg.ServerPort != "9090" {
		t.Errorf("ServerPort = %q, want 9090", cfg.ServerPort)
	}
	if cfg.MixRenderer != "pipeline" {
		t.Errorf("MixRenderer = %q, want pipeline", cfg.MixRenderer)
	}
	if cfg.SampleRate != 48000 {
		t.Errorf("SampleRate = %d, want 48000", cfg.SampleRate)
	}
	if cfg.DefaultLoopCount != 4 {
		t.Errorf("DefaultLoopCount = %d, want 4", cfg.DefaultLoopCount)
	}
	if cfg.DefaultFadeoutMs != 2000 {
		t.Errorf("DefaultFadeoutMs = %d, want 2000", cfg.DefaultFadeoutMs)
	}
	if cfg.LoopModeEnabled {
		t.Error("LoopModeEnabled should be false")
	}
	if cfg.ImportUserID != 42 {
		t.Errorf("ImportUserID = %d, want 42", cfg.ImportUserID)
	}
	if !cfg.MinioUseSSL {
		t.Error("MinioUseSSL should be true")
	}
}

func TestLoadIgnoresMalformedValues(t *testing.T) {
	t.Setenv("SAMPLE_RATE", "not-a-number")
	t.Setenv("LOOP_MODE_ENABLED", "maybe")

	cfg := Load()

	if cfg.SampleRate != 44100 {
		t.Errorf("malformed SAMPLE_RATE should fall back to 44100, got %d", cfg.SampleRate)
	}
	if !cfg.LoopModeEnabled {
		t.Error("malformed LOOP_MODE_ENABLED should fall back to true")
	}
}
