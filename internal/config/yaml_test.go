// SPDX-License-Identifier: MIT
package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	tmp := t.TempDir()
	path := filepath.Join(tmp, "hvstream.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}
	return path
}

// noDotEnv points DotEnvFile at a file that does not exist.
func noDotEnv(t *testing.T) {
	t.Helper()
	orig := DotEnvFile
	DotEnvFile = filepath.Join(t.TempDir(), "missing.env")
	t.Cleanup(func() { DotEnvFile = orig })
}

func TestLoadConfig_EmptyPath(t *testing.T) {
	noDotEnv(t)
	t.Chdir(t.TempDir())

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if cfg.Audio.SampleRate != DefaultSampleRate || cfg.Audio.FramesPerBuffer != DefaultFramesPerBuffer {
		t.Errorf("unexpected defaults: %+v", cfg.Audio)
	}
	if cfg.Budget() != DefaultBudgetFrames {
		t.Errorf("Budget() = %d, want %d", cfg.Budget(), DefaultBudgetFrames)
	}
	if cfg.ConfigFile != "" {
		t.Errorf("ConfigFile = %q, want empty", cfg.ConfigFile)
	}
}

func TestLoadConfig_SearchesDefaultFile(t *testing.T) {
	noDotEnv(t)
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, DefaultConfigFile), []byte("audio:\n  sample_rate: 48000\n"), 0644); err != nil {
		t.Fatal(err)
	}
	t.Chdir(dir)

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}
	if cfg.Audio.SampleRate != 48000 || cfg.ConfigFile != DefaultConfigFile {
		t.Errorf("default file not loaded: rate=%.0f file=%q", cfg.Audio.SampleRate, cfg.ConfigFile)
	}
}

func TestLoadConfig_FileNotFound(t *testing.T) {
	noDotEnv(t)
	cfg, err := LoadConfig("nonexistent.yaml")
	if err == nil {
		t.Errorf("expected error for missing file, got nil")
	}
	if cfg != nil {
		t.Errorf("expected nil config on error, got %+v", cfg)
	}
}

func TestLoadConfig_UnmarshalError(t *testing.T) {
	noDotEnv(t)
	path := writeTempConfig(t, ":\n:bad")
	_, err := LoadConfig(path)
	if err == nil || !strings.Contains(err.Error(), "failed to parse config file") {
		t.Errorf("expected unmarshal error, got %v", err)
	}
}

func TestLoadConfig_Full(t *testing.T) {
	noDotEnv(t)
	path := writeTempConfig(t, `
log_level: debug
audio:
  backend: offline
  output_device: 2
  sample_rate: 48000
  frames_per_buffer: 128
  output_channels: 2
  low_latency: true
session:
  duration: 1.5s
  exhaustion: pad
engine:
  patch: saw
  block_size: 32
  data_frames: 1000
monitor:
  enabled: true
  transport: udp
  address: 127.0.0.1:9090
  interval: 50ms
render:
  output: out.wav
  bit_depth: 24
  window: hamming
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}

	if cfg.LogLevel != "debug" || cfg.Audio.Backend != "offline" || cfg.Audio.OutputDevice != 2 {
		t.Errorf("unexpected top-level values: %+v", cfg)
	}
	if cfg.Audio.FramesPerBuffer != 128 || cfg.Audio.OutputChannels != 2 || !cfg.Audio.LowLatency {
		t.Errorf("unexpected audio config: %+v", cfg.Audio)
	}
	if cfg.Session.Duration != 1500*time.Millisecond || cfg.Budget() != 72000 {
		t.Errorf("duration = %v, budget = %d; want 1.5s, 72000", cfg.Session.Duration, cfg.Budget())
	}
	if cfg.Session.Exhaustion != "pad" {
		t.Errorf("exhaustion = %q", cfg.Session.Exhaustion)
	}
	if cfg.Engine.Patch != "saw" || cfg.Engine.BlockSize != 32 || cfg.Engine.DataFrames != 1000 {
		t.Errorf("unexpected engine config: %+v", cfg.Engine)
	}
	if !cfg.Monitor.Enabled || cfg.Monitor.Transport != "udp" || cfg.Monitor.Interval != 50*time.Millisecond {
		t.Errorf("unexpected monitor config: %+v", cfg.Monitor)
	}
	if cfg.Render.BitDepth != 24 || cfg.Render.Window != "hamming" {
		t.Errorf("unexpected render config: %+v", cfg.Render)
	}
}

func TestBudgetPrecedence(t *testing.T) {
	cfg := NewConfig()
	cfg.Session.Duration = time.Second
	if got := cfg.Budget(); got != 44100 {
		t.Errorf("Budget() from duration = %d, want 44100", got)
	}
	cfg.Session.Duration = 10 * time.Microsecond
	if got := cfg.Budget(); got != 1 {
		t.Errorf("Budget() from 10µs = %d, want 1 (rounded up)", got)
	}
	cfg.Session.BudgetFrames = 1000
	if got := cfg.Budget(); got != 1000 {
		t.Errorf("Budget() = %d, want explicit 1000", got)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		substr string
	}{
		{"log level", func(c *Config) { c.LogLevel = "loud" }, "log_level"},
		{"backend", func(c *Config) { c.Audio.Backend = "jack" }, "audio.backend"},
		{"device", func(c *Config) { c.Audio.OutputDevice = -2 }, "audio.output_device"},
		{"low sample rate", func(c *Config) { c.Audio.SampleRate = 100 }, "audio.sample_rate"},
		{"high sample rate", func(c *Config) { c.Audio.SampleRate = 384000 }, "audio.sample_rate"},
		{"frames per buffer", func(c *Config) { c.Audio.FramesPerBuffer = 16384 }, "audio.frames_per_buffer"},
		{"channels", func(c *Config) { c.Audio.OutputChannels = 64 }, "audio.output_channels"},
		{"negative budget", func(c *Config) { c.Session.BudgetFrames = -1 }, "must not be negative"},
		{"exhaustion", func(c *Config) { c.Session.Exhaustion = "loop" }, "session.exhaustion"},
		{"block size", func(c *Config) { c.Engine.BlockSize = -1 }, "engine.block_size"},
		{"data frames", func(c *Config) { c.Engine.DataFrames = -5 }, "engine.data_frames"},
		{"monitor transport", func(c *Config) { c.Monitor.Enabled = true; c.Monitor.Transport = "tcp" }, "monitor.transport"},
		{"monitor address", func(c *Config) { c.Monitor.Enabled = true; c.Monitor.Address = "localhost" }, "monitor.address"},
		{"monitor interval", func(c *Config) { c.Monitor.Enabled = true; c.Monitor.Interval = 0 }, "monitor.interval"},
		{"bit depth", func(c *Config) { c.Render.BitDepth = 12 }, "render.bit_depth"},
		{"window", func(c *Config) { c.Render.Window = "triangle" }, "render.window"},
	}

	if err := NewConfig().Validate(); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.substr) {
				t.Errorf("error %q does not mention %q", err, tt.substr)
			}
		})
	}
}

func TestEnvOverrides(t *testing.T) {
	noDotEnv(t)
	t.Setenv("HVSTREAM_BACKEND", "offline")
	t.Setenv("HVSTREAM_SAMPLE_RATE", "48000")
	t.Setenv("HVSTREAM_FRAMES_PER_BUFFER", "512")
	t.Setenv("HVSTREAM_DURATION", "2s")
	t.Setenv("HVSTREAM_MONITOR_ENABLED", "true")
	t.Setenv("HVSTREAM_MONITOR_TRANSPORT", "log")

	path := writeTempConfig(t, "session:\n  budget_frames: 1000\n")
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}
	if cfg.Audio.Backend != "offline" || cfg.Audio.SampleRate != 48000 || cfg.Audio.FramesPerBuffer != 512 {
		t.Errorf("env overrides not applied: %+v", cfg.Audio)
	}
	if cfg.Budget() != 96000 {
		t.Errorf("Budget() = %d, want 96000 from HVSTREAM_DURATION", cfg.Budget())
	}
	if !cfg.Monitor.Enabled || cfg.Monitor.Transport != "log" {
		t.Errorf("monitor overrides not applied: %+v", cfg.Monitor)
	}
}

func TestEnvOverrideMalformed(t *testing.T) {
	noDotEnv(t)
	t.Setenv("HVSTREAM_SAMPLE_RATE", "fast")

	_, err := LoadConfig(writeTempConfig(t, ""))
	if err == nil || !strings.Contains(err.Error(), "HVSTREAM_SAMPLE_RATE") {
		t.Errorf("expected malformed override error, got %v", err)
	}
}

func TestDotEnv(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env")
	if err := os.WriteFile(envPath, []byte("HVSTREAM_PATCH=chord\n"), 0644); err != nil {
		t.Fatal(err)
	}
	orig := DotEnvFile
	DotEnvFile = envPath
	t.Cleanup(func() {
		DotEnvFile = orig
		os.Unsetenv("HVSTREAM_PATCH")
	})

	cfg, err := LoadConfig(writeTempConfig(t, ""))
	if err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}
	if cfg.Engine.Patch != "chord" {
		t.Errorf("patch = %q, want chord from .env", cfg.Engine.Patch)
	}
}
