// SPDX-License-Identifier: MIT
package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"hvstream/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate runs the test in an empty directory so no hvstream.yaml or .env
// is picked up.
func isolate(t *testing.T) {
	t.Helper()
	t.Chdir(t.TempDir())
}

func TestParseArgsDefaults(t *testing.T) {
	isolate(t)
	var out bytes.Buffer
	cfg, err := ParseArgs(nil, &out)
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, config.CommandPlay, cfg.Command)
	assert.Equal(t, config.DefaultBackend, cfg.Audio.Backend)
	assert.Equal(t, config.DefaultDeviceID, cfg.Audio.OutputDevice)
	assert.Equal(t, int64(config.DefaultBudgetFrames), cfg.Budget())
	assert.Equal(t, config.DefaultPatch, cfg.Engine.Patch)
}

func TestParseArgsFlags(t *testing.T) {
	isolate(t)
	cfg, err := ParseArgs([]string{
		"-d", "3", "-s", "48000", "-b", "128", "-c", "2", "-l",
		"--backend", "offline", "-t", "2s", "--exhaustion", "pad",
		"-p", "saw", "--data-frames", "1000", "-m", "--monitor-transport", "log", "-v",
	}, &bytes.Buffer{})
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.Audio.OutputDevice)
	assert.Equal(t, 48000.0, cfg.Audio.SampleRate)
	assert.Equal(t, 128, cfg.Audio.FramesPerBuffer)
	assert.Equal(t, 2, cfg.Audio.OutputChannels)
	assert.True(t, cfg.Audio.LowLatency)
	assert.Equal(t, "offline", cfg.Audio.Backend)
	assert.Equal(t, 2*time.Second, cfg.Session.Duration)
	assert.Equal(t, int64(96000), cfg.Budget())
	assert.Equal(t, "pad", cfg.Session.Exhaustion)
	assert.Equal(t, "saw", cfg.Engine.Patch)
	assert.Equal(t, int64(1000), cfg.Engine.DataFrames)
	assert.True(t, cfg.Monitor.Enabled)
	assert.Equal(t, "log", cfg.Monitor.Transport)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestParseArgsFlagsOverrideFile(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
audio:
  sample_rate: 22050
  frames_per_buffer: 512
session:
  budget_frames: 5000
`), 0644))

	cfg, err := ParseArgs([]string{"-f", path, "-b", "64"}, &bytes.Buffer{})
	require.NoError(t, err)
	assert.Equal(t, 22050.0, cfg.Audio.SampleRate, "unset flag keeps file value")
	assert.Equal(t, 64, cfg.Audio.FramesPerBuffer, "set flag wins")
	assert.Equal(t, int64(5000), cfg.Budget())
	assert.Equal(t, path, cfg.ConfigFile)

	cfg, err = ParseArgs([]string{"-f", path, "-t", "1s"}, &bytes.Buffer{})
	require.NoError(t, err)
	assert.Equal(t, int64(22050), cfg.Budget(), "duration flag replaces the file budget")
}

func TestParseArgsSubcommands(t *testing.T) {
	isolate(t)
	for _, name := range []string{config.CommandDevices, config.CommandPatches} {
		cfg, err := ParseArgs([]string{name}, &bytes.Buffer{})
		require.NoError(t, err)
		assert.Equal(t, name, cfg.Command)
	}

	cfg, err := ParseArgs([]string{"render", "-o", "out.wav", "--bit-depth", "24", "--window", "hamming", "-n", "1000"}, &bytes.Buffer{})
	require.NoError(t, err)
	assert.Equal(t, config.CommandRender, cfg.Command)
	assert.Equal(t, "out.wav", cfg.Render.Output)
	assert.Equal(t, 24, cfg.Render.BitDepth)
	assert.Equal(t, "hamming", cfg.Render.Window)
	assert.Equal(t, int64(1000), cfg.Budget())
}

func TestParseArgsErrors(t *testing.T) {
	isolate(t)
	tests := []struct {
		desc string
		args []string
	}{
		{"Unknown flag", []string{"--bogus"}},
		{"Invalid sample rate", []string{"-s", "100"}},
		{"Invalid backend", []string{"--backend", "jack"}},
		{"Invalid bit depth", []string{"render", "--bit-depth", "12"}},
		{"Unexpected argument", []string{"extra"}},
		{"Missing config file", []string{"-f", "missing.yaml"}},
	}
	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			cfg, err := ParseArgs(tt.args, &bytes.Buffer{})
			assert.Error(t, err)
			assert.Nil(t, cfg)
		})
	}
}

func TestParseArgsHelpAndVersion(t *testing.T) {
	isolate(t)
	for _, arg := range []string{"--help", "--version"} {
		var out bytes.Buffer
		cfg, err := ParseArgs([]string{arg}, &out)
		require.NoError(t, err)
		assert.Nil(t, cfg, "%s needs no further work", arg)
		assert.NotEmpty(t, out.String())
	}
}
