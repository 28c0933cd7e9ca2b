// SPDX-License-Identifier: MIT
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"hvstream/internal/analysis"
	applog "hvstream/internal/log"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is searched for when no path is given.
const DefaultConfigFile = "hvstream.yaml"

// DotEnvFile is loaded before environment overrides are applied; a missing
// file is not an error.
var DotEnvFile = ".env"

var (
	backends   = []string{"portaudio", "oto", "offline"}
	transports = []string{"websocket", "udp", "log"}
	policies   = []string{"stop", "pad", "silence"}
)

// LoadConfig loads configuration from the YAML file at path. If path is
// empty it looks for hvstream.yaml in the working directory and falls back
// to built-in defaults. Environment overrides (.env first, then the process
// environment) are applied after the file, then the result is validated.
func LoadConfig(path string) (*Config, error) {
	cfg := NewConfig()

	if path == "" {
		if _, err := os.Stat(DefaultConfigFile); err == nil {
			path = DefaultConfigFile
		}
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
		cfg.ConfigFile = path
	}

	if err := loadDotEnv(DotEnvFile); err != nil {
		return nil, err
	}
	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func loadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	applog.Debugf("configuration: loaded environment from %s", path)
	return nil
}

// Validate checks every setting against its allowed range.
func (c *Config) Validate() error {
	if _, ok := applog.ParseLevel(c.LogLevel); !ok {
		return fmt.Errorf("log_level %q is not one of debug, info, warn, error", c.LogLevel)
	}

	// Audio
	if !oneOf(c.Audio.Backend, backends) {
		return fmt.Errorf("audio.backend %q is not one of %v", c.Audio.Backend, backends)
	}
	if c.Audio.OutputDevice < MinDeviceID {
		return fmt.Errorf("audio.output_device must be >= %d, got %d", MinDeviceID, c.Audio.OutputDevice)
	}
	if c.Audio.SampleRate < MinSampleRate || c.Audio.SampleRate > MaxSampleRate {
		return fmt.Errorf("audio.sample_rate must be between %d and %d, got %.0f",
			MinSampleRate, MaxSampleRate, c.Audio.SampleRate)
	}
	if c.Audio.FramesPerBuffer < 0 || c.Audio.FramesPerBuffer > MaxBufferFrames {
		return fmt.Errorf("audio.frames_per_buffer must be between 0 and %d, got %d",
			MaxBufferFrames, c.Audio.FramesPerBuffer)
	}
	if c.Audio.OutputChannels < 0 || c.Audio.OutputChannels > MaxOutputChannels {
		return fmt.Errorf("audio.output_channels must be between 0 and %d, got %d",
			MaxOutputChannels, c.Audio.OutputChannels)
	}

	// Session
	if c.Session.BudgetFrames < 0 || c.Session.Duration < 0 {
		return errors.New("session budget and duration must not be negative")
	}
	if !oneOf(c.Session.Exhaustion, policies) {
		return fmt.Errorf("session.exhaustion %q is not one of stop, pad", c.Session.Exhaustion)
	}

	// Engine
	if c.Engine.BlockSize < 0 {
		return fmt.Errorf("engine.block_size must not be negative, got %d", c.Engine.BlockSize)
	}
	if c.Engine.DataFrames < 0 {
		return fmt.Errorf("engine.data_frames must not be negative, got %d", c.Engine.DataFrames)
	}

	// Monitor
	if c.Monitor.Enabled {
		if !oneOf(c.Monitor.Transport, transports) {
			return fmt.Errorf("monitor.transport %q is not one of %v", c.Monitor.Transport, transports)
		}
		if c.Monitor.Transport != "log" && !strings.Contains(c.Monitor.Address, ":") {
			return fmt.Errorf("monitor.address %q appears invalid (missing port?)", c.Monitor.Address)
		}
		if c.Monitor.Interval <= 0 {
			return errors.New("monitor.interval must be positive when monitoring is enabled")
		}
	}

	// Render
	switch c.Render.BitDepth {
	case 8, 16, 24, 32:
	default:
		return fmt.Errorf("render.bit_depth must be 8, 16, 24 or 32, got %d", c.Render.BitDepth)
	}
	if _, err := analysis.ParseWindowFunc(c.Render.Window); err != nil {
		return fmt.Errorf("render.window: %w", err)
	}

	return nil
}

// applyEnvOverrides applies HVSTREAM_* variables. Malformed values are
// errors rather than silently ignored.
func (c *Config) applyEnvOverrides() error {
	str := func(key string, dst *string) {
		if val, ok := os.LookupEnv(key); ok {
			*dst = val
			applog.Debugf("configuration: overriding from %s: %s", key, val)
		}
	}
	parse := func(key string, set func(string) error) error {
		val, ok := os.LookupEnv(key)
		if !ok {
			return nil
		}
		if err := set(val); err != nil {
			return fmt.Errorf("invalid %s=%q: %w", key, val, err)
		}
		applog.Debugf("configuration: overriding from %s: %s", key, val)
		return nil
	}

	str("HVSTREAM_LOG_LEVEL", &c.LogLevel)
	str("HVSTREAM_BACKEND", &c.Audio.Backend)
	str("HVSTREAM_EXHAUSTION", &c.Session.Exhaustion)
	str("HVSTREAM_PATCH", &c.Engine.Patch)
	str("HVSTREAM_PATCH_FILE", &c.Engine.PatchFile)
	str("HVSTREAM_SOURCE_FILE", &c.Engine.SourceFile)
	str("HVSTREAM_MONITOR_TRANSPORT", &c.Monitor.Transport)
	str("HVSTREAM_MONITOR_ADDRESS", &c.Monitor.Address)

	return errors.Join(
		parse("HVSTREAM_OUTPUT_DEVICE", func(v string) (err error) {
			c.Audio.OutputDevice, err = strconv.Atoi(v)
			return err
		}),
		parse("HVSTREAM_SAMPLE_RATE", func(v string) (err error) {
			c.Audio.SampleRate, err = strconv.ParseFloat(v, 64)
			return err
		}),
		parse("HVSTREAM_FRAMES_PER_BUFFER", func(v string) (err error) {
			c.Audio.FramesPerBuffer, err = strconv.Atoi(v)
			return err
		}),
		parse("HVSTREAM_LOW_LATENCY", func(v string) (err error) {
			c.Audio.LowLatency, err = strconv.ParseBool(v)
			return err
		}),
		parse("HVSTREAM_BUDGET_FRAMES", func(v string) (err error) {
			c.Session.BudgetFrames, err = strconv.ParseInt(v, 10, 64)
			return err
		}),
		parse("HVSTREAM_DURATION", func(v string) error {
			d, err := time.ParseDuration(v)
			if err != nil {
				return err
			}
			c.Session.Duration = d
			c.Session.BudgetFrames = 0
			return nil
		}),
		parse("HVSTREAM_MONITOR_ENABLED", func(v string) (err error) {
			c.Monitor.Enabled, err = strconv.ParseBool(v)
			return err
		}),
	)
}

func oneOf(v string, allowed []string) bool {
	for _, a := range allowed {
		if strings.EqualFold(v, a) {
			return true
		}
	}
	return false
}
