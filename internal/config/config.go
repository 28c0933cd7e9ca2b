// SPDX-License-Identifier: MIT
package config

import (
	"time"

	"hvstream/internal/session"
)

// Core configuration constants that define the boundaries and defaults
// for a playback session.
const (
	// Default values for the stream
	DefaultBackend         = "portaudio"
	DefaultDeviceID        = MinDeviceID // System default output device
	DefaultSampleRate      = 44100       // CD-quality audio
	DefaultFramesPerBuffer = 256         // Frames requested per callback
	DefaultLowLatency      = false       // Standard latency mode
	DefaultOutputChannels  = 0           // Use the engine's channel layout

	// Default values for the session
	DefaultBudgetFrames = 48000  // Frames delivered before completion
	DefaultExhaustion   = "stop" // Complete as soon as the engine runs dry
	DefaultLogLevel     = "info"

	// Default values for the engine
	DefaultPatch     = "osc"
	DefaultBlockSize = 64

	// Default values for monitoring
	DefaultMonitorTransport = "websocket"
	DefaultMonitorAddress   = "127.0.0.1:8080"
	DefaultMonitorInterval  = 100 * time.Millisecond

	// Default values for offline rendering
	DefaultRenderOutput   = "render.wav"
	DefaultRenderBitDepth = 16
	DefaultRenderWindow   = "Hann"

	// Hardware and processing limits
	MinDeviceID       = -1     // -1 represents system default device
	MinSampleRate     = 8000   // Minimum usable sample rate (Hz)
	MaxSampleRate     = 192000 // Maximum supported sample rate (Hz)
	MaxBufferFrames   = 8192   // Maximum frames per buffer (power of 2)
	MaxOutputChannels = 32
)

// Commands selectable from the command line.
const (
	CommandPlay    = "play"
	CommandDevices = "devices"
	CommandPatches = "patches"
	CommandRender  = "render"
)

// Config is the complete runtime configuration. It is built from defaults,
// an optional YAML file, .env and HVSTREAM_* environment variables, then
// command line flags.
type Config struct {
	LogLevel string        `yaml:"log_level"` // debug, info, warn, error
	Audio    AudioConfig   `yaml:"audio"`
	Session  SessionConfig `yaml:"session"`
	Engine   EngineConfig  `yaml:"engine"`
	Monitor  MonitorConfig `yaml:"monitor"`
	Render   RenderConfig  `yaml:"render"`

	// Set from the command line only.
	Command    string `yaml:"-"`
	ConfigFile string `yaml:"-"`
}

// AudioConfig selects the backend and negotiates the output stream.
type AudioConfig struct {
	Backend         string  `yaml:"backend"`           // portaudio, oto or offline
	OutputDevice    int     `yaml:"output_device"`     // Device index (-1 for default)
	SampleRate      float64 `yaml:"sample_rate"`       // Sample rate in Hz
	FramesPerBuffer int     `yaml:"frames_per_buffer"` // 0 lets the backend choose
	OutputChannels  int     `yaml:"output_channels"`   // 0 follows the engine
	LowLatency      bool    `yaml:"low_latency"`       // Request the device's low latency
	Realtime        bool    `yaml:"realtime"`          // Pace the offline backend at the sample rate
}

// SessionConfig fixes the frame budget and what happens when the engine's
// data runs out first.
type SessionConfig struct {
	BudgetFrames int64         `yaml:"budget_frames"` // Takes precedence over Duration
	Duration     time.Duration `yaml:"duration"`      // Converted at the sample rate
	Exhaustion   string        `yaml:"exhaustion"`    // stop or pad
}

// EngineConfig selects the signal engine.
type EngineConfig struct {
	Patch      string `yaml:"patch"`       // Builtin patch name
	PatchFile  string `yaml:"patch_file"`  // YAML patch file
	SourceFile string `yaml:"source_file"` // PCM WAV file played as a fixed buffer
	BlockSize  int    `yaml:"block_size"`  // Graph block size in frames
	DataFrames int64  `yaml:"data_frames"` // If > 0 the engine's data ends after this many frames
}

// MonitorConfig controls progress publishing off the audio thread.
type MonitorConfig struct {
	Enabled   bool          `yaml:"enabled"`
	Transport string        `yaml:"transport"` // websocket, udp or log
	Address   string        `yaml:"address"`   // Listen address (websocket) or target (udp)
	Interval  time.Duration `yaml:"interval"`
}

// RenderConfig controls the render command.
type RenderConfig struct {
	Output   string `yaml:"output"`
	BitDepth int    `yaml:"bit_depth"`
	Window   string `yaml:"window"` // FFT window for the analysis report
}

// NewConfig creates a Config with default values.
func NewConfig() *Config {
	return &Config{
		LogLevel: DefaultLogLevel,
		Command:  CommandPlay,
		Audio: AudioConfig{
			Backend:         DefaultBackend,
			OutputDevice:    DefaultDeviceID,
			SampleRate:      DefaultSampleRate,
			FramesPerBuffer: DefaultFramesPerBuffer,
			OutputChannels:  DefaultOutputChannels,
			LowLatency:      DefaultLowLatency,
		},
		Session: SessionConfig{
			Exhaustion: DefaultExhaustion,
		},
		Engine: EngineConfig{
			Patch:     DefaultPatch,
			BlockSize: DefaultBlockSize,
		},
		Monitor: MonitorConfig{
			Transport: DefaultMonitorTransport,
			Address:   DefaultMonitorAddress,
			Interval:  DefaultMonitorInterval,
		},
		Render: RenderConfig{
			Output:   DefaultRenderOutput,
			BitDepth: DefaultRenderBitDepth,
			Window:   DefaultRenderWindow,
		},
	}
}

// Budget returns the session frame budget: BudgetFrames if set, otherwise
// Duration at the configured sample rate rounded up, otherwise
// DefaultBudgetFrames.
func (c *Config) Budget() int64 {
	if c.Session.BudgetFrames > 0 {
		return c.Session.BudgetFrames
	}
	if n := session.FramesFor(c.Session.Duration, c.Audio.SampleRate); n > 0 {
		return n
	}
	return DefaultBudgetFrames
}
