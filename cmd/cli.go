// SPDX-License-Identifier: MIT
package cmd

import (
	"fmt"
	"io"
	"time"

	"hvstream/internal/config"
	"hvstream/pkg/build"

	"github.com/spf13/cobra"
)

// flagValues holds raw flag values. Only flags the user actually set are
// copied onto the loaded configuration.
type flagValues struct {
	configFile string
	logLevel   string
	verbose    bool

	backend         string
	device          int
	sampleRate      float64
	framesPerBuffer int
	channels        int
	lowLatency      bool
	realtime        bool

	frames     int64
	duration   time.Duration
	exhaustion string

	patch      string
	patchFile  string
	source     string
	dataFrames int64
	blockSize  int

	monitor          bool
	monitorTransport string
	monitorAddress   string

	output   string
	bitDepth int
	window   string
}

// ParseArgs parses args (without the program name) and returns the
// resulting configuration. It returns a nil config and nil error when
// cobra handled the invocation itself, as with --help or --version.
func ParseArgs(args []string, out io.Writer) (*config.Config, error) {
	info := build.GetBuildInfo()
	var (
		flags  flagValues
		result *config.Config
	)

	run := func(command string) func(*cobra.Command, []string) error {
		return func(c *cobra.Command, _ []string) error {
			cfg, err := config.LoadConfig(flags.configFile)
			if err != nil {
				return err
			}
			flags.apply(c, cfg)
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid arguments: %w", err)
			}
			cfg.Command = command
			result = cfg
			return nil
		}
	}

	rootCmd := &cobra.Command{
		Use:           info.Name,
		Short:         info.Description,
		Version:       info.String(),
		Args:          cobra.NoArgs,
		SilenceErrors: true,
		SilenceUsage:  true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd:   true,
			DisableDescriptions: true,
			DisableNoDescFlag:   true,
			HiddenDefaultCmd:    true,
		},
		RunE: run(config.CommandPlay),
	}
	rootCmd.SetHelpCommand(&cobra.Command{Hidden: true})
	rootCmd.SetOut(out)
	rootCmd.SetErr(out)

	rootCmd.AddCommand(
		&cobra.Command{
			Use:   config.CommandDevices,
			Short: "List available audio output devices",
			Args:  cobra.NoArgs,
			RunE:  run(config.CommandDevices),
		},
		&cobra.Command{
			Use:   config.CommandPatches,
			Short: "List builtin patches",
			Args:  cobra.NoArgs,
			RunE:  run(config.CommandPatches),
		},
	)

	renderCmd := &cobra.Command{
		Use:   config.CommandRender,
		Short: "Render the session offline to a WAV file and print an analysis report",
		Args:  cobra.NoArgs,
		RunE:  run(config.CommandRender),
	}
	renderCmd.Flags().StringVarP(&flags.output, "output", "o", config.DefaultRenderOutput,
		"Output WAV file")
	renderCmd.Flags().IntVar(&flags.bitDepth, "bit-depth", config.DefaultRenderBitDepth,
		"WAV bit depth (8, 16, 24 or 32)")
	renderCmd.Flags().StringVar(&flags.window, "window", config.DefaultRenderWindow,
		"FFT window for the analysis report")
	rootCmd.AddCommand(renderCmd)

	pf := rootCmd.PersistentFlags()

	// General
	pf.StringVarP(&flags.configFile, "config", "f", "",
		"YAML configuration file (default: ./"+config.DefaultConfigFile+" if present)")
	pf.StringVar(&flags.logLevel, "log-level", config.DefaultLogLevel,
		"Log level: debug, info, warn, error")
	pf.BoolVarP(&flags.verbose, "verbose", "v", false,
		"Show verbose output (same as --log-level debug)")

	// Audio Device Configuration
	pf.StringVar(&flags.backend, "backend", config.DefaultBackend,
		"Audio backend: portaudio, oto or offline")
	pf.IntVarP(&flags.device, "device", "d", config.DefaultDeviceID,
		"Output device ID. Use the 'devices' command to see available devices.")
	pf.Float64VarP(&flags.sampleRate, "sample-rate", "s", config.DefaultSampleRate,
		"Sample rate, measured in Hertz (Hz)")
	pf.IntVarP(&flags.framesPerBuffer, "frames-per-buffer", "b", config.DefaultFramesPerBuffer,
		"The number of frames per buffer (affects latency)")
	pf.IntVarP(&flags.channels, "channels", "c", config.DefaultOutputChannels,
		"Output channels (0 follows the patch)")
	pf.BoolVarP(&flags.lowLatency, "low-latency", "l", config.DefaultLowLatency,
		"Use the device's low output latency")
	pf.BoolVar(&flags.realtime, "realtime", false,
		"Pace the offline backend at the sample rate")

	// Session Configuration
	pf.Int64VarP(&flags.frames, "frames", "n", 0,
		fmt.Sprintf("Frame budget (default %d, or --duration at the sample rate)", config.DefaultBudgetFrames))
	pf.DurationVarP(&flags.duration, "duration", "t", 0,
		"Session length, converted to frames at the sample rate")
	pf.StringVar(&flags.exhaustion, "exhaustion", config.DefaultExhaustion,
		"When the engine runs out of data: stop or pad")

	// Engine Configuration
	pf.StringVarP(&flags.patch, "patch", "p", config.DefaultPatch,
		"Builtin patch. Use the 'patches' command to list them.")
	pf.StringVar(&flags.patchFile, "patch-file", "",
		"YAML patch file (overrides --patch)")
	pf.StringVar(&flags.source, "source", "",
		"WAV file played as a fixed sample buffer (overrides patches)")
	pf.Int64Var(&flags.dataFrames, "data-frames", 0,
		"Limit the engine's data to this many frames")
	pf.IntVar(&flags.blockSize, "block-size", config.DefaultBlockSize,
		"Graph processing block size in frames")

	// Monitor Configuration
	pf.BoolVarP(&flags.monitor, "monitor", "m", false,
		"Publish playback progress")
	pf.StringVar(&flags.monitorTransport, "monitor-transport", config.DefaultMonitorTransport,
		"Progress transport: websocket, udp or log")
	pf.StringVar(&flags.monitorAddress, "monitor-address", config.DefaultMonitorAddress,
		"WebSocket listen address or UDP target")

	rootCmd.SetArgs(args)
	if err := rootCmd.Execute(); err != nil {
		return nil, err
	}
	return result, nil
}

// apply copies every flag the user set onto cfg.
func (f *flagValues) apply(c *cobra.Command, cfg *config.Config) {
	changed := c.Flags().Changed

	if changed("log-level") {
		cfg.LogLevel = f.logLevel
	}
	if f.verbose {
		cfg.LogLevel = "debug"
	}

	if changed("backend") {
		cfg.Audio.Backend = f.backend
	}
	if changed("device") {
		cfg.Audio.OutputDevice = f.device
	}
	if changed("sample-rate") {
		cfg.Audio.SampleRate = f.sampleRate
	}
	if changed("frames-per-buffer") {
		cfg.Audio.FramesPerBuffer = f.framesPerBuffer
	}
	if changed("channels") {
		cfg.Audio.OutputChannels = f.channels
	}
	if changed("low-latency") {
		cfg.Audio.LowLatency = f.lowLatency
	}
	if changed("realtime") {
		cfg.Audio.Realtime = f.realtime
	}

	// A duration on the command line replaces any budget from the file.
	if changed("duration") {
		cfg.Session.Duration = f.duration
		cfg.Session.BudgetFrames = 0
	}
	if changed("frames") {
		cfg.Session.BudgetFrames = f.frames
	}
	if changed("exhaustion") {
		cfg.Session.Exhaustion = f.exhaustion
	}

	if changed("patch") {
		cfg.Engine.Patch = f.patch
	}
	if changed("patch-file") {
		cfg.Engine.PatchFile = f.patchFile
	}
	if changed("source") {
		cfg.Engine.SourceFile = f.source
	}
	if changed("data-frames") {
		cfg.Engine.DataFrames = f.dataFrames
	}
	if changed("block-size") {
		cfg.Engine.BlockSize = f.blockSize
	}

	if changed("monitor") {
		cfg.Monitor.Enabled = f.monitor
	}
	if changed("monitor-transport") {
		cfg.Monitor.Transport = f.monitorTransport
	}
	if changed("monitor-address") {
		cfg.Monitor.Address = f.monitorAddress
	}

	if changed("output") {
		cfg.Render.Output = f.output
	}
	if changed("bit-depth") {
		cfg.Render.BitDepth = f.bitDepth
	}
	if changed("window") {
		cfg.Render.Window = f.window
	}
}
