// SPDX-License-Identifier: MIT
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"hvstream/cmd"
	"hvstream/internal/analysis"
	"hvstream/internal/audio"
	"hvstream/internal/config"
	"hvstream/internal/engine"
	applog "hvstream/internal/log"
	"hvstream/internal/monitor"
	"hvstream/internal/session"
	"hvstream/internal/transport"
	"hvstream/internal/transport/udp"
	"hvstream/pkg/build"
)

// main is the entry point. The program flow has three phases:
//
// 1. Startup (cold path): build info, arguments and configuration, backend
// initialisation, engine instantiation, stream negotiation.
//
// 2. Streaming (hot path): the backend's callback thread fills buffers
// from the session until the frame budget is delivered; this goroutine
// only waits.
//
// 3. Shutdown (cold path): stop and close the stream, destroy the engine,
// terminate the backend.
//
// The exit status is the audio subsystem's error code. The OS truncates
// it to 8 bits, so negative PortAudio codes arrive modulo 256.
func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	// Development builds carry no ldflags; the defaults are fine.
	if err := build.Initialize(); err != nil {
		applog.Debugf("build info incomplete: %v", err)
	}

	cfg, err := cmd.ParseArgs(args, stdout)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return audio.CodeFailure
	}
	if cfg == nil {
		return 0 // --help or --version
	}

	if level, ok := applog.ParseLevel(cfg.LogLevel); ok {
		applog.SetLevel(level)
	}
	if cfg.ConfigFile != "" {
		applog.Infof("Configuration loaded from %s", cfg.ConfigFile)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch cfg.Command {
	case config.CommandPatches:
		err = listPatches(stdout)
	case config.CommandDevices:
		err = listDevices(cfg, stdout)
	case config.CommandRender:
		err = render(ctx, cfg, stdout)
	default:
		err = play(ctx, cfg, stdout)
	}
	if err != nil {
		return reportError(stderr, err)
	}
	return 0
}

// reportError prints the failing step with the numeric code and text, and
// returns the code as exit status.
func reportError(w io.Writer, err error) int {
	if op := audio.ErrorOp(err); op != "" {
		fmt.Fprintf(w, "An error occurred while using the audio stream (%s)\n", op)
	} else {
		fmt.Fprintln(w, "An error occurred")
	}
	code := audio.ErrorCode(err)
	fmt.Fprintf(w, "Error number: %d\n", code)
	fmt.Fprintf(w, "Error message: %s\n", err)
	return code
}

// withBackend initialises the configured backend for the duration of fn.
func withBackend(name string, fn func(audio.Backend) error) error {
	b, err := audio.NewBackend(name)
	if err != nil {
		return err
	}
	return withInitialized(b, fn)
}

func withInitialized(b audio.Backend, fn func(audio.Backend) error) (err error) {
	if err := b.Initialize(); err != nil {
		return err
	}
	defer func() {
		if terr := b.Terminate(); terr != nil {
			if err == nil {
				err = terr
			} else {
				applog.Errorf("%v", terr)
			}
		}
	}()
	return fn(b)
}

func listPatches(w io.Writer) error {
	fmt.Fprintf(w, "\nBuiltin Patches\n\n")
	for _, name := range engine.BuiltinNames() {
		p, _ := engine.Builtin(name)
		suffix := ""
		if name == engine.DefaultPatch {
			suffix = " [default]"
		}
		fmt.Fprintf(w, "  %-8s %d node(s), %d output channel(s)%s\n", name, len(p.Nodes), len(p.Outputs), suffix)
	}
	fmt.Fprintln(w)
	return nil
}

func listDevices(cfg *config.Config, w io.Writer) error {
	return withBackend(cfg.Audio.Backend, func(b audio.Backend) error {
		return audio.ListDevices(w, b)
	})
}

func play(ctx context.Context, cfg *config.Config, w io.Writer) error {
	return withBackend(cfg.Audio.Backend, func(b audio.Backend) error {
		if off, ok := b.(*audio.Offline); ok {
			off.Realtime = cfg.Audio.Realtime
		}
		p, err := newPlayer(cfg, b)
		if err != nil {
			return err
		}
		return runPlayer(ctx, cfg, p, w)
	})
}

// render runs the session on the offline backend, writes the delivered
// frames to a WAV file and prints an analysis report.
func render(ctx context.Context, cfg *config.Config, w io.Writer) error {
	off := &audio.Offline{Realtime: cfg.Audio.Realtime}
	return withInitialized(off, func(b audio.Backend) error {
		p, err := newPlayer(cfg, b)
		if err != nil {
			return err
		}
		channels := p.Session().Channels()
		capture := audio.NewCapture(channels, cfg.Budget()+int64(cfg.Audio.FramesPerBuffer))
		off.Sink = capture

		if err := runPlayer(ctx, cfg, p, w); err != nil {
			return err
		}

		samples := capture.Samples(p.Progress().Delivered)
		if err := audio.WriteWAV(cfg.Render.Output, samples, channels, cfg.Audio.SampleRate, cfg.Render.BitDepth); err != nil {
			return err
		}
		fmt.Fprintf(w, "Wrote %s (%d-bit)\n", cfg.Render.Output, cfg.Render.BitDepth)

		window, err := analysis.ParseWindowFunc(cfg.Render.Window)
		if err != nil {
			return err
		}
		report, err := analysis.AnalyzeWith(samples, channels, cfg.Audio.SampleRate, window)
		if errors.Is(err, analysis.ErrNoSamples) {
			fmt.Fprintln(w, "Nothing rendered")
			return nil
		}
		if err != nil {
			return err
		}
		fmt.Fprintln(w, report)
		return nil
	})
}

// newPlayer instantiates the engine at the configured sample rate, wraps
// it in a session and prepares a Player on b.
func newPlayer(cfg *config.Config, b audio.Backend) (*audio.Player, error) {
	factory, err := engine.NewFactory(engine.Options{
		Patch:      cfg.Engine.Patch,
		PatchFile:  cfg.Engine.PatchFile,
		SourceFile: cfg.Engine.SourceFile,
		BlockSize:  cfg.Engine.BlockSize,
		DataFrames: cfg.Engine.DataFrames,
	})
	if err != nil {
		return nil, err
	}
	eng, err := factory(cfg.Audio.SampleRate)
	if err != nil {
		return nil, err
	}
	applog.Infof("Engine: %d input channel(s), %d output channel(s)",
		engine.InputChannels(eng), engine.OutputChannels(eng))

	channels := engine.OutputChannels(eng)
	if cfg.Audio.OutputChannels != 0 && cfg.Audio.OutputChannels != channels {
		engine.Close(eng)
		return nil, fmt.Errorf("engine produces %d output channel(s) but %d were requested",
			channels, cfg.Audio.OutputChannels)
	}

	policy, err := session.ParsePolicy(cfg.Session.Exhaustion)
	if err != nil {
		engine.Close(eng)
		return nil, err
	}
	s, err := session.New(session.Config{
		Budget:   cfg.Budget(),
		Channels: channels,
		Policy:   policy,
	}, eng)
	if err != nil {
		engine.Close(eng)
		return nil, err
	}

	p, err := audio.NewPlayer(b, audio.StreamParams{
		DeviceID:        cfg.Audio.OutputDevice,
		SampleRate:      cfg.Audio.SampleRate,
		Channels:        channels,
		FramesPerBuffer: cfg.Audio.FramesPerBuffer,
		LowLatency:      cfg.Audio.LowLatency,
	}, s)
	if err != nil {
		s.Close()
		return nil, err
	}
	return p, nil
}

// runPlayer plays p to completion or until ctx is cancelled, publishing
// progress if monitoring is enabled.
func runPlayer(ctx context.Context, cfg *config.Config, p *audio.Player, w io.Writer) error {
	if cfg.Monitor.Enabled {
		pub, err := newPublisher(cfg, p)
		if err != nil {
			return err
		}
		pub.Start()
		defer func() {
			if err := pub.Close(); err != nil {
				applog.Warnf("Monitor: %v", err)
			}
		}()
	}

	budget := cfg.Budget()
	applog.Infof("Playing %d frames (%s) at %.0f Hz", budget,
		session.Duration(budget, cfg.Audio.SampleRate), cfg.Audio.SampleRate)

	if err := p.Run(ctx); err != nil {
		return err
	}

	pr := p.Progress()
	fmt.Fprintf(w, "Delivered %d of %d frames in %d callbacks", pr.Delivered, pr.Budget, pr.Callbacks)
	if pr.Underruns > 0 {
		fmt.Fprintf(w, " (%d underruns)", pr.Underruns)
	}
	if ctx.Err() != nil {
		fmt.Fprint(w, ", interrupted")
	}
	fmt.Fprintln(w)
	return nil
}

func newPublisher(cfg *config.Config, src monitor.Source) (*monitor.Publisher, error) {
	var (
		t   transport.Transport
		err error
	)
	switch strings.ToLower(cfg.Monitor.Transport) {
	case "udp":
		t, err = udp.NewUDPSender(cfg.Monitor.Address)
	case "log":
		t = transport.NewLoggingTransport()
	default:
		t, err = transport.NewWebSocketTransport(cfg.Monitor.Address)
	}
	if err != nil {
		return nil, fmt.Errorf("monitor: %w", err)
	}
	pub, err := monitor.NewPublisher(cfg.Monitor.Interval, src, t)
	if err != nil {
		t.Close()
		return nil, err
	}
	return pub, nil
}
