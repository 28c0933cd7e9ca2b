// SPDX-License-Identifier: MIT
package engine

import (
	"fmt"
	"sort"

	applog "hvstream/internal/log"
)

// DefaultPatch is the patch used when none is configured.
const DefaultPatch = "osc"

var builtins = map[string]Patch{
	// Single 440 Hz sine at half scale.
	"osc": {
		Name: "osc",
		Nodes: []NodeSpec{
			{Name: "osc", Kind: KindOsc, Freq: 440},
			{Name: "out", Kind: KindGain, Value: 0.5, Inputs: []string{"osc"}},
		},
		Outputs: []string{"out"},
	},
	// Aliasing stereo saws; at 44.1 kHz the phase steps are 0.01 and 0.03
	// of the [-1,1) range per frame.
	"saw": {
		Name: "saw",
		Nodes: []NodeSpec{
			{Name: "left", Kind: KindSaw, Freq: 220.5},
			{Name: "right", Kind: KindSaw, Freq: 661.5},
		},
		Outputs: []string{"left", "right"},
	},
	// A major triad.
	"chord": {
		Name: "chord",
		Nodes: []NodeSpec{
			{Name: "root", Kind: KindOsc, Freq: 440},
			{Name: "third", Kind: KindOsc, Freq: 554.37},
			{Name: "fifth", Kind: KindOsc, Freq: 659.25},
			{Name: "sum", Kind: KindAdd, Inputs: []string{"root", "third", "fifth"}},
			{Name: "out", Kind: KindGain, Value: 0.25, Inputs: []string{"sum"}},
		},
		Outputs: []string{"out"},
	},
	// 440 Hz carrier with 5 Hz vibrato of +/-20 Hz.
	"fm": {
		Name: "fm",
		Nodes: []NodeSpec{
			{Name: "lfo", Kind: KindOsc, Freq: 5},
			{Name: "depth", Kind: KindGain, Value: 20, Inputs: []string{"lfo"}},
			{Name: "center", Kind: KindConst, Value: 440},
			{Name: "freq", Kind: KindAdd, Inputs: []string{"center", "depth"}},
			{Name: "carrier", Kind: KindOsc, Inputs: []string{"freq"}},
			{Name: "out", Kind: KindGain, Value: 0.5, Inputs: []string{"carrier"}},
		},
		Outputs: []string{"out"},
	},
	"noise": {
		Name: "noise",
		Nodes: []NodeSpec{
			{Name: "noise", Kind: KindNoise, Seed: 1},
			{Name: "out", Kind: KindGain, Value: 0.2, Inputs: []string{"noise"}},
		},
		Outputs: []string{"out"},
	},
}

// Builtin returns the builtin patch with the given name.
func Builtin(name string) (Patch, bool) {
	p, ok := builtins[name]
	return p, ok
}

// BuiltinNames returns the sorted builtin patch names.
func BuiltinNames() []string {
	names := make([]string, 0, len(builtins))
	for name := range builtins {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// PatchFactory returns a Factory compiling p for whatever sample rate the
// stream ends up using.
func PatchFactory(p Patch, blockSize int) Factory {
	if blockSize <= 0 {
		blockSize = DefaultBlockSize
	}
	return func(sampleRate float64) (Engine, error) {
		return Compile(p, sampleRate, blockSize)
	}
}

// Options select the engine a session plays.
type Options struct {
	Patch      string // builtin patch name
	PatchFile  string // YAML patch, takes precedence over Patch
	SourceFile string // WAV file, takes precedence over both patch settings
	BlockSize  int    // graph block size in frames
	DataFrames int64  // if > 0, the engine's data runs out after this many frames
}

// NewFactory resolves opts into a Factory. Patch and file errors surface
// here, before any stream is opened.
func NewFactory(opts Options) (Factory, error) {
	var base Factory
	switch {
	case opts.SourceFile != "":
		buf, sampleRate, err := LoadWAV(opts.SourceFile)
		if err != nil {
			return nil, err
		}
		base = func(rate float64) (Engine, error) {
			if rate != sampleRate {
				applog.Warnf("Engine: %s is %.0f Hz but the stream runs at %.0f Hz, playing without resampling",
					opts.SourceFile, sampleRate, rate)
			}
			return NewBuffer(buf.samples, buf.channels), nil
		}
	case opts.PatchFile != "":
		p, err := LoadPatch(opts.PatchFile)
		if err != nil {
			return nil, err
		}
		base = PatchFactory(p, opts.BlockSize)
	default:
		name := opts.Patch
		if name == "" {
			name = DefaultPatch
		}
		p, ok := Builtin(name)
		if !ok {
			return nil, fmt.Errorf("unknown patch %q (available: %v)", name, BuiltinNames())
		}
		base = PatchFactory(p, opts.BlockSize)
	}

	if opts.DataFrames <= 0 {
		return base, nil
	}
	return func(rate float64) (Engine, error) {
		e, err := base(rate)
		if err != nil {
			return nil, err
		}
		return Limit(e, opts.DataFrames), nil
	}, nil
}
