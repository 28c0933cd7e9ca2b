// SPDX-License-Identifier: MIT
package engine

import (
	"errors"
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"
)

// DefaultBlockSize is the number of frames a graph renders per internal pass.
const DefaultBlockSize = 64

// Node kinds understood by Compile.
const (
	KindOsc    = "osc"    // sine oscillator, optional frequency input
	KindPhasor = "phasor" // [0,1) ramp
	KindSaw    = "saw"    // [-1,1) ramp
	KindNoise  = "noise"  // seeded white noise
	KindConst  = "const"  // constant signal
	KindGain   = "gain"   // single input scaled by Value
	KindMul    = "mul"    // product of inputs
	KindAdd    = "add"    // sum of inputs
)

// Errors returned by Compile.
var (
	ErrEmptyName     = errors.New("node name is empty")
	ErrDuplicateNode = errors.New("duplicate node name")
	ErrUnknownKind   = errors.New("unknown node kind")
	ErrUnknownInput  = errors.New("unknown node input")
	ErrArity         = errors.New("wrong number of inputs")
	ErrCycle         = errors.New("patch contains a cycle")
	ErrNoOutputs     = errors.New("patch has no outputs")
	ErrSampleRate    = errors.New("sample rate must be positive")
	ErrBlockSize     = errors.New("block size must be positive")
	ErrNonFinite     = errors.New("parameter is not a finite number")
)

// NodeSpec describes one node of a patch.
type NodeSpec struct {
	Name   string   `yaml:"name"`
	Kind   string   `yaml:"kind"`
	Freq   float64  `yaml:"freq,omitempty"`   // Hz, for oscillators
	Value  float64  `yaml:"value,omitempty"`  // const level or gain factor
	Phase  float64  `yaml:"phase,omitempty"`  // initial phase in cycles
	Seed   uint64   `yaml:"seed,omitempty"`   // noise seed
	Inputs []string `yaml:"inputs,omitempty"` // upstream node names
}

// Patch is an abstract processing graph. Each entry of Outputs names the node
// that feeds the corresponding output channel.
type Patch struct {
	Name    string     `yaml:"name"`
	Nodes   []NodeSpec `yaml:"nodes"`
	Outputs []string   `yaml:"outputs"`
}

// LoadPatch reads a YAML patch description from path.
func LoadPatch(path string) (Patch, error) {
	var p Patch
	data, err := os.ReadFile(path)
	if err != nil {
		return p, fmt.Errorf("failed to read patch file: %w", err)
	}
	if err := yaml.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("failed to parse patch file: %w", err)
	}
	if p.Name == "" {
		p.Name = path
	}
	return p, nil
}

// Graph is a compiled patch: a topologically ordered program of nodes, each
// owning a pre-allocated block buffer.
type Graph struct {
	name      string
	blockSize int
	program   []node
	outputs   [][]float32 // block buffers of the output nodes, one per channel
	frames    int64       // frames produced so far
}

// Compile validates p and turns it into a Graph rendering blockSize frames
// per internal pass at sampleRate.
func Compile(p Patch, sampleRate float64, blockSize int) (*Graph, error) {
	if sampleRate <= 0 {
		return nil, ErrSampleRate
	}
	if blockSize <= 0 {
		return nil, ErrBlockSize
	}
	if len(p.Outputs) == 0 {
		return nil, fmt.Errorf("patch %q: %w", p.Name, ErrNoOutputs)
	}

	specs := make(map[string]NodeSpec, len(p.Nodes))
	for _, n := range p.Nodes {
		if n.Name == "" {
			return nil, fmt.Errorf("patch %q: %w", p.Name, ErrEmptyName)
		}
		if _, dup := specs[n.Name]; dup {
			return nil, fmt.Errorf("patch %q: %w: %s", p.Name, ErrDuplicateNode, n.Name)
		}
		if err := checkArity(n); err != nil {
			return nil, fmt.Errorf("patch %q: node %s: %w", p.Name, n.Name, err)
		}
		if err := checkParams(n); err != nil {
			return nil, fmt.Errorf("patch %q: node %s: %w", p.Name, n.Name, err)
		}
		specs[n.Name] = n
	}
	for _, n := range p.Nodes {
		for _, in := range n.Inputs {
			if _, ok := specs[in]; !ok {
				return nil, fmt.Errorf("patch %q: node %s: %w: %s", p.Name, n.Name, ErrUnknownInput, in)
			}
		}
	}
	for _, out := range p.Outputs {
		if _, ok := specs[out]; !ok {
			return nil, fmt.Errorf("patch %q: output: %w: %s", p.Name, ErrUnknownInput, out)
		}
	}

	order, err := topoSort(p.Nodes, specs)
	if err != nil {
		return nil, fmt.Errorf("patch %q: %w", p.Name, err)
	}

	g := &Graph{name: p.Name, blockSize: blockSize}
	buffers := make(map[string][]float32, len(order))
	for _, name := range order {
		spec := specs[name]
		buf := make([]float32, blockSize)
		ins := make([][]float32, len(spec.Inputs))
		for i, in := range spec.Inputs {
			ins[i] = buffers[in]
		}
		g.program = append(g.program, newNode(spec, sampleRate, buf, ins))
		buffers[name] = buf
	}
	for _, out := range p.Outputs {
		g.outputs = append(g.outputs, buffers[out])
	}
	return g, nil
}

func checkArity(n NodeSpec) error {
	got := len(n.Inputs)
	switch n.Kind {
	case KindPhasor, KindSaw, KindNoise, KindConst:
		if got != 0 {
			return fmt.Errorf("%w: %s takes none, got %d", ErrArity, n.Kind, got)
		}
	case KindOsc:
		if got > 1 {
			return fmt.Errorf("%w: osc takes at most one, got %d", ErrArity, got)
		}
	case KindGain:
		if got != 1 {
			return fmt.Errorf("%w: gain takes one, got %d", ErrArity, got)
		}
	case KindMul:
		if got < 2 {
			return fmt.Errorf("%w: mul takes at least two, got %d", ErrArity, got)
		}
	case KindAdd:
		if got < 1 {
			return fmt.Errorf("%w: add takes at least one, got %d", ErrArity, got)
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownKind, n.Kind)
	}
	return nil
}

// checkParams rejects NaN and infinite parameters, which YAML accepts as
// .nan and .inf.
func checkParams(n NodeSpec) error {
	for _, p := range []struct {
		name string
		v    float64
	}{{"freq", n.Freq}, {"value", n.Value}, {"phase", n.Phase}} {
		if math.IsNaN(p.v) || math.IsInf(p.v, 0) {
			return fmt.Errorf("%w: %s is %v", ErrNonFinite, p.name, p.v)
		}
	}
	return nil
}

// topoSort orders nodes so that every node follows its inputs. Declaration
// order is kept where dependencies allow it.
func topoSort(nodes []NodeSpec, specs map[string]NodeSpec) ([]string, error) {
	const (
		unvisited = iota
		visiting
		visited
	)
	state := make(map[string]int, len(nodes))
	order := make([]string, 0, len(nodes))

	var visit func(name string) error
	visit = func(name string) error {
		switch state[name] {
		case visiting:
			return fmt.Errorf("%w at %s", ErrCycle, name)
		case visited:
			return nil
		}
		state[name] = visiting
		for _, in := range specs[name].Inputs {
			if err := visit(in); err != nil {
				return err
			}
		}
		state[name] = visited
		order = append(order, name)
		return nil
	}

	for _, n := range nodes {
		if err := visit(n.Name); err != nil {
			return nil, err
		}
	}
	return order, nil
}

// Produce renders up to maxFrames frames into out. A graph never runs out
// of data, so the result is maxFrames unless out is too short.
func (g *Graph) Produce(out []float32, maxFrames int) int {
	channels := len(g.outputs)
	total := fitFrames(out, maxFrames, channels)

	done := 0
	for done < total {
		n := total - done
		if n > g.blockSize {
			n = g.blockSize
		}
		for _, nd := range g.program {
			nd.process(n)
		}
		base := done * channels
		for c, src := range g.outputs {
			for i := 0; i < n; i++ {
				out[base+i*channels+c] = clamp(src[i])
			}
		}
		done += n
	}
	g.frames += int64(done)
	return done
}

// Name returns the patch name the graph was compiled from.
func (g *Graph) Name() string { return g.name }

// Frames returns the number of frames produced since construction.
func (g *Graph) Frames() int64 { return g.frames }

// NumInputChannels is always zero: patches are pure generators.
func (g *Graph) NumInputChannels() int { return 0 }

// NumOutputChannels returns the number of interleaved output channels.
func (g *Graph) NumOutputChannels() int { return len(g.outputs) }

// clamp limits v to [-1,1] and silences NaN.
func clamp(v float32) float32 {
	if v != v {
		return 0
	}
	if v > 1 {
		return 1
	}
	if v < -1 {
		return -1
	}
	return v
}

var (
	_ Engine = (*Graph)(nil)
	_ Layout = (*Graph)(nil)
)
