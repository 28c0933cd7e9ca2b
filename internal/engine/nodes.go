// SPDX-License-Identifier: MIT
package engine

import "math"

// node renders n frames into its own block buffer. Inputs are block buffers
// of upstream nodes that have already been processed for this pass.
type node interface {
	process(n int)
}

func newNode(spec NodeSpec, sampleRate float64, out []float32, ins [][]float32) node {
	switch spec.Kind {
	case KindOsc:
		o := &oscNode{ramp: newRamp(spec, sampleRate), out: out}
		if len(ins) == 1 {
			o.freqIn = ins[0]
		}
		return o
	case KindPhasor:
		return &phasorNode{ramp: newRamp(spec, sampleRate), out: out}
	case KindSaw:
		return &sawNode{ramp: newRamp(spec, sampleRate), out: out}
	case KindNoise:
		seed := spec.Seed
		if seed == 0 {
			seed = 0x9E3779B97F4A7C15
		}
		return &noiseNode{state: seed, out: out}
	case KindConst:
		v := float32(spec.Value)
		for i := range out {
			out[i] = v
		}
		return constNode{}
	case KindGain:
		return &gainNode{in: ins[0], gain: float32(spec.Value), out: out}
	case KindMul:
		return &mulNode{ins: ins, out: out}
	default: // KindAdd, arity already checked
		return &addNode{ins: ins, out: out}
	}
}

// ramp is a phase accumulator in cycles, wrapped to [0,1).
type ramp struct {
	phase      float64
	inc        float64 // cycles per frame
	sampleRate float64
}

func newRamp(spec NodeSpec, sampleRate float64) ramp {
	phase := spec.Phase - math.Floor(spec.Phase)
	return ramp{phase: phase, inc: spec.Freq / sampleRate, sampleRate: sampleRate}
}

func (r *ramp) advance(inc float64) {
	r.phase += inc
	if r.phase >= 1 || r.phase < 0 {
		r.phase -= math.Floor(r.phase)
	}
}

type oscNode struct {
	ramp
	freqIn []float32
	out    []float32
}

func (o *oscNode) process(n int) {
	for i := 0; i < n; i++ {
		o.out[i] = float32(math.Sin(2 * math.Pi * o.phase))
		inc := o.inc
		if o.freqIn != nil {
			inc = float64(o.freqIn[i]) / o.sampleRate
		}
		o.advance(inc)
	}
}

type phasorNode struct {
	ramp
	out []float32
}

func (p *phasorNode) process(n int) {
	for i := 0; i < n; i++ {
		p.out[i] = float32(p.phase)
		p.advance(p.inc)
	}
}

type sawNode struct {
	ramp
	out []float32
}

func (s *sawNode) process(n int) {
	for i := 0; i < n; i++ {
		s.out[i] = float32(2*s.phase - 1)
		s.advance(s.inc)
	}
}

// noiseNode is an xorshift64* generator, so output is reproducible per seed.
type noiseNode struct {
	state uint64
	out   []float32
}

func (w *noiseNode) process(n int) {
	for i := 0; i < n; i++ {
		w.state ^= w.state >> 12
		w.state ^= w.state << 25
		w.state ^= w.state >> 27
		v := w.state * 2685821657736338717
		// top 24 bits -> [0,1) -> [-1,1)
		w.out[i] = float32(v>>40)/float32(1<<24)*2 - 1
	}
}

// constNode's buffer is filled once at construction.
type constNode struct{}

func (constNode) process(int) {}

type gainNode struct {
	in   []float32
	gain float32
	out  []float32
}

func (g *gainNode) process(n int) {
	for i := 0; i < n; i++ {
		g.out[i] = g.in[i] * g.gain
	}
}

type mulNode struct {
	ins [][]float32
	out []float32
}

func (m *mulNode) process(n int) {
	copy(m.out[:n], m.ins[0][:n])
	for _, in := range m.ins[1:] {
		for i := 0; i < n; i++ {
			m.out[i] *= in[i]
		}
	}
}

type addNode struct {
	ins [][]float32
	out []float32
}

func (a *addNode) process(n int) {
	copy(a.out[:n], a.ins[0][:n])
	for _, in := range a.ins[1:] {
		for i := 0; i < n; i++ {
			a.out[i] += in[i]
		}
	}
}
