// SPDX-License-Identifier: MIT
/*
Package engine implements the pull-based signal engines that feed an output
stream.

An Engine is a stateful frame producer: each call to Produce synthesizes up to
the requested number of interleaved float32 frames and advances its internal
state by exactly the number of frames written. Engines are driven from the
real-time audio callback, so Produce must not block, allocate or do work that
is not proportional to the frame count.

Real-Time Contract:
  - Produce never writes past len(out)
  - Produce returns fewer frames than requested only when its data is exhausted
  - All buffers are allocated at construction time
*/
package engine

import "io"

// Engine produces interleaved audio frames on demand.
type Engine interface {
	// Produce writes up to maxFrames frames into out and returns the number of
	// frames written. The result is always in [0, maxFrames].
	Produce(out []float32, maxFrames int) int
}

// Layout is implemented by engines that know their channel configuration.
type Layout interface {
	NumInputChannels() int
	NumOutputChannels() int
}

// Factory constructs an engine for a fixed sample rate. Swapping the factory
// swaps the processing graph without touching the driver.
type Factory func(sampleRate float64) (Engine, error)

// OutputChannels reports the number of interleaved output channels of e,
// falling back to mono for engines that do not implement Layout.
func OutputChannels(e Engine) int {
	if l, ok := e.(Layout); ok && l.NumOutputChannels() > 0 {
		return l.NumOutputChannels()
	}
	return 1
}

// InputChannels reports the number of input channels e consumes.
func InputChannels(e Engine) int {
	if l, ok := e.(Layout); ok {
		return l.NumInputChannels()
	}
	return 0
}

// Close releases e if it holds resources.
func Close(e Engine) error {
	if c, ok := e.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// fitFrames clamps maxFrames so that maxFrames*channels fits in out.
func fitFrames(out []float32, maxFrames, channels int) int {
	if maxFrames <= 0 || channels <= 0 {
		return 0
	}
	if avail := len(out) / channels; maxFrames > avail {
		return avail
	}
	return maxFrames
}

// limited wraps an engine whose data runs out after a fixed number of frames.
type limited struct {
	engine    Engine
	remaining int64
}

// Limit returns an engine that produces at most frames frames from e in
// total and then reports exhaustion by returning 0.
func Limit(e Engine, frames int64) Engine {
	if frames < 0 {
		frames = 0
	}
	return &limited{engine: e, remaining: frames}
}

func (l *limited) Produce(out []float32, maxFrames int) int {
	if l.remaining <= 0 || maxFrames <= 0 {
		return 0
	}
	n := maxFrames
	if int64(n) > l.remaining {
		n = int(l.remaining)
	}
	got := l.engine.Produce(out, n)
	l.remaining -= int64(got)
	return got
}

func (l *limited) NumInputChannels() int  { return InputChannels(l.engine) }
func (l *limited) NumOutputChannels() int { return OutputChannels(l.engine) }

func (l *limited) Close() error { return Close(l.engine) }

// Buffer plays back a fixed-length interleaved sample buffer.
type Buffer struct {
	samples  []float32
	channels int
	pos      int // next sample index
}

// NewBuffer returns a Buffer engine over samples. Trailing samples that do
// not form a complete frame are ignored.
func NewBuffer(samples []float32, channels int) *Buffer {
	if channels <= 0 {
		channels = 1
	}
	whole := len(samples) - len(samples)%channels
	return &Buffer{samples: samples[:whole], channels: channels}
}

// Produce copies the next frames of the buffer into out.
func (b *Buffer) Produce(out []float32, maxFrames int) int {
	n := fitFrames(out, maxFrames, b.channels)
	if left := int(b.Remaining()); n > left {
		n = left
	}
	if n <= 0 {
		return 0
	}
	count := n * b.channels
	copy(out[:count], b.samples[b.pos:b.pos+count])
	b.pos += count
	return n
}

// Frames returns the total number of frames held by the buffer.
func (b *Buffer) Frames() int64 { return int64(len(b.samples) / b.channels) }

// Remaining returns the number of frames not yet produced.
func (b *Buffer) Remaining() int64 { return int64((len(b.samples) - b.pos) / b.channels) }

// NumInputChannels is always zero.
func (b *Buffer) NumInputChannels() int { return 0 }

// NumOutputChannels returns the interleaved channel count of the samples.
func (b *Buffer) NumOutputChannels() int { return b.channels }

var (
	_ Engine = (*limited)(nil)
	_ Layout = (*limited)(nil)
	_ Engine = (*Buffer)(nil)
	_ Layout = (*Buffer)(nil)
)
