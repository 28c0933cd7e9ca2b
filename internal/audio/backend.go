// SPDX-License-Identifier: MIT
/*
Package audio drives an output stream from a playback session.

A Backend opens streams whose callback runs on the audio subsystem's clock.
The Player owns one stream and moves it through
Uninitialized → Opened → Running → Stopped → Closed.

Thread Safety:
  - The stream callback runs on a real-time thread and only touches the
    session and atomics; it never locks, logs or allocates.
  - Callbacks for one stream never overlap.
  - Player control methods (Open, Start, Stop, Close) serialise on a mutex
    that the callback never takes.
*/
package audio

import (
	"fmt"
	"strings"
	"time"

	"hvstream/internal/session"
)

// DefaultDeviceID selects the host's default output device.
const DefaultDeviceID = -1

// StatusFlags report conditions the audio subsystem detected before a
// callback. Bit values match PortAudio's PaStreamCallbackFlags.
type StatusFlags uint32

const (
	InputUnderflow StatusFlags = 1 << iota
	InputOverflow
	OutputUnderflow
	OutputOverflow
	PrimingOutput
)

var flagNames = []struct {
	flag StatusFlags
	name string
}{
	{InputUnderflow, "input-underflow"},
	{InputOverflow, "input-overflow"},
	{OutputUnderflow, "output-underflow"},
	{OutputOverflow, "output-overflow"},
	{PrimingOutput, "priming-output"},
}

// Underrun reports whether the output missed its deadline.
func (f StatusFlags) Underrun() bool {
	return f&(OutputUnderflow|OutputOverflow) != 0
}

// String lists the set flags separated by "|", or "none".
func (f StatusFlags) String() string {
	if f == 0 {
		return "none"
	}
	var parts []string
	for _, fn := range flagNames {
		if f&fn.flag != 0 {
			parts = append(parts, fn.name)
		}
	}
	if len(parts) == 0 {
		return fmt.Sprintf("0x%x", uint32(f))
	}
	return strings.Join(parts, "|")
}

// TimeInfo is the timing metadata handed to a callback.
type TimeInfo struct {
	InputBufferAdcTime  time.Duration
	CurrentTime         time.Duration
	OutputBufferDacTime time.Duration
}

// Callback fills out with interleaved samples. It runs on the audio thread.
type Callback func(out []float32, info TimeInfo, flags StatusFlags) session.Result

// StreamParams describe the output stream to negotiate.
type StreamParams struct {
	DeviceID        int // DefaultDeviceID for the host default
	SampleRate      float64
	Channels        int
	FramesPerBuffer int // 0 lets the backend choose
	LowLatency      bool
}

func (p StreamParams) validate() error {
	if p.SampleRate <= 0 {
		return fmt.Errorf("invalid sample rate: %.0f", p.SampleRate)
	}
	if p.Channels <= 0 {
		return fmt.Errorf("invalid channel count: %d", p.Channels)
	}
	if p.FramesPerBuffer < 0 {
		return fmt.Errorf("invalid frames per buffer: %d", p.FramesPerBuffer)
	}
	return nil
}

func (p StreamParams) framesOr(def int) int {
	if p.FramesPerBuffer > 0 {
		return p.FramesPerBuffer
	}
	return def
}

// Stream is an opened output stream.
type Stream interface {
	Start() error
	Stop() error
	Close() error
}

// Backend is an audio subsystem able to open output streams.
type Backend interface {
	Name() string
	Initialize() error
	Terminate() error
	Devices() ([]Device, error)
	OpenStream(p StreamParams, cb Callback) (Stream, error)
}

// Backend names accepted by NewBackend.
const (
	BackendPortAudio = "portaudio"
	BackendOto       = "oto"
	BackendOffline   = "offline"
)

// BackendNames lists the selectable backends.
func BackendNames() []string {
	return []string{BackendPortAudio, BackendOto, BackendOffline}
}

// NewBackend returns the backend registered under name.
func NewBackend(name string) (Backend, error) {
	switch strings.ToLower(name) {
	case "", BackendPortAudio:
		return NewPortAudio(), nil
	case BackendOto:
		return NewOto(), nil
	case BackendOffline:
		return &Offline{}, nil
	default:
		return nil, fmt.Errorf("unknown audio backend %q (available: %v)", name, BackendNames())
	}
}
