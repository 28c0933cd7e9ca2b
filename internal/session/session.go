// SPDX-License-Identifier: MIT
/*
Package session accounts for one playback run: a fixed frame budget, the
frames delivered so far and the completion signal.

Thread Safety:
  - Process is called only from the audio callback; callbacks for one stream
    never overlap, so the counters have a single writer.
  - Counters are atomics so other goroutines can observe progress without
    taking a lock the callback would have to share.
  - Process never blocks and never allocates.
*/
package session

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"sync/atomic"
	"time"

	"hvstream/internal/engine"

	"github.com/google/uuid"
)

// Result tells the audio subsystem whether more data follows.
type Result int

const (
	Continue Result = iota // more frames follow
	Complete               // the stream should finish
)

// String returns "continue" or "complete".
func (r Result) String() string {
	if r == Complete {
		return "complete"
	}
	return "continue"
}

// Policy decides what happens when the engine runs out of data before the
// frame budget is reached.
type Policy int

const (
	// StopOnExhaustion completes the session on the first short Produce.
	StopOnExhaustion Policy = iota
	// PadWithSilence stops calling the engine and emits silence until the
	// budget has elapsed.
	PadWithSilence
)

// String returns the name ParsePolicy accepts for p.
func (p Policy) String() string {
	switch p {
	case StopOnExhaustion:
		return "stop"
	case PadWithSilence:
		return "pad"
	default:
		return fmt.Sprintf("Policy(%d)", int(p))
	}
}

// ParsePolicy converts "stop" or "pad" (case-insensitive) to a Policy.
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "stop":
		return StopOnExhaustion, nil
	case "pad", "silence":
		return PadWithSilence, nil
	default:
		return StopOnExhaustion, fmt.Errorf("unknown exhaustion policy %q (want stop or pad)", s)
	}
}

// Errors returned by New.
var (
	ErrBudget   = errors.New("frame budget must be positive")
	ErrChannels = errors.New("channel count must be positive")
	ErrEngine   = errors.New("session needs an engine")
	ErrLayout   = errors.New("engine channel layout does not match session")
)

// Config fixes a session's shape at construction.
type Config struct {
	Budget   int64 // total frames to deliver
	Channels int   // interleaved output channels
	Policy   Policy
}

// Stats is a point-in-time view of a session's counters.
type Stats struct {
	Delivered    int64
	Budget       int64
	ProduceCalls int64
	Exhausted    bool
	Complete     bool
}

// Session is one open-to-close run. It owns the engine handle for its
// lifetime.
type Session struct {
	ID       string
	budget   int64
	channels int
	policy   Policy
	engine   engine.Engine

	delivered    atomic.Int64
	produceCalls atomic.Int64
	exhausted    atomic.Bool
	complete     atomic.Bool
	done         chan struct{}
}

// New creates a session delivering cfg.Budget frames from e. An engine
// that reports its layout must produce exactly cfg.Channels channels.
func New(cfg Config, e engine.Engine) (*Session, error) {
	if cfg.Budget <= 0 {
		return nil, fmt.Errorf("%w, got %d", ErrBudget, cfg.Budget)
	}
	if cfg.Channels <= 0 {
		return nil, fmt.Errorf("%w, got %d", ErrChannels, cfg.Channels)
	}
	if e == nil {
		return nil, ErrEngine
	}
	if l, ok := e.(engine.Layout); ok && l.NumOutputChannels() != cfg.Channels {
		return nil, fmt.Errorf("%w: engine produces %d channel(s), session has %d",
			ErrLayout, l.NumOutputChannels(), cfg.Channels)
	}
	return &Session{
		ID:       uuid.NewString(),
		budget:   cfg.Budget,
		channels: cfg.Channels,
		policy:   cfg.Policy,
		engine:   e,
		done:     make(chan struct{}),
	}, nil
}

// Process fills out (interleaved, len(out)/Channels frames) for one
// callback. It asks the engine for at most the remaining budget, zeroes
// whatever the engine did not write, and reports Complete once the budget
// is reached or the engine is exhausted under StopOnExhaustion. After
// completion the engine is no longer called and out is silenced.
func (s *Session) Process(out []float32) Result {
	if s.complete.Load() {
		clear(out)
		return Complete
	}

	frames := int64(len(out) / s.channels)
	delivered := s.delivered.Load()
	toProduce := min(s.budget-delivered, frames)

	// n frames count toward the budget; the engine wrote the first written.
	var n, written int64
	stop := false
	switch {
	case toProduce == 0:
	case s.exhausted.Load():
		n = toProduce
	default:
		got := int64(s.engine.Produce(out[:toProduce*int64(s.channels)], int(toProduce)))
		s.produceCalls.Add(1)
		written = max(0, min(got, toProduce))
		n = written
		if written < toProduce {
			s.exhausted.Store(true)
			if s.policy == PadWithSilence {
				n = toProduce
			} else {
				stop = true
			}
		}
	}
	clear(out[written*int64(s.channels):])

	delivered += n
	s.delivered.Store(delivered)

	if stop || delivered >= s.budget {
		s.finish()
		return Complete
	}
	return Continue
}

func (s *Session) finish() {
	if s.complete.CompareAndSwap(false, true) {
		close(s.done)
	}
}

// Done is closed when the session completes.
func (s *Session) Done() <-chan struct{} { return s.done }

// Complete reports whether the session has completed.
func (s *Session) Complete() bool { return s.complete.Load() }

// Delivered returns the frames delivered so far.
func (s *Session) Delivered() int64 { return s.delivered.Load() }

// Budget returns the total number of frames the session delivers.
func (s *Session) Budget() int64 { return s.budget }

// Channels returns the interleaved channel count Process expects.
func (s *Session) Channels() int { return s.channels }

// Policy returns the behaviour applied once the engine is exhausted.
func (s *Session) Policy() Policy { return s.policy }

// Stats returns a snapshot of the counters.
func (s *Session) Stats() Stats {
	return Stats{
		Delivered:    s.delivered.Load(),
		Budget:       s.budget,
		ProduceCalls: s.produceCalls.Load(),
		Exhausted:    s.exhausted.Load(),
		Complete:     s.complete.Load(),
	}
}

// Close releases the engine. Call it only after the stream driving Process
// has been stopped and closed.
func (s *Session) Close() error {
	return engine.Close(s.engine)
}

// FramesFor converts a duration to a frame count at sampleRate, rounding up.
func FramesFor(d time.Duration, sampleRate float64) int64 {
	if d <= 0 || sampleRate <= 0 {
		return 0
	}
	return int64(math.Ceil(d.Seconds() * sampleRate))
}

// Duration is the playback time of frames at sampleRate.
func Duration(frames int64, sampleRate float64) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	return time.Duration(float64(frames) / sampleRate * float64(time.Second))
}
