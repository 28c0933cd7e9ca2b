// SPDX-License-Identifier: MIT
package audio

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	applog "hvstream/internal/log"
	"hvstream/internal/session"
)

// State is a Player lifecycle state.
type State int32

const (
	Uninitialized State = iota
	Opened
	Running
	Stopped
	Closed
)

// String returns the lower-case state name.
func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Opened:
		return "opened"
	case Running:
		return "running"
	case Stopped:
		return "stopped"
	case Closed:
		return "closed"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// DefaultPollInterval is how often Wait samples the underrun counter.
const DefaultPollInterval = 100 * time.Millisecond

// Progress is a lock-free snapshot of a running Player.
type Progress struct {
	Session   string
	State     State
	Delivered int64
	Budget    int64
	Callbacks uint64
	Underruns uint64
	LastFlags StatusFlags
}

// Player drives one session through one stream of a Backend.
type Player struct {
	backend Backend
	params  StreamParams
	session *session.Session
	log     *applog.Entry

	// PollInterval overrides DefaultPollInterval when set before Wait.
	PollInterval time.Duration

	mu     sync.Mutex // control thread only; never taken by the callback
	stream Stream
	state  atomic.Int32

	callbacks atomic.Uint64
	underruns atomic.Uint64
	lastFlags atomic.Uint32
}

// NewPlayer prepares a Player for s. params.Channels defaults to the
// session's channel count and must match it otherwise.
func NewPlayer(b Backend, params StreamParams, s *session.Session) (*Player, error) {
	if b == nil {
		return nil, errors.New("nil backend")
	}
	if s == nil {
		return nil, errors.New("nil session")
	}
	if params.Channels == 0 {
		params.Channels = s.Channels()
	}
	if params.Channels != s.Channels() {
		return nil, fmt.Errorf("stream has %d channels but the session produces %d", params.Channels, s.Channels())
	}
	if err := params.validate(); err != nil {
		return nil, err
	}

	return &Player{
		backend: b,
		params:  params,
		session: s,
		log: applog.WithFields(applog.Fields{
			"session": s.ID,
			"backend": b.Name(),
		}),
	}, nil
}

// callback runs on the audio thread.
func (p *Player) callback(out []float32, _ TimeInfo, flags StatusFlags) session.Result {
	p.callbacks.Add(1)
	if flags != 0 {
		p.lastFlags.Store(uint32(flags))
		if flags.Underrun() {
			p.underruns.Add(1)
		}
	}
	return p.session.Process(out)
}

// State returns the current lifecycle state. Safe from any goroutine.
func (p *Player) State() State { return State(p.state.Load()) }

func (p *Player) setState(s State) { p.state.Store(int32(s)) }

// Session returns the session the player drives. The player owns it and
// closes it in Close.
func (p *Player) Session() *session.Session { return p.session }

// Progress returns a snapshot safe to call from any goroutine.
func (p *Player) Progress() Progress {
	return Progress{
		Session:   p.session.ID,
		State:     p.State(),
		Delivered: p.session.Delivered(),
		Budget:    p.session.Budget(),
		Callbacks: p.callbacks.Load(),
		Underruns: p.underruns.Load(),
		LastFlags: StatusFlags(p.lastFlags.Load()),
	}
}

// Open negotiates the stream. On failure the Player is Closed and the
// session's engine released.
func (p *Player) Open() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.State() != Uninitialized {
		return &StreamError{Op: "open", Code: CodeInternalError,
			Err: fmt.Errorf("%w: open from %s", ErrInvalidState, p.State())}
	}

	stream, err := p.backend.OpenStream(p.params, p.callback)
	if err != nil {
		p.teardown()
		return newStreamError("open", err)
	}
	p.stream = stream
	p.setState(Opened)

	p.log.Infof("Audio: opened %d ch @ %.0f Hz, %d frames per buffer, budget %d frames",
		p.params.Channels, p.params.SampleRate, p.params.FramesPerBuffer, p.session.Budget())
	return nil
}

// Start begins callbacks. On failure the stream is closed and the Player
// is Closed.
func (p *Player) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.State() != Opened {
		return &StreamError{Op: "start", Code: CodeInternalError,
			Err: fmt.Errorf("%w: start from %s", ErrInvalidState, p.State())}
	}

	if err := p.stream.Start(); err != nil {
		if cerr := p.stream.Close(); cerr != nil {
			p.log.Warnf("Audio: close after failed start: %v", cerr)
		}
		p.stream = nil
		p.teardown()
		return newStreamError("start", err)
	}
	p.setState(Running)
	p.log.Debugf("Audio: stream started")
	return nil
}

// Wait blocks until the session completes or ctx is done. It does not stop
// the stream. Underruns reported by the audio subsystem are logged as
// warnings while waiting.
func (p *Player) Wait(ctx context.Context) error {
	if s := p.State(); s != Running {
		return &StreamError{Op: "wait", Code: CodeInternalError,
			Err: fmt.Errorf("%w: wait from %s", ErrInvalidState, s)}
	}

	interval := p.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var reported uint64
	check := func() {
		if n := p.underruns.Load(); n > reported {
			p.log.Warnf("Audio: %d output underruns (last flags: %s)",
				n-reported, StatusFlags(p.lastFlags.Load()))
			reported = n
		}
	}

	for {
		select {
		case <-p.session.Done():
			check()
			return nil
		case <-ctx.Done():
			check()
			return ctx.Err()
		case <-ticker.C:
			check()
		}
	}
}

// Stop halts callbacks. The in-flight callback, if any, completes before
// Stop returns. Stopping a stopped or closed Player is a no-op.
func (p *Player) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stopLocked()
}

func (p *Player) stopLocked() error {
	switch p.State() {
	case Stopped, Closed:
		return nil
	case Uninitialized:
		return &StreamError{Op: "stop", Code: CodeInternalError,
			Err: fmt.Errorf("%w: stop from %s", ErrInvalidState, Uninitialized)}
	case Opened:
		p.setState(Stopped)
		return nil
	}

	err := p.stream.Stop()
	p.setState(Stopped)
	if err != nil {
		return newStreamError("stop", err)
	}
	st := p.session.Stats()
	p.log.Infof("Audio: stopped after %d/%d frames in %d callbacks", st.Delivered, st.Budget, p.callbacks.Load())
	return nil
}

// Close stops the stream if needed, closes it and then releases the
// session's engine. Closing a closed Player is a no-op.
func (p *Player) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.State() == Closed {
		return nil
	}

	var first error
	if p.State() == Running {
		first = p.stopLocked()
	}
	if p.stream != nil {
		if err := p.stream.Close(); err != nil && first == nil {
			first = newStreamError("close", err)
		}
		p.stream = nil
	}
	p.teardown()
	return first
}

// teardown marks the Player closed and releases the engine. Callers hold mu
// and have already closed the stream.
func (p *Player) teardown() {
	p.setState(Closed)
	if err := p.session.Close(); err != nil {
		p.log.Warnf("Audio: releasing engine: %v", err)
	}
}

// Run opens and starts the stream, waits for completion or ctx, then stops
// and closes it. It returns the first error, with the failing step recorded
// in the *StreamError. Cancellation of ctx is not an error.
func (p *Player) Run(ctx context.Context) error {
	if err := p.Open(); err != nil {
		return err
	}
	if err := p.Start(); err != nil {
		return err
	}

	werr := p.Wait(ctx)
	if errors.Is(werr, context.Canceled) || errors.Is(werr, context.DeadlineExceeded) {
		p.log.Infof("Audio: interrupted at %d/%d frames", p.session.Delivered(), p.session.Budget())
		werr = nil
	}

	err := p.Stop()
	if cerr := p.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = werr
	}
	return err
}
