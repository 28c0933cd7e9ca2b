// SPDX-License-Identifier: MIT
package audio

import (
	"errors"
	"sync"
	"time"

	"hvstream/internal/session"
)

const offlineDefaultFrames = 256

// Sink receives every buffer an offline stream produces. Write runs on the
// stream goroutine and must not retain samples.
type Sink interface {
	Write(samples []float32)
}

// Offline is a backend with a simulated hardware clock. Callbacks run
// back-to-back on one goroutine, or paced at the stream's real rate when
// Realtime is set. The failure fields let tests reproduce device errors.
type Offline struct {
	Realtime bool
	Sink     Sink
	// Flags, if set, supplies the status flags for callback number call
	// (starting at 0).
	Flags func(call uint64) StatusFlags

	NoDevice  bool  // OpenStream fails with ErrNoOutputDevice
	FailOpen  error // OpenStream fails with this error
	FailStart error // Start fails with this error
}

// Name returns BackendOffline. Initialize and Terminate are no-ops.
func (*Offline) Name() string      { return BackendOffline }
func (*Offline) Initialize() error { return nil }
func (*Offline) Terminate() error  { return nil }

// Devices reports a single virtual output, or none if NoDevice is set.
func (o *Offline) Devices() ([]Device, error) {
	if o.NoDevice {
		return nil, nil
	}
	return []Device{{
		ID:                0,
		Name:              "offline clock",
		HostAPI:           "offline",
		MaxOutputChannels: 32,
		IsDefaultOutput:   true,
	}}, nil
}

// OpenStream returns a stream whose clock goroutine invokes cb once per
// buffer, paced at the sample rate only when Realtime is set.
func (o *Offline) OpenStream(p StreamParams, cb Callback) (Stream, error) {
	if o.NoDevice {
		return nil, &StreamError{Op: "open", Code: CodeInvalidDevice, Err: ErrNoOutputDevice}
	}
	if o.FailOpen != nil {
		return nil, newStreamError("open", o.FailOpen)
	}
	if err := p.validate(); err != nil {
		return nil, newStreamError("open", err)
	}
	if cb == nil {
		return nil, newStreamError("open", errors.New("nil callback"))
	}

	frames := p.framesOr(offlineDefaultFrames)
	return &offlineStream{
		backend: o,
		cb:      cb,
		params:  p,
		buf:     make([]float32, frames*p.Channels),
		frames:  frames,
		quit:    make(chan struct{}),
	}, nil
}

type offlineStream struct {
	backend *Offline
	cb      Callback
	params  StreamParams
	buf     []float32
	frames  int

	mu       sync.Mutex
	started  bool
	quit     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func (s *offlineStream) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return newStreamError("start", ErrInvalidState)
	}
	if s.backend.FailStart != nil {
		return newStreamError("start", s.backend.FailStart)
	}
	s.started = true

	s.wg.Add(1)
	go s.run()
	return nil
}

func (s *offlineStream) run() {
	defer s.wg.Done()

	var tick <-chan time.Time
	if s.backend.Realtime {
		period := time.Duration(float64(s.frames) / s.params.SampleRate * float64(time.Second))
		ticker := time.NewTicker(period)
		defer ticker.Stop()
		tick = ticker.C
	}

	for call := uint64(0); ; call++ {
		if tick != nil {
			select {
			case <-s.quit:
				return
			case <-tick:
			}
		} else {
			select {
			case <-s.quit:
				return
			default:
			}
		}

		var flags StatusFlags
		if s.backend.Flags != nil {
			flags = s.backend.Flags(call)
		}
		t := time.Duration(float64(call) * float64(s.frames) / s.params.SampleRate * float64(time.Second))
		res := s.cb(s.buf, TimeInfo{CurrentTime: t, OutputBufferDacTime: t}, flags)
		if s.backend.Sink != nil {
			s.backend.Sink.Write(s.buf)
		}
		if res == session.Complete {
			return
		}
	}
}

// Stop waits for the in-flight callback, if any, before returning.
func (s *offlineStream) Stop() error {
	s.stopOnce.Do(func() {
		close(s.quit)
	})
	s.wg.Wait()
	return nil
}

func (s *offlineStream) Close() error {
	return s.Stop()
}
