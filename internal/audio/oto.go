// SPDX-License-Identifier: MIT
package audio

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"sync"
	"time"

	applog "hvstream/internal/log"
	"hvstream/internal/session"

	"github.com/ebitengine/oto/v3"
)

const otoDefaultFrames = 512

var otoNewContext = oto.NewContext

// otoStream.Stop waits at most otoDrainTimeout for oto to play out what it
// has already pulled, polling every otoDrainPoll.
var (
	otoDrainTimeout = 2 * time.Second
	otoDrainPoll    = 5 * time.Millisecond
)

// otoPlayer is the part of *oto.Player a stream drives.
type otoPlayer interface {
	Play()
	Pause()
	IsPlaying() bool
	Err() error
	Close() error
}

// Oto plays through the host's default device via ebitengine/oto. Oto pulls
// samples from an io.Reader on its own goroutine; the reader invokes the
// callback. Only one oto context may exist per process, so the first
// OpenStream fixes the sample rate and channel count.
type Oto struct {
	mu         sync.Mutex
	ctx        *oto.Context
	sampleRate int
	channels   int
}

// NewOto returns an oto backend. No context exists until the first
// OpenStream.
func NewOto() *Oto { return &Oto{} }

// Name returns BackendOto.
func (*Oto) Name() string { return BackendOto }

// Initialize is a no-op: the context needs the stream format, so it is
// created by the first OpenStream.
func (*Oto) Initialize() error { return nil }

// Terminate suspends the context. Oto contexts cannot be destroyed, so a
// later OpenStream reuses it.
func (o *Oto) Terminate() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.ctx == nil {
		return nil
	}
	if err := o.ctx.Suspend(); err != nil {
		return newStreamError("terminate", err)
	}
	return nil
}

// Devices reports the single default output oto exposes.
func (*Oto) Devices() ([]Device, error) {
	return []Device{{
		ID:                DefaultDeviceID,
		Name:              "default output",
		HostAPI:           "oto",
		MaxOutputChannels: 2,
		IsDefaultOutput:   true,
	}}, nil
}

// OpenStream creates a player that pulls frames through cb. Only the
// default device is accepted.
func (o *Oto) OpenStream(p StreamParams, cb Callback) (Stream, error) {
	if err := p.validate(); err != nil {
		return nil, newStreamError("open", err)
	}
	if p.DeviceID != DefaultDeviceID {
		return nil, &StreamError{Op: "open", Code: CodeInvalidDevice,
			Err: fmt.Errorf("oto backend supports only the default device, got %d", p.DeviceID)}
	}

	frames := p.framesOr(otoDefaultFrames)
	if err := o.context(p, frames); err != nil {
		return nil, err
	}

	r := &otoReader{
		cb:         cb,
		channels:   p.Channels,
		sampleRate: p.SampleRate,
		buf:        make([]float32, frames*p.Channels),
	}
	return &otoStream{reader: r, player: o.ctx.NewPlayer(r)}, nil
}

func (o *Oto) context(p StreamParams, frames int) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.ctx != nil {
		if o.sampleRate != int(p.SampleRate) || o.channels != p.Channels {
			return &StreamError{Op: "open", Code: CodeFailure,
				Err: fmt.Errorf("oto context already running at %dHz/%dch, cannot open %.0fHz/%dch",
					o.sampleRate, o.channels, p.SampleRate, p.Channels)}
		}
		return nil
	}

	bufferSize := time.Duration(float64(frames) / p.SampleRate * float64(time.Second))
	if !p.LowLatency {
		bufferSize *= 4
	}

	ctx, ready, err := otoNewContext(&oto.NewContextOptions{
		SampleRate:   int(p.SampleRate),
		ChannelCount: p.Channels,
		Format:       oto.FormatFloat32LE,
		BufferSize:   bufferSize,
	})
	if err != nil {
		return newStreamError("open", fmt.Errorf("failed to create oto context: %w", err))
	}
	<-ready

	o.ctx = ctx
	o.sampleRate = int(p.SampleRate)
	o.channels = p.Channels
	return nil
}

// otoReader adapts the pull-based callback to oto's io.Reader. The mutex is
// held for the duration of one callback so Stop returns only after any
// in-flight callback has finished; oto's feeder goroutine is the only
// other party.
type otoReader struct {
	mu         sync.Mutex
	cb         Callback
	channels   int
	sampleRate float64
	buf        []float32
	frames     int64
	stopped    bool
	complete   bool
}

func (r *otoReader) Read(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.complete || r.stopped {
		return 0, io.EOF
	}

	frameBytes := 4 * r.channels
	frames := min(len(p)/frameBytes, len(r.buf)/r.channels)
	if frames == 0 {
		return 0, nil
	}
	out := r.buf[:frames*r.channels]

	t := time.Duration(float64(r.frames) / r.sampleRate * float64(time.Second))
	res := r.cb(out, TimeInfo{CurrentTime: t, OutputBufferDacTime: t}, 0)
	r.frames += int64(frames)

	for i, v := range out {
		binary.LittleEndian.PutUint32(p[i*4:], math.Float32bits(v))
	}
	if res == session.Complete {
		r.complete = true
	}
	return len(out) * 4, nil
}

func (r *otoReader) stop() {
	r.mu.Lock()
	r.stopped = true
	r.mu.Unlock()
}

func (r *otoReader) completed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.complete
}

type otoStream struct {
	reader *otoReader
	player otoPlayer
}

func (s *otoStream) Start() error {
	s.player.Play()
	return newStreamError("start", s.player.Err())
}

// Stop pauses the player. After the callback has completed the session,
// oto still holds the tail of the stream in its buffer, so Stop first
// lets it play out.
func (s *otoStream) Stop() error {
	if s.reader.completed() {
		s.drain()
	}
	s.reader.stop()
	s.player.Pause()
	return nil
}

// drain blocks until the player stops on its own or otoDrainTimeout passes.
func (s *otoStream) drain() {
	deadline := time.Now().Add(otoDrainTimeout)
	for s.player.IsPlaying() {
		if time.Now().After(deadline) {
			applog.Warnf("Oto: buffered audio still playing after %v, pausing", otoDrainTimeout)
			return
		}
		time.Sleep(otoDrainPoll)
	}
}

func (s *otoStream) Close() error {
	return newStreamError("close", s.player.Close())
}
