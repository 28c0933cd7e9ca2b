// SPDX-License-Identifier: MIT
package monitor

import (
	"errors"
	"sync"
	"time"

	"hvstream/internal/audio"
	applog "hvstream/internal/log"
	"hvstream/internal/transport"
)

// DefaultInterval is used when NewPublisher is given a non-positive interval.
const DefaultInterval = 100 * time.Millisecond

// Source provides progress snapshots. *audio.Player satisfies it; reading
// a snapshot only loads atomics.
type Source interface {
	Progress() audio.Progress
}

// Publisher periodically reads a Source, stamps each snapshot with a
// sequence number and timestamp, and sends it through a Transport. It runs
// in a separate goroutine managed by Start and Stop.
type Publisher struct {
	source    Source
	transport transport.Transport
	interval  time.Duration
	now       func() time.Time

	ticker   *time.Ticker
	doneChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	mu       sync.Mutex // Protects ticker and doneChan during Start/Stop.

	sequenceNum uint32 // Owned by the publisher goroutine while running.
	sendErrors  uint64
}

// NewPublisher creates a Publisher. If interval is not positive it
// defaults to DefaultInterval.
func NewPublisher(interval time.Duration, src Source, t transport.Transport) (*Publisher, error) {
	if src == nil {
		return nil, errors.New("publisher: source cannot be nil")
	}
	if t == nil {
		return nil, errors.New("publisher: transport cannot be nil")
	}
	if interval <= 0 {
		interval = DefaultInterval
		applog.Warnf("Publisher: invalid interval, defaulting to %s", interval)
	}
	return &Publisher{
		source:    src,
		transport: t,
		interval:  interval,
		now:       time.Now,
	}, nil
}

// Start launches the publishing goroutine. Calling Start while running is
// a no-op.
func (p *Publisher) Start() {
	p.mu.Lock()
	if p.ticker != nil {
		p.mu.Unlock()
		applog.Warnf("Publisher: Start called but already running")
		return
	}

	p.ticker = time.NewTicker(p.interval)
	p.doneChan = make(chan struct{})
	p.stopOnce = sync.Once{}

	// Local copies so the goroutine never reads the guarded fields.
	ticker := p.ticker
	doneChan := p.doneChan
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		applog.Debugf("Publisher: started (interval %s)", p.interval)
		for {
			select {
			case <-ticker.C:
				p.publish()
			case <-doneChan:
				return
			}
		}
	}()
}

// Stop signals the goroutine to exit, waits for it, then publishes one
// final snapshot so receivers see the end state. Calling Stop when not
// running is a no-op.
func (p *Publisher) Stop() error {
	p.mu.Lock()
	if p.ticker == nil {
		p.mu.Unlock()
		return nil
	}
	p.stopOnce.Do(func() {
		close(p.doneChan)
		p.ticker.Stop()
		p.ticker = nil
	})
	p.mu.Unlock()

	p.wg.Wait()
	p.publish()
	applog.Debugf("Publisher: stopped after %d packets", p.sequenceNum)
	return nil
}

// Close stops the publisher and closes its transport.
func (p *Publisher) Close() error {
	return errors.Join(p.Stop(), p.transport.Close())
}

// Sent returns the number of packets published so far. Only valid after
// Stop.
func (p *Publisher) Sent() uint32 { return p.sequenceNum }

// packet builds the next packet from the current snapshot.
func (p *Publisher) packet() Packet {
	pr := p.source.Progress()
	p.sequenceNum++
	return Packet{
		Seq:       p.sequenceNum,
		Timestamp: p.now(),
		Session:   pr.Session,
		State:     pr.State.String(),
		StateCode: uint8(pr.State),
		Delivered: pr.Delivered,
		Budget:    pr.Budget,
		Callbacks: pr.Callbacks,
		Underruns: pr.Underruns,
	}
}

func (p *Publisher) publish() {
	pkt := p.packet()
	if err := p.transport.Send(pkt); err != nil {
		p.sendErrors++
		// Log the first failure and then sparsely; transports log their own detail.
		if p.sendErrors == 1 || p.sendErrors%100 == 0 {
			applog.Warnf("Publisher: send failed (%d so far): %v", p.sendErrors, err)
		}
		return
	}
	applog.Debugf("Publisher: sent packet %d", pkt.Seq)
}

var _ interface{ Close() error } = (*Publisher)(nil)
