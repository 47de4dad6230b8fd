// SPDX-License-Identifier: MIT
package udp

import (
	"fmt"
	"sync"
	"time"

	"ducker/internal/ducking"
	applog "ducker/internal/log"
)

// StatusProvider returns the most recent ducker status.
type StatusProvider interface {
	Latest() ducking.Status
}

// PacketSender delivers one datagram.
type PacketSender interface {
	Send(data []byte) error
}

// StatusPublisher periodically packs the latest ducker status into a
// datagram and sends it. It runs in a separate goroutine managed by Start
// and Stop.
type StatusPublisher struct {
	sender   PacketSender
	provider StatusProvider
	interval time.Duration

	ticker   *time.Ticker   // Ticker that triggers packet sending.
	doneChan chan struct{}  // Signals the publisher goroutine to stop.
	stopOnce sync.Once      // Ensures the stop logic runs only once per Start/Stop cycle.
	wg       sync.WaitGroup // Waits for the publisher goroutine to finish during Stop.
	mu       sync.Mutex     // Protects ticker and doneChan during Start/Stop.

	sequenceNum uint32
	packet      [PacketSize]byte // reused for every send
}

// NewStatusPublisher creates a publisher. If the interval is invalid
// (<= 0), it defaults to 33ms (~30Hz).
func NewStatusPublisher(interval time.Duration, sender PacketSender, provider StatusProvider) (*StatusPublisher, error) {
	if sender == nil {
		return nil, fmt.Errorf("UDPPublisher: UDP sender cannot be nil")
	}
	if provider == nil {
		return nil, fmt.Errorf("UDPPublisher: status provider cannot be nil")
	}

	if interval <= 0 {
		interval = 33 * time.Millisecond
		applog.Warnf("UDPPublisher: Invalid interval provided, defaulting to %s", interval)
	}
	applog.Infof("UDPPublisher: Initializing (Interval: %s, Packet: %d bytes)", interval, PacketSize)

	return &StatusPublisher{
		sender:   sender,
		provider: provider,
		interval: interval,
	}, nil
}

// Start begins the periodic publishing process. It is safe to call Start
// multiple times; subsequent calls are no-ops if already started.
func (p *StatusPublisher) Start() {
	p.mu.Lock()
	if p.ticker != nil {
		p.mu.Unlock()
		applog.Warnf("UDPPublisher: Start called but already running.")
		return
	}

	p.ticker = time.NewTicker(p.interval)
	p.doneChan = make(chan struct{})
	p.stopOnce = sync.Once{}

	// Captured so the goroutine never reads p.ticker/p.doneChan.
	ticker := p.ticker
	doneChan := p.doneChan
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		applog.Infof("UDPPublisher: Publisher goroutine started (Interval: %s)", p.interval)
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

// Stop signals the publisher goroutine to terminate and waits for it to
// exit. It is safe to call Stop multiple times.
func (p *StatusPublisher) Stop() error {
	p.mu.Lock()
	if p.ticker == nil {
		p.mu.Unlock()
		applog.Debugf("UDPPublisher: Stop called but not running.")
		return nil
	}

	p.stopOnce.Do(func() {
		close(p.doneChan)
		p.ticker.Stop()
		p.ticker = nil
	})
	p.mu.Unlock()

	p.wg.Wait()
	applog.Infof("UDPPublisher: Publisher goroutine finished.")
	return nil
}

// publish packs and sends one status packet.
func (p *StatusPublisher) publish() {
	p.sequenceNum++
	EncodeStatus(&p.packet, p.sequenceNum, p.provider.Latest())

	if err := p.sender.Send(p.packet[:]); err != nil {
		applog.Debugf("UDPPublisher: Error sending packet %d: %v", p.sequenceNum, err)
		return
	}
	applog.Debugf("UDPPublisher: Sent packet %d (%d bytes)", p.sequenceNum, PacketSize)
}

// Close implements the io.Closer interface.
func (p *StatusPublisher) Close() error {
	return p.Stop()
}

var _ interface{ Close() error } = (*StatusPublisher)(nil)
