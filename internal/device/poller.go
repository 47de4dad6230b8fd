// SPDX-License-Identifier: MIT
package device

import (
	"context"
	"fmt"
	"sync"
	"time"

	applog "ducker/internal/log"
)

// TickHandler is evaluated once per poll interval.
type TickHandler interface {
	OnTick(ctx context.Context)
}

// Poller is the device's outer polling loop. It calls its handler on a fixed
// interval from a single goroutine, so the handler never overlaps itself.
type Poller struct {
	handler  TickHandler
	interval time.Duration

	ticker   *time.Ticker
	cancel   context.CancelFunc
	doneChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	mu       sync.Mutex
}

// NewPoller creates a poller that calls handler every interval.
func NewPoller(interval time.Duration, handler TickHandler) (*Poller, error) {
	if handler == nil {
		return nil, fmt.Errorf("Poller: tick handler cannot be nil")
	}
	if interval <= 0 {
		return nil, fmt.Errorf("Poller: interval must be positive, got %s", interval)
	}
	return &Poller{handler: handler, interval: interval}, nil
}

// Start launches the polling goroutine. Each tick gets a context derived from
// ctx with a deadline of one interval; Stop cancels it. Calling Start while running is a
// no-op.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	if p.ticker != nil {
		p.mu.Unlock()
		applog.Warnf("Poller: Start called but already running.")
		return
	}

	tickCtx, cancel := context.WithCancel(ctx)
	p.ticker = time.NewTicker(p.interval)
	p.cancel = cancel
	p.doneChan = make(chan struct{})
	p.stopOnce = sync.Once{}

	ticker := p.ticker
	doneChan := p.doneChan
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		applog.Infof("Poller: Started (Interval: %s)", p.interval)
		for {
			select {
			case <-ticker.C:
				// A tick must not outlive its interval.
				ctx, cancelTick := context.WithTimeout(tickCtx, p.interval)
				p.handler.OnTick(ctx)
				cancelTick()
			case <-doneChan:
				return
			case <-tickCtx.Done():
				return
			}
		}
	}()
}

// Stop signals the polling goroutine to exit and waits for the current tick
// to finish. It is safe to call Stop multiple times.
func (p *Poller) Stop() error {
	p.mu.Lock()
	if p.ticker == nil {
		p.mu.Unlock()
		applog.Debugf("Poller: Stop called but not running.")
		return nil
	}

	p.stopOnce.Do(func() {
		close(p.doneChan)
		p.cancel()
		p.ticker.Stop()
		p.ticker = nil
	})
	p.mu.Unlock()

	p.wg.Wait()
	applog.Infof("Poller: Stopped.")
	return nil
}

// Close implements io.Closer.
func (p *Poller) Close() error {
	return p.Stop()
}
