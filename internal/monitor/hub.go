// SPDX-License-Identifier: MIT
/*
Package monitor collects the ducker's per-tick status and hands it to the
outside world.

The engine calls Hub.Observe on its ticking goroutine with its lock held, so
Observe only stores the status and queues it. A single dispatch goroutine
forwards queued statuses to every transport; when transports fall behind,
statuses are dropped rather than delaying the next tick.
*/
package monitor

import (
	"sync"
	"sync/atomic"

	"ducker/internal/ducking"
	applog "ducker/internal/log"
	"ducker/internal/transport"
)

const queueSize = 64

// Hub keeps the latest status and fans interesting ones out to transports.
type Hub struct {
	transports []transport.Transport

	latest  atomic.Pointer[ducking.Status]
	ticks   atomic.Uint64
	dropped atomic.Uint64

	// lastPhase and generation are only touched by Observe, which the engine
	// serialises.
	lastPhase  ducking.Phase
	generation uint64
	queue      chan ducking.Status
	done       chan struct{}
	closeOnce  sync.Once
	wg         sync.WaitGroup
}

var _ ducking.Observer = (*Hub)(nil)

// NewHub starts a hub publishing to transports.
func NewHub(transports ...transport.Transport) *Hub {
	h := &Hub{
		transports: transports,
		queue:      make(chan ducking.Status, queueSize),
		done:       make(chan struct{}),
	}
	h.latest.Store(&ducking.Status{})

	h.wg.Add(1)
	go h.dispatch()
	return h
}

// Observe records s. Emissions and phase changes are queued for the
// transports; quiet ticks only update Latest.
func (h *Hub) Observe(s ducking.Status) {
	h.latest.Store(&s)
	h.ticks.Add(1)

	// A reload resets the engine to idle; that is not a phase change.
	if s.Generation != h.generation {
		h.generation = s.Generation
		h.lastPhase = ducking.PhaseIdle
	}

	if !s.Emitted && s.Phase == h.lastPhase {
		return
	}
	h.lastPhase = s.Phase

	select {
	case <-h.done:
		return
	default:
	}
	select {
	case h.queue <- s:
	default:
		h.dropped.Add(1)
	}
}

// Latest returns the most recently observed status.
func (h *Hub) Latest() ducking.Status {
	return *h.latest.Load()
}

// Snapshot returns Latest as an any, for transports that greet new clients.
func (h *Hub) Snapshot() any {
	return h.Latest()
}

// Ticks returns how many statuses have been observed.
func (h *Hub) Ticks() uint64 {
	return h.ticks.Load()
}

// Dropped returns how many statuses were discarded because the queue was full.
func (h *Hub) Dropped() uint64 {
	return h.dropped.Load()
}

func (h *Hub) dispatch() {
	defer h.wg.Done()
	for {
		select {
		case <-h.done:
			return
		case s := <-h.queue:
			for _, t := range h.transports {
				if err := t.Send(s); err != nil {
					applog.Warnf("Monitor: Error sending status to %T: %v", t, err)
				}
			}
		}
	}
}

// Close stops dispatching and closes every transport.
func (h *Hub) Close() error {
	var firstErr error
	h.closeOnce.Do(func() {
		close(h.done)
		h.wg.Wait()
		for _, t := range h.transports {
			if err := t.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	})
	return firstErr
}
