// SPDX-License-Identifier: MIT
/*
Package ducking implements the mixer's audio ducker: while the microphone is
active, the volume of selected routing cells is walked down a transition
table, and walked back up once it goes quiet.

Per tick:
  - every enabled input is sampled from the hardware and passed through a
    simulated noise gate,
  - the gated result updates the set of active ducking reasons,
  - the transition state machine decides whether a table step fires,
  - a fired step is written to every duck-routed cell and committed.

Thread Safety:
  - The Engine owns all runtime state. OnTick and Load serialise on a mutex;
    a tick that overlaps a running tick is dropped rather than queued.
  - Hardware failures never abort a tick past the step that failed.
*/
package ducking

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	applog "ducker/internal/log"
)

// LevelReader provides the monitored source levels.
type LevelReader interface {
	// ReadLevel performs a hardware round-trip for the current level in dB.
	ReadLevel(ctx context.Context, src Input) (float64, error)
	// SourceMuted reports whether src is hard-muted upstream.
	SourceMuted(src Input) bool
}

// Hardware is everything the engine needs from the device.
type Hardware interface {
	LevelReader
	Router
}

// Status is a copy of the engine state taken at the end of a tick.
type Status struct {
	Time       time.Time `json:"time"`
	Enabled    bool      `json:"enabled"`
	Phase      Phase     `json:"phase"`
	Requesting bool      `json:"requesting"`
	Reasons    []string  `json:"reasons"`
	RawDB      float64   `json:"raw_db"`
	GatedDB    float64   `json:"gated_db"`
	Volume     uint8     `json:"volume"`
	Emitted    bool      `json:"emitted"`
	DuckStep   int       `json:"duck_step"`
	UnduckStep int       `json:"unduck_step"`
	// Generation counts Load calls. It changes when the state was reset.
	Generation uint64     `json:"generation"`
}

// Observer receives a Status after every evaluated tick. It is called on the
// ticking goroutine with the engine locked and must not block.
type Observer interface {
	Observe(Status)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(Status)

// Observe calls f(s).
func (f ObserverFunc) Observe(s Status) { f(s) }

// ErrInvalidTick is returned by NewEngine for a non-positive tick interval.
var ErrInvalidTick = errors.New("ducking: tick interval must be positive")

// Engine is the ducker. It owns the gates, the reason set and the transition
// state, and drives the routing through Hardware on every OnTick.
type Engine struct {
	hw       Hardware
	tick     time.Duration
	observer Observer
	now      func() time.Time

	mu         sync.Mutex
	cfg        *Config
	gates      [InputCount]NoiseGate
	reasons    *Reasons
	transition Transition

	rawDB      float64
	gatedDB    float64
	lastVolume uint8
	generation uint64
}

// NewEngine creates an engine that is evaluated every tick. It starts with
// no configuration and does nothing until Load is called.
func NewEngine(hw Hardware, tick time.Duration) (*Engine, error) {
	if tick <= 0 {
		return nil, ErrInvalidTick
	}
	if hw == nil {
		return nil, errors.New("ducking: hardware cannot be nil")
	}

	e := &Engine{
		hw:      hw,
		tick:    tick,
		now:     time.Now,
		reasons: NewReasons(),
	}
	e.reset()
	return e, nil
}

// SetObserver installs o as the tick observer. Pass nil to remove it.
func (e *Engine) SetObserver(o Observer) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.observer = o
}

// SetClock replaces the clock used to timestamp statuses. Simulations pass a
// clock that advances one tick per OnTick.
func (e *Engine) SetClock(now func() time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.now = now
}

// Tick returns the interval the engine assumes between OnTick calls.
func (e *Engine) Tick() time.Duration {
	return e.tick
}

// Load replaces the active configuration and resets all runtime state to
// Idle. It waits for an in-flight tick to finish, so a tick only ever sees
// one configuration.
func (e *Engine) Load(cfg Config) {
	c := cfg.Clone()

	e.mu.Lock()
	defer e.mu.Unlock()

	e.cfg = &c
	e.reset()
	e.generation++

	applog.Debugf("Ducker: Loaded configuration (Enabled: %v, Duck steps: %d, Unduck steps: %d)",
		c.Enabled, len(c.DuckSteps), len(c.UnduckSteps))
}

// Active reports whether the loaded configuration can duck at all.
func (e *Engine) Active() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cfg != nil && e.cfg.Enabled && e.cfg.Active()
}

// Snapshot returns the current state without evaluating a tick.
func (e *Engine) Snapshot() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status(false)
}

// OnTick evaluates one tick. It must be called once per tick interval from a
// single goroutine; an overlapping call is dropped.
func (e *Engine) OnTick(ctx context.Context) {
	if !e.mu.TryLock() {
		applog.Warnf("Ducker: Tick dropped, previous tick still running")
		return
	}
	defer e.mu.Unlock()

	cfg := e.cfg
	if cfg == nil || !cfg.Enabled || !cfg.Active() {
		return
	}

	if !cfg.HasTransitions() {
		applog.Debugf("Ducker: Either ducking or unducking transition is empty")
		return
	}

	e.sample(ctx, cfg)

	volume, fired := e.transition.Advance(e.reasons.Requesting(), e.tick, cfg)
	if fired {
		e.lastVolume = volume
		res := Apply(ctx, e.hw, &cfg.OutputRouting, volume)
		applog.Debugf("Ducker: Step to %d in %s (cells: %d ok/%d failed, channels: %d ok/%d failed)",
			volume, e.transition.Phase(), res.CellsWritten, res.CellsFailed,
			res.ChannelsCommitted, res.ChannelsFailed)
	}

	if e.observer != nil {
		e.observer.Observe(e.status(fired))
	}
}

// sample reads every enabled input and updates the reason set. A source with
// no reading this tick keeps its previous reason state.
func (e *Engine) sample(ctx context.Context, cfg *Config) {
	for src := Input(0); src < InputCount; src++ {
		if !cfg.InputSources[src] {
			continue
		}

		raw, err := e.hw.ReadLevel(ctx, src)
		if err != nil {
			applog.Debugf("Ducker: Couldn't retrieve %s level: %v", src, err)
			continue
		}
		if math.IsNaN(raw) {
			applog.Debugf("Ducker: Ignoring malformed %s level", src)
			continue
		}

		gated := e.gates[src].Evaluate(raw, e.tick, cfg.Gate, e.hw.SourceMuted(src))
		e.reasons.Update(src.String(), Triggering(gated, cfg.Gate))

		if src == InputMic {
			e.rawDB = raw
			e.gatedDB = gated
		}
	}
}

func (e *Engine) reset() {
	for i := range e.gates {
		e.gates[i].Reset()
	}
	e.reasons.Clear()
	e.transition.Reset()
	e.rawDB = FloorDB
	e.gatedDB = FloorDB
	e.lastVolume = 0
}

func (e *Engine) status(emitted bool) Status {
	return Status{
		Time:       e.now(),
		Enabled:    e.cfg != nil && e.cfg.Enabled,
		Phase:      e.transition.phase,
		Requesting: e.reasons.Requesting(),
		Reasons:    e.reasons.Active(),
		RawDB:      e.rawDB,
		GatedDB:    e.gatedDB,
		Volume:     e.lastVolume,
		Emitted:    emitted,
		DuckStep:   e.transition.duckIndex,
		UnduckStep: e.transition.unduckIndex,
		Generation: e.generation,
	}
}
