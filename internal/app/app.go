// SPDX-License-Identifier: MIT
/*
Package app assembles the ducker from its parts and runs it.

The program has three phases:

 1. Startup (cold path): load the profile, open the mic level source, start
    the device command loop and the transports.
 2. Running (hot path): the poller ticks the engine at the configured
    interval while the monitor, the WebSocket server and the UDP publisher
    read its status.
 3. Shutdown (cold path): stop polling first so no tick is in flight, then
    close the transports, the device and the source.
*/
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"sync/atomic"
	"syscall"

	"ducker/internal/config"
	"ducker/internal/device"
	"ducker/internal/ducking"
	applog "ducker/internal/log"
	"ducker/internal/monitor"
	"ducker/internal/transport"
	"ducker/internal/transport/udp"
	"ducker/internal/tui"
)

// DeviceName names the simulated mixer in logs.
const DeviceName = "mixer"

// Options are run settings that only come from the command line.
type Options struct {
	// Headless runs without the terminal monitor until ctx is cancelled.
	Headless bool
}

// Ducker is a running ducker: the engine, the device it drives and the
// monitoring around them.
type Ducker struct {
	cfg *config.Config

	Engine *ducking.Engine
	Device *device.Device
	Hub    *monitor.Hub

	poller    *device.Poller
	publisher *udp.StatusPublisher
	ws        *transport.WebSocketTransport
	wsRef     *hubRef
	closeSrc  func() error

	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once

	mu        sync.Mutex
	threshold float64
}

// Start builds every component from cfg and starts polling. Stop must be
// called to release them.
func Start(ctx context.Context, cfg *config.Config) (*Ducker, error) {
	duck, err := LoadProfile(cfg.Profile)
	if err != nil {
		return nil, err
	}

	src, closeSrc, err := OpenSource(cfg)
	if err != nil {
		return nil, err
	}

	d := &Ducker{cfg: cfg, closeSrc: closeSrc, threshold: duck.Gate.ThresholdDB}
	ctx, d.cancel = context.WithCancel(ctx)

	// Anything that fails from here on unwinds what was started.
	ok := false
	defer func() {
		if !ok {
			d.Stop()
		}
	}()

	d.Device, err = device.New(DeviceName, src, cfg.Device.ReplyTimeout)
	if err != nil {
		return nil, err
	}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		if err := d.Device.Run(ctx); err != nil {
			applog.Errorf("Device: %v", err)
		}
	}()

	d.Engine, err = ducking.NewEngine(d.Device, cfg.TickInterval)
	if err != nil {
		return nil, err
	}

	transports, err := d.newTransports(cfg.Transport)
	if err != nil {
		return nil, err
	}
	d.Hub = monitor.NewHub(transports...)
	if d.wsRef != nil {
		d.wsRef.Store(d.Hub)
	}
	d.Engine.SetObserver(d.Hub)
	d.Engine.Load(duck)

	if cfg.Transport.UDPEnabled {
		sender, err := udp.NewUDPSender(cfg.Transport.UDPTargetAddress)
		if err != nil {
			return nil, fmt.Errorf("create UDP sender: %w", err)
		}
		d.publisher, err = udp.NewStatusPublisher(cfg.Transport.UDPSendInterval, sender, d.Hub)
		if err != nil {
			_ = sender.Close()
			return nil, err
		}
		closeSender := sender.Close
		prevClose := d.closeSrc
		d.closeSrc = func() error {
			return errors.Join(closeSender(), prevClose())
		}
		d.publisher.Start()
	}

	d.poller, err = device.NewPoller(cfg.TickInterval, d.Engine)
	if err != nil {
		return nil, err
	}
	d.poller.Start(ctx)

	ok = true
	applog.Infof("Ducker: Running (tick %s, source %s)", cfg.TickInterval, cfg.Device.Source)
	return d, nil
}

// hubRef lets a transport created before the hub read the hub's snapshot.
type hubRef struct{ atomic.Pointer[monitor.Hub] }

func (r *hubRef) snapshot() any {
	if h := r.Load(); h != nil {
		return h.Snapshot()
	}
	return ducking.Status{}
}

func (d *Ducker) newTransports(cfg config.TransportConfig) ([]transport.Transport, error) {
	var ts []transport.Transport
	if cfg.LogEmissions {
		ts = append(ts, transport.NewLoggingTransport())
	}
	if cfg.WSEnabled {
		ref := &hubRef{}
		ws, err := transport.NewWebSocketTransport(cfg.WSAddress, ref.snapshot)
		if err != nil {
			for _, t := range ts {
				_ = t.Close()
			}
			return nil, fmt.Errorf("start WebSocket server: %w", err)
		}
		ts = append(ts, ws)
		d.wsRef = ref
		d.ws = ws
	}
	return ts, nil
}

// Reload re-reads the profile file and loads it into the engine. It returns
// the new gate threshold.
func (d *Ducker) Reload() (float64, error) {
	if d.cfg.Profile == "" {
		return 0, errors.New("no profile file to reload")
	}
	duck, err := LoadProfile(d.cfg.Profile)
	if err != nil {
		applog.Warnf("Profile: Reload failed, keeping the current profile: %v", err)
		return 0, err
	}
	d.Engine.Load(duck)

	d.mu.Lock()
	d.threshold = duck.Gate.ThresholdDB
	d.mu.Unlock()
	applog.Infof("Profile: Reloaded %s", d.cfg.Profile)
	return duck.Gate.ThresholdDB, nil
}

// Threshold returns the gate threshold of the loaded profile.
func (d *Ducker) Threshold() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.threshold
}

// WebSocketAddr returns the WebSocket listen address, or "" when disabled.
func (d *Ducker) WebSocketAddr() string {
	if d.ws == nil {
		return ""
	}
	return d.ws.Addr().String()
}

// Stop shuts the ducker down in reverse start order. It is safe to call more
// than once.
func (d *Ducker) Stop() error {
	var errs []error
	d.stopOnce.Do(func() {
		// No tick may be in flight while the device goes away.
		if d.poller != nil {
			errs = append(errs, d.poller.Stop())
		}
		if d.publisher != nil {
			errs = append(errs, d.publisher.Stop())
		}
		if d.Hub != nil {
			errs = append(errs, d.Hub.Close())
		}
		d.cancel()
		d.wg.Wait()
		if d.closeSrc != nil {
			errs = append(errs, d.closeSrc())
		}
		applog.Infof("Ducker: Stopped")
	})
	return errors.Join(errs...)
}

// Run starts the ducker, reloads the profile on SIGHUP and runs until the
// user quits the monitor or, when headless, until ctx is cancelled.
func Run(ctx context.Context, cfg *config.Config, opts Options) (err error) {
	d, err := Start(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if stopErr := d.Stop(); stopErr != nil && err == nil {
			err = stopErr
		}
	}()

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-hup:
				if _, err := d.Reload(); err != nil {
					applog.Warnf("Ducker: SIGHUP reload: %v", err)
				}
			}
		}
	}()

	if addr := d.WebSocketAddr(); addr != "" {
		applog.Infof("Ducker: Status on ws://%s/ws", addr)
	}

	if opts.Headless {
		<-ctx.Done()
		applog.Infof("Ducker: Shutting down (%v)", context.Cause(ctx))
		return nil
	}

	// The monitor owns the terminal, so logs go to a file while it runs.
	logPath := filepath.Join(os.TempDir(), "ducker.log")
	if f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644); err == nil {
		applog.Infof("Ducker: Logging to %s while the monitor runs", logPath)
		applog.SetOutput(f)
		defer func() {
			applog.SetOutput(nil)
			f.Close()
		}()
	}

	var reload tui.ReloadFunc
	if cfg.Profile != "" {
		reload = d.Reload
	}
	model := tui.NewMonitorModel(d.Hub, d.Device, reload, d.Threshold())
	return tui.RunMonitor(ctx, model)
}
