// SPDX-License-Identifier: MIT
package device

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"ducker/internal/ducking"
	"ducker/pkg/utils"
)

type errSource struct{ err error }

func (s errSource) Level() (float64, error) { return 0, s.err }

// runDevice starts the command loop and stops it when the test ends.
func runDevice(t *testing.T, d *Device) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = d.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func TestNewDevice(t *testing.T) {
	if _, err := New("test", nil, 0); err == nil {
		t.Error("nil source: expected error")
	}

	d, err := New("test", NewStaticSource(-30), 0)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if d.replyTimeout != DefaultReplyTimeout {
		t.Errorf("reply timeout = %s, want %s", d.replyTimeout, DefaultReplyTimeout)
	}
	if got := d.Committed(ducking.ChannelMusic, ducking.OutputHeadphones); got != MaxVolume {
		t.Errorf("initial volume = %d, want %d", got, MaxVolume)
	}
}

func TestDeviceReadLevel(t *testing.T) {
	src := NewStaticSource(-12.5)
	d, err := New("test", src, 0)
	if err != nil {
		t.Fatal(err)
	}
	runDevice(t, d)

	db, err := d.ReadLevel(context.Background(), ducking.InputMic)
	if err != nil {
		t.Fatalf("ReadLevel: %v", err)
	}
	if db != -12.5 {
		t.Errorf("level = %.2f, want -12.5", db)
	}

	src.Set(-40)
	if db, _ = d.ReadLevel(context.Background(), ducking.InputMic); db != -40 {
		t.Errorf("level after Set = %.2f, want -40", db)
	}

	if _, err := d.ReadLevel(context.Background(), ducking.InputCount); !errors.Is(err, ErrUnknownChannel) {
		t.Errorf("unknown input: err = %v, want ErrUnknownChannel", err)
	}
}

func TestDeviceReadLevelSourceError(t *testing.T) {
	errMeter := errors.New("meter overflow")
	d, err := New("test", errSource{err: errMeter}, 0)
	if err != nil {
		t.Fatal(err)
	}
	runDevice(t, d)

	if _, err := d.ReadLevel(context.Background(), ducking.InputMic); !errors.Is(err, errMeter) {
		t.Errorf("err = %v, want wrapped source error", err)
	}
}

func TestDeviceFailureModes(t *testing.T) {
	t.Run("No reply before Run", func(t *testing.T) {
		d, err := New("test", NewStaticSource(0), 5*time.Millisecond)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := d.ReadLevel(context.Background(), ducking.InputMic); !errors.Is(err, ErrNoReply) {
			t.Errorf("ReadLevel err = %v, want ErrNoReply", err)
		}
		if err := d.CommitChannel(context.Background(), ducking.ChannelMusic); !errors.Is(err, ErrNoReply) {
			t.Errorf("CommitChannel err = %v, want ErrNoReply", err)
		}
	})

	t.Run("Disconnected after Run returns", func(t *testing.T) {
		d, err := New("test", NewStaticSource(0), time.Second)
		if err != nil {
			t.Fatal(err)
		}
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		if err := d.Run(ctx); err != nil {
			t.Fatalf("Run: %v", err)
		}
		if _, err := d.ReadLevel(context.Background(), ducking.InputMic); !errors.Is(err, ErrDisconnected) {
			t.Errorf("ReadLevel err = %v, want ErrDisconnected", err)
		}
		if err := d.Run(context.Background()); err == nil {
			t.Error("second Run: expected error")
		}
	})

	t.Run("Caller context cancelled", func(t *testing.T) {
		d, err := New("test", NewStaticSource(0), time.Second)
		if err != nil {
			t.Fatal(err)
		}
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		if _, err := d.ReadLevel(ctx, ducking.InputMic); !errors.Is(err, context.Canceled) {
			t.Errorf("ReadLevel err = %v, want context.Canceled", err)
		}
	})
}

func TestDeviceRoutingCommit(t *testing.T) {
	d, err := New("test", NewStaticSource(0), 0)
	if err != nil {
		t.Fatal(err)
	}
	runDevice(t, d)

	in, out := ducking.ChannelMusic, ducking.OutputBroadcastMix
	if err := d.SetRoutingCell(in, out, 40); err != nil {
		t.Fatalf("SetRoutingCell: %v", err)
	}
	if got := d.Routing(in, out); got != 40 {
		t.Errorf("staged volume = %d, want 40", got)
	}
	if got := d.Committed(in, out); got != MaxVolume {
		t.Errorf("committed before commit = %d, want %d", got, MaxVolume)
	}

	if err := d.CommitChannel(context.Background(), in); err != nil {
		t.Fatalf("CommitChannel: %v", err)
	}
	if got := d.Committed(in, out); got != 40 {
		t.Errorf("committed volume = %d, want 40", got)
	}
	if got := d.Committed(ducking.ChannelGame, out); got != MaxVolume {
		t.Errorf("other row changed to %d", got)
	}
	if d.Commits() != 1 {
		t.Errorf("commits = %d, want 1", d.Commits())
	}
}

func TestDeviceRoutingValidation(t *testing.T) {
	d, err := New("test", NewStaticSource(0), 0)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		desc    string
		in      ducking.InputChannel
		out     ducking.OutputChannel
		volume  uint8
		wantErr error
	}{
		{"Valid cell", ducking.ChannelChat, ducking.OutputLineOut, 100, nil},
		{"Volume above max", ducking.ChannelChat, ducking.OutputLineOut, 101, nil},
		{"Unknown input", ducking.InputChannelCount, ducking.OutputLineOut, 50, ErrUnknownChannel},
		{"Unknown output", ducking.ChannelChat, ducking.OutputChannelCount, 50, ErrUnknownChannel},
	}

	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			err := d.SetRoutingCell(tt.in, tt.out, tt.volume)
			switch {
			case tt.wantErr != nil:
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("err = %v, want %v", err, tt.wantErr)
				}
			case tt.volume > MaxVolume:
				if err == nil {
					t.Error("expected range error")
				}
			case err != nil:
				t.Errorf("unexpected error: %v", err)
			}
		})
	}

	if err := d.CommitChannel(context.Background(), ducking.InputChannelCount); !errors.Is(err, ErrUnknownChannel) {
		t.Errorf("commit unknown input: err = %v, want ErrUnknownChannel", err)
	}
}

func TestDeviceMute(t *testing.T) {
	d, err := New("test", NewStaticSource(0), 0)
	if err != nil {
		t.Fatal(err)
	}

	if d.SourceMuted(ducking.InputMic) {
		t.Fatal("mic starts muted")
	}
	muted, err := d.ToggleMute(ducking.InputMic)
	if err != nil || !muted || !d.SourceMuted(ducking.InputMic) {
		t.Errorf("after toggle: muted=%v err=%v, want muted", muted, err)
	}
	if err := d.SetMuted(ducking.InputMic, false); err != nil {
		t.Fatal(err)
	}
	if d.SourceMuted(ducking.InputMic) {
		t.Error("SetMuted(false) left mic muted")
	}
	if _, err := d.ToggleMute(ducking.InputCount); !errors.Is(err, ErrUnknownChannel) {
		t.Errorf("toggle unknown input: err = %v", err)
	}
	if d.SourceMuted(ducking.InputCount) {
		t.Error("unknown input reported muted")
	}
}

// The device and the ducker together: a loud mic ducks music through the
// command loop exactly as it would on hardware.
func TestDeviceDrivesEngine(t *testing.T) {
	src := NewStaticSource(-5)
	d, err := New("test", src, 0)
	if err != nil {
		t.Fatal(err)
	}
	runDevice(t, d)

	e, err := ducking.NewEngine(d, 20*time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	cfg := ducking.Config{
		Enabled:     true,
		AttackTime:  40 * time.Millisecond,
		ReleaseTime: 40 * time.Millisecond,
		DuckSteps:   []ducking.Step{{RouteVolume: 30}},
		UnduckSteps: []ducking.Step{{RouteVolume: 100}},
		Gate:        ducking.GateParams{ThresholdDB: -20},
	}
	cfg.InputSources[ducking.InputMic] = true
	cfg.OutputRouting.Set(ducking.ChannelMusic, ducking.OutputHeadphones, true)
	e.Load(cfg)

	for i := 0; i < 5; i++ {
		e.OnTick(context.Background())
	}
	if got := d.Committed(ducking.ChannelMusic, ducking.OutputHeadphones); got != 30 {
		t.Errorf("ducked volume = %d, want 30", got)
	}

	src.Set(math.Inf(-1))
	for i := 0; i < 5; i++ {
		e.OnTick(context.Background())
	}
	if got := d.Committed(ducking.ChannelMusic, ducking.OutputHeadphones); got != 100 {
		t.Errorf("restored volume = %d, want 100", got)
	}
}

// A scripted speech burst ducks once and restores once. A failing source in
// between keeps the duck held.
func TestDeviceScriptedBurst(t *testing.T) {
	script := utils.NewLevelScript(append(utils.Repeat(-5, 5), utils.Repeat(-70, 10)...)...)
	d, err := New("test", script, 0)
	if err != nil {
		t.Fatal(err)
	}
	runDevice(t, d)

	e, err := ducking.NewEngine(d, 20*time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	cfg := ducking.Config{
		Enabled:     true,
		AttackTime:  40 * time.Millisecond,
		ReleaseTime: 40 * time.Millisecond,
		DuckSteps:   []ducking.Step{{RouteVolume: 30}},
		UnduckSteps: []ducking.Step{{RouteVolume: 100}},
		Gate:        ducking.GateParams{ThresholdDB: -20},
	}
	cfg.InputSources[ducking.InputMic] = true
	cfg.OutputRouting.Set(ducking.ChannelGame, ducking.OutputHeadphones, true)
	e.Load(cfg)

	for range 5 {
		e.OnTick(context.Background())
	}
	if got := d.Committed(ducking.ChannelGame, ducking.OutputHeadphones); got != 30 {
		t.Fatalf("ducked volume = %d, want 30", got)
	}

	script.Fail(errors.New("usb stall"))
	for range 5 {
		e.OnTick(context.Background())
	}
	if got := d.Committed(ducking.ChannelGame, ducking.OutputHeadphones); got != 30 {
		t.Errorf("volume during read failures = %d, want 30", got)
	}

	script.Fail(nil)
	for range 10 {
		e.OnTick(context.Background())
	}
	if got := d.Committed(ducking.ChannelGame, ducking.OutputHeadphones); got != 100 {
		t.Errorf("restored volume = %d, want 100", got)
	}
	if d.Commits() != 2 {
		t.Errorf("commits = %d, want 2", d.Commits())
	}
	if script.Calls() != 15 {
		t.Errorf("level reads = %d, want 15", script.Calls())
	}
}

func TestStaticSource(t *testing.T) {
	tests := []struct {
		desc string
		in   float64
		want float64
	}{
		{"In range", -18, -18},
		{"Above zero", 3, 3},
		{"Below floor", -120, ducking.FloorDB},
		{"Negative infinity", math.Inf(-1), ducking.FloorDB},
		{"NaN", math.NaN(), ducking.FloorDB},
	}

	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			got, err := NewStaticSource(tt.in).Level()
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("Level() = %.2f, want %.2f", got, tt.want)
			}
		})
	}
}

type countingHandler struct {
	mu    sync.Mutex
	ticks int
	ctxs  []context.Context
}

func (h *countingHandler) OnTick(ctx context.Context) {
	h.mu.Lock()
	h.ticks++
	h.ctxs = append(h.ctxs, ctx)
	h.mu.Unlock()
}

func (h *countingHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.ticks
}

func TestNewPollerValidation(t *testing.T) {
	if _, err := NewPoller(time.Millisecond, nil); err == nil {
		t.Error("nil handler: expected error")
	}
	if _, err := NewPoller(0, &countingHandler{}); err == nil {
		t.Error("zero interval: expected error")
	}
}

func TestPollerStartStop(t *testing.T) {
	h := &countingHandler{}
	p, err := NewPoller(2*time.Millisecond, h)
	if err != nil {
		t.Fatal(err)
	}

	p.Start(context.Background())
	p.Start(context.Background()) // second Start is ignored

	deadline := time.Now().Add(time.Second)
	for h.count() < 3 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if h.count() < 3 {
		t.Fatalf("ticks = %d after 1s, want at least 3", h.count())
	}

	if err := p.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	stopped := h.count()
	time.Sleep(10 * time.Millisecond)
	if h.count() != stopped {
		t.Errorf("ticks continued after Stop: %d -> %d", stopped, h.count())
	}

	h.mu.Lock()
	ctx := h.ctxs[0]
	h.mu.Unlock()
	if _, ok := ctx.Deadline(); !ok {
		t.Error("tick context has no deadline")
	}
	if ctx.Err() == nil {
		t.Error("tick context still live after Stop")
	}

	if err := p.Close(); err != nil {
		t.Errorf("second stop: %v", err)
	}
}

func TestPollerRestart(t *testing.T) {
	h := &countingHandler{}
	p, err := NewPoller(time.Millisecond, h)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 2; i++ {
		p.Start(context.Background())
		time.Sleep(5 * time.Millisecond)
		if err := p.Stop(); err != nil {
			t.Fatalf("Stop %d: %v", i, err)
		}
	}
	if h.count() == 0 {
		t.Error("restarted poller never ticked")
	}
}

func TestPollerParentCancel(t *testing.T) {
	h := &countingHandler{}
	p, err := NewPoller(time.Millisecond, h)
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	p.Start(ctx)
	cancel()

	done := make(chan struct{})
	go func() {
		_ = p.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop hung after parent cancel")
	}
}
