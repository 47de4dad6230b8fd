// SPDX-License-Identifier: MIT
package transport

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"ducker/internal/ducking"
	applog "ducker/internal/log"
)

func dial(t *testing.T, wst *WebSocketTransport) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial("ws://"+wst.Addr().String()+"/ws", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	return conn
}

func waitForClients(t *testing.T, wst *WebSocketTransport, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for wst.Clients() != n {
		if time.Now().After(deadline) {
			t.Fatalf("clients = %d, want %d", wst.Clients(), n)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestWebSocketBroadcastsStatus(t *testing.T) {
	snapshot := ducking.Status{Enabled: true, Phase: ducking.PhaseIdle, Volume: 100}
	wst, err := NewWebSocketTransport("127.0.0.1:0", func() any { return snapshot })
	if err != nil {
		t.Fatalf("NewWebSocketTransport: %v", err)
	}
	defer wst.Close()

	a := dial(t, wst)
	b := dial(t, wst)

	for _, conn := range []*websocket.Conn{a, b} {
		var got ducking.Status
		if err := conn.ReadJSON(&got); err != nil {
			t.Fatalf("read snapshot: %v", err)
		}
		if got.Phase != ducking.PhaseIdle || got.Volume != 100 {
			t.Errorf("snapshot = %+v", got)
		}
	}
	waitForClients(t, wst, 2)

	status := ducking.Status{Enabled: true, Phase: ducking.PhaseDucked, Volume: 30, Emitted: true, Reasons: []string{"mic"}}
	if err := wst.Send(status); err != nil {
		t.Fatalf("Send: %v", err)
	}
	for i, conn := range []*websocket.Conn{a, b} {
		var raw map[string]any
		if err := conn.ReadJSON(&raw); err != nil {
			t.Fatalf("client %d read: %v", i, err)
		}
		if raw["phase"] != "ducked" || raw["volume"] != float64(30) {
			t.Errorf("client %d got %v", i, raw)
		}
	}
}

func TestWebSocketClientDisconnect(t *testing.T) {
	wst, err := NewWebSocketTransport("127.0.0.1:0", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer wst.Close()

	conn := dial(t, wst)
	waitForClients(t, wst, 1)
	conn.Close()
	waitForClients(t, wst, 0)
}

func TestWebSocketClose(t *testing.T) {
	wst, err := NewWebSocketTransport("127.0.0.1:0", nil)
	if err != nil {
		t.Fatal(err)
	}
	conn := dial(t, wst)
	waitForClients(t, wst, 1)

	if err := wst.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Error("client still connected after Close")
	}
	if err := wst.Send("late"); !errors.Is(err, ErrClosed) {
		t.Errorf("Send after Close = %v, want ErrClosed", err)
	}
	if err := wst.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

func TestWebSocketListenError(t *testing.T) {
	wst, err := NewWebSocketTransport("127.0.0.1:0", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer wst.Close()

	if _, err := NewWebSocketTransport(wst.Addr().String(), nil); err == nil {
		t.Error("expected error listening on a busy address")
	}
}

func TestLoggingTransport(t *testing.T) {
	var buf bytes.Buffer
	applog.SetOutput(&buf)
	prev := applog.GetLevel()
	applog.SetLevel(applog.LevelInfo)
	t.Cleanup(func() {
		applog.SetOutput(nil)
		applog.SetLevel(prev)
	})

	lt := NewLoggingTransport()
	if err := lt.Send(ducking.Status{Phase: ducking.PhaseEnteringDuck, Volume: 80, Emitted: true, Reasons: []string{"mic"}}); err != nil {
		t.Fatal(err)
	}
	if err := lt.Send(ducking.Status{Phase: ducking.PhaseIdle}); err != nil {
		t.Fatal(err)
	}
	if err := lt.Send(42); err != nil {
		t.Fatal(err)
	}
	if err := lt.Close(); err != nil {
		t.Fatal(err)
	}

	out := buf.String()
	if !strings.Contains(out, "entering_duck, volume 80 (reasons: mic") {
		t.Errorf("emission not logged at info: %q", out)
	}
	if strings.Contains(out, "idle") || strings.Contains(out, "Received") {
		t.Errorf("non-emissions logged above debug: %q", out)
	}
}
