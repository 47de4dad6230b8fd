// SPDX-License-Identifier: MIT
package transport

import (
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	applog "ducker/internal/log"
)

const (
	wsBroadcastQueue = 256
	wsWriteTimeout   = time.Second
)

// WebSocketTransport implements the Transport interface for WebSocket
// connections. Every value sent is broadcast as JSON to all clients on /ws.
type WebSocketTransport struct {
	upgrader  websocket.Upgrader
	clients   map[*websocket.Conn]bool
	clientsMu sync.Mutex
	broadcast chan any
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup

	listener net.Listener
	server   *http.Server

	// snapshot, if set, is sent to each client as it connects.
	snapshot func() any
}

// NewWebSocketTransport listens on addr and starts serving /ws.
// snapshot may be nil.
func NewWebSocketTransport(addr string, snapshot func() any) (*WebSocketTransport, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	wst := &WebSocketTransport{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true // Monitors are served from anywhere on the LAN.
			},
		},
		clients:   make(map[*websocket.Conn]bool),
		broadcast: make(chan any, wsBroadcastQueue),
		done:      make(chan struct{}),
		listener:  ln,
		snapshot:  snapshot,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", wst.handleWebSocket)
	wst.server = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	wst.wg.Add(2)
	go func() {
		defer wst.wg.Done()
		applog.Infof("WebSocketTransport: Starting WebSocket server on %s", ln.Addr())
		if err := wst.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			applog.Errorf("WebSocketTransport: Server error: %v", err)
		}
	}()
	go wst.handleBroadcasts()

	return wst, nil
}

// Addr returns the address the server is listening on.
func (wst *WebSocketTransport) Addr() net.Addr {
	return wst.listener.Addr()
}

// Clients returns the number of connected clients.
func (wst *WebSocketTransport) Clients() int {
	wst.clientsMu.Lock()
	defer wst.clientsMu.Unlock()
	return len(wst.clients)
}

// handleWebSocket upgrades HTTP connections to WebSocket.
func (wst *WebSocketTransport) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := wst.upgrader.Upgrade(w, r, nil)
	if err != nil {
		applog.Warnf("WebSocketTransport: Upgrade error: %v", err)
		return
	}

	// Register and greet under the lock so a broadcast cannot interleave.
	wst.clientsMu.Lock()
	select {
	case <-wst.done:
		wst.clientsMu.Unlock()
		conn.Close()
		return
	default:
	}
	if wst.snapshot != nil {
		if err := wst.write(conn, wst.snapshot()); err != nil {
			wst.clientsMu.Unlock()
			applog.Warnf("WebSocketTransport: Error sending snapshot: %v", err)
			conn.Close()
			return
		}
	}
	wst.clients[conn] = true
	total := len(wst.clients)
	wst.clientsMu.Unlock()
	applog.Infof("WebSocketTransport: Client connected, total: %d", total)

	// Clients never send; a read error means they went away.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
		wst.clientsMu.Lock()
		if wst.clients[conn] {
			delete(wst.clients, conn)
			conn.Close()
		}
		total := len(wst.clients)
		wst.clientsMu.Unlock()
		applog.Infof("WebSocketTransport: Client disconnected, total: %d", total)
	}()
}

func (wst *WebSocketTransport) write(conn *websocket.Conn, data any) error {
	conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return conn.WriteJSON(data)
}

// handleBroadcasts sends messages to all connected clients.
func (wst *WebSocketTransport) handleBroadcasts() {
	defer wst.wg.Done()
	for {
		select {
		case <-wst.done:
			return
		case data := <-wst.broadcast:
			wst.clientsMu.Lock()
			for client := range wst.clients {
				if err := wst.write(client, data); err != nil {
					applog.Warnf("WebSocketTransport: Error sending to client: %v", err)
					client.Close()
					delete(wst.clients, client)
				}
			}
			wst.clientsMu.Unlock()
		}
	}
}

// Send queues data for broadcast. When the queue is full the data is dropped.
func (wst *WebSocketTransport) Send(data any) error {
	select {
	case <-wst.done:
		return ErrClosed
	default:
	}

	select {
	case wst.broadcast <- data:
	default:
		applog.Debugf("WebSocketTransport: Broadcast queue full, dropping %T", data)
	}
	return nil
}

// Close disconnects every client and shuts down the server.
func (wst *WebSocketTransport) Close() error {
	var err error
	wst.closeOnce.Do(func() {
		applog.Infof("WebSocketTransport: Closing server")
		close(wst.done)

		wst.clientsMu.Lock()
		for client := range wst.clients {
			client.Close()
		}
		wst.clients = make(map[*websocket.Conn]bool)
		wst.clientsMu.Unlock()

		err = wst.server.Close()
		wst.wg.Wait()
	})
	return err
}

// Ensure WebSocketTransport satisfies the interface.
var _ Transport = (*WebSocketTransport)(nil)
