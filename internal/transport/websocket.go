// SPDX-License-Identifier: MIT
package transport

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	applog "hvstream/internal/log"

	"github.com/gorilla/websocket"
)

// ProgressPath is the endpoint clients connect to.
const ProgressPath = "/progress"

const writeTimeout = time.Second

// WebSocketTransport broadcasts every message as JSON to all connected
// WebSocket clients.
type WebSocketTransport struct {
	upgrader  websocket.Upgrader
	clients   map[*websocket.Conn]bool
	clientsMu sync.Mutex
	broadcast chan any
	listener  net.Listener
	server    *http.Server

	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewWebSocketTransport listens on addr and starts serving ProgressPath.
// Use port 0 to pick a free port; Addr reports the bound address.
func NewWebSocketTransport(addr string) (*WebSocketTransport, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	wst := &WebSocketTransport{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true // local monitoring tool
			},
		},
		clients:   make(map[*websocket.Conn]bool),
		broadcast: make(chan any, 256),
		listener:  ln,
	}

	mux := http.NewServeMux()
	mux.HandleFunc(ProgressPath, wst.handleWebSocket)
	wst.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	wst.wg.Add(2)
	go func() {
		defer wst.wg.Done()
		applog.Infof("WebSocketTransport: serving ws://%s%s", ln.Addr(), ProgressPath)
		if err := wst.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			applog.Errorf("WebSocketTransport: server error: %v", err)
		}
	}()
	go wst.handleBroadcasts()

	return wst, nil
}

// Addr returns the address the server is bound to.
func (wst *WebSocketTransport) Addr() string {
	return wst.listener.Addr().String()
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
		applog.Warnf("WebSocketTransport: upgrade error: %v", err)
		return
	}

	wst.clientsMu.Lock()
	wst.clients[conn] = true
	total := len(wst.clients)
	wst.clientsMu.Unlock()
	applog.Debugf("WebSocketTransport: client connected, total: %d", total)

	// Clients only listen; a read error means they went away.
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
	total = len(wst.clients)
	wst.clientsMu.Unlock()
	applog.Debugf("WebSocketTransport: client disconnected, total: %d", total)
}

// handleBroadcasts sends messages to all connected clients.
func (wst *WebSocketTransport) handleBroadcasts() {
	defer wst.wg.Done()
	for data := range wst.broadcast {
		wst.clientsMu.Lock()
		for client := range wst.clients {
			client.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := client.WriteJSON(data); err != nil {
				applog.Warnf("WebSocketTransport: error sending to client: %v", err)
				client.Close()
				delete(wst.clients, client)
			}
		}
		wst.clientsMu.Unlock()
	}
}

// Send queues data for broadcast. When the queue is full the message is
// dropped; progress snapshots are superseded by the next one anyway.
func (wst *WebSocketTransport) Send(data any) (err error) {
	defer func() {
		if recover() != nil {
			err = errors.New("websocket transport is closed")
		}
	}()
	select {
	case wst.broadcast <- data:
	default:
		applog.Debugf("WebSocketTransport: queue full, dropping message")
	}
	return nil
}

// Close shuts down the server, disconnects clients and waits for the
// transport's goroutines to exit.
func (wst *WebSocketTransport) Close() error {
	var err error
	wst.closeOnce.Do(func() {
		applog.Debugf("WebSocketTransport: closing server")
		err = wst.server.Close()
		close(wst.broadcast)

		wst.clientsMu.Lock()
		for client := range wst.clients {
			client.Close()
		}
		wst.clients = make(map[*websocket.Conn]bool)
		wst.clientsMu.Unlock()

		wst.wg.Wait()
	})
	return err
}

// Ensure WebSocketTransport satisfies the interface
var _ Transport = (*WebSocketTransport)(nil)
