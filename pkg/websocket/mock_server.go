package websocket

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gorilla/websocket"
)

// MockServer is an in-process WebSocket server for tests.
type MockServer struct {
	server *httptest.Server
	url    string

	mu          sync.RWMutex
	connections map[*websocket.Conn]bool
	received    [][]byte
	onMessage   func(*websocket.Conn, []byte)

	rejectConnections bool
	dropConnections   bool
}

// NewMockServer creates a new mock WebSocket server
func NewMockServer() *MockServer {
	mock := &MockServer{
		connections: make(map[*websocket.Conn]bool),
	}
	mock.server = httptest.NewServer(http.HandlerFunc(mock.handleConnection))
	mock.url = "ws" + strings.TrimPrefix(mock.server.URL, "http")
	return mock
}

// URL returns the WebSocket URL of the mock server
func (m *MockServer) URL() string {
	return m.url
}

// Close shuts down the mock server
func (m *MockServer) Close() {
	m.server.Close()
}

// SetRejectConnections configures whether new connections are rejected.
func (m *MockServer) SetRejectConnections(reject bool) {
	m.mu.Lock()
	m.rejectConnections = reject
	m.mu.Unlock()
}

// SetDropConnections configures whether existing connections are dropped.
func (m *MockServer) SetDropConnections(drop bool) {
	m.mu.Lock()
	m.dropConnections = drop
	m.mu.Unlock()
}

// OnMessage sets a callback for received client messages.
func (m *MockServer) OnMessage(callback func(*websocket.Conn, []byte)) {
	m.mu.Lock()
	m.onMessage = callback
	m.mu.Unlock()
}

// Broadcast sends a frame to every connected client.
func (m *MockServer) Broadcast(message []byte) {
	m.mu.RLock()
	conns := make([]*websocket.Conn, 0, len(m.connections))
	for conn := range m.connections {
		conns = append(conns, conn)
	}
	m.mu.RUnlock()

	for _, conn := range conns {
		if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
			m.removeConnection(conn)
		}
	}
}

// ConnectionCount returns the number of active connections.
func (m *MockServer) ConnectionCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.connections)
}

// Received returns a copy of the frames clients have sent.
func (m *MockServer) Received() [][]byte {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([][]byte, len(m.received))
	copy(out, m.received)
	return out
}

func (m *MockServer) handleConnection(w http.ResponseWriter, r *http.Request) {
	m.mu.RLock()
	reject := m.rejectConnections
	m.mu.RUnlock()
	if reject {
		w.WriteHeader(http.StatusForbidden)
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	m.mu.Lock()
	m.connections[conn] = true
	m.mu.Unlock()

	defer func() {
		m.removeConnection(conn)
		conn.Close()
	}()

	for {
		m.mu.RLock()
		drop := m.dropConnections
		onMessage := m.onMessage
		m.mu.RUnlock()
		if drop {
			return
		}

		messageType, message, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		m.mu.Lock()
		m.received = append(m.received, message)
		m.mu.Unlock()

		if onMessage != nil {
			onMessage(conn, message)
		}
	}
}

func (m *MockServer) removeConnection(conn *websocket.Conn) {
	m.mu.Lock()
	delete(m.connections, conn)
	m.mu.Unlock()
}

// setupMockServer creates a mock server scoped to a test.
func setupMockServer(t *testing.T) (*MockServer, string) {
	t.Helper()
	mock := NewMockServer()
	t.Cleanup(mock.Close)
	return mock, mock.URL()
}
