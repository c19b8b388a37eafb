package websocket

import (
	"context"
	"sync"
)

// MockConnector implements the Connector interface for tests in other
// packages. Frames are injected with Deliver and sent messages recorded.
type MockConnector struct {
	mu sync.RWMutex

	connected bool
	events    chan []byte

	connectCalls int
	closeCalls   int
	sent         []interface{}

	connectError error
	sendError    error
	closeError   error
}

// NewMockConnector creates a new mock connector for testing
func NewMockConnector() *MockConnector {
	return &MockConnector{
		events: make(chan []byte, 100),
	}
}

// Connect implements Connector interface
func (m *MockConnector) Connect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.connectCalls++
	if m.connectError != nil {
		return m.connectError
	}
	m.connected = true
	return nil
}

// Close implements Connector interface
func (m *MockConnector) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closeCalls++
	if m.closeError != nil {
		return m.closeError
	}
	m.connected = false
	return nil
}

// Send implements Connector interface
func (m *MockConnector) Send(message interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.sendError != nil {
		return m.sendError
	}
	m.sent = append(m.sent, message)
	return nil
}

// Events implements Connector interface
func (m *MockConnector) Events() <-chan []byte {
	return m.events
}

// IsConnected implements Connector interface
func (m *MockConnector) IsConnected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.connected
}

// Deliver injects an inbound frame as if the exchange had pushed it.
func (m *MockConnector) Deliver(frame []byte) {
	m.events <- frame
}

// Sent returns the messages passed to Send.
func (m *MockConnector) Sent() []interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]interface{}, len(m.sent))
	copy(out, m.sent)
	return out
}

// ConnectCalls returns how many times Connect was called.
func (m *MockConnector) ConnectCalls() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.connectCalls
}

// CloseCalls returns how many times Close was called.
func (m *MockConnector) CloseCalls() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.closeCalls
}

// SetConnectError sets an error to be returned by Connect
func (m *MockConnector) SetConnectError(err error) {
	m.mu.Lock()
	m.connectError = err
	m.mu.Unlock()
}

// SetSendError sets an error to be returned by Send
func (m *MockConnector) SetSendError(err error) {
	m.mu.Lock()
	m.sendError = err
	m.mu.Unlock()
}

// SetCloseError sets an error to be returned by Close
func (m *MockConnector) SetCloseError(err error) {
	m.mu.Lock()
	m.closeError = err
	m.mu.Unlock()
}
