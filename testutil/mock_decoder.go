package testutil

import (
	"fmt"
	"net"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

// MockDecoder simulates the barcode decoder sidecar: it accepts WebSocket
// clients and pushes whatever messages the test sends.
type MockDecoder struct {
	listener net.Listener
	server   *http.Server

	mu          sync.Mutex
	conn        *websocket.Conn
	connects    int
	connectedCh chan struct{}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// NewMockDecoder creates a stopped mock decoder
func NewMockDecoder() *MockDecoder {
	return &MockDecoder{connectedCh: make(chan struct{}, 16)}
}

// Start begins listening on a dynamic port
func (m *MockDecoder) Start() error {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return fmt.Errorf("failed to create listener: %w", err)
	}
	m.listener = listener

	mux := http.NewServeMux()
	mux.HandleFunc("/frames", m.handleWebSocket)
	m.server = &http.Server{Handler: mux}

	go func() {
		_ = m.server.Serve(m.listener)
	}()
	return nil
}

// Stop shuts the server down and drops any client
func (m *MockDecoder) Stop() error {
	m.DropClient()
	if m.server != nil {
		_ = m.server.Close()
	}
	return nil
}

// URL returns the ws:// address clients should dial
func (m *MockDecoder) URL() string {
	if m.listener == nil {
		return ""
	}
	return "ws://" + m.listener.Addr().String() + "/frames"
}

// Connected reports whether a client is attached
func (m *MockDecoder) Connected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.conn != nil
}

// Connects returns how many clients have attached so far
func (m *MockDecoder) Connects() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connects
}

// ConnectedCh receives once per client attach
func (m *MockDecoder) ConnectedCh() <-chan struct{} {
	return m.connectedCh
}

// Send writes one raw message to the attached client
func (m *MockDecoder) Send(data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conn == nil {
		return fmt.Errorf("no client connected")
	}
	return m.conn.WriteMessage(websocket.TextMessage, data)
}

// DropClient closes the current client connection, if any
func (m *MockDecoder) DropClient() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conn != nil {
		_ = m.conn.Close()
		m.conn = nil
	}
}

func (m *MockDecoder) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	m.mu.Lock()
	if m.conn != nil {
		_ = m.conn.Close()
	}
	m.conn = conn
	m.connects++
	m.mu.Unlock()

	select {
	case m.connectedCh <- struct{}{}:
	default:
	}

	// Drain client messages until the connection goes away
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	m.mu.Lock()
	if m.conn == conn {
		m.conn = nil
	}
	m.mu.Unlock()
	_ = conn.Close()
}
