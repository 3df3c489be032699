package framesource

import (
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/ttelectronics/trackii-scan/internal/diaglog"
)

const maxReconnectDelay = 30 * time.Second

// Client reads frames from the decoder sidecar over WebSocket. Only the
// newest undelivered frame is kept: when the consumer falls behind, older
// frames are dropped rather than queued.
type Client struct {
	url            string
	reconnectDelay time.Duration
	dialer         *websocket.Dialer

	mu        sync.RWMutex
	conn      *websocket.Conn
	connected bool
	lastSeq   uint64
	haveSeq   bool
	dropped   uint64

	out      chan Frame
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	onDisconnected func()
	onConnected    func()

	logger   *diaglog.Logger
	loggerMu sync.RWMutex
}

// NewClient creates a client for the decoder at url. reconnectDelay is the
// first wait after a lost connection; it doubles up to 30s.
func NewClient(url string, reconnectDelay time.Duration) *Client {
	if reconnectDelay <= 0 {
		reconnectDelay = 2 * time.Second
	}
	return &Client{
		url:            url,
		reconnectDelay: reconnectDelay,
		dialer:         &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		out:            make(chan Frame, 1),
		stopChan:       make(chan struct{}),
	}
}

// SetLogger injects a diaglog.Logger
func (c *Client) SetLogger(l *diaglog.Logger) {
	c.loggerMu.Lock()
	c.logger = l
	c.loggerMu.Unlock()
}

func (c *Client) log(entry diaglog.LogEntry) {
	c.loggerMu.RLock()
	l := c.logger
	c.loggerMu.RUnlock()
	if l == nil {
		return
	}
	if entry.Component == "" {
		entry.Component = diaglog.ComponentFrameSource
	}
	l.Log(entry)
}

// OnDisconnected registers a callback for lost connections. Not called on Close.
func (c *Client) OnDisconnected(handler func()) {
	c.mu.Lock()
	c.onDisconnected = handler
	c.mu.Unlock()
}

// OnConnected registers a callback for each successful dial
func (c *Client) OnConnected(handler func()) {
	c.mu.Lock()
	c.onConnected = handler
	c.mu.Unlock()
}

// Start connects in the background and keeps reconnecting until Close.
func (c *Client) Start() {
	c.wg.Add(1)
	go c.run()
}

// Frames returns the delivery channel, closed after Close
func (c *Client) Frames() <-chan Frame {
	return c.out
}

// IsConnected returns current connection status
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// Dropped returns how many frames were discarded as stale or superseded
func (c *Client) Dropped() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.dropped
}

// Close stops reconnection, closes the connection and the frame channel
func (c *Client) Close() error {
	c.stopOnce.Do(func() {
		close(c.stopChan)
		c.disconnect()
		c.wg.Wait()
		close(c.out)
	})
	return nil
}

func (c *Client) stopped() bool {
	select {
	case <-c.stopChan:
		return true
	default:
		return false
	}
}

// run alternates between dialing and reading until stopped
func (c *Client) run() {
	defer c.wg.Done()

	delay := c.reconnectDelay
	attempt := 0
	for !c.stopped() {
		if err := c.connect(); err != nil {
			attempt++
			c.log(diaglog.LogEntry{
				Event:   diaglog.EventDecoderConnect,
				Reason:  "dial_failed",
				Payload: map[string]interface{}{"attempt": attempt, "error": err.Error(), "delay_ms": delay.Milliseconds()},
			})
			if !c.wait(delay) {
				return
			}
			delay = nextDelay(delay)
			continue
		}
		attempt = 0
		delay = c.reconnectDelay

		c.readFrames()
		c.disconnect()
		if c.stopped() {
			return
		}

		c.mu.RLock()
		handler := c.onDisconnected
		c.mu.RUnlock()
		if handler != nil {
			handler()
		}
		if !c.wait(delay) {
			return
		}
	}
}

// wait sleeps for d; false means Close was called meanwhile
func (c *Client) wait(d time.Duration) bool {
	select {
	case <-c.stopChan:
		return false
	case <-time.After(d):
		return true
	}
}

// nextDelay doubles d with ±10% jitter, capped at maxReconnectDelay
func nextDelay(d time.Duration) time.Duration {
	d *= 2
	if d > maxReconnectDelay {
		d = maxReconnectDelay
	}
	jitter := time.Duration(float64(d) * 0.2 * (rand.Float64() - 0.5))
	return d + jitter
}

func (c *Client) connect() error {
	conn, _, err := c.dialer.Dial(c.url, nil)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}

	c.mu.Lock()
	if c.stopped() {
		c.mu.Unlock()
		_ = conn.Close()
		return errors.New("client closed")
	}
	c.conn = conn
	c.connected = true
	// A new stream may restart its numbering
	c.haveSeq = false
	handler := c.onConnected
	c.mu.Unlock()

	c.log(diaglog.LogEntry{Event: diaglog.EventDecoderConnect, Payload: map[string]interface{}{"url": c.url}})
	if handler != nil {
		handler()
	}
	return nil
}

func (c *Client) readFrames() {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()
	if conn == nil {
		return
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			var closeErr *websocket.CloseError
			reason := err.Error()
			if errors.As(err, &closeErr) {
				reason = fmt.Sprintf("close %d: %s", closeErr.Code, closeErr.Text)
			}
			c.log(diaglog.LogEntry{Event: diaglog.EventDecoderDisconnect, Reason: reason})
			return
		}

		frame, err := DecodeFrame(data, time.Now())
		if err != nil {
			c.log(diaglog.LogEntry{Event: diaglog.EventFrameDropped, Reason: err.Error()})
			continue
		}
		c.deliver(frame)
	}
}

// deliver hands f to the consumer, replacing any frame still waiting.
// Numbered frames not newer than the last numbered one are discarded;
// unnumbered frames (seq 0) are taken in arrival order.
func (c *Client) deliver(f Frame) {
	c.mu.Lock()
	if f.Seq != 0 && c.haveSeq && f.Seq <= c.lastSeq {
		c.dropped++
		last := c.lastSeq
		c.mu.Unlock()
		c.log(diaglog.LogEntry{
			Event:   diaglog.EventFrameDropped,
			Reason:  "out_of_order",
			Payload: map[string]interface{}{"seq": f.Seq, "last_seq": last},
		})
		return
	}
	if f.Seq != 0 {
		c.lastSeq = f.Seq
		c.haveSeq = true
	}
	c.mu.Unlock()

	select {
	case c.out <- f:
		return
	default:
	}

	// Consumer is behind: discard the waiting frame. This goroutine is the
	// only sender so the second send cannot block.
	select {
	case old := <-c.out:
		c.mu.Lock()
		c.dropped++
		c.mu.Unlock()
		c.log(diaglog.LogEntry{
			Event:   diaglog.EventFrameDropped,
			Reason:  "superseded",
			Payload: map[string]interface{}{"seq": old.Seq, "by_seq": f.Seq},
		})
	default:
	}
	c.out <- f
}

func (c *Client) disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	c.connected = false
}
