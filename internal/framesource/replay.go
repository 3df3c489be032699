package framesource

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/ttelectronics/trackii-scan/internal/diaglog"
)

// maxLineSize bounds a single recorded frame
const maxLineSize = 1024 * 1024

// Replay feeds frames from an NDJSON recording, one decoder message per
// line. Unlike Client it never drops: the reader waits for the consumer.
type Replay struct {
	r      io.Reader
	closer io.Closer

	out      chan Frame
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	mu   sync.Mutex
	err  error
	sent int

	logger *diaglog.Logger
}

// OpenReplay opens the recording at path
func OpenReplay(path string) (*Replay, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open replay: %w", err)
	}
	rp := NewReplay(f)
	rp.closer = f
	return rp, nil
}

// NewReplay reads frames from r
func NewReplay(r io.Reader) *Replay {
	return &Replay{
		r:        r,
		out:      make(chan Frame),
		stopChan: make(chan struct{}),
	}
}

// SetLogger injects a diaglog.Logger; call before Start
func (rp *Replay) SetLogger(l *diaglog.Logger) {
	rp.logger = l
}

// Start begins reading in the background
func (rp *Replay) Start() {
	rp.wg.Add(1)
	go rp.run()
}

// Frames returns the delivery channel, closed at end of input or on Close
func (rp *Replay) Frames() <-chan Frame {
	return rp.out
}

// Err returns the read error that ended the replay, if any
func (rp *Replay) Err() error {
	rp.mu.Lock()
	defer rp.mu.Unlock()
	return rp.err
}

// Sent returns the number of frames delivered so far
func (rp *Replay) Sent() int {
	rp.mu.Lock()
	defer rp.mu.Unlock()
	return rp.sent
}

// Close stops the replay and releases the underlying file
func (rp *Replay) Close() error {
	var err error
	rp.stopOnce.Do(func() {
		close(rp.stopChan)
		rp.wg.Wait()
		if rp.closer != nil {
			err = rp.closer.Close()
		}
	})
	return err
}

func (rp *Replay) run() {
	defer rp.wg.Done()
	defer close(rp.out)

	scanner := bufio.NewScanner(rp.r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	line := 0
	for scanner.Scan() {
		line++
		data := scanner.Bytes()
		if len(data) == 0 {
			continue
		}
		frame, err := DecodeFrame(data, time.Now())
		if err != nil {
			if rp.logger != nil {
				rp.logger.Log(diaglog.LogEntry{
					Component: diaglog.ComponentFrameSource,
					Event:     diaglog.EventFrameDropped,
					Reason:    fmt.Sprintf("line %d: %v", line, err),
				})
			}
			continue
		}
		select {
		case rp.out <- frame:
			rp.mu.Lock()
			rp.sent++
			rp.mu.Unlock()
		case <-rp.stopChan:
			return
		}
	}
	if err := scanner.Err(); err != nil {
		rp.mu.Lock()
		rp.err = fmt.Errorf("read replay: %w", err)
		rp.mu.Unlock()
	}
}
