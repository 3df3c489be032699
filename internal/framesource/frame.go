// Package framesource delivers decoded barcode frames to the capture loop,
// either live from the decoder sidecar or replayed from a recording.
package framesource

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/ttelectronics/trackii-scan/internal/barcode"
)

// Frame is the decoder output for one camera frame
type Frame struct {
	Seq        uint64 // 0 when the decoder does not number frames
	CapturedAt time.Time
	Detections []barcode.Detection
}

// Source produces frames in capture order. The channel is closed when the
// source stops.
type Source interface {
	Frames() <-chan Frame
	Close() error
}

// wireFrame is the JSON message the decoder emits per frame
type wireFrame struct {
	Seq        uint64               `json:"seq"`
	CapturedAt time.Time            `json:"captured_at"`
	Width      int                  `json:"width"`
	Height     int                  `json:"height"`
	Barcodes   []barcode.RawBarcode `json:"barcodes"`
}

func (w *wireFrame) frame(now time.Time) Frame {
	captured := w.CapturedAt
	if captured.IsZero() {
		captured = now
	}
	return Frame{
		Seq:        w.Seq,
		CapturedAt: captured,
		Detections: barcode.FromRaw(w.Barcodes, w.Width, w.Height),
	}
}

// DecodeFrame parses one decoder message
func DecodeFrame(data []byte, now time.Time) (Frame, error) {
	var w wireFrame
	if err := json.Unmarshal(data, &w); err != nil {
		return Frame{}, fmt.Errorf("decode frame: %w", err)
	}
	return w.frame(now), nil
}

// EncodeFrame renders a frame in the decoder message format. Confidence is
// expressed as a box over a unit frame so it survives a round trip.
func EncodeFrame(f Frame) ([]byte, error) {
	const side = 10000
	w := wireFrame{
		Seq:        f.Seq,
		CapturedAt: f.CapturedAt,
		Width:      side,
		Height:     side,
		Barcodes:   make([]barcode.RawBarcode, 0, len(f.Detections)),
	}
	for _, d := range f.Detections {
		raw := barcode.RawBarcode{RawValue: d.Value}
		if d.Confidence > 0 {
			raw.Box = &barcode.Box{Right: side, Bottom: int(d.Confidence*side + 0.5)}
		}
		w.Barcodes = append(w.Barcodes, raw)
	}
	return json.Marshal(w)
}
