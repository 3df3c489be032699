package barcode

import "strings"

// FieldKind identifies which travel-sheet field a reading can fill
type FieldKind string

const (
	FieldLot  FieldKind = "lot"
	FieldPart FieldKind = "part"
)

// Kinds lists every field kind in routing order
var Kinds = []FieldKind{FieldLot, FieldPart}

// Detection is one normalized reading from one frame
type Detection struct {
	Value      string  `json:"value"`      // Trimmed, upper-cased, no spaces
	Confidence float64 `json:"confidence"` // Bounding box area / frame area
}

// Box is a decoder bounding box in frame pixel coordinates
type Box struct {
	Left   int `json:"left"`
	Top    int `json:"top"`
	Right  int `json:"right"`
	Bottom int `json:"bottom"`
}

// Width returns the box width, never negative
func (b Box) Width() int {
	if b.Right < b.Left {
		return 0
	}
	return b.Right - b.Left
}

// Height returns the box height, never negative
func (b Box) Height() int {
	if b.Bottom < b.Top {
		return 0
	}
	return b.Bottom - b.Top
}

// RawBarcode is a single decoder reading before normalization
type RawBarcode struct {
	RawValue string `json:"raw_value"`
	Box      *Box   `json:"box,omitempty"`
}

// Normalize trims, upper-cases and strips spaces from a raw decoder value
func Normalize(raw string) string {
	return strings.ReplaceAll(strings.ToUpper(strings.TrimSpace(raw)), " ", "")
}

// AreaRatio returns the box area relative to the frame area.
// A missing box or an empty frame yields 0.
func AreaRatio(box *Box, frameWidth, frameHeight int) float64 {
	if box == nil || frameWidth <= 0 || frameHeight <= 0 {
		return 0
	}
	return float64(box.Width()) * float64(box.Height()) / (float64(frameWidth) * float64(frameHeight))
}

// FromRaw converts decoder readings for one frame into detections.
// Readings that normalize to an empty string are dropped.
func FromRaw(raws []RawBarcode, frameWidth, frameHeight int) []Detection {
	detections := make([]Detection, 0, len(raws))
	for _, raw := range raws {
		value := Normalize(raw.RawValue)
		if value == "" {
			continue
		}
		detections = append(detections, Detection{
			Value:      value,
			Confidence: AreaRatio(raw.Box, frameWidth, frameHeight),
		})
	}
	return detections
}
