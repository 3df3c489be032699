package barcode

import (
	"math"
	"testing"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{raw: "  ab 12x ", want: "AB12X"},
		{raw: "1234567", want: "1234567"},
		{raw: "   ", want: ""},
		{raw: "t-100 / b", want: "T-100/B"},
	}
	for _, tt := range tests {
		if got := Normalize(tt.raw); got != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.raw, got, tt.want)
		}
	}
}

func TestAreaRatio(t *testing.T) {
	box := &Box{Left: 10, Top: 10, Right: 110, Bottom: 60}

	if got := AreaRatio(box, 1000, 500); math.Abs(got-0.01) > 1e-9 {
		t.Errorf("AreaRatio = %v, want 0.01", got)
	}
	if got := AreaRatio(nil, 1000, 500); got != 0 {
		t.Errorf("nil box ratio = %v, want 0", got)
	}
	if got := AreaRatio(box, 0, 500); got != 0 {
		t.Errorf("zero width frame ratio = %v, want 0", got)
	}
	inverted := &Box{Left: 50, Top: 50, Right: 10, Bottom: 10}
	if got := AreaRatio(inverted, 100, 100); got != 0 {
		t.Errorf("inverted box ratio = %v, want 0", got)
	}
}

func TestFromRaw(t *testing.T) {
	raws := []RawBarcode{
		{RawValue: " 1234567 ", Box: &Box{Left: 0, Top: 0, Right: 50, Bottom: 20}},
		{RawValue: "   "},
		{RawValue: "ab 12x"},
	}

	got := FromRaw(raws, 100, 100)
	if len(got) != 2 {
		t.Fatalf("got %d detections, want 2: %+v", len(got), got)
	}
	if got[0].Value != "1234567" || math.Abs(got[0].Confidence-0.1) > 1e-9 {
		t.Errorf("first detection = %+v", got[0])
	}
	if got[1].Value != "AB12X" || got[1].Confidence != 0 {
		t.Errorf("second detection = %+v", got[1])
	}
}
