package barcode

import (
	"reflect"
	"testing"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  []FieldKind
	}{
		{name: "seven digit lot", value: "1234567", want: []FieldKind{FieldLot}},
		{name: "six digits", value: "123456", want: []FieldKind{}},
		{name: "eight digits", value: "12345678", want: []FieldKind{}},
		{name: "simple part", value: "AB12X", want: []FieldKind{FieldPart}},
		{name: "part with punctuation", value: "T-100/B.2_X", want: []FieldKind{FieldPart}},
		{name: "minimum length part", value: "A123", want: []FieldKind{FieldPart}},
		{name: "too short part", value: "A12", want: []FieldKind{}},
		{name: "part without digit", value: "ABCDE", want: []FieldKind{}},
		{name: "leading digit", value: "1ABCD", want: []FieldKind{}},
		{name: "lowercase rejected", value: "ab12x", want: []FieldKind{}},
		{name: "illegal character", value: "AB12#", want: []FieldKind{}},
		{name: "digit only in first position is not enough", value: "A...", want: []FieldKind{}},
		{name: "empty", value: "", want: []FieldKind{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.value)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Classify(%q) = %v, want %v", tt.value, got, tt.want)
			}
		})
	}
}

func TestIsLotNonASCIIDigits(t *testing.T) {
	// Seven runes but more than seven bytes
	if IsLot("１２３４５６７") {
		t.Error("full-width digits must not classify as a lot")
	}
}

func TestBest_PicksHighestConfidencePerKind(t *testing.T) {
	detections := []Detection{
		{Value: "1111111", Confidence: 0.02},
		{Value: "AB12X", Confidence: 0.05},
		{Value: "2222222", Confidence: 0.09},
		{Value: "ZZ99", Confidence: 0.01},
		{Value: "NOISE", Confidence: 0.50},
	}

	got := Best(detections)
	if got.Lot == nil || got.Lot.Value != "2222222" {
		t.Errorf("lot candidate = %+v, want 2222222", got.Lot)
	}
	if got.Part == nil || got.Part.Value != "AB12X" {
		t.Errorf("part candidate = %+v, want AB12X", got.Part)
	}
}

func TestBest_TieKeepsFirst(t *testing.T) {
	detections := []Detection{
		{Value: "1111111", Confidence: 0.05},
		{Value: "2222222", Confidence: 0.05},
	}
	if got := Best(detections); got.Lot.Value != "1111111" {
		t.Errorf("tie should keep first detection, got %q", got.Lot.Value)
	}
}

func TestBest_NoMatches(t *testing.T) {
	got := Best([]Detection{{Value: "HELLO", Confidence: 1}})
	if got.Lot != nil || got.Part != nil {
		t.Errorf("expected no candidates, got %+v", got)
	}
	if got.ForKind(FieldLot) != nil || got.ForKind(FieldPart) != nil {
		t.Error("ForKind should return nil for missing candidates")
	}
}
