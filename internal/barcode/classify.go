package barcode

const (
	lotLength     = 7
	partMinLength = 4
)

// IsLot reports whether value is exactly seven ASCII digits
func IsLot(value string) bool {
	if len(value) != lotLength {
		return false
	}
	for i := 0; i < len(value); i++ {
		if !isDigit(value[i]) {
			return false
		}
	}
	return true
}

// IsPart reports whether value is shaped like a part number: an uppercase
// letter followed by at least three [A-Z0-9._/-] characters, one of them a digit.
func IsPart(value string) bool {
	if len(value) < partMinLength || !isUpper(value[0]) {
		return false
	}
	hasDigit := false
	for i := 1; i < len(value); i++ {
		c := value[i]
		switch {
		case isDigit(c):
			hasDigit = true
		case isUpper(c), c == '.', c == '_', c == '/', c == '-':
		default:
			return false
		}
	}
	return hasDigit
}

// Classify returns the field kinds value can fill, in routing order.
// Input must already be normalized. No match yields an empty slice.
func Classify(value string) []FieldKind {
	kinds := make([]FieldKind, 0, 2)
	if IsLot(value) {
		kinds = append(kinds, FieldLot)
	}
	if IsPart(value) {
		kinds = append(kinds, FieldPart)
	}
	return kinds
}

// Candidates holds the best detection per field kind for one frame
type Candidates struct {
	Lot  *Detection
	Part *Detection
}

// ForKind returns the candidate for kind, or nil
func (c Candidates) ForKind(kind FieldKind) *Detection {
	switch kind {
	case FieldLot:
		return c.Lot
	case FieldPart:
		return c.Part
	}
	return nil
}

// Best classifies every detection and keeps the highest-confidence match per
// kind. On equal confidence the earlier detection wins.
func Best(detections []Detection) Candidates {
	var out Candidates
	for i := range detections {
		d := &detections[i]
		for _, kind := range Classify(d.Value) {
			switch kind {
			case FieldLot:
				if out.Lot == nil || d.Confidence > out.Lot.Confidence {
					out.Lot = d
				}
			case FieldPart:
				if out.Part == nil || d.Confidence > out.Part.Confidence {
					out.Part = d
				}
			}
		}
	}
	return out
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isUpper(c byte) bool { return c >= 'A' && c <= 'Z' }
