package partcheck

import (
	"encoding/json"
	"fmt"
	"strings"
)

// PartInfo is the lookup payload. The API has shipped several key spellings
// over time, so decoding accepts each known alias.
type PartInfo struct {
	Found        *bool  `json:"found,omitempty"`
	PartNumber   string `json:"partNumber,omitempty"`
	Area         string `json:"area,omitempty"`
	Family       string `json:"family,omitempty"`
	Subfamily    string `json:"subfamily,omitempty"`
	RouteNumber  string `json:"routeNumber,omitempty"`
	CurrentRoute string `json:"currentRoute,omitempty"`
}

// IsFound reports the found flag, treating an absent flag as true
func (p *PartInfo) IsFound() bool {
	if p == nil {
		return false
	}
	return p.Found == nil || *p.Found
}

var partInfoKeys = map[string][]string{
	"found":        {"found", "exists", "isFound", "Found"},
	"partNumber":   {"partNumber", "part_number", "PartNumber"},
	"area":         {"area", "Area", "areaName", "AreaName"},
	"family":       {"family", "Family", "familyName", "FamilyName"},
	"subfamily":    {"subfamily", "Subfamily", "subfamilyName", "SubfamilyName"},
	"routeNumber":  {"routeNumber", "route_number", "routeId", "RouteNumber", "RouteId"},
	"currentRoute": {"currentRoute", "currentStep", "currentLocation", "CurrentRoute", "CurrentStep"},
}

// UnmarshalJSON accepts every alias in partInfoKeys; the first present key wins
func (p *PartInfo) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	pick := func(field string) (json.RawMessage, bool) {
		for _, key := range partInfoKeys[field] {
			if v, ok := raw[key]; ok && string(v) != "null" {
				return v, true
			}
		}
		return nil, false
	}

	*p = PartInfo{}
	if v, ok := pick("found"); ok {
		var found bool
		if err := json.Unmarshal(v, &found); err != nil {
			return fmt.Errorf("decode found: %w", err)
		}
		p.Found = &found
	}

	for field, dst := range map[string]*string{
		"partNumber":   &p.PartNumber,
		"area":         &p.Area,
		"family":       &p.Family,
		"subfamily":    &p.Subfamily,
		"routeNumber":  &p.RouteNumber,
		"currentRoute": &p.CurrentRoute,
	} {
		v, ok := pick(field)
		if !ok {
			continue
		}
		*dst = scalarString(v)
	}
	return nil
}

// scalarString renders a JSON string or number as plain text. Route ids
// arrive as either.
func scalarString(v json.RawMessage) string {
	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		return s
	}
	return strings.TrimSpace(string(v))
}

// APIError is a non-2xx answer from the lookup API
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("Error %d", e.StatusCode)
	}
	return fmt.Sprintf("Error %d: %s", e.StatusCode, e.Message)
}

// newAPIError extracts a message from body: JSON detail, title or message,
// falling back to the raw body. An empty body leaves Message empty.
func newAPIError(status int, body []byte) *APIError {
	text := strings.TrimSpace(string(body))
	if text == "" {
		return &APIError{StatusCode: status}
	}

	var parsed struct {
		Detail  string `json:"detail"`
		Title   string `json:"title"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil {
		for _, m := range []string{parsed.Detail, parsed.Title, parsed.Message} {
			if strings.TrimSpace(m) != "" {
				return &APIError{StatusCode: status, Message: m}
			}
		}
	}
	return &APIError{StatusCode: status, Message: truncate([]byte(text), 200)}
}
