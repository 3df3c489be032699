package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// StabilityConfig tunes how many consecutive identical reads a field needs
// before it is accepted. Confidence is the barcode area / frame area ratio.
type StabilityConfig struct {
	HighConfidenceRatio   float64 `json:"high_confidence_ratio" validate:"gt=0,lte=1"`
	HighConfidenceReads   int     `json:"high_confidence_reads" validate:"min=1,max=20"`
	MediumConfidenceRatio float64 `json:"medium_confidence_ratio" validate:"gt=0,lte=1"`
	MediumConfidenceReads int     `json:"medium_confidence_reads" validate:"min=1,max=20"`
	LowConfidenceReads    int     `json:"low_confidence_reads" validate:"min=1,max=20"`
	MinAcceptIntervalMs   int     `json:"min_accept_interval_ms" validate:"min=0,max=10000"` // Per-field cooldown after an acceptance
}

// DecoderConfig points at the barcode decoder sidecar
type DecoderConfig struct {
	URL              string `json:"url" validate:"omitempty,url"`
	ReconnectSeconds int    `json:"reconnect_seconds" validate:"min=1,max=60"`
}

// ValidatorConfig points at the part lookup API
type ValidatorConfig struct {
	BaseURL        string `json:"base_url" validate:"required,url"`
	Token          string `json:"token,omitempty"` // Bearer token, optional
	TimeoutSeconds int    `json:"timeout_seconds" validate:"min=1,max=120"`
	Retries        int    `json:"retries" validate:"min=0,max=5"` // Transport-level retries for 5xx and network errors
}

// ScanConfig holds all scanner daemon configuration
type ScanConfig struct {
	Stability   StabilityConfig `json:"stability"`
	Decoder     DecoderConfig   `json:"decoder"`
	Validator   ValidatorConfig `json:"validator"`
	HTTPAddr    string          `json:"http_addr,omitempty" validate:"omitempty,hostname_port"`
	JournalPath string          `json:"journal_path,omitempty"`
}

// DefaultStability returns the stock acceptance table:
// ratio >= 0.06 needs 2 reads, >= 0.03 needs 3, anything smaller needs 4.
func DefaultStability() StabilityConfig {
	return StabilityConfig{
		HighConfidenceRatio:   0.06,
		HighConfidenceReads:   2,
		MediumConfidenceRatio: 0.03,
		MediumConfidenceReads: 3,
		LowConfidenceReads:    4,
		MinAcceptIntervalMs:   650,
	}
}

// Default returns a complete configuration with stock values
func Default() *ScanConfig {
	return &ScanConfig{
		Stability: DefaultStability(),
		Decoder: DecoderConfig{
			URL:              "ws://127.0.0.1:8765/frames",
			ReconnectSeconds: 2,
		},
		Validator: ValidatorConfig{
			BaseURL:        "http://127.0.0.1:5000",
			TimeoutSeconds: 10,
			Retries:        2,
		},
		HTTPAddr: "127.0.0.1:8099",
	}
}

// RequiredReads maps a confidence ratio to the number of consecutive
// identical reads needed. Never increases as confidence grows.
func (s StabilityConfig) RequiredReads(confidence float64) int {
	switch {
	case confidence >= s.HighConfidenceRatio:
		return s.HighConfidenceReads
	case confidence >= s.MediumConfidenceRatio:
		return s.MediumConfidenceReads
	default:
		return s.LowConfidenceReads
	}
}

// MinAcceptInterval returns the per-field cooldown as a duration
func (s StabilityConfig) MinAcceptInterval() time.Duration {
	return time.Duration(s.MinAcceptIntervalMs) * time.Millisecond
}

// Validate checks field ranges plus the cross-field ordering of the
// acceptance table.
func (s StabilityConfig) Validate() error {
	if err := validate.Struct(s); err != nil {
		return describe(err)
	}
	if s.MediumConfidenceRatio >= s.HighConfidenceRatio {
		return fmt.Errorf("medium_confidence_ratio (%v) must be < high_confidence_ratio (%v)",
			s.MediumConfidenceRatio, s.HighConfidenceRatio)
	}
	if s.HighConfidenceReads > s.MediumConfidenceReads || s.MediumConfidenceReads > s.LowConfidenceReads {
		return fmt.Errorf("reads must not decrease as confidence drops, got %d/%d/%d",
			s.HighConfidenceReads, s.MediumConfidenceReads, s.LowConfidenceReads)
	}
	return nil
}

// Validate checks ScanConfig for validity
func (c *ScanConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		return describe(err)
	}
	return c.Stability.Validate()
}

// DefaultConfigPath returns ~/.config/trackii/scan-config.json
func DefaultConfigPath() string {
	return filepath.Join(os.Getenv("HOME"), ".config", "trackii", "scan-config.json")
}

// Load reads configuration from path (DefaultConfigPath when empty).
// A missing file yields the defaults.
func Load(path string) (*ScanConfig, error) {
	if path == "" {
		path = DefaultConfigPath()
	}

	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
	} else if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes cfg to path (DefaultConfigPath when empty)
func Save(path string, cfg *ScanConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if path == "" {
		path = DefaultConfigPath()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// Report JSON names so messages match the config file
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// describe flattens validator errors into one readable error
func describe(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := fe.Namespace()
		if i := strings.Index(field, "."); i >= 0 {
			field = field[i+1:]
		}
		rule := fe.Tag()
		if fe.Param() != "" {
			rule += "=" + fe.Param()
		}
		msgs = append(msgs, fmt.Sprintf("%s must satisfy %s, got %v", field, rule, fe.Value()))
	}
	return errors.New(strings.Join(msgs, "; "))
}
