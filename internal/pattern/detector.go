package pattern

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidConfig is returned by DetectorConfig.Validate.
var ErrInvalidConfig = errors.New("pattern: invalid detector config")

// DetectorConfig holds configuration for the pattern detector.
type DetectorConfig struct {
	Length            int     `yaml:"length"`              // Half-width of the swing window
	TPMult            float64 `yaml:"tp_mult"`             // Breakout take-profit multiple
	ShapeTPMult       float64 `yaml:"shape_tp_mult"`       // Shape take-profit multiple
	UseCloseForEntry  bool    `yaml:"use_close_for_entry"` // Confirm breakouts on close instead of high/low
	MinSignalDistance int     `yaml:"min_signal_distance"` // Bars between two signals of one side
	Mode              Mode    `yaml:"mode"`

	PatternLookback int `yaml:"pattern_lookback"` // Bars searched for a three-bar match
	RSIPeriod       int `yaml:"rsi_period"`
	VolumeAvgPeriod int `yaml:"volume_avg_period"` // Bars averaged by the volume filter

	MinBody        float64 `yaml:"min_body"`         // Body at or below which a kline is a doji
	PricePrecision int     `yaml:"price_precision"`  // Decimal places of canonical prices
	EveningStarPen float64 `yaml:"evening_star_pen"` // talib penetration for evening star
}

// DefaultDetectorConfig returns the default detector configuration.
func DefaultDetectorConfig() DetectorConfig {
	return DetectorConfig{
		Length:            5,
		TPMult:            1.5,
		ShapeTPMult:       2,
		UseCloseForEntry:  true,
		MinSignalDistance: 5,
		Mode:              ModeBoth,
		PatternLookback:   5,
		RSIPeriod:         14,
		VolumeAvgPeriod:   20,
		MinBody:           0.001,
		PricePrecision:    8,
		EveningStarPen:    0.3,
	}
}

// Validate reports the first invalid field.
func (c DetectorConfig) Validate() error {
	switch {
	case c.Length < 1:
		return fmt.Errorf("%w: length must be >= 1, got %d", ErrInvalidConfig, c.Length)
	case c.TPMult <= 0:
		return fmt.Errorf("%w: tp_mult must be > 0, got %v", ErrInvalidConfig, c.TPMult)
	case c.ShapeTPMult <= 0:
		return fmt.Errorf("%w: shape_tp_mult must be > 0, got %v", ErrInvalidConfig, c.ShapeTPMult)
	case c.MinSignalDistance < 0:
		return fmt.Errorf("%w: min_signal_distance must be >= 0, got %d", ErrInvalidConfig, c.MinSignalDistance)
	case c.Mode != ModeLong && c.Mode != ModeShort && c.Mode != ModeBoth:
		return fmt.Errorf("%w: unknown mode %q", ErrInvalidConfig, c.Mode)
	case c.PatternLookback < 1:
		return fmt.Errorf("%w: pattern_lookback must be >= 1, got %d", ErrInvalidConfig, c.PatternLookback)
	case c.RSIPeriod < 2:
		return fmt.Errorf("%w: rsi_period must be >= 2, got %d", ErrInvalidConfig, c.RSIPeriod)
	case c.VolumeAvgPeriod < 1:
		return fmt.Errorf("%w: volume_avg_period must be >= 1, got %d", ErrInvalidConfig, c.VolumeAvgPeriod)
	case c.PricePrecision < 0 || c.PricePrecision > 16:
		return fmt.Errorf("%w: price_precision out of range, got %d", ErrInvalidConfig, c.PricePrecision)
	}
	return nil
}

// Detector runs the breakout, filter and shape detectors over a series.
// It holds only immutable configuration and is safe for concurrent use.
type Detector struct {
	config DetectorConfig
	now    func() time.Time
}

// NewDetector creates a new pattern detector.
func NewDetector(config DetectorConfig) *Detector {
	return &Detector{config: config, now: time.Now}
}

// WithClock returns a copy of the detector stamping signals with now.
func (d *Detector) WithClock(now func() time.Time) *Detector {
	cp := *d
	cp.now = now
	return &cp
}

// WithMinSignalDistance returns a copy of the detector using n bars as the
// breakout cooldown.
func (d *Detector) WithMinSignalDistance(n int) *Detector {
	cp := *d
	cp.config.MinSignalDistance = n
	return &cp
}

// Config returns the detector configuration.
func (d *Detector) Config() DetectorConfig {
	return d.config
}
