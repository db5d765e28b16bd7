package testsupport

import (
	"testing"

	"scanlapse/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a validated default config with small worker pools and
// the run log disabled, then applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	cfg := config.Default()
	cfg.Logging.Dir = ""
	cfg.Extract.Workers = 2
	cfg.Measure.Workers = 2

	for _, opt := range opts {
		opt(&cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("test config invalid: %v", err)
	}
	return &cfg
}

// WithNormalization sets measure.normalization.
func WithNormalization(policy string) ConfigOption {
	return func(c *config.Config) { c.Measure.Normalization = policy }
}

// WithPercentage sets the region-of-interest percentage.
func WithPercentage(pct float64) ConfigOption {
	return func(c *config.Config) { c.Measure.Percentage = pct }
}

// WithResizeFactor sets extract.resize_factor; 0 disables the resized copy.
func WithResizeFactor(factor float64) ConfigOption {
	return func(c *config.Config) { c.Extract.ResizeFactor = factor }
}

// WithScannerOffset sets rename.scanner_offset.
func WithScannerOffset(offset int) ConfigOption {
	return func(c *config.Config) { c.Rename.ScannerOffset = offset }
}

// WithFileNumberTime forces the file-number time basis.
func WithFileNumberTime(intervalHours float64) ConfigOption {
	return func(c *config.Config) {
		c.Measure.ForceFileNumberTime = true
		c.Measure.ImageIntervalHours = intervalHours
	}
}
