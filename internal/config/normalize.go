package config

import (
	"os"
	"runtime"
	"strings"
)

func (c *Config) normalize() error {
	c.normalizeLogging()
	c.normalizeRename()
	c.normalizeExtract()
	c.normalizeMeasure()
	return nil
}

func (c *Config) normalizeLogging() {
	if value, ok := os.LookupEnv("SCANLAPSE_LOG_LEVEL"); ok && strings.TrimSpace(value) != "" {
		c.Logging.Level = value
	}
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	c.Logging.Dir = strings.TrimSpace(c.Logging.Dir)
}

func (c *Config) normalizeRename() {
	c.Rename.ArchiveDir = strings.TrimSpace(c.Rename.ArchiveDir)
	if c.Rename.ArchiveDir == "" {
		c.Rename.ArchiveDir = defaultArchiveDir
	}
}

func (c *Config) normalizeExtract() {
	if c.Extract.Workers <= 0 {
		c.Extract.Workers = runtime.NumCPU()
	}
	if c.Extract.JPEGQuality == 0 {
		c.Extract.JPEGQuality = defaultJPEGQuality
	}
}

func (c *Config) normalizeMeasure() {
	c.Measure.Normalization = NormalizePolicy(c.Measure.Normalization)
	if c.Measure.Normalization == "" {
		c.Measure.Normalization = defaultNormalization
	}
	if c.Measure.Workers <= 0 {
		c.Measure.Workers = defaultMeasureWorkers
	}
}

// NormalizePolicy lowercases a normalization name. The capitalized spellings
// used by older experiment notes ("Each", "Combined", "None") are accepted.
func NormalizePolicy(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}
