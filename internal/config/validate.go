package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateLogging(); err != nil {
		return err
	}
	if err := c.validateRename(); err != nil {
		return err
	}
	if err := c.validateExtract(); err != nil {
		return err
	}
	if err := c.validateMeasure(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q (want console or json)", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	if c.Logging.KeepRuns < 0 {
		return errors.New("logging.keep_runs must be >= 0")
	}
	return nil
}

func (c *Config) validateRename() error {
	if c.Rename.ScannerOffset < 0 {
		return errors.New("rename.scanner_offset must be >= 0")
	}
	if strings.ContainsAny(c.Rename.ArchiveDir, `/\`) || c.Rename.ArchiveDir == "." || c.Rename.ArchiveDir == ".." {
		return fmt.Errorf("rename.archive_dir must be a plain folder name, got %q", c.Rename.ArchiveDir)
	}
	return nil
}

func (c *Config) validateExtract() error {
	if c.Extract.ResizeFactor < 0 || c.Extract.ResizeFactor > 1 {
		return errors.New("extract.resize_factor must be between 0 and 1 (0 disables resizing)")
	}
	if c.Extract.JPEGQuality < 1 || c.Extract.JPEGQuality > 100 {
		return errors.New("extract.jpeg_quality must be between 1 and 100")
	}
	return nil
}

func (c *Config) validateMeasure() error {
	if c.Measure.Percentage <= 0 || c.Measure.Percentage > 1 {
		return errors.New("measure.percentage must be in (0, 1]")
	}
	if c.Measure.ImageIntervalHours <= 0 {
		return errors.New("measure.image_interval_hours must be positive")
	}
	switch c.Measure.Normalization {
	case NormalizationNone, NormalizationEach, NormalizationCombined:
	default:
		return fmt.Errorf("measure.normalization: unsupported value %q (want none, each, or combined)", c.Measure.Normalization)
	}
	return nil
}
