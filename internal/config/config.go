package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
	// Dir is relative to the experiment root unless absolute. Empty disables
	// the run log file.
	Dir string `toml:"dir"`
	// KeepRuns bounds how many per-run log files survive in Dir.
	KeepRuns int `toml:"keep_runs"`
}

// Rename contains configuration for filename canonicalization.
type Rename struct {
	// ScannerOffset is subtracted from the number embedded in scanner file
	// names. Most flatbed scanners start numbering at 1 or 2 for the first
	// frame; the default maps img_001 to index 0.
	ScannerOffset int    `toml:"scanner_offset"`
	ArchiveDir    string `toml:"archive_dir"`
}

// Extract contains configuration for sub-image extraction.
type Extract struct {
	ResizeFactor       float64 `toml:"resize_factor"`
	PreserveTimestamps bool    `toml:"preserve_timestamps"`
	Workers            int     `toml:"workers"`
	JPEGQuality        int     `toml:"jpeg_quality"`
}

// Measure contains configuration for intensity measurement and aggregation.
type Measure struct {
	Percentage          float64 `toml:"percentage"`
	ImageIntervalHours  float64 `toml:"image_interval_hours"`
	StartHours          float64 `toml:"start_hours"`
	ForceFileNumberTime bool    `toml:"force_file_number_time"`
	Normalization       string  `toml:"normalization"`
	Workers             int     `toml:"workers"`
}

// Config encapsulates all configuration values for scanlapse.
//
// Configuration sections by subsystem:
//   - Logging: log format, level, and run log directory
//   - Rename: scanner numbering offset and archive folder name
//   - Extract: resize factor, timestamp preservation, pool size, JPEG quality
//   - Measure: region-of-interest percentage, time basis, normalization
type Config struct {
	Logging Logging `toml:"logging"`
	Rename  Rename  `toml:"rename"`
	Extract Extract `toml:"extract"`
	Measure Measure `toml:"measure"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// ProjectConfigPath returns the per-directory configuration file that Load
// falls back to when no user-level file exists.
func ProjectConfigPath() (string, error) {
	return filepath.Abs(projectConfigName)
}

// Load locates, parses, and validates a configuration file. A missing file is
// not an error; defaults are returned and exists reports false.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config %s: %w", resolvedPath, err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs(projectConfigName)
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// LogDir resolves the configured log directory against an experiment root.
func (c *Config) LogDir(root string) string {
	dir := strings.TrimSpace(c.Logging.Dir)
	if dir == "" {
		return ""
	}
	if filepath.IsAbs(dir) {
		return dir
	}
	return filepath.Join(root, dir)
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// Encode renders cfg as TOML.
func Encode(cfg *Config) ([]byte, error) {
	if cfg == nil {
		return nil, errors.New("nil config")
	}
	data, err := toml.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	return data, nil
}
