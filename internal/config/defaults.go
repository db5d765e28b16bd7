package config

const (
	defaultConfigPath         = "~/.config/scanlapse/config.toml"
	projectConfigName         = "scanlapse.toml"
	defaultLogFormat          = "console"
	defaultLogLevel           = "info"
	defaultLogDir             = "logs"
	defaultLogKeepRuns        = 20
	defaultScannerOffset      = 1
	defaultArchiveDir         = "original_images"
	defaultResizeFactor       = 0.35
	defaultJPEGQuality        = 95
	defaultPercentage         = 1.0
	defaultImageIntervalHours = 1.0
	defaultNormalization      = NormalizationCombined
	defaultMeasureWorkers     = 8
)

// Normalization policies accepted by measure.normalization.
const (
	NormalizationNone     = "none"
	NormalizationEach     = "each"
	NormalizationCombined = "combined"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Logging: Logging{
			Format:   defaultLogFormat,
			Level:    defaultLogLevel,
			Dir:      defaultLogDir,
			KeepRuns: defaultLogKeepRuns,
		},
		Rename: Rename{
			ScannerOffset: defaultScannerOffset,
			ArchiveDir:    defaultArchiveDir,
		},
		Extract: Extract{
			ResizeFactor:       defaultResizeFactor,
			PreserveTimestamps: true,
			JPEGQuality:        defaultJPEGQuality,
		},
		Measure: Measure{
			Percentage:         defaultPercentage,
			ImageIntervalHours: defaultImageIntervalHours,
			Normalization:      defaultNormalization,
			Workers:            defaultMeasureWorkers,
		},
	}
}
