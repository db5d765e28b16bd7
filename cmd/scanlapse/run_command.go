package main

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"scanlapse/internal/config"
	"scanlapse/internal/experiment"
	"scanlapse/internal/rename"
	"scanlapse/internal/services"
)

type runFlags struct {
	segments            []string
	normalization       string
	percentage          float64
	resize              float64
	noFileTime          bool
	locationFromCropped bool
	interval            float64
	start               float64
	reExtract           bool
	reMeasure           bool
	workers             int
	level               string
	extension           string
	prefix              string
	asJSON              bool
}

// apply copies explicitly set flags over cfg.
func (f *runFlags) apply(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	if flags.Changed("norm") {
		cfg.Measure.Normalization = f.normalization
	}
	if flags.Changed("percentage") {
		cfg.Measure.Percentage = f.percentage
	}
	if flags.Changed("resize") {
		cfg.Extract.ResizeFactor = f.resize
	}
	if flags.Changed("no-file-time") {
		cfg.Measure.ForceFileNumberTime = f.noFileTime
	}
	if flags.Changed("interval") {
		cfg.Measure.ImageIntervalHours = f.interval
	}
	if flags.Changed("start") {
		cfg.Measure.StartHours = f.start
	}
	if flags.Changed("workers") {
		cfg.Extract.Workers = f.workers
		cfg.Measure.Workers = f.workers
	}
	if err := cfg.Validate(); err != nil {
		return services.Wrap(services.ErrConfiguration, "cli", "flags", "", err)
	}
	return nil
}

type runSummary struct {
	RunID            string   `json:"run_id"`
	Renamed          bool     `json:"renamed"`
	SourceDir        string   `json:"source_dir"`
	SourceCropped    bool     `json:"source_cropped"`
	Frames           int      `json:"frames"`
	Segments         int      `json:"segments"`
	Extracted        bool     `json:"extracted"`
	ExtractReason    string   `json:"extract_reason"`
	ExtractProcessed int      `json:"extract_processed"`
	ExtractFailures  int      `json:"extract_failures"`
	Measured         bool     `json:"measured"`
	MeasureReason    string   `json:"measure_reason"`
	MeasureFailures  []string `json:"measure_failures,omitempty"`
	Rows             int      `json:"rows"`
	Samples          []string `json:"samples"`
	Level            string   `json:"level"`
	ResultDir        string   `json:"result_dir"`
	Exports          []string `json:"exports"`
	ElapsedSeconds   float64  `json:"elapsed_seconds"`
}

func summarizeRun(out *experiment.Outcome, elapsed time.Duration) runSummary {
	s := runSummary{
		RunID:          out.RunID,
		Renamed:        out.Renamed,
		SourceDir:      out.Sources.Dir,
		SourceCropped:  out.Sources.Cropped,
		Frames:         len(out.Sources.Names),
		Segments:       len(out.Segments),
		Extracted:      out.Extraction.Run,
		ExtractReason:  out.Extraction.Reason,
		Measured:       out.Measurement.Run,
		MeasureReason:  out.Measurement.Reason,
		ResultDir:      out.ResultDir,
		Exports:        out.Exports,
		ElapsedSeconds: elapsed.Seconds(),
	}
	if out.ExtractReport != nil {
		s.ExtractFailures = out.ExtractReport.Failed
		s.ExtractProcessed = out.ExtractReport.Processed
	}
	for _, e := range out.MeasureErrors {
		s.MeasureFailures = append(s.MeasureFailures, e.Error())
	}
	if out.Table != nil {
		s.Rows = len(out.Table.Rows)
		s.Samples = out.Table.Samples
	}
	if out.Summary != nil {
		s.Level = out.Summary.Level
	}
	return s
}

func newRunCommand(ctx *commandContext) *cobra.Command {
	f := &runFlags{}

	cmd := &cobra.Command{
		Use:   "run <root> <spec.tsv>",
		Short: "Rename, extract, measure, and aggregate an experiment",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.configCopy()
			if err != nil {
				return err
			}
			if err := f.apply(cmd, cfg); err != nil {
				return err
			}
			segments := make([]experiment.SegmentSpec, 0, len(f.segments))
			for _, value := range f.segments {
				spec, err := experiment.ParseSegmentFlag(value)
				if err != nil {
					return err
				}
				segments = append(segments, spec)
			}

			root := args[0]
			logger, err := ctx.logger(cfg, root)
			if err != nil {
				return err
			}
			started := time.Now()
			out, err := experiment.NewRunner(cfg, logger).Run(cmd.Context(), experiment.Request{
				Root:                root,
				SpecFile:            args[1],
				Segments:            segments,
				GeometryFromCropped: f.locationFromCropped,
				ReExtract:           f.reExtract,
				ReMeasure:           f.reMeasure,
				Level:               f.level,
				Chooser:             rename.Overrides{Extension: f.extension, Prefix: f.prefix},
			})
			if err != nil {
				return err
			}
			summary := summarizeRun(out, time.Since(started))
			if f.asJSON {
				return writeJSON(cmd, summary)
			}
			printRunSummary(cmd, summary)
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringArrayVar(&f.segments, "segment", nil, "Geometry change START=FILE; START is a scanner name, canonical name, or 0-based frame index (repeatable)")
	flags.StringVar(&f.normalization, "norm", "", "Normalization: none, each, or combined")
	flags.Float64Var(&f.percentage, "percentage", 0, "Fraction of each region that is measured, in (0, 1]")
	flags.Float64Var(&f.resize, "resize", 0, "Scale factor of the resized preview copies; 0 disables them")
	flags.BoolVar(&f.noFileTime, "no-file-time", false, "Derive times from file numbers instead of modification times")
	flags.BoolVar(&f.locationFromCropped, "location-from-cropped", false, "Region coordinates were measured on padding-cropped frames")
	flags.Float64Var(&f.interval, "interval", 0, "Hours between frames for file-number times")
	flags.Float64Var(&f.start, "start", 0, "Time in hours assigned to the first frame")
	flags.BoolVar(&f.reExtract, "re-extract", false, "Extract sub-images even when the cache is current")
	flags.BoolVar(&f.reMeasure, "re-measure", false, "Measure even when stored results are current")
	flags.IntVar(&f.workers, "workers", 0, "Worker pool size for extraction and measurement; 0 picks a default")
	flags.StringVar(&f.level, "level", "", "Metadata column to group the summary by; defaults to the first")
	flags.StringVar(&f.extension, "extension", "", "Image extension to use when several are present")
	flags.StringVar(&f.prefix, "prefix", "", "File name prefix to use when several are present")
	flags.BoolVar(&f.asJSON, "json", false, "Output as JSON")
	return cmd
}

func printRunSummary(cmd *cobra.Command, s runSummary) {
	out := cmd.OutOrStdout()
	colorize := shouldColorize(out)
	for _, line := range renderSectionHeader("Run "+s.RunID, colorize) {
		fmt.Fprintln(out, line)
	}
	extraction := "skipped (" + s.ExtractReason + ")"
	if s.Extracted {
		extraction = fmt.Sprintf("%s frames, %d failed (%s)", humanize.Comma(int64(s.ExtractProcessed)), s.ExtractFailures, s.ExtractReason)
	}
	measurement := "reused stored table (" + s.MeasureReason + ")"
	if s.Measured {
		measurement = fmt.Sprintf("%d samples, %d failed (%s)", len(s.Samples), len(s.MeasureFailures), s.MeasureReason)
	}
	rows := [][]string{
		{"Renamed", yesNo(s.Renamed)},
		{"Sources", fmt.Sprintf("%s (%d frames)", filepath.Base(s.SourceDir), s.Frames)},
		{"Segments", fmt.Sprint(s.Segments)},
		{"Extraction", extraction},
		{"Measurement", measurement},
		{"Table", fmt.Sprintf("%d rows x %d samples", s.Rows, len(s.Samples))},
		{"Grouped by", s.Level},
		{"Results", s.ResultDir},
		{"Elapsed", time.Duration(s.ElapsedSeconds * float64(time.Second)).Round(time.Millisecond).String()},
	}
	fmt.Fprintln(out, renderTable([]string{"Step", "Outcome"}, rows, nil))
	for _, failure := range s.MeasureFailures {
		fmt.Fprintln(out, "measure failure:", failure)
	}
}
