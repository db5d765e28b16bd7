package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"scanlapse/internal/cachegate"
	"scanlapse/internal/rename"
	"scanlapse/internal/resultstore"
)

func newRenameCommand(ctx *commandContext) *cobra.Command {
	var extension, prefix string
	var offset int

	cmd := &cobra.Command{
		Use:   "rename <dir>",
		Short: "Rename scanner frames to canonical 0-based names",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.configCopy()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("offset") {
				cfg.Rename.ScannerOffset = offset
			}
			dir := args[0]
			logger, err := ctx.logger(cfg, dir)
			if err != nil {
				return err
			}
			machine := rename.New(dir, rename.Options{
				ScannerOffset: cfg.Rename.ScannerOffset,
				Archive:       cfg.Rename.ArchiveDir,
				Chooser:       rename.Overrides{Extension: extension, Prefix: prefix},
				Logger:        logger,
			})
			log, err := machine.Canonicalize(cmd.Context())
			if err != nil {
				return err
			}
			scanLog, err := rename.WriteScanLog(dir, log)
			if err != nil {
				return fmt.Errorf("write scan log: %w", err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Renamed %d frames (%s*%s, %d digits)\n", len(log.Old2New), log.Prefix, log.Extension, log.Digits)
			fmt.Fprintf(out, "Originals archived in %s\n", filepath.Join(dir, log.Archive))
			fmt.Fprintf(out, "Scan log: %s\n", scanLog)
			return nil
		},
	}

	cmd.Flags().StringVar(&extension, "extension", "", "Image extension to use when several are present")
	cmd.Flags().StringVar(&prefix, "prefix", "", "File name prefix to use when several are present")
	cmd.Flags().IntVar(&offset, "offset", 0, "Scanner numbering offset (overrides rename.scanner_offset)")
	return cmd
}

func newRestoreCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "restore <dir>",
		Short: "Restore scanner names and capture times",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.configCopy()
			if err != nil {
				return err
			}
			dir := args[0]
			logger, err := ctx.logger(cfg, dir)
			if err != nil {
				return err
			}
			machine := rename.New(dir, rename.Options{
				ScannerOffset: cfg.Rename.ScannerOffset,
				Archive:       cfg.Rename.ArchiveDir,
				Logger:        logger,
			})
			log, err := machine.Restore(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Restored %d frames to scanner names\n", len(log.Old2New))
			return nil
		},
	}
}

type statusReport struct {
	Dir            string `json:"dir"`
	State          string `json:"state"`
	Frames         int    `json:"frames"`
	Fingerprint    bool   `json:"fingerprint"`
	StoredRuns     bool   `json:"stored_runs"`
	LatestRunID    string `json:"latest_run_id,omitempty"`
	LatestRows     int    `json:"latest_rows"`
	LatestSamples  int    `json:"latest_samples"`
	LatestMeasured string `json:"latest_measured,omitempty"`
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status <dir>",
		Short: "Show rename state, extraction cache, and stored results",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := collectStatus(cmd, args[0])
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, report)
			}
			colorize := shouldColorize(cmd.OutOrStdout())
			rows := [][]string{
				{"Directory", report.Dir},
				{"Rename state", report.State},
				{"Frames", fmt.Sprint(report.Frames)},
				{"Extraction fingerprint", yesNo(report.Fingerprint)},
				{"Stored results", yesNo(report.StoredRuns)},
			}
			if report.StoredRuns {
				rows = append(rows,
					[]string{"Latest run", report.LatestRunID},
					[]string{"Latest measured", report.LatestMeasured},
					[]string{"Rows x samples", fmt.Sprintf("%d x %d", report.LatestRows, report.LatestSamples)},
				)
			}
			out := cmd.OutOrStdout()
			for _, line := range renderSectionHeader("Status", colorize) {
				fmt.Fprintln(out, line)
			}
			fmt.Fprintln(out, renderTable([]string{"Field", "Value"}, rows, nil))
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func collectStatus(cmd *cobra.Command, dir string) (statusReport, error) {
	report := statusReport{Dir: dir}
	log, ok, err := rename.Load(dir)
	if err != nil {
		return report, err
	}
	report.State = string(rename.StateUninitialized)
	if ok {
		report.State = string(log.State)
		report.Frames = len(log.Old2New)
	}
	if _, report.Fingerprint, err = cachegate.LoadFingerprint(dir); err != nil {
		return report, err
	}

	// Opening the store creates it; only look when a previous run left one.
	if _, err := os.Stat(filepath.Join(dir, resultstore.FileName)); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return report, nil
		}
		return report, fmt.Errorf("stat result store: %w", err)
	}
	store, err := resultstore.Open(cmd.Context(), dir)
	if err != nil {
		return report, err
	}
	defer store.Close()
	info, ok, err := store.LatestInfo(cmd.Context())
	if err != nil {
		return report, err
	}
	if ok {
		report.StoredRuns = true
		report.LatestRunID = info.RunID
		report.LatestRows = info.Rows
		report.LatestSamples = info.Samples
		report.LatestMeasured = info.CreatedAt.Local().Format("2006-01-02 15:04:05")
	}
	return report, nil
}
