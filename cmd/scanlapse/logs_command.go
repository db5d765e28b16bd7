package main

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"scanlapse/internal/logs"
	"scanlapse/internal/services"
)

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var lines int
	var level, sample, component, runID string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "logs <root>",
		Short: "Show records from the newest run log of an experiment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			dir := cfg.LogDir(args[0])
			if dir == "" {
				return services.Wrap(services.ErrConfiguration, "logs", "locate", "run logs are disabled (logging.dir is empty)", nil)
			}
			path, ok, err := logs.Latest(dir)
			if err != nil {
				return err
			}
			if !ok {
				return services.Wrap(services.ErrNotFound, "logs", "locate", "no run logs in "+dir, nil)
			}

			var minLevel slog.Level
			if err := minLevel.UnmarshalText([]byte(level)); err != nil {
				return services.Wrap(services.ErrConfiguration, "logs", "flags", "unknown level "+level, err)
			}
			entries, err := logs.Tail(path, logs.Filter{
				MinLevel:  minLevel,
				Component: component,
				Sample:    sample,
				RunID:     runID,
			}, lines)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, entries)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "# %s\n", filepath.Base(path))
			for _, e := range entries {
				fmt.Fprintln(out, formatEntry(e))
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&lines, "lines", "n", 50, "Number of records to show; 0 shows all")
	cmd.Flags().StringVar(&level, "level", "info", "Minimum level: debug, info, warn, or error")
	cmd.Flags().StringVar(&sample, "sample", "", "Only records for this sample")
	cmd.Flags().StringVar(&component, "component", "", "Only records from this component")
	cmd.Flags().StringVar(&runID, "run", "", "Only records from this run id")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func formatEntry(e logs.Entry) string {
	var b strings.Builder
	b.WriteString(e.Time.Local().Format("15:04:05"))
	b.WriteString(" ")
	b.WriteString(strings.ToUpper(e.Level))
	if e.Component != "" {
		b.WriteString(" [" + e.Component + "]")
	}
	b.WriteString(" " + e.Message)
	if e.Sample != "" {
		b.WriteString(" sample=" + e.Sample)
	}
	keys := make([]string, 0, len(e.Attrs))
	for k := range e.Attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, e.Attrs[k])
	}
	return b.String()
}
