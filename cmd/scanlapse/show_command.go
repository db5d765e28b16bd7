package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"scanlapse/internal/aggregate"
	"scanlapse/internal/resultstore"
	"scanlapse/internal/services"
)

type jsonRow struct {
	Time   float64    `json:"time_hours"`
	Values []*float64 `json:"values"`
}

type jsonGroupRow struct {
	Time   float64    `json:"time_hours"`
	Mean   []*float64 `json:"mean"`
	StdErr []*float64 `json:"std_err"`
	N      []int      `json:"n"`
}

type jsonSnapshot struct {
	RunID         string         `json:"run_id"`
	CreatedAt     time.Time      `json:"created_at"`
	Normalization string         `json:"normalization"`
	Samples       []string       `json:"samples"`
	Rows          []jsonRow      `json:"rows"`
	Level         string         `json:"level,omitempty"`
	Groups        []string       `json:"groups,omitempty"`
	GroupRows     []jsonGroupRow `json:"group_rows,omitempty"`
}

func toJSONSnapshot(snap *resultstore.Snapshot) jsonSnapshot {
	out := jsonSnapshot{
		RunID:         snap.RunID,
		CreatedAt:     snap.CreatedAt,
		Normalization: snap.Normalization,
		Samples:       snap.Table.Samples,
		Rows:          make([]jsonRow, 0, len(snap.Table.Rows)),
	}
	for _, row := range snap.Table.Rows {
		out.Rows = append(out.Rows, jsonRow{Time: row.Time, Values: nullable(row.Values)})
	}
	if snap.Summary != nil {
		out.Level = snap.Summary.Level
		out.Groups = snap.Summary.Groups
		for _, row := range snap.Summary.Rows {
			out.GroupRows = append(out.GroupRows, jsonGroupRow{
				Time:   row.Time,
				Mean:   nullable(row.Mean),
				StdErr: nullable(row.StdErr),
				N:      row.N,
			})
		}
	}
	return out
}

func newShowCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	var groupsOnly bool

	cmd := &cobra.Command{
		Use:   "show <root>",
		Short: "Show the stored measurement table and group summary",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root := args[0]
			if _, err := os.Stat(filepath.Join(root, resultstore.FileName)); err != nil {
				if errors.Is(err, os.ErrNotExist) {
					return services.Wrap(services.ErrNotFound, "show", "open", "no stored results in "+root+"; run 'scanlapse run' first", nil)
				}
				return fmt.Errorf("stat result store: %w", err)
			}
			store, err := resultstore.Open(cmd.Context(), root)
			if err != nil {
				return err
			}
			defer store.Close()
			snap, err := store.Latest(cmd.Context())
			if err != nil {
				return err
			}
			if snap == nil {
				return services.Wrap(services.ErrNotFound, "show", "latest", "result store in "+root+" holds no runs", nil)
			}
			if asJSON {
				return writeJSON(cmd, toJSONSnapshot(snap))
			}

			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			fmt.Fprintf(out, "Run %s, measured %s, normalization %s\n\n",
				snap.RunID, snap.CreatedAt.Local().Format("2006-01-02 15:04:05"), snap.Normalization)
			if !groupsOnly {
				for _, line := range renderSectionHeader("Measurements", colorize) {
					fmt.Fprintln(out, line)
				}
				fmt.Fprintln(out, renderMeasurements(snap.Table))
			}
			if snap.Summary != nil {
				for _, line := range renderSectionHeader("By "+levelTitle(snap.Summary.Level), colorize) {
					fmt.Fprintln(out, line)
				}
				fmt.Fprintln(out, renderSummary(snap.Summary))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	cmd.Flags().BoolVar(&groupsOnly, "groups", false, "Only show the group summary")
	return cmd
}

func renderMeasurements(table *aggregate.Table) string {
	headers := append([]string{"Hours"}, table.Samples...)
	rows := make([][]string, 0, len(table.Rows))
	for _, row := range table.Rows {
		cells := make([]string, 0, len(headers))
		cells = append(cells, formatHours(row.Time))
		for _, v := range row.Values {
			cells = append(cells, formatValue(v))
		}
		rows = append(rows, cells)
	}
	return renderTable(headers, rows, numericAligns(len(headers)))
}

func renderSummary(summary *aggregate.GroupTable) string {
	headers := []string{"Hours"}
	for _, g := range summary.Groups {
		headers = append(headers, g+" mean", g+" sem", g+" n")
	}
	rows := make([][]string, 0, len(summary.Rows))
	for _, row := range summary.Rows {
		cells := []string{formatHours(row.Time)}
		for i := range summary.Groups {
			cells = append(cells, formatValue(row.Mean[i]), formatValue(row.StdErr[i]), fmt.Sprint(row.N[i]))
		}
		rows = append(rows, cells)
	}
	return renderTable(headers, rows, numericAligns(len(headers)))
}
