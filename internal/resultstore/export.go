package resultstore

import (
	"bytes"
	"fmt"
	"math"
	"path/filepath"
	"strconv"
	"strings"

	"scanlapse/internal/aggregate"
	"scanlapse/internal/fileutil"
)

const (
	// MeasurementsFile is the joined table export.
	MeasurementsFile = "measurements.tsv"
	// SummaryFile is the group summary export.
	SummaryFile = "group_summary.tsv"
)

// ExportTSV writes the table, and the summary when present, into dir. Missing
// cells are empty. Each file is replaced atomically.
func ExportTSV(dir string, table *aggregate.Table, summary *aggregate.GroupTable) ([]string, error) {
	var written []string

	var buf bytes.Buffer
	buf.WriteString("time_hours")
	for _, sample := range table.Samples {
		buf.WriteString("\t" + sample)
	}
	buf.WriteByte('\n')
	for _, row := range table.Rows {
		buf.WriteString(formatFloat(row.Time))
		for _, v := range row.Values {
			buf.WriteString("\t" + formatFloat(v))
		}
		buf.WriteByte('\n')
	}
	path := filepath.Join(dir, MeasurementsFile)
	if err := fileutil.WriteFileAtomic(path, buf.Bytes(), 0o644); err != nil {
		return nil, fmt.Errorf("export measurements: %w", err)
	}
	written = append(written, path)

	if summary == nil {
		return written, nil
	}
	buf.Reset()
	header := []string{"time_hours"}
	for _, group := range summary.Groups {
		header = append(header, group+"_mean", group+"_sem", group+"_n")
	}
	buf.WriteString(strings.Join(header, "\t") + "\n")
	for _, row := range summary.Rows {
		buf.WriteString(formatFloat(row.Time))
		for g := range summary.Groups {
			fmt.Fprintf(&buf, "\t%s\t%s\t%d", formatFloat(row.Mean[g]), formatFloat(row.StdErr[g]), row.N[g])
		}
		buf.WriteByte('\n')
	}
	path = filepath.Join(dir, SummaryFile)
	if err := fileutil.WriteFileAtomic(path, buf.Bytes(), 0o644); err != nil {
		return written, fmt.Errorf("export summary: %w", err)
	}
	return append(written, path), nil
}

func formatFloat(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}
