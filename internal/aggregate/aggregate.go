// Package aggregate rebases, normalizes, and joins per-sample series into one
// table keyed by time.
package aggregate

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"scanlapse/internal/config"
	"scanlapse/internal/measure"
)

// zeroRows is the number of leading points whose mean defines zero under
// normalization.
const zeroRows = 3

// Row is one timestamp of the joined table. Values align with Table.Samples;
// NaN marks a sample without a point at Time.
type Row struct {
	Time   float64
	Values []float64
}

// Table is the outer join of every sample series on time.
type Table struct {
	Samples []string
	Rows    []Row
}

// Column returns the values of sample in row order.
func (t *Table) Column(sample string) ([]float64, bool) {
	for i, s := range t.Samples {
		if s == sample {
			out := make([]float64, len(t.Rows))
			for r, row := range t.Rows {
				out[r] = row.Values[i]
			}
			return out, true
		}
	}
	return nil, false
}

// Options controls Build.
type Options struct {
	// StartHours is the time assigned to the earliest frame of each sample.
	StartHours    float64
	Normalization string
}

// Build rebases, sorts, and normalizes each series, then joins them. Sample
// columns follow the order of series.
func Build(series []measure.Series, opts Options) (*Table, error) {
	switch opts.Normalization {
	case config.NormalizationNone, config.NormalizationEach, config.NormalizationCombined:
	default:
		return nil, fmt.Errorf("unknown normalization %q", opts.Normalization)
	}

	prepared := make([][]measure.Point, len(series))
	for i, s := range series {
		points := Rebase(s.Points, opts.StartHours)
		if opts.Normalization == config.NormalizationEach {
			values := pointValues(points)
			normalize(values, mean(values[:min(zeroRows, len(values))]))
			for j := range points {
				points[j].Value = values[j]
			}
		}
		prepared[i] = points
	}

	table := join(series, prepared)
	if opts.Normalization == config.NormalizationCombined {
		normalizeCombined(table, pooledZero(prepared))
	}
	return table, nil
}

// Rebase shifts points so the earliest lands at start and sorts them by time.
// The input is not modified.
func Rebase(points []measure.Point, start float64) []measure.Point {
	out := append([]measure.Point(nil), points...)
	if len(out) == 0 {
		return out
	}
	earliest := out[0].Time
	for _, p := range out[1:] {
		earliest = math.Min(earliest, p.Time)
	}
	shift := earliest - start
	for i := range out {
		out[i].Time -= shift
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Time < out[j].Time })
	return out
}

func join(series []measure.Series, prepared [][]measure.Point) *Table {
	table := &Table{Samples: make([]string, len(series))}
	index := map[float64]int{}
	var times []float64
	for i, s := range series {
		table.Samples[i] = s.Sample
		for _, p := range prepared[i] {
			if _, ok := index[p.Time]; !ok {
				index[p.Time] = len(times)
				times = append(times, p.Time)
			}
		}
	}
	sort.Float64s(times)
	for i, t := range times {
		index[t] = i
	}

	table.Rows = make([]Row, len(times))
	for i, t := range times {
		values := make([]float64, len(series))
		for j := range values {
			values[j] = math.NaN()
		}
		table.Rows[i] = Row{Time: t, Values: values}
	}
	for col, points := range prepared {
		// A repeated timestamp keeps the later point.
		for _, p := range points {
			table.Rows[index[p.Time]].Values[col] = p.Value
		}
	}
	return table
}

// pooledZero is the mean of the first points of every series pooled
// together. Series are rebased and sorted; staggered timestamps make this
// differ from the first rows of the joined table.
func pooledZero(prepared [][]measure.Point) float64 {
	var head []float64
	for _, points := range prepared {
		head = append(head, present(pointValues(points[:min(zeroRows, len(points))]))...)
	}
	return mean(head)
}

// normalizeCombined subtracts zero from every present cell and divides by the
// table-wide maximum.
func normalizeCombined(t *Table, zero float64) {
	var all []float64
	for _, row := range t.Rows {
		for i, v := range row.Values {
			if !math.IsNaN(v) {
				row.Values[i] = v - zero
				all = append(all, row.Values[i])
			}
		}
	}
	if len(all) == 0 {
		return
	}
	peak := floats.Max(all)
	if peak == 0 || math.IsNaN(peak) {
		return
	}
	for _, row := range t.Rows {
		for i, v := range row.Values {
			if !math.IsNaN(v) {
				row.Values[i] = v / peak
			}
		}
	}
}

// normalize subtracts zero from values and divides by the resulting maximum.
// A zero maximum leaves the shifted values unscaled.
func normalize(values []float64, zero float64) {
	if len(values) == 0 {
		return
	}
	floats.AddConst(-zero, values)
	peak := floats.Max(values)
	if peak == 0 || math.IsNaN(peak) {
		return
	}
	for i := range values {
		values[i] /= peak
	}
}

func pointValues(points []measure.Point) []float64 {
	out := make([]float64, len(points))
	for i, p := range points {
		out[i] = p.Value
	}
	return out
}

func present(values []float64) []float64 {
	out := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) {
			out = append(out, v)
		}
	}
	return out
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return stat.Mean(values, nil)
}
