package aggregate

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"scanlapse/internal/platespec"
)

// GroupRow is one timestamp of a group summary. Mean, StdErr and N align with
// GroupTable.Groups.
type GroupRow struct {
	Time   float64
	Mean   []float64
	StdErr []float64
	N      []int
}

// GroupTable summarizes a Table by a metadata level.
type GroupTable struct {
	Level  string
	Groups []string
	Rows   []GroupRow
}

// Summarize averages table columns that share a value of level. Groups appear
// in order of first occurrence among table samples. Missing cells are skipped;
// a group with fewer than two present values has a NaN standard error.
func Summarize(table *Table, samples *platespec.SampleTable, level string) (*GroupTable, error) {
	if level == "" {
		levels := samples.Levels()
		if len(levels) > 0 {
			level = levels[0]
		}
	}

	out := &GroupTable{Level: level}
	members := map[string][]int{}
	for col, id := range table.Samples {
		sample, ok := samples.Lookup(id)
		if !ok {
			return nil, fmt.Errorf("sample %q missing from %s", id, samples.Source)
		}
		group := sample.Group(level)
		if _, seen := members[group]; !seen {
			out.Groups = append(out.Groups, group)
		}
		members[group] = append(members[group], col)
	}

	out.Rows = make([]GroupRow, len(table.Rows))
	for r, row := range table.Rows {
		gr := GroupRow{
			Time:   row.Time,
			Mean:   make([]float64, len(out.Groups)),
			StdErr: make([]float64, len(out.Groups)),
			N:      make([]int, len(out.Groups)),
		}
		for g, group := range out.Groups {
			var values []float64
			for _, col := range members[group] {
				if v := row.Values[col]; !math.IsNaN(v) {
					values = append(values, v)
				}
			}
			gr.N[g] = len(values)
			switch len(values) {
			case 0:
				gr.Mean[g], gr.StdErr[g] = math.NaN(), math.NaN()
			case 1:
				gr.Mean[g], gr.StdErr[g] = values[0], math.NaN()
			default:
				m, sd := stat.MeanStdDev(values, nil)
				gr.Mean[g] = m
				gr.StdErr[g] = stat.StdErr(sd, float64(len(values)))
			}
		}
		out.Rows[r] = gr
	}
	return out, nil
}
