package measure

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"scanlapse/internal/geometry"
	"scanlapse/internal/imaging"
	"scanlapse/internal/logging"
	"scanlapse/internal/platespec"
	"scanlapse/internal/services"
	"scanlapse/internal/workpool"
)

// DefaultWorkers is the folder concurrency used when Options.Workers is 0.
const DefaultWorkers = 8

// Target is one sample folder to measure.
type Target struct {
	Sample  string
	Dir     string
	Measure platespec.Measure
	// Polygons holds one polygon per frame in frame order for polygon
	// samples. A short list reuses its last entry.
	Polygons []geometry.Polygon
}

// Options tunes measurement.
type Options struct {
	Workers             int
	Percentage          float64
	IntervalHours       float64
	ForceFileNumberTime bool
	Logger              *slog.Logger
}

// UnitError is the failure of one sample folder.
type UnitError struct {
	Sample string
	Err    error
}

func (e UnitError) Error() string { return fmt.Sprintf("sample %s: %v", e.Sample, e.Err) }

func (e UnitError) Unwrap() error { return e.Err }

// Result holds measured series in target order and the folders that failed.
type Result struct {
	Series []Series
	Errors []UnitError
}

// Run measures every target concurrently.
func Run(ctx context.Context, targets []Target, opts Options) (*Result, error) {
	ctx = services.WithStage(ctx, "measure")
	logger := logging.WithContext(ctx, logging.NewComponentLogger(opts.Logger, "measure"))
	workers := opts.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}

	units := make([]workpool.Unit[string, Series], 0, len(targets))
	for _, target := range targets {
		units = append(units, workpool.Unit[string, Series]{
			Key: target.Sample,
			Run: func(ctx context.Context) (Series, error) {
				return MeasureFolder(ctx, target, opts)
			},
		})
	}

	started := time.Now()
	sampler := logging.NewProgressSampler(25)
	pool := workpool.New(workers).OnDone(func(done, total int) {
		if pct, ok := sampler.Observe(done, total); ok {
			logger.Info("measurement progress", logging.Float64("percent", pct))
		}
	})
	results, err := workpool.Run(ctx, pool, units)
	if err != nil {
		return nil, err
	}

	out := &Result{Series: make([]Series, 0, len(targets))}
	for _, target := range targets {
		res := results[target.Sample]
		if res.Err != nil {
			out.Errors = append(out.Errors, UnitError{Sample: target.Sample, Err: res.Err})
			logging.WarnWithContext(logger, "sample measurement failed", "measure_unit_failed",
				logging.Sample(target.Sample),
				logging.Error(res.Err),
				logging.String(logging.FieldImpact, "sample missing from the measurement table"),
			)
			continue
		}
		out.Series = append(out.Series, res.Value)
	}
	logger.Info("measurement finished",
		logging.Int("samples", len(out.Series)),
		logging.Int("failed", len(out.Errors)),
		logging.Duration("elapsed", time.Since(started)),
	)
	return out, nil
}

// MeasureFolder measures every frame of one sample folder.
func MeasureFolder(ctx context.Context, target Target, opts Options) (Series, error) {
	series := Series{Sample: target.Sample}
	frames, err := listFrames(target.Dir)
	if err != nil {
		return series, err
	}
	if len(frames) == 0 {
		return series, fmt.Errorf("no frames in %s", target.Dir)
	}
	if target.Measure == platespec.MeasurePolygon && len(target.Polygons) == 0 {
		return series, errors.New("polygon sample without polygon geometry")
	}
	basis, err := chooseBasis(target.Dir, frames, opts.ForceFileNumberTime)
	if err != nil {
		return series, err
	}
	series.Basis = basis
	interval := opts.IntervalHours
	if interval <= 0 {
		interval = 1
	}
	pct := opts.Percentage
	if pct <= 0 || pct > 1 {
		pct = 1
	}

	series.Points = make([]Point, 0, len(frames))
	for i, name := range frames {
		if err := ctx.Err(); err != nil {
			return series, err
		}
		path := filepath.Join(target.Dir, name)
		var t float64
		if basis == BasisFileNumber {
			n, err := FileNumber(name, target.Sample)
			if err != nil {
				return series, err
			}
			t = float64(n) * interval
		} else {
			captured, err := statModTime(path)
			if err != nil {
				return series, err
			}
			t = float64(captured.UnixNano()) / float64(time.Hour)
		}

		img, err := imaging.Decode(path)
		if err != nil {
			return series, err
		}
		luma := imaging.Luminance(img)
		var mask *Mask
		switch target.Measure {
		case platespec.MeasureSquare:
			mask = SquareMask(luma.Width, luma.Height, pct)
		case platespec.MeasurePolygon:
			poly := target.Polygons[min(i, len(target.Polygons)-1)]
			mask = PolygonMask(luma.Width, luma.Height, poly.Vertices)
		default:
			mask = DiskMask(luma.Width, luma.Height, pct)
		}
		value, err := MaskedMean(luma, mask)
		if err != nil {
			return series, fmt.Errorf("%s: %w", name, err)
		}
		series.Points = append(series.Points, Point{Time: t, Value: value})
	}
	return series, nil
}
