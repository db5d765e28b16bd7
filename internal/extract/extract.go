// Package extract cuts every source frame into per-sample sub-images.
//
// Frames are processed per segment in canonical order, each segment under the
// geometry that governed that stretch of the experiment. The first frame of a
// segment runs alone so a broken layout fails fast; the rest fan out on a
// bounded pool and fail individually.
package extract

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"scanlapse/internal/cachegate"
	"scanlapse/internal/geometry"
	"scanlapse/internal/imaging"
	"scanlapse/internal/logging"
	"scanlapse/internal/services"
	"scanlapse/internal/workpool"
)

// ResizedQuality is the JPEG quality of preview copies.
const ResizedQuality = 85

// Segment is a contiguous run of sources sharing one geometry plan.
type Segment struct {
	// Start indexes the first source of the segment.
	Start int
	Plan  *geometry.Plan
	// Source names the geometry file, for logs.
	Source string
}

// Job describes one extraction pass over an experiment directory.
type Job struct {
	Root      string
	SourceDir string
	// Sources are file names inside SourceDir in canonical order.
	Sources []string
	// Segments are ordered by Start; the first starts at 0.
	Segments []Segment
	// SourceCropped is set when sources are padding-cropped copies.
	SourceCropped bool
}

// Options tunes extraction.
type Options struct {
	// Workers bounds concurrent frames; 0 uses runtime.NumCPU().
	Workers int
	// ResizeFactor scales the preview copy; 0 disables it.
	ResizeFactor       float64
	PreserveTimestamps bool
	JPEGQuality        int
	Logger             *slog.Logger
}

// UnitError is the failure of a single source frame.
type UnitError struct {
	Source  string
	Segment int
	Err     error
}

func (e UnitError) Error() string {
	return fmt.Sprintf("%s (segment %d): %v", e.Source, e.Segment, e.Err)
}

func (e UnitError) Unwrap() error { return e.Err }

// Report summarizes an extraction pass.
type Report struct {
	Processed int
	Failed    int
	Errors    []UnitError
	Elapsed   time.Duration
}

// Run extracts every segment of job. It returns an error only when a
// segment's first frame fails, the job is malformed, or ctx ends; per-frame
// failures land in the report.
func Run(ctx context.Context, job Job, opts Options) (*Report, error) {
	ctx = services.WithStage(ctx, "extract")
	logger := logging.WithContext(ctx, logging.NewComponentLogger(opts.Logger, "extract"))
	if err := validate(job); err != nil {
		return nil, err
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	started := time.Now()
	report := &Report{}
	sampler := logging.NewProgressSampler(10)
	for i, seg := range job.Segments {
		end := len(job.Sources)
		if i+1 < len(job.Segments) {
			end = job.Segments[i+1].Start
		}
		names := job.Sources[seg.Start:end]
		logger.Info("extracting segment",
			logging.Int("segment", i),
			logging.String("geometry", seg.Source),
			logging.Int("frames", len(names)),
			logging.Int("regions", len(seg.Plan.Order)),
		)

		units := make([]workpool.Unit[string, struct{}], 0, len(names))
		for _, name := range names {
			units = append(units, workpool.Unit[string, struct{}]{
				Key: name,
				Run: func(context.Context) (struct{}, error) {
					return struct{}{}, cutFrame(job, seg.Plan, name, opts)
				},
			})
		}
		offset := report.Processed + report.Failed
		pool := workpool.New(workers).OnDone(func(done, _ int) {
			if pct, ok := sampler.Observe(offset+done, len(job.Sources)); ok {
				logger.Info("extraction progress", logging.Float64("percent", pct))
			}
		})

		results, err := workpool.RunFirstThenRest(ctx, pool, units)
		if err != nil {
			if first, ok := results[names[0]]; ok && first.Err != nil {
				return report, services.Wrap(services.ErrUnit, "extract", "first frame",
					fmt.Sprintf("segment %d (%s) failed on %s", i, seg.Source, names[0]), first.Err)
			}
			return report, err
		}
		failed := results.Errors(func(a, b string) bool { return a < b })
		for _, res := range failed {
			unitErr := UnitError{Source: res.Key, Segment: i, Err: res.Err}
			report.Errors = append(report.Errors, unitErr)
			logging.WarnWithContext(logger, "frame extraction failed", "extract_unit_failed",
				logging.SourceFile(res.Key),
				logging.Error(res.Err),
				logging.String(logging.FieldImpact, "frame missing from every sample folder"),
			)
		}
		report.Processed += len(results) - len(failed)
		report.Failed += len(failed)
	}
	report.Elapsed = time.Since(started)
	logger.Info("extraction finished",
		logging.Int("processed", report.Processed),
		logging.Int("failed", report.Failed),
		logging.Duration("elapsed", report.Elapsed),
	)
	return report, nil
}

func validate(job Job) error {
	if len(job.Segments) == 0 {
		return services.Wrap(services.ErrConfiguration, "extract", "plan", "no geometry segments", nil)
	}
	prev := -1
	for i, seg := range job.Segments {
		if seg.Plan == nil {
			return services.Wrap(services.ErrConfiguration, "extract", "plan", fmt.Sprintf("segment %d has no geometry", i), nil)
		}
		if i == 0 && seg.Start != 0 {
			return services.Wrap(services.ErrConfiguration, "extract", "plan", "first segment must start at frame 0", nil)
		}
		if seg.Start <= prev || seg.Start >= len(job.Sources) {
			return services.Wrap(services.ErrConfiguration, "extract", "plan",
				fmt.Sprintf("segment %d start %d out of order or range (%d frames)", i, seg.Start, len(job.Sources)), nil)
		}
		prev = seg.Start
	}
	return nil
}

// cutFrame writes every derived file of one source frame.
func cutFrame(job Job, plan *geometry.Plan, name string, opts Options) error {
	path := filepath.Join(job.SourceDir, name)
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	img, err := imaging.Decode(path)
	if err != nil {
		return err
	}

	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	outExt := imaging.OutputExt(ext)
	captured := info.ModTime()

	var written []string
	save := func(rel string, out image.Image, quality int) error {
		target := filepath.Join(job.Root, rel)
		if err := imaging.Save(target, out, quality); err != nil {
			return err
		}
		written = append(written, target)
		return nil
	}

	for _, id := range plan.Order {
		rel := filepath.Join(cachegate.SubImagesDir, id, stem+"_"+id+outExt)
		if err := save(rel, imaging.Crop(img, plan.Boxes[id].Rect()), opts.JPEGQuality); err != nil {
			return fmt.Errorf("region %s: %w", id, err)
		}
	}

	frame := img
	if plan.Padding != nil && !job.SourceCropped {
		cropped := imaging.Crop(img, plan.Padding.Rect())
		if err := save(filepath.Join(cachegate.CroppedDir, stem+"_cropped"+outExt), cropped, opts.JPEGQuality); err != nil {
			return fmt.Errorf("padding copy: %w", err)
		}
		frame = cropped
	}
	if opts.ResizeFactor > 0 {
		if err := save(filepath.Join(cachegate.ResizedDir, stem+"_resized.jpg"), imaging.Scale(frame, opts.ResizeFactor), ResizedQuality); err != nil {
			return fmt.Errorf("resized copy: %w", err)
		}
	}

	if opts.PreserveTimestamps {
		var errs []error
		for _, target := range written {
			errs = append(errs, os.Chtimes(target, captured, captured))
		}
		if err := errors.Join(errs...); err != nil {
			return fmt.Errorf("preserve capture time: %w", err)
		}
	}
	return nil
}

// Folders lists the output folders, relative to the experiment root, that an
// extraction with these regions creates.
func Folders(samples []string, padding, sourceCropped bool, resizeFactor float64) []string {
	folders := make([]string, 0, len(samples)+2)
	for _, id := range samples {
		folders = append(folders, filepath.Join(cachegate.SubImagesDir, id))
	}
	if padding && !sourceCropped {
		folders = append(folders, cachegate.CroppedDir)
	}
	if resizeFactor > 0 {
		folders = append(folders, cachegate.ResizedDir)
	}
	return folders
}
