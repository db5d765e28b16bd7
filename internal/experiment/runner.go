package experiment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"scanlapse/internal/aggregate"
	"scanlapse/internal/cachegate"
	"scanlapse/internal/config"
	"scanlapse/internal/extract"
	"scanlapse/internal/geometry"
	"scanlapse/internal/logging"
	"scanlapse/internal/measure"
	"scanlapse/internal/platespec"
	"scanlapse/internal/preflight"
	"scanlapse/internal/rename"
	"scanlapse/internal/resultstore"
	"scanlapse/internal/services"
)

const (
	// LockFileName guards an experiment directory against concurrent runs.
	LockFileName = ".scanlapse.lock"
	// RunConfigFile records the effective configuration in a result folder.
	RunConfigFile = "run_config.toml"

	resultDirLayout = "2006.01.02-15.04.05"
	keepStoredRuns  = 20
)

// Request describes one pipeline run.
type Request struct {
	Root string
	// SpecFile holds the geometry and sample metadata that apply from the
	// first frame.
	SpecFile string
	Segments []SegmentSpec
	// GeometryFromCropped declares every layout was measured on
	// padding-cropped frames.
	GeometryFromCropped bool
	ReExtract           bool
	ReMeasure           bool
	// Level selects the metadata column for group summaries; empty uses the
	// first one.
	Level string
	// Chooser resolves naming ambiguities on first canonicalization.
	Chooser rename.Chooser
}

// Outcome reports what a run did.
type Outcome struct {
	RunID         string
	Renamed       bool
	ScanLog       string
	Sources       Sources
	Segments      []Segment
	Extraction    cachegate.Decision
	ExtractReport *extract.Report
	Measurement   cachegate.Decision
	MeasureErrors []measure.UnitError
	Table         *aggregate.Table
	Summary       *aggregate.GroupTable
	ResultDir     string
	Exports       []string
}

// Runner executes pipeline runs with a fixed configuration.
type Runner struct {
	cfg    *config.Config
	logger *slog.Logger
	now    func() time.Time
}

// NewRunner constructs a Runner. A nil logger discards output.
func NewRunner(cfg *config.Config, logger *slog.Logger) *Runner {
	return &Runner{
		cfg:    cfg,
		logger: logging.NewComponentLogger(logger, "experiment"),
		now:    time.Now,
	}
}

// specSet is everything parsed from the spec files, validated before mutation.
type specSet struct {
	layouts []*platespec.Layout
	samples *platespec.SampleTable
}

// Run executes the pipeline described by req.
func (r *Runner) Run(ctx context.Context, req Request) (*Outcome, error) {
	root, err := filepath.Abs(req.Root)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "experiment", "root", req.Root, err)
	}
	out := &Outcome{RunID: uuid.NewString()}
	ctx = services.WithRunID(ctx, out.RunID)
	logger := logging.WithContext(ctx, r.logger)

	files := append([]string{req.SpecFile}, segmentFiles(req.Segments)...)
	if err := preflight.Failed(preflight.RunAll(root, files)); err != nil {
		return nil, err
	}

	lock := flock.New(filepath.Join(root, LockFileName))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire experiment lock: %w", err)
	}
	if !locked {
		return nil, services.Wrap(services.ErrValidation, "experiment", "lock",
			"another scanlapse run holds "+filepath.Join(root, LockFileName), nil)
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			logger.Warn("failed to release experiment lock", logging.Error(err))
		}
	}()

	parsed, err := r.parseSpecs(req)
	if err != nil {
		return nil, err
	}

	// Segment starts and geometry are checked against the planned mapping so
	// configuration errors surface before any frame is renamed.
	machine := r.renamer(root, req.Chooser)
	planned, err := machine.Plan(ctx)
	if err != nil {
		return nil, err
	}
	pairs := planned.Pairs()
	if len(pairs) == 0 {
		return nil, services.Wrap(services.ErrConfiguration, "experiment", "sources", "rename log lists no frames", nil)
	}
	out.Segments, err = ResolveSegments(req.SpecFile, req.Segments, pairs)
	if err != nil {
		return nil, err
	}
	state, err := rename.StateOf(root)
	if err != nil {
		return nil, err
	}
	// Renaming archives every frame, so only an already canonical directory
	// can be left reading padding-cropped copies.
	if state == rename.StateCanonical {
		if out.Sources, err = locateSources(root, r.cfg.Rename.ArchiveDir, pairs); err != nil {
			return nil, err
		}
	}
	// Segment order decides which parsed layout governs which frames.
	layouts := make([]*platespec.Layout, len(out.Segments))
	for i, seg := range out.Segments {
		layouts[i] = parsed.layoutFor(seg.File)
	}
	geomOpts := geometry.Options{SourceCropped: out.Sources.Cropped, GeometryFromCropped: req.GeometryFromCropped}
	plans := make([]*geometry.Plan, len(layouts))
	padding := false
	for i, layout := range layouts {
		if plans[i], err = geometry.Resolve(layout, geomOpts); err != nil {
			return nil, err
		}
		padding = padding || plans[i].Padding != nil
	}

	if state != rename.StateCanonical {
		log, err := machine.Canonicalize(ctx)
		if err != nil {
			return nil, err
		}
		out.Renamed = true
		if out.ScanLog, err = rename.WriteScanLog(root, log); err != nil {
			logging.WarnWithContext(logger, "scan log not written", "scan_log_failed", logging.Error(err))
		}
		if out.Sources, err = locateSources(root, r.cfg.Rename.ArchiveDir, log.Pairs()); err != nil {
			return nil, err
		}
	}
	regions := unionRegions(plans)
	for _, id := range regions {
		if _, ok := parsed.samples.Lookup(id); !ok {
			logging.WarnWithContext(logger, "region has no sample metadata", "region_unmeasured",
				logging.Sample(id),
				logging.String(logging.FieldImpact, "sub-images are cut but the region is not measured"),
			)
		}
	}
	logger.Info("run planned",
		logging.String("root", root),
		logging.Int("frames", len(out.Sources.Names)),
		logging.Int("segments", len(out.Segments)),
		logging.Int("regions", len(regions)),
		logging.Bool("source_cropped", out.Sources.Cropped),
	)

	extracted, err := r.extractStage(ctx, root, req, out, plans, regions, padding)
	if err != nil {
		return nil, err
	}
	if err := r.measureStage(ctx, root, req, out, parsed.samples, plans, extracted); err != nil {
		return nil, err
	}
	if err := r.export(root, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Runner) parseSpecs(req Request) (*specSet, error) {
	p := &specSet{}
	samples, err := platespec.LoadSamples(req.SpecFile)
	if err != nil {
		return nil, err
	}
	p.samples = samples
	seen := map[string]bool{}
	for _, file := range append([]string{req.SpecFile}, segmentFiles(req.Segments)...) {
		if seen[file] {
			continue
		}
		seen[file] = true
		layout, err := platespec.LoadLayout(file)
		if err != nil {
			return nil, err
		}
		if _, err := geometry.Resolve(layout, geometry.Options{}); err != nil {
			return nil, err
		}
		p.layouts = append(p.layouts, layout)
	}
	var names []string
	for _, l := range p.layouts {
		names = append(names, l.Names()...)
	}
	if err := checkSamples(p.samples, names); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *specSet) layoutFor(file string) *platespec.Layout {
	for _, l := range p.layouts {
		if l.Source == file {
			return l
		}
	}
	return nil
}

// renamer constructs the rename machine for root.
func (r *Runner) renamer(root string, chooser rename.Chooser) *rename.Machine {
	return rename.New(root, rename.Options{
		ScannerOffset: r.cfg.Rename.ScannerOffset,
		Archive:       r.cfg.Rename.ArchiveDir,
		Chooser:       chooser,
		Logger:        r.logger,
	})
}

func (r *Runner) extractStage(ctx context.Context, root string, req Request, out *Outcome, plans []*geometry.Plan, regions []string, padding bool) (bool, error) {
	ctx = services.WithStage(ctx, "extract")
	logger := logging.WithContext(ctx, r.logger)

	starts := make([]int, len(out.Segments))
	files := make([]string, len(out.Segments))
	for i, seg := range out.Segments {
		starts[i], files[i] = seg.Start, seg.File
	}
	fp, err := cachegate.NewFingerprint(cachegate.ExtractionInputs{
		GeometryFiles:       files,
		SegmentStarts:       starts,
		PaddingActive:       padding,
		SourceCropped:       out.Sources.Cropped,
		GeometryFromCropped: req.GeometryFromCropped,
		ResizeFactor:        r.cfg.Extract.ResizeFactor,
		PreserveTimestamps:  r.cfg.Extract.PreserveTimestamps,
	})
	if err != nil {
		return false, services.Wrap(services.ErrConfiguration, "extract", "fingerprint", "", err)
	}
	decision, err := cachegate.DecideExtraction(root, fp, regions, len(out.Sources.Names), req.ReExtract)
	if err != nil {
		return false, err
	}
	out.Extraction = decision
	if !decision.Run {
		logger.Info("extraction skipped", logging.String("reason", decision.Reason))
		return false, nil
	}
	logger.Info("extraction required", logging.String("reason", decision.Reason))

	folders := extract.Folders(regions, padding, out.Sources.Cropped, r.cfg.Extract.ResizeFactor)
	if err := cachegate.Reset(root, r.resetOptions(root, out.Sources.Cropped), folders); err != nil {
		return false, err
	}
	if err := cachegate.SaveFingerprint(root, fp); err != nil {
		return false, err
	}

	job := extract.Job{
		Root:          root,
		SourceDir:     out.Sources.Dir,
		Sources:       out.Sources.Names,
		SourceCropped: out.Sources.Cropped,
	}
	for i, seg := range out.Segments {
		job.Segments = append(job.Segments, extract.Segment{Start: seg.Start, Plan: plans[i], Source: seg.File})
	}
	report, err := extract.Run(ctx, job, extract.Options{
		Workers:            r.cfg.Extract.Workers,
		ResizeFactor:       r.cfg.Extract.ResizeFactor,
		PreserveTimestamps: r.cfg.Extract.PreserveTimestamps,
		JPEGQuality:        r.cfg.Extract.JPEGQuality,
		Logger:             r.logger,
	})
	out.ExtractReport = report
	if err != nil {
		// Stale outputs must not pass the gate on the next run.
		_ = os.Remove(filepath.Join(root, cachegate.FingerprintFileName))
		return true, err
	}
	return true, nil
}

func (r *Runner) resetOptions(root string, sourceCropped bool) cachegate.ResetOptions {
	opts := cachegate.ResetOptions{Archive: r.cfg.Rename.ArchiveDir, SourceCropped: sourceCropped}
	if logDir := r.cfg.LogDir(root); logDir != "" {
		if rel, err := filepath.Rel(root, logDir); err == nil && rel != "." && !strings.HasPrefix(rel, "..") {
			opts.Preserve = append(opts.Preserve, strings.Split(filepath.ToSlash(rel), "/")[0])
		}
	}
	return opts
}

func (r *Runner) measureStage(ctx context.Context, root string, req Request, out *Outcome, samples *platespec.SampleTable, plans []*geometry.Plan, extracted bool) error {
	ctx = services.WithStage(ctx, "measure")
	logger := logging.WithContext(ctx, r.logger)

	extraction, _, err := cachegate.LoadFingerprint(root)
	if err != nil {
		return err
	}
	fp, err := cachegate.NewMeasureFingerprint(extraction, cachegate.MeasureInputs{
		MetadataFile:        req.SpecFile,
		ForceFileNumberTime: r.cfg.Measure.ForceFileNumberTime,
		IntervalHours:       r.cfg.Measure.ImageIntervalHours,
		StartHours:          r.cfg.Measure.StartHours,
		Normalization:       r.cfg.Measure.Normalization,
		Percentage:          r.cfg.Measure.Percentage,
	})
	if err != nil {
		return services.Wrap(services.ErrConfiguration, "measure", "fingerprint", "", err)
	}

	store, err := resultstore.Open(ctx, root)
	if err != nil {
		return err
	}
	defer store.Close()

	info, _, err := store.LatestInfo(ctx)
	if err != nil {
		return err
	}
	decision := cachegate.DecideMeasurement(fp, info.Fingerprint, info.Rows, req.ReMeasure || extracted)
	out.Measurement = decision

	if !decision.Run {
		logger.Info("measurement skipped", logging.String("reason", decision.Reason))
		snap, err := store.Latest(ctx)
		if err != nil {
			return err
		}
		out.Table = snap.Table
	} else {
		logger.Info("measurement required", logging.String("reason", decision.Reason))
		targets := buildTargets(root, samples, out.Segments, plans, len(out.Sources.Names))
		result, err := measure.Run(ctx, targets, measure.Options{
			Workers:             r.cfg.Measure.Workers,
			Percentage:          r.cfg.Measure.Percentage,
			IntervalHours:       r.cfg.Measure.ImageIntervalHours,
			ForceFileNumberTime: r.cfg.Measure.ForceFileNumberTime,
			Logger:              r.logger,
		})
		if err != nil {
			return err
		}
		out.MeasureErrors = result.Errors
		if len(result.Series) == 0 {
			return services.Wrap(services.ErrUnit, "measure", "run", "every sample failed", errors.Join(unitErrs(result.Errors)...))
		}
		out.Table, err = aggregate.Build(result.Series, aggregate.Options{
			StartHours:    r.cfg.Measure.StartHours,
			Normalization: r.cfg.Measure.Normalization,
		})
		if err != nil {
			return services.Wrap(services.ErrConfiguration, "aggregate", "build", "", err)
		}
	}

	out.Summary, err = aggregate.Summarize(out.Table, samples, req.Level)
	if err != nil {
		return services.Wrap(services.ErrConfiguration, "aggregate", "summarize", "", err)
	}
	if decision.Run {
		if err := store.Save(ctx, resultstore.Snapshot{
			RunID:         out.RunID,
			Fingerprint:   fp.Digest(),
			Normalization: r.cfg.Measure.Normalization,
			CreatedAt:     r.now().UTC(),
			Table:         out.Table,
			Summary:       out.Summary,
		}, keepStoredRuns); err != nil {
			return err
		}
	}
	logger.Info("measurement table ready",
		logging.Int("rows", len(out.Table.Rows)),
		logging.Int("samples", len(out.Table.Samples)),
		logging.String("level", out.Summary.Level),
	)
	return nil
}

// export writes the result folder of this run.
func (r *Runner) export(root string, out *Outcome) error {
	out.ResultDir = filepath.Join(root, cachegate.ResultPrefix+r.now().Format(resultDirLayout))
	if err := os.MkdirAll(out.ResultDir, 0o755); err != nil {
		return fmt.Errorf("create result folder: %w", err)
	}
	paths, err := resultstore.ExportTSV(out.ResultDir, out.Table, out.Summary)
	if err != nil {
		return err
	}
	out.Exports = paths

	encoded, err := config.Encode(r.cfg)
	if err != nil {
		return fmt.Errorf("encode run config: %w", err)
	}
	path := filepath.Join(out.ResultDir, RunConfigFile)
	if err := os.WriteFile(path, encoded, 0o644); err != nil {
		return fmt.Errorf("write run config: %w", err)
	}
	out.Exports = append(out.Exports, path)
	return nil
}

// buildTargets lists the measurement targets in metadata order. Polygon
// samples get one polygon per frame, expanded from the segments that define
// them.
func buildTargets(root string, samples *platespec.SampleTable, segments []Segment, plans []*geometry.Plan, frames int) []measure.Target {
	lengths := Lengths(segments, frames)
	targets := make([]measure.Target, 0, len(samples.Samples))
	for _, sample := range samples.Samples {
		target := measure.Target{
			Sample:  sample.ID,
			Dir:     filepath.Join(root, cachegate.SubImagesDir, sample.ID),
			Measure: sample.Measure,
		}
		if sample.Measure == platespec.MeasurePolygon {
			for i, plan := range plans {
				poly, ok := plan.Polygons[sample.ID]
				if !ok {
					continue
				}
				for n := 0; n < lengths[i]; n++ {
					target.Polygons = append(target.Polygons, poly)
				}
			}
		}
		targets = append(targets, target)
	}
	return targets
}

// unionRegions returns every region name across plans in first-seen order.
func unionRegions(plans []*geometry.Plan) []string {
	seen := map[string]bool{}
	var out []string
	for _, plan := range plans {
		for _, id := range plan.Order {
			if !seen[id] {
				seen[id] = true
				out = append(out, id)
			}
		}
	}
	return out
}

// checkSamples requires every sample to have a region in some layout.
func checkSamples(samples *platespec.SampleTable, regions []string) error {
	known := map[string]bool{}
	for _, id := range regions {
		known[id] = true
	}
	var missing []string
	for _, s := range samples.Samples {
		if !known[s.ID] {
			missing = append(missing, s.ID)
		}
	}
	if len(missing) > 0 {
		return services.Wrap(services.ErrConfiguration, "experiment", "samples",
			fmt.Sprintf("%s: samples without a region in any layout: %s", samples.Source, strings.Join(missing, ", ")), nil)
	}
	return nil
}

func segmentFiles(specs []SegmentSpec) []string {
	out := make([]string, len(specs))
	for i, s := range specs {
		out[i] = s.File
	}
	return out
}

func unitErrs(errs []measure.UnitError) []error {
	out := make([]error, len(errs))
	for i, e := range errs {
		out[i] = e
	}
	return out
}
