package rename

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"scanlapse/internal/fileutil"
	"scanlapse/internal/logging"
	"scanlapse/internal/services"
)

// Options configures a Machine.
type Options struct {
	// ScannerOffset is subtracted from the number embedded in scanner names.
	ScannerOffset int
	// Archive is the folder canonical frames are moved into.
	Archive string
	Chooser Chooser
	Logger  *slog.Logger
}

// Machine drives the naming state of one experiment directory.
type Machine struct {
	dir     string
	offset  int
	archive string
	chooser Chooser
	logger  *slog.Logger
	now     func() time.Time
	// planned is the mapping derived by Plan, applied by the next
	// Canonicalize from UNINITIALIZED.
	planned *Log
}

// New constructs a Machine for dir.
func New(dir string, opts Options) *Machine {
	archive := strings.TrimSpace(opts.Archive)
	if archive == "" {
		archive = "original_images"
	}
	return &Machine{
		dir:     dir,
		offset:  opts.ScannerOffset,
		archive: archive,
		chooser: opts.Chooser,
		logger:  logging.NewComponentLogger(opts.Logger, "rename"),
		now:     time.Now,
	}
}

// Dir returns the experiment directory.
func (m *Machine) Dir() string { return m.dir }

// Canonicalize moves the directory into the canonical state. From
// UNINITIALIZED the mapping is derived from the files present; from ORIGINAL
// the logged mapping is replayed; from CANONICAL it is a no-op.
func (m *Machine) Canonicalize(ctx context.Context) (*Log, error) {
	ctx = services.WithStage(ctx, "rename")
	logger := logging.WithContext(ctx, m.logger)
	if err := m.recover(ctx, logger); err != nil {
		return nil, err
	}

	current, ok, err := Load(m.dir)
	if err != nil {
		return nil, err
	}
	var next *Log
	switch {
	case ok && current.State == StateCanonical:
		logger.Info("already canonical", logging.Int("files", len(current.Old2New)))
		return current, nil
	case ok:
		next = current.clone()
		next.State = StateCanonical
	case m.planned != nil:
		next, m.planned = m.planned, nil
	default:
		next, err = m.plan(logger)
		if err != nil {
			return nil, err
		}
	}
	next.UpdatedAt = m.now().UTC()

	pairs := next.Pairs()
	renames := make([]move, 0, len(pairs))
	archive := make([]move, 0, len(pairs))
	for _, p := range pairs {
		if p.Original != p.Canonical {
			renames = append(renames, move{From: p.Original, To: p.Canonical})
		}
		archive = append(archive, move{From: p.Canonical, To: filepath.Join(next.Archive, p.Canonical)})
	}
	if err := m.checkSources(renames); err != nil {
		return nil, err
	}

	j := &journal{Version: logVersion, Op: opCanonicalize, Phases: [][]move{renames, archive}, Result: next}
	if err := j.save(m.dir); err != nil {
		return nil, err
	}
	if err := j.apply(ctx, m.dir, logger); err != nil {
		return nil, services.Wrap(services.ErrUnit, "rename", "canonicalize", "batch interrupted; rerun to resume", err)
	}
	logger.Info("canonical names applied",
		logging.Int("files", len(pairs)),
		logging.String("prefix", next.Prefix),
		logging.String("extension", next.Extension),
		logging.String("archive", next.Archive),
		logging.String(logging.FieldEventType, "rename_canonical"),
	)
	return next, nil
}

// Plan returns the log Canonicalize would persist without touching the
// directory. A mapping derived from the listing is kept for the next
// Canonicalize so naming ambiguities are resolved only once.
func (m *Machine) Plan(ctx context.Context) (*Log, error) {
	logger := logging.WithContext(services.WithStage(ctx, "rename"), m.logger)
	j, ok, err := loadJournal(m.dir)
	if err != nil {
		return nil, err
	}
	if ok {
		next := j.Result.clone()
		next.State = StateCanonical
		return next, nil
	}
	current, ok, err := Load(m.dir)
	if err != nil {
		return nil, err
	}
	if ok {
		next := current.clone()
		next.State = StateCanonical
		return next, nil
	}
	next, err := m.plan(logger)
	if err != nil {
		return nil, err
	}
	m.planned = next
	return next.clone(), nil
}

// Restore moves frames back out of the archive under their scanner names and
// restores their capture times. It is only valid from CANONICAL.
func (m *Machine) Restore(ctx context.Context) (*Log, error) {
	ctx = services.WithStage(ctx, "restore")
	logger := logging.WithContext(ctx, m.logger)
	if err := m.recover(ctx, logger); err != nil {
		return nil, err
	}

	current, ok, err := Load(m.dir)
	if err != nil {
		return nil, err
	}
	if !ok || current.State != StateCanonical {
		state := StateUninitialized
		if ok {
			state = current.State
		}
		return nil, services.Wrap(services.ErrValidation, "rename", "restore",
			fmt.Sprintf("restore requires canonical state, directory is %s", state), nil)
	}

	next := current.clone()
	next.State = StateOriginal
	next.UpdatedAt = m.now().UTC()

	pairs := next.Pairs()
	unarchive := make([]move, 0, len(pairs))
	renames := make([]move, 0, len(pairs))
	for _, p := range pairs {
		unarchive = append(unarchive, move{From: filepath.Join(next.Archive, p.Canonical), To: p.Canonical})
		if p.Original != p.Canonical {
			renames = append(renames, move{From: p.Canonical, To: p.Original})
		}
	}
	j := &journal{Version: logVersion, Op: opRestore, Phases: [][]move{unarchive, renames}, Result: next}
	if err := j.save(m.dir); err != nil {
		return nil, err
	}
	if err := j.apply(ctx, m.dir, logger); err != nil {
		return nil, services.Wrap(services.ErrUnit, "rename", "restore", "batch interrupted; rerun to resume", err)
	}
	logger.Info("original names restored",
		logging.Int("files", len(pairs)),
		logging.String(logging.FieldEventType, "rename_restored"),
	)
	return next, nil
}

// recover resumes an interrupted batch and then completes stale staged files.
func (m *Machine) recover(ctx context.Context, logger *slog.Logger) error {
	j, ok, err := loadJournal(m.dir)
	if err != nil {
		return err
	}
	if ok {
		logging.WarnWithContext(logger, "resuming interrupted rename batch", "rename_resume",
			logging.String("op", string(j.Op)),
			logging.String(logging.FieldImpact, "previous batch is completed before new work"),
		)
		if err := j.apply(ctx, m.dir, logger); err != nil {
			return services.Wrap(services.ErrUnit, "rename", "resume", string(j.Op), err)
		}
	}
	sweepTemps(m.dir, logger, m.archive)
	return nil
}

// plan derives a fresh canonical mapping from the directory listing.
func (m *Machine) plan(logger *slog.Logger) (*Log, error) {
	names, err := listFiles(m.dir)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "rename", "list", m.dir, err)
	}
	det, err := Detect(names, m.chooser)
	if err != nil {
		return nil, err
	}

	type frame struct {
		name  string
		index int
	}
	var frames []frame
	for _, name := range names {
		if filepath.Ext(name) != det.Extension {
			continue
		}
		prefix, number, ok := SplitNumber(strings.TrimSuffix(name, det.Extension))
		if !ok || prefix != det.Prefix {
			logging.WarnWithContext(logger, "file skipped; prefix differs", "rename_skip",
				logging.SourceFile(name),
				logging.String("prefix", det.Prefix),
				logging.String(logging.FieldImpact, "file is not part of the series"),
				logging.String(logging.FieldErrorHint, "move unrelated files out of the experiment folder"),
			)
			continue
		}
		index := number - m.offset
		if index < 0 {
			return nil, services.Wrap(services.ErrConfiguration, "rename", "plan",
				fmt.Sprintf("%s gives index %d with scanner offset %d", name, index, m.offset), nil)
		}
		frames = append(frames, frame{name: name, index: index})
	}
	sort.Slice(frames, func(i, j int) bool { return frames[i].index < frames[j].index })

	digits := det.Digits
	if len(frames) > 0 {
		digits = max(digits, len(fmt.Sprint(frames[len(frames)-1].index)))
	}
	det.Digits = digits

	next := &Log{
		Version:      logVersion,
		State:        StateCanonical,
		Extension:    det.Extension,
		Prefix:       det.Prefix,
		Digits:       digits,
		Archive:      m.archive,
		Old2New:      make(map[string]string, len(frames)),
		CaptureTimes: make(map[string]time.Time, len(frames)),
	}
	targets := make(map[string]string, len(frames))
	for _, f := range frames {
		target := det.CanonicalName(f.index)
		if prev, dup := targets[target]; dup {
			return nil, services.Wrap(services.ErrConfiguration, "rename", "plan",
				fmt.Sprintf("%s and %s both map to %s", prev, f.name, target), nil)
		}
		targets[target] = f.name
		info, err := os.Stat(filepath.Join(m.dir, f.name))
		if err != nil {
			return nil, services.Wrap(services.ErrConfiguration, "rename", "stat", f.name, err)
		}
		next.Old2New[f.name] = target
		next.CaptureTimes[f.name] = info.ModTime()
	}
	if len(next.Old2New) == 0 {
		return nil, services.Wrap(services.ErrConfiguration, "rename", "plan", "no files matched the detected series", nil)
	}
	return next, nil
}

// checkSources rejects a batch whose sources are missing or whose targets are
// occupied by files outside the batch.
func (m *Machine) checkSources(renames []move) error {
	sources := make(map[string]struct{}, len(renames))
	for _, mv := range renames {
		sources[mv.From] = struct{}{}
	}
	for _, mv := range renames {
		if !fileutil.Exists(filepath.Join(m.dir, mv.From)) {
			return services.Wrap(services.ErrConfiguration, "rename", "check", "missing source "+mv.From, nil)
		}
		if _, moving := sources[mv.To]; moving {
			continue
		}
		if fileutil.Exists(filepath.Join(m.dir, mv.To)) {
			return services.Wrap(services.ErrConfiguration, "rename", "check",
				fmt.Sprintf("target %s is occupied by a file outside the series", mv.To), nil)
		}
	}
	return nil
}
