package rename

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"scanlapse/internal/fileutil"
	"scanlapse/internal/logging"
)

// move is one rename relative to the experiment directory.
type move struct {
	From string `json:"from"`
	To   string `json:"to"`
}

type opKind string

const (
	opCanonicalize opKind = "canonicalize"
	opRestore      opKind = "restore"
)

// journal is written before the first rename of a batch and removed after the
// rename log has been persisted. Phases run in order; each move is idempotent.
type journal struct {
	Version int      `json:"version"`
	Op      opKind   `json:"op"`
	Phases  [][]move `json:"phases"`
	Result  *Log     `json:"result"`
}

func loadJournal(dir string) (*journal, bool, error) {
	var j journal
	if err := fileutil.ReadJSON(filepath.Join(dir, JournalFileName), &j); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("load rename journal: %w", err)
	}
	if j.Version != logVersion || j.Result == nil {
		return nil, false, fmt.Errorf("load rename journal: unsupported payload")
	}
	return &j, true, nil
}

func (j *journal) save(dir string) error {
	if err := fileutil.WriteJSONAtomic(filepath.Join(dir, JournalFileName), j); err != nil {
		return fmt.Errorf("persist rename journal: %w", err)
	}
	return nil
}

// apply runs every phase, restores capture times for a restore batch, then
// persists the resulting log and drops the journal.
func (j *journal) apply(ctx context.Context, dir string, logger *slog.Logger) error {
	for _, phase := range j.Phases {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := runPhase(dir, phase); err != nil {
			return err
		}
	}

	archive := filepath.Join(dir, j.Result.Archive)
	if j.Op == opRestore {
		for oldName, captured := range j.Result.CaptureTimes {
			path := filepath.Join(dir, oldName)
			if err := os.Chtimes(path, captured, captured); err != nil {
				return fmt.Errorf("restore capture time of %s: %w", oldName, err)
			}
		}
		if err := os.Remove(archive); err != nil && !errors.Is(err, fs.ErrNotExist) {
			logging.WarnWithContext(logger, "archive folder not empty after restore", "archive_not_empty",
				logging.String("path", archive),
				logging.Error(err),
				logging.String(logging.FieldImpact, "archive folder left in place"),
				logging.String(logging.FieldErrorHint, "move unrelated files out of the archive folder"),
			)
		}
	}

	if err := j.Result.save(dir); err != nil {
		return err
	}
	if err := os.Remove(filepath.Join(dir, JournalFileName)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove rename journal: %w", err)
	}
	return nil
}

// runPhase renames every move. A target still occupied by a file that has
// not moved yet is staged under TempSuffix and resolved once the phase is
// complete.
func runPhase(dir string, moves []move) error {
	var staged []move
	for _, mv := range moves {
		from := filepath.Join(dir, mv.From)
		to := filepath.Join(dir, mv.To)
		if !fileutil.Exists(from) {
			if fileutil.Exists(to) || fileutil.Exists(to+TempSuffix) {
				if fileutil.Exists(to + TempSuffix) {
					staged = append(staged, mv)
				}
				continue
			}
			return fmt.Errorf("rename %s: source and target both missing", mv.From)
		}
		if err := os.MkdirAll(filepath.Dir(to), 0o755); err != nil {
			return fmt.Errorf("create folder for %s: %w", mv.To, err)
		}
		if fileutil.Exists(to) {
			if err := os.Rename(from, to+TempSuffix); err != nil {
				return fmt.Errorf("stage %s: %w", mv.From, err)
			}
			staged = append(staged, mv)
			continue
		}
		if err := os.Rename(from, to); err != nil {
			return fmt.Errorf("rename %s: %w", mv.From, err)
		}
	}
	for _, mv := range staged {
		to := filepath.Join(dir, mv.To)
		if fileutil.Exists(to) {
			return fmt.Errorf("resolve staged %s: %s is still occupied", mv.From, mv.To)
		}
		if err := os.Rename(to+TempSuffix, to); err != nil {
			return fmt.Errorf("resolve staged %s: %w", mv.From, err)
		}
	}
	return nil
}

// sweepTemps completes stale staged files left by a crash whose final name is
// free. Occupied finals are reported and left alone.
func sweepTemps(dir string, logger *slog.Logger, subdirs ...string) {
	for _, sub := range append([]string{""}, subdirs...) {
		folder := filepath.Join(dir, sub)
		entries, err := os.ReadDir(folder)
		if err != nil {
			continue
		}
		for _, entry := range entries {
			name := entry.Name()
			if entry.IsDir() || !strings.HasSuffix(name, TempSuffix) {
				continue
			}
			temp := filepath.Join(folder, name)
			final := strings.TrimSuffix(temp, TempSuffix)
			if fileutil.Exists(final) {
				logging.WarnWithContext(logger, "stale staged file left in place", "rename_temp_conflict",
					logging.String("path", temp),
					logging.String(logging.FieldImpact, "staged file not restored"),
					logging.String(logging.FieldErrorHint, "compare the staged file with "+filepath.Base(final)+" and keep one"),
				)
				continue
			}
			if err := os.Rename(temp, final); err != nil {
				logging.WarnWithContext(logger, "stale staged file could not be restored", "rename_temp_failed",
					logging.String("path", temp),
					logging.Error(err),
				)
				continue
			}
			logger.Info("stale staged file restored", logging.String("path", final), logging.String(logging.FieldEventType, "rename_temp_restored"))
		}
	}
}
