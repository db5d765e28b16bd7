package rename

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"scanlapse/internal/fileutil"
	"scanlapse/internal/services"
)

const (
	// LogFileName is the persisted rename log inside the experiment directory.
	LogFileName = "rename_log.json"
	// JournalFileName holds the plan of an in-flight batch.
	JournalFileName = "rename_journal.json"
	// TempSuffix marks files staged around a name collision.
	TempSuffix = ".scanlapse-tmp"

	logVersion = 1
)

// State is the persisted naming state of an experiment directory.
type State string

const (
	StateUninitialized State = "uninitialized"
	StateOriginal      State = "original"
	StateCanonical     State = "canonical"
)

// Log is the durable rename record. Old2New is a bijection from scanner names
// to canonical names; CaptureTimes is keyed by scanner name and never
// rewritten once recorded.
type Log struct {
	Version      int                  `json:"version"`
	State        State                `json:"state"`
	Extension    string               `json:"extension"`
	Prefix       string               `json:"prefix"`
	Digits       int                  `json:"digits"`
	Archive      string               `json:"archive"`
	Old2New      map[string]string    `json:"old_to_new"`
	CaptureTimes map[string]time.Time `json:"capture_times"`
	UpdatedAt    time.Time            `json:"updated_at"`
}

// Load reads the rename log of dir. ok is false when none exists.
func Load(dir string) (log *Log, ok bool, err error) {
	var payload Log
	if err := fileutil.ReadJSON(filepath.Join(dir, LogFileName), &payload); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("load rename log: %w", err)
	}
	if payload.Version != logVersion {
		return nil, false, services.Wrap(services.ErrValidation, "rename", "load log",
			fmt.Sprintf("unsupported log version %d", payload.Version), nil)
	}
	if err := payload.validate(); err != nil {
		return nil, false, err
	}
	return &payload, true, nil
}

// StateOf reports the persisted state of dir.
func StateOf(dir string) (State, error) {
	log, ok, err := Load(dir)
	if err != nil {
		return "", err
	}
	if !ok {
		return StateUninitialized, nil
	}
	return log.State, nil
}

func (l *Log) save(dir string) error {
	if err := fileutil.WriteJSONAtomic(filepath.Join(dir, LogFileName), l); err != nil {
		return fmt.Errorf("persist rename log: %w", err)
	}
	return nil
}

func (l *Log) validate() error {
	seen := make(map[string]string, len(l.Old2New))
	for oldName, newName := range l.Old2New {
		if prev, dup := seen[newName]; dup {
			return services.Wrap(services.ErrValidation, "rename", "load log",
				fmt.Sprintf("%s and %s both map to %s", prev, oldName, newName), nil)
		}
		seen[newName] = oldName
	}
	switch l.State {
	case StateOriginal, StateCanonical:
		return nil
	default:
		return services.Wrap(services.ErrValidation, "rename", "load log", fmt.Sprintf("unknown state %q", l.State), nil)
	}
}

// Pair is one entry of the rename mapping.
type Pair struct {
	Original  string
	Canonical string
}

// Pairs returns the mapping sorted by canonical name, which is the timeline
// order of the experiment.
func (l *Log) Pairs() []Pair {
	out := make([]Pair, 0, len(l.Old2New))
	for oldName, newName := range l.Old2New {
		out = append(out, Pair{Original: oldName, Canonical: newName})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Canonical < out[j].Canonical })
	return out
}

// CanonicalTimes returns capture times keyed by canonical file name.
func (l *Log) CanonicalTimes() map[string]time.Time {
	out := make(map[string]time.Time, len(l.CaptureTimes))
	for oldName, newName := range l.Old2New {
		if t, ok := l.CaptureTimes[oldName]; ok {
			out[newName] = t
		}
	}
	return out
}

func (l *Log) clone() *Log {
	c := *l
	c.Old2New = make(map[string]string, len(l.Old2New))
	for k, v := range l.Old2New {
		c.Old2New[k] = v
	}
	c.CaptureTimes = make(map[string]time.Time, len(l.CaptureTimes))
	for k, v := range l.CaptureTimes {
		c.CaptureTimes[k] = v
	}
	return &c
}

// bookkeeping reports whether name belongs to scanlapse itself rather than
// the scanner series.
func bookkeeping(name string) bool {
	switch name {
	case LogFileName, JournalFileName:
		return true
	}
	if filepath.Ext(name) == TempSuffix {
		return true
	}
	matched, _ := filepath.Match("scanLog*.tsv", name)
	return matched || name[0] == '.'
}

// listFiles returns the plain file names in dir, skipping bookkeeping files.
func listFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, entry := range entries {
		if entry.IsDir() || bookkeeping(entry.Name()) {
			continue
		}
		names = append(names, entry.Name())
	}
	return names, nil
}
