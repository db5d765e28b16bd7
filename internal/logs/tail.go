package logs

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"scanlapse/internal/logging"
)

const (
	runLogPattern = "scanlapse-*.log"
	timeKey       = "ts"
)

// Entry is one decoded run log record.
type Entry struct {
	Time      time.Time
	Level     string
	Message   string
	Component string
	Stage     string
	Sample    string
	EventType string
	// Attrs holds every remaining field.
	Attrs map[string]any
}

// Filter selects records. The zero Filter matches info level and above.
type Filter struct {
	MinLevel  slog.Level
	Component string
	Sample    string
	RunID     string
}

func (f Filter) match(e Entry, runID string) bool {
	if levelOf(e.Level) < f.MinLevel {
		return false
	}
	if f.Component != "" && e.Component != f.Component {
		return false
	}
	if f.Sample != "" && e.Sample != f.Sample {
		return false
	}
	if f.RunID != "" && runID != f.RunID {
		return false
	}
	return true
}

// RunLogs lists run logs in dir, newest first.
func RunLogs(dir string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, runLogPattern))
	if err != nil {
		return nil, fmt.Errorf("list run logs: %w", err)
	}
	// Names embed a sortable timestamp.
	sort.Sort(sort.Reverse(sort.StringSlice(matches)))
	return matches, nil
}

// Latest returns the newest run log in dir. ok is false when there is none.
func Latest(dir string) (path string, ok bool, err error) {
	logs, err := RunLogs(dir)
	if err != nil || len(logs) == 0 {
		return "", false, err
	}
	return logs[0], true, nil
}

// Tail returns the last limit records of path that match filter, oldest
// first. A limit of 0 returns every match. Lines that are not JSON records are
// skipped.
func Tail(path string, filter Filter, limit int) ([]Entry, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("open run log: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var ring []Entry
	idx := 0
	for scanner.Scan() {
		entry, runID, ok := decode(scanner.Bytes())
		if !ok || !filter.match(entry, runID) {
			continue
		}
		if limit <= 0 || len(ring) < limit {
			ring = append(ring, entry)
			continue
		}
		ring[idx] = entry
		idx = (idx + 1) % limit
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read run log: %w", err)
	}
	if idx == 0 {
		return ring, nil
	}
	out := make([]Entry, 0, len(ring))
	out = append(out, ring[idx:]...)
	return append(out, ring[:idx]...), nil
}

func decode(line []byte) (Entry, string, bool) {
	var raw map[string]any
	if err := json.Unmarshal(line, &raw); err != nil {
		return Entry{}, "", false
	}
	entry := Entry{
		Level:     take(raw, slog.LevelKey),
		Message:   take(raw, slog.MessageKey),
		Component: take(raw, logging.FieldComponent),
		Stage:     take(raw, logging.FieldStage),
		Sample:    take(raw, logging.FieldSample),
		EventType: take(raw, logging.FieldEventType),
	}
	if ts := take(raw, timeKey); ts != "" {
		entry.Time, _ = time.Parse(time.RFC3339Nano, ts)
	}
	runID := take(raw, logging.FieldRunID)
	if len(raw) > 0 {
		entry.Attrs = raw
	}
	return entry, runID, true
}

func take(raw map[string]any, key string) string {
	v, ok := raw[key]
	if !ok {
		return ""
	}
	delete(raw, key)
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

func levelOf(level string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(level))); err != nil {
		return slog.LevelInfo
	}
	return l
}
