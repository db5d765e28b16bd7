package rename

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"scanlapse/internal/fileutil"
)

const scanLogDateLayout = "02 January 2006"

// WriteScanLog writes a human-readable TSV of the mapping next to the rename
// log, named after the first and last capture dates. An existing file is left
// untouched and its path returned.
func WriteScanLog(dir string, log *Log) (string, error) {
	if log == nil || len(log.Old2New) == 0 {
		return "", fmt.Errorf("write scan log: empty rename log")
	}
	var first, last time.Time
	for _, t := range log.CaptureTimes {
		local := t.In(time.Local)
		if first.IsZero() || local.Before(first) {
			first = local
		}
		if last.IsZero() || local.After(last) {
			last = local
		}
	}
	name := fmt.Sprintf("scanLog%s-%s.tsv", first.Format(scanLogDateLayout), last.Format(scanLogDateLayout))
	path := filepath.Join(dir, strings.ReplaceAll(name, " ", "_"))
	if fileutil.Exists(path) {
		return path, nil
	}

	var buf bytes.Buffer
	buf.WriteString("old_name\tnew_name\tweek_day\tdate\tscan_time\n")
	for _, p := range log.Pairs() {
		t := log.CaptureTimes[p.Original].In(time.Local)
		fmt.Fprintf(&buf, "%s\t%s\t%s\t%s\t%s\n", p.Original, p.Canonical,
			t.Weekday(), t.Format(scanLogDateLayout), t.Format("15:04:05"))
	}
	if err := fileutil.WriteFileAtomic(path, buf.Bytes(), 0o644); err != nil {
		return "", fmt.Errorf("write scan log: %w", err)
	}
	return path, nil
}
