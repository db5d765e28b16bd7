package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"scanlapse/internal/testsupport"
)

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}

// setupCLIConfig isolates HOME and writes a config with the run log disabled.
func setupCLIConfig(t *testing.T, extra string) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	path := filepath.Join(home, "scanlapse.toml")
	testsupport.WriteFile(t, path, "[logging]\ndir = \"\"\nlevel = \"error\"\n"+extra)
	return path
}

func TestConfigInitAndShow(t *testing.T) {
	configPath := setupCLIConfig(t, "[measure]\nnormalization = \"each\"\n")

	target := filepath.Join(t.TempDir(), "nested", "config.toml")
	out, _, err := runCLI(t, []string{"config", "init", "--path", target}, "")
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, "Wrote sample configuration to "+target)
	requireContains(t, out, "rename.scanner_offset")
	requireContains(t, out, "scanlapse run --config "+target+" <root> <spec.tsv>")
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected config file at %s: %v", target, err)
	}
	if _, _, err := runCLI(t, []string{"config", "init", "--path", target}, ""); err == nil {
		t.Fatal("expected refusal to overwrite without --overwrite")
	}

	out, _, err = runCLI(t, []string{"config", "show"}, configPath)
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	requireContains(t, out, "# source: "+configPath)
	requireContains(t, out, "[measure]")
	requireContains(t, out, "each")
}

func TestConfigInitProjectFileIsLoaded(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	work := t.TempDir()
	t.Chdir(work)

	out, _, err := runCLI(t, []string{"config", "init", "--project"}, "")
	if err != nil {
		t.Fatalf("config init --project: %v", err)
	}
	project := filepath.Join(work, "scanlapse.toml")
	requireContains(t, out, "Wrote sample configuration to ")
	if _, err := os.Stat(project); err != nil {
		t.Fatalf("expected project config: %v", err)
	}

	out, _, err = runCLI(t, []string{"config", "show"}, "")
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	requireContains(t, out, "scanlapse.toml")

	if _, _, err := runCLI(t, []string{"config", "init", "--project", "--path", project}, ""); err == nil {
		t.Fatal("expected --project and --path to be rejected together")
	}
}

func TestRenameStatusRestore(t *testing.T) {
	configPath := setupCLIConfig(t, "")
	dir := t.TempDir()
	for i := 1; i <= 4; i++ {
		testsupport.WriteFile(t, filepath.Join(dir, fmt.Sprintf("scan_%d.jpg", i)), "frame")
	}

	out, _, err := runCLI(t, []string{"rename", dir}, configPath)
	if err != nil {
		t.Fatalf("rename: %v", err)
	}
	requireContains(t, out, "Renamed 4 frames")
	archived := testsupport.ListNames(t, filepath.Join(dir, "original_images"))
	if diff := cmp.Diff([]string{"scan_00.jpg", "scan_01.jpg", "scan_02.jpg", "scan_03.jpg"}, archived); diff != "" {
		t.Fatalf("archive mismatch (-want +got):\n%s", diff)
	}

	out, _, err = runCLI(t, []string{"status", "--json", dir}, configPath)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	var report statusReport
	if err := json.Unmarshal([]byte(out), &report); err != nil {
		t.Fatalf("decode status: %v\n%s", err, out)
	}
	if report.State != "canonical" || report.Frames != 4 || report.Fingerprint || report.StoredRuns {
		t.Fatalf("unexpected status %+v", report)
	}

	if _, _, err := runCLI(t, []string{"restore", dir}, configPath); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "scan_3.jpg")); err != nil {
		t.Fatalf("expected scanner name restored: %v", err)
	}
}

func TestRunRejectsBadNormalizationFlag(t *testing.T) {
	configPath := setupCLIConfig(t, "")
	_, _, err := runCLI(t, []string{"run", "--norm", "max", t.TempDir(), "plate.tsv"}, configPath)
	if err == nil || !strings.Contains(err.Error(), "measure.normalization") {
		t.Fatalf("expected normalization error, got %v", err)
	}
}

func TestRunThenShow(t *testing.T) {
	configPath := setupCLIConfig(t, "[extract]\nresize_factor = 0.0\nworkers = 2\n")
	root := t.TempDir()
	for i := 1; i <= 6; i++ {
		frame := testsupport.GrayFrame(80, 40, 0,
			testsupport.Region{Rect: image.Rect(0, 0, 30, 30), Level: 120},
			testsupport.Region{Rect: image.Rect(40, 0, 70, 30), Level: 240},
		)
		testsupport.WriteImage(t, filepath.Join(root, fmt.Sprintf("img_%d.png", i)), frame)
	}
	specFile := filepath.Join(t.TempDir(), "plate.tsv")
	testsupport.WriteFile(t, specFile, "CornerSize\tx\ty\tsize\n"+
		"left\t0\t0\t30\n"+
		"right\t40\t0\t30\n"+
		"END_POSITION\n"+
		"sampleInfo\tstrain_name\tmeasure\n"+
		"left\twt\tsquare\n"+
		"right\tmutant\tsquare\n"+
		"END_INFO\n")

	out, _, err := runCLI(t, []string{"run", "--json", "--norm", "combined", "--no-file-time", root, specFile}, configPath)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	var summary runSummary
	if err := json.Unmarshal([]byte(out), &summary); err != nil {
		t.Fatalf("decode run summary: %v\n%s", err, out)
	}
	if !summary.Renamed || !summary.Extracted || !summary.Measured || summary.Rows != 6 {
		t.Fatalf("unexpected run summary %+v", summary)
	}

	out, _, err = runCLI(t, []string{"show", "--json", root}, configPath)
	if err != nil {
		t.Fatalf("show: %v", err)
	}
	var snap jsonSnapshot
	if err := json.Unmarshal([]byte(out), &snap); err != nil {
		t.Fatalf("decode snapshot: %v\n%s", err, out)
	}
	if diff := cmp.Diff([]string{"left", "right"}, snap.Samples); diff != "" {
		t.Fatalf("samples mismatch (-want +got):\n%s", diff)
	}
	if len(snap.Rows) != 6 || snap.Level != "strain_name" {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
	// The brighter region holds the global maximum after combined
	// normalization.
	if v := snap.Rows[0].Values[1]; v == nil || *v != 1 {
		t.Fatalf("expected the brighter region at 1, got %v", v)
	}

	out, _, err = runCLI(t, []string{"show", root}, configPath)
	if err != nil {
		t.Fatalf("show table: %v", err)
	}
	requireContains(t, out, "By Strain Name")
	requireContains(t, out, "right")
}
