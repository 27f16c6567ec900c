package commands

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mediaoffload/offloader/internal/asset"
	"github.com/mediaoffload/offloader/internal/migration"
	"github.com/mediaoffload/offloader/internal/progress"
)

// writeConfig creates a config using the local object store, a SQLite catalog
// and a small asset tree, and returns the config path and the bucket root.
func writeConfig(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()
	uploads := filepath.Join(dir, "uploads")
	bucket := filepath.Join(dir, "bucket")

	if err := os.MkdirAll(filepath.Join(uploads, "2024"), 0o755); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"a.jpg", "a-150x150.jpg", "b.png", "c.gif"} {
		if err := os.WriteFile(filepath.Join(uploads, "2024", name), []byte(name), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	cfg := fmt.Sprintf(`logging:
  level: error
assets:
  root_dir: %q
catalog:
  engine: sqlite
  sqlite:
    path: %q
storage:
  backend: local
  public_base_url: "https://cdn.example.com"
  keep_local: true
  local:
    root_dir: %q
migration:
  migrate_page_size: 2
  item_pause_ms: -1
metrics:
  enabled: false
`, uploads, filepath.Join(dir, "catalog.db"), bucket)

	path := filepath.Join(dir, "offloader.yaml")
	if err := os.WriteFile(path, []byte(cfg), 0o644); err != nil {
		t.Fatal(err)
	}
	return path, bucket
}

// execute runs the root command with args and returns stdout.
func execute(t *testing.T, cfgPath string, args ...string) (string, error) {
	t.Helper()
	stepOffset, stepPageSize = 0, 0
	runFrom, runPageSize = 0, 0
	scanDryRun, importReplace, exportCheckpoints = false, false, false
	exportOutput = ""

	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(append([]string{"--config", cfgPath}, args...))
	err := rootCmd.Execute()
	return out.String(), err
}

func decodeOutput(t *testing.T, out string, v any) {
	t.Helper()
	if err := json.Unmarshal([]byte(out), v); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
}

func TestScanStepProgress(t *testing.T) {
	cfgPath, bucket := writeConfig(t)

	out, err := execute(t, cfgPath, "scan", "--dry-run")
	if err != nil {
		t.Fatalf("scan --dry-run: %v", err)
	}
	var scan asset.ScanResult
	decodeOutput(t, out, &scan)
	if scan.Found != 3 || scan.Imported != 0 || scan.WouldImport != 3 {
		t.Fatalf("dry run = %+v", scan)
	}

	out, err = execute(t, cfgPath, "scan")
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	decodeOutput(t, out, &scan)
	if scan.Imported != 3 {
		t.Fatalf("scan = %+v", scan)
	}

	out, err = execute(t, cfgPath, "step", "migrate")
	if err != nil {
		t.Fatalf("step: %v", err)
	}
	var res migration.StepResult
	decodeOutput(t, out, &res)
	if res.Processed != 2 || res.Complete {
		t.Fatalf("first step = %+v", res)
	}

	out, err = execute(t, cfgPath, "progress", "migrate")
	if err != nil {
		t.Fatalf("progress: %v", err)
	}
	var p progress.Progress
	decodeOutput(t, out, &p)
	if p.Total != 3 || p.Current != 2 {
		t.Errorf("progress = %+v", p)
	}

	out, err = execute(t, cfgPath, "run", "migrate", "--from", "2")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	decodeOutput(t, out, &res)
	if !res.Complete || res.Processed != 3 {
		t.Errorf("run = %+v", res)
	}
	if _, err := os.Stat(filepath.Join(bucket, "2024", "a-150x150.jpg")); err != nil {
		t.Errorf("variant not uploaded: %v", err)
	}
}

func TestStepInvalidOperation(t *testing.T) {
	cfgPath, _ := writeConfig(t)
	if _, err := execute(t, cfgPath, "step", "explode"); err == nil {
		t.Fatal("expected error for unknown operation")
	}
}

func TestAssetCommands(t *testing.T) {
	cfgPath, bucket := writeConfig(t)
	if _, err := execute(t, cfgPath, "scan"); err != nil {
		t.Fatal(err)
	}

	out, err := execute(t, cfgPath, "asset", "show", "1")
	if err != nil {
		t.Fatalf("show: %v", err)
	}
	if !strings.Contains(out, `"primary_path": "2024/a.jpg"`) {
		t.Errorf("show output = %s", out)
	}

	out, err = execute(t, cfgPath, "asset", "offload", "1")
	if err != nil {
		t.Fatalf("offload: %v", err)
	}
	if !strings.Contains(out, "https://cdn.example.com/2024/a.jpg") {
		t.Errorf("offload output = %s", out)
	}

	if _, err := execute(t, cfgPath, "asset", "forget", "1"); err != nil {
		t.Fatalf("forget: %v", err)
	}
	if _, err := os.Stat(filepath.Join(bucket, "2024", "a.jpg")); !os.IsNotExist(err) {
		t.Errorf("object still present after forget: %v", err)
	}

	for _, id := range []string{"0", "abc"} {
		if _, err := execute(t, cfgPath, "asset", "show", id); err == nil {
			t.Errorf("show %s: expected error", id)
		}
	}
	if _, err := execute(t, cfgPath, "asset", "show", "99"); err == nil {
		t.Error("show 99: expected not found")
	}
}

func TestCatalogExportImport(t *testing.T) {
	cfgPath, _ := writeConfig(t)
	if _, err := execute(t, cfgPath, "scan"); err != nil {
		t.Fatal(err)
	}

	exportPath := filepath.Join(t.TempDir(), "catalog.json")
	if _, err := execute(t, cfgPath, "catalog", "export", "--output", exportPath); err != nil {
		t.Fatalf("export: %v", err)
	}
	data, err := os.ReadFile(exportPath)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"offloader_export"`) {
		t.Errorf("export missing envelope: %s", data)
	}

	out, err := execute(t, cfgPath, "catalog", "import", exportPath)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if !strings.Contains(out, "Imported 0 assets (3 skipped)") {
		t.Errorf("merge import output = %q", out)
	}

	out, err = execute(t, cfgPath, "catalog", "import", exportPath, "--replace")
	if err != nil {
		t.Fatalf("import --replace: %v", err)
	}
	if !strings.Contains(out, "Imported 3 assets") {
		t.Errorf("replace import output = %q", out)
	}
}

func TestResetCommand(t *testing.T) {
	cfgPath, _ := writeConfig(t)
	if _, err := execute(t, cfgPath, "scan"); err != nil {
		t.Fatal(err)
	}
	if _, err := execute(t, cfgPath, "step", "migrate"); err != nil {
		t.Fatal(err)
	}
	out, err := execute(t, cfgPath, "reset", "migrate")
	if err != nil {
		t.Fatalf("reset: %v", err)
	}
	if !strings.Contains(out, "Checkpoint for migrate cleared") {
		t.Errorf("reset output = %q", out)
	}
}

func TestProgressLeavesPartialDownloads(t *testing.T) {
	cfgPath, _ := writeConfig(t)
	dir := filepath.Join(filepath.Dir(cfgPath), "uploads", "2024")
	stale := filepath.Join(dir, ".d.jpg.tmp-old")
	fresh := filepath.Join(dir, ".e.jpg.tmp-new")
	for _, p := range []string{stale, fresh} {
		if err := os.WriteFile(p, []byte("partial"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	old := time.Now().Add(-2 * time.Hour)
	if err := os.Chtimes(stale, old, old); err != nil {
		t.Fatal(err)
	}

	for _, args := range [][]string{{"progress", "revert"}, {"step", "revert"}} {
		if _, err := execute(t, cfgPath, args...); err != nil {
			t.Fatalf("%v: %v", args, err)
		}
		if _, err := os.Stat(stale); err != nil {
			t.Fatalf("%v removed a partial download: %v", args, err)
		}
	}

	out, err := execute(t, cfgPath, "clean")
	if err != nil {
		t.Fatalf("clean: %v", err)
	}
	if !strings.Contains(out, "Removed 1 partial downloads") {
		t.Errorf("clean output = %q", out)
	}
	if _, err := os.Stat(fresh); err != nil {
		t.Errorf("clean removed a recent temp file: %v", err)
	}
}
