package main

import (
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/disintegration/imaging"

	"github.com/craftxbox/wplace-downloader/internal/downloader"
	"github.com/craftxbox/wplace-downloader/internal/queue"
	"github.com/craftxbox/wplace-downloader/internal/testutils"
)

func TestRunUsage(t *testing.T) {
	tests := []struct {
		args []string
		want int
	}{
		{nil, ExitInvalidArgs},
		{[]string{"bogus"}, ExitInvalidArgs},
		{[]string{"help"}, ExitSuccess},
		{[]string{"--help"}, ExitSuccess},
		{[]string{"merge"}, ExitInvalidArgs},
		{[]string{"fetch", "-no-such-flag"}, ExitInvalidArgs},
	}

	for _, tt := range tests {
		t.Run(strings.Join(tt.args, " "), func(t *testing.T) {
			if got := run(tt.args); got != tt.want {
				t.Errorf("run(%v) = %d, want %d", tt.args, got, tt.want)
			}
		})
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitSuccess},
		{"probe", &queue.JobError{Job: "a", Err: &downloader.ProbeError{Status: 500}}, ExitProbeFailed},
		{"persistence", &queue.JobError{Job: "a", Err: &downloader.PersistenceError{Path: "x", Err: errors.New("disk")}}, ExitStorageError},
		{"publish", &queue.JobError{Job: "a", Err: &queue.PublishError{Err: errors.New("bucket")}}, ExitPublishError},
		{"other", errors.New("boom"), ExitGeneralError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := exitCode(tt.err); got != tt.want {
				t.Errorf("exitCode = %d, want %d", got, tt.want)
			}
		})
	}
}

// startTiles serves 1000px tiles for every coordinate; probeStatus is
// answered for tile 0,0.
func startTiles(t *testing.T, probeStatus int) *testutils.TileServer {
	t.Helper()
	tile := testutils.SolidPNG(t, downloader.TileSize, testutils.CoordColor(1, 1))
	return testutils.StartTileServer(t, func(x, y, _ int) testutils.Response {
		if x == 0 && y == 0 {
			return testutils.Response{Status: probeStatus, Body: tile}
		}
		return testutils.Response{Body: tile}
	})
}

func writeConfig(t *testing.T, baseURL, outputDir string, extra string) string {
	t.Helper()
	cfg := fmt.Sprintf(`base_url: %s
output_dir: %s
request_interval: 1ms
spawn_interval: 1ms
timeout: 5s
retry:
  delay: 10ms
jobs:
  - name: city
    x_start: 4
    y_start: 6
    x_end: 5
    y_end: 6
%s`, baseURL, outputDir, extra)

	path := filepath.Join(t.TempDir(), "jobs.yaml")
	if err := os.WriteFile(path, []byte(cfg), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func findMerged(t *testing.T, root string) []string {
	t.Helper()
	var found []string
	filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err == nil && !d.IsDir() && strings.HasSuffix(p, "_merged.png") {
			found = append(found, p)
		}
		return nil
	})
	return found
}

func TestFetchMergesAndPublishes(t *testing.T) {
	server := startTiles(t, http.StatusOK)
	out := t.TempDir()
	bucketDir := t.TempDir()

	path := writeConfig(t, server.URL, out, "")
	code := run([]string{"fetch", "-config", path, "-publish", "file://" + bucketDir, "-prefix", "snapshots"})
	if code != ExitSuccess {
		t.Fatalf("fetch exit code = %d", code)
	}

	merged := findMerged(t, out)
	if len(merged) != 1 {
		t.Fatalf("merged images = %v, want one", merged)
	}
	img, err := imaging.Open(merged[0])
	if err != nil {
		t.Fatalf("open merged: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 2000 || b.Dy() != 1000 {
		t.Errorf("merged is %dx%d, want 2000x1000", b.Dx(), b.Dy())
	}

	published := findMerged(t, filepath.Join(bucketDir, "snapshots", "city"))
	if len(published) != 1 {
		t.Errorf("published images = %v, want one", published)
	}
}

func TestFetchJobFlagNoMerge(t *testing.T) {
	server := startTiles(t, http.StatusOK)
	out := t.TempDir()

	path := writeConfig(t, server.URL, out, "")
	code := run([]string{"fetch", "-config", path, "-job", "strip:7,7,7,8", "-no-merge", "-no-probe"})
	if code != ExitSuccess {
		t.Fatalf("fetch exit code = %d", code)
	}

	if merged := findMerged(t, out); len(merged) != 0 {
		t.Errorf("merged images = %v, want none", merged)
	}
	tiles, _ := filepath.Glob(filepath.Join(out, "strip", "*", "*", "*", "*", "wplace_s0_7_*.png"))
	if len(tiles) != 2 {
		t.Errorf("tiles = %v, want 2", tiles)
	}
	for _, c := range server.Requests() {
		if c.X == 0 && c.Y == 0 {
			t.Error("probe sent despite -no-probe")
		}
	}
}

func TestFetchProbeFailure(t *testing.T) {
	server := startTiles(t, http.StatusForbidden)
	out := t.TempDir()

	code := run([]string{"fetch", "-config", writeConfig(t, server.URL, out, "")})
	if code != ExitProbeFailed {
		t.Fatalf("fetch exit code = %d, want %d", code, ExitProbeFailed)
	}
	if reqs := server.Requests(); len(reqs) != 1 {
		t.Errorf("requests = %v, want only the probe", reqs)
	}
}

func TestFetchStorageFailure(t *testing.T) {
	server := startTiles(t, http.StatusOK)

	// A regular file where the output directory should be.
	out := filepath.Join(t.TempDir(), "images")
	if err := os.WriteFile(out, []byte("not a dir"), 0o644); err != nil {
		t.Fatal(err)
	}

	code := run([]string{"fetch", "-config", writeConfig(t, server.URL, out, "")})
	if code != ExitStorageError {
		t.Fatalf("fetch exit code = %d, want %d", code, ExitStorageError)
	}
}

func TestFetchPublishFailure(t *testing.T) {
	server := startTiles(t, http.StatusOK)

	code := run([]string{"fetch", "-config", writeConfig(t, server.URL, t.TempDir(), ""), "-publish", "bogus://bucket"})
	if code != ExitPublishError {
		t.Fatalf("fetch exit code = %d, want %d", code, ExitPublishError)
	}
}

func TestFetchInvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"missing file", []string{"fetch", "-config", filepath.Join(t.TempDir(), "missing.yaml")}},
		{"no jobs", []string{"fetch"}},
		{"bad job flag", []string{"fetch", "-job", "a:1,2,3"}},
		{"bad memory limit", []string{"fetch", "-job", "a:1,1,1,1", "-memory-limit", "lots"}},
		{"negative workers", []string{"fetch", "-config", writeConfig(t, "http://127.0.0.1:1", t.TempDir(), "workers: -1\n")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if code := run(tt.args); code != ExitInvalidArgs {
				t.Errorf("exit code = %d, want %d", code, ExitInvalidArgs)
			}
		})
	}
}

func TestMergeCommand(t *testing.T) {
	runDir := filepath.Join(t.TempDir(), "city", "2025", "08", "02", "12-00-00Z")
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		t.Fatal(err)
	}
	for x := 4; x <= 5; x++ {
		png := testutils.SolidPNG(t, downloader.TileSize, testutils.CoordColor(x, 6))
		if err := os.WriteFile(downloader.TilePath(runDir, x, 6), png, 0o644); err != nil {
			t.Fatal(err)
		}
	}

	if code := run([]string{"merge", "-dir", runDir, "-job", "city:4,6,5,6", "-memory-limit", "1KB"}); code != ExitGeneralError {
		t.Fatalf("merge over limit exit code = %d, want %d", code, ExitGeneralError)
	}
	if _, err := os.Stat(runDir); err != nil {
		t.Fatalf("run dir removed by skipped merge: %v", err)
	}

	if code := run([]string{"merge", "-dir", runDir, "-job", "city:4,6,5,6"}); code != ExitSuccess {
		t.Fatalf("merge exit code = %d", code)
	}
	if _, err := os.Stat(downloader.MergedPath(runDir)); err != nil {
		t.Errorf("merged image missing: %v", err)
	}
	if _, err := os.Stat(runDir); !os.IsNotExist(err) {
		t.Errorf("run dir not removed: %v", err)
	}
}

func TestMergeMissingDir(t *testing.T) {
	code := run([]string{"merge", "-dir", filepath.Join(t.TempDir(), "gone"), "-job", "a:0,0,0,0"})
	if code != ExitStorageError {
		t.Errorf("exit code = %d, want %d", code, ExitStorageError)
	}
}

func TestProbeCommand(t *testing.T) {
	ok := startTiles(t, http.StatusOK)
	if code := run([]string{"probe", "-base-url", ok.URL}); code != ExitSuccess {
		t.Errorf("probe exit code = %d, want %d", code, ExitSuccess)
	}

	failing := startTiles(t, http.StatusInternalServerError)
	if code := run([]string{"probe", "-base-url", failing.URL}); code != ExitProbeFailed {
		t.Errorf("probe exit code = %d, want %d", code, ExitProbeFailed)
	}

	if got := failing.Attempts(0, 0); got != 1 {
		t.Errorf("probe requests = %d, want 1", got)
	}
}
