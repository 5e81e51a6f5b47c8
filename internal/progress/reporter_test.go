package progress

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		input    int64
		expected string
	}{
		{0, "0 B"},
		{100, "100 B"},
		{1024, "1.00 KB"},
		{1536, "1.50 KB"},
		{1024 * 1024, "1.00 MB"},
		{4 * 1024 * 1024 * 1024, "4.00 GB"},
		{1024 * 1024 * 1024 * 1024, "1.00 TB"},
	}

	for _, tt := range tests {
		result := FormatBytes(tt.input)
		if result != tt.expected {
			t.Errorf("FormatBytes(%d) = %q, want %q", tt.input, result, tt.expected)
		}
	}
}

func TestParseBytes(t *testing.T) {
	tests := []struct {
		input    string
		expected int64
	}{
		{"100", 100},
		{"100B", 100},
		{"1KB", 1024},
		{"1.5KB", 1536},
		{"256MB", 256 * 1024 * 1024},
		{" 4GB ", 4 * 1024 * 1024 * 1024},
		{"1TB", 1024 * 1024 * 1024 * 1024},
	}

	for _, tt := range tests {
		result, err := ParseBytes(tt.input)
		if err != nil {
			t.Errorf("ParseBytes(%q): %v", tt.input, err)
			continue
		}
		if result != tt.expected {
			t.Errorf("ParseBytes(%q) = %d, want %d", tt.input, result, tt.expected)
		}
	}
}

func TestParseBytesInvalid(t *testing.T) {
	for _, input := range []string{"invalid", "-1GB", ""} {
		if _, err := ParseBytes(input); err == nil {
			t.Errorf("ParseBytes(%q): expected error", input)
		}
	}
}

func TestReporterTracking(t *testing.T) {
	reporter := NewReporter(Options{
		Job:        "test",
		TotalTiles: 4,
		Workers:    2,
	})

	reporter.WorkerStarted()
	reporter.TileSaved(256)
	reporter.TileRetried()
	reporter.TileEmpty()

	if reporter.activeWorkers.Load() != 1 {
		t.Errorf("expected 1 active worker, got %d", reporter.activeWorkers.Load())
	}
	if reporter.Done() != 2 {
		t.Errorf("expected 2 done tiles, got %d", reporter.Done())
	}
	if reporter.bytes.Load() != 256 {
		t.Errorf("expected 256 bytes, got %d", reporter.bytes.Load())
	}

	reporter.WorkerFinished()
	if reporter.activeWorkers.Load() != 0 || reporter.doneWorkers.Load() != 1 {
		t.Errorf("unexpected worker counters: active=%d done=%d",
			reporter.activeWorkers.Load(), reporter.doneWorkers.Load())
	}
}

func TestReporterStartStop(t *testing.T) {
	var out bytes.Buffer
	reporter := NewReporter(Options{
		Job:            "x0-1_y0-1",
		TotalTiles:     4,
		Workers:        2,
		Output:         &out,
		UpdateInterval: 10 * time.Millisecond,
	})

	reporter.Start()
	reporter.TileSaved(1024)
	reporter.TileSaved(1024)
	time.Sleep(50 * time.Millisecond)
	reporter.Stop()
	reporter.Stop()

	got := out.String()
	if !strings.Contains(got, "[wplace] Job: x0-1_y0-1 | Tiles: 4 | Workers: 2") {
		t.Errorf("missing header in output:\n%s", got)
	}
	if !strings.Contains(got, "2 saved") {
		t.Errorf("missing final status in output:\n%s", got)
	}
}

func TestReporterStopWithoutStart(t *testing.T) {
	reporter := NewReporter(Options{})
	reporter.Stop()
}
