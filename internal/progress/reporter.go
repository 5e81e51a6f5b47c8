package progress

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Options configures the progress reporter.
type Options struct {
	// Job is the job name (for display).
	Job string

	// TotalTiles is the number of tiles in the job.
	TotalTiles int

	// Workers is the worker cap for the job.
	Workers int

	// Output is where to write progress output.
	// Default: os.Stderr
	Output io.Writer

	// UpdateInterval is how often to update the progress display.
	// Default: 1s
	UpdateInterval time.Duration
}

// Reporter outputs human-readable progress information for one job.
type Reporter struct {
	opts Options

	mu            sync.Mutex
	savedTiles    atomic.Int64
	emptyTiles    atomic.Int64
	retries       atomic.Int64
	bytes         atomic.Int64
	activeWorkers atomic.Int32
	doneWorkers   atomic.Int32
	startTime     time.Time
	stopCh        chan struct{}
	doneCh        chan struct{}
	started       bool
	stopped       bool
}

// NewReporter creates a new progress reporter.
func NewReporter(opts Options) *Reporter {
	if opts.Output == nil {
		opts.Output = os.Stderr
	}
	if opts.UpdateInterval == 0 {
		opts.UpdateInterval = time.Second
	}

	return &Reporter{
		opts:   opts,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// Start begins outputting progress information.
func (r *Reporter) Start() {
	r.mu.Lock()
	if r.started {
		r.mu.Unlock()
		return
	}
	r.started = true
	r.startTime = time.Now()
	r.mu.Unlock()

	fmt.Fprintf(r.opts.Output, "[wplace] Job: %s | Tiles: %d | Workers: %d\n",
		r.opts.Job,
		r.opts.TotalTiles,
		r.opts.Workers,
	)

	go r.updateLoop()
}

// Stop stops the reporter and prints the final status. It waits for the
// final line to be written.
func (r *Reporter) Stop() {
	r.mu.Lock()
	if r.stopped || !r.started {
		r.stopped = true
		r.mu.Unlock()
		return
	}
	r.stopped = true
	r.mu.Unlock()

	close(r.stopCh)
	<-r.doneCh
}

// WorkerStarted marks a worker as running.
func (r *Reporter) WorkerStarted() {
	r.activeWorkers.Add(1)
}

// WorkerFinished marks a worker as terminated.
func (r *Reporter) WorkerFinished() {
	r.activeWorkers.Add(-1)
	r.doneWorkers.Add(1)
}

// TileSaved records a tile written from the server response.
func (r *Reporter) TileSaved(size int64) {
	r.savedTiles.Add(1)
	r.bytes.Add(size)
}

// TileEmpty records a tile replaced by the placeholder.
func (r *Reporter) TileEmpty() {
	r.emptyTiles.Add(1)
}

// TileRetried records a retried fetch attempt.
func (r *Reporter) TileRetried() {
	r.retries.Add(1)
}

// Done returns the number of tiles that reached a terminal outcome.
func (r *Reporter) Done() int {
	return int(r.savedTiles.Load() + r.emptyTiles.Load())
}

// updateLoop periodically updates the progress display.
func (r *Reporter) updateLoop() {
	defer close(r.doneCh)

	ticker := time.NewTicker(r.opts.UpdateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopCh:
			r.printFinalStatus()
			return
		case <-ticker.C:
			r.printProgress()
		}
	}
}

// printProgress outputs the current progress.
func (r *Reporter) printProgress() {
	done := r.Done()

	var percent float64
	var eta string
	if r.opts.TotalTiles > 0 {
		percent = float64(done) / float64(r.opts.TotalTiles) * 100
		elapsed := time.Since(r.startTime)
		if done > 0 {
			perTile := elapsed / time.Duration(done)
			eta = formatDuration(perTile * time.Duration(r.opts.TotalTiles-done))
		} else {
			eta = "calculating..."
		}
	}

	fmt.Fprintf(r.opts.Output, "\r[wplace] Progress: %.1f%% | %d/%d tiles | %d empty | %d retries | %s | Workers: %d active, %d done | ETA: %s    ",
		percent,
		done,
		r.opts.TotalTiles,
		r.emptyTiles.Load(),
		r.retries.Load(),
		formatBytes(r.bytes.Load()),
		r.activeWorkers.Load(),
		r.doneWorkers.Load(),
		eta,
	)
}

// printFinalStatus outputs the final status.
func (r *Reporter) printFinalStatus() {
	duration := time.Since(r.startTime)

	fmt.Fprintf(r.opts.Output, "\r[wplace] Tiles: %d saved | %d empty | %d retries | %s downloaded    \n",
		r.savedTiles.Load(),
		r.emptyTiles.Load(),
		r.retries.Load(),
		formatBytes(r.bytes.Load()),
	)
	fmt.Fprintf(r.opts.Output, "[wplace] Total time: %s\n", formatDuration(duration))
}

// formatBytes formats bytes as a human-readable string.
func formatBytes(b int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
		TB = GB * 1024
	)

	switch {
	case b >= TB:
		return fmt.Sprintf("%.2f TB", float64(b)/float64(TB))
	case b >= GB:
		return fmt.Sprintf("%.2f GB", float64(b)/float64(GB))
	case b >= MB:
		return fmt.Sprintf("%.2f MB", float64(b)/float64(MB))
	case b >= KB:
		return fmt.Sprintf("%.2f KB", float64(b)/float64(KB))
	default:
		return fmt.Sprintf("%d B", b)
	}
}

// formatDuration formats a duration as a human-readable string.
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.0fs", d.Seconds())
	}
	if d < time.Hour {
		m := int(d.Minutes())
		s := int(d.Seconds()) % 60
		return fmt.Sprintf("%dm %ds", m, s)
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%dh %dm %ds", h, m, s)
}

// FormatBytes renders b with a binary unit, e.g. "4.00 GB".
func FormatBytes(b int64) string {
	return formatBytes(b)
}

// ParseBytes parses a human-readable byte string (e.g., "4GB").
func ParseBytes(s string) (int64, error) {
	var multiplier int64 = 1
	s = strings.TrimSpace(s)

	switch {
	case strings.HasSuffix(s, "TB"):
		multiplier = 1024 * 1024 * 1024 * 1024
		s = s[:len(s)-2]
	case strings.HasSuffix(s, "GB"):
		multiplier = 1024 * 1024 * 1024
		s = s[:len(s)-2]
	case strings.HasSuffix(s, "MB"):
		multiplier = 1024 * 1024
		s = s[:len(s)-2]
	case strings.HasSuffix(s, "KB"):
		multiplier = 1024
		s = s[:len(s)-2]
	case strings.HasSuffix(s, "B"):
		s = s[:len(s)-1]
	}

	value, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || value < 0 {
		return 0, fmt.Errorf("invalid byte string: %s", s)
	}

	return int64(value * float64(multiplier)), nil
}
