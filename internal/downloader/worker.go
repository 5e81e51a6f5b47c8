package downloader

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	tilehttp "github.com/craftxbox/wplace-downloader/internal/http"
	"github.com/craftxbox/wplace-downloader/internal/proxy"
)

// Task is one worker's share of a job: rows RangeStart..RangeEnd of a
// single column.
type Task struct {
	Column     int
	RangeStart int
	RangeEnd   int

	// Proxy is the route acquired when the worker starts; nil is direct.
	Proxy *proxy.Proxy
}

// WorkerResult is sent to the coordinator when a worker terminates.
type WorkerResult struct {
	Column     int
	ProxyIndex int // -1 for the direct route
	Saved      int
	Empty      int
	Retries    int
	Err        error
}

// fetcher is the part of the tile client a worker needs.
type fetcher interface {
	Fetch(ctx context.Context, x, y int) tilehttp.Outcome
	Close()
}

// PersistenceError is returned when a tile or the run directory cannot be
// written to disk. It aborts the whole job.
type PersistenceError struct {
	Path string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist %s: %v", e.Path, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// worker fetches the tiles of one Task in ascending order.
type worker struct {
	task        Task
	runDir      string
	client      fetcher
	policy      Policy
	placeholder []byte
	sleep       func(context.Context, time.Duration) error
	log         zerolog.Logger
	tileLevel   zerolog.Level
	onSaved     func(size int64)
	onEmpty     func()
	onRetry     func()

	result WorkerResult
}

// run processes the whole range. It stops issuing requests as soon as ctx
// is cancelled.
func (w *worker) run(ctx context.Context) error {
	for y := w.task.RangeStart; y <= w.task.RangeEnd; y++ {
		wait, err := w.fetchTile(ctx, w.task.Column, y)
		if err != nil {
			return err
		}
		if y == w.task.RangeEnd {
			break
		}
		if err := w.sleep(ctx, wait); err != nil {
			return err
		}
	}
	return nil
}

// fetchTile drives one coordinate through attempt → outcome →
// {advance | retry after delay}. It returns the pacing interval to wait
// before the next coordinate.
func (w *worker) fetchTile(ctx context.Context, x, y int) (time.Duration, error) {
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return 0, err
		}

		out := w.client.Fetch(ctx, x, y)
		dec := w.policy.Decide(out, attempt)

		switch dec.Action {
		case Advance:
			if err := w.persist(x, y, out); err != nil {
				return 0, err
			}
			return dec.Wait, nil

		case Retry:
			w.result.Retries++
			if w.onRetry != nil {
				w.onRetry()
			}
			w.log.Warn().
				Int("x", x).
				Int("y", y).
				Int("status", out.Status).
				Int("attempt", attempt).
				Dur("delay", dec.Wait).
				AnErr("cause", out.Err).
				Msg("tile fetch failed, retrying")
			if err := w.sleep(ctx, dec.Wait); err != nil {
				return 0, err
			}

		default:
			return 0, fmt.Errorf("tile %d,%d: %w", x, y, dec.Err)
		}
	}
}

func (w *worker) persist(x, y int, out tilehttp.Outcome) error {
	path := TilePath(w.runDir, x, y)

	data := out.Body
	if out.Kind == tilehttp.Empty {
		data = w.placeholder
	}
	if err := writeFileAtomic(path, data); err != nil {
		return &PersistenceError{Path: path, Err: err}
	}

	if out.Kind == tilehttp.Empty {
		w.result.Empty++
		if w.onEmpty != nil {
			w.onEmpty()
		}
		w.log.WithLevel(w.tileLevel).Int("x", x).Int("y", y).Msg("tile is empty")
		return nil
	}

	w.result.Saved++
	if w.onSaved != nil {
		w.onSaved(int64(len(data)))
	}
	w.log.WithLevel(w.tileLevel).Int("x", x).Int("y", y).Int("bytes", len(data)).Msg("saved tile")
	return nil
}

// writeFileAtomic writes data next to path and renames it into place, so
// a reader never sees a partial tile.
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tile-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
