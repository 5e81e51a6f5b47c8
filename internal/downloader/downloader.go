package downloader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/craftxbox/wplace-downloader/internal/compositor"
	"github.com/craftxbox/wplace-downloader/internal/config"
	tilehttp "github.com/craftxbox/wplace-downloader/internal/http"
	"github.com/craftxbox/wplace-downloader/internal/logger"
	"github.com/craftxbox/wplace-downloader/internal/progress"
	"github.com/craftxbox/wplace-downloader/internal/proxy"
)

// Options configures the downloader.
type Options struct {
	// OutputDir is the root under which run directories are created.
	OutputDir string

	// HTTPOptions configures the tile clients.
	HTTPOptions tilehttp.Options

	// Pool holds the egress routes. Nil or empty means direct.
	Pool *proxy.Pool

	// Workers is the number of concurrent workers per egress route.
	// Default: 3
	Workers int

	// SpawnInterval paces the start of new workers.
	// Default: 500ms
	SpawnInterval time.Duration

	// Policy decides retries and request pacing.
	Policy Policy

	// ProbeX and ProbeY locate the tile used for the reachability probe.
	ProbeX, ProbeY int

	// SkipProbe disables the reachability probe.
	SkipProbe bool

	// ProbeDelay is waited out when a rate-limited probe has no Retry-After.
	// Default: 60s
	ProbeDelay time.Duration

	// Placeholder is written for tiles the server does not have.
	// Default: a transparent PNG of TileSize
	Placeholder []byte

	// NoMerge keeps the tiles and skips composing.
	NoMerge bool

	// MergeMemoryLimit skips the merge when the canvas would need more
	// memory than this. Zero disables the check.
	MergeMemoryLimit int64

	// TileSize is the tile edge in pixels.
	// Default: TileSize
	TileSize int

	// Compositor merges the tiles.
	// Default: compositor.Imaging
	Compositor compositor.Compositor

	// Progress enables the progress reporter, written to ProgressOutput.
	Progress       bool
	ProgressOutput io.Writer

	// Logger receives structured logs. Nil disables logging.
	Logger *zerolog.Logger

	// Now and Sleep replace the clock, mainly in tests.
	Now   func() time.Time
	Sleep func(ctx context.Context, d time.Duration) error

	newClient func(tilehttp.Options, *proxy.Proxy) (fetcher, error)
}

func (o *Options) applyDefaults() {
	if o.Workers <= 0 {
		o.Workers = 3
	}
	if o.SpawnInterval <= 0 {
		o.SpawnInterval = 500 * time.Millisecond
	}
	d := DefaultPolicy()
	if o.Policy.RequestInterval <= 0 {
		o.Policy.RequestInterval = d.RequestInterval
	}
	if o.Policy.RetryMargin < 1 {
		o.Policy.RetryMargin = d.RetryMargin
	}
	if o.ProbeDelay <= 0 {
		o.ProbeDelay = 60 * time.Second
	}
	if o.TileSize <= 0 {
		o.TileSize = TileSize
	}
	if o.Pool == nil {
		o.Pool = proxy.NewPool(nil)
	}
	if o.Compositor == nil {
		o.Compositor = compositor.Imaging{}
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.Sleep == nil {
		o.Sleep = sleepContext
	}
	if o.newClient == nil {
		o.newClient = func(opts tilehttp.Options, route *proxy.Proxy) (fetcher, error) {
			return tilehttp.NewClient(opts, route)
		}
	}
	o.Logger = logger.OrNop(o.Logger)
}

// ProbeError is returned when the reachability probe reports anything but
// success or rate limiting. No worker is started.
type ProbeError struct {
	Status int // 0 when no response arrived
	Err    error
}

func (e *ProbeError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("probe failed: status %d", e.Status)
	}
	return fmt.Sprintf("probe failed: %v", e.Err)
}

func (e *ProbeError) Unwrap() error { return e.Err }

// ErrMergeSkipped marks a result whose merge was skipped by the memory limit.
var ErrMergeSkipped = errors.New("downloader: merge skipped")

// Result summarizes a finished job.
type Result struct {
	Job        config.Job
	RunID      string
	StartedAt  time.Time
	RunDir     string
	MergedPath string // empty when not merged
	Workers    int
	Saved      int
	Empty      int
	Retries    int

	// MergeSkipped is set when the memory limit prevented the merge.
	MergeSkipped bool
}

// Run fetches every tile of job and merges them. It returns once every
// worker has terminated and the merge, if any, is written.
func Run(ctx context.Context, job config.Job, opts Options) (*Result, error) {
	opts.applyDefaults()

	if err := job.Validate(); err != nil {
		return nil, err
	}

	runID := uuid.NewString()
	log := opts.Logger.With().Str("job", job.Name).Str("run_id", runID).Logger()

	started := opts.Now().UTC()
	runDir := RunDir(opts.OutputDir, job.Name, started)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return nil, &PersistenceError{Path: runDir, Err: err}
	}
	log.Info().Str("dir", runDir).Int("tiles", job.Tiles()).Msg("starting job")

	if !opts.SkipProbe {
		if err := probe(ctx, opts, &log); err != nil {
			return nil, err
		}
	}

	placeholder := opts.Placeholder
	if placeholder == nil {
		var err error
		placeholder, err = LoadPlaceholder("", opts.TileSize)
		if err != nil {
			return nil, err
		}
	}

	limit := opts.Workers * max(1, opts.Pool.Len())
	limit = min(limit, job.Width())

	var reporter *progress.Reporter
	if opts.Progress {
		reporter = progress.NewReporter(progress.Options{
			Job:        job.Name,
			TotalTiles: job.Tiles(),
			Workers:    limit,
			Output:     opts.ProgressOutput,
		})
		reporter.Start()
	}

	res := &Result{Job: job, RunID: runID, StartedAt: started, RunDir: runDir}

	err := fetchGrid(ctx, job, runDir, placeholder, limit, opts, reporter, &log, res)
	if reporter != nil {
		reporter.Stop()
	}
	if err != nil {
		return res, err
	}
	log.Info().Int("saved", res.Saved).Int("empty", res.Empty).Int("retries", res.Retries).Msg("all tiles fetched")

	if opts.NoMerge {
		return res, nil
	}

	merged, err := Merge(ctx, job, runDir, opts)
	if errors.Is(err, ErrMergeSkipped) {
		res.MergeSkipped = true
		width, height := CanvasSize(job, opts.TileSize)
		log.Warn().
			Str("dir", runDir).
			Str("needed", progress.FormatBytes(compositor.EstimateBytes(width, height))).
			Str("limit", progress.FormatBytes(opts.MergeMemoryLimit)).
			Msg("merged image would exceed the memory limit, keeping tiles only")
		return res, nil
	}
	if err != nil {
		return res, err
	}
	res.MergedPath = merged
	log.Info().Str("path", merged).Msg("merged image saved")
	return res, nil
}

// fetchGrid runs one worker per column, at most limit at a time, and
// returns after every worker has terminated.
func fetchGrid(ctx context.Context, job config.Job, runDir string, placeholder []byte, limit int, opts Options, reporter *progress.Reporter, log *zerolog.Logger, res *Result) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	spawn := rate.NewLimiter(rate.Every(opts.SpawnInterval), 1)
	results := make(chan WorkerResult, job.Width())

	tileLevel := zerolog.InfoLevel
	if opts.Pool.Len() > 0 {
		// One line per tile gets noisy with many routes.
		tileLevel = zerolog.DebugLevel
	}

	var spawnErr error
	for x := job.XStart; x <= job.XEnd; x++ {
		if err := spawn.Wait(gctx); err != nil {
			spawnErr = err
			break
		}

		task := Task{Column: x, RangeStart: job.YStart, RangeEnd: job.YEnd}
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			return runWorker(gctx, task, runDir, placeholder, opts, reporter, log, tileLevel, results)
		})
	}

	err := g.Wait()
	close(results)

	for r := range results {
		res.Workers++
		res.Saved += r.Saved
		res.Empty += r.Empty
		res.Retries += r.Retries
	}

	if err == nil {
		err = spawnErr
	}
	if err == nil {
		err = ctx.Err()
	}
	return err
}

// runWorker acquires a route, fetches the task and always releases the
// route and reports a WorkerResult, whatever the outcome.
func runWorker(ctx context.Context, task Task, runDir string, placeholder []byte, opts Options, reporter *progress.Reporter, log *zerolog.Logger, tileLevel zerolog.Level, results chan<- WorkerResult) (err error) {
	route, idx := opts.Pool.AcquireLeastUsed()
	task.Proxy = route

	wlog := log.With().Int("column", task.Column).Str("route", route.String()).Logger()

	w := &worker{
		task:        task,
		runDir:      runDir,
		policy:      opts.Policy,
		placeholder: placeholder,
		sleep:       opts.Sleep,
		log:         wlog,
		tileLevel:   tileLevel,
		result:      WorkerResult{Column: task.Column, ProxyIndex: idx},
	}
	if reporter != nil {
		reporter.WorkerStarted()
		w.onSaved = reporter.TileSaved
		w.onEmpty = reporter.TileEmpty
		w.onRetry = reporter.TileRetried
	}

	defer func() {
		opts.Pool.Release(route)
		if reporter != nil {
			reporter.WorkerFinished()
		}
		w.result.Err = err
		results <- w.result

		ev := wlog.Info()
		if err != nil {
			ev = wlog.Warn().Err(err)
		}
		ev.Int("saved", w.result.Saved).Int("empty", w.result.Empty).Msg("finished column")
	}()

	wlog.Info().Int("from", task.RangeStart).Int("to", task.RangeEnd).Msg("starting column")

	client, err := opts.newClient(opts.HTTPOptions, route)
	if err != nil {
		return fmt.Errorf("column %d: %w", task.Column, err)
	}
	defer client.Close()
	w.client = client

	return w.run(ctx)
}

// Probe sends a single request for the probe tile and waits out any rate
// limit it reports. Any other failure is returned as a *ProbeError.
func Probe(ctx context.Context, opts Options) error {
	opts.applyDefaults()
	return probe(ctx, opts, opts.Logger)
}

func probe(ctx context.Context, opts Options, log *zerolog.Logger) error {
	httpOpts := opts.HTTPOptions
	httpOpts.DefaultRetryDelay = opts.ProbeDelay

	client, err := opts.newClient(httpOpts, nil)
	if err != nil {
		return &ProbeError{Err: err}
	}
	defer client.Close()

	log.Info().Int("x", opts.ProbeX).Int("y", opts.ProbeY).Msg("poking the bear")
	out := client.Fetch(ctx, opts.ProbeX, opts.ProbeY)
	log.Info().Int("status", out.Status).Msg("probe finished")

	switch {
	case out.Kind == tilehttp.Saved:
		return nil
	case out.Kind == tilehttp.Fatal && ctx.Err() != nil:
		return ctx.Err()
	case out.Status == http.StatusTooManyRequests:
		wait := opts.Policy.backoff(out.Delay)
		log.Warn().Dur("delay", wait).Msg("rate limited, waiting before starting")
		return opts.Sleep(ctx, wait)
	default:
		return &ProbeError{Status: out.Status, Err: out.Err}
	}
}

// Merge composes the tiles of a finished run into MergedPath(runDir) and
// removes runDir. It returns ErrMergeSkipped without touching anything
// when the canvas exceeds opts.MergeMemoryLimit.
func Merge(ctx context.Context, job config.Job, runDir string, opts Options) (string, error) {
	opts.applyDefaults()

	width, height := CanvasSize(job, opts.TileSize)
	if opts.MergeMemoryLimit > 0 && compositor.EstimateBytes(width, height) > opts.MergeMemoryLimit {
		return "", ErrMergeSkipped
	}

	dest := MergedPath(runDir)
	placements := Placements(job, runDir, opts.TileSize)
	if err := opts.Compositor.Compose(ctx, placements, width, height, dest); err != nil {
		return "", fmt.Errorf("merge %s: %w", job.Name, err)
	}

	if err := os.RemoveAll(runDir); err != nil {
		return dest, fmt.Errorf("remove run directory: %w", err)
	}
	return dest, nil
}
