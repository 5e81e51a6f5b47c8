package main

import (
	"flag"
	"fmt"
	"os"

	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/gcsblob"
	_ "gocloud.dev/blob/memblob"
	_ "gocloud.dev/blob/s3blob"

	"github.com/craftxbox/wplace-downloader/internal/config"
	"github.com/craftxbox/wplace-downloader/internal/downloader"
	"github.com/craftxbox/wplace-downloader/internal/logger"
	"github.com/craftxbox/wplace-downloader/internal/progress"
	"github.com/craftxbox/wplace-downloader/internal/publish"
	"github.com/craftxbox/wplace-downloader/internal/queue"
)

// runFetch downloads every configured job in order, merging and optionally
// publishing each before the next starts.
func runFetch(args []string) int {
	fs := flag.NewFlagSet("fetch", flag.ContinueOnError)

	configPath := fs.String("config", "", "Path to the YAML config file")
	var jobs jobList
	fs.Var(&jobs, "job", "Job as name:xs,ys,xe,ye (repeatable, replaces config jobs)")
	baseURL := fs.String("base-url", "", "Tile server base URL")
	output := fs.String("output", "", "Output directory")
	workers := fs.Int("workers", 0, "Workers per egress route")
	noMerge := fs.Bool("no-merge", false, "Keep the tiles and skip merging")
	memoryLimit := fs.String("memory-limit", "", "Skip merging above this canvas size (e.g. 4GB)")
	publishURL := fs.String("publish", "", "Bucket URL to publish merged images to")
	prefix := fs.String("prefix", "", "Key prefix for published images")
	showProgress := fs.Bool("progress", false, "Show progress output")
	noProbe := fs.Bool("no-probe", false, "Skip the reachability probe")

	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, `Usage: wplace-downloader fetch [options]

Download rectangular regions of the canvas tile by tile and merge them.

Options:`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return ExitInvalidArgs
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		return ExitInvalidArgs
	}

	// Flags override file and environment.
	override := config.Config{
		Jobs:       []config.Job(jobs),
		BaseURL:    *baseURL,
		OutputDir:  *output,
		Workers:    *workers,
		PublishURL: *publishURL,
		Progress:   *showProgress,
	}
	if *memoryLimit != "" {
		limit, err := progress.ParseBytes(*memoryLimit)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Invalid memory limit: %v\n", err)
			return ExitInvalidArgs
		}
		override.MergeMemoryLimit = limit
	}
	cfg = cfg.Merge(override)
	if *noMerge {
		cfg.MergeImages = false
	}
	if *noProbe {
		cfg.Probe.Disabled = true
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		fs.Usage()
		return ExitInvalidArgs
	}

	placeholder, err := downloader.LoadPlaceholder(cfg.Placeholder, downloader.TileSize)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitInvalidArgs
	}

	ctx, cancel := signalContext()
	defer cancel()

	log := logger.New("wplace")

	q := &queue.Queue{
		Runner: queue.Downloader(downloaderOptions(cfg, placeholder, &log)),
		Logger: &log,
	}

	if cfg.PublishURL != "" {
		pub, err := publish.Open(ctx, cfg.PublishURL, publish.Options{Prefix: *prefix, Logger: &log})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening bucket: %v\n", err)
			return ExitPublishError
		}
		defer pub.Close()
		q.Publisher = pub
	}

	results, err := q.Run(ctx, cfg.Jobs)
	for _, res := range results {
		switch {
		case res.MergedPath != "":
			size := "?"
			if info, err := os.Stat(res.MergedPath); err == nil {
				size = progress.FormatBytes(info.Size())
			}
			fmt.Fprintf(os.Stderr, "[wplace] %s: %s (%s)\n", res.Job.Name, res.MergedPath, size)
		default:
			fmt.Fprintf(os.Stderr, "[wplace] %s: tiles in %s\n", res.Job.Name, res.RunDir)
		}
	}
	if err != nil {
		if ctx.Err() != nil {
			fmt.Fprintln(os.Stderr, "[wplace] Fetch interrupted")
			return ExitGeneralError
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitCode(err)
	}

	return ExitSuccess
}
