package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/craftxbox/wplace-downloader/internal/config"
	"github.com/craftxbox/wplace-downloader/internal/downloader"
	"github.com/craftxbox/wplace-downloader/internal/progress"
)

// runMerge composes the tiles of an existing run directory, for runs whose
// merge was skipped or disabled.
func runMerge(args []string) int {
	fs := flag.NewFlagSet("merge", flag.ContinueOnError)

	dir := fs.String("dir", "", "Run directory holding the tiles (required)")
	jobSpec := fs.String("job", "", "Job as name:xs,ys,xe,ye (required)")
	memoryLimit := fs.String("memory-limit", "", "Refuse to merge above this canvas size (e.g. 4GB)")

	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, `Usage: wplace-downloader merge [options]

Merge the tiles of an existing run directory into one image. The run
directory is removed once the merged image is written.

Options:`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return ExitInvalidArgs
	}

	if *dir == "" || *jobSpec == "" {
		fmt.Fprintln(os.Stderr, "Error: -dir and -job are required")
		fs.Usage()
		return ExitInvalidArgs
	}

	job, err := config.ParseJob(*jobSpec)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitInvalidArgs
	}

	var limit int64
	if *memoryLimit != "" {
		limit, err = progress.ParseBytes(*memoryLimit)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Invalid memory limit: %v\n", err)
			return ExitInvalidArgs
		}
	}

	if info, err := os.Stat(*dir); err != nil || !info.IsDir() {
		fmt.Fprintf(os.Stderr, "Error: %s is not a directory\n", *dir)
		return ExitStorageError
	}

	ctx, cancel := signalContext()
	defer cancel()

	merged, err := downloader.Merge(ctx, job, *dir, downloader.Options{
		MergeMemoryLimit: limit,
	})
	if errors.Is(err, downloader.ErrMergeSkipped) {
		fmt.Fprintln(os.Stderr, "Error: merged image would exceed the memory limit")
		return ExitGeneralError
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitStorageError
	}

	fmt.Fprintf(os.Stderr, "[wplace] Merged: %s\n", merged)
	return ExitSuccess
}
