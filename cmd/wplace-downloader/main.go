package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/craftxbox/wplace-downloader/internal/downloader"
	"github.com/craftxbox/wplace-downloader/internal/queue"
)

// Exit codes
const (
	ExitSuccess      = 0
	ExitGeneralError = 1
	ExitInvalidArgs  = 2
	ExitProbeFailed  = 3
	ExitStorageError = 4
	ExitPublishError = 5
)

func main() {
	// A missing .env file is fine.
	_ = godotenv.Load()

	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) == 0 {
		printUsage()
		return ExitInvalidArgs
	}

	command := args[0]
	cmdArgs := args[1:]

	switch command {
	case "fetch":
		return runFetch(cmdArgs)
	case "merge":
		return runMerge(cmdArgs)
	case "probe":
		return runProbe(cmdArgs)
	case "help", "-h", "--help":
		printUsage()
		return ExitSuccess
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		printUsage()
		return ExitInvalidArgs
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, `Usage: wplace-downloader <command> [options]

Commands:
  fetch     Download the configured regions tile by tile and merge them
  merge     Merge the tiles of an existing run directory
  probe     Check that the tile server answers before starting a job

Run 'wplace-downloader <command> -h' for command-specific help.`)
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			fmt.Fprintln(os.Stderr, "\n[wplace] Received interrupt, shutting down...")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()

	return ctx, cancel
}

// exitCode maps a job failure to the process exit code.
func exitCode(err error) int {
	var probeErr *downloader.ProbeError
	var persistErr *downloader.PersistenceError

	switch {
	case err == nil:
		return ExitSuccess
	case errors.As(err, &probeErr):
		return ExitProbeFailed
	case errors.As(err, &persistErr):
		return ExitStorageError
	case queue.IsPublishError(err):
		return ExitPublishError
	default:
		return ExitGeneralError
	}
}
