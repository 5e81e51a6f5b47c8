package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/craftxbox/wplace-downloader/internal/downloader"
	"github.com/craftxbox/wplace-downloader/internal/logger"
)

// runProbe sends only the reachability probe.
func runProbe(args []string) int {
	fs := flag.NewFlagSet("probe", flag.ContinueOnError)

	configPath := fs.String("config", "", "Path to the YAML config file")
	baseURL := fs.String("base-url", "", "Tile server base URL")
	x := fs.Int("x", -1, "Probe tile column (default from config)")
	y := fs.Int("y", -1, "Probe tile row (default from config)")

	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, `Usage: wplace-downloader probe [options]

Request a single tile to check the server answers. A rate-limited answer
waits out the advised delay; anything else but success fails.

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
	if *baseURL != "" {
		cfg.BaseURL = *baseURL
	}
	if *x >= 0 {
		cfg.Probe.X = *x
	}
	if *y >= 0 {
		cfg.Probe.Y = *y
	}

	ctx, cancel := signalContext()
	defer cancel()

	log := logger.New("wplace")

	if err := downloader.Probe(ctx, downloaderOptions(cfg, nil, &log)); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitCode(err)
	}

	fmt.Fprintln(os.Stderr, "[wplace] Tile server is reachable")
	return ExitSuccess
}
