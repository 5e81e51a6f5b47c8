// Package downloader fetches a rectangular region of map tiles in parallel
// and merges them into one image.
//
// # Usage
//
// The main entry point is the Run function:
//
//	res, err := downloader.Run(ctx, job, downloader.Options{
//	    OutputDir: "images",
//	    Pool:      proxy.NewPool(cfg.Proxies),
//	    Workers:   3,
//	})
//
// # Workers
//
// Each column of the region is one Task handled by one worker. Workers
// fetch their column top to bottom, pause RequestInterval between tiles
// and retry a tile after the server-advised delay times the retry margin.
// At most Workers × number of routes workers run at once; each acquires
// the least used route when it starts and releases it when it ends.
//
// # Probe
//
// Before any worker starts, a single request for the probe tile checks the
// server is reachable. A rate-limited probe delays the job; any other
// failure aborts it with a *ProbeError.
//
// # Merge
//
// Merging starts only after every worker has terminated. The tiles are
// composed row-major, written next to the run directory, and the run
// directory is removed.
package downloader
