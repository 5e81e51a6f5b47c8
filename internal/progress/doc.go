// Package progress provides progress reporting for tile jobs.
//
// This package outputs human-readable progress information to stderr,
// including completed tiles, retries, worker counts and an ETA.
//
// # Usage
//
//	reporter := progress.NewReporter(Options{
//	    Job:        "x705-725_y705-725",
//	    TotalTiles: 441,
//	    Workers:    3,
//	})
//
//	reporter.Start()
//	defer reporter.Stop()
//
//	// Update as tiles complete
//	reporter.TileSaved(int64(len(body)))
//
// # Output Format
//
//	[wplace] Job: x705-725_y705-725 | Tiles: 441 | Workers: 3
//	[wplace] Progress: 45.2% | 199/441 tiles | 12 empty | 3 retries | 61.20 MB | Workers: 3 active, 6 done | ETA: 4m 2s
package progress
