package downloader

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/craftxbox/wplace-downloader/internal/compositor"
	"github.com/craftxbox/wplace-downloader/internal/config"
)

// TileSize is the edge length of a tile in pixels.
const TileSize = 1000

// RunDir returns the directory a job started at t writes its tiles to:
// {outputDir}/{job}/{YYYY}/{MM}/{DD}/{HH-MM-SS}Z, in UTC.
func RunDir(outputDir, jobName string, t time.Time) string {
	t = t.UTC()
	return filepath.Join(outputDir, jobName,
		t.Format("2006"), t.Format("01"), t.Format("02"),
		t.Format("15-04-05")+"Z")
}

// TilePath returns the file a tile is stored in.
func TilePath(runDir string, x, y int) string {
	return filepath.Join(runDir, fmt.Sprintf("wplace_s0_%d_%d.png", x, y))
}

// MergedPath returns where the merged image of a run is written, next to
// the run directory.
func MergedPath(runDir string) string {
	return filepath.Clean(runDir) + "_merged.png"
}

// Placements lays out every tile of job in row-major order, each at
// (column index × tileSize, row index × tileSize).
func Placements(job config.Job, runDir string, tileSize int) []compositor.Placement {
	out := make([]compositor.Placement, 0, job.Tiles())
	for j := 0; j < job.Height(); j++ {
		for i := 0; i < job.Width(); i++ {
			out = append(out, compositor.Placement{
				Path: TilePath(runDir, job.XStart+i, job.YStart+j),
				X:    i * tileSize,
				Y:    j * tileSize,
			})
		}
	}
	return out
}

// CanvasSize returns the merged image dimensions of job.
func CanvasSize(job config.Job, tileSize int) (width, height int) {
	return job.Width() * tileSize, job.Height() * tileSize
}
