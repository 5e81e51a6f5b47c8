// Package compositor stitches saved tiles into one image.
//
// Callers compute where each tile goes and hand the list to a
// [Compositor]; [Imaging] is the implementation backed by
// github.com/disintegration/imaging.
package compositor

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"

	"github.com/disintegration/imaging"
)

// BytesPerPixel is the in-memory cost of one canvas pixel (NRGBA).
const BytesPerPixel = 4

// ErrEmptyCanvas is returned for non-positive canvas dimensions.
var ErrEmptyCanvas = errors.New("compositor: canvas has no area")

// Placement puts the image at Path with its top-left corner at (X, Y).
type Placement struct {
	Path string
	X    int
	Y    int
}

// Compositor merges placed images into a single image file at dest.
type Compositor interface {
	Compose(ctx context.Context, placements []Placement, width, height int, dest string) error
}

// EstimateBytes returns the memory needed for a width x height canvas.
func EstimateBytes(width, height int) int64 {
	return int64(width) * int64(height) * BytesPerPixel
}

// Imaging composes tiles on an in-memory NRGBA canvas.
type Imaging struct{}

// Compose implements Compositor. The output format follows the extension
// of dest.
func (Imaging) Compose(ctx context.Context, placements []Placement, width, height int, dest string) error {
	if width <= 0 || height <= 0 {
		return ErrEmptyCanvas
	}

	canvas := imaging.New(width, height, color.NRGBA{})

	for _, p := range placements {
		if err := ctx.Err(); err != nil {
			return err
		}

		src, err := imaging.Open(p.Path)
		if err != nil {
			return fmt.Errorf("open tile %s: %w", p.Path, err)
		}

		b := src.Bounds()
		r := image.Rect(p.X, p.Y, p.X+b.Dx(), p.Y+b.Dy())
		draw.Draw(canvas, r, src, b.Min, draw.Src)
	}

	if err := imaging.Save(canvas, dest); err != nil {
		return fmt.Errorf("save %s: %w", dest, err)
	}
	return nil
}
