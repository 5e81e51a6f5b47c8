package downloader

import (
	"bytes"
	"fmt"
	"image/color"
	"os"

	"github.com/disintegration/imaging"
)

// LoadPlaceholder returns the image written for tiles the server does not
// have. With an empty path it renders a transparent tile of tileSize.
func LoadPlaceholder(path string, tileSize int) ([]byte, error) {
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read placeholder: %w", err)
		}
		return data, nil
	}

	var buf bytes.Buffer
	img := imaging.New(tileSize, tileSize, color.NRGBA{})
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return nil, fmt.Errorf("render placeholder: %w", err)
	}
	return buf.Bytes(), nil
}
