package render

import (
	"fmt"
	"image"
	"image/png"
	"os"
)

// SavePNG writes a rendered mask to disk as a grayscale PNG.
func SavePNG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("saving mask: %w", err)
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return fmt.Errorf("encoding %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("saving mask: %w", err)
	}
	return nil
}
