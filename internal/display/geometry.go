// Package display models the physical exposure panel: its pixel grid, its
// physical extent, and the conversion between the two.
package display

import (
	"fmt"
	"math"
)

// Geometry describes an exposure panel. The pixel grid and the physical
// dimensions are independent on each axis, so the panel's pixel aspect ratio
// need not match its physical aspect ratio.
//
// Geometry is a plain value: pass it into every conversion instead of keeping
// derived scale factors around, and they can never go stale.
type Geometry struct {
	PixelWidth  int     `json:"pixel_width"`
	PixelHeight int     `json:"pixel_height"`
	WidthMM     float64 `json:"width_mm"`
	HeightMM    float64 `json:"height_mm"`
}

// Default is the geometry of the Anycubic-class 13312x5120 mono LCD panel
// the toolkit was originally built around.
var Default = Geometry{
	PixelWidth:  13312,
	PixelHeight: 5120,
	WidthMM:     223.642,
	HeightMM:    126.48,
}

// Validate reports whether the geometry describes a usable panel.
// All four dimensions must be positive.
func (g Geometry) Validate() error {
	if g.PixelWidth <= 0 || g.PixelHeight <= 0 {
		return fmt.Errorf("display geometry: pixel dimensions must be positive, got %dx%d",
			g.PixelWidth, g.PixelHeight)
	}
	if g.WidthMM <= 0 || g.HeightMM <= 0 {
		return fmt.Errorf("display geometry: physical dimensions must be positive, got %.3fx%.3f mm",
			g.WidthMM, g.HeightMM)
	}
	return nil
}

// PxPerMMX returns the horizontal scale factor in pixels per millimeter.
func (g Geometry) PxPerMMX() float64 {
	return float64(g.PixelWidth) / g.WidthMM
}

// PxPerMMY returns the vertical scale factor in pixels per millimeter.
func (g Geometry) PxPerMMY() float64 {
	return float64(g.PixelHeight) / g.HeightMM
}

// ToPixelsX converts a horizontal millimeter distance to pixels, rounding to
// the nearest pixel. Used for paste offsets.
func (g Geometry) ToPixelsX(mm float64) int {
	return int(math.Round(mm * g.PxPerMMX()))
}

// ToPixelsY converts a vertical millimeter distance to pixels, rounding to
// the nearest pixel.
func (g Geometry) ToPixelsY(mm float64) int {
	return int(math.Round(mm * g.PxPerMMY()))
}

// TruncPixelsX converts a horizontal millimeter distance to pixels,
// truncating toward zero. Used for radii and circle centers.
func (g Geometry) TruncPixelsX(mm float64) int {
	return int(mm * g.PxPerMMX())
}

// TruncPixelsY converts a vertical millimeter distance to pixels,
// truncating toward zero.
func (g Geometry) TruncPixelsY(mm float64) int {
	return int(mm * g.PxPerMMY())
}
