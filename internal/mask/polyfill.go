package mask

import (
	"image"
	"math"
	"sort"

	"maskforge/pkg/geometry"
)

// FillPolygon rasterizes a polygon onto dst with a solid value, using
// even-odd scanline filling. No anti-aliasing is applied; overlapping
// same-value polygons simply merge. Vertices are in dst pixel coordinates
// and may fall outside the canvas; out-of-range spans are clipped.
func FillPolygon(dst *image.Gray, poly geometry.Polygon, value uint8) {
	if len(poly) < 3 {
		return
	}
	b := dst.Bounds()

	minY := int(math.Floor(poly.Bounds().Y))
	maxY := int(math.Ceil(poly.Bounds().Y + poly.Bounds().Height))
	if minY < b.Min.Y {
		minY = b.Min.Y
	}
	if maxY > b.Max.Y {
		maxY = b.Max.Y
	}

	xs := make([]float64, 0, len(poly))
	for y := minY; y < maxY; y++ {
		cy := float64(y) + 0.5
		xs = xs[:0]

		// Collect crossings of the scanline with every polygon edge.
		for i := range poly {
			p1 := poly[i]
			p2 := poly[(i+1)%len(poly)]
			if (p1.Y <= cy && p2.Y > cy) || (p2.Y <= cy && p1.Y > cy) {
				t := (cy - p1.Y) / (p2.Y - p1.Y)
				xs = append(xs, p1.X+t*(p2.X-p1.X))
			}
		}
		if len(xs) < 2 {
			continue
		}
		sort.Float64s(xs)

		for i := 0; i+1 < len(xs); i += 2 {
			x0 := int(math.Ceil(xs[i] - 0.5))
			x1 := int(math.Ceil(xs[i+1] - 0.5))
			if x0 < b.Min.X {
				x0 = b.Min.X
			}
			if x1 > b.Max.X {
				x1 = b.Max.X
			}
			row := dst.Pix[(y-b.Min.Y)*dst.Stride:]
			for x := x0; x < x1; x++ {
				row[x-b.Min.X] = value
			}
		}
	}
}
