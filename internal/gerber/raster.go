package gerber

import (
	"fmt"
	"image"
	"math"

	"maskforge/internal/mask"
	"maskforge/pkg/geometry"
)

// Render parses path and rasterizes it at the given pixel density.
// See File.Render for the raster conventions.
func Render(path string, pxPerMM float64) (*image.Gray, BoundingBox, error) {
	f, err := ParseFile(path)
	if err != nil {
		return nil, BoundingBox{}, err
	}
	return f.Render(pxPerMM)
}

// Render rasterizes the layer at pxPerMM pixels per millimeter. Copper
// (dark polarity) is black (0) on a white (255) background; clear polarity
// erases back to white. The raster is binary: no anti-aliasing.
//
// Callers targeting an exposure panel should render at or above twice the
// panel density and downsample; upsampling a coarse render blurs the
// binarization edge.
func (f *File) Render(pxPerMM float64) (*image.Gray, BoundingBox, error) {
	bbox, err := f.Bounds()
	if err != nil {
		return nil, BoundingBox{}, err
	}
	if pxPerMM <= 0 {
		return nil, BoundingBox{}, fmt.Errorf("gerber: pixel density must be positive, got %.3f", pxPerMM)
	}

	width := int(math.Ceil(bbox.WidthMM * pxPerMM))
	height := int(math.Ceil(bbox.HeightMM * pxPerMM))
	if width < 1 {
		width = 1
	}
	if height < 1 {
		height = 1
	}
	img := mask.New(width, height, 255)

	r := rasterizer{
		img:    img,
		scale:  pxPerMM,
		origin: geometry.Point2D{X: bbox.MinXMM, Y: bbox.MaxYMM},
	}
	for _, reg := range f.regions {
		r.region(reg)
	}
	for _, s := range f.strokes {
		r.stroke(s)
	}
	for _, fl := range f.flashes {
		r.flash(fl)
	}
	return img, bbox, nil
}

// rasterizer maps board millimeters onto image pixels. Board Y grows upward,
// image Y grows downward, so Y is flipped around the bounding box top.
type rasterizer struct {
	img    *image.Gray
	scale  float64
	origin geometry.Point2D // top-left of the raster in board coordinates
}

func (r *rasterizer) toPx(p geometry.Point2D) geometry.Point2D {
	return geometry.Point2D{
		X: (p.X - r.origin.X) * r.scale,
		Y: (r.origin.Y - p.Y) * r.scale,
	}
}

func value(clear bool) uint8 {
	if clear {
		return 255
	}
	return 0
}

func (r *rasterizer) region(reg region) {
	px := make(geometry.Polygon, len(reg.contour))
	for i, p := range reg.contour {
		px[i] = r.toPx(p)
	}
	mask.FillPolygon(r.img, px, value(reg.clear))
}

func (r *rasterizer) flash(f flash) {
	r.stamp(r.toPx(f.at), f.ap, value(f.clear))
}

func (r *rasterizer) stroke(s stroke) {
	v := value(s.clear)
	from := r.toPx(s.from)
	to := r.toPx(s.to)

	if s.ap.Shape == ApertureCircle {
		// A disc pen sweeps a stadium: a quad between the offset edges plus
		// end caps.
		radius := s.ap.Width / 2 * r.scale
		dx, dy := to.X-from.X, to.Y-from.Y
		length := math.Hypot(dx, dy)
		if length > 0 {
			nx, ny := -dy/length*radius, dx/length*radius
			mask.FillPolygon(r.img, geometry.Polygon{
				{X: from.X + nx, Y: from.Y + ny},
				{X: to.X + nx, Y: to.Y + ny},
				{X: to.X - nx, Y: to.Y - ny},
				{X: from.X - nx, Y: from.Y - ny},
			}, v)
		}
		r.disc(from, radius, v)
		r.disc(to, radius, v)
		return
	}

	// Rectangular and obround pens stamp their footprint along the segment
	// at sub-pixel steps, the plotter-pen approach.
	dx, dy := to.X-from.X, to.Y-from.Y
	length := math.Hypot(dx, dy)
	steps := int(length*2) + 1
	for i := 0; i <= steps; i++ {
		t := float64(i) / float64(steps)
		r.stamp(geometry.Point2D{X: from.X + t*dx, Y: from.Y + t*dy}, s.ap, v)
	}
}

// stamp draws one aperture footprint centered at a pixel position.
func (r *rasterizer) stamp(at geometry.Point2D, ap Aperture, v uint8) {
	switch ap.Shape {
	case ApertureCircle:
		r.disc(at, ap.Width/2*r.scale, v)
	case ApertureRect:
		r.rect(at, ap.Width*r.scale, ap.Height*r.scale, v)
	case ApertureObround:
		w := ap.Width * r.scale
		h := ap.Height * r.scale
		if w > h {
			// Horizontal slot: rectangle core with disc ends.
			r.rect(at, w-h, h, v)
			r.disc(geometry.Point2D{X: at.X - (w-h)/2, Y: at.Y}, h/2, v)
			r.disc(geometry.Point2D{X: at.X + (w-h)/2, Y: at.Y}, h/2, v)
		} else if h > w {
			r.rect(at, w, h-w, v)
			r.disc(geometry.Point2D{X: at.X, Y: at.Y - (h-w)/2}, w/2, v)
			r.disc(geometry.Point2D{X: at.X, Y: at.Y + (h-w)/2}, w/2, v)
		} else {
			r.disc(at, w/2, v)
		}
	}
}

func (r *rasterizer) disc(center geometry.Point2D, radius float64, v uint8) {
	if radius <= 0 {
		return
	}
	b := r.img.Bounds()
	x0 := clampInt(int(math.Floor(center.X-radius)), 0, b.Max.X)
	x1 := clampInt(int(math.Ceil(center.X+radius)), 0, b.Max.X)
	y0 := clampInt(int(math.Floor(center.Y-radius)), 0, b.Max.Y)
	y1 := clampInt(int(math.Ceil(center.Y+radius)), 0, b.Max.Y)
	rr := radius * radius
	for y := y0; y < y1; y++ {
		dy := float64(y) + 0.5 - center.Y
		row := r.img.Pix[y*r.img.Stride:]
		for x := x0; x < x1; x++ {
			dx := float64(x) + 0.5 - center.X
			if dx*dx+dy*dy <= rr {
				row[x] = v
			}
		}
	}
}

func (r *rasterizer) rect(center geometry.Point2D, w, h float64, v uint8) {
	if w <= 0 || h <= 0 {
		return
	}
	b := r.img.Bounds()
	x0 := clampInt(int(math.Ceil(center.X-w/2-0.5)), 0, b.Max.X)
	x1 := clampInt(int(math.Ceil(center.X+w/2-0.5)), 0, b.Max.X)
	y0 := clampInt(int(math.Ceil(center.Y-h/2-0.5)), 0, b.Max.Y)
	y1 := clampInt(int(math.Ceil(center.Y+h/2-0.5)), 0, b.Max.Y)
	for y := y0; y < y1; y++ {
		row := r.img.Pix[y*r.img.Stride:]
		for x := x0; x < x1; x++ {
			row[x] = v
		}
	}
}

func clampInt(x, lo, hi int) int {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
