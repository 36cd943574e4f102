// Package mask implements the grayscale canvas core shared by every
// photomask pipeline: hard-edged compositing, tonal operations, Lanczos
// resampling, and polygon rasterization.
//
// All canvases are single-channel 8-bit. Pixel value 0 is black ("clear" in
// mask terms), 255 is white. Paste operations use a hard 0/255 mask so inset
// edges are binary; only resampling softens interior content.
package mask

import (
	"image"
	"image/color"
	"math"

	xdraw "golang.org/x/image/draw"
)

// New allocates a width x height grayscale canvas filled with the given value.
func New(width, height int, fill uint8) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, width, height))
	if fill != 0 {
		for i := range img.Pix {
			img.Pix[i] = fill
		}
	}
	return img
}

// Grayscale converts any image to 8-bit grayscale. A *image.Gray input is
// returned unchanged.
func Grayscale(src image.Image) *image.Gray {
	if g, ok := src.(*image.Gray); ok {
		return g
	}
	b := src.Bounds()
	dst := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			dst.Set(x-b.Min.X, y-b.Min.Y, color.GrayModel.Convert(src.At(x, y)))
		}
	}
	return dst
}

// Mirror returns the horizontal (left-right) flip of src.
// Mirror(Mirror(img)) restores the original.
func Mirror(src *image.Gray) *image.Gray {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	dst := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		srow := src.Pix[y*src.Stride : y*src.Stride+w]
		drow := dst.Pix[y*dst.Stride : y*dst.Stride+w]
		for x := 0; x < w; x++ {
			drow[w-1-x] = srow[x]
		}
	}
	return dst
}

// Invert returns the tonal inverse of src (255 - value per pixel).
func Invert(src *image.Gray) *image.Gray {
	b := src.Bounds()
	dst := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		srow := src.Pix[y*src.Stride : y*src.Stride+b.Dx()]
		drow := dst.Pix[y*dst.Stride : y*dst.Stride+b.Dx()]
		for x, v := range srow {
			drow[x] = 255 - v
		}
	}
	return dst
}

// Threshold binarizes src with a hard step: every pixel >= t becomes 255,
// every other pixel becomes 0. Applying the same threshold twice yields the
// same result as applying it once (for any t <= 255).
func Threshold(src *image.Gray, t uint8) *image.Gray {
	b := src.Bounds()
	dst := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		srow := src.Pix[y*src.Stride : y*src.Stride+b.Dx()]
		drow := dst.Pix[y*dst.Stride : y*dst.Stride+b.Dx()]
		for x, v := range srow {
			if v >= t {
				drow[x] = 255
			}
		}
	}
	return dst
}

// CenterSquareCrop trims src symmetrically along its longer axis so the
// result is the largest inscribed square. Square inputs are returned as-is.
func CenterSquareCrop(src *image.Gray) *image.Gray {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if w == h {
		return src
	}
	side := w
	if h < side {
		side = h
	}
	left := (w - side) / 2
	top := (h - side) / 2
	dst := image.NewGray(image.Rect(0, 0, side, side))
	for y := 0; y < side; y++ {
		copy(dst.Pix[y*dst.Stride:y*dst.Stride+side],
			src.Pix[(top+y)*src.Stride+left:(top+y)*src.Stride+left+side])
	}
	return dst
}

// lanczos3 is a Lanczos resampling kernel with radius 3. x/image/draw ships
// kernels only up to Catmull-Rom; mask edges need the wider windowed-sinc
// support to keep resampling artifacts out of the exposure.
var lanczos3 = &xdraw.Kernel{
	Support: 3,
	At: func(t float64) float64 {
		if t < 0 {
			t = -t
		}
		if t >= 3 {
			return 0
		}
		if t == 0 {
			return 1
		}
		pt := math.Pi * t
		return 3 * math.Sin(pt) * math.Sin(pt/3) / (pt * pt)
	},
}

// Resample scales src to exactly width x height using the Lanczos kernel.
// If src already has the target size it is returned unchanged.
func Resample(src *image.Gray, width, height int) *image.Gray {
	b := src.Bounds()
	if b.Dx() == width && b.Dy() == height {
		return src
	}
	dst := image.NewGray(image.Rect(0, 0, width, height))
	lanczos3.Scale(dst, dst.Bounds(), src, b, xdraw.Src, nil)
	return dst
}

// EllipseMask builds a width x height binary mask: 255 inside the ellipse
// inscribed in the bounding rectangle, 0 outside. No anti-aliasing; the
// paste edge must stay hard.
func EllipseMask(width, height int) *image.Gray {
	m := image.NewGray(image.Rect(0, 0, width, height))
	rx := float64(width) / 2
	ry := float64(height) / 2
	for y := 0; y < height; y++ {
		dy := (float64(y) + 0.5 - ry) / ry
		row := m.Pix[y*m.Stride : y*m.Stride+width]
		for x := 0; x < width; x++ {
			dx := (float64(x) + 0.5 - rx) / rx
			if dx*dx+dy*dy <= 1 {
				row[x] = 255
			}
		}
	}
	return m
}

// Paste copies src onto dst with its top-left corner at (atX, atY). Source
// pixels falling outside dst are clipped silently; negative offsets are
// accepted.
func Paste(dst, src *image.Gray, atX, atY int) {
	PasteMasked(dst, src, nil, atX, atY)
}

// PasteMasked copies src onto dst through a binary mask: only source pixels
// whose mask value is >= 128 are written, everything else leaves dst
// untouched. A nil mask copies every pixel. The mask must have the same
// dimensions as src.
func PasteMasked(dst, src, mask *image.Gray, atX, atY int) {
	sb := src.Bounds()
	db := dst.Bounds()
	for y := 0; y < sb.Dy(); y++ {
		dy := atY + y
		if dy < db.Min.Y || dy >= db.Max.Y {
			continue
		}
		for x := 0; x < sb.Dx(); x++ {
			dx := atX + x
			if dx < db.Min.X || dx >= db.Max.X {
				continue
			}
			if mask != nil && mask.Pix[y*mask.Stride+x] < 128 {
				continue
			}
			dst.Pix[(dy-db.Min.Y)*dst.Stride+(dx-db.Min.X)] = src.Pix[y*src.Stride+x]
		}
	}
}
