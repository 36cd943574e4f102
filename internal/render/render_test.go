package render

import (
	"bytes"
	"encoding/binary"
	"image"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"maskforge/internal/display"
	"maskforge/internal/gdsii"
	"maskforge/internal/mask"
)

// testGeom is a small panel at a clean 10 px/mm on both axes.
var testGeom = display.Geometry{
	PixelWidth:  400,
	PixelHeight: 200,
	WidthMM:     40,
	HeightMM:    20,
}

// testCircles gives 50 px inset radii on testGeom: left center at x=100,
// right at x=300, both at y=100 before the final mirror.
var testCircles = mask.CircleSpec{DiameterMM: 10, OffsetMM: 10}

func whiteSquare(size int) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, size, size))
	for i := range img.Pix {
		img.Pix[i] = 255
	}
	return img
}

func TestRenderBitmap(t *testing.T) {
	out, err := RenderBitmap(BitmapRequest{
		Source:    whiteSquare(100),
		Threshold: 128,
		Geometry:  testGeom,
		Circles:   testCircles,
	})
	require.NoError(t, err)
	require.Equal(t, testGeom.PixelWidth, out.Bounds().Dx())
	require.Equal(t, testGeom.PixelHeight, out.Bounds().Dy())

	// The left inset is white content; after the final mirror its center
	// lands at x = 399-100. The right inset is the inverse, so it blends
	// into the black background.
	assert.Equal(t, uint8(255), out.GrayAt(299, 100).Y, "left inset content")
	assert.Equal(t, uint8(0), out.GrayAt(99, 100).Y, "right inset is inverted")
	assert.Equal(t, uint8(0), out.GrayAt(199, 10).Y, "background stays black")
}

func TestRenderBitmapFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "art.png")
	require.NoError(t, SavePNG(path, whiteSquare(64)))

	out, err := RenderBitmap(BitmapRequest{
		Path:      path,
		Threshold: 128,
		Geometry:  testGeom,
		Circles:   testCircles,
	})
	require.NoError(t, err)
	assert.Equal(t, uint8(255), out.GrayAt(299, 100).Y)
}

func TestRenderBitmapThresholdRange(t *testing.T) {
	_, err := RenderBitmap(BitmapRequest{
		Source:    whiteSquare(10),
		Threshold: 255,
		Geometry:  testGeom,
		Circles:   testCircles,
	})
	assert.Error(t, err, "255 is outside the 0-254 threshold range")
}

func TestRenderBitmapMissingFile(t *testing.T) {
	_, err := RenderBitmap(BitmapRequest{
		Path:     filepath.Join(t.TempDir(), "nope.png"),
		Geometry: testGeom,
		Circles:  testCircles,
	})
	assert.Error(t, err)
}

func TestRenderGerber(t *testing.T) {
	// A 10x10 mm filled region whose top edge sits at board Y=0, so it
	// pastes at the top-left of the board sub-canvas.
	src := `
%FSLAX23Y23*%
%MOMM*%
G36*
X0Y-10000D02*
X10000Y-10000D01*
X10000Y0D01*
X0Y0D01*
X0Y-10000D01*
G37*
M02*
`
	path := filepath.Join(t.TempDir(), "copper.gbr")
	require.NoError(t, os.WriteFile(path, []byte(src), 0o644))

	geom := display.Geometry{PixelWidth: 1000, PixelHeight: 500, WidthMM: 100, HeightMM: 50}
	out, err := RenderGerber(GerberRequest{
		Path:      path,
		Geometry:  geom,
		Placement: mask.PCBPlacement{WidthMM: 20, HeightMM: 10},
	})
	require.NoError(t, err)
	require.Equal(t, 1000, out.Bounds().Dx())
	require.Equal(t, 500, out.Bounds().Dy())

	// The 200x100 px board is centered at (400, 200); copper covers its
	// left half and renders black on the white board.
	assert.Equal(t, uint8(0), out.GrayAt(450, 250).Y, "copper")
	assert.Equal(t, uint8(255), out.GrayAt(550, 250).Y, "bare board")
	assert.Equal(t, uint8(0), out.GrayAt(100, 100).Y, "panel outside the board")
}

func TestRenderGerberOverflow(t *testing.T) {
	src := `
%FSLAX23Y23*%
%MOMM*%
G36*
X0Y-10000D02*
X10000Y-10000D01*
X10000Y0D01*
X0Y0D01*
X0Y-10000D01*
G37*
M02*
`
	path := filepath.Join(t.TempDir(), "copper.gbr")
	require.NoError(t, os.WriteFile(path, []byte(src), 0o644))

	geom := display.Geometry{PixelWidth: 1000, PixelHeight: 500, WidthMM: 100, HeightMM: 50}
	_, err := RenderGerber(GerberRequest{
		Path:     path,
		Geometry: geom,
		Placement: mask.PCBPlacement{
			WidthMM: 5, HeightMM: 5, Overflow: mask.OverflowError,
		},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, mask.ErrOverflow)
}

// gdsSquare is an axis-aligned square boundary emitted by writeGDS, in
// database units (micrometers).
type gdsSquare struct {
	layer  int16
	cx, cy int32
	half   int32
}

// writeGDS synthesizes a stream file with 1 um database units and two cells:
// TOP holds a 4x4 mm square on layer 1 centered on the origin plus any extra
// squares, BLANK holds nothing.
func writeGDS(t *testing.T, extra ...gdsSquare) string {
	t.Helper()
	var buf bytes.Buffer
	rec := func(typ, dtype byte, data []byte) {
		var hdr [4]byte
		binary.BigEndian.PutUint16(hdr[:2], uint16(len(data)+4))
		hdr[2] = typ
		hdr[3] = dtype
		buf.Write(hdr[:])
		buf.Write(data)
	}
	i16 := func(vals ...int16) []byte {
		out := make([]byte, 2*len(vals))
		for i, v := range vals {
			binary.BigEndian.PutUint16(out[2*i:], uint16(v))
		}
		return out
	}
	i32 := func(vals ...int32) []byte {
		out := make([]byte, 4*len(vals))
		for i, v := range vals {
			binary.BigEndian.PutUint32(out[4*i:], uint32(v))
		}
		return out
	}
	real8 := func(v float64) []byte {
		out := make([]byte, 8)
		if v == 0 {
			return out
		}
		exp := 64
		for v >= 1 {
			v /= 16
			exp++
		}
		for v < 1.0/16 {
			v *= 16
			exp--
		}
		mant := uint64(v * (1 << 56))
		out[0] = byte(exp)
		for i := 7; i >= 1; i-- {
			out[i] = byte(mant)
			mant >>= 8
		}
		return out
	}
	ts := i16(24, 1, 1, 0, 0, 0, 24, 1, 1, 0, 0, 0)

	square := func(s gdsSquare) {
		rec(0x08, 0, nil)          // BOUNDARY
		rec(0x0D, 2, i16(s.layer)) // LAYER
		rec(0x0E, 2, i16(0))       // DATATYPE
		rec(0x10, 3, i32(
			s.cx-s.half, s.cy-s.half,
			s.cx+s.half, s.cy-s.half,
			s.cx+s.half, s.cy+s.half,
			s.cx-s.half, s.cy+s.half,
			s.cx-s.half, s.cy-s.half,
		))
		rec(0x11, 0, nil) // ENDEL
	}

	rec(0x00, 2, i16(600))                            // HEADER
	rec(0x01, 2, ts)                                  // BGNLIB
	rec(0x02, 6, []byte("LIB\x00"))                   // LIBNAME
	rec(0x03, 5, append(real8(1e-3), real8(1e-6)...)) // UNITS
	rec(0x05, 2, ts)                                  // BGNSTR
	rec(0x06, 6, []byte("TOP\x00"))                   // STRNAME
	square(gdsSquare{layer: 1, half: 2000})
	for _, s := range extra {
		square(s)
	}
	rec(0x07, 0, nil)                 // ENDSTR
	rec(0x05, 2, ts)                  // BGNSTR
	rec(0x06, 6, []byte("BLANK\x00")) // STRNAME
	rec(0x07, 0, nil)                 // ENDSTR
	rec(0x04, 0, nil)                 // ENDLIB

	path := filepath.Join(t.TempDir(), "design.gds")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
	return path
}

func TestRenderGDS(t *testing.T) {
	out, err := RenderGDS(GDSRequest{
		Path:     writeGDS(t),
		Cell:     "TOP",
		Layer:    1,
		Geometry: testGeom,
		Circles:  testCircles,
	})
	require.NoError(t, err)

	// The 4x4 mm square maps to a 40x40 px patch centered in each 100x100 px
	// inset; at true physical scale it does not fill the inset.
	assert.Equal(t, uint8(255), out.GrayAt(299, 100).Y, "square center, left inset")
	assert.Equal(t, uint8(0), out.GrayAt(299, 65).Y, "inside the left inset, above the square")
	assert.Equal(t, uint8(255), out.GrayAt(99, 65).Y, "same point in the inverted right inset")
}

// TestRenderGDSCentersOnWholeCell renders layer 1 from a cell that also
// carries a square on layer 2, 8 mm to the right. The raster centers on the
// bounding box of the whole design (x -2..9 mm, center x=3.5 mm), so the
// layer-1 square must land left of the inset center even though layer 2
// itself is filtered out.
func TestRenderGDSCentersOnWholeCell(t *testing.T) {
	centered, err := RenderGDS(GDSRequest{
		Path: writeGDS(t), Cell: "TOP", Layer: 1,
		Geometry: testGeom, Circles: testCircles,
	})
	require.NoError(t, err)

	shifted, err := RenderGDS(GDSRequest{
		Path: writeGDS(t, gdsSquare{layer: 2, cx: 8000, half: 1000}),
		Cell: "TOP", Layer: 1,
		Geometry: testGeom, Circles: testCircles,
	})
	require.NoError(t, err)
	require.NotEqual(t, centered.Pix, shifted.Pix, "off-layer geometry must move the raster origin")

	// Shifted, the square covers inset pixels x 0..34; centered, x 30..69.
	// Left inset origin is (50,50) pre-mirror and the final flip maps x to
	// 399-x, so inset-local (20,50) and (60,50) land at panel x 329 and 289.
	assert.Equal(t, uint8(255), shifted.GrayAt(329, 100).Y, "square, left of the inset center")
	assert.Equal(t, uint8(0), shifted.GrayAt(289, 100).Y, "empty right of the square")
	assert.Equal(t, uint8(0), centered.GrayAt(329, 100).Y)
	assert.Equal(t, uint8(255), centered.GrayAt(289, 100).Y)
}

func TestRenderGDSErrors(t *testing.T) {
	path := writeGDS(t)

	_, err := RenderGDS(GDSRequest{
		Path: path, Cell: "TOP", Layer: 7,
		Geometry: testGeom, Circles: testCircles,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, gdsii.ErrNoGeometry)

	_, err = RenderGDS(GDSRequest{
		Path: path, Cell: "GHOST", Layer: 1,
		Geometry: testGeom, Circles: testCircles,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, gdsii.ErrCellNotFound)

	_, err = RenderGDS(GDSRequest{
		Path: path, Cell: "BLANK", Layer: 1,
		Geometry: testGeom, Circles: testCircles,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, gdsii.ErrEmptyCell)
}

func TestRenderGDSReusesLibrary(t *testing.T) {
	lib, err := gdsii.Load(writeGDS(t))
	require.NoError(t, err)

	out, err := RenderGDS(GDSRequest{
		Library: lib, Cell: "TOP", Layer: 1,
		Geometry: testGeom, Circles: testCircles,
	})
	require.NoError(t, err)
	assert.Equal(t, uint8(255), out.GrayAt(299, 100).Y)
}

func TestSavePNGRoundTrip(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 8, 8))
	for i := range img.Pix {
		img.Pix[i] = uint8(i * 4)
	}
	path := filepath.Join(t.TempDir(), "mask.png")
	require.NoError(t, SavePNG(path, img))

	back, err := DecodeImage(path)
	require.NoError(t, err)
	gray := mask.Grayscale(back)
	assert.Equal(t, img.Pix, gray.Pix)
}

func TestRunnerSingleFlight(t *testing.T) {
	var r Runner
	release := make(chan struct{})
	done := make(chan Result, 1)

	err := r.Do(func() (*image.Gray, error) {
		<-release
		return mask.New(1, 1, 0), nil
	}, func(res Result) { done <- res })
	require.NoError(t, err)
	assert.True(t, r.Busy())

	err = r.Do(func() (*image.Gray, error) { return nil, nil }, func(Result) {})
	assert.ErrorIs(t, err, ErrBusy)

	close(release)
	res := <-done
	require.NoError(t, res.Err)
	assert.NotNil(t, res.Image)
	assert.False(t, r.Busy())
}
