package gdsii

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// streamBuilder synthesizes GDSII record streams for tests.
type streamBuilder struct {
	buf bytes.Buffer
}

func (b *streamBuilder) rec(typ, dtype byte, data []byte) *streamBuilder {
	var hdr [4]byte
	binary.BigEndian.PutUint16(hdr[:2], uint16(len(data)+4))
	hdr[2] = typ
	hdr[3] = dtype
	b.buf.Write(hdr[:])
	b.buf.Write(data)
	return b
}

func i16(vals ...int16) []byte {
	out := make([]byte, 2*len(vals))
	for i, v := range vals {
		binary.BigEndian.PutUint16(out[2*i:], uint16(v))
	}
	return out
}

func i32(vals ...int32) []byte {
	out := make([]byte, 4*len(vals))
	for i, v := range vals {
		binary.BigEndian.PutUint32(out[4*i:], uint32(v))
	}
	return out
}

func gdsString(s string) []byte {
	if len(s)%2 != 0 {
		return append([]byte(s), 0)
	}
	return []byte(s)
}

// encodeReal8 produces the excess-64 base-16 format used by UNITS, MAG and
// ANGLE records.
func encodeReal8(v float64) []byte {
	out := make([]byte, 8)
	if v == 0 {
		return out
	}
	var sign byte
	if v < 0 {
		sign = 0x80
		v = -v
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
	out[0] = sign | byte(exp)
	for i := 7; i >= 1; i-- {
		out[i] = byte(mant)
		mant >>= 8
	}
	return out
}

var timestamps = i16(24, 1, 1, 0, 0, 0, 24, 1, 1, 0, 0, 0)

func (b *streamBuilder) header(metersPerDB float64) *streamBuilder {
	b.rec(recHeader, 2, i16(600))
	b.rec(recBgnLib, 2, timestamps)
	b.rec(recLibName, 6, gdsString("TESTLIB"))
	units := append(encodeReal8(1e-3), encodeReal8(metersPerDB)...)
	return b.rec(recUnits, 5, units)
}

func (b *streamBuilder) beginCell(name string) *streamBuilder {
	b.rec(recBgnStr, 2, timestamps)
	return b.rec(recStrName, 6, gdsString(name))
}

func (b *streamBuilder) endCell() *streamBuilder { return b.rec(recEndStr, 0, nil) }

// boundary emits a BOUNDARY element; coordinates are database units.
func (b *streamBuilder) boundary(layer int16, coords ...int32) *streamBuilder {
	b.rec(recBoundary, 0, nil)
	b.rec(recLayer, 2, i16(layer))
	b.rec(recDatatype, 2, i16(0))
	b.rec(recXY, 3, i32(coords...))
	return b.rec(recEndEl, 0, nil)
}

func (b *streamBuilder) build() *bytes.Reader {
	b.rec(recEndLib, 0, nil)
	return bytes.NewReader(b.buf.Bytes())
}

// unitSquare is a closed 10x10 boundary at the origin, in database units.
func unitSquare() []int32 {
	return []int32{0, 0, 10, 0, 10, 10, 0, 10, 0, 0}
}

func TestLoadBasicLibrary(t *testing.T) {
	b := &streamBuilder{}
	b.header(1e-6). // 1 db unit = 1 um
			beginCell("TOP").
			boundary(1, unitSquare()...).
			endCell()

	lib, err := Parse(b.build())
	require.NoError(t, err)
	assert.Equal(t, "TESTLIB", lib.Name)
	assert.InDelta(t, 1.0, lib.UnitsUM, 1e-12)
	assert.Equal(t, []string{"TOP"}, lib.Cells())
	assert.Equal(t, []int{1}, lib.Layers())

	_, err = lib.Cell("MISSING")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCellNotFound)

	cell, err := lib.Cell("TOP")
	require.NoError(t, err)

	polys, err := lib.Flatten(cell)
	require.NoError(t, err)
	require.Len(t, polys, 1)
	assert.Equal(t, 1, polys[0].Layer)
	assert.Len(t, polys[0].Points, 4, "redundant closing vertex dropped")

	bounds, err := Bounds(polys)
	require.NoError(t, err)
	assert.InDelta(t, 0, bounds.X, 1e-9)
	assert.InDelta(t, 10, bounds.Width, 1e-9)
	assert.InDelta(t, 10, bounds.Height, 1e-9)
}

func TestPolygonsForLayer(t *testing.T) {
	b := &streamBuilder{}
	b.header(1e-6).
		beginCell("TOP").
		boundary(1, unitSquare()...).
		boundary(5, 20, 20, 30, 20, 30, 30, 20, 30, 20, 20).
		endCell()

	lib, err := Parse(b.build())
	require.NoError(t, err)
	cell, err := lib.Cell("TOP")
	require.NoError(t, err)
	polys, err := lib.Flatten(cell)
	require.NoError(t, err)

	on1, err := PolygonsForLayer(polys, 1)
	require.NoError(t, err)
	assert.Len(t, on1, 1)

	_, err = PolygonsForLayer(polys, 7)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoGeometry)
}

func TestFlattenSRefRotation(t *testing.T) {
	b := &streamBuilder{}
	b.header(1e-6).
		beginCell("SUB").
		boundary(1, unitSquare()...).
		endCell().
		beginCell("TOP")
	// SREF to SUB at (100, 0), rotated 90 degrees counter-clockwise.
	b.rec(recSRef, 0, nil)
	b.rec(recSName, 6, gdsString("SUB"))
	b.rec(recAngle, 5, encodeReal8(90))
	b.rec(recXY, 3, i32(100, 0))
	b.rec(recEndEl, 0, nil)
	b.endCell()

	lib, err := Parse(b.build())
	require.NoError(t, err)
	top, err := lib.Cell("TOP")
	require.NoError(t, err)
	polys, err := lib.Flatten(top)
	require.NoError(t, err)
	require.Len(t, polys, 1)

	// (10,0) rotates to (0,10) and lands at (100,10).
	assert.InDelta(t, 100, polys[0].Points[1].X, 1e-9)
	assert.InDelta(t, 10, polys[0].Points[1].Y, 1e-9)

	bounds, err := Bounds(polys)
	require.NoError(t, err)
	assert.InDelta(t, 90, bounds.X, 1e-9)
	assert.InDelta(t, 0, bounds.Y, 1e-9)
	assert.InDelta(t, 10, bounds.Width, 1e-9)
}

func TestFlattenSRefReflection(t *testing.T) {
	b := &streamBuilder{}
	b.header(1e-6).
		beginCell("SUB").
		boundary(1, unitSquare()...).
		endCell().
		beginCell("TOP")
	b.rec(recSRef, 0, nil)
	b.rec(recSName, 6, gdsString("SUB"))
	b.rec(recSTrans, 1, i16(-32768)) // reflection bit 0x8000
	b.rec(recXY, 3, i32(0, 0))
	b.rec(recEndEl, 0, nil)
	b.endCell()

	lib, err := Parse(b.build())
	require.NoError(t, err)
	top, _ := lib.Cell("TOP")
	polys, err := lib.Flatten(top)
	require.NoError(t, err)

	bounds, err := Bounds(polys)
	require.NoError(t, err)
	assert.InDelta(t, -10, bounds.Y, 1e-9, "reflected about the X axis")
	assert.InDelta(t, 10, bounds.Height, 1e-9)
}

func TestFlattenARefGrid(t *testing.T) {
	b := &streamBuilder{}
	b.header(1e-6).
		beginCell("SUB").
		boundary(1, unitSquare()...).
		endCell().
		beginCell("TOP")
	// 2 columns x 3 rows, pitch 20 in both axes.
	b.rec(recARef, 0, nil)
	b.rec(recSName, 6, gdsString("SUB"))
	b.rec(recColRow, 2, i16(2, 3))
	b.rec(recXY, 3, i32(0, 0, 40, 0, 0, 60))
	b.rec(recEndEl, 0, nil)
	b.endCell()

	lib, err := Parse(b.build())
	require.NoError(t, err)
	top, _ := lib.Cell("TOP")
	polys, err := lib.Flatten(top)
	require.NoError(t, err)
	assert.Len(t, polys, 6)

	bounds, err := Bounds(polys)
	require.NoError(t, err)
	assert.InDelta(t, 30, bounds.Width, 1e-9)
	assert.InDelta(t, 50, bounds.Height, 1e-9)
}

func TestUnitsScaling(t *testing.T) {
	b := &streamBuilder{}
	b.header(1e-9). // 1 db unit = 1 nm
			beginCell("TOP").
			boundary(1, 0, 0, 1000, 0, 1000, 1000, 0, 1000, 0, 0).
			endCell()

	lib, err := Parse(b.build())
	require.NoError(t, err)
	assert.InDelta(t, 1e-3, lib.UnitsUM, 1e-15)

	top, _ := lib.Cell("TOP")
	polys, err := lib.Flatten(top)
	require.NoError(t, err)
	bounds, err := Bounds(polys)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, bounds.Width, 1e-9, "1000 nm = 1 um")
}

func TestFlattenMissingReference(t *testing.T) {
	b := &streamBuilder{}
	b.header(1e-6).beginCell("TOP")
	b.rec(recSRef, 0, nil)
	b.rec(recSName, 6, gdsString("GHOST"))
	b.rec(recXY, 3, i32(0, 0))
	b.rec(recEndEl, 0, nil)
	b.endCell()

	lib, err := Parse(b.build())
	require.NoError(t, err)
	top, _ := lib.Cell("TOP")
	_, err = lib.Flatten(top)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCellNotFound)
}

func TestFlattenReferenceCycle(t *testing.T) {
	b := &streamBuilder{}
	b.header(1e-6).beginCell("LOOP")
	b.rec(recSRef, 0, nil)
	b.rec(recSName, 6, gdsString("LOOP"))
	b.rec(recXY, 3, i32(5, 5))
	b.rec(recEndEl, 0, nil)
	b.endCell()

	lib, err := Parse(b.build())
	require.NoError(t, err)
	loop, _ := lib.Cell("LOOP")
	_, err = lib.Flatten(loop)
	assert.Error(t, err)
}

func TestEmptyBounds(t *testing.T) {
	_, err := Bounds(nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEmptyCell)
}

func TestParseErrors(t *testing.T) {
	t.Run("not a stream", func(t *testing.T) {
		_, err := Parse(bytes.NewReader([]byte{0x00, 0x06, 0x02, 0x02, 0x00, 0x07}))
		assert.Error(t, err)
	})

	t.Run("truncated", func(t *testing.T) {
		b := &streamBuilder{}
		b.header(1e-6)
		// No ENDLIB.
		_, err := Parse(bytes.NewReader(b.buf.Bytes()))
		assert.Error(t, err)
	})

	t.Run("degenerate boundary", func(t *testing.T) {
		b := &streamBuilder{}
		b.header(1e-6).
			beginCell("TOP").
			boundary(1, 0, 0, 10, 0).
			endCell()
		_, err := Parse(b.build())
		assert.Error(t, err)
	})

	t.Run("duplicate structure", func(t *testing.T) {
		b := &streamBuilder{}
		b.header(1e-6).
			beginCell("TOP").endCell().
			beginCell("TOP").endCell()
		_, err := Parse(b.build())
		assert.Error(t, err)
	})
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/design.gds")
	assert.Error(t, err)
}

func TestSkippedElements(t *testing.T) {
	b := &streamBuilder{}
	b.header(1e-6).beginCell("TOP")
	// A PATH element is consumed but not turned into geometry.
	b.rec(recPath, 0, nil)
	b.rec(recLayer, 2, i16(1))
	b.rec(recXY, 3, i32(0, 0, 100, 0))
	b.rec(recEndEl, 0, nil)
	b.boundary(1, unitSquare()...)
	b.endCell()

	lib, err := Parse(b.build())
	require.NoError(t, err)
	top, _ := lib.Cell("TOP")
	polys, err := lib.Flatten(top)
	require.NoError(t, err)
	assert.Len(t, polys, 1)
	assert.Equal(t, 1, top.skipped)
}
