package mask

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"maskforge/pkg/geometry"
)

func TestFillPolygonSquare(t *testing.T) {
	dst := New(20, 20, 0)
	FillPolygon(dst, geometry.Polygon{
		{X: 5, Y: 5}, {X: 15, Y: 5}, {X: 15, Y: 15}, {X: 5, Y: 15},
	}, 255)

	assert.Equal(t, uint8(255), dst.GrayAt(10, 10).Y)
	assert.Equal(t, uint8(255), dst.GrayAt(5, 5).Y)
	assert.Equal(t, uint8(0), dst.GrayAt(4, 10).Y)
	assert.Equal(t, uint8(0), dst.GrayAt(10, 15).Y, "exclusive bottom edge")
	assert.Equal(t, uint8(0), dst.GrayAt(0, 0).Y)

	// Exactly the 10x10 interior is filled.
	var filled int
	for _, v := range dst.Pix {
		if v == 255 {
			filled++
		}
	}
	assert.Equal(t, 100, filled)
}

func TestFillPolygonTriangle(t *testing.T) {
	dst := New(20, 20, 0)
	FillPolygon(dst, geometry.Polygon{
		{X: 0, Y: 0}, {X: 20, Y: 0}, {X: 0, Y: 20},
	}, 255)

	assert.Equal(t, uint8(255), dst.GrayAt(2, 2).Y)
	assert.Equal(t, uint8(0), dst.GrayAt(19, 19).Y)
	assert.Equal(t, uint8(0), dst.GrayAt(15, 15).Y, "outside the hypotenuse")
}

func TestFillPolygonOverlapMerges(t *testing.T) {
	dst := New(10, 10, 0)
	sq := geometry.Polygon{{X: 0, Y: 0}, {X: 6, Y: 0}, {X: 6, Y: 6}, {X: 0, Y: 6}}
	FillPolygon(dst, sq, 255)
	FillPolygon(dst, sq.Translate(3, 3), 255)

	// Overlapping same-value fills OR together: the doubly-covered region is
	// still plain 255.
	assert.Equal(t, uint8(255), dst.GrayAt(4, 4).Y)
	assert.Equal(t, uint8(255), dst.GrayAt(1, 1).Y)
	assert.Equal(t, uint8(255), dst.GrayAt(8, 8).Y)
	assert.Equal(t, uint8(0), dst.GrayAt(8, 1).Y)
}

func TestFillPolygonClipsToCanvas(t *testing.T) {
	dst := New(10, 10, 0)
	FillPolygon(dst, geometry.Polygon{
		{X: -5, Y: -5}, {X: 15, Y: -5}, {X: 15, Y: 15}, {X: -5, Y: 15},
	}, 255)
	for _, v := range dst.Pix {
		assert.Equal(t, uint8(255), v)
	}
}

func TestFillPolygonDegenerate(t *testing.T) {
	dst := New(10, 10, 0)
	FillPolygon(dst, geometry.Polygon{{X: 1, Y: 1}, {X: 5, Y: 5}}, 255)
	for _, v := range dst.Pix {
		assert.Equal(t, uint8(0), v)
	}
}
