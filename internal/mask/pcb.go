package mask

import (
	"errors"
	"fmt"
	"image"
	"math"

	"maskforge/internal/display"
)

// ErrOverflow is returned by ComposePCB when the rendered layer does not fit
// inside the PCB sub-canvas and the placement's policy is OverflowError.
var ErrOverflow = errors.New("rendered layer extends past the PCB outline")

// OverflowPolicy decides what happens when a layer's physical extent exceeds
// the PCB sub-canvas.
type OverflowPolicy int

const (
	// OverflowClip silently clips the layer at the sub-canvas edge. This is
	// the historical behavior.
	OverflowClip OverflowPolicy = iota
	// OverflowError rejects the render instead of producing a truncated mask.
	OverflowError
)

// PhysicalExtent is the bounding box of a rendered layer in board
// coordinates, where Y increases upward. MaxYMM anchors the top edge.
type PhysicalExtent struct {
	MinXMM   float64
	MaxYMM   float64
	WidthMM  float64
	HeightMM float64
}

// PCBPlacement describes the board-sized sub-canvas a Gerber layer is placed
// into, plus per-layer orientation options. Mirroring is an explicit option
// here (one side of a two-sided board is exposed from the opposite face);
// there is no unconditional mirror as in the dual-circle compositor.
type PCBPlacement struct {
	WidthMM  float64        `json:"width_mm"`
	HeightMM float64        `json:"height_mm"`
	Mirror   bool           `json:"mirror"`
	Invert   bool           `json:"invert"`
	Overflow OverflowPolicy `json:"-"`
}

// DefaultPCB is a Eurocard-sized board, the original default.
var DefaultPCB = PCBPlacement{WidthMM: 160, HeightMM: 100, Mirror: true}

// Validate checks the placement against a panel geometry.
func (p PCBPlacement) Validate(geom display.Geometry) error {
	if p.WidthMM <= 0 || p.HeightMM <= 0 {
		return fmt.Errorf("pcb placement: board dimensions must be positive, got %.3fx%.3f mm",
			p.WidthMM, p.HeightMM)
	}
	if p.WidthMM > geom.WidthMM || p.HeightMM > geom.HeightMM {
		return fmt.Errorf("pcb placement: board %.3fx%.3f mm exceeds panel %.3fx%.3f mm",
			p.WidthMM, p.HeightMM, geom.WidthMM, geom.HeightMM)
	}
	return nil
}

// ComposePCB places one rendered Gerber layer at its true physical position:
// the layer is resampled to its on-panel pixel size, pasted into a white
// board-sized sub-canvas at its board-space offset, optionally mirrored then
// inverted, and finally centered on a black full-panel canvas.
//
// The sub-canvas background is white (255) because the engine renders copper
// as black; white means "no copper". The panel background outside the board
// stays black.
func ComposePCB(geom display.Geometry, placement PCBPlacement, layer *image.Gray, extent PhysicalExtent) (*image.Gray, error) {
	sx := geom.PxPerMMX()
	sy := geom.PxPerMMY()

	targetW := geom.TruncPixelsX(extent.WidthMM)
	targetH := geom.TruncPixelsY(extent.HeightMM)
	if targetW <= 0 || targetH <= 0 {
		return nil, fmt.Errorf("pcb compositor: layer extent %.3fx%.3f mm maps to empty pixel area",
			extent.WidthMM, extent.HeightMM)
	}
	scaled := Resample(layer, targetW, targetH)

	boardW := int(math.Ceil(placement.WidthMM * sx))
	boardH := int(math.Ceil(placement.HeightMM * sy))
	board := New(boardW, boardH, 255)

	// Board-space Y grows upward, canvas Y grows downward: negate and anchor
	// by the top of the layer's bounding box.
	offsetX := int(math.Round(extent.MinXMM * sx))
	offsetY := int(math.Round(-extent.MaxYMM * sy))

	if placement.Overflow == OverflowError {
		if offsetX < 0 || offsetY < 0 || offsetX+targetW > boardW || offsetY+targetH > boardH {
			return nil, fmt.Errorf("%w: layer %dx%d px at (%d,%d) in a %dx%d px board",
				ErrOverflow, targetW, targetH, offsetX, offsetY, boardW, boardH)
		}
	}
	Paste(board, scaled, offsetX, offsetY)

	if placement.Mirror {
		board = Mirror(board)
	}
	if placement.Invert {
		board = Invert(board)
	}

	canvas := New(geom.PixelWidth, geom.PixelHeight, 0)
	Paste(canvas, board, (geom.PixelWidth-boardW)/2, (geom.PixelHeight-boardH)/2)
	return canvas, nil
}
