package mask

import (
	"fmt"
	"image"

	"maskforge/internal/display"
)

// CircleSpec places the two circular insets of a dual-circle photomask:
// each inset has the given diameter and its center sits OffsetMM from the
// nearer vertical edge of the panel.
//
// The insets are circles in millimeters. On a panel whose pixel aspect
// differs from its physical aspect they come out elliptical in pixels, since
// the radius converts independently per axis. That matches the exposure
// hardware this was built for; revisit if true pixel circularity is ever
// required.
type CircleSpec struct {
	DiameterMM float64 `json:"diameter_mm"`
	OffsetMM   float64 `json:"offset_mm"`
}

// DefaultCircles is the inset layout of the original twin-exposure fixture.
var DefaultCircles = CircleSpec{DiameterMM: 100, OffsetMM: 60}

// Validate checks the layout against a panel geometry: the diameter and offset
// must be positive and both insets must fit on the panel.
func (c CircleSpec) Validate(geom display.Geometry) error {
	if c.DiameterMM <= 0 {
		return fmt.Errorf("circle spec: diameter must be positive, got %.3f mm", c.DiameterMM)
	}
	if c.OffsetMM <= 0 {
		return fmt.Errorf("circle spec: edge offset must be positive, got %.3f mm", c.OffsetMM)
	}
	if c.OffsetMM+c.DiameterMM/2 > geom.WidthMM/2 {
		return fmt.Errorf("circle spec: offset %.3f mm + radius %.3f mm exceeds half the panel width (%.3f mm); the insets would overlap or leave the panel",
			c.OffsetMM, c.DiameterMM/2, geom.WidthMM/2)
	}
	if c.DiameterMM > geom.HeightMM {
		return fmt.Errorf("circle spec: diameter %.3f mm exceeds panel height %.3f mm", c.DiameterMM, geom.HeightMM)
	}
	return nil
}

// ComposeCircles renders the dual-circle photomask: the source appears once
// unmodified in the left inset and once tonally inverted in the right inset,
// then the whole canvas is mirrored horizontally.
//
// The final mirror is unconditional. The physical mask is viewed through the
// exposure unit's optical path, which flips it; this is a property of the
// hardware, not a user option.
//
// threshold, when non-nil, binarizes the source with a hard step before
// placement (255 where intensity >= threshold, else 0). GDS-derived sources
// are already binary and pass nil.
func ComposeCircles(geom display.Geometry, spec CircleSpec, src image.Image, threshold *uint8) (*image.Gray, error) {
	radiusX := geom.TruncPixelsX(spec.DiameterMM / 2)
	radiusY := geom.TruncPixelsY(spec.DiameterMM / 2)
	if radiusX <= 0 || radiusY <= 0 {
		return nil, fmt.Errorf("circle compositor: degenerate radius %dx%d px from diameter %.3f mm",
			radiusX, radiusY, spec.DiameterMM)
	}

	centerY := geom.PixelHeight / 2
	leftX := geom.TruncPixelsX(spec.OffsetMM)
	rightX := geom.TruncPixelsX(geom.WidthMM - spec.OffsetMM)

	gray := Grayscale(src)
	canvas := New(geom.PixelWidth, geom.PixelHeight, 0)

	placeInCircle(canvas, gray, leftX, centerY, radiusX, radiusY, threshold, false)
	placeInCircle(canvas, gray, rightX, centerY, radiusX, radiusY, threshold, true)

	return Mirror(canvas), nil
}

// placeInCircle prepares one inset copy (threshold, optional inversion,
// center-square crop, Lanczos resample to the inset size) and pastes it onto
// the canvas through a hard elliptical mask centered at (cx, cy).
func placeInCircle(canvas, content *image.Gray, cx, cy, rx, ry int, threshold *uint8, invert bool) {
	if threshold != nil {
		content = Threshold(content, *threshold)
	}
	if invert {
		content = Invert(content)
	}
	content = CenterSquareCrop(content)
	scaled := Resample(content, 2*rx, 2*ry)
	ellipse := EllipseMask(2*rx, 2*ry)
	PasteMasked(canvas, scaled, ellipse, cx-rx, cy-ry)
}
