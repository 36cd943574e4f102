// Package render ties the file parsers, the compositors and the panel
// geometry together into the three mask pipelines, and runs them off the
// UI thread.
package render

import (
	"fmt"
	"image"

	"maskforge/internal/display"
	"maskforge/internal/gdsii"
	"maskforge/internal/gerber"
	"maskforge/internal/mask"
	"maskforge/pkg/geometry"
)

// BitmapRequest renders a raster image into the dual-circle mask.
type BitmapRequest struct {
	// Path is decoded when Source is nil. The UI keeps the decoded image
	// around and passes Source so threshold changes skip the file.
	Path   string
	Source image.Image

	Threshold uint8
	Geometry  display.Geometry
	Circles   mask.CircleSpec
}

// RenderBitmap runs the bitmap pipeline: decode, binarize at the threshold,
// place into both circular insets.
func RenderBitmap(req BitmapRequest) (*image.Gray, error) {
	if err := req.Geometry.Validate(); err != nil {
		return nil, err
	}
	if err := req.Circles.Validate(req.Geometry); err != nil {
		return nil, err
	}
	// 255 is excluded: no 8-bit intensity satisfies v >= 255 except pure
	// white, so the highest useful cutoff is 254.
	if req.Threshold > 254 {
		return nil, fmt.Errorf("bitmap pipeline: threshold must be 0..254, got %d", req.Threshold)
	}
	src := req.Source
	if src == nil {
		var err error
		src, err = DecodeImage(req.Path)
		if err != nil {
			return nil, err
		}
	}
	thr := req.Threshold
	return mask.ComposeCircles(req.Geometry, req.Circles, src, &thr)
}

// GerberRequest renders one Gerber layer into the PCB mask.
type GerberRequest struct {
	Path      string
	Geometry  display.Geometry
	Placement mask.PCBPlacement

	// Oversample multiplies the panel pixel density for the intermediate
	// raster before the Lanczos downsample. Zero means the default of 2.
	Oversample float64
}

// RenderGerber runs the Gerber pipeline: rasterize the layer above panel
// density, downsample to true physical size, place on the board sub-canvas.
func RenderGerber(req GerberRequest) (*image.Gray, error) {
	if err := req.Geometry.Validate(); err != nil {
		return nil, err
	}
	if err := req.Placement.Validate(req.Geometry); err != nil {
		return nil, err
	}
	over := req.Oversample
	if over <= 0 {
		over = 2
	}
	layer, bbox, err := gerber.Render(req.Path, over*req.Geometry.PxPerMMX())
	if err != nil {
		return nil, err
	}
	extent := mask.PhysicalExtent{
		MinXMM:   bbox.MinXMM,
		MaxYMM:   bbox.MaxYMM,
		WidthMM:  bbox.WidthMM,
		HeightMM: bbox.HeightMM,
	}
	return mask.ComposePCB(req.Geometry, req.Placement, layer, extent)
}

// GDSRequest renders one layer of one GDSII cell into the dual-circle mask.
type GDSRequest struct {
	// Path is loaded when Library is nil. The UI loads the library once and
	// passes it so switching cells or layers skips the file.
	Path    string
	Library *gdsii.Library

	Cell     string
	Layer    int
	Geometry display.Geometry
	Circles  mask.CircleSpec
}

// RenderGDS runs the GDSII pipeline: flatten the cell, select the layer,
// rasterize at true physical scale centered on the design, place into both
// circular insets. The raster is already binary, so no threshold is applied.
func RenderGDS(req GDSRequest) (*image.Gray, error) {
	if err := req.Geometry.Validate(); err != nil {
		return nil, err
	}
	if err := req.Circles.Validate(req.Geometry); err != nil {
		return nil, err
	}
	lib := req.Library
	if lib == nil {
		var err error
		lib, err = gdsii.Load(req.Path)
		if err != nil {
			return nil, err
		}
	}
	cell, err := lib.Cell(req.Cell)
	if err != nil {
		return nil, err
	}
	polys, err := lib.Flatten(cell)
	if err != nil {
		return nil, err
	}
	// The raster centers on the whole flattened cell, not on the selected
	// layer, so each layer keeps its position relative to the full design.
	box, err := gdsii.Bounds(polys)
	if err != nil {
		return nil, err
	}
	onLayer, err := gdsii.PolygonsForLayer(polys, req.Layer)
	if err != nil {
		return nil, err
	}
	src := rasterizeLayer(req.Geometry, req.Circles, onLayer, box.Center())
	return mask.ComposeCircles(req.Geometry, req.Circles, src, nil)
}

// rasterizeLayer draws the layer polygons into an inset-sized binary image
// at true physical scale, centered on the given design center (micrometers).
// Geometry farther than the inset radius from the center clips at its edge.
func rasterizeLayer(geom display.Geometry, spec mask.CircleSpec, polys []geometry.Polygon, center geometry.Point2D) *image.Gray {
	rx := geom.TruncPixelsX(spec.DiameterMM / 2)
	ry := geom.TruncPixelsY(spec.DiameterMM / 2)

	// Polygon coordinates are micrometers, panel density is per millimeter.
	kx := geom.PxPerMMX() / 1000
	ky := geom.PxPerMMY() / 1000

	img := mask.New(2*rx, 2*ry, 0)
	for _, poly := range polys {
		px := make(geometry.Polygon, len(poly))
		for i, p := range poly {
			px[i] = geometry.Point2D{
				X: (p.X-center.X)*kx + float64(rx),
				Y: (center.Y-p.Y)*ky + float64(ry),
			}
		}
		mask.FillPolygon(img, px, 255)
	}
	return img
}
