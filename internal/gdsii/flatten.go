package gdsii

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"maskforge/pkg/geometry"
)

// maxRefDepth bounds reference recursion; a well-formed hierarchy is nowhere
// near this deep, so exceeding it means a reference cycle.
const maxRefDepth = 64

// Polygon is one flattened boundary with absolute coordinates in
// micrometers.
type Polygon struct {
	Layer    int
	Datatype int
	Points   geometry.Polygon
}

// Flatten recursively expands every reference in cell into absolute
// micrometer polygons. It is a pure function: neither the library nor the
// cell is modified, so concurrent flattens of the same library are safe and
// there is nothing to clean up afterwards.
func (l *Library) Flatten(cell *Cell) ([]Polygon, error) {
	out, err := l.flatten(cell, identityXform(), 0)
	if err != nil {
		return nil, err
	}
	// Scale database units to micrometers once, at the end.
	for _, poly := range out {
		for i := range poly.Points {
			poly.Points[i] = poly.Points[i].Scale(l.UnitsUM)
		}
	}
	return out, nil
}

func (l *Library) flatten(cell *Cell, xf xform, depth int) ([]Polygon, error) {
	if depth > maxRefDepth {
		return nil, fmt.Errorf("reference depth exceeds %d in %q (reference cycle?)", maxRefDepth, cell.Name)
	}

	var out []Polygon
	for _, b := range cell.boundaries {
		pts := make(geometry.Polygon, len(b.points))
		for i, p := range b.points {
			pts[i] = xf.apply(p)
		}
		out = append(out, Polygon{Layer: b.layer, Datatype: b.datatype, Points: pts})
	}

	for _, ref := range cell.refs {
		child, ok := l.cells[ref.cell]
		if !ok {
			return nil, fmt.Errorf("%w: %q (referenced from %q)", ErrCellNotFound, ref.cell, cell.Name)
		}
		for _, origin := range ref.placements() {
			childXf := xf.compose(stransXform(ref.reflect, ref.mag, ref.angleDeg, origin))
			polys, err := l.flatten(child, childXf, depth+1)
			if err != nil {
				return nil, err
			}
			out = append(out, polys...)
		}
	}
	return out, nil
}

// placements expands an AREF lattice into individual instance origins; an
// SREF yields exactly its own origin.
func (r reference) placements() []geometry.Point2D {
	if !r.isArray {
		return []geometry.Point2D{r.origin}
	}
	out := make([]geometry.Point2D, 0, r.cols*r.rows)
	for j := 0; j < r.rows; j++ {
		for i := 0; i < r.cols; i++ {
			out = append(out, r.origin.
				Add(r.colStep.Scale(float64(i))).
				Add(r.rowStep.Scale(float64(j))))
		}
	}
	return out
}

// xform is an affine placement: a 2x2 linear part and a translation.
type xform struct {
	m *mat.Dense
	t geometry.Point2D
}

func identityXform() xform {
	return xform{m: mat.NewDense(2, 2, []float64{1, 0, 0, 1})}
}

// stransXform builds the GDSII instance transform. Points are reflected
// about the X axis first (if the strans flag is set), then magnified, then
// rotated, then translated to the instance origin.
func stransXform(reflect bool, magnification, angleDeg float64, origin geometry.Point2D) xform {
	rad := angleDeg * math.Pi / 180
	sin, cos := math.Sin(rad), math.Cos(rad)

	rot := mat.NewDense(2, 2, []float64{cos, -sin, sin, cos})
	scale := mat.NewDense(2, 2, []float64{magnification, 0, 0, magnification})
	flip := mat.NewDense(2, 2, []float64{1, 0, 0, 1})
	if reflect {
		flip.Set(1, 1, -1)
	}

	rs := mat.NewDense(2, 2, nil)
	rs.Mul(rot, scale)
	m := mat.NewDense(2, 2, nil)
	m.Mul(rs, flip)
	return xform{m: m, t: origin}
}

func (x xform) apply(p geometry.Point2D) geometry.Point2D {
	return geometry.Point2D{
		X: x.m.At(0, 0)*p.X + x.m.At(0, 1)*p.Y + x.t.X,
		Y: x.m.At(1, 0)*p.X + x.m.At(1, 1)*p.Y + x.t.Y,
	}
}

// compose returns the transform that applies child first, then x.
func (x xform) compose(child xform) xform {
	m := mat.NewDense(2, 2, nil)
	m.Mul(x.m, child.m)
	return xform{m: m, t: x.apply(child.t)}
}

// PolygonsForLayer selects the polygons on one layer (datatype 0). An empty
// selection is a geometry-empty error, never a blank success.
func PolygonsForLayer(polys []Polygon, layer int) ([]geometry.Polygon, error) {
	var out []geometry.Polygon
	for _, p := range polys {
		if p.Layer == layer && p.Datatype == 0 {
			out = append(out, p.Points)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w %d", ErrNoGeometry, layer)
	}
	return out, nil
}

// Bounds returns the bounding box of a flattened polygon set in micrometers.
func Bounds(polys []Polygon) (geometry.Rect, error) {
	if len(polys) == 0 {
		return geometry.Rect{}, ErrEmptyCell
	}
	box := polys[0].Points.Bounds()
	for _, p := range polys[1:] {
		box = box.Union(p.Points.Bounds())
	}
	return box, nil
}
