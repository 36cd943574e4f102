package geometry

// Polygon is a closed sequence of vertices. The closing edge from the last
// vertex back to the first is implicit.
type Polygon []Point2D

// Bounds returns the axis-aligned bounding box of the polygon.
func (p Polygon) Bounds() Rect {
	return BoundingBox(p)
}

// Translate returns a copy of the polygon shifted by (dx, dy).
func (p Polygon) Translate(dx, dy float64) Polygon {
	out := make(Polygon, len(p))
	for i, pt := range p {
		out[i] = Point2D{X: pt.X + dx, Y: pt.Y + dy}
	}
	return out
}
