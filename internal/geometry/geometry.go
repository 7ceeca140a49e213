// Package geometry holds the pure quadrilateral math used by the lot editor:
// convexity, hit-testing and nearest-vertex lookup.
package geometry

import "math"

// Point is an image-plane coordinate.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Add returns p translated by (dx, dy).
func (p Point) Add(dx, dy float64) Point {
	return Point{X: p.X + dx, Y: p.Y + dy}
}

// Dist returns the Euclidean distance between p and q.
func (p Point) Dist(q Point) float64 {
	return math.Hypot(p.X-q.X, p.Y-q.Y)
}

// Quad is four vertices in a fixed winding order.
type Quad [4]Point

// QuadFromFlat builds a Quad from [x1,y1,x2,y2,x3,y3,x4,y4].
func QuadFromFlat(v [8]float64) Quad {
	return Quad{
		{X: v[0], Y: v[1]},
		{X: v[2], Y: v[3]},
		{X: v[4], Y: v[5]},
		{X: v[6], Y: v[7]},
	}
}

// Flat is the inverse of QuadFromFlat.
func (q Quad) Flat() [8]float64 {
	return [8]float64{q[0].X, q[0].Y, q[1].X, q[1].Y, q[2].X, q[2].Y, q[3].X, q[3].Y}
}

// WithVertex returns a copy of q with vertex i replaced.
func (q Quad) WithVertex(i int, p Point) Quad {
	q[i] = p
	return q
}

// Translate returns a copy of q moved by (dx, dy).
func (q Quad) Translate(dx, dy float64) Quad {
	for i := range q {
		q[i] = q[i].Add(dx, dy)
	}
	return q
}

// Centroid is the mean of the four vertices. For a convex quad it is inside.
func (q Quad) Centroid() Point {
	var c Point
	for _, p := range q {
		c.X += p.X
		c.Y += p.Y
	}
	return Point{X: c.X / 4, Y: c.Y / 4}
}

// Rect is an axis-aligned box with Min inclusive and Max exclusive in pixel terms.
type Rect struct {
	Min, Max Point
}

func (r Rect) Dx() float64 { return r.Max.X - r.Min.X }
func (r Rect) Dy() float64 { return r.Max.Y - r.Min.Y }

// Empty reports whether r has no area.
func (r Rect) Empty() bool {
	return r.Dx() <= 0 || r.Dy() <= 0
}

// Center returns the midpoint of r.
func (r Rect) Center() Point {
	return Point{X: (r.Min.X + r.Max.X) / 2, Y: (r.Min.Y + r.Max.Y) / 2}
}

// Corners returns the rectangle as a Quad ordered top-left, top-right,
// bottom-right, bottom-left.
func (r Rect) Corners() Quad {
	return Quad{
		{X: r.Min.X, Y: r.Min.Y},
		{X: r.Max.X, Y: r.Min.Y},
		{X: r.Max.X, Y: r.Max.Y},
		{X: r.Min.X, Y: r.Max.Y},
	}
}

// RectFromPoints derives the axis-aligned rectangle spanned by two corners.
func RectFromPoints(a, b Point) Rect {
	return Rect{
		Min: Point{X: math.Min(a.X, b.X), Y: math.Min(a.Y, b.Y)},
		Max: Point{X: math.Max(a.X, b.X), Y: math.Max(a.Y, b.Y)},
	}
}

// Bounds is the axis-aligned bounding box of q.
func (q Quad) Bounds() Rect {
	r := Rect{Min: q[0], Max: q[0]}
	for _, p := range q[1:] {
		r.Min.X = math.Min(r.Min.X, p.X)
		r.Min.Y = math.Min(r.Min.Y, p.Y)
		r.Max.X = math.Max(r.Max.X, p.X)
		r.Max.Y = math.Max(r.Max.Y, p.Y)
	}
	return r
}

// cross is the z component of (a-b) x (c-b).
func cross(a, b, c Point) float64 {
	return (a.X-b.X)*(c.Y-b.Y) - (a.Y-b.Y)*(c.X-b.X)
}

// IsConvex walks every cyclic triple of points and fails as soon as both a
// positive and a negative turn have been seen. Collinear triples neither fail
// nor fix the orientation.
func IsConvex(points []Point) bool {
	n := len(points)
	if n < 3 {
		return false
	}
	var gotNeg, gotPos bool
	for a := 0; a < n; a++ {
		b := (a + 1) % n
		c := (b + 1) % n
		z := cross(points[a], points[b], points[c])
		if z < 0 {
			gotNeg = true
		}
		if z > 0 {
			gotPos = true
		}
		if gotNeg && gotPos {
			return false
		}
	}
	return true
}

// IsStrictlyConvex is IsConvex that also rejects any collinear triple, so
// collapsed or zero-area shapes fail.
func IsStrictlyConvex(points []Point) bool {
	n := len(points)
	if n < 3 {
		return false
	}
	sign := 0.0
	for a := 0; a < n; a++ {
		b := (a + 1) % n
		c := (b + 1) % n
		z := cross(points[a], points[b], points[c])
		if z == 0 {
			return false
		}
		if sign == 0 {
			sign = z
			continue
		}
		if (z < 0) != (sign < 0) {
			return false
		}
	}
	return true
}

// Convex is IsConvex for a quad.
func (q Quad) Convex() bool { return IsConvex(q[:]) }

// StrictlyConvex is IsStrictlyConvex for a quad.
func (q Quad) StrictlyConvex() bool { return IsStrictlyConvex(q[:]) }

// inTriangle uses edge functions; boundary points count as inside.
func inTriangle(p, a, b, c Point) bool {
	d1 := cross(b, a, p)
	d2 := cross(c, b, p)
	d3 := cross(a, c, p)
	hasNeg := d1 < 0 || d2 < 0 || d3 < 0
	hasPos := d1 > 0 || d2 > 0 || d3 > 0
	return !(hasNeg && hasPos)
}

// PointInQuad splits q along the 1-3 diagonal and tests both triangles.
func PointInQuad(p Point, q Quad) bool {
	return inTriangle(p, q[0], q[1], q[2]) || inTriangle(p, q[0], q[3], q[2])
}

// Nearest identifies a vertex of one quad in a list.
type Nearest struct {
	Dist   float64
	Lot    int
	Vertex int
}

// NearestVertex scans every vertex of every quad in order. Ties keep the first
// one encountered. ok is false when quads is empty.
func NearestVertex(p Point, quads []Quad) (n Nearest, ok bool) {
	for li, q := range quads {
		for vi, v := range q {
			d := p.Dist(v)
			if !ok || d < n.Dist {
				n = Nearest{Dist: d, Lot: li, Vertex: vi}
				ok = true
			}
		}
	}
	return n, ok
}
