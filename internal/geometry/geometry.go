// Package geometry provides the small planar primitives the face warper needs:
// closed rectangles, index-keyed triangles and point index resolution.
package geometry

import (
	"image"
	"math"
)

// Rect is an axis-aligned rectangle whose boundary is part of the rectangle
type Rect struct {
	X, Y          int
	Width, Height int
}

// RectOf returns the rectangle spanning the given image size
func RectOf(size image.Point) Rect {
	return Rect{Width: size.X, Height: size.Y}
}

// Contains reports whether (x, y) lies inside the closed rectangle.
func (r Rect) Contains(x, y float64) bool {
	if x < float64(r.X) || y < float64(r.Y) {
		return false
	}
	if x > float64(r.X+r.Width) || y > float64(r.Y+r.Height) {
		return false
	}
	return true
}

// ContainsPoint is Contains for integer points
func (r Rect) ContainsPoint(p image.Point) bool {
	return r.Contains(float64(p.X), float64(p.Y))
}

// Rectangle converts to the half-open image.Rectangle with the same origin and size
func (r Rect) Rectangle() image.Rectangle {
	return image.Rect(r.X, r.Y, r.X+r.Width, r.Y+r.Height)
}

// Triangle references three points of a point sequence by index
type Triangle [3]int

// Points resolves the triangle against pts
func (t Triangle) Points(pts []image.Point) [3]image.Point {
	return [3]image.Point{pts[t[0]], pts[t[1]], pts[t[2]]}
}

// Distinct reports whether the three indices differ
func (t Triangle) Distinct() bool {
	return t[0] != t[1] && t[1] != t[2] && t[0] != t[2]
}

// Area returns twice the signed area of triangle abc. Zero means the points are collinear.
func Area(a, b, c image.Point) float64 {
	return float64((b.X-a.X)*(c.Y-a.Y) - (b.Y-a.Y)*(c.X-a.X))
}

// BoundingRect mirrors OpenCV's boundingRect for a point set: the box spans
// from the minimum to the maximum coordinate inclusive.
func BoundingRect(pts []image.Point) image.Rectangle {
	if len(pts) == 0 {
		return image.Rectangle{}
	}
	minX, minY := pts[0].X, pts[0].Y
	maxX, maxY := minX, minY
	for _, p := range pts[1:] {
		minX = min(minX, p.X)
		minY = min(minY, p.Y)
		maxX = max(maxX, p.X)
		maxY = max(maxY, p.Y)
	}
	return image.Rect(minX, minY, maxX+1, maxY+1)
}

// Offset translates the points so that origin becomes (0, 0)
func Offset(pts [3]image.Point, origin image.Point) [3]image.Point {
	var out [3]image.Point
	for i, p := range pts {
		out[i] = p.Sub(origin)
	}
	return out
}

// Match is the result of resolving a coordinate to a point index.
type Match struct {
	Index int
	Found bool
}

// NotFound is the Match returned when no point is within tolerance.
var NotFound = Match{Index: -1}

// Resolve finds the point of pts within tol of (x, y) on both axes.
// When several points qualify the first one in sequence order wins.
func Resolve(pts []image.Point, x, y, tol float64) Match {
	for i, p := range pts {
		if math.Abs(x-float64(p.X)) < tol && math.Abs(y-float64(p.Y)) < tol {
			return Match{Index: i, Found: true}
		}
	}
	return NotFound
}
