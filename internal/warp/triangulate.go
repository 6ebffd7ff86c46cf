package warp

import (
	"image"

	"gocv.io/x/gocv"

	"github.com/dudu/facewarp/internal/geometry"
)

// DefaultTolerance is the per-axis distance under which a subdivision vertex
// is considered to be an input point.
const DefaultTolerance = 1.0

// subdivMargin grows the subdivision bounds by this many frame sizes on each
// side. Subdiv2D places its outer vertices relative to its bounds, and a flat
// triangle along the hull is dropped when its circumcircle reaches one.
const subdivMargin = 4

// Triangulate computes the Delaunay triangulation of pts inside rect and
// returns it as index triples into pts.
//
// Points outside rect are not inserted. A triangle emitted by the subdivision
// is kept only if all its vertices lie in rect and resolve to three distinct
// input points.
func Triangulate(rect geometry.Rect, pts []image.Point, tol float64) []geometry.Triangle {
	if len(pts) < 3 {
		return nil
	}

	frame := rect.Rectangle()
	subdiv := gocv.NewSubdiv2DWithRect(frame.Inset(-subdivMargin * max(frame.Dx(), frame.Dy())))
	defer subdiv.Close()

	// Only points in the half-open frame are inserted
	inserted := 0
	for _, p := range pts {
		if !p.In(frame) {
			continue
		}
		subdiv.Insert(gocv.Point2f{X: float32(p.X), Y: float32(p.Y)})
		inserted++
	}
	if inserted < 3 {
		return nil
	}

	var triangles []geometry.Triangle
	for _, t := range subdiv.GetTriangleList() {
		vx := [3]float64{float64(t[0]), float64(t[2]), float64(t[4])}
		vy := [3]float64{float64(t[1]), float64(t[3]), float64(t[5])}

		if tri, ok := resolveTriangle(rect, pts, vx, vy, tol); ok {
			triangles = append(triangles, tri)
		}
	}
	return triangles
}

func resolveTriangle(rect geometry.Rect, pts []image.Point, vx, vy [3]float64, tol float64) (geometry.Triangle, bool) {
	for i := 0; i < 3; i++ {
		if !rect.Contains(vx[i], vy[i]) {
			return geometry.Triangle{}, false
		}
	}

	var tri geometry.Triangle
	for i := 0; i < 3; i++ {
		m := geometry.Resolve(pts, vx[i], vy[i], tol)
		if !m.Found {
			return geometry.Triangle{}, false
		}
		tri[i] = m.Index
	}
	if !tri.Distinct() {
		return geometry.Triangle{}, false
	}

	v := tri.Points(pts)
	if geometry.Area(v[0], v[1], v[2]) == 0 {
		return geometry.Triangle{}, false
	}
	return tri, true
}
