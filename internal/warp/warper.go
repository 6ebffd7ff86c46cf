// Package warp maps one face onto another by triangulating the destination
// face's convex hull and warping each source triangle with its own affine transform.
package warp

import (
	"errors"
	"fmt"
	"image"
	"image/color"

	"gocv.io/x/gocv"

	"github.com/dudu/facewarp/internal/geometry"
	"github.com/dudu/facewarp/internal/landmarks"
)

var (
	// ErrDetectionMissing is returned when a landmark set is empty.
	ErrDetectionMissing = errors.New("warp: no landmarks for face")
	// ErrTriangulationEmpty is returned when no usable triangle covers the hull.
	ErrTriangulationEmpty = errors.New("warp: triangulation produced no triangles")
	// ErrLandmarkMismatch is returned when source and destination sets differ in length.
	ErrLandmarkMismatch = errors.New("warp: landmark sets differ in length")
	// ErrEmptyImage is returned for an empty source or destination image.
	ErrEmptyImage = errors.New("warp: empty image")
	// ErrOutsideImage is returned when a source triangle lies entirely outside the source image.
	ErrOutsideImage = errors.New("warp: triangle outside image")
)

// Result holds the outputs of a full-face warp. All mats have the size of the
// destination image and are 8-bit, 3-channel.
type Result struct {
	Warped    gocv.Mat // destination with the source face warped in
	Mask      gocv.Mat // 255 inside the destination hull, 0 outside
	Composite gocv.Mat // Warped restricted to the hull

	HullIndices []int         // indices into the landmark sets, on the destination hull
	SrcHull     landmarks.Set // source points at HullIndices
	DstHull     landmarks.Set // destination points at HullIndices
	Triangles   []geometry.Triangle
	Skipped     int // triangles whose source lay outside the source image
}

// Center returns the centre of the destination hull's bounding box
func (r *Result) Center() image.Point {
	b := geometry.BoundingRect(r.DstHull)
	return image.Pt(b.Min.X+b.Dx()/2, b.Min.Y+b.Dy()/2)
}

// Close releases the result's mats
func (r *Result) Close() {
	r.Warped.Close()
	r.Mask.Close()
	r.Composite.Close()
}

// Warper warps faces between images. It holds no per-call state and may be
// used from several goroutines.
type Warper struct {
	tolerance float64
}

// NewWarper creates a warper. A non-positive tolerance selects DefaultTolerance.
func NewWarper(tolerance float64) *Warper {
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	return &Warper{tolerance: tolerance}
}

// Tolerance returns the vertex resolution tolerance in pixels
func (w *Warper) Tolerance() float64 {
	return w.tolerance
}

// Warp maps the face described by srcPts in src onto the face described by
// dstPts in dst. The destination image is not modified.
func (w *Warper) Warp(src, dst gocv.Mat, srcPts, dstPts landmarks.Set) (*Result, error) {
	if src.Empty() || dst.Empty() {
		return nil, ErrEmptyImage
	}
	if len(srcPts) == 0 || len(dstPts) == 0 {
		return nil, ErrDetectionMissing
	}
	if len(srcPts) != len(dstPts) {
		return nil, fmt.Errorf("%w: source %d, destination %d", ErrLandmarkMismatch, len(srcPts), len(dstPts))
	}

	hull := HullIndices(dstPts)
	srcHull := srcPts.Select(hull)
	dstHull := dstPts.Select(hull)

	size := image.Pt(dst.Cols(), dst.Rows())
	triangles := Triangulate(geometry.RectOf(size), dstHull, w.tolerance)
	if len(triangles) == 0 {
		return nil, ErrTriangulationEmpty
	}

	srcF := toFloat3(src)
	defer srcF.Close()
	work := toFloat3(dst)
	defer work.Close()

	skipped := 0
	for _, tri := range triangles {
		err := WarpTriangle(srcF, &work, tri.Points(srcHull), tri.Points(dstHull))
		if errors.Is(err, ErrOutsideImage) {
			skipped++
			continue
		}
		if err != nil {
			return nil, err
		}
	}

	warped := gocv.NewMat()
	work.ConvertTo(&warped, gocv.MatTypeCV8UC3)

	mask := HullMask(size, dstHull)

	// mask - (mask - warped) keeps the warped pixels inside the hull and zeroes the rest
	outside := gocv.NewMat()
	defer outside.Close()
	gocv.Subtract(mask, warped, &outside)
	composite := gocv.NewMat()
	gocv.Subtract(mask, outside, &composite)

	return &Result{
		Warped:      warped,
		Mask:        mask,
		Composite:   composite,
		HullIndices: hull,
		SrcHull:     srcHull,
		DstHull:     dstHull,
		Triangles:   triangles,
		Skipped:     skipped,
	}, nil
}

// HullIndices returns the indices of the points on the convex hull of pts.
func HullIndices(pts landmarks.Set) []int {
	vec := gocv.NewPointVectorFromPoints(pts)
	defer vec.Close()

	hull := gocv.NewMat()
	defer hull.Close()
	gocv.ConvexHull(vec, &hull, false, false)

	indices := make([]int, hull.Rows())
	for i := range indices {
		indices[i] = int(hull.GetIntAt(i, 0))
	}
	return indices
}

// HullMask fills the polygon hull into a black 8-bit, 3-channel canvas of the given size.
func HullMask(size image.Point, hull landmarks.Set) gocv.Mat {
	mask := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), size.Y, size.X, gocv.MatTypeCV8UC3)
	if len(hull) < 3 {
		return mask
	}

	poly := gocv.NewPointsVectorFromPoints([][]image.Point{hull})
	defer poly.Close()
	gocv.FillPoly(&mask, poly, color.RGBA{R: 255, G: 255, B: 255, A: 255})
	return mask
}

// toFloat3 converts img to a new 3-channel float32 image
func toFloat3(img gocv.Mat) gocv.Mat {
	bgr := img
	switch img.Channels() {
	case 1:
		conv := gocv.NewMat()
		defer conv.Close()
		gocv.CvtColor(img, &conv, gocv.ColorGrayToBGR)
		bgr = conv
	case 4:
		conv := gocv.NewMat()
		defer conv.Close()
		gocv.CvtColor(img, &conv, gocv.ColorBGRAToBGR)
		bgr = conv
	}

	out := gocv.NewMat()
	bgr.ConvertTo(&out, gocv.MatTypeCV32FC3)
	return out
}
