package warp

import (
	"image"
	"image/color"

	"gocv.io/x/gocv"

	"github.com/dudu/facewarp/internal/geometry"
)

// AffineTriangle warps the part of src under srcTri so that srcTri lands on
// dstTri. The returned patch covers the bounding rectangle of dstTri, which is
// returned alongside it in destination coordinates.
//
// src must be a 3-channel float image. The caller owns the returned Mat.
func AffineTriangle(src gocv.Mat, srcTri, dstTri [3]image.Point) (gocv.Mat, image.Rectangle, error) {
	r2 := geometry.BoundingRect(dstTri[:])

	// Source landmarks may sit slightly outside the image; crop what exists and
	// let the reflected border fill the rest
	srcBounds := image.Rect(0, 0, src.Cols(), src.Rows())
	r1 := geometry.BoundingRect(srcTri[:]).Intersect(srcBounds)
	if r1.Empty() {
		return gocv.NewMat(), r2, ErrOutsideImage
	}

	crop := src.Region(r1)
	defer crop.Close()

	srcVec := gocv.NewPoint2fVectorFromPoints(toPoint2f(geometry.Offset(srcTri, r1.Min)))
	defer srcVec.Close()
	dstVec := gocv.NewPoint2fVectorFromPoints(toPoint2f(geometry.Offset(dstTri, r2.Min)))
	defer dstVec.Close()

	transform := gocv.GetAffineTransform2f(srcVec, dstVec)
	defer transform.Close()

	patch := gocv.NewMat()
	gocv.WarpAffineWithParams(crop, &patch, transform, r2.Size(),
		gocv.InterpolationLinear, gocv.BorderReflect101, color.RGBA{})

	return patch, r2, nil
}

// CompositeTriangle blends patch into dst inside the triangle dstTri.
// rect is the destination rectangle the patch was rendered for. Pixels of dst
// outside the triangle are left untouched.
//
// dst and patch must both be 3-channel float images.
func CompositeTriangle(dst *gocv.Mat, patch gocv.Mat, dstTri [3]image.Point, rect image.Rectangle) {
	clip := rect.Intersect(image.Rect(0, 0, dst.Cols(), dst.Rows()))
	if clip.Empty() {
		return
	}

	mask := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), rect.Dy(), rect.Dx(), gocv.MatTypeCV32FC3)
	defer mask.Close()

	local := geometry.Offset(dstTri, rect.Min)
	poly := gocv.NewPointsVectorFromPoints([][]image.Point{local[:]})
	defer poly.Close()
	gocv.FillPolyWithParams(&mask, poly, color.RGBA{R: 1, G: 1, B: 1}, gocv.LineAA, 0, image.Point{})

	// Only the part of the rectangle that falls on the canvas is written
	sub := clip.Sub(rect.Min)
	maskROI := mask.Region(sub)
	defer maskROI.Close()
	patchROI := patch.Region(sub)
	defer patchROI.Close()
	dstROI := dst.Region(clip)
	defer dstROI.Close()

	ones := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(1, 1, 1, 0), sub.Dy(), sub.Dx(), gocv.MatTypeCV32FC3)
	defer ones.Close()

	inverse := gocv.NewMat()
	defer inverse.Close()
	gocv.Subtract(ones, maskROI, &inverse)

	kept := gocv.NewMat()
	defer kept.Close()
	gocv.Multiply(dstROI, inverse, &kept)

	added := gocv.NewMat()
	defer added.Close()
	gocv.Multiply(patchROI, maskROI, &added)

	blended := gocv.NewMat()
	defer blended.Close()
	gocv.Add(kept, added, &blended)

	// dstROI shares memory with dst, so this writes through
	blended.CopyTo(&dstROI)
}

// WarpTriangle warps one source triangle of src onto the matching triangle of dst.
func WarpTriangle(src gocv.Mat, dst *gocv.Mat, srcTri, dstTri [3]image.Point) error {
	patch, rect, err := AffineTriangle(src, srcTri, dstTri)
	defer patch.Close()
	if err != nil {
		return err
	}
	CompositeTriangle(dst, patch, dstTri, rect)
	return nil
}

func toPoint2f(pts [3]image.Point) []gocv.Point2f {
	out := make([]gocv.Point2f, len(pts))
	for i, p := range pts {
		out[i] = gocv.Point2f{X: float32(p.X), Y: float32(p.Y)}
	}
	return out
}
