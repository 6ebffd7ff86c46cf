package source

import (
	"image"
	"math"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"

	"github.com/dudu/facewarp/internal/landmarks"
)

// ErrDecode is returned when a file exists but is not a readable image.
var ErrDecode = errors.New("source: cannot decode image")

// LoadImage reads a colour image. When size is non-zero the image is resized
// to it. The original dimensions are returned so landmark sets read against
// the file can be rescaled with ScalePoints.
func LoadImage(path string, size image.Point) (gocv.Mat, image.Point, error) {
	if _, err := os.Stat(path); err != nil {
		return gocv.NewMat(), image.Point{}, errors.Wrapf(err, "image %s", path)
	}

	img := gocv.IMRead(path, gocv.IMReadColor)
	if img.Empty() {
		img.Close()
		return gocv.NewMat(), image.Point{}, errors.Wrapf(ErrDecode, "image %s", path)
	}

	orig := image.Pt(img.Cols(), img.Rows())
	if size == (image.Point{}) || size == orig {
		return img, orig, nil
	}

	resized := gocv.NewMat()
	gocv.Resize(img, &resized, size, 0, 0, gocv.InterpolationLinear)
	img.Close()
	return resized, orig, nil
}

// ScalePoints maps a landmark set from an image of size from onto one of size to
func ScalePoints(set landmarks.Set, from, to image.Point) landmarks.Set {
	if from == to || from.X == 0 || from.Y == 0 {
		return set.Clone()
	}
	return set.Scale(float64(to.X)/float64(from.X), float64(to.Y)/float64(from.Y))
}

// SaveImage writes img to path, with the format chosen by the extension.
// Missing parent directories are created.
func SaveImage(path string, img gocv.Mat) error {
	if img.Empty() {
		return errors.Errorf("refusing to write empty image to %s", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.Wrap(err, "create output directory")
	}
	if !gocv.IMWrite(path, img) {
		return errors.Errorf("failed to write image %s", path)
	}
	return nil
}

// Fit returns the largest size with the aspect ratio of src inside bound
func Fit(src, bound image.Point) image.Point {
	if src.X <= 0 || src.Y <= 0 {
		return image.Point{}
	}
	scale := math.Min(float64(bound.X)/float64(src.X), float64(bound.Y)/float64(src.Y))
	return image.Pt(int(math.Round(float64(src.X)*scale)), int(math.Round(float64(src.Y)*scale)))
}
