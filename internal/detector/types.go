package detector

import (
	"errors"
	"image"
	"math"

	"github.com/dudu/facewarp/internal/landmarks"
)

// ErrNoFace is returned when an image contains no detectable face.
var ErrNoFace = errors.New("detector: no face detected")

// NumLandmarks is the size of the landmark layout produced by Landmark68.
const NumLandmarks = 68

// Point represents a 2D point
type Point struct {
	X, Y float32
}

// BoundingBox represents a face bounding box
type BoundingBox struct {
	X1, Y1 float32 // top-left
	X2, Y2 float32 // bottom-right
}

// Width returns box width
func (b BoundingBox) Width() float32 {
	return b.X2 - b.X1
}

// Height returns box height
func (b BoundingBox) Height() float32 {
	return b.Y2 - b.Y1
}

// Center returns box center point
func (b BoundingBox) Center() Point {
	return Point{
		X: (b.X1 + b.X2) / 2,
		Y: (b.Y1 + b.Y2) / 2,
	}
}

// Area returns box area
func (b BoundingBox) Area() float32 {
	return b.Width() * b.Height()
}

// Rect converts to an integer rectangle, rounding outwards
func (b BoundingBox) Rect() image.Rectangle {
	return image.Rect(
		int(math.Floor(float64(b.X1))), int(math.Floor(float64(b.Y1))),
		int(math.Ceil(float64(b.X2))), int(math.Ceil(float64(b.Y2))),
	)
}

// Landmarks represents the 5 facial keypoints YuNet reports
type Landmarks struct {
	RightEye   Point // index 0
	LeftEye    Point // index 1
	Nose       Point // index 2
	RightMouth Point // index 3
	LeftMouth  Point // index 4
}

// Roll returns the in-plane rotation of the face in radians, measured from
// the image x axis along the line from the right eye to the left eye.
// It is 0 when the eyes coincide.
func (l Landmarks) Roll() float64 {
	dx := float64(l.LeftEye.X - l.RightEye.X)
	dy := float64(l.LeftEye.Y - l.RightEye.Y)
	if dx == 0 && dy == 0 {
		return 0
	}
	return math.Atan2(dy, dx)
}

// Face represents a detected face
type Face struct {
	BoundingBox BoundingBox
	Landmarks   Landmarks
	Score       float32
}

// Best returns the highest scoring face, the first one on ties. faces must not be empty.
func Best(faces []Face) Face {
	top := faces[0]
	for _, f := range faces[1:] {
		if f.Score > top.Score {
			top = f
		}
	}
	return top
}

// toSet rounds float landmarks to pixel coordinates
func toSet(pts []Point) landmarks.Set {
	set := make(landmarks.Set, len(pts))
	for i, p := range pts {
		set[i] = image.Pt(int(math.Round(float64(p.X))), int(math.Round(float64(p.Y))))
	}
	return set
}
