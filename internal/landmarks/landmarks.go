// Package landmarks holds ordered facial landmark point sets and their text file format.
package landmarks

import (
	"errors"
	"image"
	"math"
)

// ErrEmpty is returned when a point set has no points.
var ErrEmpty = errors.New("landmarks: empty point set")

// Set is an ordered sequence of landmark points. Index k in one set and index k
// in another set refer to the same anatomical landmark.
type Set []image.Point

// Validate reports whether the set can be used for warping
func (s Set) Validate() error {
	if len(s) == 0 {
		return ErrEmpty
	}
	return nil
}

// Select returns the points at the given indices, in index order
func (s Set) Select(indices []int) Set {
	out := make(Set, len(indices))
	for i, idx := range indices {
		out[i] = s[idx]
	}
	return out
}

// Clone returns a copy of the set
func (s Set) Clone() Set {
	out := make(Set, len(s))
	copy(out, s)
	return out
}

// Scale multiplies every coordinate by sx and sy, rounding to the nearest pixel.
// Used when the image the points belong to is resized.
func (s Set) Scale(sx, sy float64) Set {
	out := make(Set, len(s))
	for i, p := range s {
		out[i] = image.Pt(
			int(math.Round(float64(p.X)*sx)),
			int(math.Round(float64(p.Y)*sy)),
		)
	}
	return out
}

// Bounds returns the smallest rectangle containing every point.
// The rectangle is half-open, so Max is one past the largest coordinate.
func (s Set) Bounds() image.Rectangle {
	if len(s) == 0 {
		return image.Rectangle{}
	}
	r := image.Rectangle{Min: s[0], Max: s[0].Add(image.Pt(1, 1))}
	for _, p := range s[1:] {
		r = r.Union(image.Rectangle{Min: p, Max: p.Add(image.Pt(1, 1))})
	}
	return r
}
