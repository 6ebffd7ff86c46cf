package geometry

import (
	"image"
	"testing"
)

func TestRectContains(t *testing.T) {
	r := Rect{X: 10, Y: 20, Width: 100, Height: 50}

	tests := []struct {
		name string
		x, y float64
		want bool
	}{
		{"inside", 50, 40, true},
		{"top left corner", 10, 20, true},
		{"bottom right corner", 110, 70, true},
		{"right edge", 110, 45, true},
		{"left of rect", 9.99, 40, false},
		{"above rect", 50, 19.5, false},
		{"right of rect", 110.01, 40, false},
		{"below rect", 50, 70.5, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := r.Contains(tt.x, tt.y); got != tt.want {
				t.Errorf("Contains(%v, %v) = %v, want %v", tt.x, tt.y, got, tt.want)
			}
		})
	}
}

func TestRectOf(t *testing.T) {
	r := RectOf(image.Pt(300, 200))
	if !r.ContainsPoint(image.Pt(300, 200)) {
		t.Error("expected far corner to be contained")
	}
	if r.Rectangle() != image.Rect(0, 0, 300, 200) {
		t.Errorf("unexpected rectangle %v", r.Rectangle())
	}
}

func TestResolve(t *testing.T) {
	pts := []image.Point{{10, 10}, {20, 20}, {20, 20}, {30, 10}}

	tests := []struct {
		name string
		x, y float64
		want Match
	}{
		{"exact", 10, 10, Match{Index: 0, Found: true}},
		{"within tolerance", 30.6, 9.4, Match{Index: 3, Found: true}},
		{"duplicate picks first", 20, 20, Match{Index: 1, Found: true}},
		{"one axis too far", 11, 10, NotFound},
		{"nowhere near", 100, 100, NotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Resolve(pts, tt.x, tt.y, 1.0); got != tt.want {
				t.Errorf("Resolve(%v, %v) = %+v, want %+v", tt.x, tt.y, got, tt.want)
			}
		})
	}
}

func TestTriangle(t *testing.T) {
	pts := []image.Point{{0, 0}, {4, 0}, {0, 3}}
	tri := Triangle{2, 0, 1}

	got := tri.Points(pts)
	if got != [3]image.Point{{0, 3}, {0, 0}, {4, 0}} {
		t.Errorf("unexpected points %v", got)
	}
	if !tri.Distinct() {
		t.Error("expected distinct indices")
	}
	if (Triangle{1, 1, 2}).Distinct() {
		t.Error("expected repeated index to be reported")
	}
}

func TestArea(t *testing.T) {
	if a := Area(image.Pt(0, 0), image.Pt(4, 0), image.Pt(0, 3)); a != 12 {
		t.Errorf("expected doubled area 12, got %v", a)
	}
	if a := Area(image.Pt(0, 0), image.Pt(1, 1), image.Pt(5, 5)); a != 0 {
		t.Errorf("expected collinear area 0, got %v", a)
	}
}

func TestBoundingRect(t *testing.T) {
	r := BoundingRect([]image.Point{{5, 9}, {2, 3}, {7, 4}})
	if r != image.Rect(2, 3, 8, 10) {
		t.Errorf("unexpected bounding rect %v", r)
	}
	if r.Dx() != 6 || r.Dy() != 7 {
		t.Errorf("expected 6x7, got %dx%d", r.Dx(), r.Dy())
	}

	off := Offset([3]image.Point{{5, 9}, {2, 3}, {7, 4}}, r.Min)
	if off != [3]image.Point{{3, 6}, {0, 0}, {5, 1}} {
		t.Errorf("unexpected offsets %v", off)
	}
}
