package landmarks

import (
	"bytes"
	"errors"
	"image"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParse(t *testing.T) {
	input := "12 34\n56\t78\n  -3   9  \n10.0 20.6\n"
	set, err := Parse(strings.NewReader(input))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := Set{image.Pt(12, 34), image.Pt(56, 78), image.Pt(-3, 9), image.Pt(10, 21)}
	if len(set) != len(want) {
		t.Fatalf("expected %d points, got %d", len(want), len(set))
	}
	for i := range want {
		if set[i] != want[i] {
			t.Errorf("point %d: expected %v, got %v", i, want[i], set[i])
		}
	}
}

func TestParseInt32Limits(t *testing.T) {
	set, err := Parse(strings.NewReader("2147483647 -2147483648\n2147483646.6 -2.147483648e9\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := Set{image.Pt(math.MaxInt32, math.MinInt32), image.Pt(math.MaxInt32, math.MinInt32)}
	for i := range want {
		if set[i] != want[i] {
			t.Errorf("point %d: expected %v, got %v", i, want[i], set[i])
		}
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		line  int
	}{
		{"single token", "1 2\n3\n", 2},
		{"three tokens", "1 2 3\n", 1},
		{"non numeric", "1 2\n4 5\nx 6\n", 3},
		{"blank line", "1 2\n\n3 4\n", 2},
		{"not finite", "NaN 1\n", 1},
		{"integer overflow", "1 2\n99999999999999999999 5\n", 2},
		{"int32 overflow", "2147483648 5\n", 1},
		{"huge exponent", "1e30 5\n", 1},
		{"huge negative", "3 4\n-1e300 5\n", 2},
		{"negative overflow y", "5 -2147483649\n", 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tt.input))
			if err == nil {
				t.Fatal("expected error")
			}
			if !errors.Is(err, ErrParse) {
				t.Errorf("expected ErrParse, got %v", err)
			}
			var pe *ParseError
			if !errors.As(err, &pe) {
				t.Fatalf("expected *ParseError, got %T", err)
			}
			if pe.Line != tt.line {
				t.Errorf("expected line %d, got %d", tt.line, pe.Line)
			}
		})
	}
}

func TestParseEmpty(t *testing.T) {
	set, err := Parse(strings.NewReader(""))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := set.Validate(); !errors.Is(err, ErrEmpty) {
		t.Errorf("expected ErrEmpty, got %v", err)
	}
}

func TestRoundTrip(t *testing.T) {
	set := make(Set, 68)
	for i := range set {
		set[i] = image.Pt(i*7-30, 300-i*3)
	}

	var buf bytes.Buffer
	if err := Write(&buf, set); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := Parse(&buf)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	if len(got) != len(set) {
		t.Fatalf("expected %d points, got %d", len(set), len(got))
	}
	for i := range set {
		if got[i] != set[i] {
			t.Errorf("point %d: expected %v, got %v", i, set[i], got[i])
		}
	}
}

func TestFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dst.jpg.txt")
	set := Set{image.Pt(1, 2), image.Pt(3, 4), image.Pt(5, 6)}

	if err := WriteFile(path, set); err != nil {
		t.Fatalf("write file: %v", err)
	}
	got, err := ReadFile(path)
	if err != nil {
		t.Fatalf("read file: %v", err)
	}
	for i := range set {
		if got[i] != set[i] {
			t.Errorf("point %d: expected %v, got %v", i, set[i], got[i])
		}
	}
}

func TestReadFileErrors(t *testing.T) {
	dir := t.TempDir()

	if _, err := ReadFile(filepath.Join(dir, "missing.txt")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected not-exist error, got %v", err)
	}

	bad := filepath.Join(dir, "bad.txt")
	if err := os.WriteFile(bad, []byte("1 2\nfoo bar\n"), 0644); err != nil {
		t.Fatalf("failed to write test file: %v", err)
	}
	if _, err := ReadFile(bad); !errors.Is(err, ErrParse) {
		t.Errorf("expected ErrParse, got %v", err)
	}
}

func TestSelectKeepsAlignment(t *testing.T) {
	src := Set{image.Pt(0, 0), image.Pt(10, 0), image.Pt(10, 10), image.Pt(0, 10), image.Pt(5, 5)}
	dst := Set{image.Pt(1, 1), image.Pt(21, 1), image.Pt(21, 21), image.Pt(1, 21), image.Pt(11, 11)}
	hull := []int{3, 0, 1, 2}

	srcHull := src.Select(hull)
	dstHull := dst.Select(hull)
	if len(srcHull) != len(dstHull) {
		t.Fatalf("hull lengths differ: %d vs %d", len(srcHull), len(dstHull))
	}
	for i, idx := range hull {
		if srcHull[i] != src[idx] || dstHull[i] != dst[idx] {
			t.Errorf("position %d does not map to landmark %d", i, idx)
		}
	}
}

func TestScaleAndBounds(t *testing.T) {
	set := Set{image.Pt(10, 20), image.Pt(30, 5)}
	scaled := set.Scale(0.5, 2)
	if scaled[0] != image.Pt(5, 40) || scaled[1] != image.Pt(15, 10) {
		t.Errorf("unexpected scaled points %v", scaled)
	}
	if set[0] != image.Pt(10, 20) {
		t.Error("Scale modified the receiver")
	}

	b := set.Bounds()
	if b != image.Rect(10, 5, 31, 21) {
		t.Errorf("unexpected bounds %v", b)
	}
}
