package source

import (
	"errors"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"gocv.io/x/gocv"

	"github.com/dudu/facewarp/internal/landmarks"
)

func writeTestImage(t *testing.T, w, h int) string {
	t.Helper()
	img := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(40, 80, 120, 0), h, w, gocv.MatTypeCV8UC3)
	defer img.Close()
	gocv.Rectangle(&img, image.Rect(10, 10, 30, 30), color.RGBA{R: 255, A: 255}, -1)

	path := filepath.Join(t.TempDir(), "face.png")
	if err := SaveImage(path, img); err != nil {
		t.Fatalf("SaveImage: %v", err)
	}
	return path
}

func TestLoadImage(t *testing.T) {
	path := writeTestImage(t, 64, 48)

	tests := []struct {
		name string
		size image.Point
		want image.Point
	}{
		{"native", image.Point{}, image.Pt(64, 48)},
		{"same size", image.Pt(64, 48), image.Pt(64, 48)},
		{"resized", image.Pt(300, 300), image.Pt(300, 300)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img, orig, err := LoadImage(path, tt.size)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			defer img.Close()

			if orig != image.Pt(64, 48) {
				t.Errorf("expected original size 64x48, got %v", orig)
			}
			if got := image.Pt(img.Cols(), img.Rows()); got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
			if img.Channels() != 3 {
				t.Errorf("expected 3 channels, got %d", img.Channels())
			}
		})
	}
}

func TestLoadImageErrors(t *testing.T) {
	dir := t.TempDir()

	_, _, err := LoadImage(filepath.Join(dir, "missing.png"), image.Point{})
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected not-exist error, got %v", err)
	}

	garbage := filepath.Join(dir, "garbage.png")
	if err := os.WriteFile(garbage, []byte("not an image"), 0644); err != nil {
		t.Fatal(err)
	}
	_, _, err = LoadImage(garbage, image.Point{})
	if !errors.Is(err, ErrDecode) {
		t.Errorf("expected ErrDecode, got %v", err)
	}
}

func TestSaveImageCreatesDirectories(t *testing.T) {
	img := gocv.NewMatWithSize(8, 8, gocv.MatTypeCV8UC3)
	defer img.Close()

	path := filepath.Join(t.TempDir(), "a", "b", "frame0.png")
	if err := SaveImage(path, img); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("image not written: %v", err)
	}
}

func TestSaveImageEmpty(t *testing.T) {
	empty := gocv.NewMat()
	defer empty.Close()
	if err := SaveImage(filepath.Join(t.TempDir(), "x.png"), empty); err == nil {
		t.Error("expected error for empty image")
	}
}

func TestScalePoints(t *testing.T) {
	set := landmarks.Set{{10, 20}, {50, 40}}

	got := ScalePoints(set, image.Pt(100, 80), image.Pt(300, 300))
	want := landmarks.Set{{30, 75}, {150, 150}}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("point %d: expected %v, got %v", i, want[i], got[i])
		}
	}

	same := ScalePoints(set, image.Pt(100, 80), image.Pt(100, 80))
	same[0] = image.Pt(0, 0)
	if set[0] != image.Pt(10, 20) {
		t.Error("ScalePoints must not alias its input")
	}
}

func TestFit(t *testing.T) {
	tests := []struct {
		src, bound, want image.Point
	}{
		{image.Pt(1920, 1080), image.Pt(1280, 720), image.Pt(1280, 720)},
		{image.Pt(1080, 1920), image.Pt(1280, 720), image.Pt(405, 720)},
		{image.Pt(300, 300), image.Pt(1280, 720), image.Pt(720, 720)},
		{image.Pt(0, 10), image.Pt(100, 100), image.Point{}},
	}
	for _, tt := range tests {
		if got := Fit(tt.src, tt.bound); got != tt.want {
			t.Errorf("Fit(%v, %v) = %v, want %v", tt.src, tt.bound, got, tt.want)
		}
	}
}

func TestOpenMissingVideo(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "missing.mp4"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected not-exist error, got %v", err)
	}
}
