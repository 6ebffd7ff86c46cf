package extract

import (
	"bytes"
	"context"
	"errors"
	"image"
	"os"
	"path/filepath"
	"testing"

	"gocv.io/x/gocv"

	"github.com/dudu/facewarp/internal/detector"
)

// fakeFinder replays one detection result per frame; the last entry repeats
type fakeFinder struct {
	script [][]detector.Face
	err    error
	calls  int
}

func (f *fakeFinder) Detect(gocv.Mat) ([]detector.Face, error) {
	if f.err != nil {
		return nil, f.err
	}
	faces := f.script[min(f.calls, len(f.script)-1)]
	f.calls++
	return faces, nil
}

func (f *fakeFinder) Close() error { return nil }

type fakeSource struct {
	n, read int
	onRead  func(read int)
}

func (s *fakeSource) Read(frame *gocv.Mat) bool {
	if s.read >= s.n {
		return false
	}
	s.read++
	if s.onRead != nil {
		s.onRead(s.read)
	}
	blank := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(40, 80, 120, 0), 240, 320, gocv.MatTypeCV8UC3)
	defer blank.Close()
	blank.CopyTo(frame)
	return true
}

func box(x1, y1, x2, y2 float32, score float32) detector.Face {
	return detector.Face{BoundingBox: detector.BoundingBox{X1: x1, Y1: y1, X2: x2, Y2: y2}, Score: score}
}

func testConfig(dir string) Config {
	return Config{
		MinFaceSize:  100,
		FacePattern:  filepath.Join(dir, "faces", "face{step}.jpg"),
		FramePattern: filepath.Join(dir, "frames", "frame{step}.jpg"),
		InfoPattern:  filepath.Join(dir, "info", "info{step}.txt"),
	}
}

func TestAccept(t *testing.T) {
	tests := []struct {
		name string
		box  image.Rectangle
		want bool
	}{
		{"both sides larger", image.Rect(0, 0, 101, 101), true},
		{"width at limit", image.Rect(0, 0, 100, 150), false},
		{"height at limit", image.Rect(10, 10, 160, 110), false},
		{"small", image.Rect(0, 0, 40, 40), false},
		{"offset large", image.Rect(-20, -20, 120, 130), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Accept(tt.box, 100); got != tt.want {
				t.Errorf("Accept(%v) = %v, want %v", tt.box, got, tt.want)
			}
		})
	}
}

func TestWriteInfo(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteInfo(&buf, image.Rect(12, 34, 162, 214)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := buf.String(); got != "12 34 150 180\n" {
		t.Errorf("unexpected info line %q", got)
	}

	buf.Reset()
	if err := WriteInfo(&buf, image.Rect(-5, -3, 120, 140)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := buf.String(); got != "-5 -3 125 143\n" {
		t.Errorf("unexpected info line %q", got)
	}
}

func TestRunStoresLargeFaces(t *testing.T) {
	dir := t.TempDir()
	finder := &fakeFinder{script: [][]detector.Face{
		{box(10, 10, 160, 170, 0.9)}, // stored as step 0
		nil,                          // no face
		{box(0, 0, 80, 80, 0.99)},    // too small
		{box(20, 30, 50, 60, 0.5), box(100, 40, 260, 220, 0.95)}, // best face stored as step 1
	}}
	e := New(testConfig(dir), finder)

	stats, err := e.Run(context.Background(), &fakeSource{n: 4})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := Stats{Frames: 4, Written: 2, NoFace: 1, TooSmall: 1}
	if stats != want {
		t.Errorf("expected %+v, got %+v", want, stats)
	}

	for _, name := range []string{"faces/face0.jpg", "faces/face1.jpg", "frames/frame0.jpg", "frames/frame1.jpg"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("expected %s: %v", name, err)
		}
	}
	if _, err := os.Stat(filepath.Join(dir, "faces", "face2.jpg")); !os.IsNotExist(err) {
		t.Errorf("no third face expected, got %v", err)
	}

	info, err := os.ReadFile(filepath.Join(dir, "info", "info1.txt"))
	if err != nil {
		t.Fatalf("read info: %v", err)
	}
	if string(info) != "100 40 160 180\n" {
		t.Errorf("unexpected info %q", info)
	}

	face := gocv.IMRead(filepath.Join(dir, "faces", "face0.jpg"), gocv.IMReadColor)
	defer face.Close()
	if face.Cols() != 150 || face.Rows() != 160 {
		t.Errorf("expected 150x160 crop, got %dx%d", face.Cols(), face.Rows())
	}
}

func TestRunClipsCropToFrame(t *testing.T) {
	dir := t.TempDir()
	finder := &fakeFinder{script: [][]detector.Face{{box(250, 150, 400, 300, 0.9)}}}
	e := New(testConfig(dir), finder)

	if _, err := e.Run(context.Background(), &fakeSource{n: 1}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	face := gocv.IMRead(filepath.Join(dir, "faces", "face0.jpg"), gocv.IMReadColor)
	defer face.Close()
	if face.Cols() != 70 || face.Rows() != 90 {
		t.Errorf("expected crop clipped to 70x90, got %dx%d", face.Cols(), face.Rows())
	}

	// The info file keeps the box as detected
	info, err := os.ReadFile(filepath.Join(dir, "info", "info0.txt"))
	if err != nil {
		t.Fatalf("read info: %v", err)
	}
	if string(info) != "250 150 150 150\n" {
		t.Errorf("unexpected info %q", info)
	}
}

func TestRunDetectError(t *testing.T) {
	boom := errors.New("boom")
	e := New(testConfig(t.TempDir()), &fakeFinder{err: boom})

	stats, err := e.Run(context.Background(), &fakeSource{n: 3})
	if !errors.Is(err, boom) {
		t.Errorf("expected wrapped detection error, got %v", err)
	}
	if stats.Frames != 1 {
		t.Errorf("expected to stop at the first frame, got %d", stats.Frames)
	}
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	src := &fakeSource{n: 1 << 30, onRead: func(read int) {
		if read == 5 {
			cancel()
		}
	}}
	e := New(testConfig(t.TempDir()), &fakeFinder{script: [][]detector.Face{nil}})

	stats, err := e.Run(ctx, src)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if stats.Frames != 5 || stats.NoFace != 5 {
		t.Errorf("unexpected stats %+v", stats)
	}
}
