package detector

import (
	"image"
	"os"
	"sync"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// YuNetConfig holds face detector settings
type YuNetConfig struct {
	ModelPath      string
	ScoreThreshold float32
	NMSThreshold   float32
	TopK           int
}

// YuNet detects faces using OpenCV's FaceDetectorYN
type YuNet struct {
	detector gocv.FaceDetectorYN
	mu       sync.Mutex // the detector keeps its input size between calls
}

// NewYuNet creates a YuNet face detector
func NewYuNet(cfg YuNetConfig) (*YuNet, error) {
	if _, err := os.Stat(cfg.ModelPath); err != nil {
		return nil, errors.Wrapf(err, "face detector model %s", cfg.ModelPath)
	}

	// Initial input size is replaced per image
	detector := gocv.NewFaceDetectorYNWithParams(
		cfg.ModelPath,
		"",
		image.Pt(320, 320),
		cfg.ScoreThreshold,
		cfg.NMSThreshold,
		cfg.TopK,
		int(gocv.NetBackendDefault),
		int(gocv.NetTargetCPU),
	)

	return &YuNet{detector: detector}, nil
}

// Detect finds faces in img
func (y *YuNet) Detect(img gocv.Mat) ([]Face, error) {
	if img.Empty() {
		return nil, errors.New("detector: empty image")
	}

	y.mu.Lock()
	defer y.mu.Unlock()

	y.detector.SetInputSize(image.Pt(img.Cols(), img.Rows()))

	out := gocv.NewMat()
	defer out.Close()
	y.detector.Detect(img, &out)

	return parseYuNet(out), nil
}

// parseYuNet decodes the detector output. Each row has 15 columns:
// 0-3 box (x, y, w, h), 4-13 five keypoints, 14 score.
func parseYuNet(out gocv.Mat) []Face {
	faces := make([]Face, 0, out.Rows())
	for r := 0; r < out.Rows(); r++ {
		x := out.GetFloatAt(r, 0)
		y := out.GetFloatAt(r, 1)
		w := out.GetFloatAt(r, 2)
		h := out.GetFloatAt(r, 3)

		var kps [5]Point
		for k := range kps {
			kps[k] = Point{X: out.GetFloatAt(r, 4+k*2), Y: out.GetFloatAt(r, 5+k*2)}
		}

		faces = append(faces, Face{
			BoundingBox: BoundingBox{X1: x, Y1: y, X2: x + w, Y2: y + h},
			Landmarks: Landmarks{
				RightEye:   kps[0],
				LeftEye:    kps[1],
				Nose:       kps[2],
				RightMouth: kps[3],
				LeftMouth:  kps[4],
			},
			Score: out.GetFloatAt(r, 14),
		})
	}
	return faces
}

// Close releases detector resources
func (y *YuNet) Close() error {
	y.mu.Lock()
	defer y.mu.Unlock()
	y.detector.Close()
	return nil
}
