package detector

import (
	"fmt"
	"image"
	"math"

	ort "github.com/yalue/onnxruntime_go"
	"gocv.io/x/gocv"

	"github.com/dudu/facewarp/internal/inference"
	"github.com/dudu/facewarp/internal/landmarks"
)

// Landmark68Config holds landmark model settings
type Landmark68Config struct {
	ModelPath  string
	InputSize  int     // square model input, in pixels
	CropScale  float32 // face box expansion before cropping
	InputName  string
	OutputName string
	Provider   inference.Provider
}

// Landmark68 regresses the 68-point face layout from a face crop. The model
// takes a 1x3xSxS RGB tensor in [0,1] and returns 136 values, x/y pairs
// normalised to the crop.
type Landmark68 struct {
	session   *inference.Session
	inputSize int
	cropScale float32
}

// NewLandmark68 creates a new 68-point landmark detector
func NewLandmark68(cfg Landmark68Config) (*Landmark68, error) {
	inputName := cfg.InputName
	if inputName == "" {
		inputName = "input"
	}
	outputName := cfg.OutputName
	if outputName == "" {
		outputName = "output"
	}

	session, err := inference.NewSession(cfg.ModelPath, []string{inputName}, []string{outputName}, cfg.Provider)
	if err != nil {
		return nil, fmt.Errorf("failed to create landmark session: %w", err)
	}

	cropScale := cfg.CropScale
	if cropScale < 1 {
		cropScale = 1
	}

	return &Landmark68{
		session:   session,
		inputSize: cfg.InputSize,
		cropScale: cropScale,
	}, nil
}

// Detect returns the 68 landmarks of face in image coordinates
func (l *Landmark68) Detect(img gocv.Mat, face Face) (landmarks.Set, error) {
	crop := l.cropFor(face)

	M := crop.transform(l.inputSize)
	aligned := gocv.NewMat()
	defer aligned.Close()
	gocv.WarpAffine(img, &aligned, M, image.Pt(l.inputSize, l.inputSize))
	M.Close()

	rgb := gocv.NewMat()
	defer rgb.Close()
	gocv.CvtColor(aligned, &rgb, gocv.ColorBGRToRGB)

	// HWC uint8 -> NCHW float in [0,1]
	blob := gocv.BlobFromImage(rgb, 1.0/255.0, image.Pt(l.inputSize, l.inputSize),
		gocv.NewScalar(0, 0, 0, 0), false, false)
	defer blob.Close()

	inputTensor, err := inference.CreateTensor(
		[]int64{1, 3, int64(l.inputSize), int64(l.inputSize)},
		bytesToFloat32(blob.ToBytes()),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}
	defer inputTensor.Destroy()

	outputTensor, err := inference.CreateEmptyTensor[float32]([]int64{1, NumLandmarks * 2})
	if err != nil {
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}
	defer outputTensor.Destroy()

	if err := l.session.Run([]ort.Value{inputTensor}, []ort.Value{outputTensor}); err != nil {
		return nil, fmt.Errorf("landmark inference failed: %w", err)
	}

	return toSet(crop.project(outputTensor.GetData(), l.inputSize)), nil
}

// Close releases detector resources
func (l *Landmark68) Close() error {
	return l.session.Destroy()
}

// faceCrop is a square window centred on a face and rotated so the eyes
// lie on a horizontal line
type faceCrop struct {
	centerX, centerY float32
	side             float32
	angle            float64 // roll of the face in radians
}

func (l *Landmark68) cropFor(face Face) faceCrop {
	bbox := face.BoundingBox
	side := bbox.Width()
	if bbox.Height() > side {
		side = bbox.Height()
	}
	c := bbox.Center()
	return faceCrop{
		centerX: c.X,
		centerY: c.Y,
		side:    side * l.cropScale,
		angle:   face.Landmarks.Roll(),
	}
}

// transform maps the crop onto a size x size model input
func (c faceCrop) transform(size int) gocv.Mat {
	scale := float64(size) / float64(c.side)
	half := float64(size) / 2
	cos, sin := math.Cos(c.angle)*scale, math.Sin(c.angle)*scale
	cx, cy := float64(c.centerX), float64(c.centerY)

	// q = scale * R(-angle) * (p - c) + half
	M := gocv.NewMatWithSize(2, 3, gocv.MatTypeCV64F)
	M.SetDoubleAt(0, 0, cos)
	M.SetDoubleAt(0, 1, sin)
	M.SetDoubleAt(0, 2, half-(cos*cx+sin*cy))
	M.SetDoubleAt(1, 0, -sin)
	M.SetDoubleAt(1, 1, cos)
	M.SetDoubleAt(1, 2, half-(-sin*cx+cos*cy))
	return M
}

// project maps normalised model output back to image coordinates
func (c faceCrop) project(output []float32, size int) []Point {
	inv := float64(c.side) / float64(size)
	half := float64(size) / 2
	cos, sin := math.Cos(c.angle), math.Sin(c.angle)

	pts := make([]Point, len(output)/2)
	for i := range pts {
		qx := float64(output[i*2])*float64(size) - half
		qy := float64(output[i*2+1])*float64(size) - half
		pts[i] = Point{
			X: float32(float64(c.centerX) + (cos*qx-sin*qy)*inv),
			Y: float32(float64(c.centerY) + (sin*qx+cos*qy)*inv),
		}
	}
	return pts
}

func bytesToFloat32(data []byte) []float32 {
	result := make([]float32, len(data)/4)
	for i := range result {
		bits := uint32(data[i*4]) | uint32(data[i*4+1])<<8 | uint32(data[i*4+2])<<16 | uint32(data[i*4+3])<<24
		result[i] = math.Float32frombits(bits)
	}
	return result
}
