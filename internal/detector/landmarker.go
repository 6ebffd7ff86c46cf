package detector

import (
	"fmt"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gocv.io/x/gocv"

	"github.com/dudu/facewarp/internal/inference"
	"github.com/dudu/facewarp/internal/landmarks"
	"github.com/dudu/facewarp/internal/logger"
)

// FaceFinder locates faces in an image
type FaceFinder interface {
	Detect(img gocv.Mat) ([]Face, error)
	Close() error
}

// PointRegressor computes the landmark layout of one face
type PointRegressor interface {
	Detect(img gocv.Mat, face Face) (landmarks.Set, error)
	Close() error
}

// Config describes the models a Landmarker loads
type Config struct {
	Face      YuNetConfig
	Landmarks Landmark68Config
}

// Landmarker turns an image into the landmark set of its most confident face.
type Landmarker struct {
	faces  FaceFinder
	points PointRegressor
	log    *zap.Logger
}

// NewLandmarker combines a face finder with a landmark regressor
func NewLandmarker(faces FaceFinder, points PointRegressor) *Landmarker {
	return &Landmarker{
		faces:  faces,
		points: points,
		log:    logger.Named("detector"),
	}
}

// Open loads both models. inference.Initialize must have been called.
func Open(cfg Config) (*Landmarker, error) {
	faces, err := NewYuNet(cfg.Face)
	if err != nil {
		return nil, fmt.Errorf("failed to create face detector: %w", err)
	}

	if cfg.Landmarks.Provider == "" {
		cfg.Landmarks.Provider = inference.ProviderCPU
	}
	points, err := NewLandmark68(cfg.Landmarks)
	if err != nil {
		faces.Close()
		return nil, fmt.Errorf("failed to create landmark detector: %w", err)
	}

	return NewLandmarker(faces, points), nil
}

// Detect returns the landmarks of the highest scoring face, or ErrNoFace.
func (l *Landmarker) Detect(img gocv.Mat) (landmarks.Set, error) {
	faces, err := l.faces.Detect(img)
	if err != nil {
		return nil, fmt.Errorf("face detection failed: %w", err)
	}
	if len(faces) == 0 {
		return nil, ErrNoFace
	}

	face := Best(faces)
	l.log.Debug("face detected",
		zap.Int("faces", len(faces)),
		zap.Float32("score", face.Score),
		zap.Stringer("box", face.BoundingBox.Rect()),
	)

	set, err := l.points.Detect(img, face)
	if err != nil {
		return nil, fmt.Errorf("landmark detection failed: %w", err)
	}
	if len(set) == 0 {
		return nil, ErrNoFace
	}
	return set, nil
}

// Close releases both models
func (l *Landmarker) Close() error {
	return multierr.Combine(l.faces.Close(), l.points.Close())
}
