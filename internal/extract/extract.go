// Package extract cuts the detected face out of every video frame and
// stores it with its frame and box, for building face datasets.
package extract

import (
	"context"
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gocv.io/x/gocv"

	"github.com/dudu/facewarp/internal/config"
	"github.com/dudu/facewarp/internal/detector"
	"github.com/dudu/facewarp/internal/logger"
	"github.com/dudu/facewarp/internal/pipeline"
	"github.com/dudu/facewarp/internal/source"
)

// Config holds the size filter and the per-frame output patterns
type Config struct {
	MinFaceSize  int
	FacePattern  string
	FramePattern string
	InfoPattern  string
}

// ConfigFrom builds an extraction configuration from the application settings
func ConfigFrom(cfg *config.Config) Config {
	return Config{
		MinFaceSize:  cfg.Extract.MinFaceSize,
		FacePattern:  cfg.Extract.FacePattern,
		FramePattern: cfg.Extract.FramePattern,
		InfoPattern:  cfg.Extract.InfoPattern,
	}
}

// Stats summarises a Run
type Stats struct {
	Frames   int // frames read
	Written  int // faces stored
	NoFace   int // frames without a detection
	TooSmall int // faces dropped by the size filter
}

// Accept reports whether a face box is large enough to keep. Both sides
// must exceed minSize.
func Accept(box image.Rectangle, minSize int) bool {
	return box.Dx() > minSize && box.Dy() > minSize
}

// WriteInfo writes the "x y w h" line describing box
func WriteInfo(w io.Writer, box image.Rectangle) error {
	_, err := fmt.Fprintf(w, "%d %d %d %d\n", box.Min.X, box.Min.Y, box.Dx(), box.Dy())
	return err
}

func writeInfoFile(path string, box image.Rectangle) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.Wrap(err, "create info directory")
	}
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "create face info %s", path)
	}
	if err := WriteInfo(f, box); err != nil {
		f.Close()
		return errors.Wrapf(err, "write face info %s", path)
	}
	return f.Close()
}

// Extractor stores the most confident face of each frame
type Extractor struct {
	config Config
	faces  detector.FaceFinder
	log    *zap.Logger
}

// New creates an extractor. faces stays owned by the caller.
func New(cfg Config, faces detector.FaceFinder) *Extractor {
	return &Extractor{
		config: cfg,
		faces:  faces,
		log:    logger.Named("extract"),
	}
}

// Run reads frames from src until the stream ends or ctx is done. The step
// substituted into the patterns counts stored faces from zero.
func (e *Extractor) Run(ctx context.Context, src pipeline.FrameSource) (Stats, error) {
	var stats Stats

	frame := gocv.NewMat()
	defer frame.Close()

	for {
		if err := ctx.Err(); err != nil {
			e.log.Info("extraction cancelled", zap.Int("frames", stats.Frames), zap.Int("written", stats.Written))
			return stats, err
		}
		if !src.Read(&frame) {
			break
		}
		stats.Frames++

		faces, err := e.faces.Detect(frame)
		if err != nil {
			return stats, fmt.Errorf("frame %d: face detection failed: %w", stats.Frames, err)
		}
		if len(faces) == 0 {
			stats.NoFace++
			continue
		}

		box := detector.Best(faces).BoundingBox.Rect()
		if !Accept(box, e.config.MinFaceSize) {
			stats.TooSmall++
			e.log.Debug("face too small",
				zap.Int("frame", stats.Frames),
				zap.Int("width", box.Dx()),
				zap.Int("height", box.Dy()),
			)
			continue
		}

		// Boxes may reach past the frame edge; only the visible part is cut
		crop := box.Intersect(image.Rect(0, 0, frame.Cols(), frame.Rows()))
		if crop.Empty() {
			stats.TooSmall++
			continue
		}

		if err := e.store(stats.Written, frame, crop, box); err != nil {
			return stats, fmt.Errorf("frame %d: %w", stats.Frames, err)
		}
		e.log.Debug("face stored",
			zap.Int("step", stats.Written),
			zap.Stringer("box", box),
		)
		stats.Written++
	}

	e.log.Info("extraction finished",
		zap.Int("frames", stats.Frames),
		zap.Int("written", stats.Written),
		zap.Int("no_face", stats.NoFace),
		zap.Int("too_small", stats.TooSmall),
	)
	return stats, nil
}

func (e *Extractor) store(step int, frame gocv.Mat, crop, box image.Rectangle) error {
	face := frame.Region(crop)
	defer face.Close()

	if err := source.SaveImage(config.StepPath(e.config.FacePattern, step), face); err != nil {
		return err
	}
	if err := source.SaveImage(config.StepPath(e.config.FramePattern, step), frame); err != nil {
		return err
	}
	return writeInfoFile(config.StepPath(e.config.InfoPattern, step), box)
}
