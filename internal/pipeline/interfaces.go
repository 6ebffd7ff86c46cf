package pipeline

import (
	"gocv.io/x/gocv"

	"github.com/dudu/facewarp/internal/landmarks"
	"github.com/dudu/facewarp/internal/warp"
)

// LandmarkDetector interface for landmark extraction from a whole image
type LandmarkDetector interface {
	Detect(img gocv.Mat) (landmarks.Set, error)
	Close() error
}

// FrameSource interface for sequential frame input. Read returns false at
// the end of the stream.
type FrameSource interface {
	Read(frame *gocv.Mat) bool
}

// FaceWarper interface for full-face warping
type FaceWarper interface {
	Warp(src, dst gocv.Mat, srcPts, dstPts landmarks.Set) (*warp.Result, error)
}

// FaceBlender interface for merging a warped face into its frame
type FaceBlender interface {
	Blend(warped, frame, mask gocv.Mat, hull landmarks.Set) (gocv.Mat, error)
	Close()
}

// FrameSink receives every frame the pipeline produces. step counts written
// frames from zero.
type FrameSink func(step int, frame gocv.Mat) error
