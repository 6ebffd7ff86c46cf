// Package pipeline runs the detect, warp and blend stages over frames.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gocv.io/x/gocv"

	"github.com/dudu/facewarp/internal/detector"
	"github.com/dudu/facewarp/internal/landmarks"
	"github.com/dudu/facewarp/internal/logger"
	"github.com/dudu/facewarp/internal/warp"
)

var (
	// ErrNoSource is returned when Process runs before SetSource.
	ErrNoSource = errors.New("pipeline: source face not set")
	// ErrNoDetector is returned when landmarks are needed but no detector is configured.
	ErrNoDetector = errors.New("pipeline: no landmark detector")
	// ErrTooManySkips is returned by Run when too many frames in a row had no usable face.
	ErrTooManySkips = errors.New("pipeline: too many consecutive skipped frames")
)

// Config holds pipeline configuration
type Config struct {
	MaxConsecutiveSkips int           // 0 disables the guard
	FrameTimeout        time.Duration // slower frames are logged; 0 disables
}

// Timing holds performance timing information
type Timing struct {
	Detection time.Duration
	Warp      time.Duration
	Blend     time.Duration
	Total     time.Duration
}

// Status classifies the outcome of one frame
type Status int

const (
	StatusOK    Status = iota
	StatusSkip         // no usable face, move on to the next frame
	StatusFatal        // stop processing
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusSkip:
		return "skip"
	case StatusFatal:
		return "fatal"
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// Outcome is the result of processing one frame
type Outcome struct {
	Status Status
	Output gocv.Mat     // blended frame, set when Status is StatusOK
	Warp   *warp.Result // nil unless the warp succeeded
	Err    error
	Timing Timing
}

// Close releases the outcome's mats
func (o *Outcome) Close() {
	if o.Status == StatusOK {
		o.Output.Close()
	}
	if o.Warp != nil {
		o.Warp.Close()
		o.Warp = nil
	}
}

// Stats summarises a Run
type Stats struct {
	Frames  int // frames read
	Written int // frames passed to the sink
	Skipped int // frames without a usable face
}

// Classify maps a processing error to a Status. Missing faces and degenerate
// triangulations skip the frame; everything else is fatal.
func Classify(err error) Status {
	switch {
	case err == nil:
		return StatusOK
	case errors.Is(err, detector.ErrNoFace),
		errors.Is(err, warp.ErrDetectionMissing),
		errors.Is(err, warp.ErrTriangulationEmpty),
		errors.Is(err, landmarks.ErrEmpty):
		return StatusSkip
	}
	return StatusFatal
}

// Pipeline orchestrates the face warp process
type Pipeline struct {
	config     Config
	detector   LandmarkDetector
	warper     FaceWarper
	blender    FaceBlender
	source     gocv.Mat
	sourcePts  landmarks.Set
	hasSource  bool
	lastTiming Timing
	log        *zap.Logger
}

// New creates a pipeline. det may be nil when every call supplies its own
// landmarks; blender may be nil to emit the raw warp.
func New(config Config, det LandmarkDetector, warper FaceWarper, blender FaceBlender) *Pipeline {
	return &Pipeline{
		config:   config,
		detector: det,
		warper:   warper,
		blender:  blender,
		log:      logger.Named("pipeline"),
	}
}

// SetSource fixes the face that is warped onto every frame. When pts is nil
// the detector supplies them.
func (p *Pipeline) SetSource(img gocv.Mat, pts landmarks.Set) error {
	if img.Empty() {
		return warp.ErrEmptyImage
	}
	if pts == nil {
		var err error
		if pts, err = p.detect(img); err != nil {
			return fmt.Errorf("source face: %w", err)
		}
	}
	if err := pts.Validate(); err != nil {
		return fmt.Errorf("source face: %w", err)
	}

	if p.hasSource {
		p.source.Close()
	}
	p.source = img.Clone()
	p.sourcePts = pts.Clone()
	p.hasSource = true

	p.log.Info("source face set",
		zap.Int("landmarks", len(pts)),
		zap.Int("width", img.Cols()),
		zap.Int("height", img.Rows()),
	)
	return nil
}

// SourceLandmarks returns the landmarks of the source face
func (p *Pipeline) SourceLandmarks() landmarks.Set {
	return p.sourcePts
}

func (p *Pipeline) detect(img gocv.Mat) (landmarks.Set, error) {
	if p.detector == nil {
		return nil, ErrNoDetector
	}
	return p.detector.Detect(img)
}

// Process warps the source face onto frame. When pts is nil the detector
// supplies the frame's landmarks. The caller closes the outcome.
func (p *Pipeline) Process(frame gocv.Mat, pts landmarks.Set) Outcome {
	totalStart := time.Now()
	var timing Timing

	fail := func(err error) Outcome {
		timing.Total = time.Since(totalStart)
		p.lastTiming = timing
		return Outcome{Status: Classify(err), Err: err, Timing: timing}
	}

	if !p.hasSource {
		return fail(ErrNoSource)
	}

	if pts == nil {
		detectStart := time.Now()
		var err error
		pts, err = p.detect(frame)
		timing.Detection = time.Since(detectStart)
		if err != nil {
			return fail(fmt.Errorf("detection failed: %w", err))
		}
	}

	warpStart := time.Now()
	result, err := p.warper.Warp(p.source, frame, p.sourcePts, pts)
	timing.Warp = time.Since(warpStart)
	if err != nil {
		return fail(fmt.Errorf("warp failed: %w", err))
	}

	blendStart := time.Now()
	var output gocv.Mat
	if p.blender == nil {
		output = result.Warped.Clone()
	} else {
		output, err = p.blender.Blend(result.Warped, frame, result.Mask, result.DstHull)
		if err != nil {
			result.Close()
			return fail(fmt.Errorf("blend failed: %w", err))
		}
	}
	timing.Blend = time.Since(blendStart)

	timing.Total = time.Since(totalStart)
	p.lastTiming = timing

	return Outcome{Status: StatusOK, Output: output, Warp: result, Timing: timing}
}

// Run processes frames from src until the stream ends or ctx is done,
// handing every produced frame to sink. ctx is checked before every read, so
// cancellation also stops a run of skipped frames.
func (p *Pipeline) Run(ctx context.Context, src FrameSource, sink FrameSink) (Stats, error) {
	var stats Stats
	consecutive := 0

	frame := gocv.NewMat()
	defer frame.Close()

	for {
		if err := ctx.Err(); err != nil {
			p.log.Info("run cancelled", zap.Int("frames", stats.Frames), zap.Int("written", stats.Written))
			return stats, err
		}
		if !src.Read(&frame) {
			break
		}
		stats.Frames++

		out := p.Process(frame, nil)
		if p.config.FrameTimeout > 0 && out.Timing.Total > p.config.FrameTimeout {
			p.log.Warn("slow frame",
				zap.Int("frame", stats.Frames),
				zap.Duration("total", out.Timing.Total),
				zap.Duration("limit", p.config.FrameTimeout),
			)
		}

		switch out.Status {
		case StatusSkip:
			stats.Skipped++
			consecutive++
			p.log.Debug("frame skipped",
				zap.Int("frame", stats.Frames),
				zap.Int("consecutive", consecutive),
				zap.Error(out.Err),
			)
			out.Close()
			if p.config.MaxConsecutiveSkips > 0 && consecutive >= p.config.MaxConsecutiveSkips {
				return stats, fmt.Errorf("%w: %d", ErrTooManySkips, consecutive)
			}
			continue

		case StatusFatal:
			out.Close()
			return stats, fmt.Errorf("frame %d: %w", stats.Frames, out.Err)
		}

		consecutive = 0
		err := sink(stats.Written, out.Output)
		out.Close()
		if err != nil {
			return stats, fmt.Errorf("frame %d: sink: %w", stats.Frames, err)
		}
		stats.Written++
	}

	p.log.Info("stream finished",
		zap.Int("frames", stats.Frames),
		zap.Int("written", stats.Written),
		zap.Int("skipped", stats.Skipped),
	)
	return stats, nil
}

// LastTiming returns timing from last Process call
func (p *Pipeline) LastTiming() Timing {
	return p.lastTiming
}

// Close releases pipeline resources
func (p *Pipeline) Close() error {
	var err error

	if p.detector != nil {
		err = multierr.Append(err, p.detector.Close())
	}
	if p.blender != nil {
		p.blender.Close()
	}
	if p.hasSource {
		err = multierr.Append(err, p.source.Close())
		p.hasSource = false
	}

	return err
}
