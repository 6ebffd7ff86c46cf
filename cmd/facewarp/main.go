package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"image"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"go.uber.org/zap"
	"gocv.io/x/gocv"

	"github.com/dudu/facewarp/internal/blend"
	"github.com/dudu/facewarp/internal/config"
	"github.com/dudu/facewarp/internal/detector"
	"github.com/dudu/facewarp/internal/inference"
	"github.com/dudu/facewarp/internal/landmarks"
	"github.com/dudu/facewarp/internal/logger"
	"github.com/dudu/facewarp/internal/pipeline"
	"github.com/dudu/facewarp/internal/source"
	"github.com/dudu/facewarp/internal/ui"
	"github.com/dudu/facewarp/internal/warp"
)

func init() {
	// OpenCV's highgui needs the main OS thread on macOS
	runtime.LockOSThread()
}

type Config struct {
	ConfigPath   string
	SourceImage  string
	SourcePoints string
	TargetImage  string
	TargetPoints string
	Output       string
	MaskOutput   string
	CompositeOut string
	Video        string
	OutPattern   string
	BlendMode    string
	LogLevel     string
	LogFile      string
	Preview      bool
}

func main() {
	opts := parseFlags()

	if opts.SourceImage == "" {
		fmt.Fprintln(os.Stderr, "Error: --source flag is required")
		flag.Usage()
		os.Exit(1)
	}
	if (opts.TargetImage == "") == (opts.Video == "") {
		fmt.Fprintln(os.Stderr, "Error: exactly one of --target or --video is required")
		flag.Usage()
		os.Exit(1)
	}

	if err := run(opts); err != nil {
		logger.Error("facewarp failed", zap.Error(err))
		logger.Sync()
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags() Config {
	opts := Config{}

	flag.StringVar(&opts.ConfigPath, "config", "", "Config file (default: ./facewarp.yaml, then the user config dir)")
	flag.StringVar(&opts.SourceImage, "source", "", "Source face image (required)")
	flag.StringVar(&opts.SourceImage, "s", "", "Source face image (shorthand)")
	flag.StringVar(&opts.SourcePoints, "source-points", "", "Landmark file for the source image (default: detect)")
	flag.StringVar(&opts.TargetImage, "target", "", "Destination image")
	flag.StringVar(&opts.TargetImage, "t", "", "Destination image (shorthand)")
	flag.StringVar(&opts.TargetPoints, "target-points", "", "Landmark file for the destination image (default: detect)")
	flag.StringVar(&opts.Output, "out", "warped.jpg", "Blended output image")
	flag.StringVar(&opts.MaskOutput, "mask-out", "", "Write the hull mask to this file")
	flag.StringVar(&opts.CompositeOut, "composite-out", "", "Write the warped face restricted to the hull to this file")
	flag.StringVar(&opts.Video, "video", "", "Destination video file or camera index")
	flag.StringVar(&opts.OutPattern, "out-pattern", "", "Per-frame output path, {step} is the frame counter")
	flag.StringVar(&opts.BlendMode, "blend", "", "Blend mode: seamless, feather or none")
	flag.StringVar(&opts.LogLevel, "log-level", "", "Log level: debug, info, warn or error")
	flag.StringVar(&opts.LogFile, "log-file", "", "Also write JSON logs to this file")
	flag.BoolVar(&opts.Preview, "preview", false, "Show preview window")
	flag.BoolVar(&opts.Preview, "p", false, "Show preview window (shorthand)")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "facewarp - warp one face onto another along its landmarks\n\n")
		fmt.Fprintf(os.Stderr, "Usage: facewarp [options]\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  facewarp --source a.jpg --target b.jpg --out ab.jpg\n")
		fmt.Fprintf(os.Stderr, "  facewarp --source a.jpg --source-points a.txt --target b.jpg --target-points b.txt\n")
		fmt.Fprintf(os.Stderr, "  facewarp --source a.jpg --video clip.mp4 --out-pattern out/face{step}.jpg\n")
	}

	flag.Parse()
	return opts
}

// loadConfig applies flag overrides on top of the loaded configuration
func loadConfig(opts Config) (*config.Config, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, err
	}

	if opts.OutPattern != "" {
		cfg.Video.OutputPattern = opts.OutPattern
	}
	if opts.BlendMode != "" {
		cfg.Blend.Mode = opts.BlendMode
	}
	if opts.LogLevel != "" {
		cfg.Logging.Level = opts.LogLevel
	}
	if opts.LogFile != "" {
		cfg.Logging.LogFile = opts.LogFile
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func run(opts Config) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}

	if err := logger.Init(cfg.Logging.Level, cfg.Logging.LogFile); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer logger.Sync()

	// The detector is only loaded when some landmarks have to be found
	needDetector := opts.SourcePoints == "" || opts.Video != "" || opts.TargetPoints == ""
	var det pipeline.LandmarkDetector
	if needDetector {
		if err := inference.Initialize(cfg.Inference.LibraryPath); err != nil {
			return fmt.Errorf("failed to initialize inference: %w", err)
		}
		defer inference.Shutdown()

		logger.Info("loading models",
			zap.String("face_detector", cfg.Models.FaceDetector),
			zap.String("landmarks", cfg.Models.Landmarks),
			zap.String("provider", cfg.Inference.Provider),
		)
		l, err := detector.Open(detector.ConfigFrom(cfg))
		if err != nil {
			return err
		}
		det = l
	}

	mode, err := blend.ParseMode(cfg.Blend.Mode)
	if err != nil {
		return err
	}

	p := pipeline.New(
		pipeline.Config{
			MaxConsecutiveSkips: cfg.Video.MaxConsecutiveSkips,
			FrameTimeout:        cfg.Video.FrameTimeout,
		},
		det,
		warp.NewWarper(cfg.Warp.Tolerance),
		blend.NewBlender(mode, cfg.Blend.BlurSize, cfg.Blend.ColorTransfer),
	)
	defer p.Close()

	// Still images are warped at the configured size, video frames at their own
	size := image.Pt(cfg.Warp.Width, cfg.Warp.Height)
	if opts.Video != "" {
		size = image.Point{}
	}

	src, srcPts, err := loadFace(opts.SourceImage, opts.SourcePoints, size)
	if err != nil {
		return fmt.Errorf("source: %w", err)
	}
	defer src.Close()

	if err := p.SetSource(src, srcPts); err != nil {
		return err
	}

	if opts.Video != "" {
		return runVideo(p, cfg, opts)
	}
	return runImage(p, cfg, opts, size)
}

// loadFace reads an image and, when pointsPath is set, its landmark file.
// The landmarks are rescaled along with the image.
func loadFace(imagePath, pointsPath string, size image.Point) (gocv.Mat, landmarks.Set, error) {
	img, orig, err := source.LoadImage(imagePath, size)
	if err != nil {
		return img, nil, err
	}
	if pointsPath == "" {
		return img, nil, nil
	}

	pts, err := landmarks.ReadFile(pointsPath)
	if err != nil {
		img.Close()
		return gocv.NewMat(), nil, err
	}
	return img, source.ScalePoints(pts, orig, image.Pt(img.Cols(), img.Rows())), nil
}

func runImage(p *pipeline.Pipeline, cfg *config.Config, opts Config, size image.Point) error {
	dst, dstPts, err := loadFace(opts.TargetImage, opts.TargetPoints, size)
	if err != nil {
		return fmt.Errorf("target: %w", err)
	}
	defer dst.Close()

	out := p.Process(dst, dstPts)
	defer out.Close()
	if out.Status != pipeline.StatusOK {
		// A single image has no next frame to fall back on
		return out.Err
	}

	timing := out.Timing
	logger.Info("face warped",
		zap.Int("triangles", len(out.Warp.Triangles)),
		zap.Int("skipped_triangles", out.Warp.Skipped),
		zap.Int("hull", len(out.Warp.HullIndices)),
		zap.Duration("detection", timing.Detection),
		zap.Duration("warp", timing.Warp),
		zap.Duration("blend", timing.Blend),
		zap.String("blend_mode", cfg.Blend.Mode),
	)

	writes := []struct {
		path string
		img  gocv.Mat
	}{
		{opts.Output, out.Output},
		{opts.MaskOutput, out.Warp.Mask},
		{opts.CompositeOut, out.Warp.Composite},
	}
	for _, w := range writes {
		if w.path == "" {
			continue
		}
		if err := source.SaveImage(w.path, w.img); err != nil {
			return err
		}
		logger.Info("image written", zap.String("path", w.path))
	}

	if opts.Preview {
		window := ui.NewWindow("facewarp", image.Pt(out.Output.Cols(), out.Output.Rows()))
		defer window.Close()
		window.Show(out.Output, "any key to close")
		window.WaitKey(0)
	}
	return nil
}

func runVideo(p *pipeline.Pipeline, cfg *config.Config, opts Config) error {
	capture, err := source.Open(opts.Video)
	if err != nil {
		return err
	}
	defer capture.Close()

	logger.Info("video opened",
		zap.String("uri", capture.URI()),
		zap.Int("width", capture.Width()),
		zap.Int("height", capture.Height()),
		zap.Int("frames", capture.FrameCount()),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var frames pipeline.FrameSource = capture
	var window *ui.Window
	if opts.Preview {
		window = ui.NewWindow("facewarp", image.Pt(capture.Width(), capture.Height()))
		defer window.Close()
		frames = &previewSource{FrameSource: capture, window: window, stop: stop}
	}

	sink := func(step int, frame gocv.Mat) error {
		if err := source.SaveImage(config.StepPath(cfg.Video.OutputPattern, step), frame); err != nil {
			return err
		}
		if window != nil {
			timing := p.LastTiming()
			window.Show(frame, fmt.Sprintf("frame %d  W:%dms B:%dms", step,
				timing.Warp.Milliseconds(), timing.Blend.Milliseconds()))
		}
		return nil
	}

	stats, err := p.Run(ctx, frames, sink)
	logger.Info("video done",
		zap.Int("frames", stats.Frames),
		zap.Int("written", stats.Written),
		zap.Int("skipped", stats.Skipped),
	)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// previewSource polls the preview window before every read, including reads
// of frames that end up skipped, and stops the run when quit is pressed.
type previewSource struct {
	pipeline.FrameSource
	window *ui.Window
	stop   context.CancelFunc
}

func (s *previewSource) Read(frame *gocv.Mat) bool {
	if s.window.QuitRequested() {
		s.stop()
		return false
	}
	return s.FrameSource.Read(frame)
}
