package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/dudu/facewarp/internal/config"
	"github.com/dudu/facewarp/internal/detector"
	"github.com/dudu/facewarp/internal/extract"
	"github.com/dudu/facewarp/internal/logger"
	"github.com/dudu/facewarp/internal/source"
)

type Config struct {
	ConfigPath   string
	Video        string
	FacePattern  string
	FramePattern string
	InfoPattern  string
	MinSize      int
	LogLevel     string
}

func main() {
	opts := parseFlags()

	if opts.Video == "" {
		fmt.Fprintln(os.Stderr, "Error: --video flag is required")
		flag.Usage()
		os.Exit(1)
	}

	if err := run(opts); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags() Config {
	opts := Config{}

	flag.StringVar(&opts.ConfigPath, "config", "", "Config file (default: ./facewarp.yaml, then the user config dir)")
	flag.StringVar(&opts.Video, "video", "", "Video file or camera index (required)")
	flag.StringVar(&opts.FacePattern, "face-pattern", "", "Face crop path, {step} is the face counter")
	flag.StringVar(&opts.FramePattern, "frame-pattern", "", "Full frame path, {step} is the face counter")
	flag.StringVar(&opts.InfoPattern, "info-pattern", "", "Face box path, {step} is the face counter")
	flag.IntVar(&opts.MinSize, "min-size", -1, "Drop faces whose width or height is at most this many pixels")
	flag.StringVar(&opts.LogLevel, "log-level", "", "Log level: debug, info, warn or error")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "faces - cut the detected face out of every video frame\n\n")
		fmt.Fprintf(os.Stderr, "Usage: faces [options] --video clip.mp4\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nEvery stored face writes a crop, its frame and an \"x y w h\" info file.\n")
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

	if opts.FacePattern != "" {
		cfg.Extract.FacePattern = opts.FacePattern
	}
	if opts.FramePattern != "" {
		cfg.Extract.FramePattern = opts.FramePattern
	}
	if opts.InfoPattern != "" {
		cfg.Extract.InfoPattern = opts.InfoPattern
	}
	if opts.MinSize >= 0 {
		cfg.Extract.MinFaceSize = opts.MinSize
	}
	if opts.LogLevel != "" {
		cfg.Logging.Level = opts.LogLevel
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

	// Only the face detector is needed, it runs on OpenCV's dnn module
	faces, err := detector.NewYuNet(detector.ConfigFrom(cfg).Face)
	if err != nil {
		return fmt.Errorf("failed to create face detector: %w", err)
	}
	defer faces.Close()

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
		zap.Int("min_face_size", cfg.Extract.MinFaceSize),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stats, err := extract.New(extract.ConfigFrom(cfg), faces).Run(ctx, capture)
	logger.Info("extraction done",
		zap.Int("frames", stats.Frames),
		zap.Int("written", stats.Written),
		zap.Int("no_face", stats.NoFace),
		zap.Int("too_small", stats.TooSmall),
	)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
