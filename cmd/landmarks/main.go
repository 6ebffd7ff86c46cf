package main

import (
	"flag"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/dudu/facewarp/internal/config"
	"github.com/dudu/facewarp/internal/detector"
	"github.com/dudu/facewarp/internal/inference"
	"github.com/dudu/facewarp/internal/landmarks"
	"github.com/dudu/facewarp/internal/logger"
	"github.com/dudu/facewarp/internal/source"
)

type Config struct {
	ConfigPath string
	Images     []string
	OutDir     string
	Native     bool
	LogLevel   string
}

func main() {
	opts := parseFlags()

	if len(opts.Images) == 0 {
		fmt.Fprintln(os.Stderr, "Error: at least one image is required")
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
	flag.StringVar(&opts.OutDir, "out-dir", "", "Directory for point files (default: next to each image)")
	flag.BoolVar(&opts.Native, "native", false, "Detect at the image's own size instead of the configured warp size")
	flag.StringVar(&opts.LogLevel, "log-level", "", "Log level: debug, info, warn or error")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "landmarks - write 68-point landmark files for face images\n\n")
		fmt.Fprintf(os.Stderr, "Usage: landmarks [options] image...\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nEach image.jpg produces image.txt with one \"x y\" line per landmark.\n")
	}

	flag.Parse()
	opts.Images = flag.Args()
	return opts
}

// pointsPath returns the landmark file written for imagePath
func pointsPath(imagePath, outDir string) string {
	name := strings.TrimSuffix(filepath.Base(imagePath), filepath.Ext(imagePath)) + ".txt"
	if outDir == "" {
		outDir = filepath.Dir(imagePath)
	}
	return filepath.Join(outDir, name)
}

func run(opts Config) error {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return err
	}
	if opts.LogLevel != "" {
		cfg.Logging.Level = opts.LogLevel
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	if err := logger.Init(cfg.Logging.Level, cfg.Logging.LogFile); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer logger.Sync()

	if err := inference.Initialize(cfg.Inference.LibraryPath); err != nil {
		return fmt.Errorf("failed to initialize inference: %w", err)
	}
	defer inference.Shutdown()

	det, err := detector.Open(detector.ConfigFrom(cfg))
	if err != nil {
		return err
	}
	defer det.Close()

	if opts.OutDir != "" {
		if err := os.MkdirAll(opts.OutDir, 0755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	size := image.Pt(cfg.Warp.Width, cfg.Warp.Height)
	if opts.Native {
		size = image.Point{}
	}

	failed := 0
	for _, path := range opts.Images {
		if err := extract(det, path, pointsPath(path, opts.OutDir), size); err != nil {
			logger.Error("landmark extraction failed", zap.String("image", path), zap.Error(err))
			failed++
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d images failed", failed, len(opts.Images))
	}
	return nil
}

func extract(det *detector.Landmarker, imagePath, outPath string, size image.Point) error {
	img, _, err := source.LoadImage(imagePath, size)
	if err != nil {
		return err
	}
	defer img.Close()

	pts, err := det.Detect(img)
	if err != nil {
		return err
	}

	if err := landmarks.WriteFile(outPath, pts); err != nil {
		return err
	}

	logger.Info("landmarks written",
		zap.String("image", imagePath),
		zap.String("points", outPath),
		zap.Int("count", len(pts)),
		zap.Stringer("bounds", pts.Bounds()),
	)
	return nil
}
