// Package config handles facewarp configuration loading and validation.
package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// StepPlaceholder is replaced by the frame counter in output patterns.
const StepPlaceholder = "{step}"

// Config holds all facewarp settings.
type Config struct {
	Models    ModelsConfig    `yaml:"models"`
	Inference InferenceConfig `yaml:"inference"`
	Detection DetectionConfig `yaml:"detection"`
	Warp      WarpConfig      `yaml:"warp"`
	Blend     BlendConfig     `yaml:"blend"`
	Video     VideoConfig     `yaml:"video"`
	Extract   ExtractConfig   `yaml:"extract"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ModelsConfig holds model file paths.
type ModelsConfig struct {
	FaceDetector string `yaml:"face_detector"` // YuNet ONNX model
	Landmarks    string `yaml:"landmarks"`     // 68-point landmark ONNX model
}

// InferenceConfig holds onnxruntime settings.
type InferenceConfig struct {
	LibraryPath string `yaml:"library_path"`
	Provider    string `yaml:"provider"` // cpu or coreml
}

// DetectionConfig holds face and landmark detection settings.
type DetectionConfig struct {
	ScoreThreshold    float32 `yaml:"score_threshold"`
	NMSThreshold      float32 `yaml:"nms_threshold"`
	TopK              int     `yaml:"top_k"`
	LandmarkInputSize int     `yaml:"landmark_input_size"`
	CropScale         float32 `yaml:"crop_scale"` // face box expansion before landmark regression
}

// WarpConfig holds face warping settings.
type WarpConfig struct {
	// Width and Height resize both images before warping; 0 keeps the original size.
	Width     int     `yaml:"width"`
	Height    int     `yaml:"height"`
	Tolerance float64 `yaml:"tolerance"`
}

// BlendConfig holds settings for blending the warped face into the frame.
type BlendConfig struct {
	Mode          string `yaml:"mode"` // seamless, feather or none
	BlurSize      int    `yaml:"blur_size"`
	ColorTransfer bool   `yaml:"color_transfer"`
}

// VideoConfig holds per-frame processing settings.
type VideoConfig struct {
	OutputPattern       string        `yaml:"output_pattern"` // "{step}" is replaced by the frame counter
	MaxConsecutiveSkips int           `yaml:"max_consecutive_skips"`
	FrameTimeout        time.Duration `yaml:"frame_timeout"` // 0 disables the per-frame budget warning
}

// ExtractConfig holds settings for cutting face crops out of a video.
type ExtractConfig struct {
	MinFaceSize  int    `yaml:"min_face_size"` // boxes this wide or high, or smaller, are dropped
	FacePattern  string `yaml:"face_pattern"`
	FramePattern string `yaml:"frame_pattern"`
	InfoPattern  string `yaml:"info_pattern"` // "x y w h" of the face box
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level   string `yaml:"level"`
	LogFile string `yaml:"log_file"`
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Models: ModelsConfig{
			FaceDetector: "models/face_detection_yunet_2023mar.onnx",
			Landmarks:    "models/landmarks_68.onnx",
		},
		Inference: InferenceConfig{
			LibraryPath: "",
			Provider:    "cpu",
		},
		Detection: DetectionConfig{
			ScoreThreshold:    0.8,
			NMSThreshold:      0.3,
			TopK:              50,
			LandmarkInputSize: 112,
			CropScale:         1.2,
		},
		Warp: WarpConfig{
			Width:     300,
			Height:    300,
			Tolerance: 1.0,
		},
		Blend: BlendConfig{
			Mode:          "seamless",
			BlurSize:      15,
			ColorTransfer: false,
		},
		Video: VideoConfig{
			OutputPattern:       "out/face{step}.jpg",
			MaxConsecutiveSkips: 300,
		},
		Extract: ExtractConfig{
			MinFaceSize:  100,
			FacePattern:  "faces/face{step}.jpg",
			FramePattern: "frames/frame{step}.jpg",
			InfoPattern:  "info/info{step}.txt",
		},
		Logging: LoggingConfig{
			Level:   "info",
			LogFile: "",
		},
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.Warp.Width < 0 || c.Warp.Height < 0 {
		return fmt.Errorf("warp size must not be negative, got %dx%d", c.Warp.Width, c.Warp.Height)
	}
	if (c.Warp.Width == 0) != (c.Warp.Height == 0) {
		return fmt.Errorf("warp width and height must both be set or both be 0")
	}
	if c.Warp.Tolerance <= 0 {
		return fmt.Errorf("warp tolerance must be positive, got %v", c.Warp.Tolerance)
	}

	switch c.Blend.Mode {
	case "seamless", "feather", "none":
	default:
		return fmt.Errorf("unknown blend mode %q (use seamless, feather or none)", c.Blend.Mode)
	}
	if c.Blend.BlurSize < 0 {
		return fmt.Errorf("blur size must not be negative, got %d", c.Blend.BlurSize)
	}

	switch c.Inference.Provider {
	case "cpu", "coreml":
	default:
		return fmt.Errorf("unknown inference provider %q (use cpu or coreml)", c.Inference.Provider)
	}

	if c.Detection.ScoreThreshold < 0 || c.Detection.ScoreThreshold > 1 {
		return fmt.Errorf("score threshold must be in [0,1], got %v", c.Detection.ScoreThreshold)
	}
	if c.Detection.LandmarkInputSize <= 0 {
		return fmt.Errorf("landmark input size must be positive, got %d", c.Detection.LandmarkInputSize)
	}
	if c.Detection.CropScale < 1 {
		return fmt.Errorf("crop scale must be at least 1, got %v", c.Detection.CropScale)
	}

	if c.Video.MaxConsecutiveSkips < 0 {
		return fmt.Errorf("max consecutive skips must not be negative, got %d", c.Video.MaxConsecutiveSkips)
	}

	patterns := []struct{ name, value string }{
		{"video output pattern", c.Video.OutputPattern},
		{"extract face pattern", c.Extract.FacePattern},
		{"extract frame pattern", c.Extract.FramePattern},
		{"extract info pattern", c.Extract.InfoPattern},
	}
	for _, p := range patterns {
		if err := CheckStepPattern(p.value); err != nil {
			return fmt.Errorf("%s: %w", p.name, err)
		}
	}
	if c.Extract.MinFaceSize < 0 {
		return fmt.Errorf("min face size must not be negative, got %d", c.Extract.MinFaceSize)
	}
	return nil
}

// CheckStepPattern reports whether pattern names a distinct file per frame
func CheckStepPattern(pattern string) error {
	if !strings.Contains(pattern, StepPlaceholder) {
		return fmt.Errorf("pattern %q lacks %s, every frame would overwrite one file", pattern, StepPlaceholder)
	}
	return nil
}

// StepPath substitutes the frame counter into pattern
func StepPath(pattern string, step int) string {
	return strings.ReplaceAll(pattern, StepPlaceholder, strconv.Itoa(step))
}
