package detector

import (
	"github.com/dudu/facewarp/internal/config"
	"github.com/dudu/facewarp/internal/inference"
)

// ConfigFrom builds a Landmarker configuration from the application settings
func ConfigFrom(cfg *config.Config) Config {
	return Config{
		Face: YuNetConfig{
			ModelPath:      cfg.Models.FaceDetector,
			ScoreThreshold: cfg.Detection.ScoreThreshold,
			NMSThreshold:   cfg.Detection.NMSThreshold,
			TopK:           cfg.Detection.TopK,
		},
		Landmarks: Landmark68Config{
			ModelPath: cfg.Models.Landmarks,
			InputSize: cfg.Detection.LandmarkInputSize,
			CropScale: cfg.Detection.CropScale,
			Provider:  inference.Provider(cfg.Inference.Provider),
		},
	}
}
