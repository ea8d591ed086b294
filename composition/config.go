// Package composition renders the bird's-eye canvas from four synchronized camera frames using a
// calibration snapshot: remapping, coverage weighted blending, tone balancing and an optional
// gradient domain seam blend.
package composition

import (
	"time"

	"go.viam.com/birdseye/utils"
)

// Source selects how canvas pixels are traced back to camera pixels.
type Source string

// Remap sources.
const (
	// SourceHomography goes through the inverse homography and the undistortion camera.
	SourceHomography Source = "homography"
	// SourceExtrinsic projects the metric ground point with the camera pose.
	SourceExtrinsic Source = "extrinsic"
)

// Config tunes composition. It is independent of the calibration config, which the snapshot
// carries.
type Config struct {
	Source   Source `json:"source"`
	Channels int    `json:"channels"` // 1 for luma, 3 for RGB

	ToneBalance      bool    `json:"tone_balance"`
	ToneLambda       float64 `json:"tone_lambda"`        // pull of every gain towards 1
	MinOverlapPixels int     `json:"min_overlap_pixels"` // smaller overlaps are ignored by tone balancing

	Poisson       bool    `json:"poisson"`
	PoissonLambda float64 `json:"poisson_lambda"` // screening term added to the eigenvalues

	SlowFrame time.Duration `json:"slow_frame"` // frames slower than this are logged
}

// DefaultConfig returns weighted blending with tone balancing and without the seam blend.
func DefaultConfig() Config {
	return Config{
		Source:           SourceHomography,
		Channels:         3,
		ToneBalance:      true,
		ToneLambda:       0.01,
		MinOverlapPixels: 100,
		Poisson:          false,
		PoissonLambda:    0,
		SlowFrame:        50 * time.Millisecond,
	}
}

// Validate ensures all parts of the config are valid.
func (cfg *Config) Validate() error {
	switch cfg.Source {
	case SourceHomography, SourceExtrinsic:
	default:
		return utils.NewConfigError("unknown remap source %q", cfg.Source)
	}
	if cfg.Channels != 1 && cfg.Channels != 3 {
		return utils.NewConfigError("channels must be 1 or 3, got %d", cfg.Channels)
	}
	if cfg.ToneLambda <= 0 {
		return utils.NewConfigError("tone_lambda must be positive, got %g", cfg.ToneLambda)
	}
	if cfg.MinOverlapPixels < 1 {
		return utils.NewConfigError("min_overlap_pixels must be positive, got %d", cfg.MinOverlapPixels)
	}
	if cfg.PoissonLambda < 0 {
		return utils.NewConfigError("poisson_lambda cannot be negative, got %g", cfg.PoissonLambda)
	}
	return nil
}
