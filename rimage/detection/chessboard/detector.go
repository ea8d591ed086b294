// Package chessboard finds the ordered inner corners of a chessboard calibration target.
package chessboard

import (
	"context"

	"github.com/golang/geo/r2"
	"go.uber.org/multierr"

	"go.viam.com/birdseye/logging"
	"go.viam.com/birdseye/rimage"
	"go.viam.com/birdseye/utils"
)

// Strategy finds the unordered inner corners of a chessboard in a gray image.
type Strategy interface {
	Name() string
	FindCorners(ctx context.Context, gray *rimage.FloatImage, pattern Pattern, cfg *DetectionConfiguration) ([]r2.Point, error)
}

var strategies = map[string]Strategy{}

func registerStrategy(s Strategy) {
	strategies[s.Name()] = s
}

// Detector runs the configured strategies until one of them yields a complete grid.
type Detector struct {
	cfg    DetectionConfiguration
	logger logging.Logger
}

// NewDetector validates the configuration and returns a detector.
func NewDetector(cfg DetectionConfiguration, logger logging.Logger) (*Detector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Detector{cfg: cfg, logger: logger}, nil
}

// Detect returns the pattern's inner corners in row-major order, as defined by OrderGrid. Attempt k
// runs strategy k modulo the number of strategies; every full round widens the blur. tag names the
// image in logs.
func (d *Detector) Detect(ctx context.Context, img *rimage.FloatImage, pattern Pattern, tag string) ([]r2.Point, error) {
	if err := pattern.Validate(); err != nil {
		return nil, err
	}
	gray := img
	if img.Channels() != 1 {
		gray = img.Luminance()
	}
	var errs error
	for attempt := 0; attempt < d.cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		strategy := strategies[d.cfg.Strategies[attempt%len(d.cfg.Strategies)]]
		cfg := d.cfg
		cfg.Saddle.BlurSigma *= 1 + 0.5*float64(attempt/len(d.cfg.Strategies))

		pts, err := strategy.FindCorners(ctx, gray, pattern, &cfg)
		if err == nil {
			pts, err = OrderGrid(pts, pattern)
		}
		if err == nil {
			d.logger.Debugw("chessboard found", "image", tag, "strategy", strategy.Name(), "attempt", attempt)
			return pts, nil
		}
		d.logger.Debugw("chessboard attempt failed", "image", tag, "strategy", strategy.Name(), "attempt", attempt, "error", err)
		errs = multierr.Append(errs, err)
	}
	return nil, utils.NewDetectionFailure("%s: no %dx%d chessboard after %d attempts: %v",
		tag, pattern.Cols, pattern.Rows, d.cfg.MaxAttempts, errs)
}
