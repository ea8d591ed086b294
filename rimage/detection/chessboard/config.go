package chessboard

import (
	"github.com/samber/lo"

	"go.viam.com/birdseye/utils"
)

// Names of the corner finding strategies.
const (
	StrategyGeneric = "generic"
	StrategyQuads   = "quads"
	StrategyOpenCV  = "opencv"
)

// Pattern is the number of inner corners of a chessboard, cols along a row and rows along a column.
type Pattern struct {
	Cols int `json:"cols"`
	Rows int `json:"rows"`
}

// Count is the number of inner corners.
func (p Pattern) Count() int {
	return p.Cols * p.Rows
}

// Validate checks that the pattern has a grid of inner corners.
func (p Pattern) Validate() error {
	if p.Cols < 2 || p.Rows < 2 {
		return utils.NewConfigError("chessboard pattern must have at least 2x2 inner corners, got %dx%d", p.Cols, p.Rows)
	}
	return nil
}

// DetectionConfiguration stores the parameters necessary for chessboard detection in an image.
type DetectionConfiguration struct {
	Strategies   []string            `json:"strategies"`
	MaxAttempts  int                 `json:"max_attempts"`
	RefineWindow int                 `json:"refine_window"`
	Saddle       SaddleConfiguration `json:"saddle"`
	Quads        QuadConfiguration   `json:"quads"`
}

// SaddleConfiguration stores the parameters to process the Hessian determinant image into saddle points.
type SaddleConfiguration struct {
	BlurSigma         float64   `json:"blur_sigma"`
	RelativeThreshold float64   `json:"relative_threshold"` // fraction of the strongest saddle response
	NMSWindowSize     int       `json:"win_size"`           // window size for non-maximum suppression
	RingRadii         []float64 `json:"ring_radii"`
	MinRingContrast   float64   `json:"min_ring_contrast"`
	MergeDistance     float64   `json:"merge_distance"`
}

// QuadConfiguration stores the parameters of the square based detector.
type QuadConfiguration struct {
	ScoreThreshold  float64 `json:"score_threshold"`
	MinAreaFraction float64 `json:"min_area_fraction"`
	MaxAreaFraction float64 `json:"max_area_fraction"`
	MaxSideRatio    float64 `json:"max_side_ratio"`
	MinFillRatio    float64 `json:"min_fill_ratio"`
}

// DefaultDetectionConfiguration returns the detector defaults: the saddle strategy first and the
// square strategy as a fallback.
func DefaultDetectionConfiguration() DetectionConfiguration {
	return DetectionConfiguration{
		Strategies:   []string{StrategyGeneric, StrategyQuads},
		MaxAttempts:  4,
		RefineWindow: 5,
		Saddle: SaddleConfiguration{
			BlurSigma:         1.5,
			RelativeThreshold: 0.1,
			NMSWindowSize:     5,
			RingRadii:         []float64{3, 5},
			MinRingContrast:   20,
			MergeDistance:     3,
		},
		Quads: QuadConfiguration{
			ScoreThreshold:  0.3,
			MinAreaFraction: 1e-4,
			MaxAreaFraction: 0.1,
			MaxSideRatio:    4,
			MinFillRatio:    0.7,
		},
	}
}

// Validate checks the detector settings.
func (cfg *DetectionConfiguration) Validate() error {
	if len(cfg.Strategies) == 0 {
		return utils.NewConfigError("at least one detection strategy is needed")
	}
	if dup := lo.FindDuplicates(cfg.Strategies); len(dup) > 0 {
		return utils.NewConfigError("detection strategies listed twice: %v", dup)
	}
	for _, name := range cfg.Strategies {
		if _, ok := strategies[name]; !ok {
			return utils.NewConfigError("unknown detection strategy %q, available: %v", name, lo.Keys(strategies))
		}
	}
	if cfg.MaxAttempts < 1 {
		return utils.NewConfigError("max_attempts must be positive, got %d", cfg.MaxAttempts)
	}
	if cfg.RefineWindow < 1 {
		return utils.NewConfigError("refine_window must be positive, got %d", cfg.RefineWindow)
	}
	if cfg.Saddle.BlurSigma < 0 || cfg.Saddle.RelativeThreshold <= 0 || cfg.Saddle.RelativeThreshold >= 1 {
		return utils.NewConfigError("bad saddle settings %+v", cfg.Saddle)
	}
	if cfg.Saddle.NMSWindowSize < 1 || len(cfg.Saddle.RingRadii) == 0 {
		return utils.NewConfigError("bad saddle settings %+v", cfg.Saddle)
	}
	if cfg.Quads.ScoreThreshold <= 0 || cfg.Quads.MinAreaFraction <= 0 || cfg.Quads.MaxAreaFraction <= cfg.Quads.MinAreaFraction {
		return utils.NewConfigError("bad quad settings %+v", cfg.Quads)
	}
	if cfg.Quads.MaxSideRatio < 1 {
		return utils.NewConfigError("max_side_ratio must be at least 1, got %v", cfg.Quads.MaxSideRatio)
	}
	return nil
}
