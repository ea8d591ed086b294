// Package calibration computes the ground-plane homographies and camera poses of the four-camera
// rig from one synchronized frame per camera showing a chessboard on the ground.
package calibration

import (
	"bytes"
	"encoding/json"
	"image"
	"io"

	"github.com/a8m/envsubst"
	"github.com/go-viper/mapstructure/v2"

	"go.viam.com/birdseye/rimage/detection/chessboard"
	"go.viam.com/birdseye/utils"
)

// Config holds every setting of a calibration session. It is passed by value at construction so
// sessions for different vehicles can coexist.
type Config struct {
	Pattern       chessboard.Pattern `json:"chessboard"`
	CanvasWidth   int                `json:"canvas_width"`
	CanvasHeight  int                `json:"canvas_height"`
	VehicleWidth  float64            `json:"vehicle_width"`  // meters, left to right
	VehicleLength float64            `json:"vehicle_length"` // meters, front to rear
	ViewRange     float64            `json:"view_range"`     // meters visible beside the vehicle

	// LeftRightToFront is how far behind the front edge of the vehicle the side boards are centred.
	LeftRightToFront float64 `json:"left_right_to_front"`
	SquareSize       float64 `json:"square_size"`
	BoardGap         float64 `json:"board_gap"` // distance between the vehicle and the nearest inner corner row

	UndistortFocalScale float64 `json:"undistort_focal_scale"`

	AcceptEpsilon    float64 `json:"accept_epsilon"` // max canvas px error per corner after refinement
	MaxRMS           float64 `json:"max_rms"`        // max RMS reprojection error in source px
	CrossCamera      bool    `json:"cross_camera"`
	CrossWeight      float64 `json:"cross_weight"`
	RefineIntrinsics bool    `json:"refine_intrinsics"`

	Solver   SolverConfig                      `json:"solver"`
	Detector chessboard.DetectionConfiguration `json:"detector"`
}

// DefaultConfig returns the configuration of the reference vehicle.
func DefaultConfig() Config {
	return Config{
		Pattern:             chessboard.Pattern{Cols: 6, Rows: 4},
		CanvasWidth:         600,
		CanvasHeight:        600,
		VehicleWidth:        2.193,
		VehicleLength:       5.117,
		ViewRange:           20,
		LeftRightToFront:    1.5,
		SquareSize:          0.5,
		BoardGap:            0.5,
		UndistortFocalScale: 0.5,
		// exact corners reproduce within 1e-2 px; 1.5 px admits 3 sigma of 0.5 px detection noise
		AcceptEpsilon:       1.5,
		MaxRMS:              1.0,
		CrossCamera:         false,
		CrossWeight:         1.0,
		Solver:              DefaultSolverConfig(),
		Detector:            chessboard.DefaultDetectionConfiguration(),
	}
}

// CanvasSize returns the output canvas size.
func (cfg *Config) CanvasSize() image.Point {
	return image.Pt(cfg.CanvasWidth, cfg.CanvasHeight)
}

// Validate ensures all parts of the config are valid.
func (cfg *Config) Validate() error {
	if err := cfg.Pattern.Validate(); err != nil {
		return err
	}
	if cfg.CanvasWidth <= 0 || cfg.CanvasHeight <= 0 {
		return utils.NewConfigError("canvas size must be positive, got %dx%d", cfg.CanvasWidth, cfg.CanvasHeight)
	}
	if cfg.VehicleWidth <= 0 || cfg.VehicleLength <= 0 {
		return utils.NewConfigError("vehicle footprint must be positive, got %gx%g", cfg.VehicleWidth, cfg.VehicleLength)
	}
	if cfg.ViewRange <= 0 {
		return utils.NewConfigError("view_range must be positive, got %g", cfg.ViewRange)
	}
	if cfg.SquareSize <= 0 {
		return utils.NewConfigError("square_size must be positive, got %g", cfg.SquareSize)
	}
	if cfg.BoardGap < 0 {
		return utils.NewConfigError("board_gap cannot be negative, got %g", cfg.BoardGap)
	}
	if cfg.UndistortFocalScale <= 0 {
		return utils.NewConfigError("undistort_focal_scale must be positive, got %g", cfg.UndistortFocalScale)
	}
	if cfg.AcceptEpsilon <= 0 || cfg.MaxRMS <= 0 {
		return utils.NewConfigError("accept_epsilon and max_rms must be positive")
	}
	if cfg.CrossCamera && cfg.CrossWeight <= 0 {
		return utils.NewConfigError("cross_weight must be positive when cross_camera is set")
	}
	if err := cfg.Solver.Validate(); err != nil {
		return err
	}
	return cfg.Detector.Validate()
}

// ReadConfig reads a JSON config from r on top of the defaults. Unknown keys are rejected.
func ReadConfig(r io.Reader) (Config, error) {
	cfg := DefaultConfig()
	var raw map[string]interface{}
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return cfg, utils.WrapConfigError(err, "cannot parse config")
	}
	if err := decodeStrict(raw, &cfg); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

// LoadConfig reads a config file, substituting ${ENV} references first.
func LoadConfig(path string) (Config, error) {
	buf, err := envsubst.ReadFile(path)
	if err != nil {
		return Config{}, utils.WrapConfigError(err, "cannot read config")
	}
	return ReadConfig(bytes.NewReader(buf))
}

// decodeStrict decodes generic JSON into out using the json tags and fails on unknown keys.
func decodeStrict(raw interface{}, out interface{}) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:     "json",
		Result:      out,
		ErrorUnused: true,
		ZeroFields:  true,
		DecodeHook:  mapstructure.TextUnmarshallerHookFunc(),
	})
	if err != nil {
		return err
	}
	if err := decoder.Decode(raw); err != nil {
		return utils.WrapConfigError(err, "bad config")
	}
	return nil
}
