package calibration

import (
	"context"
	"image"
	"time"

	"github.com/golang/geo/r2"
	"github.com/google/uuid"
	"github.com/montanaflynn/stats"
	"github.com/pkg/errors"

	"go.viam.com/birdseye/logging"
	"go.viam.com/birdseye/rig"
	"go.viam.com/birdseye/rimage"
	"go.viam.com/birdseye/rimage/detection/chessboard"
	"go.viam.com/birdseye/rimage/transform"
	"go.viam.com/birdseye/utils"
)

// Calibrator turns one frame per camera into a Snapshot. It holds no calibration state of its own:
// every run either returns a complete new Snapshot or an error.
type Calibrator struct {
	cfg        Config
	intrinsics RigIntrinsics
	layout     *Layout
	detector   *chessboard.Detector
	logger     logging.Logger
}

// NewCalibrator validates the config and the intrinsics.
func NewCalibrator(cfg Config, intrinsics RigIntrinsics, logger logging.Logger) (*Calibrator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	for _, pos := range rig.Positions {
		if err := intrinsics[pos].CheckValid(); err != nil {
			return nil, errors.Wrapf(err, "%s camera", pos)
		}
	}
	detector, err := chessboard.NewDetector(cfg.Detector, logger.Sublogger("detector"))
	if err != nil {
		return nil, err
	}
	return &Calibrator{
		cfg:        cfg,
		intrinsics: intrinsics,
		layout:     NewLayout(cfg),
		detector:   detector,
		logger:     logger,
	}, nil
}

// Layout returns the ground layout the calibrator targets.
func (c *Calibrator) Layout() *Layout {
	return c.layout
}

// Cameras returns the camera parameters for frames of the given sizes.
func (c *Calibrator) Cameras(sizes [rig.NumCameras]image.Point) (RigIntrinsics, error) {
	var out RigIntrinsics
	for _, pos := range rig.Positions {
		cam, err := c.intrinsics[pos].ScaledTo(sizes[pos])
		if err != nil {
			return out, errors.Wrapf(err, "%s camera", pos)
		}
		out[pos] = cam
	}
	return out, nil
}

// Run detects the chessboard in every frame and calibrates the rig. crossPairs are optional shared
// features between adjacent cameras, in distorted frame pixels; they are used only when the config
// enables cross camera refinement.
func (c *Calibrator) Run(ctx context.Context, frames [rig.NumCameras]image.Image, crossPairs []CrossPair) (*Snapshot, error) {
	var sizes [rig.NumCameras]image.Point
	for _, pos := range rig.Positions {
		if frames[pos] == nil {
			return nil, utils.NewRuntimeMismatch("no frame for the %s camera", pos)
		}
		sizes[pos] = frames[pos].Bounds().Size()
	}
	cams, err := c.Cameras(sizes)
	if err != nil {
		return nil, err
	}

	var obs [rig.NumCameras]*Observation
	work := make([]utils.SimpleFunc, 0, rig.NumCameras)
	for _, pos := range rig.Positions {
		pos := pos
		work = append(work, func(ctx context.Context) error {
			o, err := c.observe(ctx, pos, cams[pos], frames[pos])
			if err != nil {
				return errors.Wrapf(err, "%s camera", pos)
			}
			obs[pos] = o
			return nil
		})
	}
	start := time.Now()
	if err := utils.RunEachInParallel(ctx, work); err != nil {
		return nil, err
	}
	c.logger.Debugw("chessboards detected", "elapsed", time.Since(start))
	return c.Solve(ctx, obs, crossPairs)
}

func (c *Calibrator) observe(ctx context.Context, pos rig.Position, cam *transform.CameraParameters, frame image.Image) (*Observation, error) {
	gray := rimage.ConvertToFloatImage(frame, 1)
	newK := cam.UndistortionIntrinsics(c.cfg.UndistortFocalScale)
	undistorted, err := cam.UndistortImage(ctx, gray, newK)
	if err != nil {
		return nil, err
	}
	corners, err := c.detector.Detect(ctx, undistorted, c.cfg.Pattern, pos.String())
	if err != nil {
		return nil, err
	}
	return NewObservationFromUndistorted(pos, cam, newK, corners, c.layout)
}

// Solve calibrates the rig from observations that already hold the ordered corners.
func (c *Calibrator) Solve(ctx context.Context, obs [rig.NumCameras]*Observation, crossPairs []CrossPair) (*Snapshot, error) {
	var cams [rig.NumCameras]CameraCalibration
	var hs [rig.NumCameras]*transform.Homography
	for _, pos := range rig.Positions {
		if obs[pos] == nil {
			return nil, utils.NewDetectionFailure("no observation for the %s camera", pos)
		}
		h, err := c.fitHomography(ctx, obs[pos])
		if err != nil {
			return nil, errors.Wrapf(err, "%s camera", pos)
		}
		hs[pos] = h
	}

	if c.cfg.CrossCamera && len(crossPairs) > 0 {
		refined, err := c.refineCrossCamera(ctx, obs, hs, crossPairs)
		if err != nil {
			return nil, err
		}
		hs = refined
	}

	for _, pos := range rig.Positions {
		rms, err := c.accept(obs[pos], hs[pos])
		if err != nil {
			return nil, err
		}
		initial, err := InitialPose(obs[pos])
		if err != nil {
			return nil, err
		}
		cam, pose, res, err := RefinePose(ctx, obs[pos], initial, c.cfg.RefineIntrinsics, c.cfg.Solver)
		if err != nil {
			return nil, err
		}
		if res.RMS > c.cfg.MaxRMS {
			return nil, utils.NewSolverNonConvergence("%s camera reprojection rms %.4g px is above %g", pos, res.RMS, c.cfg.MaxRMS)
		}
		c.logger.Infow("camera calibrated", "camera", pos, "homography_rms", rms, "reprojection_rms", res.RMS,
			"iterations", res.Iterations, "camera_height", pose.Center().Z)
		cams[pos] = CameraCalibration{
			Intrinsics:      cam,
			NewK:            obs[pos].NewK,
			Homography:      hs[pos],
			Pose:            *pose,
			RMS:             rms,
			ReprojectionRMS: res.RMS,
		}
	}

	return &Snapshot{
		ID:      uuid.New(),
		Created: time.Now().UTC(),
		Config:  c.cfg,
		Cameras: cams,
	}, nil
}

// fitHomography runs the DLT and the homography-only refinement for one camera.
func (c *Calibrator) fitHomography(ctx context.Context, o *Observation) (*transform.Homography, error) {
	initial, err := transform.EstimateHomography(o.Undistorted, o.Canvas)
	if err != nil {
		return nil, err
	}
	res, err := Solve(ctx, HomographyProblem(o.Undistorted, o.Canvas), initial.Params(), c.cfg.Solver)
	if err != nil {
		return nil, err
	}
	c.logger.Debugw("homography refined", "camera", o.Position, "rms", res.RMS, "iterations", res.Iterations,
		"termination", res.Termination)
	return transform.HomographyFromParams(res.X), nil
}

// refineCrossCamera refines all homographies so adjacent cameras agree on shared features.
func (c *Calibrator) refineCrossCamera(
	ctx context.Context,
	obs [rig.NumCameras]*Observation,
	hs [rig.NumCameras]*transform.Homography,
	crossPairs []CrossPair,
) ([rig.NumCameras]*transform.Homography, error) {
	undistort := func(pos rig.Position, p r2.Point) (r2.Point, error) {
		pts, err := obs[pos].Camera.UndistortPoints([]r2.Point{p}, obs[pos].NewK)
		if err != nil {
			return r2.Point{}, err
		}
		return pts[0], nil
	}
	convert := func(pair CrossPair, pt CrossPoint) (CrossPoint, error) {
		a, err := undistort(pair.A, pt.A)
		if err != nil {
			return CrossPoint{}, err
		}
		b, err := undistort(pair.B, pt.B)
		return CrossPoint{A: a, B: b}, err
	}

	problem := &Problem{
		Shape:        ShapeCrossCamera,
		Free:         FreeGeometry,
		AnchorWeight: 1,
		CrossWeight:  c.cfg.CrossWeight,
	}
	for _, pair := range crossPairs {
		first, err := convert(pair, pair.First)
		if err != nil {
			return hs, errors.Wrapf(err, "cross pair %s-%s", pair.A, pair.B)
		}
		converted := CrossPair{A: pair.A, B: pair.B, First: first}
		if pair.Second != nil {
			second, err := convert(pair, *pair.Second)
			if err != nil {
				return hs, errors.Wrapf(err, "cross pair %s-%s", pair.A, pair.B)
			}
			converted.Second = &second
		}
		problem.CrossPairs = append(problem.CrossPairs, converted)
	}
	x0 := make([]float64, 0, problem.NumParams())
	for _, pos := range rig.Positions {
		problem.Anchors[pos] = correspondences(obs[pos].Undistorted, obs[pos].Canvas)
		x0 = append(x0, hs[pos].Params()...)
	}
	res, err := Solve(ctx, problem, x0, c.cfg.Solver)
	if err != nil {
		return hs, err
	}
	c.logger.Debugw("cross camera refinement", "pairs", len(crossPairs), "rms", res.RMS, "iterations", res.Iterations)
	var out [rig.NumCameras]*transform.Homography
	for _, pos := range rig.Positions {
		out[pos] = transform.HomographyFromParams(res.X[8*int(pos) : 8*int(pos)+8])
	}
	return out, nil
}

// accept checks that the homography maps every detected corner to its target within the
// acceptance epsilon and returns the RMS error in canvas pixels.
func (c *Calibrator) accept(o *Observation, h *transform.Homography) (float64, error) {
	errs, err := HomographyProblem(o.Undistorted, o.Canvas).PointErrors(h.Params())
	if err != nil {
		return 0, err
	}
	worst, err := stats.Max(errs)
	if err != nil {
		return 0, utils.NewDetectionFailure("%s camera has no corners", o.Position)
	}
	if worst > c.cfg.AcceptEpsilon {
		return 0, utils.NewSolverNonConvergence("%s camera corner error %.4g canvas px is above %g",
			o.Position, worst, c.cfg.AcceptEpsilon)
	}
	var sq float64
	for _, e := range errs {
		sq += e * e
	}
	rms := rmsFromCost(sq, 2*len(errs))
	if rms > c.cfg.MaxRMS {
		return 0, utils.NewSolverNonConvergence("%s camera homography rms %.4g is above %g", o.Position, rms, c.cfg.MaxRMS)
	}
	return rms, nil
}
