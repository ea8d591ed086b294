package calibration

import (
	"context"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"go.viam.com/birdseye/rimage/transform"
)

// InitialPose estimates the ground to camera pose from the planar homography between the board
// and the normalized image. The homography is computed in board-centred coordinates so the
// board, and not the vehicle origin behind the camera, fixes the sign of the solution.
func InitialPose(obs *Observation) (*transform.CamPose, error) {
	var center r2.Point
	for _, g := range obs.Ground {
		center = center.Add(g)
	}
	center = center.Mul(1 / float64(len(obs.Ground)))
	local := make([]r2.Point, len(obs.Ground))
	for i, g := range obs.Ground {
		local[i] = g.Sub(center)
	}
	h, err := transform.EstimateHomography(local, obs.Normalized())
	if err != nil {
		return nil, errors.Wrapf(err, "%s board to image homography", obs.Position)
	}
	pose, err := transform.PoseFromPlanarHomography(h)
	if err != nil {
		return nil, err
	}
	// R (Pw - c) + t = R Pw + (t - R c)
	pose.Tvec = pose.Tvec.Sub(transform.RotateVector(pose.Rvec, r3.Vector{X: center.X, Y: center.Y}))
	return pose, nil
}

// RefinePose minimizes the reprojection error of the ground points in the distorted frame, with
// the intrinsics fixed or, when refineIntrinsics is set, free as well.
func RefinePose(
	ctx context.Context,
	obs *Observation,
	initial *transform.CamPose,
	refineIntrinsics bool,
	cfg SolverConfig,
) (*transform.CameraParameters, *transform.CamPose, *Result, error) {
	problem := PoseProblem(obs.Camera, obs.Object(), obs.Raw, refineIntrinsics)
	res, err := Solve(ctx, problem, problem.PoseParams(initial), cfg)
	if err != nil {
		return nil, nil, res, errors.Wrapf(err, "%s pose", obs.Position)
	}
	cam, pose := problem.PoseFromParams(res.X)
	return cam, pose, res, nil
}
