package calibration

import (
	"math"
	"time"

	"github.com/golang/geo/r3"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/birdseye/rig"
	"go.viam.com/birdseye/rimage/transform"
	"go.viam.com/birdseye/utils"
)

// NominalPose returns the pose of a camera mounted on the vehicle edge in line with its board,
// height meters above the ground and pitched down by pitch radians.
func (l *Layout) NominalPose(pos rig.Position, height, pitch float64) *transform.CamPose {
	forward, right := Facing(pos)
	halfDepth := float64(l.cfg.Pattern.Rows-1) * l.cfg.SquareSize / 2
	base := l.BoardCenter(pos).Sub(forward.Mul(l.cfg.BoardGap + halfDepth))
	center := r3.Vector{X: base.X, Y: base.Y, Z: height}

	xc := r3.Vector{X: right.X, Y: right.Y}
	zc := r3.Vector{X: forward.X * math.Cos(pitch), Y: forward.Y * math.Cos(pitch), Z: -math.Sin(pitch)}
	yc := zc.Cross(xc)
	rot := mat.NewDense(3, 3, []float64{
		xc.X, xc.Y, xc.Z,
		yc.X, yc.Y, yc.Z,
		zc.X, zc.Y, zc.Z,
	})
	rvec := transform.RotationVectorFromMatrix(rot)
	return &transform.CamPose{Rvec: rvec, Tvec: transform.RotateVector(rvec, center).Mul(-1)}
}

// PoseHomography returns the homography from undistorted pixels of newK to the canvas implied by a
// ground to camera pose.
func (l *Layout) PoseHomography(newK *transform.PinholeCameraIntrinsics, pose *transform.CamPose) (*transform.Homography, error) {
	r := pose.Rotation()
	groundToImage := mat.NewDense(3, 3, []float64{
		r.At(0, 0), r.At(0, 1), pose.Tvec.X,
		r.At(1, 0), r.At(1, 1), pose.Tvec.Y,
		r.At(2, 0), r.At(2, 1), pose.Tvec.Z,
	})
	groundToImage.Mul(newK.GetCameraMatrix(), groundToImage)
	var imageToGround mat.Dense
	if err := imageToGround.Inverse(groundToImage); err != nil {
		return nil, utils.NewGeometryFailure("camera sees the ground edge on: %v", err)
	}
	cw, ch := float64(l.cfg.CanvasWidth)/2, float64(l.cfg.CanvasHeight)/2
	groundToCanvas := mat.NewDense(3, 3, []float64{
		l.Scale, 0, cw,
		0, -l.Scale, ch,
		0, 0, 1,
	})
	var h mat.Dense
	h.Mul(groundToCanvas, &imageToGround)
	out, err := transform.NewHomography(h.RawMatrix().Data)
	if err != nil {
		return nil, err
	}
	return out.Normalized()
}

// NewSnapshotFromPoses builds a snapshot from measured camera poses instead of chessboards, for
// rigs whose mounting is known.
func NewSnapshotFromPoses(cfg Config, cams RigIntrinsics, poses [rig.NumCameras]*transform.CamPose) (*Snapshot, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	layout := NewLayout(cfg)
	out := &Snapshot{ID: uuid.New(), Created: time.Now().UTC(), Config: cfg}
	for _, pos := range rig.Positions {
		if err := cams[pos].CheckValid(); err != nil {
			return nil, errors.Wrapf(err, "%s camera", pos)
		}
		if poses[pos] == nil {
			return nil, utils.NewConfigError("no pose for the %s camera", pos)
		}
		newK := cams[pos].UndistortionIntrinsics(cfg.UndistortFocalScale)
		h, err := layout.PoseHomography(newK, poses[pos])
		if err != nil {
			return nil, errors.Wrapf(err, "%s camera", pos)
		}
		out.Cameras[pos] = CameraCalibration{
			Intrinsics: cams[pos],
			NewK:       newK,
			Homography: h,
			Pose:       *poses[pos],
		}
	}
	return out, nil
}
