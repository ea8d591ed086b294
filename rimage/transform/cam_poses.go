package transform

import (
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
)

// CamPose is the rigid transform from the ground frame to the camera frame, as an axis-angle rotation
// and a translation: Pc = R(Rvec) Pw + Tvec.
type CamPose struct {
	Rvec r3.Vector `json:"rvec"`
	Tvec r3.Vector `json:"tvec"`
}

// NewCamPoseFromSlices builds a pose from two 3-vectors.
func NewCamPoseFromSlices(rvec, tvec []float64) (*CamPose, error) {
	if len(rvec) != 3 || len(tvec) != 3 {
		return nil, newGeometryError("pose vectors need 3 entries, got %d and %d", len(rvec), len(tvec))
	}
	return &CamPose{r3.Vector{X: rvec[0], Y: rvec[1], Z: rvec[2]}, r3.Vector{X: tvec[0], Y: tvec[1], Z: tvec[2]}}, nil
}

// Transform maps a ground frame point into the camera frame.
func (cp *CamPose) Transform(pw r3.Vector) r3.Vector {
	return RotateVector(cp.Rvec, pw).Add(cp.Tvec)
}

// Rotation returns the rotation matrix.
func (cp *CamPose) Rotation() *mat.Dense {
	return RotationMatrixFromVector(cp.Rvec)
}

// Center returns the camera centre in the ground frame, -R^T t.
func (cp *CamPose) Center() r3.Vector {
	return RotateVector(cp.Rvec.Mul(-1), cp.Tvec).Mul(-1)
}

// RayToGround intersects a camera frame ray with the ground plane Z = 0. It fails for rays parallel
// to or pointing away from the ground.
func (cp *CamPose) RayToGround(ray r3.Vector) (r2.Point, error) {
	inv := cp.Rvec.Mul(-1)
	dir := RotateVector(inv, ray)
	center := cp.Center()
	if math.Abs(dir.Z) < 1e-12 {
		return r2.Point{}, newGeometryError("ray is parallel to the ground")
	}
	s := -center.Z / dir.Z
	if s <= 0 {
		return r2.Point{}, newGeometryError("ray does not hit the ground in front of the camera")
	}
	return r2.Point{X: center.X + s*dir.X, Y: center.Y + s*dir.Y}, nil
}

// adjustPoseSign flips the sign of the pose when the rotation part is a reflection.
func adjustPoseSign(pose *mat.Dense) *mat.Dense {
	// take 3x3 sub-matrix
	subPose := pose.Slice(0, 3, 0, 3)

	// if determinant is negative, scale by -1
	if m := mat.DenseCopyOf(subPose); mat.Det(m) < 0 {
		pose.Scale(-1, pose)
	}
	return pose
}

// PoseFromPlanarHomography recovers the pose of a camera from the homography mapping ground
// plane points (X, Y) to pinhole normalized image points, H ~ [r1 r2 t]. The rotation is projected
// onto SO(3) and the sign is chosen so that the plane is in front of the camera.
func PoseFromPlanarHomography(h *Homography) (*CamPose, error) {
	hd := h.Dense()
	h1 := r3.Vector{X: hd.At(0, 0), Y: hd.At(1, 0), Z: hd.At(2, 0)}
	h2 := r3.Vector{X: hd.At(0, 1), Y: hd.At(1, 1), Z: hd.At(2, 1)}
	h3 := r3.Vector{X: hd.At(0, 2), Y: hd.At(1, 2), Z: hd.At(2, 2)}
	norm := h1.Norm() + h2.Norm()
	if norm < 1e-12 {
		return nil, newGeometryError("homography has no rotation part")
	}
	lambda := 2 / norm
	if h3.Z < 0 {
		lambda = -lambda
	}
	r1, r2v, t := h1.Mul(lambda), h2.Mul(lambda), h3.Mul(lambda)
	r3v := r1.Cross(r2v)

	pose := mat.NewDense(3, 3, []float64{
		r1.X, r2v.X, r3v.X,
		r1.Y, r2v.Y, r3v.Y,
		r1.Z, r2v.Z, r3v.Z,
	})
	mats := performSVD(pose)
	if mats == nil {
		return nil, newGeometryError("failed to orthonormalize rotation")
	}
	var rot mat.Dense
	rot.Mul(mats.U, mats.VT)
	adjustPoseSign(&rot)
	return &CamPose{Rvec: RotationVectorFromMatrix(&rot), Tvec: t}, nil
}
