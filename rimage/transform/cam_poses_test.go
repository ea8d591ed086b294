package transform

import (
	"errors"
	"testing"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"go.viam.com/test"

	"go.viam.com/birdseye/utils"
)

// a camera two meters above the ground, tilted and looking down
var testPose = &CamPose{Rvec: r3.Vector{X: 2.8, Y: 0.1, Z: 0.05}, Tvec: r3.Vector{X: 0.1, Y: -0.3, Z: 2.0}}

func TestPoseFromPlanarHomography(t *testing.T) {
	r := testPose.Rotation()
	for _, scale := range []float64{3.7, -0.25} {
		h := &Homography{
			{scale * r.At(0, 0), scale * r.At(0, 1), scale * testPose.Tvec.X},
			{scale * r.At(1, 0), scale * r.At(1, 1), scale * testPose.Tvec.Y},
			{scale * r.At(2, 0), scale * r.At(2, 1), scale * testPose.Tvec.Z},
		}
		pose, err := PoseFromPlanarHomography(h)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, pose.Rvec.Sub(testPose.Rvec).Norm(), test.ShouldBeLessThan, 1e-9)
		test.That(t, pose.Tvec.Sub(testPose.Tvec).Norm(), test.ShouldBeLessThan, 1e-9)
	}

	_, err := PoseFromPlanarHomography(&Homography{{0, 0, 1}, {0, 0, 1}, {0, 0, 1}})
	test.That(t, errors.Is(err, utils.ErrGeometryFailure), test.ShouldBeTrue)
}

func TestRayToGround(t *testing.T) {
	ground := r2.Point{X: 0.5, Y: 0.7}
	pc := testPose.Transform(r3.Vector{X: ground.X, Y: ground.Y})
	test.That(t, pc.Z, test.ShouldBeGreaterThan, 0)

	hit, err := testPose.RayToGround(pc.Normalize())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, hit.Sub(ground).Norm(), test.ShouldBeLessThan, 1e-9)

	_, err = testPose.RayToGround(pc.Normalize().Mul(-1))
	test.That(t, errors.Is(err, utils.ErrGeometryFailure), test.ShouldBeTrue)

	center := testPose.Center()
	test.That(t, testPose.Transform(center).Norm(), test.ShouldBeLessThan, 1e-12)

	pose, err := NewCamPoseFromSlices([]float64{1, 2, 3}, []float64{4, 5, 6})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, pose.Tvec, test.ShouldResemble, r3.Vector{X: 4, Y: 5, Z: 6})
	_, err = NewCamPoseFromSlices([]float64{1}, nil)
	test.That(t, err, test.ShouldNotBeNil)
}
