package calibration

import (
	"math"
	"math/rand"
	"testing"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"go.viam.com/test"

	"go.viam.com/birdseye/rig"
	"go.viam.com/birdseye/rimage/transform"
)

const (
	testHeight = 1.0
	testPitch  = 40 * math.Pi / 180
)

func testCamera(t *testing.T) *transform.CameraParameters {
	t.Helper()
	params, err := transform.NewCameraParameters(
		&transform.PinholeCameraIntrinsics{Width: 640, Height: 480, Fx: 260, Fy: 258, Ppx: 321.5, Ppy: 238.25},
		&transform.KannalaBrandt{K1: 0.05, K2: -0.01, K3: 0.002, K4: -0.0005},
	)
	test.That(t, err, test.ShouldBeNil)
	return params
}

func testIntrinsics(t *testing.T) RigIntrinsics {
	t.Helper()
	var out RigIntrinsics
	for _, pos := range rig.Positions {
		out[pos] = testCamera(t)
	}
	return out
}

// testPoses mounts every camera at the vehicle edge in line with its board.
func testPoses(cfg Config) [rig.NumCameras]*transform.CamPose {
	layout := NewLayout(cfg)
	var out [rig.NumCameras]*transform.CamPose
	for _, pos := range rig.Positions {
		out[pos] = layout.NominalPose(pos, testHeight, testPitch)
	}
	return out
}

// project returns the distorted pixels of ground points, with gaussian noise of sigma px when rng is
// not nil.
func project(
	t *testing.T,
	cam *transform.CameraParameters,
	pose *transform.CamPose,
	ground []r2.Point,
	sigma float64,
	rng *rand.Rand,
) []r2.Point {
	t.Helper()
	out := make([]r2.Point, len(ground))
	for i, g := range ground {
		p, err := cam.SpaceToPlane(r3.Vector{X: g.X, Y: g.Y}, pose.Rvec, pose.Tvec)
		test.That(t, err, test.ShouldBeNil)
		if rng != nil {
			p = p.Add(r2.Point{X: rng.NormFloat64() * sigma, Y: rng.NormFloat64() * sigma})
		}
		out[i] = p
	}
	return out
}

// testObservations synthesizes the detected corners of every camera.
func testObservations(t *testing.T, cfg Config, sigma float64, seed int64) [rig.NumCameras]*Observation {
	t.Helper()
	layout := NewLayout(cfg)
	cams := testIntrinsics(t)
	poses := testPoses(cfg)
	var rng *rand.Rand
	if sigma > 0 {
		rng = rand.New(rand.NewSource(seed))
	}
	var out [rig.NumCameras]*Observation
	for _, pos := range rig.Positions {
		raw := project(t, cams[pos], poses[pos], layout.GroundPoints(pos), sigma, rng)
		obs, err := NewObservationFromRaw(pos, cams[pos], cams[pos].UndistortionIntrinsics(cfg.UndistortFocalScale), raw, layout)
		test.That(t, err, test.ShouldBeNil)
		out[pos] = obs
	}
	return out
}

func maxPointError(a, b []r2.Point) float64 {
	var worst float64
	for i := range a {
		worst = math.Max(worst, a[i].Sub(b[i]).Norm())
	}
	return worst
}
