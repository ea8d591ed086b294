package composition

import (
	"context"
	"image"
	"image/color"
	"math"
	"testing"

	"go.viam.com/test"

	"go.viam.com/birdseye/calibration"
	"go.viam.com/birdseye/logging"
	"go.viam.com/birdseye/rig"
	"go.viam.com/birdseye/rimage/transform"
)

const testPitch = 40 * math.Pi / 180

// testCalibrationConfig is a small canvas that still shows every overlap.
func testCalibrationConfig() calibration.Config {
	cfg := calibration.DefaultConfig()
	cfg.CanvasWidth = 160
	cfg.CanvasHeight = 160
	cfg.ViewRange = 4
	return cfg
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Channels = 1
	cfg.MinOverlapPixels = 10
	cfg.SlowFrame = 0
	return cfg
}

func testSnapshot(t *testing.T, height float64) *calibration.Snapshot {
	t.Helper()
	cfg := testCalibrationConfig()
	layout := calibration.NewLayout(cfg)
	var intr calibration.RigIntrinsics
	var poses [rig.NumCameras]*transform.CamPose
	for _, pos := range rig.Positions {
		cam, err := transform.NewCameraParameters(
			&transform.PinholeCameraIntrinsics{Width: 640, Height: 480, Fx: 260, Fy: 258, Ppx: 321.5, Ppy: 238.25},
			&transform.KannalaBrandt{K1: 0.05, K2: -0.01, K3: 0.002, K4: -0.0005},
		)
		test.That(t, err, test.ShouldBeNil)
		intr[pos] = cam
		poses[pos] = layout.NominalPose(pos, height, testPitch)
	}
	snap, err := calibration.NewSnapshotFromPoses(cfg, intr, poses)
	test.That(t, err, test.ShouldBeNil)
	return snap
}

func grayFrame(size image.Point, v uint8) image.Image {
	img := image.NewGray(image.Rect(0, 0, size.X, size.Y))
	for i := range img.Pix {
		img.Pix[i] = v
	}
	return img
}

// texturedFrame is a smooth pattern so bilinear sampling is exact enough to compare cameras.
func texturedFrame(size image.Point, offset float64) image.Image {
	img := image.NewGray(image.Rect(0, 0, size.X, size.Y))
	for y := 0; y < size.Y; y++ {
		for x := 0; x < size.X; x++ {
			v := 100 + offset + 40*math.Sin(float64(x)/23) + 30*math.Cos(float64(y)/17)
			img.SetGray(x, y, color.Gray{Y: uint8(v)})
		}
	}
	return img
}

func uniformFrames(size image.Point, values [rig.NumCameras]uint8) [rig.NumCameras]image.Image {
	var out [rig.NumCameras]image.Image
	for _, pos := range rig.Positions {
		out[pos] = grayFrame(size, values[pos])
	}
	return out
}

func newTestComposer(t *testing.T, snap *calibration.Snapshot, cfg Config, opts ...Option) *Composer {
	t.Helper()
	c, err := New(context.Background(), snap, cfg, logging.NewTestLogger(t), opts...)
	test.That(t, err, test.ShouldBeNil)
	t.Cleanup(c.Close)
	return c
}
