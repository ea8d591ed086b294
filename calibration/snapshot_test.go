package calibration

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/golang/geo/r2"
	"go.viam.com/test"

	"go.viam.com/birdseye/rig"
	"go.viam.com/birdseye/utils"
)

func testSnapshot(t *testing.T) *Snapshot {
	t.Helper()
	cfg := DefaultConfig()
	snap, err := NewSnapshotFromPoses(cfg, testIntrinsics(t), testPoses(cfg))
	test.That(t, err, test.ShouldBeNil)
	return snap
}

func TestSnapshotSaveLoad(t *testing.T) {
	c := newTestCalibrator(t, DefaultConfig())
	snap, err := c.Solve(context.Background(), testObservations(t, DefaultConfig(), 0.5, 23), nil)
	test.That(t, err, test.ShouldBeNil)

	path := filepath.Join(t.TempDir(), "calibration.json")
	test.That(t, snap.Save(path), test.ShouldBeNil)
	back, err := LoadSnapshot(path)
	test.That(t, err, test.ShouldBeNil)

	test.That(t, back.ID, test.ShouldEqual, snap.ID)
	test.That(t, back.Created.Equal(snap.Created), test.ShouldBeTrue)
	test.That(t, back.Config, test.ShouldResemble, snap.Config)
	for _, pos := range rig.Positions {
		want, got := snap.Cameras[pos], back.Cameras[pos]
		for i, v := range want.Homography.Slice() {
			test.That(t, got.Homography.Slice()[i], test.ShouldAlmostEqual, v, 1e-9)
		}
		test.That(t, got.Pose.Rvec.Sub(want.Pose.Rvec).Norm(), test.ShouldBeLessThan, 1e-9)
		test.That(t, got.Pose.Tvec.Sub(want.Pose.Tvec).Norm(), test.ShouldBeLessThan, 1e-9)
		test.That(t, got.NewK, test.ShouldResemble, want.NewK)
		test.That(t, got.Intrinsics, test.ShouldResemble, want.Intrinsics)
		test.That(t, got.RMS, test.ShouldEqual, want.RMS)
	}

	// an atomic save over an existing file leaves no temporary files behind
	test.That(t, back.Save(path), test.ShouldBeNil)
	entries, err := os.ReadDir(filepath.Dir(path))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, len(entries), test.ShouldEqual, 1)
}

func TestReadSnapshotErrors(t *testing.T) {
	snap := testSnapshot(t)
	data, err := json.Marshal(snap)
	test.That(t, err, test.ShouldBeNil)

	rewrite := func(mutate func(map[string]interface{})) []byte {
		var copied map[string]interface{}
		test.That(t, json.Unmarshal(data, &copied), test.ShouldBeNil)
		mutate(copied)
		out, err := json.Marshal(copied)
		test.That(t, err, test.ShouldBeNil)
		return out
	}

	for name, bad := range map[string][]byte{
		"syntax":  []byte(`{"version": 1,`),
		"version": rewrite(func(m map[string]interface{}) { m["version"] = 7 }),
		"id":      rewrite(func(m map[string]interface{}) { m["id"] = "not-a-uuid" }),
		"camera": rewrite(func(m map[string]interface{}) {
			delete(m["cameras"].(map[string]interface{}), "left")
		}),
		"homography": rewrite(func(m map[string]interface{}) {
			m["cameras"].(map[string]interface{})["front"].(map[string]interface{})["homography"] = []float64{1, 2, 3}
		}),
		"canvas": rewrite(func(m map[string]interface{}) {
			m["config"].(map[string]interface{})["canvas_width"] = 0
		}),
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ReadSnapshot(bytes.NewReader(bad))
			test.That(t, err, test.ShouldNotBeNil)
			test.That(t, errors.Is(err, utils.ErrConfig), test.ShouldBeTrue)
		})
	}
}

func TestSnapshotFromPoses(t *testing.T) {
	cfg := DefaultConfig()
	snap := testSnapshot(t)
	obs := testObservations(t, cfg, 0, 0)
	for _, pos := range rig.Positions {
		mapped := snap.Cameras[pos].Homography.ApplyAll(obs[pos].Undistorted)
		test.That(t, maxPointError(mapped, obs[pos].Canvas), test.ShouldBeLessThan, 1e-6)
		test.That(t, snap.FrameSize(pos).X, test.ShouldEqual, 640)
	}

	poses := testPoses(cfg)
	poses[rig.Left] = nil
	_, err := NewSnapshotFromPoses(cfg, testIntrinsics(t), poses)
	test.That(t, errors.Is(err, utils.ErrConfig), test.ShouldBeTrue)
}

func TestCameraToGround(t *testing.T) {
	cfg := DefaultConfig()
	snap := testSnapshot(t)
	layout := snap.Layout()
	obs := testObservations(t, cfg, 0, 0)
	for _, pos := range rig.Positions {
		for i, raw := range obs[pos].Raw {
			g, err := snap.CameraToGround(pos, raw)
			test.That(t, err, test.ShouldBeNil)
			test.That(t, g.Sub(obs[pos].Ground[i]).Norm(), test.ShouldBeLessThan, 1e-6)

			q, err := snap.CameraToCanvas(pos, raw)
			test.That(t, err, test.ShouldBeNil)
			test.That(t, q.Sub(layout.GroundToCanvas(g)).Norm(), test.ShouldBeLessThan, 1e-6)
			test.That(t, snap.CanvasToGround(q).Sub(g).Norm(), test.ShouldBeLessThan, 1e-6)
		}
	}

	// a pixel above the horizon never reaches the ground
	cam := snap.Cameras[rig.Front].Intrinsics
	_, err := snap.CameraToGround(rig.Front, r2.Point{X: cam.Ppx, Y: 1})
	test.That(t, errors.Is(err, utils.ErrGeometryFailure), test.ShouldBeTrue)

	_, err = snap.CameraToGround(rig.Position(9), r2.Point{})
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, math.IsNaN(snap.CanvasToGround(r2.Point{}).X), test.ShouldBeFalse)
}
