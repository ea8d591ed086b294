package calibration

import (
	"bytes"
	"encoding/json"
	"image"
	"io"
	"os"
	"time"

	"github.com/golang/geo/r3"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"go.viam.com/birdseye/rig"
	"go.viam.com/birdseye/rimage/transform"
	"go.viam.com/birdseye/utils"
)

// SnapshotVersion is the version of the persisted calibration format.
const SnapshotVersion = 1

// CameraCalibration is the calibration of one camera.
type CameraCalibration struct {
	Intrinsics      *transform.CameraParameters       // fisheye camera at the calibrated frame size
	NewK            *transform.PinholeCameraIntrinsics // pinhole camera of the undistorted image
	Homography      *transform.Homography              // undistorted pixels to canvas
	Pose            transform.CamPose                  // ground to camera
	RMS             float64                            // homography error in canvas px
	ReprojectionRMS float64                            // pose error in frame px
}

// Snapshot is the immutable result of one successful calibration. Nothing mutates a Snapshot after
// it is returned; recalibration produces a new one.
type Snapshot struct {
	ID      uuid.UUID
	Created time.Time
	Config  Config
	Cameras [rig.NumCameras]CameraCalibration
}

// Layout returns the ground layout the snapshot was calibrated against.
func (s *Snapshot) Layout() *Layout {
	return NewLayout(s.Config)
}

// FrameSize returns the frame size a camera was calibrated at.
func (s *Snapshot) FrameSize(pos rig.Position) image.Point {
	return s.Cameras[pos].Intrinsics.Size()
}

type cameraFile struct {
	Homography      []float64                   `json:"homography"`
	Rvec            []float64                   `json:"rvec"`
	Tvec            []float64                   `json:"tvec"`
	NewK            []float64                   `json:"new_k"`
	RMS             float64                     `json:"rms"`
	ReprojectionRMS float64                     `json:"reprojection_rms"`
	Intrinsics      *transform.CameraParameters `json:"intrinsics"`
}

type snapshotFile struct {
	Version int                   `json:"version"`
	ID      string                `json:"id"`
	Created time.Time             `json:"created"`
	Config  Config                `json:"config"`
	Cameras map[string]cameraFile `json:"cameras"`
}

func vec(v r3.Vector) []float64 {
	return []float64{v.X, v.Y, v.Z}
}

// MarshalJSON writes the persisted calibration format.
func (s *Snapshot) MarshalJSON() ([]byte, error) {
	file := snapshotFile{
		Version: SnapshotVersion,
		ID:      s.ID.String(),
		Created: s.Created,
		Config:  s.Config,
		Cameras: map[string]cameraFile{},
	}
	for _, pos := range rig.Positions {
		cam := s.Cameras[pos]
		file.Cameras[pos.String()] = cameraFile{
			Homography:      cam.Homography.Slice(),
			Rvec:            vec(cam.Pose.Rvec),
			Tvec:            vec(cam.Pose.Tvec),
			NewK:            cam.NewK.CameraMatrixSlice(),
			RMS:             cam.RMS,
			ReprojectionRMS: cam.ReprojectionRMS,
			Intrinsics:      cam.Intrinsics,
		}
	}
	return json.Marshal(file)
}

// UnmarshalJSON reads the persisted calibration format. Every camera must be present and valid.
func (s *Snapshot) UnmarshalJSON(data []byte) error {
	var file snapshotFile
	if err := json.Unmarshal(data, &file); err != nil {
		return utils.WrapConfigError(err, "cannot parse calibration")
	}
	if file.Version != SnapshotVersion {
		return utils.NewConfigError("unsupported calibration version %d", file.Version)
	}
	id, err := uuid.Parse(file.ID)
	if err != nil {
		return utils.WrapConfigError(err, "bad calibration id")
	}
	if err := file.Config.Validate(); err != nil {
		return utils.WrapConfigError(err, "invalid calibration config")
	}
	out := Snapshot{ID: id, Created: file.Created, Config: file.Config}
	for _, pos := range rig.Positions {
		cf, ok := file.Cameras[pos.String()]
		if !ok {
			return utils.NewConfigError("calibration has no %s camera", pos)
		}
		cam, err := cf.decode()
		if err != nil {
			return errors.Wrapf(err, "%s camera", pos)
		}
		out.Cameras[pos] = *cam
	}
	*s = out
	return nil
}

func (cf *cameraFile) decode() (*CameraCalibration, error) {
	if err := cf.Intrinsics.CheckValid(); err != nil {
		return nil, err
	}
	h, err := transform.NewHomography(cf.Homography)
	if err != nil {
		return nil, utils.WrapConfigError(err, "bad homography")
	}
	pose, err := transform.NewCamPoseFromSlices(cf.Rvec, cf.Tvec)
	if err != nil {
		return nil, utils.WrapConfigError(err, "bad pose")
	}
	newK, err := transform.NewPinholeCameraIntrinsicsFromSlice(cf.NewK, cf.Intrinsics.Width, cf.Intrinsics.Height)
	if err != nil {
		return nil, errors.Wrap(err, "bad new_k")
	}
	return &CameraCalibration{
		Intrinsics:      cf.Intrinsics,
		NewK:            newK,
		Homography:      h,
		Pose:            *pose,
		RMS:             cf.RMS,
		ReprojectionRMS: cf.ReprojectionRMS,
	}, nil
}

// Save persists the snapshot atomically: readers of path see either the previous calibration or
// this one, never a partial file.
func (s *Snapshot) Save(path string) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	return utils.WriteFileAtomic(path, data, 0o644)
}

// ReadSnapshot reads a persisted calibration.
func ReadSnapshot(r io.Reader) (*Snapshot, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	var s Snapshot
	if err := s.UnmarshalJSON(data); err != nil {
		return nil, err
	}
	return &s, nil
}

// LoadSnapshot reads a persisted calibration file.
func LoadSnapshot(path string) (*Snapshot, error) {
	//nolint:gosec
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ReadSnapshot(bytes.NewReader(data))
}
