package calibration

import (
	"bytes"
	"encoding/json"
	"io"

	"github.com/a8m/envsubst"
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"go.viam.com/birdseye/rig"
	"go.viam.com/birdseye/rimage/transform"
	"go.viam.com/birdseye/utils"
)

// RigIntrinsics holds the fisheye parameters of every camera in rig order.
type RigIntrinsics [rig.NumCameras]*transform.CameraParameters

type intrinsicsFile struct {
	Cameras map[string]*transform.CameraParameters `json:"cameras"`
}

// ReadIntrinsics reads the intrinsics of all four cameras. A missing camera, an unknown position
// or invalid parameters are config errors.
func ReadIntrinsics(r io.Reader) (RigIntrinsics, error) {
	var out RigIntrinsics
	var raw map[string]interface{}
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return out, utils.WrapConfigError(err, "cannot parse intrinsics")
	}
	var file intrinsicsFile
	if err := decodeStrict(raw, &file); err != nil {
		return out, err
	}
	for name, params := range file.Cameras {
		pos, err := rig.ParsePosition(name)
		if err != nil {
			return out, utils.WrapConfigError(err, "bad intrinsics")
		}
		out[pos] = params
	}
	var errs error
	for _, pos := range rig.Positions {
		if out[pos] == nil {
			errs = multierr.Append(errs, utils.NewConfigError("no intrinsics for the %s camera", pos))
			continue
		}
		if err := out[pos].CheckValid(); err != nil {
			errs = multierr.Append(errs, errors.Wrapf(err, "%s camera", pos))
		}
	}
	return out, errs
}

// LoadIntrinsics reads an intrinsics file, substituting ${ENV} references first.
func LoadIntrinsics(path string) (RigIntrinsics, error) {
	buf, err := envsubst.ReadFile(path)
	if err != nil {
		return RigIntrinsics{}, utils.WrapConfigError(err, "cannot read intrinsics")
	}
	return ReadIntrinsics(bytes.NewReader(buf))
}

// MarshalJSON writes the intrinsics in the file format ReadIntrinsics accepts.
func (ri RigIntrinsics) MarshalJSON() ([]byte, error) {
	file := intrinsicsFile{Cameras: map[string]*transform.CameraParameters{}}
	for _, pos := range rig.Positions {
		if ri[pos] != nil {
			file.Cameras[pos.String()] = ri[pos]
		}
	}
	return json.Marshal(file)
}
