package transform

import (
	"fmt"
	"image"
	"math"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/birdseye/utils"
)

// ErrNoIntrinsics is when a camera does not have intrinsics parameters or other parameters.
var ErrNoIntrinsics = errors.New("camera intrinsic parameters are not available")

// NewNoIntrinsicsError is used when the intriniscs are not defined.
func NewNoIntrinsicsError(msg string) error {
	return utils.NewConfigError("%s: %v", msg, ErrNoIntrinsics)
}

func newGeometryError(format string, args ...interface{}) error {
	return utils.NewGeometryFailure(format, args...)
}

// PinholeCameraIntrinsics holds the parameters necessary to do a perspective projection of a 3D scene to the 2D plane.
type PinholeCameraIntrinsics struct {
	Width  int     `json:"width_px"`
	Height int     `json:"height_px"`
	Fx     float64 `json:"fx"`
	Fy     float64 `json:"fy"`
	Ppx    float64 `json:"ppx"`
	Ppy    float64 `json:"ppy"`
}

// CheckValid checks if the fields for PinholeCameraIntrinsics have valid inputs.
func (params *PinholeCameraIntrinsics) CheckValid() error {
	if params == nil {
		return NewNoIntrinsicsError("Intrinsics do not exist")
	}
	if params.Width <= 0 || params.Height <= 0 {
		return NewNoIntrinsicsError(fmt.Sprintf("Invalid size (%#v, %#v)", params.Width, params.Height))
	}
	if params.Fx <= 0 {
		return NewNoIntrinsicsError(fmt.Sprintf("Invalid focal length Fx = %#v", params.Fx))
	}
	if params.Fy <= 0 {
		return NewNoIntrinsicsError(fmt.Sprintf("Invalid focal length Fy = %#v", params.Fy))
	}
	if params.Ppx < 0 {
		return NewNoIntrinsicsError(fmt.Sprintf("Invalid principal X point Ppx = %#v", params.Ppx))
	}
	if params.Ppy < 0 {
		return NewNoIntrinsicsError(fmt.Sprintf("Invalid principal Y point Ppy = %#v", params.Ppy))
	}
	return nil
}

// Size returns the native image size.
func (params *PinholeCameraIntrinsics) Size() image.Point {
	return image.Pt(params.Width, params.Height)
}

// PixelToPoint maps a pixel to the normalized image plane (z = 1).
func (params *PinholeCameraIntrinsics) PixelToPoint(p r2.Point) r2.Point {
	return r2.Point{X: (p.X - params.Ppx) / params.Fx, Y: (p.Y - params.Ppy) / params.Fy}
}

// PointToPixel maps a point of the normalized image plane to a pixel.
func (params *PinholeCameraIntrinsics) PointToPixel(p r2.Point) r2.Point {
	return r2.Point{X: p.X*params.Fx + params.Ppx, Y: p.Y*params.Fy + params.Ppy}
}

// GetCameraMatrix creates a new camera matrix and returns it.
// Camera matrix:
// [[fx 0 ppx],
//
//	[0 fy ppy],
//	[0 0  1]]
func (params *PinholeCameraIntrinsics) GetCameraMatrix() *mat.Dense {
	if params == nil {
		return nil
	}
	cameraMatrix := mat.NewDense(3, 3, nil)
	cameraMatrix.Set(0, 0, params.Fx)
	cameraMatrix.Set(1, 1, params.Fy)
	cameraMatrix.Set(0, 2, params.Ppx)
	cameraMatrix.Set(1, 2, params.Ppy)
	cameraMatrix.Set(2, 2, 1)
	return cameraMatrix
}

// CameraMatrixSlice returns the camera matrix row-major.
func (params *PinholeCameraIntrinsics) CameraMatrixSlice() []float64 {
	return []float64{params.Fx, 0, params.Ppx, 0, params.Fy, params.Ppy, 0, 0, 1}
}

// NewPinholeCameraIntrinsicsFromSlice builds intrinsics from a row-major 3x3 camera matrix.
func NewPinholeCameraIntrinsicsFromSlice(k []float64, width, height int) (*PinholeCameraIntrinsics, error) {
	if len(k) != 9 {
		return nil, utils.NewConfigError("camera matrix needs 9 entries, got %d", len(k))
	}
	if k[1] != 0 || k[3] != 0 || k[6] != 0 || k[7] != 0 || k[8] != 1 {
		return nil, utils.NewConfigError("camera matrix must be [[fx 0 cx] [0 fy cy] [0 0 1]], got %v", k)
	}
	params := &PinholeCameraIntrinsics{width, height, k[0], k[4], k[2], k[5]}
	return params, params.CheckValid()
}

// CameraParameters is a fisheye camera: pinhole intrinsics plus Kannala-Brandt distortion at the
// native image size.
type CameraParameters struct {
	*PinholeCameraIntrinsics `json:"intrinsic_parameters"`
	Distortion               *KannalaBrandt `json:"distortion_parameters"`
}

// NewCameraParameters validates and wraps intrinsics and distortion.
func NewCameraParameters(intrinsics *PinholeCameraIntrinsics, distortion *KannalaBrandt) (*CameraParameters, error) {
	params := &CameraParameters{intrinsics, distortion}
	if err := params.CheckValid(); err != nil {
		return nil, err
	}
	return params, nil
}

// CheckValid checks the intrinsics and the distortion coefficients.
func (params *CameraParameters) CheckValid() error {
	if params == nil {
		return NewNoIntrinsicsError("camera parameters do not exist")
	}
	if err := params.PinholeCameraIntrinsics.CheckValid(); err != nil {
		return err
	}
	if err := params.Distortion.CheckValid(); err != nil {
		return utils.WrapConfigError(err, "bad distortion")
	}
	return nil
}

// SameAspect reports whether size has the aspect ratio of the native size.
func (params *CameraParameters) SameAspect(size image.Point) bool {
	if size.X <= 0 || size.Y <= 0 {
		return false
	}
	return math.Abs(float64(size.X)*float64(params.Height)-float64(size.Y)*float64(params.Width)) <
		0.5*math.Max(float64(params.Width), float64(size.X))
}

// ScaledTo returns the parameters for frames of the given size. The distortion is unchanged since it
// acts on normalized coordinates. Sizes with a different aspect ratio are a runtime mismatch.
func (params *CameraParameters) ScaledTo(size image.Point) (*CameraParameters, error) {
	if size == params.Size() {
		return params, nil
	}
	if !params.SameAspect(size) {
		return nil, utils.NewRuntimeMismatch("frame size %v does not have the aspect ratio of %v", size, params.Size())
	}
	sx := float64(size.X) / float64(params.Width)
	sy := float64(size.Y) / float64(params.Height)
	dist := *params.Distortion
	return &CameraParameters{
		&PinholeCameraIntrinsics{
			Width:  size.X,
			Height: size.Y,
			Fx:     params.Fx * sx,
			Fy:     params.Fy * sy,
			Ppx:    params.Ppx * sx,
			Ppy:    params.Ppy * sy,
		},
		&dist,
	}, nil
}

// UndistortionIntrinsics returns the pinhole camera used for undistorted images of the native
// size: focal lengths scaled by focalScale and the principal point centred.
func (params *CameraParameters) UndistortionIntrinsics(focalScale float64) *PinholeCameraIntrinsics {
	return &PinholeCameraIntrinsics{
		Width:  params.Width,
		Height: params.Height,
		Fx:     params.Fx * focalScale,
		Fy:     params.Fy * focalScale,
		Ppx:    float64(params.Width) / 2,
		Ppy:    float64(params.Height) / 2,
	}
}

// WithIntrinsics returns a copy with fx, fy, cx, cy replaced. Used by full calibration refinement.
func (params *CameraParameters) WithIntrinsics(fx, fy, cx, cy float64) *CameraParameters {
	dist := *params.Distortion
	return &CameraParameters{
		&PinholeCameraIntrinsics{params.Width, params.Height, fx, fy, cx, cy},
		&dist,
	}
}
