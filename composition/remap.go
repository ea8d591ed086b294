package composition

import (
	"context"
	"image"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"go.viam.com/birdseye/calibration"
	"go.viam.com/birdseye/rig"
	"go.viam.com/birdseye/rimage"
	"go.viam.com/birdseye/rimage/transform"
	"go.viam.com/birdseye/utils"
)

// RemapTable maps every canvas pixel of one camera to a pixel of its source frame. It is only
// valid for frames of SourceSize.
type RemapTable struct {
	Position   rig.Position
	SourceSize image.Point
	Size       image.Point // canvas
	X, Y       []float64   // source coordinates, row-major over the canvas
	Valid      []bool
}

// BuildRemapTable computes the table of one camera for frames of srcSize.
func BuildRemapTable(
	ctx context.Context,
	snap *calibration.Snapshot,
	pos rig.Position,
	srcSize image.Point,
	source Source,
) (*RemapTable, error) {
	if !pos.Valid() {
		return nil, errors.Errorf("invalid camera position %d", int(pos))
	}
	calib := snap.Cameras[pos]
	cam, err := calib.Intrinsics.ScaledTo(srcSize)
	if err != nil {
		return nil, errors.Wrapf(err, "%s camera", pos)
	}
	layout := snap.Layout()
	trace, err := tracer(layout, calib, cam, pos, source)
	if err != nil {
		return nil, errors.Wrapf(err, "%s camera", pos)
	}

	size := snap.Config.CanvasSize()
	n := size.X * size.Y
	table := &RemapTable{
		Position:   pos,
		SourceSize: srcSize,
		Size:       size,
		X:          make([]float64, n),
		Y:          make([]float64, n),
		Valid:      make([]bool, n),
	}
	maxX, maxY := float64(srcSize.X-1), float64(srcSize.Y-1)
	err = utils.ParallelForEachRow(ctx, size.Y, func(y int) {
		for x := 0; x < size.X; x++ {
			p, ok := trace(r2.Point{X: float64(x), Y: float64(y)})
			if !ok || p.X < 0 || p.Y < 0 || p.X > maxX || p.Y > maxY {
				continue
			}
			i := y*size.X + x
			table.X[i], table.Y[i], table.Valid[i] = p.X, p.Y, true
		}
	})
	if err != nil {
		return nil, err
	}
	return table, nil
}

// tracer returns the function taking a canvas pixel to a source pixel.
func tracer(
	layout *calibration.Layout,
	calib calibration.CameraCalibration,
	cam *transform.CameraParameters,
	pos rig.Position,
	source Source,
) (func(q r2.Point) (r2.Point, bool), error) {
	switch source {
	case SourceExtrinsic:
		pose := calib.Pose
		return func(q r2.Point) (r2.Point, bool) {
			g := layout.CanvasToGround(q)
			p, err := cam.SpaceToPlane(r3.Vector{X: g.X, Y: g.Y}, pose.Rvec, pose.Tvec)
			return p, err == nil
		}, nil
	case SourceHomography:
		inv, err := calib.Homography.Inverse()
		if err != nil {
			return nil, err
		}
		// the homogeneous scale is proportional to the camera depth; the board is in front
		_, ref := inv.ApplyHomogeneous(layout.GroundToCanvas(layout.BoardCenter(pos)))
		return func(q r2.Point) (r2.Point, bool) {
			u, w := inv.ApplyHomogeneous(q)
			if w*ref <= 0 {
				return r2.Point{}, false
			}
			p, err := cam.DistortNormalized(calib.NewK.PixelToPoint(u))
			return p, err == nil
		}, nil
	default:
		return nil, utils.NewConfigError("unknown remap source %q", source)
	}
}

// Remap samples frame through the table into a canvas image scaled by gain. Pixels without a
// source are zero.
func Remap(frame *rimage.FloatImage, table *RemapTable, gain float64) (*rimage.FloatImage, error) {
	if frame.Size() != table.SourceSize {
		return nil, utils.NewRuntimeMismatch("%s frame is %v, remap table is for %v",
			table.Position, frame.Size(), table.SourceSize)
	}
	out := rimage.NewFloatImage(table.Size.X, table.Size.Y, frame.Channels())
	sample := make([]float64, frame.Channels())
	for i, ok := range table.Valid {
		if !ok || !frame.Bilinear(table.X[i], table.Y[i], sample) {
			continue
		}
		dst := out.Data()[i*frame.Channels() : (i+1)*frame.Channels()]
		for c, v := range sample {
			dst[c] = v * gain
		}
	}
	return out, nil
}
