package calibration

import (
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/floats"

	"go.viam.com/birdseye/rig"
	"go.viam.com/birdseye/rimage/transform"
	"go.viam.com/birdseye/utils"
)

// Shape names the fixed data a Problem closes over and therefore the layout of its unknowns.
type Shape int

const (
	// ShapeHomography refines one homography: x is its 8 free entries and every correspondence
	// contributes H(src) - dst.
	ShapeHomography Shape = iota
	// ShapeCrossCamera refines all four homographies jointly: x is 4 x 8 entries. Each camera keeps
	// its anchor correspondences and every CrossPair adds H_a(p_a) - H_b(p_b).
	ShapeCrossCamera
	// ShapeFullCalibration refines fx, fy, cx, cy and the pose of one camera against known ground
	// points: x is (fx, fy, cx, cy, rvec, tvec).
	ShapeFullCalibration
	// ShapeExtrinsic refines the pose of one camera with fixed intrinsics: x is (rvec, tvec).
	ShapeExtrinsic
)

func (s Shape) String() string {
	switch s {
	case ShapeHomography:
		return "homography"
	case ShapeCrossCamera:
		return "cross_camera"
	case ShapeFullCalibration:
		return "full_calibration"
	case ShapeExtrinsic:
		return "extrinsic"
	default:
		return "unknown"
	}
}

// Free is the set of unknown groups a Problem refines.
type Free int

// Unknown groups.
const (
	FreeGeometry Free = 1 << iota
	FreeIntrinsics
)

// Correspondence pairs a source point with the point it should map to.
type Correspondence struct {
	Src r2.Point
	Dst r2.Point
}

// CrossPoint is one ground feature seen by two adjacent cameras, in each camera's undistorted pixels.
type CrossPoint struct {
	A r2.Point `json:"a"`
	B r2.Point `json:"b"`
}

// CrossPair ties two adjacent cameras together with one shared feature and optionally a second one.
type CrossPair struct {
	A      rig.Position `json:"camera_a"`
	B      rig.Position `json:"camera_b"`
	First  CrossPoint   `json:"first"`
	Second *CrossPoint  `json:"second,omitempty"`
}

// Problem is a nonlinear least squares problem over one of the four residual models. The same
// Residuals function serves every Shape.
type Problem struct {
	Shape Shape
	Free  Free

	// ShapeHomography
	Points []Correspondence

	// ShapeCrossCamera
	Anchors      [rig.NumCameras][]Correspondence
	AnchorWeight float64
	CrossPairs   []CrossPair
	CrossWeight  float64

	// ShapeFullCalibration and ShapeExtrinsic
	Camera   *transform.CameraParameters
	Object   []r3.Vector
	Observed []r2.Point
}

// NumParams is the length of x.
func (p *Problem) NumParams() int {
	switch p.Shape {
	case ShapeHomography:
		return 8
	case ShapeCrossCamera:
		return 8 * rig.NumCameras
	case ShapeFullCalibration:
		return 10
	default:
		return 6
	}
}

// NumResiduals is the length of the residual vector.
func (p *Problem) NumResiduals() int {
	switch p.Shape {
	case ShapeHomography:
		return 2 * len(p.Points)
	case ShapeCrossCamera:
		n := 0
		for _, anchors := range p.Anchors {
			n += 2 * len(anchors)
		}
		for _, pair := range p.CrossPairs {
			n += 2
			if pair.Second != nil {
				n += 2
			}
		}
		return n
	default:
		return 2 * len(p.Observed)
	}
}

// Validate checks that the shape, the free groups and the data agree.
func (p *Problem) Validate() error {
	wantFree := FreeGeometry
	if p.Shape == ShapeFullCalibration {
		wantFree = FreeGeometry | FreeIntrinsics
	}
	if p.Free != wantFree {
		return utils.NewConfigError("%s problem needs free groups %b, got %b", p.Shape, wantFree, p.Free)
	}
	switch p.Shape {
	case ShapeHomography:
		if len(p.Points) < 4 {
			return utils.NewGeometryFailure("homography refinement needs 4 correspondences, got %d", len(p.Points))
		}
	case ShapeCrossCamera:
		for _, pos := range rig.Positions {
			if len(p.Anchors[pos]) < 4 {
				return utils.NewGeometryFailure("%s camera needs 4 anchor correspondences, got %d", pos, len(p.Anchors[pos]))
			}
		}
		for _, pair := range p.CrossPairs {
			if !rig.Adjacent(pair.A, pair.B) {
				return utils.NewConfigError("cameras %s and %s do not overlap", pair.A, pair.B)
			}
		}
		if p.AnchorWeight <= 0 || p.CrossWeight <= 0 {
			return utils.NewConfigError("cross camera weights must be positive")
		}
	case ShapeFullCalibration, ShapeExtrinsic:
		if p.Camera == nil {
			return utils.NewConfigError("%s problem needs camera parameters", p.Shape)
		}
		if len(p.Object) != len(p.Observed) {
			return utils.NewConfigError("%d object points but %d observations", len(p.Object), len(p.Observed))
		}
		if len(p.Observed) < 4 {
			return utils.NewGeometryFailure("pose refinement needs 4 points, got %d", len(p.Observed))
		}
	default:
		return utils.NewConfigError("unknown problem shape %d", int(p.Shape))
	}
	return nil
}

// Residuals evaluates the residual vector at x into out. It fails when a point cannot be
// projected, for example because a pose candidate puts it behind the camera.
func (p *Problem) Residuals(x, out []float64) error {
	switch p.Shape {
	case ShapeHomography:
		homographyResiduals(transform.HomographyFromParams(x), p.Points, 1, out)
		return nil
	case ShapeCrossCamera:
		return p.crossResiduals(x, out)
	default:
		return p.projectionResiduals(x, out)
	}
}

func homographyResiduals(h *transform.Homography, pts []Correspondence, weight float64, out []float64) int {
	for i, c := range pts {
		q := h.Apply(c.Src)
		out[2*i] = weight * (q.X - c.Dst.X)
		out[2*i+1] = weight * (q.Y - c.Dst.Y)
	}
	return 2 * len(pts)
}

func (p *Problem) crossResiduals(x, out []float64) error {
	var hs [rig.NumCameras]*transform.Homography
	k := 0
	for _, pos := range rig.Positions {
		hs[pos] = transform.HomographyFromParams(x[8*int(pos) : 8*int(pos)+8])
		k += homographyResiduals(hs[pos], p.Anchors[pos], p.AnchorWeight, out[k:])
	}
	write := func(a, b r2.Point) {
		d := a.Sub(b)
		out[k] = p.CrossWeight * d.X
		out[k+1] = p.CrossWeight * d.Y
		k += 2
	}
	for _, pair := range p.CrossPairs {
		ha, hb := hs[pair.A], hs[pair.B]
		write(ha.Apply(pair.First.A), hb.Apply(pair.First.B))
		if pair.Second != nil {
			write(ha.Apply(pair.Second.A), hb.Apply(pair.Second.B))
		}
	}
	return nil
}

// unpack splits x into the camera it describes and the pose.
func (p *Problem) unpack(x []float64) (*transform.CameraParameters, r3.Vector, r3.Vector) {
	cam := p.Camera
	if p.Shape == ShapeFullCalibration {
		cam = p.Camera.WithIntrinsics(x[0], x[1], x[2], x[3])
		x = x[4:]
	}
	return cam, r3.Vector{X: x[0], Y: x[1], Z: x[2]}, r3.Vector{X: x[3], Y: x[4], Z: x[5]}
}

func (p *Problem) projectionResiduals(x, out []float64) error {
	cam, rvec, tvec := p.unpack(x)
	for i, pw := range p.Object {
		q, err := cam.SpaceToPlane(pw, rvec, tvec)
		if err != nil {
			return err
		}
		out[2*i] = q.X - p.Observed[i].X
		out[2*i+1] = q.Y - p.Observed[i].Y
	}
	return nil
}

// Cost returns the sum of squared residuals at x.
func (p *Problem) Cost(x []float64) (float64, error) {
	r := make([]float64, p.NumResiduals())
	if err := p.Residuals(x, r); err != nil {
		return math.Inf(1), err
	}
	return sumSquares(r), nil
}

// PointErrors returns the euclidean error of every 2D residual pair at x.
func (p *Problem) PointErrors(x []float64) ([]float64, error) {
	r := make([]float64, p.NumResiduals())
	if err := p.Residuals(x, r); err != nil {
		return nil, err
	}
	out := make([]float64, len(r)/2)
	for i := range out {
		out[i] = math.Hypot(r[2*i], r[2*i+1])
	}
	return out, nil
}

// HomographyProblem returns the single camera homography refinement problem.
func HomographyProblem(src, dst []r2.Point) *Problem {
	return &Problem{Shape: ShapeHomography, Free: FreeGeometry, Points: correspondences(src, dst)}
}

// PoseProblem returns the extrinsic-only problem, or the full calibration problem when
// intrinsics are free.
func PoseProblem(cam *transform.CameraParameters, object []r3.Vector, observed []r2.Point, refineIntrinsics bool) *Problem {
	p := &Problem{Shape: ShapeExtrinsic, Free: FreeGeometry, Camera: cam, Object: object, Observed: observed}
	if refineIntrinsics {
		p.Shape = ShapeFullCalibration
		p.Free |= FreeIntrinsics
	}
	return p
}

// PoseParams packs an optional camera and a pose into the x layout of a pose problem.
func (p *Problem) PoseParams(pose *transform.CamPose) []float64 {
	var x []float64
	if p.Shape == ShapeFullCalibration {
		x = append(x, p.Camera.Fx, p.Camera.Fy, p.Camera.Ppx, p.Camera.Ppy)
	}
	return append(x, pose.Rvec.X, pose.Rvec.Y, pose.Rvec.Z, pose.Tvec.X, pose.Tvec.Y, pose.Tvec.Z)
}

// PoseFromParams unpacks the solution of a pose problem.
func (p *Problem) PoseFromParams(x []float64) (*transform.CameraParameters, *transform.CamPose) {
	cam, rvec, tvec := p.unpack(x)
	return cam, &transform.CamPose{Rvec: rvec, Tvec: tvec}
}

func correspondences(src, dst []r2.Point) []Correspondence {
	n := len(src)
	if len(dst) < n {
		n = len(dst)
	}
	out := make([]Correspondence, n)
	for i := range out {
		out[i] = Correspondence{src[i], dst[i]}
	}
	return out
}

func sumSquares(r []float64) float64 {
	return floats.Dot(r, r)
}
