package transform

import (
	"math"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// Homography is a 3x3 matrix (represented as a 2D array) used to transform a plane from the perspective of a 2D
// camera to another plane. Indices are [row][column]. Estimated homographies are normalized so that
// the bottom right entry is 1.
type Homography [3][3]float64

// NewHomography creates a homography from a row-major slice of 9 floats.
func NewHomography(vals []float64) (*Homography, error) {
	if len(vals) != 9 {
		return nil, errors.Errorf("input to NewHomography must have length of 9. Has length of %d", len(vals))
	}
	var h Homography
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			h[i][j] = vals[3*i+j]
		}
	}
	return &h, nil
}

// IdentityHomography returns the identity transform.
func IdentityHomography() *Homography {
	return &Homography{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}
}

// At returns the entry at row, col.
func (h *Homography) At(row, col int) float64 {
	return h[row][col]
}

// Slice returns the entries row-major.
func (h *Homography) Slice() []float64 {
	return []float64{h[0][0], h[0][1], h[0][2], h[1][0], h[1][1], h[1][2], h[2][0], h[2][1], h[2][2]}
}

// Params returns the 8 free entries of a normalized homography.
func (h *Homography) Params() []float64 {
	return h.Slice()[:8]
}

// HomographyFromParams is the inverse of Params.
func HomographyFromParams(p []float64) *Homography {
	return &Homography{{p[0], p[1], p[2]}, {p[3], p[4], p[5]}, {p[6], p[7], 1}}
}

// Dense returns the homography as a matrix.
func (h *Homography) Dense() *mat.Dense {
	return mat.NewDense(3, 3, h.Slice())
}

// ApplyHomogeneous returns the transformed point together with its homogeneous scale w.
func (h *Homography) ApplyHomogeneous(pt r2.Point) (r2.Point, float64) {
	x := h[0][0]*pt.X + h[0][1]*pt.Y + h[0][2]
	y := h[1][0]*pt.X + h[1][1]*pt.Y + h[1][2]
	w := h[2][0]*pt.X + h[2][1]*pt.Y + h[2][2]
	return r2.Point{X: x / w, Y: y / w}, w
}

// Apply transforms pt.
func (h *Homography) Apply(pt r2.Point) r2.Point {
	p, _ := h.ApplyHomogeneous(pt)
	return p
}

// ApplyAll transforms every point.
func (h *Homography) ApplyAll(pts []r2.Point) []r2.Point {
	out := make([]r2.Point, len(pts))
	for i, p := range pts {
		out[i] = h.Apply(p)
	}
	return out
}

// Inverse returns the normalized inverse homography.
func (h *Homography) Inverse() (*Homography, error) {
	a, b, c := h[0][0], h[0][1], h[0][2]
	d, e, f := h[1][0], h[1][1], h[1][2]
	g, k, l := h[2][0], h[2][1], h[2][2]
	det := a*(e*l-f*k) - b*(d*l-f*g) + c*(d*k-e*g)
	scale := 0.0
	for _, v := range h.Slice() {
		scale = math.Max(scale, math.Abs(v))
	}
	if scale == 0 || math.Abs(det) < 1e-14*scale*scale*scale {
		return nil, newGeometryError("homography is singular")
	}
	inv := Homography{
		{e*l - f*k, c*k - b*l, b*f - c*e},
		{f*g - d*l, a*l - c*g, c*d - a*f},
		{d*k - e*g, b*g - a*k, a*e - b*d},
	}
	return inv.Normalized()
}

// ApplyInverse transforms pt with the inverse homography.
func (h *Homography) ApplyInverse(pt r2.Point) (r2.Point, error) {
	inv, err := h.Inverse()
	if err != nil {
		return r2.Point{}, err
	}
	return inv.Apply(pt), nil
}

// Normalized returns a copy scaled so that the bottom right entry is 1.
func (h *Homography) Normalized() (*Homography, error) {
	if math.Abs(h[2][2]) < 1e-12 || math.IsNaN(h[2][2]) {
		return nil, newGeometryError("homography cannot be normalized, h22 = %v", h[2][2])
	}
	var out Homography
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			out[i][j] = h[i][j] / h[2][2]
			if math.IsNaN(out[i][j]) || math.IsInf(out[i][j], 0) {
				return nil, newGeometryError("homography is not finite")
			}
		}
	}
	return &out, nil
}

// Compose returns the homography applying other first and then h.
func (h *Homography) Compose(other *Homography) (*Homography, error) {
	var out mat.Dense
	out.Mul(h.Dense(), other.Dense())
	c, err := NewHomography(out.RawMatrix().Data)
	if err != nil {
		return nil, err
	}
	return c.Normalized()
}

// EstimateHomography computes the homography mapping src onto dst with the normalized direct linear
// transform. It needs at least 4 correspondences, not all collinear, in general position.
func EstimateHomography(src, dst []r2.Point) (*Homography, error) {
	if len(src) != len(dst) {
		return nil, newGeometryError("point sets have different sizes %d and %d", len(src), len(dst))
	}
	if len(src) < 4 {
		return nil, newGeometryError("need at least 4 correspondences, got %d", len(src))
	}
	srcN, t1, err := normalizePoints(src)
	if err != nil {
		return nil, err
	}
	dstN, t2, err := normalizePoints(dst)
	if err != nil {
		return nil, err
	}
	if isCollinear(srcN) || isCollinear(dstN) {
		return nil, newGeometryError("correspondences are collinear")
	}

	a := mat.NewDense(2*len(src), 9, nil)
	for i := range srcN {
		x, y := srcN[i].X, srcN[i].Y
		u, v := dstN[i].X, dstN[i].Y
		a.SetRow(2*i, []float64{-x, -y, -1, 0, 0, 0, u * x, u * y, u})
		a.SetRow(2*i+1, []float64{0, 0, 0, -x, -y, -1, v * x, v * y, v})
	}
	mats := performSVD(a)
	if mats == nil {
		return nil, newGeometryError("SVD of the DLT system failed")
	}
	// the null space must be one dimensional
	if mats.Values[0] == 0 || mats.Values[7] < 1e-8*mats.Values[0] {
		return nil, newGeometryError("degenerate correspondences, DLT system is rank deficient")
	}
	hn := mat.NewDense(3, 3, mat.Col(nil, 8, mats.V))

	// denormalize: T2^-1 Hn T1
	var t2inv mat.Dense
	if err := t2inv.Inverse(t2); err != nil {
		return nil, newGeometryError("normalization is singular")
	}
	var hd mat.Dense
	hd.Mul(&t2inv, hn)
	hd.Mul(&hd, t1)
	h, err := NewHomography(hd.RawMatrix().Data)
	if err != nil {
		return nil, err
	}
	return h.Normalized()
}
