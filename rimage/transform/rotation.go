package transform

import (
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
)

// RotateVector rotates p by the axis-angle vector rvec with Rodrigues' formula.
func RotateVector(rvec, p r3.Vector) r3.Vector {
	theta := rvec.Norm()
	if theta < 1e-12 {
		return p.Add(rvec.Cross(p))
	}
	k := rvec.Mul(1 / theta)
	cos, sin := math.Cos(theta), math.Sin(theta)
	return p.Mul(cos).Add(k.Cross(p).Mul(sin)).Add(k.Mul(k.Dot(p) * (1 - cos)))
}

// RotationMatrixFromVector returns the 3x3 rotation matrix of an axis-angle vector.
func RotationMatrixFromVector(rvec r3.Vector) *mat.Dense {
	theta := rvec.Norm()
	r := eye(3)
	if theta < 1e-12 {
		return r
	}
	k := rvec.Mul(1 / theta)
	cos, sin := math.Cos(theta), math.Sin(theta)
	kk := [3]float64{k.X, k.Y, k.Z}
	r.Scale(cos, r)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			r.Set(i, j, r.At(i, j)+(1-cos)*kk[i]*kk[j])
		}
	}
	cross := getCrossProductMatFromPoint(k)
	cross.Scale(sin, cross)
	r.Add(r, cross)
	return r
}

// RotationVectorFromMatrix returns the axis-angle vector of a rotation matrix.
func RotationVectorFromMatrix(r mat.Matrix) r3.Vector {
	cosTheta := (r.At(0, 0) + r.At(1, 1) + r.At(2, 2) - 1) / 2
	cosTheta = math.Max(-1, math.Min(1, cosTheta))
	theta := math.Acos(cosTheta)
	axis := r3.Vector{
		X: r.At(2, 1) - r.At(1, 2),
		Y: r.At(0, 2) - r.At(2, 0),
		Z: r.At(1, 0) - r.At(0, 1),
	}
	switch {
	case theta < 1e-9:
		return axis.Mul(0.5)
	case math.Pi-theta < 1e-6:
		// sin(theta) vanishes, read the axis from the symmetric part
		k := r3.Vector{
			X: math.Sqrt(math.Max(0, (r.At(0, 0)+1)/2)),
			Y: math.Sqrt(math.Max(0, (r.At(1, 1)+1)/2)),
			Z: math.Sqrt(math.Max(0, (r.At(2, 2)+1)/2)),
		}
		switch {
		case k.X >= k.Y && k.X >= k.Z:
			k.Y = math.Copysign(k.Y, r.At(0, 1))
			k.Z = math.Copysign(k.Z, r.At(0, 2))
		case k.Y >= k.Z:
			k.X = math.Copysign(k.X, r.At(0, 1))
			k.Z = math.Copysign(k.Z, r.At(1, 2))
		default:
			k.X = math.Copysign(k.X, r.At(0, 2))
			k.Y = math.Copysign(k.Y, r.At(1, 2))
		}
		return k.Normalize().Mul(theta)
	default:
		return axis.Mul(theta / (2 * math.Sin(theta)))
	}
}

// getCrossProductMatFromPoint returns the skew matrix [p]x such that [p]x v = p x v.
func getCrossProductMatFromPoint(p r3.Vector) *mat.Dense {
	return mat.NewDense(3, 3, []float64{
		0, -p.Z, p.Y,
		p.Z, 0, -p.X,
		-p.Y, p.X, 0,
	})
}
