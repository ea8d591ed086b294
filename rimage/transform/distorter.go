package transform

import (
	"math"
	"sync"

	"github.com/pkg/errors"
)

// DistortionType is the name of the distortion model.
type DistortionType string

// KannalaBrandtDistortionType is for wide-angle and fisheye lense distortion.
const KannalaBrandtDistortionType = DistortionType("kannala_brandt")

// Distorter defines a Transform that takes an undistorted normalized point and distorts it
// according to the model.
type Distorter interface {
	ModelType() DistortionType
	CheckValid() error
	Parameters() []float64
	Transform(x, y float64) (float64, float64)
}

// InvalidDistortionError is used when the distortion_parameters are invalid.
func InvalidDistortionError(msg string) error {
	return errors.Wrap(errors.New("invalid distortion_parameters"), msg)
}

// NewDistorter returns a Distorter given a valid DistortionType and its parameters.
func NewDistorter(distortionType DistortionType, parameters []float64) (Distorter, error) {
	switch distortionType {
	case KannalaBrandtDistortionType:
		return NewKannalaBrandt(parameters)
	default:
		return nil, errors.Errorf("do not know how to parse %q distortion model", distortionType)
	}
}

// KannalaBrandt is the equidistant fisheye model, theta_d = theta(1 + k1 theta^2 + k2 theta^4 + k3 theta^6 + k4 theta^8)
// where theta is the angle between the ray and the optical axis and theta_d is the distorted
// radius on the normalized image plane.
type KannalaBrandt struct {
	K1 float64 `json:"k1"`
	K2 float64 `json:"k2"`
	K3 float64 `json:"k3"`
	K4 float64 `json:"k4"`
}

// NewKannalaBrandt takes in a slice of up to four floats that will be passed into the struct in order.
func NewKannalaBrandt(inp []float64) (*KannalaBrandt, error) {
	if len(inp) > 4 {
		return nil, errors.Errorf("list of parameters too long, expected max 4, got %d", len(inp))
	}
	params := make([]float64, 4)
	copy(params, inp)
	kb := &KannalaBrandt{params[0], params[1], params[2], params[3]}
	return kb, kb.CheckValid()
}

// ModelType returns the type of distortion model.
func (kb *KannalaBrandt) ModelType() DistortionType {
	return KannalaBrandtDistortionType
}

// CheckValid checks that the polynomial is finite and increasing at the origin.
func (kb *KannalaBrandt) CheckValid() error {
	if kb == nil {
		return InvalidDistortionError("KannalaBrandt shaped distortion_parameters not provided")
	}
	for _, k := range kb.Parameters() {
		if math.IsNaN(k) || math.IsInf(k, 0) {
			return InvalidDistortionError("KannalaBrandt coefficients must be finite")
		}
	}
	if kb.MaxTheta() < 0.1 {
		return InvalidDistortionError("KannalaBrandt polynomial is not monotonic near the optical axis")
	}
	return nil
}

// Parameters returns the parameters of the distortion model as a list of floats.
func (kb *KannalaBrandt) Parameters() []float64 {
	if kb == nil {
		return []float64{}
	}
	return []float64{kb.K1, kb.K2, kb.K3, kb.K4}
}

// DistortTheta evaluates theta_d for the incidence angle theta.
func (kb *KannalaBrandt) DistortTheta(theta float64) float64 {
	t2 := theta * theta
	return theta * (1 + t2*(kb.K1+t2*(kb.K2+t2*(kb.K3+t2*kb.K4))))
}

// distortThetaDerivative is d(theta_d)/d(theta).
func (kb *KannalaBrandt) distortThetaDerivative(theta float64) float64 {
	t2 := theta * theta
	return 1 + t2*(3*kb.K1+t2*(5*kb.K2+t2*(7*kb.K3+t2*9*kb.K4)))
}

// maxThetaCache holds MaxTheta per coefficient set, since projection asks for it on every pixel.
var maxThetaCache sync.Map // [4]float64 -> float64

// MaxTheta returns the largest incidence angle in [0, pi] up to which theta_d is strictly
// increasing. The model is only invertible on [0, MaxTheta()].
func (kb *KannalaBrandt) MaxTheta() float64 {
	key := [4]float64{kb.K1, kb.K2, kb.K3, kb.K4}
	if v, ok := maxThetaCache.Load(key); ok {
		return v.(float64)
	}
	v := kb.findMaxTheta()
	if !math.IsNaN(v) {
		maxThetaCache.Store(key, v)
	}
	return v
}

// findMaxTheta brackets the first non-positive derivative with a coarse scan and bisects it.
func (kb *KannalaBrandt) findMaxTheta() float64 {
	const step = 1e-2
	for lo := 0.0; lo < math.Pi; lo += step {
		hi := math.Min(lo+step, math.Pi)
		if kb.distortThetaDerivative(hi) > 0 {
			continue
		}
		for i := 0; i < 40; i++ {
			mid := 0.5 * (lo + hi)
			if kb.distortThetaDerivative(mid) > 0 {
				lo = mid
			} else {
				hi = mid
			}
		}
		return lo
	}
	return math.Pi
}

// Transform distorts a point on the normalized pinhole plane (z = 1).
func (kb *KannalaBrandt) Transform(x, y float64) (float64, float64) {
	r := math.Hypot(x, y)
	if r < 1e-12 {
		return x, y
	}
	scale := kb.DistortTheta(math.Atan(r)) / r
	return x * scale, y * scale
}

const (
	// backprojectTolerance bounds |theta_d(theta) - observed radius| on the normalized plane.
	backprojectTolerance = 1e-6
	// backprojectMaxIterations bounds the safeguarded Newton iteration.
	backprojectMaxIterations = 50
)

// UndistortTheta inverts DistortTheta on [0, MaxTheta()] with Newton steps, falling back to
// bisection whenever a step leaves the bracket. It fails with a geometry error when the radius is
// outside the invertible range or the iteration bound is hit.
func (kb *KannalaBrandt) UndistortTheta(thetaD float64) (float64, error) {
	if math.IsNaN(thetaD) || math.IsInf(thetaD, 0) || thetaD < 0 {
		return 0, newGeometryError("invalid distorted radius %v", thetaD)
	}
	if thetaD == 0 {
		return 0, nil
	}
	maxTheta := kb.MaxTheta()
	if maxD := kb.DistortTheta(maxTheta); thetaD > maxD+backprojectTolerance {
		return 0, newGeometryError("distorted radius %.6f beyond model range %.6f", thetaD, maxD)
	}

	lo, hi := 0.0, maxTheta
	theta := math.Min(thetaD, maxTheta)
	for i := 0; i < backprojectMaxIterations; i++ {
		f := kb.DistortTheta(theta) - thetaD
		if math.Abs(f) < backprojectTolerance {
			return theta, nil
		}
		if f > 0 {
			hi = theta
		} else {
			lo = theta
		}
		d := kb.distortThetaDerivative(theta)
		next := theta - f/d
		if d <= 0 || math.IsNaN(next) || next <= lo || next >= hi {
			next = 0.5 * (lo + hi)
		}
		theta = next
	}
	return 0, newGeometryError("backprojection of radius %.6f did not converge in %d iterations", thetaD, backprojectMaxIterations)
}
