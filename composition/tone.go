package composition

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"go.viam.com/birdseye/rig"
	"go.viam.com/birdseye/rimage"
	"go.viam.com/birdseye/utils"
)

// Gains are per camera multiplicative brightness corrections.
type Gains [rig.NumCameras]float64

// UnitGains leaves every camera unchanged.
func UnitGains() Gains {
	return Gains{1, 1, 1, 1}
}

// OverlapStat is the mean luminance of both cameras of an adjacent pair over their overlap.
type OverlapStat struct {
	Pair   rig.Pair
	MeanA  float64
	MeanB  float64
	Pixels int
}

// OverlapStats measures every adjacent overlap of at least minPixels canvas pixels.
func OverlapStats(images [rig.NumCameras]*rimage.FloatImage, coverage Coverage, minPixels int) []OverlapStat {
	var lum [rig.NumCameras]*rimage.FloatImage
	for _, pos := range rig.Positions {
		lum[pos] = images[pos].Luminance()
	}
	var out []OverlapStat
	for _, pair := range rig.AdjacentPairs {
		overlap := coverage.Overlap(pair)
		if len(overlap) < minPixels {
			continue
		}
		a := make([]float64, len(overlap))
		b := make([]float64, len(overlap))
		for k, i := range overlap {
			a[k] = lum[pair.A].Data()[i]
			b[k] = lum[pair.B].Data()[i]
		}
		out = append(out, OverlapStat{
			Pair:   pair,
			MeanA:  stat.Mean(a, nil),
			MeanB:  stat.Mean(b, nil),
			Pixels: len(overlap),
		})
	}
	return out
}

// BalanceGains finds the gains minimizing
//
//	Σ ((g_a μ_a - g_b μ_b) / μ̄)² + λ Σ (g_i - 1)²
//
// over the overlap stats, where μ̄ is the mean of the pair. The normal equations are 4x4 and
// positive definite for λ > 0. Overlaps that are black in both cameras carry no information.
func BalanceGains(stats []OverlapStat, lambda float64) (Gains, error) {
	if lambda <= 0 {
		return UnitGains(), utils.NewConfigError("tone lambda must be positive, got %g", lambda)
	}
	a := mat.NewSymDense(rig.NumCameras, nil)
	b := mat.NewVecDense(rig.NumCameras, nil)
	for i := 0; i < rig.NumCameras; i++ {
		a.SetSym(i, i, lambda)
		b.SetVec(i, lambda)
	}
	for _, s := range stats {
		avg := (s.MeanA + s.MeanB) / 2
		if avg <= 0 {
			continue
		}
		ia, ib := int(s.Pair.A), int(s.Pair.B)
		ca, cb := s.MeanA/avg, -s.MeanB/avg
		a.SetSym(ia, ia, a.At(ia, ia)+ca*ca)
		a.SetSym(ib, ib, a.At(ib, ib)+cb*cb)
		a.SetSym(ia, ib, a.At(ia, ib)+ca*cb)
	}
	var chol mat.Cholesky
	if ok := chol.Factorize(a); !ok {
		return UnitGains(), utils.NewGeometryFailure("tone normal equations are not positive definite")
	}
	var g mat.VecDense
	if err := chol.SolveVecTo(&g, b); err != nil {
		return UnitGains(), errors.Wrap(err, "cannot solve tone gains")
	}
	var out Gains
	for i := range out {
		out[i] = g.AtVec(i)
	}
	return out, nil
}

// Apply scales every camera image by its gain in place.
func (g Gains) Apply(images [rig.NumCameras]*rimage.FloatImage) {
	for _, pos := range rig.Positions {
		if g[pos] != 1 {
			images[pos].Scale(g[pos])
		}
	}
}
