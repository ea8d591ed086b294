package composition

import (
	"image"
	"math"

	"gonum.org/v1/gonum/dsp/fourier"

	"go.viam.com/birdseye/rig"
	"go.viam.com/birdseye/rimage"
)

const (
	// eigenvalues below poissonEpsilon are replaced by poissonFloor, which zeroes the DC term
	poissonEpsilon = 1e-8
	poissonFloor   = 1e-12
)

// PoissonSolver reconstructs an image from a gradient field with no flux across the canvas border.
// The field is reflected to twice the canvas size in each direction, which turns that boundary
// into a periodic one solved by dividing the spectrum of the divergence by the eigenvalues of the
// discrete Laplacian. The eigenvalue parameter depends only on the canvas size and is shared by
// every frame.
type PoissonSolver struct {
	size  image.Point
	param []float64 // (2 - 2cos(2πk/2W)) + (2 - 2cos(2πl/2H)) + λ, row-major over (l, k)
}

// NewPoissonSolver precomputes the eigenvalue parameter for a canvas size.
func NewPoissonSolver(size image.Point, lambda float64) *PoissonSolver {
	pw, ph := 2*size.X, 2*size.Y
	param := make([]float64, pw*ph)
	for l := 0; l < ph; l++ {
		ey := 2 - 2*math.Cos(2*math.Pi*float64(l)/float64(ph))
		for k := 0; k < pw; k++ {
			v := 2 - 2*math.Cos(2*math.Pi*float64(k)/float64(pw)) + ey + lambda
			if v < poissonEpsilon {
				v = poissonFloor
			}
			param[l*pw+k] = v
		}
	}
	return &PoissonSolver{size: size, param: param}
}

// reflect maps a coordinate of the doubled grid back onto [0, n).
func reflect(v, n int) int {
	if v < n {
		return v
	}
	return 2*n - 1 - v
}

// reflectedStep locates the forward difference at coordinate v of the doubled grid along an axis
// of length n: it is sign times the original difference at src. Steps across either mirror line
// are zero and the reflected half runs backwards.
func reflectedStep(v, n int) (src int, sign float64) {
	switch {
	case v == n-1 || v == 2*n-1:
		return 0, 0
	case v < n:
		return v, 1
	default:
		return 2*n - 2 - v, -1
	}
}

// Solve returns the image whose forward differences best match (gx, gy) in the least squares
// sense, shifted to have the given mean. Differences in the last column of gx and the last row of
// gy point outside the canvas and are ignored.
func (s *PoissonSolver) Solve(gx, gy []float64, mean float64) []float64 {
	w, h := s.size.X, s.size.Y
	pw, ph := 2*w, 2*h
	px := make([]float64, pw*ph)
	py := make([]float64, pw*ph)
	for y := 0; y < ph; y++ {
		ry := reflect(y, h)
		sy, signY := reflectedStep(y, h)
		for x := 0; x < pw; x++ {
			sx, signX := reflectedStep(x, w)
			px[y*pw+x] = signX * gx[ry*w+sx]
			py[y*pw+x] = signY * gy[sy*w+reflect(x, w)]
		}
	}

	freq := make([]complex128, pw*ph)
	for y := 0; y < ph; y++ {
		ym := (y - 1 + ph) % ph
		for x := 0; x < pw; x++ {
			xm := (x - 1 + pw) % pw
			i := y*pw + x
			// backward differences of the field give the discrete Laplacian of the solution
			div := px[i] - px[y*pw+xm] + py[i] - py[ym*pw+x]
			freq[i] = complex(div, 0)
		}
	}

	fft2(freq, pw, ph, false)
	for i, p := range s.param {
		freq[i] /= complex(-p, 0)
	}
	fft2(freq, pw, ph, true)

	out := make([]float64, w*h)
	var sum float64
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			out[y*w+x] = real(freq[y*pw+x])
			sum += out[y*w+x]
		}
	}
	shift := mean - sum/float64(len(out))
	for i := range out {
		out[i] += shift
	}
	return out
}

// fft2 transforms a row-major w x h grid in place, normalizing the inverse.
func fft2(data []complex128, w, h int, inverse bool) {
	rows, cols := fourier.NewCmplxFFT(w), fourier.NewCmplxFFT(h)
	apply := func(t *fourier.CmplxFFT, seq []complex128) {
		if inverse {
			t.Sequence(seq, seq)
		} else {
			t.Coefficients(seq, seq)
		}
	}
	for y := 0; y < h; y++ {
		apply(rows, data[y*w:(y+1)*w])
	}
	col := make([]complex128, h)
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			col[y] = data[y*w+x]
		}
		apply(cols, col)
		for y := 0; y < h; y++ {
			data[y*w+x] = col[y]
		}
	}
	if inverse {
		scale := complex(1/float64(w*h), 0)
		for i := range data {
			data[i] *= scale
		}
	}
}

// SeamBlend rebuilds the composite from a merged gradient field. Each pixel takes its gradient
// from its dominant camera while the neighbour is covered by that camera too, and from the
// weighted composite otherwise. The mean of the composite is kept.
func (s *PoissonSolver) SeamBlend(
	images [rig.NumCameras]*rimage.FloatImage,
	weights *BlendWeights,
	coverage Coverage,
	composite *rimage.FloatImage,
) *rimage.FloatImage {
	w, h := s.size.X, s.size.Y
	channels := composite.Channels()
	out := rimage.NewFloatImage(w, h, channels)
	dominant := make([]rig.Position, w*h)
	for i := range dominant {
		dominant[i] = weights.Dominant(i)
	}

	gx := make([]float64, w*h)
	gy := make([]float64, w*h)
	for c := 0; c < channels; c++ {
		value := func(img *rimage.FloatImage, i int) float64 {
			return img.Data()[i*channels+c]
		}
		grad := func(i, j int) float64 {
			if d := dominant[i]; d >= 0 && coverage[d][j] {
				return value(images[d], j) - value(images[d], i)
			}
			return value(composite, j) - value(composite, i)
		}
		var sum float64
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				i := y*w + x
				gx[i], gy[i] = 0, 0
				if x+1 < w {
					gx[i] = grad(i, i+1)
				}
				if y+1 < h {
					gy[i] = grad(i, i+w)
				}
				sum += value(composite, i)
			}
		}
		for i, v := range s.Solve(gx, gy, sum/float64(w*h)) {
			out.Data()[i*channels+c] = v
		}
	}
	return out
}
