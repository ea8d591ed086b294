package rimage

import (
	"image"
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/birdseye/utils"
)

// Kernel is a 2D convolution kernel, indexed Content[y][x].
type Kernel struct {
	Content [][]float64
	Width   int
	Height  int
}

// NewKernel validates and wraps kernel content.
func NewKernel(content [][]float64) (*Kernel, error) {
	if len(content) == 0 || len(content[0]) == 0 {
		return nil, errors.New("empty kernel")
	}
	for _, row := range content {
		if len(row) != len(content[0]) {
			return nil, errors.New("kernel rows must have the same length")
		}
	}
	return &Kernel{content, len(content[0]), len(content)}, nil
}

// Size returns the kernel width and height.
func (k *Kernel) Size() image.Point {
	return image.Point{k.Width, k.Height}
}

// At returns the kernel coefficient at (x, y).
func (k *Kernel) At(x, y int) float64 {
	return k.Content[y][x]
}

// GetSobelX returns the Kernel corresponding to the Sobel kernel in the x direction.
func GetSobelX() Kernel {
	return Kernel{[][]float64{
		{-1, 0, 1},
		{-2, 0, 2},
		{-1, 0, 1},
	}, 3, 3}
}

// GetSobelY returns the Kernel corresponding to the Sobel kernel in the y direction.
func GetSobelY() Kernel {
	return Kernel{[][]float64{
		{-1, -2, -1},
		{0, 0, 0},
		{1, 2, 1},
	}, 3, 3}
}

// GetBlur3 returns the normalized 3x3 binomial blur kernel.
func GetBlur3() Kernel {
	return Kernel{[][]float64{
		{1.0 / 16, 2.0 / 16, 1.0 / 16},
		{2.0 / 16, 4.0 / 16, 2.0 / 16},
		{1.0 / 16, 2.0 / 16, 1.0 / 16},
	}, 3, 3}
}

// ConvolveGrayFloat64 implements a gray float64 image convolution with the Kernel filter.
// The kernel is centered on each pixel and borders are replicated. There is no clamping.
func ConvolveGrayFloat64(m *mat.Dense, filter *Kernel) (*mat.Dense, error) {
	h, w := m.Dims()
	if h == 0 || w == 0 {
		return nil, errors.New("cannot convolve an empty matrix")
	}
	result := mat.NewDense(h, w, nil)
	kernelSize := filter.Size()
	anchor := image.Point{kernelSize.X / 2, kernelSize.Y / 2}

	utils.ParallelForEachPixel(image.Point{w, h}, func(x, y int) {
		sum := float64(0)
		for ky := 0; ky < kernelSize.Y; ky++ {
			sy := clampInt(y+ky-anchor.Y, 0, h-1)
			for kx := 0; kx < kernelSize.X; kx++ {
				sx := clampInt(x+kx-anchor.X, 0, w-1)
				sum += m.At(sy, sx) * filter.At(kx, ky)
			}
		}
		result.Set(y, x, sum)
	})
	return result, nil
}

// GaussianKernel1D returns a normalized 1D Gaussian of the given sigma truncated at 3 sigma.
func GaussianKernel1D(sigma float64) []float64 {
	if sigma <= 0 {
		return []float64{1}
	}
	radius := int(math.Ceil(3 * sigma))
	out := make([]float64, 2*radius+1)
	var sum float64
	for i := range out {
		d := float64(i - radius)
		out[i] = math.Exp(-d * d / (2 * sigma * sigma))
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}

// GaussianBlur blurs every channel with a separable Gaussian, replicating borders.
func GaussianBlur(img *FloatImage, sigma float64) *FloatImage {
	k := GaussianKernel1D(sigma)
	if len(k) == 1 {
		return img.Clone()
	}
	return SeparableFilter(img, k, k)
}

// SeparableFilter convolves rows with kx and then columns with ky. Both kernels are centered.
func SeparableFilter(img *FloatImage, kx, ky []float64) *FloatImage {
	w, h, ch := img.Width(), img.Height(), img.Channels()
	tmp := NewFloatImage(w, h, ch)
	rx := len(kx) / 2
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			for c := 0; c < ch; c++ {
				var sum float64
				for i, kv := range kx {
					sum += kv * img.GetClamped(x+i-rx, y, c)
				}
				tmp.Set(x, y, c, sum)
			}
		}
	}
	out := NewFloatImage(w, h, ch)
	ry := len(ky) / 2
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			for c := 0; c < ch; c++ {
				var sum float64
				for i, kv := range ky {
					sum += kv * tmp.GetClamped(x, y+i-ry, c)
				}
				out.Set(x, y, c, sum)
			}
		}
	}
	return out
}

// Gradients returns central difference derivatives of a single channel image.
func Gradients(img *FloatImage) (gx, gy *FloatImage) {
	w, h := img.Width(), img.Height()
	gx = NewFloatImage(w, h, 1)
	gy = NewFloatImage(w, h, 1)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			gx.Set(x, y, 0, 0.5*(img.GetClamped(x+1, y, 0)-img.GetClamped(x-1, y, 0)))
			gy.Set(x, y, 0, 0.5*(img.GetClamped(x, y+1, 0)-img.GetClamped(x, y-1, 0)))
		}
	}
	return gx, gy
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
