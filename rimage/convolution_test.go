package rimage

import (
	"testing"

	"go.viam.com/test"
	"gonum.org/v1/gonum/mat"
)

func TestConvolveGrayFloat64(t *testing.T) {
	// a horizontal ramp has a constant Sobel x response of 8 per unit slope, even at borders
	// once the replicated border is accounted for.
	m := mat.NewDense(5, 6, nil)
	for y := 0; y < 5; y++ {
		for x := 0; x < 6; x++ {
			m.Set(y, x, float64(x))
		}
	}
	sobelX := GetSobelX()
	gx, err := ConvolveGrayFloat64(m, &sobelX)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, gx.At(2, 2), test.ShouldAlmostEqual, 8)
	test.That(t, gx.At(2, 0), test.ShouldAlmostEqual, 4)

	sobelY := GetSobelY()
	gy, err := ConvolveGrayFloat64(m, &sobelY)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, mat.Max(gy), test.ShouldAlmostEqual, 0)

	_, err = NewKernel([][]float64{{1, 2}, {3}})
	test.That(t, err, test.ShouldNotBeNil)
}

func TestGaussianBlurPreservesMean(t *testing.T) {
	img := NewFloatImage(9, 9, 1)
	img.Set(4, 4, 0, 81)
	blurred := GaussianBlur(img, 1.2)
	var sum float64
	for _, v := range blurred.Data() {
		sum += v
	}
	test.That(t, sum, test.ShouldAlmostEqual, 81, 1e-6)
	test.That(t, blurred.Get(4, 4, 0), test.ShouldBeLessThan, 81)
	test.That(t, blurred.Get(4, 4, 0), test.ShouldBeGreaterThan, blurred.Get(5, 4, 0))

	k := GaussianKernel1D(0)
	test.That(t, k, test.ShouldResemble, []float64{1})
}

func TestGradients(t *testing.T) {
	img := NewFloatImage(5, 5, 1)
	for y := 0; y < 5; y++ {
		for x := 0; x < 5; x++ {
			img.Set(x, y, 0, float64(2*x+3*y))
		}
	}
	gx, gy := Gradients(img)
	test.That(t, gx.Get(2, 2, 0), test.ShouldAlmostEqual, 2)
	test.That(t, gy.Get(2, 2, 0), test.ShouldAlmostEqual, 3)
}
