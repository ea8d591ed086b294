package rimage

import (
	"image"
	"image/color"
	"testing"

	"go.viam.com/test"
)

func TestFloatImageConversions(t *testing.T) {
	rgba := image.NewRGBA(image.Rect(0, 0, 4, 3))
	rgba.Set(1, 2, color.RGBA{R: 200, G: 100, B: 50, A: 255})
	f := ConvertToFloatImage(rgba, 3)
	test.That(t, f.Size(), test.ShouldResemble, image.Pt(4, 3))
	test.That(t, f.Pixel(1, 2), test.ShouldResemble, []float64{200, 100, 50})

	gray := ConvertToFloatImage(rgba, 1)
	test.That(t, gray.Get(1, 2, 0), test.ShouldAlmostEqual, 0.299*200+0.587*100+0.114*50)
	test.That(t, f.Luminance().Get(1, 2, 0), test.ShouldAlmostEqual, gray.Get(1, 2, 0))

	back := f.ToImage().(*image.RGBA)
	test.That(t, back.RGBAAt(1, 2), test.ShouldResemble, color.RGBA{R: 200, G: 100, B: 50, A: 255})

	g8 := image.NewGray(image.Rect(2, 2, 5, 4))
	g8.SetGray(3, 3, color.Gray{Y: 77})
	fg := ConvertToFloatImage(g8, 1)
	test.That(t, fg.Get(1, 1, 0), test.ShouldEqual, 77.)

	f.Set(0, 0, 0, 300)
	f.Set(0, 0, 1, -4)
	test.That(t, f.At(0, 0), test.ShouldResemble, color.RGBA{R: 255, G: 0, B: 0, A: 255})
}

func TestBilinear(t *testing.T) {
	f := NewFloatImage(2, 2, 1)
	f.Set(0, 0, 0, 0)
	f.Set(1, 0, 0, 10)
	f.Set(0, 1, 0, 20)
	f.Set(1, 1, 0, 30)
	out := make([]float64, 1)
	test.That(t, f.Bilinear(0.5, 0.5, out), test.ShouldBeTrue)
	test.That(t, out[0], test.ShouldAlmostEqual, 15)
	test.That(t, f.Bilinear(1, 1, out), test.ShouldBeTrue)
	test.That(t, out[0], test.ShouldAlmostEqual, 30)
	test.That(t, f.Bilinear(1.01, 0, out), test.ShouldBeFalse)
	test.That(t, f.Bilinear(-0.01, 0, out), test.ShouldBeFalse)
}

func TestDenseRoundTrip(t *testing.T) {
	f := NewFloatImage(3, 2, 1)
	f.Set(2, 1, 0, 5)
	m := f.Dense(0)
	r, c := m.Dims()
	test.That(t, r, test.ShouldEqual, 2)
	test.That(t, c, test.ShouldEqual, 3)
	test.That(t, NewFloatImageFromDense(m).Get(2, 1, 0), test.ShouldEqual, 5.)
}
