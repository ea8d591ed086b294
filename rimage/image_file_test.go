package rimage

import (
	"image"
	"image/color"
	"path/filepath"
	"testing"

	"go.viam.com/test"
)

func TestImageFileRoundTrip(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 8, 6))
	for y := 0; y < 6; y++ {
		for x := 0; x < 8; x++ {
			img.Set(x, y, color.RGBA{R: uint8(30 * x), G: uint8(40 * y), B: 90, A: 255})
		}
	}
	dir := t.TempDir()
	for _, name := range []string{"frame.png", "frame.ppm", "frame.qoi"} {
		path := filepath.Join(dir, name)
		test.That(t, WriteImageToFile(path, img), test.ShouldBeNil)
		back, err := ReadImageFromFile(path)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, back.Bounds(), test.ShouldResemble, img.Bounds())
		r, g, b, _ := back.At(5, 4).RGBA()
		test.That(t, r>>8, test.ShouldEqual, 150)
		test.That(t, g>>8, test.ShouldEqual, 160)
		test.That(t, b>>8, test.ShouldEqual, 90)
	}

	_, err := ReadImageFromFile(filepath.Join(dir, "missing.png"))
	test.That(t, err, test.ShouldNotBeNil)

	small := ResizeImage(img, 4, 3)
	test.That(t, small.Bounds().Dx(), test.ShouldEqual, 4)
}
