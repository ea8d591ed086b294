package rimage

import (
	"image"
	"image/color"
	"image/draw"
	"math"

	"gonum.org/v1/gonum/mat"
)

// FloatImage is a dense multi-channel image with float64 samples, stored row-major with
// interleaved channels. Samples are nominally in [0, 255] but are never clamped until the image
// is converted back with ToImage.
type FloatImage struct {
	width, height, channels int
	data                    []float64
}

// NewFloatImage returns a zeroed image.
func NewFloatImage(width, height, channels int) *FloatImage {
	if width < 0 || height < 0 || channels <= 0 {
		panic("invalid float image dimensions")
	}
	return &FloatImage{width, height, channels, make([]float64, width*height*channels)}
}

// NewFloatImageFromDense wraps a single channel matrix; rows are y.
func NewFloatImageFromDense(m mat.Matrix) *FloatImage {
	h, w := m.Dims()
	out := NewFloatImage(w, h, 1)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			out.data[y*w+x] = m.At(y, x)
		}
	}
	return out
}

// ConvertToFloatImage converts any image to a FloatImage with 1 (luma) or 3 (RGB) channels.
func ConvertToFloatImage(img image.Image, channels int) *FloatImage {
	b := img.Bounds()
	out := NewFloatImage(b.Dx(), b.Dy(), channels)
	switch src := img.(type) {
	case *image.Gray:
		for y := 0; y < b.Dy(); y++ {
			for x := 0; x < b.Dx(); x++ {
				v := float64(src.Pix[src.PixOffset(b.Min.X+x, b.Min.Y+y)])
				for c := 0; c < channels; c++ {
					out.Set(x, y, c, v)
				}
			}
		}
		return out
	case *FloatImage:
		if src.channels == channels {
			return src.Clone()
		}
	}
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			r, g, bl, _ := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
			rf, gf, bf := float64(r)/257, float64(g)/257, float64(bl)/257
			if channels == 1 {
				out.Set(x, y, 0, luma(rf, gf, bf))
				continue
			}
			out.Set(x, y, 0, rf)
			if channels > 1 {
				out.Set(x, y, 1, gf)
			}
			if channels > 2 {
				out.Set(x, y, 2, bf)
			}
		}
	}
	return out
}

func luma(r, g, b float64) float64 {
	return 0.299*r + 0.587*g + 0.114*b
}

// Width returns the width in pixels.
func (f *FloatImage) Width() int { return f.width }

// Height returns the height in pixels.
func (f *FloatImage) Height() int { return f.height }

// Channels returns the number of samples per pixel.
func (f *FloatImage) Channels() int { return f.channels }

// Size returns the width and height as a point.
func (f *FloatImage) Size() image.Point { return image.Pt(f.width, f.height) }

// Data exposes the backing samples.
func (f *FloatImage) Data() []float64 { return f.data }

// In reports whether (x, y) is inside the image.
func (f *FloatImage) In(x, y int) bool {
	return x >= 0 && y >= 0 && x < f.width && y < f.height
}

// Get returns the sample of channel c at (x, y).
func (f *FloatImage) Get(x, y, c int) float64 {
	return f.data[(y*f.width+x)*f.channels+c]
}

// Set stores the sample of channel c at (x, y).
func (f *FloatImage) Set(x, y, c int, v float64) {
	f.data[(y*f.width+x)*f.channels+c] = v
}

// Pixel returns a view of all channels at (x, y).
func (f *FloatImage) Pixel(x, y int) []float64 {
	i := (y*f.width + x) * f.channels
	return f.data[i : i+f.channels]
}

// GetClamped returns the sample at (x, y), replicating the border for out of range coordinates.
func (f *FloatImage) GetClamped(x, y, c int) float64 {
	if x < 0 {
		x = 0
	} else if x >= f.width {
		x = f.width - 1
	}
	if y < 0 {
		y = 0
	} else if y >= f.height {
		y = f.height - 1
	}
	return f.Get(x, y, c)
}

// Clone returns a deep copy.
func (f *FloatImage) Clone() *FloatImage {
	out := &FloatImage{f.width, f.height, f.channels, make([]float64, len(f.data))}
	copy(out.data, f.data)
	return out
}

// Fill sets every sample to v.
func (f *FloatImage) Fill(v float64) {
	for i := range f.data {
		f.data[i] = v
	}
}

// Scale multiplies every sample by s.
func (f *FloatImage) Scale(s float64) {
	for i := range f.data {
		f.data[i] *= s
	}
}

// Channel extracts channel c as a single channel image.
func (f *FloatImage) Channel(c int) *FloatImage {
	out := NewFloatImage(f.width, f.height, 1)
	for i := 0; i < f.width*f.height; i++ {
		out.data[i] = f.data[i*f.channels+c]
	}
	return out
}

// SetChannel copies a single channel image into channel c.
func (f *FloatImage) SetChannel(c int, src *FloatImage) {
	for i := 0; i < f.width*f.height; i++ {
		f.data[i*f.channels+c] = src.data[i]
	}
}

// Luminance returns a single channel luma image. Single channel images are cloned.
func (f *FloatImage) Luminance() *FloatImage {
	if f.channels < 3 {
		return f.Channel(0)
	}
	out := NewFloatImage(f.width, f.height, 1)
	for i := 0; i < f.width*f.height; i++ {
		p := f.data[i*f.channels : i*f.channels+3]
		out.data[i] = luma(p[0], p[1], p[2])
	}
	return out
}

// Dense copies channel c into a matrix whose rows are y.
func (f *FloatImage) Dense(c int) *mat.Dense {
	out := mat.NewDense(f.height, f.width, nil)
	for y := 0; y < f.height; y++ {
		for x := 0; x < f.width; x++ {
			out.Set(y, x, f.Get(x, y, c))
		}
	}
	return out
}

// Bilinear samples all channels at the continuous coordinate (x, y) into out. It returns false
// when the coordinate is outside [0, w-1] x [0, h-1].
func (f *FloatImage) Bilinear(x, y float64, out []float64) bool {
	if math.IsNaN(x) || math.IsNaN(y) || x < 0 || y < 0 || x > float64(f.width-1) || y > float64(f.height-1) {
		return false
	}
	x0, y0 := int(x), int(y)
	x1, y1 := x0+1, y0+1
	if x1 >= f.width {
		x1 = f.width - 1
	}
	if y1 >= f.height {
		y1 = f.height - 1
	}
	ax, ay := x-float64(x0), y-float64(y0)
	for c := 0; c < f.channels; c++ {
		top := f.Get(x0, y0, c)*(1-ax) + f.Get(x1, y0, c)*ax
		bottom := f.Get(x0, y1, c)*(1-ax) + f.Get(x1, y1, c)*ax
		out[c] = top*(1-ay) + bottom*ay
	}
	return true
}

// ColorModel implements image.Image.
func (f *FloatImage) ColorModel() color.Model {
	if f.channels == 1 {
		return color.GrayModel
	}
	return color.RGBAModel
}

// Bounds implements image.Image.
func (f *FloatImage) Bounds() image.Rectangle {
	return image.Rect(0, 0, f.width, f.height)
}

// At implements image.Image, clamping samples to [0, 255].
func (f *FloatImage) At(x, y int) color.Color {
	if !f.In(x, y) {
		return color.RGBA{}
	}
	p := f.Pixel(x, y)
	if f.channels < 3 {
		return color.Gray{Y: toUint8(p[0])}
	}
	return color.RGBA{R: toUint8(p[0]), G: toUint8(p[1]), B: toUint8(p[2]), A: 255}
}

// ToImage converts to an 8 bit *image.Gray or *image.RGBA.
func (f *FloatImage) ToImage() image.Image {
	if f.channels < 3 {
		out := image.NewGray(f.Bounds())
		for i := 0; i < f.width*f.height; i++ {
			out.Pix[i] = toUint8(f.data[i*f.channels])
		}
		return out
	}
	out := image.NewRGBA(f.Bounds())
	draw.Draw(out, out.Bounds(), f, image.Point{}, draw.Src)
	return out
}

func toUint8(v float64) uint8 {
	if math.IsNaN(v) || v <= 0 {
		return 0
	}
	if v >= 255 {
		return 255
	}
	return uint8(v + 0.5)
}
