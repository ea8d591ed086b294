package rimage

import (
	"math"

	"github.com/pkg/errors"
)

// FillRegion replaces the unknown pixels of values (known[i] false) by a smooth diffusion of the
// known pixels. The image is alpha-premultiplied and reduced to a pyramid of half size levels,
// then the holes are filled by masked bilinear upsampling from the coarsest level down. Known
// pixels are returned unchanged. If nothing is known the result is all zero.
func FillRegion(values *FloatImage, known []bool, half HalfSizeFunc) (*FloatImage, error) {
	w, h, ch := values.Width(), values.Height(), values.Channels()
	if len(known) != w*h {
		return nil, errors.Errorf("mask has %d entries, image has %d pixels", len(known), w*h)
	}
	if w == 0 || h == 0 {
		return values.Clone(), nil
	}
	if half == nil {
		half = BoxHalfSize
	}

	premul := NewFloatImage(w, h, ch+1)
	for i, k := range known {
		if !k {
			continue
		}
		dst := premul.data[i*(ch+1) : (i+1)*(ch+1)]
		copy(dst, values.data[i*ch:(i+1)*ch])
		dst[ch] = 1
	}

	levels := pyramidLevels(w, h)
	pyramid := make([]*FloatImage, levels)
	for i := 0; i < levels; i++ {
		if i == 0 {
			pyramid[0] = half(premul)
		} else {
			pyramid[i] = half(pyramid[i-1])
		}
	}
	for i := levels - 1; i > 0; i-- {
		BiLinearDoubleSizeWithMask(pyramid[i], pyramid[i-1])
	}
	if levels > 0 {
		BiLinearDoubleSizeWithMask(pyramid[0], premul)
	}

	out := values.Clone()
	for i, k := range known {
		if k {
			continue
		}
		p := premul.data[i*(ch+1) : (i+1)*(ch+1)]
		alpha := p[ch]
		for c := 0; c < ch; c++ {
			if alpha > 0 {
				out.data[i*ch+c] = p[c] / alpha
			} else {
				out.data[i*ch+c] = 0
			}
		}
	}
	return out, nil
}

// pyramidLevels returns ceil(log2(max(w, h))), the number of halvings down to one pixel.
func pyramidLevels(w, h int) int {
	n := w
	if h > n {
		n = h
	}
	if n <= 1 {
		return 0
	}
	return int(math.Ceil(math.Log2(float64(n))))
}
