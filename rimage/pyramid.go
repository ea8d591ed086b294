package rimage

// HalfSizeFunc halves an image, rounding odd dimensions up.
type HalfSizeFunc func(img *FloatImage) *FloatImage

// BoxHalfSize averages each 2x2 block. Blocks cut by an odd border average the pixels they have.
func BoxHalfSize(img *FloatImage) *FloatImage {
	w, h, ch := img.Width(), img.Height(), img.Channels()
	hw, hh := (w+1)/2, (h+1)/2
	out := NewFloatImage(hw, hh, ch)
	for y := 0; y < hh; y++ {
		for x := 0; x < hw; x++ {
			dst := out.Pixel(x, y)
			count := 0
			for dy := 0; dy < 2; dy++ {
				sy := 2*y + dy
				if sy >= h {
					continue
				}
				for dx := 0; dx < 2; dx++ {
					sx := 2*x + dx
					if sx >= w {
						continue
					}
					src := img.Pixel(sx, sy)
					for c := range dst {
						dst[c] += src[c]
					}
					count++
				}
			}
			inv := 1 / float64(count)
			for c := range dst {
				dst[c] *= inv
			}
		}
	}
	return out
}

// GaussianHalfSize blurs with the 5-tap binomial kernel and keeps every other pixel.
func GaussianHalfSize(img *FloatImage) *FloatImage {
	binomial := []float64{1.0 / 16, 4.0 / 16, 6.0 / 16, 4.0 / 16, 1.0 / 16}
	blurred := SeparableFilter(img, binomial, binomial)
	w, h, ch := img.Width(), img.Height(), img.Channels()
	hw, hh := (w+1)/2, (h+1)/2
	out := NewFloatImage(hw, hh, ch)
	for y := 0; y < hh; y++ {
		for x := 0; x < hw; x++ {
			copy(out.Pixel(x, y), blurred.Pixel(2*x, 2*y))
		}
	}
	return out
}

// BiLinearDoubleSize upsamples coarse into an image of the given finer size. Fine pixel x maps
// to coarse coordinate (x-0.5)/2 so pixel centers stay aligned.
func BiLinearDoubleSize(coarse *FloatImage, width, height int) *FloatImage {
	out := NewFloatImage(width, height, coarse.Channels())
	biLinearDoubleSizeInto(coarse, out, -1)
	return out
}

// BiLinearDoubleSizeWithMask upsamples coarse into fine, but only overwrites fine pixels whose
// alpha channel (the last channel) is exactly 0.
func BiLinearDoubleSizeWithMask(coarse, fine *FloatImage) {
	biLinearDoubleSizeInto(coarse, fine, fine.Channels()-1)
}

func biLinearDoubleSizeInto(coarse, fine *FloatImage, alphaChannel int) {
	cw, chh := coarse.Width(), coarse.Height()
	sample := make([]float64, coarse.Channels())
	for y := 0; y < fine.Height(); y++ {
		cy := clampFloat((float64(y)-0.5)/2, 0, float64(chh-1))
		for x := 0; x < fine.Width(); x++ {
			dst := fine.Pixel(x, y)
			if alphaChannel >= 0 && dst[alphaChannel] != 0 {
				continue
			}
			cx := clampFloat((float64(x)-0.5)/2, 0, float64(cw-1))
			coarse.Bilinear(cx, cy, sample)
			copy(dst, sample)
		}
	}
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
