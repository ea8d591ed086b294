package composition

import (
	"image"
	"math"

	"github.com/pkg/errors"

	"go.viam.com/birdseye/rig"
	"go.viam.com/birdseye/rimage"
)

// BlendWeights holds one canvas sized weight plane per camera. Wherever at least one camera
// covers a pixel the weights sum to 1, elsewhere they are all 0.
type BlendWeights struct {
	Size    image.Point
	Weights [rig.NumCameras][]float64
}

// BuildBlendWeights gives single coverage weight 1 and ramps the weight of two overlapping
// adjacent cameras smoothly across their overlap. The ramp of each pair is the diffusion of a
// mask that is 1 where only the first camera sees the ground and 0 where only the second does.
// Pixels covered by three or more cameras, or by two cameras that are not adjacent, are split
// equally.
func BuildBlendWeights(size image.Point, coverage Coverage) (*BlendWeights, error) {
	n := size.X * size.Y
	out := &BlendWeights{Size: size}
	for _, pos := range rig.Positions {
		if len(coverage[pos]) != n {
			return nil, errors.Errorf("%s coverage has %d pixels, canvas has %d", pos, len(coverage[pos]), n)
		}
		out.Weights[pos] = make([]float64, n)
	}

	counts := make([]int, n)
	for i := range counts {
		counts[i] = coverage.Count(i)
		for _, pos := range rig.Positions {
			if !coverage[pos][i] {
				continue
			}
			switch counts[i] {
			case 1:
				out.Weights[pos][i] = 1
			case 2:
				// set by the pair ramps below unless the pair is not adjacent
				out.Weights[pos][i] = 0.5
			default:
				out.Weights[pos][i] = 1 / float64(counts[i])
			}
		}
	}

	for _, pair := range rig.AdjacentPairs {
		overlap := coverage.Overlap(pair)
		pairOnly := overlap[:0:0]
		for _, i := range overlap {
			if counts[i] == 2 {
				pairOnly = append(pairOnly, i)
			}
		}
		if len(pairOnly) == 0 {
			continue
		}
		ramp, err := pairRamp(size, coverage[pair.A], coverage[pair.B])
		if err != nil {
			return nil, errors.Wrapf(err, "%s overlap", pair)
		}
		for _, i := range pairOnly {
			w := math.Min(math.Max(ramp.Data()[i], 0), 1)
			out.Weights[pair.A][i] = w
			out.Weights[pair.B][i] = 1 - w
		}
	}
	return out, nil
}

// pairRamp diffuses 1 from the pixels only a covers and 0 from the pixels only b covers into the
// rest of the canvas.
func pairRamp(size image.Point, a, b []bool) (*rimage.FloatImage, error) {
	mask := rimage.NewFloatImage(size.X, size.Y, 1)
	known := make([]bool, size.X*size.Y)
	for i := range known {
		switch {
		case a[i] && !b[i]:
			mask.Data()[i] = 1
			known[i] = true
		case b[i] && !a[i]:
			known[i] = true
		}
	}
	return rimage.FillRegion(mask, known, rimage.GaussianHalfSize)
}

// Merge sums the camera images weighted by their blend weights.
func (bw *BlendWeights) Merge(images [rig.NumCameras]*rimage.FloatImage) (*rimage.FloatImage, error) {
	channels := 0
	for _, pos := range rig.Positions {
		if images[pos] == nil || images[pos].Size() != bw.Size {
			return nil, errors.Errorf("%s image does not match the %v canvas", pos, bw.Size)
		}
		if pos == rig.Front {
			channels = images[pos].Channels()
		} else if images[pos].Channels() != channels {
			return nil, errors.Errorf("%s image has %d channels, want %d", pos, images[pos].Channels(), channels)
		}
	}
	out := rimage.NewFloatImage(bw.Size.X, bw.Size.Y, channels)
	dst := out.Data()
	for _, pos := range rig.Positions {
		src := images[pos].Data()
		for i, w := range bw.Weights[pos] {
			if w == 0 {
				continue
			}
			for c := 0; c < channels; c++ {
				dst[i*channels+c] += w * src[i*channels+c]
			}
		}
	}
	return out, nil
}

// Dominant returns the camera with the largest weight at pixel i, or -1 when none covers it.
func (bw *BlendWeights) Dominant(i int) rig.Position {
	best, bestW := rig.Position(-1), 0.0
	for _, pos := range rig.Positions {
		if w := bw.Weights[pos][i]; w > bestW {
			best, bestW = pos, w
		}
	}
	return best
}
