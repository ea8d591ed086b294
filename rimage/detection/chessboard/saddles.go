package chessboard

import (
	"context"
	"math"
	"sort"

	"github.com/golang/geo/r2"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/birdseye/rimage"
	"go.viam.com/birdseye/utils"
)

// Corner refers to a candidate point of an image with its saddle score R.
type Corner struct {
	X float64
	Y float64
	R float64
}

// Point returns the location of the corner.
func (c Corner) Point() r2.Point {
	return r2.Point{X: c.X, Y: c.Y}
}

// computePixelWiseHessianDeterminant computes hessian components for each pixel and returns a *mat.Dense containing
// the value of the determinant of the Hessian for each pixel.
// The sign and value of the determinant of the Hessian gives location of saddle points.
func computePixelWiseHessianDeterminant(img *mat.Dense) (*mat.Dense, error) {
	nRows, nCols := img.Dims()
	sobelX := rimage.GetSobelX()
	sobelY := rimage.GetSobelY()
	gX, err := rimage.ConvolveGrayFloat64(img, &sobelX)
	if err != nil {
		return nil, err
	}
	gY, err := rimage.ConvolveGrayFloat64(img, &sobelY)
	if err != nil {
		return nil, err
	}
	gXX, err := rimage.ConvolveGrayFloat64(gX, &sobelX)
	if err != nil {
		return nil, err
	}
	gYY, err := rimage.ConvolveGrayFloat64(gY, &sobelY)
	if err != nil {
		return nil, err
	}
	gXY, err := rimage.ConvolveGrayFloat64(gX, &sobelY)
	if err != nil {
		return nil, err
	}
	m1 := mat.NewDense(nRows, nCols, nil)
	m2 := mat.NewDense(nRows, nCols, nil)
	out := mat.NewDense(nRows, nCols, nil)
	m1.MulElem(gXX, gYY)
	m2.MulElem(gXY, gXY)
	out.Sub(m1, m2)
	return out, nil
}

// NonMaxSuppression keeps the strictly positive pixels that are the maximum of their window. Ties
// are broken by raster order so a plateau yields a single corner.
func NonMaxSuppression(img *mat.Dense, winSize int) []Corner {
	h, w := img.Dims()
	var out []Corner
	for i := 0; i < h; i++ {
		for j := 0; j < w; j++ {
			v := img.At(i, j)
			if v <= 0 {
				continue
			}
			if isWindowMax(img, i, j, winSize) {
				out = append(out, Corner{X: float64(j), Y: float64(i), R: v})
			}
		}
	}
	return out
}

func isWindowMax(img *mat.Dense, i, j, winSize int) bool {
	h, w := img.Dims()
	v := img.At(i, j)
	for y := max(0, i-winSize); y < min(h, i+winSize+1); y++ {
		for x := max(0, j-winSize); x < min(w, j+winSize+1); x++ {
			o := img.At(y, x)
			if o > v || (o == v && (y < i || (y == i && x < j))) {
				return false
			}
		}
	}
	return true
}

// GetSaddlePoints returns the saddle candidates of a gray image, strongest first, together with the
// blurred image they were found on. Candidates pass a ring test at every configured radius and are
// merged when closer than the merge distance.
func GetSaddlePoints(ctx context.Context, gray *rimage.FloatImage, conf *SaddleConfiguration) ([]Corner, *rimage.FloatImage, error) {
	blurred := rimage.GaussianBlur(gray, conf.BlurSigma)
	hessian, err := computePixelWiseHessianDeterminant(blurred.Dense(0))
	if err != nil {
		return nil, nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	// saddle points are points where determinant of hessian is <0
	// for better readability, using negative determinant of Hessian
	hessian.Scale(-1.0, hessian)
	thresh := conf.RelativeThreshold * mat.Max(hessian)
	hessian.Apply(func(_, _ int, v float64) float64 {
		if v < thresh {
			return 0.
		}
		return v
	}, hessian)

	margin := 2
	for _, r := range conf.RingRadii {
		margin = max(margin, int(math.Ceil(r))+2)
	}
	var candidates []Corner
	for _, c := range NonMaxSuppression(hessian, conf.NMSWindowSize) {
		if c.X < float64(margin) || c.Y < float64(margin) ||
			c.X >= float64(gray.Width()-margin) || c.Y >= float64(gray.Height()-margin) {
			continue
		}
		if !passesRingTest(blurred, c.Point(), conf.RingRadii, conf.MinRingContrast) {
			continue
		}
		candidates = append(candidates, c)
	}
	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].R > candidates[j].R })
	return mergeCorners(candidates, conf.MergeDistance), blurred, nil
}

const ringSamples = 32

// passesRingTest checks that a circle around p crosses the mean intensity exactly four times at
// every radius, as it does around the meeting point of four alternating squares.
func passesRingTest(img *rimage.FloatImage, p r2.Point, radii []float64, minContrast float64) bool {
	for _, radius := range radii {
		transitions, contrast := ringAlternations(img, p, radius)
		if transitions != 4 || contrast < minContrast {
			return false
		}
	}
	return true
}

func ringAlternations(img *rimage.FloatImage, p r2.Point, radius float64) (int, float64) {
	var samples [ringSamples]float64
	sample := make([]float64, img.Channels())
	lo, hi, mean := math.Inf(1), math.Inf(-1), 0.0
	for i := range samples {
		a := 2 * math.Pi * float64(i) / ringSamples
		if !img.Bilinear(p.X+radius*math.Cos(a), p.Y+radius*math.Sin(a), sample) {
			return 0, 0
		}
		samples[i] = sample[0]
		lo = math.Min(lo, sample[0])
		hi = math.Max(hi, sample[0])
		mean += sample[0] / ringSamples
	}
	transitions := 0
	for i := range samples {
		if (samples[i] > mean) != (samples[(i+1)%ringSamples] > mean) {
			transitions++
		}
	}
	return transitions, hi - lo
}

// mergeCorners drops every corner closer than dist to a stronger one. Input is sorted strongest first.
func mergeCorners(corners []Corner, dist float64) []Corner {
	out := make([]Corner, 0, len(corners))
	for _, c := range corners {
		keep := true
		for _, o := range out {
			if math.Hypot(c.X-o.X, c.Y-o.Y) < dist {
				keep = false
				break
			}
		}
		if keep {
			out = append(out, c)
		}
	}
	return out
}

type genericStrategy struct{}

func (genericStrategy) Name() string { return StrategyGeneric }

// FindCorners returns the strongest saddle points, refined to sub-pixel accuracy.
func (genericStrategy) FindCorners(ctx context.Context, gray *rimage.FloatImage, pattern Pattern,
	cfg *DetectionConfiguration,
) ([]r2.Point, error) {
	candidates, _, err := GetSaddlePoints(ctx, gray, &cfg.Saddle)
	if err != nil {
		return nil, err
	}
	if len(candidates) < pattern.Count() {
		return nil, utils.NewDetectionFailure("found %d saddle points, need %d", len(candidates), pattern.Count())
	}
	pts := make([]r2.Point, pattern.Count())
	for i := range pts {
		pts[i] = candidates[i].Point()
	}
	return RefineCorners(gray, pts, cfg.RefineWindow), nil
}

func init() {
	registerStrategy(genericStrategy{})
}
