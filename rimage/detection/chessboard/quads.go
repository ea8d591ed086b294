package chessboard

import (
	"context"
	"math"

	"github.com/golang/geo/r2"
	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/floats"

	"go.viam.com/birdseye/rimage"
	"go.viam.com/birdseye/utils"
)

// component is a 4-connected set of dark pixels.
type component struct {
	pixels []r2.Point
}

// binarizeDark marks pixels darker than the image mean.
func binarizeDark(gray *rimage.FloatImage) []bool {
	data := gray.Data()
	mean, err := stats.Mean(data)
	if err != nil {
		return make([]bool, len(data))
	}
	out := make([]bool, len(data))
	for i, v := range data {
		out[i] = v < mean
	}
	return out
}

// erode keeps the pixels whose whole 3x3 neighborhood is set. Diagonally touching squares separate.
func erode(mask []bool, w, h int) []bool {
	out := make([]bool, len(mask))
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			keep := true
			for dy := -1; dy <= 1 && keep; dy++ {
				for dx := -1; dx <= 1; dx++ {
					if !mask[(y+dy)*w+x+dx] {
						keep = false
						break
					}
				}
			}
			out[y*w+x] = keep
		}
	}
	return out
}

// connectedComponents labels 4-connected regions of the mask.
func connectedComponents(mask []bool, w, h int) []component {
	seen := make([]bool, len(mask))
	var out []component
	var stack []int
	for start := range mask {
		if !mask[start] || seen[start] {
			continue
		}
		var comp component
		stack = append(stack[:0], start)
		seen[start] = true
		for len(stack) > 0 {
			i := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			x, y := i%w, i/w
			comp.pixels = append(comp.pixels, r2.Point{X: float64(x), Y: float64(y)})
			for _, n := range [4][2]int{{x - 1, y}, {x + 1, y}, {x, y - 1}, {x, y + 1}} {
				if n[0] < 0 || n[1] < 0 || n[0] >= w || n[1] >= h {
					continue
				}
				j := n[1]*w + n[0]
				if mask[j] && !seen[j] {
					seen[j] = true
					stack = append(stack, j)
				}
			}
		}
		out = append(out, comp)
	}
	return out
}

// IntensityRange returns the spread between the darkest and the brightest sample of an image.
func IntensityRange(gray *rimage.FloatImage) float64 {
	if len(gray.Data()) == 0 {
		return 0
	}
	return floats.Max(gray.Data()) - floats.Min(gray.Data())
}

// IsChessboardSquare scores a candidate dark square: it must be convex with a plausible area and
// side ratio, and every side must separate a dark inside from a brighter outside. The score is the
// weakest side contrast relative to contrast, the image's IntensityRange.
func IsChessboardSquare(gray *rimage.FloatImage, quad Quad, contrast float64, cfg *QuadConfiguration) (float64, bool) {
	if !quad.IsConvex() {
		return 0, false
	}
	imageArea := float64(gray.Width() * gray.Height())
	if frac := quad.Area() / imageArea; frac < cfg.MinAreaFraction || frac > cfg.MaxAreaFraction {
		return 0, false
	}
	sides := quad.SideLengths()
	shortest, longest := math.Inf(1), 0.0
	for _, s := range sides {
		shortest = math.Min(shortest, s)
		longest = math.Max(longest, s)
	}
	if shortest < 2 || longest/shortest > cfg.MaxSideRatio {
		return 0, false
	}

	if contrast < 1 {
		return 0, false
	}
	center := quad.Center()
	sample := make([]float64, gray.Channels())
	at := func(p r2.Point) (float64, bool) {
		if !gray.Bilinear(p.X, p.Y, sample) {
			return 0, false
		}
		return sample[0], true
	}
	inside, ok := at(center)
	if !ok {
		return 0, false
	}
	score := math.Inf(1)
	for i := 0; i < 4; i++ {
		a, b := quad[i], quad[(i+1)%4]
		mid := a.Add(b).Mul(0.5)
		normal := b.Sub(a).Ortho().Normalize()
		if normal.Dot(mid.Sub(center)) < 0 {
			normal = normal.Mul(-1)
		}
		offset := 0.25 * sides[i]
		in, okIn := at(mid.Sub(normal.Mul(offset)))
		out, okOut := at(mid.Add(normal.Mul(offset)))
		if !okIn || !okOut {
			return 0, false
		}
		score = math.Min(score, (out-math.Max(in, inside))/contrast)
	}
	return score, score >= cfg.ScoreThreshold
}

// FindSquareCorners finds the inner corners of a chessboard from its dark squares. Squares are
// fitted to the dark connected components and every pair of square corners that nearly touch
// yields the inner corner between them.
func FindSquareCorners(gray *rimage.FloatImage, pattern Pattern, cfg *QuadConfiguration) ([]r2.Point, error) {
	w, h := gray.Width(), gray.Height()
	mask := erode(binarizeDark(gray), w, h)

	contrast := IntensityRange(gray)
	minPixels := cfg.MinAreaFraction * float64(w*h)
	var squares []Quad
	var areas []float64
	for _, comp := range connectedComponents(mask, w, h) {
		if float64(len(comp.pixels)) < minPixels {
			continue
		}
		quad, ok := maxAreaQuad(convexHull(comp.pixels))
		if !ok {
			continue
		}
		if float64(len(comp.pixels)) < cfg.MinFillRatio*quad.Area() {
			continue
		}
		if _, ok := IsChessboardSquare(gray, quad, contrast, cfg); !ok {
			continue
		}
		squares = append(squares, quad)
		areas = append(areas, quad.Area())
	}
	if len(squares) < 2 {
		return nil, utils.NewDetectionFailure("found %d chessboard squares", len(squares))
	}
	median, err := stats.Median(areas)
	if err != nil {
		return nil, utils.NewDetectionFailure("no square areas: %v", err)
	}
	kept := squares[:0]
	for i, q := range squares {
		if areas[i] > median/3 && areas[i] < median*3 {
			kept = append(kept, q)
		}
	}
	squares = kept

	side := math.Sqrt(median)
	touch := 0.35 * side
	var corners []Corner
	for i := range squares {
		for j := i + 1; j < len(squares); j++ {
			for _, a := range squares[i] {
				for _, b := range squares[j] {
					if d := a.Sub(b).Norm(); d < touch {
						m := a.Add(b).Mul(0.5)
						corners = append(corners, Corner{X: m.X, Y: m.Y, R: -d})
					}
				}
			}
		}
	}
	corners = mergeCorners(corners, 0.25*side)
	if len(corners) != pattern.Count() {
		return nil, utils.NewDetectionFailure("found %d touching square corners, need %d", len(corners), pattern.Count())
	}
	pts := make([]r2.Point, len(corners))
	for i, c := range corners {
		pts[i] = c.Point()
	}
	return pts, nil
}

type quadStrategy struct{}

func (quadStrategy) Name() string { return StrategyQuads }

func (quadStrategy) FindCorners(_ context.Context, gray *rimage.FloatImage, pattern Pattern,
	cfg *DetectionConfiguration,
) ([]r2.Point, error) {
	pts, err := FindSquareCorners(gray, pattern, &cfg.Quads)
	if err != nil {
		return nil, err
	}
	return RefineCorners(gray, pts, cfg.RefineWindow), nil
}

func init() {
	registerStrategy(quadStrategy{})
}
