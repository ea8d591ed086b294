package composition

import (
	"image"
	"math"
	"math/rand"
	"testing"

	"go.viam.com/test"

	"go.viam.com/birdseye/rig"
	"go.viam.com/birdseye/rimage"
)

// forwardDifferences leaves the steps leaving the grid at zero.
func forwardDifferences(f []float64, w, h int) (gx, gy []float64) {
	gx = make([]float64, w*h)
	gy = make([]float64, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := y*w + x
			if x+1 < w {
				gx[i] = f[i+1] - f[i]
			}
			if y+1 < h {
				gy[i] = f[i+w] - f[i]
			}
		}
	}
	return gx, gy
}

func TestPoissonSolveRecoversImage(t *testing.T) {
	w, h := 24, 18
	rng := rand.New(rand.NewSource(3))
	f := make([]float64, w*h)
	var mean float64
	for i := range f {
		f[i] = 255 * rng.Float64()
		mean += f[i]
	}
	mean /= float64(len(f))

	gx, gy := forwardDifferences(f, w, h)
	got := NewPoissonSolver(image.Pt(w, h), 0).Solve(gx, gy, mean)
	for i := range f {
		test.That(t, got[i], test.ShouldAlmostEqual, f[i], 1e-6)
	}

	shifted := NewPoissonSolver(image.Pt(w, h), 0).Solve(gx, gy, mean+10)
	test.That(t, shifted[7], test.ShouldAlmostEqual, f[7]+10, 1e-6)

	// a ramp is not periodic, so it only survives if nothing wraps around the border
	for i := range f {
		f[i] = 3 * float64(i%w)
	}
	gx, gy = forwardDifferences(f, w, h)
	got = NewPoissonSolver(image.Pt(w, h), 0).Solve(gx, gy, 1.5*float64(w-1))
	for i := range f {
		test.That(t, got[i], test.ShouldAlmostEqual, f[i], 1e-6)
	}
}

func TestPoissonScreeningKeepsMean(t *testing.T) {
	w, h := 16, 16
	f := make([]float64, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			f[y*w+x] = 50 * math.Sin(2*math.Pi*float64(x)/float64(w))
		}
	}
	gx, gy := forwardDifferences(f, w, h)
	got := NewPoissonSolver(image.Pt(w, h), 0.5).Solve(gx, gy, 40)
	var sum float64
	for _, v := range got {
		sum += v
	}
	test.That(t, sum/float64(len(got)), test.ShouldAlmostEqual, 40, 1e-9)
	// screening damps the reconstructed amplitude
	test.That(t, got[w/4]-40, test.ShouldBeLessThan, 50)
	test.That(t, got[w/4]-40, test.ShouldBeGreaterThan, 0)
}

func TestSeamBlendConsistentCameras(t *testing.T) {
	size := image.Pt(32, 24)
	base := func(x, y int) float64 {
		return 120 + 30*math.Sin(2*math.Pi*float64(x)/float64(size.X)) + 20*math.Cos(2*math.Pi*float64(y)/float64(size.Y))
	}

	var cov Coverage
	var images [rig.NumCameras]*rimage.FloatImage
	for _, pos := range rig.Positions {
		cov[pos] = make([]bool, size.X*size.Y)
		images[pos] = rimage.NewFloatImage(size.X, size.Y, 1)
	}
	for y := 0; y < size.Y; y++ {
		for x := 0; x < size.X; x++ {
			if x < 20 {
				cov[rig.Front][y*size.X+x] = true
				images[rig.Front].Set(x, y, 0, base(x, y))
			}
			if x >= 12 {
				cov[rig.Left][y*size.X+x] = true
				images[rig.Left].Set(x, y, 0, base(x, y))
			}
		}
	}
	weights, err := BuildBlendWeights(size, cov)
	test.That(t, err, test.ShouldBeNil)
	composite, err := weights.Merge(images)
	test.That(t, err, test.ShouldBeNil)

	out := NewPoissonSolver(size, 0).SeamBlend(images, weights, cov, composite)
	test.That(t, out.Size(), test.ShouldResemble, size)
	for y := 0; y < size.Y; y++ {
		for x := 0; x < size.X; x++ {
			test.That(t, out.Get(x, y, 0), test.ShouldAlmostEqual, base(x, y), 1e-6)
		}
	}
}

func TestSeamBlendHidesOffset(t *testing.T) {
	size := image.Pt(32, 8)
	var cov Coverage
	var images [rig.NumCameras]*rimage.FloatImage
	for _, pos := range rig.Positions {
		cov[pos] = make([]bool, size.X*size.Y)
		images[pos] = rimage.NewFloatImage(size.X, size.Y, 1)
	}
	for y := 0; y < size.Y; y++ {
		for x := 0; x < size.X; x++ {
			i := y*size.X + x
			if x < 18 {
				cov[rig.Front][i] = true
				images[rig.Front].Set(x, y, 0, 100)
			}
			if x >= 14 {
				cov[rig.Left][i] = true
				images[rig.Left].Set(x, y, 0, 140)
			}
		}
	}
	weights, err := BuildBlendWeights(size, cov)
	test.That(t, err, test.ShouldBeNil)
	composite, err := weights.Merge(images)
	test.That(t, err, test.ShouldBeNil)
	out := NewPoissonSolver(size, 0).SeamBlend(images, weights, cov, composite)

	jump := func(img *rimage.FloatImage) float64 {
		var worst float64
		for x := 0; x < size.X-1; x++ {
			worst = math.Max(worst, math.Abs(img.Get(x+1, 4, 0)-img.Get(x, 4, 0)))
		}
		return worst
	}
	test.That(t, jump(out), test.ShouldBeLessThanOrEqualTo, jump(composite)+1e-6)

	// away from the overlap every step matches the camera that sees both pixels
	single := func(i int) (rig.Position, bool) {
		switch {
		case cov[rig.Front][i] && !cov[rig.Left][i]:
			return rig.Front, true
		case cov[rig.Left][i] && !cov[rig.Front][i]:
			return rig.Left, true
		}
		return 0, false
	}
	for y := 0; y < size.Y; y++ {
		for x := 0; x+1 < size.X; x++ {
			a, okA := single(y*size.X + x)
			b, okB := single(y*size.X + x + 1)
			if !okA || !okB || a != b {
				continue
			}
			want := images[a].Get(x+1, y, 0) - images[a].Get(x, y, 0)
			test.That(t, out.Get(x+1, y, 0)-out.Get(x, y, 0), test.ShouldAlmostEqual, want, 1e-6)
		}
	}
	for y := 0; y+1 < size.Y; y++ {
		for x := 0; x < size.X; x++ {
			test.That(t, out.Get(x, y+1, 0), test.ShouldAlmostEqual, out.Get(x, y, 0), 1e-6)
		}
	}
	test.That(t, out.Get(0, 4, 0), test.ShouldBeLessThan, out.Get(size.X-1, 4, 0))

	var before, after float64
	for i := range composite.Data() {
		before += composite.Data()[i]
		after += out.Data()[i]
	}
	test.That(t, after, test.ShouldAlmostEqual, before, 1e-6)
}
