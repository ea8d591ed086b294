package chessboard

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/golang/geo/r2"
	"go.viam.com/test"

	"go.viam.com/birdseye/logging"
	"go.viam.com/birdseye/rimage"
	"go.viam.com/birdseye/rimage/transform"
	"go.viam.com/birdseye/utils"
)

var testPattern = Pattern{Cols: 6, Rows: 4}

// renderBoard draws a chessboard whose squares are unit cells of board coordinates, mapped into the
// image by boardToImage, on a light background with 4x4 supersampling. The top left square is black.
// It returns the image and the true inner corners in row-major order.
func renderBoard(t *testing.T, w, h int, pattern Pattern, boardToImage *transform.Homography) (*rimage.FloatImage, []r2.Point) {
	t.Helper()
	imageToBoard, err := boardToImage.Inverse()
	test.That(t, err, test.ShouldBeNil)

	const ss = 4
	img := rimage.NewFloatImage(w, h, 1)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			sum := 0.0
			for sy := 0; sy < ss; sy++ {
				for sx := 0; sx < ss; sx++ {
					p := r2.Point{X: float64(x) + (float64(sx)+0.5)/ss - 0.5, Y: float64(y) + (float64(sy)+0.5)/ss - 0.5}
					b := imageToBoard.Apply(p)
					switch {
					case b.X < 0 || b.Y < 0 || b.X >= float64(pattern.Cols+1) || b.Y >= float64(pattern.Rows+1):
						sum += 200
					case (int(b.X)+int(b.Y))%2 == 0:
						sum += 30
					default:
						sum += 230
					}
				}
			}
			img.Set(x, y, 0, sum/(ss*ss))
		}
	}
	corners := make([]r2.Point, 0, pattern.Count())
	for r := 0; r < pattern.Rows; r++ {
		for c := 0; c < pattern.Cols; c++ {
			corners = append(corners, boardToImage.Apply(r2.Point{X: float64(c + 1), Y: float64(r + 1)}))
		}
	}
	return img, corners
}

func similarity(scale, angleDeg float64, offset r2.Point) *transform.Homography {
	a := angleDeg * math.Pi / 180
	c, s := scale*math.Cos(a), scale*math.Sin(a)
	return &transform.Homography{{c, -s, offset.X}, {s, c, offset.Y}, {0, 0, 1}}
}

func perspectiveBoard(t *testing.T) *transform.Homography {
	t.Helper()
	h, err := transform.EstimateHomography(
		[]r2.Point{{X: 0, Y: 0}, {X: 7, Y: 0}, {X: 7, Y: 5}, {X: 0, Y: 5}},
		[]r2.Point{{X: 150, Y: 120}, {X: 420, Y: 100}, {X: 450, Y: 330}, {X: 130, Y: 300}},
	)
	test.That(t, err, test.ShouldBeNil)
	return h
}

func detectorFor(t *testing.T, strategy string) *Detector {
	t.Helper()
	cfg := DefaultDetectionConfiguration()
	cfg.Strategies = []string{strategy}
	cfg.MaxAttempts = 2
	d, err := NewDetector(cfg, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	return d
}

func assertCornersNear(t *testing.T, actual, expected []r2.Point, tol float64) {
	t.Helper()
	test.That(t, len(actual), test.ShouldEqual, len(expected))
	for i := range expected {
		test.That(t, actual[i].Sub(expected[i]).Norm(), test.ShouldBeLessThan, tol)
	}
}

func TestDetectRenderedBoards(t *testing.T) {
	boards := map[string]*transform.Homography{
		"rotated":     similarity(32, 8, r2.Point{X: 200, Y: 110}),
		"perspective": perspectiveBoard(t),
	}
	for name, boardToImage := range boards {
		img, expected := renderBoard(t, 640, 480, testPattern, boardToImage)
		for _, strategy := range []string{StrategyGeneric, StrategyQuads} {
			t.Run(name+"/"+strategy, func(t *testing.T) {
				corners, err := detectorFor(t, strategy).Detect(context.Background(), img, testPattern, name)
				test.That(t, err, test.ShouldBeNil)
				assertCornersNear(t, corners, expected, 0.5)
			})
		}
	}
}

func TestDetectFailure(t *testing.T) {
	blank := rimage.NewFloatImage(320, 240, 1)
	blank.Fill(128)
	d, err := NewDetector(DefaultDetectionConfiguration(), logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	_, err = d.Detect(context.Background(), blank, testPattern, "blank")
	test.That(t, errors.Is(err, utils.ErrDetectionFailure), test.ShouldBeTrue)

	// a smaller board than asked for
	img, _ := renderBoard(t, 640, 480, Pattern{Cols: 4, Rows: 3}, similarity(32, 0, r2.Point{X: 150, Y: 150}))
	_, err = d.Detect(context.Background(), img, testPattern, "small")
	test.That(t, errors.Is(err, utils.ErrDetectionFailure), test.ShouldBeTrue)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = d.Detect(ctx, img, testPattern, "canceled")
	test.That(t, errors.Is(err, context.Canceled), test.ShouldBeTrue)
}

func TestDetectionConfigurationValidate(t *testing.T) {
	cfg := DefaultDetectionConfiguration()
	test.That(t, cfg.Validate(), test.ShouldBeNil)

	cfg.Strategies = []string{"magic"}
	test.That(t, errors.Is(cfg.Validate(), utils.ErrConfig), test.ShouldBeTrue)

	cfg = DefaultDetectionConfiguration()
	cfg.Strategies = []string{StrategyQuads, StrategyQuads}
	test.That(t, errors.Is(cfg.Validate(), utils.ErrConfig), test.ShouldBeTrue)

	cfg = DefaultDetectionConfiguration()
	cfg.MaxAttempts = 0
	test.That(t, errors.Is(cfg.Validate(), utils.ErrConfig), test.ShouldBeTrue)

	test.That(t, errors.Is(Pattern{Cols: 1, Rows: 4}.Validate(), utils.ErrConfig), test.ShouldBeTrue)
}

func gridPoints(origin, colStep, rowStep r2.Point, pattern Pattern) []r2.Point {
	pts := make([]r2.Point, 0, pattern.Count())
	for r := 0; r < pattern.Rows; r++ {
		for c := 0; c < pattern.Cols; c++ {
			pts = append(pts, origin.Add(colStep.Mul(float64(c))).Add(rowStep.Mul(float64(r))))
		}
	}
	return pts
}

func shuffled(pts []r2.Point, seed int64) []r2.Point {
	out := append([]r2.Point(nil), pts...)
	rand.New(rand.NewSource(seed)).Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out
}

func TestOrderGrid(t *testing.T) {
	t.Run("landscape", func(t *testing.T) {
		expected := gridPoints(r2.Point{X: 100, Y: 100}, r2.Point{X: 30, Y: 3}, r2.Point{X: -2, Y: 28}, testPattern)
		ordered, err := OrderGrid(shuffled(expected, 1), testPattern)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, ordered, test.ShouldResemble, expected)
	})
	t.Run("portrait", func(t *testing.T) {
		// the six corner long rows run down the image
		expected := gridPoints(r2.Point{X: 100, Y: 100}, r2.Point{X: 0, Y: 30}, r2.Point{X: 30, Y: 0}, testPattern)
		ordered, err := OrderGrid(shuffled(expected, 2), testPattern)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, ordered, test.ShouldResemble, expected)
	})
	t.Run("square pattern prefers horizontal rows", func(t *testing.T) {
		square := Pattern{Cols: 4, Rows: 4}
		expected := gridPoints(r2.Point{X: 50, Y: 60}, r2.Point{X: 30, Y: 0}, r2.Point{X: 0, Y: 30}, square)
		ordered, err := OrderGrid(shuffled(expected, 3), square)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, ordered, test.ShouldResemble, expected)
	})
	t.Run("failures", func(t *testing.T) {
		pts := gridPoints(r2.Point{X: 100, Y: 100}, r2.Point{X: 30, Y: 0}, r2.Point{X: 0, Y: 30}, testPattern)
		_, err := OrderGrid(pts[:23], testPattern)
		test.That(t, errors.Is(err, utils.ErrDetectionFailure), test.ShouldBeTrue)

		bad := append([]r2.Point(nil), pts...)
		bad[8] = bad[8].Add(r2.Point{X: 15, Y: 15})
		_, err = OrderGrid(bad, testPattern)
		test.That(t, errors.Is(err, utils.ErrDetectionFailure), test.ShouldBeTrue)
	})
}

func TestIsChessboardSquare(t *testing.T) {
	img, _ := renderBoard(t, 640, 480, testPattern, similarity(32, 0, r2.Point{X: 100, Y: 100}))
	cfg := DefaultDetectionConfiguration().Quads
	contrast := IntensityRange(img)
	test.That(t, contrast, test.ShouldAlmostEqual, 200)

	// top left square is black
	black := Quad{{X: 101, Y: 101}, {X: 130, Y: 101}, {X: 130, Y: 130}, {X: 101, Y: 130}}
	score, ok := IsChessboardSquare(img, black, contrast, &cfg)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, score, test.ShouldBeGreaterThan, 0.5)

	white := Quad{{X: 133, Y: 101}, {X: 162, Y: 101}, {X: 162, Y: 130}, {X: 133, Y: 130}}
	_, ok = IsChessboardSquare(img, white, contrast, &cfg)
	test.That(t, ok, test.ShouldBeFalse)

	bowtie := Quad{{X: 101, Y: 101}, {X: 130, Y: 130}, {X: 130, Y: 101}, {X: 101, Y: 130}}
	_, ok = IsChessboardSquare(img, bowtie, contrast, &cfg)
	test.That(t, ok, test.ShouldBeFalse)

	// a flat image has no contrast to score against
	_, ok = IsChessboardSquare(img, black, 0, &cfg)
	test.That(t, ok, test.ShouldBeFalse)
	test.That(t, IntensityRange(rimage.NewFloatImage(4, 4, 1)), test.ShouldEqual, 0)
}

func TestMaxAreaQuad(t *testing.T) {
	var pts []r2.Point
	for y := 0; y <= 20; y++ {
		for x := 0; x <= 20; x++ {
			pts = append(pts, r2.Point{X: float64(x), Y: float64(y)})
		}
	}
	quad, ok := maxAreaQuad(convexHull(pts))
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, quad.Area(), test.ShouldEqual, 400)
	test.That(t, quad.IsConvex(), test.ShouldBeTrue)

	_, ok = maxAreaQuad(convexHull(pts[:3]))
	test.That(t, ok, test.ShouldBeFalse)
}

func TestDrawCorners(t *testing.T) {
	img, corners := renderBoard(t, 320, 240, Pattern{Cols: 3, Rows: 2}, similarity(30, 0, r2.Point{X: 50, Y: 50}))
	out := DrawCorners(img, corners, Pattern{Cols: 3, Rows: 2})
	test.That(t, out.Bounds(), test.ShouldResemble, img.Bounds())
	r, _, _, _ := out.At(int(math.Round(corners[0].X)), int(math.Round(corners[0].Y))).RGBA()
	test.That(t, r, test.ShouldBeGreaterThan, 0x8000)
}
