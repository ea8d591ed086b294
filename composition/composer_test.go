package composition

import (
	"context"
	"errors"
	"image"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"go.viam.com/test"

	"go.viam.com/birdseye/logging"
	"go.viam.com/birdseye/rig"
	"go.viam.com/birdseye/utils"
)

// steppingClock advances a mock clock by step every time it is read.
type steppingClock struct {
	*clock.Mock
	step time.Duration
}

func (c *steppingClock) Now() time.Time {
	c.Add(c.step)
	return c.Mock.Now()
}

func (c *steppingClock) Since(t time.Time) time.Duration {
	return c.Now().Sub(t)
}

func TestNewComposer(t *testing.T) {
	logger := logging.NewTestLogger(t)
	_, err := New(context.Background(), nil, testConfig(), logger)
	test.That(t, errors.Is(err, utils.ErrConfig), test.ShouldBeTrue)

	cfg := testConfig()
	cfg.Source = "lidar"
	_, err = New(context.Background(), testSnapshot(t, 1.0), cfg, logger)
	test.That(t, errors.Is(err, utils.ErrConfig), test.ShouldBeTrue)

	snap := testSnapshot(t, 1.0)
	c := newTestComposer(t, snap, testConfig())
	test.That(t, c.Plan().CalibrationID(), test.ShouldEqual, snap.ID)
	test.That(t, c.Plan().SourceSizes[rig.Rear], test.ShouldResemble, image.Pt(640, 480))
	test.That(t, c.Plan().Poisson, test.ShouldBeNil)
}

func TestCompose(t *testing.T) {
	snap := testSnapshot(t, 1.0)
	c := newTestComposer(t, snap, testConfig())
	size := image.Pt(640, 480)

	canvas, err := c.Compose(context.Background(), uniformFrames(size, [rig.NumCameras]uint8{100, 100, 100, 100}))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, canvas.Size(), test.ShouldResemble, image.Pt(160, 160))
	test.That(t, canvas.Channels(), test.ShouldEqual, 1)

	plan := c.Plan()
	layout := snap.Layout()
	covered := 0
	for i, v := range canvas.Data() {
		if plan.Coverage.Count(i) == 0 {
			test.That(t, v, test.ShouldEqual, 0)
			continue
		}
		covered++
		test.That(t, v, test.ShouldAlmostEqual, 100, 1e-3)
	}
	test.That(t, covered, test.ShouldBeGreaterThan, 1000)
	centre := layout.GroundToCanvas(r2.Point{})
	test.That(t, canvas.Get(int(centre.X), int(centre.Y), 0), test.ShouldEqual, 0)

	t.Run("color", func(t *testing.T) {
		cfg := testConfig()
		cfg.Channels = 3
		c := newTestComposer(t, snap, cfg)
		canvas, err := c.Compose(context.Background(), [rig.NumCameras]image.Image{
			texturedFrame(size, 0), texturedFrame(size, 0), texturedFrame(size, 0), texturedFrame(size, 0),
		})
		test.That(t, err, test.ShouldBeNil)
		test.That(t, canvas.Channels(), test.ShouldEqual, 3)
		test.That(t, canvas.ToImage().Bounds().Size(), test.ShouldResemble, image.Pt(160, 160))
	})
}

func TestComposeSeamBlend(t *testing.T) {
	snap := testSnapshot(t, 1.0)
	frames := uniformFrames(image.Pt(640, 480), [rig.NumCameras]uint8{90, 90, 90, 90})

	plain, err := newTestComposer(t, snap, testConfig()).Compose(context.Background(), frames)
	test.That(t, err, test.ShouldBeNil)

	cfg := testConfig()
	cfg.Poisson = true
	c := newTestComposer(t, snap, cfg)
	test.That(t, c.Plan().Poisson, test.ShouldNotBeNil)
	blended, err := c.Compose(context.Background(), frames)
	test.That(t, err, test.ShouldBeNil)
	// consistent cameras leave nothing to hide
	for i, v := range blended.Data() {
		test.That(t, v, test.ShouldAlmostEqual, plain.Data()[i], 1e-4)
	}
}

func TestComposeFrameSizes(t *testing.T) {
	snap := testSnapshot(t, 1.0)
	c := newTestComposer(t, snap, testConfig())
	values := [rig.NumCameras]uint8{100, 100, 100, 100}

	_, err := c.Compose(context.Background(), uniformFrames(image.Pt(320, 240), values))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, c.Plan().SourceSizes[rig.Front], test.ShouldResemble, image.Pt(320, 240))
	test.That(t, c.Plan().CalibrationID(), test.ShouldEqual, snap.ID)

	_, err = c.Compose(context.Background(), uniformFrames(image.Pt(640, 640), values))
	test.That(t, errors.Is(err, utils.ErrRuntimeMismatch), test.ShouldBeTrue)
	test.That(t, c.Plan().SourceSizes[rig.Front], test.ShouldResemble, image.Pt(320, 240))

	frames := uniformFrames(image.Pt(320, 240), values)
	frames[rig.Left] = nil
	_, err = c.Compose(context.Background(), frames)
	test.That(t, errors.Is(err, utils.ErrRuntimeMismatch), test.ShouldBeTrue)
}

func TestRebuildLosesToSwap(t *testing.T) {
	first := testSnapshot(t, 1.0)
	second := testSnapshot(t, 1.1)
	c := newTestComposer(t, first, testConfig())

	base := c.Plan()
	var sizes [rig.NumCameras]image.Point
	for _, pos := range rig.Positions {
		sizes[pos] = image.Pt(320, 240)
	}
	rebuilt, err := NewPlan(context.Background(), first, sizes, testConfig())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, c.Swap(context.Background(), second), test.ShouldBeNil)

	_, err = c.adopt(base, rebuilt)
	test.That(t, errors.Is(err, utils.ErrRuntimeMismatch), test.ShouldBeTrue)
	test.That(t, c.Plan().CalibrationID(), test.ShouldEqual, second.ID)
	test.That(t, c.Plan().SourceSizes[rig.Front], test.ShouldResemble, image.Pt(640, 480))

	current := c.Plan()
	rebuilt, err = NewPlan(context.Background(), second, sizes, testConfig())
	test.That(t, err, test.ShouldBeNil)
	got, err := c.adopt(current, rebuilt)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, got, test.ShouldEqual, rebuilt)
	test.That(t, c.Plan(), test.ShouldEqual, rebuilt)
}

func TestComposeDuringSwap(t *testing.T) {
	first := testSnapshot(t, 1.0)
	second := testSnapshot(t, 1.1)
	c := newTestComposer(t, first, testConfig())
	frames := uniformFrames(image.Pt(640, 480), [rig.NumCameras]uint8{100, 100, 100, 100})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for w := 0; w < 3; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ctx.Err() == nil {
				canvas, err := c.Compose(ctx, frames)
				if err != nil {
					if ctx.Err() == nil {
						errs <- err
					}
					return
				}
				if canvas.Size() != image.Pt(160, 160) {
					errs <- errors.New("wrong canvas size")
					return
				}
			}
		}()
	}
	for i := 0; i < 6; i++ {
		next := second
		if i%2 == 1 {
			next = first
		}
		test.That(t, c.Swap(context.Background(), next), test.ShouldBeNil)
		test.That(t, c.Plan().CalibrationID(), test.ShouldEqual, next.ID)
	}
	cancel()
	wg.Wait()
	close(errs)
	for err := range errs {
		test.That(t, err, test.ShouldBeNil)
	}
	test.That(t, c.Plan().CalibrationID(), test.ShouldEqual, first.ID)
}

func TestComposeSlowFrame(t *testing.T) {
	snap := testSnapshot(t, 1.0)
	frames := uniformFrames(image.Pt(640, 480), [rig.NumCameras]uint8{100, 100, 100, 100})
	cfg := testConfig()
	cfg.SlowFrame = 50 * time.Millisecond

	logger, observed := logging.NewObservedTestLogger(t)
	clk := &steppingClock{Mock: clock.NewMock(), step: 10 * time.Millisecond}
	c, err := New(context.Background(), snap, cfg, logger, WithClock(clk))
	test.That(t, err, test.ShouldBeNil)
	defer c.Close()

	_, err = c.Compose(context.Background(), frames)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, observed.FilterMessage("slow frame").Len(), test.ShouldEqual, 0)
	test.That(t, observed.FilterMessage("frame composed").Len(), test.ShouldEqual, 1)

	clk.step = 80 * time.Millisecond
	_, err = c.Compose(context.Background(), frames)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, observed.FilterMessage("slow frame").Len(), test.ShouldEqual, 1)
}

func TestComposerGround(t *testing.T) {
	snap := testSnapshot(t, 1.0)
	c := newTestComposer(t, snap, testConfig())
	layout := snap.Layout()

	p := r2.Point{X: -2.5, Y: 3}
	g := c.CanvasToGround(layout.GroundToCanvas(p))
	test.That(t, g.Sub(p).Norm(), test.ShouldBeLessThan, 1e-9)

	center := layout.BoardCenter(rig.Left)
	calib := snap.Cameras[rig.Left]
	pixel, err := calib.Intrinsics.SpaceToPlane(r3.Vector{X: center.X, Y: center.Y}, calib.Pose.Rvec, calib.Pose.Tvec)
	test.That(t, err, test.ShouldBeNil)
	got, err := c.CameraToGround(rig.Left, pixel)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, math.Hypot(got.X-center.X, got.Y-center.Y), test.ShouldBeLessThan, 1e-6)
}
