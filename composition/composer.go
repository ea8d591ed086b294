package composition

import (
	"context"
	"image"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/golang/geo/r2"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/atomic"

	"go.viam.com/birdseye/calibration"
	"go.viam.com/birdseye/logging"
	"go.viam.com/birdseye/rig"
	"go.viam.com/birdseye/rimage"
	"go.viam.com/birdseye/utils"
)

// Plan is the immutable composition state derived from one snapshot and one set of frame sizes.
// Frames read it concurrently; a new calibration or frame size produces a new Plan.
type Plan struct {
	Snapshot    *calibration.Snapshot
	SourceSizes [rig.NumCameras]image.Point
	Tables      [rig.NumCameras]*RemapTable
	Coverage    Coverage
	Weights     *BlendWeights
	Poisson     *PoissonSolver
}

// NewPlan builds the remap tables of every camera in parallel, then the coverage and the blend
// weights.
func NewPlan(ctx context.Context, snap *calibration.Snapshot, sizes [rig.NumCameras]image.Point, cfg Config) (*Plan, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	plan := &Plan{Snapshot: snap, SourceSizes: sizes}
	work := make([]utils.SimpleFunc, 0, rig.NumCameras)
	for _, pos := range rig.Positions {
		pos := pos
		work = append(work, func(ctx context.Context) error {
			table, err := BuildRemapTable(ctx, snap, pos, sizes[pos], cfg.Source)
			if err != nil {
				return err
			}
			plan.Tables[pos] = table
			return nil
		})
	}
	if _, err := utils.RunInParallel(ctx, work); err != nil {
		return nil, err
	}

	size := snap.Config.CanvasSize()
	plan.Coverage = BuildCoverage(snap.Layout(), size, plan.Tables)
	weights, err := BuildBlendWeights(size, plan.Coverage)
	if err != nil {
		return nil, err
	}
	plan.Weights = weights
	if cfg.Poisson {
		plan.Poisson = NewPoissonSolver(size, cfg.PoissonLambda)
	}
	return plan, nil
}

// CalibrationID returns the id of the snapshot the plan was built from.
func (p *Plan) CalibrationID() uuid.UUID {
	return p.Snapshot.ID
}

// Option configures a Composer.
type Option func(*Composer)

// WithClock replaces the clock used to time frames.
func WithClock(clk clock.Clock) Option {
	return func(c *Composer) {
		c.clock = clk
	}
}

// Composer renders canvases from frames with the current Plan. Compose, Swap and Watch are safe
// to call concurrently; each frame uses exactly one Plan from start to finish.
type Composer struct {
	cfg    Config
	plan   atomic.Pointer[Plan]
	logger logging.Logger
	clock  clock.Clock

	rebuildMu sync.Mutex
	workers   *utils.StoppableWorkers
}

// New builds the first Plan for the frame sizes the snapshot was calibrated at.
func New(ctx context.Context, snap *calibration.Snapshot, cfg Config, logger logging.Logger, opts ...Option) (*Composer, error) {
	c := &Composer{
		cfg:     cfg,
		logger:  logger,
		clock:   clock.New(),
		workers: utils.NewStoppableWorkers(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if err := c.Swap(ctx, snap); err != nil {
		c.workers.Stop()
		return nil, err
	}
	return c, nil
}

// Plan returns the current plan.
func (c *Composer) Plan() *Plan {
	return c.plan.Load()
}

// Swap builds a Plan for a new snapshot at its calibrated frame sizes and makes it current. On
// error the current Plan is kept.
func (c *Composer) Swap(ctx context.Context, snap *calibration.Snapshot) error {
	if snap == nil {
		return utils.NewConfigError("no calibration snapshot")
	}
	var sizes [rig.NumCameras]image.Point
	for _, pos := range rig.Positions {
		sizes[pos] = snap.FrameSize(pos)
	}
	start := c.clock.Now()
	plan, err := NewPlan(ctx, snap, sizes, c.cfg)
	if err != nil {
		return errors.Wrapf(err, "calibration %s", snap.ID)
	}
	old := c.plan.Swap(plan)
	fields := []interface{}{"calibration", snap.ID, "elapsed", c.clock.Since(start)}
	if old != nil {
		fields = append(fields, "previous", old.Snapshot.ID)
	}
	c.logger.Infow("composition plan swapped", fields...)
	return nil
}

// Compose renders one canvas. Frames whose size differs from the plan but keeps the calibrated
// aspect ratio trigger a plan rebuild for the new sizes; any other size is a RuntimeMismatch.
func (c *Composer) Compose(ctx context.Context, frames [rig.NumCameras]image.Image) (*rimage.FloatImage, error) {
	start := c.clock.Now()
	plan, err := c.planFor(ctx, frames)
	if err != nil {
		return nil, err
	}

	var remapped [rig.NumCameras]*rimage.FloatImage
	work := make([]utils.SimpleFunc, 0, rig.NumCameras)
	for _, pos := range rig.Positions {
		pos := pos
		work = append(work, func(ctx context.Context) error {
			img, err := Remap(rimage.ConvertToFloatImage(frames[pos], c.cfg.Channels), plan.Tables[pos], 1)
			if err != nil {
				return err
			}
			remapped[pos] = img
			return nil
		})
	}
	if _, err := utils.RunInParallel(ctx, work); err != nil {
		return nil, err
	}

	gains := UnitGains()
	if c.cfg.ToneBalance {
		gains, err = BalanceGains(OverlapStats(remapped, plan.Coverage, c.cfg.MinOverlapPixels), c.cfg.ToneLambda)
		if err != nil {
			return nil, err
		}
		gains.Apply(remapped)
	}

	canvas, err := plan.Weights.Merge(remapped)
	if err != nil {
		return nil, err
	}
	if plan.Poisson != nil {
		canvas = plan.Poisson.SeamBlend(remapped, plan.Weights, plan.Coverage, canvas)
	}

	elapsed := c.clock.Since(start)
	if c.cfg.SlowFrame > 0 && elapsed > c.cfg.SlowFrame {
		c.logger.Warnw("slow frame", "elapsed", elapsed, "budget", c.cfg.SlowFrame)
	}
	c.logger.CDebugw(ctx, "frame composed", "elapsed", elapsed, "gains", gains[:], "calibration", plan.Snapshot.ID)
	return canvas, nil
}

// planFor returns the current Plan if it matches the frame sizes, or a rebuilt one.
func (c *Composer) planFor(ctx context.Context, frames [rig.NumCameras]image.Image) (*Plan, error) {
	plan := c.plan.Load()
	var sizes [rig.NumCameras]image.Point
	match := true
	for _, pos := range rig.Positions {
		if frames[pos] == nil {
			return nil, utils.NewRuntimeMismatch("no frame for the %s camera", pos)
		}
		sizes[pos] = frames[pos].Bounds().Size()
		if sizes[pos] != plan.SourceSizes[pos] {
			match = false
			if !plan.Snapshot.Cameras[pos].Intrinsics.SameAspect(sizes[pos]) {
				return nil, utils.NewRuntimeMismatch("%s frame is %v, calibrated for %v",
					pos, sizes[pos], plan.SourceSizes[pos])
			}
		}
	}
	if match {
		return plan, nil
	}

	c.rebuildMu.Lock()
	defer c.rebuildMu.Unlock()
	current := c.plan.Load()
	if current.Snapshot != plan.Snapshot {
		return nil, utils.NewRuntimeMismatch("calibration changed to %s while composing", current.Snapshot.ID)
	}
	if current.SourceSizes == sizes {
		return current, nil
	}
	c.logger.Warnw("frame size changed, rebuilding composition plan",
		"error", utils.NewRuntimeMismatch("frames are %v, plan is for %v", sizes, current.SourceSizes))
	rebuilt, err := NewPlan(ctx, current.Snapshot, sizes, c.cfg)
	if err != nil {
		return nil, err
	}
	return c.adopt(current, rebuilt)
}

// adopt installs a Plan rebuilt from base. A Swap that replaced base in the meantime wins and the
// frame is reported as a RuntimeMismatch.
func (c *Composer) adopt(base, rebuilt *Plan) (*Plan, error) {
	if !c.plan.CompareAndSwap(base, rebuilt) {
		return nil, utils.NewRuntimeMismatch("calibration %s was replaced during a plan rebuild", base.Snapshot.ID)
	}
	return rebuilt, nil
}

// CameraToGround returns the ground point in meters seen by a distorted pixel of a camera.
func (c *Composer) CameraToGround(pos rig.Position, pixel r2.Point) (r2.Point, error) {
	return c.Plan().Snapshot.CameraToGround(pos, pixel)
}

// CanvasToGround returns the ground point in meters under a canvas pixel.
func (c *Composer) CanvasToGround(q r2.Point) r2.Point {
	return c.Plan().Snapshot.CanvasToGround(q)
}

// Close stops the snapshot watchers.
func (c *Composer) Close() {
	c.workers.Stop()
}
