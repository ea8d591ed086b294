package main

import (
	"context"
	"encoding/json"
	"fmt"
	"image"
	"os"
	"os/signal"
	"time"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"gopkg.in/natefinch/lumberjack.v2"

	"go.viam.com/birdseye/calibration"
	"go.viam.com/birdseye/composition"
	"go.viam.com/birdseye/logging"
	"go.viam.com/birdseye/rig"
	"go.viam.com/birdseye/rimage"
	"go.viam.com/birdseye/utils"
)

const (
	flagDebug         = "debug"
	flagLogLevel      = "log-level"
	flagLogFile       = "log-file"
	flagConfig        = "config"
	flagIntrinsics    = "intrinsics"
	flagCrossPairs    = "cross-pairs"
	flagCalibration   = "calibration"
	flagOut           = "out"
	flagCoverage      = "coverage"
	flagSource        = "source"
	flagGray          = "gray"
	flagNoTone        = "no-tone"
	flagPoisson       = "poisson"
	flagPoissonLambda = "poisson-lambda"
	flagWatch         = "watch"
	flagCamera        = "camera"

	canvasName = "canvas"
)

var cameraNames = func() []string {
	out := make([]string, 0, rig.NumCameras)
	for _, pos := range rig.Positions {
		out = append(out, pos.String())
	}
	return out
}()

// newLogger honours --log-level, with --debug taking precedence, and also writes to a rotated
// --log-file when one is given.
func newLogger(c *cli.Context) (logging.Logger, error) {
	logger := logging.NewLogger("birdseye")
	if path := c.Path(flagLogFile); path != "" {
		logger.AddAppender(logging.NewWriterAppender(&lumberjack.Logger{
			Filename:   path,
			MaxSize:    64,
			MaxBackups: 2,
			Compress:   true,
		}))
	}
	if c.Bool(flagDebug) {
		logger.SetLevel(logging.DEBUG)
		return logger, nil
	}
	if name := c.String(flagLogLevel); name != "" {
		level, err := logging.LevelFromString(name)
		if err != nil {
			return nil, utils.NewConfigError("--%s: %v", flagLogLevel, err)
		}
		logger.SetLevel(level)
	}
	return logger, nil
}

func readFrames(c *cli.Context) ([rig.NumCameras]image.Image, error) {
	var frames [rig.NumCameras]image.Image
	for _, pos := range rig.Positions {
		img, err := rimage.ReadImageFromFile(c.Path(pos.String()))
		if err != nil {
			return frames, errors.Wrapf(err, "%s frame", pos)
		}
		frames[pos] = img
	}
	return frames, nil
}

// readCrossPairs reads a JSON list of features shared by adjacent cameras.
func readCrossPairs(path string) ([]calibration.CrossPair, error) {
	if path == "" {
		return nil, nil
	}
	//nolint:gosec
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var pairs []calibration.CrossPair
	if err := json.Unmarshal(data, &pairs); err != nil {
		return nil, utils.NewConfigError("cannot parse cross pairs %q: %v", path, err)
	}
	for _, p := range pairs {
		if !rig.Adjacent(p.A, p.B) {
			return nil, utils.NewConfigError("%s and %s are not adjacent", p.A, p.B)
		}
	}
	return pairs, nil
}

func calibrateAction(c *cli.Context) error {
	ctx, cancel := signal.NotifyContext(c.Context, os.Interrupt)
	defer cancel()
	logger, err := newLogger(c)
	if err != nil {
		return err
	}

	cfg := calibration.DefaultConfig()
	if path := c.Path(flagConfig); path != "" {
		if cfg, err = calibration.LoadConfig(path); err != nil {
			return err
		}
	}
	intrinsics, err := calibration.LoadIntrinsics(c.Path(flagIntrinsics))
	if err != nil {
		return err
	}
	crossPairs, err := readCrossPairs(c.Path(flagCrossPairs))
	if err != nil {
		return err
	}
	frames, err := readFrames(c)
	if err != nil {
		return err
	}

	calibrator, err := calibration.NewCalibrator(cfg, intrinsics, logger)
	if err != nil {
		return err
	}
	snap, err := calibrator.Run(ctx, frames, crossPairs)
	if err != nil {
		return err
	}
	if err := snap.Save(c.Path(flagOut)); err != nil {
		return err
	}
	logger.Infow("calibration saved", "path", c.Path(flagOut), "calibration", snap.ID)

	if path := c.Path(flagCoverage); path != "" {
		return writeCoverage(ctx, snap, composition.DefaultConfig(), logger, path)
	}
	return nil
}

func writeCoverage(ctx context.Context, snap *calibration.Snapshot, cfg composition.Config, logger logging.Logger, path string) error {
	composer, err := composition.New(ctx, snap, cfg, logger)
	if err != nil {
		return err
	}
	defer composer.Close()
	return rimage.WriteImageToFile(path, composition.RenderCoverage(composer.Plan()))
}

func composeConfig(c *cli.Context) composition.Config {
	cfg := composition.DefaultConfig()
	cfg.Source = composition.Source(c.String(flagSource))
	if c.Bool(flagGray) {
		cfg.Channels = 1
	}
	cfg.ToneBalance = !c.Bool(flagNoTone)
	cfg.Poisson = c.Bool(flagPoisson)
	cfg.PoissonLambda = c.Float64(flagPoissonLambda)
	return cfg
}

func composeAction(c *cli.Context) error {
	ctx, cancel := signal.NotifyContext(c.Context, os.Interrupt)
	defer cancel()
	logger, err := newLogger(c)
	if err != nil {
		return err
	}

	calibPath := c.Path(flagCalibration)
	snap, err := calibration.LoadSnapshot(calibPath)
	if err != nil {
		return err
	}
	cfg := composeConfig(c)
	composer, err := composition.New(ctx, snap, cfg, logger)
	if err != nil {
		return err
	}
	defer composer.Close()

	composeOnce := func() error {
		frames, err := readFrames(c)
		if err != nil {
			return err
		}
		canvas, err := composer.Compose(ctx, frames)
		if err != nil {
			return err
		}
		if err := rimage.WriteImageToFile(c.Path(flagOut), canvas.ToImage()); err != nil {
			return err
		}
		if path := c.Path(flagCoverage); path != "" {
			return rimage.WriteImageToFile(path, composition.RenderCoverage(composer.Plan()))
		}
		return nil
	}
	if err := composeOnce(); err != nil {
		return err
	}

	interval := c.Duration(flagWatch)
	if interval <= 0 {
		return nil
	}
	if err := composer.Watch(calibPath); err != nil {
		return err
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := composeOnce(); err != nil {
				logger.Warnw("cannot compose frame", "error", err)
			}
		}
	}
}

func groundAction(c *cli.Context) error {
	snap, err := calibration.LoadSnapshot(c.Path(flagCalibration))
	if err != nil {
		return err
	}
	pixel := r2.Point{X: c.Float64("x"), Y: c.Float64("y")}
	var ground r2.Point
	switch name := c.String(flagCamera); name {
	case "", canvasName:
		ground = snap.CanvasToGround(pixel)
	default:
		pos, err := rig.ParsePosition(name)
		if err != nil {
			return err
		}
		if ground, err = snap.CameraToGround(pos, pixel); err != nil {
			return err
		}
	}
	_, err = fmt.Fprintf(c.App.Writer, "%.4f %.4f\n", ground.X, ground.Y)
	return err
}
