// Package main is the birdseye command line: it calibrates a four camera rig from chessboard
// frames, composes bird's-eye canvases and maps pixels to the ground.
package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	cameraFlags := make([]cli.Flag, 0, 4)
	for _, name := range cameraNames {
		cameraFlags = append(cameraFlags, &cli.PathFlag{
			Name:     name,
			Usage:    "`FILE` with the " + name + " camera frame",
			Required: true,
		})
	}
	composeFlags := []cli.Flag{
		&cli.PathFlag{Name: flagCalibration, Usage: "calibration `FILE`", Required: true},
		&cli.PathFlag{Name: flagOut, Usage: "canvas image `FILE`", Required: true},
		&cli.StringFlag{Name: flagSource, Usage: "remap source, homography or extrinsic", Value: "homography"},
		&cli.BoolFlag{Name: flagGray, Usage: "compose luma only"},
		&cli.BoolFlag{Name: flagNoTone, Usage: "disable brightness balancing"},
		&cli.BoolFlag{Name: flagPoisson, Usage: "hide seams with a gradient domain blend"},
		&cli.Float64Flag{Name: flagPoissonLambda, Usage: "screening of the gradient domain blend"},
		&cli.DurationFlag{Name: flagWatch, Usage: "recompose every `INTERVAL`, reloading the calibration when it changes"},
		&cli.PathFlag{Name: flagCoverage, Usage: "also write the blend weight map to `FILE`"},
	}

	return &cli.App{
		Name:  "birdseye",
		Usage: "surround view calibration and composition",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    flagDebug,
				Aliases: []string{"vvv"},
				Usage:   "enable debug logging",
			},
			&cli.StringFlag{
				Name:  flagLogLevel,
				Usage: "minimum `LEVEL` to log: debug, info, warn or error",
				Value: "info",
			},
			&cli.PathFlag{
				Name:  flagLogFile,
				Usage: "also append logs to `FILE`, rotating it as it grows",
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "calibrate",
				Usage: "calibrate the rig from one chessboard frame per camera",
				Flags: append([]cli.Flag{
					&cli.PathFlag{Name: flagConfig, Usage: "calibration config `FILE`"},
					&cli.PathFlag{Name: flagIntrinsics, Usage: "camera intrinsics `FILE`", Required: true},
					&cli.PathFlag{Name: flagCrossPairs, Usage: "`FILE` with features shared by adjacent cameras"},
					&cli.PathFlag{Name: flagOut, Usage: "calibration `FILE` to write", Required: true},
					&cli.PathFlag{Name: flagCoverage, Usage: "also write the blend weight map to `FILE`"},
				}, cameraFlags...),
				Action: calibrateAction,
			},
			{
				Name:   "compose",
				Usage:  "compose a bird's-eye canvas from one frame per camera",
				Flags:  append(composeFlags, cameraFlags...),
				Action: composeAction,
			},
			{
				Name:  "ground",
				Usage: "print the ground point in meters under a camera or canvas pixel",
				Flags: []cli.Flag{
					&cli.PathFlag{Name: flagCalibration, Usage: "calibration `FILE`", Required: true},
					&cli.StringFlag{Name: flagCamera, Usage: "camera of the pixel, or canvas"},
					&cli.Float64Flag{Name: "x", Required: true},
					&cli.Float64Flag{Name: "y", Required: true},
				},
				Action: groundAction,
			},
		},
	}
}
