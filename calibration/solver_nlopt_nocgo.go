//go:build windows || no_cgo

package calibration

import (
	"context"

	"go.viam.com/birdseye/utils"
)

func init() {
	registerSolver(MethodNLopt, func(context.Context, *Problem, []float64, *SolverConfig) (*Result, error) {
		return nil, utils.NewConfigError("the %s solver needs a cgo build", MethodNLopt)
	})
}
