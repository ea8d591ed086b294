package calibration

import (
	"context"
	"errors"
	"math"

	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/optimize"
)

func init() {
	registerSolver(MethodBFGS, bfgs)
}

// bfgs minimizes the sum of squared residuals with gonum's quasi-Newton method and a central
// difference gradient. Points that cannot be evaluated cost +Inf so line searches back off.
func bfgs(ctx context.Context, p *Problem, x0 []float64, cfg *SolverConfig) (*Result, error) {
	cost := func(x []float64) float64 {
		c, err := p.Cost(x)
		if err != nil {
			return math.Inf(1)
		}
		return c
	}
	problem := optimize.Problem{
		Func: cost,
		Grad: func(grad, x []float64) {
			fd.Gradient(grad, cost, x, &fd.Settings{Formula: fd.Central, Step: cfg.DiffStep})
		},
		Status: func() (optimize.Status, error) {
			if err := ctx.Err(); err != nil {
				return optimize.Failure, err
			}
			return optimize.NotTerminated, nil
		},
	}
	settings := &optimize.Settings{
		GradientThreshold: cfg.GradientTolerance,
		MajorIterations:   cfg.MaxIterations,
		Converger: &optimize.FunctionConverge{
			Absolute:   exactCost,
			Relative:   cfg.FunctionTolerance,
			Iterations: 5,
		},
	}
	result, err := optimize.Minimize(problem, x0, settings, &optimize.BFGS{})
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	if result == nil {
		return nil, err
	}
	res := &Result{
		X:           result.X,
		Cost:        result.F,
		Iterations:  result.MajorIterations,
		Termination: result.Status.String(),
	}
	switch result.Status {
	case optimize.GradientThreshold, optimize.FunctionConvergence, optimize.StepConvergence,
		optimize.MethodConverge, optimize.Success, optimize.FunctionThreshold:
		res.Converged = true
	default:
		// the line search stalls once finite difference noise dominates the gradient
		stalled := errors.Is(err, optimize.ErrNoProgress) || errors.Is(err, optimize.ErrNonDescentDirection)
		res.Converged = result.F <= exactCost || stalled
		if err != nil {
			res.Termination = err.Error()
		}
	}
	return res, nil
}
