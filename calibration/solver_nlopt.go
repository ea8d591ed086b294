//go:build !windows && !no_cgo

package calibration

import (
	"context"
	"math"

	"github.com/go-nlopt/nlopt"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.viam.com/utils"
	"gonum.org/v1/gonum/diff/fd"
)

// nloptEvalsPerIteration converts the iteration bound into nlopt's evaluation budget.
const nloptEvalsPerIteration = 20

func init() {
	registerSolver(MethodNLopt, nloptSolve)
}

type nloptReturn struct {
	x     []float64
	score float64
	err   error
}

// nloptSolve runs nlopt's L-BFGS on the sum of squared residuals with a central difference gradient.
func nloptSolve(ctx context.Context, p *Problem, x0 []float64, cfg *SolverConfig) (*Result, error) {
	opt, err := nlopt.NewNLopt(nlopt.LD_LBFGS, uint(len(x0)))
	if err != nil {
		return nil, errors.Wrap(err, "nlopt creation error")
	}
	defer opt.Destroy()

	evaluations := 0
	cost := func(x []float64) float64 {
		c, err := p.Cost(x)
		if err != nil {
			return math.Inf(1)
		}
		return c
	}
	// Gradient is, under the hood, a C array that must be filled in place.
	nloptMinFunc := func(x, gradient []float64) float64 {
		evaluations++
		if len(gradient) > 0 {
			fd.Gradient(gradient, cost, x, &fd.Settings{Formula: fd.Central, Step: cfg.DiffStep})
		}
		return cost(x)
	}

	err = multierr.Combine(
		opt.SetFtolRel(cfg.FunctionTolerance),
		opt.SetFtolAbs(exactCost),
		opt.SetXtolRel(cfg.StepTolerance),
		opt.SetStopVal(exactCost),
		opt.SetMinObjective(nloptMinFunc),
		opt.SetMaxEval(cfg.MaxIterations*nloptEvalsPerIteration),
	)
	if err != nil {
		return nil, err
	}

	solveChan := make(chan *nloptReturn, 1)
	utils.PanicCapturingGo(func() {
		x, score, err := opt.Optimize(x0)
		solveChan <- &nloptReturn{x, score, err}
	})
	var solution *nloptReturn
	select {
	case <-ctx.Done():
		err = opt.ForceStop()
		<-solveChan
		return nil, multierr.Combine(err, ctx.Err())
	case solution = <-solveChan:
	}
	if solution.err != nil {
		return nil, errors.Wrapf(solution.err, "nlopt stopped with %s", opt.LastStatus())
	}
	status := opt.LastStatus()
	return &Result{
		X:           solution.x,
		Cost:        solution.score,
		Iterations:  evaluations,
		Converged:   status != "MAXEVAL_REACHED" && status != "MAXTIME_REACHED",
		Termination: status,
	}, nil
}
