package calibration

import (
	"context"
	"math"

	"github.com/pkg/errors"
	"github.com/samber/lo"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/birdseye/utils"
)

// Names of the solver drivers.
const (
	MethodLM    = "lm"
	MethodBFGS  = "bfgs"
	MethodNLopt = "nlopt"
)

const (
	initialLambda = 1e-3
	maxLambda     = 1e16
	minLambda     = 1e-12
	exactCost     = 1e-24
)

// SolverConfig bounds and tunes the nonlinear least squares drivers.
type SolverConfig struct {
	Method            string  `json:"method"`
	MaxIterations     int     `json:"max_iterations"`
	FunctionTolerance float64 `json:"function_tolerance"` // relative decrease of the cost
	GradientTolerance float64 `json:"gradient_tolerance"` // max norm of the gradient
	StepTolerance     float64 `json:"step_tolerance"`     // step norm relative to the parameter norm
	DiffStep          float64 `json:"diff_step"`          // relative finite difference step
}

// DefaultSolverConfig returns Levenberg-Marquardt with tight tolerances.
func DefaultSolverConfig() SolverConfig {
	return SolverConfig{
		Method:            MethodLM,
		MaxIterations:     200,
		FunctionTolerance: 1e-10,
		GradientTolerance: 1e-10,
		StepTolerance:     1e-10,
		DiffStep:          1e-6,
	}
}

// Validate checks the solver settings.
func (cfg *SolverConfig) Validate() error {
	if _, ok := solvers[cfg.Method]; !ok {
		return utils.NewConfigError("unknown solver method %q, available: %v", cfg.Method, lo.Keys(solvers))
	}
	if cfg.MaxIterations <= 0 {
		return utils.NewConfigError("solver max_iterations must be positive, got %d", cfg.MaxIterations)
	}
	if cfg.FunctionTolerance < 0 || cfg.GradientTolerance < 0 || cfg.StepTolerance < 0 {
		return utils.NewConfigError("solver tolerances cannot be negative")
	}
	if cfg.DiffStep <= 0 {
		return utils.NewConfigError("solver diff_step must be positive, got %g", cfg.DiffStep)
	}
	return nil
}

// Result is the outcome of one solve.
type Result struct {
	X           []float64
	Cost        float64 // sum of squared residuals
	RMS         float64 // root mean square of the 2D residual norms
	Iterations  int
	Converged   bool
	Termination string
}

type solverFunc func(ctx context.Context, p *Problem, x0 []float64, cfg *SolverConfig) (*Result, error)

var solvers = map[string]solverFunc{}

func registerSolver(name string, f solverFunc) {
	solvers[name] = f
}

func init() {
	registerSolver(MethodLM, levenbergMarquardt)
}

// Solve minimizes the problem's sum of squared residuals from x0 with the configured driver. A
// solve that hits its iteration bound is a SolverNonConvergence. The result is returned in both
// cases so callers can log it.
func Solve(ctx context.Context, p *Problem, x0 []float64, cfg SolverConfig) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if len(x0) != p.NumParams() {
		return nil, utils.NewConfigError("%s problem has %d parameters, got %d", p.Shape, p.NumParams(), len(x0))
	}
	res, err := solvers[cfg.Method](ctx, p, x0, &cfg)
	if err != nil {
		return res, err
	}
	res.RMS = rmsFromCost(res.Cost, p.NumResiduals())
	if !res.Converged {
		return res, utils.NewSolverNonConvergence("%s solver on %s problem stopped after %d iterations (%s), rms %.4g",
			cfg.Method, p.Shape, res.Iterations, res.Termination, res.RMS)
	}
	return res, nil
}

func rmsFromCost(cost float64, numResiduals int) float64 {
	if numResiduals == 0 {
		return 0
	}
	return math.Sqrt(cost / float64(numResiduals/2))
}

// numericJacobian fills jac with central differences of the residuals at x.
func numericJacobian(p *Problem, x []float64, step float64, jac *mat.Dense) error {
	m, n := jac.Dims()
	xp := append([]float64(nil), x...)
	rp := make([]float64, m)
	rm := make([]float64, m)
	for j := 0; j < n; j++ {
		h := step * math.Max(math.Abs(x[j]), 1)
		xp[j] = x[j] + h
		if err := p.Residuals(xp, rp); err != nil {
			return errors.Wrapf(err, "jacobian column %d", j)
		}
		xp[j] = x[j] - h
		if err := p.Residuals(xp, rm); err != nil {
			return errors.Wrapf(err, "jacobian column %d", j)
		}
		xp[j] = x[j]
		for i := 0; i < m; i++ {
			jac.Set(i, j, (rp[i]-rm[i])/(2*h))
		}
	}
	return nil
}

// levenbergMarquardt solves (JᵀJ + λ diag(JᵀJ)) δ = -Jᵀr, shrinking λ on every accepted step and
// growing it on every rejected one.
func levenbergMarquardt(ctx context.Context, p *Problem, x0 []float64, cfg *SolverConfig) (*Result, error) {
	n, m := p.NumParams(), p.NumResiduals()
	x := append([]float64(nil), x0...)
	r := make([]float64, m)
	if err := p.Residuals(x, r); err != nil {
		return nil, errors.Wrap(err, "cannot evaluate initial guess")
	}
	res := &Result{X: x, Cost: floats.Dot(r, r), Termination: "max iterations"}
	if res.Cost <= exactCost {
		res.Converged, res.Termination = true, "exact fit"
		return res, nil
	}

	jac := mat.NewDense(m, n, nil)
	trial := make([]float64, n)
	rTrial := make([]float64, m)
	var jtj mat.SymDense
	var g, delta mat.VecDense
	lambda := initialLambda

	for res.Iterations < cfg.MaxIterations {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		res.Iterations++
		if err := numericJacobian(p, x, cfg.DiffStep, jac); err != nil {
			return res, utils.NewGeometryFailure("%v", err)
		}
		jtj.SymOuterK(1, jac.T())
		g.MulVec(jac.T(), mat.NewVecDense(m, r))
		if mat.Norm(&g, math.Inf(1)) <= cfg.GradientTolerance {
			res.Converged, res.Termination = true, "gradient tolerance"
			return res, nil
		}

		for {
			if lambda > maxLambda {
				res.Termination = "no descent direction"
				return res, nil
			}
			damped := mat.NewSymDense(n, nil)
			damped.CopySym(&jtj)
			for i := 0; i < n; i++ {
				d := jtj.At(i, i)
				damped.SetSym(i, i, d+lambda*math.Max(d, minLambda))
			}
			var chol mat.Cholesky
			if ok := chol.Factorize(damped); !ok {
				lambda *= 10
				continue
			}
			if err := chol.SolveVecTo(&delta, &g); err != nil {
				lambda *= 10
				continue
			}
			delta.ScaleVec(-1, &delta)

			step := mat.Norm(&delta, 2)
			if step <= cfg.StepTolerance*(floats.Norm(x, 2)+cfg.StepTolerance) {
				res.Converged, res.Termination = true, "step tolerance"
				return res, nil
			}
			for i := range trial {
				trial[i] = x[i] + delta.AtVec(i)
			}
			if err := p.Residuals(trial, rTrial); err != nil {
				lambda *= 10
				continue
			}
			trialCost := floats.Dot(rTrial, rTrial)
			if math.IsNaN(trialCost) || trialCost >= res.Cost {
				lambda *= 10
				continue
			}

			decrease := (res.Cost - trialCost) / res.Cost
			copy(x, trial)
			copy(r, rTrial)
			res.Cost = trialCost
			lambda = math.Max(lambda/10, minLambda)
			if res.Cost <= exactCost {
				res.Converged, res.Termination = true, "exact fit"
				return res, nil
			}
			if decrease <= cfg.FunctionTolerance {
				res.Converged, res.Termination = true, "function tolerance"
				return res, nil
			}
			break
		}
	}
	return res, nil
}
