package utils

import (
	"github.com/pkg/errors"
)

// Failure classes shared by calibration and composition. Every error produced by those packages
// wraps exactly one of these so callers can branch with errors.Is.
var (
	// ErrDetectionFailure means a frame did not yield a complete, valid chessboard.
	ErrDetectionFailure = errors.New("detection failure")
	// ErrGeometryFailure means degenerate correspondences, a singular solve or a
	// non-converging backprojection.
	ErrGeometryFailure = errors.New("geometry failure")
	// ErrSolverNonConvergence means nonlinear refinement missed its tolerance or iteration bound.
	ErrSolverNonConvergence = errors.New("solver did not converge")
	// ErrConfig means a malformed parameter or configuration file.
	ErrConfig = errors.New("config error")
	// ErrRuntimeMismatch means a frame does not match the size a calibration was computed for.
	ErrRuntimeMismatch = errors.New("runtime mismatch")
)

// NewDetectionFailure returns an error wrapping ErrDetectionFailure.
func NewDetectionFailure(format string, args ...interface{}) error {
	return errors.Wrapf(ErrDetectionFailure, format, args...)
}

// NewGeometryFailure returns an error wrapping ErrGeometryFailure.
func NewGeometryFailure(format string, args ...interface{}) error {
	return errors.Wrapf(ErrGeometryFailure, format, args...)
}

// NewSolverNonConvergence returns an error wrapping ErrSolverNonConvergence.
func NewSolverNonConvergence(format string, args ...interface{}) error {
	return errors.Wrapf(ErrSolverNonConvergence, format, args...)
}

// NewConfigError returns an error wrapping ErrConfig.
func NewConfigError(format string, args ...interface{}) error {
	return errors.Wrapf(ErrConfig, format, args...)
}

// NewRuntimeMismatch returns an error wrapping ErrRuntimeMismatch.
func NewRuntimeMismatch(format string, args ...interface{}) error {
	return errors.Wrapf(ErrRuntimeMismatch, format, args...)
}

// WrapConfigError marks an underlying error, such as a JSON syntax error, as a config error.
func WrapConfigError(err error, msg string) error {
	if err == nil {
		return nil
	}
	return errors.Wrapf(ErrConfig, "%s: %v", msg, err)
}

// NewUnexpectedTypeError is used when there is a type mismatch.
func NewUnexpectedTypeError(expected interface{}, actual interface{}) error {
	return errors.Errorf("expected %T but got %T", expected, actual)
}
