package utils

import (
	"context"
	"errors"
	"fmt"
	"image"
	"runtime"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.viam.com/utils"
)

// ParallelFactor bounds how many goroutines the per-pixel and per-row helpers start. Tests may
// lower it.
var ParallelFactor = max(1, runtime.GOMAXPROCS(0))

// Band is the half-open range [From, To) of work items handled by one goroutine.
type Band struct {
	From, To int
}

// Bands splits total items into at most n contiguous bands whose sizes differ by at most one.
func Bands(total, n int) []Band {
	n = min(n, total)
	if n <= 0 {
		return nil
	}
	bands := make([]Band, n)
	from := 0
	for i := range bands {
		size := total / n
		if i < total%n {
			size++
		}
		bands[i] = Band{From: from, To: from + size}
		from += size
	}
	return bands
}

// ForEachBand calls f once per band of [0, total), each on its own goroutine, and waits for all
// of them. Bands not yet started when ctx is done are skipped and ctx's error is returned.
func ForEachBand(ctx context.Context, total int, f func(b Band)) error {
	var wg sync.WaitGroup
	for _, b := range Bands(total, ParallelFactor) {
		wg.Add(1)
		utils.PanicCapturingGo(func() {
			defer wg.Done()
			if ctx.Err() != nil {
				return
			}
			f(b)
		})
	}
	wg.Wait()
	return ctx.Err()
}

// ParallelForEachRow calls f once for every row in [0, height).
func ParallelForEachRow(ctx context.Context, height int, f func(y int)) error {
	return ForEachBand(ctx, height, func(b Band) {
		for y := b.From; y < b.To; y++ {
			f(y)
		}
	})
}

// ParallelForEachPixel calls f for every pixel of an image of the given size.
func ParallelForEachPixel(size image.Point, f func(x, y int)) {
	_ = ParallelForEachRow(context.Background(), size.Y, func(y int) {
		for x := 0; x < size.X; x++ {
			f(x, y)
		}
	})
}

// SimpleFunc is for RunInParallel.
type SimpleFunc func(ctx context.Context) error

// RunInParallel runs all functions in parallel and cancels the rest on the first failure. It
// returns the elapsed time and the combined errors, leaving out cancellations caused by another
// failure.
func RunInParallel(ctx context.Context, fs []SimpleFunc) (time.Duration, error) {
	start := time.Now()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	errs := runAll(ctx, fs, cancel)

	var failures, cancellations error
	for _, err := range errs {
		if errors.Is(err, context.Canceled) {
			cancellations = multierr.Append(cancellations, err)
		} else {
			failures = multierr.Append(failures, err)
		}
	}
	if failures != nil {
		return time.Since(start), failures
	}
	return time.Since(start), cancellations
}

// RunEachInParallel runs every function to completion, even when some fail, and combines all
// of their errors.
func RunEachInParallel(ctx context.Context, fs []SimpleFunc) error {
	return multierr.Combine(runAll(ctx, fs, nil)...)
}

// runAll runs fs concurrently, turning panics into errors. onErr, when set, is called after each
// failure.
func runAll(ctx context.Context, fs []SimpleFunc, onErr func()) []error {
	errs := make([]error, len(fs))
	var wg sync.WaitGroup
	wg.Add(len(fs))
	for i, f := range fs {
		go func() {
			defer wg.Done()
			defer func() {
				if thePanic := recover(); thePanic != nil {
					errs[i] = fmt.Errorf("got panic running something in parallel: %v", thePanic)
				}
				if errs[i] != nil && onErr != nil {
					onErr()
				}
			}()
			errs[i] = f(ctx)
		}()
	}
	wg.Wait()
	return errs
}
