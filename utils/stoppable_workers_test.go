package utils

import (
	"context"
	"sync/atomic"
	"testing"

	"go.viam.com/test"
)

func TestStoppableWorkers(t *testing.T) {
	var running, stopped atomic.Int32
	worker := func(ctx context.Context) {
		running.Add(1)
		<-ctx.Done()
		stopped.Add(1)
	}
	sw := NewStoppableWorkers(worker, worker)
	test.That(t, sw.AddWorkers(worker), test.ShouldBeTrue)

	sw.Stop()
	test.That(t, stopped.Load(), test.ShouldEqual, 3)
	test.That(t, running.Load(), test.ShouldEqual, 3)
	test.That(t, sw.Context().Err(), test.ShouldNotBeNil)

	test.That(t, sw.AddWorkers(worker), test.ShouldBeFalse)
	sw.Stop()
	test.That(t, running.Load(), test.ShouldEqual, 3)
}
