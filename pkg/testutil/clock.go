// Copyright 2026 The Kubernetes Authors.
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"time"

	testingclock "k8s.io/utils/clock/testing"
)

// NewFakeClock returns a fake clock set to a fixed instant, so test
// output does not depend on wall time.
func NewFakeClock() *testingclock.FakeClock {
	return testingclock.NewFakeClock(time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC))
}

// stepCheckInterval is the real time between two checks for waiters.
const stepCheckInterval = time.Millisecond

// StepClock advances fc by step every time something is blocked on one
// of its timers, until the returned stop function is called. Fake
// durations cost at most stepCheckInterval of real time per step.
func StepClock(fc *testingclock.FakeClock, step time.Duration) (stop func()) {
	done := make(chan struct{})
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		ticker := time.NewTicker(stepCheckInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
			}
			if fc.HasWaiters() {
				fc.Step(step)
			}
		}
	}()
	return func() {
		close(done)
		<-finished
	}
}
