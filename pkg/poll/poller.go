// Copyright 2026 The Kubernetes Authors.
// SPDX-License-Identifier: Apache-2.0

package poll

import (
	"context"
	"fmt"
	"time"

	"k8s.io/klog/v2"
	"k8s.io/utils/clock"
)

// DefaultInterval is used when a Spec does not set a positive interval.
const DefaultInterval = 5 * time.Second

// ConditionFunc reports whether the awaited state has been reached. A
// non-nil error is treated as "not yet" unless IsTerminal reports it as
// terminal.
type ConditionFunc func(ctx context.Context) (done bool, err error)

// Spec describes a single bounded wait.
type Spec struct {
	// Timeout is the total budget. A non-positive timeout performs
	// exactly one evaluation.
	Timeout time.Duration

	// Interval is the spacing between evaluations.
	Interval time.Duration

	Condition ConditionFunc

	// Description names what is being waited for in logs and errors.
	Description string
}

// AttemptOutcome is the result of a single condition evaluation.
type AttemptOutcome string

const (
	AttemptTrue  AttemptOutcome = "true"
	AttemptFalse AttemptOutcome = "false"
	AttemptError AttemptOutcome = "error"
)

// WaitOutcome is the result of a whole wait.
type WaitOutcome string

const (
	WaitSucceeded WaitOutcome = "succeeded"
	WaitTimedOut  WaitOutcome = "timeout"
	WaitNotFound  WaitOutcome = "not_found"
	WaitCanceled  WaitOutcome = "canceled"
)

// Observer is notified about attempts and waits. Implementations must be
// safe for concurrent use.
type Observer interface {
	ObserveAttempt(outcome AttemptOutcome)
	ObserveWait(outcome WaitOutcome, elapsed time.Duration)
}

// Poller evaluates conditions at a fixed interval until they hold or
// the budget runs out. A Poller holds no per-wait state, so it can be
// shared by concurrent callers.
type Poller struct {
	// Clock is the time source. Defaults to the real clock.
	Clock clock.Clock

	// Observer is optional.
	Observer Observer
}

// NewPoller returns a Poller backed by the real clock.
func NewPoller() *Poller {
	return &Poller{Clock: clock.RealClock{}}
}

// Await is shorthand for Poll with an anonymous condition.
func (p *Poller) Await(ctx context.Context, cond ConditionFunc, timeout, interval time.Duration) error {
	return p.Poll(ctx, Spec{
		Timeout:   timeout,
		Interval:  interval,
		Condition: cond,
	})
}

// Poll evaluates spec.Condition at t=0 and then at every multiple of the
// interval that falls strictly before the deadline. It returns nil on the
// first true result, a *NotFoundError as soon as the condition returns a
// terminal error, a *TimeoutError when the budget is spent, or the
// context error if ctx is done first.
func (p *Poller) Poll(ctx context.Context, spec Spec) error {
	if spec.Condition == nil {
		return fmt.Errorf("poll condition must be specified")
	}
	interval := spec.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	description := spec.Description
	if description == "" {
		description = "condition"
	}

	clk := p.clock()
	start := clk.Now()
	deadline := start.Add(spec.Timeout)
	klog.V(2).Infof("waiting up to %s for %s (interval %s)", spec.Timeout, description, interval)

	var lastErr error
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			p.observeWait(WaitCanceled, clk.Since(start))
			return err
		}

		done, err := spec.Condition(ctx)
		switch {
		case err != nil && IsTerminal(err):
			p.observeAttempt(AttemptError)
			p.observeWait(WaitNotFound, clk.Since(start))
			klog.V(2).Infof("%s: giving up after %d attempt(s): %v", description, attempt, err)
			return &NotFoundError{Description: description, Err: err}
		case err != nil:
			p.observeAttempt(AttemptError)
			klog.V(3).Infof("%s: attempt %d failed, will retry: %v", description, attempt, err)
			lastErr = err
		case done:
			p.observeAttempt(AttemptTrue)
			p.observeWait(WaitSucceeded, clk.Since(start))
			klog.V(2).Infof("%s: satisfied after %d attempt(s)", description, attempt)
			return nil
		default:
			p.observeAttempt(AttemptFalse)
		}

		next := start.Add(time.Duration(attempt) * interval)
		if spec.Timeout <= 0 || !next.Before(deadline) || !clk.Now().Before(deadline) {
			p.observeWait(WaitTimedOut, clk.Since(start))
			return &TimeoutError{
				Description: description,
				Timeout:     spec.Timeout,
				Attempts:    attempt,
				LastErr:     lastErr,
			}
		}

		if err := sleepUntil(ctx, clk, next); err != nil {
			p.observeWait(WaitCanceled, clk.Since(start))
			return err
		}
	}
}

func (p *Poller) clock() clock.Clock {
	if p.Clock == nil {
		return clock.RealClock{}
	}
	return p.Clock
}

func (p *Poller) observeAttempt(outcome AttemptOutcome) {
	if p.Observer != nil {
		p.Observer.ObserveAttempt(outcome)
	}
}

func (p *Poller) observeWait(outcome WaitOutcome, elapsed time.Duration) {
	if p.Observer != nil {
		p.Observer.ObserveWait(outcome, elapsed)
	}
}

// sleepUntil blocks until the clock reaches t or ctx is done.
func sleepUntil(ctx context.Context, clk clock.Clock, t time.Time) error {
	d := t.Sub(clk.Now())
	if d <= 0 {
		return nil
	}
	timer := clk.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C():
		return nil
	}
}
