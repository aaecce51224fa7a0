// Copyright 2026 The Kubernetes Authors.
// SPDX-License-Identifier: Apache-2.0

package poll

import (
	"errors"
	"fmt"
	"time"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
)

// TimeoutError is returned when the polling budget is exhausted without
// the condition ever evaluating to true.
type TimeoutError struct {
	// Description names what was being waited for.
	Description string
	// Timeout is the budget that elapsed.
	Timeout time.Duration
	// Attempts is the number of times the condition was evaluated.
	Attempts int
	// LastErr is the most recent transient error, if any.
	LastErr error
}

func (te TimeoutError) Error() string {
	msg := fmt.Sprintf("timed out after %s waiting for %s (%d attempts)",
		te.Timeout, te.Description, te.Attempts)
	if te.LastErr != nil {
		msg = fmt.Sprintf("%s: last error: %v", msg, te.LastErr)
	}
	return msg
}

// NotFoundError is returned when the object a condition depends on no
// longer exists. It short-circuits the remaining polling budget.
type NotFoundError struct {
	Description string
	Err         error
}

func (nfe NotFoundError) Error() string {
	return fmt.Sprintf("%s: not found: %v", nfe.Description, nfe.Err)
}

func (nfe NotFoundError) Unwrap() error {
	return nfe.Err
}

// IsTimeoutError checks whether the error chain contains a TimeoutError.
func IsTimeoutError(err error) (*TimeoutError, bool) {
	var te *TimeoutError
	if errors.As(err, &te) {
		return te, true
	}
	return nil, false
}

// IsNotFoundError checks whether the error chain contains a NotFoundError.
func IsNotFoundError(err error) (*NotFoundError, bool) {
	var nfe *NotFoundError
	if errors.As(err, &nfe) {
		return nfe, true
	}
	return nil, false
}

// IsTerminal returns true for errors that no amount of retrying can fix:
// the referenced object is gone.
func IsTerminal(err error) bool {
	if err == nil {
		return false
	}
	if apierrors.IsNotFound(err) {
		return true
	}
	_, found := IsNotFoundError(err)
	return found
}
