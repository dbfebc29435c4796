// Copyright 2023 The AthanorLabs/atomic-swap Authors
// SPDX-License-Identifier: LGPL-3.0-only

package orchestrator

import (
	"context"
	"errors"
	"time"

	"github.com/quantumbridge/bridge/common"
	"github.com/quantumbridge/bridge/config"
)

// retryAdapterCall retries fn on a recoverable adapter error (NetworkError,
// Timeout) per policy's backoff schedule, up to policy.MaxRetries
// additional attempts. InsufficientFunds and Rejected are never retried --
// they are returned immediately so the caller can drive RollingBack.
func retryAdapterCall(ctx context.Context, policy config.RetryPolicy, fn func() error) error {
	schedule := policy.BackoffSchedule
	if len(schedule) == 0 {
		schedule = defaultBackoffSchedule
	}
	maxRetries := policy.MaxRetries
	if maxRetries <= 0 {
		maxRetries = len(defaultBackoffSchedule)
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !isRecoverable(lastErr) {
			return lastErr
		}
		if attempt == maxRetries {
			break
		}

		delay := defaultBackoffSchedule[len(defaultBackoffSchedule)-1]
		if attempt < len(schedule) {
			delay = schedule[attempt]
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return lastErr
}

func isRecoverable(err error) bool {
	return errors.Is(err, common.ErrAdapterNetwork) || errors.Is(err, common.ErrAdapterTimeout)
}
