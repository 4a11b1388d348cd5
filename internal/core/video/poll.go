// Copyright 2024 Google, LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package video

import (
	"context"
	"fmt"
	"time"

	"github.com/jaycherian/gcp-go-media-studio/internal/cloud"
	"github.com/jaycherian/gcp-go-media-studio/internal/core/faults"
)

const defaultPollInterval = 10 * time.Second

// PollPolicy bounds the wait for a long-running job.
type PollPolicy struct {
	InitialDelay time.Duration // Wait before the first check.
	Interval     time.Duration // Wait between checks, defaults to 10s.
	MaxAttempts  int           // Checks before giving up, zero for unbounded.
	Timeout      time.Duration // Overall bound, zero for none.
}

// PollPolicyFromConfig converts the configuration section.
func PollPolicyFromConfig(cfg cloud.PollPolicyConfig) PollPolicy {
	return PollPolicy{
		InitialDelay: cfg.InitialDelay,
		Interval:     cfg.Interval,
		MaxAttempts:  cfg.MaxAttempts,
		Timeout:      cfg.Timeout,
	}
}

// TimeoutError is returned when a job is not done within the policy. It is
// transient, so the fallback engine moves on to the next pair.
type TimeoutError struct {
	Operation string
	Attempts  int
	Elapsed   time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("video operation %s timed out after %d poll(s) in %s", e.Operation, e.Attempts, e.Elapsed.Round(time.Millisecond))
}

func (e *TimeoutError) Kind() faults.Kind { return faults.KindTransient }

// Check is one status check. It reports done once the job finished.
type Check func(ctx context.Context) (done bool, err error)

// Wait calls check until it reports done, fails, or the policy runs out.
//
// Logic Flow:
//  1. Sleep InitialDelay, then call check.
//  2. While not done, sleep Interval and call check again.
//  3. Stop with a *TimeoutError after MaxAttempts checks or once Timeout
//     elapsed, and with ctx.Err() when the caller cancels.
//
// Cancellation only stops the local wait; the remote job keeps running.
func (p PollPolicy) Wait(ctx context.Context, operation string, check Check) error {
	interval := p.Interval
	if interval <= 0 {
		interval = defaultPollInterval
	}
	started := time.Now()
	waitCtx := ctx
	if p.Timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}

	timer := time.NewTimer(p.InitialDelay)
	defer timer.Stop()
	attempts := 0
	for {
		select {
		case <-waitCtx.Done():
			if err := ctx.Err(); err != nil {
				return err
			}
			return &TimeoutError{Operation: operation, Attempts: attempts, Elapsed: time.Since(started)}
		case <-timer.C:
		}

		attempts++
		done, err := check(waitCtx)
		if err != nil {
			if ctx.Err() == nil && waitCtx.Err() != nil {
				return &TimeoutError{Operation: operation, Attempts: attempts, Elapsed: time.Since(started)}
			}
			return err
		}
		if done {
			return nil
		}
		if p.MaxAttempts > 0 && attempts >= p.MaxAttempts {
			return &TimeoutError{Operation: operation, Attempts: attempts, Elapsed: time.Since(started)}
		}
		timer.Reset(interval)
	}
}
