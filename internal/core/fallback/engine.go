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

package fallback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jaycherian/gcp-go-media-studio/internal/core/faults"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/jaycherian/gcp-go-media-studio/fallback"

// ExhaustedError is returned when every credential x model pair failed.
type ExhaustedError struct {
	Task     TaskType
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	if e.Last == nil {
		return fmt.Sprintf("resource exhausted for task type %s", e.Task)
	}
	return fmt.Sprintf("resource exhausted for task type %s after %d attempt(s): %v", e.Task, e.Attempts, e.Last)
}

func (e *ExhaustedError) Unwrap() error { return e.Last }

// Is matches faults.ErrResourceExhausted.
func (e *ExhaustedError) Is(target error) bool {
	return target == faults.ErrResourceExhausted
}

func (e *ExhaustedError) Kind() faults.Kind { return faults.KindTransient }

// Engine walks the credential x model matrix of a task.
type Engine struct {
	source CredentialSource
	roster Roster
	policy Policy

	tracer    trace.Tracer
	attempts  metric.Int64Counter
	successes metric.Int64Counter
	exhausted metric.Int64Counter
}

// NewEngine creates an Engine.
//
// Inputs:
//   - source: The credential list, usually a shared *Provider.
//   - roster: Models per task type in preference order.
//   - policy: Classification options.
func NewEngine(source CredentialSource, roster Roster, policy Policy) *Engine {
	meter := otel.Meter(instrumentationName)
	attempts, err := meter.Int64Counter("fallback.counter.attempts")
	if err != nil {
		slog.Warn("failed to create fallback attempt counter", "error", err)
	}
	successes, err := meter.Int64Counter("fallback.counter.success")
	if err != nil {
		slog.Warn("failed to create fallback success counter", "error", err)
	}
	exhausted, err := meter.Int64Counter("fallback.counter.exhausted")
	if err != nil {
		slog.Warn("failed to create fallback exhausted counter", "error", err)
	}
	return &Engine{
		source:    source,
		roster:    roster,
		policy:    policy,
		tracer:    otel.Tracer(instrumentationName),
		attempts:  attempts,
		successes: successes,
		exhausted: exhausted,
	}
}

// Roster returns the engine's roster.
func (e *Engine) Roster() Roster {
	return e.roster
}

// Policy returns the engine's classification policy.
func (e *Engine) Policy() Policy {
	return e.policy
}

// Op is one attempt against a credential and model.
type Op[T any] func(ctx context.Context, credential Credential, model string) (T, error)

// Execute runs op across the matrix of task until one attempt succeeds.
//
// Logic Flow:
//  1. Resolve the credentials and the models of the task. No credential returns
//     faults.ErrNoCredential without calling op; no model is a fatal
//     configuration error.
//  2. Call op for the pair under the cursor inside its own span.
//  3. Let Decide classify the outcome and move the cursor.
//  4. Return the first success, the aborting error as is, or an
//     *ExhaustedError after at most credentials x models attempts.
//
// A cancelled ctx stops the search after the running attempt returns.
func Execute[T any](ctx context.Context, engine *Engine, task TaskType, op Op[T]) (T, error) {
	var zero T
	credentials, err := engine.source.Credentials(ctx)
	if err != nil {
		return zero, fmt.Errorf("failed to resolve credentials for task type %s: %w", task, err)
	}
	if len(credentials) == 0 {
		return zero, fmt.Errorf("task type %s: %w", task, faults.ErrNoCredential)
	}
	models := engine.roster.Models(task)
	if len(models) == 0 {
		return zero, faults.Fatal(fmt.Errorf("no models configured for task type %s", task))
	}

	cursor := NewCursor(len(credentials), len(models))
	var last error
	for cursor.Valid() {
		credential := credentials[cursor.Credential]
		model := models[cursor.Model]
		cursor.Attempts++

		result, err := attempt(ctx, engine, task, cursor, credential, model, op)
		if err == nil {
			engine.count(ctx, engine.successes, task)
			return result, nil
		}
		last = err
		if ctxErr := ctx.Err(); ctxErr != nil {
			return zero, fmt.Errorf("task type %s cancelled: %w", task, errors.Join(ctxErr, err))
		}

		decision := Decide(cursor, err, engine.policy)
		slog.WarnContext(ctx, "generative attempt failed",
			"task", task, "credential", credential.String(), "model", model,
			"attempt", cursor.Attempts, "kind", decision.Kind.String(), "action", decision.Action.String(), "error", err)

		if decision.Action == Abort {
			return zero, err
		}
		if decision.Action == Exhausted {
			break
		}
		cursor = cursor.Next(decision)
	}

	engine.count(ctx, engine.exhausted, task)
	return zero, &ExhaustedError{Task: task, Attempts: cursor.Attempts, Last: last}
}

func attempt[T any](ctx context.Context, engine *Engine, task TaskType, cursor Cursor, credential Credential, model string, op Op[T]) (T, error) {
	engine.count(ctx, engine.attempts, task)
	spanCtx, span := engine.tracer.Start(ctx, fmt.Sprintf("%s_attempt", task), trace.WithAttributes(
		attribute.String("task", string(task)),
		attribute.String("credential", credential.String()),
		attribute.String("credential_origin", string(credential.Origin)),
		attribute.String("model", model),
		attribute.Int("attempt", cursor.Attempts),
	))
	defer span.End()

	result, err := op(spanCtx, credential, model)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return result, err
	}
	span.SetStatus(codes.Ok, "attempt succeeded")
	return result, nil
}

func (e *Engine) count(ctx context.Context, counter metric.Int64Counter, task TaskType) {
	if counter == nil {
		return
	}
	counter.Add(ctx, 1, metric.WithAttributes(attribute.String("task", string(task))))
}
