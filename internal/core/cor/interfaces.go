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

// Package cor (Chain of Responsibility) provides the building blocks used to
// assemble production pipelines. An item's production is a chain of commands
// (storyboard, scene loop) and every scene is itself a nested chain (compose
// image, synthesize clip, persist, extract continuity frame). All of them share
// one Context that carries the item state between stages.
package cor

import (
	"context"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// CtxIn and CtxOut are the piping keys used by BaseChain. The output a command
// stores under CtxOut becomes the CtxIn of the next command in the chain.
const (
	CtxIn  = "__IN__"
	CtxOut = "__OUT__"
)

// Context is the shared state of one chain execution.
type Context interface {
	// SetContext replaces the Go context (cancellation, deadlines, span).
	SetContext(context context.Context)

	// GetContext returns the Go context of the currently running command.
	GetContext() context.Context

	// Add stores a value and returns the Context for chaining.
	Add(key string, value any) Context

	// Get returns the value stored under key or nil.
	Get(key string) any

	// Remove deletes the value stored under key.
	Remove(key string)

	// AddError records a failure under the name of the command that produced it.
	// Errors are kept in insertion order.
	AddError(key string, err error)

	// GetErrors returns all recorded errors keyed by command name.
	GetErrors() map[string]error

	// Err returns the first recorded error, which is the one that halted the
	// chain, or nil.
	Err() error

	// HasErrors reports whether any command failed.
	HasErrors() bool

	// AddTempFile registers a file or directory to be removed by Close.
	AddTempFile(file string)

	// GetTempFiles returns the registered temporary paths.
	GetTempFiles() []string

	// Close removes every registered temporary path.
	Close()
}

// Executable is anything that runs against a Context.
type Executable interface {
	Execute(context Context)
}

// Command is one unit of pipeline work.
type Command interface {
	Executable

	// GetName returns the name used for spans and metric names.
	GetName() string

	// GetInputParam returns the key the command reads its primary input from.
	GetInputParam() string

	// GetOutputParam returns the key the command writes its primary output to.
	GetOutputParam() string

	// IsExecutable is the precondition checked by a chain before Execute.
	IsExecutable(context Context) bool

	GetTracer() trace.Tracer
	GetMeter() metric.Meter
	GetSuccessCounter() metric.Int64Counter
	GetErrorCounter() metric.Int64Counter
}

// Chain is an ordered list of commands and is itself a Command, so scene
// chains nest inside item chains.
type Chain interface {
	Command

	// ContinueOnFailure controls whether the chain keeps going after a command
	// records an error. Production chains never do.
	ContinueOnFailure(bool) Chain

	// AddCommand appends a command.
	AddCommand(command Command) Chain
}
