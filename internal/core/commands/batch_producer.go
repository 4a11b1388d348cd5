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

package commands

import (
	"context"
	"log/slog"

	"github.com/jaycherian/gcp-go-media-studio/internal/core/cor"
	"github.com/jaycherian/gcp-go-media-studio/internal/core/model"
	"github.com/jaycherian/gcp-go-media-studio/internal/core/production"
)

// BatchRunner opens and runs batches. *production.Worker implements it.
type BatchRunner interface {
	Open(ctx context.Context, req model.ProductionRequest) (*production.Batch, error)
	RunBatch(ctx context.Context, batch *production.Batch) error
}

// BatchProducer opens a batch for the request in the context and runs it.
//
// Only a failure to open the batch is recorded as an error. Once the gateway
// knows the batch its outcome is final and reported there, so redelivering
// the request would only start a duplicate.
type BatchProducer struct {
	cor.BaseCommand
	runner   BatchRunner
	register func(*production.Batch)
}

// NewBatchProducer creates the producer. register, when not nil, sees every
// batch before it runs.
func NewBatchProducer(name string, runner BatchRunner, register func(*production.Batch)) *BatchProducer {
	cmd := &BatchProducer{BaseCommand: *cor.NewBaseCommand(name), runner: runner, register: register}
	cmd.InputParamName = RequestParam
	return cmd
}

func (c *BatchProducer) Execute(context cor.Context) {
	req := context.Get(RequestParam).(model.ProductionRequest)
	ctx := context.GetContext()
	batch, err := c.runner.Open(ctx, req)
	if err != nil {
		c.Fail(context, err)
		return
	}
	if c.register != nil {
		c.register(batch)
	}
	context.Add(BatchParam, batch)
	if err := c.runner.RunBatch(ctx, batch); err != nil {
		slog.WarnContext(ctx, "batch finished with errors", "batch_id", batch.ID, "error", err)
	}
	c.Succeed(context)
	context.Add(c.GetOutputParam(), batch)
}
