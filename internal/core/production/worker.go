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

// Package production tracks generation items through their lifecycle and runs
// the items of a batch.
//
// Logic Flow:
//  1. Open initializes the batch with the gateway, which assigns the item ids.
//  2. RunBatch prepares the shared assets (fetched references, locked product)
//     once, then produces the items one after another. A failing item is
//     marked FAILED and the next item starts.
//  3. A produced item is completed through COMPLETING and COMPLETED. Every
//     scene index must hold one image and one clip at that point.
//  4. The batch completes when at least one item completed, otherwise it is
//     marked failed with "all items failed".
//  5. RetryItem re-runs a single FAILED item with the prepared assets and
//     re-evaluates the batch.
package production

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jaycherian/gcp-go-media-studio/internal/core/faults"
	"github.com/jaycherian/gcp-go-media-studio/internal/core/model"
)

const (
	ItemErrorTag   = "[Item Error]"
	UploadErrorTag = "[Upload Error]"

	allItemsFailed = "all items failed"
)

// ErrBatchFailed is returned by RunBatch when no item completed.
var ErrBatchFailed = errors.New("batch failed")

// Pipeline produces the media of an item.
type Pipeline interface {
	// Prepare builds the assets shared by the items of batch.
	Prepare(ctx context.Context, batch *Batch) (*Assets, error)
	// Produce runs every generation stage of job.
	Produce(ctx context.Context, job *Job) error
}

// Worker is the single logical worker of the process. Batches queue on it and
// their items run strictly one at a time.
type Worker struct {
	gateway  Gateway
	pipeline Pipeline
	mu       sync.Mutex
}

// NewWorker creates a Worker.
func NewWorker(gateway Gateway, pipeline Pipeline) *Worker {
	return &Worker{gateway: gateway, pipeline: pipeline}
}

// Open initializes a batch for req with the gateway.
func (w *Worker) Open(ctx context.Context, req model.ProductionRequest) (*Batch, error) {
	handle, err := w.gateway.InitBatch(ctx, req)
	if err != nil {
		return nil, faults.Persistence("init batch", err)
	}
	if handle.BatchID == "" || len(handle.ItemIDs) == 0 {
		return nil, faults.Persistence("init batch", fmt.Errorf("gateway returned batch %q with %d item(s)", handle.BatchID, len(handle.ItemIDs)))
	}
	return NewBatch(handle, req), nil
}

// RunBatch produces every item of batch.
//
// Outputs:
//   - error: ErrBatchFailed when no item completed, joined with a gateway
//     failure of the final batch report.
func (w *Worker) RunBatch(ctx context.Context, batch *Batch) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	logger := slog.With("batch_id", batch.ID)
	logger.InfoContext(ctx, "batch started", "items", len(batch.Items))

	if err := w.prepare(ctx, batch); err != nil {
		logger.ErrorContext(ctx, "batch preparation failed", "error", err)
		for _, item := range batch.Items {
			w.fail(ctx, NewJob(batch, item, w.gateway), err)
		}
		return w.finish(ctx, batch)
	}

	for _, item := range batch.Items {
		if err := w.runItem(ctx, batch, item); err != nil {
			logger.WarnContext(ctx, "item failed", "item_id", item.ID(), "error", err)
			continue
		}
		logger.InfoContext(ctx, "item completed", "item_id", item.ID())
	}
	return w.finish(ctx, batch)
}

// RetryItem re-runs the FAILED item itemID of batch.
func (w *Worker) RetryItem(ctx context.Context, batch *Batch, itemID string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	item, ok := batch.Item(itemID)
	if !ok {
		return fmt.Errorf("item %s not found in batch %s", itemID, batch.ID)
	}
	if err := item.reset(); err != nil {
		return err
	}
	if err := w.prepare(ctx, batch); err != nil {
		w.fail(ctx, NewJob(batch, item, w.gateway), err)
		return errors.Join(err, w.finish(ctx, batch))
	}
	itemErr := w.runItem(ctx, batch, item)
	return errors.Join(itemErr, w.finish(ctx, batch))
}

func (w *Worker) prepare(ctx context.Context, batch *Batch) error {
	if batch.Assets() != nil {
		return nil
	}
	assets, err := w.pipeline.Prepare(ctx, batch)
	if err != nil {
		return err
	}
	batch.SetAssets(assets)
	return nil
}

func (w *Worker) runItem(ctx context.Context, batch *Batch, item *Item) error {
	job := NewJob(batch, item, w.gateway)
	err := w.pipeline.Produce(ctx, job)
	if err == nil {
		err = w.complete(ctx, job)
	}
	if err != nil {
		w.fail(ctx, job, err)
		return err
	}
	return nil
}

func (w *Worker) complete(ctx context.Context, job *Job) error {
	if err := job.Item.Transition(model.StatusCompleting); err != nil {
		return err
	}
	if err := w.gateway.CompleteItem(ctx, job.Batch.ID, job.Item.ID()); err != nil {
		return faults.Upload("complete item", err)
	}
	return job.Item.Transition(model.StatusCompleted)
}

// fail marks the item FAILED. The gateway report survives cancellation of
// ctx so an aborted run still leaves a final status behind.
func (w *Worker) fail(ctx context.Context, job *Job, cause error) {
	reason := FailureReason(cause)
	if !job.Item.Fail(reason) {
		return
	}
	if err := w.gateway.FailItem(context.WithoutCancel(ctx), job.Batch.ID, job.Item.ID(), reason); err != nil {
		slog.ErrorContext(ctx, "failed to report item failure", "batch_id", job.Batch.ID, "item_id", job.Item.ID(), "error", err)
	}
}

func (w *Worker) finish(ctx context.Context, batch *Batch) error {
	ctx = context.WithoutCancel(ctx)
	if completed := batch.Completed(); completed > 0 {
		batch.finish(model.StatusCompleted, "")
		slog.InfoContext(ctx, "batch completed", "batch_id", batch.ID, "completed", completed, "items", len(batch.Items))
		return faults.Persistence("complete batch", w.gateway.CompleteBatch(ctx, batch.ID))
	}
	batch.finish(model.StatusFailed, allItemsFailed)
	slog.ErrorContext(ctx, "batch failed", "batch_id", batch.ID, "items", len(batch.Items))
	return errors.Join(
		fmt.Errorf("%w: %s", ErrBatchFailed, allItemsFailed),
		faults.Persistence("fail batch", w.gateway.FailBatch(ctx, batch.ID, allItemsFailed)),
	)
}

// FailureReason is the translated reason stored on a failed item. Artifact
// upload failures are tagged as upload errors, everything else, including
// progress updates the gateway rejected, as item errors.
func FailureReason(err error) string {
	var persistence *faults.PersistenceError
	if errors.As(err, &persistence) && persistence.Upload {
		return UploadErrorTag + " " + faults.Translate(persistence.Err)
	}
	return ItemErrorTag + " " + faults.Translate(err)
}
