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

package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/google/uuid"
	"github.com/jaycherian/gcp-go-media-studio/internal/core/model"
	"github.com/jaycherian/gcp-go-media-studio/internal/core/production"
)

// LedgerRow is one gateway call as stored in BigQuery.
type LedgerRow struct {
	ID         string    `bigquery:"id" json:"id"`
	BatchID    string    `bigquery:"batch_id" json:"batch_id"`
	ItemID     string    `bigquery:"item_id" json:"item_id,omitempty"`
	Op         string    `bigquery:"op" json:"op"`
	Status     string    `bigquery:"status" json:"status,omitempty"`
	SceneIndex int       `bigquery:"scene_index" json:"scene_index,omitempty"`
	Size       int       `bigquery:"size" json:"size,omitempty"`
	Detail     string    `bigquery:"detail" json:"detail,omitempty"`
	Error      string    `bigquery:"error" json:"error,omitempty"`
	RecordedAt time.Time `bigquery:"recorded_at" json:"recorded_at"`
}

// RowWriter streams rows into a table. *bigquery.Inserter implements it.
type RowWriter interface {
	Put(ctx context.Context, src any) error
}

// Ledger decorates a Gateway and appends every call, successful or not, to a
// row writer. Ledger failures are logged and never change the result of the
// gateway call.
type Ledger struct {
	next production.Gateway
	rows RowWriter
}

// NewLedger wraps next.
func NewLedger(next production.Gateway, rows RowWriter) *Ledger {
	return &Ledger{next: next, rows: rows}
}

// NewBigQueryLedger wraps next with a ledger streaming into dataset.table.
func NewBigQueryLedger(next production.Gateway, client *bigquery.Client, dataset, table string) *Ledger {
	return NewLedger(next, client.Dataset(dataset).Table(table).Inserter())
}

func (l *Ledger) write(ctx context.Context, row LedgerRow, err error) {
	row.ID = uuid.NewString()
	row.RecordedAt = time.Now().UTC()
	if err != nil {
		row.Error = err.Error()
	}
	if putErr := l.rows.Put(context.WithoutCancel(ctx), &row); putErr != nil {
		slog.WarnContext(ctx, "failed to write ledger row", "op", row.Op, "batch_id", row.BatchID, "error", putErr)
	}
}

func (l *Ledger) InitBatch(ctx context.Context, req model.ProductionRequest) (production.BatchHandle, error) {
	handle, err := l.next.InitBatch(ctx, req)
	detail, _ := json.Marshal(map[string]any{"name": req.Name, "product": req.Product.Name, "amount": req.Amount, "items": handle.ItemIDs})
	l.write(ctx, LedgerRow{BatchID: handle.BatchID, Op: OpInit, Detail: string(detail)}, err)
	return handle, err
}

func (l *Ledger) SetStep(ctx context.Context, batchID, itemID string, status model.TaskStatus) error {
	err := l.next.SetStep(ctx, batchID, itemID, status)
	l.write(ctx, LedgerRow{BatchID: batchID, ItemID: itemID, Op: OpStep, Status: string(status)}, err)
	return err
}

func (l *Ledger) SetStoryboard(ctx context.Context, batchID, itemID string, chunks []model.StoryboardChunk) error {
	err := l.next.SetStoryboard(ctx, batchID, itemID, chunks)
	detail, _ := json.Marshal(chunks)
	l.write(ctx, LedgerRow{BatchID: batchID, ItemID: itemID, Op: OpStoryboard, Detail: string(detail)}, err)
	return err
}

func (l *Ledger) SetSceneImage(ctx context.Context, batchID, itemID string, img model.Asset, index int) error {
	err := l.next.SetSceneImage(ctx, batchID, itemID, img, index)
	l.write(ctx, LedgerRow{BatchID: batchID, ItemID: itemID, Op: OpSceneImage, SceneIndex: index, Size: len(img.Data)}, err)
	return err
}

func (l *Ledger) SetVideoFile(ctx context.Context, batchID, itemID string, clip model.Asset, index int) error {
	err := l.next.SetVideoFile(ctx, batchID, itemID, clip, index)
	l.write(ctx, LedgerRow{BatchID: batchID, ItemID: itemID, Op: OpVideoFile, SceneIndex: index, Size: len(clip.Data)}, err)
	return err
}

func (l *Ledger) SetVoiceOver(ctx context.Context, batchID, itemID string, wav model.Asset, index int) error {
	err := l.next.SetVoiceOver(ctx, batchID, itemID, wav, index)
	l.write(ctx, LedgerRow{BatchID: batchID, ItemID: itemID, Op: OpVoiceOver, SceneIndex: index, Size: len(wav.Data)}, err)
	return err
}

func (l *Ledger) SetAnalysis(ctx context.Context, batchID, itemID string, analysis string) error {
	err := l.next.SetAnalysis(ctx, batchID, itemID, analysis)
	l.write(ctx, LedgerRow{BatchID: batchID, ItemID: itemID, Op: OpAnalysis, Detail: analysis}, err)
	return err
}

func (l *Ledger) CompleteItem(ctx context.Context, batchID, itemID string) error {
	err := l.next.CompleteItem(ctx, batchID, itemID)
	l.write(ctx, LedgerRow{BatchID: batchID, ItemID: itemID, Op: OpComplete, Status: string(model.StatusCompleted)}, err)
	return err
}

func (l *Ledger) FailItem(ctx context.Context, batchID, itemID, reason string) error {
	err := l.next.FailItem(ctx, batchID, itemID, reason)
	l.write(ctx, LedgerRow{BatchID: batchID, ItemID: itemID, Op: OpFail, Status: string(model.StatusFailed), Detail: reason}, err)
	return err
}

func (l *Ledger) CompleteBatch(ctx context.Context, batchID string) error {
	err := l.next.CompleteBatch(ctx, batchID)
	l.write(ctx, LedgerRow{BatchID: batchID, Op: OpBatchComplete, Status: string(model.StatusCompleted)}, err)
	return err
}

func (l *Ledger) FailBatch(ctx context.Context, batchID, reason string) error {
	err := l.next.FailBatch(ctx, batchID, reason)
	l.write(ctx, LedgerRow{BatchID: batchID, Op: OpBatchFail, Status: string(model.StatusFailed), Detail: reason}, err)
	return err
}
