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

package production

import (
	"context"

	"github.com/jaycherian/gcp-go-media-studio/internal/core/model"
)

// BatchHandle identifies a batch initialized by the gateway.
type BatchHandle struct {
	BatchID string
	ItemIDs []string // One per requested item, in order.
}

// Gateway is the external persistence service that records every stage of a
// production. Scene indexes are 1-based.
type Gateway interface {
	InitBatch(ctx context.Context, req model.ProductionRequest) (BatchHandle, error)
	SetStep(ctx context.Context, batchID, itemID string, status model.TaskStatus) error
	SetStoryboard(ctx context.Context, batchID, itemID string, chunks []model.StoryboardChunk) error
	SetSceneImage(ctx context.Context, batchID, itemID string, img model.Asset, index int) error
	SetVideoFile(ctx context.Context, batchID, itemID string, clip model.Asset, index int) error
	SetVoiceOver(ctx context.Context, batchID, itemID string, wav model.Asset, index int) error
	SetAnalysis(ctx context.Context, batchID, itemID string, analysis string) error
	CompleteItem(ctx context.Context, batchID, itemID string) error
	FailItem(ctx context.Context, batchID, itemID, reason string) error
	CompleteBatch(ctx context.Context, batchID string) error
	FailBatch(ctx context.Context, batchID, reason string) error
}
