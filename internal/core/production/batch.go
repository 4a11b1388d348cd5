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
	"fmt"
	"sync"

	"github.com/jaycherian/gcp-go-media-studio/internal/core/faults"
	"github.com/jaycherian/gcp-go-media-studio/internal/core/model"
)

// Assets are the inputs prepared once per batch and shared by its items.
type Assets struct {
	ProductReference model.Asset   // Raw product image as fetched.
	Product          model.Asset   // Locked product anchor.
	Characters       []model.Asset // Character references, in request order.
}

// Batch is the live state of a production batch.
type Batch struct {
	ID      string
	Request model.ProductionRequest
	Items   []*Item

	mu     sync.RWMutex
	status model.TaskStatus
	reason string
	assets *Assets
}

// NewBatch creates a batch from a gateway handle.
func NewBatch(handle BatchHandle, req model.ProductionRequest) *Batch {
	b := &Batch{ID: handle.BatchID, Request: req, status: model.StatusInitBatch}
	for n, id := range handle.ItemIDs {
		b.Items = append(b.Items, NewItem(handle.BatchID, id, n))
	}
	return b
}

// Item returns the item with id.
func (b *Batch) Item(id string) (*Item, bool) {
	for _, item := range b.Items {
		if item.ID() == id {
			return item, true
		}
	}
	return nil, false
}

// Assets returns the prepared assets, nil before preparation.
func (b *Batch) Assets() *Assets {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.assets
}

// SetAssets stores the prepared assets shared by the items.
func (b *Batch) SetAssets(a *Assets) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.assets = a
}

func (b *Batch) Status() model.TaskStatus {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.status
}

func (b *Batch) finish(status model.TaskStatus, reason string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.status, b.reason = status, reason
}

// Completed counts the COMPLETED items.
func (b *Batch) Completed() int {
	n := 0
	for _, item := range b.Items {
		if item.Status() == model.StatusCompleted {
			n++
		}
	}
	return n
}

// Snapshot returns a copy of the batch for readers.
func (b *Batch) Snapshot() model.Batch {
	b.mu.RLock()
	out := model.Batch{ID: b.ID, Name: b.Request.Name, Request: b.Request, Status: b.status, Reason: b.reason}
	b.mu.RUnlock()
	for _, item := range b.Items {
		snapshot := item.Snapshot()
		out.Items = append(out.Items, &snapshot)
	}
	return out
}

// Job is one item being produced. Pipeline stages report through it so the
// item state and the gateway never drift apart.
type Job struct {
	Batch   *Batch
	Item    *Item
	gateway Gateway
}

// NewJob binds item of batch to gateway.
func NewJob(batch *Batch, item *Item, gateway Gateway) *Job {
	return &Job{Batch: batch, Item: item, gateway: gateway}
}

func (j *Job) Request() model.ProductionRequest { return j.Batch.Request }

func (j *Job) Assets() *Assets { return j.Batch.Assets() }

// Step moves the item to status and reports it.
func (j *Job) Step(ctx context.Context, status model.TaskStatus) error {
	if err := j.Item.Transition(status); err != nil {
		return err
	}
	return faults.Persistence("set step", j.gateway.SetStep(ctx, j.Batch.ID, j.Item.ID(), status))
}

// Storyboard stores and reports the planned chunks.
func (j *Job) Storyboard(ctx context.Context, chunks []model.StoryboardChunk) error {
	j.Item.SetStoryboard(chunks)
	return faults.Persistence("set storyboard", j.gateway.SetStoryboard(ctx, j.Batch.ID, j.Item.ID(), chunks))
}

// SceneImage records and reports the composite image of scene index.
func (j *Job) SceneImage(ctx context.Context, index int, img model.Asset) error {
	if err := j.record(index, model.MediaImage, img); err != nil {
		return err
	}
	return faults.Persistence("set scene image", j.gateway.SetSceneImage(ctx, j.Batch.ID, j.Item.ID(), img, index))
}

// SceneClip records and reports the clip of scene index.
func (j *Job) SceneClip(ctx context.Context, index int, clip model.Asset) error {
	if err := j.record(index, model.MediaClip, clip); err != nil {
		return err
	}
	return faults.Persistence("set video file", j.gateway.SetVideoFile(ctx, j.Batch.ID, j.Item.ID(), clip, index))
}

// VoiceOver records and reports the narration audio of scene index.
func (j *Job) VoiceOver(ctx context.Context, index int, wav model.Asset) error {
	if err := j.record(index, model.MediaAudio, wav); err != nil {
		return err
	}
	return faults.Persistence("set voice over", j.gateway.SetVoiceOver(ctx, j.Batch.ID, j.Item.ID(), wav, index))
}

// Analysis stores and reports the scene analysis of scene index.
func (j *Job) Analysis(ctx context.Context, index int, analysis string) error {
	j.Item.Describe(index, "", "", analysis)
	return faults.Persistence("set analysis", j.gateway.SetAnalysis(ctx, j.Batch.ID, j.Item.ID(), analysis))
}

// Still records the continuity frame of scene index. Stills are not reported
// to the gateway.
func (j *Job) Still(index int, still model.Asset) error {
	return j.record(index, model.MediaStill, still)
}

// record stores asset on the item together with a local reference, which
// stays readable when a later upload fails.
func (j *Job) record(index int, kind model.MediaKind, asset model.Asset) error {
	if err := j.Item.RecordScene(index, kind, asset); err != nil {
		return err
	}
	j.Item.AddRef(index, model.MediaRef{
		Kind:        kind,
		SceneIndex:  index,
		URI:         LocalURI(j.Batch.ID, j.Item.ID(), index, kind),
		ContentType: asset.MIMEType,
		Size:        len(asset.Data),
	})
	return nil
}

// LocalURI names media held in memory by this process.
func LocalURI(batchID, itemID string, index int, kind model.MediaKind) string {
	return fmt.Sprintf("local://%s/%s/%d/%s", batchID, itemID, index, kind)
}

func (j *Job) String() string {
	return fmt.Sprintf("%s/%s", j.Batch.ID, j.Item.ID())
}
