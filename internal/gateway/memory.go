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

// Package gateway implements the persistence gateway of the production state
// machine: a REST client for the studio backend, a BigQuery ledger decorator
// and an in-memory recorder used for local runs and tests.
package gateway

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jaycherian/gcp-go-media-studio/internal/core/model"
	"github.com/jaycherian/gcp-go-media-studio/internal/core/production"
)

// Gateway operations, named after the backend endpoints.
const (
	OpInit          = "ugc"
	OpStep          = "step"
	OpStoryboard    = "story_board"
	OpAnalysis      = "set_analyze_scene"
	OpSceneImage    = "scene_image_first"
	OpVideoFile     = "save_video_file"
	OpVoiceOver     = "save_voice_over_file"
	OpComplete      = "complete"
	OpFail          = "fail"
	OpBatchComplete = "ugc_complete"
	OpBatchFail     = "ugc_fail"
)

// Event is one recorded gateway call.
type Event struct {
	Op      string
	BatchID string
	ItemID  string
	Status  model.TaskStatus
	Index   int
	Size    int
	Detail  string // Storyboard or analysis JSON, failure reason.
	At      time.Time
}

// Memory records gateway calls in memory.
type Memory struct {
	mu     sync.Mutex
	events []Event
	fail   map[string]error
}

// NewMemory creates an empty recorder.
func NewMemory() *Memory {
	return &Memory{fail: make(map[string]error)}
}

// FailOn makes every later call of op return err. A nil err clears it.
func (m *Memory) FailOn(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.fail, op)
		return
	}
	m.fail[op] = err
}

// Events returns the recorded events of the given operations, all when none
// are given.
func (m *Memory) Events(ops ...string) []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(ops) == 0 {
		return append([]Event(nil), m.events...)
	}
	want := make(map[string]bool, len(ops))
	for _, op := range ops {
		want[op] = true
	}
	var out []Event
	for _, e := range m.events {
		if want[e.Op] {
			out = append(out, e)
		}
	}
	return out
}

// Steps returns the statuses reported for itemID in order.
func (m *Memory) Steps(itemID string) []model.TaskStatus {
	var out []model.TaskStatus
	for _, e := range m.Events(OpStep) {
		if e.ItemID == itemID {
			out = append(out, e.Status)
		}
	}
	return out
}

func (m *Memory) record(e Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail[e.Op]; err != nil {
		return err
	}
	e.At = time.Now()
	m.events = append(m.events, e)
	return nil
}

func (m *Memory) InitBatch(_ context.Context, req model.ProductionRequest) (production.BatchHandle, error) {
	handle := production.BatchHandle{BatchID: uuid.NewString()}
	for i := 0; i < req.Amount; i++ {
		handle.ItemIDs = append(handle.ItemIDs, uuid.NewString())
	}
	if err := m.record(Event{Op: OpInit, BatchID: handle.BatchID, Detail: req.Name}); err != nil {
		return production.BatchHandle{}, err
	}
	return handle, nil
}

func (m *Memory) SetStep(_ context.Context, batchID, itemID string, status model.TaskStatus) error {
	return m.record(Event{Op: OpStep, BatchID: batchID, ItemID: itemID, Status: status})
}

func (m *Memory) SetStoryboard(_ context.Context, batchID, itemID string, chunks []model.StoryboardChunk) error {
	data, err := json.Marshal(chunks)
	if err != nil {
		return err
	}
	return m.record(Event{Op: OpStoryboard, BatchID: batchID, ItemID: itemID, Detail: string(data)})
}

func (m *Memory) SetSceneImage(_ context.Context, batchID, itemID string, img model.Asset, index int) error {
	return m.record(Event{Op: OpSceneImage, BatchID: batchID, ItemID: itemID, Index: index, Size: len(img.Data)})
}

func (m *Memory) SetVideoFile(_ context.Context, batchID, itemID string, clip model.Asset, index int) error {
	return m.record(Event{Op: OpVideoFile, BatchID: batchID, ItemID: itemID, Index: index, Size: len(clip.Data)})
}

func (m *Memory) SetVoiceOver(_ context.Context, batchID, itemID string, wav model.Asset, index int) error {
	return m.record(Event{Op: OpVoiceOver, BatchID: batchID, ItemID: itemID, Index: index, Size: len(wav.Data)})
}

func (m *Memory) SetAnalysis(_ context.Context, batchID, itemID string, analysis string) error {
	return m.record(Event{Op: OpAnalysis, BatchID: batchID, ItemID: itemID, Detail: analysis})
}

func (m *Memory) CompleteItem(_ context.Context, batchID, itemID string) error {
	return m.record(Event{Op: OpComplete, BatchID: batchID, ItemID: itemID})
}

func (m *Memory) FailItem(_ context.Context, batchID, itemID, reason string) error {
	return m.record(Event{Op: OpFail, BatchID: batchID, ItemID: itemID, Detail: reason})
}

func (m *Memory) CompleteBatch(_ context.Context, batchID string) error {
	return m.record(Event{Op: OpBatchComplete, BatchID: batchID})
}

func (m *Memory) FailBatch(_ context.Context, batchID, reason string) error {
	return m.record(Event{Op: OpBatchFail, BatchID: batchID, Detail: reason})
}
