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

package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jaycherian/gcp-go-media-studio/internal/core/model"
	"github.com/jaycherian/gcp-go-media-studio/internal/core/production"
	"github.com/jaycherian/gcp-go-media-studio/internal/gateway"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrNotRetryable    = errors.New("item is not retryable")
	ErrHistoryDisabled = errors.New("ledger history is disabled")
	ErrNoMedia         = errors.New("media not available")
)

// Runner opens and runs batches. *production.Worker implements it.
type Runner interface {
	Open(ctx context.Context, req model.ProductionRequest) (*production.Batch, error)
	RunBatch(ctx context.Context, batch *production.Batch) error
	RetryItem(ctx context.Context, batch *production.Batch, itemID string) error
}

// History reads the ledger. *HistoryService implements it.
type History interface {
	Batch(ctx context.Context, batchID string) ([]gateway.LedgerRow, error)
	Recent(ctx context.Context, limit int) ([]gateway.LedgerRow, error)
}

// URLSigner turns stored references into browser readable URLs.
// *artifacts.Signer implements it.
type URLSigner interface {
	URL(ctx context.Context, uri string, expires time.Duration) (string, error)
}

// MediaLink is a produced artifact as returned to API clients.
type MediaLink struct {
	model.MediaRef
	URL string `json:"url,omitempty"` // Signed or public URL of an uploaded artifact.
}

// ProductionService keeps the batches of this process and runs them in the
// background. Runs never outlive the service context.
type ProductionService struct {
	ctx     context.Context
	runner  Runner
	history History   // Optional.
	signer  URLSigner // Optional.

	mu      sync.RWMutex
	batches map[string]*production.Batch
	opened  map[string]time.Time
	wg      sync.WaitGroup
}

// NewProductionService creates the service. Background runs use ctx.
func NewProductionService(ctx context.Context, runner Runner, history History, signer URLSigner) *ProductionService {
	return &ProductionService{
		ctx:     ctx,
		runner:  runner,
		history: history,
		signer:  signer,
		batches: make(map[string]*production.Batch),
		opened:  make(map[string]time.Time),
	}
}

// Submit validates req, opens its batch and starts it in the background.
//
// Outputs:
//   - model.Batch: The opened batch, every item still IDLE.
//   - error: model.ErrInvalidRequest on validation, or the gateway failure.
func (s *ProductionService) Submit(ctx context.Context, req model.ProductionRequest) (model.Batch, error) {
	req.ApplyDefaults()
	if err := req.Validate(); err != nil {
		return model.Batch{}, err
	}
	batch, err := s.runner.Open(ctx, req)
	if err != nil {
		return model.Batch{}, err
	}
	s.Register(batch)
	snapshot := batch.Snapshot()
	s.background(func(ctx context.Context) {
		if err := s.runner.RunBatch(ctx, batch); err != nil {
			slog.WarnContext(ctx, "batch finished with errors", "batch_id", batch.ID, "error", err)
		}
	})
	return snapshot, nil
}

// Register adds a batch opened elsewhere, e.g. by the Pub/Sub workflow.
func (s *ProductionService) Register(batch *production.Batch) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches[batch.ID] = batch
	s.opened[batch.ID] = time.Now()
}

func (s *ProductionService) batch(id string) (*production.Batch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	batch, ok := s.batches[id]
	if !ok {
		return nil, fmt.Errorf("batch %s: %w", id, ErrNotFound)
	}
	return batch, nil
}

// Get returns a snapshot of batch id.
func (s *ProductionService) Get(id string) (model.Batch, error) {
	batch, err := s.batch(id)
	if err != nil {
		return model.Batch{}, err
	}
	return batch.Snapshot(), nil
}

// List returns snapshots of every batch, newest first.
func (s *ProductionService) List() []model.Batch {
	s.mu.RLock()
	batches := make([]*production.Batch, 0, len(s.batches))
	for _, b := range s.batches {
		batches = append(batches, b)
	}
	opened := make(map[string]time.Time, len(s.opened))
	for id, at := range s.opened {
		opened[id] = at
	}
	s.mu.RUnlock()

	sort.Slice(batches, func(i, j int) bool {
		return opened[batches[i].ID].After(opened[batches[j].ID])
	})
	out := make([]model.Batch, 0, len(batches))
	for _, b := range batches {
		out = append(out, b.Snapshot())
	}
	return out
}

// Item returns a snapshot of one item.
func (s *ProductionService) Item(batchID, itemID string) (model.GenerationItem, error) {
	batch, err := s.batch(batchID)
	if err != nil {
		return model.GenerationItem{}, err
	}
	item, ok := batch.Item(itemID)
	if !ok {
		return model.GenerationItem{}, fmt.Errorf("item %s: %w", itemID, ErrNotFound)
	}
	return item.Snapshot(), nil
}

// RetryItem restarts a FAILED item in the background.
func (s *ProductionService) RetryItem(batchID, itemID string) error {
	batch, err := s.batch(batchID)
	if err != nil {
		return err
	}
	item, ok := batch.Item(itemID)
	if !ok {
		return fmt.Errorf("item %s: %w", itemID, ErrNotFound)
	}
	if status := item.Status(); status != model.StatusFailed {
		return fmt.Errorf("%w: item %s is %s", ErrNotRetryable, itemID, status)
	}
	s.background(func(ctx context.Context) {
		if err := s.runner.RetryItem(ctx, batch, itemID); err != nil {
			slog.WarnContext(ctx, "retry finished with errors", "batch_id", batch.ID, "item_id", itemID, "error", err)
		}
	})
	return nil
}

// Media returns the in-memory artifact of kind for scene index of an item.
func (s *ProductionService) Media(batchID, itemID string, index int, kind model.MediaKind) (model.Asset, error) {
	batch, err := s.batch(batchID)
	if err != nil {
		return model.Asset{}, err
	}
	item, ok := batch.Item(itemID)
	if !ok {
		return model.Asset{}, fmt.Errorf("item %s: %w", itemID, ErrNotFound)
	}
	scene, ok := item.Scene(index)
	if !ok {
		return model.Asset{}, fmt.Errorf("scene %d: %w", index, ErrNoMedia)
	}
	asset, ok := scene.Asset(kind)
	if !ok {
		return model.Asset{}, fmt.Errorf("scene %d %s: %w", index, kind, ErrNoMedia)
	}
	return asset, nil
}

// MediaLinks lists the artifacts of an item. Uploaded artifacts carry a URL
// valid for expires; local ones are served by this process.
func (s *ProductionService) MediaLinks(ctx context.Context, batchID, itemID string, expires time.Duration) ([]MediaLink, error) {
	item, err := s.Item(batchID, itemID)
	if err != nil {
		return nil, err
	}
	links := make([]MediaLink, 0)
	for _, ref := range item.MediaRefs() {
		link := MediaLink{MediaRef: ref}
		if ref.Uploaded {
			link.URL = ref.URI
			if s.signer != nil && strings.HasPrefix(ref.URI, "gs://") {
				if link.URL, err = s.signer.URL(ctx, ref.URI, expires); err != nil {
					return nil, err
				}
			}
		}
		links = append(links, link)
	}
	return links, nil
}

// History returns the ledger rows of batchID.
func (s *ProductionService) History(ctx context.Context, batchID string) ([]gateway.LedgerRow, error) {
	if s.history == nil {
		return nil, ErrHistoryDisabled
	}
	return s.history.Batch(ctx, batchID)
}

// RecentHistory returns the latest batch outcomes recorded in the ledger.
func (s *ProductionService) RecentHistory(ctx context.Context, limit int) ([]gateway.LedgerRow, error) {
	if s.history == nil {
		return nil, ErrHistoryDisabled
	}
	return s.history.Recent(ctx, limit)
}

func (s *ProductionService) background(run func(ctx context.Context)) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		run(s.ctx)
	}()
}

// Wait blocks until every background run has returned.
func (s *ProductionService) Wait() {
	s.wg.Wait()
}
