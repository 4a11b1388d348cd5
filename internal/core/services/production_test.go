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

package services_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jaycherian/gcp-go-media-studio/internal/core/model"
	"github.com/jaycherian/gcp-go-media-studio/internal/core/production"
	"github.com/jaycherian/gcp-go-media-studio/internal/core/services"
	"github.com/jaycherian/gcp-go-media-studio/internal/gateway"
	test "github.com/jaycherian/gcp-go-media-studio/internal/testutil"
	"github.com/zeebo/assert"
)

// scripted produces a one scene item and fails the first `failures` runs.
type scripted struct {
	mu       sync.Mutex
	failures int
	runs     int
}

func (s *scripted) Prepare(_ context.Context, _ *production.Batch) (*production.Assets, error) {
	return &production.Assets{Product: model.Asset{Data: test.PNG(4, 4), MIMEType: "image/png"}}, nil
}

func (s *scripted) Produce(ctx context.Context, job *production.Job) error {
	s.mu.Lock()
	s.runs++
	fail := s.runs <= s.failures
	s.mu.Unlock()

	if err := job.Step(ctx, model.StatusCreatingStoryboard); err != nil {
		return err
	}
	if fail {
		return errors.New("RESOURCE_EXHAUSTED: quota")
	}
	if err := job.Storyboard(ctx, []model.StoryboardChunk{model.GetExampleStoryboardChunk()}); err != nil {
		return err
	}
	if err := job.Step(ctx, model.StatusGeneratingFirstSceneImage); err != nil {
		return err
	}
	if err := job.SceneImage(ctx, 1, model.Asset{Data: test.PNG(4, 4), MIMEType: "image/png"}); err != nil {
		return err
	}
	if err := job.Step(ctx, model.StatusGeneratingVideo); err != nil {
		return err
	}
	if err := job.SceneClip(ctx, 1, model.Asset{Data: []byte("mp4"), MIMEType: "video/mp4"}); err != nil {
		return err
	}
	return job.Step(ctx, model.StatusUploading)
}

type history struct {
	rows []gateway.LedgerRow
}

func (h *history) Batch(_ context.Context, batchID string) ([]gateway.LedgerRow, error) {
	var out []gateway.LedgerRow
	for _, r := range h.rows {
		if r.BatchID == batchID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (h *history) Recent(_ context.Context, limit int) ([]gateway.LedgerRow, error) {
	if limit < len(h.rows) {
		return h.rows[:limit], nil
	}
	return h.rows, nil
}

type signer struct{}

func (signer) URL(_ context.Context, uri string, expires time.Duration) (string, error) {
	return "https://signed.example/" + strings.TrimPrefix(uri, "gs://") + "?ttl=" + expires.String(), nil
}

func newService(t *testing.T, pipeline production.Pipeline, h services.History) (*services.ProductionService, *gateway.Memory) {
	t.Helper()
	mem := gateway.NewMemory()
	worker := production.NewWorker(mem, pipeline)
	return services.NewProductionService(context.Background(), worker, h, signer{}), mem
}

func TestSubmitRunsBatch(t *testing.T) {
	svc, mem := newService(t, &scripted{}, nil)
	req := test.GetTestProductionRequest()
	req.Amount = 2

	batch, err := svc.Submit(context.Background(), req)
	assert.NoError(t, err)
	assert.Equal(t, len(batch.Items), 2)
	svc.Wait()

	got, err := svc.Get(batch.ID)
	assert.NoError(t, err)
	assert.Equal(t, got.Status, model.StatusCompleted)
	for _, item := range got.Items {
		assert.Equal(t, item.Status, model.StatusCompleted)
	}
	assert.Equal(t, len(mem.Events(gateway.OpBatchComplete)), 1)
	assert.Equal(t, len(svc.List()), 1)
}

func TestSubmitRejectsInvalidRequest(t *testing.T) {
	svc, mem := newService(t, &scripted{}, nil)
	req := test.GetTestProductionRequest()
	req.AspectRatio = "4:3"

	_, err := svc.Submit(context.Background(), req)
	assert.That(t, errors.Is(err, model.ErrInvalidRequest))
	assert.Equal(t, len(mem.Events(gateway.OpInit)), 0)
}

func TestGetUnknownBatch(t *testing.T) {
	svc, _ := newService(t, &scripted{}, nil)
	_, err := svc.Get("missing")
	assert.That(t, errors.Is(err, services.ErrNotFound))
}

func TestRetryItem(t *testing.T) {
	svc, _ := newService(t, &scripted{failures: 1}, nil)
	batch, err := svc.Submit(context.Background(), test.GetTestProductionRequest())
	assert.NoError(t, err)
	svc.Wait()

	itemID := batch.Items[0].ID
	item, err := svc.Item(batch.ID, itemID)
	assert.NoError(t, err)
	assert.Equal(t, item.Status, model.StatusFailed)
	assert.That(t, strings.HasPrefix(item.FailureReason, production.ItemErrorTag))

	assert.NoError(t, svc.RetryItem(batch.ID, itemID))
	svc.Wait()

	item, err = svc.Item(batch.ID, itemID)
	assert.NoError(t, err)
	assert.Equal(t, item.Status, model.StatusCompleted)

	err = svc.RetryItem(batch.ID, itemID)
	assert.That(t, errors.Is(err, services.ErrNotRetryable))
}

func TestMediaAndLinks(t *testing.T) {
	svc, _ := newService(t, &scripted{}, nil)
	batch, err := svc.Submit(context.Background(), test.GetTestProductionRequest())
	assert.NoError(t, err)
	svc.Wait()
	itemID := batch.Items[0].ID

	clip, err := svc.Media(batch.ID, itemID, 1, model.MediaClip)
	assert.NoError(t, err)
	assert.Equal(t, string(clip.Data), "mp4")

	_, err = svc.Media(batch.ID, itemID, 1, model.MediaAudio)
	assert.That(t, errors.Is(err, services.ErrNoMedia))

	links, err := svc.MediaLinks(context.Background(), batch.ID, itemID, time.Minute)
	assert.NoError(t, err)
	assert.Equal(t, len(links), 2)
	for _, link := range links {
		assert.That(t, !link.Uploaded)
		assert.Equal(t, link.URL, "")
	}
}

func TestHistory(t *testing.T) {
	svc, _ := newService(t, &scripted{}, nil)
	_, err := svc.History(context.Background(), "b")
	assert.That(t, errors.Is(err, services.ErrHistoryDisabled))

	h := &history{rows: []gateway.LedgerRow{
		{BatchID: "a", Op: gateway.OpBatchComplete},
		{BatchID: "b", Op: gateway.OpBatchFail},
	}}
	svc, _ = newService(t, &scripted{}, h)
	rows, err := svc.History(context.Background(), "b")
	assert.NoError(t, err)
	assert.Equal(t, len(rows), 1)
	recent, err := svc.RecentHistory(context.Background(), 1)
	assert.NoError(t, err)
	assert.Equal(t, len(recent), 1)
}
