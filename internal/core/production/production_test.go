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

package production_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/jaycherian/gcp-go-media-studio/internal/core/faults"
	"github.com/jaycherian/gcp-go-media-studio/internal/core/model"
	"github.com/jaycherian/gcp-go-media-studio/internal/core/production"
	"github.com/jaycherian/gcp-go-media-studio/internal/gateway"
	test "github.com/jaycherian/gcp-go-media-studio/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to model.TaskStatus
		want     bool
	}{
		{model.StatusIdle, model.StatusCreatingStoryboard, true},
		{model.StatusCreatingStoryboard, model.StatusGeneratingFirstSceneImage, true},
		{model.StatusGeneratingFirstSceneImage, model.StatusAnalyzingScene, true},
		{model.StatusAnalyzingScene, model.StatusGeneratingVideo, true},
		{model.StatusGeneratingVideo, model.StatusAnalyzingScene, true},
		{model.StatusGeneratingVideo, model.StatusGeneratingFirstSceneImage, true},
		{model.StatusGeneratingVoiceOver, model.StatusGeneratingFirstSceneImage, true},
		{model.StatusGeneratingVideo, model.StatusUploading, true},
		{model.StatusUploading, model.StatusGeneratingVideo, false},
		{model.StatusGeneratingVideo, model.StatusCreatingStoryboard, false},
		{model.StatusUploading, model.StatusUploading, false},
		{model.StatusCreatingStoryboard, model.StatusFailed, true},
		{model.StatusIdle, model.StatusFailed, true},
		{model.StatusCompleted, model.StatusFailed, false},
		{model.StatusFailed, model.StatusCreatingStoryboard, false},
		{model.StatusIdle, model.TaskStatus("PAUSED"), false},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, production.CanTransition(c.from, c.to), "%s -> %s", c.from, c.to)
	}
}

func TestItemProgress(t *testing.T) {
	item := production.NewItem("b", "i", 0)
	steps := []struct {
		status   model.TaskStatus
		progress int
	}{
		{model.StatusCreatingStoryboard, 10},
		{model.StatusGeneratingFirstSceneImage, 40},
		{model.StatusAnalyzingScene, 40},
		{model.StatusGeneratingVideo, 70},
		{model.StatusGeneratingFirstSceneImage, 70},
		{model.StatusUploading, 85},
	}
	for _, s := range steps {
		require.NoError(t, item.Transition(s.status))
		assert.Equal(t, s.progress, item.Snapshot().Progress, "after %s", s.status)
	}

	err := item.Transition(model.StatusCreatingStoryboard)
	assert.ErrorIs(t, err, production.ErrIllegalTransition)
}

func TestItemRecordScene(t *testing.T) {
	item := production.NewItem("b", "i", 0)
	img := model.Asset{Data: []byte("img"), MIMEType: "image/png"}
	clip := model.Asset{Data: []byte("clip"), MIMEType: "video/mp4"}

	assert.Error(t, item.RecordScene(1, model.MediaClip, clip), "clip before image")
	require.NoError(t, item.RecordScene(2, model.MediaImage, img))
	require.NoError(t, item.RecordScene(1, model.MediaImage, img))
	assert.ErrorIs(t, item.RecordScene(1, model.MediaImage, img), production.ErrDuplicateMedia)
	require.NoError(t, item.RecordScene(1, model.MediaClip, clip))
	assert.ErrorIs(t, item.RecordScene(1, model.MediaClip, clip), production.ErrDuplicateMedia)
	assert.Error(t, item.RecordScene(0, model.MediaImage, img))
	assert.Error(t, item.RecordScene(3, model.MediaImage, model.Asset{}))

	scenes := item.Snapshot().Scenes
	require.Len(t, scenes, 2)
	assert.Equal(t, 1, scenes[0].Index)
	assert.Equal(t, 2, scenes[1].Index)

	require.NoError(t, item.Transition(model.StatusCompleting))
	assert.ErrorIs(t, item.Transition(model.StatusCompleted), production.ErrIncompleteScenes)
}

func TestItemFailKeepsTerminalState(t *testing.T) {
	item := production.NewItem("b", "i", 0)
	assert.True(t, item.Fail("first"))
	assert.False(t, item.Fail("second"))
	assert.Equal(t, "first", item.Snapshot().FailureReason)
}

// scriptedPipeline produces items through the Job API the way the real
// stages do.
type scriptedPipeline struct {
	prepared int
	prepare  error
	produce  func(ctx context.Context, job *production.Job, n int) error
	calls    int
}

func (p *scriptedPipeline) Prepare(context.Context, *production.Batch) (*production.Assets, error) {
	p.prepared++
	if p.prepare != nil {
		return nil, p.prepare
	}
	return &production.Assets{Product: model.Asset{Data: []byte("anchor")}}, nil
}

func (p *scriptedPipeline) Produce(ctx context.Context, job *production.Job) error {
	n := p.calls
	p.calls++
	if p.produce != nil {
		return p.produce(ctx, job, n)
	}
	return produceScenes(ctx, job, 2)
}

func produceScenes(ctx context.Context, job *production.Job, scenes int) error {
	if err := job.Step(ctx, model.StatusCreatingStoryboard); err != nil {
		return err
	}
	chunks := make([]model.StoryboardChunk, scenes)
	for i := range chunks {
		chunks[i] = model.GetExampleStoryboardChunk()
	}
	if err := job.Storyboard(ctx, chunks); err != nil {
		return err
	}
	for index := 1; index <= scenes; index++ {
		if err := job.Step(ctx, model.StatusGeneratingFirstSceneImage); err != nil {
			return err
		}
		if err := job.SceneImage(ctx, index, model.Asset{Data: []byte("img"), MIMEType: "image/png"}); err != nil {
			return err
		}
		if err := job.Step(ctx, model.StatusGeneratingVideo); err != nil {
			return err
		}
		if err := job.SceneClip(ctx, index, model.Asset{Data: []byte("clip"), MIMEType: "video/mp4"}); err != nil {
			return err
		}
		if err := job.Still(index, model.Asset{Data: []byte("still"), MIMEType: "image/jpeg"}); err != nil {
			return err
		}
	}
	return job.Step(ctx, model.StatusUploading)
}

func openBatch(t *testing.T, memory *gateway.Memory, pipeline production.Pipeline, amount int) (*production.Worker, *production.Batch) {
	worker := production.NewWorker(memory, pipeline)
	req := test.GetTestProductionRequest()
	req.Amount = amount
	batch, err := worker.Open(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, batch.Items, amount)
	return worker, batch
}

func TestRunBatchSiblingsContinue(t *testing.T) {
	memory := gateway.NewMemory()
	pipeline := &scriptedPipeline{produce: func(ctx context.Context, job *production.Job, n int) error {
		if n == 1 {
			if err := job.Step(ctx, model.StatusCreatingStoryboard); err != nil {
				return err
			}
			return errors.New("Requested entity was not found.")
		}
		return produceScenes(ctx, job, 2)
	}}
	worker, batch := openBatch(t, memory, pipeline, 3)

	require.NoError(t, worker.RunBatch(context.Background(), batch))

	snapshot := batch.Snapshot()
	assert.Equal(t, model.StatusCompleted, snapshot.Status)
	assert.Equal(t, model.StatusCompleted, snapshot.Items[0].Status)
	assert.Equal(t, model.StatusFailed, snapshot.Items[1].Status)
	assert.Equal(t, "[Item Error] Your Google Cloud project does not have access to this model.", snapshot.Items[1].FailureReason)
	assert.Equal(t, 10, snapshot.Items[1].Progress)
	assert.Equal(t, model.StatusCompleted, snapshot.Items[2].Status)
	assert.Equal(t, 100, snapshot.Items[2].Progress)
	assert.Equal(t, 1, pipeline.prepared)

	assert.Len(t, memory.Events(gateway.OpComplete), 2)
	assert.Len(t, memory.Events(gateway.OpFail), 1)
	assert.Len(t, memory.Events(gateway.OpBatchComplete), 1)
	assert.Len(t, memory.Events(gateway.OpVideoFile), 4)
	assert.Equal(t, []model.TaskStatus{
		model.StatusCreatingStoryboard,
		model.StatusGeneratingFirstSceneImage, model.StatusGeneratingVideo,
		model.StatusGeneratingFirstSceneImage, model.StatusGeneratingVideo,
		model.StatusUploading,
	}, memory.Steps(snapshot.Items[0].ID))

	scenes := snapshot.Items[0].Scenes
	require.Len(t, scenes, 2)
	for _, scene := range scenes {
		assert.False(t, scene.Image.Empty())
		assert.False(t, scene.Clip.Empty())
	}
}

func TestRunBatchUploadFailureKeepsMedia(t *testing.T) {
	memory := gateway.NewMemory()
	pipeline := &scriptedPipeline{produce: func(ctx context.Context, job *production.Job, _ int) error {
		if err := produceScenes(ctx, job, 1); err != nil {
			return err
		}
		return faults.Upload("upload clip", errors.New("s3 endpoint unreachable"))
	}}
	worker, batch := openBatch(t, memory, pipeline, 1)

	err := worker.RunBatch(context.Background(), batch)
	assert.ErrorIs(t, err, production.ErrBatchFailed)

	item := batch.Snapshot().Items[0]
	assert.Equal(t, model.StatusFailed, item.Status)
	assert.Equal(t, "[Upload Error] s3 endpoint unreachable", item.FailureReason)
	ref, ok := item.Scenes[0].Ref(model.MediaClip)
	require.True(t, ok)
	assert.Equal(t, production.LocalURI(batch.ID, item.ID, 1, model.MediaClip), ref.URI)
	assert.False(t, ref.Uploaded)
	assert.Equal(t, []byte("clip"), item.Scenes[0].Clip.Data)
}

func TestRunBatchProgressUpdateFailureIsItemError(t *testing.T) {
	memory := gateway.NewMemory()
	memory.FailOn(gateway.OpStoryboard, errors.New("502 bad gateway"))
	pipeline := &scriptedPipeline{produce: func(ctx context.Context, job *production.Job, _ int) error {
		return job.Storyboard(ctx, []model.StoryboardChunk{{}})
	}}
	worker, batch := openBatch(t, memory, pipeline, 1)

	assert.ErrorIs(t, worker.RunBatch(context.Background(), batch), production.ErrBatchFailed)
	item := batch.Snapshot().Items[0]
	assert.Equal(t, "[Item Error] set storyboard: 502 bad gateway", item.FailureReason)
}

func TestFailureReasonTags(t *testing.T) {
	assert.Equal(t, "[Upload Error] bucket not found", production.FailureReason(faults.Upload("upload scene 1 clip", errors.New("bucket not found"))))
	assert.Equal(t, "[Item Error] set step: 502 bad gateway", production.FailureReason(faults.Persistence("set step", errors.New("502 bad gateway"))))
	assert.Equal(t, "[Item Error] model overloaded", production.FailureReason(errors.New("model overloaded")))
}

func TestRunBatchAllItemsFailed(t *testing.T) {
	memory := gateway.NewMemory()
	pipeline := &scriptedPipeline{produce: func(context.Context, *production.Job, int) error {
		return &faults.SafetyRejection{Reasons: []string{"celebrity likeness"}}
	}}
	worker, batch := openBatch(t, memory, pipeline, 2)

	err := worker.RunBatch(context.Background(), batch)
	assert.ErrorIs(t, err, production.ErrBatchFailed)

	snapshot := batch.Snapshot()
	assert.Equal(t, model.StatusFailed, snapshot.Status)
	assert.Equal(t, "all items failed", snapshot.Reason)
	for _, item := range snapshot.Items {
		assert.True(t, strings.HasPrefix(item.FailureReason, "[Item Error] raiMediaFilteredReasons"), item.FailureReason)
	}
	events := memory.Events(gateway.OpBatchFail)
	require.Len(t, events, 1)
	assert.Equal(t, "all items failed", events[0].Detail)
}

func TestRunBatchPrepareFailure(t *testing.T) {
	memory := gateway.NewMemory()
	pipeline := &scriptedPipeline{prepare: errors.New("product image is not an image")}
	worker, batch := openBatch(t, memory, pipeline, 2)

	assert.ErrorIs(t, worker.RunBatch(context.Background(), batch), production.ErrBatchFailed)
	assert.Equal(t, 0, pipeline.calls)
	assert.Len(t, memory.Events(gateway.OpFail), 2)
}

func TestRunBatchCompleteItemFailure(t *testing.T) {
	memory := gateway.NewMemory()
	memory.FailOn(gateway.OpComplete, errors.New("billing account disabled"))
	worker, batch := openBatch(t, memory, &scriptedPipeline{}, 1)

	assert.Error(t, worker.RunBatch(context.Background(), batch))
	item := batch.Snapshot().Items[0]
	assert.Equal(t, "[Upload Error] Billing problem: check the billing status of the project in the Cloud Console.", item.FailureReason)
}

func TestRetryItem(t *testing.T) {
	memory := gateway.NewMemory()
	pipeline := &scriptedPipeline{produce: func(ctx context.Context, job *production.Job, n int) error {
		if n == 0 {
			return errors.New("503 UNAVAILABLE")
		}
		return produceScenes(ctx, job, 1)
	}}
	worker, batch := openBatch(t, memory, pipeline, 1)
	itemID := batch.Items[0].ID()

	assert.ErrorIs(t, worker.RunBatch(context.Background(), batch), production.ErrBatchFailed)
	require.NoError(t, worker.RetryItem(context.Background(), batch, itemID))

	snapshot := batch.Snapshot()
	assert.Equal(t, model.StatusCompleted, snapshot.Status)
	assert.Equal(t, model.StatusCompleted, snapshot.Items[0].Status)
	assert.Empty(t, snapshot.Items[0].FailureReason)
	assert.Equal(t, 1, pipeline.prepared)
	assert.Len(t, memory.Events(gateway.OpBatchComplete), 1)

	assert.ErrorIs(t, worker.RetryItem(context.Background(), batch, itemID), production.ErrIllegalTransition)
	assert.Error(t, worker.RetryItem(context.Background(), batch, "missing"))
}

func TestOpenRejectsEmptyHandle(t *testing.T) {
	memory := gateway.NewMemory()
	memory.FailOn(gateway.OpInit, errors.New("backend down"))
	_, err := production.NewWorker(memory, &scriptedPipeline{}).Open(context.Background(), test.GetTestProductionRequest())
	var persistence *faults.PersistenceError
	assert.True(t, errors.As(err, &persistence))
}
