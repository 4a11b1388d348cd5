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

package commands_test

import (
	"context"
	"errors"
	"testing"

	"github.com/jaycherian/gcp-go-media-studio/internal/core/commands"
	"github.com/jaycherian/gcp-go-media-studio/internal/core/cor"
	"github.com/jaycherian/gcp-go-media-studio/internal/core/faults"
	"github.com/jaycherian/gcp-go-media-studio/internal/core/model"
	"github.com/jaycherian/gcp-go-media-studio/internal/core/production"
	"github.com/jaycherian/gcp-go-media-studio/internal/core/video"
	"github.com/jaycherian/gcp-go-media-studio/internal/core/visual"
	"github.com/jaycherian/gcp-go-media-studio/internal/gateway"
	test "github.com/jaycherian/gcp-go-media-studio/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newJob(t *testing.T) (*production.Job, *gateway.Memory) {
	t.Helper()
	gw := gateway.NewMemory()
	req := test.GetTestProductionRequest()
	handle, err := gw.InitBatch(context.Background(), req)
	require.NoError(t, err)
	batch := production.NewBatch(handle, req)
	return production.NewJob(batch, batch.Items[0], gw), gw
}

func newContext(job *production.Job) cor.Context {
	chCtx := cor.NewBaseContext()
	chCtx.SetContext(context.Background())
	chCtx.Add(commands.JobParam, job)
	return chCtx
}

func atScene(chCtx cor.Context, index int, last bool) {
	chCtx.Add(commands.SceneIndexParam, index)
	chCtx.Add(commands.LastSceneParam, last)
	chCtx.Add(commands.ChunkParam, model.StoryboardChunk{
		Description: "Morning routine",
		Scenes:      []model.Scene{{SceneNumber: index, VisualPrompt: "Sari applies the serum"}},
	})
}

type composer struct{ next int }

func (c *composer) ComposeFirstScene(context.Context, visual.FirstSceneInput) (model.Asset, error) {
	return model.Asset{Data: test.PNG(4, 4), MIMEType: "image/png"}, nil
}

func (c *composer) ComposeNextScene(context.Context, visual.NextSceneInput) (model.Asset, error) {
	c.next++
	return model.Asset{Data: test.PNG(4, 4), MIMEType: "image/png"}, nil
}

func TestSceneImageRequiresPreparedBatch(t *testing.T) {
	job, gw := newJob(t)
	chCtx := newContext(job)
	atScene(chCtx, 1, true)

	commands.NewSceneImage("scene-image", &composer{}, true).Execute(chCtx)

	require.True(t, chCtx.HasErrors())
	assert.True(t, faults.IsFatal(chCtx.Err()))
	assert.Empty(t, gw.Events(gateway.OpSceneImage))
}

func TestSceneImageReusesStillWithoutContinuity(t *testing.T) {
	job, gw := newJob(t)
	require.NoError(t, job.Item.Transition(model.StatusCreatingStoryboard))
	prepareAssets(t, job)
	chCtx := newContext(job)
	atScene(chCtx, 2, true)
	still := model.Asset{Data: test.JPEG(4, 4), MIMEType: "image/jpeg"}
	chCtx.Add(commands.PreviousStillParam, still)

	c := &composer{}
	commands.NewSceneImage("scene-image", c, false).Execute(chCtx)

	require.False(t, chCtx.HasErrors(), "%v", chCtx.Err())
	assert.Equal(t, 0, c.next)
	events := gw.Events(gateway.OpSceneImage)
	require.Len(t, events, 1)
	assert.Equal(t, 2, events[0].Index)
	assert.Equal(t, still, chCtx.Get(commands.SceneImageParam))
}

func TestSceneImageNeedsContinuityFrame(t *testing.T) {
	job, _ := newJob(t)
	prepareAssets(t, job)
	chCtx := newContext(job)
	atScene(chCtx, 2, true)

	commands.NewSceneImage("scene-image", &composer{}, true).Execute(chCtx)
	assert.ErrorContains(t, chCtx.Err(), "scene 2 has no continuity frame")
}

// prepareAssets runs a prepare chain with trivial services so the batch has
// its product anchor.
func prepareAssets(t *testing.T, job *production.Job) {
	t.Helper()
	chCtx := cor.NewBaseContext()
	chCtx.SetContext(context.Background())
	chCtx.Add(commands.BatchParam, job.Batch)
	commands.NewFetchReferences("fetch", fetcher{}).Execute(chCtx)
	commands.NewLockProduct("lock", locker{}, false).Execute(chCtx)
	require.False(t, chCtx.HasErrors(), "%v", chCtx.Err())
	job.Batch.SetAssets(chCtx.Get(commands.AssetsParam).(*production.Assets))
}

type fetcher struct{}

func (fetcher) FetchAll(_ context.Context, locations []string) ([]model.Asset, error) {
	out := make([]model.Asset, len(locations))
	for i := range locations {
		out[i] = model.Asset{Data: test.PNG(4, 4), MIMEType: "image/png"}
	}
	return out, nil
}

type locker struct{}

func (locker) LockProduct(_ context.Context, _ model.Product, reference model.Asset, _ string) (model.Asset, error) {
	return reference, nil
}

type narrator struct{ calls int }

func (n *narrator) VoiceOver(context.Context, string) (model.Asset, error) {
	n.calls++
	return model.Asset{Data: []byte("RIFF"), MIMEType: "audio/wav"}, nil
}

func TestVoiceOverSkipsDirectFamilies(t *testing.T) {
	job, gw := newJob(t)
	chCtx := newContext(job)
	atScene(chCtx, 1, true)
	chCtx.Add(commands.ClipResultParam, video.Result{Family: video.FamilyImageToVideoAudio})

	n := &narrator{}
	commands.NewVoiceOver("voice-over", n).Execute(chCtx)

	assert.False(t, chCtx.HasErrors())
	assert.Equal(t, 0, n.calls)
	assert.Empty(t, gw.Steps(job.Item.ID()))
}

func TestVoiceOverRecordsNarration(t *testing.T) {
	job, _ := newJob(t)
	chCtx := newContext(job)
	atScene(chCtx, 1, true)
	chCtx.Add(commands.ClipResultParam, video.Result{
		Family:   video.FamilyDescribeThenGenerate,
		Analysis: &video.SceneAnalysis{Narration: "Fresh skin all day."},
	})

	n := &narrator{}
	commands.NewVoiceOver("voice-over", n).Execute(chCtx)

	assert.Equal(t, 1, n.calls)
	require.NoError(t, chCtx.Err())
	scene, ok := job.Item.Scene(1)
	require.True(t, ok)
	assert.NotNil(t, scene.Audio)
}

type extractor struct{ calls int }

func (e *extractor) Extract(context.Context, []byte) (model.Asset, error) {
	e.calls++
	return model.Asset{Data: test.JPEG(4, 4), MIMEType: "image/jpeg"}, nil
}

func TestContinuityFrameSkipsLastScene(t *testing.T) {
	job, _ := newJob(t)
	chCtx := newContext(job)
	atScene(chCtx, 1, true)

	e := &extractor{}
	commands.NewContinuityFrame("frame", e, false).Execute(chCtx)
	assert.False(t, chCtx.HasErrors())
	assert.Equal(t, 0, e.calls)
	assert.Nil(t, chCtx.Get(commands.PreviousStillParam))
}

func TestContinuityFrameExtractsStill(t *testing.T) {
	job, _ := newJob(t)
	require.NoError(t, job.Item.RecordScene(1, model.MediaImage, model.Asset{Data: test.PNG(4, 4)}))
	require.NoError(t, job.Item.RecordScene(1, model.MediaClip, model.Asset{Data: []byte("clip")}))
	chCtx := newContext(job)
	atScene(chCtx, 1, false)

	e := &extractor{}
	commands.NewContinuityFrame("frame", e, false).Execute(chCtx)
	require.NoError(t, chCtx.Err())
	assert.Equal(t, 1, e.calls)
	still, ok := chCtx.Get(commands.PreviousStillParam).(model.Asset)
	require.True(t, ok)
	assert.Equal(t, "image/jpeg", still.MIMEType)
}

type failingStore struct{}

func (failingStore) Put(context.Context, string, string, []byte) (model.MediaRef, error) {
	return model.MediaRef{}, errors.New("403 Forbidden")
}

func TestArtifactUploadFailureIsPersistence(t *testing.T) {
	job, gw := newJob(t)
	require.NoError(t, job.Item.RecordScene(1, model.MediaImage, model.Asset{Data: test.PNG(4, 4), MIMEType: "image/png"}))
	chCtx := newContext(job)

	commands.NewArtifactUpload("upload", failingStore{}).Execute(chCtx)

	var persistence *faults.PersistenceError
	require.ErrorAs(t, chCtx.Err(), &persistence)
	assert.Equal(t, "[Upload Error] Billing problem: check the billing status of the project in the Cloud Console.", production.FailureReason(chCtx.Err()))
	assert.Equal(t, []model.TaskStatus{model.StatusUploading}, gw.Steps(job.Item.ID()))
}

func TestArtifactUploadWithoutStore(t *testing.T) {
	job, gw := newJob(t)
	chCtx := newContext(job)
	commands.NewArtifactUpload("upload", nil).Execute(chCtx)
	assert.False(t, chCtx.HasErrors())
	assert.Equal(t, []model.TaskStatus{model.StatusUploading}, gw.Steps(job.Item.ID()))
}

func TestRequestReader(t *testing.T) {
	chCtx := cor.NewBaseContext()
	chCtx.SetContext(context.Background())
	chCtx.Add(cor.CtxIn, []byte(`{"name":"Launch","product":{"name":"Glow Serum","image_url":"https://x/p.png"},
		"characters":[{"name":"Sari","image_url":"https://x/c.png"}],"user_prompt":"Morning routine"}`))

	commands.NewRequestReader("read").Execute(chCtx)

	require.NoError(t, chCtx.Err())
	req := chCtx.Get(commands.RequestParam).(model.ProductionRequest)
	assert.Equal(t, 1, req.Amount)
	assert.Equal(t, "16:9", req.AspectRatio)
	assert.Equal(t, model.DefaultMinDuration, req.MinDuration)
}

func TestRequestReaderRejectsGarbage(t *testing.T) {
	chCtx := cor.NewBaseContext()
	chCtx.SetContext(context.Background())
	chCtx.Add(cor.CtxIn, "not json")
	commands.NewRequestReader("read").Execute(chCtx)
	assert.Error(t, chCtx.Err())
	assert.Nil(t, chCtx.Get(commands.RequestParam))
}
