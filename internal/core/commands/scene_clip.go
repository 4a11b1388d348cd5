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
	"fmt"

	"github.com/jaycherian/gcp-go-media-studio/internal/core/cor"
	"github.com/jaycherian/gcp-go-media-studio/internal/core/model"
	"github.com/jaycherian/gcp-go-media-studio/internal/core/production"
	"github.com/jaycherian/gcp-go-media-studio/internal/core/video"
)

// ClipSynthesizer synthesizes the clip of a scene.
type ClipSynthesizer interface {
	Synthesize(ctx context.Context, req video.Request) (video.Result, error)
}

// SceneClip turns the scene image into a clip. Describe then generate models
// move the item through ANALYZING_SCENE and persist the analysis before the
// clip is submitted.
type SceneClip struct {
	cor.BaseCommand
	clips ClipSynthesizer
}

// NewSceneClip creates the clip stage.
func NewSceneClip(name string, clips ClipSynthesizer) *SceneClip {
	cmd := &SceneClip{BaseCommand: *cor.NewBaseCommand(name), clips: clips}
	cmd.InputParamName = JobParam
	return cmd
}

func (c *SceneClip) Execute(context cor.Context) {
	job, err := jobOf(context)
	if err != nil {
		c.Fail(context, err)
		return
	}
	index, chunk, err := sceneOf(context)
	if err != nil {
		c.Fail(context, err)
		return
	}
	image, ok := context.Get(SceneImageParam).(model.Asset)
	if !ok || image.Empty() {
		c.Fail(context, fmt.Errorf("scene %d has no image", index))
		return
	}
	ctx := context.GetContext()
	if err := job.Step(ctx, model.StatusGeneratingVideo); err != nil {
		c.Fail(context, err)
		return
	}

	req := job.Request()
	result, err := c.clips.Synthesize(ctx, video.Request{
		Image:          &image,
		Prompt:         chunk.VideoPrompt(),
		Narrative:      chunk.Description,
		NegativePrompt: req.NegativePrompt,
		AspectRatio:    req.AspectRatio,
		Resolution:     req.Resolution,
		ProductName:    req.Product.Name,
		Characters:     req.Characters,
		Observer:       &sceneObserver{job: job, index: index},
	})
	if err != nil {
		c.Fail(context, err)
		return
	}
	job.Item.Describe(index, result.Model, result.Prompt, "")
	if err := job.SceneClip(ctx, index, result.Clip); err != nil {
		c.Fail(context, err)
		return
	}
	c.Succeed(context)
	context.Add(ClipResultParam, result)
	context.Add(c.GetOutputParam(), result.Clip)
}

// sceneObserver reports the describe pass of a scene.
type sceneObserver struct {
	job   *production.Job
	index int
}

func (o *sceneObserver) AnalyzingScene(ctx context.Context) error {
	return o.job.Step(ctx, model.StatusAnalyzingScene)
}

func (o *sceneObserver) SceneAnalyzed(ctx context.Context, analysisJSON string) error {
	if err := o.job.Analysis(ctx, o.index, analysisJSON); err != nil {
		return err
	}
	return o.job.Step(ctx, model.StatusGeneratingVideo)
}
