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
	"github.com/jaycherian/gcp-go-media-studio/internal/core/faults"
	"github.com/jaycherian/gcp-go-media-studio/internal/core/model"
	"github.com/jaycherian/gcp-go-media-studio/internal/core/visual"
)

// Composer composes scene images.
type Composer interface {
	ComposeFirstScene(ctx context.Context, in visual.FirstSceneInput) (model.Asset, error)
	ComposeNextScene(ctx context.Context, in visual.NextSceneInput) (model.Asset, error)
}

// SceneImage produces the image that seeds the clip of a scene.
//
// Logic Flow:
//  1. Scene 1 is composed from the locked product anchor and the character
//     references.
//  2. Later scenes start from the continuity frame of the previous clip. It
//     is recomposed with the character references when composeContinuity is
//     set and used as is otherwise.
//  3. The image is recorded on the item and sent to the gateway.
type SceneImage struct {
	cor.BaseCommand
	composer          Composer
	composeContinuity bool
}

// NewSceneImage creates the scene image stage.
func NewSceneImage(name string, composer Composer, composeContinuity bool) *SceneImage {
	cmd := &SceneImage{BaseCommand: *cor.NewBaseCommand(name), composer: composer, composeContinuity: composeContinuity}
	cmd.InputParamName = JobParam
	return cmd
}

func (c *SceneImage) Execute(context cor.Context) {
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
	ctx := context.GetContext()
	if err := job.Step(ctx, model.StatusGeneratingFirstSceneImage); err != nil {
		c.Fail(context, err)
		return
	}
	assets := job.Assets()
	if assets == nil {
		c.Fail(context, faults.Fatal(fmt.Errorf("batch %s was not prepared", job.Batch.ID)))
		return
	}
	req := job.Request()

	var img model.Asset
	if index == 1 {
		img, err = c.composer.ComposeFirstScene(ctx, visual.FirstSceneInput{
			Product:     assets.Product,
			ProductName: req.Product.Name,
			Characters:  req.Characters,
			References:  assets.Characters,
			Scene:       chunk.FirstScene(),
			AspectRatio: req.AspectRatio,
		})
	} else {
		previous, ok := context.Get(PreviousStillParam).(model.Asset)
		switch {
		case !ok || previous.Empty():
			err = faults.Fatal(fmt.Errorf("scene %d has no continuity frame", index))
		case c.composeContinuity:
			img, err = c.composer.ComposeNextScene(ctx, visual.NextSceneInput{
				Previous:    previous,
				Characters:  req.Characters,
				References:  assets.Characters,
				Scene:       chunk.FirstScene(),
				AspectRatio: req.AspectRatio,
			})
		default:
			img = previous
		}
	}
	if err != nil {
		c.Fail(context, err)
		return
	}
	if err := job.SceneImage(ctx, index, img); err != nil {
		c.Fail(context, err)
		return
	}
	c.Succeed(context)
	context.Add(SceneImageParam, img)
	context.Add(c.GetOutputParam(), img)
}
