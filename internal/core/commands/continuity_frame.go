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
	"fmt"

	"github.com/jaycherian/gcp-go-media-studio/internal/core/cor"
	"github.com/jaycherian/gcp-go-media-studio/internal/core/frames"
)

// ContinuityFrame extracts the still that seeds the next scene. The final
// scene has no successor and is skipped.
type ContinuityFrame struct {
	cor.BaseCommand
	extractor frames.Extractor
	crop      bool
}

// NewContinuityFrame creates the frame stage. With crop the still is center
// cropped to the requested aspect ratio.
func NewContinuityFrame(name string, extractor frames.Extractor, crop bool) *ContinuityFrame {
	cmd := &ContinuityFrame{BaseCommand: *cor.NewBaseCommand(name), extractor: extractor, crop: crop}
	cmd.InputParamName = JobParam
	return cmd
}

func (c *ContinuityFrame) Execute(context cor.Context) {
	job, err := jobOf(context)
	if err != nil {
		c.Fail(context, err)
		return
	}
	index, _, err := sceneOf(context)
	if err != nil {
		c.Fail(context, err)
		return
	}
	if last, _ := context.Get(LastSceneParam).(bool); last {
		c.Succeed(context)
		return
	}
	scene, ok := job.Item.Scene(index)
	if !ok || scene.Clip.Empty() {
		c.Fail(context, fmt.Errorf("scene %d has no clip to extract from", index))
		return
	}

	still, err := c.extractor.Extract(context.GetContext(), scene.Clip.Data)
	if err != nil {
		c.Fail(context, err)
		return
	}
	if c.crop {
		if still, err = frames.CropToAspect(still, job.Request().AspectRatio); err != nil {
			c.Fail(context, err)
			return
		}
	}
	if err := job.Still(index, still); err != nil {
		c.Fail(context, err)
		return
	}
	c.Succeed(context)
	context.Add(PreviousStillParam, still)
	context.Add(c.GetOutputParam(), still)
}
