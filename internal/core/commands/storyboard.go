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
	"github.com/jaycherian/gcp-go-media-studio/internal/core/storyboard"
)

// Planner plans the storyboard of an item.
type Planner interface {
	Generate(ctx context.Context, brief storyboard.Brief) ([]model.StoryboardChunk, error)
}

// Storyboard is the first stage of an item: it plans the chunks and persists
// them before any media is generated.
type Storyboard struct {
	cor.BaseCommand
	planner Planner
}

// NewStoryboard creates the storyboard stage.
//
// Inputs:
//   - name: The command name.
//   - planner: Usually a *storyboard.Generator.
//
// Outputs:
//   - *Storyboard: The stage, reading the job from JobParam.
func NewStoryboard(name string, planner Planner) *Storyboard {
	cmd := &Storyboard{BaseCommand: *cor.NewBaseCommand(name), planner: planner}
	cmd.InputParamName = JobParam
	return cmd
}

func (c *Storyboard) Execute(context cor.Context) {
	job, err := jobOf(context)
	if err != nil {
		c.Fail(context, err)
		return
	}
	ctx := context.GetContext()
	if err := job.Step(ctx, model.StatusCreatingStoryboard); err != nil {
		c.Fail(context, err)
		return
	}
	chunks, err := c.planner.Generate(ctx, storyboard.BriefFromRequest(job.Request()))
	if err != nil {
		c.Fail(context, err)
		return
	}
	if len(chunks) == 0 {
		c.Fail(context, fmt.Errorf("storyboard of %s has no chunks", job))
		return
	}
	if err := job.Storyboard(ctx, chunks); err != nil {
		c.Fail(context, err)
		return
	}
	c.Succeed(context)
	context.Add(c.GetOutputParam(), chunks)
}
