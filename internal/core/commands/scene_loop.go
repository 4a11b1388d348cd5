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
	"log/slog"

	"github.com/jaycherian/gcp-go-media-studio/internal/core/cor"
)

// SceneLoop runs the scene chain once per storyboard chunk. Chunk n becomes
// scene index n+1, the index reported to the gateway. The loop stops at the
// first scene that records an error.
type SceneLoop struct {
	cor.BaseCommand
	scene cor.Command
}

// NewSceneLoop creates the loop around the scene chain.
func NewSceneLoop(name string, scene cor.Command) *SceneLoop {
	cmd := &SceneLoop{BaseCommand: *cor.NewBaseCommand(name), scene: scene}
	cmd.InputParamName = JobParam
	return cmd
}

func (c *SceneLoop) Execute(context cor.Context) {
	job, err := jobOf(context)
	if err != nil {
		c.Fail(context, err)
		return
	}
	chunks := job.Item.Storyboard()
	if len(chunks) == 0 {
		c.Fail(context, fmt.Errorf("item %s has no storyboard", job))
		return
	}
	defer func() {
		context.Remove(ChunkParam)
		context.Remove(SceneIndexParam)
		context.Remove(LastSceneParam)
		context.Remove(PreviousStillParam)
	}()

	for n, chunk := range chunks {
		if err := context.GetContext().Err(); err != nil {
			c.Fail(context, fmt.Errorf("scene %d of %s cancelled: %w", n+1, job, err))
			return
		}
		context.Add(ChunkParam, chunk)
		context.Add(SceneIndexParam, n+1)
		context.Add(LastSceneParam, n == len(chunks)-1)

		c.scene.Execute(context)
		if context.HasErrors() {
			// The failing stage already recorded the error.
			if c.ErrorCounter != nil {
				c.ErrorCounter.Add(context.GetContext(), 1)
			}
			return
		}
		slog.InfoContext(context.GetContext(), "scene produced", "job", job.String(), "scene", n+1, "scenes", len(chunks))
	}
	c.Succeed(context)
}
