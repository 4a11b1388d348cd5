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

// Package commands holds the production stages as cor commands. An item is
// produced by an item chain (storyboard, scene loop, upload) whose scene
// loop runs a nested scene chain once per storyboard chunk (scene image,
// clip, optional voice-over, continuity frame). Batch preparation and the
// Pub/Sub entry point are chains of their own.
//
// Stages share state through the cor.Context under the keys below and report
// every state change through the *production.Job of the item.
package commands

import (
	"fmt"

	"github.com/jaycherian/gcp-go-media-studio/internal/core/cor"
	"github.com/jaycherian/gcp-go-media-studio/internal/core/model"
	"github.com/jaycherian/gcp-go-media-studio/internal/core/production"
)

// Context keys shared by the stages.
const (
	JobParam           = "__JOB__"            // *production.Job of the item chain.
	BatchParam         = "__BATCH__"          // *production.Batch being prepared or produced.
	AssetsParam        = "__ASSETS__"         // *production.Assets built by the prepare chain.
	RequestParam       = "__REQUEST__"        // model.ProductionRequest read from a message.
	ChunkParam         = "__CHUNK__"          // model.StoryboardChunk of the running scene.
	SceneIndexParam    = "__SCENE_INDEX__"    // 1-based scene index of the running scene.
	LastSceneParam     = "__LAST_SCENE__"     // true while the final scene runs.
	SceneImageParam    = "__SCENE_IMAGE__"    // model.Asset seeding the clip.
	ClipResultParam    = "__CLIP_RESULT__"    // video.Result of the running scene.
	PreviousStillParam = "__PREVIOUS_STILL__" // model.Asset continuity frame of the previous scene.
)

func jobOf(context cor.Context) (*production.Job, error) {
	job, ok := context.Get(JobParam).(*production.Job)
	if !ok || job == nil {
		return nil, fmt.Errorf("no job in context")
	}
	return job, nil
}

// sceneOf returns the running scene index and chunk.
func sceneOf(context cor.Context) (int, model.StoryboardChunk, error) {
	index, ok := context.Get(SceneIndexParam).(int)
	if !ok || index < 1 {
		return 0, model.StoryboardChunk{}, fmt.Errorf("no scene index in context")
	}
	chunk, ok := context.Get(ChunkParam).(model.StoryboardChunk)
	if !ok {
		return 0, model.StoryboardChunk{}, fmt.Errorf("no storyboard chunk for scene %d", index)
	}
	return index, chunk, nil
}
