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

	"github.com/jaycherian/gcp-go-media-studio/internal/artifacts"
	"github.com/jaycherian/gcp-go-media-studio/internal/core/cor"
	"github.com/jaycherian/gcp-go-media-studio/internal/core/faults"
	"github.com/jaycherian/gcp-go-media-studio/internal/core/model"
)

var uploadKinds = []model.MediaKind{model.MediaImage, model.MediaClip, model.MediaStill, model.MediaAudio}

// ArtifactUpload moves the item to UPLOADING and copies every produced
// artifact to the store. A nil store only reports the step. Upload failures
// are persistence failures: the item fails but keeps its local references.
type ArtifactUpload struct {
	cor.BaseCommand
	store artifacts.Store
}

// NewArtifactUpload creates the upload stage.
func NewArtifactUpload(name string, store artifacts.Store) *ArtifactUpload {
	cmd := &ArtifactUpload{BaseCommand: *cor.NewBaseCommand(name), store: store}
	cmd.InputParamName = JobParam
	return cmd
}

func (c *ArtifactUpload) Execute(context cor.Context) {
	job, err := jobOf(context)
	if err != nil {
		c.Fail(context, err)
		return
	}
	ctx := context.GetContext()
	if err := job.Step(ctx, model.StatusUploading); err != nil {
		c.Fail(context, err)
		return
	}
	if c.store == nil {
		c.Succeed(context)
		return
	}

	var refs []model.MediaRef
	for _, scene := range job.Item.Snapshot().Scenes {
		for _, kind := range uploadKinds {
			asset, ok := scene.Asset(kind)
			if !ok {
				continue
			}
			contentType := asset.MIMEType
			if contentType == "" {
				contentType = "application/octet-stream"
			}
			key := artifacts.Key(job.Batch.ID, job.Item.ID(), scene.Index, kind, asset.Data)
			ref, err := c.store.Put(ctx, key, contentType, asset.Data)
			if err != nil {
				c.Fail(context, faults.Upload(fmt.Sprintf("upload scene %d %s", scene.Index, kind), err))
				return
			}
			ref.Kind, ref.SceneIndex = kind, scene.Index
			job.Item.AddRef(scene.Index, ref)
			refs = append(refs, ref)
		}
	}
	c.Succeed(context)
	context.Add(c.GetOutputParam(), refs)
}
