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

// Package workflow assembles the production commands into pipelines. This
// file implements the production workflow, the production.Pipeline of the
// worker.
package workflow

import (
	"context"
	"fmt"

	"github.com/jaycherian/gcp-go-media-studio/internal/artifacts"
	"github.com/jaycherian/gcp-go-media-studio/internal/cloud"
	"github.com/jaycherian/gcp-go-media-studio/internal/core/commands"
	"github.com/jaycherian/gcp-go-media-studio/internal/core/cor"
	"github.com/jaycherian/gcp-go-media-studio/internal/core/fallback"
	"github.com/jaycherian/gcp-go-media-studio/internal/core/frames"
	"github.com/jaycherian/gcp-go-media-studio/internal/core/model"
	"github.com/jaycherian/gcp-go-media-studio/internal/core/production"
)

// ImageComposer is the image surface of the pipeline, *visual.Synthesizer
// implements it.
type ImageComposer interface {
	commands.Composer
	commands.ProductLocker
}

// Components are the generation services the stages call.
type Components struct {
	Planner   commands.Planner
	Images    ImageComposer
	Clips     commands.ClipSynthesizer
	Narrator  commands.Narrator // Used by the legacy voice-over flow only.
	Extractor frames.Extractor
	Fetcher   commands.ReferenceFetcher
	Store     artifacts.Store // Nil keeps artifacts in memory.
}

// ProductionWorkflow runs the chains of a batch: the prepare chain once per
// batch and the item chain once per item.
type ProductionWorkflow struct {
	cor.BaseCommand
	config     *cloud.Config
	components Components
	prepare    cor.Chain
	item       cor.Chain
}

// NewProductionWorkflow builds the chains from config and components.
//
// Inputs:
//   - config: The application configuration, the production and frames
//     sections select the optional stages.
//   - components: The services behind the stages.
//
// Outputs:
//   - *ProductionWorkflow: The workflow, usable as a production.Pipeline.
func NewProductionWorkflow(config *cloud.Config, components Components) *ProductionWorkflow {
	w := &ProductionWorkflow{
		BaseCommand: *cor.NewBaseCommand("production-workflow"),
		config:      config,
		components:  components,
	}
	w.InputParamName = commands.JobParam
	w.initializeChains()
	return w
}

// initializeChains builds the prepare, item and scene chains.
func (w *ProductionWorkflow) initializeChains() {
	crop := w.config.Frames.CropToAspect

	prepare := cor.NewBaseChain("prepare-batch")
	prepare.AddCommand(commands.NewFetchReferences("fetch-references", w.components.Fetcher))
	prepare.AddCommand(commands.NewLockProduct("lock-product", w.components.Images, crop))
	w.prepare = prepare

	// One pass per storyboard chunk.
	scene := cor.NewBaseChain("produce-scene")
	scene.AddCommand(commands.NewSceneImage("scene-image", w.components.Images, w.config.Production.ComposeContinuity))
	scene.AddCommand(commands.NewSceneClip("scene-clip", w.components.Clips))
	if w.config.Production.LegacyVoiceOver && w.components.Narrator != nil {
		scene.AddCommand(commands.NewVoiceOver("voice-over", w.components.Narrator))
	}
	scene.AddCommand(commands.NewContinuityFrame("continuity-frame", w.components.Extractor, crop))

	item := cor.NewBaseChain("produce-item")
	item.AddCommand(commands.NewStoryboard("storyboard", w.components.Planner))
	item.AddCommand(commands.NewSceneLoop("scene-loop", scene))
	item.AddCommand(commands.NewArtifactUpload("artifact-upload", w.components.Store))
	w.item = item
}

// Execute runs the item chain against a context holding a job.
func (w *ProductionWorkflow) Execute(context cor.Context) {
	w.item.Execute(context)
}

// Prepare runs the prepare chain for batch.
func (w *ProductionWorkflow) Prepare(ctx context.Context, batch *production.Batch) (*production.Assets, error) {
	chCtx := cor.NewBaseContext()
	defer chCtx.Close()
	chCtx.SetContext(withRequestCredential(ctx, batch.Request))
	chCtx.Add(commands.BatchParam, batch)
	chCtx.Add(cor.CtxIn, batch)

	w.prepare.Execute(chCtx)
	if err := chCtx.Err(); err != nil {
		return nil, err
	}
	assets, ok := chCtx.Get(commands.AssetsParam).(*production.Assets)
	if !ok || assets.Product.Empty() {
		return nil, fmt.Errorf("batch %s was not prepared", batch.ID)
	}
	return assets, nil
}

// Produce runs the item chain for job.
func (w *ProductionWorkflow) Produce(ctx context.Context, job *production.Job) error {
	chCtx := cor.NewBaseContext()
	defer chCtx.Close()
	chCtx.SetContext(withRequestCredential(ctx, job.Request()))
	chCtx.Add(commands.JobParam, job)
	chCtx.Add(cor.CtxIn, job)

	w.Execute(chCtx)
	return chCtx.Err()
}

// withRequestCredential puts the credential of req ahead of the configured
// sources for every generative call of the run.
func withRequestCredential(ctx context.Context, req model.ProductionRequest) context.Context {
	if req.Credential == "" {
		return ctx
	}
	return fallback.WithCredential(ctx, req.Credential)
}
