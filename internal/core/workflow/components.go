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

package workflow

import (
	"net/http"

	"cloud.google.com/go/storage"
	"github.com/jaycherian/gcp-go-media-studio/internal/artifacts"
	"github.com/jaycherian/gcp-go-media-studio/internal/cloud"
	"github.com/jaycherian/gcp-go-media-studio/internal/core/audio"
	"github.com/jaycherian/gcp-go-media-studio/internal/core/fallback"
	"github.com/jaycherian/gcp-go-media-studio/internal/core/frames"
	"github.com/jaycherian/gcp-go-media-studio/internal/core/storyboard"
	"github.com/jaycherian/gcp-go-media-studio/internal/core/video"
	"github.com/jaycherian/gcp-go-media-studio/internal/core/visual"
)

// NewEngine creates the fallback engine of the configuration. refresh, when
// not nil and the remote pool is enabled, loads the system credential pool.
func NewEngine(config *cloud.Config, refresh fallback.RefreshFunc) *fallback.Engine {
	opts := []fallback.ProviderOption{
		fallback.WithManualKey(config.Credentials.ManualKey),
		fallback.WithEnvironmentKey(config.Credentials.EnvironmentVariable),
	}
	if config.Credentials.UseRemotePool && refresh != nil {
		opts = append(opts, fallback.WithRefresh(refresh))
	}
	return fallback.NewEngine(fallback.NewProvider(opts...), Roster(config), fallback.Policy{
		FailFastInvalidArgument: config.Production.FailFastInvalidArgument,
	})
}

// Roster is the configured model roster filled from the defaults.
func Roster(config *cloud.Config) fallback.Roster {
	configured := make(fallback.Roster, len(config.Models))
	for task, models := range config.Models {
		configured[fallback.TaskType(task)] = models
	}
	return configured.Merge(fallback.DefaultRoster())
}

// NewComponents creates the generation services of the pipeline.
//
// Inputs:
//   - config: The application configuration.
//   - engine: The fallback engine shared by every service.
//   - models: The generative model surface, usually *cloud.GenAIService.
//   - storageClient: Optional, needed for gs:// references.
//   - store: Optional artifact store.
//
// Outputs:
//   - Components: The services.
//   - error: When a prompt template override does not parse.
func NewComponents(config *cloud.Config, engine *fallback.Engine, models video.Models, storageClient *storage.Client, store artifacts.Store) (Components, error) {
	var agent *cloud.AgentModel
	if a, ok := config.AgentModels[string(fallback.TaskStoryboard)]; ok {
		agent = &a
	}
	planner, err := storyboard.NewGenerator(engine, models, storyboard.Options{
		ChunkDurationEstimate: config.Production.ChunkDurationEstimate,
		MaxParseAttempts:      config.Production.MaxParseAttempts,
		Language:              config.Production.Language,
		Template:              config.PromptTemplates.Storyboard,
		Agent:                 agent,
	})
	if err != nil {
		return Components{}, err
	}
	images, err := visual.NewSynthesizer(engine, models, visual.Templates{
		ProductLock: config.PromptTemplates.ProductLock,
		FirstScene:  config.PromptTemplates.FirstScene,
		NextScene:   config.PromptTemplates.NextScene,
	})
	if err != nil {
		return Components{}, err
	}
	clips, err := video.NewRouter(engine, models, video.Options{
		Poll:          video.PollPolicyFromConfig(config.PollPolicy),
		Language:      config.Production.Language,
		GenerateAudio: config.Production.SceneGenerateAudio,
		Analysis:      config.PromptTemplates.SceneAnalysis,
		Grounding:     config.PromptTemplates.Grounding,
	})
	if err != nil {
		return Components{}, err
	}
	return Components{
		Planner:   planner,
		Images:    images,
		Clips:     clips,
		Narrator:  audio.NewSpeaker(engine, models, config.Production.Voice),
		Extractor: frames.NewFFmpegExtractor(nil, config.Frames),
		Fetcher:   visual.NewFetcher(&http.Client{Timeout: config.Gateway.Timeout}, storageClient),
		Store:     store,
	}, nil
}
