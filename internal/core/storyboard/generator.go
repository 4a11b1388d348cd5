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

// Package storyboard generates the scene plan of a production.
//
// Logic Flow:
//  1. Request one chunk through the fallback engine (task "storyboard"). The
//     request carries the number of scenes planned so far and a continuity
//     summary of the last two scenes.
//  2. Decode the structured JSON answer. An undecodable answer or one without
//     scenes repeats the same request, up to MaxParseAttempts; after that the
//     generator fails with a *ParseError.
//  3. Renumber the scenes so numbering continues across chunks and add the
//     fixed per-chunk duration estimate to the running total.
//  4. Stop once the running total reaches the requested minimum. At least one
//     chunk is always requested.
//
// The running total deliberately credits ChunkDurationEstimate per chunk
// instead of summing scene durations; a chunk with three 8s scenes still
// counts as 8s.
package storyboard

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"text/template"

	"github.com/jaycherian/gcp-go-media-studio/internal/cloud"
	"github.com/jaycherian/gcp-go-media-studio/internal/core/fallback"
	"github.com/jaycherian/gcp-go-media-studio/internal/core/faults"
	"github.com/jaycherian/gcp-go-media-studio/internal/core/model"
	"google.golang.org/genai"
)

const (
	continuityWindow              = 2
	defaultChunkDurationEstimate  = 8.0
	defaultMaxParseAttempts       = 3
	defaultLanguage               = "English"
	defaultTemperature    float32 = 0.7
	defaultTopP           float32 = 0.9
)

// ContentGenerator is the text model surface used by the generator.
type ContentGenerator interface {
	GenerateContent(ctx context.Context, credential fallback.Credential, model string, contents []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Brief is the input of a storyboard.
type Brief struct {
	Product        model.Product
	Characters     []model.Character
	Prompt         string
	NegativePrompt string
	MinDuration    float64 // Seconds.
}

// BriefFromRequest builds a Brief from a production request.
func BriefFromRequest(req model.ProductionRequest) Brief {
	return Brief{
		Product:        req.Product,
		Characters:     req.Characters,
		Prompt:         req.Prompt,
		NegativePrompt: req.NegativePrompt,
		MinDuration:    float64(req.MinDuration),
	}
}

// ParseError is returned when no attempt produced a usable chunk.
type ParseError struct {
	Attempts int
	Err      error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("storyboard generation failed after %d attempt(s): %v", e.Attempts, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

func (e *ParseError) Kind() faults.Kind { return faults.KindParse }

// Options configures a Generator. Zero values select the defaults.
type Options struct {
	ChunkDurationEstimate float64           // Seconds credited per accepted chunk.
	MaxParseAttempts      int               // Requests per chunk before a parse failure is terminal.
	Language              string            // Language of dialogue and on-screen text.
	Template              string            // Prompt template override.
	Agent                 *cloud.AgentModel // Generation parameter override.
}

// Generator plans storyboards.
type Generator struct {
	engine      *fallback.Engine
	models      ContentGenerator
	template    *template.Template
	config      *genai.GenerateContentConfig
	estimate    float64
	maxAttempts int
	language    string
}

// NewGenerator creates a Generator.
//
// Inputs:
//   - engine: The fallback engine, task "storyboard" is used.
//   - models: The text model surface.
//   - opts: Options, zero values select the defaults.
//
// Outputs:
//   - *Generator: The generator.
//   - error: When the template does not parse.
func NewGenerator(engine *fallback.Engine, models ContentGenerator, opts Options) (*Generator, error) {
	text := opts.Template
	if text == "" {
		text = DefaultTemplate
	}
	tmpl, err := template.New("storyboard").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("failed to parse storyboard template: %w", err)
	}

	cfg := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(defaultTemperature),
		TopP:        genai.Ptr(defaultTopP),
	}
	if opts.Agent != nil {
		cfg = opts.Agent.ToGenerateContentConfig()
	}
	cfg.ResponseMIMEType = "application/json"
	cfg.ResponseSchema = ResponseSchema()

	g := &Generator{
		engine:      engine,
		models:      models,
		template:    tmpl,
		config:      cfg,
		estimate:    opts.ChunkDurationEstimate,
		maxAttempts: opts.MaxParseAttempts,
		language:    opts.Language,
	}
	if g.estimate <= 0 {
		g.estimate = defaultChunkDurationEstimate
	}
	if g.maxAttempts <= 0 {
		g.maxAttempts = defaultMaxParseAttempts
	}
	if g.language == "" {
		g.language = defaultLanguage
	}
	return g, nil
}

// Generate plans chunks until the estimated duration reaches brief.MinDuration.
//
// Inputs:
//   - ctx: Cancels between requests.
//   - brief: The product, characters and direction.
//
// Outputs:
//   - []model.StoryboardChunk: At least one chunk, each with at least one scene.
//   - error: A *ParseError, a fallback error, or ctx.Err().
func (g *Generator) Generate(ctx context.Context, brief Brief) ([]model.StoryboardChunk, error) {
	chunks := make([]model.StoryboardChunk, 0, 2)
	estimated := 0.0
	for {
		chunk, err := g.NextChunk(ctx, brief, chunks)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, chunk)
		estimated += g.estimate
		slog.DebugContext(ctx, "storyboard chunk accepted",
			"chunk", len(chunks), "scenes", len(chunk.Scenes), "estimated_seconds", estimated, "min_seconds", brief.MinDuration)
		if estimated >= brief.MinDuration {
			return chunks, nil
		}
	}
}

// NextChunk requests the chunk following previous.
func (g *Generator) NextChunk(ctx context.Context, brief Brief, previous []model.StoryboardChunk) (model.StoryboardChunk, error) {
	var buffer bytes.Buffer
	if err := g.template.Execute(&buffer, g.params(brief, previous)); err != nil {
		return model.StoryboardChunk{}, faults.Fatal(fmt.Errorf("failed to execute storyboard template: %w", err))
	}
	contents := []*genai.Content{genai.NewContentFromText(buffer.String(), genai.RoleUser)}

	var parseErr error
	for attempt := 1; attempt <= g.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return model.StoryboardChunk{}, err
		}
		text, err := fallback.Execute(ctx, g.engine, fallback.TaskStoryboard,
			func(ctx context.Context, credential fallback.Credential, modelName string) (string, error) {
				resp, err := g.models.GenerateContent(ctx, credential, modelName, contents, g.config)
				if err != nil {
					return "", err
				}
				return cloud.ResponseText(resp), nil
			})
		if err != nil {
			return model.StoryboardChunk{}, err
		}

		chunk, err := Parse(text)
		if err == nil {
			renumber(&chunk, model.SceneCount(previous))
			return chunk, nil
		}
		parseErr = err
		slog.WarnContext(ctx, "storyboard response rejected", "attempt", attempt, "max_attempts", g.maxAttempts, "error", err)
	}
	return model.StoryboardChunk{}, &ParseError{Attempts: g.maxAttempts, Err: parseErr}
}

// Parse decodes a chunk and rejects one without scenes.
func Parse(text string) (model.StoryboardChunk, error) {
	var chunk model.StoryboardChunk
	if err := json.Unmarshal([]byte(cloud.StripFences(text)), &chunk); err != nil {
		return model.StoryboardChunk{}, fmt.Errorf("invalid storyboard json: %w", err)
	}
	if len(chunk.Scenes) == 0 {
		return model.StoryboardChunk{}, fmt.Errorf("storyboard chunk has no scenes")
	}
	return chunk, nil
}

func renumber(chunk *model.StoryboardChunk, offset int) {
	for i := range chunk.Scenes {
		chunk.Scenes[i].SceneNumber = offset + i + 1
	}
}
