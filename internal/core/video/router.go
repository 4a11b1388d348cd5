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

// Package video turns a seed image and a prompt into a clip.
//
// Logic Flow:
//  1. The fallback engine picks a (credential, video model) pair; the family of
//     that model decides the strategy for this attempt.
//  2. Image to video: submit the seed image with the prompt. Models of the 3.1
//     family get audio directives appended to the prompt.
//  3. Describe then generate: a vision pass (task "vision") describes the seed
//     image as JSON and a grounding pass strips invented detail. The grounded
//     text is submitted as a text-only job. The analysis is computed once per
//     request and reused by later attempts.
//  4. The job is polled with the PollPolicy. A job error is returned for the
//     engine to classify; filtered results are a *faults.SafetyRejection which
//     aborts the search; the clip is downloaded on success.
package video

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"text/template"

	"github.com/h2non/filetype"
	"github.com/jaycherian/gcp-go-media-studio/internal/cloud"
	"github.com/jaycherian/gcp-go-media-studio/internal/core/fallback"
	"github.com/jaycherian/gcp-go-media-studio/internal/core/faults"
	"github.com/jaycherian/gcp-go-media-studio/internal/core/model"
	"google.golang.org/genai"
)

// Models is the generative surface used by the router.
type Models interface {
	GenerateContent(ctx context.Context, credential fallback.Credential, model string, contents []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
	GenerateVideos(ctx context.Context, credential fallback.Credential, model string, prompt string, image *genai.Image, cfg *genai.GenerateVideosConfig) (*genai.GenerateVideosOperation, error)
	GetVideosOperation(ctx context.Context, credential fallback.Credential, op *genai.GenerateVideosOperation) (*genai.GenerateVideosOperation, error)
	DownloadVideo(ctx context.Context, credential fallback.Credential, video *genai.Video) ([]byte, error)
}

// Observer is told about the describe then generate passes. Returned errors
// abort the request.
type Observer interface {
	AnalyzingScene(ctx context.Context) error
	SceneAnalyzed(ctx context.Context, analysisJSON string) error
}

// Request is one clip to synthesize.
type Request struct {
	Image          *model.Asset // Seed image, nil for a text-only job.
	Prompt         string       // Scene prompt.
	Narrative      string       // Chunk description, used by audio directives.
	NegativePrompt string
	AspectRatio    string
	Resolution     string
	ProductName    string
	Characters     []model.Character
	Observer       Observer // Optional.
}

// Result is a synthesized clip.
type Result struct {
	Clip      model.Asset
	Model     string
	Family    Family
	Analysis  *SceneAnalysis // Set by the describe then generate path.
	Prompt    string         // Prompt submitted with the job.
	Operation model.Operation
}

// Options configures a Router.
type Options struct {
	Poll          PollPolicy
	Language      string
	GenerateAudio bool // Request native audio from the job.
	Analysis      string
	Grounding     string
}

// Router synthesizes clips.
type Router struct {
	engine    *fallback.Engine
	models    Models
	poll      PollPolicy
	language  string
	audio     bool
	analysis  *template.Template
	grounding *template.Template
}

// NewRouter creates a Router. Empty templates fall back to the defaults.
func NewRouter(engine *fallback.Engine, models Models, opts Options) (*Router, error) {
	if opts.Analysis == "" {
		opts.Analysis = defaultAnalysisTemplate
	}
	if opts.Grounding == "" {
		opts.Grounding = defaultGroundingTemplate
	}
	if opts.Language == "" {
		opts.Language = "English"
	}
	analysis, err := template.New("scene_analysis").Parse(opts.Analysis)
	if err != nil {
		return nil, fmt.Errorf("failed to parse scene analysis template: %w", err)
	}
	grounding, err := template.New("grounding").Parse(opts.Grounding)
	if err != nil {
		return nil, fmt.Errorf("failed to parse grounding template: %w", err)
	}
	return &Router{
		engine:    engine,
		models:    models,
		poll:      opts.Poll,
		language:  opts.Language,
		audio:     opts.GenerateAudio,
		analysis:  analysis,
		grounding: grounding,
	}, nil
}

// Synthesize produces one clip for req.
func (r *Router) Synthesize(ctx context.Context, req Request) (Result, error) {
	var (
		described   *describedScene
		describeErr error
	)
	return fallback.Execute(ctx, r.engine, fallback.TaskVideo,
		func(ctx context.Context, credential fallback.Credential, modelName string) (Result, error) {
			family := FamilyOf(modelName)
			result := Result{Model: modelName, Family: family}

			prompt := directPrompt(req, family)
			var image *genai.Image
			if req.Image != nil && !req.Image.Empty() {
				image = &genai.Image{ImageBytes: req.Image.Data, MIMEType: mimeOf(req.Image)}
			}

			if family == FamilyDescribeThenGenerate && image != nil {
				if described == nil {
					if describeErr != nil {
						return Result{}, describeErr
					}
					scene, err := r.describe(ctx, req, image)
					if err != nil {
						if faults.Classify(err) == faults.KindTransient {
							describeErr = err
						}
						return Result{}, err
					}
					described = scene
				}
				prompt = described.prompt
				result.Analysis = &described.analysis
				image = nil
			}
			result.Prompt = prompt

			op, clip, err := r.run(ctx, credential, modelName, prompt, image, req)
			result.Operation = op
			if err != nil {
				return result, err
			}
			result.Clip = clip
			return result, nil
		})
}

func (r *Router) run(ctx context.Context, credential fallback.Credential, modelName, prompt string, image *genai.Image, req Request) (model.Operation, model.Asset, error) {
	cfg := &genai.GenerateVideosConfig{
		NumberOfVideos: 1,
		AspectRatio:    req.AspectRatio,
		Resolution:     req.Resolution,
		NegativePrompt: req.NegativePrompt,
	}
	if r.audio {
		cfg.GenerateAudio = genai.Ptr(true)
	}

	op, err := r.models.GenerateVideos(ctx, credential, modelName, prompt, image, cfg)
	if err != nil {
		return model.Operation{}, model.Asset{}, err
	}
	if op == nil {
		return model.Operation{}, model.Asset{}, errors.New("video job submission returned no operation")
	}
	slog.InfoContext(ctx, "video job submitted", "operation", op.Name, "model", modelName, "credential", credential.String())

	err = r.poll.Wait(ctx, op.Name, func(ctx context.Context) (bool, error) {
		if op.Done {
			return true, nil
		}
		next, err := r.models.GetVideosOperation(ctx, credential, op)
		if err != nil {
			return false, err
		}
		op = next
		return op.Done, nil
	})
	if err != nil {
		return model.Operation{Name: op.Name}, model.Asset{}, err
	}

	summary := Summarize(op)
	if err := OperationError(op); err != nil {
		return summary, model.Asset{}, err
	}

	data, err := r.models.DownloadVideo(ctx, credential, op.Response.GeneratedVideos[0].Video)
	if err != nil {
		return summary, model.Asset{}, fmt.Errorf("failed to download clip of %s: %w", op.Name, err)
	}
	if len(data) == 0 {
		return summary, model.Asset{}, fmt.Errorf("clip of %s is empty", op.Name)
	}
	clip := model.Asset{Data: data, MIMEType: "video/mp4"}
	if kind, err := filetype.Match(data); err == nil && filetype.IsVideo(data) {
		clip.MIMEType = kind.MIME.Value
	}
	summary.Clip = &clip
	return summary, clip, nil
}

// Summarize converts a finished job into a model.Operation.
func Summarize(op *genai.GenerateVideosOperation) model.Operation {
	out := model.Operation{Name: op.Name, Done: op.Done}
	if op.Error != nil {
		out.Error = errorMessage(op.Error)
	}
	if op.Response != nil {
		out.Rejections = op.Response.RAIMediaFilteredReasons
		if len(op.Response.GeneratedVideos) > 0 && op.Response.GeneratedVideos[0].Video != nil {
			out.ClipURI = op.Response.GeneratedVideos[0].Video.URI
		}
	}
	return out
}

// OperationError returns the failure of a finished job, or nil when it holds a clip.
func OperationError(op *genai.GenerateVideosOperation) error {
	if op.Error != nil {
		apiErr := genai.APIError{Message: errorMessage(op.Error)}
		switch code := op.Error["code"].(type) {
		case float64:
			apiErr.Code = int(code)
		case int:
			apiErr.Code = code
		}
		if status, ok := op.Error["status"].(string); ok {
			apiErr.Status = status
		}
		return fmt.Errorf("video operation %s failed: %w", op.Name, apiErr)
	}
	resp := op.Response
	if resp == nil {
		return fmt.Errorf("video operation %s finished without a response", op.Name)
	}
	if len(resp.RAIMediaFilteredReasons) > 0 || (resp.RAIMediaFilteredCount > 0 && len(resp.GeneratedVideos) == 0) {
		return &faults.SafetyRejection{Reasons: resp.RAIMediaFilteredReasons, Count: int(resp.RAIMediaFilteredCount)}
	}
	if len(resp.GeneratedVideos) == 0 || resp.GeneratedVideos[0].Video == nil {
		return fmt.Errorf("video operation %s returned no clip", op.Name)
	}
	return nil
}

func errorMessage(status map[string]any) string {
	if message, ok := status["message"].(string); ok && message != "" {
		return message
	}
	return fmt.Sprint(status)
}

type describedScene struct {
	analysis SceneAnalysis
	prompt   string
}

// describe runs the vision and grounding passes. An exhausted vision matrix
// is returned as is so the video matrix moves on to a model that takes the
// image directly.
func (r *Router) describe(ctx context.Context, req Request, image *genai.Image) (*describedScene, error) {
	if req.Observer != nil {
		if err := req.Observer.AnalyzingScene(ctx); err != nil {
			return nil, faults.Fatal(err)
		}
	}

	var buffer bytes.Buffer
	err := r.analysis.Execute(&buffer, map[string]any{
		"PRODUCT":    req.ProductName,
		"CHARACTERS": characterList(req.Characters),
		"PROMPT":     req.Prompt,
		"LANGUAGE":   r.language,
	})
	if err != nil {
		return nil, faults.Fatal(fmt.Errorf("failed to execute scene analysis template: %w", err))
	}
	imagePart := genai.NewPartFromBytes(image.ImageBytes, image.MIMEType)
	analysisCfg := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   analysisSchema(),
	}
	contents := []*genai.Content{genai.NewContentFromParts([]*genai.Part{imagePart, genai.NewPartFromText(buffer.String())}, genai.RoleUser)}

	analysis, err := fallback.Execute(ctx, r.engine, fallback.TaskVision,
		func(ctx context.Context, credential fallback.Credential, modelName string) (SceneAnalysis, error) {
			resp, err := r.models.GenerateContent(ctx, credential, modelName, contents, analysisCfg)
			if err != nil {
				return SceneAnalysis{}, err
			}
			var out SceneAnalysis
			if err := json.Unmarshal([]byte(cloud.StripFences(cloud.ResponseText(resp))), &out); err != nil {
				return SceneAnalysis{}, fmt.Errorf("invalid scene analysis json: %w", err)
			}
			if out.Description == "" {
				return SceneAnalysis{}, errors.New("scene analysis has no description")
			}
			return out, nil
		})
	if err != nil {
		return nil, fmt.Errorf("scene analysis failed: %w", err)
	}

	buffer.Reset()
	if err := r.grounding.Execute(&buffer, map[string]any{"DESCRIPTION": analysis.Description}); err != nil {
		return nil, faults.Fatal(fmt.Errorf("failed to execute grounding template: %w", err))
	}
	contents = []*genai.Content{genai.NewContentFromParts([]*genai.Part{imagePart, genai.NewPartFromText(buffer.String())}, genai.RoleUser)}
	grounded, err := fallback.Execute(ctx, r.engine, fallback.TaskVision,
		func(ctx context.Context, credential fallback.Credential, modelName string) (string, error) {
			resp, err := r.models.GenerateContent(ctx, credential, modelName, contents, nil)
			if err != nil {
				return "", err
			}
			text := cloud.ResponseText(resp)
			if text == "" {
				return "", errors.New("grounding pass returned no text")
			}
			return text, nil
		})
	if err != nil {
		return nil, fmt.Errorf("scene grounding failed: %w", err)
	}

	if req.Observer != nil {
		encoded, _ := json.Marshal(analysis)
		if err := req.Observer.SceneAnalyzed(ctx, string(encoded)); err != nil {
			return nil, faults.Fatal(err)
		}
	}
	return &describedScene{analysis: analysis, prompt: describedPrompt(grounded, analysis, req)}, nil
}

func mimeOf(asset *model.Asset) string {
	if kind, err := filetype.Match(asset.Data); err == nil && kind != filetype.Unknown {
		return kind.MIME.Value
	}
	if asset.MIMEType != "" {
		return asset.MIMEType
	}
	return "image/png"
}
