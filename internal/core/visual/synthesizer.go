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

// Package visual composes the still images of a production.
//
// Logic Flow:
//  1. LockProduct turns the raw product photo into a clean packshot. The
//     result is the anchor reused by every later composition.
//  2. ComposeFirstScene sends the anchor as reference image #1, the character
//     references as #2..N+1 and the instruction last. Entity names in the
//     scene text are replaced with their reference image tokens.
//  3. ComposeNextScene sends the previous rendered frame as reference image #1
//     plus the character references, asking to preserve lighting, angle and
//     layout.
//
// Every call runs through the fallback engine with task "image". A response
// that holds text but no image is a refusal and is returned as a fatal
// *RefusalError carrying the text verbatim.
package visual

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"text/template"

	"github.com/h2non/filetype"
	"github.com/jaycherian/gcp-go-media-studio/internal/cloud"
	"github.com/jaycherian/gcp-go-media-studio/internal/core/fallback"
	"github.com/jaycherian/gcp-go-media-studio/internal/core/faults"
	"github.com/jaycherian/gcp-go-media-studio/internal/core/model"
	"google.golang.org/genai"
)

// ContentGenerator is the image model surface used by the synthesizer.
type ContentGenerator interface {
	GenerateContent(ctx context.Context, credential fallback.Credential, model string, contents []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// RefusalError is returned when the model answered with text instead of an image.
type RefusalError struct {
	Text string
}

func (e *RefusalError) Error() string {
	return e.Text
}

func (e *RefusalError) Kind() faults.Kind { return faults.KindSafety }

// ErrEmptyImage is returned for a response that holds neither image nor text.
var ErrEmptyImage = fmt.Errorf("image synthesis returned an empty response")

// FirstSceneInput is the input of ComposeFirstScene.
type FirstSceneInput struct {
	Product     model.Asset // The locked product anchor.
	ProductName string
	Characters  []model.Character
	References  []model.Asset // Character reference images, same order as Characters.
	Scene       model.Scene
	AspectRatio string
}

// NextSceneInput is the input of ComposeNextScene.
type NextSceneInput struct {
	Previous    model.Asset // The continuity frame of the previous clip.
	Characters  []model.Character
	References  []model.Asset
	Scene       model.Scene
	AspectRatio string
}

// Synthesizer runs the image operations.
type Synthesizer struct {
	engine      *fallback.Engine
	models      ContentGenerator
	productLock *template.Template
	firstScene  *template.Template
	nextScene   *template.Template
}

// NewSynthesizer creates a Synthesizer. Empty templates fall back to the defaults.
func NewSynthesizer(engine *fallback.Engine, models ContentGenerator, templates Templates) (*Synthesizer, error) {
	templates = templates.withDefaults()
	s := &Synthesizer{engine: engine, models: models}
	var err error
	if s.productLock, err = template.New("product_lock").Parse(templates.ProductLock); err != nil {
		return nil, fmt.Errorf("failed to parse product lock template: %w", err)
	}
	if s.firstScene, err = template.New("first_scene").Parse(templates.FirstScene); err != nil {
		return nil, fmt.Errorf("failed to parse first scene template: %w", err)
	}
	if s.nextScene, err = template.New("next_scene").Parse(templates.NextScene); err != nil {
		return nil, fmt.Errorf("failed to parse next scene template: %w", err)
	}
	return s, nil
}

// LockProduct produces the product anchor from its raw reference.
func (s *Synthesizer) LockProduct(ctx context.Context, product model.Product, reference model.Asset, aspectRatio string) (model.Asset, error) {
	if reference.Empty() {
		return model.Asset{}, faults.Fatal(fmt.Errorf("product %q has no reference image", product.Name))
	}
	text, err := render(s.productLock, map[string]any{
		"NAME":      product.Name,
		"DIMENSION": product.Dimension,
	})
	if err != nil {
		return model.Asset{}, err
	}
	parts := []*genai.Part{imagePart(reference), genai.NewPartFromText(text)}
	return s.generate(ctx, parts, aspectRatio)
}

// ComposeFirstScene renders scene 1 from the product anchor and the characters.
func (s *Synthesizer) ComposeFirstScene(ctx context.Context, in FirstSceneInput) (model.Asset, error) {
	if in.Product.Empty() {
		return model.Asset{}, faults.Fatal(fmt.Errorf("first scene needs the locked product image"))
	}
	if len(in.References) != len(in.Characters) {
		return model.Asset{}, faults.Fatal(fmt.Errorf("got %d character references for %d characters", len(in.References), len(in.Characters)))
	}

	refs := CharacterReferences(in.Characters, 2)
	bindable := append([]Reference{{Index: 1, Name: in.ProductName}}, refs...)
	text, err := render(s.firstScene, map[string]any{
		"SCENE":        BindReferences(in.Scene.Prompt(), bindable),
		"ACTIONS":      BindReferences(strings.Join(in.Scene.Actions, ", "), bindable),
		"SETTING":      in.Scene.Setting,
		"LIGHTING":     in.Scene.Lighting,
		"PRODUCT_NAME": in.ProductName,
		"CHARACTERS":   refs,
		"MENTIONS":     mentions(refs),
	})
	if err != nil {
		return model.Asset{}, err
	}

	parts := make([]*genai.Part, 0, len(in.References)+2)
	parts = append(parts, imagePart(in.Product))
	for _, ref := range in.References {
		parts = append(parts, imagePart(ref))
	}
	parts = append(parts, genai.NewPartFromText(text))
	return s.generate(ctx, parts, in.AspectRatio)
}

// ComposeNextScene renders a continuity shot from the previous frame.
func (s *Synthesizer) ComposeNextScene(ctx context.Context, in NextSceneInput) (model.Asset, error) {
	if in.Previous.Empty() {
		return model.Asset{}, faults.Fatal(fmt.Errorf("next scene needs the previous frame"))
	}
	if len(in.References) != len(in.Characters) {
		return model.Asset{}, faults.Fatal(fmt.Errorf("got %d character references for %d characters", len(in.References), len(in.Characters)))
	}

	refs := CharacterReferences(in.Characters, 2)
	text, err := render(s.nextScene, map[string]any{
		"SCENE":      BindReferences(in.Scene.Prompt(), refs),
		"ACTIONS":    BindReferences(strings.Join(in.Scene.Actions, ", "), refs),
		"SETTING":    in.Scene.Setting,
		"CHARACTERS": refs,
	})
	if err != nil {
		return model.Asset{}, err
	}

	parts := make([]*genai.Part, 0, len(in.References)+2)
	parts = append(parts, imagePart(in.Previous))
	for _, ref := range in.References {
		parts = append(parts, imagePart(ref))
	}
	parts = append(parts, genai.NewPartFromText(text))
	return s.generate(ctx, parts, in.AspectRatio)
}

func (s *Synthesizer) generate(ctx context.Context, parts []*genai.Part, aspectRatio string) (model.Asset, error) {
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}
	cfg := &genai.GenerateContentConfig{
		ResponseModalities: []string{string(genai.ModalityImage), string(genai.ModalityText)},
	}
	if aspectRatio != "" {
		cfg.ImageConfig = &genai.ImageConfig{AspectRatio: aspectRatio}
	}

	return fallback.Execute(ctx, s.engine, fallback.TaskImage,
		func(ctx context.Context, credential fallback.Credential, modelName string) (model.Asset, error) {
			resp, err := s.models.GenerateContent(ctx, credential, modelName, contents, cfg)
			if err != nil {
				return model.Asset{}, err
			}
			blob, text := cloud.ResponseImage(resp)
			if blob == nil || len(blob.Data) == 0 {
				if text != "" {
					return model.Asset{}, faults.Fatal(&RefusalError{Text: text})
				}
				if reason := cloud.BlockReason(resp); reason != "" {
					return model.Asset{}, faults.Fatal(&RefusalError{Text: "prompt blocked: " + reason})
				}
				return model.Asset{}, ErrEmptyImage
			}
			return model.Asset{Data: blob.Data, MIMEType: sniff(blob.Data, blob.MIMEType)}, nil
		})
}

func render(tmpl *template.Template, params map[string]any) (string, error) {
	var buffer bytes.Buffer
	if err := tmpl.Execute(&buffer, params); err != nil {
		return "", faults.Fatal(fmt.Errorf("failed to execute %s template: %w", tmpl.Name(), err))
	}
	return buffer.String(), nil
}

func imagePart(asset model.Asset) *genai.Part {
	return genai.NewPartFromBytes(asset.Data, sniff(asset.Data, asset.MIMEType))
}

// sniff prefers the detected MIME type over the declared one.
func sniff(data []byte, declared string) string {
	if kind, err := filetype.Match(data); err == nil && kind != filetype.Unknown {
		return kind.MIME.Value
	}
	if declared != "" {
		return declared
	}
	return "image/png"
}
