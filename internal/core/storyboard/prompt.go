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

package storyboard

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jaycherian/gcp-go-media-studio/internal/core/model"
	"google.golang.org/genai"
)

// DefaultTemplate is the storyboard prompt. It is a text/template executed
// with the map built by params.
const DefaultTemplate = `Act as a world-class commercial director. Plan a premium UGC (user generated content) video storyboard.

TARGET LANGUAGE: {{.LANGUAGE}}. Dialogue and on-screen wording must sound natural, current and relatable.

STRICT RULES:
1. Keep every description short and meaningful.
2. Avoid unnecessary repetition.
3. Focus on emotional yet informative storytelling about the product.
4. If children appear, obscure their faces and figures; children must never be recognizable.
5. Every scene needs a visual_prompt: one dense sentence an image model can render directly.
6. Keep characters consistent in name, look and clothing across scenes.

PRODUCT: {{.PRODUCT_NAME}}
PRODUCT DESCRIPTION: {{.PRODUCT_DESCRIPTION}}
{{- if .PRODUCT_DIMENSION}}
PRODUCT DIMENSION: {{.PRODUCT_DIMENSION}}
{{- end}}
CHARACTERS: {{.CHARACTERS}}
DIRECTION: {{.PROMPT}}
NEGATIVE PROMPT: {{.NEGATIVE_PROMPT}}

{{if .SCENE_COUNT -}}
Continue the story logically from the last scene. Scenes already planned: {{.SCENE_COUNT}}. Number the new scenes from {{.NEXT_SCENE}}.
CONTINUITY:
{{.CONTINUITY}}
{{- else -}}
This is the beginning of the video. Number the scenes from 1.
{{- end}}

Return JSON shaped exactly like this example:
{{.EXAMPLE_JSON}}`

// ResponseSchema is the structured output schema of one chunk.
func ResponseSchema() *genai.Schema {
	str := func(description string) *genai.Schema {
		return &genai.Schema{Type: genai.TypeString, Description: description}
	}
	list := func() *genai.Schema {
		return &genai.Schema{Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}}
	}
	scene := &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"scene_number":  {Type: genai.TypeInteger},
			"duration":      {Type: genai.TypeNumber, Description: "Duration in seconds"},
			"visual_prompt": str("One sentence describing the shot for an image model"),
			"style":         str(""),
			"setting":       str(""),
			"characters": {
				Type: genai.TypeArray,
				Items: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"name":        str(""),
						"description": str(""),
					},
				},
			},
			"actions":          list(),
			"camera":           str(""),
			"environment":      str(""),
			"camera_movements": list(),
			"camera_angles":    list(),
			"lighting":         str(""),
			"elements": {
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"props":    list(),
					"textures": list(),
					"colors":   list(),
				},
			},
			"motion":   str(""),
			"ending":   str("Final pose of the shot, used to continue the next scene"),
			"text":     str("Spoken line"),
			"keywords": list(),
		},
		Required: []string{"scene_number", "duration", "visual_prompt", "actions", "setting", "elements"},
	}
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"description":      str("Short overview of the video concept"),
			"production_notes": str("Technical production notes"),
			"products": {
				Type: genai.TypeArray,
				Items: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"name":        str(""),
						"brand":       str(""),
						"label":       str(""),
						"description": str(""),
					},
					Required: []string{"name", "description"},
				},
			},
			"scenes": {Type: genai.TypeArray, Items: scene},
			"metadata_content": {
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"title":       str(""),
					"description": str(""),
					"keyword":     str(""),
				},
			},
		},
		Required: []string{"description", "scenes", "products", "metadata_content"},
	}
}

// ContinuitySummary condenses the last scenes into the setting, ending pose
// and style the next chunk has to continue from.
func ContinuitySummary(scenes []model.Scene) string {
	lines := make([]string, 0, len(scenes))
	for _, s := range scenes {
		lines = append(lines, fmt.Sprintf("- Scene %d: setting: %s; ending: %s; style: %s",
			s.SceneNumber, orNone(s.Setting), orNone(s.Ending), orNone(s.Style)))
	}
	return strings.Join(lines, "\n")
}

func orNone(in string) string {
	if strings.TrimSpace(in) == "" {
		return "n/a"
	}
	return in
}

func (g *Generator) params(brief Brief, previous []model.StoryboardChunk) map[string]any {
	characters := make([]string, 0, len(brief.Characters))
	for _, c := range brief.Characters {
		characters = append(characters, fmt.Sprintf("%s (%s) - %s", c.Name, c.Gender, c.Description))
	}
	description := brief.Product.Description
	if brief.Product.PromptDescription != "" {
		description = brief.Product.PromptDescription
	}
	example, _ := json.Marshal(model.GetExampleStoryboardChunk())
	count := model.SceneCount(previous)

	params := make(map[string]any)
	params["LANGUAGE"] = g.language
	params["PRODUCT_NAME"] = brief.Product.Name
	params["PRODUCT_DESCRIPTION"] = description
	params["PRODUCT_DIMENSION"] = brief.Product.Dimension
	params["CHARACTERS"] = strings.Join(characters, ", ")
	params["PROMPT"] = brief.Prompt
	params["NEGATIVE_PROMPT"] = orNone(brief.NegativePrompt)
	params["SCENE_COUNT"] = count
	params["NEXT_SCENE"] = count + 1
	params["CONTINUITY"] = ContinuitySummary(model.LastScenes(previous, continuityWindow))
	params["EXAMPLE_JSON"] = string(example)
	return params
}
