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

package video

import (
	"fmt"
	"strings"

	"github.com/jaycherian/gcp-go-media-studio/internal/core/model"
	"google.golang.org/genai"
)

// SceneAnalysis is the structured description produced by the vision pass.
type SceneAnalysis struct {
	Description string   `json:"description_first_image"`
	Subjects    []string `json:"subjects"`
	Setting     string   `json:"setting"`
	Lighting    string   `json:"lighting"`
	Camera      string   `json:"camera"`
	Mood        string   `json:"mood"`
	Narration   string   `json:"narration"` // Voice-over line for the legacy flow.
}

const defaultAnalysisTemplate = `You are preparing a text-only video model that cannot see images.
Describe the attached image so the shot can be recreated from words alone.
Describe only what is visible. The product is {{.PRODUCT}}.
{{- if .CHARACTERS}}
Characters that may appear: {{.CHARACTERS}}.
{{- end}}
The shot should continue into: {{.PROMPT}}
Write the narration in {{.LANGUAGE}}, one or two short natural sentences.`

const defaultGroundingTemplate = `Here is a description of the attached image:
{{.DESCRIPTION}}

Rewrite it as one video prompt paragraph. Remove every detail that is not visible in the image:
objects, people, text or brands that do not appear must be dropped. Keep the camera framing,
lighting direction, colors and the position of each subject. Return only the paragraph.`

func analysisSchema() *genai.Schema {
	str := &genai.Schema{Type: genai.TypeString}
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"description_first_image": str,
			"subjects":                {Type: genai.TypeArray, Items: str},
			"setting":                 str,
			"lighting":                str,
			"camera":                  str,
			"mood":                    str,
			"narration":               str,
		},
		Required: []string{"description_first_image", "narration"},
	}
}

// AudioDirectives is appended to prompts of audio capable models.
func AudioDirectives(characters []model.Character) string {
	var sb strings.Builder
	sb.WriteString("[AUDIO CHARACTERISTICS & VOCAL DESIGN]\n")
	sb.WriteString("- Vocal Realism: High-fidelity natural human speech, relaxed and authentic tone.\n")
	sb.WriteString("- Sound Cues: Include subtle human-like filler words, natural pauses and organic breaths between sentences.\n")
	sb.WriteString("- Acoustics: The sound environment must resonate naturally with the setting.\n")
	if len(characters) > 0 {
		sb.WriteString("- Unique Voice Profiles:\n")
		for _, c := range characters {
			sb.WriteString(fmt.Sprintf("  * %s (%s): one distinct voice characteristic of their persona, kept for the whole video.\n", c.Name, c.Gender))
		}
	}
	sb.WriteString("- Strictly avoid robotic or flat monotonous voices. Use dynamic intonation.")
	return sb.String()
}

// directPrompt is the prompt of the image to video families.
func directPrompt(req Request, family Family) string {
	if family != FamilyImageToVideoAudio {
		return req.Prompt
	}
	narrative := req.Narrative
	if narrative == "" {
		narrative = req.Prompt
	}
	return fmt.Sprintf("NARRATIVE: %s\nSCENE: %s\n\n%s", narrative, req.Prompt, AudioDirectives(req.Characters))
}

// describedPrompt is the prompt of the text-only job.
func describedPrompt(grounded string, analysis SceneAnalysis, req Request) string {
	var sb strings.Builder
	sb.WriteString(strings.TrimSpace(grounded))
	if req.Prompt != "" {
		sb.WriteString("\nACTION: ")
		sb.WriteString(req.Prompt)
	}
	if analysis.Narration != "" {
		sb.WriteString("\nDIALOGUE: ")
		sb.WriteString(analysis.Narration)
	}
	return sb.String()
}

func characterList(characters []model.Character) string {
	names := make([]string, 0, len(characters))
	for _, c := range characters {
		names = append(names, fmt.Sprintf("%s (%s, %s)", c.Name, c.Gender, c.Description))
	}
	return strings.Join(names, "; ")
}
