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

package visual

import (
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/jaycherian/gcp-go-media-studio/internal/core/model"
)

// Templates are the instruction texts of the three operations. All of them
// are text/template sources.
type Templates struct {
	ProductLock string
	FirstScene  string
	NextScene   string
}

const defaultProductLock = `Reference image #1 is a product photo.
TASK: Produce a clean studio packshot of exactly this product.
- Remove every person, hand and background element; use a seamless neutral studio backdrop.
- Keep the shape, proportions, label, typography and colors unchanged. Do not redesign anything.
- Soft even lighting, sharp focus, the product centered and fully visible.
{{- if .DIMENSION}}
- Real size: {{.DIMENSION}}.
{{- end}}
NO TEXT OVERLAYS, NO EXTRA LOGOS.`

const defaultFirstScene = `A high-end photorealistic commercial photograph with natural skin texture and cinematic color grading.
TASK: Generate this scene ensuring the product and all listed characters match the provided visual references.

SCENE: {{.SCENE}}
SCENE ACTION: {{.ACTIONS}}.
SETTING: {{.SETTING}}.
LIGHTING: {{.LIGHTING}}.

REFERENCE MAPPING:
- reference image #1 is the product{{if .PRODUCT_NAME}} ({{.PRODUCT_NAME}}){{end}}.
{{- range .CHARACTERS}}
- {{.Label}} is reference image #{{.Index}}: Gender: {{.Gender}}, Details: {{.Description}}
{{- end}}

STRICT REQUIREMENTS:
1. The product from reference image #1 is the hero, clearly visible and sharp, with the same shape, size and colors.
2. All characters ({{.MENTIONS}}) must be visible together in the same frame.
3. Keep each face and outfit consistent with its reference image.
4. Characters interact naturally according to the action.
5. If children appear, blur their faces and figures.
Photography style: 85mm f/1.4 lens, 8K resolution. NO TEXT, NO LOGOS.`

const defaultNextScene = `Reference image #1 is the last frame of the previous shot.
TASK: Compose the next shot of the same video.

NEXT SCENE: {{.SCENE}}
SCENE ACTION: {{.ACTIONS}}.
SETTING: {{.SETTING}}.
{{- if .CHARACTERS}}

REFERENCE MAPPING:
{{- range .CHARACTERS}}
- {{.Label}} is reference image #{{.Index}}: Gender: {{.Gender}}, Details: {{.Description}}
{{- end}}
{{- end}}

CONTINUITY REQUIREMENTS:
1. Preserve the lighting direction and color temperature of reference image #1.
2. Preserve the camera angle and lens feel of reference image #1.
3. Preserve the spatial relationships between characters, product and set.
4. Keep faces and outfits consistent with their references.
NO TEXT, NO LOGOS.`

// DefaultTemplates returns the built-in instruction texts.
func DefaultTemplates() Templates {
	return Templates{
		ProductLock: defaultProductLock,
		FirstScene:  defaultFirstScene,
		NextScene:   defaultNextScene,
	}
}

// withDefaults fills empty templates from DefaultTemplates.
func (t Templates) withDefaults() Templates {
	d := DefaultTemplates()
	if t.ProductLock == "" {
		t.ProductLock = d.ProductLock
	}
	if t.FirstScene == "" {
		t.FirstScene = d.FirstScene
	}
	if t.NextScene == "" {
		t.NextScene = d.NextScene
	}
	return t
}

// Reference ties an entity name to the position of its image among the parts.
type Reference struct {
	Index       int // 1 based position among the image parts.
	Label       string
	Name        string
	Gender      string
	Description string
}

// Token is the placeholder that replaces the entity name in instructions.
func (r Reference) Token() string {
	return fmt.Sprintf("reference image #%d", r.Index)
}

// CharacterReferences maps characters to reference images first, first+1, ...
func CharacterReferences(characters []model.Character, first int) []Reference {
	out := make([]Reference, 0, len(characters))
	for i, c := range characters {
		out = append(out, Reference{
			Index:       first + i,
			Label:       model.CharacterLabel(i),
			Name:        c.Name,
			Gender:      c.Gender,
			Description: c.Description,
		})
	}
	return out
}

// BindReferences replaces every name in text with the token of its reference.
// Longer names are replaced first so that a name containing another one is
// bound to the right image.
func BindReferences(text string, refs []Reference) string {
	ordered := slices.Clone(refs)
	slices.SortStableFunc(ordered, func(a, b Reference) int {
		return len(b.Name) - len(a.Name)
	})
	for _, ref := range ordered {
		name := strings.TrimSpace(ref.Name)
		if name == "" {
			continue
		}
		pattern := regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(name) + `\b`)
		text = pattern.ReplaceAllLiteralString(text, ref.Token())
	}
	return text
}

func mentions(refs []Reference) string {
	labels := make([]string, 0, len(refs))
	for _, r := range refs {
		labels = append(labels, r.Label)
	}
	return strings.Join(labels, ", ")
}
