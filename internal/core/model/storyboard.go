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

// Package model defines the core data structures of the studio. This file holds
// the storyboard structures returned by the storyboard model as structured JSON.
// The JSON tags mirror the response schema sent with every storyboard request,
// so a decoded chunk can be persisted through the gateway without remapping.
package model

import (
	"fmt"
	"strings"
)

// SceneCharacter is a character as it appears in one scene.
type SceneCharacter struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// SceneElements lists the visual elements of a scene.
type SceneElements struct {
	Props    []string `json:"props,omitempty"`
	Textures []string `json:"textures,omitempty"`
	Colors   []string `json:"colors,omitempty"`
}

// Scene is one shot within a storyboard chunk.
type Scene struct {
	SceneNumber     int              `json:"scene_number"`               // 1-based, continues across chunks.
	Duration        float64          `json:"duration"`                   // Planned duration in seconds.
	VisualPrompt    string           `json:"visual_prompt,omitempty"`    // Condensed prompt used for image and video synthesis.
	Style           string           `json:"style,omitempty"`            // Visual style, carried into the continuity summary.
	Setting         string           `json:"setting"`                    // Location of the shot.
	Characters      []SceneCharacter `json:"characters,omitempty"`       // Characters visible in the shot.
	Actions         []string         `json:"actions"`                    // Ordered actions of the shot.
	Camera          string           `json:"camera,omitempty"`           // Camera setup.
	Environment     string           `json:"environment,omitempty"`      // Ambient environment.
	CameraMovements []string         `json:"camera_movements,omitempty"` // Camera moves in order.
	CameraAngles    []string         `json:"camera_angles,omitempty"`    // Camera angles in order.
	Lighting        string           `json:"lighting,omitempty"`         // Lighting description.
	Elements        SceneElements    `json:"elements"`                   // Props, textures and colors.
	Motion          string           `json:"motion,omitempty"`           // Subject motion.
	Ending          string           `json:"ending,omitempty"`           // Final pose, seeds continuity of the next scene.
	Text            string           `json:"text,omitempty"`             // Spoken line or on-screen text.
	Keywords        []string         `json:"keywords,omitempty"`         // Free keywords.
}

// Prompt renders the scene as a single line suitable for image and video prompts.
// VisualPrompt is preferred when the model produced one.
func (s Scene) Prompt() string {
	if strings.TrimSpace(s.VisualPrompt) != "" {
		return strings.TrimSpace(s.VisualPrompt)
	}
	parts := make([]string, 0, 6)
	if len(s.Actions) > 0 {
		parts = append(parts, strings.Join(s.Actions, ", "))
	}
	if s.Setting != "" {
		parts = append(parts, "Setting: "+s.Setting)
	}
	if s.Lighting != "" {
		parts = append(parts, "Lighting: "+s.Lighting)
	}
	if s.Camera != "" {
		parts = append(parts, "Camera: "+s.Camera)
	}
	if s.Motion != "" {
		parts = append(parts, "Motion: "+s.Motion)
	}
	if s.Text != "" {
		parts = append(parts, fmt.Sprintf("Dialogue: %q", s.Text))
	}
	return strings.Join(parts, ". ")
}

// ProductNote is a product as described by the storyboard model.
type ProductNote struct {
	Name        string `json:"name"`
	Brand       string `json:"brand,omitempty"`
	Label       string `json:"label,omitempty"`
	Description string `json:"description"`
}

// ContentMetadata is the publishing metadata of a chunk.
type ContentMetadata struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Keyword     string `json:"keyword"`
}

// StoryboardChunk is one batch of planned scenes returned by a single
// storyboard generation call. Scenes is never empty for an accepted chunk.
type StoryboardChunk struct {
	Description     string          `json:"description"`
	ProductionNotes string          `json:"production_notes,omitempty"`
	Products        []ProductNote   `json:"products"`
	Scenes          []Scene         `json:"scenes"`
	Metadata        ContentMetadata `json:"metadata_content"`
}

// VideoPrompt combines the chunk description with a numbered line per scene.
func (c StoryboardChunk) VideoPrompt() string {
	var sb strings.Builder
	sb.WriteString(strings.TrimSpace(c.Description))
	for i, scene := range c.Scenes {
		number := scene.SceneNumber
		if number == 0 {
			number = i + 1
		}
		sb.WriteString(fmt.Sprintf("\nScene %d: %s", number, scene.Prompt()))
	}
	return strings.TrimSpace(sb.String())
}

// FirstScene returns the first scene of the chunk, or the zero Scene.
func (c StoryboardChunk) FirstScene() Scene {
	if len(c.Scenes) == 0 {
		return Scene{}
	}
	return c.Scenes[0]
}

// SceneCount returns the number of scenes across chunks.
func SceneCount(chunks []StoryboardChunk) int {
	count := 0
	for _, chunk := range chunks {
		count += len(chunk.Scenes)
	}
	return count
}

// LastScenes returns up to n scenes from the end of the storyboard, oldest first.
func LastScenes(chunks []StoryboardChunk, n int) []Scene {
	all := make([]Scene, 0, SceneCount(chunks))
	for _, chunk := range chunks {
		all = append(all, chunk.Scenes...)
	}
	if n <= 0 {
		return nil
	}
	if len(all) > n {
		all = all[len(all)-n:]
	}
	return all
}
