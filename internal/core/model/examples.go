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

// Package model defines the data structures for the application. This file,
// `examples.go`, provides hardcoded example instances of the data models.
//
// The storyboard example is embedded in the storyboard prompt as a few-shot
// sample, so the model sees a complete, correctly shaped chunk in addition to
// the response schema.
package model

// GetExampleScene creates a sample Scene used inside the example chunk.
//
// Outputs:
//   - Scene: A hardcoded scene.
func GetExampleScene() Scene {
	return Scene{
		SceneNumber:  1,
		Duration:     8,
		VisualPrompt: "Close-up of a woman in a sunlit bathroom applying two drops of serum, the bottle sharp in the foreground",
		Style:        "warm, handheld UGC, natural skin texture",
		Setting:      "Bright minimalist bathroom, morning",
		Characters: []SceneCharacter{
			{Name: "Sari", Description: "late twenties, relaxed, hair tied up"},
		},
		Actions: []string{
			"Sari picks up the serum bottle from the marble counter",
			"She applies two drops to her cheek and smiles at the mirror",
		},
		Camera:          "85mm, shallow depth of field",
		Environment:     "Steam on the mirror edges, plants on the window sill",
		CameraMovements: []string{"slow push in"},
		CameraAngles:    []string{"eye level", "over the shoulder"},
		Lighting:        "Soft window light from the left",
		Elements: SceneElements{
			Props:    []string{"serum bottle", "towel", "mirror"},
			Textures: []string{"marble", "glass"},
			Colors:   []string{"white", "amber"},
		},
		Motion:   "Gentle hand movement toward the face",
		Ending:   "Sari holds the bottle beside her cheek, facing the camera, smiling",
		Text:     "Two drops every morning, that's all it takes.",
		Keywords: []string{"skincare", "morning routine"},
	}
}

// GetExampleStoryboardChunk creates a sample StoryboardChunk for few-shot
// prompting of the storyboard model.
//
// Outputs:
//   - StoryboardChunk: A hardcoded chunk with one scene.
func GetExampleStoryboardChunk() StoryboardChunk {
	return StoryboardChunk{
		Description:     "A relatable morning routine that shows how quickly the serum fits into a busy day.",
		ProductionNotes: "Keep the bottle label readable in every shot; no on-screen text.",
		Products: []ProductNote{
			{Name: "Glow Serum", Brand: "Lumi", Label: "30ml", Description: "Lightweight vitamin C serum"},
		},
		Scenes: []Scene{GetExampleScene()},
		Metadata: ContentMetadata{
			Title:       "My 10 second glow routine",
			Description: "Morning skincare with Glow Serum",
			Keyword:     "skincare",
		},
	}
}
