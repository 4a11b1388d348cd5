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

// Package test provides utility functions and mock data to support the
// application's test suite: configuration loading, sample requests, image
// fixtures and a scripted stand-in for the generative model service.
package test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"log"
	"os"
	"testing"

	"github.com/jaycherian/gcp-go-media-studio/internal/cloud"
	"github.com/jaycherian/gcp-go-media-studio/internal/core/fallback"
	"github.com/jaycherian/gcp-go-media-studio/internal/core/model"
)

// StateManager caches the configuration during test runs.
type StateManager struct {
	config *cloud.Config
}

var state = &StateManager{}

// HandleErr fails the test when err is not nil.
func HandleErr(err error, t *testing.T) {
	t.Helper()
	if err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

// SetupOS points the configuration loader at dir and the "test" runtime.
func SetupOS(dir string) (err error) {
	if err = os.Setenv(cloud.EnvConfigFilePrefix, dir); err != nil {
		return err
	}
	return os.Setenv(cloud.EnvConfigRuntime, "test")
}

// GetConfig loads the test configuration once. dir is the configs directory
// relative to the calling test package.
func GetConfig(dir string) *cloud.Config {
	if state.config == nil {
		if err := SetupOS(dir); err != nil {
			log.Fatalf("failed to setup environment for test: %v\n", err)
		}
		config := cloud.NewConfig()
		if err := cloud.LoadConfig(config); err != nil {
			log.Fatalf("failed to load test config: %v\n", err)
		}
		state.config = config
	}
	return state.config
}

// Credentials returns n static credentials named k1..kn.
func Credentials(n int) fallback.StaticSource {
	out := make(fallback.StaticSource, 0, n)
	for i := 1; i <= n; i++ {
		id := fmt.Sprintf("k%d", i)
		out = append(out, fallback.Credential{ID: id, Value: "value-" + id, Label: id, Origin: fallback.OriginManual})
	}
	return out
}

// GetTestProductionRequest returns a valid request with one character.
func GetTestProductionRequest() model.ProductionRequest {
	return model.ProductionRequest{
		Name: "Glow Serum Launch",
		Product: model.Product{
			ID:                3,
			Name:              "Glow Serum",
			SKU:               "GS-30",
			Description:       "A lightweight vitamin C serum in a 30ml amber glass bottle.",
			Dimension:         "30ml bottle, 10cm tall",
			ReferenceImageURL: "https://assets.example.com/products/glow-serum.png",
		},
		Characters: []model.Character{{
			ID:                11,
			Name:              "Sari",
			Gender:            "female",
			Description:       "Early twenties, shoulder length black hair, white linen shirt.",
			ReferenceImageURL: "https://assets.example.com/characters/sari.png",
		}},
		Prompt:      "Morning routine in a bright bathroom, ending with a confident smile.",
		Amount:      1,
		AspectRatio: "9:16",
		Resolution:  "720p",
		MinDuration: 8,
	}
}

// GetTestRequestMessageText returns GetTestProductionRequest as a queue message.
func GetTestRequestMessageText() string {
	out, _ := json.Marshal(GetTestProductionRequest())
	return string(out)
}

// StoryboardJSON returns a chunk with scenes scene numbers starting at first.
func StoryboardJSON(first, scenes int) string {
	chunk := model.GetExampleStoryboardChunk()
	base := chunk.Scenes[0]
	chunk.Scenes = nil
	for i := 0; i < scenes; i++ {
		s := base
		s.SceneNumber = first + i
		s.VisualPrompt = fmt.Sprintf("Shot %d of the serum routine", first+i)
		chunk.Scenes = append(chunk.Scenes, s)
	}
	out, _ := json.Marshal(chunk)
	return string(out)
}

// PNG returns a solid w x h PNG.
func PNG(w, h int) []byte {
	var buf bytes.Buffer
	_ = png.Encode(&buf, solid(w, h))
	return buf.Bytes()
}

// JPEG returns a solid w x h JPEG.
func JPEG(w, h int) []byte {
	var buf bytes.Buffer
	_ = jpeg.Encode(&buf, solid(w, h), &jpeg.Options{Quality: 80})
	return buf.Bytes()
}

func solid(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 200, G: 120, B: 40, A: 255})
		}
	}
	return img
}
