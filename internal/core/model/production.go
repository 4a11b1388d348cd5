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

// Package model defines the core data structures of the studio. This file
// contains the production side of the model: the brief submitted by a caller,
// the batch and its items, the lifecycle statuses and the media produced for
// every scene.
//
// Structs:
//   - Product, Character: The entities of a brief and their reference images.
//   - ProductionRequest: A batch request, validated before a batch starts.
//   - Asset: Binary media held in memory (reference, composite, clip, still, audio).
//   - MediaRef: A reference to a produced artifact, local or uploaded.
//   - SceneMedia: The image and clip produced for one scene index.
//   - GenerationItem: One independently tracked video within a batch.
//   - Batch: A group of items produced from one request.
package model

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// TaskStatus is the lifecycle state of a generation item.
type TaskStatus string

const (
	StatusIdle                      TaskStatus = "IDLE"
	StatusInitBatch                 TaskStatus = "INIT_UGC"
	StatusCreatingStoryboard        TaskStatus = "CREATING_STORYBOARD"
	StatusGeneratingFirstSceneImage TaskStatus = "GENERATING_FIRST_SCENE_IMAGE"
	StatusAnalyzingScene            TaskStatus = "ANALYZING_SCENE"
	StatusGeneratingVideo           TaskStatus = "GENERATING_VIDEO"
	StatusGeneratingVoiceOver       TaskStatus = "GENERATING_VOICEOVER"
	StatusUploading                 TaskStatus = "UPLOADING"
	StatusCompleting                TaskStatus = "COMPLETING"
	StatusCompleted                 TaskStatus = "COMPLETED"
	StatusFailed                    TaskStatus = "FAILED"
)

var statusLabels = map[TaskStatus]string{
	StatusIdle:                      "Idle",
	StatusInitBatch:                 "Initiating UGC",
	StatusCreatingStoryboard:        "Creating Storyboard",
	StatusGeneratingFirstSceneImage: "Generating First Scene Image",
	StatusAnalyzingScene:            "Analyzing Scene",
	StatusGeneratingVideo:           "Generating Video",
	StatusGeneratingVoiceOver:       "Generating Voiceover",
	StatusUploading:                 "Uploading",
	StatusCompleting:                "Completing",
	StatusCompleted:                 "Completed",
	StatusFailed:                    "Failed",
}

// Label is the human readable step name sent to the persistence gateway.
func (s TaskStatus) Label() string {
	if label, ok := statusLabels[s]; ok {
		return label
	}
	return string(s)
}

// IsTerminal reports whether no transition may leave the status.
func (s TaskStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Valid reports whether s is a known status.
func (s TaskStatus) Valid() bool {
	_, ok := statusLabels[s]
	return ok
}

// Product is the advertised product of a brief.
type Product struct {
	ID                int    `json:"id"`
	Name              string `json:"name"`
	SKU               string `json:"sku,omitempty"`
	Description       string `json:"description"`
	PromptDescription string `json:"prompt_description,omitempty"`
	Dimension         string `json:"dimension,omitempty"`
	ImageURL          string `json:"image_url"`
	ReferenceImageURL string `json:"product_reference_image_path,omitempty"` // Pre-cleaned reference, used instead of ImageURL when set.
}

// ReferenceURL returns the image the product anchor is locked from.
func (p Product) ReferenceURL() string {
	if p.ReferenceImageURL != "" {
		return p.ReferenceImageURL
	}
	return p.ImageURL
}

// Character is a person appearing in the production.
type Character struct {
	ID                int    `json:"id"`
	Name              string `json:"name"`
	Gender            string `json:"gender"`
	Description       string `json:"description"`
	Prompt            string `json:"prompt,omitempty"`
	ImageURL          string `json:"image_url,omitempty"`
	ReferenceImageURL string `json:"character_image_path,omitempty"`
}

// ReferenceURL returns the reference image of the character.
func (c Character) ReferenceURL() string {
	if c.ReferenceImageURL != "" {
		return c.ReferenceImageURL
	}
	return c.ImageURL
}

// CharacterLabel returns the stable @charNN label of the character at index i.
func CharacterLabel(i int) string {
	return fmt.Sprintf("@char%02d", i+1)
}

// Asset is binary media held in memory.
type Asset struct {
	Data     []byte `json:"-"`
	MIMEType string `json:"mime_type"`
	Width    int    `json:"width,omitempty"`
	Height   int    `json:"height,omitempty"`
}

// Empty reports whether the asset carries no bytes.
func (a Asset) Empty() bool {
	return len(a.Data) == 0
}

// MediaKind names the kind of a produced artifact.
type MediaKind string

const (
	MediaImage MediaKind = "image"
	MediaClip  MediaKind = "clip"
	MediaStill MediaKind = "still"
	MediaAudio MediaKind = "audio"
)

// MediaRef points at a produced artifact. Local references stay valid for the
// lifetime of the batch in this process; uploaded ones carry the store URI.
type MediaRef struct {
	Kind        MediaKind `json:"kind"`
	SceneIndex  int       `json:"scene_index"`
	URI         string    `json:"uri"`
	ContentType string    `json:"content_type"`
	Size        int       `json:"size"`
	Uploaded    bool      `json:"uploaded"`
}

// SceneMedia is everything produced for one scene index of an item.
type SceneMedia struct {
	Index    int        `json:"index"`
	Model    string     `json:"model,omitempty"`    // Video model that produced the clip.
	Prompt   string     `json:"prompt,omitempty"`   // Final prompt submitted to the video model.
	Analysis string     `json:"analysis,omitempty"` // Scene analysis JSON of describe-then-generate models.
	Image    Asset      `json:"image"`
	Clip     Asset      `json:"clip"`
	Still    Asset      `json:"still"` // Continuity frame extracted from the clip.
	Audio    *Asset     `json:"audio,omitempty"`
	Refs     []MediaRef `json:"refs"`
}

// Ref returns the most recent reference of the given kind.
func (s SceneMedia) Ref(kind MediaKind) (MediaRef, bool) {
	for i := len(s.Refs) - 1; i >= 0; i-- {
		if s.Refs[i].Kind == kind {
			return s.Refs[i], true
		}
	}
	return MediaRef{}, false
}

// Asset returns the in-memory media of the given kind.
func (s SceneMedia) Asset(kind MediaKind) (Asset, bool) {
	switch kind {
	case MediaImage:
		return s.Image, !s.Image.Empty()
	case MediaClip:
		return s.Clip, !s.Clip.Empty()
	case MediaStill:
		return s.Still, !s.Still.Empty()
	case MediaAudio:
		if s.Audio == nil {
			return Asset{}, false
		}
		return *s.Audio, !s.Audio.Empty()
	}
	return Asset{}, false
}

// GenerationItem is one independently tracked unit of output within a batch.
type GenerationItem struct {
	ID            string            `json:"id"`
	BatchID       string            `json:"batch_id"`
	OrderIndex    int               `json:"order_index"`
	Status        TaskStatus        `json:"status"`
	Progress      int               `json:"progress"`
	Storyboard    []StoryboardChunk `json:"storyboard,omitempty"`
	Scenes        []SceneMedia      `json:"scenes,omitempty"`
	FailureReason string            `json:"failed_reason,omitempty"`
}

// MediaRefs returns the references of every scene in index order.
func (g GenerationItem) MediaRefs() []MediaRef {
	refs := make([]MediaRef, 0, len(g.Scenes)*2)
	for _, scene := range g.Scenes {
		refs = append(refs, scene.Refs...)
	}
	return refs
}

// Batch is the set of items produced from one request.
type Batch struct {
	ID      string            `json:"id"`
	Name    string            `json:"name"`
	Request ProductionRequest `json:"request"`
	Status  TaskStatus        `json:"status"`
	Reason  string            `json:"failed_reason,omitempty"`
	Items   []*GenerationItem `json:"items"`
}

// Supported output formats.
var (
	AspectRatios = []string{"16:9", "9:16", "1:1"}
	Resolutions  = []string{"720p", "1080p"}
)

// DefaultMinDuration is the minimum total duration in seconds when a request
// does not set one.
const DefaultMinDuration = 8

// ProductionRequest is the brief submitted for a batch.
type ProductionRequest struct {
	Name           string      `json:"name"`
	Product        Product     `json:"product"`
	Characters     []Character `json:"characters"`
	Prompt         string      `json:"user_prompt"`
	NegativePrompt string      `json:"negative_prompt,omitempty"`
	Amount         int         `json:"amount"`
	AspectRatio    string      `json:"aspect_ratio"`
	Resolution     string      `json:"resolution"`
	MinDuration    int         `json:"min_duration"`
	Credential     string      `json:"-"` // Explicit per-request credential override, never serialized.
}

// ErrInvalidRequest is wrapped by every validation failure.
var ErrInvalidRequest = errors.New("invalid production request")

// ApplyDefaults fills optional fields.
func (r *ProductionRequest) ApplyDefaults() {
	if r.Amount == 0 {
		r.Amount = 1
	}
	if r.AspectRatio == "" {
		r.AspectRatio = AspectRatios[0]
	}
	if r.Resolution == "" {
		r.Resolution = Resolutions[0]
	}
	if r.MinDuration <= 0 {
		r.MinDuration = DefaultMinDuration
	}
	if r.Name == "" {
		r.Name = r.Product.Name
	}
}

// Validate checks the request after defaults have been applied.
func (r ProductionRequest) Validate() error {
	var problems []string
	if strings.TrimSpace(r.Name) == "" {
		problems = append(problems, "name is required")
	}
	if strings.TrimSpace(r.Product.Name) == "" {
		problems = append(problems, "product name is required")
	}
	if r.Product.ReferenceURL() == "" {
		problems = append(problems, "product image is required")
	}
	if len(r.Characters) == 0 {
		problems = append(problems, "at least one character is required")
	}
	for i, c := range r.Characters {
		if c.ReferenceURL() == "" {
			problems = append(problems, fmt.Sprintf("character %d (%s) has no image", i+1, c.Name))
		}
	}
	if strings.TrimSpace(r.Prompt) == "" {
		problems = append(problems, "prompt is required")
	}
	if r.Amount < 1 {
		problems = append(problems, "amount must be at least 1")
	}
	if !slices.Contains(AspectRatios, r.AspectRatio) {
		problems = append(problems, fmt.Sprintf("aspect ratio %q is not one of %v", r.AspectRatio, AspectRatios))
	}
	if !slices.Contains(Resolutions, r.Resolution) {
		problems = append(problems, fmt.Sprintf("resolution %q is not one of %v", r.Resolution, Resolutions))
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidRequest, strings.Join(problems, "; "))
	}
	return nil
}

// Operation is a long-running remote job handle.
type Operation struct {
	Name       string   `json:"name"`
	Done       bool     `json:"done"`
	Clip       *Asset   `json:"-"`
	ClipURI    string   `json:"clip_uri,omitempty"`
	Error      string   `json:"error,omitempty"`
	Rejections []string `json:"rejections,omitempty"` // Content-safety reasons reported with the result.
}
