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

import "strings"

// Family is the synthesis strategy of a video model.
type Family int

const (
	// FamilyImageToVideo submits the seed image with the prompt.
	FamilyImageToVideo Family = iota
	// FamilyImageToVideoAudio submits the seed image with a prompt carrying
	// vocal delivery directives.
	FamilyImageToVideoAudio
	// FamilyDescribeThenGenerate transplants the seed image into text first.
	FamilyDescribeThenGenerate
)

func (f Family) String() string {
	switch f {
	case FamilyImageToVideo:
		return "image_to_video"
	case FamilyImageToVideoAudio:
		return "image_to_video_audio"
	case FamilyDescribeThenGenerate:
		return "describe_then_generate"
	}
	return "unknown"
}

// FamilyOf returns the family of a model id.
//
//	veo-3.1*                          image to video with audio directives
//	veo-3.0* containing preview/fast  image to video
//	other veo-3.0*, veo-2*            describe then generate
//	anything else                     image to video
func FamilyOf(model string) Family {
	id := strings.ToLower(strings.TrimPrefix(model, "models/"))
	switch {
	case strings.HasPrefix(id, "veo-3.1"):
		return FamilyImageToVideoAudio
	case strings.HasPrefix(id, "veo-3.0") && (strings.Contains(id, "preview") || strings.Contains(id, "fast")):
		return FamilyImageToVideo
	case strings.HasPrefix(id, "veo-3.0"), strings.HasPrefix(id, "veo-2"):
		return FamilyDescribeThenGenerate
	}
	return FamilyImageToVideo
}
