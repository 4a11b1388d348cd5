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

package fallback

import "slices"

// TaskType selects the model list of the roster.
type TaskType string

const (
	TaskStoryboard TaskType = "storyboard"
	TaskImage      TaskType = "image"
	TaskVision     TaskType = "vision"
	TaskVideo      TaskType = "video"
	TaskSpeech     TaskType = "speech"
)

// Roster maps a task type to its models in preference order.
type Roster map[TaskType][]string

// DefaultRoster is used for task types the configuration leaves empty.
func DefaultRoster() Roster {
	return Roster{
		TaskStoryboard: {"gemini-3-flash-preview", "gemini-2.5-flash"},
		TaskImage:      {"gemini-2.5-flash-image", "gemini-3-pro-image-preview"},
		TaskVision:     {"gemini-2.5-flash", "gemini-flash-latest"},
		TaskVideo:      {"veo-3.1-fast-generate-preview", "veo-3.1-generate-preview", "veo-3.0-generate-001"},
		TaskSpeech:     {"gemini-2.5-flash-preview-tts"},
	}
}

// Models returns a copy of the models for task.
func (r Roster) Models(task TaskType) []string {
	return slices.Clone(r[task])
}

// Merge returns a roster with every task of r, filled from defaults where r is empty.
func (r Roster) Merge(defaults Roster) Roster {
	out := make(Roster, len(defaults))
	for task, models := range defaults {
		out[task] = slices.Clone(models)
	}
	for task, models := range r {
		if len(models) > 0 {
			out[task] = slices.Clone(models)
		}
	}
	return out
}

// WithPreferred returns a copy of r with model moved to the front of task.
func (r Roster) WithPreferred(task TaskType, model string) Roster {
	out := r.Merge(nil)
	if model == "" {
		return out
	}
	models := slices.DeleteFunc(out.Models(task), func(m string) bool { return m == model })
	out[task] = append([]string{model}, models...)
	return out
}
