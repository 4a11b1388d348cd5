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

package production

import (
	"errors"
	"fmt"

	"github.com/jaycherian/gcp-go-media-studio/internal/core/model"
)

// ErrIllegalTransition is wrapped by every rejected status change.
var ErrIllegalTransition = errors.New("illegal status transition")

var rank = map[model.TaskStatus]int{
	model.StatusIdle:                      0,
	model.StatusInitBatch:                 1,
	model.StatusCreatingStoryboard:        2,
	model.StatusGeneratingFirstSceneImage: 3,
	model.StatusAnalyzingScene:            4,
	model.StatusGeneratingVideo:           5,
	model.StatusGeneratingVoiceOver:       6,
	model.StatusUploading:                 7,
	model.StatusCompleting:                8,
	model.StatusCompleted:                 9,
}

// Statuses an item cycles through once per scene.
var sceneLoop = map[model.TaskStatus]bool{
	model.StatusGeneratingFirstSceneImage: true,
	model.StatusAnalyzingScene:            true,
	model.StatusGeneratingVideo:           true,
	model.StatusGeneratingVoiceOver:       true,
}

var progress = map[model.TaskStatus]int{
	model.StatusCreatingStoryboard:        10,
	model.StatusGeneratingFirstSceneImage: 40,
	model.StatusGeneratingVideo:           70,
	model.StatusUploading:                 85,
	model.StatusCompleted:                 100,
}

// CanTransition reports whether an item in status from may move to to.
//
// Statuses only move forward, with two exceptions: FAILED is reachable from
// every non-terminal status, and the scene loop statuses may follow each other
// in any order because every scene of an item passes through them again.
func CanTransition(from, to model.TaskStatus) bool {
	if from.IsTerminal() || !to.Valid() {
		return false
	}
	if to == model.StatusFailed {
		return true
	}
	if sceneLoop[from] && sceneLoop[to] {
		return true
	}
	return rank[to] > rank[from]
}

// Progress returns the progress percentage reached when entering status, or
// -1 when the status does not move progress.
func Progress(status model.TaskStatus) int {
	if p, ok := progress[status]; ok {
		return p
	}
	return -1
}

func illegal(from, to model.TaskStatus) error {
	return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, from, to)
}
