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
	"sort"
	"sync"

	"github.com/jaycherian/gcp-go-media-studio/internal/core/model"
)

var (
	// ErrDuplicateMedia is returned when a scene index already holds media of
	// the recorded kind.
	ErrDuplicateMedia = errors.New("scene already has media of this kind")

	// ErrIncompleteScenes is returned when an item without one image and one
	// clip per scene index is completed.
	ErrIncompleteScenes = errors.New("item scenes are incomplete")
)

// Item is the live state of one generation item. Only the worker running the
// item writes to it; readers take snapshots.
type Item struct {
	mu         sync.RWMutex
	id         string
	batchID    string
	order      int
	status     model.TaskStatus
	progress   int
	storyboard []model.StoryboardChunk
	scenes     []*model.SceneMedia
	reason     string
}

// NewItem creates an IDLE item.
func NewItem(batchID, id string, order int) *Item {
	return &Item{id: id, batchID: batchID, order: order, status: model.StatusIdle}
}

func (i *Item) ID() string { return i.id }

func (i *Item) Status() model.TaskStatus {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.status
}

// Transition moves the item to next and advances its progress.
//
// Completing requires an image and a clip for every scene index, one scene
// per storyboard chunk.
func (i *Item) Transition(next model.TaskStatus) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.transition(next)
}

func (i *Item) transition(next model.TaskStatus) error {
	if !CanTransition(i.status, next) {
		return illegal(i.status, next)
	}
	if next == model.StatusCompleted {
		if err := i.checkScenes(); err != nil {
			return err
		}
	}
	i.status = next
	if p := Progress(next); p > i.progress {
		i.progress = p
	}
	return nil
}

func (i *Item) checkScenes() error {
	if len(i.scenes) == 0 {
		return fmt.Errorf("%w: no scenes", ErrIncompleteScenes)
	}
	if len(i.storyboard) > 0 && len(i.scenes) != len(i.storyboard) {
		return fmt.Errorf("%w: %d scene(s) for %d storyboard chunk(s)", ErrIncompleteScenes, len(i.scenes), len(i.storyboard))
	}
	for _, scene := range i.scenes {
		if scene.Image.Empty() || scene.Clip.Empty() {
			return fmt.Errorf("%w: scene %d lacks an image or a clip", ErrIncompleteScenes, scene.Index)
		}
	}
	return nil
}

// Fail moves the item to FAILED with reason. A terminal item is left as is
// and false is returned.
func (i *Item) Fail(reason string) bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	if err := i.transition(model.StatusFailed); err != nil {
		return false
	}
	i.reason = reason
	return true
}

// SetStoryboard stores the planned chunks.
func (i *Item) SetStoryboard(chunks []model.StoryboardChunk) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.storyboard = append([]model.StoryboardChunk(nil), chunks...)
}

// Storyboard returns the planned chunks.
func (i *Item) Storyboard() []model.StoryboardChunk {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return append([]model.StoryboardChunk(nil), i.storyboard...)
}

// scene returns the scene with index, creating it in order when absent.
func (i *Item) scene(index int) *model.SceneMedia {
	pos := sort.Search(len(i.scenes), func(n int) bool { return i.scenes[n].Index >= index })
	if pos < len(i.scenes) && i.scenes[pos].Index == index {
		return i.scenes[pos]
	}
	s := &model.SceneMedia{Index: index}
	i.scenes = append(i.scenes, nil)
	copy(i.scenes[pos+1:], i.scenes[pos:])
	i.scenes[pos] = s
	return s
}

// RecordScene stores media produced for scene index (1-based). Each kind may
// be recorded once per scene and a clip needs the scene image first.
func (i *Item) RecordScene(index int, kind model.MediaKind, asset model.Asset) error {
	if index < 1 {
		return fmt.Errorf("scene index %d out of range", index)
	}
	if asset.Empty() {
		return fmt.Errorf("scene %d: empty %s", index, kind)
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.status.IsTerminal() {
		return fmt.Errorf("scene %d: item %s is %s", index, i.id, i.status)
	}
	s := i.scene(index)
	if _, ok := s.Asset(kind); ok {
		return fmt.Errorf("%w: scene %d %s", ErrDuplicateMedia, index, kind)
	}
	switch kind {
	case model.MediaImage:
		s.Image = asset
	case model.MediaClip:
		if s.Image.Empty() {
			return fmt.Errorf("scene %d: clip recorded before its image", index)
		}
		s.Clip = asset
	case model.MediaStill:
		s.Still = asset
	case model.MediaAudio:
		s.Audio = &asset
	default:
		return fmt.Errorf("scene %d: unknown media kind %q", index, kind)
	}
	return nil
}

// Describe stores how the clip of scene index was made. Empty values keep
// what was stored before.
func (i *Item) Describe(index int, modelName, prompt, analysis string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	s := i.scene(index)
	if modelName != "" {
		s.Model = modelName
	}
	if prompt != "" {
		s.Prompt = prompt
	}
	if analysis != "" {
		s.Analysis = analysis
	}
}

// AddRef attaches a reference to scene index.
func (i *Item) AddRef(index int, ref model.MediaRef) {
	i.mu.Lock()
	defer i.mu.Unlock()
	s := i.scene(index)
	s.Refs = append(s.Refs, ref)
}

// Scene returns a copy of the media of scene index.
func (i *Item) Scene(index int) (model.SceneMedia, bool) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	for _, s := range i.scenes {
		if s.Index == index {
			return copyScene(s), true
		}
	}
	return model.SceneMedia{}, false
}

// Snapshot returns a copy of the item for readers.
func (i *Item) Snapshot() model.GenerationItem {
	i.mu.RLock()
	defer i.mu.RUnlock()
	out := model.GenerationItem{
		ID:            i.id,
		BatchID:       i.batchID,
		OrderIndex:    i.order,
		Status:        i.status,
		Progress:      i.progress,
		Storyboard:    append([]model.StoryboardChunk(nil), i.storyboard...),
		FailureReason: i.reason,
	}
	for _, s := range i.scenes {
		out.Scenes = append(out.Scenes, copyScene(s))
	}
	return out
}

func copyScene(s *model.SceneMedia) model.SceneMedia {
	c := *s
	c.Refs = append([]model.MediaRef(nil), s.Refs...)
	if s.Audio != nil {
		audio := *s.Audio
		c.Audio = &audio
	}
	return c
}

// reset returns a FAILED item to IDLE for a retry.
func (i *Item) reset() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.status != model.StatusFailed {
		return fmt.Errorf("%w: only failed items can be retried, item %s is %s", ErrIllegalTransition, i.id, i.status)
	}
	i.status = model.StatusIdle
	i.progress = 0
	i.storyboard = nil
	i.scenes = nil
	i.reason = ""
	return nil
}
