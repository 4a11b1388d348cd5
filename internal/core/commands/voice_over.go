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

package commands

import (
	"context"
	"log/slog"
	"strings"

	"github.com/jaycherian/gcp-go-media-studio/internal/core/cor"
	"github.com/jaycherian/gcp-go-media-studio/internal/core/model"
	"github.com/jaycherian/gcp-go-media-studio/internal/core/video"
)

// Narrator synthesizes voice-over audio.
type Narrator interface {
	VoiceOver(ctx context.Context, narration string) (model.Asset, error)
}

// VoiceOver adds the separate narration track of the legacy flow. It only
// acts on clips of describe then generate models whose analysis carries a
// narration; other scenes pass through.
type VoiceOver struct {
	cor.BaseCommand
	narrator Narrator
}

// NewVoiceOver creates the voice-over stage.
func NewVoiceOver(name string, narrator Narrator) *VoiceOver {
	cmd := &VoiceOver{BaseCommand: *cor.NewBaseCommand(name), narrator: narrator}
	cmd.InputParamName = ClipResultParam
	return cmd
}

func (c *VoiceOver) Execute(context cor.Context) {
	job, err := jobOf(context)
	if err != nil {
		c.Fail(context, err)
		return
	}
	index, _, err := sceneOf(context)
	if err != nil {
		c.Fail(context, err)
		return
	}
	result, _ := context.Get(ClipResultParam).(video.Result)
	if result.Family != video.FamilyDescribeThenGenerate || result.Analysis == nil || strings.TrimSpace(result.Analysis.Narration) == "" {
		slog.DebugContext(context.GetContext(), "no voice-over for scene", "job", job.String(), "scene", index, "family", result.Family.String())
		c.Succeed(context)
		return
	}

	ctx := context.GetContext()
	if err := job.Step(ctx, model.StatusGeneratingVoiceOver); err != nil {
		c.Fail(context, err)
		return
	}
	wav, err := c.narrator.VoiceOver(ctx, result.Analysis.Narration)
	if err != nil {
		c.Fail(context, err)
		return
	}
	if err := job.VoiceOver(ctx, index, wav); err != nil {
		c.Fail(context, err)
		return
	}
	c.Succeed(context)
	context.Add(c.GetOutputParam(), wav)
}
