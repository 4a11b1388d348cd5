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

package visual_test

import (
	"context"
	"errors"
	"testing"

	"github.com/jaycherian/gcp-go-media-studio/internal/core/fallback"
	"github.com/jaycherian/gcp-go-media-studio/internal/core/faults"
	"github.com/jaycherian/gcp-go-media-studio/internal/core/model"
	"github.com/jaycherian/gcp-go-media-studio/internal/core/visual"
	test "github.com/jaycherian/gcp-go-media-studio/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

func newSynthesizer(t *testing.T, fake *test.FakeModels, credentials int) *visual.Synthesizer {
	t.Helper()
	engine := fallback.NewEngine(test.Credentials(credentials), fallback.Roster{fallback.TaskImage: {"image-a"}}, fallback.Policy{})
	s, err := visual.NewSynthesizer(engine, fake, visual.Templates{})
	require.NoError(t, err)
	return s
}

func png() model.Asset {
	return model.Asset{Data: test.PNG(4, 4), MIMEType: "image/png"}
}

func twoCharacters() []model.Character {
	return []model.Character{
		{Name: "Sari", Gender: "female", Description: "white linen shirt"},
		{Name: "Sari Dewi", Gender: "female", Description: "red scarf"},
	}
}

func TestComposeFirstScenePartOrder(t *testing.T) {
	fake := &test.FakeModels{OnContent: func(test.Call, int) (*genai.GenerateContentResponse, error) {
		return test.ImageResponse(test.PNG(8, 8), "image/png"), nil
	}}
	s := newSynthesizer(t, fake, 1)

	product := model.Asset{Data: test.PNG(2, 2)}
	refs := []model.Asset{{Data: test.JPEG(3, 3)}, {Data: test.PNG(5, 5)}}
	scene := model.Scene{
		VisualPrompt: "Sari Dewi hands the Glow Serum to Sari in the bathroom",
		Actions:      []string{"Sari smiles"},
		Setting:      "bathroom",
	}
	out, err := s.ComposeFirstScene(context.Background(), visual.FirstSceneInput{
		Product:     product,
		ProductName: "Glow Serum",
		Characters:  twoCharacters(),
		References:  refs,
		Scene:       scene,
		AspectRatio: "9:16",
	})
	require.NoError(t, err)
	assert.Equal(t, "image/png", out.MIMEType)

	calls := fake.Calls("GenerateContent")
	require.Len(t, calls, 1)
	parts := calls[0].Parts()
	require.Len(t, parts, 4)
	assert.Equal(t, product.Data, parts[0].InlineData.Data)
	assert.Equal(t, refs[0].Data, parts[1].InlineData.Data)
	assert.Equal(t, "image/jpeg", parts[1].InlineData.MIMEType)
	assert.Equal(t, refs[1].Data, parts[2].InlineData.Data)
	assert.Nil(t, parts[3].InlineData)

	text := parts[3].Text
	assert.Contains(t, text, "reference image #3 hands the reference image #1 to reference image #2")
	assert.Contains(t, text, "@char01 is reference image #2")
	assert.Contains(t, text, "@char02 is reference image #3")
	assert.Contains(t, text, "(@char01, @char02)")
	assert.Equal(t, "9:16", calls[0].Config.ImageConfig.AspectRatio)
}

func TestComposeNextSceneUsesPreviousFrame(t *testing.T) {
	fake := &test.FakeModels{OnContent: func(test.Call, int) (*genai.GenerateContentResponse, error) {
		return test.ImageResponse(test.PNG(8, 8), "image/png"), nil
	}}
	s := newSynthesizer(t, fake, 1)

	previous := model.Asset{Data: test.JPEG(6, 6)}
	_, err := s.ComposeNextScene(context.Background(), visual.NextSceneInput{
		Previous:   previous,
		Characters: twoCharacters()[:1],
		References: []model.Asset{png()},
		Scene:      model.Scene{VisualPrompt: "Sari applies two drops", Setting: "bathroom"},
	})
	require.NoError(t, err)

	parts := fake.Calls("GenerateContent")[0].Parts()
	require.Len(t, parts, 3)
	assert.Equal(t, previous.Data, parts[0].InlineData.Data)
	assert.Contains(t, parts[2].Text, "lighting direction")
	assert.Contains(t, parts[2].Text, "camera angle")
	assert.Contains(t, parts[2].Text, "spatial relationships")
	assert.Contains(t, parts[2].Text, "reference image #2 applies two drops")
}

func TestRefusalIsFatalAndVerbatim(t *testing.T) {
	fake := &test.FakeModels{OnContent: func(test.Call, int) (*genai.GenerateContentResponse, error) {
		return test.TextResponse("I can't generate images of that person."), nil
	}}
	s := newSynthesizer(t, fake, 3)

	_, err := s.LockProduct(context.Background(), model.Product{Name: "Glow Serum"}, png(), "1:1")
	var refusal *visual.RefusalError
	require.True(t, errors.As(err, &refusal))
	assert.Equal(t, "I can't generate images of that person.", refusal.Text)
	assert.True(t, faults.IsFatal(err))
	assert.Equal(t, "I can't generate images of that person.", faults.Translate(err))
	// No fallback credential was tried.
	assert.Len(t, fake.Calls("GenerateContent"), 1)
}

func TestLockProductFallsBackToNextCredential(t *testing.T) {
	fake := &test.FakeModels{OnContent: func(call test.Call, _ int) (*genai.GenerateContentResponse, error) {
		if call.Credential.ID == "k1" {
			return nil, test.Unavailable()
		}
		return test.ImageResponse(test.PNG(8, 8), "image/png"), nil
	}}
	s := newSynthesizer(t, fake, 2)

	out, err := s.LockProduct(context.Background(), model.Product{Name: "Glow Serum", Dimension: "30ml"}, png(), "1:1")
	require.NoError(t, err)
	assert.False(t, out.Empty())

	calls := fake.Calls("GenerateContent")
	require.Len(t, calls, 2)
	assert.Equal(t, "k2", calls[1].Credential.ID)
	assert.Contains(t, calls[1].Text(), "Real size: 30ml")
}

func TestComposeRejectsMismatchedReferences(t *testing.T) {
	fake := &test.FakeModels{}
	s := newSynthesizer(t, fake, 1)

	_, err := s.ComposeFirstScene(context.Background(), visual.FirstSceneInput{
		Product:    png(),
		Characters: twoCharacters(),
		References: []model.Asset{png()},
	})
	assert.True(t, faults.IsFatal(err))
	assert.Empty(t, fake.Calls(""))
}

func TestBindReferencesPrefersLongerNames(t *testing.T) {
	refs := visual.CharacterReferences(twoCharacters(), 2)
	out := visual.BindReferences("Sari Dewi waves at sari.", refs)
	assert.Equal(t, "reference image #3 waves at reference image #2.", out)
	assert.Equal(t, "@char02", refs[1].Label)
}
