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

package cloud_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jaycherian/gcp-go-media-studio/internal/cloud"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

func TestLoadConfigLayers(t *testing.T) {
	dir := t.TempDir()
	base := `
[application]
name = "studio"
default_rate_limit = 12

[models]
video = ["veo-a", "veo-b"]

[poll_policy]
interval = "5s"
max_attempts = 7
`
	runtime := `
[poll_policy]
interval = "1s"

[production]
fail_fast_invalid_argument = true
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env.toml"), []byte(base), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env.unit.toml"), []byte(runtime), 0o600))
	t.Setenv(cloud.EnvConfigFilePrefix, dir)
	t.Setenv(cloud.EnvConfigRuntime, "unit")

	config := cloud.NewConfig()
	require.NoError(t, cloud.LoadConfig(config))

	assert.Equal(t, "studio", config.Application.Name)
	assert.Equal(t, 12, config.Application.DefaultRateLimit)
	assert.Equal(t, []string{"veo-a", "veo-b"}, config.Models["video"])
	assert.Equal(t, time.Second, config.PollPolicy.Interval)
	assert.Equal(t, 7, config.PollPolicy.MaxAttempts)
	assert.True(t, config.Production.FailFastInvalidArgument)
	// Defaults survive keys absent from both files.
	assert.Equal(t, 8.0, config.Production.ChunkDurationEstimate)
	assert.Equal(t, 0.12, config.Frames.InitialOffset)
}

func TestLoadConfigRejectsBadFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env.toml"), []byte("[application\nname="), 0o600))
	t.Setenv(cloud.EnvConfigFilePrefix, dir)

	assert.Error(t, cloud.LoadConfig(cloud.NewConfig()))
}

func TestStripFences(t *testing.T) {
	assert.Equal(t, `{"a":1}`, cloud.StripFences("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, cloud.StripFences("```{\"a\":1}```"))
	assert.Equal(t, `[1]`, cloud.StripFences("  [1] "))
}

func TestResponseImage(t *testing.T) {
	resp := &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{
		Content: genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromText("here you go"),
			genai.NewPartFromBytes([]byte{1, 2, 3}, "image/png"),
		}, genai.RoleModel),
	}}}
	blob, text := cloud.ResponseImage(resp)
	require.NotNil(t, blob)
	assert.Equal(t, []byte{1, 2, 3}, blob.Data)
	assert.Equal(t, "here you go", text)

	refusal := &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{
		Content: genai.NewContentFromText("I can't create that image.", genai.RoleModel),
	}}}
	blob, text = cloud.ResponseImage(refusal)
	assert.Nil(t, blob)
	assert.Equal(t, "I can't create that image.", text)
	assert.Equal(t, "I can't create that image.", cloud.ResponseText(refusal))
}

func TestParseGCSURI(t *testing.T) {
	obj, err := cloud.ParseGCSURI("gs://bucket/path/to/clip.mp4")
	require.NoError(t, err)
	assert.Equal(t, "bucket", obj.Bucket)
	assert.Equal(t, "path/to/clip.mp4", obj.Name)
	assert.Equal(t, "gs://bucket/path/to/clip.mp4", obj.URI())

	_, err = cloud.ParseGCSURI("https://example.com/a.png")
	assert.Error(t, err)
	_, err = cloud.ParseGCSURI("gs://bucket")
	assert.Error(t, err)
}

func TestDeliveryClaims(t *testing.T) {
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	defer client.Close()
	claims := cloud.NewDeliveryClaims(client, "studio", time.Hour)
	ctx := context.Background()

	first, err := claims.Claim(ctx, "msg-1")
	require.NoError(t, err)
	assert.True(t, first)

	second, err := claims.Claim(ctx, "msg-1")
	require.NoError(t, err)
	assert.False(t, second)

	require.NoError(t, claims.Release(ctx, "msg-1"))
	again, err := claims.Claim(ctx, "msg-1")
	require.NoError(t, err)
	assert.True(t, again)

	server.FastForward(2 * time.Hour)
	expired, err := claims.Claim(ctx, "msg-1")
	require.NoError(t, err)
	assert.True(t, expired)
}

func TestQuotaRegistry(t *testing.T) {
	registry := cloud.NewQuotaRegistry(map[string]int{"veo": 2}, 0)

	veo := registry.Model("k1", "veo")
	assert.Same(t, veo, registry.Model("k1", "veo"))
	assert.NotSame(t, veo, registry.Model("k2", "veo"))
	require.NoError(t, veo.Wait(context.Background()))

	// The second token of a 2/min limiter is 30s away.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.Error(t, veo.Wait(ctx))

	unlimited := registry.Model("k1", "gemini")
	for i := 0; i < 10; i++ {
		require.NoError(t, unlimited.Wait(context.Background()))
	}
}

func TestAgentModelConfig(t *testing.T) {
	cfg := cloud.AgentModel{Temperature: 0.7, TopP: 0.9, OutputFormat: "application/json", SystemInstructions: "be brief"}.ToGenerateContentConfig()
	require.NotNil(t, cfg.Temperature)
	assert.InDelta(t, 0.7, *cfg.Temperature, 1e-6)
	assert.Nil(t, cfg.TopK)
	assert.Equal(t, "application/json", cfg.ResponseMIMEType)
	require.NotNil(t, cfg.SystemInstruction)
	assert.Equal(t, "be brief", cfg.SystemInstruction.Parts[0].Text)
}
