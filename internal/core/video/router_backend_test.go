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

package video_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jaycherian/gcp-go-media-studio/internal/cloud"
	"github.com/jaycherian/gcp-go-media-studio/internal/core/fallback"
	"github.com/jaycherian/gcp-go-media-studio/internal/core/video"
	test "github.com/jaycherian/gcp-go-media-studio/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

// veoServer stands in for the Gemini API video endpoints. Submissions are
// recorded and every job stays pending.
type veoServer struct {
	mu          sync.Mutex
	submissions []map[string]any
	polls       int
}

func (s *veoServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")
	switch {
	case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, ":predictLongRunning"):
		body := map[string]any{}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		s.submissions = append(s.submissions, body)
		_, _ = w.Write([]byte(`{"name": "models/veo-3.1-generate-preview/operations/op-1"}`))
	case r.Method == http.MethodGet && strings.Contains(r.URL.Path, "/operations/"):
		s.polls++
		_, _ = w.Write([]byte(`{"name": "models/veo-3.1-generate-preview/operations/op-1", "done": false}`))
	default:
		http.NotFound(w, r)
	}
}

func TestAudioRequestOnGeminiBackendReachesTheService(t *testing.T) {
	srv := &veoServer{}
	ts := httptest.NewServer(srv)
	defer ts.Close()

	factory := func(ctx context.Context, credential fallback.Credential) (*genai.Client, error) {
		return genai.NewClient(ctx, &genai.ClientConfig{
			Backend:     genai.BackendGeminiAPI,
			APIKey:      credential.Value,
			HTTPOptions: genai.HTTPOptions{BaseURL: ts.URL},
		})
	}
	service := cloud.NewGenAIService(cloud.NewClientPool(factory), cloud.NewQuotaRegistry(nil, 600), nil)

	roster := fallback.Roster{fallback.TaskVideo: {"veo-3.1-generate-preview"}}
	engine := fallback.NewEngine(test.Credentials(1), roster, fallback.Policy{})
	r, err := video.NewRouter(engine, service, video.Options{
		Poll:          video.PollPolicy{Interval: time.Millisecond, MaxAttempts: 2},
		GenerateAudio: true,
	})
	require.NoError(t, err)

	_, err = r.Synthesize(context.Background(), video.Request{
		Image:       seed(),
		Prompt:      "Scene 1: she opens the bottle",
		AspectRatio: "9:16",
		Resolution:  "720p",
	})
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "not supported in Gemini API")

	var timeout *video.TimeoutError
	assert.True(t, errors.As(err, &timeout), "job should have been submitted and polled, got %v", err)

	srv.mu.Lock()
	defer srv.mu.Unlock()
	require.Len(t, srv.submissions, 1)
	assert.Positive(t, srv.polls)
	params, ok := srv.submissions[0]["parameters"].(map[string]any)
	require.True(t, ok)
	assert.NotContains(t, params, "generateAudio")
	assert.Equal(t, "9:16", params["aspectRatio"])
}
