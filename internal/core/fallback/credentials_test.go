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

package fallback_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jaycherian/gcp-go-media-studio/internal/core/fallback"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func env(values map[string]string) func(string) (string, bool) {
	return func(name string) (string, bool) {
		v, ok := values[name]
		return v, ok
	}
}

func TestProviderOrderAndDedupe(t *testing.T) {
	provider := fallback.NewProvider(
		fallback.WithManualKey("manual-key"),
		fallback.WithEnvironmentKey("GEMINI_API_KEY"),
		fallback.WithLookupEnv(env(map[string]string{"GEMINI_API_KEY": "env-key"})),
		fallback.WithRefresh(func(context.Context) ([]fallback.Credential, error) {
			return []fallback.Credential{
				{ID: "1", Value: "env-key", Label: "duplicate"},
				{ID: "2", Value: "remote-key"},
				{ID: "3", Value: ""},
			}, nil
		}),
	)

	ctx := fallback.WithCredential(context.Background(), "explicit-key")
	creds, err := provider.Credentials(ctx)
	require.NoError(t, err)

	values := make([]string, 0, len(creds))
	for _, c := range creds {
		values = append(values, c.Value)
	}
	assert.Equal(t, []string{"explicit-key", "manual-key", "env-key", "remote-key"}, values)
	assert.Equal(t, fallback.OriginExplicit, creds[0].Origin)
	assert.Equal(t, fallback.OriginRemote, creds[3].Origin)
	assert.Equal(t, "remote:2", creds[3].Label)
}

func TestProviderRefreshesOnce(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})
	provider := fallback.NewProvider(fallback.WithRefresh(func(context.Context) ([]fallback.Credential, error) {
		calls.Add(1)
		<-release
		return []fallback.Credential{{ID: "r", Value: "remote"}}, nil
	}))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			creds, err := provider.Credentials(context.Background())
			assert.NoError(t, err)
			assert.Len(t, creds, 1)
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	_, err := provider.Credentials(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load())
	assert.True(t, provider.Loaded())
}

func TestProviderDoesNotCacheFailure(t *testing.T) {
	var calls atomic.Int32
	provider := fallback.NewProvider(
		fallback.WithManualKey("manual"),
		fallback.WithRefresh(func(context.Context) ([]fallback.Credential, error) {
			if calls.Add(1) == 1 {
				return nil, errors.New("gateway down")
			}
			return []fallback.Credential{{ID: "r", Value: "remote"}}, nil
		}),
	)

	first, err := provider.Credentials(context.Background())
	require.NoError(t, err)
	assert.Len(t, first, 1)
	assert.False(t, provider.Loaded())

	second, err := provider.Credentials(context.Background())
	require.NoError(t, err)
	assert.Len(t, second, 2)
	assert.Equal(t, int32(2), calls.Load())
}

func TestRosterWithPreferred(t *testing.T) {
	roster := fallback.Roster{fallback.TaskVideo: {"a", "b", "c"}}
	preferred := roster.WithPreferred(fallback.TaskVideo, "c")

	assert.Equal(t, []string{"c", "a", "b"}, preferred.Models(fallback.TaskVideo))
	assert.Equal(t, []string{"a", "b", "c"}, roster.Models(fallback.TaskVideo))

	merged := fallback.Roster{fallback.TaskVideo: {"x"}}.Merge(fallback.DefaultRoster())
	assert.Equal(t, []string{"x"}, merged.Models(fallback.TaskVideo))
	assert.NotEmpty(t, merged.Models(fallback.TaskStoryboard))
}

func TestCredentialString(t *testing.T) {
	assert.Equal(t, "primary", fallback.Credential{ID: "k1", Value: "secret", Label: "primary", Origin: fallback.OriginManual}.String())
	assert.Equal(t, "remote:k2", fallback.Credential{ID: "k2", Value: "secret", Origin: fallback.OriginRemote}.String())
	assert.Equal(t, "k1", fallback.Credential{ID: "k1", Value: "secret"}.String())
	assert.NotContains(t, fallback.Credential{ID: "k3", Value: "secret"}.String(), "secret")
}
