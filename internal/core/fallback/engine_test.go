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
	"fmt"
	"testing"

	"github.com/jaycherian/gcp-go-media-studio/internal/core/fallback"
	"github.com/jaycherian/gcp-go-media-studio/internal/core/faults"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

type pair struct {
	credential string
	model      string
}

func twoByTwo() *fallback.Engine {
	source := fallback.StaticSource{
		{ID: "k1", Value: "secret-1", Label: "k1"},
		{ID: "k2", Value: "secret-2", Label: "k2"},
	}
	roster := fallback.Roster{fallback.TaskVideo: {"A", "B"}}
	return fallback.NewEngine(source, roster, fallback.Policy{})
}

func TestExecuteAttemptOrder(t *testing.T) {
	engine := twoByTwo()
	var seen []pair

	result, err := fallback.Execute(context.Background(), engine, fallback.TaskVideo,
		func(_ context.Context, c fallback.Credential, model string) (string, error) {
			seen = append(seen, pair{c.ID, model})
			if c.ID == "k2" && model == "A" {
				return "clip", nil
			}
			return "", errors.New("503 service unavailable")
		})

	require.NoError(t, err)
	assert.Equal(t, "clip", result)
	assert.Equal(t, []pair{{"k1", "A"}, {"k1", "B"}, {"k2", "A"}}, seen)
}

func TestExecuteExhaustsMatrix(t *testing.T) {
	engine := twoByTwo()
	calls := 0

	_, err := fallback.Execute(context.Background(), engine, fallback.TaskVideo,
		func(_ context.Context, _ fallback.Credential, _ string) (int, error) {
			calls++
			return 0, errors.New("quota exceeded")
		})

	require.Error(t, err)
	assert.Equal(t, 4, calls)
	assert.True(t, errors.Is(err, faults.ErrResourceExhausted))
	var exhausted *fallback.ExhaustedError
	require.True(t, errors.As(err, &exhausted))
	assert.Equal(t, fallback.TaskVideo, exhausted.Task)
	assert.Equal(t, 4, exhausted.Attempts)
	assert.Contains(t, err.Error(), "resource exhausted for task type video")
}

func TestExecuteSafetyAborts(t *testing.T) {
	engine := twoByTwo()
	calls := 0
	rejection := &faults.SafetyRejection{Reasons: []string{"celebrity likeness"}}

	_, err := fallback.Execute(context.Background(), engine, fallback.TaskVideo,
		func(_ context.Context, _ fallback.Credential, _ string) (int, error) {
			calls++
			return 0, fmt.Errorf("scene 1: %w", rejection)
		})

	assert.Equal(t, 1, calls)
	var got *faults.SafetyRejection
	require.True(t, errors.As(err, &got))
	assert.False(t, errors.Is(err, faults.ErrResourceExhausted))
}

func TestExecuteNoCredential(t *testing.T) {
	engine := fallback.NewEngine(fallback.StaticSource{}, fallback.DefaultRoster(), fallback.Policy{})
	calls := 0

	_, err := fallback.Execute(context.Background(), engine, fallback.TaskStoryboard,
		func(_ context.Context, _ fallback.Credential, _ string) (int, error) {
			calls++
			return 0, nil
		})

	assert.Zero(t, calls)
	assert.True(t, errors.Is(err, faults.ErrNoCredential))
}

func TestExecuteInvalidArgumentPolicy(t *testing.T) {
	badRequest := genai.APIError{Code: 400, Status: "INVALID_ARGUMENT", Message: "bad aspect ratio"}

	for _, tc := range []struct {
		failFast bool
		want     int
	}{{false, 4}, {true, 1}} {
		engine := fallback.NewEngine(
			fallback.StaticSource{{ID: "k1", Value: "1"}, {ID: "k2", Value: "2"}},
			fallback.Roster{fallback.TaskImage: {"A", "B"}},
			fallback.Policy{FailFastInvalidArgument: tc.failFast},
		)
		calls := 0
		_, err := fallback.Execute(context.Background(), engine, fallback.TaskImage,
			func(_ context.Context, _ fallback.Credential, _ string) (int, error) {
				calls++
				return 0, badRequest
			})
		require.Error(t, err)
		assert.Equal(t, tc.want, calls, "failFast=%v", tc.failFast)
	}
}

func TestExecuteStopsOnCancel(t *testing.T) {
	engine := twoByTwo()
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0

	_, err := fallback.Execute(ctx, engine, fallback.TaskVideo,
		func(_ context.Context, _ fallback.Credential, _ string) (int, error) {
			calls++
			cancel()
			return 0, errors.New("unavailable")
		})

	assert.Equal(t, 1, calls)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestExecuteMissingModels(t *testing.T) {
	engine := fallback.NewEngine(fallback.StaticSource{{ID: "k1", Value: "1"}}, fallback.Roster{}, fallback.Policy{})
	_, err := fallback.Execute(context.Background(), engine, fallback.TaskSpeech,
		func(_ context.Context, _ fallback.Credential, _ string) (int, error) { return 1, nil })
	require.Error(t, err)
	assert.True(t, faults.IsFatal(err))
}
