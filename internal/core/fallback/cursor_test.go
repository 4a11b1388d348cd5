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
	"errors"
	"testing"

	"github.com/jaycherian/gcp-go-media-studio/internal/core/fallback"
	"github.com/jaycherian/gcp-go-media-studio/internal/core/faults"
	"github.com/zeebo/assert"
)

func TestDecide(t *testing.T) {
	transient := errors.New("429 too many requests")
	policy := fallback.Policy{}

	start := fallback.NewCursor(2, 2)
	assert.Equal(t, fallback.Decide(start, nil, policy).Action, fallback.Stop)
	assert.Equal(t, fallback.Decide(start, transient, policy).Action, fallback.AdvanceModel)

	lastModel := fallback.Cursor{Credentials: 2, Models: 2, Credential: 0, Model: 1}
	assert.Equal(t, fallback.Decide(lastModel, transient, policy).Action, fallback.AdvanceCredential)

	lastPair := fallback.Cursor{Credentials: 2, Models: 2, Credential: 1, Model: 1}
	assert.Equal(t, fallback.Decide(lastPair, transient, policy).Action, fallback.Exhausted)

	assert.Equal(t, fallback.Decide(start, faults.Fatal(transient), policy).Action, fallback.Abort)
	assert.Equal(t, fallback.Decide(start, faults.ErrNoCredential, policy).Action, fallback.Abort)

	safety := fallback.Decide(start, &faults.SafetyRejection{Count: 1}, policy)
	assert.Equal(t, safety.Action, fallback.Abort)
	assert.Equal(t, safety.Kind, faults.KindSafety)
}

func TestCursorNext(t *testing.T) {
	c := fallback.NewCursor(2, 3)
	assert.Equal(t, c.Size(), 6)

	c = c.Next(fallback.Decision{Action: fallback.AdvanceModel})
	assert.Equal(t, c.Model, 1)
	assert.Equal(t, c.Credential, 0)

	c = c.Next(fallback.Decision{Action: fallback.AdvanceCredential})
	assert.Equal(t, c.Model, 0)
	assert.Equal(t, c.Credential, 1)
	assert.True(t, c.Valid())

	same := c.Next(fallback.Decision{Action: fallback.Abort})
	assert.Equal(t, same, c)
}
