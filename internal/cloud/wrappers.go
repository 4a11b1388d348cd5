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

// Package cloud provides components for interacting with Google Cloud services.
// This file implements the quota-aware wrapper placed in front of every
// generative model. Each (credential, model) pair gets its own token bucket so
// one exhausted key does not slow down the others; callers block in Wait until
// a token is available or their context ends.
//
// Structs:
//   - QuotaAwareGenerativeAIModel: The rate limiter of one (credential, model) pair.
//   - QuotaRegistry: Lazily creates and caches limiters.
package cloud

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// QuotaAwareGenerativeAIModel rate limits the requests sent to one model with
// one credential.
type QuotaAwareGenerativeAIModel struct {
	ModelName string        // The model identifier.
	RateLimit *rate.Limiter // Token bucket refilled at the configured requests per minute.
}

// NewQuotaAwareModel creates a limiter allowing requestsPerMinute requests per
// minute with a burst of one.
//
// Inputs:
//   - name: The model identifier.
//   - requestsPerMinute: Sustained rate. Zero or less disables limiting.
//
// Outputs:
//   - *QuotaAwareGenerativeAIModel: A pointer to the newly created wrapper.
func NewQuotaAwareModel(name string, requestsPerMinute int) *QuotaAwareGenerativeAIModel {
	limit := rate.Inf
	if requestsPerMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(requestsPerMinute))
	}
	return &QuotaAwareGenerativeAIModel{
		ModelName: name,
		RateLimit: rate.NewLimiter(limit, 1),
	}
}

// Wait blocks until the model may be called or ctx ends.
func (q *QuotaAwareGenerativeAIModel) Wait(ctx context.Context) error {
	if err := q.RateLimit.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait for %s: %w", q.ModelName, err)
	}
	return nil
}

// QuotaRegistry hands out one limiter per (credential, model) pair.
type QuotaRegistry struct {
	mu       sync.Mutex
	limits   map[string]int
	fallback int
	models   map[string]*QuotaAwareGenerativeAIModel
}

// NewQuotaRegistry creates a registry.
//
// Inputs:
//   - limits: Requests per minute keyed by model name.
//   - defaultLimit: Requests per minute of models missing from limits.
func NewQuotaRegistry(limits map[string]int, defaultLimit int) *QuotaRegistry {
	return &QuotaRegistry{
		limits:   limits,
		fallback: defaultLimit,
		models:   make(map[string]*QuotaAwareGenerativeAIModel),
	}
}

// Model returns the limiter of the pair, creating it on first use.
func (r *QuotaRegistry) Model(credentialID, model string) *QuotaAwareGenerativeAIModel {
	key := credentialID + "|" + model
	r.mu.Lock()
	defer r.mu.Unlock()
	if q, ok := r.models[key]; ok {
		return q
	}
	limit, ok := r.limits[model]
	if !ok {
		limit = r.fallback
	}
	q := NewQuotaAwareModel(model, limit)
	r.models[key] = q
	return q
}
