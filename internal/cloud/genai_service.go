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
// This file exposes the generative model surface used by the pipeline. Calls
// are addressed by (credential, model): the ClientPool keeps one *genai.Client
// per credential, and every call first waits on the quota limiter of its pair.
//
// Logic Flow:
//  1. A pipeline stage, running inside a fallback attempt, calls GenAIService
//     with the credential and model picked by the engine.
//  2. The service waits on the pair's QuotaAwareGenerativeAIModel.
//  3. The pooled client for the credential performs the call.
//  4. Token usage is recorded on OpenTelemetry counters.
package cloud

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"cloud.google.com/go/storage"
	"github.com/jaycherian/gcp-go-media-studio/internal/core/fallback"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"google.golang.org/genai"
)

// ClientFactory creates the client of one credential.
type ClientFactory func(ctx context.Context, credential fallback.Credential) (*genai.Client, error)

// NewClientFactory builds clients for the configured backend. The Gemini API
// backend authenticates with the credential value; the Vertex backend uses
// the project's application default credentials.
func NewClientFactory(config *Config) ClientFactory {
	return func(ctx context.Context, credential fallback.Credential) (*genai.Client, error) {
		cc := &genai.ClientConfig{Backend: genai.BackendGeminiAPI, APIKey: credential.Value}
		if strings.EqualFold(config.Credentials.Backend, "vertex") {
			cc = &genai.ClientConfig{
				Backend:  genai.BackendVertexAI,
				Project:  config.Application.GoogleProjectId,
				Location: config.Application.GoogleLocation,
			}
		}
		return genai.NewClient(ctx, cc)
	}
}

// ClientPool caches one client per credential.
type ClientPool struct {
	mu      sync.Mutex
	factory ClientFactory
	clients map[string]*genai.Client
}

// NewClientPool creates an empty pool.
func NewClientPool(factory ClientFactory) *ClientPool {
	return &ClientPool{factory: factory, clients: make(map[string]*genai.Client)}
}

// Client returns the client of credential, creating it on first use.
func (p *ClientPool) Client(ctx context.Context, credential fallback.Credential) (*genai.Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if client, ok := p.clients[credential.Value]; ok {
		return client, nil
	}
	client, err := p.factory(ctx, credential)
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client for %s: %w", credential, err)
	}
	p.clients[credential.Value] = client
	return client, nil
}

// GenAIService performs generative calls for a (credential, model) pair.
type GenAIService struct {
	pool    *ClientPool
	quotas  *QuotaRegistry
	storage *storage.Client // Optional, reads gs:// video results.

	inputTokens  metric.Int64Counter
	outputTokens metric.Int64Counter
}

// NewGenAIService creates the service.
//
// Inputs:
//   - pool: Clients per credential.
//   - quotas: Limiters per (credential, model).
//   - storageClient: Used to read gs:// video results; may be nil.
func NewGenAIService(pool *ClientPool, quotas *QuotaRegistry, storageClient *storage.Client) *GenAIService {
	meter := otel.Meter("github.com/jaycherian/gcp-go-media-studio/genai")
	inputTokens, err := meter.Int64Counter("genai.counter.input_tokens")
	if err != nil {
		slog.Warn("failed to create input token counter", "error", err)
	}
	outputTokens, err := meter.Int64Counter("genai.counter.output_tokens")
	if err != nil {
		slog.Warn("failed to create output token counter", "error", err)
	}
	return &GenAIService{
		pool:         pool,
		quotas:       quotas,
		storage:      storageClient,
		inputTokens:  inputTokens,
		outputTokens: outputTokens,
	}
}

func (s *GenAIService) client(ctx context.Context, credential fallback.Credential, model string) (*genai.Client, error) {
	if err := s.quotas.Model(credential.ID, model).Wait(ctx); err != nil {
		return nil, err
	}
	return s.pool.Client(ctx, credential)
}

// GenerateContent calls Models.GenerateContent.
func (s *GenAIService) GenerateContent(ctx context.Context, credential fallback.Credential, model string, contents []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	client, err := s.client(ctx, credential, model)
	if err != nil {
		return nil, err
	}
	resp, err := client.Models.GenerateContent(ctx, model, contents, cfg)
	if err != nil {
		return nil, err
	}
	if resp.UsageMetadata != nil {
		attrs := metric.WithAttributes(attribute.String("model", model))
		if s.inputTokens != nil {
			s.inputTokens.Add(ctx, int64(resp.UsageMetadata.PromptTokenCount), attrs)
		}
		if s.outputTokens != nil {
			s.outputTokens.Add(ctx, int64(resp.UsageMetadata.CandidatesTokenCount), attrs)
		}
	}
	return resp, nil
}

// GenerateVideos submits a video job.
func (s *GenAIService) GenerateVideos(ctx context.Context, credential fallback.Credential, model string, prompt string, image *genai.Image, cfg *genai.GenerateVideosConfig) (*genai.GenerateVideosOperation, error) {
	client, err := s.client(ctx, credential, model)
	if err != nil {
		return nil, err
	}
	return client.Models.GenerateVideos(ctx, model, prompt, image, forBackend(client, cfg))
}

// forBackend drops the settings the Gemini API rejects. Audio generation is a
// Vertex AI parameter, Veo 3.x clips on the Gemini API carry audio anyway.
func forBackend(client *genai.Client, cfg *genai.GenerateVideosConfig) *genai.GenerateVideosConfig {
	if cfg == nil || cfg.GenerateAudio == nil || client.ClientConfig().Backend == genai.BackendVertexAI {
		return cfg
	}
	trimmed := *cfg
	trimmed.GenerateAudio = nil
	return &trimmed
}

// GetVideosOperation refreshes a video job. Status checks are not rate limited.
func (s *GenAIService) GetVideosOperation(ctx context.Context, credential fallback.Credential, op *genai.GenerateVideosOperation) (*genai.GenerateVideosOperation, error) {
	client, err := s.pool.Client(ctx, credential)
	if err != nil {
		return nil, err
	}
	return client.Operations.GetVideosOperation(ctx, op, nil)
}

// DownloadVideo returns the bytes of a generated video: inline bytes when the
// job returned them, a Cloud Storage read for gs:// results, otherwise a
// Files.Download with the credential that produced the job.
func (s *GenAIService) DownloadVideo(ctx context.Context, credential fallback.Credential, video *genai.Video) ([]byte, error) {
	if video == nil {
		return nil, fmt.Errorf("video result is empty")
	}
	if len(video.VideoBytes) > 0 {
		return video.VideoBytes, nil
	}
	if strings.HasPrefix(video.URI, "gs://") {
		if s.storage == nil {
			return nil, fmt.Errorf("video %s is in Cloud Storage but no storage client is configured", video.URI)
		}
		obj, err := ParseGCSURI(video.URI)
		if err != nil {
			return nil, err
		}
		reader, err := s.storage.Bucket(obj.Bucket).Object(obj.Name).NewReader(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to open %s: %w", video.URI, err)
		}
		defer reader.Close()
		return io.ReadAll(reader)
	}
	client, err := s.pool.Client(ctx, credential)
	if err != nil {
		return nil, err
	}
	data, err := client.Files.Download(ctx, genai.NewDownloadURIFromVideo(video), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to download generated video: %w", err)
	}
	return data, nil
}
