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

package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strconv"
	"strings"
	"time"

	"github.com/jaycherian/gcp-go-media-studio/internal/cloud"
	"github.com/jaycherian/gcp-go-media-studio/internal/core/fallback"
	"github.com/jaycherian/gcp-go-media-studio/internal/core/model"
	"github.com/jaycherian/gcp-go-media-studio/internal/core/production"
)

// StatusError is a non-2xx response of the backend.
type StatusError struct {
	Op     string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("gateway %s: status %d: %s", e.Op, e.Status, e.Body)
}

// ID accepts numeric and string identifiers.
type ID string

func (id *ID) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*id = ID(n.String())
	return nil
}

// REST is the studio backend client.
type REST struct {
	baseURL     string
	token       string
	tokenHeader string
	machineID   string
	httpClient  *http.Client
}

// NewREST creates a client for cfg. A nil httpClient gets one with the
// configured timeout.
func NewREST(cfg cloud.GatewayConfig, httpClient *http.Client) (*REST, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, errors.New("gateway base url is not configured")
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	header := cfg.TokenHeader
	if header == "" {
		header = "token-mabar"
	}
	return &REST{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		token:       cfg.ResolveToken(),
		tokenHeader: header,
		machineID:   cfg.MachineID,
		httpClient:  httpClient,
	}, nil
}

type initRequest struct {
	Name           string `json:"name"`
	MachineID      string `json:"machine_id,omitempty"`
	ProductID      int    `json:"product_id"`
	Characters     []int  `json:"characters"`
	Prompt         string `json:"prompt"`
	NegativePrompt string `json:"negative_prompt,omitempty"`
	Amount         int    `json:"amount"`
	Resolution     string `json:"resolution"`
	AspectRatio    string `json:"aspect_ratio"`
	MinDuration    int    `json:"min_duration"`
}

type initResponse struct {
	UGC struct {
		ID    ID     `json:"id"`
		Name  string `json:"name"`
		Items []struct {
			ID ID `json:"id"`
		} `json:"items"`
	} `json:"ugc"`
}

// InitBatch creates the batch and its items on the backend.
func (r *REST) InitBatch(ctx context.Context, req model.ProductionRequest) (production.BatchHandle, error) {
	payload := initRequest{
		Name:           req.Name,
		MachineID:      r.machineID,
		ProductID:      req.Product.ID,
		Prompt:         req.Prompt,
		NegativePrompt: req.NegativePrompt,
		Amount:         req.Amount,
		Resolution:     req.Resolution,
		AspectRatio:    req.AspectRatio,
		MinDuration:    req.MinDuration,
	}
	for _, c := range req.Characters {
		payload.Characters = append(payload.Characters, c.ID)
	}
	var resp initResponse
	if err := r.postJSON(ctx, OpInit, "/ugc", payload, &resp); err != nil {
		return production.BatchHandle{}, err
	}
	handle := production.BatchHandle{BatchID: string(resp.UGC.ID)}
	for _, item := range resp.UGC.Items {
		handle.ItemIDs = append(handle.ItemIDs, string(item.ID))
	}
	return handle, nil
}

func itemPath(batchID, itemID, op string) string {
	return fmt.Sprintf("/ugc/%s/item/%s/%s", batchID, itemID, op)
}

func (r *REST) SetStep(ctx context.Context, batchID, itemID string, status model.TaskStatus) error {
	return r.postJSON(ctx, OpStep, itemPath(batchID, itemID, OpStep), map[string]string{"step": string(status)}, nil)
}

func (r *REST) SetStoryboard(ctx context.Context, batchID, itemID string, chunks []model.StoryboardChunk) error {
	return r.postJSON(ctx, OpStoryboard, itemPath(batchID, itemID, OpStoryboard), map[string]any{"storyboard": chunks}, nil)
}

func (r *REST) SetAnalysis(ctx context.Context, batchID, itemID string, analysis string) error {
	return r.postJSON(ctx, OpAnalysis, itemPath(batchID, itemID, OpAnalysis), map[string]string{"analyze_scene_json": analysis}, nil)
}

func (r *REST) SetSceneImage(ctx context.Context, batchID, itemID string, img model.Asset, index int) error {
	return r.postFile(ctx, OpSceneImage, itemPath(batchID, itemID, OpSceneImage),
		"image_index", index, fmt.Sprintf("scene_%d.png", index), img)
}

func (r *REST) SetVideoFile(ctx context.Context, batchID, itemID string, clip model.Asset, index int) error {
	return r.postFile(ctx, OpVideoFile, itemPath(batchID, itemID, OpVideoFile),
		"video_index", index, fmt.Sprintf("item_%s.mp4", itemID), clip)
}

func (r *REST) SetVoiceOver(ctx context.Context, batchID, itemID string, wav model.Asset, index int) error {
	return r.postFile(ctx, OpVoiceOver, itemPath(batchID, itemID, OpVoiceOver),
		"voice_over_index", index, fmt.Sprintf("item_%s.wav", itemID), wav)
}

func (r *REST) CompleteItem(ctx context.Context, batchID, itemID string) error {
	return r.postJSON(ctx, OpComplete, itemPath(batchID, itemID, OpComplete), struct{}{}, nil)
}

func (r *REST) FailItem(ctx context.Context, batchID, itemID, reason string) error {
	return r.postJSON(ctx, OpFail, itemPath(batchID, itemID, OpFail), map[string]string{"failed_reason": reason}, nil)
}

func (r *REST) CompleteBatch(ctx context.Context, batchID string) error {
	return r.postJSON(ctx, OpBatchComplete, fmt.Sprintf("/ugc/%s/complete", batchID), struct{}{}, nil)
}

func (r *REST) FailBatch(ctx context.Context, batchID, reason string) error {
	return r.postJSON(ctx, OpBatchFail, fmt.Sprintf("/ugc/%s/fail", batchID), map[string]string{"failed_reason": reason}, nil)
}

type apiKeysResponse struct {
	APIKeys []struct {
		ID       ID     `json:"id"`
		KeyName  string `json:"key_name"`
		KeyValue string `json:"key_value"`
		Label    string `json:"label"`
		IsActive any    `json:"is_active"`
	} `json:"api_keys"`
}

// APIKeys lists the active keys of the system pool. It has the shape of a
// fallback.RefreshFunc.
func (r *REST) APIKeys(ctx context.Context) ([]fallback.Credential, error) {
	req, err := r.newRequest(ctx, http.MethodGet, "/api_keys", nil)
	if err != nil {
		return nil, err
	}
	var resp apiKeysResponse
	if err := r.do(req, "api_keys", &resp); err != nil {
		return nil, err
	}
	var out []fallback.Credential
	for _, k := range resp.APIKeys {
		if !active(k.IsActive) || k.KeyValue == "" {
			continue
		}
		label := k.Label
		if label == "" {
			label = k.KeyName
		}
		out = append(out, fallback.Credential{ID: string(k.ID), Value: k.KeyValue, Label: label, Origin: fallback.OriginRemote})
	}
	return out, nil
}

// active reads is_active, which the backend sends as a bool or as 0/1.
func active(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case float64:
		return t != 0
	case string:
		b, err := strconv.ParseBool(t)
		return err == nil && b
	}
	return v == nil
}

func (r *REST) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, r.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set(r.tokenHeader, r.token)
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func (r *REST) postJSON(ctx context.Context, op, path string, payload any, out any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("gateway %s: %w", op, err)
	}
	req, err := r.newRequest(ctx, http.MethodPost, path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return r.do(req, op, out)
}

func (r *REST) postFile(ctx context.Context, op, path, indexField string, index int, filename string, asset model.Asset) error {
	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	if err := form.WriteField(indexField, strconv.Itoa(index)); err != nil {
		return err
	}
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, filename))
	contentType := asset.MIMEType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	header.Set("Content-Type", contentType)
	part, err := form.CreatePart(header)
	if err != nil {
		return err
	}
	if _, err := part.Write(asset.Data); err != nil {
		return err
	}
	if err := form.Close(); err != nil {
		return err
	}
	req, err := r.newRequest(ctx, http.MethodPost, path, &body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", form.FormDataContentType())
	return r.do(req, op, nil)
}

func (r *REST) do(req *http.Request, op string, out any) error {
	start := time.Now()
	resp, err := r.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("gateway %s: %w", op, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("gateway %s: read response: %w", op, err)
	}
	slog.DebugContext(req.Context(), "gateway call", "op", op, "status", resp.StatusCode, "elapsed", time.Since(start))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{Op: op, Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	if out == nil || len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("gateway %s: decode response: %w", op, err)
	}
	return nil
}
