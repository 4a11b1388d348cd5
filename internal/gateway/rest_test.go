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

package gateway_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/jaycherian/gcp-go-media-studio/internal/cloud"
	"github.com/jaycherian/gcp-go-media-studio/internal/core/fallback"
	"github.com/jaycherian/gcp-go-media-studio/internal/core/model"
	"github.com/jaycherian/gcp-go-media-studio/internal/gateway"
	test "github.com/jaycherian/gcp-go-media-studio/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captured struct {
	Method string
	Path   string
	Token  string
	JSON   map[string]any
	Fields map[string]string
	File   []byte
	Name   string
	Type   string
}

type backend struct {
	mu       sync.Mutex
	requests []captured
	status   int
}

func (b *backend) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c := captured{Method: r.Method, Path: r.URL.Path, Token: r.Header.Get("token-mabar"), Fields: map[string]string{}}
		if r.Method == http.MethodPost {
			if mr, err := r.MultipartReader(); err == nil {
				for {
					part, err := mr.NextPart()
					if errors.Is(err, io.EOF) {
						break
					}
					if !assert.NoError(t, err) {
						break
					}
					data, _ := io.ReadAll(part)
					if part.FormName() == "file" {
						c.File, c.Name, c.Type = data, part.FileName(), part.Header.Get("Content-Type")
					} else {
						c.Fields[part.FormName()] = string(data)
					}
				}
			} else {
				_ = json.NewDecoder(r.Body).Decode(&c.JSON)
			}
		}
		b.mu.Lock()
		b.requests = append(b.requests, c)
		status := b.status
		b.mu.Unlock()
		if status != 0 {
			http.Error(w, "backend down", status)
			return
		}
		switch r.URL.Path {
		case "/api/ugc":
			_, _ = io.WriteString(w, `{"ugc":{"id":42,"name":"Glow Serum #1","items":[{"id":7},{"id":"8"}]}}`)
		case "/api/api_keys":
			_, _ = io.WriteString(w, `{"api_keys":[
				{"id":1,"key_value":"AIza-one","label":"studio","is_active":1},
				{"id":2,"key_value":"AIza-two","is_active":0},
				{"id":3,"key_value":"AIza-three","key_name":"backup","is_active":true}]}`)
		default:
			_, _ = io.WriteString(w, `{}`)
		}
	}
}

func (b *backend) Requests() []captured {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]captured(nil), b.requests...)
}

func (b *backend) fail(status int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.status = status
}

func newREST(t *testing.T) (*gateway.REST, *backend) {
	b := &backend{}
	srv := httptest.NewServer(b.handler(t))
	t.Cleanup(srv.Close)
	rest, err := gateway.NewREST(cloud.GatewayConfig{
		BaseURL:     srv.URL + "/api/",
		Token:       "secret",
		TokenHeader: "token-mabar",
		MachineID:   "STUDIO_01",
		Timeout:     5 * time.Second,
	}, nil)
	require.NoError(t, err)
	return rest, b
}

func TestRESTInitBatch(t *testing.T) {
	rest, b := newREST(t)
	req := test.GetTestProductionRequest()
	req.Amount = 2

	handle, err := rest.InitBatch(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "42", handle.BatchID)
	assert.Equal(t, []string{"7", "8"}, handle.ItemIDs)

	requests := b.Requests()
	require.Len(t, requests, 1)
	sent := requests[0]
	assert.Equal(t, "/api/ugc", sent.Path)
	assert.Equal(t, "secret", sent.Token)
	assert.Equal(t, "STUDIO_01", sent.JSON["machine_id"])
	assert.Equal(t, float64(2), sent.JSON["amount"])
	assert.Equal(t, req.AspectRatio, sent.JSON["aspect_ratio"])
}

func TestRESTItemCalls(t *testing.T) {
	rest, b := newREST(t)
	ctx := context.Background()

	require.NoError(t, rest.SetStep(ctx, "42", "7", model.StatusGeneratingVideo))
	require.NoError(t, rest.SetAnalysis(ctx, "42", "7", `{"description_first_image":"a shelf"}`))
	require.NoError(t, rest.FailItem(ctx, "42", "7", "[Item Error] boom"))
	require.NoError(t, rest.FailBatch(ctx, "42", "all items failed"))

	requests := b.Requests()
	require.Len(t, requests, 4)
	assert.Equal(t, "/api/ugc/42/item/7/step", requests[0].Path)
	assert.Equal(t, "GENERATING_VIDEO", requests[0].JSON["step"])
	assert.Equal(t, "/api/ugc/42/item/7/set_analyze_scene", requests[1].Path)
	assert.Equal(t, `{"description_first_image":"a shelf"}`, requests[1].JSON["analyze_scene_json"])
	assert.Equal(t, "[Item Error] boom", requests[2].JSON["failed_reason"])
	assert.Equal(t, "/api/ugc/42/fail", requests[3].Path)
}

func TestRESTUploadsMultipart(t *testing.T) {
	rest, b := newREST(t)
	clip := model.Asset{Data: []byte("mp4-bytes"), MIMEType: "video/mp4"}

	require.NoError(t, rest.SetVideoFile(context.Background(), "42", "7", clip, 2))

	requests := b.Requests()
	require.Len(t, requests, 1)
	sent := requests[0]
	assert.Equal(t, "/api/ugc/42/item/7/save_video_file", sent.Path)
	assert.Equal(t, "2", sent.Fields["video_index"])
	assert.Equal(t, "item_7.mp4", sent.Name)
	assert.Equal(t, "video/mp4", sent.Type)
	assert.Equal(t, clip.Data, sent.File)
}

func TestRESTStatusError(t *testing.T) {
	rest, b := newREST(t)
	b.fail(http.StatusBadGateway)

	err := rest.CompleteItem(context.Background(), "42", "7")
	var statusErr *gateway.StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusBadGateway, statusErr.Status)
	assert.Equal(t, gateway.OpComplete, statusErr.Op)
}

func TestRESTAPIKeys(t *testing.T) {
	rest, _ := newREST(t)

	keys, err := rest.APIKeys(context.Background())
	require.NoError(t, err)
	require.Len(t, keys, 2)
	assert.Equal(t, fallback.Credential{ID: "1", Value: "AIza-one", Label: "studio", Origin: fallback.OriginRemote}, keys[0])
	assert.Equal(t, "backup", keys[1].Label)
}

func TestNewRESTRequiresBaseURL(t *testing.T) {
	_, err := gateway.NewREST(cloud.GatewayConfig{}, nil)
	assert.Error(t, err)
}
