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

package test

import (
	"context"
	"errors"
	"sync"

	"github.com/jaycherian/gcp-go-media-studio/internal/core/fallback"
	"google.golang.org/genai"
)

// Call records one request made to FakeModels.
type Call struct {
	Method     string
	Credential fallback.Credential
	Model      string
	Contents   []*genai.Content
	Config     *genai.GenerateContentConfig
	Prompt     string
	Image      *genai.Image
	Video      *genai.GenerateVideosConfig
}

// Text returns the concatenated text parts of the call contents.
func (c Call) Text() string {
	out := ""
	for _, content := range c.Contents {
		for _, part := range content.Parts {
			out += part.Text
		}
	}
	return out
}

// Parts returns every part of the call contents in order.
func (c Call) Parts() []*genai.Part {
	var out []*genai.Part
	for _, content := range c.Contents {
		out = append(out, content.Parts...)
	}
	return out
}

// FakeModels is a scripted generative model service. Every handler receives
// the recorded call and its zero based index among calls of the same method.
// A nil handler fails the call.
type FakeModels struct {
	OnContent  func(call Call, n int) (*genai.GenerateContentResponse, error)
	OnVideos   func(call Call, n int) (*genai.GenerateVideosOperation, error)
	OnPoll     func(op *genai.GenerateVideosOperation, n int) (*genai.GenerateVideosOperation, error)
	OnDownload func(video *genai.Video) ([]byte, error)

	mu    sync.Mutex
	calls []Call
}

func (f *FakeModels) record(call Call) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c.Method == call.Method {
			n++
		}
	}
	f.calls = append(f.calls, call)
	return n
}

// Calls returns the recorded calls of method, or all calls when method is empty.
func (f *FakeModels) Calls(method string) []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Call
	for _, c := range f.calls {
		if method == "" || c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

func (f *FakeModels) GenerateContent(_ context.Context, credential fallback.Credential, model string, contents []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	call := Call{Method: "GenerateContent", Credential: credential, Model: model, Contents: contents, Config: cfg}
	n := f.record(call)
	if f.OnContent == nil {
		return nil, errors.New("unexpected GenerateContent call")
	}
	return f.OnContent(call, n)
}

func (f *FakeModels) GenerateVideos(_ context.Context, credential fallback.Credential, model string, prompt string, image *genai.Image, cfg *genai.GenerateVideosConfig) (*genai.GenerateVideosOperation, error) {
	call := Call{Method: "GenerateVideos", Credential: credential, Model: model, Prompt: prompt, Image: image, Video: cfg}
	n := f.record(call)
	if f.OnVideos == nil {
		return nil, errors.New("unexpected GenerateVideos call")
	}
	return f.OnVideos(call, n)
}

func (f *FakeModels) GetVideosOperation(_ context.Context, credential fallback.Credential, op *genai.GenerateVideosOperation) (*genai.GenerateVideosOperation, error) {
	n := f.record(Call{Method: "GetVideosOperation", Credential: credential})
	if f.OnPoll == nil {
		return &genai.GenerateVideosOperation{Name: op.Name, Done: true, Response: VideoResponse([]byte("clip"))}, nil
	}
	return f.OnPoll(op, n)
}

func (f *FakeModels) DownloadVideo(_ context.Context, credential fallback.Credential, video *genai.Video) ([]byte, error) {
	f.record(Call{Method: "DownloadVideo", Credential: credential})
	if f.OnDownload != nil {
		return f.OnDownload(video)
	}
	if video == nil || len(video.VideoBytes) == 0 {
		return nil, errors.New("video has no bytes")
	}
	return video.VideoBytes, nil
}

// TextResponse is a response with one text candidate.
func TextResponse(text string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{
		Content: genai.NewContentFromText(text, genai.RoleModel),
	}}}
}

// ImageResponse is a response with one inline image candidate.
func ImageResponse(data []byte, mimeType string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{
		Content: genai.NewContentFromParts([]*genai.Part{genai.NewPartFromBytes(data, mimeType)}, genai.RoleModel),
	}}}
}

// AudioResponse is a response with one inline audio candidate.
func AudioResponse(pcm []byte) *genai.GenerateContentResponse {
	return ImageResponse(pcm, "audio/L16;codec=pcm;rate=24000")
}

// VideoResponse is a finished operation response holding one inline clip.
func VideoResponse(data []byte) *genai.GenerateVideosResponse {
	return &genai.GenerateVideosResponse{GeneratedVideos: []*genai.GeneratedVideo{{
		Video: &genai.Video{VideoBytes: data, MIMEType: "video/mp4"},
	}}}
}

// Unavailable is a transient service error.
func Unavailable() error {
	return genai.APIError{Code: 503, Status: "UNAVAILABLE", Message: "The model is overloaded."}
}

// InvalidArgument is a request rejected by the service.
func InvalidArgument() error {
	return genai.APIError{Code: 400, Status: "INVALID_ARGUMENT", Message: "Request contains an invalid argument."}
}
