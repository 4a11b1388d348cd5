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

// Package audio produces the separate voice-over track of the legacy flow.
package audio

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jaycherian/gcp-go-media-studio/internal/core/fallback"
	"github.com/jaycherian/gcp-go-media-studio/internal/core/model"
	"google.golang.org/genai"
)

const (
	DefaultSampleRate = 24000
	defaultVoice      = "Kore"
)

// ContentGenerator is the speech model surface.
type ContentGenerator interface {
	GenerateContent(ctx context.Context, credential fallback.Credential, model string, contents []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Speaker turns narration into WAV audio.
type Speaker struct {
	engine *fallback.Engine
	models ContentGenerator
	voice  string
}

// NewSpeaker creates a Speaker. An empty voice selects "Kore".
func NewSpeaker(engine *fallback.Engine, models ContentGenerator, voice string) *Speaker {
	if voice == "" {
		voice = defaultVoice
	}
	return &Speaker{engine: engine, models: models, voice: voice}
}

// VoiceOver synthesizes narration (task "speech") and returns it as WAV.
func (s *Speaker) VoiceOver(ctx context.Context, narration string) (model.Asset, error) {
	if strings.TrimSpace(narration) == "" {
		return model.Asset{}, errors.New("voice-over narration is empty")
	}
	contents := []*genai.Content{genai.NewContentFromText("Say naturally, relaxed and warm: "+narration, genai.RoleUser)}
	cfg := &genai.GenerateContentConfig{
		ResponseModalities: []string{string(genai.ModalityAudio)},
		SpeechConfig: &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: s.voice},
			},
		},
	}
	return fallback.Execute(ctx, s.engine, fallback.TaskSpeech,
		func(ctx context.Context, credential fallback.Credential, modelName string) (model.Asset, error) {
			resp, err := s.models.GenerateContent(ctx, credential, modelName, contents, cfg)
			if err != nil {
				return model.Asset{}, err
			}
			blob := audioBlob(resp)
			if blob == nil {
				return model.Asset{}, errors.New("speech synthesis returned no audio")
			}
			wav := PCMToWAV(blob.Data, SampleRate(blob.MIMEType), 1, 16)
			return model.Asset{Data: wav, MIMEType: "audio/wav"}, nil
		})
}

func audioBlob(resp *genai.GenerateContentResponse) *genai.Blob {
	if resp == nil {
		return nil
	}
	for _, candidate := range resp.Candidates {
		if candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part.InlineData != nil && len(part.InlineData.Data) > 0 {
				return part.InlineData
			}
		}
	}
	return nil
}

// SampleRate reads "rate=N" from an audio MIME type, 24000 when absent.
func SampleRate(mimeType string) int {
	for _, param := range strings.Split(mimeType, ";") {
		key, value, ok := strings.Cut(strings.TrimSpace(param), "=")
		if ok && key == "rate" {
			if rate, err := strconv.Atoi(value); err == nil && rate > 0 {
				return rate
			}
		}
	}
	return DefaultSampleRate
}

// PCMToWAV wraps little-endian PCM samples in a RIFF/WAVE header.
func PCMToWAV(pcm []byte, sampleRate, channels, bitsPerSample int) []byte {
	blockAlign := channels * bitsPerSample / 8
	var buf bytes.Buffer
	buf.Grow(44 + len(pcm))
	write := func(v any) { _ = binary.Write(&buf, binary.LittleEndian, v) }

	buf.WriteString("RIFF")
	write(uint32(36 + len(pcm)))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	write(uint32(16))
	write(uint16(1)) // PCM
	write(uint16(channels))
	write(uint32(sampleRate))
	write(uint32(sampleRate * blockAlign))
	write(uint16(blockAlign))
	write(uint16(bitsPerSample))
	buf.WriteString("data")
	write(uint32(len(pcm)))
	buf.Write(pcm)
	return buf.Bytes()
}

// Duration is the length of a WAV produced by PCMToWAV.
func Duration(wav []byte) (float64, error) {
	if len(wav) < 44 || string(wav[0:4]) != "RIFF" || string(wav[8:12]) != "WAVE" {
		return 0, fmt.Errorf("not a wav file")
	}
	byteRate := binary.LittleEndian.Uint32(wav[28:32])
	size := binary.LittleEndian.Uint32(wav[40:44])
	if byteRate == 0 {
		return 0, fmt.Errorf("wav has no byte rate")
	}
	return float64(size) / float64(byteRate), nil
}
