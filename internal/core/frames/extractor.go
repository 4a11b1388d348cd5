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

// Package frames extracts the continuity frame of a clip.
//
// Logic Flow:
//  1. Write the clip to a scratch directory and probe its duration and frame
//     size with ffprobe.
//  2. Seek to duration - offset and render one frame as JPEG with a fresh
//     ffmpeg process. The offset starts at InitialOffset.
//  3. An ffmpeg failure, an empty file or a frame without dimensions discards
//     that process; the offset grows by OffsetStep and a new process is
//     started.
//  4. Once the offset would pass MaxOffset the clip is undecodable and a
//     *DecodeError is returned.
package frames

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	"log/slog"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"

	"github.com/jaycherian/gcp-go-media-studio/internal/cloud"
	"github.com/jaycherian/gcp-go-media-studio/internal/core/faults"
	"github.com/jaycherian/gcp-go-media-studio/internal/core/model"
)

// Extractor derives a still from a clip.
type Extractor interface {
	Extract(ctx context.Context, clip []byte) (model.Asset, error)
}

// Runner runs an external program and returns its standard output.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner runs programs with os/exec.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return out, fmt.Errorf("%s: %w: %s", name, err, bytes.TrimSpace(stderr.Bytes()))
	}
	return out, nil
}

// DecodeError is returned when no offset produced a frame.
type DecodeError struct {
	Offsets []float64
	Err     error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("undecodable media after %d attempt(s): %v", len(e.Offsets), e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

func (e *DecodeError) Kind() faults.Kind { return faults.KindDecode }

// Probe is the stream information of a clip.
type Probe struct {
	Duration float64
	Width    int
	Height   int
}

// FFmpegExtractor implements Extractor with ffprobe and ffmpeg.
type FFmpegExtractor struct {
	runner  Runner
	ffmpeg  string
	ffprobe string
	initial float64
	step    float64
	ceiling float64
	quality int
}

// NewFFmpegExtractor creates an extractor. A nil runner uses ExecRunner.
func NewFFmpegExtractor(runner Runner, cfg cloud.FramesConfig) *FFmpegExtractor {
	if runner == nil {
		runner = ExecRunner{}
	}
	e := &FFmpegExtractor{
		runner:  runner,
		ffmpeg:  cfg.FFmpegPath,
		ffprobe: cfg.FFprobePath,
		initial: cfg.InitialOffset,
		step:    cfg.OffsetStep,
		ceiling: cfg.MaxOffset,
		quality: cfg.JPEGQuality,
	}
	if e.ffmpeg == "" {
		e.ffmpeg = "ffmpeg"
	}
	if e.ffprobe == "" {
		e.ffprobe = "ffprobe"
	}
	if e.initial <= 0 {
		e.initial = 0.12
	}
	if e.step <= 0 {
		e.step = 0.3
	}
	if e.ceiling < e.initial {
		e.ceiling = e.initial
	}
	if e.quality <= 0 {
		e.quality = 3
	}
	return e
}

// Offsets returns the seek offsets tried, in order.
func (e *FFmpegExtractor) Offsets() []float64 {
	n := int(math.Floor((e.ceiling-e.initial)/e.step+1e-9)) + 1
	out := make([]float64, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, e.initial+float64(i)*e.step)
	}
	return out
}

// Extract returns a JPEG frame taken shortly before the end of clip.
func (e *FFmpegExtractor) Extract(ctx context.Context, clip []byte) (model.Asset, error) {
	if len(clip) == 0 {
		return model.Asset{}, &DecodeError{Err: errors.New("clip is empty")}
	}
	dir, err := os.MkdirTemp("", "frames-")
	if err != nil {
		return model.Asset{}, fmt.Errorf("failed to create scratch dir: %w", err)
	}
	defer os.RemoveAll(dir)

	input := filepath.Join(dir, "clip.mp4")
	if err := os.WriteFile(input, clip, 0o600); err != nil {
		return model.Asset{}, fmt.Errorf("failed to write clip: %w", err)
	}

	probe, err := e.Probe(ctx, input)
	if err != nil {
		return model.Asset{}, &DecodeError{Err: err}
	}

	var tried []float64
	var last error
	for i, offset := range e.Offsets() {
		if err := ctx.Err(); err != nil {
			return model.Asset{}, err
		}
		tried = append(tried, offset)
		output := filepath.Join(dir, fmt.Sprintf("frame-%d.jpg", i))
		frame, err := e.render(ctx, input, output, math.Max(probe.Duration-offset, 0))
		if err == nil {
			if frame.Width != probe.Width || frame.Height != probe.Height {
				slog.WarnContext(ctx, "frame size differs from stream size",
					"frame_width", frame.Width, "frame_height", frame.Height, "width", probe.Width, "height", probe.Height)
			}
			return frame, nil
		}
		last = err
		slog.DebugContext(ctx, "frame extraction attempt failed", "offset", offset, "error", err)
	}
	return model.Asset{}, &DecodeError{Offsets: tried, Err: last}
}

func (e *FFmpegExtractor) render(ctx context.Context, input, output string, at float64) (model.Asset, error) {
	_, err := e.runner.Run(ctx, e.ffmpeg,
		"-hide_banner", "-loglevel", "error", "-y",
		"-ss", strconv.FormatFloat(at, 'f', 3, 64),
		"-i", input,
		"-frames:v", "1",
		"-q:v", strconv.Itoa(e.quality),
		output,
	)
	if err != nil {
		return model.Asset{}, err
	}
	data, err := os.ReadFile(output)
	if err != nil {
		return model.Asset{}, fmt.Errorf("no frame written at %.3fs: %w", at, err)
	}
	if len(data) == 0 {
		return model.Asset{}, fmt.Errorf("empty frame at %.3fs", at)
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return model.Asset{}, fmt.Errorf("corrupt frame at %.3fs: %w", at, err)
	}
	if cfg.Width == 0 || cfg.Height == 0 {
		return model.Asset{}, fmt.Errorf("zero dimension frame at %.3fs", at)
	}
	return model.Asset{Data: data, MIMEType: "image/jpeg", Width: cfg.Width, Height: cfg.Height}, nil
}

type probeOutput struct {
	Streams []struct {
		Width    int    `json:"width"`
		Height   int    `json:"height"`
		Duration string `json:"duration"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// Probe reads the duration and frame size of the first video stream.
func (e *FFmpegExtractor) Probe(ctx context.Context, input string) (Probe, error) {
	out, err := e.runner.Run(ctx, e.ffprobe,
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=width,height,duration:format=duration",
		"-of", "json",
		input,
	)
	if err != nil {
		return Probe{}, err
	}
	var parsed probeOutput
	if err := json.Unmarshal(out, &parsed); err != nil {
		return Probe{}, fmt.Errorf("invalid ffprobe output: %w", err)
	}
	if len(parsed.Streams) == 0 {
		return Probe{}, errors.New("clip has no video stream")
	}
	stream := parsed.Streams[0]
	duration, err := strconv.ParseFloat(stream.Duration, 64)
	if err != nil || duration <= 0 {
		duration, err = strconv.ParseFloat(parsed.Format.Duration, 64)
		if err != nil {
			return Probe{}, fmt.Errorf("clip has no duration: %w", err)
		}
	}
	if stream.Width == 0 || stream.Height == 0 {
		return Probe{}, errors.New("clip has zero frame dimensions")
	}
	return Probe{Duration: duration, Width: stream.Width, Height: stream.Height}, nil
}
