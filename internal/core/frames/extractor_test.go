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

package frames_test

import (
	"context"
	"errors"
	"image"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/jaycherian/gcp-go-media-studio/internal/cloud"
	"github.com/jaycherian/gcp-go-media-studio/internal/core/faults"
	"github.com/jaycherian/gcp-go-media-studio/internal/core/frames"
	"github.com/jaycherian/gcp-go-media-studio/internal/core/model"
	test "github.com/jaycherian/gcp-go-media-studio/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const probeJSON = `{"streams":[{"width":64,"height":36,"duration":"8.000000"}],"format":{"duration":"8.010000"}}`

// scriptedRunner answers ffprobe with probeJSON and lets frame decide what
// each ffmpeg invocation writes.
type scriptedRunner struct {
	frame func(n int, seek string) ([]byte, error)
	seeks []string
}

func (r *scriptedRunner) Run(_ context.Context, name string, args ...string) ([]byte, error) {
	if name == "ffprobe" {
		return []byte(probeJSON), nil
	}
	seek := ""
	for i, a := range args {
		if a == "-ss" {
			seek = args[i+1]
		}
	}
	n := len(r.seeks)
	r.seeks = append(r.seeks, seek)
	data, err := r.frame(n, seek)
	if err != nil {
		return nil, err
	}
	return nil, os.WriteFile(args[len(args)-1], data, 0o600)
}

func config() cloud.FramesConfig {
	return cloud.NewConfig().Frames
}

func TestExtractFirstOffset(t *testing.T) {
	runner := &scriptedRunner{frame: func(int, string) ([]byte, error) {
		return test.JPEG(64, 36), nil
	}}
	e := frames.NewFFmpegExtractor(runner, config())

	still, err := e.Extract(context.Background(), []byte("mp4"))
	require.NoError(t, err)
	assert.Equal(t, 64, still.Width)
	assert.Equal(t, 36, still.Height)
	assert.Equal(t, "image/jpeg", still.MIMEType)
	assert.Equal(t, []string{"7.880"}, runner.seeks)
}

func TestExtractWidensOffset(t *testing.T) {
	runner := &scriptedRunner{frame: func(n int, _ string) ([]byte, error) {
		switch n {
		case 0:
			return nil, errors.New("ffmpeg: exit status 1")
		case 1:
			return []byte{}, nil
		case 2:
			return []byte("not a jpeg"), nil
		}
		return test.JPEG(64, 36), nil
	}}
	e := frames.NewFFmpegExtractor(runner, config())

	_, err := e.Extract(context.Background(), []byte("mp4"))
	require.NoError(t, err)
	assert.Equal(t, []string{"7.880", "7.580", "7.280", "6.980"}, runner.seeks)
}

func TestExtractUndecodable(t *testing.T) {
	runner := &scriptedRunner{frame: func(int, string) ([]byte, error) {
		return nil, errors.New("ffmpeg: exit status 1")
	}}
	e := frames.NewFFmpegExtractor(runner, config())

	_, err := e.Extract(context.Background(), []byte("mp4"))
	var decodeErr *frames.DecodeError
	require.True(t, errors.As(err, &decodeErr))
	assert.Equal(t, faults.KindDecode, faults.Classify(err))
	assert.Len(t, runner.seeks, 7)
	assert.InDeltaSlice(t, []float64{0.12, 0.42, 0.72, 1.02, 1.32, 1.62, 1.92}, decodeErr.Offsets, 1e-9)
	assert.Equal(t, "6.080", runner.seeks[6])
}

func TestExtractEmptyClip(t *testing.T) {
	e := frames.NewFFmpegExtractor(&scriptedRunner{}, config())
	_, err := e.Extract(context.Background(), nil)
	var decodeErr *frames.DecodeError
	assert.True(t, errors.As(err, &decodeErr))
}

func TestExtractWithFFmpeg(t *testing.T) {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		t.Skip("ffmpeg not installed")
	}
	if _, err := exec.LookPath("ffprobe"); err != nil {
		t.Skip("ffprobe not installed")
	}
	clipPath := filepath.Join(t.TempDir(), "clip.mp4")
	out, err := exec.Command("ffmpeg", "-hide_banner", "-loglevel", "error", "-y",
		"-f", "lavfi", "-i", "testsrc=duration=2:size=320x180:rate=24",
		"-pix_fmt", "yuv420p", clipPath).CombinedOutput()
	require.NoError(t, err, string(out))
	clip, err := os.ReadFile(clipPath)
	require.NoError(t, err)

	still, err := frames.NewFFmpegExtractor(nil, config()).Extract(context.Background(), clip)
	require.NoError(t, err)
	assert.Equal(t, 320, still.Width)
	assert.Equal(t, 180, still.Height)
}

func TestCropToAspect(t *testing.T) {
	landscape := model.Asset{Data: test.PNG(160, 90)}

	portrait, err := frames.CropToAspect(landscape, "9:16")
	require.NoError(t, err)
	assert.Equal(t, 50, portrait.Width)
	assert.Equal(t, 90, portrait.Height)
	assert.Equal(t, "image/jpeg", portrait.MIMEType)

	same, err := frames.CropToAspect(landscape, "16:9")
	require.NoError(t, err)
	assert.Equal(t, landscape.Data, same.Data)

	_, err = frames.CropToAspect(landscape, "wide")
	assert.Error(t, err)
}

func TestCropRect(t *testing.T) {
	assert.Equal(t, image.Rect(35, 0, 125, 90), frames.CropRect(image.Rect(0, 0, 160, 90), 1, 1))
	assert.Equal(t, image.Rect(0, 10, 90, 100), frames.CropRect(image.Rect(0, 0, 90, 110), 1, 1))
}
