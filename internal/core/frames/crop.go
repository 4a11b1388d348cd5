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

package frames

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"strconv"
	"strings"

	"github.com/jaycherian/gcp-go-media-studio/internal/core/model"
)

// ParseAspect parses "W:H".
func ParseAspect(ratio string) (w, h int, err error) {
	parts := strings.Split(ratio, ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid aspect ratio %q", ratio)
	}
	if w, err = strconv.Atoi(strings.TrimSpace(parts[0])); err != nil || w <= 0 {
		return 0, 0, fmt.Errorf("invalid aspect ratio %q", ratio)
	}
	if h, err = strconv.Atoi(strings.TrimSpace(parts[1])); err != nil || h <= 0 {
		return 0, 0, fmt.Errorf("invalid aspect ratio %q", ratio)
	}
	return w, h, nil
}

// CropRect is the largest centered rectangle of bounds with ratio w:h.
func CropRect(bounds image.Rectangle, w, h int) image.Rectangle {
	width, height := bounds.Dx(), bounds.Dy()
	if width*h > height*w {
		target := height * w / h
		x := bounds.Min.X + (width-target)/2
		return image.Rect(x, bounds.Min.Y, x+target, bounds.Max.Y)
	}
	target := width * h / w
	y := bounds.Min.Y + (height-target)/2
	return image.Rect(bounds.Min.X, y, bounds.Max.X, y+target)
}

type subImager interface {
	SubImage(r image.Rectangle) image.Image
}

// CropToAspect center crops asset to ratio and re-encodes it as JPEG. An
// asset that already has the ratio is returned unchanged.
func CropToAspect(asset model.Asset, ratio string) (model.Asset, error) {
	w, h, err := ParseAspect(ratio)
	if err != nil {
		return model.Asset{}, err
	}
	img, _, err := image.Decode(bytes.NewReader(asset.Data))
	if err != nil {
		return model.Asset{}, fmt.Errorf("failed to decode still: %w", err)
	}
	bounds := img.Bounds()
	rect := CropRect(bounds, w, h)
	if rect == bounds {
		asset.Width, asset.Height = bounds.Dx(), bounds.Dy()
		return asset, nil
	}
	sub, ok := img.(subImager)
	if !ok {
		return model.Asset{}, fmt.Errorf("still of type %T cannot be cropped", img)
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, sub.SubImage(rect), &jpeg.Options{Quality: 90}); err != nil {
		return model.Asset{}, fmt.Errorf("failed to encode still: %w", err)
	}
	return model.Asset{Data: buf.Bytes(), MIMEType: "image/jpeg", Width: rect.Dx(), Height: rect.Dy()}, nil
}
