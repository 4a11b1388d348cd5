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

package visual

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/h2non/filetype"
	"github.com/jaycherian/gcp-go-media-studio/internal/cloud"
	"github.com/jaycherian/gcp-go-media-studio/internal/core/faults"
	"github.com/jaycherian/gcp-go-media-studio/internal/core/model"
	"golang.org/x/sync/errgroup"
)

const maxReferenceBytes = 20 << 20

// Fetcher loads reference images from https or gs:// locations.
type Fetcher struct {
	httpClient    *http.Client
	storageClient *storage.Client // Optional, required for gs:// references.
	limit         int             // Concurrent downloads.
}

// NewFetcher creates a Fetcher. A nil httpClient uses http.DefaultClient.
func NewFetcher(httpClient *http.Client, storageClient *storage.Client) *Fetcher {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Fetcher{httpClient: httpClient, storageClient: storageClient, limit: 4}
}

// FetchAll loads every location concurrently. The result keeps the order of
// locations; the first failure cancels the remaining downloads.
func (f *Fetcher) FetchAll(ctx context.Context, locations []string) ([]model.Asset, error) {
	out := make([]model.Asset, len(locations))
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(f.limit)
	for i, location := range locations {
		group.Go(func() error {
			asset, err := f.Fetch(groupCtx, location)
			if err != nil {
				return err
			}
			out[i] = asset
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Fetch loads one reference image.
func (f *Fetcher) Fetch(ctx context.Context, location string) (model.Asset, error) {
	var data []byte
	var err error
	switch {
	case location == "":
		return model.Asset{}, faults.Fatal(errors.New("reference image location is empty"))
	case strings.HasPrefix(location, "gs://"):
		data, err = f.readObject(ctx, location)
	case strings.HasPrefix(location, "http://"), strings.HasPrefix(location, "https://"):
		data, err = f.get(ctx, location)
	default:
		return model.Asset{}, faults.Fatal(fmt.Errorf("unsupported reference location %q", location))
	}
	if err != nil {
		return model.Asset{}, err
	}
	return DecodeAsset(data, location)
}

// DecodeAsset checks that data is an image and reads its dimensions.
func DecodeAsset(data []byte, source string) (model.Asset, error) {
	if !filetype.IsImage(data) {
		return model.Asset{}, faults.Fatal(fmt.Errorf("reference %s is not an image", source))
	}
	kind, _ := filetype.Match(data)
	asset := model.Asset{Data: data, MIMEType: kind.MIME.Value}
	if cfg, _, err := image.DecodeConfig(bytes.NewReader(data)); err == nil {
		asset.Width, asset.Height = cfg.Width, cfg.Height
	}
	return asset, nil
}

func (f *Fetcher) get(ctx context.Context, location string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return nil, faults.Fatal(fmt.Errorf("invalid reference url %q: %w", location, err))
	}
	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch reference %s: %w", location, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to fetch reference %s: status %d", location, resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxReferenceBytes))
}

func (f *Fetcher) readObject(ctx context.Context, location string) ([]byte, error) {
	if f.storageClient == nil {
		return nil, faults.Fatal(fmt.Errorf("no storage client for reference %s", location))
	}
	obj, err := cloud.ParseGCSURI(location)
	if err != nil {
		return nil, faults.Fatal(err)
	}
	reader, err := f.storageClient.Bucket(obj.Bucket).Object(obj.Name).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open reference %s: %w", location, err)
	}
	defer reader.Close()
	return io.ReadAll(io.LimitReader(reader, maxReferenceBytes))
}
