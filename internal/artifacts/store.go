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

// Package artifacts copies produced media to object storage.
//
// Stores:
//   - GCSStore: Cloud Storage, referenced as gs://bucket/object.
//   - S3Store: Any S3-compatible endpoint, referenced by its public URL.
//
// Signer turns gs:// references into V4 signed URLs for clients without
// Google credentials.
package artifacts

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/h2non/filetype"
	"github.com/jaycherian/gcp-go-media-studio/internal/cloud"
	"github.com/jaycherian/gcp-go-media-studio/internal/core/model"
)

// Store persists one artifact and returns its reference. Kind and scene
// index of the returned reference are left to the caller.
type Store interface {
	Put(ctx context.Context, key, contentType string, data []byte) (model.MediaRef, error)
}

// Key names the artifact of kind for scene index of an item.
func Key(batchID, itemID string, index int, kind model.MediaKind, data []byte) string {
	return fmt.Sprintf("%s/%s/scene-%02d-%s.%s", batchID, itemID, index, kind, Extension(data, kind))
}

// Extension sniffs the file extension of data, falling back to a default per
// kind.
func Extension(data []byte, kind model.MediaKind) string {
	if t, err := filetype.Match(data); err == nil && t != filetype.Unknown {
		return t.Extension
	}
	switch kind {
	case model.MediaClip:
		return "mp4"
	case model.MediaAudio:
		return "wav"
	case model.MediaStill:
		return "jpg"
	}
	return "png"
}

// GCSStore writes artifacts to a Cloud Storage bucket.
type GCSStore struct {
	client *storage.Client
	bucket string
	prefix string
}

// NewGCSStore creates a store writing below prefix in bucket.
func NewGCSStore(client *storage.Client, cfg cloud.Storage) (*GCSStore, error) {
	if client == nil {
		return nil, fmt.Errorf("gcs artifact store needs a storage client")
	}
	if cfg.ArtifactBucket == "" {
		return nil, fmt.Errorf("gcs artifact store needs storage.artifact_bucket")
	}
	return &GCSStore{client: client, bucket: cfg.ArtifactBucket, prefix: strings.Trim(cfg.Prefix, "/")}, nil
}

// Put streams data into the bucket.
func (s *GCSStore) Put(ctx context.Context, key, contentType string, data []byte) (model.MediaRef, error) {
	name := path.Join(s.prefix, key)
	writer := s.client.Bucket(s.bucket).Object(name).NewWriter(ctx)
	writer.ContentType = contentType
	if _, err := io.Copy(writer, bytes.NewReader(data)); err != nil {
		_ = writer.Close()
		return model.MediaRef{}, fmt.Errorf("failed to copy %s to gs://%s: %w", name, s.bucket, err)
	}
	// The object only exists once the writer is closed.
	if err := writer.Close(); err != nil {
		return model.MediaRef{}, fmt.Errorf("failed to finalize gs://%s/%s: %w", s.bucket, name, err)
	}
	return model.MediaRef{
		URI:         cloud.GCSObject{Bucket: s.bucket, Name: name}.URI(),
		ContentType: contentType,
		Size:        len(data),
		Uploaded:    true,
	}, nil
}
