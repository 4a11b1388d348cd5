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

package artifacts

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/jaycherian/gcp-go-media-studio/internal/cloud"
	"github.com/jaycherian/gcp-go-media-studio/internal/core/model"
)

// S3API is the part of *s3.Client used by S3Store.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Store writes artifacts to an S3-compatible bucket.
type S3Store struct {
	client     S3API
	bucket     string
	baseURL    string
	publicRead bool
}

// NewS3Store creates a store for cfg.
func NewS3Store(client S3API, cfg cloud.ObjectStorage) (*S3Store, error) {
	if client == nil {
		return nil, fmt.Errorf("s3 artifact store needs a client")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 artifact store needs object_storage.bucket")
	}
	base := cfg.PublicBaseURL
	if base == "" {
		base = strings.TrimRight(cfg.Endpoint, "/") + "/" + cfg.Bucket
	}
	return &S3Store{client: client, bucket: cfg.Bucket, baseURL: strings.TrimRight(base, "/"), publicRead: cfg.PublicRead}, nil
}

// Put uploads data with its content type.
func (s *S3Store) Put(ctx context.Context, key, contentType string, data []byte) (model.MediaRef, error) {
	input := &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(int64(len(data))),
	}
	if s.publicRead {
		input.ACL = types.ObjectCannedACLPublicRead
	}
	if _, err := s.client.PutObject(ctx, input); err != nil {
		return model.MediaRef{}, fmt.Errorf("failed to upload %s to bucket %s: %w", key, s.bucket, err)
	}
	return model.MediaRef{
		URI:         s.baseURL + "/" + key,
		ContentType: contentType,
		Size:        len(data),
		Uploaded:    true,
	}, nil
}
