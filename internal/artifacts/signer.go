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
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	credentials "cloud.google.com/go/iam/credentials/apiv1"
	"cloud.google.com/go/iam/credentials/apiv1/credentialspb"
	"cloud.google.com/go/storage"
	"github.com/jaycherian/gcp-go-media-studio/internal/cloud"
)

// Signer creates time-limited GET URLs for stored artifacts.
type Signer struct {
	storageClient *storage.Client
	iamClient     *credentials.IamCredentialsClient
	email         string
}

// NewSigner creates a Signer. Without an IAM client the storage client signs
// with its own credentials.
func NewSigner(storageClient *storage.Client, iamClient *credentials.IamCredentialsClient, email string) *Signer {
	return &Signer{storageClient: storageClient, iamClient: iamClient, email: email}
}

// URL returns a URL a browser can fetch uri with. gs:// objects are signed,
// http(s) references are already public and returned unchanged.
//
// Inputs:
//   - ctx: Used for the IAM SignBlob call.
//   - uri: A stored artifact reference.
//   - expires: How long the signed URL stays valid.
func (s *Signer) URL(ctx context.Context, uri string, expires time.Duration) (string, error) {
	if strings.HasPrefix(uri, "http://") || strings.HasPrefix(uri, "https://") {
		return uri, nil
	}
	object, err := cloud.ParseGCSURI(uri)
	if err != nil {
		return "", err
	}
	if s.storageClient == nil {
		return "", fmt.Errorf("cannot sign %s without a storage client", uri)
	}
	opts := &storage.SignedURLOptions{
		Scheme:  storage.SigningSchemeV4,
		Method:  http.MethodGet,
		Expires: time.Now().Add(expires),
	}
	if s.iamClient != nil && s.email != "" {
		opts.GoogleAccessID = s.email
		opts.SignBytes = func(b []byte) ([]byte, error) {
			resp, err := s.iamClient.SignBlob(ctx, &credentialspb.SignBlobRequest{
				Name:    fmt.Sprintf("projects/-/serviceAccounts/%s", s.email),
				Payload: b,
			})
			if err != nil {
				return nil, fmt.Errorf("IAMClient.SignBlob: %w", err)
			}
			return resp.SignedBlob, nil
		}
	}
	u, err := s.storageClient.Bucket(object.Bucket).SignedURL(object.Name, opts)
	if err != nil {
		return "", fmt.Errorf("Bucket(%q).SignedURL(%q): %w", object.Bucket, object.Name, err)
	}
	return u, nil
}
