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

// Package fallback runs generative operations across the credential x model
// matrix. This file defines the credential side of the matrix.
//
// Credentials are ordered by priority: an explicit per-call override carried in
// the context, the manual override from configuration, the environment default,
// and finally the remote pool. The remote pool is fetched lazily through an
// injected RefreshFunc at most once per Provider value; concurrent first callers
// share a single fetch. A failed fetch is not cached, so the next call tries
// again.
package fallback

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Origin records where a credential came from.
type Origin string

const (
	OriginExplicit    Origin = "explicit"
	OriginManual      Origin = "manual"
	OriginEnvironment Origin = "environment"
	OriginRemote      Origin = "remote"
)

// Credential is an opaque API secret plus where it came from. Value must never
// be logged; use Label.
type Credential struct {
	ID     string
	Value  string
	Label  string
	Origin Origin
}

// String returns the label so credentials are safe to format.
func (c Credential) String() string {
	if c.Label != "" {
		return c.Label
	}
	if c.Origin == "" {
		return c.ID
	}
	return fmt.Sprintf("%s:%s", c.Origin, c.ID)
}

// CredentialSource lists the credentials to try, highest priority first.
type CredentialSource interface {
	Credentials(ctx context.Context) ([]Credential, error)
}

// RefreshFunc fetches the remote credential pool.
type RefreshFunc func(ctx context.Context) ([]Credential, error)

type explicitKey struct{}

// WithCredential returns a context whose calls try value before any
// configured credential.
func WithCredential(ctx context.Context, value string) context.Context {
	if strings.TrimSpace(value) == "" {
		return ctx
	}
	return context.WithValue(ctx, explicitKey{}, value)
}

func explicitCredential(ctx context.Context) (string, bool) {
	value, ok := ctx.Value(explicitKey{}).(string)
	return value, ok && value != ""
}

// Provider is the default CredentialSource.
type Provider struct {
	manual    string
	envName   string
	lookupEnv func(string) (string, bool)
	refresh   RefreshFunc

	group  singleflight.Group
	mu     sync.Mutex
	loaded bool
	remote []Credential
}

// ProviderOption configures a Provider.
type ProviderOption func(*Provider)

// WithManualKey sets the manual override.
func WithManualKey(value string) ProviderOption {
	return func(p *Provider) { p.manual = strings.TrimSpace(value) }
}

// WithEnvironmentKey reads the environment default from the named variable.
func WithEnvironmentKey(name string) ProviderOption {
	return func(p *Provider) { p.envName = name }
}

// WithLookupEnv replaces os.LookupEnv, used by tests.
func WithLookupEnv(lookup func(string) (string, bool)) ProviderOption {
	return func(p *Provider) { p.lookupEnv = lookup }
}

// WithRefresh sets the remote pool fetch.
func WithRefresh(refresh RefreshFunc) ProviderOption {
	return func(p *Provider) { p.refresh = refresh }
}

// NewProvider creates a Provider.
//
// Inputs:
//   - opts: Sources to enable. A Provider with no options yields no credentials.
//
// Outputs:
//   - *Provider: The provider. Share one value per process so the remote pool
//     is fetched once.
func NewProvider(opts ...ProviderOption) *Provider {
	p := &Provider{lookupEnv: os.LookupEnv}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Credentials returns the deduplicated, ordered credential list. Refresh
// failures are logged and leave the remote pool out of the result.
func (p *Provider) Credentials(ctx context.Context) ([]Credential, error) {
	out := make([]Credential, 0, 4)
	if value, ok := explicitCredential(ctx); ok {
		out = append(out, Credential{ID: "explicit", Value: value, Label: "explicit override", Origin: OriginExplicit})
	}
	if p.manual != "" {
		out = append(out, Credential{ID: "manual", Value: p.manual, Label: "manual override", Origin: OriginManual})
	}
	if p.envName != "" {
		if value, ok := p.lookupEnv(p.envName); ok && strings.TrimSpace(value) != "" {
			out = append(out, Credential{ID: p.envName, Value: strings.TrimSpace(value), Label: "env:" + p.envName, Origin: OriginEnvironment})
		}
	}
	remote, err := p.remotePool(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		slog.Warn("remote credential pool unavailable", "error", err)
	}
	out = append(out, remote...)
	return dedupe(out), nil
}

// Loaded reports whether the remote pool has been fetched successfully.
func (p *Provider) Loaded() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.loaded
}

func (p *Provider) remotePool(ctx context.Context) ([]Credential, error) {
	if p.refresh == nil {
		return nil, nil
	}
	p.mu.Lock()
	if p.loaded {
		remote := p.remote
		p.mu.Unlock()
		return remote, nil
	}
	p.mu.Unlock()

	v, err, _ := p.group.Do("remote", func() (any, error) {
		p.mu.Lock()
		if p.loaded {
			remote := p.remote
			p.mu.Unlock()
			return remote, nil
		}
		p.mu.Unlock()

		fetched, err := p.refresh(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to refresh credential pool: %w", err)
		}
		remote := make([]Credential, 0, len(fetched))
		for _, c := range fetched {
			if strings.TrimSpace(c.Value) == "" {
				continue
			}
			c.Origin = OriginRemote
			if c.Label == "" {
				c.Label = "remote:" + c.ID
			}
			remote = append(remote, c)
		}

		p.mu.Lock()
		p.remote = remote
		p.loaded = true
		p.mu.Unlock()
		return remote, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]Credential), nil
}

func dedupe(in []Credential) []Credential {
	seen := make(map[string]struct{}, len(in))
	out := in[:0]
	for _, c := range in {
		if _, ok := seen[c.Value]; ok {
			continue
		}
		seen[c.Value] = struct{}{}
		out = append(out, c)
	}
	return out
}

// StaticSource is a fixed CredentialSource.
type StaticSource []Credential

func (s StaticSource) Credentials(_ context.Context) ([]Credential, error) {
	return dedupe(append([]Credential(nil), s...)), nil
}
