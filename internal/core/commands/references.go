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

package commands

import (
	"context"
	"fmt"

	"github.com/jaycherian/gcp-go-media-studio/internal/core/cor"
	"github.com/jaycherian/gcp-go-media-studio/internal/core/frames"
	"github.com/jaycherian/gcp-go-media-studio/internal/core/model"
	"github.com/jaycherian/gcp-go-media-studio/internal/core/production"
)

// ReferenceFetcher loads reference images.
type ReferenceFetcher interface {
	FetchAll(ctx context.Context, locations []string) ([]model.Asset, error)
}

// ProductLocker turns the raw product reference into the product anchor.
type ProductLocker interface {
	LockProduct(ctx context.Context, product model.Product, reference model.Asset, aspectRatio string) (model.Asset, error)
}

// FetchReferences loads the product and character references of a batch.
// The product reference comes first, characters follow in request order.
type FetchReferences struct {
	cor.BaseCommand
	fetcher ReferenceFetcher
}

// NewFetchReferences creates the reference stage of the prepare chain.
func NewFetchReferences(name string, fetcher ReferenceFetcher) *FetchReferences {
	cmd := &FetchReferences{BaseCommand: *cor.NewBaseCommand(name), fetcher: fetcher}
	cmd.InputParamName = BatchParam
	return cmd
}

func (c *FetchReferences) Execute(context cor.Context) {
	batch, ok := context.Get(BatchParam).(*production.Batch)
	if !ok || batch == nil {
		c.Fail(context, fmt.Errorf("no batch in context"))
		return
	}
	req := batch.Request
	locations := make([]string, 0, len(req.Characters)+1)
	locations = append(locations, req.Product.ReferenceURL())
	for _, character := range req.Characters {
		locations = append(locations, character.ReferenceURL())
	}
	fetched, err := c.fetcher.FetchAll(context.GetContext(), locations)
	if err != nil {
		c.Fail(context, fmt.Errorf("failed to fetch references of batch %s: %w", batch.ID, err))
		return
	}
	assets := &production.Assets{ProductReference: fetched[0], Characters: fetched[1:]}
	c.Succeed(context)
	context.Add(AssetsParam, assets)
	context.Add(c.GetOutputParam(), assets)
}

// LockProduct produces the product anchor shared by the items of a batch.
type LockProduct struct {
	cor.BaseCommand
	locker ProductLocker
	crop   bool
}

// NewLockProduct creates the anchor stage. With crop the anchor is center
// cropped to the requested aspect ratio.
func NewLockProduct(name string, locker ProductLocker, crop bool) *LockProduct {
	cmd := &LockProduct{BaseCommand: *cor.NewBaseCommand(name), locker: locker, crop: crop}
	cmd.InputParamName = AssetsParam
	return cmd
}

func (c *LockProduct) Execute(context cor.Context) {
	batch, ok := context.Get(BatchParam).(*production.Batch)
	if !ok || batch == nil {
		c.Fail(context, fmt.Errorf("no batch in context"))
		return
	}
	assets := context.Get(AssetsParam).(*production.Assets)
	req := batch.Request
	anchor, err := c.locker.LockProduct(context.GetContext(), req.Product, assets.ProductReference, req.AspectRatio)
	if err != nil {
		c.Fail(context, err)
		return
	}
	if c.crop {
		if anchor, err = frames.CropToAspect(anchor, req.AspectRatio); err != nil {
			c.Fail(context, err)
			return
		}
	}
	assets.Product = anchor
	c.Succeed(context)
	context.Add(c.GetOutputParam(), assets)
}
