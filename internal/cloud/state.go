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

// Package cloud provides components for interacting with Google Cloud services.
// This file is responsible for initializing and holding all the client objects
// needed to communicate with external services. It acts as a dependency
// injection container, creating a single, shared ServiceClients struct that is
// passed throughout the application.
//
// Logic Flow:
//  1. NewCloudServiceClients is called at application startup with the loaded Config.
//  2. Google Cloud clients (Storage, Pub/Sub, BigQuery, IAM credentials) are
//     created when a project is configured, so a local run can work with the
//     generative APIs alone.
//  3. The S3 client is created when the artifact store is "s3", the Redis
//     client when claims are enabled.
//  4. The genai client pool and the quota registry are always created.
//  5. A PubSubListener is created per configured subscription; commands are
//     attached later when the workflows are built.
package cloud

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"cloud.google.com/go/bigquery"
	credentials "cloud.google.com/go/iam/credentials/apiv1"
	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awscredentials "github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/redis/go-redis/v9"
)

// ServiceClients is the central container of external clients.
type ServiceClients struct {
	StorageClient   *storage.Client                   // Cloud Storage, nil without a project.
	PubsubClient    *pubsub.Client                    // Pub/Sub, nil without a project.
	BiqQueryClient  *bigquery.Client                  // BigQuery, nil without a project.
	IAMClient       *credentials.IamCredentialsClient // Signs Cloud Storage URLs, nil without a signer account.
	S3Client        *s3.Client                        // S3-compatible artifact store, nil unless selected.
	RedisClient     redis.UniversalClient             // Delivery claims, nil unless enabled.
	GenAI           *GenAIService                     // Generative models per (credential, model).
	Claims          DeliveryClaimer                   // Backed by RedisClient when enabled.
	PubSubListeners map[string]*PubSubListener        // Listeners keyed by the logical name from the config.
}

// Close shuts down every client that was created.
func (c *ServiceClients) Close() error {
	var errs []error
	if c.StorageClient != nil {
		errs = append(errs, c.StorageClient.Close())
	}
	if c.PubsubClient != nil {
		errs = append(errs, c.PubsubClient.Close())
	}
	if c.BiqQueryClient != nil {
		errs = append(errs, c.BiqQueryClient.Close())
	}
	if c.IAMClient != nil {
		errs = append(errs, c.IAMClient.Close())
	}
	if c.RedisClient != nil {
		errs = append(errs, c.RedisClient.Close())
	}
	return errors.Join(errs...)
}

// NewCloudServiceClients initializes the clients required by config.
//
// Inputs:
//   - ctx: The root context of the application.
//   - config: The loaded configuration.
//
// Outputs:
//   - *ServiceClients: The initialized container.
//   - error: The first client that failed to initialize.
func NewCloudServiceClients(ctx context.Context, config *Config) (cloud *ServiceClients, err error) {
	cloud = &ServiceClients{PubSubListeners: make(map[string]*PubSubListener)}
	defer func() {
		if err != nil {
			_ = cloud.Close()
			cloud = nil
		}
	}()

	if config.Application.GoogleProjectId != "" {
		if cloud.StorageClient, err = storage.NewClient(ctx); err != nil {
			return cloud, fmt.Errorf("storage client: %w", err)
		}
		if cloud.PubsubClient, err = pubsub.NewClient(ctx, config.Application.GoogleProjectId); err != nil {
			return cloud, fmt.Errorf("pubsub client: %w", err)
		}
		if cloud.BiqQueryClient, err = bigquery.NewClient(ctx, config.Application.GoogleProjectId); err != nil {
			return cloud, fmt.Errorf("bigquery client: %w", err)
		}
		if config.Application.SignerServiceAccountEmail != "" {
			if cloud.IAMClient, err = credentials.NewIamCredentialsClient(ctx); err != nil {
				return cloud, fmt.Errorf("iam credentials client: %w", err)
			}
		}
		for subKey, values := range config.TopicSubscriptions {
			listener, err := NewPubSubListener(cloud.PubsubClient, values.Name, nil)
			if err != nil {
				return cloud, err
			}
			cloud.PubSubListeners[subKey] = listener
		}
	} else {
		slog.Info("no google project configured, cloud clients disabled")
	}

	if config.Production.ArtifactStore == "s3" {
		if cloud.S3Client, err = NewS3Client(ctx, config.ObjectStorage); err != nil {
			return cloud, err
		}
	}

	if config.Redis.Enabled {
		cloud.RedisClient = redis.NewClient(&redis.Options{
			Addr:     config.Redis.Address,
			Password: config.Redis.Password,
			DB:       config.Redis.DB,
		})
		if err = cloud.RedisClient.Ping(ctx).Err(); err != nil {
			return cloud, fmt.Errorf("redis ping %s: %w", config.Redis.Address, err)
		}
		cloud.Claims = NewDeliveryClaims(cloud.RedisClient, config.Application.Name, config.Redis.ClaimTTL)
		for _, listener := range cloud.PubSubListeners {
			listener.SetClaims(cloud.Claims)
		}
	}

	cloud.GenAI = NewGenAIService(
		NewClientPool(NewClientFactory(config)),
		NewQuotaRegistry(config.RateLimits, config.Application.DefaultRateLimit),
		cloud.StorageClient,
	)
	return cloud, nil
}

// NewS3Client creates a client for an S3-compatible endpoint with static keys.
func NewS3Client(ctx context.Context, cfg ObjectStorage) (*s3.Client, error) {
	access, secret := cfg.Keys()
	if access == "" || secret == "" {
		return nil, errors.New("object storage keys are not configured")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(region),
		awsconfig.WithCredentialsProvider(awscredentials.NewStaticCredentialsProvider(access, secret, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load object storage config: %w", err)
	}
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	}), nil
}
