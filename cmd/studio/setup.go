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

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/jaycherian/gcp-go-media-studio/internal/artifacts"
	"github.com/jaycherian/gcp-go-media-studio/internal/cloud"
	"github.com/jaycherian/gcp-go-media-studio/internal/core/fallback"
	"github.com/jaycherian/gcp-go-media-studio/internal/core/production"
	"github.com/jaycherian/gcp-go-media-studio/internal/core/services"
	"github.com/jaycherian/gcp-go-media-studio/internal/core/workflow"
	"github.com/jaycherian/gcp-go-media-studio/internal/gateway"
	"github.com/jaycherian/gcp-go-media-studio/internal/telemetry"
)

// StateManager holds the process wide dependencies.
type StateManager struct {
	config    *cloud.Config
	cloud     *cloud.ServiceClients
	gateway   production.Gateway
	worker    *production.Worker
	service   *services.ProductionService
	telemetry func(context.Context) error
}

var state = &StateManager{}

// SetupOS points the configuration loader at dir and runtime.
func SetupOS(dir, runtime string) (err error) {
	if err = os.Setenv(cloud.EnvConfigFilePrefix, dir); err != nil {
		return err
	}
	return os.Setenv(cloud.EnvConfigRuntime, runtime)
}

// GetConfig loads the configuration once.
func GetConfig() (*cloud.Config, error) {
	if state.config == nil {
		config := cloud.NewConfig()
		if err := cloud.LoadConfig(config); err != nil {
			return nil, err
		}
		state.config = config
	}
	return state.config, nil
}

// InitState builds every dependency of the studio.
//
// Logic Flow:
//  1. OpenTelemetry and the cloud clients.
//  2. The persistence gateway: REST when a base URL is configured, in-memory
//     otherwise, wrapped by the BigQuery ledger when enabled.
//  3. The artifact store selected by production.artifact_store.
//  4. The fallback engine, refreshing its remote pool from the gateway.
//  5. The production workflow, its worker and the production service.
func InitState(ctx context.Context) error {
	config, err := GetConfig()
	if err != nil {
		return err
	}
	if state.telemetry, err = telemetry.SetupOpenTelemetry(ctx, config); err != nil {
		return fmt.Errorf("failed to setup OpenTelemetry: %w", err)
	}

	clients, err := cloud.NewCloudServiceClients(ctx, config)
	if err != nil {
		return err
	}
	state.cloud = clients

	var refresh fallback.RefreshFunc
	var gw production.Gateway
	if config.Gateway.BaseURL != "" {
		rest, err := gateway.NewREST(config.Gateway, &http.Client{Timeout: config.Gateway.Timeout})
		if err != nil {
			return err
		}
		gw, refresh = rest, rest.APIKeys
	} else {
		slog.Warn("no gateway configured, batch state is kept in memory only")
		gw = gateway.NewMemory()
	}

	var history services.History
	if config.Ledger.Enabled {
		if clients.BiqQueryClient == nil {
			return errors.New("the ledger requires a google project")
		}
		gw = gateway.NewBigQueryLedger(gw, clients.BiqQueryClient, config.Ledger.Dataset, config.Ledger.Table)
		history = &services.HistoryService{
			BigqueryClient: clients.BiqQueryClient,
			DatasetName:    config.Ledger.Dataset,
			LedgerTable:    config.Ledger.Table,
		}
	}
	state.gateway = gw

	store, err := artifactStore(config, clients)
	if err != nil {
		return err
	}

	engine := workflow.NewEngine(config, refresh)
	components, err := workflow.NewComponents(config, engine, clients.GenAI, clients.StorageClient, store)
	if err != nil {
		return err
	}
	state.worker = production.NewWorker(gw, workflow.NewProductionWorkflow(config, components))

	var signer services.URLSigner
	if clients.StorageClient != nil {
		signer = artifacts.NewSigner(clients.StorageClient, clients.IAMClient, config.Application.SignerServiceAccountEmail)
	}
	state.service = services.NewProductionService(ctx, state.worker, history, signer)
	return nil
}

func artifactStore(config *cloud.Config, clients *cloud.ServiceClients) (artifacts.Store, error) {
	switch config.Production.ArtifactStore {
	case "gcs":
		if clients.StorageClient == nil {
			return nil, errors.New("the gcs artifact store requires a google project")
		}
		return artifacts.NewGCSStore(clients.StorageClient, config.Storage)
	case "s3":
		return artifacts.NewS3Store(clients.S3Client, config.ObjectStorage)
	case "", "none":
		return nil, nil
	}
	return nil, fmt.Errorf("unknown artifact store %q", config.Production.ArtifactStore)
}

// Close releases the clients and flushes telemetry.
func (s *StateManager) Close(ctx context.Context) error {
	var errs []error
	if s.cloud != nil {
		errs = append(errs, s.cloud.Close())
	}
	if s.telemetry != nil {
		errs = append(errs, s.telemetry(ctx))
	}
	return errors.Join(errs...)
}
