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
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jaycherian/gcp-go-media-studio/internal/api"
	"github.com/jaycherian/gcp-go-media-studio/internal/cloud"
	"github.com/jaycherian/gcp-go-media-studio/internal/core/workflow"
)

// RequestsSubscription is the logical name of the production request
// subscription in topic_subscriptions.
const RequestsSubscription = "ProductionRequests"

func newServeCommand() *cobra.Command {
	var port string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the production API and listen for production requests",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if err := InitState(ctx); err != nil {
				return err
			}
			defer func() {
				if err := state.Close(context.Background()); err != nil {
					slog.Error("failed to close clients", "error", err)
				}
			}()
			SetupListeners(ctx, state.config, state.cloud)

			if port == "" {
				port = state.config.Server.Port
			}
			srv := &http.Server{
				Addr:              ":" + port,
				Handler:           api.NewRouter(state.config.Application.Name, state.config.Server, state.service),
				ReadHeaderTimeout: 20 * time.Second,
			}
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					slog.Error("failed to listen", "error", err)
					stop()
				}
			}()
			slog.Info("server ready", "port", port)

			<-ctx.Done()
			slog.Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				slog.Error("server shutdown failed", "error", err)
			}
			state.service.Wait()
			return nil
		},
	}
	cmd.Flags().StringVar(&port, "port", "", "listen port, defaults to server.port")
	return cmd
}

// SetupListeners attaches the request workflow to the production request
// subscription. Batches received this way show up in the API.
func SetupListeners(ctx context.Context, config *cloud.Config, clients *cloud.ServiceClients) {
	listener, ok := clients.PubSubListeners[RequestsSubscription]
	if !ok {
		slog.Info("no production request subscription configured")
		return
	}
	listener.SetCommand(workflow.NewRequestWorkflow(state.worker, state.service.Register))
	listener.Listen(ctx)
}
