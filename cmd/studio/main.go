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

// Package main is the entry point of the media studio.
//
// Commands:
//   - serve: HTTP API plus the Pub/Sub production request listener.
//   - produce: Runs one batch from a JSON request file and writes its media
//     to a local directory.
//
// The configuration is read from <config-dir>/.env.toml and merged with
// <config-dir>/.env.<runtime>.toml.
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/jaycherian/gcp-go-media-studio/internal/cloud"
	"github.com/jaycherian/gcp-go-media-studio/internal/telemetry"
)

var (
	configDir string
	runtime   string
	logFile   string
)

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "studio",
		Short:         "Generative UGC video production studio",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := SetupOS(configDir, runtime); err != nil {
				return err
			}
			config, err := GetConfig()
			if err != nil {
				return err
			}
			closeLog := telemetry.SetupLogging(telemetry.LoggingOptions{
				Level:  config.Application.LogLevel,
				File:   logFile,
				Bridge: config.Application.TelemetryEnabled,
				Name:   config.Application.Name,
			})
			cobra.OnFinalize(func() { _ = closeLog() })
			slog.Info("logging initialized", "level", config.Application.LogLevel, "runtime", os.Getenv(cloud.EnvConfigRuntime))
			return nil
		},
	}
	root.PersistentFlags().StringVar(&configDir, "config-dir", "configs", "directory holding the .env*.toml files")
	root.PersistentFlags().StringVar(&runtime, "runtime", envOr(cloud.EnvConfigRuntime, "local"), "runtime overlay (local, test, prod)")
	root.PersistentFlags().StringVar(&logFile, "log-file", "", "also write logs to this file")
	root.AddCommand(newServeCommand(), newProduceCommand())
	return root
}

func envOr(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}

func main() {
	if err := newRootCommand().ExecuteContext(context.Background()); err != nil {
		slog.Error("studio failed", "error", err)
		os.Exit(1)
	}
}
