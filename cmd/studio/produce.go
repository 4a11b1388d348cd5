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
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/jaycherian/gcp-go-media-studio/internal/artifacts"
	"github.com/jaycherian/gcp-go-media-studio/internal/core/model"
)

func newProduceCommand() *cobra.Command {
	var (
		requestFile string
		outDir      string
		credential  string
	)
	cmd := &cobra.Command{
		Use:   "produce",
		Short: "Produce one batch from a JSON request file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			raw, err := os.ReadFile(requestFile)
			if err != nil {
				return err
			}
			var req model.ProductionRequest
			if err := json.Unmarshal(raw, &req); err != nil {
				return fmt.Errorf("failed to parse %s: %w", requestFile, err)
			}
			req.Credential = credential
			req.ApplyDefaults()
			if err := req.Validate(); err != nil {
				return err
			}

			ctx := cmd.Context()
			if err := InitState(ctx); err != nil {
				return err
			}
			defer func() {
				if err := state.Close(ctx); err != nil {
					slog.Error("failed to close clients", "error", err)
				}
			}()

			batch, err := state.worker.Open(ctx, req)
			if err != nil {
				return err
			}
			runErr := state.worker.RunBatch(ctx, batch)
			snapshot := batch.Snapshot()
			if outDir != "" {
				if err := writeMedia(outDir, snapshot); err != nil {
					return err
				}
			}
			out := json.NewEncoder(cmd.OutOrStdout())
			out.SetIndent("", "  ")
			if err := out.Encode(snapshot); err != nil {
				return err
			}
			return runErr
		},
	}
	cmd.Flags().StringVarP(&requestFile, "request", "r", "", "production request JSON file")
	cmd.Flags().StringVarP(&outDir, "out", "o", "", "directory receiving the produced media")
	cmd.Flags().StringVar(&credential, "api-key", "", "API key tried before the configured credentials")
	_ = cmd.MarkFlagRequired("request")
	return cmd
}

// writeMedia stores every artifact of the completed items under
// dir/<batch>/<item>/.
func writeMedia(dir string, batch model.Batch) error {
	kinds := []model.MediaKind{model.MediaImage, model.MediaClip, model.MediaStill, model.MediaAudio}
	for _, item := range batch.Items {
		if item.Status != model.StatusCompleted {
			continue
		}
		for _, scene := range item.Scenes {
			for _, kind := range kinds {
				asset, ok := scene.Asset(kind)
				if !ok {
					continue
				}
				name := filepath.Join(dir, artifacts.Key(batch.ID, item.ID, scene.Index, kind, asset.Data))
				if err := os.MkdirAll(filepath.Dir(name), 0o755); err != nil {
					return err
				}
				if err := os.WriteFile(name, asset.Data, 0o644); err != nil {
					return err
				}
				slog.Info("media written", "file", name)
			}
		}
	}
	return nil
}
