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
// This file contains general-purpose utility functions that support the cloud
// package: hierarchical configuration loading and helpers for reading
// generative model responses.
//
// Functions:
//   - LoadConfig: Reads a base configuration file and then overwrites values
//     with an environment-specific file (e.g. .env.local.toml, .env.test.toml).
//   - ResponseText: Concatenates the text parts of a response, fences removed.
//   - ResponseImage: Returns the first inline image of a response.
//   - StripFences: Removes a markdown code fence around a JSON payload.
package cloud

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
	"google.golang.org/genai"
)

// Cloud Constants define key strings used for configuration loading.
const (
	ConfigFileBaseName  = ".env"              // The base name for configuration files (e.g., ".env.toml").
	ConfigFileExtension = ".toml"             // The file extension for configuration files.
	ConfigSeparator     = "."                 // The separator used in config file names (e.g., ".env.local.toml").
	EnvConfigFilePrefix = "GCP_CONFIG_PREFIX" // The environment variable for specifying the config directory.
	EnvConfigRuntime    = "GCP_RUNTIME"       // The environment variable for specifying the runtime context (e.g., "local", "test", "prod").
	DefaultRuntime      = "test"              // Runtime used when GCP_RUNTIME is unset.
)

// fileExists checks if a file or directory exists at the given path.
func fileExists(in string) bool {
	_, err := os.Stat(in)
	return !errors.Is(err, os.ErrNotExist)
}

// ConfigFiles returns the base and runtime configuration paths derived from
// GCP_CONFIG_PREFIX and GCP_RUNTIME.
//
// Outputs:
//   - base: e.g. "configs/.env.toml".
//   - runtime: e.g. "configs/.env.test.toml".
func ConfigFiles() (base string, runtime string) {
	configurationFilePrefix := os.Getenv(EnvConfigFilePrefix)
	if len(configurationFilePrefix) > 0 && !strings.HasSuffix(configurationFilePrefix, string(os.PathSeparator)) {
		configurationFilePrefix = configurationFilePrefix + string(os.PathSeparator)
	}
	runtimeEnvironment := os.Getenv(EnvConfigRuntime)
	if runtimeEnvironment == "" {
		runtimeEnvironment = DefaultRuntime
	}
	base = configurationFilePrefix + ConfigFileBaseName + ConfigFileExtension
	runtime = configurationFilePrefix + ConfigFileBaseName + ConfigSeparator + runtimeEnvironment + ConfigFileExtension
	return base, runtime
}

// LoadConfig provides a hierarchical configuration loading mechanism. It first
// loads the base configuration file and then merges the runtime file over it.
// Missing files are skipped; a file that fails to decode is an error.
//
// Inputs:
//   - baseConfig: A pointer to the target configuration struct, usually the
//     result of NewConfig so defaults survive keys absent from both files.
//
// Outputs:
//   - error: A decode failure naming the offending file.
func LoadConfig(baseConfig any) error {
	baseConfigFileName, envConfigFileName := ConfigFiles()
	for _, name := range []string{baseConfigFileName, envConfigFileName} {
		if !fileExists(name) {
			slog.Debug("configuration file not found, skipping", "file", name)
			continue
		}
		if _, err := toml.DecodeFile(name, baseConfig); err != nil {
			return fmt.Errorf("failed to decode configuration file %s: %w", name, err)
		}
		slog.Info("configuration loaded", "file", name)
	}
	return nil
}

// StripFences removes a surrounding markdown code fence, with or without a
// language tag.
func StripFences(in string) string {
	out := strings.TrimSpace(in)
	if !strings.HasPrefix(out, "```") {
		return out
	}
	out = strings.TrimPrefix(out, "```")
	if newline := strings.IndexByte(out, '\n'); newline >= 0 && !strings.ContainsAny(out[:newline], "{[") {
		out = out[newline+1:]
	}
	out = strings.TrimSuffix(strings.TrimSpace(out), "```")
	return strings.TrimSpace(out)
}

// ResponseText returns the text of the first candidate with fences removed.
func ResponseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part != nil && !part.Thought {
			sb.WriteString(part.Text)
		}
	}
	return StripFences(sb.String())
}

// ResponseImage returns the first inline image of the first candidate and any
// text returned alongside it.
//
// Outputs:
//   - *genai.Blob: The image, nil when the model returned none.
//   - string: Text parts of the candidate, often a refusal when no image is present.
func ResponseImage(resp *genai.GenerateContentResponse) (*genai.Blob, string) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, ""
	}
	var text strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part == nil {
			continue
		}
		if part.InlineData != nil && len(part.InlineData.Data) > 0 && strings.HasPrefix(part.InlineData.MIMEType, "image/") {
			return part.InlineData, strings.TrimSpace(text.String())
		}
		text.WriteString(part.Text)
	}
	return nil, strings.TrimSpace(text.String())
}

// FinishReason returns the finish reason of the first candidate, if any.
func FinishReason(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 {
		return ""
	}
	return string(resp.Candidates[0].FinishReason)
}

// BlockReason returns the prompt feedback block reason, if any.
func BlockReason(resp *genai.GenerateContentResponse) string {
	if resp == nil || resp.PromptFeedback == nil {
		return ""
	}
	return string(resp.PromptFeedback.BlockReason)
}
