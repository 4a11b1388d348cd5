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

// Package cloud defines the data structures for application configuration,
// loaded from TOML files. It provides a structured way to manage settings for
// the generative models, the credential sources, the production pipeline and
// the Google Cloud and S3 services the studio talks to.
//
// Structs:
//   - CredentialConfig: Manual override, environment default and remote pool switches.
//   - AgentModel: Generation parameters for one task type.
//   - PollPolicyConfig: How long-running video jobs are polled.
//   - FramesConfig: ffmpeg settings of the continuity frame extractor.
//   - ProductionConfig: Pipeline behaviour (duration estimate, retries, flows).
//   - Storage, ObjectStorage: Artifact stores (GCS, S3-compatible).
//   - GatewayConfig, LedgerConfig: Persistence gateway and its BigQuery ledger.
//   - RedisConfig: Delivery claims for Pub/Sub redeliveries.
//   - Config: The top-level struct that aggregates all other configuration structs.
package cloud

import (
	"os"
	"time"

	"google.golang.org/genai"
)

// DefaultSafetySettings are applied to text and vision requests. Content
// policy is enforced by the image and video models themselves.
var DefaultSafetySettings = []*genai.SafetySetting{
	{
		Category:  genai.HarmCategoryDangerousContent,
		Threshold: genai.HarmBlockThresholdBlockOnlyHigh,
	},
	{
		Category:  genai.HarmCategoryHarassment,
		Threshold: genai.HarmBlockThresholdBlockOnlyHigh,
	},
	{
		Category:  genai.HarmCategoryHateSpeech,
		Threshold: genai.HarmBlockThresholdBlockOnlyHigh,
	},
	{
		Category:  genai.HarmCategorySexuallyExplicit,
		Threshold: genai.HarmBlockThresholdBlockMediumAndAbove,
	},
}

// CredentialConfig configures the credential sources of the fallback engine.
type CredentialConfig struct {
	ManualKey           string `toml:"manual_key"`           // Highest priority configured key. Usually set per runtime, never committed.
	EnvironmentVariable string `toml:"environment_variable"` // Variable holding the environment default key.
	UseRemotePool       bool   `toml:"use_remote_pool"`      // Fetch the system pool from the gateway's api_keys endpoint.
	Backend             string `toml:"backend"`              // "gemini" (API keys) or "vertex" (project credentials).
}

// AgentModel holds the generation parameters of one task type.
type AgentModel struct {
	SystemInstructions string  `toml:"system_instructions"` // The system instructions for the model.
	Temperature        float32 `toml:"temperature"`         // The temperature parameter.
	TopP               float32 `toml:"top_p"`               // The top_p parameter.
	TopK               float32 `toml:"top_k"`               // The top_k parameter, unset when zero.
	MaxTokens          int32   `toml:"max_tokens"`          // The maximum number of output tokens, unset when zero.
	OutputFormat       string  `toml:"output_format"`       // Response MIME type, e.g. "application/json".
}

// ToGenerateContentConfig builds the request config of the agent model.
//
// Outputs:
//   - *genai.GenerateContentConfig: A fresh config the caller may extend.
func (a AgentModel) ToGenerateContentConfig() *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{
		SafetySettings:   DefaultSafetySettings,
		ResponseMIMEType: a.OutputFormat,
		MaxOutputTokens:  a.MaxTokens,
	}
	if a.Temperature > 0 {
		cfg.Temperature = genai.Ptr(a.Temperature)
	}
	if a.TopP > 0 {
		cfg.TopP = genai.Ptr(a.TopP)
	}
	if a.TopK > 0 {
		cfg.TopK = genai.Ptr(a.TopK)
	}
	if a.SystemInstructions != "" {
		cfg.SystemInstruction = genai.NewContentFromText(a.SystemInstructions, genai.RoleUser)
	}
	return cfg
}

// PollPolicyConfig controls polling of long-running video jobs.
type PollPolicyConfig struct {
	InitialDelay time.Duration `toml:"initial_delay"` // Wait before the first status check.
	Interval     time.Duration `toml:"interval"`      // Wait between status checks.
	MaxAttempts  int           `toml:"max_attempts"`  // Status checks before the job times out.
	Timeout      time.Duration `toml:"timeout"`       // Overall bound, zero for none.
}

// FramesConfig configures the continuity frame extractor.
type FramesConfig struct {
	FFmpegPath    string  `toml:"ffmpeg_path"`
	FFprobePath   string  `toml:"ffprobe_path"`
	InitialOffset float64 `toml:"initial_offset"` // Seconds before the end of the clip of the first attempt.
	OffsetStep    float64 `toml:"offset_step"`    // Added to the offset after each failed attempt.
	MaxOffset     float64 `toml:"max_offset"`     // Offset ceiling.
	JPEGQuality   int     `toml:"jpeg_quality"`   // ffmpeg -q:v value, 2 (best) to 31.
	CropToAspect  bool    `toml:"crop_to_aspect"` // Center crop stills to the requested aspect ratio.
}

// ProductionConfig configures the production pipeline.
type ProductionConfig struct {
	ChunkDurationEstimate   float64 `toml:"chunk_duration_estimate"`    // Seconds credited per accepted storyboard chunk.
	MaxParseAttempts        int     `toml:"max_parse_attempts"`         // Storyboard requests per chunk before a parse failure is terminal.
	ComposeContinuity       bool    `toml:"compose_continuity"`         // Recompose later scenes from the continuity frame.
	LegacyVoiceOver         bool    `toml:"legacy_voice_over"`          // Separate TTS voice-over for describe-then-generate models.
	Voice                   string  `toml:"voice"`                      // Prebuilt TTS voice.
	ArtifactStore           string  `toml:"artifact_store"`             // "gcs", "s3" or "none".
	FailFastInvalidArgument bool    `toml:"fail_fast_invalid_argument"` // Abort the fallback matrix on invalid-argument failures.
	Language                string  `toml:"language"`                   // Language of dialogue and narration.
	SceneGenerateAudio      bool    `toml:"scene_generate_audio"`       // Ask audio-capable video models for native audio.
}

// Storage represents the configuration for Cloud Storage.
type Storage struct {
	ArtifactBucket string `toml:"artifact_bucket"` // Bucket receiving produced clips, stills and audio.
	Prefix         string `toml:"prefix"`          // Object name prefix.
}

// ObjectStorage configures the S3-compatible artifact store.
type ObjectStorage struct {
	Endpoint      string `toml:"endpoint"`        // e.g. https://sgp1.vultrobjects.com
	Region        string `toml:"region"`          // Signing region.
	Bucket        string `toml:"bucket"`          // Target bucket.
	AccessKey     string `toml:"access_key"`      // Literal key, prefer AccessKeyEnv.
	SecretKey     string `toml:"secret_key"`      // Literal secret, prefer SecretKeyEnv.
	AccessKeyEnv  string `toml:"access_key_env"`  // Variable holding the access key.
	SecretKeyEnv  string `toml:"secret_key_env"`  // Variable holding the secret key.
	PublicBaseURL string `toml:"public_base_url"` // Base of public object URLs, defaults to endpoint/bucket.
	UsePathStyle  bool   `toml:"use_path_style"`  // Path style addressing.
	PublicRead    bool   `toml:"public_read"`     // Upload with the public-read ACL.
}

// Keys resolves the access key pair, environment variables first.
func (o ObjectStorage) Keys() (access string, secret string) {
	access, secret = o.AccessKey, o.SecretKey
	if v := os.Getenv(o.AccessKeyEnv); o.AccessKeyEnv != "" && v != "" {
		access = v
	}
	if v := os.Getenv(o.SecretKeyEnv); o.SecretKeyEnv != "" && v != "" {
		secret = v
	}
	return access, secret
}

// GatewayConfig configures the persistence gateway REST client.
type GatewayConfig struct {
	BaseURL     string        `toml:"base_url"`     // e.g. https://host/api/v3/ai_studio. Empty selects the in-memory gateway.
	Token       string        `toml:"token"`        // Literal token, prefer TokenEnv.
	TokenEnv    string        `toml:"token_env"`    // Variable holding the token.
	TokenHeader string        `toml:"token_header"` // Header carrying the token.
	MachineID   string        `toml:"machine_id"`   // Studio machine reported when a batch is initialized.
	Timeout     time.Duration `toml:"timeout"`      // Per request timeout.
}

// ResolveToken returns the gateway token, environment variable first.
func (g GatewayConfig) ResolveToken() string {
	if g.TokenEnv != "" {
		if v := os.Getenv(g.TokenEnv); v != "" {
			return v
		}
	}
	return g.Token
}

// LedgerConfig configures the BigQuery ledger of gateway events.
type LedgerConfig struct {
	Enabled bool   `toml:"enabled"`
	Dataset string `toml:"dataset"`
	Table   string `toml:"table"`
}

// TopicSubscription represents the configuration for a Pub/Sub topic subscription.
type TopicSubscription struct {
	Name             string `toml:"name"`               // The name of the Pub/Sub subscription.
	DeadLetterTopic  string `toml:"dead_letter_topic"`  // The name of the dead-letter topic for the subscription.
	TimeoutInSeconds int    `toml:"timeout_in_seconds"` // The timeout for the subscription in seconds.
}

// RedisConfig configures delivery claims.
type RedisConfig struct {
	Enabled  bool          `toml:"enabled"`
	Address  string        `toml:"address"`
	Password string        `toml:"password"`
	DB       int           `toml:"db"`
	ClaimTTL time.Duration `toml:"claim_ttl"` // How long a claimed delivery blocks duplicates.
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port           string   `toml:"port"`
	AllowedOrigins []string `toml:"allowed_origins"`
}

// PromptTemplates overrides the built-in prompt templates. Empty fields keep
// the defaults of the owning package.
type PromptTemplates struct {
	Storyboard    string `toml:"storyboard"`
	ProductLock   string `toml:"product_lock"`
	FirstScene    string `toml:"first_scene"`
	NextScene     string `toml:"next_scene"`
	SceneAnalysis string `toml:"scene_analysis"`
	Grounding     string `toml:"grounding"`
}

// Config represents the overall configuration for the application, loaded
// from TOML files. It acts as the root container for all other configuration
// structs.
type Config struct {
	// Application holds general application settings.
	Application struct {
		Name                      string `toml:"name"`                         // The name of the application.
		GoogleProjectId           string `toml:"google_project_id"`            // The Google Cloud project ID.
		GoogleLocation            string `toml:"location"`                     // The Google Cloud location.
		SignerServiceAccountEmail string `toml:"signer_service_account_email"` // The service account email used for signing GCS URLs.
		TelemetryEnabled          bool   `toml:"telemetry_enabled"`            // Export traces and metrics to Google Cloud.
		LogLevel                  string `toml:"log_level"`                    // debug, info, warn or error.
		DefaultRateLimit          int    `toml:"default_rate_limit"`           // Requests per minute for models without an entry in RateLimits.
	} `toml:"application"`
	Server             ServerConfig                 `toml:"server"`
	Credentials        CredentialConfig             `toml:"credentials"`
	Models             map[string][]string          `toml:"models"`      // Models per task type in preference order.
	RateLimits         map[string]int               `toml:"rate_limits"` // Requests per minute keyed by model name.
	AgentModels        map[string]AgentModel        `toml:"agent_models"`
	PollPolicy         PollPolicyConfig             `toml:"poll_policy"`
	Frames             FramesConfig                 `toml:"frames"`
	Production         ProductionConfig             `toml:"production"`
	Storage            Storage                      `toml:"storage"`
	ObjectStorage      ObjectStorage                `toml:"object_storage"`
	Gateway            GatewayConfig                `toml:"gateway"`
	Ledger             LedgerConfig                 `toml:"ledger"`
	TopicSubscriptions map[string]TopicSubscription `toml:"topic_subscriptions"` // Subscriptions keyed by a logical name (e.g. "ProductionRequests").
	Redis              RedisConfig                  `toml:"redis"`
	PromptTemplates    PromptTemplates              `toml:"prompt_templates"`
}

// NewConfig creates a Config with its maps initialized and the defaults of
// every section applied. Values decoded from TOML overwrite the defaults.
//
// Outputs:
//   - *Config: A pointer to a new Config.
func NewConfig() *Config {
	c := &Config{
		Models:             make(map[string][]string),
		RateLimits:         make(map[string]int),
		AgentModels:        make(map[string]AgentModel),
		TopicSubscriptions: make(map[string]TopicSubscription),
	}
	c.Application.Name = "media-studio"
	c.Application.LogLevel = "info"
	c.Application.DefaultRateLimit = 30
	c.Server.Port = "8080"
	c.Credentials.EnvironmentVariable = "GEMINI_API_KEY"
	c.Credentials.Backend = "gemini"
	c.PollPolicy = PollPolicyConfig{Interval: 10 * time.Second, MaxAttempts: 60, Timeout: 15 * time.Minute}
	c.Frames = FramesConfig{
		FFmpegPath:    "ffmpeg",
		FFprobePath:   "ffprobe",
		InitialOffset: 0.12,
		OffsetStep:    0.3,
		MaxOffset:     2.0,
		JPEGQuality:   3,
	}
	c.Production = ProductionConfig{
		ChunkDurationEstimate: 8,
		MaxParseAttempts:      3,
		ComposeContinuity:     true,
		Voice:                 "Kore",
		ArtifactStore:         "none",
		Language:              "Indonesian",
	}
	c.Gateway = GatewayConfig{TokenHeader: "token-mabar", MachineID: "STUDIO_01", Timeout: 2 * time.Minute}
	c.Redis.ClaimTTL = 6 * time.Hour
	return c
}
