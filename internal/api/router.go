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

// Package api exposes the production service over HTTP with gin.
//
// Routes (under /api/v1):
//   - POST /productions: Submit a production request, 202 with the opened batch.
//   - GET  /productions: Every batch of this process, newest first.
//   - GET  /productions/:id: One batch.
//   - GET  /productions/:id/items/:item: One item.
//   - POST /productions/:id/items/:item/retry: Restart a FAILED item.
//   - GET  /productions/:id/items/:item/media: Artifact references with URLs.
//   - GET  /productions/:id/items/:item/scenes/:index/:kind: Download an artifact.
//   - GET  /history: Latest batch outcomes from the ledger.
//   - GET  /history/:id: Ledger rows of one batch.
package api

import (
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/jaycherian/gcp-go-media-studio/internal/cloud"
)

// NewRouter builds the gin engine of the studio.
//
// Inputs:
//   - name: Service name reported on the server spans.
//   - server: Allowed CORS origins, all origins when empty.
//   - svc: The production service.
func NewRouter(name string, server cloud.ServerConfig, svc Service) *gin.Engine {
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())
	r.Use(otelgin.Middleware(name))
	r.Use(corsMiddleware(server.AllowedOrigins))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	apiV1 := r.Group("/api/v1")
	{
		Productions(apiV1, svc)
		History(apiV1, svc)
	}
	return r
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	if len(origins) == 0 {
		return cors.Default()
	}
	cfg := cors.DefaultConfig()
	cfg.AllowOrigins = origins
	cfg.AllowHeaders = append(cfg.AllowHeaders, CredentialHeader)
	return cors.New(cfg)
}
