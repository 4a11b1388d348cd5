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

package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jaycherian/gcp-go-media-studio/internal/core/model"
	"github.com/jaycherian/gcp-go-media-studio/internal/core/services"
	"github.com/jaycherian/gcp-go-media-studio/internal/gateway"
)

// CredentialHeader carries an explicit API key for one request. It is tried
// before every configured credential and never stored.
const CredentialHeader = "X-Goog-Api-Key"

const (
	mediaURLExpiry      = 15 * time.Minute
	defaultHistoryLimit = 20
)

// Service is the production surface served by the API.
// *services.ProductionService implements it.
type Service interface {
	Submit(ctx context.Context, req model.ProductionRequest) (model.Batch, error)
	Get(id string) (model.Batch, error)
	List() []model.Batch
	Item(batchID, itemID string) (model.GenerationItem, error)
	RetryItem(batchID, itemID string) error
	Media(batchID, itemID string, index int, kind model.MediaKind) (model.Asset, error)
	MediaLinks(ctx context.Context, batchID, itemID string, expires time.Duration) ([]services.MediaLink, error)
	History(ctx context.Context, batchID string) ([]gateway.LedgerRow, error)
	RecentHistory(ctx context.Context, limit int) ([]gateway.LedgerRow, error)
}

// Productions registers the production routes on r.
func Productions(r *gin.RouterGroup, svc Service) {
	productions := r.Group("/productions")
	{
		productions.POST("", func(c *gin.Context) {
			var req model.ProductionRequest
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			req.Credential = c.GetHeader(CredentialHeader)
			batch, err := svc.Submit(c.Request.Context(), req)
			if err != nil {
				respondError(c, err)
				return
			}
			c.JSON(http.StatusAccepted, batch)
		})

		productions.GET("", func(c *gin.Context) {
			c.JSON(http.StatusOK, svc.List())
		})

		productions.GET("/:id", func(c *gin.Context) {
			batch, err := svc.Get(c.Param("id"))
			if err != nil {
				respondError(c, err)
				return
			}
			c.JSON(http.StatusOK, batch)
		})

		items := productions.Group("/:id/items/:item")
		items.GET("", func(c *gin.Context) {
			item, err := svc.Item(c.Param("id"), c.Param("item"))
			if err != nil {
				respondError(c, err)
				return
			}
			c.JSON(http.StatusOK, item)
		})

		items.POST("/retry", func(c *gin.Context) {
			if err := svc.RetryItem(c.Param("id"), c.Param("item")); err != nil {
				respondError(c, err)
				return
			}
			c.JSON(http.StatusAccepted, gin.H{"status": "retrying"})
		})

		items.GET("/media", func(c *gin.Context) {
			links, err := svc.MediaLinks(c.Request.Context(), c.Param("id"), c.Param("item"), mediaURLExpiry)
			if err != nil {
				respondError(c, err)
				return
			}
			c.JSON(http.StatusOK, links)
		})

		items.GET("/scenes/:index/:kind", func(c *gin.Context) {
			index, err := strconv.Atoi(c.Param("index"))
			if err != nil || index < 1 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "scene index must be a positive integer"})
				return
			}
			asset, err := svc.Media(c.Param("id"), c.Param("item"), index, model.MediaKind(c.Param("kind")))
			if err != nil {
				respondError(c, err)
				return
			}
			c.Data(http.StatusOK, asset.MIMEType, asset.Data)
		})
	}
}

// History registers the ledger routes on r.
func History(r *gin.RouterGroup, svc Service) {
	history := r.Group("/history")
	{
		history.GET("", func(c *gin.Context) {
			limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultHistoryLimit)))
			if err != nil || limit < 1 {
				limit = defaultHistoryLimit
			}
			rows, err := svc.RecentHistory(c.Request.Context(), limit)
			if err != nil {
				respondError(c, err)
				return
			}
			c.JSON(http.StatusOK, rows)
		})

		history.GET("/:id", func(c *gin.Context) {
			rows, err := svc.History(c.Request.Context(), c.Param("id"))
			if err != nil {
				respondError(c, err)
				return
			}
			c.JSON(http.StatusOK, rows)
		})
	}
}

func respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, model.ErrInvalidRequest):
		status = http.StatusBadRequest
	case errors.Is(err, services.ErrNotFound), errors.Is(err, services.ErrNoMedia):
		status = http.StatusNotFound
	case errors.Is(err, services.ErrNotRetryable):
		status = http.StatusConflict
	case errors.Is(err, services.ErrHistoryDisabled):
		status = http.StatusNotImplemented
	}
	if status == http.StatusInternalServerError {
		slog.ErrorContext(c.Request.Context(), "request failed", "path", c.FullPath(), "error", err)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
