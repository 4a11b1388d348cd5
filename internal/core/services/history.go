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

package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/bigquery"
	"github.com/jaycherian/gcp-go-media-studio/internal/gateway"
	"google.golang.org/api/iterator"
)

// HistoryService reads the gateway ledger from BigQuery.
type HistoryService struct {
	BigqueryClient *bigquery.Client // Client for interacting with Google BigQuery.
	DatasetName    string           // The ledger dataset.
	LedgerTable    string           // The ledger table.
}

// GetFQN returns the fully qualified, query ready name of the ledger table.
// Example: `gcp-project-id.studio_ds.gateway_ledger`
func (s *HistoryService) GetFQN() string {
	fqn := s.BigqueryClient.Dataset(s.DatasetName).Table(s.LedgerTable).FullyQualifiedName()
	return strings.Replace(fqn, ":", ".", -1)
}

// Batch returns the ledger rows of batchID in the order they were written.
//
// Inputs:
//   - ctx: The context for the request.
//   - batchID: The batch to read.
//
// Outputs:
//   - []gateway.LedgerRow: The rows, empty when the batch is unknown.
//   - error: When the query fails.
func (s *HistoryService) Batch(ctx context.Context, batchID string) ([]gateway.LedgerRow, error) {
	q := s.BigqueryClient.Query(fmt.Sprintf(QryBatchHistory, s.GetFQN()))
	q.Parameters = []bigquery.QueryParameter{{Name: "batch_id", Value: batchID}}
	return s.read(ctx, q)
}

// Recent returns the latest batch outcomes, newest first.
func (s *HistoryService) Recent(ctx context.Context, limit int) ([]gateway.LedgerRow, error) {
	if limit <= 0 {
		limit = 20
	}
	q := s.BigqueryClient.Query(fmt.Sprintf(QryRecentBatches, s.GetFQN()))
	q.Parameters = []bigquery.QueryParameter{{Name: "limit", Value: limit}}
	return s.read(ctx, q)
}

func (s *HistoryService) read(ctx context.Context, q *bigquery.Query) ([]gateway.LedgerRow, error) {
	itr, err := q.Read(ctx)
	if err != nil {
		return nil, err
	}
	rows := make([]gateway.LedgerRow, 0)
	for {
		var row gateway.LedgerRow
		err := itr.Next(&row)
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	return rows, nil
}
