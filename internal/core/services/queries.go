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

// Package services contains the business logic behind the HTTP API. This
// file centralizes the BigQuery SQL used to read the gateway ledger. The
// table name is injected with fmt.Sprintf, values are bound as query
// parameters.
package services

const (
	// QryBatchHistory returns every ledger row of one batch, oldest first.
	//
	// Placeholders:
	// - `%s`: The fully qualified name of the ledger table.
	//
	// Parameters:
	// - `@batch_id`: The batch to read.
	QryBatchHistory = "SELECT id, batch_id, item_id, op, status, scene_index, size, detail, error, recorded_at FROM `%s` WHERE batch_id = @batch_id ORDER BY recorded_at ASC"

	// QryRecentBatches returns the most recent batch level outcomes, the
	// terminal rows written when a batch completes or fails.
	//
	// Placeholders:
	// - `%s`: The fully qualified name of the ledger table.
	//
	// Parameters:
	// - `@limit`: The maximum number of rows.
	QryRecentBatches = "SELECT id, batch_id, item_id, op, status, scene_index, size, detail, error, recorded_at FROM `%s` WHERE op IN ('ugc_complete', 'ugc_fail') ORDER BY recorded_at DESC LIMIT @limit"
)
