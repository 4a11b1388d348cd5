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

package gateway_test

import (
	"context"
	"errors"
	"testing"

	"github.com/jaycherian/gcp-go-media-studio/internal/core/model"
	"github.com/jaycherian/gcp-go-media-studio/internal/gateway"
	test "github.com/jaycherian/gcp-go-media-studio/internal/testutil"
	"github.com/zeebo/assert"
)

type rowRecorder struct {
	rows []*gateway.LedgerRow
	err  error
}

func (r *rowRecorder) Put(_ context.Context, src any) error {
	if r.err != nil {
		return r.err
	}
	r.rows = append(r.rows, src.(*gateway.LedgerRow))
	return nil
}

func TestLedgerRecordsCalls(t *testing.T) {
	memory := gateway.NewMemory()
	rows := &rowRecorder{}
	ledger := gateway.NewLedger(memory, rows)
	ctx := context.Background()

	handle, err := ledger.InitBatch(ctx, test.GetTestProductionRequest())
	assert.NoError(t, err)
	assert.NoError(t, ledger.SetStep(ctx, handle.BatchID, handle.ItemIDs[0], model.StatusCreatingStoryboard))
	assert.NoError(t, ledger.SetVideoFile(ctx, handle.BatchID, handle.ItemIDs[0], model.Asset{Data: []byte("clip")}, 1))

	assert.Equal(t, len(rows.rows), 3)
	assert.Equal(t, rows.rows[0].Op, gateway.OpInit)
	assert.Equal(t, rows.rows[1].Status, "CREATING_STORYBOARD")
	assert.Equal(t, rows.rows[2].SceneIndex, 1)
	assert.Equal(t, rows.rows[2].Size, 4)
	assert.True(t, rows.rows[2].ID != "")
	assert.Equal(t, len(memory.Events()), 3)
}

func TestLedgerRecordsGatewayErrors(t *testing.T) {
	memory := gateway.NewMemory()
	memory.FailOn(gateway.OpComplete, errors.New("backend down"))
	rows := &rowRecorder{}
	ledger := gateway.NewLedger(memory, rows)

	err := ledger.CompleteItem(context.Background(), "b", "i")
	assert.Error(t, err)
	assert.Equal(t, len(rows.rows), 1)
	assert.Equal(t, rows.rows[0].Error, "backend down")
}

func TestLedgerFailureDoesNotFailCall(t *testing.T) {
	ledger := gateway.NewLedger(gateway.NewMemory(), &rowRecorder{err: errors.New("bigquery unavailable")})
	assert.NoError(t, ledger.FailBatch(context.Background(), "b", "all items failed"))
}
