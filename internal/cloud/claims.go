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

package cloud

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DeliveryClaimer guards a message against concurrent or repeated processing.
type DeliveryClaimer interface {
	// Claim returns false when another delivery of id holds the claim.
	Claim(ctx context.Context, id string) (bool, error)
	// Release drops the claim so a redelivery may process id again.
	Release(ctx context.Context, id string) error
}

// DeliveryClaims stores claims in Redis with SETNX and a TTL. A production
// batch runs for minutes, far beyond the Pub/Sub ack deadline, so the same
// message is commonly redelivered while its first delivery is still running.
type DeliveryClaims struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewDeliveryClaims creates claims stored under prefix.
func NewDeliveryClaims(client redis.UniversalClient, prefix string, ttl time.Duration) *DeliveryClaims {
	return &DeliveryClaims{client: client, prefix: prefix, ttl: ttl}
}

func (d *DeliveryClaims) key(id string) string {
	return d.prefix + ":claim:" + id
}

func (d *DeliveryClaims) Claim(ctx context.Context, id string) (bool, error) {
	ok, err := d.client.SetNX(ctx, d.key(id), time.Now().UTC().Format(time.RFC3339), d.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to claim delivery %s: %w", id, err)
	}
	return ok, nil
}

func (d *DeliveryClaims) Release(ctx context.Context, id string) error {
	if err := d.client.Del(ctx, d.key(id)).Err(); err != nil {
		return fmt.Errorf("failed to release delivery %s: %w", id, err)
	}
	return nil
}
