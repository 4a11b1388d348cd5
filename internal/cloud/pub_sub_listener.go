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
// This file defines the Pub/Sub listener that feeds production requests into a
// command chain.
//
// Logic Flow:
//  1. A PubSubListener is created with a client and a subscription ID, and a
//     command is attached once the workflows are built.
//  2. Listen starts a goroutine receiving messages from the subscription.
//  3. When a claimer is configured, a message whose delivery is already
//     claimed is acknowledged and skipped.
//  4. The message data becomes the CtxIn of a fresh chain context and the
//     command runs.
//  5. The message is acknowledged only if the chain finished without errors.
//     Otherwise the claim is released and the message is left for redelivery.
package cloud

import (
	"context"
	"log/slog"

	"cloud.google.com/go/pubsub"
	"github.com/jaycherian/gcp-go-media-studio/internal/core/cor"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// PubSubListener connects a subscription to a processing command.
type PubSubListener struct {
	client       *pubsub.Client       // The client for interacting with the Pub/Sub service.
	subscription *pubsub.Subscription // The subscription this listener pulls messages from.
	command      cor.Command          // The command executed for each message.
	claims       DeliveryClaimer      // Optional duplicate delivery guard.
}

// NewPubSubListener creates a listener.
//
// Inputs:
//   - pubsubClient: An authenticated *pubsub.Client.
//   - subscriptionID: The ID of the subscription.
//   - command: The command run for each message, may be attached later with SetCommand.
//
// Outputs:
//   - *PubSubListener: The listener.
//   - error: Always nil, kept for constructor symmetry.
func NewPubSubListener(
	pubsubClient *pubsub.Client,
	subscriptionID string,
	command cor.Command,
) (cmd *PubSubListener, err error) {
	sub := pubsubClient.Subscription(subscriptionID)
	cmd = &PubSubListener{
		client:       pubsubClient,
		subscription: sub,
		command:      command,
	}
	return cmd, nil
}

// SetCommand attaches command unless one is already set.
func (m *PubSubListener) SetCommand(command cor.Command) {
	if m.command == nil {
		m.command = command
	}
}

// SetClaims attaches a delivery claimer.
func (m *PubSubListener) SetClaims(claims DeliveryClaimer) {
	m.claims = claims
}

// Listen starts receiving in a background goroutine until ctx ends.
func (m *PubSubListener) Listen(ctx context.Context) {
	slog.Info("listening", "subscription", m.subscription.String())

	go func() {
		tracer := otel.Tracer("message-listener")

		err := m.subscription.Receive(ctx, func(_ context.Context, msg *pubsub.Message) {
			spanCtx, span := tracer.Start(ctx, "receive-message")
			defer span.End()
			span.SetAttributes(attribute.String("message_id", msg.ID))

			if m.claims != nil {
				claimed, err := m.claims.Claim(spanCtx, msg.ID)
				if err != nil {
					slog.WarnContext(spanCtx, "delivery claim unavailable, processing anyway", "message_id", msg.ID, "error", err)
				} else if !claimed {
					slog.InfoContext(spanCtx, "duplicate delivery skipped", "message_id", msg.ID)
					span.SetStatus(codes.Ok, "duplicate")
					msg.Ack()
					return
				}
			}

			chainCtx := cor.NewBaseContext()
			defer chainCtx.Close()
			chainCtx.SetContext(spanCtx)
			chainCtx.Add(cor.CtxIn, string(msg.Data))

			m.command.Execute(chainCtx)

			if !chainCtx.HasErrors() {
				span.SetStatus(codes.Ok, "success")
				msg.Ack()
				return
			}

			span.SetStatus(codes.Error, "failed")
			for name, e := range chainCtx.GetErrors() {
				slog.ErrorContext(spanCtx, "error executing chain", "command", name, "error", e)
			}
			if m.claims != nil {
				if err := m.claims.Release(spanCtx, msg.ID); err != nil {
					slog.WarnContext(spanCtx, "failed to release delivery claim", "message_id", msg.ID, "error", err)
				}
			}
		})
		if err != nil {
			slog.Error("error receiving data", "subscription", m.subscription.String(), "error", err)
		}
	}()
}
