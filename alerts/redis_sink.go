// Copyright 2023 The AthanorLabs/atomic-swap Authors
// SPDX-License-Identifier: LGPL-3.0-only

// Package alerts publishes SecurityAlert auth messages to an
// operator-facing channel.
package alerts

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/quantumbridge/bridge/crypto/auth"
)

const securityAlertChannel = "bridge:security_alerts"

// RedisSink publishes signed SecurityAlert messages to a Redis pub/sub
// channel; an operator-facing subscriber is responsible for verifying and
// surfacing them.
type RedisSink struct {
	client *redis.Client
}

// NewRedisSink returns an orchestrator.AlertSink backed by client.
func NewRedisSink(client *redis.Client) *RedisSink {
	return &RedisSink{client: client}
}

// Publish encodes msg and publishes it to the security-alerts channel.
func (s *RedisSink) Publish(ctx context.Context, msg *auth.AuthMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("alerts: encode security alert: %w", err)
	}
	return s.client.Publish(ctx, securityAlertChannel, payload).Err()
}
