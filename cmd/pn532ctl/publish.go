// Copyright 2026 The Zaparoo Project Contributors.
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ZaparooProject/go-pn532-core/polling"
)

// publisher forwards card events out of the process.
type publisher interface {
	Publish(ctx context.Context, ev polling.Event) error
	Close() error
}

// logPublisher only logs; it is used when no Redis server is configured.
type logPublisher struct {
	log *slog.Logger
}

func (p logPublisher) Publish(_ context.Context, ev polling.Event) error {
	p.log.Info("card "+ev.Kind.String(), "uid", hex.EncodeToString(ev.UID))
	return nil
}

func (logPublisher) Close() error { return nil }

// redisPublisher keeps the current card in a hash and announces every
// change on a channel. Subscribers get the event kind as the message and
// read the hash for details.
type redisPublisher struct {
	client  *redis.Client
	log     *slog.Logger
	key     string
	channel string
}

func newRedisPublisher(ctx context.Context, cfg RedisConfig, log *slog.Logger) (*redisPublisher, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis at %s: %w", cfg.Addr, err)
	}
	return &redisPublisher{client: client, log: log, key: cfg.Key, channel: cfg.Channel}, nil
}

// eventFields is the hash written for ev.
func eventFields(ev polling.Event) map[string]any {
	fields := map[string]any{
		"present": strconv.FormatBool(ev.Kind == polling.EventArrived),
		"uid":     hex.EncodeToString(ev.UID),
		"at":      ev.At.UTC().Format(time.RFC3339Nano),
	}
	if ev.Target != nil {
		fields["atqa"] = hex.EncodeToString(ev.Target.ATQA[:])
		fields["sak"] = fmt.Sprintf("%02x", ev.Target.SAK)
	}
	return fields
}

func (p *redisPublisher) Publish(ctx context.Context, ev polling.Event) error {
	pipe := p.client.TxPipeline()
	if ev.Kind == polling.EventRemoved {
		// stale card details must not outlive the card
		pipe.HDel(ctx, p.key, "atqa", "sak")
	}
	pipe.HSet(ctx, p.key, eventFields(ev))
	pipe.Publish(ctx, p.channel, ev.Kind.String())
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis pipeline execution failed: %w", err)
	}
	p.log.Debug("published card event", "channel", p.channel, "kind", ev.Kind.String())
	return nil
}

func (p *redisPublisher) Close() error {
	return p.client.Close()
}
