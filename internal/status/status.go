// Copyright (C) 2018 Rob Caelers <rob.caelers@gmail.com>
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.

// Package status publishes upgrade progress and outcome to an external
// observer, so a supervising process does not have to scrape stdout to know
// whether a device finished flashing.
package status

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

const statusKey = "dfu:status"

// Publisher reports upgrade lifecycle events. The zero-value Noop satisfies
// it for callers that did not configure a Redis address.
type Publisher interface {
	Progress(written, total int64)
	Outcome(outcome string)
	Close() error
}

// Noop discards every event; used when dfuconfig.Config.RedisAddr is empty.
type Noop struct{}

func (Noop) Progress(written, total int64) {}
func (Noop) Outcome(outcome string)        {}
func (Noop) Close() error                  { return nil }

// RedisPublisher writes progress and outcome into a hash and pipelines a
// publish alongside each write, the same write-then-publish shape the
// vehicle's bluetooth service uses for its own Redis-backed state.
type RedisPublisher struct {
	client *redis.Client
	ctx    context.Context
}

// NewRedisPublisher dials addr and verifies connectivity with PING before
// returning, so an unreachable address is reported as an error to the caller
// rather than surfacing later as dropped status updates.
func NewRedisPublisher(addr string) (*RedisPublisher, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	ctx := context.Background()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, errors.Wrap(err, "failed to connect to Redis")
	}

	return &RedisPublisher{client: client, ctx: ctx}, nil
}

func (p *RedisPublisher) writeAndPublish(field, value string) {
	pipe := p.client.Pipeline()
	pipe.HSet(p.ctx, statusKey, field, value)
	pipe.Publish(p.ctx, statusKey, fmt.Sprintf("%s:%s", field, value))
	_, _ = pipe.Exec(p.ctx)
}

// Progress publishes the running byte count of the current object transfer.
func (p *RedisPublisher) Progress(written, total int64) {
	p.writeAndPublish("progress", fmt.Sprintf("%d/%d", written, total))
}

// Outcome publishes the terminal result of an upgrade run.
func (p *RedisPublisher) Outcome(outcome string) {
	p.writeAndPublish("outcome", outcome)
}

// Close releases the underlying Redis connection.
func (p *RedisPublisher) Close() error {
	return p.client.Close()
}
