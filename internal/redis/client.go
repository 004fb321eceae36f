package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	connectTimeout = 5 * time.Second
	channelPrefix  = "ledger:"
)

// Client is the connection shared by the rate limiter and the event broker.
type Client struct {
	*redis.Client
}

// NewClient parses redisURL and returns once the server answers a ping.
func NewClient(ctx context.Context, redisURL string) (*Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis at %s: %w", opts.Addr, err)
	}

	return &Client{client}, nil
}

// Check reports whether the server is reachable. It backs the health endpoint.
func (c *Client) Check(ctx context.Context) error {
	return c.Client.Ping(ctx).Err()
}

// LedgerChannel is the pub/sub channel carrying balance events for one account.
func LedgerChannel(accountID string) string {
	return channelPrefix + accountID
}
