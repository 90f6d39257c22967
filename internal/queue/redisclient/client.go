package redisclient

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// wake channel nudges the worker so it can poll lazily between signals
const WakeChannel = "taskhub:jobs:wake"

type Client struct {
	redisdb *redis.Client
}

type Config struct {
	Addr     string
	Password string
	DB       int
}

func New(cfg Config) *Client {
	redisdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})

	return &Client{redisdb: redisdb}
}

// this ping function checks redis connectivity

func (c *Client) Ping(ctx context.Context) error {
	return c.redisdb.Ping(ctx).Err()
}

func (c *Client) Close() error {
	return c.redisdb.Close()
}

// Wake nudges any subscribed worker that new jobs were committed.
func (c *Client) Wake(ctx context.Context) error {
	return c.redisdb.Publish(ctx, WakeChannel, "1").Err()
}

// Subscribe returns the wake-up subscription for the worker loop.
func (c *Client) Subscribe(ctx context.Context) *redis.PubSub {
	return c.redisdb.Subscribe(ctx, WakeChannel)
}

// WakeListener adapts the pub/sub subscription to a plain signal channel
// so the worker loop does not depend on redis types.
type WakeListener struct {
	ps *redis.PubSub
	ch chan struct{}
}

func (c *Client) Listen(ctx context.Context) *WakeListener {
	ps := c.redisdb.Subscribe(ctx, WakeChannel)

	wl := &WakeListener{ps: ps, ch: make(chan struct{}, 1)}

	go func() {
		for range ps.Channel() {
			select {
			case wl.ch <- struct{}{}:
			default: // a pending signal already covers this wake
			}
		}
		close(wl.ch)
	}()

	return wl
}

func (wl *WakeListener) Channel() <-chan struct{} { return wl.ch }

func (wl *WakeListener) Close() error { return wl.ps.Close() }

// this exposes the redis client for callers that need raw commands

func (c *Client) Raw() *redis.Client {
	return c.redisdb
}
