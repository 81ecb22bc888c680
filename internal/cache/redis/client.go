// Package redis implements the shared quote cache, scan lock, signal bus and
// API rate limiter on top of go-redis/v9.
package redis

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

// DefaultNamespace prefixes every key when ClientConfig.Namespace is empty.
const DefaultNamespace = "polyarb"

// ClientConfig holds connection parameters for the Redis client. Replicas
// that should share a scan lock and quote cache must use the same Namespace.
type ClientConfig struct {
	Addr       string
	Password   string
	DB         int
	PoolSize   int
	MaxRetries int
	TLSEnabled bool
	Namespace  string
}

// Client is a pinged go-redis client plus the key namespace shared by the
// components built from it.
type Client struct {
	rdb  *redis.Client
	keys keyspace
}

// New connects and pings Redis.
func New(ctx context.Context, cfg ClientConfig) (*Client, error) {
	opts := &redis.Options{
		Addr:       cfg.Addr,
		Password:   cfg.Password,
		DB:         cfg.DB,
		PoolSize:   cfg.PoolSize,
		MaxRetries: cfg.MaxRetries,
	}
	if cfg.TLSEnabled {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis: ping %s: %w", cfg.Addr, err)
	}
	return &Client{rdb: rdb, keys: newKeyspace(cfg.Namespace)}, nil
}

// Close closes the Redis connection pool.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// keyspace builds namespaced keys: "<ns>:<kind>:<name>".
type keyspace string

func newKeyspace(ns string) keyspace {
	ns = strings.Trim(strings.TrimSpace(ns), ":")
	if ns == "" {
		ns = DefaultNamespace
	}
	return keyspace(ns + ":")
}

func (k keyspace) lock(name string) string { return string(k) + "lock:" + name }
func (k keyspace) quotes(pair string) string { return string(k) + "quotes:" + pair }
func (k keyspace) rateLimit(key string) string { return string(k) + "ratelimit:" + key }
func (k keyspace) channel(name string) string { return string(k) + name }
