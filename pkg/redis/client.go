package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/redis/go-redis/v9"
)

// Keys are laid out as <namespace>:<kind>:<parts...>.
const (
	defaultNamespace = "storefront"
	idempotencyKind  = "idem"
	lockKind         = "lock"
)

// ErrNotInitialized is returned by every command on a zero Client.
var ErrNotInitialized = errors.New("redis client not initialized")

var deleteIfValueScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

var expireIfValueScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

type commands interface {
	redis.Scripter
	Ping(context.Context) *redis.StatusCmd
	Set(context.Context, string, any, time.Duration) *redis.StatusCmd
	Get(context.Context, string) *redis.StringCmd
	SetNX(context.Context, string, any, time.Duration) *redis.BoolCmd
	Del(context.Context, ...string) *redis.IntCmd
}

// Client is the shared Redis handle for locks, request idempotency records
// and webhook event claims.
type Client struct {
	cmd       commands
	raw       *redis.Client
	namespace string
}

// Pinger exposes the health-check surface.
type Pinger interface {
	Ping(context.Context) error
}

// IdempotencyStore is the surface used by the request and webhook
// idempotency helpers.
type IdempotencyStore interface {
	Get(context.Context, string) (string, error)
	Set(context.Context, string, any, time.Duration) error
	SetNX(context.Context, string, any, time.Duration) (bool, error)
	DeleteIfValue(ctx context.Context, key, value string) (bool, error)
	IdempotencyKey(scope, id string) string
}

// Option customizes a Client.
type Option func(*Client)

// WithNamespace overrides the key namespace. Blank values are ignored.
func WithNamespace(namespace string) Option {
	return func(c *Client) {
		if ns := strings.TrimSpace(namespace); ns != "" {
			c.namespace = ns
		}
	}
}

// New dials Redis with the configured pool and timeouts and pings it once.
func New(ctx context.Context, cfg config.RedisConfig, logg *logger.Logger) (*Client, error) {
	opts, err := optionsFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	raw := redis.NewClient(opts)
	if err := raw.Ping(ctx).Err(); err != nil {
		_ = raw.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	client := FromRedis(raw, WithNamespace(cfg.KeyPrefix))
	if logg != nil {
		logg.Info(logg.WithField(ctx, "redis_namespace", client.namespace), "redis connection established")
	}
	return client, nil
}

// FromRedis wraps an existing go-redis client.
func FromRedis(raw *redis.Client, opts ...Option) *Client {
	c := &Client{cmd: raw, raw: raw, namespace: defaultNamespace}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func optionsFromConfig(cfg config.RedisConfig) (*redis.Options, error) {
	var opts *redis.Options
	switch {
	case cfg.URL != "":
		parsed, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("parsing redis url: %w", err)
		}
		opts = parsed
		if opts.DB == 0 {
			opts.DB = cfg.DB
		}
	case cfg.Address != "":
		opts = &redis.Options{Addr: cfg.Address, Password: cfg.Password, DB: cfg.DB}
	default:
		return nil, errors.New("redis url or address is required")
	}

	opts.PoolSize = firstPositive(opts.PoolSize, cfg.PoolSize)
	opts.MinIdleConns = firstPositive(opts.MinIdleConns, cfg.MinIdleConns)
	opts.DialTimeout = firstPositiveDuration(opts.DialTimeout, cfg.DialTimeout)
	opts.ReadTimeout = firstPositiveDuration(opts.ReadTimeout, cfg.ReadTimeout)
	opts.WriteTimeout = firstPositiveDuration(opts.WriteTimeout, cfg.WriteTimeout)
	return opts, nil
}

func firstPositive(values ...int) int {
	for _, v := range values {
		if v > 0 {
			return v
		}
	}
	return 0
}

func firstPositiveDuration(values ...time.Duration) time.Duration {
	for _, v := range values {
		if v > 0 {
			return v
		}
	}
	return 0
}

// Set stores value at key. ttl 0 keeps the key forever.
func (c *Client) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	if c.cmd == nil {
		return ErrNotInitialized
	}
	return c.cmd.Set(ctx, key, value, ttl).Err()
}

// Get returns the value at key. Missing keys return redis.Nil.
func (c *Client) Get(ctx context.Context, key string) (string, error) {
	if c.cmd == nil {
		return "", ErrNotInitialized
	}
	return c.cmd.Get(ctx, key).Result()
}

// SetNX writes value only if key is absent and reports whether it did.
func (c *Client) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if c.cmd == nil {
		return false, ErrNotInitialized
	}
	return c.cmd.SetNX(ctx, key, value, ttl).Result()
}

// Del removes keys unconditionally.
func (c *Client) Del(ctx context.Context, keys ...string) error {
	if c.cmd == nil {
		return ErrNotInitialized
	}
	return c.cmd.Del(ctx, keys...).Err()
}

// DeleteIfValue removes key only while it still holds value. It is the
// release half of every owner-token lock in the service.
func (c *Client) DeleteIfValue(ctx context.Context, key, value string) (bool, error) {
	if c.cmd == nil {
		return false, ErrNotInitialized
	}
	n, err := deleteIfValueScript.Run(ctx, c.cmd, []string{key}, value).Int64()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// ExpireIfValue resets the TTL of key only while it still holds value.
func (c *Client) ExpireIfValue(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	if c.cmd == nil {
		return false, ErrNotInitialized
	}
	n, err := expireIfValueScript.Run(ctx, c.cmd, []string{key}, value, ttl.Milliseconds()).Int64()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// IdempotencyKey namespaces an idempotency record under scope.
func (c *Client) IdempotencyKey(scope, id string) string {
	return c.buildKey(idempotencyKind, scope, id)
}

// LockKey namespaces a distributed lock.
func (c *Client) LockKey(name string) string {
	return c.buildKey(lockKind, name)
}

// Namespace is the prefix shared by every key this client builds.
func (c *Client) Namespace() string {
	if c.namespace == "" {
		return defaultNamespace
	}
	return c.namespace
}

// Ping verifies the connection.
func (c *Client) Ping(ctx context.Context) error {
	if c.cmd == nil {
		return ErrNotInitialized
	}
	return c.cmd.Ping(ctx).Err()
}

// Close shuts down the underlying client if available.
func (c *Client) Close() error {
	if c.raw == nil {
		return nil
	}
	return c.raw.Close()
}

func (c *Client) buildKey(kind string, parts ...string) string {
	clean := []string{c.Namespace(), kind}
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			clean = append(clean, part)
		}
	}
	return strings.Join(clean, ":")
}
