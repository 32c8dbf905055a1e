package redisclient

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/gosimple/slug"
)

//go:embed scripts/invalidate_schema.lua
var invalidateSchemaScript string

//go:embed scripts/release_lock.lua
var releaseLockScript string

// ErrLockHeld is returned when a lock is owned by another holder.
var ErrLockHeld = errors.New("lock is held by another request")

type Client struct {
	rdb              *redis.Client
	invalidateScript *redis.Script
	releaseScript    *redis.Script
}

// NewClient creates a new Redis client with Lua scripts loaded
func NewClient(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return New(rdb), nil
}

// New wraps an existing client without pinging it.
func New(rdb *redis.Client) *Client {
	return &Client{
		rdb:              rdb,
		invalidateScript: redis.NewScript(invalidateSchemaScript),
		releaseScript:    redis.NewScript(releaseLockScript),
	}
}

// GetClient returns the underlying Redis client
func (c *Client) GetClient() *redis.Client {
	return c.rdb
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping checks the connection is alive
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// SchemaKey identifies one cached synthesized schema.
type SchemaKey struct {
	SubCategory string
	StoreID     string
	Gender      string
	Brand       string
}

func part(s string) string {
	if p := slug.Make(s); p != "" {
		return p
	}
	return "_"
}

func (k SchemaKey) String() string {
	return strings.Join([]string{"schema", part(k.SubCategory), part(k.StoreID), part(k.Gender), part(k.Brand)}, ":")
}

func schemaIndexKey(subCategory string) string {
	return "schema-index:" + part(subCategory)
}

// GetSchema returns a cached schema document. The bool is false on a miss.
func (c *Client) GetSchema(ctx context.Context, key SchemaKey) ([]byte, bool, error) {
	data, err := c.rdb.Get(ctx, key.String()).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read schema cache: %w", err)
	}
	return data, true, nil
}

// SetSchema caches a schema document and records it in the sub-category's
// index so it can be invalidated as a group.
func (c *Client) SetSchema(ctx context.Context, key SchemaKey, data []byte, ttl time.Duration) error {
	index := schemaIndexKey(key.SubCategory)

	pipe := c.rdb.TxPipeline()
	pipe.Set(ctx, key.String(), data, ttl)
	pipe.SAdd(ctx, index, key.String())
	pipe.Expire(ctx, index, ttl)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to write schema cache: %w", err)
	}
	return nil
}

// InvalidateSchemas drops every cached schema of a sub-category
func (c *Client) InvalidateSchemas(ctx context.Context, subCategory string) (int64, error) {
	result, err := c.invalidateScript.Run(ctx, c.rdb, []string{schemaIndexKey(subCategory)}).Result()
	if err != nil {
		return 0, fmt.Errorf("invalidate schema script failed: %w", err)
	}

	removed, ok := result.(int64)
	if !ok {
		return 0, fmt.Errorf("unexpected script result type")
	}
	return removed, nil
}

// Lock is a held distributed lock.
type Lock struct {
	key   string
	token string
}

// AcquireLock acquires a distributed lock, failing with ErrLockHeld if it
// is already taken.
func (c *Client) AcquireLock(ctx context.Context, lockKey string, ttl time.Duration) (*Lock, error) {
	lock := &Lock{key: "lock:" + lockKey, token: uuid.New().String()}

	ok, err := c.rdb.SetNX(ctx, lock.key, lock.token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrLockHeld, lockKey)
	}
	return lock, nil
}

// ReleaseLock releases a lock if it is still owned by the caller
func (c *Client) ReleaseLock(ctx context.Context, lock *Lock) error {
	if lock == nil {
		return nil
	}
	_, err := c.releaseScript.Run(ctx, c.rdb, []string{lock.key}, lock.token).Result()
	if err != nil {
		return fmt.Errorf("release lock script failed: %w", err)
	}
	return nil
}
