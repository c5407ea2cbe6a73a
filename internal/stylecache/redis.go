package stylecache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/redis/go-redis/v9"

	"github.com/fyrsmithlabs/stylerank/internal/style"
)

// DefaultPrefix namespaces cache keys in a shared Redis.
const DefaultPrefix = "stylerank:style:"

// encMode uses Core Deterministic Encoding so equal profiles produce
// identical bytes.
var encMode cbor.EncMode

var decMode cbor.DecMode

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("stylecache: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("stylecache: CBOR decoder initialization failed: " + err.Error())
	}
}

// Encode serializes a profile for storage.
func Encode(p style.Profile) ([]byte, error) {
	return encMode.Marshal(p)
}

// Decode restores a profile written by Encode.
func Decode(data []byte) (style.Profile, error) {
	var p style.Profile
	if err := decMode.Unmarshal(data, &p); err != nil {
		return style.Profile{}, err
	}
	return p, nil
}

// RedisConfig holds the Redis connection settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int

	// Prefix is prepended to every key. Default: DefaultPrefix
	Prefix string

	// TTL expires entries. Zero keeps them forever.
	TTL time.Duration
}

// Redis is a Store backed by Redis, values encoded as CBOR.
type Redis struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

var _ Store = (*Redis)(nil)

// NewRedis connects to Redis and verifies the connection with PING.
func NewRedis(ctx context.Context, cfg RedisConfig) (*Redis, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redis address required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connecting to redis at %s: %w", cfg.Addr, err)
	}
	return NewRedisFromClient(client, cfg.Prefix, cfg.TTL), nil
}

// NewRedisFromClient wraps an existing client.
func NewRedisFromClient(client redis.UniversalClient, prefix string, ttl time.Duration) *Redis {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Redis{client: client, prefix: prefix, ttl: ttl}
}

// Get implements Store.
func (r *Redis) Get(ctx context.Context, key string) (style.Profile, bool, error) {
	data, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return style.Profile{}, false, nil
	}
	if err != nil {
		return style.Profile{}, false, fmt.Errorf("redis get: %w", err)
	}
	p, err := Decode(data)
	if err != nil {
		return style.Profile{}, false, fmt.Errorf("decoding cached profile: %w", err)
	}
	return p, true, nil
}

// Put implements Store.
func (r *Redis) Put(ctx context.Context, key string, p style.Profile) error {
	data, err := Encode(p)
	if err != nil {
		return fmt.Errorf("encoding profile: %w", err)
	}
	if err := r.client.Set(ctx, r.prefix+key, data, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// HealthCheck sends a PING.
func (r *Redis) HealthCheck(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close closes the client.
func (r *Redis) Close() error {
	return r.client.Close()
}
