package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// KeyType namespaces redis keys per concern.
type KeyType string

const (
	TOKEN_VERIFY  KeyType = "welcome_token_verify"
	POLL_CLAIM    KeyType = "welcome_poll_claim"
	MEMBER_LOOKUP KeyType = "welcome_member_lookup"
)

// RedisConfig holds connection parameters.
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

var ErrKeyNotExist = redis.Nil

// RedisServiceInterface is the subset of operations the application uses.
type RedisServiceInterface interface {
	GenerateKey(keyType KeyType, identifier string) string
	GetValue(ctx context.Context, key string) (string, error)
	SetValue(ctx context.Context, key string, value string, ttl time.Duration) error
	SetIfAbsent(ctx context.Context, key string, value string, ttl time.Duration) (bool, error)
}

// RedisService wraps a go-redis client.
type RedisService struct {
	client *redis.Client
}

// NewRedisService connects and pings within a short timeout.
func NewRedisService(config *RedisConfig) (*RedisService, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", config.Host, config.Port),
		Password: config.Password,
		DB:       config.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := client.Ping(ctx).Result(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisService{client: client}, nil
}

// GenerateKey builds a namespaced key for the given key type and identifier.
func (r *RedisService) GenerateKey(keyType KeyType, identifier string) string {
	return fmt.Sprintf("%s:%s", string(keyType), identifier)
}

// GetValue gets a value from Redis by key.
func (r *RedisService) GetValue(ctx context.Context, key string) (string, error) {
	val, err := r.client.Get(ctx, key).Result()
	if err != nil {
		return "", err
	}
	return val, nil
}

// SetValue sets a value in Redis with TTL.
func (r *RedisService) SetValue(ctx context.Context, key string, value string, ttl time.Duration) error {
	return r.client.Set(ctx, key, value, ttl).Err()
}

// SetIfAbsent sets a value only when the key does not exist. Returns whether the
// value was written.
func (r *RedisService) SetIfAbsent(ctx context.Context, key string, value string, ttl time.Duration) (bool, error) {
	return r.client.SetNX(ctx, key, value, ttl).Result()
}

// Close releases the underlying client.
func (r *RedisService) Close() error {
	return r.client.Close()
}
