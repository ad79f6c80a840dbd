package transcript

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/harunnryd/roundtable/pkg/resilience"
)

// RedisConfig configures the redis transcript backup.
type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Prefix   string        `mapstructure:"prefix"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// RedisClient is the part of *redis.Client the backup uses.
type RedisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Close() error
}

// RedisBackup keeps each transcript under <prefix>:<owner> as one JSON value.
type RedisBackup struct {
	client RedisClient
	prefix string
	ttl    time.Duration
}

// NewRedisBackup connects and pings with exponential backoff before returning.
func NewRedisBackup(ctx context.Context, cfg RedisConfig, retry resilience.RetryPolicy) (*RedisBackup, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	err := retry.Do(ctx, func() error {
		return client.Ping(ctx).Err()
	})
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Addr, err)
	}
	return NewRedisBackupWithClient(client, cfg.Prefix, cfg.TTL), nil
}

func NewRedisBackupWithClient(client RedisClient, prefix string, ttl time.Duration) *RedisBackup {
	if prefix == "" {
		prefix = "roundtable:transcript"
	}
	return &RedisBackup{client: client, prefix: prefix, ttl: ttl}
}

func (b *RedisBackup) key(owner string) string {
	return b.prefix + ":" + owner
}

func (b *RedisBackup) Load(ctx context.Context, owner string) ([]Message, error) {
	data, err := b.client.Get(ctx, b.key(owner)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNoBackup
	}
	if err != nil {
		return nil, err
	}
	var msgs []Message
	if err := json.Unmarshal(data, &msgs); err != nil {
		return nil, fmt.Errorf("parse %s: %w", b.key(owner), err)
	}
	return msgs, nil
}

func (b *RedisBackup) Save(ctx context.Context, owner string, messages []Message) error {
	if messages == nil {
		messages = []Message{}
	}
	data, err := json.Marshal(messages)
	if err != nil {
		return err
	}
	return b.client.Set(ctx, b.key(owner), data, b.ttl).Err()
}

func (b *RedisBackup) Close() error {
	return b.client.Close()
}
