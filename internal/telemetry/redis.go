package telemetry

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// RedisConfig configures the Redis stream sink. An empty Addr disables it.
type RedisConfig struct {
	Addr     string `json:"addr" toml:"addr" yaml:"addr"`
	Username string `json:"username,omitempty" toml:"username" yaml:"username"`
	Password string `json:"password,omitempty" toml:"password" yaml:"password"`
	DB       int    `json:"db" toml:"db" yaml:"db"`
	Stream   string `json:"stream" toml:"stream" yaml:"stream"`
	MaxLen   int64  `json:"maxLen" toml:"maxLen" yaml:"maxLen"` // stream trim length, 0 = 10000
}

// RedisSink appends records to a Redis stream with XADD.
type RedisSink struct {
	client *redis.Client
	stream string
	maxLen int64
}

// NewRedisSink connects and pings the server.
func NewRedisSink(ctx context.Context, cfg RedisConfig) (*RedisSink, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis address required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Username: cfg.Username,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	stream := cfg.Stream
	if stream == "" {
		stream = "voxnote:telemetry"
	}
	maxLen := cfg.MaxLen
	if maxLen <= 0 {
		maxLen = 10000
	}
	return &RedisSink{client: client, stream: stream, maxLen: maxLen}, nil
}

func (s *RedisSink) Name() string { return "redis" }

func (s *RedisSink) Write(ctx context.Context, r Record) error {
	return s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: s.stream,
		MaxLen: s.maxLen,
		Values: map[string]any{
			"providerId":   r.ProviderID,
			"success":      strconv.FormatBool(r.Success),
			"usedFallback": string(r.UsedFallback),
			"elapsedMs":    r.ElapsedMs,
			"inputLength":  r.InputLength,
			"outputLength": r.OutputLength,
			"errorKind":    r.ErrorKind,
			"at":           r.At.UnixMilli(),
		},
	}).Err()
}

func (s *RedisSink) Close() error {
	return s.client.Close()
}
