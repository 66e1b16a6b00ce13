// Package redisstate publishes committed multiplier tables to Redis so the
// live bot can pick them up without reading feature_store files.
//
// Each table is stored at <prefix><learner> and an update notice is sent on
// the configured channel.
package redisstate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"gate-learner/internal/domain"
	"gate-learner/internal/storage"
)

// Defaults used when Options leave them empty.
const (
	DefaultChannel   = "learner-updates"
	DefaultKeyPrefix = "learner:"
)

// Options configures the Redis connection and naming.
type Options struct {
	Addr      string
	Password  string
	DB        int
	Channel   string
	KeyPrefix string
}

// Notice is the message sent on the update channel.
type Notice struct {
	Learner   string    `json:"learner"`
	Key       string    `json:"key"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Publisher implements storage.Publisher on a Redis client.
type Publisher struct {
	client    *redis.Client
	channel   string
	keyPrefix string
}

// Compile-time interface check.
var _ storage.Publisher = (*Publisher)(nil)

// Connect opens a client and verifies it with PING.
func Connect(ctx context.Context, opts Options) (*Publisher, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", opts.Addr, err)
	}

	return New(client, opts.Channel, opts.KeyPrefix), nil
}

// New wraps an existing client.
func New(client *redis.Client, channel, keyPrefix string) *Publisher {
	if channel == "" {
		channel = DefaultChannel
	}
	if keyPrefix == "" {
		keyPrefix = DefaultKeyPrefix
	}
	return &Publisher{client: client, channel: channel, keyPrefix: keyPrefix}
}

// Key returns the Redis key holding a learner's table.
func (p *Publisher) Key(learner string) string {
	return p.keyPrefix + learner
}

// Channel returns the update channel name.
func (p *Publisher) Channel() string {
	return p.channel
}

// Publish stores the table and announces it in one MULTI/EXEC.
func (p *Publisher) Publish(ctx context.Context, learner string, t *domain.MultiplierTable) error {
	if learner == "" || t == nil {
		return storage.ErrInvalidInput
	}

	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("encode %s table: %w", learner, err)
	}
	notice, err := json.Marshal(Notice{Learner: learner, Key: p.Key(learner), UpdatedAt: t.UpdatedAt})
	if err != nil {
		return fmt.Errorf("encode %s notice: %w", learner, err)
	}

	_, err = p.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, p.Key(learner), data, 0)
		pipe.Publish(ctx, p.channel, notice)
		return nil
	})
	if err != nil {
		return fmt.Errorf("publish %s table: %w", learner, err)
	}
	return nil
}

// Load reads a published table. Returns ErrNotFound if the key is absent.
func (p *Publisher) Load(ctx context.Context, learner string) (*domain.MultiplierTable, error) {
	data, err := p.client.Get(ctx, p.Key(learner)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get %s table: %w", learner, err)
	}

	var t domain.MultiplierTable
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("decode %s table: %v: %w", learner, err, storage.ErrCorrupt)
	}
	return &t, nil
}

// Close closes the client.
func (p *Publisher) Close() error {
	return p.client.Close()
}
