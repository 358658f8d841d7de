// Package redisstore is a volatile channel path on Redis. Entries expire on
// their own after the retention window; a sorted set indexes them by creation
// time so sweeps can run against an injected clock.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/csheth/citejump/internal/channel"
)

const (
	keyPrefix = "citejump:entry:"
	indexKey  = "citejump:entries"
)

type record struct {
	DocumentID string `json:"documentId"`
	Payload    []byte `json:"payload"`
	CreatedAt  int64  `json:"createdAt"`
}

// Store keeps channel entries in Redis.
type Store struct {
	client *redis.Client
	ttl    time.Duration
}

// New wraps an existing client. ttl bounds how long Redis keeps an entry.
func New(client *redis.Client, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = channel.DefaultRetention
	}
	return &Store{client: client, ttl: ttl}
}

// Open connects to a redis:// URL and checks the server responds.
func Open(ctx context.Context, rawURL string, ttl time.Duration) (*Store, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return New(client, ttl), nil
}

func (s *Store) Name() string { return "redis" }

func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) Put(ctx context.Context, entry channel.Entry) error {
	value, err := json.Marshal(record{
		DocumentID: entry.DocumentID,
		Payload:    entry.Payload,
		CreatedAt:  entry.CreatedAt.UnixMilli(),
	})
	if err != nil {
		return fmt.Errorf("encode entry: %w", err)
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, keyPrefix+entry.Key, value, s.ttl)
		pipe.ZAdd(ctx, indexKey, redis.Z{Score: float64(entry.CreatedAt.UnixMilli()), Member: entry.Key})
		return nil
	})
	if err != nil {
		return fmt.Errorf("store entry: %w", err)
	}
	return nil
}

// Take reads and deletes the entry and drops it from the creation index in
// one transaction, so a consumed key never lingers in the index.
func (s *Store) Take(ctx context.Context, key string) (channel.Entry, error) {
	var get *redis.StringCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		get = pipe.GetDel(ctx, keyPrefix+key)
		pipe.ZRem(ctx, indexKey, key)
		return nil
	})
	if errors.Is(err, redis.Nil) {
		return channel.Entry{}, channel.ErrNotFound
	}
	if err != nil {
		return channel.Entry{}, fmt.Errorf("take entry: %w", err)
	}
	value, err := get.Bytes()
	if err != nil {
		return channel.Entry{}, fmt.Errorf("take entry: %w", err)
	}

	var rec record
	if err := json.Unmarshal(value, &rec); err != nil {
		return channel.Entry{}, fmt.Errorf("decode entry: %w", err)
	}
	return channel.Entry{
		Key:        key,
		DocumentID: rec.DocumentID,
		Payload:    rec.Payload,
		CreatedAt:  time.UnixMilli(rec.CreatedAt).UTC(),
	}, nil
}

func (s *Store) Sweep(ctx context.Context, cutoff time.Time) (int, error) {
	keys, err := s.client.ZRangeByScore(ctx, indexKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: "(" + strconv.FormatInt(cutoff.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("list stale entries: %w", err)
	}
	if len(keys) == 0 {
		return 0, nil
	}
	full := make([]string, len(keys))
	members := make([]any, len(keys))
	for i, key := range keys {
		full[i] = keyPrefix + key
		members[i] = key
	}
	deleted, err := s.client.Del(ctx, full...).Result()
	if err != nil {
		return 0, fmt.Errorf("delete stale entries: %w", err)
	}
	if err := s.client.ZRem(ctx, indexKey, members...).Err(); err != nil {
		return int(deleted), fmt.Errorf("trim entry index: %w", err)
	}
	return int(deleted), nil
}
