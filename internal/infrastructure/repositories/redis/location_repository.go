package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/cristivoicu/appserver/internal/core/domain"
	"github.com/cristivoicu/appserver/internal/core/ports"
)

const locationKeyPrefix = "location:"

// Dial opens a pooled Redis connection and verifies it with a ping before
// handing it out. Location traffic is small single-key reads and writes, so
// the timeouts are kept short: a slow Redis should degrade to the in-memory
// fallback rather than stall location updates.
func Dial(ctx context.Context, address, password string, db, poolSize int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         address,
		Password:     password,
		DB:           db,
		PoolSize:     poolSize,
		DialTimeout:  3 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("dial redis at %s: %w", address, err)
	}
	return client, nil
}

// RedisLocationStore keeps last-known positions in Redis with a TTL, so a
// position that stops being refreshed ages out on its own and the store
// survives a server restart.
type RedisLocationStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisLocationStore(client *redis.Client, ttl time.Duration) ports.LocationStore {
	return &RedisLocationStore{client: client, ttl: ttl}
}

func (r *RedisLocationStore) Put(ctx context.Context, username string, loc domain.Location) error {
	data, err := json.Marshal(loc)
	if err != nil {
		return fmt.Errorf("encode location: %w", err)
	}

	if err := r.client.Set(ctx, locationKeyPrefix+username, data, r.ttl).Err(); err != nil {
		return fmt.Errorf("store location for %s: %w", username, err)
	}
	return nil
}

func (r *RedisLocationStore) Get(ctx context.Context, username string) (domain.Location, bool, error) {
	data, err := r.client.Get(ctx, locationKeyPrefix+username).Bytes()
	if err == redis.Nil {
		return domain.Location{}, false, nil
	}
	if err != nil {
		return domain.Location{}, false, fmt.Errorf("fetch location for %s: %w", username, err)
	}

	var loc domain.Location
	if err := json.Unmarshal(data, &loc); err != nil {
		return domain.Location{}, false, fmt.Errorf("decode location for %s: %w", username, err)
	}
	return loc, true, nil
}

func (r *RedisLocationStore) All(ctx context.Context) (map[string]domain.Location, error) {
	out := make(map[string]domain.Location)

	iter := r.client.Scan(ctx, 0, locationKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		username := strings.TrimPrefix(key, locationKeyPrefix)

		loc, ok, err := r.Get(ctx, username)
		if err != nil {
			return nil, err
		}
		if ok {
			out[username] = loc
		}
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan locations: %w", err)
	}
	return out, nil
}

func (r *RedisLocationStore) Remove(ctx context.Context, username string) error {
	if err := r.client.Del(ctx, locationKeyPrefix+username).Err(); err != nil {
		return fmt.Errorf("remove location for %s: %w", username, err)
	}
	return nil
}
