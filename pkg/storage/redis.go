package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// KeyPrefix namespaces snapshot keys.
const KeyPrefix = "demandcast:forecast:"

// RedisStore stores snapshots as JSON values with a TTL so several dashboard
// instances serve the same forecast.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	mu     sync.RWMutex
}

// NewRedisStore connects to addr and pings it. A zero ttl means 24 hours.
func NewRedisStore(addr, password string, db int, ttl time.Duration) (*RedisStore, error) {
	if addr == "" {
		return nil, errors.New("redis address cannot be empty")
	}
	if db < 0 {
		return nil, errors.New("redis database number must be >= 0")
	}
	if ttl == 0 {
		ttl = 24 * time.Hour
	}

	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}
	return &RedisStore{client: client, ttl: ttl}, nil
}

func key(series string) string {
	return KeyPrefix + series
}

// Put stores s under demandcast:forecast:{series}.
func (r *RedisStore) Put(ctx context.Context, s ForecastSnapshot) error {
	if err := validSeries(s.Series); err != nil {
		return err
	}
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	if err := r.client.Set(ctx, key(s.Series), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store snapshot in redis: %w", err)
	}
	return nil
}

// GetLatest returns the stored snapshot. A missing key is not an error.
func (r *RedisStore) GetLatest(ctx context.Context, series string) (ForecastSnapshot, bool, error) {
	if series == "" {
		return ForecastSnapshot{}, false, errors.New("series name required")
	}

	data, err := r.client.Get(ctx, key(series)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ForecastSnapshot{}, false, nil
		}
		return ForecastSnapshot{}, false, fmt.Errorf("failed to get snapshot from redis: %w", err)
	}

	var snap ForecastSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return ForecastSnapshot{}, false, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	return snap, true, nil
}

// Close closes the client. It is safe to call more than once.
func (r *RedisStore) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.client == nil {
		return nil
	}
	err := r.client.Close()
	r.client = nil
	if errors.Is(err, redis.ErrClosed) {
		return nil
	}
	return err
}

// Ping checks the connection.
func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
