//go:build integration

package storage

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/redis"
)

func setupRedisContainer(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	container, err := redis.Run(ctx, "redis:7-alpine")
	if err != nil {
		t.Fatalf("failed to start redis container: %v", err)
	}
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(container); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	endpoint, err := container.ConnectionString(ctx)
	if err != nil {
		t.Fatalf("failed to get redis endpoint: %v", err)
	}
	return strings.TrimPrefix(endpoint, "redis://")
}

func TestRedisStore_RoundTrip(t *testing.T) {
	store, err := NewRedisStore(setupRedisContainer(t), "", 0, time.Minute)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	defer store.Close()
	ctx := context.Background()

	want := snapshot("default", 101.5, 99)
	want.GeneratedAt = want.GeneratedAt.UTC().Truncate(time.Millisecond)
	want.Truncated = true
	want.StopReason = "insufficient history"

	if err := store.Put(ctx, want); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	exists, err := store.client.Exists(ctx, "demandcast:forecast:default").Result()
	if err != nil || exists != 1 {
		t.Fatalf("key not stored: exists=%d err=%v", exists, err)
	}

	got, found, err := store.GetLatest(ctx, "default")
	if err != nil || !found {
		t.Fatalf("GetLatest: found=%v err=%v", found, err)
	}
	if got.ID != want.ID || !got.GeneratedAt.Equal(want.GeneratedAt) || !got.HistoryEnd.Equal(want.HistoryEnd) {
		t.Errorf("metadata mismatch: got %+v", got)
	}
	if len(got.Rows) != 2 || got.Rows[0].PredictedCount != 101.5 || !got.Rows[1].Date.Equal(want.Rows[1].Date) {
		t.Errorf("rows mismatch: %+v", got.Rows)
	}
	if !got.Truncated || got.StopReason != want.StopReason {
		t.Errorf("stop info mismatch: %+v", got)
	}
}

func TestRedisStore_NotFound(t *testing.T) {
	store, err := NewRedisStore(setupRedisContainer(t), "", 0, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	if _, found, err := store.GetLatest(context.Background(), "missing"); err != nil || found {
		t.Errorf("found=%v err=%v", found, err)
	}
	if _, _, err := store.GetLatest(context.Background(), ""); err == nil {
		t.Error("expected error for empty series")
	}
	if err := store.Put(context.Background(), snapshot("bad:name", 1)); err == nil {
		t.Error("expected error for invalid series")
	}
}

func TestRedisStore_TTL(t *testing.T) {
	store, err := NewRedisStore(setupRedisContainer(t), "", 0, time.Second)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	ctx := context.Background()

	if err := store.Put(ctx, snapshot("default", 1)); err != nil {
		t.Fatal(err)
	}
	time.Sleep(1500 * time.Millisecond)

	if _, found, _ := store.GetLatest(ctx, "default"); found {
		t.Error("snapshot should have expired")
	}
}

func TestRedisStore_Concurrent(t *testing.T) {
	store, err := NewRedisStore(setupRedisContainer(t), "", 0, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if err := store.Put(ctx, snapshot(fmt.Sprintf("series-%d", i), float64(i))); err != nil {
				t.Errorf("Put failed: %v", err)
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < 10; i++ {
		got, found, err := store.GetLatest(ctx, fmt.Sprintf("series-%d", i))
		if err != nil || !found || got.Rows[0].PredictedCount != float64(i) {
			t.Errorf("series-%d: found=%v err=%v", i, found, err)
		}
	}
}

func TestRedisStore_CloseIdempotent(t *testing.T) {
	store, err := NewRedisStore(setupRedisContainer(t), "", 0, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Close(); err != nil {
		t.Errorf("first Close: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

func TestNewRedisStore_Unreachable(t *testing.T) {
	if _, err := NewRedisStore("127.0.0.1:1", "", 0, time.Minute); err == nil {
		t.Fatal("expected connection error")
	}
}
