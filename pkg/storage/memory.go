package storage

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps snapshots in process memory. It is safe for concurrent use.
//
// With a TTL, a background goroutine drops snapshots older than the TTL and
// Stop must be called to release it. Use RedisStore when several dashboard
// instances must share forecasts.
type MemoryStore struct {
	mu        sync.RWMutex
	snapshots map[string]ForecastSnapshot
	ttl       time.Duration

	ticker   *time.Ticker
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// NewMemoryStore creates a store without expiry.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{snapshots: make(map[string]ForecastSnapshot)}
}

// NewMemoryStoreWithTTL creates a store that drops snapshots older than ttl,
// checking every cleanupInterval (default one minute). It panics if ttl <= 0.
func NewMemoryStoreWithTTL(ttl, cleanupInterval time.Duration) *MemoryStore {
	if ttl <= 0 {
		panic("TTL must be positive")
	}
	if cleanupInterval <= 0 {
		cleanupInterval = time.Minute
	}

	s := &MemoryStore{
		snapshots: make(map[string]ForecastSnapshot),
		ttl:       ttl,
		ticker:    time.NewTicker(cleanupInterval),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	go s.runCleanup()
	return s
}

// Stop ends the cleanup goroutine. It is safe to call more than once and on a
// store without TTL.
func (s *MemoryStore) Stop() {
	if s.ticker == nil {
		return
	}
	s.stopOnce.Do(func() {
		close(s.stop)
		<-s.done
		s.ticker.Stop()
	})
}

func (s *MemoryStore) runCleanup() {
	defer close(s.done)
	for {
		select {
		case <-s.ticker.C:
			s.cleanup(time.Now())
		case <-s.stop:
			return
		}
	}
}

func (s *MemoryStore) cleanup(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for series, snap := range s.snapshots {
		if snap.Age(now) > s.ttl {
			delete(s.snapshots, series)
		}
	}
}

// Put replaces the snapshot for snapshot.Series.
func (s *MemoryStore) Put(ctx context.Context, snapshot ForecastSnapshot) error {
	if err := validSeries(snapshot.Series); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots[snapshot.Series] = snapshot
	return nil
}

// GetLatest returns the snapshot for series and whether one exists.
func (s *MemoryStore) GetLatest(ctx context.Context, series string) (ForecastSnapshot, bool, error) {
	if err := ctx.Err(); err != nil {
		return ForecastSnapshot{}, false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.snapshots[series]
	return snap, ok, nil
}

// Len returns the number of stored snapshots.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.snapshots)
}

// Delete removes the snapshot for series and reports whether one existed.
func (s *MemoryStore) Delete(series string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.snapshots[series]
	delete(s.snapshots, series)
	return ok
}
