package models

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"
)

// ArtifactHandle loads artifacts once and shares them between callers.
// A failed load is not cached, so a later call retries after the files appear.
type ArtifactHandle struct {
	dir  string
	opts LoadOptions

	group singleflight.Group
	mu    sync.RWMutex
	arts  *Artifacts
}

// NewArtifactHandle creates a handle for dir. Nothing is read until Get.
func NewArtifactHandle(dir string, opts LoadOptions) *ArtifactHandle {
	return &ArtifactHandle{dir: dir, opts: opts}
}

// Get returns the loaded artifacts, loading them on first use. Concurrent
// first calls share one load.
func (h *ArtifactHandle) Get(ctx context.Context) (*Artifacts, error) {
	h.mu.RLock()
	arts := h.arts
	h.mu.RUnlock()
	if arts != nil {
		return arts, nil
	}

	ch := h.group.DoChan(h.dir, func() (any, error) {
		h.mu.RLock()
		cached := h.arts
		h.mu.RUnlock()
		if cached != nil {
			return cached, nil
		}

		loaded, err := LoadArtifacts(h.dir, h.opts)
		if err != nil {
			return nil, err
		}
		h.mu.Lock()
		h.arts = loaded
		h.mu.Unlock()
		return loaded, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Artifacts), nil
	}
}

// Predict loads the artifacts if needed and predicts one raw feature vector.
func (h *ArtifactHandle) Predict(ctx context.Context, x []float64) (float64, error) {
	arts, err := h.Get(ctx)
	if err != nil {
		return 0, err
	}
	return arts.Predict(ctx, x)
}

// Loaded reports whether artifacts are cached.
func (h *ArtifactHandle) Loaded() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.arts != nil
}

// Dir returns the artifact directory.
func (h *ArtifactHandle) Dir() string {
	return h.dir
}
