package sentiment

import (
	"context"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Loader builds the classifier backend. It runs at most once successfully.
type Loader func(ctx context.Context) (Classifier, error)

// InferenceLoader validates dir and returns a client for endpoint.
func InferenceLoader(dir, endpoint string, timeout time.Duration) Loader {
	return func(ctx context.Context) (Classifier, error) {
		md, err := OpenModelDir(dir)
		if err != nil {
			return nil, err
		}
		return NewInferenceClient(endpoint, md, timeout), nil
	}
}

// OpenAILoader returns a chat-completion backend.
func OpenAILoader(cfg OpenAIConfig) Loader {
	return func(ctx context.Context) (Classifier, error) {
		return NewOpenAIClient(cfg)
	}
}

// Handle is the process-wide classifier. Create one at startup and pass it by
// reference. The backend is built on first use and reused. A failed load is
// not cached.
type Handle struct {
	load Loader

	group singleflight.Group
	mu    sync.RWMutex
	c     Classifier
}

// NewHandle creates a handle. Nothing is loaded until Get.
func NewHandle(load Loader) *Handle {
	return &Handle{load: load}
}

// Get returns the backend, loading it on first use.
func (h *Handle) Get(ctx context.Context) (Classifier, error) {
	h.mu.RLock()
	c := h.c
	h.mu.RUnlock()
	if c != nil {
		return c, nil
	}

	ch := h.group.DoChan("classifier", func() (any, error) {
		h.mu.RLock()
		cached := h.c
		h.mu.RUnlock()
		if cached != nil {
			return cached, nil
		}
		loaded, err := h.load(ctx)
		if err != nil {
			return nil, err
		}
		h.mu.Lock()
		h.c = loaded
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
		return res.Val.(Classifier), nil
	}
}

// Loaded reports whether the backend is ready.
func (h *Handle) Loaded() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.c != nil
}

// Classify rejects blank text, then classifies with the loaded backend.
func (h *Handle) Classify(ctx context.Context, text string) (Prediction, error) {
	if strings.TrimSpace(text) == "" {
		return Prediction{}, ErrEmptyText
	}
	c, err := h.Get(ctx)
	if err != nil {
		return Prediction{}, err
	}
	return c.Classify(ctx, text)
}
