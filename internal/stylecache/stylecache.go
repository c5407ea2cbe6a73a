// Package stylecache keeps computed style profiles so each text is analyzed
// once. Lookups that miss compute the profile and persist it.
package stylecache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/stylerank/internal/style"
)

// Store persists style profiles by key. A missing key is reported as
// (zero, false, nil).
type Store interface {
	Get(ctx context.Context, key string) (style.Profile, bool, error)
	Put(ctx context.Context, key string, p style.Profile) error
}

// Key derives the cache key of a text and, when given, the vector the
// profile is built on.
func Key(text string, vec *style.Vector) string {
	h := sha256.New()
	h.Write([]byte(text))
	if vec != nil {
		h.Write([]byte{0})
		h.Write([]byte(vec.String()))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Memory is an in-process Store.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]style.Profile
}

var _ Store = (*Memory)(nil)

// NewMemory returns an empty in-process store.
func NewMemory() *Memory {
	return &Memory{entries: make(map[string]style.Profile)}
}

// Get implements Store.
func (m *Memory) Get(_ context.Context, key string) (style.Profile, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.entries[key]
	return p, ok, nil
}

// Put implements Store.
func (m *Memory) Put(_ context.Context, key string, p style.Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = p
	return nil
}

// Len returns the number of cached profiles.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Resolver fills in missing style data, going through a Store first.
type Resolver struct {
	store  Store
	logger *zap.Logger
}

// NewResolver creates a resolver. A nil store computes every profile.
func NewResolver(store Store, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{store: store, logger: logger}
}

// Profile returns the complete profile of text. Known parts are kept.
// Cache failures are logged and the profile is computed anyway.
func (r *Resolver) Profile(ctx context.Context, text string, vec *style.Vector, keywords style.KeywordSet) style.Profile {
	if vec != nil && len(keywords) > 0 {
		return style.Profile{Vector: *vec, Keywords: keywords}
	}
	if r.store == nil {
		p, _ := style.Complete(text, vec, keywords)
		return p
	}

	key := Key(text, vec)
	computed, ok, err := r.store.Get(ctx, key)
	if err != nil {
		r.logger.Warn("style cache lookup failed", zap.String("key", key), zap.Error(err))
	}
	if !ok {
		// The stored profile depends on text and vector only; caller
		// keywords are applied on the way out.
		computed, _ = style.Complete(text, vec, nil)
		if err == nil {
			if err := r.store.Put(ctx, key, computed); err != nil {
				r.logger.Warn("style cache write failed", zap.String("key", key), zap.Error(err))
			}
		}
	}

	if len(keywords) > 0 {
		computed.Keywords = keywords
	}
	return computed
}
