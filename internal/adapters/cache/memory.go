// Package cache provides ratio cache adapters.
package cache

import (
	"context"
	"errors"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/jbctechsolutions/tokenpad/internal/application/ports"
)

// ErrInvalidRatio is returned for non-positive or non-finite samples.
var ErrInvalidRatio = errors.New("ratio must be a positive finite number")

// MemoryRatioCache implements ports.RatioCache with an in-process map.
type MemoryRatioCache struct {
	mu      sync.RWMutex
	entries map[string]ports.RatioEntry
	now     func() time.Time
}

// Ensure MemoryRatioCache implements ports.RatioCache.
var _ ports.RatioCache = (*MemoryRatioCache)(nil)

// NewMemoryRatioCache creates an empty in-memory ratio cache.
func NewMemoryRatioCache() *MemoryRatioCache {
	return &MemoryRatioCache{
		entries: make(map[string]ports.RatioEntry),
		now:     time.Now,
	}
}

// Get returns the entry for identity.
func (m *MemoryRatioCache) Get(_ context.Context, identity string) (*ports.RatioEntry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.entries[identity]
	if !ok {
		return nil, false
	}
	return &e, true
}

// Observe folds ratio into the running average for identity.
func (m *MemoryRatioCache) Observe(_ context.Context, identity string, ratio float64) error {
	if !validRatio(ratio) {
		return ErrInvalidRatio
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	e := m.entries[identity]
	e.Identity = identity
	e.Ratio = runningMean(e.Ratio, e.Samples, ratio)
	e.Samples++
	e.UpdatedAt = m.now()
	m.entries[identity] = e
	return nil
}

// List returns all entries ordered by identity.
func (m *MemoryRatioCache) List(_ context.Context) ([]ports.RatioEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]ports.RatioEntry, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Identity < out[j].Identity })
	return out, nil
}

// Clear removes all entries.
func (m *MemoryRatioCache) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = make(map[string]ports.RatioEntry)
	return nil
}

// Close is a no-op.
func (m *MemoryRatioCache) Close() error { return nil }

func validRatio(r float64) bool {
	return r > 0 && !math.IsInf(r, 0) && !math.IsNaN(r)
}

func runningMean(mean float64, n int64, sample float64) float64 {
	if n <= 0 {
		return sample
	}
	return (mean*float64(n) + sample) / float64(n+1)
}
