package ports

import (
	"context"
	"time"
)

// RatioEntry is the learned tokens-per-filler ratio for one tokenizer.
type RatioEntry struct {
	Identity  string    `json:"identity"`
	Ratio     float64   `json:"ratio"` // observed tokens per filler character
	Samples   int64     `json:"samples"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RatioCache persists learned filler ratios across calls. Entries are keyed
// by tokenizer identity so ratios never leak between tokenizers.
type RatioCache interface {
	// Get returns the entry for identity, if any.
	Get(ctx context.Context, identity string) (*RatioEntry, bool)

	// Observe folds a new ratio sample into the running average.
	Observe(ctx context.Context, identity string, ratio float64) error

	// List returns all entries ordered by identity.
	List(ctx context.Context) ([]RatioEntry, error)

	// Clear removes all entries.
	Clear(ctx context.Context) error

	// Close releases resources.
	Close() error
}
