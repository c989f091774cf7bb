package model

import (
	"context"

	"github.com/pkg/errors"

	"stockchart/internal/interval"
)

// ── Port interfaces ──
// These decouple the poller and settings service from the concrete HTTP
// client and storage backends (SQLite, Redis, memory).

// HistoryFetcher loads one page of bars for a series.
type HistoryFetcher interface {
	// FetchHistory returns bars in ascending timestamp order. from > 0 asks
	// for bars after the cached tail (catch-up); to > 0 asks for bars before
	// the cached head (backfill).
	FetchHistory(ctx context.Context, stock string, code interval.Code, from, to int64) ([]Bar, error)
}

// SnapshotFetcher loads the full-universe snapshot.
type SnapshotFetcher interface {
	FetchSnapshot(ctx context.Context) (SnapshotResponse, error)
}

// Fetcher is the complete upstream API.
type Fetcher interface {
	HistoryFetcher
	SnapshotFetcher
}

// SettingsStore persists opaque settings documents by key.
type SettingsStore interface {
	// Load returns ErrNotFound when nothing was saved under key.
	Load(ctx context.Context, key string) ([]byte, error)

	// Save replaces the document stored under key.
	Save(ctx context.Context, key string, data []byte) error

	// Close releases underlying resources.
	Close() error
}

// ErrNotFound is returned by SettingsStore.Load for unknown keys.
var ErrNotFound = errors.New("not found")
