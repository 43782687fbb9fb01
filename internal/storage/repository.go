package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Config is the minimal configuration needed to open a repository.
//
// Edge cases:
//   - Kind must be non-empty and must match a registered backend kind.
//   - DSN is passed through to the backend factory; validation is backend-specific.
type Config struct {
	Kind string
	DSN  string
}

// Repository is the backend-agnostic sink used by the loader.
//
// Each load run fully replaces table contents; there is no update or delete
// path. Backends implement the semantics below in their own dialect.
type Repository interface {
	// Close releases backend resources. Call once, at the end of a run.
	Close()

	// ReplaceTable drops t.Name if it exists, creates it from t.Columns and
	// inserts rows, all in one transaction. On error nothing of the new table
	// is visible; a pre-existing table survives only if the backend rolled
	// the drop back, which every registered backend does.
	//
	// Each row must have len(t.Columns) cells holding nil, int64, float64 or
	// string. Returns the number of inserted rows.
	ReplaceTable(ctx context.Context, t TableSpec, rows [][]any) (int64, error)

	// EnsureIndexes creates each index unless one with the same name exists.
	EnsureIndexes(ctx context.Context, indexes []IndexSpec) error
}

// Factory opens a repository for cfg.
type Factory func(ctx context.Context, cfg Config) (Repository, error)

var (
	mu        sync.RWMutex
	factories = map[string]Factory{}
)

// Register registers a backend under a kind (e.g. "sqlite", "postgres").
//
// When to use:
//   - Call Register from an init() function in a backend package.
//
// Panics:
//   - If kind is empty, f is nil, or kind is already registered. Registering
//     twice is a programming error and fails fast.
func Register(kind string, f Factory) {
	mu.Lock()
	defer mu.Unlock()

	if kind == "" {
		panic("storage: Register called with empty kind")
	}
	if f == nil {
		panic("storage: Register called with nil factory")
	}
	if _, exists := factories[kind]; exists {
		panic(fmt.Sprintf("storage: factory already registered for kind=%q", kind))
	}

	factories[kind] = f
}

// New constructs a Repository using the registered backend factory.
//
// Errors:
//   - Returns an error if cfg.Kind is empty or unsupported.
//   - Returns whatever error the registered factory returns.
func New(ctx context.Context, cfg Config) (Repository, error) {
	if cfg.Kind == "" {
		return nil, fmt.Errorf("storage: missing Kind")
	}

	mu.RLock()
	f := factories[cfg.Kind]
	mu.RUnlock()

	if f == nil {
		return nil, fmt.Errorf("unsupported storage.kind=%s (registered: %v)", cfg.Kind, Kinds())
	}
	return f(ctx, cfg)
}

// Kinds lists registered backend kinds in sorted order.
func Kinds() []string {
	mu.RLock()
	defer mu.RUnlock()

	out := make([]string, 0, len(factories))
	for k := range factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
