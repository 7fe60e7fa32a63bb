// Package kvstore provides the string key-value interface the document store
// persists through, with in-memory, file, Redis, MongoDB and Postgres backends.
// Values are opaque JSON text; the key layout belongs to the caller.
package kvstore

import (
	"context"
	"errors"
	"sort"
	"strings"
)

// ErrClosed is returned by backends used after Close.
var ErrClosed = errors.New("kvstore: closed")

// KV is the narrow storage contract. Get reports ok=false for a missing key;
// Remove of a missing key is not an error.
type KV interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
	// Keys lists keys starting with prefix, sorted.
	Keys(ctx context.Context, prefix string) ([]string, error)
}

func filterSorted(keys []string, prefix string) []string {
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if strings.HasPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}
