// Package cache stores encoded solve results between runs.
//
// Three backends implement [Cache]:
//
//   - [FileCache] keeps entries as JSON files under a directory (CLI default).
//   - [RedisCache] keeps entries in redis with native expiry (server mode).
//   - [NullCache] stores nothing (caching disabled).
//
// Keys are produced by a [Keyer] so that every option which can change a
// solve outcome is part of the key. [ScopedKeyer] adds a namespace prefix.
package cache

import (
	"context"
	"strconv"
	"time"
)

// Cache is a byte-oriented key/value store with optional expiry.
//
// Get reports a miss as (nil, false, nil); errors are reserved for backend
// failures. A zero ttl on Set means the entry never expires.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// SolveKeyOpts are the solver settings that select a cached result.
//
// The time limit is deliberately absent: callers only cache outcomes that
// did not depend on it.
type SolveKeyOpts struct {
	Backend    string
	LowerBound float64
	WarmStart  bool
}

// Keyer derives cache keys.
type Keyer interface {
	// SolveKey identifies the result of solving the graph with the given hash.
	SolveKey(graphHash string, opts SolveKeyOpts) string

	// ArtifactKey identifies a rendered artifact of a cached result.
	ArtifactKey(resultHash string, opts ArtifactKeyOpts) string
}

// ArtifactKeyOpts are the rendering settings that select a cached artifact.
type ArtifactKeyOpts struct {
	Format   string
	Detailed bool
}

// DefaultKeyer hashes key components with SHA-256.
type DefaultKeyer struct{}

// NewDefaultKeyer returns the standard keyer.
func NewDefaultKeyer() Keyer { return DefaultKeyer{} }

// SolveKey returns "solve:<sha256>".
func (DefaultKeyer) SolveKey(graphHash string, opts SolveKeyOpts) string {
	// -Inf and NaN have no JSON encoding, so the bound is keyed as text.
	lb := strconv.FormatFloat(opts.LowerBound, 'g', -1, 64)
	return hashKey("solve", graphHash, opts.Backend, lb, opts.WarmStart)
}

// ArtifactKey returns "artifact:<sha256>".
func (DefaultKeyer) ArtifactKey(resultHash string, opts ArtifactKeyOpts) string {
	return hashKey("artifact", resultHash, opts.Format, opts.Detailed)
}
