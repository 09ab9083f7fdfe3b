// Package roster caches the sorted list of online display names that answers
// the /users command, so a burst of requests does not walk the registry once
// per request.
package roster

import (
	"context"
	"time"
)

// FetchFunc produces the current list of online names on a cache miss.
type FetchFunc func(ctx context.Context) ([]string, error)

// Cache holds at most one roster listing. Implementations must be safe for
// concurrent use and must run at most one fetch at a time per process.
type Cache interface {
	// Names returns the cached listing, or calls fetch and caches its result.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeout control
	//   - fetch: Function producing the listing on a miss
	//
	// Returns:
	//   - The listing; callers may modify the returned slice
	//   - An error if the backend or fetch fails; failed fetches are not cached
	Names(ctx context.Context, fetch FetchFunc) ([]string, error)

	// Invalidate drops the cached listing. It is called on every join and
	// leave.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeout control
	//
	// Returns:
	//   - An error if the backend cannot be reached
	Invalidate(ctx context.Context) error
}

// DefaultTTL bounds how stale a listing may be when an invalidation races a
// fetch already in flight.
const DefaultTTL = time.Second

const rosterKey = "roster"
