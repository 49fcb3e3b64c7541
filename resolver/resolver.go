// Package resolver turns peer IP addresses into host names for the
// connection line. Lookups are cached and bounded by a timeout; a failed or
// slow lookup yields an empty name rather than an error.
package resolver

import (
	"context"
	"net"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/cyberinferno/debugserver/cacher"
)

const (
	DefaultTTL     = 5 * time.Minute
	DefaultTimeout = 500 * time.Millisecond
)

// LookupFunc performs a reverse lookup, like net.Resolver.LookupAddr.
type LookupFunc func(ctx context.Context, addr string) ([]string, error)

// Resolver resolves and caches peer names. The zero value is not usable;
// create one with New.
type Resolver struct {
	lookup  LookupFunc
	cache   cacher.Cacher[string]
	ttl     time.Duration
	timeout time.Duration
}

// New creates a Resolver. A nil lookup uses net.DefaultResolver; non-positive
// ttl or timeout use the defaults.
//
// Parameters:
//   - lookup: Reverse lookup implementation
//   - ttl: How long a result (including "no name") is cached
//   - timeout: Upper bound for one lookup
//
// Returns:
//   - A ready Resolver
func New(lookup LookupFunc, ttl, timeout time.Duration) *Resolver {
	if lookup == nil {
		lookup = net.DefaultResolver.LookupAddr
	}

	if ttl <= 0 {
		ttl = DefaultTTL
	}

	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &Resolver{
		lookup:  lookup,
		cache:   cacher.NewMemoryCacher[string](cache.DefaultExpiration, ttl),
		ttl:     ttl,
		timeout: timeout,
	}
}

// Name returns the host name for the host part of peer (a host:port or bare
// host), or "" when it has none or the lookup fails.
//
// Parameters:
//   - ctx: Context bounding the lookup
//   - peer: The remote address
//
// Returns:
//   - The first name without its trailing dot, or ""
func (r *Resolver) Name(ctx context.Context, peer string) string {
	host := peer
	if h, _, err := net.SplitHostPort(peer); err == nil {
		host = h
	}

	name, err := r.cache.GetOrFetch(ctx, host, r.ttl, func(ctx context.Context) (string, error) {
		lctx, cancel := context.WithTimeout(ctx, r.timeout)
		defer cancel()

		names, err := r.lookup(lctx, host)
		if err != nil || len(names) == 0 {
			return "", nil
		}

		return strings.TrimSuffix(names[0], "."), nil
	})
	if err != nil {
		return ""
	}

	return name
}
