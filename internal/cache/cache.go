package cache

import (
	"context"
	"time"

	"tourcast/internal/domain"
)

// Entry is a cached artifact together with the provider that produced it.
type Entry struct {
	Artifact *domain.Artifact
	Provider string
}

// Store maps a request fingerprint to a finished artifact. Get returns
// (nil, false, nil) on a miss; expired entries are misses. Implementations
// must degrade infrastructure failures to misses rather than surfacing them,
// so the pipeline regenerates instead of failing.
type Store interface {
	Get(ctx context.Context, fp domain.Fingerprint) (*Entry, bool, error)
	Put(ctx context.Context, fp domain.Fingerprint, entry Entry, ttl time.Duration) error
	Delete(ctx context.Context, fp domain.Fingerprint) error
}
