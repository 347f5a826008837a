package cache

import (
	"context"
	"encoding/json"
	"time"

	"tourcast/internal/domain"
	"tourcast/internal/infra"
	"tourcast/internal/sqlinline"
)

// Postgres persists cache entries in the content_cache table. All
// infrastructure errors are logged and degraded: reads become misses, writes
// are dropped. The cache is an optimization, never a point of failure.
type Postgres struct {
	runner infra.SQLExecutor
	logger infra.Logger
	now    func() time.Time
}

func NewPostgres(runner infra.SQLExecutor, logger infra.Logger) *Postgres {
	return &Postgres{runner: runner, logger: logger, now: time.Now}
}

func (p *Postgres) Get(ctx context.Context, fp domain.Fingerprint) (*Entry, bool, error) {
	var (
		raw       []byte
		provider  string
		expiresAt time.Time
	)
	row := p.runner.QueryRow(ctx, sqlinline.QSelectCacheEntry, string(fp))
	if err := row.Scan(&raw, &provider, &expiresAt); err != nil {
		if infra.IsNoRows(err) {
			return nil, false, nil
		}
		p.logger.Warn().Err(err).Str("fingerprint", string(fp)).Msg("cache: read failed, treating as miss")
		return nil, false, nil
	}
	if !expiresAt.After(p.now()) {
		return nil, false, nil
	}
	var artifact domain.Artifact
	if err := json.Unmarshal(raw, &artifact); err != nil {
		p.logger.Warn().Err(err).Str("fingerprint", string(fp)).Msg("cache: corrupt entry, treating as miss")
		return nil, false, nil
	}
	return &Entry{Artifact: &artifact, Provider: provider}, true, nil
}

func (p *Postgres) Put(ctx context.Context, fp domain.Fingerprint, entry Entry, ttl time.Duration) error {
	if ttl <= 0 || entry.Artifact == nil {
		return nil
	}
	raw, err := json.Marshal(entry.Artifact)
	if err != nil {
		p.logger.Warn().Err(err).Str("fingerprint", string(fp)).Msg("cache: marshal failed, dropping write")
		return nil
	}
	expiresAt := p.now().Add(ttl)
	if _, err := p.runner.Exec(ctx, sqlinline.QUpsertCacheEntry, string(fp), raw, entry.Provider, expiresAt); err != nil {
		p.logger.Warn().Err(err).Str("fingerprint", string(fp)).Msg("cache: write failed, dropping")
	}
	return nil
}

func (p *Postgres) Delete(ctx context.Context, fp domain.Fingerprint) error {
	if _, err := p.runner.Exec(ctx, sqlinline.QDeleteCacheEntry, string(fp)); err != nil {
		p.logger.Warn().Err(err).Str("fingerprint", string(fp)).Msg("cache: delete failed")
	}
	return nil
}

// Sweep removes expired rows. Called periodically from the worker loop.
func (p *Postgres) Sweep(ctx context.Context) {
	if _, err := p.runner.Exec(ctx, sqlinline.QDeleteExpiredCacheEntries); err != nil {
		p.logger.Warn().Err(err).Msg("cache: sweep failed")
	}
}

var _ Store = (*Postgres)(nil)
