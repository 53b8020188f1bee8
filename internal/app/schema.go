package app

import (
	"context"

	"github.com/nlsql/gateway/internal/cache"
	"github.com/nlsql/gateway/internal/domain"
	"github.com/nlsql/gateway/internal/external"
)

// tableLister is implemented by the drivers that support schema discovery
// (external.PostgresDriver, external.DorisDriver). Kept local and narrow
// since it isn't part of the spec §6 DBDriver contract, which only names
// execute/cancel/describe.
type tableLister interface {
	ListTables(ctx context.Context) ([]string, error)
}

// schemaProvider implements internal/orchestrator.SchemaProvider: an
// internal/cache.SchemaCache front, falling back to a live introspection
// via the dialect's DBDriver on a cache miss and repopulating the cache
// (spec §4.8 "populated by a schema fetcher, cached with TTL 3600s").
type schemaProvider struct {
	Cache    *cache.SchemaCache
	Backends map[domain.DatabaseKind]external.DBDriver
}

func newSchemaProvider(c *cache.SchemaCache, backends map[domain.DatabaseKind]external.DBDriver) *schemaProvider {
	return &schemaProvider{Cache: c, Backends: backends}
}

func (s *schemaProvider) Get(ctx context.Context, dbKind domain.DatabaseKind) (*domain.SchemaSnapshot, error) {
	if s.Cache != nil {
		if snap, ok := s.Cache.Get(ctx, dbKind); ok {
			return snap, nil
		}
	}

	snap, err := s.fetch(ctx, dbKind)
	if err != nil {
		return nil, err
	}
	if s.Cache != nil {
		_ = s.Cache.Put(ctx, snap)
	}
	return snap, nil
}

func (s *schemaProvider) fetch(ctx context.Context, dbKind domain.DatabaseKind) (*domain.SchemaSnapshot, error) {
	driver := s.Backends[dbKind]
	lister, ok := driver.(tableLister)
	if !ok {
		return &domain.SchemaSnapshot{DatabaseKind: dbKind, Tables: map[string][]domain.Column{}}, nil
	}

	tables, err := lister.ListTables(ctx)
	if err != nil {
		return nil, err
	}

	snap := &domain.SchemaSnapshot{DatabaseKind: dbKind, Tables: map[string][]domain.Column{}}
	for _, table := range tables {
		cols, err := driver.Describe(ctx, table)
		if err != nil {
			continue
		}
		snap.Tables[table] = cols
	}
	return snap, nil
}
