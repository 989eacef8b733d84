package noop

import (
	"context"
	"time"

	"github.com/helixmapr/helixmapr/internal/registry/cache"
)

func init() {
	cache.Register(cache.Plugin{
		Name: "none",
		Loader: func(ctx context.Context) (cache.SchemaCache, error) {
			return &noopSchemaCache{}, nil
		},
	})
}

type noopSchemaCache struct{}

func (n *noopSchemaCache) Available() bool { return false }
func (n *noopSchemaCache) Get(_ context.Context, _ uint) (*cache.CachedSchema, error) {
	return nil, nil
}
func (n *noopSchemaCache) Set(_ context.Context, _ uint, _ cache.CachedSchema, _ time.Duration) error {
	return nil
}
func (n *noopSchemaCache) Remove(_ context.Context, _ uint) error { return nil }

var _ cache.SchemaCache = (*noopSchemaCache)(nil)
