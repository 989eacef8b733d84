package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/helixmapr/helixmapr/internal/model"
)

type schemaCacheKey struct{}

// WithSchemaCacheContext returns a new context carrying the given SchemaCache.
func WithSchemaCacheContext(ctx context.Context, c SchemaCache) context.Context {
	return context.WithValue(ctx, schemaCacheKey{}, c)
}

// SchemaCacheFromContext retrieves the SchemaCache from the context.
// Returns nil if none was set.
func SchemaCacheFromContext(ctx context.Context) SchemaCache {
	c, _ := ctx.Value(schemaCacheKey{}).(SchemaCache)
	return c
}

// CachedSchema holds the custom field schema of one research database.
// Form building reads it on every request, so schema mutations must call
// Remove for the affected database.
type CachedSchema struct {
	Definitions []model.FieldDefinition
	Groups      []model.FieldGroup
}

// SchemaCache caches field schemas keyed by database id.
type SchemaCache interface {
	Available() bool
	Get(ctx context.Context, databaseID uint) (*CachedSchema, error)
	Set(ctx context.Context, databaseID uint, schema CachedSchema, ttl time.Duration) error
	Remove(ctx context.Context, databaseID uint) error
}

// Loader creates a cache from config.
type Loader func(ctx context.Context) (SchemaCache, error)

// Plugin represents a cache plugin.
type Plugin struct {
	Name   string
	Loader Loader
}

var plugins []Plugin

// Register adds a cache plugin.
func Register(p Plugin) {
	plugins = append(plugins, p)
}

// Names returns all registered cache plugin names.
func Names() []string {
	names := make([]string, len(plugins))
	for i, p := range plugins {
		names[i] = p.Name
	}
	return names
}

// Select returns the loader for the named cache plugin.
func Select(name string) (Loader, error) {
	for _, p := range plugins {
		if p.Name == name {
			return p.Loader, nil
		}
	}
	return nil, fmt.Errorf("unknown cache %q; valid: %v", name, Names())
}
