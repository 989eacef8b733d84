package gormstore

import registrystore "github.com/helixmapr/helixmapr/internal/registry/store"

// Aliases to reduce the stutter of registrystore.X everywhere in this package.
type NotFoundError = registrystore.NotFoundError
type ValidationError = registrystore.ValidationError
type ConflictError = registrystore.ConflictError
type ForbiddenError = registrystore.ForbiddenError
