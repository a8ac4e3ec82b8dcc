package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/grantflow/grantflow/pkg/persistence"
	"github.com/grantflow/grantflow/pkg/persistence/file"
	"github.com/grantflow/grantflow/pkg/persistence/redis"
)

// NewPersistence selects the storage backend from the database URL scheme.
// redis:// and rediss:// pick the Redis store; anything else is treated as a
// filesystem root.
func NewPersistence(ctx context.Context, databaseURL string) (persistence.Persistence, error) {
	switch {
	case strings.HasPrefix(databaseURL, "redis://"), strings.HasPrefix(databaseURL, "rediss://"):
		return redis.NewPersistence(ctx, databaseURL)
	default:
		return file.NewPersistence(strings.TrimPrefix(databaseURL, "file://")), nil
	}
}

// MustPersistence panics on backend initialization failure; for process
// startup paths only.
func MustPersistence(ctx context.Context, databaseURL string) persistence.Persistence {
	p, err := NewPersistence(ctx, databaseURL)
	if err != nil {
		panic(fmt.Errorf("failed to initialize persistence: %w", err))
	}

	return p
}
