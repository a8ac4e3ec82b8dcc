package redis

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/grantflow/grantflow/pkg/models"
	"github.com/grantflow/grantflow/pkg/persistence"
	redis "github.com/redis/go-redis/v9"
)

const definitionsCollection = "definitions"

// DefinitionRepository stores workflow definitions.
type DefinitionRepository struct {
	store *Persistence
}

func (r *DefinitionRepository) Definition(ctx context.Context, id string) (*models.WorkflowDefinition, error) {
	def, err := getDocument[models.WorkflowDefinition](ctx, r.store.client, definitionsCollection, id)
	if errors.Is(err, redis.Nil) {
		return nil, persistence.ErrDefinitionNotFound
	}

	if err != nil {
		return nil, err
	}

	return def, nil
}

func (r *DefinitionRepository) Definitions(ctx context.Context) ([]*models.WorkflowDefinition, error) {
	defs, err := allDocuments[models.WorkflowDefinition](ctx, r.store.client, definitionsCollection)
	if err != nil {
		return nil, err
	}

	sort.Slice(defs, func(i, j int) bool { return defs[i].CreatedAt.After(defs[j].CreatedAt) })

	return defs, nil
}

func (r *DefinitionRepository) SaveDefinition(ctx context.Context, def *models.WorkflowDefinition) error {
	now := time.Now()
	if def.CreatedAt.IsZero() {
		def.CreatedAt = now
	}

	def.UpdatedAt = now

	_, err := r.store.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		return putDocument(ctx, pipe, definitionsCollection, def.ID, def)
	})

	return err
}
