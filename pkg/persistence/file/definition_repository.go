package file

import (
	"context"
	"errors"
	"os"
	"sort"
	"time"

	"github.com/grantflow/grantflow/pkg/models"
	"github.com/grantflow/grantflow/pkg/persistence"
)

const definitionsCollection = "definitions"

// DefinitionRepository stores workflow definitions as JSON documents.
type DefinitionRepository struct {
	store *Persistence
}

func (r *DefinitionRepository) Definition(ctx context.Context, id string) (*models.WorkflowDefinition, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	return r.definition(id)
}

func (r *DefinitionRepository) definition(id string) (*models.WorkflowDefinition, error) {
	var def models.WorkflowDefinition

	err := readDocument(r.store.root, definitionsCollection, id, &def)
	if errors.Is(err, os.ErrNotExist) {
		return nil, persistence.ErrDefinitionNotFound
	}

	if err != nil {
		return nil, err
	}

	return &def, nil
}

func (r *DefinitionRepository) Definitions(ctx context.Context) ([]*models.WorkflowDefinition, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	ids, err := listIDs(r.store.root, definitionsCollection)
	if err != nil {
		return []*models.WorkflowDefinition{}, nil
	}

	defs := make([]*models.WorkflowDefinition, 0, len(ids))

	for _, id := range ids {
		def, err := r.definition(id)
		if err != nil {
			return nil, err
		}

		defs = append(defs, def)
	}

	sort.Slice(defs, func(i, j int) bool { return defs[i].CreatedAt.After(defs[j].CreatedAt) })

	return defs, nil
}

func (r *DefinitionRepository) SaveDefinition(ctx context.Context, def *models.WorkflowDefinition) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	now := time.Now()
	if def.CreatedAt.IsZero() {
		def.CreatedAt = now
	}

	def.UpdatedAt = now

	return writeDocument(r.store.root, definitionsCollection, def.ID, def)
}
