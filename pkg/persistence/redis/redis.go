// Package redis provides Redis-backed persistence for workflow definitions,
// instances, tasks, and approvals. Aggregates are stored as JSON values with
// a set index per collection; versioned saves run inside WATCH transactions
// so concurrent writers cannot lose updates.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/grantflow/grantflow/pkg/persistence"
	redis "github.com/redis/go-redis/v9"
)

const keyPrefix = "grantflow"

// Persistence implements persistence.Persistence on a Redis database.
type Persistence struct {
	client redis.UniversalClient

	definitionRepo       *DefinitionRepository
	instanceRepo         *InstanceRepository
	taskRepo             *TaskRepository
	approvalWorkflowRepo *ApprovalWorkflowRepository
	approvalRepo         *ApprovalRepository
}

// NewPersistence creates a Redis persistence layer from a redis:// URL.
func NewPersistence(ctx context.Context, redisURL string) (*Persistence, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	client := redis.NewClient(opts)

	err = client.Ping(ctx).Err()
	if err != nil {
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	p := &Persistence{client: client}
	p.definitionRepo = &DefinitionRepository{store: p}
	p.instanceRepo = &InstanceRepository{store: p}
	p.taskRepo = &TaskRepository{store: p}
	p.approvalWorkflowRepo = &ApprovalWorkflowRepository{store: p}
	p.approvalRepo = &ApprovalRepository{store: p}

	return p, nil
}

func (p *Persistence) Close(_ context.Context) error {
	return p.client.Close()
}

func (p *Persistence) HealthCheck(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

func (p *Persistence) DefinitionRepository() persistence.DefinitionRepository {
	return p.definitionRepo
}

func (p *Persistence) InstanceRepository() persistence.InstanceRepository {
	return p.instanceRepo
}

func (p *Persistence) TaskRepository() persistence.TaskRepository {
	return p.taskRepo
}

func (p *Persistence) ApprovalWorkflowRepository() persistence.ApprovalWorkflowRepository {
	return p.approvalWorkflowRepo
}

func (p *Persistence) ApprovalRepository() persistence.ApprovalRepository {
	return p.approvalRepo
}

func collectionKey(collection string) string {
	return keyPrefix + ":" + collection
}

func documentKey(collection, id string) string {
	return keyPrefix + ":" + collection + ":" + id
}

// getDocument loads one JSON value. Returns redis.Nil when absent.
func getDocument[T any](ctx context.Context, client redis.UniversalClient, collection, id string) (*T, error) {
	data, err := client.Get(ctx, documentKey(collection, id)).Bytes()
	if err != nil {
		return nil, err
	}

	var doc T

	err = json.Unmarshal(data, &doc)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s/%s: %w", collection, id, err)
	}

	return &doc, nil
}

// putDocument writes one JSON value and indexes its id.
func putDocument(ctx context.Context, pipe redis.Pipeliner, collection, id string, doc any) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode %s/%s: %w", collection, id, err)
	}

	pipe.Set(ctx, documentKey(collection, id), data, 0)
	pipe.SAdd(ctx, collectionKey(collection), id)

	return nil
}

// saveVersioned writes doc inside a WATCH transaction on its key. The stored
// document's version must match doc's version or the write is rejected with
// persistence.ErrVersionConflict; stamp runs just before the write to bump the
// version and timestamps. A concurrent write racing the transaction surfaces
// as a version conflict too.
func saveVersioned[T any](
	ctx context.Context,
	client redis.UniversalClient,
	collection, id string,
	doc *T,
	version func(*T) int64,
	stamp func(*T),
) error {
	key := documentKey(collection, id)

	err := client.Watch(ctx, func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}

		if err == nil {
			var existing T

			err = json.Unmarshal(data, &existing)
			if err != nil {
				return fmt.Errorf("failed to decode %s/%s: %w", collection, id, err)
			}

			if version(&existing) != version(doc) {
				return persistence.ErrVersionConflict
			}
		}

		stamp(doc)

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			return putDocument(ctx, pipe, collection, id, doc)
		})

		return err
	}, key)

	if errors.Is(err, redis.TxFailedErr) {
		return persistence.ErrVersionConflict
	}

	return err
}

// allDocuments loads every document in a collection via its id index.
func allDocuments[T any](ctx context.Context, client redis.UniversalClient, collection string) ([]*T, error) {
	ids, err := client.SMembers(ctx, collectionKey(collection)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", collection, err)
	}

	docs := make([]*T, 0, len(ids))

	for _, id := range ids {
		doc, err := getDocument[T](ctx, client, collection, id)
		if errors.Is(err, redis.Nil) {
			continue // index entry for an expired or deleted document
		}

		if err != nil {
			return nil, err
		}

		docs = append(docs, doc)
	}

	return docs, nil
}
