// Package file provides file-based persistence for workflow definitions,
// instances, tasks, and approvals. Intended for development and tests.
package file

import (
	"context"
	"os"
	"strings"
	"sync"

	"github.com/grantflow/grantflow/pkg/persistence"
)

// Persistence implements persistence.Persistence on top of a directory of
// JSON documents, one file per aggregate. A single mutex serializes every
// read-modify-write so the optimistic version check cannot race in-process.
type Persistence struct {
	root string
	mu   sync.Mutex

	definitionRepo       *DefinitionRepository
	instanceRepo         *InstanceRepository
	taskRepo             *TaskRepository
	approvalWorkflowRepo *ApprovalWorkflowRepository
	approvalRepo         *ApprovalRepository
}

// NewPersistence creates a file persistence layer rooted at the given
// directory. Accepts plain paths and file:// URLs.
func NewPersistence(root string) *Persistence {
	cleanRoot := strings.Replace(root, "file://", "", 1)

	p := &Persistence{root: cleanRoot}
	p.definitionRepo = &DefinitionRepository{store: p}
	p.instanceRepo = &InstanceRepository{store: p}
	p.taskRepo = &TaskRepository{store: p}
	p.approvalWorkflowRepo = &ApprovalWorkflowRepository{store: p}
	p.approvalRepo = &ApprovalRepository{store: p}

	return p
}

// Close performs any necessary cleanup. Nothing to release for files.
func (p *Persistence) Close(_ context.Context) error {
	return nil
}

// HealthCheck verifies the root directory exists.
func (p *Persistence) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(p.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
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
