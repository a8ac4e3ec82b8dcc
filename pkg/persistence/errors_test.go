package persistence

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInstanceErrorWrapping(t *testing.T) {
	err := NewInstanceError("Get", "WFI-123", ErrInstanceNotFound)

	assert.True(t, errors.Is(err, ErrInstanceNotFound))
	assert.True(t, IsInstanceNotFound(err))
	assert.Contains(t, err.Error(), "WFI-123")
	assert.Contains(t, err.Error(), "Get")
}

func TestTaskErrorWrapping(t *testing.T) {
	err := NewTaskError("Save", "TASK-9", ErrVersionConflict)

	assert.True(t, IsVersionConflict(err))
	assert.False(t, IsTaskNotFound(err))
	assert.Contains(t, err.Error(), "TASK-9")
}

func TestApprovalErrorWrapping(t *testing.T) {
	err := NewApprovalError("Get", "apr-1", ErrApprovalNotFound)

	assert.True(t, IsApprovalNotFound(err))
	assert.Equal(t, ErrApprovalNotFound, errors.Unwrap(err))
}
