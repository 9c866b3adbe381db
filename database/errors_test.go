package database

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestBatchErrorCountsExactlyAndCapsDetail(t *testing.T) {
	be := &BatchError{Operation: "save stats"}
	assert.NoError(t, be.OrNil())

	for i := 0; i < 25; i++ {
		be.Record(fmt.Errorf("chunk %d failed", i))
	}

	assert.Equal(t, 25, be.Count)
	assert.Len(t, be.Details, 10)
	require.Error(t, be.OrNil())
	assert.Contains(t, be.Error(), "25 chunk failure(s)")
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, IsNotFound(NewNotFoundErrorWithID("order", 7)))
	assert.True(t, IsNotFound(gorm.ErrRecordNotFound))
	assert.True(t, IsNotFound(fmt.Errorf("load: %w", gorm.ErrRecordNotFound)))
	assert.False(t, IsNotFound(errors.New("connection refused")))
	assert.False(t, IsNotFound(nil))
}

func TestWrapDBErrorPreservesCause(t *testing.T) {
	cause := errors.New("deadlock detected")
	err := WrapDBError("update stat", cause)

	require.Error(t, err)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "update stat")

	assert.NoError(t, WrapDBError("update stat", nil))
}
