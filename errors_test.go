package patternstore

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStoreErrorFormatting(t *testing.T) {
	err := newError("Store.Retrieve", KindNotFound, ErrPatternNotFound)
	assert.Contains(t, err.Error(), "Store.Retrieve")
	assert.Contains(t, err.Error(), KindNotFound)
	assert.Contains(t, err.Error(), "pattern not found")

	err = err.withContext("pattern", "greet")
	assert.Contains(t, err.Error(), "greet")
}

func TestStoreErrorUnwrap(t *testing.T) {
	wrapped := fmt.Errorf("outer: %w", newError("Store.Store", KindValidation, ErrInvalidManifest))

	assert.ErrorIs(t, wrapped, ErrInvalidManifest)

	var se *StoreError
	assert.ErrorAs(t, wrapped, &se)
	assert.Equal(t, "Store.Store", se.Op)
	assert.Equal(t, KindValidation, se.Kind)
}

func TestStoreErrorIsMatchesKind(t *testing.T) {
	err := newError("Store.Optimize", KindBusy, ErrMaintenanceInProgress)

	assert.ErrorIs(t, err, &StoreError{Kind: KindBusy})
	assert.ErrorIs(t, err, &StoreError{Op: "Store.Optimize", Kind: KindBusy})
	assert.NotErrorIs(t, err, &StoreError{Kind: KindNotFound})
	assert.NotErrorIs(t, err, &StoreError{Op: "Store.Retrieve", Kind: KindBusy})
}

func TestIsKind(t *testing.T) {
	err := newError("Store.Store", KindCapacity, ErrCapacityExceeded)

	assert.True(t, IsKind(err, KindCapacity))
	assert.False(t, IsKind(err, KindValidation))
	assert.True(t, IsKind(fmt.Errorf("wrapped: %w", err), KindCapacity))
	assert.False(t, IsKind(errors.New("plain"), KindCapacity))
	assert.False(t, IsKind(nil, KindCapacity))
}
