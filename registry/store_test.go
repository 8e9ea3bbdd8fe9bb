package registry

import (
	"context"
	"errors"
	"testing"

	"github.com/ruteri/threshold-secret-registry/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_FailedUpdateLeavesNoTrace(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	id := interfaces.SecretIDFromLabel("store")

	require.NoError(t, store.Update(ctx, id, func(cur *interfaces.SecretRecord) (*interfaces.SecretRecord, error) {
		assert.Nil(t, cur)
		return &interfaces.SecretRecord{ID: id, Active: true, Confirmed: map[interfaces.Address]bool{}}, nil
	}))

	boom := errors.New("boom")
	err := store.Update(ctx, id, func(cur *interfaces.SecretRecord) (*interfaces.SecretRecord, error) {
		cur.Active = false
		cur.Confirmed[p1Addr] = true
		return nil, boom
	})
	assert.ErrorIs(t, err, boom)

	rec, ok, err := store.Get(ctx, id)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, rec.Active)
	assert.Empty(t, rec.Confirmed)
	assert.Equal(t, 1, store.Len())
}

func TestMemoryStore_CancelledContext(t *testing.T) {
	store := NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := store.Get(ctx, interfaces.SecretID{})
	assert.ErrorIs(t, err, context.Canceled)

	err = store.Update(ctx, interfaces.SecretID{}, func(*interfaces.SecretRecord) (*interfaces.SecretRecord, error) {
		t.Fatal("must not run")
		return nil, nil
	})
	assert.ErrorIs(t, err, context.Canceled)
}
