package storage

import (
	"context"
	"testing"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisStoreGetSetRemove(t *testing.T) {
	client, mock := redismock.NewClientMock()
	store := NewRedisStoreFromClient(client)
	ctx := context.Background()

	mock.ExpectSet(KeyRideTimerStart, "1724800000000", 0).SetVal("OK")
	require.NoError(t, store.Set(ctx, KeyRideTimerStart, "1724800000000"))

	mock.ExpectGet(KeyRideTimerStart).SetVal("1724800000000")
	value, err := store.Get(ctx, KeyRideTimerStart)
	require.NoError(t, err)
	assert.Equal(t, "1724800000000", value)

	mock.ExpectDel(KeyRideTimerStart).SetVal(1)
	require.NoError(t, store.Remove(ctx, KeyRideTimerStart))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisStoreGetMissingKey(t *testing.T) {
	client, mock := redismock.NewClientMock()
	store := NewRedisStoreFromClient(client)

	mock.ExpectGet(KeyAuthToken).RedisNil()

	_, err := store.Get(context.Background(), KeyAuthToken)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	_, err := store.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.Set(ctx, KeyAuthToken, "abc"))
	value, err := store.Get(ctx, KeyAuthToken)
	require.NoError(t, err)
	assert.Equal(t, "abc", value)

	require.NoError(t, store.Remove(ctx, KeyAuthToken))
	_, err = store.Get(ctx, KeyAuthToken)
	assert.ErrorIs(t, err, ErrNotFound)

	// removing again is a no-op
	assert.NoError(t, store.Remove(ctx, KeyAuthToken))
}
