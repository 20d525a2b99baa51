package repository

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type counter struct {
	N int `json:"n"`
}

func newTestStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStore(client, 50), mr
}

func TestRedisStore_GetSet(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	var c counter
	found, err := store.Get(ctx, "user:u1:wallet", &c)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, store.Set(ctx, "user:u1:wallet", counter{N: 3}))
	found, err = store.Get(ctx, "user:u1:wallet", &c)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 3, c.N)
}

func TestRedisStore_UpdateReadsOwnWrites(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	err := store.Update(ctx, []string{"k"}, func(tx Txn) error {
		require.NoError(t, tx.Set("k", counter{N: 1}))
		var c counter
		found, err := tx.Get("k", &c)
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, 1, c.N)

		require.NoError(t, tx.Delete("k"))
		found, err = tx.Get("k", &c)
		require.NoError(t, err)
		assert.False(t, found)
		return tx.Set("k", counter{N: 2})
	})
	require.NoError(t, err)

	var c counter
	_, err = store.Get(ctx, "k", &c)
	require.NoError(t, err)
	assert.Equal(t, 2, c.N)
}

func TestRedisStore_UpdateErrorWritesNothing(t *testing.T) {
	store, mr := newTestStore(t)
	boom := errors.New("boom")

	err := store.Update(context.Background(), []string{"k"}, func(tx Txn) error {
		_ = tx.Set("k", counter{N: 1})
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.False(t, mr.Exists("k"))
}

func TestRedisStore_ConcurrentUpdatesDoNotLoseWrites(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	const workers = 10

	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- store.Update(ctx, []string{"counter"}, func(tx Txn) error {
				var c counter
				if _, err := tx.Get("counter", &c); err != nil {
					return err
				}
				c.N++
				return tx.Set("counter", c)
			})
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	var c counter
	_, err := store.Get(ctx, "counter", &c)
	require.NoError(t, err)
	assert.Equal(t, workers, c.N)
}

func TestRedisStore_DeleteByPrefix(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	for _, k := range []string{"user:u1:profile", "user:u1:wallet", "user:u10:wallet", "user:u2:wallet"} {
		require.NoError(t, store.Set(ctx, k, counter{}))
	}

	n, err := store.DeleteByPrefix(ctx, UserPrefix("u1"))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.True(t, mr.Exists("user:u10:wallet"))
	assert.True(t, mr.Exists("user:u2:wallet"))

	keys, err := store.Keys(ctx, "user:")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"user:u10:wallet", "user:u2:wallet"}, keys)
}

func TestRedisStore_KeysEscapesGlob(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "a*b:1", counter{}))
	require.NoError(t, store.Set(ctx, "axb:1", counter{}))

	keys, err := store.Keys(ctx, "a*b:")
	require.NoError(t, err)
	assert.Equal(t, []string{"a*b:1"}, keys)
}

func TestUserIDFromKey(t *testing.T) {
	id, ok := UserIDFromKey(TransactionsKey("abc"))
	assert.True(t, ok)
	assert.Equal(t, "abc", id)

	_, ok = UserIDFromKey("outbox:1")
	assert.False(t, ok)
	_, ok = UserIDFromKey("user::wallet")
	assert.False(t, ok)
}
