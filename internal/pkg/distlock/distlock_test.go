package distlock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return client, mr
}

func TestRedisLock_Exclusive(t *testing.T) {
	client, _ := setupTestRedis(t)
	ctx := context.Background()

	a := NewRedisLock(client, "reminders", time.Minute)
	b := NewRedisLock(client, "reminders", time.Minute)

	ok, err := a.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = b.Acquire(ctx)
	require.NoError(t, err)
	assert.False(t, ok, "second holder must not acquire")

	assert.ErrorIs(t, b.Release(ctx), ErrNotHeld)
	require.NoError(t, a.Release(ctx))

	ok, err = b.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisLock_Expires(t *testing.T) {
	client, mr := setupTestRedis(t)
	ctx := context.Background()

	a := NewRedisLock(client, "reminders", 30*time.Second)
	ok, _ := a.Acquire(ctx)
	require.True(t, ok)
	assert.True(t, mr.Exists(a.Key()))

	mr.FastForward(31 * time.Second)

	b := NewRedisLock(client, "reminders", 30*time.Second)
	ok, err := b.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.ErrorIs(t, a.Release(ctx), ErrNotHeld)
}

func TestRun(t *testing.T) {
	client, _ := setupTestRedis(t)
	ctx := context.Background()

	holder := NewRedisLock(client, "job", time.Minute)
	calls := 0
	ran, err := Run(ctx, NewRedisLock(client, "job", time.Minute), func(context.Context) error {
		calls++
		// Nested attempt while held.
		ok, err := holder.Acquire(ctx)
		assert.NoError(t, err)
		assert.False(t, ok)
		return errors.New("boom")
	})
	assert.True(t, ran)
	assert.EqualError(t, err, "boom")
	assert.Equal(t, 1, calls)

	// Released after fn returned.
	ok, err := holder.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	ran, err = Run(ctx, NewRedisLock(client, "job", time.Minute), func(context.Context) error {
		t.Fatal("fn must not run while lock is held")
		return nil
	})
	require.NoError(t, err)
	assert.False(t, ran)
}

func TestNew_PicksBackend(t *testing.T) {
	client, _ := setupTestRedis(t)
	assert.IsType(t, &RedisLock{}, New(client, nil, "x", time.Second))
	assert.IsType(t, &AdvisoryLock{}, New(nil, nil, "x", time.Second))
}

func TestAdvisoryLock(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	l := NewAdvisoryLock(db, "reminders")

	mock.ExpectQuery(`SELECT pg_try_advisory_lock\(\$1\)`).
		WithArgs(l.lockID).
		WillReturnRows(sqlmock.NewRows([]string{"pg_try_advisory_lock"}).AddRow(true))
	mock.ExpectExec(`SELECT pg_advisory_unlock\(\$1\)`).
		WithArgs(l.lockID).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT pg_try_advisory_lock\(\$1\)`).
		WithArgs(l.lockID).
		WillReturnRows(sqlmock.NewRows([]string{"pg_try_advisory_lock"}).AddRow(false))

	ctx := context.Background()
	ok, err := l.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	// Already held by this value.
	ok, err = l.Acquire(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, l.Release(ctx))
	assert.ErrorIs(t, l.Release(ctx), ErrNotHeld)

	ok, err = l.Acquire(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	assert.NoError(t, mock.ExpectationsWereMet())
}
