// Package distlock provides a named lock shared by every worker process,
// so periodic jobs such as the reminder sweep run on one host at a time.
package distlock

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNotHeld is returned by Release when the lock expired or belongs to
// someone else.
var ErrNotHeld = errors.New("lock not held")

// Locker is a non-blocking lock. A Locker value is used by one goroutine
// at a time.
type Locker interface {
	// Acquire tries once and reports whether the lock was taken.
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// New returns a Redis lock when rdb is set, otherwise a Postgres advisory
// lock on db.
func New(rdb *redis.Client, db *sql.DB, name string, ttl time.Duration) Locker {
	if rdb != nil {
		return NewRedisLock(rdb, name, ttl)
	}
	return NewAdvisoryLock(db, name)
}

// Run calls fn while holding l. It returns false without calling fn if
// another process holds the lock.
func Run(ctx context.Context, l Locker, fn func(context.Context) error) (bool, error) {
	ok, err := l.Acquire(ctx)
	if err != nil || !ok {
		return false, err
	}
	defer func() {
		// Release even if ctx was cancelled during fn.
		relCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		_ = l.Release(relCtx)
	}()
	return true, fn(ctx)
}

// AdvisoryLock uses pg_try_advisory_lock. Advisory locks belong to a
// session, so the lock pins one pooled connection until Release.
type AdvisoryLock struct {
	db     *sql.DB
	lockID int64

	mu   sync.Mutex
	conn *sql.Conn
}

// NewAdvisoryLock derives a stable lock id from name.
func NewAdvisoryLock(db *sql.DB, name string) *AdvisoryLock {
	h := fnv.New64a()
	h.Write([]byte("giftdrive:" + name))
	return &AdvisoryLock{db: db, lockID: int64(h.Sum64())}
}

func (l *AdvisoryLock) Acquire(ctx context.Context) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.conn != nil {
		return false, nil
	}
	conn, err := l.db.Conn(ctx)
	if err != nil {
		return false, fmt.Errorf("advisory lock conn: %w", err)
	}
	var acquired bool
	if err := conn.QueryRowContext(ctx, "SELECT pg_try_advisory_lock($1)", l.lockID).Scan(&acquired); err != nil {
		conn.Close()
		return false, fmt.Errorf("advisory lock: %w", err)
	}
	if !acquired {
		conn.Close()
		return false, nil
	}
	l.conn = conn
	return true, nil
}

func (l *AdvisoryLock) Release(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.conn == nil {
		return ErrNotHeld
	}
	conn := l.conn
	l.conn = nil
	defer conn.Close()
	if _, err := conn.ExecContext(ctx, "SELECT pg_advisory_unlock($1)", l.lockID); err != nil {
		return fmt.Errorf("advisory unlock: %w", err)
	}
	return nil
}
