// Package distlock provides cross-process mutual exclusion for periodic work
// such as dispatch ticks and trigger scans.
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

// DistLock is the interface for distributed locking.
// Implementations must be safe for use from a single goroutine;
// concurrent use across goroutines requires separate lock instances.
type DistLock interface {
	// Acquire tries to acquire the lock without blocking. Returns true if successful.
	Acquire(ctx context.Context) (bool, error)
	// Release releases the lock if we still own it.
	Release(ctx context.Context) error
}

// Factory creates named locks on the best available backend.
// If the Redis client is non-nil, Redis is used (preferred for cross-host
// locking). Otherwise it falls back to PostgreSQL advisory locks. With
// neither, locks are process-local no-ops that always succeed.
type Factory struct {
	redis  *redis.Client
	db     *sql.DB
	prefix string
}

// NewFactory creates a lock factory. Key names are namespaced with prefix.
func NewFactory(redisClient *redis.Client, db *sql.DB, prefix string) *Factory {
	return &Factory{redis: redisClient, db: db, prefix: prefix}
}

// New returns a lock for key. ttl bounds how long a crashed holder can
// block others on the Redis backend.
func (f *Factory) New(key string, ttl time.Duration) DistLock {
	if f == nil {
		return noopLock{}
	}
	name := key
	if f.prefix != "" {
		name = f.prefix + ":" + key
	}
	switch {
	case f.redis != nil:
		return NewRedisLock(f.redis, name, ttl)
	case f.db != nil:
		return NewPGAdvisoryLock(f.db, name)
	default:
		return noopLock{}
	}
}

// Run executes fn while holding l. It returns ran=false without calling fn
// when another holder owns the lock.
func Run(ctx context.Context, l DistLock, fn func(ctx context.Context) error) (ran bool, err error) {
	ok, err := l.Acquire(ctx)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	defer func() {
		relCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if relErr := l.Release(relCtx); relErr != nil && err == nil {
			err = fmt.Errorf("release lock: %w", relErr)
		}
	}()
	return true, fn(ctx)
}

// Extender is implemented by locks that expire unless their holder
// refreshes them.
type Extender interface {
	Extend(ctx context.Context, ttl time.Duration) error
}

// ErrLockLost is the cancellation cause RunHeld sets on fn's context when
// the lock could not be refreshed.
var ErrLockLost = errors.New("distlock: lock lost")

// RunHeld is Run for work that may outlast ttl. While fn runs the lock is
// refreshed every ttl/3. If a refresh fails, fn's context is cancelled with
// ErrLockLost as its cause and fn is expected to stop promptly. Locks that
// do not expire are held as in Run.
func RunHeld(ctx context.Context, l DistLock, ttl time.Duration, fn func(ctx context.Context) error) (bool, error) {
	ext, ok := l.(Extender)
	if !ok || ttl <= 0 {
		return Run(ctx, l, fn)
	}
	return Run(ctx, l, func(ctx context.Context) error {
		ctx, cancel := context.WithCancelCause(ctx)
		defer cancel(nil)

		stop := make(chan struct{})
		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			ticker := time.NewTicker(ttl / 3)
			defer ticker.Stop()
			for {
				select {
				case <-stop:
					return
				case <-ctx.Done():
					return
				case <-ticker.C:
					if err := ext.Extend(ctx, ttl); err != nil {
						cancel(fmt.Errorf("%w: %v", ErrLockLost, err))
						return
					}
				}
			}
		}()

		err := fn(ctx)
		close(stop)
		wg.Wait()
		return err
	})
}

type noopLock struct{}

func (noopLock) Acquire(context.Context) (bool, error) { return true, nil }
func (noopLock) Release(context.Context) error         { return nil }

// PGAdvisoryLock implements DistLock using PostgreSQL session advisory locks.
// The lock is pinned to one pooled connection between Acquire and Release,
// since advisory locks belong to the session that took them. The lock is
// released automatically if that connection drops.
type PGAdvisoryLock struct {
	db     *sql.DB
	lockID int64
	conn   *sql.Conn
}

// NewPGAdvisoryLock creates a PG advisory lock with a deterministic lock ID
// derived from the given key string.
func NewPGAdvisoryLock(db *sql.DB, key string) *PGAdvisoryLock {
	h := fnv.New64a()
	h.Write([]byte(key))
	return &PGAdvisoryLock{
		db:     db,
		lockID: int64(h.Sum64()),
	}
}

// Acquire tries pg_try_advisory_lock on a dedicated connection.
func (l *PGAdvisoryLock) Acquire(ctx context.Context) (bool, error) {
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

// Release unlocks and returns the pinned connection to the pool.
func (l *PGAdvisoryLock) Release(ctx context.Context) error {
	if l.conn == nil {
		return nil
	}
	defer func() {
		l.conn.Close()
		l.conn = nil
	}()
	_, err := l.conn.ExecContext(ctx, "SELECT pg_advisory_unlock($1)", l.lockID)
	return err
}
