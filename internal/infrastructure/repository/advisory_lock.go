package repository

import (
	"context"
	"fmt"
	"hash/fnv"
	"log"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tariffio/tariff-import/internal/domain/tariff"
)

// ProviderLock serializes runs per provider through Postgres advisory
// locks, so two processes sharing the database never import the same
// provider at once.
type ProviderLock struct {
	pool *pgxpool.Pool
}

func NewProviderLock(pool *pgxpool.Pool) *ProviderLock {
	return &ProviderLock{pool: pool}
}

// LockHandle pins the session holding the lock. Advisory locks are
// session-scoped, so the connection stays out of the pool until Release.
type LockHandle struct {
	conn *pgxpool.Conn
	key  int64
}

// TryAcquire takes the provider's lock without waiting; ok=false means
// another session holds it.
func (l *ProviderLock) TryAcquire(ctx context.Context, providerID string) (tariff.ProviderLease, bool, error) {
	key := lockKey(providerID)
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire lock connection: %w", err)
	}
	var locked bool
	if err := conn.QueryRow(ctx, "SELECT pg_try_advisory_lock($1)", key).Scan(&locked); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !locked {
		conn.Release()
		return nil, false, nil
	}
	return &LockHandle{conn: conn, key: key}, true, nil
}

// Release drops the lock and returns the session to the pool. If the
// unlock statement fails the underlying connection is closed instead,
// which makes the server drop the session's locks.
func (h *LockHandle) Release(ctx context.Context) {
	if h == nil || h.conn == nil {
		return
	}
	if _, err := h.conn.Exec(ctx, "SELECT pg_advisory_unlock($1)", h.key); err != nil {
		log.Printf("advisory unlock failed for key %d: %v", h.key, err)
		_ = h.conn.Conn().Close(ctx)
	}
	h.conn.Release()
	h.conn = nil
}

func lockKey(providerID string) int64 {
	h := fnv.New64a()
	h.Write([]byte(providerID))
	return int64(h.Sum64())
}
