package guard

import (
	"context"
	"time"

	"github.com/fitsync/platform/internal/domain"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	MaxAttempts   = 5
	LockoutWindow = 15 * time.Minute
)

// PgLockout counts failed logins in Postgres and locks an account after
// MaxAttempts failures inside LockoutWindow.
type PgLockout struct {
	pool *pgxpool.Pool
}

// NewPgLockout creates a lockout guard backed by the given pool.
func NewPgLockout(pool *pgxpool.Pool) *PgLockout {
	return &PgLockout{pool: pool}
}

// RecordAttempt inserts a login attempt row. Best-effort: a write failure
// must never fail the login itself.
func (l *PgLockout) RecordAttempt(ctx context.Context, email, ip string, success bool) {
	_, _ = l.pool.Exec(ctx, `
		INSERT INTO login_attempts (email, ip_address, success)
		VALUES ($1, $2, $3)`,
		email, ip, success)
}

// CheckLocked returns ErrAccountLocked if the account has >= MaxAttempts
// failed logins within the lockout window.
func (l *PgLockout) CheckLocked(ctx context.Context, email string) error {
	var count int
	err := l.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM login_attempts
		WHERE email = $1 AND success = false
		  AND created_at > $2`,
		email, time.Now().Add(-LockoutWindow)).Scan(&count)
	if err != nil {
		return nil // fail open on DB error — don't block login
	}
	if count >= MaxAttempts {
		return domain.ErrAccountLocked("too many failed login attempts, try again later")
	}
	return nil
}
