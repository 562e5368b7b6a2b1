package repository

import (
	"context"
	"fmt"

	"github.com/fitsync/platform/internal/domain"
	"github.com/fitsync/platform/internal/session"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const sessionColumns = `id, user_id, token, user_agent, platform, device_type, language, timezone,
	screen_resolution, hardware_concurrency, source_address, created_at, expires_at`

// PgSessionStore implements session.Store on Postgres. Terminations rewrite
// expires_at; rows are never deleted.
type PgSessionStore struct {
	pool   *pgxpool.Pool
	outbox OutboxRepository
}

// NewPgSessionStore creates a session store backed by the given pool.
func NewPgSessionStore(pool *pgxpool.Pool, outbox OutboxRepository) *PgSessionStore {
	return &PgSessionStore{pool: pool, outbox: outbox}
}

var _ session.Store = (*PgSessionStore)(nil)

// WithAccountLock serializes racing session creations for one account via a
// transaction-scoped advisory lock keyed by the user id. The transaction
// commits iff fn returns nil.
func (s *PgSessionStore) WithAccountLock(ctx context.Context, userID uuid.UUID, fn func(tx session.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`SELECT pg_advisory_xact_lock(hashtextextended($1::text, 0))`, userID); err != nil {
		return fmt.Errorf("acquire account lock: %w", err)
	}

	if err := fn(&pgSessionTx{tx: tx, outbox: s.outbox}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (s *PgSessionStore) FindActive(ctx context.Context, sessionID, userID uuid.UUID) (*domain.Session, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+sessionColumns+`
		FROM sessions
		WHERE id = $1 AND user_id = $2 AND expires_at > now()`, sessionID, userID)
	return scanSession(row)
}

func (s *PgSessionStore) MostRecentActive(ctx context.Context, userID uuid.UUID) (*domain.Session, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+sessionColumns+`
		FROM sessions
		WHERE user_id = $1 AND expires_at > now()
		ORDER BY created_at DESC
		LIMIT 1`, userID)
	return scanSession(row)
}

func (s *PgSessionStore) ActiveSessions(ctx context.Context, userID uuid.UUID) ([]domain.Session, error) {
	return listActive(ctx, s.pool, userID)
}

// RoleOf resolves the user's platform role. A missing user yields the empty
// role, which the policy registry maps to its fallback.
func (s *PgSessionStore) RoleOf(ctx context.Context, userID uuid.UUID) (string, error) {
	var role string
	err := s.pool.QueryRow(ctx, `SELECT role FROM auth_users WHERE id = $1`, userID).Scan(&role)
	if err == pgx.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("resolve role: %w", err)
	}
	return role, nil
}

func (s *PgSessionStore) Stats(ctx context.Context, userID uuid.UUID) (*domain.SessionStats, error) {
	stats := &domain.SessionStats{}
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*), COUNT(DISTINCT device_key), MAX(created_at)
		FROM sessions
		WHERE user_id = $1 AND expires_at > now()`, userID).
		Scan(&stats.ActiveSessions, &stats.DeviceCount, &stats.LastCreatedAt)
	if err != nil {
		return nil, fmt.Errorf("session stats: %w", err)
	}
	return stats, nil
}

func (s *PgSessionStore) Terminate(ctx context.Context, ids []uuid.UUID) error {
	return terminate(ctx, s.pool, ids)
}

func (s *PgSessionStore) TerminateAll(ctx context.Context, userID uuid.UUID) (int, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE sessions SET expires_at = now()
		WHERE user_id = $1 AND expires_at > now()`, userID)
	if err != nil {
		return 0, fmt.Errorf("terminate all: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (s *PgSessionStore) TerminateDevice(ctx context.Context, userID uuid.UUID, deviceKey string) (int, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE sessions SET expires_at = now()
		WHERE user_id = $1 AND device_key = $2 AND expires_at > now()`, userID, deviceKey)
	if err != nil {
		return 0, fmt.Errorf("terminate device: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (s *PgSessionStore) AppendEvent(ctx context.Context, draft domain.OutboxDraft) error {
	return s.outbox.Insert(ctx, s.pool, draft)
}

// pgSessionTx is the write surface under the advisory lock.
type pgSessionTx struct {
	tx     pgx.Tx
	outbox OutboxRepository
}

func (t *pgSessionTx) ActiveSessions(ctx context.Context, userID uuid.UUID) ([]domain.Session, error) {
	return listActive(ctx, t.tx, userID)
}

func (t *pgSessionTx) Insert(ctx context.Context, s *domain.Session) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO sessions
		  (id, user_id, token, user_agent, platform, device_type, language, timezone,
		   screen_resolution, hardware_concurrency, device_key, source_address, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		s.ID, s.UserID, s.Token,
		s.Fingerprint.UserAgent, string(s.Fingerprint.Platform), string(s.Fingerprint.DeviceType),
		s.Fingerprint.Language, s.Fingerprint.Timezone,
		s.Fingerprint.ScreenResolution, s.Fingerprint.HardwareConcurrency,
		s.Fingerprint.DeviceKey(), s.SourceAddress, s.CreatedAt, s.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (t *pgSessionTx) Terminate(ctx context.Context, ids []uuid.UUID) error {
	return terminate(ctx, t.tx, ids)
}

func (t *pgSessionTx) AppendEvent(ctx context.Context, draft domain.OutboxDraft) error {
	return t.outbox.Insert(ctx, t.tx, draft)
}

func listActive(ctx context.Context, db DBTX, userID uuid.UUID) ([]domain.Session, error) {
	rows, err := db.Query(ctx, `
		SELECT `+sessionColumns+`
		FROM sessions
		WHERE user_id = $1 AND expires_at > now()
		ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list active sessions: %w", err)
	}
	defer rows.Close()

	var out []domain.Session
	for rows.Next() {
		s, err := scanSessionRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

// terminate soft-expires the given sessions. Idempotent: already-expired rows
// keep their original expiry so the audit trail stays intact.
func terminate(ctx context.Context, db DBTX, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := db.Exec(ctx, `
		UPDATE sessions SET expires_at = now()
		WHERE id = ANY($1) AND expires_at > now()`, ids)
	if err != nil {
		return fmt.Errorf("terminate sessions: %w", err)
	}
	return nil
}

func scanSession(row pgx.Row) (*domain.Session, error) {
	s, err := scanSessionRow(row)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return s, err
}

func scanSessionRow(row pgx.Row) (*domain.Session, error) {
	var s domain.Session
	var platform, deviceType string
	err := row.Scan(&s.ID, &s.UserID, &s.Token,
		&s.Fingerprint.UserAgent, &platform, &deviceType,
		&s.Fingerprint.Language, &s.Fingerprint.Timezone,
		&s.Fingerprint.ScreenResolution, &s.Fingerprint.HardwareConcurrency,
		&s.SourceAddress, &s.CreatedAt, &s.ExpiresAt)
	if err != nil {
		return nil, err
	}
	s.Fingerprint.Platform = domain.Platform(platform)
	s.Fingerprint.DeviceType = domain.DeviceType(deviceType)
	return &s, nil
}
