package session

import (
	"context"

	"github.com/fitsync/platform/internal/domain"
	"github.com/google/uuid"
)

// Store is the persistence contract for session records. The schema behind it
// is the implementation's concern; the engine only relies on the semantics
// spelled out here.
//
// Terminations are soft: they rewrite expires_at to now. Rows are never
// deleted, so the audit trail persists.
type Store interface {
	// WithAccountLock runs fn while holding an exclusive per-account lock,
	// serializing racing session creations for one user. Writes performed
	// through tx are committed iff fn returns nil.
	WithAccountLock(ctx context.Context, userID uuid.UUID, fn func(tx Tx) error) error

	// FindActive returns the active session with the given id owned by the
	// user, or nil.
	FindActive(ctx context.Context, sessionID, userID uuid.UUID) (*domain.Session, error)

	// MostRecentActive returns the user's newest active session, or nil.
	MostRecentActive(ctx context.Context, userID uuid.UUID) (*domain.Session, error)

	// ActiveSessions returns the user's active sessions, newest-first.
	ActiveSessions(ctx context.Context, userID uuid.UUID) ([]domain.Session, error)

	// RoleOf resolves the user's platform role.
	RoleOf(ctx context.Context, userID uuid.UUID) (string, error)

	// Stats aggregates the user's active sessions.
	Stats(ctx context.Context, userID uuid.UUID) (*domain.SessionStats, error)

	// Terminate soft-expires the given sessions. Idempotent; already-expired
	// sessions are left untouched.
	Terminate(ctx context.Context, ids []uuid.UUID) error

	// TerminateAll soft-expires every active session of the user and returns
	// how many were affected.
	TerminateAll(ctx context.Context, userID uuid.UUID) (int, error)

	// TerminateDevice soft-expires the user's active sessions on the device
	// and returns how many were affected.
	TerminateDevice(ctx context.Context, userID uuid.UUID, deviceKey string) (int, error)

	// AppendEvent writes a lifecycle event outside a per-account lock.
	AppendEvent(ctx context.Context, draft domain.OutboxDraft) error
}

// Tx is the write surface available under a per-account lock.
type Tx interface {
	// ActiveSessions returns the locked user's active sessions, newest-first.
	ActiveSessions(ctx context.Context, userID uuid.UUID) ([]domain.Session, error)

	// Insert persists a new session record.
	Insert(ctx context.Context, s *domain.Session) error

	// Terminate soft-expires the given sessions. Idempotent.
	Terminate(ctx context.Context, ids []uuid.UUID) error

	// AppendEvent writes a lifecycle event in the same transaction.
	AppendEvent(ctx context.Context, draft domain.OutboxDraft) error
}
