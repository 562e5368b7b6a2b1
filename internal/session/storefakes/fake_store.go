// Package storefakes provides an in-memory session.Store for unit tests.
package storefakes

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/fitsync/platform/internal/domain"
	"github.com/fitsync/platform/internal/session"
	"github.com/google/uuid"
)

// FakeStore is an in-memory session.Store. Per-account serialization uses a
// mutex per user id, mirroring the advisory-lock semantics of the pgx store.
type FakeStore struct {
	mu       sync.Mutex
	sessions []*domain.Session
	roles    map[uuid.UUID]string
	events   []domain.OutboxDraft
	userLock map[uuid.UUID]*sync.Mutex
}

// NewFakeStore creates an empty fake store.
func NewFakeStore() *FakeStore {
	return &FakeStore{
		roles:    make(map[uuid.UUID]string),
		userLock: make(map[uuid.UUID]*sync.Mutex),
	}
}

// SetRole seeds the role resolved for a user.
func (f *FakeStore) SetRole(userID uuid.UUID, role string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.roles[userID] = role
}

// Seed inserts a session directly, bypassing the engine.
func (f *FakeStore) Seed(s domain.Session) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := s
	f.sessions = append(f.sessions, &cp)
}

// Events returns a copy of all appended outbox drafts.
func (f *FakeStore) Events() []domain.OutboxDraft {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.OutboxDraft, len(f.events))
	copy(out, f.events)
	return out
}

// All returns copies of every stored session, terminated ones included.
func (f *FakeStore) All() []domain.Session {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.Session, 0, len(f.sessions))
	for _, s := range f.sessions {
		out = append(out, *s)
	}
	return out
}

func (f *FakeStore) lockFor(userID uuid.UUID) *sync.Mutex {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.userLock[userID]
	if !ok {
		l = &sync.Mutex{}
		f.userLock[userID] = l
	}
	return l
}

// WithAccountLock serializes fn per user. Writes are buffered and applied
// only when fn returns nil, matching the transactional store.
func (f *FakeStore) WithAccountLock(_ context.Context, userID uuid.UUID, fn func(tx session.Tx) error) error {
	l := f.lockFor(userID)
	l.Lock()
	defer l.Unlock()

	tx := &fakeTx{store: f}
	if err := fn(tx); err != nil {
		return err
	}
	tx.apply()
	return nil
}

func (f *FakeStore) FindActive(_ context.Context, sessionID, userID uuid.UUID) (*domain.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := time.Now()
	for _, s := range f.sessions {
		if s.ID == sessionID && s.UserID == userID && s.Active(now) {
			cp := *s
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *FakeStore) MostRecentActive(_ context.Context, userID uuid.UUID) (*domain.Session, error) {
	active := f.activeNewestFirst(userID)
	if len(active) == 0 {
		return nil, nil
	}
	cp := active[0]
	return &cp, nil
}

func (f *FakeStore) ActiveSessions(_ context.Context, userID uuid.UUID) ([]domain.Session, error) {
	return f.activeNewestFirst(userID), nil
}

func (f *FakeStore) RoleOf(_ context.Context, userID uuid.UUID) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.roles[userID], nil
}

func (f *FakeStore) Stats(_ context.Context, userID uuid.UUID) (*domain.SessionStats, error) {
	active := f.activeNewestFirst(userID)
	stats := &domain.SessionStats{ActiveSessions: len(active)}
	devices := make(map[string]bool)
	for _, s := range active {
		devices[s.Fingerprint.DeviceKey()] = true
	}
	stats.DeviceCount = len(devices)
	if len(active) > 0 {
		t := active[0].CreatedAt
		stats.LastCreatedAt = &t
	}
	return stats, nil
}

func (f *FakeStore) Terminate(_ context.Context, ids []uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.terminateLocked(ids, time.Now())
	return nil
}

func (f *FakeStore) TerminateAll(_ context.Context, userID uuid.UUID) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := time.Now()
	n := 0
	for _, s := range f.sessions {
		if s.UserID == userID && s.Active(now) {
			s.ExpiresAt = now
			n++
		}
	}
	return n, nil
}

func (f *FakeStore) TerminateDevice(_ context.Context, userID uuid.UUID, deviceKey string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := time.Now()
	n := 0
	for _, s := range f.sessions {
		if s.UserID == userID && s.Active(now) && s.Fingerprint.DeviceKey() == deviceKey {
			s.ExpiresAt = now
			n++
		}
	}
	return n, nil
}

func (f *FakeStore) AppendEvent(_ context.Context, draft domain.OutboxDraft) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, draft)
	return nil
}

func (f *FakeStore) activeNewestFirst(userID uuid.UUID) []domain.Session {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := time.Now()
	var out []domain.Session
	// Reverse insertion order so the stable sort keeps newest-inserted first
	// among equal timestamps.
	for i := len(f.sessions) - 1; i >= 0; i-- {
		s := f.sessions[i]
		if s.UserID == userID && s.Active(now) {
			out = append(out, *s)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (f *FakeStore) terminateLocked(ids []uuid.UUID, now time.Time) {
	set := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	for _, s := range f.sessions {
		if set[s.ID] && s.Active(now) {
			s.ExpiresAt = now
		}
	}
}

// fakeTx buffers writes until commit.
type fakeTx struct {
	store      *FakeStore
	inserted   []*domain.Session
	terminated []uuid.UUID
	events     []domain.OutboxDraft
}

func (t *fakeTx) ActiveSessions(ctx context.Context, userID uuid.UUID) ([]domain.Session, error) {
	return t.store.ActiveSessions(ctx, userID)
}

func (t *fakeTx) Insert(_ context.Context, s *domain.Session) error {
	cp := *s
	t.inserted = append(t.inserted, &cp)
	return nil
}

func (t *fakeTx) Terminate(_ context.Context, ids []uuid.UUID) error {
	t.terminated = append(t.terminated, ids...)
	return nil
}

func (t *fakeTx) AppendEvent(_ context.Context, draft domain.OutboxDraft) error {
	t.events = append(t.events, draft)
	return nil
}

func (t *fakeTx) apply() {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	t.store.terminateLocked(t.terminated, time.Now())
	t.store.sessions = append(t.store.sessions, t.inserted...)
	t.store.events = append(t.store.events, t.events...)
}
