package session_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/fitsync/platform/internal/auth"
	"github.com/fitsync/platform/internal/domain"
	"github.com/fitsync/platform/internal/fraud"
	"github.com/fitsync/platform/internal/policy"
	"github.com/fitsync/platform/internal/session"
	"github.com/fitsync/platform/internal/session/storefakes"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEngine(store *storefakes.FakeStore) *session.Engine {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return session.NewEngine(store, policy.NewRegistry(), fraud.NewDetector(), logger)
}

func desktop(name string) domain.DeviceFingerprint {
	return domain.DeviceFingerprint{
		UserAgent:  "Mozilla/5.0 (Windows NT 10.0) " + name,
		Platform:   domain.PlatformWindows,
		DeviceType: domain.DeviceDesktop,
		Timezone:   "America/Sao_Paulo",
	}
}

func mobile(name string) domain.DeviceFingerprint {
	return domain.DeviceFingerprint{
		UserAgent:  "Mozilla/5.0 (Linux; Android 14) Mobile " + name,
		Platform:   domain.PlatformLinux,
		DeviceType: domain.DeviceMobile,
		Timezone:   "America/Sao_Paulo",
	}
}

func seedSession(store *storefakes.FakeStore, userID uuid.UUID, fp domain.DeviceFingerprint, age time.Duration) domain.Session {
	s := domain.Session{
		ID:          uuid.New(),
		UserID:      userID,
		Token:       "seeded",
		Fingerprint: fp,
		CreatedAt:   time.Now().Add(-age),
		ExpiresAt:   time.Now().Add(session.TTL),
	}
	store.Seed(s)
	return s
}

func TestCreateSession_FirstLogin(t *testing.T) {
	store := storefakes.NewFakeStore()
	eng := newEngine(store)
	userID := uuid.New()

	res, err := eng.CreateSession(context.Background(), userID, auth.RoleClient, mobile("a"), "203.0.113.7")
	require.NoError(t, err)

	assert.Equal(t, 0, res.TerminatedCount)
	assert.Equal(t, 0, res.Assessment.Confidence)
	assert.Equal(t, domain.ActionAllow, res.Assessment.RecommendedAction)
	require.NotNil(t, res.Session)
	assert.Equal(t, userID, res.Session.UserID)
	assert.NotEmpty(t, res.Session.Token)
	assert.Equal(t, "203.0.113.7", res.Session.SourceAddress)
	assert.WithinDuration(t, time.Now().Add(session.TTL), res.Session.ExpiresAt, 5*time.Second)
}

func TestCreateSession_DefaultsSourceAddress(t *testing.T) {
	store := storefakes.NewFakeStore()
	eng := newEngine(store)

	res, err := eng.CreateSession(context.Background(), uuid.New(), auth.RoleClient, mobile("a"), "")
	require.NoError(t, err)
	assert.Equal(t, "unknown", res.Session.SourceAddress)
}

func TestCreateSession_SingleSessionRoleEvictsAll(t *testing.T) {
	store := storefakes.NewFakeStore()
	eng := newEngine(store)
	userID := uuid.New()

	seedSession(store, userID, desktop("office"), time.Hour)
	seedSession(store, userID, mobile("phone"), 30*time.Minute)

	res, err := eng.CreateSession(context.Background(), userID, auth.RoleAdmin, desktop("home"), "")
	require.NoError(t, err)
	assert.Equal(t, 2, res.TerminatedCount)

	active, err := store.ActiveSessions(context.Background(), userID)
	require.NoError(t, err)
	require.Len(t, active, 1, "exactly one session survives")
	assert.Equal(t, res.Session.ID, active[0].ID)

	now := time.Now()
	for _, s := range store.All() {
		if s.ID != res.Session.ID {
			assert.False(t, s.ExpiresAt.After(now), "evicted session %s must be expired", s.ID)
		}
	}
}

func TestCreateSession_EvictsOldestBeyondMaxSessions(t *testing.T) {
	store := storefakes.NewFakeStore()
	eng := newEngine(store)
	userID := uuid.New()

	// Client policy: maxSessions=3, maxDevices=2. Same device avoids the
	// device-group branch.
	oldest := seedSession(store, userID, mobile("phone"), 3*time.Hour)
	seedSession(store, userID, mobile("phone"), 2*time.Hour)
	seedSession(store, userID, mobile("phone"), time.Hour)

	res, err := eng.CreateSession(context.Background(), userID, auth.RoleClient, mobile("phone"), "")
	require.NoError(t, err)
	assert.Equal(t, 1, res.TerminatedCount)

	active, err := store.ActiveSessions(context.Background(), userID)
	require.NoError(t, err)
	assert.Len(t, active, 3)
	for _, s := range active {
		assert.NotEqual(t, oldest.ID, s.ID, "the oldest session must be the one evicted")
	}
}

func TestCreateSession_EvictsOldestDeviceGroup(t *testing.T) {
	store := storefakes.NewFakeStore()
	eng := newEngine(store)
	userID := uuid.New()

	// Two devices already; a third device trips maxDevices=2 and evicts the
	// whole oldest group.
	old1 := seedSession(store, userID, mobile("phone"), 5*time.Hour)
	old2 := seedSession(store, userID, mobile("phone"), 4*time.Hour)
	kept := seedSession(store, userID, desktop("office"), time.Hour)

	res, err := eng.CreateSession(context.Background(), userID, auth.RoleClient, mobile("tablet"), "")
	require.NoError(t, err)

	active, err := store.ActiveSessions(context.Background(), userID)
	require.NoError(t, err)

	ids := make(map[uuid.UUID]bool)
	for _, s := range active {
		ids[s.ID] = true
	}
	assert.False(t, ids[old1.ID])
	assert.False(t, ids[old2.ID])
	assert.True(t, ids[kept.ID])
	assert.True(t, ids[res.Session.ID])
	// Both sessions of the evicted group count; the session-count branch also
	// fires off the same snapshot (3 >= 3) and recounts one of them.
	assert.Equal(t, 3, res.TerminatedCount)
}

func TestCreateSession_FraudBlocked(t *testing.T) {
	store := storefakes.NewFakeStore()
	eng := newEngine(store)
	userID := uuid.New()

	for i := 0; i < 6; i++ {
		seedSession(store, userID, desktop("office"), 2*time.Hour)
	}

	res, err := eng.CreateSession(context.Background(), userID, auth.RoleClient, desktop("new"), "")
	require.Error(t, err)
	assert.Nil(t, res)

	var blocked *domain.FraudBlockedError
	require.ErrorAs(t, err, &blocked)
	assert.GreaterOrEqual(t, blocked.Confidence, 70)
	assert.NotEmpty(t, blocked.Reasons)

	// Evictions are committed even though creation was refused.
	active, err := store.ActiveSessions(context.Background(), userID)
	require.NoError(t, err)
	assert.Less(t, len(active), 6, "policy eviction must persist despite the block")

	for _, s := range store.All() {
		assert.NotEqual(t, "", s.Token)
	}
	var sawFraudEvent bool
	for _, ev := range store.Events() {
		if ev.EventType == domain.EventSessionFraudBlock {
			sawFraudEvent = true
		}
	}
	assert.True(t, sawFraudEvent)
}

func TestCreateSession_WarnStillCreates(t *testing.T) {
	store := storefakes.NewFakeStore()
	eng := newEngine(store)
	userID := uuid.New()

	// 7 mobile sessions within the hour: rapid changes (+25) and volume
	// (+30) put the confidence at 55, in the warn band.
	for i := 0; i < 7; i++ {
		seedSession(store, userID, mobile("phone"), 10*time.Minute)
	}

	res, err := eng.CreateSession(context.Background(), userID, auth.RoleClient, mobile("phone"), "")
	require.NoError(t, err)
	assert.Equal(t, domain.ActionWarn, res.Assessment.RecommendedAction)
	assert.True(t, res.Assessment.IsFraud)
	require.NotNil(t, res.Session, "warn is advisory only")
}

func TestCreateSession_ConcurrentSettlesUnderLimit(t *testing.T) {
	store := storefakes.NewFakeStore()
	eng := newEngine(store)
	userID := uuid.New()

	const callers = 16
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := eng.CreateSession(context.Background(), userID, auth.RoleClient, mobile("phone"), "")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	active, err := store.ActiveSessions(context.Background(), userID)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(active), 3, "active count must settle under maxSessions")
}

func TestValidateSession_NotFound(t *testing.T) {
	store := storefakes.NewFakeStore()
	eng := newEngine(store)

	check, err := eng.ValidateSession(context.Background(), uuid.New(), uuid.New())
	require.NoError(t, err)
	assert.False(t, check.Valid)
	assert.Equal(t, domain.ValidationNotFound, check.Reason)
}

func TestValidateSession_StaleButActiveIsValidForMultiSessionRoles(t *testing.T) {
	store := storefakes.NewFakeStore()
	eng := newEngine(store)
	userID := uuid.New()
	store.SetRole(userID, auth.RoleClient)

	older := seedSession(store, userID, mobile("phone"), time.Hour)
	seedSession(store, userID, desktop("office"), time.Minute)

	check, err := eng.ValidateSession(context.Background(), older.ID, userID)
	require.NoError(t, err)
	assert.True(t, check.Valid, "limits are enforced at creation, not per request")
}

func TestValidateSession_SupersededForSingleSessionRole(t *testing.T) {
	store := storefakes.NewFakeStore()
	eng := newEngine(store)
	userID := uuid.New()
	store.SetRole(userID, auth.RoleAdmin)

	older := seedSession(store, userID, desktop("office"), time.Hour)
	newer := seedSession(store, userID, desktop("home"), time.Minute)

	check, err := eng.ValidateSession(context.Background(), older.ID, userID)
	require.NoError(t, err)
	assert.False(t, check.Valid)
	assert.True(t, check.Terminated)
	assert.Equal(t, domain.ValidationSuperseded, check.Reason)

	now := time.Now()
	for _, s := range store.All() {
		if s.ID == older.ID {
			assert.False(t, s.ExpiresAt.After(now), "superseded session must be expired")
		}
	}

	check, err = eng.ValidateSession(context.Background(), newer.ID, userID)
	require.NoError(t, err)
	assert.True(t, check.Valid, "the most recent session stays valid")
}

func TestTerminateAllThenStats(t *testing.T) {
	store := storefakes.NewFakeStore()
	eng := newEngine(store)
	userID := uuid.New()

	seedSession(store, userID, mobile("phone"), time.Hour)
	seedSession(store, userID, desktop("office"), time.Minute)

	n, err := eng.TerminateAllSessions(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	stats, err := eng.GetUserSessionStats(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.ActiveSessions)
	assert.Equal(t, 0, stats.DeviceCount)
}

func TestTerminateDeviceSessions(t *testing.T) {
	store := storefakes.NewFakeStore()
	eng := newEngine(store)
	userID := uuid.New()

	phone := mobile("phone")
	seedSession(store, userID, phone, time.Hour)
	seedSession(store, userID, phone, 30*time.Minute)
	seedSession(store, userID, desktop("office"), time.Minute)

	n, err := eng.TerminateDeviceSessions(context.Background(), userID, phone.DeviceKey())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	stats, err := eng.GetUserSessionStats(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.ActiveSessions)
	assert.Equal(t, 1, stats.DeviceCount)
}

func TestGetUserSessionStats(t *testing.T) {
	store := storefakes.NewFakeStore()
	eng := newEngine(store)
	userID := uuid.New()

	seedSession(store, userID, mobile("phone"), 2*time.Hour)
	newest := seedSession(store, userID, desktop("office"), time.Minute)

	stats, err := eng.GetUserSessionStats(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.ActiveSessions)
	assert.Equal(t, 2, stats.DeviceCount)
	require.NotNil(t, stats.LastCreatedAt)
	assert.WithinDuration(t, newest.CreatedAt, *stats.LastCreatedAt, time.Second)
}
