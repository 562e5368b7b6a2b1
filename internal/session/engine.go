// Package session implements the session lifecycle engine: policy-driven
// eviction of concurrent sessions, fraud assessment of the requesting device,
// and per-request supersession checks.
package session

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/fitsync/platform/internal/domain"
	"github.com/fitsync/platform/internal/fraud"
	"github.com/fitsync/platform/internal/policy"
	"github.com/google/uuid"
)

// TTL is the fixed lifetime of a new session. Not policy-driven today.
const TTL = 7 * 24 * time.Hour

// Eviction reasons recorded on termination events.
const (
	reasonEviction   = "policy_eviction"
	reasonSuperseded = "superseded"
	reasonAll        = "terminate_all"
	reasonDevice     = "terminate_device"
)

// Engine orchestrates session creation and validation against the policy
// registry, the fraud detector, and the session store.
type Engine struct {
	store    Store
	policies *policy.Registry
	detector *fraud.Detector
	logger   *slog.Logger
}

// NewEngine creates a session engine.
func NewEngine(store Store, policies *policy.Registry, detector *fraud.Detector, logger *slog.Logger) *Engine {
	return &Engine{store: store, policies: policies, detector: detector, logger: logger}
}

// CreateResult is returned by a successful CreateSession.
type CreateResult struct {
	Session         *domain.Session        `json:"session"`
	TerminatedCount int                    `json:"terminated_count"`
	Assessment      domain.FraudAssessment `json:"assessment"`
}

// CreateSession evicts excess sessions per the role's policy, scores the
// candidate device, and persists a new session unless the assessment blocks
// it. Racing calls for one account are serialized by the store's per-account
// lock; once concurrent calls settle, the active count never exceeds the
// policy limit.
//
// Evictions performed before a fraud block are committed, not rolled back.
// A blocked login therefore still costs the account its oldest sessions.
func (e *Engine) CreateSession(ctx context.Context, userID uuid.UUID, role string, fp domain.DeviceFingerprint, sourceAddr string) (*CreateResult, error) {
	pol := e.policies.Get(role)

	var result CreateResult
	var blocked *domain.FraudBlockedError

	err := e.store.WithAccountLock(ctx, userID, func(tx Tx) error {
		active, err := tx.ActiveSessions(ctx, userID)
		if err != nil {
			return fmt.Errorf("load active sessions: %w", err)
		}
		now := time.Now()

		terminated, err := e.evict(ctx, tx, pol, active)
		if err != nil {
			return err
		}
		if terminated > 0 {
			if err := tx.AppendEvent(ctx, domain.NewSessionsTerminatedEvent(userID, terminated, reasonEviction)); err != nil {
				return fmt.Errorf("append eviction event: %w", err)
			}
		}
		result.TerminatedCount = terminated

		// Score against the pre-eviction snapshot: the sessions just evicted
		// still count as history.
		result.Assessment = e.detector.Evaluate(fraudHistory(active, now), fp)

		if result.Assessment.Confidence >= 70 && result.Assessment.RecommendedAction == domain.ActionBlock {
			blocked = &domain.FraudBlockedError{
				Confidence: result.Assessment.Confidence,
				Reasons:    result.Assessment.Reasons,
			}
			if err := tx.AppendEvent(ctx, domain.NewFraudBlockedEvent(userID, result.Assessment)); err != nil {
				return fmt.Errorf("append fraud event: %w", err)
			}
			// Returning nil commits the evictions above.
			return nil
		}

		token, err := newToken()
		if err != nil {
			return fmt.Errorf("generate token: %w", err)
		}
		if sourceAddr == "" {
			sourceAddr = "unknown"
		}
		s := &domain.Session{
			ID:            uuid.New(),
			UserID:        userID,
			Token:         token,
			Fingerprint:   fp,
			SourceAddress: sourceAddr,
			CreatedAt:     now,
			ExpiresAt:     now.Add(TTL),
		}
		if err := tx.Insert(ctx, s); err != nil {
			return fmt.Errorf("insert session: %w", err)
		}
		if err := tx.AppendEvent(ctx, domain.NewSessionCreatedEvent(s)); err != nil {
			return fmt.Errorf("append created event: %w", err)
		}
		result.Session = s
		return nil
	})
	if err != nil {
		return nil, domain.ErrInternal("create session", err)
	}

	if blocked != nil {
		e.logger.Warn("session creation blocked",
			"user_id", userID,
			"confidence", blocked.Confidence,
			"terminated", result.TerminatedCount,
		)
		return nil, blocked
	}

	e.logger.Info("session created",
		"user_id", userID,
		"session_id", result.Session.ID,
		"role", pol.Role,
		"device_type", fp.DeviceType,
		"terminated", result.TerminatedCount,
		"fraud_confidence", result.Assessment.Confidence,
	)
	return &result, nil
}

// evict applies the policy's eviction branches and returns how many
// terminations were issued. The device-group and session-count branches run
// independently off the same pre-eviction snapshot, so a session can be
// counted twice; termination itself is idempotent.
func (e *Engine) evict(ctx context.Context, tx Tx, pol domain.SessionPolicy, active []domain.Session) (int, error) {
	if pol.EnforceSingleSession {
		if len(active) == 0 {
			return 0, nil
		}
		ids := make([]uuid.UUID, len(active))
		for i, s := range active {
			ids[i] = s.ID
		}
		if err := tx.Terminate(ctx, ids); err != nil {
			return 0, fmt.Errorf("terminate all sessions: %w", err)
		}
		return len(active), nil
	}

	terminated := 0

	if pol.MaxDevices > 0 {
		ids := oldestDeviceGroupSessions(active, pol.MaxDevices)
		if len(ids) > 0 {
			if err := tx.Terminate(ctx, ids); err != nil {
				return 0, fmt.Errorf("terminate device groups: %w", err)
			}
			terminated += len(ids)
		}
	}

	if pol.MaxSessions > 0 && len(active) >= pol.MaxSessions {
		excess := len(active) - pol.MaxSessions + 1
		// active is newest-first: the oldest sessions sit at the tail.
		ids := make([]uuid.UUID, 0, excess)
		for i := len(active) - 1; i >= len(active)-excess; i-- {
			ids = append(ids, active[i].ID)
		}
		if err := tx.Terminate(ctx, ids); err != nil {
			return 0, fmt.Errorf("terminate excess sessions: %w", err)
		}
		terminated += len(ids)
	}

	return terminated, nil
}

// oldestDeviceGroupSessions groups the snapshot by device key and, when the
// distinct-device count has reached maxDevices, returns every session in the
// oldest surplus groups. Groups are ordered by their earliest session.
func oldestDeviceGroupSessions(active []domain.Session, maxDevices int) []uuid.UUID {
	type group struct {
		earliest time.Time
		ids      []uuid.UUID
	}
	byKey := make(map[string]*group)
	var order []*group
	for _, s := range active {
		key := s.Fingerprint.DeviceKey()
		g, ok := byKey[key]
		if !ok {
			g = &group{earliest: s.CreatedAt}
			byKey[key] = g
			order = append(order, g)
		}
		g.ids = append(g.ids, s.ID)
		if s.CreatedAt.Before(g.earliest) {
			g.earliest = s.CreatedAt
		}
	}

	if len(order) < maxDevices {
		return nil
	}

	sort.SliceStable(order, func(i, j int) bool { return order[i].earliest.Before(order[j].earliest) })

	surplus := len(order) - maxDevices + 1
	var ids []uuid.UUID
	for _, g := range order[:surplus] {
		ids = append(ids, g.ids...)
	}
	return ids
}

// fraudHistory shapes the pre-eviction snapshot into what the detector
// expects: sessions created inside the history window, newest-first, capped.
func fraudHistory(active []domain.Session, now time.Time) []domain.Session {
	cutoff := now.Add(-fraud.HistoryWindow)
	out := make([]domain.Session, 0, len(active))
	for _, s := range active {
		if s.CreatedAt.After(cutoff) {
			out = append(out, s)
		}
		if len(out) == fraud.HistoryLimit {
			break
		}
	}
	return out
}

// ValidateSession checks a session on an authenticated request. For
// single-session roles it detects "logged in elsewhere": when a newer session
// exists, the checked one is terminated on the spot. Other roles only need an
// active match; limits are enforced at creation time, never re-checked here.
func (e *Engine) ValidateSession(ctx context.Context, sessionID, userID uuid.UUID) (domain.SessionValidation, error) {
	s, err := e.store.FindActive(ctx, sessionID, userID)
	if err != nil {
		return domain.SessionValidation{}, domain.ErrInternal("find session", err)
	}
	if s == nil {
		return domain.SessionValidation{Valid: false, Reason: domain.ValidationNotFound}, nil
	}

	role, err := e.store.RoleOf(ctx, userID)
	if err != nil {
		return domain.SessionValidation{}, domain.ErrInternal("resolve role", err)
	}
	pol := e.policies.Get(role)
	if !pol.EnforceSingleSession {
		return domain.SessionValidation{Valid: true}, nil
	}

	latest, err := e.store.MostRecentActive(ctx, userID)
	if err != nil {
		return domain.SessionValidation{}, domain.ErrInternal("find latest session", err)
	}
	if latest != nil && latest.ID != sessionID {
		if err := e.store.Terminate(ctx, []uuid.UUID{sessionID}); err != nil {
			return domain.SessionValidation{}, domain.ErrInternal("terminate superseded session", err)
		}
		if err := e.store.AppendEvent(ctx, domain.NewSessionsTerminatedEvent(userID, 1, reasonSuperseded)); err != nil {
			e.logger.Error("append supersede event failed", "user_id", userID, "error", err)
		}
		e.logger.Info("session superseded", "user_id", userID, "session_id", sessionID, "newer", latest.ID)
		return domain.SessionValidation{Valid: false, Terminated: true, Reason: domain.ValidationSuperseded}, nil
	}

	return domain.SessionValidation{Valid: true}, nil
}

// ListSessions returns the user's active sessions, newest-first.
func (e *Engine) ListSessions(ctx context.Context, userID uuid.UUID) ([]domain.Session, error) {
	active, err := e.store.ActiveSessions(ctx, userID)
	if err != nil {
		return nil, domain.ErrInternal("list sessions", err)
	}
	return active, nil
}

// GetUserSessionStats aggregates the user's active sessions.
func (e *Engine) GetUserSessionStats(ctx context.Context, userID uuid.UUID) (*domain.SessionStats, error) {
	stats, err := e.store.Stats(ctx, userID)
	if err != nil {
		return nil, domain.ErrInternal("session stats", err)
	}
	return stats, nil
}

// TerminateAllSessions soft-expires every active session of the user.
func (e *Engine) TerminateAllSessions(ctx context.Context, userID uuid.UUID) (int, error) {
	n, err := e.store.TerminateAll(ctx, userID)
	if err != nil {
		return 0, domain.ErrInternal("terminate all sessions", err)
	}
	if n > 0 {
		if err := e.store.AppendEvent(ctx, domain.NewSessionsTerminatedEvent(userID, n, reasonAll)); err != nil {
			e.logger.Error("append terminate-all event failed", "user_id", userID, "error", err)
		}
	}
	return n, nil
}

// TerminateSession soft-expires one session, typically on logout. Terminating
// an already-expired or unknown session is a no-op.
func (e *Engine) TerminateSession(ctx context.Context, sessionID, userID uuid.UUID) error {
	s, err := e.store.FindActive(ctx, sessionID, userID)
	if err != nil {
		return domain.ErrInternal("find session", err)
	}
	if s == nil {
		return nil
	}
	if err := e.store.Terminate(ctx, []uuid.UUID{sessionID}); err != nil {
		return domain.ErrInternal("terminate session", err)
	}
	if err := e.store.AppendEvent(ctx, domain.NewSessionsTerminatedEvent(userID, 1, "logout")); err != nil {
		e.logger.Error("append logout event failed", "user_id", userID, "error", err)
	}
	return nil
}

// TerminateDeviceSessions soft-expires the user's active sessions on one device.
func (e *Engine) TerminateDeviceSessions(ctx context.Context, userID uuid.UUID, deviceKey string) (int, error) {
	n, err := e.store.TerminateDevice(ctx, userID, deviceKey)
	if err != nil {
		return 0, domain.ErrInternal("terminate device sessions", err)
	}
	if n > 0 {
		if err := e.store.AppendEvent(ctx, domain.NewSessionsTerminatedEvent(userID, n, reasonDevice)); err != nil {
			e.logger.Error("append terminate-device event failed", "user_id", userID, "error", err)
		}
	}
	return n, nil
}

// newToken returns a fresh opaque 256-bit session token.
func newToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
