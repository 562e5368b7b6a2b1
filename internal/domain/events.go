package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// NewSessionCreatedEvent records a freshly persisted session.
func NewSessionCreatedEvent(s *Session) OutboxDraft {
	payload, _ := json.Marshal(map[string]interface{}{
		"session_id":  s.ID.String(),
		"user_id":     s.UserID.String(),
		"device_key":  s.Fingerprint.DeviceKey(),
		"platform":    s.Fingerprint.Platform,
		"device_type": s.Fingerprint.DeviceType,
		"expires_at":  s.ExpiresAt,
	})
	return OutboxDraft{
		EventID:       uuid.New(),
		AggregateType: AggregateSession,
		AggregateID:   s.ID.String(),
		EventType:     EventSessionCreated,
		PartitionKey:  s.UserID.String(),
		Payload:       payload,
		OccurredAt:    time.Now(),
	}
}

// NewSessionsTerminatedEvent records a policy eviction or an explicit
// termination of one or more sessions.
func NewSessionsTerminatedEvent(userID uuid.UUID, count int, reason string) OutboxDraft {
	payload, _ := json.Marshal(map[string]interface{}{
		"user_id": userID.String(),
		"count":   count,
		"reason":  reason,
	})
	return OutboxDraft{
		EventID:       uuid.New(),
		AggregateType: AggregateSession,
		AggregateID:   userID.String(),
		EventType:     EventSessionsTerminated,
		PartitionKey:  userID.String(),
		Payload:       payload,
		OccurredAt:    time.Now(),
	}
}

// NewFraudBlockedEvent records a refused session creation for manual review.
func NewFraudBlockedEvent(userID uuid.UUID, assessment FraudAssessment) OutboxDraft {
	payload, _ := json.Marshal(map[string]interface{}{
		"user_id":    userID.String(),
		"confidence": assessment.Confidence,
		"reasons":    assessment.Reasons,
	})
	return OutboxDraft{
		EventID:       uuid.New(),
		AggregateType: AggregateUser,
		AggregateID:   userID.String(),
		EventType:     EventSessionFraudBlock,
		PartitionKey:  userID.String(),
		Payload:       payload,
		OccurredAt:    time.Now(),
	}
}
