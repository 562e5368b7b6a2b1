package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EventType enumerates all domain event types.
type EventType string

const (
	EventSessionCreated     EventType = "session.created"
	EventSessionsTerminated EventType = "session.terminated"
	EventSessionFraudBlock  EventType = "session.fraud_blocked"
	EventUserLoggedIn       EventType = "user.logged_in"
)

// AggregateType enumerates the aggregate root types for outbox events.
type AggregateType string

const (
	AggregateSession AggregateType = "session"
	AggregateUser    AggregateType = "user"
)

// OutboxDraft is the payload written to the event_outbox table. Rows are
// appended in the same transaction as the state change they describe and
// published to Kafka by the outbox poller.
type OutboxDraft struct {
	EventID       uuid.UUID       `json:"event_id"`
	AggregateType AggregateType   `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     EventType       `json:"event_type"`
	PartitionKey  string          `json:"partition_key"`
	Payload       json.RawMessage `json:"payload"`
	OccurredAt    time.Time       `json:"occurred_at"`
}
