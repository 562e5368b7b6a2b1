package domain

import (
	"fmt"
	"strings"
)

// RecommendedAction is what the fraud detector advises the caller to do.
type RecommendedAction string

const (
	ActionAllow RecommendedAction = "allow"
	ActionWarn  RecommendedAction = "warn"
	ActionBlock RecommendedAction = "block"
)

// FraudSignal is the outcome of a single heuristic check.
type FraudSignal struct {
	Triggered       bool   `json:"triggered"`
	ConfidenceDelta int    `json:"confidence_delta"`
	Reason          string `json:"reason"`
}

// FraudAssessment aggregates all signal deltas into a 0-100 confidence.
type FraudAssessment struct {
	IsFraud           bool              `json:"is_fraud"`
	Confidence        int               `json:"confidence"`
	Reasons           []string          `json:"reasons"`
	RecommendedAction RecommendedAction `json:"recommended_action"`
}

// FraudBlockedError is returned when a session creation is refused outright.
// It is fatal and non-retryable without remediation (manual review); it is
// never used for policy eviction, which succeeds silently.
type FraudBlockedError struct {
	Confidence int
	Reasons    []string
}

func (e *FraudBlockedError) Error() string {
	return fmt.Sprintf("session creation blocked (confidence %d): %s",
		e.Confidence, strings.Join(e.Reasons, "; "))
}
