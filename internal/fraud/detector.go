// Package fraud scores a candidate login device against an account's recent
// session history. Evaluation is pure: no storage, no clock mutation beyond
// reading now, safe under unbounded parallelism.
package fraud

import (
	"fmt"
	"time"

	"github.com/fitsync/platform/internal/domain"
)

// Signal deltas. Independent checks; triggered deltas are summed then clamped.
const (
	deltaMultipleDesktops  = 30
	deltaRapidChanges      = 25
	deltaPlatformMismatch  = 20
	deltaExcessiveDesktops = 40
	deltaExcessiveTotal    = 30
)

// Decision thresholds on the clamped 0-100 confidence.
const (
	fraudThreshold = 50
	blockThreshold = 70
)

// History shaping: the engine hands Evaluate sessions created within this
// window, still unexpired, newest-first, capped at HistoryLimit.
const (
	HistoryWindow  = 24 * time.Hour
	HistoryLimit   = 20
	rapidWindow    = 60 * time.Minute
	rapidThreshold = 4
)

// Detector evaluates fraud heuristics over recent session history.
type Detector struct{}

// NewDetector creates a fraud detector.
func NewDetector() *Detector {
	return &Detector{}
}

// Evaluate scores the candidate device against the history snapshot.
// Deterministic for identical inputs and a fixed now.
func (d *Detector) Evaluate(history []domain.Session, device domain.DeviceFingerprint) domain.FraudAssessment {
	return d.evaluateAt(history, device, time.Now())
}

func (d *Detector) evaluateAt(history []domain.Session, device domain.DeviceFingerprint, now time.Time) domain.FraudAssessment {
	signals := []domain.FraudSignal{
		checkMultipleDesktops(history, device),
		checkRapidDeviceChanges(history, now),
		checkInconsistentPlatforms(history, device),
		checkExcessiveDeviceCount(history),
	}

	confidence := 0
	var reasons []string
	for _, sig := range signals {
		if sig.Triggered {
			confidence += sig.ConfidenceDelta
			reasons = append(reasons, sig.Reason)
		}
	}
	if confidence > 100 {
		confidence = 100
	}
	if confidence < 0 {
		confidence = 0
	}

	action := domain.ActionAllow
	switch {
	case confidence >= blockThreshold:
		action = domain.ActionBlock
	case confidence >= fraudThreshold:
		action = domain.ActionWarn
	}

	return domain.FraudAssessment{
		IsFraud:           confidence >= fraudThreshold,
		Confidence:        confidence,
		Reasons:           reasons,
		RecommendedAction: action,
	}
}

// checkMultipleDesktops fires when a desktop candidate would become the
// account's third or later concurrent desktop.
func checkMultipleDesktops(history []domain.Session, device domain.DeviceFingerprint) domain.FraudSignal {
	if !device.IsDesktop() {
		return domain.FraudSignal{}
	}
	desktops := countDesktops(history)
	if desktops < 2 {
		return domain.FraudSignal{}
	}
	return domain.FraudSignal{
		Triggered:       true,
		ConfidenceDelta: deltaMultipleDesktops,
		Reason:          fmt.Sprintf("Multiple desktop sessions detected (%d)", desktops),
	}
}

// checkRapidDeviceChanges fires when at least rapidThreshold history entries
// were created inside the rapid window counted back from now, not relative to
// each record.
func checkRapidDeviceChanges(history []domain.Session, now time.Time) domain.FraudSignal {
	if len(history) < 3 {
		return domain.FraudSignal{}
	}
	cutoff := now.Add(-rapidWindow)
	recent := 0
	for _, s := range history {
		if s.CreatedAt.After(cutoff) {
			recent++
		}
	}
	if recent < rapidThreshold {
		return domain.FraudSignal{}
	}
	return domain.FraudSignal{
		Triggered:       true,
		ConfidenceDelta: deltaRapidChanges,
		Reason:          fmt.Sprintf("Rapid device changes: %d sessions in the last hour", recent),
	}
}

// checkInconsistentPlatforms compares the history against its own modal
// platform, not directly against the candidate's. It fires only when the
// candidate is a desktop off the modal platform AND some historical desktop
// already strayed from the modal platform too.
func checkInconsistentPlatforms(history []domain.Session, device domain.DeviceFingerprint) domain.FraudSignal {
	if len(history) == 0 || !device.IsDesktop() {
		return domain.FraudSignal{}
	}

	modal := modalPlatform(history)
	if device.Platform == modal {
		return domain.FraudSignal{}
	}

	strayDesktop := false
	for _, s := range history {
		if s.Fingerprint.IsDesktop() && s.Fingerprint.Platform != modal {
			strayDesktop = true
			break
		}
	}
	if !strayDesktop {
		return domain.FraudSignal{}
	}

	return domain.FraudSignal{
		Triggered:       true,
		ConfidenceDelta: deltaPlatformMismatch,
		Reason:          fmt.Sprintf("Inconsistent platforms: %s deviates from usual %s", device.Platform, modal),
	}
}

// checkExcessiveDeviceCount has two mutually exclusive branches: too many
// desktops short-circuits the weaker total-volume branch.
func checkExcessiveDeviceCount(history []domain.Session) domain.FraudSignal {
	if desktops := countDesktops(history); desktops > 4 {
		return domain.FraudSignal{
			Triggered:       true,
			ConfidenceDelta: deltaExcessiveDesktops,
			Reason:          fmt.Sprintf("Excessive desktop count (%d)", desktops),
		}
	}
	if len(history) > 6 {
		return domain.FraudSignal{
			Triggered:       true,
			ConfidenceDelta: deltaExcessiveTotal,
			Reason:          fmt.Sprintf("Excessive session count (%d)", len(history)),
		}
	}
	return domain.FraudSignal{}
}

// IsLegitimateUse recognizes common benign multi-device shapes: a first-ever
// login, a phone joining one desktop, a desktop joining one phone, or a
// repeat desktop matching a prior platform and resolution. It is an
// allow-list extension point; the main decision path does not consult it.
func IsLegitimateUse(history []domain.Session, device domain.DeviceFingerprint) bool {
	if len(history) == 0 {
		return true
	}

	desktops := countDesktops(history)
	mobiles := 0
	for _, s := range history {
		if s.Fingerprint.IsMobile() {
			mobiles++
		}
	}

	if device.IsMobile() && desktops == 1 {
		return true
	}
	if device.IsDesktop() && mobiles == 1 {
		return true
	}
	if device.IsDesktop() {
		for _, s := range history {
			if s.Fingerprint.IsDesktop() &&
				s.Fingerprint.Platform == device.Platform &&
				s.Fingerprint.ScreenResolution == device.ScreenResolution {
				return true
			}
		}
	}
	return false
}

// modalPlatform returns the most frequent platform in history, ties broken by
// encounter order.
func modalPlatform(history []domain.Session) domain.Platform {
	counts := make(map[domain.Platform]int, len(history))
	var order []domain.Platform
	for _, s := range history {
		p := s.Fingerprint.Platform
		if counts[p] == 0 {
			order = append(order, p)
		}
		counts[p]++
	}

	modal := domain.PlatformUnknown
	best := 0
	for _, p := range order {
		if counts[p] > best {
			best = counts[p]
			modal = p
		}
	}
	return modal
}

func countDesktops(history []domain.Session) int {
	n := 0
	for _, s := range history {
		if s.Fingerprint.IsDesktop() {
			n++
		}
	}
	return n
}
