package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Platform classifies the operating system reported by a device.
type Platform string

const (
	PlatformWindows Platform = "Windows"
	PlatformMac     Platform = "Mac"
	PlatformLinux   Platform = "Linux"
	PlatformAndroid Platform = "Android"
	PlatformIOS     Platform = "iOS"
	PlatformUnknown Platform = "Unknown"
)

// DeviceType is the coarse form factor a fingerprint resolves to.
type DeviceType string

const (
	DeviceDesktop DeviceType = "desktop"
	DeviceMobile  DeviceType = "mobile"
	DeviceUnknown DeviceType = "unknown"
)

// DeviceFingerprint is a coarse, privacy-conscious device identity derived
// from client-presented metadata. It deliberately excludes the network address.
type DeviceFingerprint struct {
	UserAgent           string     `json:"user_agent"`
	Platform            Platform   `json:"platform"`
	DeviceType          DeviceType `json:"device_type"`
	Language            string     `json:"language"`
	Timezone            string     `json:"timezone"`
	ScreenResolution    string     `json:"screen_resolution,omitempty"`
	HardwareConcurrency int        `json:"hardware_concurrency,omitempty"`
}

// DeviceKey returns the grouping key for a fingerprint. Two fingerprints
// denote the same device iff their keys are equal; the key carries no
// identity beyond that.
func (f DeviceFingerprint) DeviceKey() string {
	return strings.Join([]string{f.UserAgent, string(f.Platform), f.Timezone}, "|")
}

// IsDesktop reports whether the fingerprint resolved to a desktop device.
func (f DeviceFingerprint) IsDesktop() bool { return f.DeviceType == DeviceDesktop }

// IsMobile reports whether the fingerprint resolved to a mobile device.
func (f DeviceFingerprint) IsMobile() bool { return f.DeviceType == DeviceMobile }

// Session binds an authenticated account to one device for a bounded time.
//
// Termination rewrites ExpiresAt to the current time: natural expiry and
// forced termination share the one field and one mechanism. Sessions are
// never hard-deleted; the row remains as an audit trail.
type Session struct {
	ID            uuid.UUID         `json:"id"`
	UserID        uuid.UUID         `json:"user_id"`
	Token         string            `json:"-"`
	Fingerprint   DeviceFingerprint `json:"fingerprint"`
	SourceAddress string            `json:"source_address"`
	CreatedAt     time.Time         `json:"created_at"`
	ExpiresAt     time.Time         `json:"expires_at"`
}

// Active reports whether the session is unexpired at the given instant.
func (s *Session) Active(now time.Time) bool { return s.ExpiresAt.After(now) }

// SessionStats aggregates a user's live sessions.
type SessionStats struct {
	ActiveSessions int        `json:"active_sessions"`
	DeviceCount    int        `json:"device_count"`
	LastCreatedAt  *time.Time `json:"last_created_at,omitempty"`
}

// SessionValidation is the outcome of checking a session on an authenticated
// request. Invalid results are expected, caller-recoverable values (force a
// re-login), never errors.
type SessionValidation struct {
	Valid      bool   `json:"valid"`
	Terminated bool   `json:"terminated,omitempty"`
	Reason     string `json:"reason,omitempty"`
}

// Validation reasons.
const (
	ValidationNotFound   = "not_found"
	ValidationSuperseded = "superseded"
)
