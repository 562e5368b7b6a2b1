package domain

// SessionPolicy holds the per-role limits on concurrent sessions and devices.
//
// MaxSessions == -1 is reserved to mean unlimited; no role uses it today.
// MaxSessionsPerDevice is carried for parity with the policy schema but is
// not consulted by eviction yet.
type SessionPolicy struct {
	Role                 string `json:"role"`
	MaxSessions          int    `json:"max_sessions"`
	MaxSessionsPerDevice int    `json:"max_sessions_per_device"`
	EnforceSingleSession bool   `json:"enforce_single_session"`
	AllowMultipleDevices bool   `json:"allow_multiple_devices"`
	MaxDevices           int    `json:"max_devices"`
}
