package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Validator Tests ---

func TestValidateEmail(t *testing.T) {
	tests := []struct {
		name    string
		email   string
		wantErr bool
		errMsg  string
	}{
		{"valid email", "user@example.com", false, ""},
		{"valid email with dots", "first.last@example.co.uk", false, ""},
		{"valid email with plus", "user+tag@example.com", false, ""},
		{"empty string", "", true, "email is required"},
		{"no at sign", "userexample.com", true, "invalid email format"},
		{"no domain", "user@", true, "invalid email format"},
		{"no tld", "user@example", true, "invalid email format"},
		{"spaces", "user @example.com", true, "invalid email format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateEmail(tt.email)
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

// --- DeviceFingerprint Tests ---

func TestDeviceKey_EqualIffTripleEqual(t *testing.T) {
	base := DeviceFingerprint{
		UserAgent: "Mozilla/5.0 (Windows NT 10.0)",
		Platform:  PlatformWindows,
		Timezone:  "America/Sao_Paulo",
	}

	same := base
	same.Language = "en-US" // not part of the key
	same.ScreenResolution = "1920x1080"
	assert.Equal(t, base.DeviceKey(), same.DeviceKey())

	diffUA := base
	diffUA.UserAgent = "Mozilla/5.0 (Windows NT 11.0)"
	assert.NotEqual(t, base.DeviceKey(), diffUA.DeviceKey())

	diffPlatform := base
	diffPlatform.Platform = PlatformLinux
	assert.NotEqual(t, base.DeviceKey(), diffPlatform.DeviceKey())

	diffTZ := base
	diffTZ.Timezone = "UTC"
	assert.NotEqual(t, base.DeviceKey(), diffTZ.DeviceKey())
}

// --- Session Tests ---

func TestSessionActive(t *testing.T) {
	now := time.Now()
	s := Session{ID: uuid.New(), ExpiresAt: now.Add(time.Hour)}
	assert.True(t, s.Active(now))

	s.ExpiresAt = now.Add(-time.Second)
	assert.False(t, s.Active(now))

	// Termination and natural expiry share the one field.
	s.ExpiresAt = now
	assert.False(t, s.Active(now))
}

// --- Error Tests ---

func TestFraudBlockedError_Message(t *testing.T) {
	err := &FraudBlockedError{
		Confidence: 70,
		Reasons:    []string{"Multiple desktop sessions detected (3)", "Excessive desktop count"},
	}
	assert.Contains(t, err.Error(), "confidence 70")
	assert.Contains(t, err.Error(), "Multiple desktop sessions detected (3)")
}

func TestAppError_Unwrap(t *testing.T) {
	cause := assert.AnError
	err := ErrInternal("load sessions", cause)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, 500, err.Status)
}
