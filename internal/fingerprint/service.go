// Package fingerprint derives a coarse, privacy-conscious device identity
// from request metadata. Network addresses are deliberately excluded.
package fingerprint

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/fitsync/platform/internal/domain"
)

const (
	maxUserAgentLen = 200
	defaultLanguage = "pt-BR"
)

// platformTokens are checked in order; the first substring match wins. Note
// that Android user agents also carry "Linux" and therefore classify as
// Linux here. That ordering is load-bearing for device grouping and must not
// be reshuffled.
var platformTokens = []struct {
	token    string
	platform domain.Platform
}{
	{"Windows", domain.PlatformWindows},
	{"Mac", domain.PlatformMac},
	{"Linux", domain.PlatformLinux},
	{"Android", domain.PlatformAndroid},
	{"iOS", domain.PlatformIOS},
}

// mobileTokens mark a user agent as a handheld device regardless of the
// platform classification above.
var mobileTokens = []string{"Mobile", "Android", "iPhone", "iPad", "iPod", "Tablet"}

// ClientHints carries optional client-reported signals that cannot be read
// from headers.
type ClientHints struct {
	ScreenResolution    string `json:"screen_resolution,omitempty"`
	HardwareConcurrency int    `json:"hardware_concurrency,omitempty"`
}

// Service builds device fingerprints. Stateless; one instance is shared by
// all requests.
type Service struct{}

// NewService creates a fingerprint service.
func NewService() *Service {
	return &Service{}
}

// Generate derives a fingerprint from the User-Agent and Accept-Language
// headers plus optional client hints.
//
// The timezone is the serving process's zone, not the client's. That is the
// historical behavior callers group devices by; changing it would split every
// existing device group, so it stays until a client-reported zone ships.
func (s *Service) Generate(userAgent, acceptLanguage string, hints ClientHints) domain.DeviceFingerprint {
	ua := truncateUserAgent(userAgent)

	platform := classifyPlatform(userAgent)
	zone, _ := time.Now().Zone()

	return domain.DeviceFingerprint{
		UserAgent:           ua,
		Platform:            platform,
		DeviceType:          classifyDeviceType(userAgent, platform),
		Language:            primaryLanguage(acceptLanguage),
		Timezone:            zone,
		ScreenResolution:    hints.ScreenResolution,
		HardwareConcurrency: hints.HardwareConcurrency,
	}
}

// truncateUserAgent caps the stored user agent, cutting on a rune boundary so
// a multi-byte character spanning the limit never leaves invalid UTF-8 behind
// (Postgres rejects such strings outright).
func truncateUserAgent(ua string) string {
	if len(ua) <= maxUserAgentLen {
		return ua
	}
	cut := maxUserAgentLen
	for cut > 0 && !utf8.RuneStart(ua[cut]) {
		cut--
	}
	return ua[:cut]
}

func classifyPlatform(userAgent string) domain.Platform {
	for _, t := range platformTokens {
		if strings.Contains(userAgent, t.token) {
			return t.platform
		}
	}
	return domain.PlatformUnknown
}

// classifyDeviceType resolves the form factor the fraud heuristics branch on.
// Handheld keywords in the raw user agent win over the platform, because the
// platform classifier maps Android devices to Linux (see platformTokens).
func classifyDeviceType(userAgent string, platform domain.Platform) domain.DeviceType {
	for _, t := range mobileTokens {
		if strings.Contains(userAgent, t) {
			return domain.DeviceMobile
		}
	}
	switch platform {
	case domain.PlatformWindows, domain.PlatformMac, domain.PlatformLinux:
		return domain.DeviceDesktop
	case domain.PlatformAndroid, domain.PlatformIOS:
		return domain.DeviceMobile
	default:
		return domain.DeviceUnknown
	}
}

// primaryLanguage takes the first comma-separated token of an Accept-Language
// header, stripped of quality weights.
func primaryLanguage(acceptLanguage string) string {
	first, _, _ := strings.Cut(acceptLanguage, ",")
	first, _, _ = strings.Cut(first, ";")
	first = strings.TrimSpace(first)
	if first == "" {
		return defaultLanguage
	}
	return first
}
