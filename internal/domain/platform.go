package domain

import "time"

// Known marketplace identifiers
const (
	PlatformAliExpress = "aliexpress"
	PlatformTemu       = "temu"
	PlatformDHgate     = "dhgate"
	PlatformLens       = "lens"
)

// PlatformLimits is the sliding-window request budget of one platform
type PlatformLimits struct {
	MaxRequests int
	Window      time.Duration
}
