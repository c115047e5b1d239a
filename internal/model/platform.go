// Package model defines the core types of the creator acquisition pipeline.
package model

// Platform identifies a social platform whose accounts are discovered.
type Platform string

const (
	PlatformInstagram Platform = "instagram"
	PlatformTikTok    Platform = "tiktok"
	PlatformYouTube   Platform = "youtube"
)

// Platforms lists every supported platform in display order.
var Platforms = []Platform{PlatformInstagram, PlatformTikTok, PlatformYouTube}

// Valid reports whether p is a supported platform.
func (p Platform) Valid() bool {
	switch p {
	case PlatformInstagram, PlatformTikTok, PlatformYouTube:
		return true
	default:
		return false
	}
}
