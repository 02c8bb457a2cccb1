// Package policy holds the per-room content rules: link and upload
// permissions, link detection, mention parsing, and the SSRF-guarded
// link-preview fetcher.
package policy

import (
	"regexp"
	"strings"

	"vixogram/internal/models"
)

// Topical rooms with a relaxed content policy, matched by case-insensitive
// substring of the display name.
const (
	showcaseRoomMarker  = "showcase your work"
	promotionRoomMarker = "free promotion"
)

func displayNameContains(room *models.Room, marker string) bool {
	return strings.Contains(strings.ToLower(room.DisplayName), marker)
}

// RoomAllowsLinks reports whether links may appear in message bodies.
// Private rooms always allow them; among topical rooms only the showcase
// and free-promotion rooms do.
func RoomAllowsLinks(room *models.Room) bool {
	if room.IsPrivate {
		return true
	}
	return displayNameContains(room, showcaseRoomMarker) || displayNameContains(room, promotionRoomMarker)
}

// RoomAllowsUploads reports whether media uploads are accepted. Code rooms
// and the showcase room allow them; free promotion deliberately does not.
func RoomAllowsUploads(room *models.Room) bool {
	if room.IsPrivate && room.IsCodeRoom {
		return true
	}
	return displayNameContains(room, showcaseRoomMarker)
}

var (
	schemeLinkRe = regexp.MustCompile(`(?i)https?://\S+`)
	wwwLinkRe    = regexp.MustCompile(`(?i)\bwww\.\S+`)
	// Bare domains: label(.label)+.tld with an optional path. The TLD must
	// be alphabetic so "12.30" or "3.14" never match.
	bareDomainRe = regexp.MustCompile(`(?i)\b[a-z0-9][a-z0-9-]*(\.[a-z0-9][a-z0-9-]*)*\.[a-z]{2,}(/\S*)?`)
)

// ContainsLink reports whether text carries a URL or bare domain.
func ContainsLink(text string) bool {
	if schemeLinkRe.MatchString(text) || wwwLinkRe.MatchString(text) {
		return true
	}
	for _, m := range bareDomainRe.FindAllString(text, -1) {
		if strings.ContainsFunc(m, func(r rune) bool {
			return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
		}) {
			return true
		}
	}
	return false
}

// FirstLink extracts the first URL-looking token, normalizing scheme-less
// matches to https for the preview fetcher.
func FirstLink(text string) string {
	if m := schemeLinkRe.FindString(text); m != "" {
		return strings.TrimRight(m, ".,;!?)")
	}
	if m := wwwLinkRe.FindString(text); m != "" {
		return "https://" + strings.TrimRight(m, ".,;!?)")
	}
	return ""
}
