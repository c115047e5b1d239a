// Package handle normalizes social account handles so that the same account
// written as "@Foo", "https://platform/foo/" or "foo" compares equal.
package handle

import (
	"net/url"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/sells-group/acquisition-cli/internal/model"
)

// maxHandleLen bounds accepted handles; no supported platform allows more.
const maxHandleLen = 64

// pathPrefixes are URL path segments that precede the handle itself.
var pathPrefixes = map[string]struct{}{
	"c":       {},
	"user":    {},
	"channel": {},
}

var folder = cases.Fold()

// Normalize strips URL and "@" decoration and case-folds the handle.
// Normalize(Normalize(x)) == Normalize(x).
func Normalize(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}

	if looksLikeURL(s) {
		s = fromURL(s)
	}

	s = strings.Trim(s, "/")
	s = strings.TrimLeft(s, "@")
	s = strings.TrimSpace(s)
	s = norm.NFKC.String(s)
	return folder.String(s)
}

// Valid reports whether h is a plausible normalized handle.
func Valid(h string) bool {
	if h == "" || len(h) > maxHandleLen {
		return false
	}
	for _, r := range h {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '.' || r == '_' || r == '-' {
			continue
		}
		return false
	}
	return true
}

// ProfileURL returns the canonical public profile URL for a handle.
func ProfileURL(p model.Platform, h string) string {
	switch p {
	case model.PlatformInstagram:
		return "https://www.instagram.com/" + h + "/"
	case model.PlatformTikTok:
		return "https://www.tiktok.com/@" + h
	case model.PlatformYouTube:
		return "https://www.youtube.com/@" + h
	default:
		return h
	}
}

func looksLikeURL(s string) bool {
	lower := strings.ToLower(s)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		return true
	}
	// Bare "instagram.com/foo" style values.
	slash := strings.Index(s, "/")
	return slash > 0 && strings.Contains(s[:slash], ".")
}

func fromURL(s string) string {
	if !strings.Contains(s, "://") {
		s = "https://" + s
	}
	u, err := url.Parse(s)
	if err != nil {
		return s
	}

	var segments []string
	for _, seg := range strings.Split(u.Path, "/") {
		if seg != "" {
			segments = append(segments, seg)
		}
	}
	if len(segments) == 0 {
		return ""
	}
	if _, ok := pathPrefixes[strings.ToLower(segments[0])]; ok && len(segments) > 1 {
		return segments[1]
	}
	return segments[0]
}

var platformHosts = map[string]model.Platform{
	"instagram.com": model.PlatformInstagram,
	"instagr.am":    model.PlatformInstagram,
	"tiktok.com":    model.PlatformTikTok,
	"youtube.com":   model.PlatformYouTube,
	"youtu.be":      model.PlatformYouTube,
}

// DetectPlatform infers the platform from a profile URL. Bare handles report
// false.
func DetectPlatform(raw string) (model.Platform, bool) {
	s := strings.TrimSpace(raw)
	if !looksLikeURL(s) {
		return "", false
	}
	if !strings.Contains(s, "://") {
		s = "https://" + s
	}
	u, err := url.Parse(s)
	if err != nil {
		return "", false
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	host = strings.TrimPrefix(host, "m.")
	p, ok := platformHosts[host]
	return p, ok
}
