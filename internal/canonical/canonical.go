// Package canonical extracts a platform-specific native meeting id from a
// meeting URL and forms the cluster-wide canonical triple. It is pure: no
// I/O, no clock, no randomness.
package canonical

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/meetbot/platform/internal/apperr"
)

// Platform is a closed set of supported conferencing platforms.
type Platform string

const (
	GoogleMeet Platform = "google_meet"
	Zoom       Platform = "zoom"
	Teams      Platform = "teams"
)

func (p Platform) valid() bool {
	switch p {
	case GoogleMeet, Zoom, Teams:
		return true
	default:
		return false
	}
}

// Triple is the cluster-wide key for the orchestrator lock and the live
// mapping. The token is embedded verbatim so that two tenants racing on the
// same native meeting id never collide.
type Triple struct {
	Platform        Platform
	NativeMeetingID string
	Token           string
}

// String joins the components with ':', matching the Redis key layout
// lock:<platform>:<native_id>:<token>. The delimiter is not escaped: a Teams
// native id itself contains ':', so the rendered string cannot always be
// split back into its three components.
func (t Triple) String() string {
	return string(t.Platform) + ":" + t.NativeMeetingID + ":" + t.Token
}

var (
	googleMeetPattern = regexp.MustCompile(`^[a-z]{3}-[a-z]{4}-[a-z]{3}$`)
	zoomPattern       = regexp.MustCompile(`^\d{9,11}$`)
)

// Extract derives the native meeting id from meetingURL for the given
// platform, or reports a Validation error if the URL does not match the
// platform's expected shape.
func Extract(platform Platform, meetingURL string) (string, error) {
	if !platform.valid() {
		return "", apperr.New(apperr.Validation, "unknown platform: "+string(platform))
	}

	u, err := url.Parse(strings.TrimSpace(meetingURL))
	if err != nil || u.Host == "" {
		return "", apperr.New(apperr.Validation, "malformed meeting url")
	}

	switch platform {
	case GoogleMeet:
		return extractGoogleMeet(u)
	case Zoom:
		return extractZoom(u)
	case Teams:
		return extractTeams(u)
	default:
		return "", apperr.New(apperr.Validation, "unknown platform: "+string(platform))
	}
}

func extractGoogleMeet(u *url.URL) (string, error) {
	if !strings.Contains(u.Host, "meet.google.com") {
		return "", apperr.New(apperr.Validation, "not a google meet url")
	}
	code := strings.Trim(u.Path, "/")
	if !googleMeetPattern.MatchString(code) {
		return "", apperr.New(apperr.Validation, "malformed google meet code")
	}
	return code, nil
}

func extractZoom(u *url.URL) (string, error) {
	if !strings.Contains(u.Host, "zoom.us") {
		return "", apperr.New(apperr.Validation, "not a zoom url")
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) < 2 || parts[0] != "j" {
		return "", apperr.New(apperr.Validation, "malformed zoom join url")
	}
	id := parts[1]
	if !zoomPattern.MatchString(id) {
		return "", apperr.New(apperr.Validation, "malformed zoom meeting id")
	}
	return id, nil
}

func extractTeams(u *url.URL) (string, error) {
	if !strings.Contains(u.Host, "teams.microsoft.com") {
		return "", apperr.New(apperr.Validation, "not a teams url")
	}
	if !strings.Contains(u.Path, "/l/meetup-join/") {
		return "", apperr.New(apperr.Validation, "malformed teams meetup-join url")
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	var threadID string
	for i, p := range parts {
		if p == "meetup-join" && i+1 < len(parts) {
			threadID = parts[i+1]
			break
		}
	}
	if threadID == "" {
		return "", apperr.New(apperr.Validation, "missing teams thread id")
	}
	decoded, err := url.PathUnescape(threadID)
	if err != nil || decoded == "" {
		return "", apperr.New(apperr.Validation, "malformed teams thread id")
	}
	return decoded, nil
}
