package feed

import (
	"regexp"
	"strings"
)

// NotYet is returned by FindStart while no start position can be decided.
const NotYet = -1

var (
	hookLabel  = regexp.MustCompile(`(?i)hook\s*:`)
	storyLabel = regexp.MustCompile(`(?i)story\s*:`)
)

// FindStart decides where displayable story content begins in the raw text
// accumulated so far for one stream.
//
// Markers are tried in priority order: a "Hook:" label, a "Story:" label
// (both case-insensitive, optional whitespace before the colon), then the
// first "**" emphasis marker. The returned offset points just past the
// marker. When nothing matched and raw is at least fallbackLen bytes long the
// content starts at 0, which bounds how long a preamble can delay display.
// Otherwise NotYet is returned and the caller should try again once more text
// has arrived.
func FindStart(raw string, fallbackLen int) int {
	if loc := hookLabel.FindStringIndex(raw); loc != nil {
		return loc[1]
	}
	if loc := storyLabel.FindStringIndex(raw); loc != nil {
		return loc[1]
	}
	if i := strings.Index(raw, emphasisMarker); i >= 0 {
		return i + len(emphasisMarker)
	}
	if len(raw) >= fallbackLen {
		return 0
	}
	return NotYet
}
