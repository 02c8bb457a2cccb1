package policy

import "regexp"

// MaxMentionsPerMessage bounds fan-out work per message.
const MaxMentionsPerMessage = 10

// Handles start at the beginning of the text or after whitespace, so email
// addresses never parse as mentions.
var mentionRe = regexp.MustCompile(`(?:^|\s)@([A-Za-z0-9_.-]{1,32})`)

// ParseMentions extracts up to MaxMentionsPerMessage unique handles from
// the body, in order of first appearance. Handles are returned as written;
// resolution against users is case-insensitive and done by the caller.
func ParseMentions(body string) []string {
	matches := mentionRe.FindAllStringSubmatch(body, -1)
	if len(matches) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(matches))
	var handles []string
	for _, m := range matches {
		handle := m[1]
		if _, dup := seen[handle]; dup {
			continue
		}
		seen[handle] = struct{}{}
		handles = append(handles, handle)
		if len(handles) == MaxMentionsPerMessage {
			break
		}
	}
	return handles
}
