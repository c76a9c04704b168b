package bridge

import (
	"fmt"
	"regexp"

	"local/groupmebridge/utils"
)

const quotedContextMax = 50

// Fixed ordered reply patterns. First two-group match wins. Patterns 3 and 4
// capture quoted text rather than a username in group 1; that group is still
// used as the "replying to" label, matching the inherited behavior.
var replyPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?s)^Reply to @(\w+):\s*(.+)`),
	regexp.MustCompile(`(?s)^@(\w+)\s+(.+)`),
	regexp.MustCompile(`(?s)^>\s*(.+?)\n(.+)`),
	regexp.MustCompile(`(?s)^"(.+?)"\s*(.+)`),
}

// DetectReply pattern-matches message text for a textual reply context.
// Failure to match is not an error: the caller degrades to plain relay with
// the text unchanged.
func DetectReply(content string) (author, clean string, ok bool) {
	for _, pattern := range replyPatterns {
		m := pattern.FindStringSubmatch(content)
		if len(m) == 3 {
			return m[1], m[2], true
		}
	}
	return "", content, false
}

// FormatReplyPrefix renders the cosmetic quoted-context prefix for an
// outbound message. Native reply references include the quoted body; textual
// matches only name who is being replied to.
func FormatReplyPrefix(author, quoted string) string {
	if quoted != "" {
		return fmt.Sprintf("↪️ Replying to %s: \"%s\"\n\n", author, utils.TruncateRunes(quoted, quotedContextMax))
	}
	return fmt.Sprintf("↪️ Replying to %s:\n\n", author)
}
