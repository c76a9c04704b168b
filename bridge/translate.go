package bridge

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"local/groupmebridge/utils"
)

const (
	// Platform poll limits. GroupMe caps the subject field; Discord caps the
	// question and each answer separately. Both sides allow at most 10 options.
	MaxPollOptions     = 10
	GroupMeSubjectMax  = 160
	GroupMeOptionMax   = 160
	DiscordQuestionMax = 300
	DiscordAnswerMax   = 55

	// Polls default to single-choice and expire 24 hours after creation.
	PollLifetime = 24 * time.Hour
)

var pollMarker = regexp.MustCompile(`(?i)^\s*(?:📊\s*)?poll\s*:\s*`)

// Option extraction cascade, tried in fixed priority order. The first pattern
// yielding at least two options wins.
var (
	keycapPattern   = regexp.MustCompile(`[0-9]\x{FE0F}?\x{20E3}|\x{1F51F}`)
	letteredPattern = regexp.MustCompile(`\b[A-J][\)\.]\s+`)
	bulletPattern   = regexp.MustCompile(`•\s*`)
)

// IsPollText reports whether free text carries the poll marker prefix.
func IsPollText(text string) bool {
	return pollMarker.MatchString(text)
}

// ParseTextPoll extracts question and ordered options from a text-encoded
// poll. Fewer than two extracted options rejects the poll; options beyond the
// platform cap of 10 are dropped.
func ParseTextPoll(text string) (question string, options []string, ok bool) {
	loc := pollMarker.FindStringIndex(text)
	if loc == nil {
		return "", nil, false
	}
	rest := text[loc[1]:]

	extractors := []func(string) (string, []string){
		func(s string) (string, []string) { return splitOptions(s, keycapPattern) },
		func(s string) (string, []string) { return splitOptions(s, letteredPattern) },
		func(s string) (string, []string) { return splitOptions(s, bulletPattern) },
		extractDashOptions,
	}

	for _, extract := range extractors {
		q, opts := extract(rest)
		if len(opts) >= 2 {
			q = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(q), "?"))
			if len(opts) > MaxPollOptions {
				opts = opts[:MaxPollOptions]
			}
			return q, opts, true
		}
	}
	return "", nil, false
}

func splitOptions(text string, sep *regexp.Regexp) (string, []string) {
	parts := sep.Split(text, -1)
	if len(parts) < 3 {
		return "", nil
	}
	question := strings.TrimSpace(parts[0])
	var options []string
	for _, p := range parts[1:] {
		if s := strings.TrimSpace(p); s != "" {
			options = append(options, s)
		}
	}
	return question, options
}

func extractDashOptions(text string) (string, []string) {
	var questionLines, options []string
	for _, line := range strings.Split(text, "\n") {
		t := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(t, "- "):
			options = append(options, strings.TrimSpace(t[2:]))
		case len(options) == 0 && t != "":
			questionLines = append(questionLines, t)
		}
	}
	return strings.Join(questionLines, " "), options
}

// TranslatePoll applies the target platform's character ceilings and option
// cap, preserving option order.
func TranslatePoll(question string, options []string, target Platform) (string, []string) {
	qMax, oMax := GroupMeSubjectMax, GroupMeOptionMax
	if target == PlatformDiscord {
		qMax, oMax = DiscordQuestionMax, DiscordAnswerMax
	}
	if len(options) > MaxPollOptions {
		options = options[:MaxPollOptions]
	}
	out := make([]string, len(options))
	for i, opt := range options {
		out[i] = utils.TruncateRunes(opt, oMax)
	}
	return utils.TruncateRunes(question, qMax), out
}

var keycapLabels = [MaxPollOptions]string{
	"1️⃣", "2️⃣", "3️⃣", "4️⃣", "5️⃣", "6️⃣", "7️⃣", "8️⃣", "9️⃣", "🔟",
}

// OptionLabel is the canonical option-index encoding: keycap emoji for the
// first ten options, plain "{n}." numbering past that. The cap keeps the
// fallback unreachable in practice but it must still hold up.
func OptionLabel(i int) string {
	if i >= 0 && i < len(keycapLabels) {
		return keycapLabels[i]
	}
	return fmt.Sprintf("%d.", i+1)
}

// OptionIndexForEmoji decodes a keycap reaction back to a zero-based option
// index, tolerating a stripped variation selector. Returns -1 for anything
// that is not an option keycap.
func OptionIndexForEmoji(emoji string) int {
	stripped := strings.ReplaceAll(emoji, "️", "")
	for i, label := range keycapLabels {
		if emoji == label || stripped == strings.ReplaceAll(label, "️", "") {
			return i
		}
	}
	return -1
}

// FormatOptionList renders one labeled line per option.
func FormatOptionList(options []string) string {
	lines := make([]string, len(options))
	for i, opt := range options {
		lines[i] = OptionLabel(i) + " " + opt
	}
	return strings.Join(lines, "\n")
}
