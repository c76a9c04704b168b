package utils

import (
	"regexp"
	"strings"
)

// MarkdownToPlain flattens Discord markdown into the plain text GroupMe
// renders. GroupMe has no rich formatting, so styling markers are stripped
// while their content is kept.
func MarkdownToPlain(text string) string {
	if text == "" {
		return ""
	}
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	// Links: keep text, append target
	linkPattern := regexp.MustCompile(`\[([^\]]+)\]\((https?://[^\s)]+)\)`)
	text = linkPattern.ReplaceAllStringFunc(text, func(match string) string {
		parts := linkPattern.FindStringSubmatch(match)
		if len(parts) < 3 {
			return match
		}
		txt := strings.TrimSpace(parts[1])
		link := strings.TrimSpace(parts[2])
		if txt == link {
			return link
		}
		return txt + " (" + link + ")"
	})

	// Code blocks and inline code
	text = regexp.MustCompile("(?s)```(?:\\w+\n)?(.*?)```").ReplaceAllString(text, "$1")
	text = regexp.MustCompile("`([^`]*)`").ReplaceAllString(text, "$1")

	// Bold, underline, strike, italic (order matters: ** and __ before * and _)
	text = regexp.MustCompile(`\*\*(.*?)\*\*`).ReplaceAllString(text, "$1")
	text = regexp.MustCompile(`__(.*?)__`).ReplaceAllString(text, "$1")
	text = regexp.MustCompile(`~~(.*?)~~`).ReplaceAllString(text, "$1")
	text = regexp.MustCompile(`\*([^*\n]+)\*`).ReplaceAllString(text, "$1")
	text = regexp.MustCompile(`\|\|(.*?)\|\|`).ReplaceAllString(text, "$1")

	// Blockquote markers
	text = regexp.MustCompile(`(?m)^>\s?`).ReplaceAllString(text, "")

	return strings.TrimSpace(text)
}

// TruncateRunes shortens s to at most n runes, appending an ellipsis when
// anything was cut. Platform caps are rune counts, not byte counts.
func TruncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	if n <= 1 {
		return string(runes[:n])
	}
	return string(runes[:n-1]) + "…"
}
