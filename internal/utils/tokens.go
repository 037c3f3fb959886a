package utils

import "strings"

// charsPerToken is the rough ratio used for prompt budgeting.
const charsPerToken = 4

// TruncationMarker is appended to text cut by ClipTokens.
const TruncationMarker = "\n[truncated]"

// EstimateTokens approximates the token count of text at four runes per token,
// rounding up so any non-empty text costs at least one token.
func EstimateTokens(text string) int {
	n := len([]rune(text))
	return (n + charsPerToken - 1) / charsPerToken
}

// ClipTokens returns text unchanged when it fits budget. Otherwise it cuts at
// the last line break inside the budget (or at the budget itself when the
// first line is already too long) and appends TruncationMarker.
func ClipTokens(text string, budget int) string {
	if EstimateTokens(text) <= budget {
		return text
	}
	if budget <= 0 {
		return TruncationMarker[1:]
	}
	runes := []rune(text)
	cut := string(runes[:budget*charsPerToken])
	if i := strings.LastIndexByte(cut, '\n'); i > 0 {
		cut = cut[:i]
	}
	return cut + TruncationMarker
}
