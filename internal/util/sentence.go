package util

import (
	"strings"
	"unicode"
)

// SplitSentences splits text on sentence boundaries: a '.', '!' or '?'
// followed by whitespace ends a sentence. Empty fragments are dropped.
func SplitSentences(text string) []string {
	var sentences []string
	var current strings.Builder

	runes := []rune(text)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		current.WriteRune(r)
		if (r == '.' || r == '!' || r == '?') && (i+1 >= len(runes) || unicode.IsSpace(runes[i+1])) {
			if s := strings.TrimSpace(current.String()); s != "" {
				sentences = append(sentences, s)
			}
			current.Reset()
			// skip the separating whitespace
			for i+1 < len(runes) && unicode.IsSpace(runes[i+1]) {
				i++
			}
		}
	}
	if s := strings.TrimSpace(current.String()); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}

// TruncateSentences joins at most limit sentences of text with single spaces.
func TruncateSentences(text string, limit int) string {
	sentences := SplitSentences(text)
	if len(sentences) > limit {
		sentences = sentences[:limit]
	}
	return strings.Join(sentences, " ")
}

// Snippet returns the first two sentences of text capped at maxLen runes.
// An empty input yields an empty snippet.
func Snippet(text string, maxLen int) string {
	sentences := SplitSentences(text)
	if len(sentences) > 2 {
		sentences = sentences[:2]
	}
	joined := strings.Join(sentences, " ")
	runes := []rune(joined)
	if len(runes) > maxLen {
		return string(runes[:maxLen])
	}
	return joined
}
