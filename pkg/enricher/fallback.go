package enricher

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/tabsense/tabsense/pkg/extractor"
)

const (
	fallbackMinSentence = 30
	fallbackMaxSentence = 300
	fallbackHeadLen     = 150
)

var sentenceEnd = regexp.MustCompile(`[.!?]+`)

// Fallback derives an extractive summary purely from the input text:
// keep sentences strictly between 30 and 300 characters and join the
// first two. When nothing qualifies, the head of the text is used with
// an ellipsis marker. Pure function of its input.
func Fallback(rawText string) string {
	normalized := extractor.Normalize(rawText)

	var kept []string
	for _, s := range sentenceEnd.Split(normalized, -1) {
		s = strings.TrimSpace(s)
		n := utf8.RuneCountInString(s)
		if n > fallbackMinSentence && n < fallbackMaxSentence {
			kept = append(kept, s)
			if len(kept) == 2 {
				break
			}
		}
	}

	if len(kept) > 0 {
		return strings.Join(kept, ". ") + "."
	}
	return extractor.Truncate(rawText, fallbackHeadLen) + "..."
}
