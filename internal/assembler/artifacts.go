package assembler

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	slugStrip    = regexp.MustCompile(`[^\w\s-]`)
	slugCollapse = regexp.MustCompile(`\s+`)
)

// artifactName builds the per-line file name: a 3-digit 1-based
// sequence number, the voice id, and a filesystem-safe slug of the
// line's opening words.
func artifactName(seq int, voice, text string) string {
	return fmt.Sprintf("%03d_%s_%s.wav", seq, voice, slugify(text))
}

// slugify keeps the first 30 characters, drops everything that is not
// a word character, space or hyphen, and joins words with underscores.
func slugify(text string) string {
	runes := []rune(text)
	if len(runes) > 30 {
		runes = runes[:30]
	}
	s := slugStrip.ReplaceAllString(string(runes), "")
	s = strings.TrimSpace(s)
	return slugCollapse.ReplaceAllString(s, "_")
}
